package vm

import (
	"strings"
	"testing"

	"github.com/iannisdezwart/tea-sub000/internal/codegen"
	"github.com/iannisdezwart/tea-sub000/internal/exe"
	"github.com/iannisdezwart/tea-sub000/internal/lang"
)

// compileTea runs the whole compiler pipeline over src, the same stages
// cmd/teac drives, so these tests exercise the toolchain end to end: a
// source program in, an exit code and stdout out.
func compileTea(t *testing.T, src string) exe.Image {
	t.Helper()
	toks, err := lang.Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	ast, err := lang.Parse(toks)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	chk, err := lang.Check(ast)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	img, err := codegen.Generate(ast, chk)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return img
}

func runTea(t *testing.T, src, stdin string) (exitCode uint64, stdout string) {
	t.Helper()
	img := compileTea(t, src)
	var out strings.Builder
	m := NewWithIO(img, strings.NewReader(stdin), &out)
	code, err := m.RunProgram()
	if err != nil {
		t.Fatalf("RunProgram: %v", err)
	}
	return code, out.String()
}

func TestProgramFibonacciBelow200(t *testing.T) {
	code, stdout := runTea(t, `
u64 main() {
	u64 a = 0;
	u64 b = 1;
	while (a < 200) {
		syscall PRINT_CHAR(a);
		u64 t = a + b;
		a = b;
		b = t;
	}
	return 0;
}
`, "")
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	want := string([]byte{0, 1, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144})
	if stdout != want {
		t.Errorf("stdout bytes = %v, want %v", []byte(stdout), []byte(want))
	}
}

func TestProgramSumViaFunctionCall(t *testing.T) {
	code, _ := runTea(t, `
u64 add(u64 a, u64 b) {
	return a + b;
}
u64 main() {
	return add(5, 6);
}
`, "")
	if code != 11 {
		t.Errorf("exit code = %d, want 11", code)
	}
}

func TestProgramStaticStringPrinting(t *testing.T) {
	code, stdout := runTea(t, `
v0 print(u8 *s, u64 n) {
	u64 i = 0;
	while (i < n) {
		syscall PRINT_CHAR(s[i]);
		i = i + 1;
	}
}
u64 main() {
	print("Hello, World!\n", 14);
	print("Bye, World!\n", 12);
	print("It wurk!\n", 9);
	return 0;
}
`, "")
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	want := "Hello, World!\nBye, World!\nIt wurk!\n"
	if stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
}

func TestProgramIfElseComparison(t *testing.T) {
	code, _ := runTea(t, `
u64 choose(u64 x, u64 y) {
	if (x < y) {
		return 1;
	} else {
		return 2;
	}
}
u64 main() {
	u64 a = choose(3, 4);
	u64 b = choose(4, 3);
	return a * 10 + b;
}
`, "")
	if code != 12 {
		t.Errorf("exit code = %d, want 12 (choose(3,4)=1, choose(4,3)=2)", code)
	}
}

func TestProgramClassFieldSum(t *testing.T) {
	code, _ := runTea(t, `
class P {
	u64 a;
	u64 b;
}
u64 main() {
	P p;
	p.a = 7;
	p.b = 35;
	return p.a + p.b;
}
`, "")
	if code != 42 {
		t.Errorf("exit code = %d, want 42", code)
	}
}

func TestProgramNestedLoopBreakContinue(t *testing.T) {
	// The outer loop runs i=0,1,2 before breaking at i==3; each inner
	// pass counts j=0..4 minus the j==2 continue, so 3*4 = 12.
	code, _ := runTea(t, `
u64 main() {
	u64 count = 0;
	for (u64 i = 0; i < 5; i = i + 1) {
		if (i == 3) {
			break;
		}
		for (u64 j = 0; j < 5; j = j + 1) {
			if (j == 2) {
				continue;
			}
			count = count + 1;
		}
	}
	return count;
}
`, "")
	if code != 12 {
		t.Errorf("exit code = %d, want 12", code)
	}
}

func TestProgramGetCharReadsStdin(t *testing.T) {
	code, _ := runTea(t, `
u64 main() {
	u64 c = 0;
	syscall GET_CHAR(&c);
	return c;
}
`, "A")
	if code != 'A' {
		t.Errorf("exit code = %d, want %d ('A')", code, 'A')
	}
}

func TestProgramGlobalInitializerRunsBeforeMain(t *testing.T) {
	code, _ := runTea(t, `
u64 base = 40;
u64 main() {
	return base + 2;
}
`, "")
	if code != 42 {
		t.Errorf("exit code = %d, want 42", code)
	}
}

func TestProgramPointerThroughLocal(t *testing.T) {
	code, _ := runTea(t, `
u64 main() {
	u64 x = 10;
	u64 *p = &x;
	*p = 20;
	return x;
}
`, "")
	if code != 20 {
		t.Errorf("exit code = %d, want 20", code)
	}
}

func TestProgramLocalArrayInitList(t *testing.T) {
	code, _ := runTea(t, `
u64 main() {
	u64[3] xs = {11, 22, 33};
	return xs[0] + xs[2];
}
`, "")
	if code != 44 {
		t.Errorf("exit code = %d, want 44", code)
	}
}

func TestProgramCastFloatToInt(t *testing.T) {
	code, _ := runTea(t, `
u64 main() {
	f64 x = 2.5;
	f64 y = 2.0;
	return u64(x * y);
}
`, "")
	if code != 5 {
		t.Errorf("exit code = %d, want 5", code)
	}
}
