// Command teac is the tea compiler driver: tokenize, parse, check and
// lower a .tea source file to a .teax executable image.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iannisdezwart/tea-sub000/internal/codegen"
	"github.com/iannisdezwart/tea-sub000/internal/exe"
	"github.com/iannisdezwart/tea-sub000/internal/lang"
)

var debug bool

func main() {
	root := &cobra.Command{
		Use:   "teac",
		Short: "tea compiler",
	}
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "print each compile stage's diagnostics")

	root.AddCommand(compileCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func compileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <input.tea> <output.teax>",
		Short: "compile a tea source file to an executable image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(args[0], args[1])
		},
	}
}

func runCompile(inPath, outPath string) error {
	src, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("%s: %w", inPath, err)
	}

	toks, err := lang.Tokenize(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", inPath, err)
		os.Exit(1)
	}
	if debug {
		fmt.Fprintf(os.Stderr, "%s: %d tokens\n", inPath, len(toks))
	}

	ast, err := lang.Parse(toks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", inPath, err)
		os.Exit(1)
	}

	chk, err := lang.Check(ast)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", inPath, err)
		os.Exit(1)
	}
	if debug {
		fmt.Fprintf(os.Stderr, "%s: checked, %d bytes of globals\n", inPath, chk.GlobalsSize())
	}

	var img exe.Image
	var syms *codegen.Symbols
	if debug {
		img, syms, err = codegen.GenerateDebug(ast, chk)
	} else {
		img, err = codegen.Generate(ast, chk)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", inPath, err)
		os.Exit(1)
	}

	if err := exe.WriteFile(outPath, img); err != nil {
		return fmt.Errorf("%s: %w", outPath, err)
	}
	if debug {
		if err := writeDebugSidecar(outPath+".debug", syms); err != nil {
			return fmt.Errorf("%s.debug: %w", outPath, err)
		}
		fmt.Fprintf(os.Stderr, "%s: wrote %d bytes of program, %d bytes of static data\n",
			outPath, len(img.Program), len(img.StaticData))
	}
	return nil
}

// writeDebugSidecar renders the symbol view as a line-oriented text
// file next to the executable, one entity per line, scoped
// parameters/locals indented under their function.
func writeDebugSidecar(path string, syms *codegen.Symbols) error {
	var b strings.Builder
	labels := make([]string, 0, len(syms.Labels))
	for name := range syms.Labels {
		labels = append(labels, name)
	}
	sort.Slice(labels, func(i, j int) bool { return syms.Labels[labels[i]] < syms.Labels[labels[j]] })
	for _, name := range labels {
		fmt.Fprintf(&b, "label %s %d\n", name, syms.Labels[name])
	}
	for _, g := range syms.Globals {
		fmt.Fprintf(&b, "global %s %s %d\n", g.Name, g.Type, g.Offset)
	}
	for _, fn := range syms.Functions {
		fmt.Fprintf(&b, "function %s %s %d\n", fn.Name, fn.Type, fn.Offset)
		for _, v := range fn.Scope {
			fmt.Fprintf(&b, "\t%s %s %d\n", v.Name, v.Type, v.Offset)
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
