package lang

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizeKinds(t *testing.T) {
	toks, err := Tokenize(`class Foo { u8 a; } u32 x = 0x1F; // comment
# another comment
if (x < 10) { x += 1; }`)
	require.NoError(t, err)
	require.NotEmpty(t, toks)

	var kinds []Kind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	require.Contains(t, kinds, KindKeyword)
	require.Contains(t, kinds, KindIdentifier)
	require.Contains(t, kinds, KindType)
	require.Contains(t, kinds, KindLiteralNumber)
	require.Contains(t, kinds, KindOperator)
	require.Contains(t, kinds, KindSpecial)
}

func TestTokenizeNumberBases(t *testing.T) {
	toks, err := Tokenize("0x1F 0b101 42 3.14")
	require.NoError(t, err)
	require.Len(t, toks, 4)
	for _, tok := range toks {
		require.Equal(t, KindLiteralNumber, tok.Kind)
	}
	require.Equal(t, "0x1F", toks[0].Lexeme)
	require.Equal(t, "0b101", toks[1].Lexeme)
	require.Equal(t, "42", toks[2].Lexeme)
	require.Equal(t, "3.14", toks[3].Lexeme)
}

func TestTokenizeStringEscapes(t *testing.T) {
	toks, err := Tokenize(`"a\nb\tc\x41"`)
	require.NoError(t, err)
	require.Len(t, toks, 1)
	require.Equal(t, KindLiteralString, toks[0].Kind)
	require.Equal(t, "a\nb\tc\x41", toks[0].Lexeme)
}

func TestTokenizeCharLiteral(t *testing.T) {
	toks, err := Tokenize(`'\n' 'Q'`)
	require.NoError(t, err)
	require.Len(t, toks, 2)
	require.Equal(t, "\n", toks[0].Lexeme)
	require.Equal(t, "Q", toks[1].Lexeme)
}

func TestTokenizeOperatorsGreedyLongestMatch(t *testing.T) {
	toks, err := Tokenize("<<= << < <= == = ++ + -> -")
	require.NoError(t, err)
	var lexemes []string
	for _, tok := range toks {
		lexemes = append(lexemes, tok.Lexeme)
	}
	require.Equal(t, []string{"<<=", "<<", "<", "<=", "==", "=", "++", "+", "->", "-"}, lexemes)
}

func TestTokenizeKeywordsAndTypesAreNotIdentifiers(t *testing.T) {
	toks, err := Tokenize("if u64 myvar")
	require.NoError(t, err)
	require.Equal(t, KindKeyword, toks[0].Kind)
	require.Equal(t, KindType, toks[1].Kind)
	require.Equal(t, KindIdentifier, toks[2].Kind)
}

func TestTokenizeErrors(t *testing.T) {
	cases := []string{
		`"unterminated`,
		`"bad \q escape"`,
		`"bad \xZZ hex"`,
		"`",
	}
	for _, src := range cases {
		_, err := Tokenize(src)
		require.Error(t, err, "source: %q", src)
		var posErr *PosError
		require.ErrorAs(t, err, &posErr)
	}
}

func TestTokenizePositionsTrackLinesAndColumns(t *testing.T) {
	toks, err := Tokenize("x\ny")
	require.NoError(t, err)
	require.Len(t, toks, 2)
	require.Equal(t, 1, toks[0].Line)
	require.Equal(t, 2, toks[1].Line)
}
