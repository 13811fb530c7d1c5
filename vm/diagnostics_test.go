package tyvm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeMessageRendersArguments(t *testing.T) {
	require.Equal(t, "Cannot find name 'Foo'.", CannotFind.Message("Foo"))
	require.Equal(t, `Type 'string' is not assignable to type 'number'.`, TypeNotAssignable.Message("string", "number"))
	require.Equal(t, "Type instantiation is excessively deep and possibly infinite.", ExcessivelyDeep.Message())
}

func TestModuleReportfCombinesCodeAndArgs(t *testing.T) {
	m := NewModule(nil, "t.ts", "")
	m.Reportf(CannotFind, 7, "Widget")
	require.Len(t, m.Errors, 1)
	require.Equal(t, "Cannot find name 'Widget'.", m.Errors[0].Message)
	require.Equal(t, uint32(7), m.Errors[0].IP)
}

func TestModuleReportPreservesOrder(t *testing.T) {
	m := NewModule(nil, "t.ts", "")
	m.Report("first", 1)
	m.Report("second", 2)

	want := []Diagnostic{{Message: "first", IP: 1}, {Message: "second", IP: 2}}
	if diff := cmp.Diff(want, m.Errors); diff != "" {
		t.Errorf("Errors mismatch (-want +got):\n%s", diff)
	}
}

func TestMapToLineCharacterCountsNewlines(t *testing.T) {
	code := "const a = 1;\nconst b = 2;\nconst c = 3;"
	m := NewModule(nil, "t.ts", code)

	// "const c" starts on line 2 (0-based), right after the second newline.
	secondLineStart := uint32(len("const a = 1;\nconst b = 2;\n"))
	lc := m.MapToLineCharacter(FoundSourceMap{Pos: secondLineStart, End: secondLineStart + 5})
	require.Equal(t, 2, lc.Line)
	require.Equal(t, 0, lc.Pos)
}

func TestPrintErrorsFallsBackWhenNoSourceMapEntry(t *testing.T) {
	m := NewModule(&BytecodeImage{}, "t.ts", "const a = 1;")
	m.Report("boom", 0)
	out := m.PrintErrors()
	require.Contains(t, out, "boom")
	require.Contains(t, out, "Found 1 errors in t.ts")
}
