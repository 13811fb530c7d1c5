package tyvm

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// TestInternDedupesRepeatLexemes checks that interning the same string
// twice returns the same storage offset.
func TestInternDedupesRepeatLexemes(t *testing.T) {
	b := NewBuilder()
	first := b.Intern("hello")
	second := b.Intern("hello")
	require.Equal(t, first, second)

	other := b.Intern("world")
	require.NotEqual(t, first, other)
}

// TestEmitOpcodeStorageRefRebasesToAbsoluteAddress checks that a
// StringLiteral operand emitted via EmitOpcodeStorageRef reads back, after
// Finish, the same string readStorage decodes at that absolute address -
// i.e. that the storage-relative offset Intern returns was correctly
// shifted by storageBase once the body's final size was known.
func TestEmitOpcodeStorageRefRebasesToAbsoluteAddress(t *testing.T) {
	b := NewBuilder()
	off := b.Intern("payload")
	b.EmitOpcodeStorageRef(OpStringLiteral, off)
	b.EmitOpcode(OpReturn)
	b.SetMain(0)

	img := b.Finish()

	// The body starts right after the header; walk to the operand that
	// follows the OpStringLiteral opcode byte.
	bodyStart := img.MainAddress
	require.Equal(t, byte(OpStringLiteral), img.Bin[bodyStart])
	operand := readUint32(img.Bin, bodyStart+1)
	require.Equal(t, "payload", readStorage(img.Bin, operand))
}

// TestEmitOpcodeStorageRefMultipleLiteralsEachRebase checks that every
// recorded internRef position gets rewritten independently, not just the
// first or last.
func TestEmitOpcodeStorageRefMultipleLiteralsEachRebase(t *testing.T) {
	b := NewBuilder()
	b.EmitOpcodeStorageRef(OpStringLiteral, b.Intern("first"))
	b.EmitOpcodeStorageRef(OpStringLiteral, b.Intern("second"))
	b.EmitOpcodeStorageRef(OpStringLiteral, b.Intern("third"))
	b.EmitOpcode(OpReturn)
	b.SetMain(0)

	img := b.Finish()

	ip := img.MainAddress
	for _, want := range []string{"first", "second", "third"} {
		require.Equal(t, byte(OpStringLiteral), img.Bin[ip])
		operand := readUint32(img.Bin, ip+1)
		require.Equal(t, want, readStorage(img.Bin, operand))
		ip += 5
	}
}

// TestDeclareSubroutineRoundTripsName checks that a named subroutine's
// interned name is decodable from the finished image's Subroutines table,
// and that an anonymous subroutine round-trips as an empty name rather
// than colliding with offset 0 of the storage region.
func TestDeclareSubroutineRoundTripsName(t *testing.T) {
	b := NewBuilder()
	namedAddr := b.Here()
	b.EmitOpcode(OpReturn)
	b.DeclareSubroutine("Greeting", namedAddr)

	anonAddr := b.Here()
	b.EmitOpcode(OpReturn)
	b.DeclareSubroutine("", anonAddr)

	b.SetMain(anonAddr)

	img := b.Finish()

	var sawNamed, sawAnon bool
	for _, s := range img.Subroutines {
		switch s.Name {
		case "Greeting":
			sawNamed = true
		case "":
			sawAnon = true
		}
	}
	require.True(t, sawNamed, "named subroutine should round-trip its name")
	require.True(t, sawAnon, "anonymous subroutine should round-trip as an empty name")
}

// TestDeclareSubroutineTableMatchesDecodedOrder checks the full decoded
// Subroutines table against an expected slice with cmp.Diff, so a
// mismatch in this struct-shaped data prints a structural diff instead of
// just "not equal".
func TestDeclareSubroutineTableMatchesDecodedOrder(t *testing.T) {
	b := NewBuilder()
	firstAddr := b.Here()
	b.EmitOpcode(OpReturn)
	b.DeclareSubroutine("First", firstAddr)

	secondAddr := b.Here()
	b.EmitOpcode(OpReturn)
	b.DeclareSubroutine("Second", secondAddr)

	b.SetMain(firstAddr)
	img := b.Finish()

	got := append([]SubroutineEntry(nil), img.Subroutines...)
	sort.Slice(got, func(i, j int) bool { return got[i].Name < got[j].Name })

	// Bodies are rebased by a common bodyBase once Finish knows the
	// header's size, so addresses are expressed relative to the decoded
	// main address rather than the body-relative values Here() returned.
	want := []SubroutineEntry{
		{Name: "First", Address: img.MainAddress},
		{Name: "Second", Address: img.MainAddress + (secondAddr - firstAddr)},
		{Name: "main", Address: img.MainAddress},
	}
	sort.Slice(want, func(i, j int) bool { return want[i].Name < want[j].Name })

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded subroutine table mismatch (-want +got):\n%s", diff)
	}
}

// TestDecodeHeaderRejectsTruncatedImage checks that a too-short buffer is
// reported as a malformed image rather than panicking on an out-of-range
// slice.
func TestDecodeHeaderRejectsTruncatedImage(t *testing.T) {
	_, err := DecodeHeader([]byte{byte(OpJump), 0, 0})
	require.Error(t, err)
}

// TestDecodeHeaderRequiresMain checks that an image with no Main opcode is
// rejected.
func TestDecodeHeaderRequiresMain(t *testing.T) {
	_, err := DecodeHeader([]byte{byte(OpReturn)})
	require.ErrorIs(t, err, errNoMain)
}
