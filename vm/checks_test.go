package tyvm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtendsLiteralAgainstPrimitive(t *testing.T) {
	require.True(t, Extends(NewLiteral(0, LiteralString, "hi"), NewString(0), &ExtendableStack{}))
	require.False(t, Extends(NewLiteral(0, LiteralNumber, "3"), NewString(0), &ExtendableStack{}))
}

func TestExtendsArrayRecursesIntoElement(t *testing.T) {
	strings := NewArray(0, NewString(0))
	numbers := NewArray(0, NewNumber(0))
	require.True(t, Extends(strings, NewArray(0, NewString(0)), &ExtendableStack{}))
	require.False(t, Extends(strings, numbers, &ExtendableStack{}))
}

func TestExtendsArrayRejectsNonArray(t *testing.T) {
	require.False(t, Extends(NewString(0), NewArray(0, NewString(0)), &ExtendableStack{}))
}

func TestExtendsTupleChecksEachMemberPositionally(t *testing.T) {
	left := NewTuple(0, []*TupleMember{NewTupleMember(0, NewLiteral(0, LiteralString, "a")), NewTupleMember(0, NewNumber(0))})
	right := NewTuple(0, []*TupleMember{NewTupleMember(0, NewString(0)), NewTupleMember(0, NewNumber(0))})
	require.True(t, Extends(left, right, &ExtendableStack{}))

	mismatched := NewTuple(0, []*TupleMember{NewTupleMember(0, NewString(0)), NewTupleMember(0, NewString(0))})
	require.False(t, Extends(left, mismatched, &ExtendableStack{}))
}

func TestExtendsTupleAllowsMissingOptionalOrRestTail(t *testing.T) {
	left := NewTuple(0, []*TupleMember{NewTupleMember(0, NewString(0))})
	optionalTail := NewTupleMember(0, NewNumber(0))
	optionalTail.Optional = true
	right := NewTuple(0, []*TupleMember{NewTupleMember(0, NewString(0)), optionalTail})
	require.True(t, Extends(left, right, &ExtendableStack{}))

	restTail := NewTupleMember(0, NewNumber(0))
	restTail.Rest = true
	rightRest := NewTuple(0, []*TupleMember{NewTupleMember(0, NewString(0)), restTail})
	require.True(t, Extends(left, rightRest, &ExtendableStack{}))
}

func TestExtendsTupleRejectsMissingRequiredTail(t *testing.T) {
	left := NewTuple(0, []*TupleMember{NewTupleMember(0, NewString(0))})
	right := NewTuple(0, []*TupleMember{NewTupleMember(0, NewString(0)), NewTupleMember(0, NewNumber(0))})
	require.False(t, Extends(left, right, &ExtendableStack{}))
}

func TestExtendsBindsInferPlaceholderUnconditionally(t *testing.T) {
	stack := &ExtendableStack{}
	left := NewLiteral(0, LiteralString, "hi")
	ok := Extends(left, NewInfer(0, "U"), stack)
	require.True(t, ok)
	require.Equal(t, left, stack.Infer["U"])
}

func TestExtendsBindsInferNestedInsideArray(t *testing.T) {
	stack := &ExtendableStack{}
	element := NewString(0)
	ok := Extends(NewArray(0, element), NewArray(0, NewInfer(0, "U")), stack)
	require.True(t, ok)
	require.Equal(t, element, stack.Infer["U"])
}

func TestExtendsUnionDistributesOverEachAlternative(t *testing.T) {
	left := NewUnion(0, []Type{NewLiteral(0, LiteralString, "a"), NewLiteral(0, LiteralString, "b")})
	right := NewUnion(0, []Type{NewString(0), NewNumber(0)})
	require.True(t, Extends(left, right, &ExtendableStack{}))

	badLeft := NewUnion(0, []Type{NewLiteral(0, LiteralString, "a"), NewBoolean(0)})
	require.False(t, Extends(badLeft, right, &ExtendableStack{}))
}

// TestExtendsUnionLeftAbsorption checks spec §8's union left-absorption
// property: extends(A | B, C) is true only when every alternative of the
// left union extends C.
func TestExtendsUnionLeftAbsorption(t *testing.T) {
	union := NewUnion(0, []Type{NewString(0), NewLiteral(0, LiteralString, "hi")})

	require.True(t, Extends(union, NewString(0), &ExtendableStack{}),
		"both string and \"hi\" extend string")

	mixed := NewUnion(0, []Type{NewString(0), NewNumber(0)})
	require.False(t, Extends(mixed, NewString(0), &ExtendableStack{}),
		"number does not extend string, so the union as a whole must not either")
}

func TestExtendsUniversalBounds(t *testing.T) {
	require.True(t, Extends(NewNever(0), NewString(0), &ExtendableStack{}), "never extends everything")
	require.True(t, Extends(NewString(0), NewUnknown(0, false), &ExtendableStack{}), "everything extends unknown")
	require.True(t, Extends(NewString(0), NewAny(0), &ExtendableStack{}), "everything extends any")
	require.True(t, Extends(NewAny(0), NewNumber(0), &ExtendableStack{}), "any extends everything")
}

func TestIndexAccessTupleLength(t *testing.T) {
	tuple := NewTuple(0, []*TupleMember{NewTupleMember(0, NewString(0)), NewTupleMember(0, NewNumber(0))})
	result := IndexAccess(tuple, NewLiteral(0, LiteralString, "length"), 0)
	lit, ok := result.(*Literal)
	require.True(t, ok)
	require.Equal(t, "2", lit.Text)
}

func TestIndexAccessObjectLiteralKeyof(t *testing.T) {
	obj := NewObjectLiteral(0, []Type{
		NewPropertySignature(0, "a", NewString(0)),
		NewPropertySignature(0, "b", NewNumber(0)),
	})
	result := UnboxUnion(IndexAccess(obj, NewLiteral(0, LiteralString, keyofSentinel), 0))
	union, ok := result.(*Union)
	require.True(t, ok)
	require.Len(t, union.Types, 2)
}

func TestIndexAccessMissingMemberIsNever(t *testing.T) {
	obj := NewObjectLiteral(0, []Type{NewPropertySignature(0, "a", NewString(0))})
	result := IndexAccess(obj, NewLiteral(0, LiteralString, "missing"), 0)
	require.Equal(t, KindNever, result.Kind())
}
