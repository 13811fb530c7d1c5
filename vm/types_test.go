package tyvm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnboxUnionCollapsesSingletonAndEmpty(t *testing.T) {
	sole := NewString(0)
	require.Equal(t, sole, UnboxUnion(NewUnion(0, []Type{sole})))

	empty := UnboxUnion(NewUnion(0, nil))
	require.Equal(t, KindNever, empty.Kind())

	multi := NewUnion(0, []Type{NewString(0), NewNumber(0)})
	require.Equal(t, multi, UnboxUnion(multi))
}

func TestIsOptionalChecksUndefinedMemberAndFlags(t *testing.T) {
	require.True(t, IsOptional(NewUnion(0, []Type{NewString(0), NewUndefined(0)})))
	require.False(t, IsOptional(NewUnion(0, []Type{NewString(0), NewNumber(0)})))

	opt := NewParameter(0, "x", NewString(0))
	opt.Optional = true
	require.True(t, IsOptional(opt))

	notOpt := NewParameter(0, "x", NewString(0))
	require.False(t, IsOptional(notOpt))
}

func TestWidenConvertsLiteralToPrimitive(t *testing.T) {
	require.Equal(t, KindString, Widen(NewLiteral(0, LiteralString, "hi")).Kind())
	require.Equal(t, KindNumber, Widen(NewLiteral(0, LiteralNumber, "3")).Kind())
	require.Equal(t, KindBoolean, Widen(NewLiteral(0, LiteralBoolean, "true")).Kind())

	// Non-literal types pass through unchanged.
	s := NewString(0)
	require.Equal(t, Type(s), Widen(s))
}

func TestStringifyRendersSurfaceSyntax(t *testing.T) {
	require.Equal(t, "\"hi\"", Stringify(NewLiteral(0, LiteralString, "hi")))
	require.Equal(t, "3", Stringify(NewLiteral(0, LiteralNumber, "3")))
	require.Equal(t, "string", Stringify(NewString(0)))
	require.Equal(t, "string[]", Stringify(NewArray(0, NewString(0))))

	union := Stringify(NewUnion(0, []Type{NewString(0), NewNumber(0)}))
	require.Equal(t, "string | number", union)

	tuple := Stringify(NewTuple(0, []*TupleMember{NewTupleMember(0, NewString(0)), NewTupleMember(0, NewNumber(0))}))
	require.Equal(t, "[string, number]", tuple)
}
