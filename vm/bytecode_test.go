package tyvm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpcodeStringRoundTripsThroughParseOpcode(t *testing.T) {
	for op := Opcode(0); op < opcodeCount; op++ {
		name := op.String()
		if name == "Unknown" {
			continue
		}
		parsed, ok := ParseOpcode(name)
		require.True(t, ok, "expected %q to parse back to an opcode", name)
		require.Equal(t, op, parsed)
	}
}

func TestParseOpcodeRejectsUnknownMnemonic(t *testing.T) {
	_, ok := ParseOpcode("NotARealOpcode")
	require.False(t, ok)
}

func TestOperandWidthFixedWidthOpcodes(t *testing.T) {
	require.Equal(t, 6, OpCall.OperandWidth())
	require.Equal(t, 6, OpTailCall.OperandWidth())
	require.Equal(t, 4, OpJump.OperandWidth())
	require.Equal(t, 4, OpStringLiteral.OperandWidth())
	require.Equal(t, 4, OpJumpCondition.OperandWidth())
	require.Equal(t, 2, OpCallExpression.OperandWidth())
	require.Equal(t, 0, OpReturn.OperandWidth())
	require.Equal(t, 0, OpInfer.OperandWidth())
	require.Equal(t, 0, OpLoadInferred.OperandWidth())
}

func TestIsTypeProducerCoversLiteralsAndInfer(t *testing.T) {
	require.True(t, OpString.IsTypeProducer())
	require.True(t, OpLiteral.IsTypeProducer())
	require.True(t, OpInfer.IsTypeProducer())
	require.False(t, OpReturn.IsTypeProducer())
	require.False(t, OpJump.IsTypeProducer())
	require.False(t, OpLoadInferred.IsTypeProducer())
}
