package tyvm

/*
	tyvm executes a compact, position-addressed bytecode image that encodes
	structural type expressions for a gradually-typed surface language.

	Image layout (little-endian throughout):

		Jump(&storage_end)
		SourceMap(size, (ip, src_pos, src_end)*)
		Subroutine(name_storage_addr|0, body_addr)*
		Main(main_addr)
		<subroutine bodies, each terminated by Return>
		<storage region: (u16 len, bytes)* up to storage_end>

	Every opcode has a fixed operand width, so a decoder can always
	self-synchronize: given any valid ip, advancing by the opcode's width
	lands on another valid opcode or end of stream.

	Opcode is the threaded-interpreter's dispatch tag. Unlike the teacher's
	hardware ISA (register read/write, memory-mapped devices), every opcode
	here either produces a Type, manipulates the frame/stack, or drives
	control flow for evaluating one.
*/

// Opcode is a single bytecode instruction tag.
type Opcode byte

const (
	// Type-producers.
	OpNever Opcode = iota
	OpAny
	OpUnknown
	OpVoid
	OpObject
	OpString
	OpNumber
	OpBoolean
	OpBigInt
	OpSymbol
	OpNull
	OpUndefined
	OpTrue
	OpFalse
	OpStringLiteral
	OpNumberLiteral
	OpBigIntLiteral
	OpFunction
	OpFunctionRef
	OpMethod
	OpMethodSignature
	OpParameter
	OpProperty
	OpPropertySignature
	OpClass
	OpUnion
	OpIntersection
	OpArray
	OpTuple
	OpTupleMember
	// OpTupleSpread pops a Type expected to be a Tuple and splices its
	// Members directly into the current frame, in place, implementing
	// `[...A, 0]`-style growth of an existing tuple rather than nesting
	// it as a single rest-typed member.
	OpTupleSpread
	OpTemplateLiteral
	OpRest
	OpObjectLiteral
	OpIndexSignature
	OpLiteral
	// OpInfer pops a string-literal name and pushes an Infer placeholder
	// value, the runtime form of an `infer X` clause appearing inside a
	// conditional type's Extends tree (spec §4.1/§4.2).
	OpInfer

	// Stack/frame control.
	OpFrame
	OpReturn
	OpVar
	OpTypeVar
	OpLoads
	// OpLoadLocal reads the innermost active Distribute alternative (the
	// narrowed value a conditional type's Then/Else branches see when the
	// Check being tested is a bare type parameter), distinct from Loads'
	// frame-offset addressing of a declaration's own bound type arguments.
	OpLoadLocal
	// OpLoadInferred pops a string-literal name and pushes the Type most
	// recently bound to it by Extends's structural match against an
	// Infer placeholder (an unprovided Unknown if Extends never reached
	// a matching position, e.g. the failed side of the conditional).
	OpLoadInferred
	OpAssign
	OpDup
	OpWiden

	// Control flow.
	OpJump
	OpJumpCondition
	OpCall
	OpTailCall
	OpDistribute

	// Generics / instantiation.
	OpTypeArgument
	OpTypeArgumentDefault
	OpInstantiate
	OpSet

	// Operators / checks.
	OpExtends
	OpIndexAccess
	OpOptional
	OpReadonly
	OpInitializer
	OpCallExpression
	OpError

	// Meta.
	OpNoop
	OpHalt
	OpMain
	OpSubroutine
	OpSourceMap

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpNever:               "Never",
	OpAny:                 "Any",
	OpUnknown:             "Unknown",
	OpVoid:                "Void",
	OpObject:              "Object",
	OpString:              "String",
	OpNumber:              "Number",
	OpBoolean:             "Boolean",
	OpBigInt:              "BigInt",
	OpSymbol:              "Symbol",
	OpNull:                "Null",
	OpUndefined:           "Undefined",
	OpTrue:                "True",
	OpFalse:               "False",
	OpStringLiteral:       "StringLiteral",
	OpNumberLiteral:       "NumberLiteral",
	OpBigIntLiteral:       "BigIntLiteral",
	OpFunction:            "Function",
	OpFunctionRef:         "FunctionRef",
	OpMethod:              "Method",
	OpMethodSignature:     "MethodSignature",
	OpParameter:           "Parameter",
	OpProperty:            "Property",
	OpPropertySignature:   "PropertySignature",
	OpClass:               "Class",
	OpUnion:               "Union",
	OpIntersection:        "Intersection",
	OpArray:               "Array",
	OpTuple:               "Tuple",
	OpTupleMember:         "TupleMember",
	OpTupleSpread:         "TupleSpread",
	OpTemplateLiteral:     "TemplateLiteral",
	OpRest:                "Rest",
	OpObjectLiteral:       "ObjectLiteral",
	OpIndexSignature:      "IndexSignature",
	OpLiteral:             "Literal",
	OpInfer:               "Infer",
	OpFrame:               "Frame",
	OpReturn:              "Return",
	OpVar:                 "Var",
	OpTypeVar:             "TypeVar",
	OpLoads:               "Loads",
	OpLoadLocal:           "LoadLocal",
	OpLoadInferred:        "LoadInferred",
	OpAssign:              "Assign",
	OpDup:                 "Dup",
	OpWiden:               "Widen",
	OpJump:                "Jump",
	OpJumpCondition:       "JumpCondition",
	OpCall:                "Call",
	OpTailCall:            "TailCall",
	OpDistribute:          "Distribute",
	OpTypeArgument:        "TypeArgument",
	OpTypeArgumentDefault: "TypeArgumentDefault",
	OpInstantiate:         "Instantiate",
	OpSet:                 "Set",
	OpExtends:             "Extends",
	OpIndexAccess:         "IndexAccess",
	OpOptional:            "Optional",
	OpReadonly:            "Readonly",
	OpInitializer:         "Initializer",
	OpCallExpression:      "CallExpression",
	OpError:               "Error",
	OpNoop:                "Noop",
	OpHalt:                "Halt",
	OpMain:                "Main",
	OpSubroutine:          "Subroutine",
	OpSourceMap:           "SourceMap",
}

var strToOpcodeMap = map[string]Opcode{}

func init() {
	for op, name := range opcodeNames {
		if name != "" {
			strToOpcodeMap[name] = Opcode(op)
		}
	}
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "Unknown"
}

// ParseOpcode resolves a mnemonic (as used by disassembly output) back to
// an Opcode. Reports ok=false for unrecognized names.
func ParseOpcode(name string) (Opcode, bool) {
	op, ok := strToOpcodeMap[name]
	return op, ok
}

// OperandWidth returns the number of operand bytes that follow this opcode
// in the bytecode stream, per spec.md §3.2/§6.4. Every opcode has a fixed
// width so decoding is self-synchronizing.
func (op Opcode) OperandWidth() int {
	switch op {
	case OpCall, OpTailCall:
		return 6 // u32 addr + u16 argc
	case OpJump, OpTypeArgumentDefault, OpFunctionRef, OpSet,
		OpStringLiteral, OpNumberLiteral, OpBigIntLiteral,
		OpDistribute:
		return 4
	// OpParameter/OpTupleMember/OpPropertySignature/OpProperty/OpUnion/
	// OpIntersection/OpArray/OpTuple/OpObjectLiteral/OpTemplateLiteral/
	// OpFunction all take their operands off the stack (names, types, and
	// pending Rest/Optional/Readonly flags) rather than as fixed bytecode
	// operands, so they fall through to the zero-width default below.
	case OpJumpCondition, OpLoads:
		return 4 // two u16 operands
	case OpInstantiate, OpCallExpression, OpError:
		return 2
	default:
		return 0
	}
}

// IsTypeProducer reports whether op is one of the type-building opcodes
// (as opposed to pure stack/frame control or control-flow opcodes). Each of
// them, except OpRest, pushes one new Type value after popping whatever
// operands or frame members it consumes; OpRest only marks the next tuple
// member as a rest element.
func (op Opcode) IsTypeProducer() bool {
	switch op {
	case OpNever, OpAny, OpUnknown, OpVoid, OpObject, OpString, OpNumber,
		OpBoolean, OpBigInt, OpSymbol, OpNull, OpUndefined, OpTrue, OpFalse,
		OpStringLiteral, OpNumberLiteral, OpBigIntLiteral, OpFunction,
		OpFunctionRef, OpMethod, OpMethodSignature, OpParameter, OpProperty,
		OpPropertySignature, OpClass, OpUnion, OpIntersection, OpArray,
		OpTuple, OpTupleMember, OpTemplateLiteral, OpRest, OpObjectLiteral,
		OpIndexSignature, OpLiteral, OpInfer:
		return true
	default:
		return false
	}
}
