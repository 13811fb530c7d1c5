package tyvm

import "go.uber.org/zap"

// Compiler walks a parsed SourceFile and emits a BytecodeImage: one
// subroutine per type-introducing declaration, plus a `main` subroutine
// performing the assignment/call checks spec.md's end-to-end scenarios
// describe (spec §4.1).
//
// Grounded on the teacher's compile.go two-pass shape (CompileSourceFromBuffer:
// collect/validate, then emit, then patch forward label references) —
// here the "labels" are declared type names instead of assembly jump
// targets, and emission walks an AST instead of preprocessed text lines.
type Compiler struct {
	builder *Builder
	log     *zap.SugaredLogger

	// aliasAddr maps a declared type/function name to its subroutine's
	// body-relative start address, filled in as each declaration is
	// compiled. Forward references (mutual recursion) are resolved via
	// pendingCalls once every declaration has been compiled.
	aliasAddr   map[string]uint32
	aliasParams map[string][]*TypeParameterDeclaration

	pendingCalls []pendingCall

	// scope maps a type-parameter name in the innermost active
	// declaration to its frame slot index. The VM has no runtime symbol
	// table (spec §9 "frame-offset scoping"); all name resolution happens
	// here, at compile time.
	scope []string

	// distributing tracks, innermost-last, the type-parameter name(s)
	// currently being distributed over by an enclosing conditional type
	// (spec §4.2): a reference to that exact name within the Then/Else
	// being compiled must read the narrowed per-alternative value
	// (OpLoadLocal) rather than the declaration's original (possibly
	// union) binding (Loads).
	distributing []string

	// inferring tracks, innermost-last, the `infer X` names declared in
	// the Extends clause currently being compiled, so a bare reference to
	// X anywhere in that conditional's Then/Else resolves to OpLoadInferred
	// instead of being mistaken for an unresolved type-alias call.
	inferring []string

	Errors []Diagnostic
}

type pendingCall struct {
	operandOffset uint32 // body-relative offset of the Call's address operand
	name          string
}

// NewCompiler creates a Compiler. log may be nil, in which case a no-op
// logger is used.
func NewCompiler(log *zap.SugaredLogger) *Compiler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Compiler{
		builder:     NewBuilder(),
		log:         log,
		aliasAddr:   map[string]uint32{},
		aliasParams: map[string][]*TypeParameterDeclaration{},
	}
}

// Compile lowers file to a BytecodeImage. An unresolved type reference is
// a structural compile error: it is recorded in the returned diagnostics
// rather than aborting the compile, and the Call emitted for it keeps an
// address operand that was never patched to a real subroutine.
func Compile(file *SourceFile, log *zap.SugaredLogger) (*BytecodeImage, []Diagnostic) {
	c := NewCompiler(log)
	return c.compileFile(file)
}

func (c *Compiler) compileFile(file *SourceFile) (*BytecodeImage, []Diagnostic) {
	c.log.Debugw("compiling source file", "file", file.FileName, "statements", len(file.Statements))

	// Pass 1: reserve every declared name so forward/mutually-recursive
	// references resolve regardless of declaration order.
	for _, stmt := range file.Statements {
		switch s := stmt.(type) {
		case *TypeAliasDeclaration:
			c.aliasParams[s.Name] = s.TypeParameters
		case *FunctionDeclaration:
			c.aliasParams[s.Name] = s.TypeParameters
		}
	}

	// Pass 2: emit each declaration's subroutine body.
	for _, stmt := range file.Statements {
		switch s := stmt.(type) {
		case *TypeAliasDeclaration:
			c.compileTypeAlias(s)
		case *FunctionDeclaration:
			c.compileFunctionDeclaration(s)
		}
	}

	// Pass 3: emit `main`, running every variable/expression statement's
	// runtime check in source order (spec §4.1).
	mainAddr := c.builder.Here()
	for _, stmt := range file.Statements {
		switch s := stmt.(type) {
		case *VariableDeclaration:
			c.compileVariableDeclaration(s)
		case *ExpressionStatement:
			c.compileExpressionStatement(s)
		}
	}
	// main has no meaningful result of its own; every subroutine (main
	// included) leaves exactly one value for its Return to pop.
	c.builder.EmitOpcode(OpVoid)
	c.builder.EmitOpcode(OpReturn)
	c.builder.SetMain(mainAddr)

	// Pass 4: back-patch every Call emitted before its callee's address
	// was known.
	for _, pc := range c.pendingCalls {
		addr, ok := c.aliasAddr[pc.name]
		if !ok {
			c.Errors = append(c.Errors, Diagnostic{Message: "Cannot find name '" + pc.name + "'."})
			continue
		}
		c.builder.PatchU32(pc.operandOffset, addr)
	}

	return c.builder.Finish(), c.Errors
}

func (c *Compiler) compileTypeAlias(decl *TypeAliasDeclaration) {
	addr := c.builder.Here()
	c.aliasAddr[decl.Name] = addr
	c.builder.DeclareSubroutine(decl.Name, addr)

	c.pushScope(decl.TypeParameters)
	c.emitTypeParameterPrelude(decl.TypeParameters)
	c.emitTypeExpr(decl.Type)
	c.builder.EmitOpcode(OpReturn)
	c.popScope(len(decl.TypeParameters))
}

func (c *Compiler) compileFunctionDeclaration(decl *FunctionDeclaration) {
	addr := c.builder.Here()
	c.aliasAddr[decl.Name] = addr
	c.builder.DeclareSubroutine(decl.Name, addr)

	c.pushScope(decl.TypeParameters)
	c.emitTypeParameterPrelude(decl.TypeParameters)

	c.builder.EmitOpcode(OpFrame)
	for _, p := range decl.Parameters {
		c.emitName(p.Name)
		c.emitTypeExpr(p.Type)
		if p.Rest {
			c.builder.EmitOpcode(OpRest)
		}
		if p.Optional {
			c.builder.EmitOpcode(OpOptional)
		}
		c.builder.EmitOpcode(OpParameter)
	}
	if decl.ReturnType != nil {
		c.emitTypeExpr(decl.ReturnType)
	} else {
		c.builder.EmitOpcode(OpUnknown)
	}
	c.builder.EmitOpcode(OpFunction)
	c.builder.EmitOpcode(OpReturn)
	c.popScope(len(decl.TypeParameters))
}

// emitTypeParameterPrelude emits one TypeArgument per declared type
// parameter (reserving its frame slot) followed by a TypeArgumentDefault
// for any parameter with a default, per spec §4.1/§4.2. A default's body
// is compiled as an inline subroutine placed right after the
// TypeArgumentDefault instruction and jumped over, so normal control flow
// never falls into it; TypeArgumentDefault calls it directly by address
// only when the slot is still unprovided.
func (c *Compiler) emitTypeParameterPrelude(params []*TypeParameterDeclaration) {
	for _, p := range params {
		c.builder.EmitOpcode(OpTypeArgument)
		if p.Default != nil {
			tadPatch := c.builder.Here()
			c.builder.EmitOpcodeU32(OpTypeArgumentDefault, 0)

			jumpPatch := c.builder.Here()
			c.builder.EmitOpcodeU32(OpJump, 0)

			bodyAddr := c.builder.Here()
			c.emitTypeExpr(p.Default)
			c.builder.EmitOpcode(OpReturn)
			after := c.builder.Here()

			c.builder.PatchU32(tadPatch+1, bodyAddr)
			c.builder.PatchU32(jumpPatch+1, after)
		}
	}
}

func (c *Compiler) compileVariableDeclaration(decl *VariableDeclaration) {
	if decl.Type == nil {
		return
	}
	c.emitExpr(decl.Initializer)
	c.emitTypeExpr(decl.Type)
	c.builder.EmitOpcode(OpAssign)
}

func (c *Compiler) compileExpressionStatement(stmt *ExpressionStatement) {
	c.emitExpr(stmt.Expression)
}

// emitExpr emits bytecode that leaves the static Type of a value-level
// expression on the stack: a literal's own type, an identifier's declared
// type, or a call's return type (after checking each argument against the
// callee's parameter types via CallExpression).
func (c *Compiler) emitExpr(expr Expr) {
	c.builder.RecordSourceMap(c.builder.Here(), expr.Span().Pos, expr.Span().End)
	switch e := expr.(type) {
	case *LiteralExpr:
		c.emitLiteral(e.Kind, e.Text)
	case *IdentifierExpr:
		// Positional variable-value lookup is a parser/binder concern
		// this module does not implement (no symbol table, spec §1/§9);
		// a bare identifier reference resolves to Unknown rather than
		// failing compilation outright.
		c.builder.EmitOpcode(OpUnknown)
		_ = e
	case *CallExpr:
		for _, arg := range e.TypeArguments {
			c.emitTypeExpr(arg)
		}
		// The callee's (possibly instantiated) Function value must be on
		// the stack before CallExpression, which checks each argument
		// against it.
		c.emitCallReference(e.Callee, len(e.TypeArguments))
		for _, arg := range e.Arguments {
			c.emitExpr(arg)
		}
		c.builder.EmitOpcodeU16(OpCallExpression, uint16(len(e.Arguments)))
	}
}

func (c *Compiler) emitCallReference(name string, argc int) {
	operandOffset := c.builder.Here() + 1
	c.builder.EmitOpcodeU32U16(OpCall, 0, uint16(argc))
	c.pendingCalls = append(c.pendingCalls, pendingCall{operandOffset: operandOffset, name: name})
}

func (c *Compiler) emitLiteral(kind LiteralKind, text string) {
	switch kind {
	case LiteralString:
		c.builder.EmitOpcodeStorageRef(OpStringLiteral, c.builder.Intern(text))
	case LiteralNumber:
		c.builder.EmitOpcodeStorageRef(OpNumberLiteral, c.builder.Intern(text))
	case LiteralBigInt:
		c.builder.EmitOpcodeStorageRef(OpBigIntLiteral, c.builder.Intern(text))
	case LiteralBoolean:
		if text == "true" {
			c.builder.EmitOpcode(OpTrue)
		} else {
			c.builder.EmitOpcode(OpFalse)
		}
	}
}

// emitName interns name and pushes it as a string literal, the
// convention used throughout this compiler for attaching a member/
// parameter name to the construction opcode that follows it (TupleMember,
// PropertySignature, Parameter, ...), since those opcodes carry no name
// operand of their own in spec §3.2's list.
func (c *Compiler) emitName(name string) {
	c.builder.EmitOpcodeStorageRef(OpStringLiteral, c.builder.Intern(name))
}

// emitTypeExpr emits bytecode that leaves exactly one Type on the stack,
// per spec §4.1's per-construct lowering rules.
func (c *Compiler) emitTypeExpr(t TypeExpr) {
	switch e := t.(type) {
	case *KeywordTypeExpr:
		c.emitKeyword(e.Kind)

	case *LiteralTypeExpr:
		c.emitLiteral(e.Kind, e.Text)

	case *TypeReferenceExpr:
		if len(e.Arguments) == 0 && c.inDistribute(e.Name) {
			c.builder.EmitOpcode(OpLoadLocal)
			return
		}
		if len(e.Arguments) == 0 && c.inInfer(e.Name) {
			c.emitName(e.Name)
			c.builder.EmitOpcode(OpLoadInferred)
			return
		}
		if idx, ok := c.resolveScope(e.Name); ok {
			c.builder.EmitOpcodeU16x2(OpLoads, 0, uint16(idx))
			return
		}
		for _, arg := range e.Arguments {
			c.emitTypeExpr(arg)
		}
		c.emitCallReference(e.Name, len(e.Arguments))

	case *UnionTypeExpr:
		c.builder.EmitOpcode(OpFrame)
		for _, alt := range e.Types {
			c.emitTypeExpr(alt)
		}
		c.builder.EmitOpcode(OpUnion)

	case *IntersectionTypeExpr:
		c.builder.EmitOpcode(OpFrame)
		for _, part := range e.Types {
			c.emitTypeExpr(part)
		}
		c.builder.EmitOpcode(OpIntersection)

	case *ArrayTypeExpr:
		c.emitTypeExpr(e.Element)
		c.builder.EmitOpcode(OpArray)

	case *TupleTypeExpr:
		c.builder.EmitOpcode(OpFrame)
		for _, m := range e.Members {
			if m.Spread {
				c.emitTypeExpr(m.Type)
				c.builder.EmitOpcode(OpTupleSpread)
				continue
			}
			c.emitName(m.Name)
			c.emitTypeExpr(m.Type)
			if m.Rest {
				c.builder.EmitOpcode(OpRest)
			}
			if m.Optional {
				c.builder.EmitOpcode(OpOptional)
			}
			c.builder.EmitOpcode(OpTupleMember)
		}
		c.builder.EmitOpcode(OpTuple)

	case *TemplateLiteralTypeExpr:
		c.builder.EmitOpcode(OpFrame)
		for i, ty := range e.Types {
			if e.Quasis[i] != "" {
				c.emitLiteral(LiteralString, e.Quasis[i])
			}
			c.emitTypeExpr(ty)
		}
		if last := e.Quasis[len(e.Quasis)-1]; last != "" {
			c.emitLiteral(LiteralString, last)
		}
		c.builder.EmitOpcode(OpTemplateLiteral)

	case *ConditionalTypeExpr:
		c.emitConditional(e)

	case *InferTypeExpr:
		// The declaration site (`infer X` inside a conditional's Extends
		// tree): produce the placeholder value Extends matches against
		// and binds (checks.go), rather than trying to resolve X itself
		// here — X has no value yet at this point in the tree.
		c.emitName(e.Name)
		c.builder.EmitOpcode(OpInfer)

	case *ObjectTypeExpr:
		c.builder.EmitOpcode(OpFrame)
		for _, m := range e.Members {
			c.emitName(m.Name)
			c.emitTypeExpr(m.Type)
			if m.Readonly {
				c.builder.EmitOpcode(OpReadonly)
			}
			if m.Optional {
				c.builder.EmitOpcode(OpOptional)
			}
			c.builder.EmitOpcode(OpPropertySignature)
		}
		c.builder.EmitOpcode(OpObjectLiteral)

	case *IndexedAccessTypeExpr:
		c.emitTypeExpr(e.Object)
		c.emitTypeExpr(e.Index)
		c.builder.EmitOpcode(OpIndexAccess)

	case *KeyofTypeExpr:
		// keyof has no dedicated opcode in spec.md's list; it reuses
		// IndexAccess's object traversal with a sentinel index string the
		// VM recognizes as "build the union of my property names" rather
		// than an ordinary member lookup.
		c.emitTypeExpr(e.Operand)
		c.emitLiteral(LiteralString, keyofSentinel)
		c.builder.EmitOpcode(OpIndexAccess)
	}
}

// keyofSentinel is an index string IndexAccess recognizes as a `keyof`
// query rather than an ordinary member lookup; it uses a NUL prefix so it
// can never collide with a real property name the surface language could
// produce.
const keyofSentinel = "\x00keyof"

func (c *Compiler) emitKeyword(kind TypeKind) {
	switch kind {
	case KindNever:
		c.builder.EmitOpcode(OpNever)
	case KindAny:
		c.builder.EmitOpcode(OpAny)
	case KindUnknown:
		c.builder.EmitOpcode(OpUnknown)
	case KindVoid:
		c.builder.EmitOpcode(OpVoid)
	case KindObject:
		c.builder.EmitOpcode(OpObject)
	case KindString:
		c.builder.EmitOpcode(OpString)
	case KindNumber:
		c.builder.EmitOpcode(OpNumber)
	case KindBoolean:
		c.builder.EmitOpcode(OpBoolean)
	case KindBigInt:
		c.builder.EmitOpcode(OpBigInt)
	case KindSymbol:
		c.builder.EmitOpcode(OpSymbol)
	case KindNull:
		c.builder.EmitOpcode(OpNull)
	case KindUndefined:
		c.builder.EmitOpcode(OpUndefined)
	default:
		c.builder.EmitOpcode(OpUnknown)
	}
}

// emitConditional lowers `Check extends Extends ? Then : Else`. A naked
// type-parameter Check is wrapped in Distribute so the VM evaluates the
// conditional once per union alternative (spec §4.1): Check is evaluated
// once up front (it may itself be a union), Distribute pops it and
// re-enters loopBody once per alternative, with that alternative sitting
// on the stack in Check's place each time. The loop body is placed inline
// right after a Jump that skips it, so once Distribute has pushed its
// result, normal control flow continues past the body.
func (c *Compiler) emitConditional(e *ConditionalTypeExpr) {
	c.emitTypeExpr(e.Check)

	if !c.checkIsNakedTypeParameter(e.Check) {
		c.emitConditionalCore(e)
		return
	}

	loopBodyPatch := c.builder.Here()
	c.builder.EmitOpcodeU32(OpDistribute, 0)
	skipPatch := c.builder.Here()
	c.builder.EmitOpcodeU32(OpJump, 0)
	bodyStart := c.builder.Here()

	checkName := e.Check.(*TypeReferenceExpr).Name
	c.distributing = append(c.distributing, checkName)
	c.emitConditionalCore(e)
	c.distributing = c.distributing[:len(c.distributing)-1]

	c.builder.EmitOpcode(OpReturn)
	c.builder.PatchU32(loopBodyPatch+1, bodyStart)
	c.builder.PatchU32(skipPatch+1, c.builder.Here())
}

func (c *Compiler) emitConditionalCore(e *ConditionalTypeExpr) {
	inferNames := collectInferNames(e.Extends)
	c.inferring = append(c.inferring, inferNames...)
	defer func() { c.inferring = c.inferring[:len(c.inferring)-len(inferNames)] }()

	c.emitTypeExpr(e.Extends)
	c.builder.EmitOpcode(OpExtends)

	jcPatch := c.builder.Here()
	c.builder.EmitOpcodeU16x2(OpJumpCondition, 0, 0)

	thenAddr := c.builder.Here()
	c.emitTypeExpr(e.Then)
	elseJumpPatch := c.builder.Here()
	c.builder.EmitOpcodeU32(OpJump, 0)

	elseAddr := c.builder.Here()
	c.emitTypeExpr(e.Else)
	after := c.builder.Here()

	c.patchU16x2(jcPatch+1, uint16(thenAddr), uint16(elseAddr))
	c.builder.PatchU32(elseJumpPatch+1, after)
}

// patchU16x2 rewrites two little-endian u16 operands packed at off/off+2
// as a single u32 write, relying on little-endian byte order to make the
// two equivalent (see EmitOpcodeU16x2).
func (c *Compiler) patchU16x2(off uint32, a, b uint16) {
	c.builder.PatchU32(off, uint32(a)|(uint32(b)<<16))
}

// checkIsNakedTypeParameter reports whether t is a bare reference to one
// of the type parameters currently in scope, in which case a conditional
// built from it must Distribute over unions (spec §4.1).
func (c *Compiler) checkIsNakedTypeParameter(t TypeExpr) bool {
	ref, ok := t.(*TypeReferenceExpr)
	if !ok || len(ref.Arguments) != 0 {
		return false
	}
	_, inScope := c.resolveScope(ref.Name)
	return inScope
}

func (c *Compiler) pushScope(params []*TypeParameterDeclaration) {
	for _, p := range params {
		c.scope = append(c.scope, p.Name)
	}
}

func (c *Compiler) popScope(n int) {
	c.scope = c.scope[:len(c.scope)-n]
}

// inDistribute reports whether name is the innermost type parameter
// currently being distributed over, per the distributing stack emitConditional
// maintains while compiling a Distribute-wrapped conditional's Extends/
// Then/Else.
func (c *Compiler) inDistribute(name string) bool {
	return len(c.distributing) > 0 && c.distributing[len(c.distributing)-1] == name
}

// inInfer reports whether name was declared by an `infer` clause in the
// Extends tree of a conditional currently being compiled.
func (c *Compiler) inInfer(name string) bool {
	for _, n := range c.inferring {
		if n == name {
			return true
		}
	}
	return false
}

// collectInferNames walks t's structural children for `infer X` clauses,
// stopping at a nested ConditionalTypeExpr (its own Extends tree has its
// own, independently scoped infer names).
func collectInferNames(t TypeExpr) []string {
	var names []string
	var walk func(TypeExpr)
	walk = func(t TypeExpr) {
		switch e := t.(type) {
		case *InferTypeExpr:
			names = append(names, e.Name)
		case *UnionTypeExpr:
			for _, alt := range e.Types {
				walk(alt)
			}
		case *IntersectionTypeExpr:
			for _, part := range e.Types {
				walk(part)
			}
		case *ArrayTypeExpr:
			walk(e.Element)
		case *TupleTypeExpr:
			for _, m := range e.Members {
				walk(m.Type)
			}
		case *TemplateLiteralTypeExpr:
			for _, ty := range e.Types {
				walk(ty)
			}
		case *ObjectTypeExpr:
			for _, m := range e.Members {
				walk(m.Type)
			}
		case *IndexedAccessTypeExpr:
			walk(e.Object)
			walk(e.Index)
		case *KeyofTypeExpr:
			walk(e.Operand)
		case *TypeReferenceExpr:
			for _, arg := range e.Arguments {
				walk(arg)
			}
		}
	}
	walk(t)
	return names
}

func (c *Compiler) resolveScope(name string) (int, bool) {
	for i := len(c.scope) - 1; i >= 0; i-- {
		if c.scope[i] == name {
			return i, true
		}
	}
	return 0, false
}
