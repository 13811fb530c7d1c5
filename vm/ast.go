package tyvm

// ast.go defines the parser contract the Compiler consumes (spec §6.1).
// Lexing and parsing the surface language are out of scope for this
// module; a SourceFile is something an external parser hands the
// Compiler, one node variant per surface-language construct relevant to
// typing. Every node carries (Pos, End) byte offsets into the original
// source, which the Compiler threads into the bytecode image's source map
// so the VM can later anchor diagnostics back to exact source ranges.

// Span is the (Pos, End) byte-offset pair every node carries.
type Span struct {
	Pos uint32
	End uint32
}

// Node is satisfied by every AST node the Compiler knows how to lower.
type Node interface {
	Span() Span
}

type nodeBase struct{ span Span }

func (n nodeBase) Span() Span { return n.span }

// SourceFile is the Compiler's entry point: a flat list of top-level
// statements (type alias declarations, function declarations, variable
// declarations with type annotations, and bare expression statements used
// for the "run an assignability check here" scenarios in spec §8).
type SourceFile struct {
	nodeBase
	FileName   string
	Statements []Statement
}

// Statement is any top-level construct the Compiler emits code for.
type Statement interface {
	Node
	statementNode()
}

// TypeAliasDeclaration is `type Name<Params> = TypeExpr;`. The Compiler
// emits one subroutine per alias (spec §4.1 "Subroutine layout").
type TypeAliasDeclaration struct {
	nodeBase
	Name           string
	TypeParameters []*TypeParameterDeclaration
	Type           TypeExpr
}

func (*TypeAliasDeclaration) statementNode() {}

// TypeParameterDeclaration is one `<T extends C = D>` clause entry.
type TypeParameterDeclaration struct {
	nodeBase
	Name       string
	Constraint TypeExpr // nil if absent
	Default    TypeExpr // nil if absent
}

// FunctionDeclaration declares a generic function; the Compiler only
// needs its signature (parameters + type parameters) to type-check call
// sites (spec §8 scenario 5), not its value-level body.
type FunctionDeclaration struct {
	nodeBase
	Name           string
	TypeParameters []*TypeParameterDeclaration
	Parameters     []*ParameterDeclaration
	ReturnType     TypeExpr // nil if inferred/absent
}

func (*FunctionDeclaration) statementNode() {}

// ParameterDeclaration is one function parameter.
type ParameterDeclaration struct {
	nodeBase
	Name     string
	Type     TypeExpr
	Optional bool
	Rest     bool
}

// VariableDeclaration is `const Name: Type = Initializer;`. The Compiler
// emits an Assign check in main comparing Initializer's inferred type
// against Type.
type VariableDeclaration struct {
	nodeBase
	Name        string
	Type        TypeExpr // nil if the declaration has no annotation
	Initializer Expr
}

func (*VariableDeclaration) statementNode() {}

// ExpressionStatement is a bare call expression at the top level, e.g.
// `doIt<number>('23');` (spec §8 scenario 5).
type ExpressionStatement struct {
	nodeBase
	Expression Expr
}

func (*ExpressionStatement) statementNode() {}

// Expr is any value-level expression the Compiler needs the static type
// of: a literal, an identifier reference, or a call.
type Expr interface {
	Node
	exprNode()
}

// LiteralExpr is a string/number/boolean/bigint literal value.
type LiteralExpr struct {
	nodeBase
	Kind LiteralKind
	Text string
}

func (*LiteralExpr) exprNode() {}

// IdentifierExpr references a declared value (variable, parameter).
type IdentifierExpr struct {
	nodeBase
	Name string
}

func (*IdentifierExpr) exprNode() {}

// CallExpr is `callee<TypeArgs>(Args)`.
type CallExpr struct {
	nodeBase
	Callee        string
	TypeArguments []TypeExpr
	Arguments     []Expr
}

func (*CallExpr) exprNode() {}

// TypeExpr is any type-level expression node.
type TypeExpr interface {
	Node
	typeExprNode()
}

// KeywordTypeExpr covers the nullary built-in types: any, unknown, never,
// void, object, string, number, boolean, bigint, symbol, null, undefined.
type KeywordTypeExpr struct {
	nodeBase
	Kind TypeKind
}

func (*KeywordTypeExpr) typeExprNode() {}

// LiteralTypeExpr is a literal type like `"a"`, `3`, `true`.
type LiteralTypeExpr struct {
	nodeBase
	Kind LiteralKind
	Text string
}

func (*LiteralTypeExpr) typeExprNode() {}

// TypeReferenceExpr references a declared type alias (or a type
// parameter in scope) by name, with optional instantiation arguments.
type TypeReferenceExpr struct {
	nodeBase
	Name      string
	Arguments []TypeExpr
}

func (*TypeReferenceExpr) typeExprNode() {}

// UnionTypeExpr is `A | B | C`.
type UnionTypeExpr struct {
	nodeBase
	Types []TypeExpr
}

func (*UnionTypeExpr) typeExprNode() {}

// IntersectionTypeExpr is `A & B`.
type IntersectionTypeExpr struct {
	nodeBase
	Types []TypeExpr
}

func (*IntersectionTypeExpr) typeExprNode() {}

// ArrayTypeExpr is `T[]`.
type ArrayTypeExpr struct {
	nodeBase
	Element TypeExpr
}

func (*ArrayTypeExpr) typeExprNode() {}

// TupleTypeExpr is `[A, B?, ...C]`.
type TupleTypeExpr struct {
	nodeBase
	Members []*TupleMemberExpr
}

func (*TupleTypeExpr) typeExprNode() {}

// TupleMemberExpr is one tuple element.
type TupleMemberExpr struct {
	nodeBase
	Name     string
	Type     TypeExpr
	Optional bool
	Rest     bool

	// Spread marks `...A` where A's own Type resolves to a Tuple whose
	// members should be spliced in place (e.g. the `[...A, 0]` growth
	// step of a recursive tuple-length computation), as distinct from
	// Rest's "open-ended array-typed tail" (`...number[]`). Name and
	// Optional are meaningless when Spread is set.
	Spread bool
}

// TemplateLiteralTypeExpr is `` `prefix-${T}-suffix` ``: an alternating
// sequence of literal string runs and interpolated type expressions.
type TemplateLiteralTypeExpr struct {
	nodeBase
	// Quasis has len(Types)+1 entries: quasi[0] Types[0] quasi[1] ... quasi[n].
	Quasis []string
	Types  []TypeExpr
}

func (*TemplateLiteralTypeExpr) typeExprNode() {}

// ConditionalTypeExpr is `Check extends Extends ? Then : Else`.
type ConditionalTypeExpr struct {
	nodeBase
	Check   TypeExpr
	Extends TypeExpr
	Then    TypeExpr
	Else    TypeExpr
}

func (*ConditionalTypeExpr) typeExprNode() {}

// InferTypeExpr is `infer Name` appearing inside a ConditionalTypeExpr's
// Extends clause.
type InferTypeExpr struct {
	nodeBase
	Name string
}

func (*InferTypeExpr) typeExprNode() {}

// ObjectTypeExpr is `{ members... }`.
type ObjectTypeExpr struct {
	nodeBase
	Members []*PropertySignatureExpr
}

func (*ObjectTypeExpr) typeExprNode() {}

// PropertySignatureExpr is one object-type member.
type PropertySignatureExpr struct {
	nodeBase
	Name     string
	Type     TypeExpr
	Optional bool
	Readonly bool
}

// IndexedAccessTypeExpr is `T[K]`.
type IndexedAccessTypeExpr struct {
	nodeBase
	Object TypeExpr
	Index  TypeExpr
}

func (*IndexedAccessTypeExpr) typeExprNode() {}

// KeyofTypeExpr is `keyof T`, lowered by the Compiler to a Union of the
// object type's own property-name literal types.
type KeyofTypeExpr struct {
	nodeBase
	Operand TypeExpr
}

func (*KeyofTypeExpr) typeExprNode() {}
