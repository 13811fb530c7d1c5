package tyvm

import (
	"fmt"
	"strings"
)

// TypeKind discriminates the concrete payload a Type carries. The original
// checker uses a CRTP "BrandKind<T,Base>" template to stamp each struct
// with its own kind constant at construction time; Go has no templates, so
// each concrete type simply sets Kind in its constructor and callers type
// switch on it, the same way the teacher reads Bytecode.String() off a
// plain byte tag instead of virtual dispatch.
type TypeKind byte

const (
	KindNever TypeKind = iota
	KindAny
	KindUnknown
	KindVoid
	KindObject
	KindString
	KindNumber
	KindBoolean
	KindSymbol
	KindBigInt
	KindNull
	KindUndefined

	KindLiteral
	KindTemplateLiteral
	KindProperty
	KindMethod
	KindFunction
	KindFunctionRef
	KindParameter

	KindClass
	KindUnion
	KindIntersection

	KindArray
	KindTuple
	KindTupleMember

	KindRest

	KindObjectLiteral
	KindIndexSignature
	KindPropertySignature
	KindMethodSignature

	KindInfer
	KindMapped
)

func (k TypeKind) String() string {
	switch k {
	case KindNever:
		return "Never"
	case KindAny:
		return "Any"
	case KindUnknown:
		return "Unknown"
	case KindVoid:
		return "Void"
	case KindObject:
		return "Object"
	case KindString:
		return "String"
	case KindNumber:
		return "Number"
	case KindBoolean:
		return "Boolean"
	case KindSymbol:
		return "Symbol"
	case KindBigInt:
		return "BigInt"
	case KindNull:
		return "Null"
	case KindUndefined:
		return "Undefined"
	case KindLiteral:
		return "Literal"
	case KindTemplateLiteral:
		return "TemplateLiteral"
	case KindProperty:
		return "Property"
	case KindMethod:
		return "Method"
	case KindFunction:
		return "Function"
	case KindFunctionRef:
		return "FunctionRef"
	case KindParameter:
		return "Parameter"
	case KindClass:
		return "Class"
	case KindUnion:
		return "Union"
	case KindIntersection:
		return "Intersection"
	case KindArray:
		return "Array"
	case KindTuple:
		return "Tuple"
	case KindTupleMember:
		return "TupleMember"
	case KindRest:
		return "Rest"
	case KindObjectLiteral:
		return "ObjectLiteral"
	case KindIndexSignature:
		return "IndexSignature"
	case KindPropertySignature:
		return "PropertySignature"
	case KindMethodSignature:
		return "MethodSignature"
	case KindInfer:
		return "Infer"
	case KindMapped:
		return "Mapped"
	default:
		return "Invalid"
	}
}

// LiteralKind distinguishes the four literal flavors a TypeLiteral can hold.
type LiteralKind byte

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBoolean
	LiteralBigInt
)

// Type is the common interface every concrete type-object struct satisfies.
// Types are immutable after construction (spec §9 "shared mutable type
// objects") and owned exclusively by the arena that allocated them; only a
// subroutine table entry's narrowed/result fields are ever mutated post
// construction, never a Type itself.
type Type interface {
	Kind() TypeKind
	// IP is the instruction pointer of the opcode that produced this type,
	// used to anchor diagnostics back to a source position.
	IP() uint32
}

// base is embedded by every concrete Type to avoid repeating the Kind/IP
// bookkeeping in each struct, mirroring the original checker's single
// embedded "Type" base struct in types.h.
type base struct {
	kind TypeKind
	ip   uint32
}

func (b base) Kind() TypeKind { return b.kind }
func (b base) IP() uint32     { return b.ip }

// Simple nullary kinds share one struct, told apart only by their kind.
// Unknown has its own struct below, which carries the "this was an
// unprovided type argument" flag.
type Simple struct {
	base
}

func newSimple(kind TypeKind, ip uint32) *Simple { return &Simple{base{kind, ip}} }

func NewNever(ip uint32) *Simple      { return newSimple(KindNever, ip) }
func NewAny(ip uint32) *Simple        { return newSimple(KindAny, ip) }
func NewVoid(ip uint32) *Simple       { return newSimple(KindVoid, ip) }
func NewObject(ip uint32) *Simple     { return newSimple(KindObject, ip) }
func NewString(ip uint32) *Simple     { return newSimple(KindString, ip) }
func NewNumber(ip uint32) *Simple     { return newSimple(KindNumber, ip) }
func NewBoolean(ip uint32) *Simple    { return newSimple(KindBoolean, ip) }
func NewBigInt(ip uint32) *Simple     { return newSimple(KindBigInt, ip) }
func NewSymbol(ip uint32) *Simple     { return newSimple(KindSymbol, ip) }
func NewNull(ip uint32) *Simple       { return newSimple(KindNull, ip) }
func NewUndefined(ip uint32) *Simple  { return newSimple(KindUndefined, ip) }

// Unknown carries the "was this a type argument slot nobody filled in"
// flag TypeArgument/TypeArgumentDefault rely on (spec §4.2).
type Unknown struct {
	base
	UnprovidedArgument bool
}

func NewUnknown(ip uint32, unprovided bool) *Unknown {
	return &Unknown{base{KindUnknown, ip}, unprovided}
}

// Literal is a string/number/boolean/bigint literal type. Text holds the
// canonical rendering (already quote-stripped for strings).
type Literal struct {
	base
	LiteralKind LiteralKind
	Text        string
}

func NewLiteral(ip uint32, kind LiteralKind, text string) *Literal {
	return &Literal{base{KindLiteral, ip}, kind, text}
}

// TemplateLiteral holds a segment list (placeholder types interspersed
// with literal runs). The VM does not build one: OpTemplateLiteral is
// evaluated by evalTemplateLiteral in vm.go straight to a String, Never,
// Literal or Union result.
type TemplateLiteral struct {
	base
	Segments []Type
}

func NewTemplateLiteral(ip uint32, segments []Type) *TemplateLiteral {
	return &TemplateLiteral{base{KindTemplateLiteral, ip}, segments}
}

// Union is a normalized (Never-dropped) set of alternatives. A Union with
// exactly one alternative is never constructed directly; callers use
// UnboxUnion to collapse it back to its sole member.
type Union struct {
	base
	Types []Type
}

func NewUnion(ip uint32, types []Type) *Union {
	return &Union{base{KindUnion, ip}, types}
}

// Intersection holds its constituent types; spec.md scopes full
// distributivity out (§4.4 non-goals), so Intersection is evaluated only
// for the ObjectLiteral-merge case the Compiler emits for `A & B` where
// both sides are object literal types.
type Intersection struct {
	base
	Types []Type
}

func NewIntersection(ip uint32, types []Type) *Intersection {
	return &Intersection{base{KindIntersection, ip}, types}
}

// Array is `T[]`. The original checker's Array opcode references a
// TypeArray that is never defined in types.h; this struct fills that gap.
type Array struct {
	base
	Element Type
}

func NewArray(ip uint32, element Type) *Array {
	return &Array{base{KindArray, ip}, element}
}

// TupleMember is one element of a Tuple: its own type, whether it is
// optional, whether it is the rest element, and an optional name (named
// tuple members, e.g. `[x: number]`).
type TupleMember struct {
	base
	Type     Type
	Optional bool
	Rest     bool
	Name     string
}

func NewTupleMember(ip uint32, t Type) *TupleMember {
	return &TupleMember{base: base{KindTupleMember, ip}, Type: t}
}

// Tuple is an ordered sequence of TupleMembers, at most one of which may
// have Rest set (and if present, it must be last).
type Tuple struct {
	base
	Members []*TupleMember
}

func NewTuple(ip uint32, members []*TupleMember) *Tuple {
	return &Tuple{base{KindTuple, ip}, members}
}

// Rest wraps the element type of a `...T` tuple member or function
// parameter before it is folded into a TupleMember/Parameter.
type Rest struct {
	base
	Type Type
}

func NewRest(ip uint32, t Type) *Rest {
	return &Rest{base{KindRest, ip}, t}
}

// Parameter is a function parameter or a generic type parameter bound in
// a call frame; Initializer is the default-value subroutine result when
// present (spec §4.2 TypeArgumentDefault).
type Parameter struct {
	base
	Name        string
	Type        Type
	Initializer Type
	Optional    bool
}

func NewParameter(ip uint32, name string, t Type) *Parameter {
	return &Parameter{base: base{KindParameter, ip}, Name: name, Type: t}
}

// Property is a concrete object member (as opposed to PropertySignature,
// an interface/type-literal member declaration).
type Property struct {
	base
	Name     string
	Type     Type
	Optional bool
	Readonly bool
}

func NewProperty(ip uint32, name string, t Type) *Property {
	return &Property{base: base{KindProperty, ip}, Name: name, Type: t}
}

// PropertySignature is an ObjectLiteral member declaration.
type PropertySignature struct {
	base
	Name     string
	Type     Type
	Optional bool
	Readonly bool
}

func NewPropertySignature(ip uint32, name string, t Type) *PropertySignature {
	return &PropertySignature{base: base{KindPropertySignature, ip}, Name: name, Type: t}
}

// MethodSignature is an ObjectLiteral method member declaration.
type MethodSignature struct {
	base
	Name       string
	Optional   bool
	Parameters []*Parameter
	ReturnType Type
}

// Method is identical in shape to MethodSignature but denotes a concrete
// (non-declaration) method type, mirroring the Property/PropertySignature
// split.
type Method struct {
	base
	Name       string
	Optional   bool
	Parameters []*Parameter
	ReturnType Type
}

// IndexSignature is `{ [key: K]: V }`.
type IndexSignature struct {
	base
	Index Type
	Type  Type
}

// ObjectLiteral is an unordered bag of Property/PropertySignature/Method/
// MethodSignature/IndexSignature members.
type ObjectLiteral struct {
	base
	TypeName string
	Members  []Type
}

func NewObjectLiteral(ip uint32, members []Type) *ObjectLiteral {
	return &ObjectLiteral{base: base{KindObjectLiteral, ip}, Members: members}
}

// Function is a concrete (instantiated) function signature.
type Function struct {
	base
	Name       string
	Parameters []*Parameter
	ReturnType Type
}

// FunctionRef is a reference to a still-generic subroutine; Instantiate
// resolves it by calling the referenced address with supplied type
// arguments (spec §4.2).
type FunctionRef struct {
	base
	Address uint32
}

func NewFunctionRef(ip uint32, address uint32) *FunctionRef {
	return &FunctionRef{base{KindFunctionRef, ip}, address}
}

// Infer marks a placeholder bound by a conditional type's `infer X` clause;
// Extends binds it into the active subroutine's Inferred map (frame.go),
// and OpLoadInferred reads it back when the Then branch references X.
type Infer struct {
	base
	Name string
}

func NewInfer(ip uint32, name string) *Infer {
	return &Infer{base{KindInfer, ip}, name}
}

// ---- helpers -----------------------------------------------------------

// UnboxUnion collapses a zero- or one-element Union down to Never or its
// sole member respectively, leaving any other type (including a
// multi-element Union) unchanged. Ported from types.h's unboxUnion.
func UnboxUnion(t Type) Type {
	if u, ok := t.(*Union); ok {
		switch len(u.Types) {
		case 0:
			return NewNever(u.IP())
		case 1:
			return u.Types[0]
		}
	}
	return t
}

// IsOptional reports whether t may be omitted: a Union containing
// Undefined, or a Parameter/Property/PropertySignature explicitly marked
// optional (or whose own type is itself optional). Ported from
// types.h's isOptional.
func IsOptional(t Type) bool {
	switch v := t.(type) {
	case *Union:
		for _, alt := range v.Types {
			if alt.Kind() == KindUndefined {
				return true
			}
		}
		return false
	case *Parameter:
		if v.Optional {
			return true
		}
		return IsOptional(v.Type)
	case *Property:
		if v.Optional {
			return true
		}
		return IsOptional(v.Type)
	case *PropertySignature:
		if v.Optional {
			return true
		}
		return IsOptional(v.Type)
	default:
		return false
	}
}

// Widen converts a literal type to its corresponding primitive type
// (`"abc"` -> string, `42` -> number, ...); every other kind is returned
// unchanged. Ported from types.h's widen.
func Widen(t Type) Type {
	lit, ok := t.(*Literal)
	if !ok {
		return t
	}
	switch lit.LiteralKind {
	case LiteralString:
		return NewString(lit.IP())
	case LiteralNumber:
		return NewNumber(lit.IP())
	case LiteralBigInt:
		return NewBigInt(lit.IP())
	case LiteralBoolean:
		return NewBoolean(lit.IP())
	default:
		return t
	}
}

// Stringify renders t the way the surface language would print it in a
// diagnostic: unions joined with " | ", tuples bracketed, literals quoted
// per kind. Ported from types.h's stringify.
func Stringify(t Type) string {
	switch v := t.(type) {
	case *Simple:
		switch v.Kind() {
		case KindNever:
			return "never"
		case KindAny:
			return "any"
		case KindVoid:
			return "void"
		case KindObject:
			return "object"
		case KindString:
			return "string"
		case KindNumber:
			return "number"
		case KindBoolean:
			return "boolean"
		case KindBigInt:
			return "bigint"
		case KindSymbol:
			return "symbol"
		case KindNull:
			return "null"
		case KindUndefined:
			return "undefined"
		}
		return v.Kind().String()
	case *Unknown:
		return "unknown"
	case *Rest:
		return "..." + Stringify(v.Type)
	case *Literal:
		switch v.LiteralKind {
		case LiteralString:
			return "\"" + v.Text + "\""
		default:
			return v.Text
		}
	case *TupleMember:
		var b strings.Builder
		if v.Name != "" {
			b.WriteString(v.Name)
			if v.Optional {
				b.WriteByte('?')
			}
			b.WriteString(": ")
		} else if v.Optional {
			b.WriteByte('?')
		}
		if v.Rest {
			b.WriteString("...")
		}
		b.WriteString(Stringify(v.Type))
		return b.String()
	case *Parameter:
		r := v.Name
		if v.Optional {
			r += "?"
		}
		return r + ": " + Stringify(v.Type)
	case *PropertySignature:
		prefix := ""
		if v.Readonly {
			prefix = "readonly "
		}
		r := prefix + v.Name
		if v.Optional {
			r += "?"
		}
		return r + ": " + Stringify(v.Type)
	case *Property:
		prefix := ""
		if v.Readonly {
			prefix = "readonly "
		}
		r := prefix + v.Name
		if v.Optional {
			r += "?"
		}
		return r + ": " + Stringify(v.Type)
	case *ObjectLiteral:
		var b strings.Builder
		b.WriteString(v.TypeName)
		b.WriteByte('{')
		for i, m := range v.Members {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Stringify(m))
		}
		b.WriteByte('}')
		return b.String()
	case *FunctionRef:
		return "%FunctionRef"
	case *Function:
		var b strings.Builder
		b.WriteString(v.Name)
		b.WriteByte('(')
		for i, p := range v.Parameters {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Stringify(p))
		}
		b.WriteString(") => ")
		b.WriteString(Stringify(v.ReturnType))
		return b.String()
	case *Array:
		return Stringify(v.Element) + "[]"
	case *Tuple:
		var b strings.Builder
		b.WriteByte('[')
		for i, m := range v.Members {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Stringify(m))
		}
		b.WriteByte(']')
		return b.String()
	case *Union:
		var b strings.Builder
		for i, alt := range v.Types {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(Stringify(alt))
		}
		return b.String()
	case *Intersection:
		var b strings.Builder
		for i, alt := range v.Types {
			if i > 0 {
				b.WriteString(" & ")
			}
			b.WriteString(Stringify(alt))
		}
		return b.String()
	case *TemplateLiteral:
		var b strings.Builder
		b.WriteByte('`')
		for _, seg := range v.Segments {
			if lit, ok := seg.(*Literal); ok && lit.LiteralKind == LiteralString {
				b.WriteString(lit.Text)
			} else {
				b.WriteString("${")
				b.WriteString(Stringify(seg))
				b.WriteByte('}')
			}
		}
		b.WriteByte('`')
		return b.String()
	default:
		return fmt.Sprintf("error-%s", t.Kind())
	}
}
