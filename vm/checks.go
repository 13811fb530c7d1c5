package tyvm

import "fmt"

// getName returns the member name of a Property/PropertySignature/
// Method/MethodSignature, or "" for anything else.
func getName(member Type) string {
	switch m := member.(type) {
	case *MethodSignature:
		return m.Name
	case *Method:
		return m.Name
	case *PropertySignature:
		return m.Name
	case *Property:
		return m.Name
	default:
		return ""
	}
}

// FindMember returns the first member in members named name, or nil.
// Ported from checks.h's findMember.
func FindMember(members []Type, name string) Type {
	for _, m := range members {
		switch v := m.(type) {
		case *MethodSignature:
			if v.Name == name {
				return m
			}
		case *Method:
			if v.Name == name {
				return m
			}
		case *PropertySignature:
			if v.Name == name {
				return m
			}
		case *Property:
			if v.Name == name {
				return m
			}
		}
	}
	return nil
}

// IsMember reports whether t is a Property/PropertySignature/Method/
// MethodSignature — i.e. something an ObjectLiteral assignability check
// walks as a named member. Ported from checks.h's isMember.
func IsMember(t Type) bool {
	switch t.(type) {
	case *Property, *PropertySignature, *Method, *MethodSignature:
		return true
	default:
		return false
	}
}

// stackEntry is one (left, right) pair on the ExtendableStack.
type stackEntry struct {
	left  Type
	right Type
}

// Inferred accumulates infer-name -> left-hand-side bindings as Extends
// walks a right-hand type tree containing `infer X` placeholders (spec
// §4.1); callers needing the bindings (OpExtends) read it back after
// Extends returns. Shared across one top-level call, since Infer
// placeholders may recur in several structural positions of the same
// Extends clause (e.g. a tuple with more than one `infer` member).
type Inferred map[string]Type

// ExtendableStack is the recursion guard and diagnostic accumulator for
// Extends: it breaks cycles coinductively (a repeated pair is assumed
// true) and, on failure, renders the top failed pair plus the
// dotted-property path leading to it into a diagnostic. Ported from
// checks.h's ExtendableStack.
type ExtendableStack struct {
	stack    []stackEntry
	isFailed bool

	// Infer collects infer-name bindings as they're matched; nil until
	// the first binding occurs. Left nil (rather than always allocated)
	// so the common no-infer path costs nothing extra.
	Infer Inferred
}

// Path renders the dotted property-name path accumulated on the stack so
// far (e.g. "a.b.c."), used to anchor a nested assignability failure back
// to the outer property it occurred under.
func (s *ExtendableStack) Path() string {
	var path string
	for _, e := range s.stack {
		switch l := e.left.(type) {
		case *Property:
			path += l.Name
		case *PropertySignature:
			path += l.Name
		}
		path += "."
	}
	return path
}

// ErrorMessage renders the top-of-stack failed pair into a diagnostic
// message and the ip it should be anchored to.
func (s *ExtendableStack) ErrorMessage() (string, uint32) {
	top := s.stack[len(s.stack)-1]
	msg := fmt.Sprintf("Type '%s' is not assignable to type '%s'", Stringify(top.left), Stringify(top.right))
	return msg, top.left.IP()
}

func (s *ExtendableStack) push(left, right Type) { s.stack = append(s.stack, stackEntry{left, right}) }

func (s *ExtendableStack) pop() {
	if s.isFailed {
		return // keep the stack around so callers can still render a message
	}
	s.stack = s.stack[:len(s.stack)-1]
}

func (s *ExtendableStack) failed() bool {
	s.isFailed = true
	return false
}

func (s *ExtendableStack) valid() bool {
	s.pop()
	return true
}

func (s *ExtendableStack) has(left, right Type) bool {
	for _, e := range s.stack {
		if e.left == left && e.right == right {
			return true
		}
	}
	return false
}

// Extends reports whether left is assignable to right: `left extends
// right ? true : false`. stack carries cycle-breaking state across the
// recursive calls Extends makes into itself; pass a fresh &ExtendableStack{}
// for a top-level check.
//
// Ported near-verbatim from checks.h's isExtendable, including its
// dispatch purely on right's kind and its Parameter-unwrapping prelude.
func Extends(left, right Type, stack *ExtendableStack) bool {
	if stack.has(left, right) {
		return true
	}
	stack.push(left, right)

	if inf, ok := right.(*Infer); ok {
		if stack.Infer == nil {
			stack.Infer = Inferred{}
		}
		stack.Infer[inf.Name] = left
		return stack.valid()
	}

	if p, ok := right.(*Parameter); ok {
		if left.Kind() == KindUndefined && IsOptional(right) {
			return true
		}
		right = p.Type
	}

	// Never and Any on the left extend every right-hand side; they are
	// decided here, before the right.kind switch below can reject them.
	if left.Kind() == KindNever || left.Kind() == KindAny {
		return stack.valid()
	}

	// Union left-absorption (spec §8): extends(A | B, C) is true only if
	// every alternative extends C. The right-union case below already
	// handles a union right; this is the mirror for a union left against
	// a non-union right, which the original checker's right.kind-only
	// dispatch never reaches on its own.
	if lu, ok := left.(*Union); ok {
		if _, rightIsUnion := right.(*Union); !rightIsUnion {
			for _, alt := range lu.Types {
				if !Extends(alt, right, stack) {
					return stack.failed()
				}
			}
			return stack.valid()
		}
	}

	switch r := right.(type) {
	case *ObjectLiteral:
		l, ok := left.(*ObjectLiteral)
		if !ok {
			return stack.failed()
		}
		for _, member := range r.Members {
			if !IsMember(member) {
				continue
			}
			leftMember := FindMember(l.Members, getName(member))
			if leftMember == nil {
				return stack.failed()
			}
			if !Extends(leftMember, member, stack) {
				return stack.failed()
			}
		}
		return stack.valid()

	case *PropertySignature:
		switch l := left.(type) {
		case *Property:
			if !r.Optional && IsOptional(l) {
				return stack.failed()
			}
			if Extends(l.Type, r.Type, stack) {
				return stack.valid()
			}
			return stack.failed()
		case *PropertySignature:
			if !r.Optional && IsOptional(l) {
				return stack.failed()
			}
			if Extends(l.Type, r.Type, stack) {
				return stack.valid()
			}
			return stack.failed()
		default:
			if !r.Optional && IsOptional(left) {
				return stack.failed()
			}
			if Extends(left, r.Type, stack) {
				return stack.valid()
			}
			return stack.failed()
		}

	case *Property:
		switch l := left.(type) {
		case *Property:
			if !r.Optional && IsOptional(l) {
				return stack.failed()
			}
			if Extends(l.Type, r.Type, stack) {
				return stack.valid()
			}
			return stack.failed()
		case *PropertySignature:
			if !r.Optional && IsOptional(l) {
				return stack.failed()
			}
			if Extends(l.Type, r.Type, stack) {
				return stack.valid()
			}
			return stack.failed()
		default:
			if !r.Optional && IsOptional(left) {
				return stack.failed()
			}
			if Extends(left, r.Type, stack) {
				return stack.valid()
			}
			return stack.failed()
		}

	case *Simple:
		switch r.Kind() {
		case KindString:
			if left.Kind() == KindString {
				return stack.valid()
			}
			if lit, ok := left.(*Literal); ok && lit.LiteralKind == LiteralString {
				return stack.valid()
			}
			return stack.failed()
		case KindNumber:
			if left.Kind() == KindNumber {
				return stack.valid()
			}
			if lit, ok := left.(*Literal); ok && lit.LiteralKind == LiteralNumber {
				return stack.valid()
			}
			return stack.failed()
		case KindNever:
			// extends(Never, T) is always true (spec §8 invariant); Never
			// as a *right*-hand side has no dedicated original-checker rule,
			// so fall through to the generic reflexive/Any/Unknown handling
			// below instead of failing outright.
		}

	case *Literal:
		if l, ok := left.(*Literal); ok {
			if l.LiteralKind == r.LiteralKind && l.Text == r.Text {
				return stack.valid()
			}
		}
		return stack.failed()

	case *Array:
		l, ok := left.(*Array)
		if !ok {
			return stack.failed()
		}
		if Extends(l.Element, r.Element, stack) {
			return stack.valid()
		}
		return stack.failed()

	case *Tuple:
		l, ok := left.(*Tuple)
		if !ok {
			return stack.failed()
		}
		for i, rm := range r.Members {
			if i >= len(l.Members) {
				if rm.Optional || rm.Rest {
					continue
				}
				return stack.failed()
			}
			if !Extends(l.Members[i].Type, rm.Type, stack) {
				return stack.failed()
			}
		}
		return stack.valid()

	case *Union:
		if left.Kind() != KindUnion {
			for _, alt := range r.Types {
				if Extends(left, alt, stack) {
					return stack.valid()
				}
			}
			return stack.failed()
		}
		leftUnion := left.(*Union)
		for _, lr := range leftUnion.Types {
			valid := false
			for _, rr := range r.Types {
				if Extends(lr, rr, stack) {
					valid = true
					break
				}
			}
			if !valid {
				return stack.failed()
			}
		}
		return stack.valid()
	}

	// Reflexivity and the universal bounds every testable property in
	// spec §8 requires: extends(T, T), extends(T, Unknown), extends(T,
	// Any), and (also checked up front, before the switch) extends(Never,
	// T) and extends(Any, T). These fall outside the
	// original's right.kind switch (which only covers the structural
	// kinds above) because that switch assumed Unknown/Any/Never/plain
	// reflexive cases were handled by a generic prelude the distillation
	// omitted; spec.md's invariants make them mandatory here.
	if left == right {
		return stack.valid()
	}
	if left.Kind() == KindNever {
		return stack.valid()
	}
	if right.Kind() == KindUnknown || right.Kind() == KindAny {
		return stack.valid()
	}
	if left.Kind() == KindAny {
		return stack.valid()
	}
	if left.Kind() == right.Kind() {
		return stack.valid()
	}
	return stack.failed()
}

// IndexAccess resolves obj[index] for a Tuple/ObjectLiteral/Array, per
// spec §4.2's IndexAccess semantics and the Open Question decision in
// SPEC_FULL.md §5.2 for negative/rest-bearing tuple indices.
func IndexAccess(obj Type, index Type, ip uint32) Type {
	switch o := obj.(type) {
	case *Tuple:
		if lit, ok := index.(*Literal); ok {
			if lit.LiteralKind == LiteralString && lit.Text == "length" {
				return NewLiteral(ip, LiteralNumber, fmt.Sprintf("%d", len(o.Members)))
			}
			if lit.LiteralKind == LiteralNumber {
				var n int
				if _, err := fmt.Sscanf(lit.Text, "%d", &n); err == nil {
					if n >= 0 && n < len(o.Members) && !o.Members[n].Rest {
						return o.Members[n].Type
					}
					// Negative index or an index at/after a rest element:
					// treated as the union of every member's type,
					// including the rest element's inner type, per the
					// decided Open Question.
					return indexAccessUnionOfMembers(o, ip)
				}
			}
		}
		return indexAccessUnionOfMembers(o, ip)

	case *Array:
		if lit, ok := index.(*Literal); ok && lit.LiteralKind == LiteralNumber {
			return o.Element
		}
		return o.Element

	case *ObjectLiteral:
		if lit, ok := index.(*Literal); ok && lit.LiteralKind == LiteralString {
			if lit.Text == keyofSentinel {
				return keyofUnion(o, ip)
			}
			if m := FindMember(o.Members, lit.Text); m != nil {
				switch v := m.(type) {
				case *PropertySignature:
					return v.Type
				case *Property:
					return v.Type
				}
			}
		}
		return NewNever(ip)

	default:
		return NewNever(ip)
	}
}

// keyofUnion builds the union of an ObjectLiteral's own property-name
// literal types, the result of a `keyof T` query (compiled as IndexAccess
// with the reserved keyofSentinel index, see compile.go).
func keyofUnion(o *ObjectLiteral, ip uint32) Type {
	var names []Type
	for _, m := range o.Members {
		if name := getName(m); name != "" {
			names = append(names, NewLiteral(ip, LiteralString, name))
		}
	}
	return UnboxUnion(NewUnion(ip, names))
}

func indexAccessUnionOfMembers(t *Tuple, ip uint32) Type {
	alts := make([]Type, 0, len(t.Members))
	for _, m := range t.Members {
		if arr, ok := m.Type.(*Array); ok && m.Rest {
			alts = append(alts, arr.Element)
			continue
		}
		alts = append(alts, m.Type)
	}
	return UnboxUnion(NewUnion(ip, alts))
}
