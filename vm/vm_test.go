package tyvm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// compileAndRun lowers file to a BytecodeImage, runs it, and returns the
// bound Module (carrying whatever diagnostics the run produced).
func compileAndRun(t *testing.T, file *SourceFile) *Module {
	t.Helper()
	image, compileErrs := Compile(file, nil)
	require.Empty(t, compileErrs, "unexpected compile errors")

	module := NewModule(image, file.FileName, "")
	vm := NewVM(image, module, nil)
	require.NoError(t, vm.Run())
	return module
}

func stringLit(text string) *LiteralTypeExpr {
	return &LiteralTypeExpr{Kind: LiteralString, Text: text}
}

func ref(name string, args ...TypeExpr) *TypeReferenceExpr {
	return &TypeReferenceExpr{Name: name, Arguments: args}
}

// TestAssignSimpleAlias checks that a plain, non-generic type alias
// resolves and that Assign both accepts a compatible literal and reports
// TypeNotAssignable for an incompatible one.
func TestAssignSimpleAlias(t *testing.T) {
	alias := &TypeAliasDeclaration{Name: "Greeting", Type: stringLit("hi")}

	ok := &VariableDeclaration{
		Name:        "a",
		Type:        ref("Greeting"),
		Initializer: &LiteralExpr{Kind: LiteralString, Text: "hi"},
	}
	bad := &VariableDeclaration{
		Name:        "b",
		Type:        ref("Greeting"),
		Initializer: &LiteralExpr{Kind: LiteralString, Text: "bye"},
	}

	module := compileAndRun(t, &SourceFile{FileName: "t.ts", Statements: []Statement{alias, ok, bad}})
	require.Len(t, module.Errors, 1)
	require.Contains(t, module.Errors[0].Message, "not assignable")
}

// TestConditionalDistributesOverUnion checks that a conditional type whose
// Check is a bare type parameter distributes over a union argument and
// that the Then/Else branches each see their own narrowed alternative
// (OpLoadLocal), not the original union binding.
func TestConditionalDistributesOverUnion(t *testing.T) {
	box := &TypeAliasDeclaration{
		Name:           "Box",
		TypeParameters: []*TypeParameterDeclaration{{Name: "T"}},
		Type: &ConditionalTypeExpr{
			Check:   ref("T"),
			Extends: &KeywordTypeExpr{Kind: KindString},
			Then:    stringLit("S"),
			Else:    stringLit("N"),
		},
	}

	acceptS := &VariableDeclaration{
		Name:        "a",
		Type:        ref("Box", &UnionTypeExpr{Types: []TypeExpr{&KeywordTypeExpr{Kind: KindString}, &KeywordTypeExpr{Kind: KindNumber}}}),
		Initializer: &LiteralExpr{Kind: LiteralString, Text: "S"},
	}
	acceptN := &VariableDeclaration{
		Name:        "b",
		Type:        ref("Box", &UnionTypeExpr{Types: []TypeExpr{&KeywordTypeExpr{Kind: KindString}, &KeywordTypeExpr{Kind: KindNumber}}}),
		Initializer: &LiteralExpr{Kind: LiteralString, Text: "N"},
	}
	reject := &VariableDeclaration{
		Name:        "c",
		Type:        ref("Box", &UnionTypeExpr{Types: []TypeExpr{&KeywordTypeExpr{Kind: KindString}, &KeywordTypeExpr{Kind: KindNumber}}}),
		Initializer: &LiteralExpr{Kind: LiteralString, Text: "X"},
	}

	module := compileAndRun(t, &SourceFile{FileName: "t.ts", Statements: []Statement{box, acceptS, acceptN, reject}})
	require.Len(t, module.Errors, 1)
	require.Contains(t, module.Errors[0].Message, "\"X\"")
}

// TestKeyofProducesPropertyNameUnion checks that `keyof` lowers to the
// union of an object type's own property names.
func TestKeyofProducesPropertyNameUnion(t *testing.T) {
	obj := &ObjectTypeExpr{Members: []*PropertySignatureExpr{
		{Name: "a", Type: &KeywordTypeExpr{Kind: KindString}},
		{Name: "b", Type: &KeywordTypeExpr{Kind: KindNumber}},
	}}

	good := &VariableDeclaration{
		Name:        "k",
		Type:        &KeyofTypeExpr{Operand: obj},
		Initializer: &LiteralExpr{Kind: LiteralString, Text: "a"},
	}
	bad := &VariableDeclaration{
		Name:        "k2",
		Type:        &KeyofTypeExpr{Operand: obj},
		Initializer: &LiteralExpr{Kind: LiteralString, Text: "c"},
	}

	module := compileAndRun(t, &SourceFile{FileName: "t.ts", Statements: []Statement{good, bad}})
	require.Len(t, module.Errors, 1)
	require.Contains(t, module.Errors[0].Message, "\"c\"")
}

// TestCallExpressionChecksArguments checks that calling a generic function
// with an argument that doesn't extend its instantiated parameter type
// reports ArgumentMissing.
func TestCallExpressionChecksArguments(t *testing.T) {
	identity := &FunctionDeclaration{
		Name:           "identity",
		TypeParameters: []*TypeParameterDeclaration{{Name: "T"}},
		Parameters:     []*ParameterDeclaration{{Name: "x", Type: ref("T")}},
		ReturnType:     ref("T"),
	}

	goodCall := &ExpressionStatement{Expression: &CallExpr{
		Callee:        "identity",
		TypeArguments: []TypeExpr{&KeywordTypeExpr{Kind: KindString}},
		Arguments:     []Expr{&LiteralExpr{Kind: LiteralString, Text: "ok"}},
	}}
	badCall := &ExpressionStatement{Expression: &CallExpr{
		Callee:        "identity",
		TypeArguments: []TypeExpr{&KeywordTypeExpr{Kind: KindString}},
		Arguments:     []Expr{&LiteralExpr{Kind: LiteralNumber, Text: "3"}},
	}}

	module := compileAndRun(t, &SourceFile{FileName: "t.ts", Statements: []Statement{identity, goodCall, badCall}})
	require.Len(t, module.Errors, 1)
	require.Contains(t, module.Errors[0].Message, "Argument")
}

// TestInferBindsFromArrayElement checks that `infer` inside a conditional's
// Extends clause binds the matched element type and makes it visible to
// the Then branch.
func TestInferBindsFromArrayElement(t *testing.T) {
	elementOf := &TypeAliasDeclaration{
		Name:           "ElementOf",
		TypeParameters: []*TypeParameterDeclaration{{Name: "T"}},
		Type: &ConditionalTypeExpr{
			Check:   ref("T"),
			Extends: &ArrayTypeExpr{Element: &InferTypeExpr{Name: "U"}},
			Then:    ref("U"),
			Else:    &KeywordTypeExpr{Kind: KindNever},
		},
	}

	accept := &VariableDeclaration{
		Name:        "e",
		Type:        ref("ElementOf", &ArrayTypeExpr{Element: &KeywordTypeExpr{Kind: KindString}}),
		Initializer: &LiteralExpr{Kind: LiteralString, Text: "hi"},
	}
	reject := &VariableDeclaration{
		Name:        "f",
		Type:        ref("ElementOf", &ArrayTypeExpr{Element: &KeywordTypeExpr{Kind: KindString}}),
		Initializer: &LiteralExpr{Kind: LiteralNumber, Text: "3"},
	}

	module := compileAndRun(t, &SourceFile{FileName: "t.ts", Statements: []Statement{elementOf, accept, reject}})
	require.Len(t, module.Errors, 1)
	require.Contains(t, module.Errors[0].Message, "not assignable")
}

// TestMutualRecursionResolvesForwardReferences checks that two type
// aliases declared in either order can reference each other, exercising
// the pendingCalls back-patch pass.
func TestMutualRecursionResolvesForwardReferences(t *testing.T) {
	a := &TypeAliasDeclaration{Name: "A", Type: ref("B")}
	b := &TypeAliasDeclaration{Name: "B", Type: stringLit("done")}

	check := &VariableDeclaration{
		Name:        "x",
		Type:        ref("A"),
		Initializer: &LiteralExpr{Kind: LiteralString, Text: "done"},
	}

	module := compileAndRun(t, &SourceFile{FileName: "t.ts", Statements: []Statement{a, b, check}})
	require.Empty(t, module.Errors)
}

// TestOptionsMaxDepthDegradesRecursionToDiagnostic checks that a small
// Options.MaxDepth stops a self-referential alias well short of the
// default bound and reports ExcessivelyDeep instead of exhausting the
// host call stack.
func TestOptionsMaxDepthDegradesRecursionToDiagnostic(t *testing.T) {
	loop := &TypeAliasDeclaration{Name: "Loop", Type: ref("Loop")}
	use := &VariableDeclaration{
		Name:        "x",
		Type:        ref("Loop"),
		Initializer: &LiteralExpr{Kind: LiteralString, Text: "anything"},
	}

	image, compileErrs := Compile(&SourceFile{FileName: "t.ts", Statements: []Statement{loop, use}}, nil)
	require.Empty(t, compileErrs)

	module := NewModule(image, "t.ts", "")
	vm := NewVM(image, module, nil, &Options{MaxDepth: 3})
	require.NoError(t, vm.Run())

	require.NotEmpty(t, module.Errors)
	require.Contains(t, module.Errors[0].Message, "excessively deep")
}

// TestTupleSpreadSplicesExistingMembers checks that `[...A, 0]` grows a
// bound tuple type parameter by splicing its members in place (spec §8
// scenario 4's recursive-growth step), rather than nesting it as a single
// rest-typed member: `Grow<[string, string]>['length']` must equal 3.
func TestTupleSpreadSplicesExistingMembers(t *testing.T) {
	numberLit := func(text string) *LiteralTypeExpr { return &LiteralTypeExpr{Kind: LiteralNumber, Text: text} }

	grow := &TypeAliasDeclaration{
		Name:           "Grow",
		TypeParameters: []*TypeParameterDeclaration{{Name: "A"}},
		Type: &TupleTypeExpr{Members: []*TupleMemberExpr{
			{Spread: true, Type: ref("A")},
			{Type: numberLit("0")},
		}},
	}

	arg := &TupleTypeExpr{Members: []*TupleMemberExpr{
		{Name: "a", Type: &KeywordTypeExpr{Kind: KindString}},
		{Name: "b", Type: &KeywordTypeExpr{Kind: KindString}},
	}}

	accept := &VariableDeclaration{
		Name:        "n",
		Type:        &IndexedAccessTypeExpr{Object: ref("Grow", arg), Index: stringLit("length")},
		Initializer: &LiteralExpr{Kind: LiteralNumber, Text: "3"},
	}
	reject := &VariableDeclaration{
		Name:        "m",
		Type:        &IndexedAccessTypeExpr{Object: ref("Grow", arg), Index: stringLit("length")},
		Initializer: &LiteralExpr{Kind: LiteralNumber, Text: "2"},
	}

	module := compileAndRun(t, &SourceFile{FileName: "t.ts", Statements: []Statement{grow, accept, reject}})
	require.Len(t, module.Errors, 1)
	require.Contains(t, module.Errors[0].Message, "not assignable")
}

// TestUnresolvedReferenceIsReportedAsCompileError checks that referencing
// an undeclared name is a compile-time diagnostic, not a panic.
func TestUnresolvedReferenceIsReportedAsCompileError(t *testing.T) {
	stmt := &VariableDeclaration{
		Name:        "x",
		Type:        ref("DoesNotExist"),
		Initializer: &LiteralExpr{Kind: LiteralString, Text: "hi"},
	}
	_, errs := Compile(&SourceFile{FileName: "t.ts", Statements: []Statement{stmt}}, nil)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Message, "Cannot find name")
}
