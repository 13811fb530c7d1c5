package tyvm

// LoopHelper iterates a type as if it were always a union: a genuine
// Union yields one alternative per call to Next, anything else yields
// itself exactly once. This is what lets Distribute treat "T" and "A|B|C"
// uniformly. Ported from vm.h's LoopHelper.
type LoopHelper struct {
	alternatives []Type
	index        int
}

// NewLoopHelper builds a LoopHelper over t: a Union's Types slice, or a
// single-element slice containing t itself.
func NewLoopHelper(t Type) *LoopHelper {
	if u, ok := t.(*Union); ok {
		return &LoopHelper{alternatives: u.Types}
	}
	return &LoopHelper{alternatives: []Type{t}}
}

// Next returns the next alternative and true, or (nil, false) once
// exhausted.
func (l *LoopHelper) Next() (Type, bool) {
	if l.index >= len(l.alternatives) {
		return nil, false
	}
	t := l.alternatives[l.index]
	l.index++
	return t, true
}

// Len reports how many alternatives this helper will iterate in total.
func (l *LoopHelper) Len() int { return len(l.alternatives) }

// ProgressingSubroutine is one link in the VM's active-call chain: the
// subroutine currently executing, its instruction cursor, and a back
// pointer to whoever called it. Ported from vm.h's ProgressingSubroutine.
type ProgressingSubroutine struct {
	Subroutine *SubroutineEntry
	Index      int // index into VM.subroutineTable, for narrowed/result bookkeeping

	IP    uint32
	End   uint32
	Depth int

	// Bindings holds the type-argument values the caller supplied (spec
	// §4.2): Call pops its argc operand count of stack values directly
	// into this slice, in push order. TypeArgument reads Bindings
	// sequentially (tracking its own cursor via TypeArguments below);
	// Loads reads it directly by index, for references that occur away
	// from the declaration's own TypeArgument prelude (e.g. inside a
	// conditional's Check).
	Bindings []Type

	// TypeArguments is the count of TypeArgument slots consumed from
	// Bindings so far, used both to find the next slot and by
	// TypeArgumentDefault to find the one just reserved.
	TypeArguments int

	// Locals holds Var/TypeVar-declared values, appended in declaration
	// order.
	Locals []Type

	// Inferred holds the bindings Extends produced the last time it
	// matched an Infer placeholder while evaluating this subroutine's
	// current conditional type (spec §4.1 `infer`): set by OpExtends,
	// read by OpLoadInferred while executing the Then branch. Scoped to
	// the subroutine rather than pushed/popped per-conditional, since a
	// conditional's Then always runs immediately after its own Extends
	// check in the same subroutine body.
	Inferred map[string]Type

	Previous *ProgressingSubroutine
}

// Frame is the operand-stack window for one active call: everything below
// Floor belongs to an enclosing frame and Return must never pop past it
// (spec invariant 1).
type Frame struct {
	Floor int // the frame's floor: sp value when this frame was pushed
	SP    int // current stack pointer within this frame's window

	// Variables is the count of named variable slots pinned at the start
	// of this frame (Var-declared locals), counted separately from
	// transient TupleMember/Frame-scoped pushes.
	Variables int

	Loop *LoopHelper // not set by the VM: Distribute iterates with a local LoopHelper

	Previous *Frame
}

// FrameFromFrame creates a new Frame whose floor is the current stack
// pointer of prev, i.e. the new frame starts empty right above wherever
// the enclosing frame's stack currently stands. Mirrors vm.h's
// Frame::fromFrame.
func FrameFromFrame(prev *Frame, sp int) *Frame {
	return &Frame{Floor: sp, SP: sp, Previous: prev}
}
