package tyvm

import (
	"fmt"

	"go.uber.org/zap"
)

// VM executes a decoded BytecodeImage: a recursive-descent interpreter over
// the linear, self-synchronizing instruction stream described in
// bytecode.go. Subroutine calls and Distribute's per-alternative re-entry
// are implemented as Go function recursion (execBody calling itself),
// mirroring the teacher's exec.go dispatch loop but using the host call
// stack in place of a hand-rolled call-frame array, since every body here
// runs to completion and leaves exactly one Type behind (there is no
// register file to save/restore across a call the way the teacher's ISA
// requires).
//
// Diagnostics are always appended to Module.Errors in execution order and
// never interrupt the run (spec invariant: a failed check degrades to
// Never/Unknown and keeps going), the same "collect everything, then
// report" contract the teacher's exec.go uses for its own error log.
type VM struct {
	image  *BytecodeImage
	module *Module
	log    *zap.SugaredLogger

	stack []Type
	frame *Frame
	subr  *ProgressingSubroutine

	framePool *Pool[Frame]
	subrPool  *Pool[ProgressingSubroutine]

	pendingRest     bool
	pendingOptional bool
	pendingReadonly bool

	// narrowed records Set's override table, keyed by the subroutine table
	// address it targets (spec §4.2 "narrowed override").
	narrowed map[uint32]Type

	// memo caches zero-type-argument subroutine results, keyed by body
	// address (spec §4.3 "memoization of zero-argument subroutine results").
	memo map[uint32]Type

	depth           int
	maxDepth        int
	instructions    int
	maxInstructions int
}

// defaultMaxDepth and defaultMaxInstructions bound recursive-type checking
// so a cyclic or combinatorially exploding program degrades to a
// diagnostic (ExcessivelyDeep / CombinatorialExplosion) instead of
// exhausting the Go call stack or looping forever. Grounded in the
// teacher's own bounded-execution guards in exec.go.
const (
	defaultMaxDepth        = 1000
	defaultMaxInstructions = 2_000_000
)

// Options bounds a VM run the way the teacher sizes its stack/register
// segment as constants at the top of vm.go — except these are per-run
// rather than compiled in, since an embedding host may want a tighter
// leash on a single untrusted program without recompiling. The zero value
// of each field means "use the default".
type Options struct {
	// MaxDepth caps subroutine call recursion (spec §4.3); exceeding it
	// degrades the in-flight check to Never plus an ExcessivelyDeep
	// diagnostic instead of exhausting the host call stack.
	MaxDepth int
	// MaxInstructions caps the total opcodes dispatched across a run,
	// guarding against a runaway Distribute/Instantiate combinatorial
	// expansion (spec §4.2 "Cartesian-product cap").
	MaxInstructions int
}

// NewVM creates a VM bound to image, reporting diagnostics into module. log
// may be nil. opts is optional; pass one *Options to override the default
// recursion-depth and instruction-count bounds, or omit it to use them.
func NewVM(image *BytecodeImage, module *Module, log *zap.SugaredLogger, opts ...*Options) *VM {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	maxDepth, maxInstructions := defaultMaxDepth, defaultMaxInstructions
	if len(opts) > 0 && opts[0] != nil {
		if opts[0].MaxDepth > 0 {
			maxDepth = opts[0].MaxDepth
		}
		if opts[0].MaxInstructions > 0 {
			maxInstructions = opts[0].MaxInstructions
		}
	}
	return &VM{
		image:           image,
		module:          module,
		log:             log,
		framePool:       NewPool[Frame](256),
		subrPool:        NewPool[ProgressingSubroutine](256),
		narrowed:        map[uint32]Type{},
		memo:            map[uint32]Type{},
		maxDepth:        maxDepth,
		maxInstructions: maxInstructions,
	}
}

// Run executes the image's main subroutine to completion. A non-nil error
// indicates a host-side fault (malformed image, stack discipline violated
// by a compiler bug); problems in the checked program itself are reported
// as diagnostics on the VM's Module and never surface as an error here.
func (vm *VM) Run() error {
	vm.log.Debugw("running image", "main", vm.image.MainAddress)
	vm.framePool.Reset()
	vm.subrPool.Reset()
	vm.memo = map[uint32]Type{}
	vm.instructions = 0
	_, err := vm.call(vm.image.MainAddress, nil)
	return err
}

// Step executes exactly one instruction starting at ip and returns the ip
// execution should resume at next, for a debugger/stepper (spec §4.5,
// ported from the teacher's ExecProgramDebugMode/singleStep contract). It
// shares no state with Run — callers driving Step must manage their own
// VM instance and call sequence.
func (vm *VM) Step(ip uint32) (next uint32, done bool, err error) {
	if vm.subr == nil {
		vm.subr = vm.subrPool.Allocate()
		vm.subr.IP = ip
	}
	return vm.dispatch(ip)
}

func (vm *VM) push(t Type) { vm.stack = append(vm.stack, t) }

func (vm *VM) pop() Type {
	n := len(vm.stack)
	if n == 0 {
		panic(errStackUnderflow)
	}
	t := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return t
}

// popN pops n values and returns them in their original push order.
func (vm *VM) popN(n int) []Type {
	if n == 0 {
		return nil
	}
	if len(vm.stack) < n {
		panic(errStackUnderflow)
	}
	out := make([]Type, n)
	copy(out, vm.stack[len(vm.stack)-n:])
	vm.stack = vm.stack[:len(vm.stack)-n]
	return out
}

// collectFromFrame pops everything pushed since f.Floor, in push order.
func (vm *VM) collectFromFrame(f *Frame) []Type {
	n := len(vm.stack) - f.Floor
	if n < 0 {
		panic(errStackUnderflow)
	}
	return vm.popN(n)
}

// pushFrame opens a new aggregate-construction frame (Union/Tuple/
// ObjectLiteral/...), carved out of framePool rather than the Go heap
// directly, mirroring the bump-allocate-and-batch-reset discipline
// arena.go's Pool exists for (spec §4.3).
func (vm *VM) pushFrame() {
	f := vm.framePool.Allocate()
	*f = *FrameFromFrame(vm.frame, len(vm.stack))
	vm.frame = f
}

// popFrame collects everything the current frame accumulated, restores the
// enclosing frame, and returns the popped frame's slot to framePool.
func (vm *VM) popFrame() []Type {
	members := vm.collectFromFrame(vm.frame)
	done := vm.frame
	vm.frame = vm.frame.Previous
	vm.framePool.Deallocate(done)
	return members
}

// call invokes the subroutine at addr with the given type-argument
// bindings (already evaluated Type values, in declaration order) and runs
// it to completion, returning its single result. Zero-argument results are
// memoized (spec §4.3); recursion past maxDepth degrades to Never plus an
// ExcessivelyDeep diagnostic rather than a host panic.
func (vm *VM) call(addr uint32, bindings []Type) (result Type, err error) {
	if narrowed, ok := vm.narrowed[addr]; ok {
		return narrowed, nil
	}
	if len(bindings) == 0 {
		if cached, ok := vm.memo[addr]; ok {
			return cached, nil
		}
	}

	if vm.depth >= vm.maxDepth {
		vm.module.Reportf(ExcessivelyDeep, addr)
		return NewNever(addr), nil
	}

	parent := vm.subr
	subr := vm.subrPool.Allocate()
	subr.IP, subr.Depth, subr.Bindings, subr.Previous = addr, vm.depth+1, bindings, parent
	vm.subr = subr
	vm.depth++
	defer func() {
		vm.depth--
		vm.subr = parent
		vm.subrPool.Deallocate(subr)
	}()

	sp := len(vm.stack)
	result, err = vm.execBody(addr)
	if err != nil {
		return nil, err
	}
	// Drop whatever the body left below its result (its TypeArgument
	// slots), so the caller sees the stack as it was before the call.
	if len(vm.stack) > sp {
		vm.stack = vm.stack[:sp]
	}

	if len(bindings) == 0 {
		vm.memo[addr] = result
	}
	return result, nil
}

// execBody runs instructions sequentially from start until an OpReturn,
// which pops and returns exactly one Type: every subroutine body, and
// every Distribute loop-body iteration, obeys this same one-value
// contract (see compile.go's emission of a trailing Return/Void+Return in
// each case).
func (vm *VM) execBody(start uint32) (Type, error) {
	ip := start
	for {
		vm.instructions++
		if vm.instructions > vm.maxInstructions {
			vm.module.Report(CombinatorialExplosion.Message(), ip)
			return NewNever(ip), nil
		}

		next, returned, err := vm.dispatch(ip)
		if err != nil {
			return nil, err
		}
		if returned {
			return vm.pop(), nil
		}
		ip = next
	}
}

// dispatch executes the single instruction at ip. It returns the ip to
// resume at, or (ignored, true) if the instruction was Return (the caller
// — execBody — is responsible for popping the result in that case).
func (vm *VM) dispatch(ip uint32) (next uint32, returned bool, err error) {
	if vm.subr == nil {
		return 0, false, errNoActiveSubroutine
	}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("tyvm: internal error at ip %d: %v", ip, r)
		}
	}()

	bin := vm.image.Bin
	op := Opcode(bin[ip])
	width := op.OperandWidth()

	switch op {
	// ---- nullary type producers ---------------------------------------
	case OpNever:
		vm.push(NewNever(ip))
	case OpAny:
		vm.push(NewAny(ip))
	case OpUnknown:
		vm.push(NewUnknown(ip, false))
	case OpVoid:
		vm.push(NewVoid(ip))
	case OpObject:
		vm.push(NewObject(ip))
	case OpString:
		vm.push(NewString(ip))
	case OpNumber:
		vm.push(NewNumber(ip))
	case OpBoolean:
		vm.push(NewBoolean(ip))
	case OpBigInt:
		vm.push(NewBigInt(ip))
	case OpSymbol:
		vm.push(NewSymbol(ip))
	case OpNull:
		vm.push(NewNull(ip))
	case OpUndefined:
		vm.push(NewUndefined(ip))
	case OpTrue:
		vm.push(NewLiteral(ip, LiteralBoolean, "true"))
	case OpFalse:
		vm.push(NewLiteral(ip, LiteralBoolean, "false"))

	// ---- literal producers (string operand interned in storage) -------
	case OpStringLiteral:
		vm.push(NewLiteral(ip, LiteralString, readStorage(bin, readUint32(bin, ip+1))))
	case OpNumberLiteral:
		vm.push(NewLiteral(ip, LiteralNumber, readStorage(bin, readUint32(bin, ip+1))))
	case OpBigIntLiteral:
		vm.push(NewLiteral(ip, LiteralBigInt, readStorage(bin, readUint32(bin, ip+1))))

	// ---- flag setters, consumed by the next member-constructing op ----
	case OpRest:
		vm.pendingRest = true
	case OpOptional:
		vm.pendingOptional = true
	case OpReadonly:
		vm.pendingReadonly = true

	// ---- frame / aggregate construction --------------------------------
	case OpFrame:
		vm.pushFrame()

	case OpParameter:
		ty := vm.pop()
		nameLit := vm.pop().(*Literal)
		if vm.pendingRest {
			ty = NewRest(ip, ty)
		}
		p := NewParameter(ip, nameLit.Text, ty)
		p.Optional = vm.pendingOptional
		vm.pendingRest, vm.pendingOptional = false, false
		vm.push(p)

	case OpTupleMember:
		ty := vm.pop()
		nameLit := vm.pop().(*Literal)
		m := NewTupleMember(ip, ty)
		m.Name = nameLit.Text
		m.Rest = vm.pendingRest
		m.Optional = vm.pendingOptional
		vm.pendingRest, vm.pendingOptional = false, false
		vm.push(m)

	case OpTupleSpread:
		ty := vm.pop()
		if spread, ok := ty.(*Tuple); ok {
			for _, m := range spread.Members {
				vm.push(m)
			}
		} else {
			vm.module.Report("Spread element in a tuple type must resolve to a tuple.", ip)
		}

	case OpPropertySignature:
		ty := vm.pop()
		nameLit := vm.pop().(*Literal)
		p := NewPropertySignature(ip, nameLit.Text, ty)
		p.Optional = vm.pendingOptional
		p.Readonly = vm.pendingReadonly
		vm.pendingOptional, vm.pendingReadonly = false, false
		vm.push(p)

	case OpProperty:
		ty := vm.pop()
		nameLit := vm.pop().(*Literal)
		p := NewProperty(ip, nameLit.Text, ty)
		p.Optional = vm.pendingOptional
		p.Readonly = vm.pendingReadonly
		vm.pendingOptional, vm.pendingReadonly = false, false
		vm.push(p)

	case OpInitializer:
		initVal := vm.pop()
		p, ok := vm.pop().(*Parameter)
		if !ok {
			vm.module.Report("Initializer applied to a non-parameter.", ip)
			vm.push(NewUnknown(ip, false))
		} else {
			p.Initializer = initVal
			vm.push(p)
		}

	case OpUnion:
		members := vm.popFrame()
		vm.push(buildUnion(ip, members))

	case OpIntersection:
		members := vm.popFrame()
		vm.push(buildIntersection(ip, members))

	case OpArray:
		element := vm.pop()
		vm.push(NewArray(ip, element))

	case OpTuple:
		members := vm.popFrame()
		tms := make([]*TupleMember, len(members))
		for i, m := range members {
			tms[i] = m.(*TupleMember)
		}
		vm.push(NewTuple(ip, tms))

	case OpObjectLiteral:
		members := vm.popFrame()
		vm.push(NewObjectLiteral(ip, members))

	case OpTemplateLiteral:
		segments := vm.popFrame()
		vm.push(evalTemplateLiteral(ip, segments))

	case OpFunction:
		returnType := vm.pop()
		members := vm.popFrame()
		params := make([]*Parameter, len(members))
		for i, m := range members {
			params[i] = m.(*Parameter)
		}
		vm.push(&Function{base: base{KindFunction, ip}, Parameters: params, ReturnType: returnType})

	case OpFunctionRef:
		vm.push(NewFunctionRef(ip, readUint32(bin, ip+1)))

	// ---- stack/local control --------------------------------------------
	case OpReturn:
		return 0, true, nil

	case OpVar:
		vm.subr.Locals = append(vm.subr.Locals, vm.pop())
	case OpTypeVar:
		vm.subr.Locals = append(vm.subr.Locals, vm.pop())

	case OpLoads:
		frameOff := readUint16(bin, ip+1)
		idx := readUint16(bin, ip+3)
		s := vm.subr
		for i := uint16(0); i < frameOff && s.Previous != nil; i++ {
			s = s.Previous
		}
		if int(idx) < len(s.Bindings) {
			vm.push(s.Bindings[idx])
		} else {
			vm.push(NewUnknown(ip, true))
		}

	case OpLoadLocal:
		locals := vm.subr.Locals
		if len(locals) == 0 {
			vm.push(NewUnknown(ip, true))
		} else {
			vm.push(locals[len(locals)-1])
		}

	case OpAssign:
		declared := vm.pop()
		value := vm.pop()
		if !Extends(value, declared, &ExtendableStack{}) {
			vm.module.Reportf(TypeNotAssignable, value.IP(), Stringify(value), Stringify(declared))
		}

	case OpDup:
		top := vm.stack[len(vm.stack)-1]
		vm.push(top)

	case OpWiden:
		vm.push(Widen(vm.pop()))

	// ---- control flow -----------------------------------------------------
	case OpJump:
		return readUint32(bin, ip+1), false, nil

	case OpJumpCondition:
		thenAddr := readUint16(bin, ip+1)
		elseAddr := readUint16(bin, ip+3)
		marker, ok := vm.pop().(*boolMarker)
		cond := ok && marker.value
		if cond {
			return uint32(thenAddr), false, nil
		}
		return uint32(elseAddr), false, nil

	case OpCall, OpTailCall:
		addr := readUint32(bin, ip+1)
		argc := readUint16(bin, ip+5)
		bindings := vm.popN(int(argc))
		result, cerr := vm.call(addr, bindings)
		if cerr != nil {
			return 0, false, cerr
		}
		vm.push(result)

	case OpDistribute:
		loopBody := readUint32(bin, ip+1)
		checkType := vm.pop()
		loop := NewLoopHelper(checkType)
		var results []Type
		for {
			alt, ok := loop.Next()
			if !ok {
				break
			}
			vm.push(alt)
			if vm.depth >= vm.maxDepth {
				vm.module.Reportf(ExcessivelyDeep, ip)
				results = append(results, NewNever(ip))
				continue
			}
			vm.subr.Locals = append(vm.subr.Locals, alt)
			vm.depth++
			r, derr := vm.execBody(loopBody)
			vm.depth--
			vm.subr.Locals = vm.subr.Locals[:len(vm.subr.Locals)-1]
			if derr != nil {
				return 0, false, derr
			}
			results = append(results, r)
		}
		vm.push(buildUnion(ip, results))

	// ---- generics / instantiation ------------------------------------------
	case OpTypeArgument:
		idx := vm.subr.TypeArguments
		vm.subr.TypeArguments++
		if idx < len(vm.subr.Bindings) {
			vm.push(vm.subr.Bindings[idx])
		} else {
			vm.push(NewUnknown(ip, true))
		}

	case OpTypeArgumentDefault:
		defaultBody := readUint32(bin, ip+1)
		top := vm.stack[len(vm.stack)-1]
		if u, ok := top.(*Unknown); ok && u.UnprovidedArgument {
			vm.pop()
			r, derr := vm.execBody(defaultBody)
			if derr != nil {
				return 0, false, derr
			}
			for len(vm.subr.Bindings) < vm.subr.TypeArguments {
				vm.subr.Bindings = append(vm.subr.Bindings, NewUnknown(ip, true))
			}
			vm.subr.Bindings[vm.subr.TypeArguments-1] = r
			vm.push(r)
		}

	case OpInstantiate:
		argc := readUint16(bin, ip+1)
		bindings := vm.popN(int(argc))
		callee := vm.pop()
		if ref, ok := callee.(*FunctionRef); ok {
			result, ierr := vm.call(ref.Address, bindings)
			if ierr != nil {
				return 0, false, ierr
			}
			vm.push(result)
		} else {
			vm.push(callee)
		}

	case OpSet:
		addr := readUint32(bin, ip+1)
		vm.narrowed[addr] = vm.pop()

	// ---- operators / checks -------------------------------------------------
	case OpExtends:
		right := vm.pop()
		left := vm.pop()
		extendStack := &ExtendableStack{}
		ok := Extends(left, right, extendStack)
		if extendStack.Infer != nil {
			vm.subr.Inferred = extendStack.Infer
		}
		vm.push(&boolMarker{value: ok})

	case OpInfer:
		name := vm.pop().(*Literal)
		vm.push(NewInfer(ip, name.Text))

	case OpLoadInferred:
		name := vm.pop().(*Literal)
		if t, ok := vm.subr.Inferred[name.Text]; ok {
			vm.push(t)
			break
		}
		vm.push(NewUnknown(ip, true))

	case OpIndexAccess:
		index := vm.pop()
		obj := vm.pop()
		vm.push(IndexAccess(obj, index, ip))

	case OpCallExpression:
		argc := readUint16(bin, ip+1)
		args := vm.popN(int(argc))
		callee := vm.pop()
		fn, ok := callee.(*Function)
		if !ok {
			vm.module.Reportf(KindMismatch, ip, Stringify(callee))
			vm.push(NewUnknown(ip, false))
			break
		}
		for i, arg := range args {
			if i >= len(fn.Parameters) {
				break
			}
			param := fn.Parameters[i]
			if !Extends(arg, param.Type, &ExtendableStack{}) {
				vm.module.Reportf(ArgumentMissing, arg.IP(), Stringify(arg), Stringify(param.Type))
			}
		}
		vm.push(fn.ReturnType)

	case OpError:
		code := ErrorCode(readUint16(bin, ip+1))
		vm.module.Report(code.Message(), ip)

	// ---- meta ---------------------------------------------------------------
	case OpNoop:
		// no-op

	case OpHalt:
		return 0, true, nil

	default:
		return 0, false, errUnknownOpcode
	}

	return ip + 1 + uint32(width), false, nil
}

// boolMarker is an internal-only VM value (never exposed to Stringify or
// the assignability engine) carrying Extends's result across the stack to
// JumpCondition, keeping the surface type system's KindBoolean reserved
// for the actual `boolean` type rather than overloading it as a condition
// flag.
type boolMarker struct {
	base
	value bool
}

func buildUnion(ip uint32, members []Type) Type {
	filtered := make([]Type, 0, len(members))
	for _, m := range members {
		if m.Kind() == KindNever {
			continue
		}
		filtered = append(filtered, m)
	}
	return UnboxUnion(NewUnion(ip, filtered))
}

// buildIntersection merges an all-ObjectLiteral intersection into a single
// ObjectLiteral (later members winning on name collision, last-one-wins);
// anything else falls back to a generic Intersection, which the
// assignability engine can only check reflexively (spec §4.4 non-goal:
// full distributivity over intersections is out of scope).
func buildIntersection(ip uint32, parts []Type) Type {
	allObjects := true
	for _, p := range parts {
		if _, ok := p.(*ObjectLiteral); !ok {
			allObjects = false
			break
		}
	}
	if !allObjects {
		return NewIntersection(ip, parts)
	}

	byName := map[string]Type{}
	var order []string
	for _, p := range parts {
		obj := p.(*ObjectLiteral)
		for _, m := range obj.Members {
			name := getName(m)
			if name == "" {
				continue
			}
			if _, seen := byName[name]; !seen {
				order = append(order, name)
			}
			byName[name] = m
		}
	}
	members := make([]Type, len(order))
	for i, name := range order {
		members[i] = byName[name]
	}
	return NewObjectLiteral(ip, members)
}

// evalTemplateLiteral performs the Cartesian-product expansion spec §4.2
// describes: literal runs are concatenated as-is, a union segment fans out
// every alternative, a Never segment collapses the whole literal to Never,
// and a segment with no statically-enumerable text (a bare `string`/
// `number`, an unresolved Infer) widens the result to `string`. Ported in
// spirit from vm.h's handleTemplateLiteral/CartesianProduct; this module
// implements the full expansion rather than the stub the original left in
// place, since spec.md's diagnostics require an actual rendered type.
func evalTemplateLiteral(ip uint32, segments []Type) Type {
	acc := []string{""}
	for _, seg := range segments {
		if seg.Kind() == KindNever {
			return NewNever(ip)
		}

		var texts []string
		dynamic := false
		switch s := seg.(type) {
		case *Literal:
			texts = []string{s.Text}
		case *Union:
			for _, alt := range s.Types {
				if alt.Kind() == KindNever {
					continue
				}
				if t, ok := literalSegmentText(alt); ok {
					texts = append(texts, t)
				} else {
					dynamic = true
				}
			}
		default:
			if t, ok := literalSegmentText(seg); ok {
				texts = []string{t}
			} else {
				dynamic = true
			}
		}

		if dynamic {
			return NewString(ip)
		}
		if len(texts) == 0 {
			return NewNever(ip)
		}

		next := make([]string, 0, len(acc)*len(texts))
		for _, prefix := range acc {
			for _, t := range texts {
				next = append(next, prefix+t)
			}
		}
		acc = next
	}

	alts := make([]Type, len(acc))
	for i, s := range acc {
		alts[i] = NewLiteral(ip, LiteralString, s)
	}
	return UnboxUnion(NewUnion(ip, alts))
}

func literalSegmentText(t Type) (string, bool) {
	if lit, ok := t.(*Literal); ok {
		return lit.Text, true
	}
	return "", false
}
