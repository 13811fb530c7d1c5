package tyvm

// Pool is a typed bump allocator: it hands out *T values carved out of
// fixed-size blocks, reuses deallocated slots via a free list, and can
// reset an entire run's worth of allocations in O(block count) rather than
// freeing every object individually.
//
// Ported from the original checker's PoolSingle<T, Items, GCQueueSize,
// BlockSize> (pool_single.h). The C++ version unions a value slot with an
// intrusive prev/next pointer pair so a freed slot can double as a free
// list node without a separate allocation; Go has no union types and its
// GC already reclaims individual objects cheaply, so the free list here
// holds plain *T values instead of reinterpreting slot memory. The block
// structure and the batched "gc queue, flush later" discipline are kept,
// because this pool's job is not to work around Go's allocator but to
// guarantee O(1) amortized allocation of type objects and a single,
// predictable Reset point between checker runs (spec §4.3).
type Pool[T any] struct {
	blockSize int

	blocks  [][]T
	cursor  int // index into the last block's backing slice
	active  int

	free []*T

	gcQueue []*T
}

// NewPool creates a Pool whose blocks hold blockSize elements each. A
// blockSize of 4096 matches the original's default Items.
func NewPool[T any](blockSize int) *Pool[T] {
	if blockSize <= 0 {
		blockSize = 4096
	}
	return &Pool[T]{blockSize: blockSize}
}

// Allocate returns a pointer to a fresh, zero-valued T, reusing a freed
// slot if one is available before carving a new one out of the current
// block.
func (p *Pool[T]) Allocate() *T {
	p.active++
	if n := len(p.free); n > 0 {
		slot := p.free[n-1]
		p.free = p.free[:n-1]
		var zero T
		*slot = zero
		return slot
	}
	if len(p.blocks) == 0 || p.cursor >= len(p.blocks[len(p.blocks)-1]) {
		p.blocks = append(p.blocks, make([]T, p.blockSize))
		p.cursor = 0
	}
	block := p.blocks[len(p.blocks)-1]
	slot := &block[p.cursor]
	p.cursor++
	return slot
}

// Deallocate returns p's slot to the free list for reuse by a later
// Allocate call. It does not shrink memory usage; that only happens via
// Reset.
func (p *Pool[T]) Deallocate(v *T) {
	if v == nil {
		return
	}
	p.active--
	p.free = append(p.free, v)
}

// GC queues v for deferred destruction, batching many individually-dead
// objects into one Deallocate pass via Flush. Mirrors PoolSingle::gc /
// gcFlush: useful when a caller (e.g. the VM unwinding a failed
// Distribute) knows a batch of types just became garbage but would rather
// not pay the free-list bookkeeping cost per item as it finds them.
func (p *Pool[T]) GC(v *T) {
	p.gcQueue = append(p.gcQueue, v)
}

// Flush deallocates every object queued via GC since the last Flush.
func (p *Pool[T]) Flush() {
	for _, v := range p.gcQueue {
		p.Deallocate(v)
	}
	p.gcQueue = p.gcQueue[:0]
}

// Reset reclaims every allocation made since the pool was created (or last
// Reset). Only the first block is kept and reused by the next run's
// allocations; any later blocks are dropped, and Allocate creates fresh
// blocks again once the first fills up. This is the "whole-run clear"
// between VM runs.
func (p *Pool[T]) Reset() {
	p.active = 0
	p.free = p.free[:0]
	p.gcQueue = p.gcQueue[:0]
	if len(p.blocks) > 0 {
		p.blocks = p.blocks[:1]
	}
	p.cursor = 0
}

// Active returns the number of currently-allocated (not freed) objects.
func (p *Pool[T]) Active() int { return p.active }

// Blocks returns the number of backing blocks currently held, for tests
// and diagnostics.
func (p *Pool[T]) Blocks() int { return len(p.blocks) }
