package engine

import (
	"unsafe"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Runtime: Process-wide owner of memory policy, classes, atoms and contexts
// ---------------------------------------------------------------------------

// Allocator is the accounting surface the engine charges heap activity
// through. Go owns the actual memory; the allocator decides whether a
// request fits and tracks usage, which lets hosts substitute pooling or
// limiting policies behind the uniform malloc/calloc/realloc/free surface.
type Allocator interface {
	Malloc(size int) bool
	Calloc(count, size int) bool
	Realloc(oldSize, newSize int) bool
	Free(size int)
	UsableSize(size int) int

	// Allocated returns the number of live accounted bytes.
	Allocated() int
}

// countingAllocator is the default Allocator: plain byte accounting with no
// policy of its own.
type countingAllocator struct {
	allocated int
}

func (a *countingAllocator) Malloc(size int) bool {
	if size < 0 {
		return false
	}
	a.allocated += size
	return true
}

func (a *countingAllocator) Calloc(count, size int) bool {
	if count < 0 || size < 0 {
		return false
	}
	return a.Malloc(count * size)
}

func (a *countingAllocator) Realloc(oldSize, newSize int) bool {
	if newSize < 0 || oldSize < 0 {
		return false
	}
	a.allocated += newSize - oldSize
	return true
}

func (a *countingAllocator) Free(size int) {
	a.allocated -= size
	if a.allocated < 0 {
		a.allocated = 0
	}
}

func (a *countingAllocator) UsableSize(size int) int { return size }
func (a *countingAllocator) Allocated() int          { return a.allocated }

// RuntimeFinalizer is a teardown callback registered with
// AddRuntimeFinalizer. Finalizers run in LIFO order during Free.
type RuntimeFinalizer func(rt *Runtime)

// InterruptHandler is polled at a bounded cadence during script execution.
// Returning true aborts the running script with an uncatchable error at the
// next poll point.
type InterruptHandler func(rt *Runtime) bool

// Runtime owns the allocator, the garbage-collection policy, the atom
// table, the class registry and every Context created on it. One OS thread
// runs engine code inside a given Runtime at a time; the Runtime performs
// no internal locking beyond the atom table.
type Runtime struct {
	id    string
	alloc Allocator

	memoryLimit  int
	gcThreshold  int
	gcBytes      int
	maxStackSize int
	stackTop     uintptr

	atoms   *atomTable
	classes map[ClassID]*Class
	nextID  ClassID

	nextSymbolID uint64

	// Live heap cells, for the cycle collector and leak diagnostics.
	cells map[*cell]struct{}

	contexts   []*Context
	finalizers []RuntimeFinalizer

	interruptHandler InterruptHandler
	sabFuncs         SABFunctions

	dumpFlags DumpFlags
	logger    commonlog.Logger

	inGC  bool
	freed bool
}

// defaultGCThreshold triggers an automatic pass after 256 KiB of cell
// allocation since the last collection.
const defaultGCThreshold = 256 * 1024

// NewRuntime creates a Runtime with the default accounting allocator.
func NewRuntime() *Runtime {
	return NewRuntime2(&countingAllocator{})
}

// NewRuntime2 creates a Runtime with a host-supplied allocator.
func NewRuntime2(alloc Allocator) *Runtime {
	rt := &Runtime{
		id:          uuid.NewString(),
		alloc:       alloc,
		gcThreshold: defaultGCThreshold,
		atoms:       newAtomTable(),
		classes:     make(map[ClassID]*Class),
		nextID:      firstHostClassID,
		cells:       make(map[*cell]struct{}),
		logger:      commonlog.GetLogger("lumen.engine"),
	}
	rt.UpdateStackTop()
	rt.registerBuiltinClasses()
	return rt
}

// ID returns the runtime's identity used in diagnostics output.
func (rt *Runtime) ID() string {
	return rt.id
}

// ---------------------------------------------------------------------------
// Live-tunable policy
// ---------------------------------------------------------------------------

// SetMemoryLimit caps accounted allocation. 0 means unlimited. A breach
// behaves exactly like true exhaustion: an out-of-memory exception, never a
// process abort.
func (rt *Runtime) SetMemoryLimit(limit int) {
	rt.memoryLimit = limit
}

// SetGCThreshold sets the number of bytes allocated since the last
// collection before an automatic pass triggers. 0 disables automatic GC.
func (rt *Runtime) SetGCThreshold(threshold int) {
	rt.gcThreshold = threshold
}

// SetMaxStackSize bounds native stack growth during script execution.
// 0 disables the check.
func (rt *Runtime) SetMaxStackSize(size int) {
	rt.maxStackSize = size
}

// UpdateStackTop refreshes the stack-top marker. Must be called after
// migrating the Runtime to another thread or fiber before any script runs,
// or overflow detection is unreliable. The marker is approximate: Go may
// move goroutine stacks, so it is only trusted between refreshes.
func (rt *Runtime) UpdateStackTop() {
	rt.stackTop = stackPointer()
}

func stackPointer() uintptr {
	var probe byte
	return uintptr(unsafe.Pointer(&probe))
}

// stackOverflowed reports whether the current native stack excursion from
// the recorded top exceeds the configured bound.
func (rt *Runtime) stackOverflowed() bool {
	if rt.maxStackSize <= 0 {
		return false
	}
	sp := stackPointer()
	var used uintptr
	if sp < rt.stackTop {
		used = rt.stackTop - sp
	} else {
		used = sp - rt.stackTop
	}
	return used > uintptr(rt.maxStackSize)
}

// SetInterruptHandler installs the cooperative cancellation callback.
// Passing nil removes it.
func (rt *Runtime) SetInterruptHandler(h InterruptHandler) {
	rt.interruptHandler = h
}

// ---------------------------------------------------------------------------
// Allocation accounting
// ---------------------------------------------------------------------------

// allocBytes charges size bytes, honoring the memory limit. A false return
// means the caller must degrade to an out-of-memory exception.
func (rt *Runtime) allocBytes(size int) bool {
	if rt.memoryLimit > 0 && rt.alloc.Allocated()+size > rt.memoryLimit {
		return false
	}
	return rt.alloc.Malloc(size)
}

// MemoryUsage reports accounted bytes, live cells and live atoms.
func (rt *Runtime) MemoryUsage() (bytes, cells, atoms int) {
	return rt.alloc.Allocated(), len(rt.cells), rt.atoms.liveCount()
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// AddRuntimeFinalizer registers a LIFO-ordered cleanup callback invoked
// during Free, after which the Runtime is unusable.
func (rt *Runtime) AddRuntimeFinalizer(fn RuntimeFinalizer) {
	rt.finalizers = append(rt.finalizers, fn)
}

// Free tears the Runtime down: LIFO finalizers run first, then leak
// conditions (Contexts or Values outliving the Runtime) are surfaced
// through the diagnostic dumps. Calling Free with outstanding Contexts or
// Values is a host programming error; it is reported, not repaired.
func (rt *Runtime) Free() {
	if rt.freed {
		panic("engine: Runtime freed twice")
	}
	for i := len(rt.finalizers) - 1; i >= 0; i-- {
		rt.finalizers[i](rt)
	}
	rt.finalizers = nil

	// Freed realms can leave reference cycles behind (prototype tables,
	// constructor back-links); collect them before judging leaks.
	rt.RunGC()

	rt.dumpLeaks()
	rt.freed = true
}

// LeakCount returns the number of Contexts plus heap cells still alive.
// Zero after every balanced teardown.
func (rt *Runtime) LeakCount() int {
	return len(rt.contexts) + len(rt.cells)
}

func (rt *Runtime) attachContext(ctx *Context) {
	rt.contexts = append(rt.contexts, ctx)
}

func (rt *Runtime) detachContext(ctx *Context) {
	for i, c := range rt.contexts {
		if c == ctx {
			rt.contexts = append(rt.contexts[:i], rt.contexts[i+1:]...)
			return
		}
	}
}
