package engine

import "math/big"

// ---------------------------------------------------------------------------
// Context: A realm with its own globals, intrinsics and pending error
// ---------------------------------------------------------------------------

// Context is one execution realm on a Runtime: a global object, the
// class-prototype table, module hooks, the pending exception slot and the
// job queue. Contexts are reference counted independently of the Runtime;
// freeing the Runtime invalidates every Context regardless of outstanding
// duplicate counts, which is the caller's responsibility to respect.
type Context struct {
	rt       *Runtime
	refCount int

	global     Value
	classProto map[ClassID]Value
	errProtos  [numErrorKinds]Value

	pending    Value
	hasPending bool

	jobs *ringQueue[job]

	modules         map[string]Value
	moduleNormalize ModuleNormalizeFunc
	moduleLoader    ModuleLoaderFunc

	opaque any

	interruptCounter int
	frames           []stackFrame

	baseObjectsInstalled bool
	evalInstalled        bool

	freed bool
}

type stackFrame struct {
	name     string
	filename string
	line     int
	barrier  bool
}

// NewContextRaw creates a realm with a bare global object and no
// intrinsics; the host selectively calls the AddIntrinsic installers.
func NewContextRaw(rt *Runtime) *Context {
	ctx := &Context{
		rt:         rt,
		refCount:   1,
		classProto: make(map[ClassID]Value),
		jobs:       newRingQueue[job](),
		modules:    make(map[string]Value),
		pending:    Undefined,
	}
	for i := range ctx.errProtos {
		ctx.errProtos[i] = Undefined
	}
	ctx.global = ctx.newObjectValue(ClassObject, Null)
	rt.attachContext(ctx)
	return ctx
}

// NewContext creates a realm with the base intrinsics and the bootstrap
// evaluator installed.
func NewContext(rt *Runtime) *Context {
	ctx := NewContextRaw(rt)
	ctx.AddIntrinsicBaseObjects()
	ctx.AddIntrinsicEval()
	return ctx
}

// Runtime returns the owning Runtime.
func (ctx *Context) Runtime() *Runtime {
	return ctx.rt
}

// Dup increments the Context's reference count.
func (ctx *Context) Dup() *Context {
	ctx.refCount++
	return ctx
}

// Free releases one share of the Context. At zero every owned Value is
// released, queued jobs are dropped, and the Context detaches from its
// Runtime.
func (ctx *Context) Free() {
	ctx.refCount--
	if ctx.refCount > 0 {
		return
	}
	if ctx.freed {
		panic("engine: Context freed twice")
	}
	ctx.freed = true

	if ctx.hasPending {
		ctx.rt.FreeValue(ctx.pending)
		ctx.hasPending = false
	}
	for {
		j, ok := ctx.jobs.dequeue()
		if !ok {
			break
		}
		for _, a := range j.args {
			ctx.rt.FreeValue(a)
		}
	}
	for _, m := range ctx.modules {
		ctx.rt.FreeValue(m)
	}
	ctx.modules = nil
	for id, proto := range ctx.classProto {
		ctx.rt.FreeValue(proto)
		delete(ctx.classProto, id)
	}
	for i := range ctx.errProtos {
		ctx.rt.FreeValue(ctx.errProtos[i])
		ctx.errProtos[i] = Undefined
	}
	ctx.rt.FreeValue(ctx.global)
	ctx.global = Undefined

	ctx.rt.detachContext(ctx)
}

// ---------------------------------------------------------------------------
// Realm state accessors
// ---------------------------------------------------------------------------

// Global returns an owned share of the global object.
func (ctx *Context) Global() Value {
	return ctx.rt.DupValue(ctx.global)
}

// SetClassProto installs the prototype object for a class in this realm.
// Takes ownership of proto.
func (ctx *Context) SetClassProto(id ClassID, proto Value) {
	if old, ok := ctx.classProto[id]; ok {
		ctx.rt.FreeValue(old)
	}
	ctx.classProto[id] = proto
}

// GetClassProto returns an owned share of the class prototype, or Null.
func (ctx *Context) GetClassProto(id ClassID) Value {
	if proto, ok := ctx.classProto[id]; ok {
		return ctx.rt.DupValue(proto)
	}
	return Null
}

// SetOpaque attaches host data to the Context.
func (ctx *Context) SetOpaque(opaque any) {
	ctx.opaque = opaque
}

// Opaque returns the host data attached to the Context.
func (ctx *Context) Opaque() any {
	return ctx.opaque
}

// ---------------------------------------------------------------------------
// Primitive constructors that need a realm
// ---------------------------------------------------------------------------

// NewString creates a string Value.
func (ctx *Context) NewString(s string) Value {
	v, ok := ctx.rt.newCell(&stringPayload{s: s})
	if !ok {
		return ctx.ThrowOutOfMemory()
	}
	return v
}

// NewBigInt64 creates a bigint Value from a signed integer.
func (ctx *Context) NewBigInt64(n int64) Value {
	v, ok := ctx.rt.newCell(&bigIntPayload{v: big.NewInt(n)})
	if !ok {
		return ctx.ThrowOutOfMemory()
	}
	return v
}

// NewBigUint64 creates a bigint Value from an unsigned integer.
func (ctx *Context) NewBigUint64(n uint64) Value {
	v, ok := ctx.rt.newCell(&bigIntPayload{v: new(big.Int).SetUint64(n)})
	if !ok {
		return ctx.ThrowOutOfMemory()
	}
	return v
}

// NewSymbol creates a unique symbol Value with a description. Two
// symbols never compare equal as property keys, even with equal
// descriptions.
func (ctx *Context) NewSymbol(description string) Value {
	ctx.rt.nextSymbolID++
	v, ok := ctx.rt.newCell(&symbolPayload{description: description, id: ctx.rt.nextSymbolID})
	if !ok {
		return ctx.ThrowOutOfMemory()
	}
	return v
}

// stringContent extracts the Go string behind a string Value.
func stringContent(v Value) (string, bool) {
	if v.tag != TagString || v.cell == nil {
		return "", false
	}
	return v.cell.payload.(*stringPayload).s, true
}

// bigIntContent extracts the big.Int behind a bigint Value.
func bigIntContent(v Value) (*big.Int, bool) {
	if v.tag != TagBigInt || v.cell == nil {
		return nil, false
	}
	return v.cell.payload.(*bigIntPayload).v, true
}

// ---------------------------------------------------------------------------
// Interrupt polling and stack discipline
// ---------------------------------------------------------------------------

// interruptBudget bounds the cadence of interrupt-handler polls during
// script execution.
const interruptBudget = 256

// pollInterrupt runs the host interrupt handler at a bounded cadence.
// Returns true after raising the uncatchable abort error.
func (ctx *Context) pollInterrupt() bool {
	ctx.interruptCounter++
	if ctx.interruptCounter < interruptBudget {
		return false
	}
	ctx.interruptCounter = 0
	h := ctx.rt.interruptHandler
	if h == nil || !h(ctx.rt) {
		return false
	}
	ctx.ThrowInterrupted()
	return true
}

// pushFrame enters a script or native frame, enforcing the stack bound.
// Returns false after raising the uncatchable overflow error.
func (ctx *Context) pushFrame(f stackFrame) bool {
	if ctx.rt.stackOverflowed() {
		ctx.ThrowStackOverflow()
		return false
	}
	ctx.frames = append(ctx.frames, f)
	return true
}

func (ctx *Context) popFrame() {
	ctx.frames = ctx.frames[:len(ctx.frames)-1]
}

// backtrace renders the current frame stack, innermost first, stopping at
// a backtrace barrier.
func (ctx *Context) backtrace() string {
	out := ""
	for i := len(ctx.frames) - 1; i >= 0; i-- {
		f := ctx.frames[i]
		name := f.name
		if name == "" {
			name = "<anonymous>"
		}
		out += "    at " + name
		if f.filename != "" {
			out += " (" + f.filename + ")"
		}
		out += "\n"
		if f.barrier {
			break
		}
	}
	return out
}
