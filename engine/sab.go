package engine

// ---------------------------------------------------------------------------
// SharedArrayBuffer: host-managed shared byte storage
// ---------------------------------------------------------------------------

// SABFunctions are the host hooks managing the lifetime of shared buffer
// storage. The engine never copies shared bytes; Dup and Free adjust the
// host's own sharing count so a buffer can outlive any single Runtime.
type SABFunctions struct {
	Alloc func(size int) []byte
	Free  func(data []byte)
	Dup   func(data []byte)
}

// sabPayload is the opaque state of a ClassSharedArrayBuffer object.
type sabPayload struct {
	data []byte
}

// SetSharedArrayBufferFunctions installs the host hooks. Without them,
// shared buffers fall back to plain Go slices with no cross-runtime
// lifetime management.
func (rt *Runtime) SetSharedArrayBufferFunctions(fns SABFunctions) {
	rt.sabFuncs = fns
}

// NewSharedArrayBuffer creates a shared buffer object of the given size,
// allocating the storage through the host hooks when installed.
func (ctx *Context) NewSharedArrayBuffer(size int) Value {
	if size < 0 {
		return ctx.ThrowRangeError("invalid SharedArrayBuffer size %d", size)
	}
	var data []byte
	if ctx.rt.sabFuncs.Alloc != nil {
		data = ctx.rt.sabFuncs.Alloc(size)
		if data == nil {
			return ctx.ThrowOutOfMemory()
		}
	} else {
		data = make([]byte, size)
	}
	return ctx.newSharedArrayBuffer(data)
}

// newSharedArrayBuffer wraps already-owned shared storage. The deserializer
// attaches transferred buffers through this path.
func (ctx *Context) newSharedArrayBuffer(data []byte) Value {
	obj := ctx.NewObjectClass(ClassSharedArrayBuffer)
	if obj.IsException() {
		if ctx.rt.sabFuncs.Free != nil {
			ctx.rt.sabFuncs.Free(data)
		}
		return obj
	}
	SetOpaque(obj, &sabPayload{data: data})
	return obj
}

// SharedArrayBufferBytes returns the live backing bytes of a shared buffer
// object. The slice aliases shared storage.
func (ctx *Context) SharedArrayBufferBytes(v Value) ([]byte, bool) {
	opaque, ok := ctx.GetOpaque2(v, ClassSharedArrayBuffer)
	if !ok {
		return nil, false
	}
	p, ok := opaque.(*sabPayload)
	if !ok {
		ctx.ThrowTypeError("detached SharedArrayBuffer")
		return nil, false
	}
	return p.data, true
}

// finalizeSharedArrayBuffer releases the shared storage through the host
// Free hook when the last engine reference drops.
func finalizeSharedArrayBuffer(rt *Runtime, v Value) {
	p, ok := GetOpaque(v, ClassSharedArrayBuffer).(*sabPayload)
	if !ok {
		return
	}
	if rt.sabFuncs.Free != nil {
		rt.sabFuncs.Free(p.data)
	}
	p.data = nil
}
