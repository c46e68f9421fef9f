package engine

import "math/big"

// ---------------------------------------------------------------------------
// Heap cells: the shared storage behind reference-counted Values
// ---------------------------------------------------------------------------

// cell is the header of every reference-counted heap allocation. The payload
// carries the kind-specific state (string bytes, property table, module
// bindings, ...).
type cell struct {
	refCount int
	payload  cellPayload
}

// cellPayload is implemented by every heap cell kind.
type cellPayload interface {
	// kind returns the value tag this payload backs.
	kind() Tag

	// eachChild calls fn once for every Value the payload owns a share of.
	// Used by the free cascade and by the cycle collector.
	eachChild(rt *Runtime, fn func(Value))

	// footprint is the approximate number of bytes charged to the
	// allocator for this payload.
	footprint() int
}

const cellBaseSize = 48

// mkValue wraps a cell in a Value without touching the reference count.
func mkValue(tag Tag, c *cell) Value {
	return Value{tag: tag, cell: c}
}

// ---------------------------------------------------------------------------
// Simple payloads
// ---------------------------------------------------------------------------

type stringPayload struct {
	s string
}

func (p *stringPayload) kind() Tag                           { return TagString }
func (p *stringPayload) eachChild(rt *Runtime, fn func(Value)) {}
func (p *stringPayload) footprint() int                      { return cellBaseSize + len(p.s) }

type bigIntPayload struct {
	v *big.Int
}

func (p *bigIntPayload) kind() Tag                           { return TagBigInt }
func (p *bigIntPayload) eachChild(rt *Runtime, fn func(Value)) {}
func (p *bigIntPayload) footprint() int                      { return cellBaseSize + len(p.v.Bytes()) }

type symbolPayload struct {
	description string
	id          uint64
}

func (p *symbolPayload) kind() Tag                           { return TagSymbol }
func (p *symbolPayload) eachChild(rt *Runtime, fn func(Value)) {}
func (p *symbolPayload) footprint() int                      { return cellBaseSize + len(p.description) }

// ---------------------------------------------------------------------------
// Cell creation and the reference-counting discipline
// ---------------------------------------------------------------------------

// newCell allocates a tracked cell with one owned share. Returns the
// Exception sentinel shape (ok=false) when the allocator refuses the
// request; the caller is responsible for raising out-of-memory.
func (rt *Runtime) newCell(payload cellPayload) (Value, bool) {
	size := payload.footprint()
	if !rt.allocBytes(size) {
		return Exception, false
	}
	c := &cell{refCount: 1, payload: payload}
	rt.cells[c] = struct{}{}
	rt.gcBytes += size
	if rt.gcThreshold > 0 && rt.gcBytes >= rt.gcThreshold {
		rt.RunGC()
	}
	return mkValue(payload.kind(), c), true
}

// newCellNoLimit allocates a tracked cell bypassing the memory limit. The
// out-of-memory error itself is built through this path so exhaustion can
// always be reported.
func (rt *Runtime) newCellNoLimit(payload cellPayload) Value {
	size := payload.footprint()
	rt.alloc.Malloc(size)
	c := &cell{refCount: 1, payload: payload}
	rt.cells[c] = struct{}{}
	rt.gcBytes += size
	return mkValue(payload.kind(), c)
}

// DupValue increments the share count of a ref-counted value and returns an
// equal Value. It never fails; value types pass through unchanged.
func (rt *Runtime) DupValue(v Value) Value {
	if v.HasRefCount() && v.cell != nil {
		v.cell.refCount++
	}
	return v
}

// FreeValue releases one owned share. When the count reaches zero the cell
// is finalized and every child share it owns is released in turn.
func (rt *Runtime) FreeValue(v Value) {
	if !v.HasRefCount() || v.cell == nil {
		return
	}
	c := v.cell
	if c.refCount <= 0 {
		panic("engine: FreeValue on a dead cell")
	}
	c.refCount--
	if c.refCount == 0 {
		rt.freeCell(c)
	}
}

// freeCell finalizes a cell whose count reached zero and cascades into its
// children. The cascade is iterative: a worklist bounds Go stack depth even
// for arbitrarily long ownership chains (linked lists and the like).
func (rt *Runtime) freeCell(c *cell) {
	work := []*cell{c}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]

		if rt.dumpFlags&DumpFree != 0 {
			rt.logger.Debugf("free %s cell", tagName(cur.payload.kind()))
		}
		rt.runCellFinalizer(cur)

		cur.payload.eachChild(rt, func(child Value) {
			if !child.HasRefCount() || child.cell == nil {
				return
			}
			child.cell.refCount--
			if child.cell.refCount == 0 {
				work = append(work, child.cell)
			}
		})

		rt.untrackCell(cur)
	}
}

// runCellFinalizer invokes the class finalizer for object cells. The Value
// handed to the finalizer is borrowed; its count is already zero.
func (rt *Runtime) runCellFinalizer(c *cell) {
	op, ok := c.payload.(*objectPayload)
	if !ok {
		return
	}
	cls := rt.classes[op.class]
	if cls != nil && cls.def.Finalizer != nil {
		cls.def.Finalizer(rt, mkValue(TagObject, c))
	}
}

// untrackCell removes a dead cell from the live set and credits its
// footprint back to the allocator.
func (rt *Runtime) untrackCell(c *cell) {
	delete(rt.cells, c)
	rt.alloc.Free(c.payload.footprint())
}

// tagName names a tag for diagnostics.
func tagName(t Tag) string {
	switch t {
	case TagBigInt:
		return "bigint"
	case TagSymbol:
		return "symbol"
	case TagString:
		return "string"
	case TagModule:
		return "module"
	case TagFunctionBytecode:
		return "function-bytecode"
	case TagObject:
		return "object"
	case TagInt:
		return "int"
	case TagBool:
		return "bool"
	case TagNull:
		return "null"
	case TagUndefined:
		return "undefined"
	case TagUninitialized:
		return "uninitialized"
	case TagCatchOffset:
		return "catch-offset"
	case TagException:
		return "exception"
	case TagFloat64:
		return "float64"
	}
	return "unknown"
}
