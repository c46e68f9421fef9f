package engine

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Shared test scaffolding
// ---------------------------------------------------------------------------

func newTestRealm(t *testing.T) (*Runtime, *Context) {
	t.Helper()
	rt := NewRuntime()
	ctx := NewContext(rt)
	t.Cleanup(func() {
		ctx.Free()
		rt.Free()
	})
	return rt, ctx
}

func liveCells(rt *Runtime) int {
	_, cells, _ := rt.MemoryUsage()
	return cells
}

// ---------------------------------------------------------------------------
// Tag and predicate behavior
// ---------------------------------------------------------------------------

func TestValueSingletons(t *testing.T) {
	if !Null.IsNull() || !Undefined.IsUndefined() || !Exception.IsException() {
		t.Fatal("singleton predicates broken")
	}
	if Null.HasRefCount() || Undefined.HasRefCount() || True.HasRefCount() {
		t.Error("value types must not claim a refcount")
	}
	if !True.Bool() || False.Bool() {
		t.Error("boolean payloads broken")
	}
}

func TestValueConstructors(t *testing.T) {
	if v := NewInt32(-7); v.Int32() != -7 || !v.IsInt() {
		t.Errorf("NewInt32 = %v", v)
	}
	if v := NewInt64(1 << 40); !v.IsFloat64() {
		t.Errorf("NewInt64 out of int32 range should widen to float, got tag %d", v.Tag())
	}
	if v := NewFloat64(2.5); v.Float64() != 2.5 {
		t.Errorf("NewFloat64 = %v", v)
	}
	if v := NewCatchOffset(12); v.CatchOffset() != 12 {
		t.Errorf("NewCatchOffset = %v", v)
	}
}

func TestRefCountedTagRange(t *testing.T) {
	refCounted := []Tag{TagBigInt, TagSymbol, TagString, TagModule, TagFunctionBytecode, TagObject}
	for _, tag := range refCounted {
		if v := (Value{tag: tag}); !v.HasRefCount() {
			t.Errorf("tag %d should be reference counted", tag)
		}
	}
	valueTypes := []Tag{TagInt, TagBool, TagNull, TagUndefined, TagUninitialized, TagCatchOffset, TagException, TagFloat64}
	for _, tag := range valueTypes {
		if v := (Value{tag: tag}); v.HasRefCount() {
			t.Errorf("tag %d should be a value type", tag)
		}
	}
}

// ---------------------------------------------------------------------------
// Reference counting
// ---------------------------------------------------------------------------

func TestDupFreeBalance(t *testing.T) {
	rt, ctx := newTestRealm(t)
	base := liveCells(rt)

	s := ctx.NewString("balanced")
	if s.RefCount() != 1 {
		t.Fatalf("fresh cell refcount = %d, want 1", s.RefCount())
	}

	const dups = 5
	for i := 0; i < dups; i++ {
		rt.DupValue(s)
	}
	if s.RefCount() != dups+1 {
		t.Fatalf("after %d dups refcount = %d", dups, s.RefCount())
	}
	for i := 0; i < dups; i++ {
		rt.FreeValue(s)
	}
	if s.RefCount() != 1 {
		t.Fatalf("after paired frees refcount = %d, want 1", s.RefCount())
	}
	if liveCells(rt) != base+1 {
		t.Errorf("cell count = %d, want %d", liveCells(rt), base+1)
	}
	rt.FreeValue(s)
	if liveCells(rt) != base {
		t.Errorf("cell survived its last free")
	}
}

func TestDupValuePassesValueTypesThrough(t *testing.T) {
	rt := NewRuntime()
	defer rt.Free()
	if v := rt.DupValue(NewInt32(3)); v.Int32() != 3 {
		t.Errorf("DupValue mangled a value type")
	}
	rt.FreeValue(NewInt32(3)) // must be a no-op
}

func TestFreeCascadeLongChain(t *testing.T) {
	rt, ctx := newTestRealm(t)
	base := liveCells(rt)

	// A deep ownership chain must free iteratively, not by Go recursion.
	const depth = 50000
	head := ctx.NewObject()
	for i := 0; i < depth; i++ {
		next := ctx.NewObject()
		ctx.DefinePropertyValueStr(next, "next", head, PropCWE)
		head = next
	}
	if liveCells(rt) != base+depth+1 {
		t.Fatalf("chain cell count = %d, want %d", liveCells(rt), base+depth+1)
	}
	rt.FreeValue(head)
	if liveCells(rt) != base {
		t.Errorf("after chain free cell count = %d, want %d", liveCells(rt), base)
	}
}

func TestSameValue(t *testing.T) {
	rt, ctx := newTestRealm(t)
	a := ctx.NewString("x")
	defer rt.FreeValue(a)
	b := ctx.NewString("x")
	defer rt.FreeValue(b)
	if SameValue(a, b) {
		t.Error("distinct cells reported identical")
	}
	if !SameValue(a, rt.DupValue(a)) {
		t.Error("dup lost identity")
	}
	rt.FreeValue(a)
	if !SameValue(NewInt32(4), NewInt32(4)) || SameValue(NewInt32(4), NewFloat64(4)) {
		t.Error("inline identity broken")
	}
}
