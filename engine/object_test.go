package engine

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Basic property table
// ---------------------------------------------------------------------------

func TestPropertyRoundTrip(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	defer rt.FreeValue(obj)

	if res := ctx.SetPropertyStr(obj, "n", NewInt32(42)); res != TriTrue {
		t.Fatalf("set = %d", res)
	}
	got := ctx.GetPropertyStr(obj, "n")
	if !got.IsInt() || got.Int32() != 42 {
		t.Errorf("get = %v", got)
	}

	a := rt.NewAtom("n")
	defer rt.FreeAtom(a)
	if ctx.HasProperty(obj, a) != TriTrue {
		t.Error("has = false for a present property")
	}
	if ctx.DeleteProperty(obj, a) != TriTrue {
		t.Error("delete refused")
	}
	if ctx.HasProperty(obj, a) != TriFalse {
		t.Error("property survived delete")
	}
}

func TestGetAbsentPropertyIsUndefined(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	defer rt.FreeValue(obj)
	if got := ctx.GetPropertyStr(obj, "missing"); !got.IsUndefined() {
		t.Errorf("absent property = %v", got)
	}
}

func TestOwnPropertyNamesPreserveInsertionOrder(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	defer rt.FreeValue(obj)
	for _, name := range []string{"zulu", "alpha", "mike"} {
		ctx.DefinePropertyValueStr(obj, name, NewInt32(1), PropCWE)
	}
	// Deleting from the middle compacts while keeping relative order.
	a := rt.NewAtom("alpha")
	ctx.DeleteProperty(obj, a)
	rt.FreeAtom(a)

	atoms, res := ctx.GetOwnPropertyNames(obj)
	if res != TriTrue {
		t.Fatalf("names = %d", res)
	}
	want := []string{"zulu", "mike"}
	if len(atoms) != len(want) {
		t.Fatalf("got %d names, want %d", len(atoms), len(want))
	}
	for i, a := range atoms {
		if rt.AtomString(a) != want[i] {
			t.Errorf("name[%d] = %q, want %q", i, rt.AtomString(a), want[i])
		}
		rt.FreeAtom(a)
	}
}

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

func TestNonWritablePropertyRefusesSet(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	defer rt.FreeValue(obj)
	ctx.DefinePropertyValueStr(obj, "pinned", NewInt32(1), PropEnumerable)

	if res := ctx.SetPropertyStr(obj, "pinned", NewInt32(2)); res != TriFalse {
		t.Fatalf("set on non-writable = %d, want TriFalse", res)
	}
	got := ctx.GetPropertyStr(obj, "pinned")
	if got.Int32() != 1 {
		t.Errorf("value mutated to %v", got)
	}
}

func TestNonConfigurablePropertyRefusesDelete(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	defer rt.FreeValue(obj)
	ctx.DefinePropertyValueStr(obj, "perm", NewInt32(1), PropWritable|PropEnumerable)

	a := rt.NewAtom("perm")
	defer rt.FreeAtom(a)
	if ctx.DeleteProperty(obj, a) != TriFalse {
		t.Error("delete of non-configurable property did not refuse")
	}
	if ctx.HasProperty(obj, a) != TriTrue {
		t.Error("property vanished despite the refusal")
	}
}

func TestDeleteAbsentPropertySucceeds(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	defer rt.FreeValue(obj)
	a := rt.NewAtom("never")
	defer rt.FreeAtom(a)
	if ctx.DeleteProperty(obj, a) != TriTrue {
		t.Error("deleting an absent property must report success")
	}
}

// ---------------------------------------------------------------------------
// Prototype chain
// ---------------------------------------------------------------------------

func TestPrototypeChainLookup(t *testing.T) {
	rt, ctx := newTestRealm(t)

	proto := ctx.NewObject()
	ctx.DefinePropertyValueStr(proto, "inherited", NewInt32(7), PropCWE)

	child := ctx.NewObjectProto(proto)
	defer rt.FreeValue(child)
	rt.FreeValue(proto)

	got := ctx.GetPropertyStr(child, "inherited")
	if !got.IsInt() || got.Int32() != 7 {
		t.Errorf("inherited lookup = %v", got)
	}

	// Assigning through the chain shadows on the receiver.
	ctx.SetPropertyStr(child, "inherited", NewInt32(8))
	own := ctx.GetPropertyStr(child, "inherited")
	if own.Int32() != 8 {
		t.Errorf("shadowed value = %v", own)
	}
	p := ctx.GetPrototype(child)
	base := ctx.GetPropertyStr(p, "inherited")
	rt.FreeValue(p)
	if base.Int32() != 7 {
		t.Errorf("prototype value mutated to %v", base)
	}
}

func TestSetPrototypeReplaces(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	defer rt.FreeValue(obj)
	newProto := ctx.NewObject()
	defer rt.FreeValue(newProto)
	ctx.DefinePropertyValueStr(newProto, "marker", True, PropCWE)

	if ctx.SetPrototype(obj, newProto) != TriTrue {
		t.Fatal("SetPrototype failed")
	}
	got := ctx.GetPropertyStr(obj, "marker")
	if !got.IsBool() || !got.Bool() {
		t.Errorf("new prototype not consulted: %v", got)
	}
}

func TestSetPrototypeRefusesCycles(t *testing.T) {
	rt, ctx := newTestRealm(t)

	a := ctx.NewObject()
	b := ctx.NewObject()
	defer rt.FreeValue(a)
	defer rt.FreeValue(b)

	if ctx.SetPrototype(a, b) != TriTrue {
		t.Fatal("first link failed")
	}
	if ctx.SetPrototype(b, a) != TriException {
		t.Fatal("closing the prototype loop succeeded")
	}
	err := ctx.GetException()
	defer rt.FreeValue(err)
	if kind := ctx.ErrorKindOf(err); kind != ErrorType {
		t.Errorf("kind = %v, want %v", kind, ErrorType)
	}
	if ctx.SetPrototype(a, a) != TriException {
		t.Fatal("self prototype succeeded")
	}
	rt.FreeValue(ctx.GetException())

	// The refused link leaves the chain intact and every walk finite.
	ctx.DefinePropertyValueStr(b, "depth", NewInt32(1), PropCWE)
	got := ctx.GetPropertyStr(a, "missing")
	if !got.IsUndefined() {
		t.Errorf("missing lookup = %v", got)
	}
	got = ctx.GetPropertyStr(a, "depth")
	if !got.IsInt() || got.Int32() != 1 {
		t.Errorf("chain lookup = %v", got)
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func TestAccessorProperty(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	defer rt.FreeValue(obj)

	var stored int32 = 10
	getter := ctx.NewFunction(func(ctx *Context, this Value, args []Value) Value {
		return NewInt32(stored)
	}, "get x", 0)
	setter := ctx.NewFunction(func(ctx *Context, this Value, args []Value) Value {
		if v := argOr(args, 0); v.IsInt() {
			stored = v.Int32()
		}
		return Undefined
	}, "set x", 1)

	a := rt.NewAtom("x")
	defer rt.FreeAtom(a)
	if ctx.DefinePropertyGetSet(obj, a, getter, setter, PropConfigurable) != TriTrue {
		t.Fatal("DefinePropertyGetSet failed")
	}

	got := ctx.GetProperty(obj, a)
	if !got.IsInt() || got.Int32() != 10 {
		t.Fatalf("getter result = %v", got)
	}
	if ctx.SetProperty(obj, a, NewInt32(33)) != TriTrue {
		t.Fatal("setter dispatch failed")
	}
	if stored != 33 {
		t.Errorf("setter saw %d, want 33", stored)
	}
}

func TestGetterOnlyPropertyRefusesSet(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	defer rt.FreeValue(obj)
	getter := ctx.NewFunction(func(ctx *Context, this Value, args []Value) Value {
		return NewInt32(1)
	}, "get ro", 0)

	a := rt.NewAtom("ro")
	defer rt.FreeAtom(a)
	ctx.DefinePropertyGetSet(obj, a, getter, Undefined, PropConfigurable)

	if res := ctx.SetProperty(obj, a, NewInt32(2)); res != TriFalse {
		t.Errorf("set through a getter-only property = %d, want TriFalse", res)
	}
}

// ---------------------------------------------------------------------------
// Declarative binding tables
// ---------------------------------------------------------------------------

func TestSetPropertyFunctionList(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	defer rt.FreeValue(obj)
	ctx.SetPropertyFunctionList(obj, []PropertyEntry{
		FuncEntry("double", 1, func(ctx *Context, this Value, args []Value) Value {
			n, ok := ctx.ToInt32(argOr(args, 0))
			if !ok {
				return Exception
			}
			return NewInt32(n * 2)
		}),
		StringEntry("version", "1.0"),
		Int32Entry("answer", 42),
		ObjectEntry("nested", []PropertyEntry{
			Int32Entry("depth", 2),
		}),
		AliasEntry("twice", "double"),
	})

	fn := ctx.GetPropertyStr(obj, "double")
	out := ctx.Call(fn, obj, []Value{NewInt32(21)})
	rt.FreeValue(fn)
	if !out.IsInt() || out.Int32() != 42 {
		t.Errorf("bound function result = %v", out)
	}

	ver := ctx.GetPropertyStr(obj, "version")
	if s, _ := stringContent(ver); s != "1.0" {
		t.Errorf("version = %v", ver)
	}
	rt.FreeValue(ver)

	nested := ctx.GetPropertyStr(obj, "nested")
	depth := ctx.GetPropertyStr(nested, "depth")
	rt.FreeValue(nested)
	if depth.Int32() != 2 {
		t.Errorf("nested depth = %v", depth)
	}

	alias := ctx.GetPropertyStr(obj, "twice")
	out2 := ctx.Call(alias, obj, []Value{NewInt32(5)})
	rt.FreeValue(alias)
	if out2.Int32() != 10 {
		t.Errorf("alias result = %v", out2)
	}
}

func TestFunctionNameAndLengthProps(t *testing.T) {
	rt, ctx := newTestRealm(t)

	fn := ctx.NewFunction(func(ctx *Context, this Value, args []Value) Value {
		return Undefined
	}, "named", 3)
	defer rt.FreeValue(fn)

	name := ctx.GetPropertyStr(fn, "name")
	if s, _ := stringContent(name); s != "named" {
		t.Errorf("name = %v", name)
	}
	rt.FreeValue(name)
	length := ctx.GetPropertyStr(fn, "length")
	if length.Int32() != 3 {
		t.Errorf("length = %v", length)
	}
}
