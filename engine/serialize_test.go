package engine

import (
	"errors"
	"testing"
)

// writeOK serializes v or fails the test.
func writeOK(t *testing.T, ctx *Context, v Value, flags WriteFlags) []byte {
	t.Helper()
	data, err := ctx.WriteObject(v, flags)
	if err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	return data
}

// readOK deserializes data or fails the test.
func readOK(t *testing.T, ctx *Context, data []byte, flags ReadFlags) Value {
	t.Helper()
	v := ctx.ReadObject(data, flags)
	if v.IsException() {
		err := ctx.GetException()
		s, _ := ctx.ToGoString(err)
		ctx.Runtime().FreeValue(err)
		t.Fatalf("ReadObject: %s", s)
	}
	return v
}

// ---------------------------------------------------------------------------
// Primitive round trips
// ---------------------------------------------------------------------------

func TestSerializePrimitives(t *testing.T) {
	rt, ctx := newTestRealm(t)

	writeRead := func(v Value) Value {
		data := writeOK(t, ctx, v, 0)
		return readOK(t, ctx, data, 0)
	}

	if got := writeRead(NewInt32(-17)); !got.IsInt() || got.Int32() != -17 {
		t.Errorf("int round trip = %v", got)
	}
	if got := writeRead(NewFloat64(2.75)); !got.IsFloat64() || got.Float64() != 2.75 {
		t.Errorf("float round trip = %v", got)
	}
	if got := writeRead(True); !got.IsBool() || !got.Bool() {
		t.Errorf("bool round trip = %v", got)
	}
	if got := writeRead(Null); !got.IsNull() {
		t.Errorf("null round trip = %v", got)
	}
	if got := writeRead(Undefined); !got.IsUndefined() {
		t.Errorf("undefined round trip = %v", got)
	}

	s := ctx.NewString("wire")
	got := writeRead(s)
	rt.FreeValue(s)
	if out, ok := stringContent(got); !ok || out != "wire" {
		t.Errorf("string round trip = %v", got)
	}
	rt.FreeValue(got)

	b := ctx.NewBigInt64(-123456789012345)
	got = writeRead(b)
	rt.FreeValue(b)
	if bi, ok := bigIntContent(got); !ok || bi.Int64() != -123456789012345 {
		t.Errorf("bigint round trip = %v", got)
	}
	rt.FreeValue(got)
}

func TestSerializeObjectGraph(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	ctx.DefinePropertyValueStr(obj, "n", NewInt32(5), PropCWE)
	ctx.DefinePropertyValueStr(obj, "s", ctx.NewString("deep"), PropCWE)
	inner := ctx.NewObject()
	ctx.DefinePropertyValueStr(inner, "flag", True, PropCWE)
	ctx.DefinePropertyValueStr(obj, "child", inner, PropCWE)
	ctx.DefinePropertyValueStr(obj, "hidden", NewInt32(9), PropConfigurable|PropWritable)

	data := writeOK(t, ctx, obj, 0)
	rt.FreeValue(obj)

	got := readOK(t, ctx, data, 0)
	defer rt.FreeValue(got)

	n := ctx.GetPropertyStr(got, "n")
	if n.Int32() != 5 {
		t.Errorf("n = %v", n)
	}
	child := ctx.GetPropertyStr(got, "child")
	flag := ctx.GetPropertyStr(child, "flag")
	rt.FreeValue(child)
	if !flag.IsBool() || !flag.Bool() {
		t.Errorf("child.flag = %v", flag)
	}

	// Property flags survive the trip.
	a := rt.NewAtom("hidden")
	desc, res := ctx.GetOwnProperty(got, a)
	rt.FreeAtom(a)
	if res != TriTrue {
		t.Fatal("hidden property lost")
	}
	if desc.Flags&PropEnumerable != 0 {
		t.Error("non-enumerable flag lost in transit")
	}
	rt.FreeValue(desc.Value)
	rt.FreeValue(desc.Getter)
	rt.FreeValue(desc.Setter)
}

// ---------------------------------------------------------------------------
// Shared graphs and back-references
// ---------------------------------------------------------------------------

func TestSerializeSharedObjectNeedsReferenceFlag(t *testing.T) {
	rt, ctx := newTestRealm(t)

	shared := ctx.NewObject()
	root := ctx.NewObject()
	ctx.DefinePropertyValueStr(root, "a", rt.DupValue(shared), PropCWE)
	ctx.DefinePropertyValueStr(root, "b", rt.DupValue(shared), PropCWE)
	rt.FreeValue(shared)
	defer rt.FreeValue(root)

	if _, err := ctx.WriteObject(root, 0); err == nil {
		t.Fatal("shared object serialized without WriteReference")
	}

	data := writeOK(t, ctx, root, WriteReference)

	// The reader refuses back-references unless asked to accept them.
	v := ctx.ReadObject(data, 0)
	if !v.IsException() {
		rt.FreeValue(v)
		t.Fatal("back-reference accepted without ReadReference")
	}
	rt.FreeValue(ctx.GetException())

	got := readOK(t, ctx, data, ReadReference)
	defer rt.FreeValue(got)
	a := ctx.GetPropertyStr(got, "a")
	b := ctx.GetPropertyStr(got, "b")
	if !SameValue(a, b) {
		t.Error("shared identity lost in transit")
	}
	rt.FreeValue(a)
	rt.FreeValue(b)
}

func TestSerializeCyclicGraph(t *testing.T) {
	rt, ctx := newTestRealm(t)

	node := ctx.NewObject()
	ctx.DefinePropertyValueStr(node, "self", rt.DupValue(node), PropCWE)

	data := writeOK(t, ctx, node, WriteReference)
	rt.FreeValue(node)
	rt.RunGC()

	got := readOK(t, ctx, data, ReadReference)
	self := ctx.GetPropertyStr(got, "self")
	if !SameValue(got, self) {
		t.Error("cycle identity lost in transit")
	}
	rt.FreeValue(self)
	rt.FreeValue(got)
	rt.RunGC()
}

// ---------------------------------------------------------------------------
// Bytecode
// ---------------------------------------------------------------------------

func TestSerializeBytecodeRoundTrip(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.Eval("40 + 2", "calc.js", EvalFlagCompileOnly)
	if obj.IsException() {
		t.Fatalf("compile failed: %v", ctx.GetException())
	}

	// Bytecode output is opt-in.
	if _, err := ctx.WriteObject(obj, 0); err == nil {
		t.Fatal("bytecode serialized without WriteBytecode")
	}
	data := writeOK(t, ctx, obj, WriteBytecode)
	rt.FreeValue(obj)

	// So is bytecode input.
	v := ctx.ReadObject(data, 0)
	if !v.IsException() {
		rt.FreeValue(v)
		t.Fatal("bytecode accepted without ReadBytecode")
	}
	rt.FreeValue(ctx.GetException())

	fn := readOK(t, ctx, data, ReadBytecode)
	if !fn.IsFunctionBytecode() {
		rt.FreeValue(fn)
		t.Fatal("round trip lost the bytecode tag")
	}
	out := ctx.EvalFunction(fn)
	if n, ok := ctx.ToInt64(out); !ok || n != 42 {
		t.Errorf("deserialized script result = %v", out)
	}
	rt.FreeValue(out)
}

func TestSerializeModuleRoundTrip(t *testing.T) {
	rt, ctx := newTestRealm(t)

	m := ctx.CompileModule(`export var marker = "kept";`, "roundtrip")
	if m.IsException() {
		t.Fatalf("compile failed: %v", ctx.GetException())
	}
	data := writeOK(t, ctx, m, WriteBytecode)
	rt.FreeValue(m)

	got := readOK(t, ctx, data, ReadBytecode)
	if !got.IsModule() || ctx.ModuleName(got) != "roundtrip" {
		rt.FreeValue(got)
		t.Fatal("module identity lost")
	}
	v := ctx.EvalFunction(rt.DupValue(got))
	if v.IsException() {
		t.Fatalf("deserialized module failed: %v", ctx.GetException())
	}
	rt.FreeValue(v)
	marker := ctx.GetModuleExport(got, "marker")
	if s, _ := stringContent(marker); s != "kept" {
		t.Errorf("marker export = %v", marker)
	}
	rt.FreeValue(marker)
	rt.FreeValue(got)
}

func TestSerializeStripFlags(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.Eval("1 + 1", "origin.js", EvalFlagCompileOnly)
	if obj.IsException() {
		t.Fatalf("compile failed: %v", ctx.GetException())
	}
	defer rt.FreeValue(obj)

	data := writeOK(t, ctx, obj, WriteBytecode|WriteStripSource|WriteStripDebug)
	got := readOK(t, ctx, data, ReadBytecode)
	defer rt.FreeValue(got)

	cf := compiledFunctionOf(got)
	if cf == nil {
		t.Fatal("no compiled function behind the value")
	}
	if cf.Source != "" {
		t.Errorf("source survived the strip: %q", cf.Source)
	}
	if cf.Filename != "" {
		t.Errorf("filename survived the strip: %q", cf.Filename)
	}
	for _, n := range cf.Body {
		if n != nil && n.Line != 0 {
			t.Errorf("line info survived the strip: %d", n.Line)
		}
	}

	// Stripping must not damage the original in-memory object.
	orig := compiledFunctionOf(obj)
	if orig.Filename != "origin.js" {
		t.Errorf("strip mutated the source object: %q", orig.Filename)
	}

	// A stripped script still runs.
	out := ctx.EvalFunction(rt.DupValue(got))
	if n, ok := ctx.ToInt64(out); !ok || n != 2 {
		t.Errorf("stripped script result = %v", out)
	}
	rt.FreeValue(out)
}

// ---------------------------------------------------------------------------
// Header validation
// ---------------------------------------------------------------------------

func TestReadObjectRejectsGarbage(t *testing.T) {
	rt, ctx := newTestRealm(t)

	for _, data := range [][]byte{nil, {1, 2, 3}, make([]byte, headerSize)} {
		v := ctx.ReadObject(data, 0)
		if !v.IsException() {
			rt.FreeValue(v)
			t.Fatalf("garbage input %v accepted", data)
		}
		err := ctx.GetException()
		if kind := ctx.ErrorKindOf(err); kind != ErrorSyntax {
			t.Errorf("garbage error kind = %v, want %v", kind, ErrorSyntax)
		}
		rt.FreeValue(err)
	}
}

func TestReadObjectVersionMismatch(t *testing.T) {
	rt, ctx := newTestRealm(t)

	data := writeOK(t, ctx, NewInt32(1), 0)
	data[7]++ // bump the version field

	v := ctx.ReadObject(data, 0)
	if !v.IsException() {
		rt.FreeValue(v)
		t.Fatal("version mismatch accepted")
	}
	err := ctx.GetException()
	defer rt.FreeValue(err)
	if kind := ctx.ErrorKindOf(err); kind != ErrorInternal {
		t.Errorf("version error kind = %v, want %v", kind, ErrorInternal)
	}
}

func TestCheckObjectHeaderErrors(t *testing.T) {
	if _, err := checkObjectHeader([]byte("short")); !errors.Is(err, ErrBadObjectData) {
		t.Errorf("short input error = %v", err)
	}
	bad := make([]byte, headerSize)
	if _, err := checkObjectHeader(bad); !errors.Is(err, ErrBadObjectData) {
		t.Errorf("bad magic error = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Unsupported content
// ---------------------------------------------------------------------------

func TestWriteObjectRejectsAccessorsAndHostClasses(t *testing.T) {
	rt, ctx := newTestRealm(t)

	obj := ctx.NewObject()
	getter := ctx.NewFunction(func(ctx *Context, this Value, args []Value) Value {
		return NewInt32(1)
	}, "get g", 0)
	a := rt.NewAtom("g")
	ctx.DefinePropertyGetSet(obj, a, getter, Undefined, PropConfigurable)
	rt.FreeAtom(a)
	if _, err := ctx.WriteObject(obj, 0); err == nil {
		t.Error("accessor property serialized")
	}
	rt.FreeValue(obj)

	fn := ctx.NewFunction(func(ctx *Context, this Value, args []Value) Value {
		return Undefined
	}, "f", 0)
	if _, err := ctx.WriteObject(fn, WriteBytecode); err == nil {
		t.Error("native function object serialized")
	}
	rt.FreeValue(fn)
}

// ---------------------------------------------------------------------------
// SharedArrayBuffer transfer
// ---------------------------------------------------------------------------

func TestSerializeSharedArrayBuffer(t *testing.T) {
	rt, ctx := newTestRealm(t)

	sab := ctx.NewSharedArrayBuffer(8)
	if sab.IsException() {
		t.Fatalf("NewSharedArrayBuffer failed: %v", ctx.GetException())
	}
	buf, _ := ctx.SharedArrayBufferBytes(sab)
	buf[0] = 0xAB

	root := ctx.NewObject()
	ctx.DefinePropertyValueStr(root, "mem", sab, PropCWE)

	// The one-return entry point refuses SAB payloads outright.
	if _, err := ctx.WriteObject(root, WriteSAB); err == nil {
		t.Fatal("WriteObject accepted a SharedArrayBuffer payload")
	}
	// And without the flag even WriteObject2 refuses.
	if _, _, err := ctx.WriteObject2(root, 0); err == nil {
		t.Fatal("SAB serialized without WriteSAB")
	}

	data, sabs, err := ctx.WriteObject2(root, WriteSAB)
	if err != nil {
		t.Fatalf("WriteObject2: %v", err)
	}
	rt.FreeValue(root)
	if len(sabs) != 1 {
		t.Fatalf("SAB table size = %d, want 1", len(sabs))
	}

	got := ctx.ReadObject2(data, ReadSAB, sabs)
	if got.IsException() {
		t.Fatalf("ReadObject2 failed: %v", ctx.GetException())
	}
	mem := ctx.GetPropertyStr(got, "mem")
	rt.FreeValue(got)
	out, ok := ctx.SharedArrayBufferBytes(mem)
	if !ok {
		t.Fatal("deserialized value is not a SharedArrayBuffer")
	}
	// The storage is shared, not copied.
	if out[0] != 0xAB {
		t.Errorf("storage content = %#x", out[0])
	}
	out[1] = 0xCD
	if buf[1] != 0xCD {
		t.Error("deserialized buffer does not alias the original storage")
	}
	rt.FreeValue(mem)
}
