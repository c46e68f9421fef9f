package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Object serialization: versioned header + canonical CBOR body
// ---------------------------------------------------------------------------

const (
	objectMagic   uint32 = 0x6c756d6f // "lumo"
	objectVersion uint32 = 1
	headerSize           = 12
)

// WriteFlags gate what the serializer may emit.
type WriteFlags uint32

const (
	// WriteBytecode permits compiled functions and modules in the output.
	WriteBytecode WriteFlags = 1 << iota
	// WriteSAB permits SharedArrayBuffer objects; their storage travels
	// out of band through WriteObject2.
	WriteSAB
	// WriteReference permits shared and cyclic object graphs via
	// back-references.
	WriteReference
	// WriteStripSource drops retained source text from compiled functions.
	WriteStripSource
	// WriteStripDebug drops filenames and line numbers.
	WriteStripDebug

	// Reserved bits kept for compatibility with the historical byte-swap
	// and ROM-dedup options. Accepted, no effect.
	WriteByteSwap
	WriteROMData
)

// ReadFlags gate what the deserializer will accept.
type ReadFlags uint32

const (
	ReadBytecode ReadFlags = 1 << iota
	ReadSAB
	ReadReference
)

var (
	// ErrBadObjectData reports input that is not a serialized object.
	ErrBadObjectData = errors.New("not a serialized object")
	// ErrObjectVersion reports a format-version mismatch.
	ErrObjectVersion = errors.New("serialized object version mismatch")
)

// ---------------------------------------------------------------------------
// Wire schema
// ---------------------------------------------------------------------------

const (
	wireUndefined = iota
	wireNull
	wireBool
	wireInt
	wireFloat
	wireString
	wireBigInt
	wireObject
	wireFuncBytecode
	wireModule
	wireRef
	wireSAB
)

type wireValue struct {
	Kind  int               `cbor:"k"`
	Int   int64             `cbor:"i,omitempty"`
	Float float64           `cbor:"f,omitempty"`
	Str   string            `cbor:"s,omitempty"`
	Fn    *CompiledFunction `cbor:"c,omitempty"`
	Mod   *wireModuleBody   `cbor:"m,omitempty"`
	Props []wireProp        `cbor:"p,omitempty"`
	ID    int               `cbor:"d,omitempty"`
	Ref   int               `cbor:"r,omitempty"`
	SAB   int               `cbor:"a,omitempty"`
}

type wireProp struct {
	Name  string    `cbor:"n"`
	Flags uint16    `cbor:"f"`
	Value wireValue `cbor:"v"`
}

type wireModuleBody struct {
	Name string            `cbor:"n"`
	Fn   *CompiledFunction `cbor:"c"`
}

var (
	wireEncMode cbor.EncMode
	wireDecMode cbor.DecMode
)

func init() {
	var err error
	wireEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	wireDecMode, err = cbor.DecOptions{MaxNestedLevels: 256}.DecMode()
	if err != nil {
		panic(err)
	}
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

type objectWriter struct {
	ctx    *Context
	flags  WriteFlags
	seen   map[*cell]int
	nextID int
	sabs   [][]byte
}

// WriteObject serializes v. Compiled functions and modules require
// WriteBytecode; shared buffers require WriteObject2.
func (ctx *Context) WriteObject(v Value, flags WriteFlags) ([]byte, error) {
	data, sabs, err := ctx.WriteObject2(v, flags)
	if err != nil {
		return nil, err
	}
	if len(sabs) > 0 {
		return nil, fmt.Errorf("write object: SharedArrayBuffer requires WriteObject2")
	}
	return data, nil
}

// WriteObject2 serializes v and additionally returns the out-of-band
// SharedArrayBuffer storage table, in first-encounter order. Each table
// entry carries a share taken through the host Dup hook.
func (ctx *Context) WriteObject2(v Value, flags WriteFlags) ([]byte, [][]byte, error) {
	w := &objectWriter{ctx: ctx, flags: flags, seen: make(map[*cell]int)}
	wv, err := w.writeValue(v)
	if err != nil {
		return nil, nil, err
	}
	body, err := wireEncMode.Marshal(&wv)
	if err != nil {
		return nil, nil, fmt.Errorf("write object: %w", err)
	}
	out := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(out[0:4], objectMagic)
	binary.BigEndian.PutUint32(out[4:8], objectVersion)
	binary.BigEndian.PutUint32(out[8:12], uint32(flags))
	copy(out[headerSize:], body)
	return out, w.sabs, nil
}

func (w *objectWriter) writeValue(v Value) (wireValue, error) {
	switch v.tag {
	case TagUndefined, TagUninitialized:
		return wireValue{Kind: wireUndefined}, nil
	case TagNull:
		return wireValue{Kind: wireNull}, nil
	case TagBool:
		return wireValue{Kind: wireBool, Int: v.i}, nil
	case TagInt:
		return wireValue{Kind: wireInt, Int: v.i}, nil
	case TagFloat64:
		return wireValue{Kind: wireFloat, Float: v.f}, nil
	case TagString:
		s, _ := stringContent(v)
		return wireValue{Kind: wireString, Str: s}, nil
	case TagBigInt:
		b, _ := bigIntContent(v)
		return wireValue{Kind: wireBigInt, Str: b.String()}, nil
	case TagFunctionBytecode:
		if w.flags&WriteBytecode == 0 {
			return wireValue{}, fmt.Errorf("write object: bytecode output not enabled")
		}
		return wireValue{Kind: wireFuncBytecode, Fn: w.stripFunc(compiledFunctionOf(v))}, nil
	case TagModule:
		if w.flags&WriteBytecode == 0 {
			return wireValue{}, fmt.Errorf("write object: bytecode output not enabled")
		}
		m := moduleOf(v)
		return wireValue{Kind: wireModule, Mod: &wireModuleBody{Name: m.name, Fn: w.stripFunc(m.fn)}}, nil
	case TagObject:
		return w.writeObject(v)
	}
	return wireValue{}, fmt.Errorf("write object: cannot serialize %s", tagName(v.tag))
}

func (w *objectWriter) writeObject(v Value) (wireValue, error) {
	p := objectOf(v)

	if p.class == ClassSharedArrayBuffer {
		if w.flags&WriteSAB == 0 {
			return wireValue{}, fmt.Errorf("write object: SharedArrayBuffer output not enabled")
		}
		sp, ok := p.opaque.(*sabPayload)
		if !ok {
			return wireValue{}, fmt.Errorf("write object: detached SharedArrayBuffer")
		}
		if w.ctx.rt.sabFuncs.Dup != nil {
			w.ctx.rt.sabFuncs.Dup(sp.data)
		}
		w.sabs = append(w.sabs, sp.data)
		return wireValue{Kind: wireSAB, SAB: len(w.sabs) - 1}, nil
	}

	if id, ok := w.seen[v.cell]; ok {
		if w.flags&WriteReference == 0 {
			return wireValue{}, fmt.Errorf("write object: duplicated object, WriteReference not enabled")
		}
		return wireValue{Kind: wireRef, Ref: id}, nil
	}
	if p.class != ClassObject {
		return wireValue{}, fmt.Errorf("write object: cannot serialize object of class %q", w.ctx.className(p.class))
	}

	w.nextID++
	id := w.nextID
	w.seen[v.cell] = id

	wv := wireValue{Kind: wireObject, ID: id}
	for i := range p.props {
		pr := &p.props[i]
		if pr.flags&PropGetSet != 0 {
			return wireValue{}, fmt.Errorf("write object: cannot serialize accessor property %q", w.ctx.rt.AtomString(pr.atom))
		}
		pv, err := w.writeValue(pr.value)
		if err != nil {
			return wireValue{}, err
		}
		wv.Props = append(wv.Props, wireProp{
			Name:  w.ctx.rt.AtomString(pr.atom),
			Flags: uint16(pr.flags),
			Value: pv,
		})
	}
	return wv, nil
}

// stripFunc applies the strip-source / strip-debug flags to a compiled
// function, copying only as much as the strip requires.
func (w *objectWriter) stripFunc(fn *CompiledFunction) *CompiledFunction {
	stripSource := w.flags&WriteStripSource != 0
	stripDebug := w.flags&WriteStripDebug != 0
	if !stripSource && !stripDebug || fn == nil {
		return fn
	}
	out := *fn
	if stripSource {
		out.Source = ""
	}
	if stripDebug {
		out.Filename = ""
		out.Body = stripNodes(fn.Body)
	}
	return &out
}

func stripNodes(body []*Node) []*Node {
	if body == nil {
		return nil
	}
	out := make([]*Node, len(body))
	for i, n := range body {
		if n == nil {
			continue
		}
		c := *n
		c.Line = 0
		c.Kids = stripNodes(n.Kids)
		c.Body = stripNodes(n.Body)
		out[i] = &c
	}
	return out
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

type objectReader struct {
	ctx   *Context
	flags ReadFlags
	objs  map[int]Value
	sabs  [][]byte
}

// checkObjectHeader validates the fixed header and returns the body.
func checkObjectHeader(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, ErrBadObjectData
	}
	if binary.BigEndian.Uint32(data[0:4]) != objectMagic {
		return nil, ErrBadObjectData
	}
	if v := binary.BigEndian.Uint32(data[4:8]); v != objectVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrObjectVersion, v, objectVersion)
	}
	return data[headerSize:], nil
}

// ReadObject deserializes WriteObject output. On any failure nothing is
// constructed and the Exception sentinel returns with the error pending:
// an InternalError for a version mismatch, a SyntaxError otherwise.
func (ctx *Context) ReadObject(data []byte, flags ReadFlags) Value {
	return ctx.ReadObject2(data, flags, nil)
}

// ReadObject2 is ReadObject for payloads written with WriteObject2: sabs
// is the out-of-band SharedArrayBuffer table.
func (ctx *Context) ReadObject2(data []byte, flags ReadFlags, sabs [][]byte) Value {
	body, err := checkObjectHeader(data)
	if err != nil {
		if errors.Is(err, ErrObjectVersion) {
			return ctx.ThrowInternalError("read object: %v", err)
		}
		return ctx.ThrowSyntaxError("read object: %v", err)
	}
	var wv wireValue
	if err := wireDecMode.Unmarshal(body, &wv); err != nil {
		return ctx.ThrowSyntaxError("read object: malformed body: %v", err)
	}
	r := &objectReader{ctx: ctx, flags: flags, objs: make(map[int]Value), sabs: sabs}
	v := r.readValue(&wv)
	for _, o := range r.objs {
		ctx.rt.FreeValue(o)
	}
	if ctx.rt.dumpFlags&DumpRead != 0 && !v.IsException() {
		ctx.rt.logger.Debugf("read object: %s", tagName(v.tag))
	}
	return v
}

func (r *objectReader) readValue(wv *wireValue) Value {
	ctx := r.ctx
	switch wv.Kind {
	case wireUndefined:
		return Undefined
	case wireNull:
		return Null
	case wireBool:
		return NewBool(wv.Int != 0)
	case wireInt:
		return NewInt64(wv.Int)
	case wireFloat:
		return NewFloat64(wv.Float)
	case wireString:
		return ctx.NewString(wv.Str)
	case wireBigInt:
		return ctx.readBigInt(wv.Str)
	case wireFuncBytecode:
		if r.flags&ReadBytecode == 0 {
			return ctx.ThrowSyntaxError("read object: bytecode input not enabled")
		}
		if wv.Fn == nil {
			return ctx.ThrowSyntaxError("read object: missing function body")
		}
		return ctx.newFuncBytecodeValue(wv.Fn)
	case wireModule:
		if r.flags&ReadBytecode == 0 {
			return ctx.ThrowSyntaxError("read object: bytecode input not enabled")
		}
		if wv.Mod == nil || wv.Mod.Fn == nil {
			return ctx.ThrowSyntaxError("read object: missing module body")
		}
		return ctx.newModuleValue(wv.Mod.Name, wv.Mod.Fn)
	case wireObject:
		obj := ctx.NewObject()
		if obj.IsException() {
			return obj
		}
		if wv.ID != 0 {
			r.objs[wv.ID] = ctx.rt.DupValue(obj)
		}
		for i := range wv.Props {
			wp := &wv.Props[i]
			pv := r.readValue(&wp.Value)
			if pv.IsException() {
				ctx.rt.FreeValue(obj)
				return pv
			}
			if ctx.DefinePropertyValueStr(obj, wp.Name, pv, PropFlags(wp.Flags)) < 0 {
				ctx.rt.FreeValue(obj)
				return Exception
			}
		}
		return obj
	case wireRef:
		if r.flags&ReadReference == 0 {
			return ctx.ThrowSyntaxError("read object: back-references not enabled")
		}
		o, ok := r.objs[wv.Ref]
		if !ok {
			return ctx.ThrowSyntaxError("read object: dangling back-reference %d", wv.Ref)
		}
		return ctx.rt.DupValue(o)
	case wireSAB:
		if r.flags&ReadSAB == 0 {
			return ctx.ThrowSyntaxError("read object: SharedArrayBuffer input not enabled")
		}
		if wv.SAB < 0 || wv.SAB >= len(r.sabs) {
			return ctx.ThrowSyntaxError("read object: SharedArrayBuffer index %d out of range", wv.SAB)
		}
		data := r.sabs[wv.SAB]
		if ctx.rt.sabFuncs.Dup != nil {
			ctx.rt.sabFuncs.Dup(data)
		}
		return ctx.newSharedArrayBuffer(data)
	}
	return ctx.ThrowSyntaxError("read object: unknown wire kind %d", wv.Kind)
}

func (ctx *Context) readBigInt(s string) Value {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return ctx.ThrowSyntaxError("read object: malformed bigint %q", s)
	}
	v, ok := ctx.rt.newCell(&bigIntPayload{v: b})
	if !ok {
		return ctx.ThrowOutOfMemory()
	}
	return v
}
