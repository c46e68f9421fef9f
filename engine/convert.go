package engine

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Coercions
// ---------------------------------------------------------------------------

// ToBool applies standard truthiness. Never throws.
func (ctx *Context) ToBool(v Value) bool {
	switch v.tag {
	case TagBool:
		return v.Bool()
	case TagInt:
		return v.i != 0
	case TagFloat64:
		return v.f != 0 && !math.IsNaN(v.f)
	case TagNull, TagUndefined, TagUninitialized:
		return false
	case TagString:
		s, _ := stringContent(v)
		return s != ""
	case TagBigInt:
		b, _ := bigIntContent(v)
		return b.Sign() != 0
	}
	return true
}

// ToFloat64 coerces v to a number. Returns ok=false after throwing for
// values with no numeric interpretation.
func (ctx *Context) ToFloat64(v Value) (float64, bool) {
	switch v.tag {
	case TagInt:
		return float64(v.i), true
	case TagFloat64:
		return v.f, true
	case TagBool:
		if v.Bool() {
			return 1, true
		}
		return 0, true
	case TagNull:
		return 0, true
	case TagUndefined:
		return math.NaN(), true
	case TagString:
		s, _ := stringContent(v)
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN(), true
		}
		return f, true
	case TagBigInt:
		b, _ := bigIntContent(v)
		f, _ := new(big.Float).SetInt(b).Float64()
		return f, true
	case TagObject:
		prim := ctx.objectToPrimitive(v, hintNumber)
		if prim.IsException() {
			return 0, false
		}
		defer ctx.rt.FreeValue(prim)
		if prim.IsObject() {
			ctx.ThrowTypeError("cannot convert object to number")
			return 0, false
		}
		return ctx.ToFloat64(prim)
	}
	ctx.ThrowTypeError("cannot convert %s to number", tagName(v.tag))
	return 0, false
}

// ToNumber coerces v to a numeric Value, preserving the integer tag when
// the result is integral.
func (ctx *Context) ToNumber(v Value) Value {
	if v.IsNumber() {
		return v
	}
	f, ok := ctx.ToFloat64(v)
	if !ok {
		return Exception
	}
	if i := int64(f); float64(i) == f && i >= math.MinInt32 && i <= math.MaxInt32 {
		return NewInt64(i)
	}
	return NewFloat64(f)
}

// ToInt32 coerces with standard modular wrapping.
func (ctx *Context) ToInt32(v Value) (int32, bool) {
	if v.tag == TagInt {
		return int32(v.i), true
	}
	f, ok := ctx.ToFloat64(v)
	if !ok {
		return 0, false
	}
	return int32(wrapUint32(f)), true
}

// ToInt64 coerces with 64-bit modular wrapping.
func (ctx *Context) ToInt64(v Value) (int64, bool) {
	if v.tag == TagInt {
		return v.i, true
	}
	f, ok := ctx.ToFloat64(v)
	if !ok {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, true
	}
	return int64(math.Trunc(f)), true
}

// wrapUint32 is the ToUint32 modular reduction.
func wrapUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	t := math.Trunc(f)
	m := math.Mod(t, 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return uint32(m)
}

// ToGoString coerces v to a Go string. Returns ok=false after throwing.
func (ctx *Context) ToGoString(v Value) (string, bool) {
	switch v.tag {
	case TagString:
		s, _ := stringContent(v)
		return s, true
	case TagInt:
		return strconv.FormatInt(v.i, 10), true
	case TagFloat64:
		return formatFloat(v.f), true
	case TagBool:
		if v.Bool() {
			return "true", true
		}
		return "false", true
	case TagNull:
		return "null", true
	case TagUndefined:
		return "undefined", true
	case TagBigInt:
		b, _ := bigIntContent(v)
		return b.String(), true
	case TagSymbol:
		ctx.ThrowTypeError("cannot convert symbol to string")
		return "", false
	case TagObject:
		prim := ctx.objectToPrimitive(v, hintString)
		if prim.IsException() {
			return "", false
		}
		defer ctx.rt.FreeValue(prim)
		if prim.IsObject() {
			return "[object " + ctx.className(GetClassID(prim)) + "]", true
		}
		return ctx.ToGoString(prim)
	}
	return tagName(v.tag), true
}

// ToString coerces v to a string Value.
func (ctx *Context) ToString(v Value) Value {
	s, ok := ctx.ToGoString(v)
	if !ok {
		return Exception
	}
	return ctx.NewString(s)
}

// ToPropertyKey coerces v to an owned Atom. The key space is
// string-shaped, so symbols intern under their printed form with the
// per-symbol id mixed in: equal descriptions stay distinct keys.
func (ctx *Context) ToPropertyKey(v Value) (Atom, bool) {
	if v.tag == TagSymbol {
		sp := v.cell.payload.(*symbolPayload)
		return ctx.rt.NewAtom("Symbol(" + sp.description + ")#" + strconv.FormatUint(sp.id, 10)), true
	}
	s, ok := ctx.ToGoString(v)
	if !ok {
		return AtomNull, false
	}
	return ctx.rt.NewAtom(s), true
}

// ToObject returns an owned object for v. Primitives have no wrapper
// classes here, so anything but an object throws.
func (ctx *Context) ToObject(v Value) Value {
	if v.IsObject() {
		return ctx.rt.DupValue(v)
	}
	return ctx.ThrowTypeError("cannot convert %s to object", tagName(v.tag))
}

// primitiveHint selects the coercion method order: number callers try
// valueOf first, string callers toString first.
type primitiveHint int

const (
	hintNumber primitiveHint = iota
	hintString
)

// objectToPrimitive runs the object's own valueOf or toString method if
// it has a callable one, in hint order. Returns an owned result; the
// object itself when neither applies.
func (ctx *Context) objectToPrimitive(v Value, hint primitiveHint) Value {
	order := []string{"valueOf", "toString"}
	if hint == hintString {
		order = []string{"toString", "valueOf"}
	}
	for _, name := range order {
		fn := ctx.GetPropertyStr(v, name)
		if fn.IsException() {
			return fn
		}
		if ctx.IsFunction(fn) {
			r := ctx.Call(fn, v, nil)
			ctx.rt.FreeValue(fn)
			if r.IsException() || !r.IsObject() {
				return r
			}
			ctx.rt.FreeValue(r)
			continue
		}
		ctx.rt.FreeValue(fn)
	}
	return ctx.rt.DupValue(v)
}

// formatFloat renders a float the way scripts expect.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
