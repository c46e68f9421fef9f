package engine

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Base objects
// ---------------------------------------------------------------------------

func TestGlobalThisIsTheGlobalObject(t *testing.T) {
	rt, ctx := newTestRealm(t)

	v := evalOK(t, ctx, "globalThis")
	defer rt.FreeValue(v)
	g := ctx.Global()
	defer rt.FreeValue(g)
	if !SameValue(v, g) {
		t.Error("globalThis is not the global object")
	}
}

func TestGlobalNumericConstants(t *testing.T) {
	_, ctx := newTestRealm(t)

	v := evalOK(t, ctx, "NaN !== NaN")
	if !v.IsBool() || !v.Bool() {
		t.Error("NaN compares equal to itself")
	}
	v = evalOK(t, ctx, "Infinity > 1e308")
	if !v.IsBool() || !v.Bool() {
		t.Error("Infinity is not infinite")
	}
}

func TestObjectProtoHasOwnProperty(t *testing.T) {
	_, ctx := newTestRealm(t)

	v := evalOK(t, ctx, `
		var o = {mine: 1};
		o.hasOwnProperty("mine") && !o.hasOwnProperty("toString")
	`)
	if !v.IsBool() || !v.Bool() {
		t.Error("hasOwnProperty misreported ownership")
	}
}

func TestAddIntrinsicBaseObjectsIsIdempotent(t *testing.T) {
	rt, ctx := newTestRealm(t)

	before := liveCells(rt)
	ctx.AddIntrinsicBaseObjects()
	ctx.AddIntrinsicBaseObjects()
	if liveCells(rt) != before {
		t.Error("repeat installation allocated fresh intrinsics")
	}
}

// ---------------------------------------------------------------------------
// Error hierarchy
// ---------------------------------------------------------------------------

func TestErrorConstructorsFromScript(t *testing.T) {
	rt, ctx := newTestRealm(t)

	cases := []struct {
		ctor string
		kind ErrorKind
	}{
		{"Error", ErrorPlain},
		{"TypeError", ErrorType},
		{"RangeError", ErrorRange},
		{"ReferenceError", ErrorReference},
		{"SyntaxError", ErrorSyntax},
		{"InternalError", ErrorInternal},
	}
	for _, c := range cases {
		v := evalOK(t, ctx, "new "+c.ctor+`("msg")`)
		if kind := ctx.ErrorKindOf(v); kind != c.kind {
			t.Errorf("new %s kind = %v, want %v", c.ctor, kind, c.kind)
		}
		rt.FreeValue(v)
	}
}

func TestErrorToStringIncludesNameAndMessage(t *testing.T) {
	rt, ctx := newTestRealm(t)

	v := evalOK(t, ctx, `new TypeError("bad input").toString()`)
	defer rt.FreeValue(v)
	s, _ := stringContent(v)
	if !strings.Contains(s, "TypeError") || !strings.Contains(s, "bad input") {
		t.Errorf("toString = %q", s)
	}
}

func TestErrorConstructorCallableWithoutNew(t *testing.T) {
	rt, ctx := newTestRealm(t)

	v := evalOK(t, ctx, `Error("plain call")`)
	defer rt.FreeValue(v)
	if kind := ctx.ErrorKindOf(v); kind != ErrorPlain {
		t.Errorf("Error() kind = %v", kind)
	}
}

func TestErrorPrototypeChain(t *testing.T) {
	_, ctx := newTestRealm(t)

	v := evalOK(t, ctx, `
		var e = new RangeError("r");
		e.name === "RangeError" && e.message === "r"
	`)
	if !v.IsBool() || !v.Bool() {
		t.Error("subkind prototype name/message wiring broken")
	}
}
