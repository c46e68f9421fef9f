package engine

import "math"

// ---------------------------------------------------------------------------
// Intrinsic installers
// ---------------------------------------------------------------------------

// AddIntrinsicBaseObjects installs Object.prototype, Function.prototype,
// the error hierarchy and the error constructors into the realm.
// Idempotent.
func (ctx *Context) AddIntrinsicBaseObjects() {
	if ctx.baseObjectsInstalled {
		return
	}
	ctx.baseObjectsInstalled = true
	rt := ctx.rt

	objectProto := ctx.newObjectValue(ClassObject, Null)
	ctx.SetPropertyFunctionList(objectProto, []PropertyEntry{
		FuncEntry("toString", 0, func(ctx *Context, this Value, args []Value) Value {
			name := "Object"
			if id := GetClassID(this); id != 0 {
				name = ctx.className(id)
			}
			return ctx.NewString("[object " + name + "]")
		}),
		FuncEntry("hasOwnProperty", 1, func(ctx *Context, this Value, args []Value) Value {
			if !this.IsObject() {
				return ctx.ThrowTypeError("hasOwnProperty called on %s", tagName(this.tag))
			}
			a, ok := ctx.ToPropertyKey(argOr(args, 0))
			if !ok {
				return Exception
			}
			defer rt.FreeAtom(a)
			return NewBool(objectOf(this).ownProperty(a) != nil)
		}),
	})
	ctx.SetClassProto(ClassObject, rt.DupValue(objectProto))
	ctx.SetPrototype(ctx.global, objectProto)

	funcProto := ctx.NewObjectProto(objectProto)
	ctx.SetPropertyFunctionList(funcProto, []PropertyEntry{
		FuncEntry("call", 1, func(ctx *Context, this Value, args []Value) Value {
			thisArg := argOr(args, 0)
			var rest []Value
			if len(args) > 1 {
				rest = args[1:]
			}
			return ctx.Call(this, thisArg, rest)
		}),
		FuncEntry("toString", 0, func(ctx *Context, this Value, args []Value) Value {
			name := ""
			if p := objectOf(this); p != nil && p.native != nil {
				name = p.native.name
			}
			return ctx.NewString("function " + name + "() { [native code] }")
		}),
	})
	ctx.SetClassProto(ClassFunction, funcProto)

	ctx.installErrorIntrinsics(objectProto)

	ctx.SetPropertyFunctionList(ctx.global, []PropertyEntry{
		Float64Entry("NaN", math.NaN()),
		Float64Entry("Infinity", math.Inf(1)),
	})
	ctx.DefinePropertyValueStr(ctx.global, "globalThis", ctx.Global(), PropWritable|PropConfigurable)

	rt.FreeValue(objectProto)
}

func (ctx *Context) installErrorIntrinsics(objectProto Value) {
	rt := ctx.rt

	base := ctx.NewObjectProto(objectProto)
	ctx.SetPropertyFunctionList(base, []PropertyEntry{
		StringEntry("name", "Error"),
		StringEntry("message", ""),
		FuncEntry("toString", 0, func(ctx *Context, this Value, args []Value) Value {
			name := ctx.errPropString(this, "name", "Error")
			msg := ctx.errPropString(this, "message", "")
			if msg == "" {
				return ctx.NewString(name)
			}
			return ctx.NewString(name + ": " + msg)
		}),
	})
	ctx.errProtos[ErrorPlain] = rt.DupValue(base)
	ctx.SetClassProto(ClassError, rt.DupValue(base))

	for _, kind := range []ErrorKind{ErrorType, ErrorRange, ErrorReference, ErrorSyntax, ErrorInternal} {
		proto := ctx.NewObjectProto(base)
		ctx.DefinePropertyValueStr(proto, "name", ctx.NewString(kind.String()), PropWritable|PropConfigurable)
		ctx.errProtos[kind] = proto
	}
	// Exhaustion surfaces as an InternalError.
	ctx.errProtos[ErrorOOM] = rt.DupValue(ctx.errProtos[ErrorInternal])

	for _, kind := range []ErrorKind{ErrorPlain, ErrorType, ErrorRange, ErrorReference, ErrorSyntax, ErrorInternal} {
		ctx.installErrorConstructor(kind)
	}
	rt.FreeValue(base)
}

func (ctx *Context) installErrorConstructor(kind ErrorKind) {
	name := kind.String()
	// Error constructors build an instance with or without new.
	ctor := ctx.newNativeFuncValue(&nativeFunc{
		kind:   funcGeneric,
		name:   name,
		length: 1,
		generic: func(ctx *Context, this Value, args []Value) Value {
			msg := ""
			if a := argOr(args, 0); !a.IsUndefined() {
				s, ok := ctx.ToGoString(a)
				if !ok {
					return Exception
				}
				msg = s
			}
			return ctx.newError(kind, msg)
		},
	})
	if ctor.IsException() {
		return
	}
	ctx.SetConstructorBit(ctor, true)
	proto := ctx.rt.DupValue(ctx.errProtos[kind])
	ctx.DefinePropertyValueStr(proto, "constructor", ctx.rt.DupValue(ctor), PropWritable|PropConfigurable)
	ctx.DefinePropertyValueStr(ctor, "prototype", proto, 0)
	ctx.DefinePropertyValueStr(ctx.global, name, ctor, PropWritable|PropConfigurable)
}

// errPropString reads a string-ish property off an error object without
// failing hard.
func (ctx *Context) errPropString(v Value, name, fallback string) string {
	if !v.IsObject() {
		return fallback
	}
	pv := ctx.GetPropertyStr(v, name)
	if pv.IsException() {
		ctx.GetException()
		return fallback
	}
	defer ctx.rt.FreeValue(pv)
	if pv.IsUndefined() {
		return fallback
	}
	s, ok := ctx.ToGoString(pv)
	if !ok {
		ctx.GetException()
		return fallback
	}
	return s
}

// AddIntrinsicEval enables Eval on this Context and installs the global
// eval binding. Idempotent.
func (ctx *Context) AddIntrinsicEval() {
	if ctx.evalInstalled {
		return
	}
	ctx.evalInstalled = true
	fn := ctx.NewFunction(func(ctx *Context, this Value, args []Value) Value {
		src := argOr(args, 0)
		if !src.IsString() {
			return ctx.rt.DupValue(src)
		}
		s, _ := stringContent(src)
		return ctx.Eval(s, "<eval>", EvalFlagBacktraceBarrier)
	}, "eval", 1)
	if fn.IsException() {
		return
	}
	ctx.DefinePropertyValueStr(ctx.global, "eval", fn, PropWritable|PropConfigurable)
}
