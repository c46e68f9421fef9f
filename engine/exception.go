package engine

import "fmt"

// ---------------------------------------------------------------------------
// Exceptions: Error objects, throw helpers and the pending slot
// ---------------------------------------------------------------------------

// ErrorKind classifies an error object. The kind is fixed at construction
// and drives which realm prototype the object receives.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorPlain
	ErrorType
	ErrorRange
	ErrorReference
	ErrorSyntax
	ErrorInternal
	ErrorOOM

	numErrorKinds int = iota
)

var errorKindNames = [numErrorKinds]string{
	ErrorNone:      "",
	ErrorPlain:     "Error",
	ErrorType:      "TypeError",
	ErrorRange:     "RangeError",
	ErrorReference: "ReferenceError",
	ErrorSyntax:    "SyntaxError",
	ErrorInternal:  "InternalError",
	ErrorOOM:       "InternalError",
}

// String returns the constructor name for the kind.
func (k ErrorKind) String() string {
	if k < 0 || int(k) >= numErrorKinds {
		return "Error"
	}
	return errorKindNames[k]
}

// NewError creates a plain error object with no message.
func (ctx *Context) NewError() Value {
	return ctx.newError(ErrorPlain, "")
}

// newError builds an error object of the given kind. The message is stored
// as an own "message" property; OOM errors bypass allocation accounting so
// they can be raised at the exact moment accounting says no.
func (ctx *Context) newError(kind ErrorKind, message string) Value {
	proto := ctx.errProtos[kind]
	if !proto.IsObject() {
		proto = Null
	}

	var obj Value
	if kind == ErrorOOM {
		obj = ctx.newObjectNoLimit(ClassError, ctx.rt.DupValue(proto))
	} else {
		obj = ctx.newObjectValue(ClassError, ctx.rt.DupValue(proto))
		if obj.IsException() {
			return obj
		}
	}
	p := objectOf(obj)
	p.errKind = kind

	if message != "" {
		nameAtom := ctx.rt.NewAtom("message")
		if kind == ErrorOOM {
			p.appendPropertyNoLimit(ctx.rt, property{
				atom:   nameAtom,
				flags:  PropWritable | PropConfigurable,
				value:  ctx.rt.newCellNoLimit(&stringPayload{s: message}),
				getter: Undefined,
				setter: Undefined,
			})
		} else {
			msg := ctx.NewString(message)
			ctx.DefinePropertyValue(obj, nameAtom, msg, PropWritable|PropConfigurable)
			ctx.rt.FreeAtom(nameAtom)
		}
	}
	return obj
}

// ErrorKindOf reports the kind of an error object, or ErrorNone for
// anything else.
func (ctx *Context) ErrorKindOf(v Value) ErrorKind {
	p := objectOf(v)
	if p == nil {
		return ErrorNone
	}
	return p.errKind
}

// IsError reports whether v is an error object.
func (ctx *Context) IsError(v Value) bool {
	return ctx.ErrorKindOf(v) != ErrorNone
}

// ---------------------------------------------------------------------------
// Throwing
// ---------------------------------------------------------------------------

// Throw records v as the pending exception and returns the exception
// marker. Takes ownership of v. A previous pending exception is replaced.
func (ctx *Context) Throw(v Value) Value {
	if ctx.hasPending {
		ctx.rt.FreeValue(ctx.pending)
	}
	ctx.pending = v
	ctx.hasPending = true
	return Exception
}

// ThrowError throws a fresh error object of the given kind.
func (ctx *Context) ThrowError(kind ErrorKind, format string, args ...any) Value {
	return ctx.Throw(ctx.newError(kind, fmt.Sprintf(format, args...)))
}

// ThrowTypeError throws a TypeError with a formatted message.
func (ctx *Context) ThrowTypeError(format string, args ...any) Value {
	return ctx.ThrowError(ErrorType, format, args...)
}

// ThrowRangeError throws a RangeError with a formatted message.
func (ctx *Context) ThrowRangeError(format string, args ...any) Value {
	return ctx.ThrowError(ErrorRange, format, args...)
}

// ThrowReferenceError throws a ReferenceError with a formatted message.
func (ctx *Context) ThrowReferenceError(format string, args ...any) Value {
	return ctx.ThrowError(ErrorReference, format, args...)
}

// ThrowSyntaxError throws a SyntaxError with a formatted message.
func (ctx *Context) ThrowSyntaxError(format string, args ...any) Value {
	return ctx.ThrowError(ErrorSyntax, format, args...)
}

// ThrowInternalError throws an InternalError with a formatted message.
func (ctx *Context) ThrowInternalError(format string, args ...any) Value {
	return ctx.ThrowError(ErrorInternal, format, args...)
}

// ThrowOutOfMemory throws the out-of-memory error. Construction bypasses
// the allocator so exhaustion can always be reported.
func (ctx *Context) ThrowOutOfMemory() Value {
	return ctx.Throw(ctx.newError(ErrorOOM, "out of memory"))
}

// ThrowStackOverflow throws the uncatchable stack-exhaustion error.
func (ctx *Context) ThrowStackOverflow() Value {
	err := ctx.newError(ErrorInternal, "stack overflow")
	if p := objectOf(err); p != nil {
		p.uncatchable = true
	}
	return ctx.Throw(err)
}

// ThrowInterrupted throws the uncatchable interrupt-abort error.
func (ctx *Context) ThrowInterrupted() Value {
	err := ctx.newError(ErrorInternal, "interrupted")
	if p := objectOf(err); p != nil {
		p.uncatchable = true
	}
	return ctx.Throw(err)
}

// ---------------------------------------------------------------------------
// Pending-exception surface
// ---------------------------------------------------------------------------

// HasException reports whether an exception is pending.
func (ctx *Context) HasException() bool {
	return ctx.hasPending
}

// GetException fetches and clears the pending exception. The caller owns
// the returned Value. Returns Null when nothing is pending.
func (ctx *Context) GetException() Value {
	if !ctx.hasPending {
		return Null
	}
	v := ctx.pending
	ctx.pending = Undefined
	ctx.hasPending = false
	return v
}

// ---------------------------------------------------------------------------
// Uncatchable marking
// ---------------------------------------------------------------------------

// SetUncatchableError marks an error object so catch clauses pass it
// through. Non-error Values are ignored.
func (ctx *Context) SetUncatchableError(v Value) {
	if p := objectOf(v); p != nil && p.errKind != ErrorNone {
		p.uncatchable = true
	}
}

// ClearUncatchableError removes the uncatchable mark from an error object.
func (ctx *Context) ClearUncatchableError(v Value) {
	if p := objectOf(v); p != nil {
		p.uncatchable = false
	}
}

// ResetUncatchableError clears the uncatchable mark on the currently
// pending exception, letting the host resume normal catch semantics.
func (ctx *Context) ResetUncatchableError() {
	if ctx.hasPending {
		ctx.ClearUncatchableError(ctx.pending)
	}
}

// isUncatchable reports whether a thrown value must bypass catch clauses.
func isUncatchable(v Value) bool {
	p := objectOf(v)
	return p != nil && p.uncatchable
}
