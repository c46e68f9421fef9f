package engine

import "math"

// ---------------------------------------------------------------------------
// Evaluation: flags, bytecode cells and the tree-walking interpreter
// ---------------------------------------------------------------------------

// EvalFlags select the evaluation mode of Eval.
type EvalFlags int

const (
	// EvalTypeGlobal evaluates as a classic script against the global
	// object; EvalTypeModule parses module syntax and produces a module.
	EvalTypeGlobal EvalFlags = 0
	EvalTypeModule EvalFlags = 1 << 0

	EvalFlagStrict           EvalFlags = 1 << 3
	EvalFlagCompileOnly      EvalFlags = 1 << 5
	EvalFlagBacktraceBarrier EvalFlags = 1 << 6
)

// funcBytecodePayload backs TagFunctionBytecode cells: a compiled function
// not yet bound to an environment.
type funcBytecodePayload struct {
	fn *CompiledFunction
}

func (p *funcBytecodePayload) kind() Tag                             { return TagFunctionBytecode }
func (p *funcBytecodePayload) eachChild(rt *Runtime, fn func(Value)) {}
func (p *funcBytecodePayload) footprint() int {
	return cellBaseSize + len(p.fn.Source) + 64*countNodes(p.fn.Body)
}

func countNodes(body []*Node) int {
	n := len(body)
	for _, node := range body {
		if node == nil {
			continue
		}
		n += countNodes(node.Kids) + countNodes(node.Body)
	}
	return n
}

// newFuncBytecodeValue wraps a compiled function in a heap cell.
func (ctx *Context) newFuncBytecodeValue(fn *CompiledFunction) Value {
	v, ok := ctx.rt.newCell(&funcBytecodePayload{fn: fn})
	if !ok {
		return ctx.ThrowOutOfMemory()
	}
	return v
}

// compiledFunctionOf extracts the compiled function behind a
// TagFunctionBytecode Value, or nil.
func compiledFunctionOf(v Value) *CompiledFunction {
	if v.tag != TagFunctionBytecode || v.cell == nil {
		return nil
	}
	return v.cell.payload.(*funcBytecodePayload).fn
}

// ---------------------------------------------------------------------------
// Eval entry points
// ---------------------------------------------------------------------------

// Eval compiles and (unless compile-only) runs source. Scripts evaluate
// against the global object and yield their completion value; modules yield
// Undefined after evaluation. Compile-only returns a TagFunctionBytecode or
// TagModule Value for later EvalFunction or WriteObject.
func (ctx *Context) Eval(source, filename string, flags EvalFlags) Value {
	if !ctx.evalInstalled {
		return ctx.ThrowTypeError("eval is not available in this context")
	}
	module := flags&EvalTypeModule != 0
	cf, err := compileSource(source, filename, module, flags&EvalFlagStrict != 0)
	if err != nil {
		return ctx.ThrowSyntaxError("%s: %v", filename, err)
	}

	if flags&EvalFlagCompileOnly != 0 {
		if module {
			return ctx.newModuleValue(filename, cf)
		}
		return ctx.newFuncBytecodeValue(cf)
	}

	if module {
		m := ctx.newModuleValue(filename, cf)
		if m.IsException() {
			return m
		}
		defer ctx.rt.FreeValue(m)
		if ctx.instantiateModule(m) < 0 {
			return Exception
		}
		return ctx.evaluateModule(m)
	}

	return ctx.evalScript(cf, flags&EvalFlagBacktraceBarrier != 0)
}

// EvalFunction instantiates and evaluates a compiled-function or module
// Value, as produced by compile-only Eval or ReadObject. Takes ownership
// of v.
func (ctx *Context) EvalFunction(v Value) Value {
	defer ctx.rt.FreeValue(v)
	switch v.tag {
	case TagFunctionBytecode:
		return ctx.evalScript(compiledFunctionOf(v), false)
	case TagModule:
		if ctx.instantiateModule(v) < 0 {
			return Exception
		}
		return ctx.evaluateModule(v)
	}
	return ctx.ThrowTypeError("EvalFunction requires a compiled function or module")
}

// evalScript runs a script body against the global object.
func (ctx *Context) evalScript(cf *CompiledFunction, barrier bool) Value {
	if !ctx.pushFrame(stackFrame{name: "<eval>", filename: cf.Filename, barrier: barrier}) {
		return Exception
	}
	defer ctx.popFrame()
	v, _ := ctx.execBody(cf.Body, ctx.global, ctx.global)
	return v
}

// callCompiled invokes a script function: fresh scope over the captured
// environment, parameters and this bound as locals.
func (ctx *Context) callCompiled(cf *CompiledFunction, fnVal, this Value, args []Value) Value {
	p := objectOf(fnVal)
	parent := ctx.global
	if p != nil && p.native != nil && p.native.env.IsObject() {
		parent = p.native.env
	}
	env := ctx.NewObjectProto(parent)
	if env.IsException() {
		return env
	}
	defer ctx.rt.FreeValue(env)

	for i, param := range cf.Params {
		arg := Undefined
		if i < len(args) {
			arg = args[i]
		}
		if ctx.DefinePropertyValueStr(env, param, ctx.rt.DupValue(arg), PropCWE) < 0 {
			return Exception
		}
	}
	if ctx.DefinePropertyValueStr(env, "this", ctx.rt.DupValue(this), PropCWE) < 0 {
		return Exception
	}

	v, comp := ctx.execBody(cf.Body, env, this)
	if v.IsException() {
		return v
	}
	if comp == compReturn {
		return v
	}
	ctx.rt.FreeValue(v)
	return Undefined
}

// ---------------------------------------------------------------------------
// Statement execution
// ---------------------------------------------------------------------------

type completion int

const (
	compNormal completion = iota
	compReturn
)

// execBody runs statements in order. The returned Value is owned: the
// completion value of the last expression statement, a return value, or
// the Exception sentinel.
func (ctx *Context) execBody(body []*Node, env, this Value) (Value, completion) {
	result := Undefined
	for _, st := range body {
		v, comp := ctx.execStmt(st, env, this)
		if v.IsException() || comp == compReturn {
			ctx.rt.FreeValue(result)
			return v, comp
		}
		if st.Kind == NodeExprStmt {
			ctx.rt.FreeValue(result)
			result = v
		} else {
			ctx.rt.FreeValue(v)
		}
	}
	return result, compNormal
}

func (ctx *Context) execStmt(n *Node, env, this Value) (Value, completion) {
	if ctx.pollInterrupt() {
		return Exception, compNormal
	}
	switch n.Kind {
	case NodeExprStmt:
		return ctx.evalExpr(n.Kids[0], env, this), compNormal

	case NodeVar:
		val := Undefined
		if len(n.Kids) > 0 {
			val = ctx.evalExpr(n.Kids[0], env, this)
			if val.IsException() {
				return val, compNormal
			}
		}
		if ctx.DefinePropertyValueStr(env, n.Name, val, PropCWE) < 0 {
			return Exception, compNormal
		}
		return Undefined, compNormal

	case NodeBlock:
		v, comp := ctx.execBody(n.Body, env, this)
		return v, comp

	case NodeIf:
		cond := ctx.evalExpr(n.Kids[0], env, this)
		if cond.IsException() {
			return cond, compNormal
		}
		truthy := ctx.ToBool(cond)
		ctx.rt.FreeValue(cond)
		if truthy {
			return ctx.execStmt(n.Kids[1], env, this)
		}
		if len(n.Kids) > 2 {
			return ctx.execStmt(n.Kids[2], env, this)
		}
		return Undefined, compNormal

	case NodeWhile:
		for {
			cond := ctx.evalExpr(n.Kids[0], env, this)
			if cond.IsException() {
				return cond, compNormal
			}
			truthy := ctx.ToBool(cond)
			ctx.rt.FreeValue(cond)
			if !truthy {
				return Undefined, compNormal
			}
			v, comp := ctx.execStmt(n.Kids[1], env, this)
			if v.IsException() || comp == compReturn {
				return v, comp
			}
			ctx.rt.FreeValue(v)
		}

	case NodeReturn:
		if len(n.Kids) > 0 {
			v := ctx.evalExpr(n.Kids[0], env, this)
			if v.IsException() {
				return v, compNormal
			}
			return v, compReturn
		}
		return Undefined, compReturn

	case NodeThrow:
		v := ctx.evalExpr(n.Kids[0], env, this)
		if v.IsException() {
			return v, compNormal
		}
		return ctx.Throw(v), compNormal

	case NodeTry:
		return ctx.execTry(n, env, this)

	case NodeImport, NodeExport:
		// Handled by module instantiation/evaluation; inert in scripts.
		return Undefined, compNormal
	}
	return ctx.ThrowInternalError("unknown statement kind %d", n.Kind), compNormal
}

// execTry implements try/catch/finally. Uncatchable errors skip the catch
// clause; finally always runs and its abrupt completion wins.
func (ctx *Context) execTry(n *Node, env, this Value) (Value, completion) {
	v, comp := ctx.execStmt(n.Kids[0], env, this)

	if v.IsException() && n.Kids[1] != nil && !isUncatchable(ctx.pending) {
		caught := ctx.GetException()
		catchEnv := env
		if n.Name != "" {
			catchEnv = ctx.NewObjectProto(env)
			if catchEnv.IsException() {
				ctx.rt.FreeValue(caught)
				return catchEnv, compNormal
			}
			if ctx.DefinePropertyValueStr(catchEnv, n.Name, caught, PropCWE) < 0 {
				ctx.rt.FreeValue(catchEnv)
				return Exception, compNormal
			}
		} else {
			ctx.rt.FreeValue(caught)
		}
		v, comp = ctx.execStmt(n.Kids[1], catchEnv, this)
		if catchEnv.cell != env.cell {
			ctx.rt.FreeValue(catchEnv)
		}
	}

	if n.Kids[2] != nil {
		// Preserve the in-flight outcome across the finalizer.
		var saved Value
		savedPending := false
		if v.IsException() {
			saved = ctx.GetException()
			savedPending = true
		}
		fv, fcomp := ctx.execStmt(n.Kids[2], env, this)
		if fv.IsException() || fcomp == compReturn {
			if savedPending {
				ctx.rt.FreeValue(saved)
			} else {
				ctx.rt.FreeValue(v)
			}
			return fv, fcomp
		}
		ctx.rt.FreeValue(fv)
		if savedPending {
			return ctx.Throw(saved), compNormal
		}
	}
	return v, comp
}

// ---------------------------------------------------------------------------
// Expression evaluation
// ---------------------------------------------------------------------------

func (ctx *Context) evalExpr(n *Node, env, this Value) Value {
	switch n.Kind {
	case NodeNumber:
		if n.IsInt && n.Int >= math.MinInt32 && n.Int <= math.MaxInt32 {
			return NewInt32(int32(n.Int))
		}
		return NewFloat64(n.Num)
	case NodeString:
		return ctx.NewString(n.Str)
	case NodeBool:
		return NewBool(n.Int != 0)
	case NodeNull:
		return Null
	case NodeUndefined:
		return Undefined
	case NodeThis:
		return ctx.rt.DupValue(this)

	case NodeIdent:
		return ctx.lookupVar(env, n.Name)

	case NodeMember:
		obj := ctx.evalExpr(n.Kids[0], env, this)
		if obj.IsException() {
			return obj
		}
		defer ctx.rt.FreeValue(obj)
		if !obj.IsObject() {
			return ctx.ThrowTypeError("cannot read %q of %s", n.Name, tagName(obj.tag))
		}
		return ctx.GetPropertyStr(obj, n.Name)

	case NodeIndex:
		obj := ctx.evalExpr(n.Kids[0], env, this)
		if obj.IsException() {
			return obj
		}
		defer ctx.rt.FreeValue(obj)
		idx := ctx.evalExpr(n.Kids[1], env, this)
		if idx.IsException() {
			return idx
		}
		defer ctx.rt.FreeValue(idx)
		if !obj.IsObject() {
			return ctx.ThrowTypeError("cannot index %s", tagName(obj.tag))
		}
		a, ok := ctx.ToPropertyKey(idx)
		if !ok {
			return Exception
		}
		defer ctx.rt.FreeAtom(a)
		return ctx.GetProperty(obj, a)

	case NodeCall:
		return ctx.evalCall(n, env, this)

	case NodeNew:
		return ctx.evalNew(n, env, this)

	case NodeUnary:
		return ctx.evalUnary(n, env, this)

	case NodeBinary:
		return ctx.evalBinary(n, env, this)

	case NodeLogical:
		left := ctx.evalExpr(n.Kids[0], env, this)
		if left.IsException() {
			return left
		}
		truthy := ctx.ToBool(left)
		if (n.Op == "&&" && !truthy) || (n.Op == "||" && truthy) {
			return left
		}
		ctx.rt.FreeValue(left)
		return ctx.evalExpr(n.Kids[1], env, this)

	case NodeCond:
		cond := ctx.evalExpr(n.Kids[0], env, this)
		if cond.IsException() {
			return cond
		}
		truthy := ctx.ToBool(cond)
		ctx.rt.FreeValue(cond)
		if truthy {
			return ctx.evalExpr(n.Kids[1], env, this)
		}
		return ctx.evalExpr(n.Kids[2], env, this)

	case NodeAssign:
		return ctx.evalAssign(n, env, this)

	case NodeArray:
		arr := ctx.NewObject()
		if arr.IsException() {
			return arr
		}
		for i, elem := range n.Kids {
			v := ctx.evalExpr(elem, env, this)
			if v.IsException() {
				ctx.rt.FreeValue(arr)
				return v
			}
			a := ctx.rt.NewAtomUInt32(uint32(i))
			res := ctx.DefinePropertyValue(arr, a, v, PropCWE)
			ctx.rt.FreeAtom(a)
			if res < 0 {
				ctx.rt.FreeValue(arr)
				return Exception
			}
		}
		ctx.DefinePropertyValueStr(arr, "length", NewInt32(int32(len(n.Kids))), PropWritable)
		return arr

	case NodeObjectLit:
		obj := ctx.NewObject()
		if obj.IsException() {
			return obj
		}
		for i, key := range n.Keys {
			v := ctx.evalExpr(n.Kids[i], env, this)
			if v.IsException() {
				ctx.rt.FreeValue(obj)
				return v
			}
			if ctx.DefinePropertyValueStr(obj, key, v, PropCWE) < 0 {
				ctx.rt.FreeValue(obj)
				return Exception
			}
		}
		return obj

	case NodeFunc:
		cf := &CompiledFunction{
			Name:   n.Name,
			Params: n.Params,
			Body:   n.Body,
		}
		fn := ctx.newNativeFuncValue(&nativeFunc{
			name:     n.Name,
			length:   len(n.Params),
			compiled: cf,
			env:      Undefined,
		})
		if fn.IsException() {
			return fn
		}
		objectOf(fn).native.env = ctx.rt.DupValue(env)
		return fn
	}
	return ctx.ThrowInternalError("unknown expression kind %d", n.Kind)
}

// lookupVar resolves an identifier through the scope chain (scopes are
// objects prototype-linked down to the global object).
func (ctx *Context) lookupVar(env Value, name string) Value {
	a := ctx.rt.NewAtom(name)
	defer ctx.rt.FreeAtom(a)
	res := ctx.HasProperty(env, a)
	if res < 0 {
		return Exception
	}
	if res == TriFalse {
		return ctx.ThrowReferenceError("%s is not defined", name)
	}
	return ctx.GetProperty(env, a)
}

// assignVar writes an identifier binding: the owning scope if one exists,
// otherwise a fresh global. Takes ownership of val.
func (ctx *Context) assignVar(env Value, name string, val Value) int {
	a := ctx.rt.NewAtom(name)
	defer ctx.rt.FreeAtom(a)
	cur := env
	for {
		p := objectOf(cur)
		if p == nil {
			break
		}
		if p.ownProperty(a) != nil {
			return ctx.SetProperty(cur, a, val)
		}
		cur = p.proto
	}
	return ctx.SetProperty(ctx.global, a, val)
}

func (ctx *Context) evalCall(n *Node, env, this Value) Value {
	callee := n.Kids[0]

	// Method calls bind this to the receiver.
	thisArg := Undefined
	var fn Value
	switch callee.Kind {
	case NodeMember:
		obj := ctx.evalExpr(callee.Kids[0], env, this)
		if obj.IsException() {
			return obj
		}
		if !obj.IsObject() {
			ctx.rt.FreeValue(obj)
			return ctx.ThrowTypeError("cannot read %q of %s", callee.Name, tagName(obj.tag))
		}
		fn = ctx.GetPropertyStr(obj, callee.Name)
		if fn.IsException() {
			ctx.rt.FreeValue(obj)
			return fn
		}
		thisArg = obj
	default:
		fn = ctx.evalExpr(callee, env, this)
		if fn.IsException() {
			return fn
		}
		thisArg = ctx.rt.DupValue(ctx.global)
	}
	defer ctx.rt.FreeValue(fn)
	defer ctx.rt.FreeValue(thisArg)

	args, ok := ctx.evalArgs(n.Kids[1:], env, this)
	if !ok {
		return Exception
	}
	defer ctx.freeArgs(args)

	if !ctx.IsFunction(fn) {
		name := "value"
		if callee.Kind == NodeIdent {
			name = callee.Name
		} else if callee.Kind == NodeMember {
			name = callee.Name
		}
		return ctx.ThrowTypeError("%s is not a function", name)
	}
	return ctx.Call(fn, thisArg, args)
}

func (ctx *Context) evalNew(n *Node, env, this Value) Value {
	fn := ctx.evalExpr(n.Kids[0], env, this)
	if fn.IsException() {
		return fn
	}
	defer ctx.rt.FreeValue(fn)

	args, ok := ctx.evalArgs(n.Kids[1:], env, this)
	if !ok {
		return Exception
	}
	defer ctx.freeArgs(args)
	return ctx.CallConstructor(fn, args)
}

func (ctx *Context) evalArgs(nodes []*Node, env, this Value) ([]Value, bool) {
	args := make([]Value, 0, len(nodes))
	for _, an := range nodes {
		v := ctx.evalExpr(an, env, this)
		if v.IsException() {
			ctx.freeArgs(args)
			return nil, false
		}
		args = append(args, v)
	}
	return args, true
}

func (ctx *Context) freeArgs(args []Value) {
	for _, a := range args {
		ctx.rt.FreeValue(a)
	}
}

func (ctx *Context) evalUnary(n *Node, env, this Value) Value {
	if n.Op == "typeof" {
		// typeof tolerates unresolved identifiers.
		if id := n.Kids[0]; id.Kind == NodeIdent {
			a := ctx.rt.NewAtom(id.Name)
			res := ctx.HasProperty(env, a)
			ctx.rt.FreeAtom(a)
			if res < 0 {
				return Exception
			}
			if res == TriFalse {
				return ctx.NewString("undefined")
			}
		}
	}
	if n.Op == "delete" {
		target := n.Kids[0]
		if target.Kind != NodeMember && target.Kind != NodeIndex {
			return True
		}
		obj := ctx.evalExpr(target.Kids[0], env, this)
		if obj.IsException() {
			return obj
		}
		defer ctx.rt.FreeValue(obj)
		var a Atom
		if target.Kind == NodeMember {
			a = ctx.rt.NewAtom(target.Name)
		} else {
			idx := ctx.evalExpr(target.Kids[1], env, this)
			if idx.IsException() {
				return idx
			}
			var ok bool
			a, ok = ctx.ToPropertyKey(idx)
			ctx.rt.FreeValue(idx)
			if !ok {
				return Exception
			}
		}
		defer ctx.rt.FreeAtom(a)
		res := ctx.DeleteProperty(obj, a)
		if res < 0 {
			return Exception
		}
		return NewBool(res == TriTrue)
	}

	v := ctx.evalExpr(n.Kids[0], env, this)
	if v.IsException() {
		return v
	}
	defer ctx.rt.FreeValue(v)
	switch n.Op {
	case "!":
		return NewBool(!ctx.ToBool(v))
	case "-":
		if v.tag == TagInt && v.i != math.MinInt64 {
			return NewInt64(-v.i)
		}
		f, ok := ctx.ToFloat64(v)
		if !ok {
			return Exception
		}
		return NewFloat64(-f)
	case "+":
		f, ok := ctx.ToFloat64(v)
		if !ok {
			return Exception
		}
		return NewFloat64(f)
	case "typeof":
		return ctx.NewString(typeofName(ctx, v))
	}
	return ctx.ThrowInternalError("unknown unary operator %q", n.Op)
}

func typeofName(ctx *Context, v Value) string {
	switch v.tag {
	case TagInt, TagFloat64:
		return "number"
	case TagBool:
		return "boolean"
	case TagString:
		return "string"
	case TagBigInt:
		return "bigint"
	case TagSymbol:
		return "symbol"
	case TagUndefined, TagUninitialized:
		return "undefined"
	case TagObject:
		if ctx.IsFunction(v) {
			return "function"
		}
		return "object"
	}
	return "object"
}

func (ctx *Context) evalBinary(n *Node, env, this Value) Value {
	left := ctx.evalExpr(n.Kids[0], env, this)
	if left.IsException() {
		return left
	}
	defer ctx.rt.FreeValue(left)
	right := ctx.evalExpr(n.Kids[1], env, this)
	if right.IsException() {
		return right
	}
	defer ctx.rt.FreeValue(right)
	return ctx.applyBinary(n.Op, left, right)
}

// applyBinary implements the arithmetic and comparison operators over
// borrowed operands.
func (ctx *Context) applyBinary(op string, left, right Value) Value {
	switch op {
	case "===", "!==":
		eq := ctx.strictEquals(left, right)
		if op == "!==" {
			eq = !eq
		}
		return NewBool(eq)
	case "==", "!=":
		// Loose equality degrades to strict plus numeric cross-coercion.
		eq := ctx.strictEquals(left, right)
		if !eq && left.IsNumber() != right.IsNumber() {
			lf, ok1 := ctx.ToFloat64(left)
			rf, ok2 := ctx.ToFloat64(right)
			if !ok1 || !ok2 {
				return Exception
			}
			eq = lf == rf
		}
		if op == "!=" {
			eq = !eq
		}
		return NewBool(eq)
	}

	if op == "+" && (left.tag == TagString || right.tag == TagString) {
		ls, ok := ctx.ToGoString(left)
		if !ok {
			return Exception
		}
		rs, ok := ctx.ToGoString(right)
		if !ok {
			return Exception
		}
		return ctx.NewString(ls + rs)
	}

	// Integer fast path.
	if left.tag == TagInt && right.tag == TagInt {
		a, b := left.i, right.i
		switch op {
		case "+":
			if r := a + b; (r > a) == (b > 0) {
				return NewInt64(r)
			}
		case "-":
			if r := a - b; (r < a) == (b > 0) {
				return NewInt64(r)
			}
		case "*":
			if a == 0 || b == 0 {
				return NewInt32(0)
			}
			if r := a * b; r/b == a {
				return NewInt64(r)
			}
		case "%":
			if b != 0 {
				return NewInt64(a % b)
			}
		case "<":
			return NewBool(a < b)
		case "<=":
			return NewBool(a <= b)
		case ">":
			return NewBool(a > b)
		case ">=":
			return NewBool(a >= b)
		}
	}

	if op == "<" || op == "<=" || op == ">" || op == ">=" {
		if left.tag == TagString && right.tag == TagString {
			ls, _ := stringContent(left)
			rs, _ := stringContent(right)
			switch op {
			case "<":
				return NewBool(ls < rs)
			case "<=":
				return NewBool(ls <= rs)
			case ">":
				return NewBool(ls > rs)
			case ">=":
				return NewBool(ls >= rs)
			}
		}
	}

	lf, ok := ctx.ToFloat64(left)
	if !ok {
		return Exception
	}
	rf, ok := ctx.ToFloat64(right)
	if !ok {
		return Exception
	}
	switch op {
	case "+":
		return NewFloat64(lf + rf)
	case "-":
		return NewFloat64(lf - rf)
	case "*":
		return NewFloat64(lf * rf)
	case "/":
		return NewFloat64(lf / rf)
	case "%":
		return NewFloat64(math.Mod(lf, rf))
	case "<":
		return NewBool(lf < rf)
	case "<=":
		return NewBool(lf <= rf)
	case ">":
		return NewBool(lf > rf)
	case ">=":
		return NewBool(lf >= rf)
	}
	return ctx.ThrowInternalError("unknown binary operator %q", op)
}

// strictEquals implements === without coercion beyond int/float mixing.
func (ctx *Context) strictEquals(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		af, _ := ctx.ToFloat64(a)
		bf, _ := ctx.ToFloat64(b)
		return af == bf
	}
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagString:
		as, _ := stringContent(a)
		bs, _ := stringContent(b)
		return as == bs
	case TagBigInt:
		ab, _ := bigIntContent(a)
		bb, _ := bigIntContent(b)
		return ab.Cmp(bb) == 0
	case TagBool:
		return a.i == b.i
	case TagNull, TagUndefined:
		return true
	}
	return a.cell == b.cell
}

func (ctx *Context) evalAssign(n *Node, env, this Value) Value {
	target := n.Kids[0]

	// Compound assignment reads the target first.
	computeValue := func(current func() Value) Value {
		if n.Op == "" {
			return ctx.evalExpr(n.Kids[1], env, this)
		}
		old := current()
		if old.IsException() {
			return old
		}
		defer ctx.rt.FreeValue(old)
		rhs := ctx.evalExpr(n.Kids[1], env, this)
		if rhs.IsException() {
			return rhs
		}
		defer ctx.rt.FreeValue(rhs)
		return ctx.applyBinary(n.Op, old, rhs)
	}

	switch target.Kind {
	case NodeIdent:
		val := computeValue(func() Value { return ctx.lookupVar(env, target.Name) })
		if val.IsException() {
			return val
		}
		if ctx.assignVar(env, target.Name, ctx.rt.DupValue(val)) < 0 {
			ctx.rt.FreeValue(val)
			return Exception
		}
		return val

	case NodeMember, NodeIndex:
		obj := ctx.evalExpr(target.Kids[0], env, this)
		if obj.IsException() {
			return obj
		}
		defer ctx.rt.FreeValue(obj)
		if !obj.IsObject() {
			return ctx.ThrowTypeError("cannot assign property of %s", tagName(obj.tag))
		}
		var a Atom
		if target.Kind == NodeMember {
			a = ctx.rt.NewAtom(target.Name)
		} else {
			idx := ctx.evalExpr(target.Kids[1], env, this)
			if idx.IsException() {
				return idx
			}
			var ok bool
			a, ok = ctx.ToPropertyKey(idx)
			ctx.rt.FreeValue(idx)
			if !ok {
				return Exception
			}
		}
		defer ctx.rt.FreeAtom(a)
		val := computeValue(func() Value { return ctx.GetProperty(obj, a) })
		if val.IsException() {
			return val
		}
		if ctx.SetProperty(obj, a, ctx.rt.DupValue(val)) < 0 {
			ctx.rt.FreeValue(val)
			return Exception
		}
		return val
	}
	return ctx.ThrowSyntaxError("invalid assignment target")
}
