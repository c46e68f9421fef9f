package engine

import "path"

// ---------------------------------------------------------------------------
// Modules: distinct heap entities with a resolution state machine
// ---------------------------------------------------------------------------

// ModuleState tracks a module through its lifecycle. Transitions only move
// forward; an evaluation failure is sticky and resurfaces on dependents.
type ModuleState int

const (
	ModuleDeclared ModuleState = iota
	ModuleResolving
	ModuleInstantiated
	ModuleEvaluating
	ModuleEvaluated
	ModuleErrored
)

func (s ModuleState) String() string {
	switch s {
	case ModuleDeclared:
		return "declared"
	case ModuleResolving:
		return "resolving"
	case ModuleInstantiated:
		return "instantiated"
	case ModuleEvaluating:
		return "evaluating"
	case ModuleEvaluated:
		return "evaluated"
	case ModuleErrored:
		return "errored"
	}
	return "unknown"
}

// ModuleNormalizeFunc maps an import specifier to a canonical module name,
// relative to the importing module.
type ModuleNormalizeFunc func(ctx *Context, base, name string) string

// ModuleLoaderFunc produces the module Value for a normalized name,
// typically by reading source and compiling it with CompileModule. Returns
// the Exception sentinel after throwing when the module cannot be loaded.
type ModuleLoaderFunc func(ctx *Context, name string) Value

type moduleExport struct {
	name  string
	value Value // owned
}

// modulePayload backs TagModule cells.
type modulePayload struct {
	name    string
	state   ModuleState
	fn      *CompiledFunction
	exports []moduleExport

	// Sticky evaluation error.
	err    Value
	hasErr bool
}

func (p *modulePayload) kind() Tag { return TagModule }

func (p *modulePayload) eachChild(rt *Runtime, fn func(Value)) {
	for _, e := range p.exports {
		if e.value.HasRefCount() {
			fn(e.value)
		}
	}
	if p.hasErr && p.err.HasRefCount() {
		fn(p.err)
	}
}

func (p *modulePayload) footprint() int {
	return cellBaseSize + len(p.name) + 64*len(p.exports) + 64*countNodes(p.fn.Body)
}

func moduleOf(v Value) *modulePayload {
	if v.tag != TagModule || v.cell == nil {
		return nil
	}
	return v.cell.payload.(*modulePayload)
}

// newModuleValue creates a declared module cell for a compiled body.
func (ctx *Context) newModuleValue(name string, fn *CompiledFunction) Value {
	v, ok := ctx.rt.newCell(&modulePayload{
		name:  name,
		state: ModuleDeclared,
		fn:    fn,
		err:   Undefined,
	})
	if !ok {
		return ctx.ThrowOutOfMemory()
	}
	return v
}

// CompileModule compiles module source into a declared module Value
// without touching the registry.
func (ctx *Context) CompileModule(source, name string) Value {
	return ctx.Eval(source, name, EvalTypeModule|EvalFlagCompileOnly)
}

// ModuleName returns the canonical name of a module Value.
func (ctx *Context) ModuleName(v Value) string {
	if p := moduleOf(v); p != nil {
		return p.name
	}
	return ""
}

// ModuleStateOf returns the lifecycle state of a module Value.
func (ctx *Context) ModuleStateOf(v Value) ModuleState {
	if p := moduleOf(v); p != nil {
		return p.state
	}
	return ModuleDeclared
}

// GetModuleExport returns an owned copy of a named export, or Undefined.
// Exports materialize during evaluation.
func (ctx *Context) GetModuleExport(v Value, name string) Value {
	p := moduleOf(v)
	if p == nil {
		return Undefined
	}
	for _, e := range p.exports {
		if e.name == name {
			return ctx.rt.DupValue(e.value)
		}
	}
	return Undefined
}

// ModuleExportNames returns the export names in declaration order.
func (ctx *Context) ModuleExportNames(v Value) []string {
	p := moduleOf(v)
	if p == nil {
		return nil
	}
	names := make([]string, len(p.exports))
	for i, e := range p.exports {
		names[i] = e.name
	}
	return names
}

// ---------------------------------------------------------------------------
// Loader hooks and resolution
// ---------------------------------------------------------------------------

// SetModuleLoader installs the normalizer and loader hooks. A nil
// normalizer selects the default relative-specifier resolution.
func (ctx *Context) SetModuleLoader(normalize ModuleNormalizeFunc, load ModuleLoaderFunc) {
	ctx.moduleNormalize = normalize
	ctx.moduleLoader = load
}

// defaultNormalizeModule resolves "./" and "../" specifiers against the
// importing module's name; bare specifiers pass through.
func defaultNormalizeModule(base, name string) string {
	if len(name) >= 2 && name[:2] == "./" || len(name) >= 3 && name[:3] == "../" {
		return path.Join(path.Dir(base), name)
	}
	return name
}

// ResolveModule normalizes a specifier against the importing module and
// returns an owned share of the named module, loading it on first use.
// Returns the Exception sentinel on resolution failure.
func (ctx *Context) ResolveModule(base, name string) Value {
	normalized := name
	if ctx.moduleNormalize != nil {
		normalized = ctx.moduleNormalize(ctx, base, name)
	} else {
		normalized = defaultNormalizeModule(base, name)
	}
	if ctx.rt.dumpFlags&DumpModuleResolve != 0 {
		ctx.rt.logger.Debugf("resolve module %q from %q -> %q", name, base, normalized)
	}

	if m, ok := ctx.modules[normalized]; ok {
		return ctx.rt.DupValue(m)
	}
	if ctx.moduleLoader == nil {
		return ctx.ThrowReferenceError("could not load module %q: no module loader installed", normalized)
	}
	m := ctx.moduleLoader(ctx, normalized)
	if m.IsException() {
		return m
	}
	if moduleOf(m) == nil {
		ctx.rt.FreeValue(m)
		return ctx.ThrowTypeError("module loader returned a non-module for %q", normalized)
	}
	ctx.modules[normalized] = m
	return ctx.rt.DupValue(m)
}

// ---------------------------------------------------------------------------
// Instantiation and evaluation
// ---------------------------------------------------------------------------

// instantiateModule resolves the dependency graph below m. Tri-state
// result. Cycles are permitted: a dependency already resolving is not
// revisited.
func (ctx *Context) instantiateModule(m Value) int {
	p := moduleOf(m)
	if p == nil {
		ctx.ThrowTypeError("not a module")
		return TriException
	}
	switch p.state {
	case ModuleDeclared:
	case ModuleResolving:
		return TriTrue
	case ModuleErrored:
		ctx.Throw(ctx.rt.DupValue(p.err))
		return TriException
	default:
		return TriTrue
	}

	p.state = ModuleResolving
	for _, st := range p.fn.Body {
		if st.Kind != NodeImport {
			continue
		}
		dep := ctx.ResolveModule(p.name, st.Str)
		if dep.IsException() {
			p.state = ModuleErrored
			p.err = ctx.rt.DupValue(ctx.pending)
			p.hasErr = true
			return TriException
		}
		res := ctx.instantiateModule(dep)
		ctx.rt.FreeValue(dep)
		if res < 0 {
			p.state = ModuleErrored
			p.err = ctx.rt.DupValue(ctx.pending)
			p.hasErr = true
			return TriException
		}
	}
	p.state = ModuleInstantiated
	return TriTrue
}

// evaluateModule runs m's body (dependencies first), materializing the
// export table. Repeat evaluation of an evaluated module is a no-op; a
// failed module rethrows its sticky error.
func (ctx *Context) evaluateModule(m Value) Value {
	p := moduleOf(m)
	if p == nil {
		return ctx.ThrowTypeError("not a module")
	}
	switch p.state {
	case ModuleEvaluated, ModuleEvaluating:
		return Undefined
	case ModuleErrored:
		return ctx.Throw(ctx.rt.DupValue(p.err))
	case ModuleDeclared, ModuleResolving:
		return ctx.ThrowInternalError("module %q evaluated before instantiation", p.name)
	}

	p.state = ModuleEvaluating

	// Dependencies evaluate in import order.
	for _, st := range p.fn.Body {
		if st.Kind != NodeImport {
			continue
		}
		dep := ctx.ResolveModule(p.name, st.Str)
		if dep.IsException() {
			return ctx.moduleFailed(p)
		}
		r := ctx.evaluateModule(dep)
		ctx.rt.FreeValue(dep)
		if r.IsException() {
			return ctx.moduleFailed(p)
		}
		ctx.rt.FreeValue(r)
	}

	env := ctx.NewObjectProto(ctx.global)
	if env.IsException() {
		return ctx.moduleFailed(p)
	}
	defer ctx.rt.FreeValue(env)

	if !ctx.pushFrame(stackFrame{name: "<module>", filename: p.name}) {
		return ctx.moduleFailed(p)
	}
	defer ctx.popFrame()

	for _, st := range p.fn.Body {
		run := st
		isExport := st.Kind == NodeExport
		if isExport {
			run = st.Kids[0]
		}
		v, _ := ctx.execStmt(run, env, ctx.global)
		if v.IsException() {
			return ctx.moduleFailed(p)
		}
		ctx.rt.FreeValue(v)
		if isExport {
			val := ctx.GetPropertyStr(env, run.Name)
			if val.IsException() {
				return ctx.moduleFailed(p)
			}
			p.exports = append(p.exports, moduleExport{name: run.Name, value: val})
		}
	}

	p.state = ModuleEvaluated
	return Undefined
}

// moduleFailed transitions to the sticky errored state, keeping the
// pending exception both pending and recorded.
func (ctx *Context) moduleFailed(p *modulePayload) Value {
	p.state = ModuleErrored
	if !p.hasErr {
		p.err = ctx.rt.DupValue(ctx.pending)
		p.hasErr = true
	}
	return Exception
}
