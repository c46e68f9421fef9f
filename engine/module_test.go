package engine

import (
	"testing"
)

// installMapLoader wires a loader backed by an in-memory source map.
func installMapLoader(ctx *Context, sources map[string]string) {
	ctx.SetModuleLoader(nil, func(ctx *Context, name string) Value {
		src, ok := sources[name]
		if !ok {
			return ctx.ThrowReferenceError("could not load module %q", name)
		}
		return ctx.CompileModule(src, name)
	})
}

// ---------------------------------------------------------------------------
// Normalization
// ---------------------------------------------------------------------------

func TestDefaultNormalizeModule(t *testing.T) {
	cases := []struct {
		base, name, want string
	}{
		{"app/main", "./util", "app/util"},
		{"app/main", "../shared/log", "shared/log"},
		{"main", "./sib", "sib"},
		{"app/main", "fs", "fs"},
	}
	for _, c := range cases {
		if got := defaultNormalizeModule(c.base, c.name); got != c.want {
			t.Errorf("normalize(%q, %q) = %q, want %q", c.base, c.name, got, c.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Compilation and state machine
// ---------------------------------------------------------------------------

func TestCompileModuleYieldsDeclaredModule(t *testing.T) {
	rt, ctx := newTestRealm(t)

	m := ctx.CompileModule(`export var answer = 42;`, "answer")
	if m.IsException() {
		t.Fatalf("compile failed: %v", ctx.GetException())
	}
	defer rt.FreeValue(m)
	if !m.IsModule() {
		t.Fatal("CompileModule did not yield a module value")
	}
	if ctx.ModuleName(m) != "answer" {
		t.Errorf("name = %q", ctx.ModuleName(m))
	}
	if ctx.ModuleStateOf(m) != ModuleDeclared {
		t.Errorf("state = %v, want declared", ctx.ModuleStateOf(m))
	}
}

func TestModuleEvaluationMaterializesExports(t *testing.T) {
	rt, ctx := newTestRealm(t)

	m := ctx.CompileModule(`
		export var answer = 6 * 7;
		export function greet(name) { return "hi " + name; }
	`, "lib")
	if m.IsException() {
		t.Fatalf("compile failed: %v", ctx.GetException())
	}
	defer rt.FreeValue(m)

	v := ctx.EvalFunction(rt.DupValue(m))
	if v.IsException() {
		t.Fatalf("evaluation failed: %v", ctx.GetException())
	}
	rt.FreeValue(v)
	if ctx.ModuleStateOf(m) != ModuleEvaluated {
		t.Fatalf("state = %v, want evaluated", ctx.ModuleStateOf(m))
	}

	names := ctx.ModuleExportNames(m)
	if len(names) != 2 || names[0] != "answer" || names[1] != "greet" {
		t.Errorf("export names = %v", names)
	}

	answer := ctx.GetModuleExport(m, "answer")
	if n, _ := ctx.ToInt64(answer); n != 42 {
		t.Errorf("answer export = %v", answer)
	}
	rt.FreeValue(answer)

	greet := ctx.GetModuleExport(m, "greet")
	out := ctx.Call(greet, Undefined, []Value{ctx.NewString("mod")})
	rt.FreeValue(greet)
	if s, _ := stringContent(out); s != "hi mod" {
		t.Errorf("greet export result = %v", out)
	}
	rt.FreeValue(out)

	if !ctx.GetModuleExport(m, "absent").IsUndefined() {
		t.Error("absent export is not undefined")
	}
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

func TestImportRunsDependencyOnce(t *testing.T) {
	rt, ctx := newTestRealm(t)

	installMapLoader(ctx, map[string]string{
		"counter": `count = count + 1;`,
	})
	rt.FreeValue(evalOK(t, ctx, "var count = 0;"))

	v := ctx.Eval(`
		import "counter";
		import "counter";
	`, "main", EvalTypeModule)
	if v.IsException() {
		t.Fatalf("module eval failed: %v", ctx.GetException())
	}
	rt.FreeValue(v)

	// Both the double import and a second importer reuse the evaluated
	// instance.
	v = ctx.Eval(`import "counter";`, "again", EvalTypeModule)
	if v.IsException() {
		t.Fatalf("second module failed: %v", ctx.GetException())
	}
	rt.FreeValue(v)

	evalInt(t, ctx, "count", 1)
}

func TestImportChainEvaluatesInOrder(t *testing.T) {
	rt, ctx := newTestRealm(t)

	installMapLoader(ctx, map[string]string{
		"a": `import "b"; order = order + "a";`,
		"b": `order = order + "b";`,
	})
	rt.FreeValue(evalOK(t, ctx, `var order = "";`))

	v := ctx.Eval(`import "a"; order = order + "m";`, "main", EvalTypeModule)
	if v.IsException() {
		t.Fatalf("module eval failed: %v", ctx.GetException())
	}
	rt.FreeValue(v)

	evalStr(t, ctx, "order", "bam")
}

func TestImportCycleDoesNotDiverge(t *testing.T) {
	rt, ctx := newTestRealm(t)

	installMapLoader(ctx, map[string]string{
		"ying": `import "yang"; export var y = 1;`,
		"yang": `import "ying"; export var z = 2;`,
	})

	m := ctx.ResolveModule("", "ying")
	if m.IsException() {
		t.Fatalf("resolve failed: %v", ctx.GetException())
	}
	v := ctx.EvalFunction(m)
	if v.IsException() {
		t.Fatalf("cyclic evaluation failed: %v", ctx.GetException())
	}
	rt.FreeValue(v)
}

func TestMissingModuleThrows(t *testing.T) {
	rt, ctx := newTestRealm(t)

	installMapLoader(ctx, map[string]string{})
	v := ctx.Eval(`import "nowhere";`, "main", EvalTypeModule)
	if !v.IsException() {
		rt.FreeValue(v)
		t.Fatal("missing dependency did not throw")
	}
	err := ctx.GetException()
	defer rt.FreeValue(err)
	if kind := ctx.ErrorKindOf(err); kind != ErrorReference {
		t.Errorf("kind = %v, want %v", kind, ErrorReference)
	}
}

func TestLoaderlessResolveThrows(t *testing.T) {
	rt, ctx := newTestRealm(t)

	v := ctx.ResolveModule("", "anything")
	if !v.IsException() {
		rt.FreeValue(v)
		t.Fatal("resolution without a loader did not throw")
	}
	rt.FreeValue(ctx.GetException())
}

func TestCustomNormalizer(t *testing.T) {
	rt, ctx := newTestRealm(t)

	var seen []string
	ctx.SetModuleLoader(
		func(ctx *Context, base, name string) string {
			return "ns/" + name
		},
		func(ctx *Context, name string) Value {
			seen = append(seen, name)
			return ctx.CompileModule("", name)
		},
	)

	m := ctx.ResolveModule("main", "thing")
	if m.IsException() {
		t.Fatalf("resolve failed: %v", ctx.GetException())
	}
	if ctx.ModuleName(m) != "ns/thing" {
		t.Errorf("module name = %q", ctx.ModuleName(m))
	}
	rt.FreeValue(m)
	if len(seen) != 1 || seen[0] != "ns/thing" {
		t.Errorf("loader saw %v", seen)
	}
}

// ---------------------------------------------------------------------------
// Sticky errors
// ---------------------------------------------------------------------------

func TestModuleErrorIsSticky(t *testing.T) {
	rt, ctx := newTestRealm(t)

	installMapLoader(ctx, map[string]string{
		"broken": `throw new TypeError("stays broken");`,
	})

	m := ctx.ResolveModule("", "broken")
	if m.IsException() {
		t.Fatalf("resolve failed: %v", ctx.GetException())
	}

	v := ctx.EvalFunction(rt.DupValue(m))
	if !v.IsException() {
		rt.FreeValue(v)
		t.Fatal("failing module did not throw")
	}
	first := ctx.GetException()
	if ctx.ModuleStateOf(m) != ModuleErrored {
		t.Fatalf("state = %v, want errored", ctx.ModuleStateOf(m))
	}

	// Re-evaluation rethrows the identical error object.
	v = ctx.EvalFunction(rt.DupValue(m))
	if !v.IsException() {
		rt.FreeValue(v)
		t.Fatal("errored module did not rethrow")
	}
	second := ctx.GetException()
	if !SameValue(first, second) {
		t.Error("sticky error lost identity across evaluations")
	}
	rt.FreeValue(first)
	rt.FreeValue(second)
	rt.FreeValue(m)
}

func TestDependentOfErroredModuleFails(t *testing.T) {
	rt, ctx := newTestRealm(t)

	installMapLoader(ctx, map[string]string{
		"bad":  `throw new RangeError("no");`,
		"user": `import "bad"; export var unreached = 1;`,
	})

	m := ctx.ResolveModule("", "user")
	if m.IsException() {
		t.Fatalf("resolve failed: %v", ctx.GetException())
	}
	v := ctx.EvalFunction(rt.DupValue(m))
	if !v.IsException() {
		rt.FreeValue(v)
		t.Fatal("dependent of a failing module succeeded")
	}
	err := ctx.GetException()
	if kind := ctx.ErrorKindOf(err); kind != ErrorRange {
		t.Errorf("propagated kind = %v, want %v", kind, ErrorRange)
	}
	rt.FreeValue(err)
	if ctx.ModuleStateOf(m) != ModuleErrored {
		t.Errorf("dependent state = %v, want errored", ctx.ModuleStateOf(m))
	}
	if len(ctx.ModuleExportNames(m)) != 0 {
		t.Error("failed module materialized exports")
	}
	rt.FreeValue(m)
}
