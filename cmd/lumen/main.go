package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/lumen/engine"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose logging")
	compileOnly := flag.Bool("c", false, "Compile only; write the serialized object next to the source")
	moduleMode := flag.Bool("m", false, "Evaluate as a module")
	expr := flag.String("e", "", "Evaluate an expression instead of a file")
	noCache := flag.Bool("no-cache", false, "Bypass the compiled-object cache")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lumen [options] [file]\n\n")
		fmt.Fprintf(os.Stderr, "Evaluates a script or module against a fresh engine and prints the result.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lumen script.js          # Evaluate a script\n")
		fmt.Fprintf(os.Stderr, "  lumen -m mod.js          # Evaluate a module\n")
		fmt.Fprintf(os.Stderr, "  lumen -c script.js       # Compile to script.js.lumo\n")
		fmt.Fprintf(os.Stderr, "  lumen -e '1 + 2'         # Evaluate an expression\n")
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	cfg, err := LoadConfig(".")
	if err != nil {
		fatal(err)
	}

	os.Exit(run(cfg, *expr, flag.Arg(0), *moduleMode, *compileOnly, *noCache))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func run(cfg *Config, expr, file string, moduleMode, compileOnly, noCache bool) int {
	rt := engine.NewRuntime()
	defer rt.Free()
	if cfg.Engine.MemoryLimit > 0 {
		rt.SetMemoryLimit(cfg.Engine.MemoryLimit)
	}
	if cfg.Engine.GCThreshold > 0 {
		rt.SetGCThreshold(cfg.Engine.GCThreshold)
	}
	if cfg.Engine.MaxStackSize > 0 {
		rt.SetMaxStackSize(cfg.Engine.MaxStackSize)
	}
	dump, err := cfg.DumpFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	rt.SetDumpFlags(dump)

	ctx := engine.NewContext(rt)
	defer ctx.Free()
	installModuleLoader(ctx, cfg)

	var cache *Cache
	if !noCache && !cfg.Cache.Disabled {
		path, err := cfg.CachePath()
		if err == nil {
			if c, err := OpenCache(path); err == nil {
				cache = c
				defer cache.Close()
			}
		}
	}

	source := expr
	filename := "<cmdline>"
	if expr == "" {
		if file == "" {
			flag.Usage()
			return 2
		}
		data, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		source = string(data)
		filename = file
	}

	var flags engine.EvalFlags
	if moduleMode || strings.HasSuffix(filename, ".mjs") {
		flags |= engine.EvalTypeModule
	}

	if compileOnly {
		return compile(ctx, cache, source, filename, flags)
	}

	result := evalWithCache(ctx, cache, source, filename, flags)
	if result.IsException() {
		reportException(ctx)
		return 1
	}

	if s, ok := ctx.ToGoString(result); ok && !result.IsUndefined() {
		fmt.Println(s)
	}
	rt.FreeValue(result)

	// Drain deferred work before teardown.
	for ctx.IsJobPending() {
		ran, jobErr := ctx.ExecutePendingJob()
		if !ran {
			break
		}
		if !jobErr.IsNull() {
			printErrorValue(ctx, jobErr)
			rt.FreeValue(jobErr)
			return 1
		}
	}
	return 0
}

// evalWithCache evaluates source, going through the serialized-object
// cache when one is open.
func evalWithCache(ctx *engine.Context, cache *Cache, source, filename string, flags engine.EvalFlags) engine.Value {
	if cache == nil {
		return ctx.Eval(source, filename, flags)
	}
	hash := SourceHash(source)
	if data, ok, err := cache.Get(hash); err == nil && ok {
		obj := ctx.ReadObject(data, engine.ReadBytecode)
		if !obj.IsException() {
			return ctx.EvalFunction(obj)
		}
		// Stale or incompatible entry; fall back to the source.
		ctx.GetException()
	}
	obj := ctx.Eval(source, filename, flags|engine.EvalFlagCompileOnly)
	if obj.IsException() {
		return obj
	}
	if data, err := ctx.WriteObject(obj, engine.WriteBytecode); err == nil {
		cache.Put(hash, data)
	}
	return ctx.EvalFunction(obj)
}

// compile serializes without evaluating, writing <file>.lumo.
func compile(ctx *engine.Context, cache *Cache, source, filename string, flags engine.EvalFlags) int {
	obj := ctx.Eval(source, filename, flags|engine.EvalFlagCompileOnly)
	if obj.IsException() {
		reportException(ctx)
		return 1
	}
	data, err := ctx.WriteObject(obj, engine.WriteBytecode)
	ctx.Runtime().FreeValue(obj)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if cache != nil {
		cache.Put(SourceHash(source), data)
	}
	out := filename + ".lumo"
	if filename == "<cmdline>" {
		out = "cmdline.lumo"
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s (%d bytes)\n", out, len(data))
	return 0
}

// installModuleLoader wires filesystem module resolution through the
// configured search paths.
func installModuleLoader(ctx *engine.Context, cfg *Config) {
	ctx.SetModuleLoader(nil, func(ctx *engine.Context, name string) engine.Value {
		candidates := []string{name}
		for _, dir := range cfg.Modules.Paths {
			candidates = append(candidates, filepath.Join(cfg.Dir, dir, name))
		}
		for _, path := range candidates {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			return ctx.CompileModule(string(data), name)
		}
		return ctx.ThrowReferenceError("could not load module %q", name)
	})
}

func reportException(ctx *engine.Context) {
	err := ctx.GetException()
	printErrorValue(ctx, err)
	ctx.Runtime().FreeValue(err)
}

func printErrorValue(ctx *engine.Context, err engine.Value) {
	s, ok := ctx.ToGoString(err)
	if !ok {
		ctx.GetException()
		s = "unknown error"
	}
	fmt.Fprintf(os.Stderr, "Uncaught %s\n", s)
}
