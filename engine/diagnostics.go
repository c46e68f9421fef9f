package engine

// ---------------------------------------------------------------------------
// Diagnostics: dump flags and leak reporting
// ---------------------------------------------------------------------------

// DumpFlags select extra diagnostic logging. All dumps go through the
// runtime's logger at debug level; leak reports use warning level.
type DumpFlags uint32

const (
	DumpFree DumpFlags = 1 << iota
	DumpLeaks
	DumpMem
	DumpObjects
	DumpAtoms
	DumpGC
	DumpModuleResolve
	DumpJobs
	DumpRead
)

// SetDumpFlags selects which diagnostic dumps are active.
func (rt *Runtime) SetDumpFlags(flags DumpFlags) {
	rt.dumpFlags = flags
}

// DumpFlagsSet returns the active dump flags.
func (rt *Runtime) DumpFlagsSet() DumpFlags {
	return rt.dumpFlags
}

// dumpLeaks reports Contexts and heap cells that outlived the Runtime.
// Called from Free; a clean teardown logs nothing.
func (rt *Runtime) dumpLeaks() {
	if len(rt.contexts) > 0 {
		rt.logger.Warningf("%d context(s) leaked at runtime teardown", len(rt.contexts))
	}
	if len(rt.cells) > 0 {
		rt.logger.Warningf("%d heap cell(s) leaked at runtime teardown", len(rt.cells))
		if rt.dumpFlags&DumpLeaks != 0 {
			counts := make(map[Tag]int)
			for c := range rt.cells {
				counts[c.payload.kind()]++
			}
			for tag, n := range counts {
				rt.logger.Warningf("  %d leaked %s cell(s)", n, tagName(tag))
			}
		}
	}
	if rt.dumpFlags&DumpAtoms != 0 {
		rt.atoms.each(func(a Atom, name string, refCount int) {
			rt.logger.Debugf("atom %d %q refcount=%d", a, name, refCount)
		})
	}
	if rt.dumpFlags&DumpMem != 0 {
		bytes, cells, atoms := rt.MemoryUsage()
		rt.logger.Debugf("memory: %d bytes, %d cells, %d atoms", bytes, cells, atoms)
	}
}
