package engine

// ---------------------------------------------------------------------------
// Cycle collector
// ---------------------------------------------------------------------------

// RunGC collects reference cycles that plain counting cannot reclaim.
//
// The pass works in three phases over the live cell set: compute how many
// of each cell's references come from other live cells, take the cells
// with additional external references as roots, then mark everything
// reachable from the roots. Whatever stays unmarked is garbage kept alive
// only by itself and is torn down as a group.
func (rt *Runtime) RunGC() {
	if rt.inGC {
		return
	}
	rt.inGC = true
	defer func() {
		rt.inGC = false
		rt.gcBytes = 0
	}()

	if rt.dumpFlags&DumpGC != 0 {
		rt.logger.Debugf("gc: start, %d live cells", len(rt.cells))
	}

	// Phase 1: count internal references.
	internal := make(map[*cell]int, len(rt.cells))
	for c := range rt.cells {
		c.payload.eachChild(rt, func(child Value) {
			if child.HasRefCount() && child.cell != nil {
				internal[child.cell]++
			}
		})
	}

	// Phase 2: mark from external roots.
	marked := make(map[*cell]struct{}, len(rt.cells))
	var stack []*cell
	for c := range rt.cells {
		if c.refCount > internal[c] {
			marked[c] = struct{}{}
			stack = append(stack, c)
		}
	}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c.payload.eachChild(rt, func(child Value) {
			if !child.HasRefCount() || child.cell == nil {
				return
			}
			if _, ok := marked[child.cell]; ok {
				return
			}
			marked[child.cell] = struct{}{}
			stack = append(stack, child.cell)
		})
	}

	// Phase 3: tear down the unmarked cycles as a group. References from a
	// dying cell into surviving cells are released normally; references
	// between dying cells are dropped without touching counts, since the
	// whole group goes away at once.
	var dead []*cell
	for c := range rt.cells {
		if _, ok := marked[c]; !ok {
			dead = append(dead, c)
		}
	}
	deadSet := make(map[*cell]struct{}, len(dead))
	for _, c := range dead {
		deadSet[c] = struct{}{}
	}
	for _, c := range dead {
		rt.runCellFinalizer(c)
	}
	for _, c := range dead {
		c.payload.eachChild(rt, func(child Value) {
			if !child.HasRefCount() || child.cell == nil {
				return
			}
			if _, dying := deadSet[child.cell]; dying {
				return
			}
			child.cell.refCount--
			if child.cell.refCount == 0 {
				rt.freeCell(child.cell)
			}
		})
	}
	for _, c := range dead {
		c.refCount = 0
		rt.untrackCell(c)
	}

	if rt.dumpFlags&DumpGC != 0 {
		rt.logger.Debugf("gc: done, freed %d cells, %d live", len(dead), len(rt.cells))
	}
}
