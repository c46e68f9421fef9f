package engine

import (
	"strconv"
	"sync"
)

// ---------------------------------------------------------------------------
// AtomTable: Interned, reference-counted property-key handles
// ---------------------------------------------------------------------------

// Atom is an opaque handle for an interned property-key string. Equal
// strings always intern to the equal Atom within one Runtime, so atom
// comparison is handle equality, never string comparison.
type Atom uint32

// AtomNull is the reserved "no atom" handle.
const AtomNull Atom = 0

type atomEntry struct {
	name     string
	refCount int
}

// atomTable interns strings to handles. Entries are reference counted;
// slot 0 is reserved and dead slots are recycled through a free list.
type atomTable struct {
	mu      sync.RWMutex
	byName  map[string]Atom
	entries []atomEntry
	free    []Atom
}

func newAtomTable() *atomTable {
	return &atomTable{
		byName:  make(map[string]Atom),
		entries: make([]atomEntry, 1, 64), // slot 0 = AtomNull
	}
}

// intern returns an owned handle for name, creating a slot if needed.
// Returns the number of bytes newly charged for string storage.
func (t *atomTable) intern(name string) (Atom, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.byName[name]; ok {
		t.entries[a].refCount++
		return a, 0
	}

	var a Atom
	if n := len(t.free); n > 0 {
		a = t.free[n-1]
		t.free = t.free[:n-1]
		t.entries[a] = atomEntry{name: name, refCount: 1}
	} else {
		a = Atom(len(t.entries))
		t.entries = append(t.entries, atomEntry{name: name, refCount: 1})
	}
	t.byName[name] = a
	return a, len(name)
}

// dup increments the count of a live handle.
func (t *atomTable) dup(a Atom) Atom {
	if a == AtomNull {
		return a
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(a) < len(t.entries) && t.entries[a].refCount > 0 {
		t.entries[a].refCount++
	}
	return a
}

// release decrements the count; at zero the slot and its string storage are
// reclaimed. Returns the number of bytes freed.
func (t *atomTable) release(a Atom) int {
	if a == AtomNull {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(a) >= len(t.entries) || t.entries[a].refCount <= 0 {
		return 0
	}
	t.entries[a].refCount--
	if t.entries[a].refCount > 0 {
		return 0
	}
	name := t.entries[a].name
	delete(t.byName, name)
	t.entries[a] = atomEntry{}
	t.free = append(t.free, a)
	return len(name)
}

// name is a read-only projection; it does not consume the handle.
func (t *atomTable) name(a Atom) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if a == AtomNull || int(a) >= len(t.entries) {
		return ""
	}
	return t.entries[a].name
}

// refCount is exposed for leak diagnostics and tests.
func (t *atomTable) refCount(a Atom) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if a == AtomNull || int(a) >= len(t.entries) {
		return 0
	}
	return t.entries[a].refCount
}

// liveCount returns the number of live slots.
func (t *atomTable) liveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byName)
}

// each calls fn for every live entry.
func (t *atomTable) each(fn func(a Atom, name string, refCount int)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := 1; i < len(t.entries); i++ {
		if t.entries[i].refCount > 0 {
			fn(Atom(i), t.entries[i].name, t.entries[i].refCount)
		}
	}
}

// ---------------------------------------------------------------------------
// Runtime-level atom API
// ---------------------------------------------------------------------------

// NewAtom interns a string and returns an owned Atom.
func (rt *Runtime) NewAtom(name string) Atom {
	a, charged := rt.atoms.intern(name)
	if charged > 0 {
		// Atom storage is charged best-effort; interning never fails.
		rt.alloc.Malloc(charged)
	}
	return a
}

// NewAtomUInt32 interns the canonical decimal form of a numeric index.
func (rt *Runtime) NewAtomUInt32(n uint32) Atom {
	return rt.NewAtom(strconv.FormatUint(uint64(n), 10))
}

// DupAtom increments the handle's count and returns it.
func (rt *Runtime) DupAtom(a Atom) Atom {
	return rt.atoms.dup(a)
}

// FreeAtom releases one share of the handle.
func (rt *Runtime) FreeAtom(a Atom) {
	if freed := rt.atoms.release(a); freed > 0 {
		rt.alloc.Free(freed)
	}
}

// AtomString returns the interned string for a handle without consuming it.
// Returns "" for AtomNull or a dead handle.
func (rt *Runtime) AtomString(a Atom) string {
	return rt.atoms.name(a)
}

// AtomToValue projects an Atom to a string Value without consuming it.
func (ctx *Context) AtomToValue(a Atom) Value {
	return ctx.NewString(ctx.rt.AtomString(a))
}

// AtomToString is an alias of AtomToValue kept for symmetry with the
// C-style embedding surface.
func (ctx *Context) AtomToString(a Atom) Value {
	return ctx.AtomToValue(a)
}
