package engine

import "fmt"

// ---------------------------------------------------------------------------
// Class registry: finalizers, GC marks, call hooks and exotic methods
// ---------------------------------------------------------------------------

// ClassID identifies a registered object class. 0 is invalid. Class IDs
// are scoped to a Runtime and immutable once assigned.
type ClassID uint32

// Built-in classes registered by NewRuntime.
const (
	ClassObject            ClassID = 1
	ClassFunction          ClassID = 2
	ClassError             ClassID = 3
	ClassSharedArrayBuffer ClassID = 4

	firstHostClassID ClassID = 8
)

// ClassFinalizer releases the payload of an object whose last share was
// freed. The Value is borrowed: its count is already zero and it must not
// be duplicated or stored.
type ClassFinalizer func(rt *Runtime, v Value)

// ClassGCMark enumerates Values the object keeps alive outside its regular
// property table (typically through the opaque slot) so the cycle collector
// can recurse into them.
type ClassGCMark func(rt *Runtime, v Value, mark func(child Value))

// ClassCall makes instances of the class callable. isConstructor is true
// when invoked through `new`, which is only honored if the object also
// carries the constructor bit.
type ClassCall func(ctx *Context, fn, this Value, args []Value, isConstructor bool) Value

// Tri-state results for the boolean-shaped property operations: callers
// must check the sign before trusting the boolean.
const (
	TriException = -1
	TriFalse     = 0
	TriTrue      = 1
)

// ExoticMethods intercepts the fundamental property operations, modeling
// proxy-style exotic objects. Every method is optional; a nil entry means
// "not intercepted" and the default behavior applies.
type ExoticMethods struct {
	// GetOwnProperty returns (desc, TriTrue) when the property exists,
	// (zero, TriFalse) when absent, and (zero, TriException) on error.
	GetOwnProperty func(ctx *Context, obj Value, prop Atom) (PropertyDescriptor, int)

	// GetOwnPropertyNames returns the object's own keys. The atoms in the
	// result are owned by the caller.
	GetOwnPropertyNames func(ctx *Context, obj Value) ([]Atom, int)

	// DefineOwnProperty, DeleteProperty and HasProperty follow the
	// tri-state contract.
	DefineOwnProperty func(ctx *Context, obj Value, prop Atom, desc PropertyDescriptor, flags PropFlags) int
	DeleteProperty    func(ctx *Context, obj Value, prop Atom) int
	HasProperty       func(ctx *Context, obj Value, prop Atom) int

	// GetProperty returns (value, TriTrue) when intercepted, (zero,
	// TriFalse) to fall through to the ordinary lookup, and (zero,
	// TriException) on error.
	GetProperty func(ctx *Context, obj, receiver Value, prop Atom) (Value, int)

	// SetProperty takes ownership of val on TriTrue and TriException.
	SetProperty func(ctx *Context, obj, receiver Value, prop Atom, val Value) int
}

// ClassDef is the registration record for a class.
type ClassDef struct {
	Name      string
	Finalizer ClassFinalizer
	GCMark    ClassGCMark
	Call      ClassCall
	Exotic    *ExoticMethods
}

// Class is a registered class. Registration is final: classes live for the
// Runtime's lifetime and cannot be redefined.
type Class struct {
	id  ClassID
	def ClassDef
}

// ID returns the class identifier.
func (c *Class) ID() ClassID { return c.id }

// Name returns the registered class name.
func (c *Class) Name() string { return c.def.Name }

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

// NewClassID allocates a fresh, Runtime-unique class ID.
func (rt *Runtime) NewClassID() ClassID {
	id := rt.nextID
	rt.nextID++
	return id
}

// NewClass registers a class definition for an allocated ID. Registering
// the same ID twice, or an unallocated or zero ID, is an error.
func (rt *Runtime) NewClass(id ClassID, def ClassDef) error {
	if id == 0 {
		return fmt.Errorf("engine: class id 0 is invalid")
	}
	builtin := id <= ClassSharedArrayBuffer
	allocated := id >= firstHostClassID && id < rt.nextID
	if !builtin && !allocated {
		return fmt.Errorf("engine: class id %d was not allocated", id)
	}
	if _, exists := rt.classes[id]; exists {
		return fmt.Errorf("engine: class %q (id %d) already registered", def.Name, id)
	}
	rt.classes[id] = &Class{id: id, def: def}
	return nil
}

// FindClass returns the registered class for an ID, or nil.
func (rt *Runtime) FindClass(id ClassID) *Class {
	return rt.classes[id]
}

// registerBuiltinClasses installs the classes every Runtime carries.
func (rt *Runtime) registerBuiltinClasses() {
	rt.classes[ClassObject] = &Class{id: ClassObject, def: ClassDef{Name: "Object"}}
	rt.classes[ClassFunction] = &Class{
		id: ClassFunction,
		def: ClassDef{
			Name: "Function",
			Call: callNativeFunc,
		},
	}
	rt.classes[ClassError] = &Class{id: ClassError, def: ClassDef{Name: "Error"}}
	rt.classes[ClassSharedArrayBuffer] = &Class{
		id: ClassSharedArrayBuffer,
		def: ClassDef{
			Name:      "SharedArrayBuffer",
			Finalizer: finalizeSharedArrayBuffer,
		},
	}
}
