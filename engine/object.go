package engine

// ---------------------------------------------------------------------------
// Objects: class-stamped heap cells with ordered property tables
// ---------------------------------------------------------------------------

// PropFlags describe a property (and, for the define operations, which
// descriptor fields are present).
type PropFlags uint16

const (
	PropConfigurable PropFlags = 1 << 0
	PropWritable     PropFlags = 1 << 1
	PropEnumerable   PropFlags = 1 << 2
	PropGetSet       PropFlags = 1 << 4 // accessor property

	// PropCWE is the default for ordinary data properties.
	PropCWE = PropConfigurable | PropWritable | PropEnumerable
)

// PropertyDescriptor is the present+descriptor arm of the tri-state
// GetOwnProperty result.
type PropertyDescriptor struct {
	Flags  PropFlags
	Value  Value
	Getter Value
	Setter Value
}

// property is one owned entry of an object's table. The atom and every
// Value in it are owned by the object.
type property struct {
	atom   Atom
	flags  PropFlags
	value  Value
	getter Value
	setter Value
}

// propertySize is the accounting charge per table entry.
const propertySize = 64

type objectPayload struct {
	class ClassID
	proto Value // owned; Null when at the top of the chain

	props []property
	index map[Atom]int

	opaque         any
	constructorBit bool

	// Error-object state. uncatchable errors bypass script handlers.
	errKind     ErrorKind
	uncatchable bool

	// Call payload for ClassFunction cells.
	native *nativeFunc

	charged int
	self    *cell
}

func (p *objectPayload) kind() Tag { return TagObject }

func (p *objectPayload) eachChild(rt *Runtime, fn func(Value)) {
	if p.proto.HasRefCount() {
		fn(p.proto)
	}
	for i := range p.props {
		pr := &p.props[i]
		if pr.flags&PropGetSet != 0 {
			if pr.getter.HasRefCount() {
				fn(pr.getter)
			}
			if pr.setter.HasRefCount() {
				fn(pr.setter)
			}
		} else if pr.value.HasRefCount() {
			fn(pr.value)
		}
	}
	if p.native != nil && p.native.env.HasRefCount() {
		fn(p.native.env)
	}
	if cls := rt.classes[p.class]; cls != nil && cls.def.GCMark != nil {
		cls.def.GCMark(rt, mkValue(TagObject, cellOf(p)), fn)
	}
}

func (p *objectPayload) footprint() int { return p.charged }

// cellOf recovers the cell for a payload during child enumeration. Cells
// and payloads are created in pairs, so the back pointer is set once.
func cellOf(p *objectPayload) *cell { return p.self }

// ---------------------------------------------------------------------------
// Creation
// ---------------------------------------------------------------------------

func newObjectPayload(class ClassID, proto Value) *objectPayload {
	return &objectPayload{
		class:   class,
		proto:   proto,
		index:   make(map[Atom]int),
		errKind: ErrorNone,
		charged: cellBaseSize + 32,
	}
}

// newObjectValue allocates an object cell. Takes ownership of proto.
func (ctx *Context) newObjectValue(class ClassID, proto Value) Value {
	p := newObjectPayload(class, proto)
	v, ok := ctx.rt.newCell(p)
	if !ok {
		ctx.rt.FreeValue(proto)
		return ctx.ThrowOutOfMemory()
	}
	p.self = v.cell
	return v
}

// newObjectNoLimit allocates an object cell bypassing the memory limit.
// Takes ownership of proto.
func (ctx *Context) newObjectNoLimit(class ClassID, proto Value) Value {
	p := newObjectPayload(class, proto)
	v := ctx.rt.newCellNoLimit(p)
	p.self = v.cell
	return v
}

// NewObject creates a plain object with the Object prototype.
func (ctx *Context) NewObject() Value {
	return ctx.NewObjectClass(ClassObject)
}

// NewObjectClass creates an object of a registered class, using the
// class prototype installed on this Context (or null when absent).
func (ctx *Context) NewObjectClass(id ClassID) Value {
	return ctx.newObjectValue(id, ctx.GetClassProto(id))
}

// NewObjectProto creates a plain object with an explicit prototype.
func (ctx *Context) NewObjectProto(proto Value) Value {
	return ctx.NewObjectProtoClass(proto, ClassObject)
}

// NewObjectProtoClass creates a class-stamped object with an explicit
// prototype. The prototype is borrowed.
func (ctx *Context) NewObjectProtoClass(proto Value, id ClassID) Value {
	if ctx.rt.classes[id] == nil {
		return ctx.ThrowTypeError("class id %d is not registered", id)
	}
	return ctx.newObjectValue(id, ctx.rt.DupValue(proto))
}

// objectOf returns the payload behind an object Value, or nil.
func objectOf(v Value) *objectPayload {
	if v.tag != TagObject || v.cell == nil {
		return nil
	}
	return v.cell.payload.(*objectPayload)
}

// GetClassID returns the ClassID stamped on an object, or 0.
func GetClassID(v Value) ClassID {
	if p := objectOf(v); p != nil {
		return p.class
	}
	return 0
}

// ---------------------------------------------------------------------------
// Opaque payload slot
// ---------------------------------------------------------------------------

// SetOpaque stores host data on an object. Returns false if v is not an
// object.
func SetOpaque(v Value, opaque any) bool {
	p := objectOf(v)
	if p == nil {
		return false
	}
	p.opaque = opaque
	return true
}

// GetOpaque reads the opaque slot if the object's class matches.
func GetOpaque(v Value, id ClassID) any {
	p := objectOf(v)
	if p == nil || p.class != id {
		return nil
	}
	return p.opaque
}

// GetOpaque2 reads the opaque slot, raising a TypeError on the Context
// when the value is not an object of the expected class.
func (ctx *Context) GetOpaque2(v Value, id ClassID) (any, bool) {
	p := objectOf(v)
	if p == nil || p.class != id {
		ctx.ThrowTypeError("expected an object of class %q", ctx.className(id))
		return nil, false
	}
	return p.opaque, true
}

func (ctx *Context) className(id ClassID) string {
	if cls := ctx.rt.classes[id]; cls != nil {
		return cls.def.Name
	}
	return "?"
}

// ---------------------------------------------------------------------------
// Prototype and constructor bit
// ---------------------------------------------------------------------------

// GetPrototype returns an owned share of the object's prototype.
func (ctx *Context) GetPrototype(v Value) Value {
	p := objectOf(v)
	if p == nil {
		return Null
	}
	return ctx.rt.DupValue(p.proto)
}

// SetPrototype replaces the object's prototype. Borrows proto. Refuses
// to create a cycle, keeping every chain walk finite.
func (ctx *Context) SetPrototype(v, proto Value) int {
	p := objectOf(v)
	if p == nil {
		ctx.ThrowTypeError("not an object")
		return TriException
	}
	for cur := proto; ; {
		cp := objectOf(cur)
		if cp == nil {
			break
		}
		if cp == p {
			ctx.ThrowTypeError("circular prototype chain")
			return TriException
		}
		cur = cp.proto
	}
	old := p.proto
	p.proto = ctx.rt.DupValue(proto)
	ctx.rt.FreeValue(old)
	return TriTrue
}

// SetConstructorBit marks a callable object as constructible. Returns
// false if v is not an object.
func (ctx *Context) SetConstructorBit(v Value, on bool) bool {
	p := objectOf(v)
	if p == nil {
		return false
	}
	p.constructorBit = on
	return true
}

// IsConstructor reports whether `new` is honored for v.
func (ctx *Context) IsConstructor(v Value) bool {
	p := objectOf(v)
	return p != nil && p.constructorBit && ctx.IsFunction(v)
}

// IsFunction reports whether v is callable (its class carries a call hook).
func (ctx *Context) IsFunction(v Value) bool {
	p := objectOf(v)
	if p == nil {
		return false
	}
	cls := ctx.rt.classes[p.class]
	return cls != nil && cls.def.Call != nil
}

// ---------------------------------------------------------------------------
// Own-property table
// ---------------------------------------------------------------------------

// ownProperty returns the entry for prop, or nil.
func (p *objectPayload) ownProperty(prop Atom) *property {
	if i, ok := p.index[prop]; ok {
		return &p.props[i]
	}
	return nil
}

// addProperty appends an owned entry. Takes ownership of everything in pr.
func (ctx *Context) addProperty(obj Value, p *objectPayload, pr property) int {
	if !ctx.rt.allocBytes(propertySize) {
		ctx.freeProperty(&pr)
		ctx.ThrowOutOfMemory()
		return TriException
	}
	p.charged += propertySize
	p.index[pr.atom] = len(p.props)
	p.props = append(p.props, pr)
	return TriTrue
}

// appendPropertyNoLimit appends an owned entry bypassing the memory limit.
func (p *objectPayload) appendPropertyNoLimit(rt *Runtime, pr property) {
	rt.alloc.Malloc(propertySize)
	p.charged += propertySize
	p.index[pr.atom] = len(p.props)
	p.props = append(p.props, pr)
}

// freeProperty releases everything an entry owns.
func (ctx *Context) freeProperty(pr *property) {
	ctx.rt.FreeAtom(pr.atom)
	ctx.rt.FreeValue(pr.value)
	ctx.rt.FreeValue(pr.getter)
	ctx.rt.FreeValue(pr.setter)
}

// removeProperty deletes the entry for prop and compacts the table,
// preserving insertion order for the remaining keys.
func (ctx *Context) removeProperty(p *objectPayload, prop Atom) {
	i, ok := p.index[prop]
	if !ok {
		return
	}
	ctx.freeProperty(&p.props[i])
	copy(p.props[i:], p.props[i+1:])
	p.props = p.props[:len(p.props)-1]
	delete(p.index, prop)
	for j := i; j < len(p.props); j++ {
		p.index[p.props[j].atom] = j
	}
	p.charged -= propertySize
	ctx.rt.alloc.Free(propertySize)
}

// exotic returns the interception table for the object's class, or nil.
func (p *objectPayload) exotic(rt *Runtime) *ExoticMethods {
	cls := rt.classes[p.class]
	if cls == nil {
		return nil
	}
	return cls.def.Exotic
}

// ---------------------------------------------------------------------------
// Property operations (prototype chain + exotic interception)
// ---------------------------------------------------------------------------

// GetOwnProperty returns the tri-state own-property descriptor. Values in
// the descriptor are owned by the caller.
func (ctx *Context) GetOwnProperty(obj Value, prop Atom) (PropertyDescriptor, int) {
	p := objectOf(obj)
	if p == nil {
		ctx.ThrowTypeError("not an object")
		return PropertyDescriptor{}, TriException
	}
	if ex := p.exotic(ctx.rt); ex != nil && ex.GetOwnProperty != nil {
		return ex.GetOwnProperty(ctx, obj, prop)
	}
	pr := p.ownProperty(prop)
	if pr == nil {
		return PropertyDescriptor{}, TriFalse
	}
	return PropertyDescriptor{
		Flags:  pr.flags,
		Value:  ctx.rt.DupValue(pr.value),
		Getter: ctx.rt.DupValue(pr.getter),
		Setter: ctx.rt.DupValue(pr.setter),
	}, TriTrue
}

// GetOwnPropertyNames returns the object's own keys in insertion order.
// The returned atoms are owned by the caller.
func (ctx *Context) GetOwnPropertyNames(obj Value) ([]Atom, int) {
	p := objectOf(obj)
	if p == nil {
		ctx.ThrowTypeError("not an object")
		return nil, TriException
	}
	if ex := p.exotic(ctx.rt); ex != nil && ex.GetOwnPropertyNames != nil {
		return ex.GetOwnPropertyNames(ctx, obj)
	}
	atoms := make([]Atom, len(p.props))
	for i := range p.props {
		atoms[i] = ctx.rt.DupAtom(p.props[i].atom)
	}
	return atoms, TriTrue
}

// GetProperty looks prop up along the prototype chain, honoring exotic
// interception and accessor getters. Returns an owned Value, Undefined
// when absent, or the Exception sentinel.
func (ctx *Context) GetProperty(obj Value, prop Atom) Value {
	return ctx.getPropertyReceiver(obj, obj, prop)
}

func (ctx *Context) getPropertyReceiver(obj, receiver Value, prop Atom) Value {
	cur := obj
	for {
		p := objectOf(cur)
		if p == nil {
			return Undefined
		}
		if ex := p.exotic(ctx.rt); ex != nil && ex.GetProperty != nil {
			v, res := ex.GetProperty(ctx, cur, receiver, prop)
			if res < 0 {
				return Exception
			}
			if res == TriTrue {
				return v
			}
		}
		if pr := p.ownProperty(prop); pr != nil {
			if pr.flags&PropGetSet != 0 {
				if pr.getter.IsUndefined() {
					return Undefined
				}
				return ctx.Call(pr.getter, receiver, nil)
			}
			return ctx.rt.DupValue(pr.value)
		}
		cur = p.proto
	}
}

// GetPropertyStr is GetProperty with a transient name atom.
func (ctx *Context) GetPropertyStr(obj Value, name string) Value {
	a := ctx.rt.NewAtom(name)
	defer ctx.rt.FreeAtom(a)
	return ctx.GetProperty(obj, a)
}

// SetProperty assigns prop along the prototype chain: setters fire on the
// receiver, non-writable data properties refuse, and absent properties are
// created on the receiver. Takes ownership of val; follows the tri-state
// contract.
func (ctx *Context) SetProperty(obj Value, prop Atom, val Value) int {
	target := objectOf(obj)
	if target == nil {
		ctx.rt.FreeValue(val)
		ctx.ThrowTypeError("not an object")
		return TriException
	}

	cur := obj
	for {
		p := objectOf(cur)
		if p == nil {
			break
		}
		if ex := p.exotic(ctx.rt); ex != nil && ex.SetProperty != nil {
			res := ex.SetProperty(ctx, cur, obj, prop, val)
			if res != TriFalse {
				return res
			}
		}
		if pr := p.ownProperty(prop); pr != nil {
			if pr.flags&PropGetSet != 0 {
				if pr.setter.IsUndefined() {
					ctx.rt.FreeValue(val)
					return TriFalse
				}
				r := ctx.Call(pr.setter, obj, []Value{val})
				ctx.rt.FreeValue(val)
				if r.IsException() {
					return TriException
				}
				ctx.rt.FreeValue(r)
				return TriTrue
			}
			if pr.flags&PropWritable == 0 {
				ctx.rt.FreeValue(val)
				return TriFalse
			}
			if p == target {
				ctx.rt.FreeValue(pr.value)
				pr.value = val
				return TriTrue
			}
			break // writable data prop on the chain: create on receiver
		}
		cur = p.proto
	}

	return ctx.DefinePropertyValue(obj, prop, val, PropCWE)
}

// SetPropertyStr is SetProperty with a transient name atom.
func (ctx *Context) SetPropertyStr(obj Value, name string, val Value) int {
	a := ctx.rt.NewAtom(name)
	defer ctx.rt.FreeAtom(a)
	return ctx.SetProperty(obj, a, val)
}

// HasProperty walks the prototype chain. Tri-state result.
func (ctx *Context) HasProperty(obj Value, prop Atom) int {
	p := objectOf(obj)
	if p == nil {
		ctx.ThrowTypeError("not an object")
		return TriException
	}
	cur := obj
	for {
		p := objectOf(cur)
		if p == nil {
			return TriFalse
		}
		if ex := p.exotic(ctx.rt); ex != nil && ex.HasProperty != nil {
			res := ex.HasProperty(ctx, cur, prop)
			if res != TriFalse {
				return res
			}
		} else if p.ownProperty(prop) != nil {
			return TriTrue
		}
		cur = p.proto
	}
}

// DeleteProperty removes an own property. Tri-state result; deleting a
// non-configurable property returns TriFalse.
func (ctx *Context) DeleteProperty(obj Value, prop Atom) int {
	p := objectOf(obj)
	if p == nil {
		ctx.ThrowTypeError("not an object")
		return TriException
	}
	if ex := p.exotic(ctx.rt); ex != nil && ex.DeleteProperty != nil {
		return ex.DeleteProperty(ctx, obj, prop)
	}
	pr := p.ownProperty(prop)
	if pr == nil {
		return TriTrue
	}
	if pr.flags&PropConfigurable == 0 {
		return TriFalse
	}
	ctx.removeProperty(p, prop)
	return TriTrue
}

// DefinePropertyValue installs or replaces a data property without running
// setters. Takes ownership of val. Tri-state result.
func (ctx *Context) DefinePropertyValue(obj Value, prop Atom, val Value, flags PropFlags) int {
	p := objectOf(obj)
	if p == nil {
		ctx.rt.FreeValue(val)
		ctx.ThrowTypeError("not an object")
		return TriException
	}
	if ex := p.exotic(ctx.rt); ex != nil && ex.DefineOwnProperty != nil {
		desc := PropertyDescriptor{Flags: flags &^ PropGetSet, Value: val}
		return ex.DefineOwnProperty(ctx, obj, prop, desc, flags)
	}
	if pr := p.ownProperty(prop); pr != nil {
		if pr.flags&PropConfigurable == 0 && pr.flags&PropWritable == 0 {
			ctx.rt.FreeValue(val)
			return TriFalse
		}
		ctx.rt.FreeValue(pr.value)
		ctx.rt.FreeValue(pr.getter)
		ctx.rt.FreeValue(pr.setter)
		pr.value = val
		pr.getter = Undefined
		pr.setter = Undefined
		pr.flags = flags &^ PropGetSet
		return TriTrue
	}
	return ctx.addProperty(obj, p, property{
		atom:   ctx.rt.DupAtom(prop),
		flags:  flags &^ PropGetSet,
		value:  val,
		getter: Undefined,
		setter: Undefined,
	})
}

// DefinePropertyValueStr is DefinePropertyValue with a transient name atom.
func (ctx *Context) DefinePropertyValueStr(obj Value, name string, val Value, flags PropFlags) int {
	a := ctx.rt.NewAtom(name)
	defer ctx.rt.FreeAtom(a)
	return ctx.DefinePropertyValue(obj, a, val, flags)
}

// DefinePropertyGetSet installs an accessor property. Takes ownership of
// getter and setter (Undefined for an absent half). Tri-state result.
func (ctx *Context) DefinePropertyGetSet(obj Value, prop Atom, getter, setter Value, flags PropFlags) int {
	p := objectOf(obj)
	if p == nil {
		ctx.rt.FreeValue(getter)
		ctx.rt.FreeValue(setter)
		ctx.ThrowTypeError("not an object")
		return TriException
	}
	if ex := p.exotic(ctx.rt); ex != nil && ex.DefineOwnProperty != nil {
		desc := PropertyDescriptor{Flags: flags | PropGetSet, Getter: getter, Setter: setter}
		return ex.DefineOwnProperty(ctx, obj, prop, desc, flags|PropGetSet)
	}
	if pr := p.ownProperty(prop); pr != nil {
		if pr.flags&PropConfigurable == 0 {
			ctx.rt.FreeValue(getter)
			ctx.rt.FreeValue(setter)
			return TriFalse
		}
		ctx.rt.FreeValue(pr.value)
		ctx.rt.FreeValue(pr.getter)
		ctx.rt.FreeValue(pr.setter)
		pr.value = Undefined
		pr.getter = getter
		pr.setter = setter
		pr.flags = flags | PropGetSet
		return TriTrue
	}
	return ctx.addProperty(obj, p, property{
		atom:   ctx.rt.DupAtom(prop),
		flags:  flags | PropGetSet,
		value:  Undefined,
		getter: getter,
		setter: setter,
	})
}
