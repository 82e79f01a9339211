package typemgr

import (
	"fmt"
	"strings"

	"github.com/cfbc-wasm/typeforge/internal/classfile"
	"github.com/cfbc-wasm/typeforge/internal/fnmgr"
	"github.com/cfbc-wasm/typeforge/internal/strpool"
	"github.com/cfbc-wasm/typeforge/internal/typemgr/blocktype"
	"github.com/cfbc-wasm/typeforge/internal/typemgr/diag"
	"github.com/cfbc-wasm/typeforge/internal/wasmtype"
)

// ObjectClassName is the name of the implicit root class every array's
// object-reference component type resolves to.
const ObjectClassName = "java/lang/Object"

// primitiveInfo describes one entry of the fixed primitive table
// (spec.md §3.2). Order here IS the canonical order: class-index 0..8.
type primitiveInfo struct {
	name string
	code byte // JVM-style element descriptor code, used inside "[" chains
	val  wasmtype.ValType
}

var primitiveTable = []primitiveInfo{
	{"boolean", 'Z', wasmtype.I32{}},
	{"byte", 'B', wasmtype.I32{}},
	{"char", 'C', wasmtype.I32{}},
	{"double", 'D', wasmtype.F64{}},
	{"float", 'F', wasmtype.F32{}},
	{"int", 'I', wasmtype.I32{}},
	{"long", 'J', wasmtype.I64{}},
	{"short", 'S', wasmtype.I32{}},
	{"void", 'V', nil},
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithGCArrays selects whether array descriptors use the GC-flavored
// representation (a sibling array_native descriptor referenced by a
// single field, spec.md §3.3) or a plain linear-memory array body.
// Defaults to true.
func WithGCArrays(enabled bool) Option {
	return func(r *Registry) { r.gcArrays = enabled }
}

// WithLogf installs a logging callback used for optional scan-phase
// tracing. Defaults to a no-op.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(r *Registry) {
		if logf != nil {
			r.logf = logf
		}
	}
}

// Registry is the TypeRegistry (spec.md §4.1): the canonical owner of the
// mapping from type key to Descriptor.
type Registry struct {
	Loader classfile.Loader
	Fns    *fnmgr.Manager
	Strs   *strpool.Pool
	Blocks *blocktype.Table

	byName  map[string]*Descriptor
	byKey   map[string]*Descriptor // array/lambda keys, distinct namespace
	order   []*Descriptor
	nextIdx int32

	finished bool
	gcArrays bool
	logf     func(format string, args ...any)
}

// New creates a Registry over the given collaborators. Primitives are NOT
// materialized here; per spec.md §4.1 they are created lazily, on the
// first call to ValueOf.
func New(loader classfile.Loader, fns *fnmgr.Manager, strs *strpool.Pool, opts ...Option) *Registry {
	r := &Registry{
		Loader:   loader,
		Fns:      fns,
		Strs:     strs,
		Blocks:   blocktype.New(),
		byName:   make(map[string]*Descriptor),
		byKey:    make(map[string]*Descriptor),
		gcArrays: true,
		logf:     func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Size returns the number of descriptors registered so far (spec.md
// §4.1's size()).
func (r *Registry) Size() int {
	return len(r.order)
}

// Finish latches the registry: after this call, no descriptor may be
// created and no field may become "needed" (spec.md §3.6).
func (r *Registry) Finish() {
	r.finished = true
}

// Descriptors returns every registered descriptor, in creation order —
// the order the type table (spec.md §6.2) is emitted in.
func (r *Registry) Descriptors() []*Descriptor {
	return r.order
}

func (r *Registry) register(d *Descriptor) {
	d.ClassIndex = r.nextIdx
	r.nextIdx++
	r.order = append(r.order, d)
	r.logf("typemgr: registered %s (kind=%s, classIndex=%d)", d.Name, d.Kind, d.ClassIndex)
}

func (r *Registry) ensurePrimitives() {
	if len(r.order) != 0 {
		return
	}
	for _, p := range primitiveTable {
		d := newDescriptor(p.name, KindPrimitive, 0)
		r.register(d)
		r.byName[p.name] = d
	}
}

// GetPrimitiveClass returns the primitive descriptor named name (e.g.
// "int"), looked up by name among the registered primitives,
// materializing primitives first if needed.
func (r *Registry) GetPrimitiveClass(name string) (*Descriptor, bool) {
	r.ensurePrimitives()
	d, ok := r.byName[name]
	if !ok || d.Kind != KindPrimitive {
		return nil, false
	}
	return d, true
}

func primitiveByCode(code byte) (primitiveInfo, int32, bool) {
	for i, p := range primitiveTable {
		if p.code == code {
			return p, int32(i), true
		}
	}
	return primitiveInfo{}, 0, false
}

// ValueOf returns the descriptor for name (spec.md §4.1). If name begins
// with "[", the array descriptor chain is parsed and the outermost array
// descriptor is returned. Otherwise, the nine primitives are materialized
// on first use, then a new normal descriptor is created (or the existing
// one returned) for name.
func (r *Registry) ValueOf(name string) (*Descriptor, error) {
	r.ensurePrimitives()

	if strings.HasPrefix(name, "[") {
		return r.arrayChain(name)
	}

	if d, ok := r.byName[name]; ok {
		return d, nil
	}

	if r.finished {
		return nil, diag.New(diag.StageRegistry, diag.CodeLateRegistration,
			"type registration after scan-finish latch", name)
	}

	d := newDescriptor(name, KindNormal, 0)
	r.register(d)
	r.byName[name] = d
	return d, nil
}

// arrayChain parses a "[...[<elem>" descriptor string and returns the
// outermost ArrayType descriptor, creating every nested level on demand.
func (r *Registry) arrayChain(name string) (*Descriptor, error) {
	if len(name) < 2 {
		return nil, diag.New(diag.StageRegistry, diag.CodeUnsupportedType,
			"malformed array descriptor", name)
	}

	elemName := name[1:]
	var elem *Descriptor
	var err error
	if strings.HasPrefix(elemName, "[") {
		elem, err = r.arrayChain(elemName)
	} else if strings.HasPrefix(elemName, "L") && strings.HasSuffix(elemName, ";") {
		elem, err = r.ValueOf(elemName[1 : len(elemName)-1])
	} else if len(elemName) == 1 {
		if info, _, ok := primitiveByCode(elemName[0]); ok {
			elem, err = r.ValueOf(info.name)
		} else {
			return nil, diag.New(diag.StageRegistry, diag.CodeUnsupportedType,
				"unknown primitive element code", elemName)
		}
	} else {
		return nil, diag.New(diag.StageRegistry, diag.CodeUnsupportedType,
			"unrecognized array element descriptor", elemName)
	}
	if err != nil {
		return nil, err
	}

	return r.ArrayType(elem)
}

// ArrayType returns or creates the array descriptor for elementType
// (spec.md §4.1). If element is a primitive value type, componentClassIndex
// is taken from the primitive table; if it is an object reference, the
// descriptor for java/lang/Object supplies the component class index.
func (r *Registry) ArrayType(element *Descriptor) (*Descriptor, error) {
	if element == nil {
		return nil, diag.New(diag.StageRegistry, diag.CodeUnsupportedType,
			"unsupported array element", "<nil>")
	}

	key := "[" + element.Name
	if d, ok := r.byKey[key]; ok {
		return d, nil
	}
	if r.finished {
		return nil, diag.New(diag.StageRegistry, diag.CodeLateRegistration,
			"array type registration after scan-finish latch", key)
	}

	var componentIdx int32
	var elemVal wasmtype.ValType
	if element.Kind == KindPrimitive {
		componentIdx = element.ClassIndex
		elemVal = primitiveTable[element.ClassIndex].val
	} else {
		obj, err := r.ValueOf(ObjectClassName)
		if err != nil {
			return nil, err
		}
		componentIdx = obj.ClassIndex
		elemVal = wasmtype.Ref{Name: element.Name}
	}

	d := newDescriptor("array:"+element.Name, KindArray, 0)
	d.ElementType = elemVal
	d.ComponentClassIndex = componentIdx
	r.register(d)
	r.byKey[key] = d

	if r.gcArrays {
		native := newDescriptor("array_native:"+element.Name, KindArrayNative, -1)
		native.ElementType = elemVal
		native.ComponentClassIndex = componentIdx
		d.NativeArrayType = native
		// array_native descriptors are not indexable by class index (the
		// type table is keyed by classIndex and array_native always uses
		// -1, per spec.md §3.1), but they are still emitted, so they are
		// tracked in creation order alongside everything else.
		r.order = append(r.order, native)
		r.logf("typemgr: registered %s (kind=array_native, classIndex=-1)", native.Name)
	}

	return d, nil
}

// LambdaType returns or creates the lambda descriptor for the given
// bootstrap call site (spec.md §4.1). Per DESIGN.md's Open Question
// decision, the key is "<owner name>$$<implName>/<factorySig>" rather than
// the collision-prone abs(hash(implName)) scheme spec.md §3.4/§9 describes —
// this avoids the theoretical same-owner collision spec.md §9 flags.
func (r *Registry) LambdaType(owner *Descriptor, implName, factorySig, ifaceMethodName string, params []wasmtype.ValType) (*Descriptor, error) {
	key := fmt.Sprintf("%s$$%s/%s", owner.Name, implName, factorySig)
	if d, ok := r.byKey[key]; ok {
		return d, nil
	}
	if r.finished {
		return nil, diag.New(diag.StageRegistry, diag.CodeLateRegistration,
			"lambda type registration after scan-finish latch", key)
	}

	ifaceName := strings.TrimSuffix(strings.TrimPrefix(factorySig[strings.LastIndex(factorySig, ")")+1:], "L"), ";")
	iface, err := r.ValueOf(ifaceName)
	if err != nil {
		return nil, err
	}

	d := newDescriptor(key, KindLambda, 0)
	for i, p := range params {
		d.CapturedFields = append(d.CapturedFields, FieldLayout{
			Owner: owner.Name,
			Name:  fmt.Sprintf("arg$%d", i+1),
			Type:  p,
		})
	}
	d.LambdaIface = iface
	d.LambdaIfaceMethod = ifaceMethodName
	d.LambdaWrapperFunc = key + "$wrapper"

	r.register(d)
	r.byKey[key] = d
	return d, nil
}

// BlockType interns a block type by structural equality (spec.md §4.1).
func (r *Registry) BlockType(params, results []wasmtype.ValType) *blocktype.Entry {
	return r.Blocks.Intern(params, results)
}
