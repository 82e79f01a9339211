package typemgr

import (
	"errors"
	"fmt"

	"github.com/cfbc-wasm/typeforge/internal/classfile"
	"github.com/cfbc-wasm/typeforge/internal/typemgr/diag"
	"github.com/cfbc-wasm/typeforge/internal/wasmtype"
)

// objectHeaderFields is the two-word object header every non-interface
// instance begins with: a v-table pointer and a system hash code slot
// (spec.md §4.2, §8 scenario 1).
func objectHeaderFields(owner string) []FieldLayout {
	return []FieldLayout{
		{Owner: owner, Name: ".vtable", Type: wasmtype.I32{}},
		{Owner: owner, Name: ".hashcode", Type: wasmtype.I32{}},
	}
}

// Scanner is the HierarchyScanner (spec.md §4.2, C5).
type Scanner struct {
	r *Registry
}

// NewScanner creates a Scanner over r.
func NewScanner(r *Registry) *Scanner {
	return &Scanner{r: r}
}

// ScanTypeHierarchy populates every descriptor's layout, v-table, i-table,
// and instanceof set (spec.md §4.2). It iterates a snapshot of the
// registry by index rather than length, so descriptors created during the
// scan (e.g. an interface discovered while walking a superclass chain)
// are themselves scanned before the function returns.
func (s *Scanner) ScanTypeHierarchy() error {
	for i := 0; i < len(s.r.order); i++ {
		d := s.r.order[i]
		if err := s.scanOne(d); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) scanOne(d *Descriptor) error {
	switch d.Kind {
	case KindPrimitive:
		return nil
	case KindArray:
		return s.scanArray(d)
	case KindArrayNative:
		return s.scanArrayNative(d)
	case KindLambda:
		return s.scanLambda(d)
	case KindNormal:
		return s.scanNormal(d)
	default:
		return fmt.Errorf("typemgr: unknown descriptor kind %v for %s", d.Kind, d.Name)
	}
}

func (s *Scanner) scanArray(d *Descriptor) error {
	d.Fields = objectHeaderFields(d.Name)
	if d.NativeArrayType != nil {
		d.Fields = append(d.Fields, FieldLayout{
			Owner: d.Name,
			Name:  ".elements",
			Type:  wasmtype.Ref{Name: d.NativeArrayType.Name},
		})
	} else {
		// No GC-array sibling: the single flexible-storage field holds the
		// element value type directly (linear-memory representation).
		d.Fields = append(d.Fields, FieldLayout{
			Owner: d.Name,
			Name:  ".elements",
			Type:  d.ElementType,
		})
	}
	return nil
}

func (s *Scanner) scanArrayNative(d *Descriptor) error {
	d.Fields = []FieldLayout{{Owner: d.Name, Name: ".data", Type: d.ElementType}}
	return nil
}

func (s *Scanner) scanLambda(d *Descriptor) error {
	d.Fields = objectHeaderFields(d.Name)
	d.Fields = append(d.Fields, d.CapturedFields...)

	d.appendInterfaceMethod(d.LambdaIface, d.LambdaWrapperFunc)
	s.r.Fns.MarkUsed(d.LambdaWrapperFunc)
	s.r.Fns.SetITableIndex(d.LambdaWrapperFunc, 2)

	// A lambda is an instance of itself and of the interface it closes
	// over, including that interface's own super-interfaces, so that
	// instanceof/cast on a lambda value behaves like any other concrete
	// implementation of the interface.
	d.addInstanceOf(d)
	chain, err := s.interfaceChain(d.LambdaIface.Name)
	if err != nil {
		return err
	}
	for _, iface := range chain {
		d.addInstanceOf(iface)
	}
	return nil
}

func (s *Scanner) scanNormal(d *Descriptor) error {
	isIface, err := s.r.Loader.IsInterface(d.Name)
	if err != nil {
		return s.wrapLoadErr(err, d.Name)
	}
	if isIface {
		// Interfaces carry no instance state, but must match the layout
		// prefix for casting through Object (spec.md §4.2.1 Walk B step 1).
		d.Fields = objectHeaderFields(d.Name)
		return nil
	}

	cf, err := s.r.Loader.LoadClass(d.Name)
	if err != nil {
		return s.wrapLoadErr(err, d.Name)
	}

	// d is always instanceof itself first (spec.md §6.1: "the type itself
	// is always first"). Without this, walkA's interfaces would land ahead
	// of d itself, since walkB (which also records d as its own ancestor)
	// only runs afterward. addInstanceOf dedups, so walkB's later call
	// is a no-op.
	d.addInstanceOf(d)

	if err := s.walkA(d); err != nil {
		return err
	}

	aggregate := make(map[string]bool, len(d.NeededFields))
	for k := range d.NeededFields {
		aggregate[k] = true
	}
	if err := s.walkB(d, d.Name, aggregate); err != nil {
		return err
	}

	if !cf.Vis.Abstract {
		if err := s.buildITables(d); err != nil {
			return err
		}
	}
	return nil
}

// walkA is spec.md §4.2.1 Walk A: from d's class upward through the
// superclass chain, record every direct interface, then breadth-first
// enumerate super-interfaces (breadth within each level, depth across
// levels), adding every interface descriptor seen to d.InstanceOfs.
func (s *Scanner) walkA(d *Descriptor) error {
	visited := make(map[string]bool)
	var queue []string

	cur := d.Name
	for cur != "" {
		cf, err := s.r.Loader.LoadClass(cur)
		if err != nil {
			return s.wrapLoadErr(err, cur)
		}
		for _, ifaceName := range cf.Interfaces {
			if !visited[ifaceName] {
				visited[ifaceName] = true
				queue = append(queue, ifaceName)
			}
		}
		cur = cf.Super
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		ifaceDesc, err := s.r.ValueOf(name)
		if err != nil {
			return err
		}
		d.addInstanceOf(ifaceDesc)

		ifile, err := s.r.Loader.LoadInterface(name)
		if err != nil {
			return s.wrapLoadErr(err, name)
		}
		for _, superName := range ifile.Supers {
			if !visited[superName] {
				visited[superName] = true
				queue = append(queue, superName)
			}
		}
	}
	return nil
}

// interfaceChain returns root plus every interface reachable from it,
// breadth-first, for use by scanLambda. It does not mutate any
// descriptor's state.
func (s *Scanner) interfaceChain(root string) ([]*Descriptor, error) {
	visited := map[string]bool{root: true}
	queue := []string{root}
	var out []*Descriptor

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		d, err := s.r.ValueOf(name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)

		ifile, err := s.r.Loader.LoadInterface(name)
		if err != nil {
			return nil, s.wrapLoadErr(err, name)
		}
		for _, superName := range ifile.Supers {
			if !visited[superName] {
				visited[superName] = true
				queue = append(queue, superName)
			}
		}
	}
	return out, nil
}

// walkB is spec.md §4.2.1 Walk B, recursing into the superclass before
// appending the current class's own fields/v-table/i-table contributions,
// so that ancestor state lands first (root-to-leaf field order, and
// subclass method overrides applied after superclass ones).
func (s *Scanner) walkB(d *Descriptor, className string, aggregate map[string]bool) error {
	cf, err := s.r.Loader.LoadClass(className)
	if err != nil {
		return s.wrapLoadErr(err, className)
	}

	if existing, ok := s.r.byName[className]; ok {
		for k := range existing.NeededFields {
			aggregate[k] = true
		}
	}

	thisDesc, err := s.r.ValueOf(className)
	if err != nil {
		return err
	}
	d.addInstanceOf(thisDesc)

	if cf.Super != "" {
		if err := s.walkB(d, cf.Super, aggregate); err != nil {
			return err
		}
	} else {
		d.Fields = append(d.Fields, objectHeaderFields(className)...)
	}

	for _, f := range cf.Fields {
		if f.Static {
			continue
		}
		if aggregate[f.Name] {
			d.Fields = append(d.Fields, FieldLayout{
				Owner: className,
				Name:  f.Name,
				Type:  fieldValType(f.Type),
			})
		}
	}

	for _, m := range cf.Methods {
		if m.Static || isConstructor(m) {
			continue
		}
		d.addOrUpdateVTable(s.r.Fns, m.QualifiedName(className), false)
	}

	for _, ifaceName := range cf.Interfaces {
		ifile, err := s.r.Loader.LoadInterface(ifaceName)
		if err != nil {
			return s.wrapLoadErr(err, ifaceName)
		}
		for _, m := range ifile.Methods {
			fn := m.QualifiedName(ifaceName)
			if s.r.Fns.IsUsed(fn) {
				d.addOrUpdateVTable(s.r.Fns, fn, true)
			}
		}
	}

	return nil
}

// buildITables constructs d.InterfaceMethods for every interface in
// d.InstanceOfs, once Walk A and Walk B have completed (spec.md §4.2.1,
// paragraph after Walk B). Only called for non-abstract top classes.
func (s *Scanner) buildITables(d *Descriptor) error {
	for _, iface := range d.InstanceOfs {
		isIface, err := s.r.Loader.IsInterface(iface.Name)
		if err != nil {
			return s.wrapLoadErr(err, iface.Name)
		}
		if !isIface {
			continue
		}

		ifile, err := s.r.Loader.LoadInterface(iface.Name)
		if err != nil {
			return s.wrapLoadErr(err, iface.Name)
		}

		for _, m := range ifile.Methods {
			fn := m.QualifiedName(iface.Name)
			if !s.r.Fns.IsUsed(fn) {
				continue
			}

			impl, err := s.findImplementation(d, m)
			if err != nil {
				return err
			}

			k := len(d.InterfaceMethodsFor(iface))
			d.appendInterfaceMethod(iface, impl)
			s.r.Fns.MarkUsed(impl)
			s.r.Fns.SetITableIndex(impl, k+2)
		}
	}
	return nil
}

// findImplementation searches the class chain for a concrete override of
// m, then falls back to a default method drawn from d's transitive
// interface set, in most-derived-first order; the first matching default
// in that order is used.
func (s *Scanner) findImplementation(d *Descriptor, m classfile.Method) (string, error) {
	cur := d.Name
	for cur != "" {
		cf, err := s.r.Loader.LoadClass(cur)
		if err != nil {
			return "", s.wrapLoadErr(err, cur)
		}
		for _, cm := range cf.Methods {
			if cm.Static || isConstructor(cm) {
				continue
			}
			if cm.Name == m.Name && cm.Signature == m.Signature {
				return cm.QualifiedName(cur), nil
			}
		}
		cur = cf.Super
	}

	for _, iface := range d.InstanceOfs {
		isIface, err := s.r.Loader.IsInterface(iface.Name)
		if err != nil {
			return "", s.wrapLoadErr(err, iface.Name)
		}
		if !isIface {
			continue
		}
		ifile, err := s.r.Loader.LoadInterface(iface.Name)
		if err != nil {
			return "", s.wrapLoadErr(err, iface.Name)
		}
		for _, im := range ifile.Methods {
			if im.Default && im.Name == m.Name && im.Signature == m.Signature {
				return im.QualifiedName(iface.Name), nil
			}
		}
	}

	return "", diag.New(diag.StageScanner, diag.CodeMissingImplementation,
		"no concrete or default implementation found", d.Name+"."+m.Name+m.Signature)
}

func isConstructor(m classfile.Method) bool {
	return m.Name == "<init>" || m.Name == "<clinit>"
}

// fieldValType maps a CFBC field type descriptor to a wasmtype.ValType.
func fieldValType(cfbcType string) wasmtype.ValType {
	if len(cfbcType) == 0 {
		return wasmtype.I32{}
	}
	switch cfbcType[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return wasmtype.I32{}
	case 'J':
		return wasmtype.I64{}
	case 'F':
		return wasmtype.F32{}
	case 'D':
		return wasmtype.F64{}
	case 'L':
		name := cfbcType[1:]
		if len(name) > 0 && name[len(name)-1] == ';' {
			name = name[:len(name)-1]
		}
		return wasmtype.Ref{Name: name}
	case '[':
		return wasmtype.Ref{Name: cfbcType}
	default:
		return wasmtype.I32{}
	}
}

func (s *Scanner) wrapLoadErr(err error, name string) error {
	if errors.Is(err, classfile.ErrNotFound) {
		return diag.New(diag.StageScanner, diag.CodeMissingClass, "class not found", name)
	}
	if errors.Is(err, classfile.ErrIsInterface) || errors.Is(err, classfile.ErrIsClass) {
		return err
	}
	return diag.New(diag.StageScanner, diag.CodeIOFailure, err.Error(), name)
}
