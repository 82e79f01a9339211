// Package typemgr implements the Type Manager: the subsystem that
// discovers every reference type reachable by compilation, computes
// instance layouts, builds v-tables/i-tables/instanceof lists, and drives
// emission of the per-class metadata blob consumed by the synthetic
// dispatch routines (spec.md §1).
package typemgr

import (
	"github.com/cfbc-wasm/typeforge/internal/fnmgr"
	"github.com/cfbc-wasm/typeforge/internal/wasmtype"
)

// Kind distinguishes the five descriptor shapes spec.md §3.1 describes.
type Kind int

const (
	KindPrimitive Kind = iota
	KindNormal
	KindArray
	KindArrayNative
	KindLambda
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindNormal:
		return "normal"
	case KindArray:
		return "array"
	case KindArrayNative:
		return "array_native"
	case KindLambda:
		return "lambda"
	default:
		return "unknown"
	}
}

// FieldLayout is one entry of a descriptor's instance layout: a
// (declaring-class, name, value-type) triple (spec.md §3.1 "fields").
type FieldLayout struct {
	Owner string
	Name  string
	Type  wasmtype.ValType
}

// ifaceMethods is one entry of Descriptor.InterfaceMethods: the ordered
// list of concrete function names realizing an interface's used methods,
// in i-table-index order (spec.md §3.1).
type ifaceMethods struct {
	iface   *Descriptor
	methods []string
}

// Descriptor is a TypeDescriptor (spec.md §3.1): the single record type
// used for primitive, normal, array, array_native, and lambda types alike,
// distinguished by Kind, per the tagged-variant design spec.md §9
// recommends over separate subclasses.
type Descriptor struct {
	Name       string
	Kind       Kind
	ClassIndex int32 // -1 only for array_native descriptors
	Code       int32 // WebAssembly struct-type index; -1 until emission

	NeededFields map[string]bool

	Fields []FieldLayout
	VTable []string // slot i => concrete function for v-index i+5

	InstanceOfs   []*Descriptor // most-derived first
	instanceOfSet map[int32]bool

	interfaceMethods []ifaceMethods

	VTableOffset int64 // set exactly once, during emission
	vtableOffsetSet bool

	// Array-kind fields.
	ElementType         wasmtype.ValType
	ComponentClassIndex int32
	NativeArrayType     *Descriptor

	// Lambda-kind fields.
	CapturedFields      []FieldLayout
	LambdaIface         *Descriptor
	LambdaIfaceMethod   string
	LambdaWrapperFunc   string
}

// newDescriptor constructs a bare descriptor with the given name, kind,
// and class index. Layout fields are populated later by the
// HierarchyScanner (spec.md §4.2).
func newDescriptor(name string, kind Kind, classIndex int32) *Descriptor {
	return &Descriptor{
		Name:          name,
		Kind:          kind,
		ClassIndex:    classIndex,
		Code:          -1,
		NeededFields:  make(map[string]bool),
		instanceOfSet: make(map[int32]bool),
	}
}

// MarkNeeded records that field name is referenced by a compiled method on
// this type. This is the one attribute external callers (the code
// builder) may mutate, and only before the scan-finish latch (spec.md
// §3.7).
func (d *Descriptor) MarkNeeded(name string) {
	d.NeededFields[name] = true
}

// addInstanceOf appends anc to InstanceOfs if not already present,
// preserving most-derived-first insertion order (spec.md §3.1, §5).
func (d *Descriptor) addInstanceOf(anc *Descriptor) {
	if d.instanceOfSet[anc.ClassIndex] {
		return
	}
	d.instanceOfSet[anc.ClassIndex] = true
	d.InstanceOfs = append(d.InstanceOfs, anc)
}

// isInstanceOf reports whether anc is present in InstanceOfs, i.e. whether
// this descriptor answers true when tested against anc (spec.md §8).
func (d *Descriptor) isInstanceOf(anc *Descriptor) bool {
	return d.instanceOfSet[anc.ClassIndex]
}

// InterfaceMethodsFor returns the ordered function-name list realizing
// iface's used methods on this descriptor, or nil if iface is not present
// in InterfaceMethods.
func (d *Descriptor) InterfaceMethodsFor(iface *Descriptor) []string {
	for _, im := range d.interfaceMethods {
		if im.iface == iface {
			return im.methods
		}
	}
	return nil
}

// Interfaces returns the interfaces that have an i-table entry on this
// descriptor, in interface-encounter order (spec.md §5).
func (d *Descriptor) Interfaces() []*Descriptor {
	out := make([]*Descriptor, len(d.interfaceMethods))
	for i, im := range d.interfaceMethods {
		out[i] = im.iface
	}
	return out
}

func (d *Descriptor) appendInterfaceMethod(iface *Descriptor, fn string) {
	for i := range d.interfaceMethods {
		if d.interfaceMethods[i].iface == iface {
			d.interfaceMethods[i].methods = append(d.interfaceMethods[i].methods, fn)
			return
		}
	}
	d.interfaceMethods = append(d.interfaceMethods, ifaceMethods{iface: iface, methods: []string{fn}})
}

// hasInterfaceEntry reports whether iface already has an (even empty)
// i-table entry reserved on this descriptor.
func (d *Descriptor) hasInterfaceEntry(iface *Descriptor) bool {
	for _, im := range d.interfaceMethods {
		if im.iface == iface {
			return true
		}
	}
	return false
}

// reserveInterfaceEntry ensures iface has an i-table entry (possibly
// empty) on this descriptor, preserving interface-encounter order.
func (d *Descriptor) reserveInterfaceEntry(iface *Descriptor) {
	if d.hasInterfaceEntry(iface) {
		return
	}
	d.interfaceMethods = append(d.interfaceMethods, ifaceMethods{iface: iface})
}

// SetVTableOffset records the byte offset of this descriptor's metadata
// blob, exactly once (spec.md §3.6).
func (d *Descriptor) SetVTableOffset(off int64) {
	if d.vtableOffsetSet {
		panic("typemgr: vtableOffset set twice for " + d.Name)
	}
	d.VTableOffset = off
	d.vtableOffsetSet = true
}

// addOrUpdateVTable implements spec.md §4.2.2.
//
// Linear scan of the current v-table for a slot whose method name and
// signature match func (i.e. same unqualified method+signature suffix,
// ignoring the owning class). If found: the slot is replaced with fn only
// when isDefault is false, or the function already in the slot has no
// i-table index yet assigned. A default already in the slot is therefore
// kept against a same-name default from another interface only once it
// has an i-table index; otherwise the later default replaces it (see
// DESIGN.md's Open Question decision). If not found and fn
// is already used, it is appended. Whenever a slot is assigned or updated,
// the function's v-table index is recorded in fns as (slot + 5).
func (d *Descriptor) addOrUpdateVTable(fns *fnmgr.Manager, fn string, isDefault bool) {
	sig := methodSignature(fn)
	for i, existing := range d.VTable {
		if methodSignature(existing) != sig {
			continue
		}

		if !isDefault {
			d.VTable[i] = fn
			fns.MarkUsed(fn)
			fns.SetVTableIndex(fn, i+5)
			return
		}

		if _, hasITable := fns.GetITableIndex(existing); !hasITable {
			d.VTable[i] = fn
			fns.MarkUsed(fn)
			fns.SetVTableIndex(fn, i+5)
		}
		return
	}

	if !fns.IsUsed(fn) {
		return
	}
	d.VTable = append(d.VTable, fn)
	fns.SetVTableIndex(fn, len(d.VTable)-1+5)
}

// methodSignature extracts the "name+signature" suffix of a qualified
// function name ("Owner.name(sig)" -> "name(sig)"), which is what
// addOrUpdateVTable compares slots by: two classes overriding the same
// method share this suffix even though their qualified names differ.
func methodSignature(qualified string) string {
	for i := 0; i < len(qualified); i++ {
		if qualified[i] == '.' {
			return qualified[i+1:]
		}
	}
	return qualified
}
