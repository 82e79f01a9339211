package typemgr_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cfbc-wasm/typeforge/internal/classfile"
	"github.com/cfbc-wasm/typeforge/internal/fnmgr"
	"github.com/cfbc-wasm/typeforge/internal/strpool"
	"github.com/cfbc-wasm/typeforge/internal/typemgr"
	"github.com/cfbc-wasm/typeforge/internal/typemgr/dispatch"
	"github.com/cfbc-wasm/typeforge/internal/wasmtype"
)

// fakeLoader is an in-memory classfile.Loader fixture, standing in for a
// directory of parsed class files. Manual fixture construction follows the
// teacher's own checker_test.go idiom of hand-building inputs rather than
// parsing source text.
type fakeLoader struct {
	classes    map[string]*classfile.ClassFile
	interfaces map[string]*classfile.InterfaceFile
}

func newFakeLoader() *fakeLoader {
	l := &fakeLoader{
		classes:    make(map[string]*classfile.ClassFile),
		interfaces: make(map[string]*classfile.InterfaceFile),
	}
	l.classes[typemgr.ObjectClassName] = &classfile.ClassFile{Name: typemgr.ObjectClassName}
	return l
}

func (l *fakeLoader) addClass(cf *classfile.ClassFile) {
	l.classes[cf.Name] = cf
}

func (l *fakeLoader) addInterface(ifc *classfile.InterfaceFile) {
	l.interfaces[ifc.Name] = ifc
}

func (l *fakeLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := l.classes[name]; ok {
		return cf, nil
	}
	if _, ok := l.interfaces[name]; ok {
		return nil, fmt.Errorf("%w: %s", classfile.ErrIsInterface, name)
	}
	return nil, fmt.Errorf("%w: %s", classfile.ErrNotFound, name)
}

func (l *fakeLoader) LoadInterface(name string) (*classfile.InterfaceFile, error) {
	if ifc, ok := l.interfaces[name]; ok {
		return ifc, nil
	}
	if _, ok := l.classes[name]; ok {
		return nil, fmt.Errorf("%w: %s", classfile.ErrIsClass, name)
	}
	return nil, fmt.Errorf("%w: %s", classfile.ErrNotFound, name)
}

func (l *fakeLoader) IsInterface(name string) (bool, error) {
	if name == typemgr.ObjectClassName {
		return false, nil
	}
	if _, ok := l.interfaces[name]; ok {
		return true, nil
	}
	if _, ok := l.classes[name]; ok {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", classfile.ErrNotFound, name)
}

func newRig(l *fakeLoader) (*typemgr.Registry, *fnmgr.Manager, *strpool.Pool) {
	fns := fnmgr.New()
	strs := strpool.New()
	return typemgr.New(l, fns, strs), fns, strs
}

func TestScalarFieldLayout(t *testing.T) {
	l := newFakeLoader()
	l.addClass(&classfile.ClassFile{
		Name:  "A",
		Super: typemgr.ObjectClassName,
		Fields: []classfile.Field{
			{Name: "x", Type: "I"},
		},
	})

	r, _, _ := newRig(l)
	d, err := r.ValueOf("A")
	require.NoError(t, err)
	d.MarkNeeded("x")

	require.NoError(t, typemgr.NewScanner(r).ScanTypeHierarchy())

	require.Len(t, d.Fields, 3)
	require.Equal(t, ".vtable", d.Fields[0].Name)
	require.Equal(t, ".hashcode", d.Fields[1].Name)
	require.Equal(t, "x", d.Fields[2].Name)
	require.Equal(t, "i32", d.Fields[2].Type.String())
}

func TestOverrideResolution(t *testing.T) {
	l := newFakeLoader()
	l.addClass(&classfile.ClassFile{
		Name:    "A",
		Super:   typemgr.ObjectClassName,
		Methods: []classfile.Method{{Name: "m", Signature: "()V"}},
	})
	l.addClass(&classfile.ClassFile{
		Name:    "B",
		Super:   "A",
		Methods: []classfile.Method{{Name: "m", Signature: "()V"}},
	})

	r, fns, _ := newRig(l)
	fns.MarkUsed("A.m()V")

	d, err := r.ValueOf("B")
	require.NoError(t, err)
	require.NoError(t, typemgr.NewScanner(r).ScanTypeHierarchy())

	require.Equal(t, []string{"B.m()V"}, d.VTable)
	idxA, okA := fns.GetVTableIndex("A.m()V")
	idxB, okB := fns.GetVTableIndex("B.m()V")
	require.True(t, okA)
	require.True(t, okB)
	require.Equal(t, 5, idxA)
	require.Equal(t, 5, idxB)
}

func TestDefaultMethod(t *testing.T) {
	l := newFakeLoader()
	l.addInterface(&classfile.InterfaceFile{
		Name:    "I",
		Methods: []classfile.Method{{Name: "f", Signature: "()V", Default: true}},
	})
	l.addClass(&classfile.ClassFile{
		Name:       "C",
		Super:      typemgr.ObjectClassName,
		Interfaces: []string{"I"},
	})

	r, fns, _ := newRig(l)
	fns.MarkUsed("I.f()V")

	d, err := r.ValueOf("C")
	require.NoError(t, err)
	require.NoError(t, typemgr.NewScanner(r).ScanTypeHierarchy())

	require.Equal(t, []string{"I.f()V"}, d.VTable)

	iface, err := r.ValueOf("I")
	require.NoError(t, err)
	require.Equal(t, []string{"I.f()V"}, d.InterfaceMethodsFor(iface))
}

func TestInterfaceDispatchITableIndex(t *testing.T) {
	l := newFakeLoader()
	l.addInterface(&classfile.InterfaceFile{
		Name:    "I",
		Methods: []classfile.Method{{Name: "f", Signature: "()V", Default: true}},
	})
	l.addClass(&classfile.ClassFile{
		Name:       "C",
		Super:      typemgr.ObjectClassName,
		Interfaces: []string{"I"},
	})

	r, fns, _ := newRig(l)
	fns.MarkUsed("I.f()V")

	_, err := r.ValueOf("C")
	require.NoError(t, err)
	require.NoError(t, typemgr.NewScanner(r).ScanTypeHierarchy())

	idx, ok := fns.GetITableIndex("I.f()V")
	require.True(t, ok)
	require.Equal(t, 2, idx) // byte offset 8 / 4 = index 2, spec.md §8 scenario 4
}

func TestArrayOfPrimitive(t *testing.T) {
	l := newFakeLoader()
	fns := fnmgr.New()
	strs := strpool.New()
	r := typemgr.New(l, fns, strs, typemgr.WithGCArrays(false))

	intClass, ok := r.GetPrimitiveClass("int")
	require.True(t, ok)
	require.Equal(t, int32(5), intClass.ClassIndex)

	arr, err := r.ArrayType(intClass)
	require.NoError(t, err)
	require.Equal(t, int32(5), arr.ComponentClassIndex)

	require.NoError(t, typemgr.NewScanner(r).ScanTypeHierarchy())

	require.Len(t, arr.Fields, 3)
	require.Equal(t, ".elements", arr.Fields[2].Name)
	require.Equal(t, "i32", arr.Fields[2].Type.String())
}

func TestInstanceofNonMatch(t *testing.T) {
	l := newFakeLoader()
	l.addClass(&classfile.ClassFile{Name: "X", Super: typemgr.ObjectClassName})
	l.addClass(&classfile.ClassFile{Name: "Y", Super: typemgr.ObjectClassName})

	r, _, _ := newRig(l)
	x, err := r.ValueOf("X")
	require.NoError(t, err)
	y, err := r.ValueOf("Y")
	require.NoError(t, err)

	require.NoError(t, typemgr.NewScanner(r).ScanTypeHierarchy())

	found := false
	for _, anc := range x.InstanceOfs {
		if anc == y {
			found = true
		}
	}
	require.False(t, found)

	obj, err := r.ValueOf(typemgr.ObjectClassName)
	require.NoError(t, err)
	containsObj := false
	containsSelf := false
	for _, anc := range x.InstanceOfs {
		if anc == obj {
			containsObj = true
		}
		if anc == x {
			containsSelf = true
		}
	}
	require.True(t, containsObj)
	require.True(t, containsSelf)
}

func TestLambdaType(t *testing.T) {
	l := newFakeLoader()
	l.addInterface(&classfile.InterfaceFile{
		Name:    "I",
		Methods: []classfile.Method{{Name: "f", Signature: "()V"}},
	})
	l.addClass(&classfile.ClassFile{Name: "Owner", Super: typemgr.ObjectClassName})

	r, fns, _ := newRig(l)
	fns.MarkUsed("I.f()V")

	owner, err := r.ValueOf("Owner")
	require.NoError(t, err)

	lam, err := r.LambdaType(owner, "lambda$0", "()LI;", "I.f()V",
		[]wasmtype.ValType{wasmtype.I32{}})
	require.NoError(t, err)

	require.NoError(t, typemgr.NewScanner(r).ScanTypeHierarchy())

	require.Len(t, lam.Fields, 3)
	require.Equal(t, ".vtable", lam.Fields[0].Name)
	require.Equal(t, ".hashcode", lam.Fields[1].Name)
	require.Equal(t, "arg$1", lam.Fields[2].Name)

	idx, ok := fns.GetITableIndex(lam.LambdaWrapperFunc)
	require.True(t, ok)
	require.Equal(t, 2, idx)

	iface, err := r.ValueOf("I")
	require.NoError(t, err)

	selfFound, ifaceFound := false, false
	for _, anc := range lam.InstanceOfs {
		if anc == lam {
			selfFound = true
		}
		if anc == iface {
			ifaceFound = true
		}
	}
	require.True(t, selfFound)
	require.True(t, ifaceFound)
}

func TestDispatchSynthesizerRegistersAllFour(t *testing.T) {
	fns := fnmgr.New()
	routines := dispatch.New(fns).Synthesize()
	require.Len(t, routines, 4)
	for _, r := range routines {
		require.True(t, fns.IsUsed(r.Name))
		require.NotEmpty(t, r.WAT)
	}
}
