package emit_test

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cfbc-wasm/typeforge/internal/classfile"
	"github.com/cfbc-wasm/typeforge/internal/fnmgr"
	"github.com/cfbc-wasm/typeforge/internal/strpool"
	"github.com/cfbc-wasm/typeforge/internal/typemgr"
	"github.com/cfbc-wasm/typeforge/internal/typemgr/dispatch"
	"github.com/cfbc-wasm/typeforge/internal/typemgr/emit"
)

type fakeLoader struct {
	classes map[string]*classfile.ClassFile
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{classes: map[string]*classfile.ClassFile{
		typemgr.ObjectClassName: {Name: typemgr.ObjectClassName},
	}}
}

func (l *fakeLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := l.classes[name]; ok {
		return cf, nil
	}
	return nil, fmt.Errorf("%w: %s", classfile.ErrNotFound, name)
}

func (l *fakeLoader) LoadInterface(name string) (*classfile.InterfaceFile, error) {
	return nil, fmt.Errorf("%w: %s", classfile.ErrNotFound, name)
}

func (l *fakeLoader) IsInterface(name string) (bool, error) {
	if name == typemgr.ObjectClassName {
		return false, nil
	}
	if _, ok := l.classes[name]; ok {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", classfile.ErrNotFound, name)
}

func u32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

func TestEmitTypeTableRoundTrip(t *testing.T) {
	l := newFakeLoader()
	l.classes["A"] = &classfile.ClassFile{Name: "A", Super: typemgr.ObjectClassName,
		Fields: []classfile.Field{{Name: "x", Type: "I"}}}

	fns := fnmgr.New()
	strs := strpool.New()
	r := typemgr.New(l, fns, strs)

	d, err := r.ValueOf("A")
	require.NoError(t, err)
	d.MarkNeeded("x")

	dispatch.New(fns).Synthesize()
	require.NoError(t, typemgr.NewScanner(r).ScanTypeHierarchy())

	e := emit.New(r, fns, strs)
	image, err := e.Emit()
	require.NoError(t, err)

	tableOff := e.TypeTableOffset()
	for _, desc := range r.Descriptors() {
		if desc.ClassIndex < 0 {
			continue // array_native: excluded from the type table (spec.md §3.1)
		}
		got := u32(image, tableOff+4*int(desc.ClassIndex))
		require.Equal(t, uint32(desc.VTableOffset), got)
	}

	nameID := u32(image, int(d.VTableOffset)+8)
	name, ok := strs.String(int32(nameID))
	require.True(t, ok)
	require.Equal(t, "A", name)
}

// TestEmitTypeTableSurvivesInterleavedNatives registers an array (which,
// with GC arrays on, also registers an array_native sibling at classIndex
// -1 without consuming a table slot) before a class, so that the class's
// position in registry order exceeds its own classIndex. The table must
// still be addressable by classIndex, not registry position.
func TestEmitTypeTableSurvivesInterleavedNatives(t *testing.T) {
	l := newFakeLoader()
	l.classes["A"] = &classfile.ClassFile{Name: "A", Super: typemgr.ObjectClassName}

	fns := fnmgr.New()
	strs := strpool.New()
	r := typemgr.New(l, fns, strs)

	intClass, _ := r.GetPrimitiveClass("int")
	_, err := r.ArrayType(intClass) // registers array + array_native
	require.NoError(t, err)

	a, err := r.ValueOf("A")
	require.NoError(t, err)

	dispatch.New(fns).Synthesize()
	require.NoError(t, typemgr.NewScanner(r).ScanTypeHierarchy())

	e := emit.New(r, fns, strs)
	image, err := e.Emit()
	require.NoError(t, err)

	tableOff := e.TypeTableOffset()
	got := u32(image, tableOff+4*int(a.ClassIndex))
	require.Equal(t, uint32(a.VTableOffset), got)
}

func TestEmitTypeTableAccessor(t *testing.T) {
	l := newFakeLoader()
	fns := fnmgr.New()
	strs := strpool.New()
	r := typemgr.New(l, fns, strs)

	e := emit.New(r, fns, strs)
	require.NoError(t, typemgr.NewScanner(r).ScanTypeHierarchy())
	_, err := e.Emit()
	require.NoError(t, err)

	routine := e.TypeTableAccessor()
	require.Equal(t, "java/lang/Class.typeTableMemoryOffset()I", routine.Name)
	require.Contains(t, routine.WAT, fmt.Sprintf("i32.const %d", e.TypeTableOffset()))
	require.True(t, fns.IsUsed(routine.Name))
}

func TestEmitArrayTypeField(t *testing.T) {
	l := newFakeLoader()
	fns := fnmgr.New()
	strs := strpool.New()
	r := typemgr.New(l, fns, strs)

	intClass, _ := r.GetPrimitiveClass("int")
	arr, err := r.ArrayType(intClass)
	require.NoError(t, err)

	require.NoError(t, typemgr.NewScanner(r).ScanTypeHierarchy())

	e := emit.New(r, fns, strs)
	image, err := e.Emit()
	require.NoError(t, err)

	arrayType := u32(image, int(arr.VTableOffset)+12)
	require.Equal(t, uint32(5), arrayType)
}
