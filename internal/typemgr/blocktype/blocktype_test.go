package blocktype_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cfbc-wasm/typeforge/internal/typemgr/blocktype"
	"github.com/cfbc-wasm/typeforge/internal/wasmtype"
)

func TestInternIsIdempotent(t *testing.T) {
	tbl := blocktype.New()

	a := tbl.Intern([]wasmtype.ValType{wasmtype.I32{}}, []wasmtype.ValType{wasmtype.I32{}})
	b := tbl.Intern([]wasmtype.ValType{wasmtype.I32{}}, []wasmtype.ValType{wasmtype.I32{}})
	require.Same(t, a, b)
	require.Equal(t, 1, tbl.Len())

	c := tbl.Intern([]wasmtype.ValType{wasmtype.I64{}}, nil)
	require.NotSame(t, a, c)
	require.Equal(t, 2, tbl.Len())
}

func TestAssignCodesNeverReused(t *testing.T) {
	tbl := blocktype.New()
	tbl.Intern([]wasmtype.ValType{wasmtype.I32{}}, nil)
	tbl.Intern([]wasmtype.ValType{wasmtype.I64{}}, nil)

	next := int32(0)
	tbl.AssignCodes(func() int32 {
		c := next
		next++
		return c
	})

	seen := map[int32]bool{}
	for _, e := range tbl.All() {
		require.False(t, seen[e.Code])
		seen[e.Code] = true
	}

	// A second AssignCodes call with a counter that would emit duplicates
	// must not touch already-coded entries.
	tbl.AssignCodes(func() int32 { return 99 })
	for _, e := range tbl.All() {
		require.NotEqual(t, int32(99), e.Code)
	}
}
