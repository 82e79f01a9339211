// Package blocktype implements the BlockTypeTable component (spec.md §3.5,
// §4.5): structural-equality interning of function-signature-shaped
// control-block types, each assigned an integer code exactly once, on
// first emission.
package blocktype

import "github.com/cfbc-wasm/typeforge/internal/wasmtype"

// Table interns wasmtype.FuncType values by structural equality.
type Table struct {
	byKey map[string]*Entry
	order []*Entry
}

// Entry is one interned block type. Code is undefined (-1) until
// AssignCodes is called.
type Entry struct {
	Type wasmtype.FuncType
	Code int32
}

// New creates an empty Table.
func New() *Table {
	return &Table{byKey: make(map[string]*Entry)}
}

// Intern returns the Entry for the given (params, results) shape, creating
// it on first reference. Two structurally equal calls return the same
// Entry (spec.md §8 idempotence).
func (t *Table) Intern(params, results []wasmtype.ValType) *Entry {
	ft := wasmtype.FuncType{Params: params, Results: results}
	key := ft.Key()
	if e, ok := t.byKey[key]; ok {
		return e
	}

	e := &Entry{Type: ft, Code: -1}
	t.byKey[key] = e
	t.order = append(t.order, e)
	return e
}

// AssignCodes assigns each interned entry a distinct integer code, in
// interning order, if it does not already have one. Codes are never
// reused, matching spec.md §4.5's "On emission, each distinct block type
// receives an integer code from the module writer; codes are never
// reused."
func (t *Table) AssignCodes(next func() int32) {
	for _, e := range t.order {
		if e.Code < 0 {
			e.Code = next()
		}
	}
}

// Len returns the number of distinct block types interned so far.
func (t *Table) Len() int {
	return len(t.order)
}

// All returns the interned entries, in interning order.
func (t *Table) All() []*Entry {
	return t.order
}
