// Package fnmgr models the external FunctionManager collaborator (spec.md
// C2): it tracks which function names are "used" (reachable), assigns
// v-table and i-table indices to used methods, and resolves function names
// to numeric function indices at emission time.
//
// The shape follows the teacher's own Scope pattern (a flat map guarding
// name lookups), generalized from "Go expression per variable" to
// "assigned dispatch indices per function name".
package fnmgr

// Manager is the FunctionManager collaborator. Create one with New; the
// zero Manager has nil maps, so MarkUsed, SetVTableIndex and
// SetITableIndex panic on it.
type Manager struct {
	used    map[string]bool
	vtable  map[string]int
	itable  map[string]int
	indices map[string]int32

	nextIndex int32
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{
		used:    make(map[string]bool),
		vtable:  make(map[string]int),
		itable:  make(map[string]int),
		indices: make(map[string]int32),
	}
}

// MarkUsed marks name as reachable. Idempotent.
func (m *Manager) MarkUsed(name string) {
	if m.used[name] {
		return
	}
	m.used[name] = true
	if _, ok := m.indices[name]; !ok {
		m.indices[name] = m.nextIndex
		m.nextIndex++
	}
}

// IsUsed reports whether name has been marked used.
func (m *Manager) IsUsed(name string) bool {
	return m.used[name]
}

// SetVTableIndex records that name occupies v-table index idx. Per
// spec.md §4.2.2, idx is always (slot + 5), where slot is the name's
// position in some descriptor's vtable.
func (m *Manager) SetVTableIndex(name string, idx int) {
	m.vtable[name] = idx
}

// GetVTableIndex returns the v-table index previously recorded for name,
// or (-1, false) if none was recorded.
func (m *Manager) GetVTableIndex(name string) (int, bool) {
	idx, ok := m.vtable[name]
	if !ok {
		return -1, false
	}
	return idx, true
}

// SetITableIndex records that name occupies i-table index idx within some
// interface's method list. Per spec.md §4.2.1, idx is always (k + 2) for
// the k-th method of that interface's used methods.
func (m *Manager) SetITableIndex(name string, idx int) {
	m.itable[name] = idx
}

// GetITableIndex returns the i-table index previously recorded for name,
// or (-1, false) if none was recorded.
func (m *Manager) GetITableIndex(name string) (int, bool) {
	idx, ok := m.itable[name]
	if !ok {
		return -1, false
	}
	return idx, true
}

// FunctionIndex returns the numeric function index MarkUsed assigned to
// name, or (0, false) if name was never marked used; it assigns nothing
// itself. This is the value written into v-table and i-table slots in the
// metadata blob (spec.md §6.1).
func (m *Manager) FunctionIndex(name string) (int32, bool) {
	idx, ok := m.indices[name]
	return idx, ok
}
