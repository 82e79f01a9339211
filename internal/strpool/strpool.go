// Package strpool models the external StringPool collaborator (spec.md
// C3): interning strings used in type metadata (class names, field names)
// and returning a stable integer id.
package strpool

// Pool interns strings to stable int32 ids, assigned in first-seen order.
// A zero Pool is ready to use.
type Pool struct {
	ids     map[string]int32
	strings []string
}

// New creates an empty Pool.
func New() *Pool {
	return &Pool{ids: make(map[string]int32)}
}

// Intern returns the id for s, assigning a fresh one if this is the first
// time s has been seen.
func (p *Pool) Intern(s string) int32 {
	if p.ids == nil {
		p.ids = make(map[string]int32)
	}
	if id, ok := p.ids[s]; ok {
		return id
	}
	id := int32(len(p.strings))
	p.ids[s] = id
	p.strings = append(p.strings, s)
	return id
}

// String returns the string previously interned under id, or ("", false)
// if id is out of range. This is the round-trip half of spec.md §8's
// "class name → TYPE_NAME string-pool id → resolved back to the dotted
// class name" invariant.
func (p *Pool) String(id int32) (string, bool) {
	if id < 0 || int(id) >= len(p.strings) {
		return "", false
	}
	return p.strings[id], true
}

// Len returns the number of distinct strings interned so far.
func (p *Pool) Len() int {
	return len(p.strings)
}
