// Package wasmtype models the WebAssembly value-type system used by the
// Type Manager: field value types, v-table slot types, and block-type
// (control-flow signature) parameter/result lists.
package wasmtype

import "strings"

// ValType is a WebAssembly value type.
type ValType interface {
	String() string
	// isValType is a marker method to close the set of implementations.
	isValType()
}

// Code is the single-byte WebAssembly type code used when serializing a
// field descriptor (spec.md §6.1's field descriptor list).
type Code byte

// Numeric and reference type codes, per the WebAssembly binary format.
const (
	CodeI32      Code = 0x7F
	CodeI64      Code = 0x7E
	CodeF32      Code = 0x7D
	CodeF64      Code = 0x7C
	CodeFuncRef  Code = 0x70
	CodeExternRef Code = 0x6F
	CodeStructRef Code = 0x6B // typed struct reference (GC proposal)
	CodeArrayRef Code = 0x6A  // typed array reference (GC proposal)
)

// I32 is the 32-bit integer type: used for v-table/i-table slots, the
// object header's hashcode word, and any field holding a function index,
// class index, or small integer.
type I32 struct{}

func (I32) String() string { return "i32" }
func (I32) isValType()     {}

// I64 is the 64-bit integer type.
type I64 struct{}

func (I64) String() string { return "i64" }
func (I64) isValType()     {}

// F32 is the 32-bit float type.
type F32 struct{}

func (F32) String() string { return "f32" }
func (F32) isValType()     {}

// F64 is the 64-bit float type.
type F64 struct{}

func (F64) String() string { return "f64" }
func (F64) isValType()     {}

// Ref is an object reference to some named struct type, identified by the
// struct-type's name (resolved to a WebAssembly struct-type code at
// emission time, see spec.md §4.4).
type Ref struct {
	Name string
}

func (r Ref) String() string { return "(ref null $" + r.Name + ")" }
func (r Ref) isValType()     {}

// Code returns the WebAssembly type code to use when serializing a field
// of this type (spec.md §6.1).
func (r Ref) Code() Code { return CodeStructRef }

// CodeOf returns the WebAssembly type code for a numeric ValType. Reference
// types should use their own Code method instead.
func CodeOf(v ValType) Code {
	switch v.(type) {
	case I32:
		return CodeI32
	case I64:
		return CodeI64
	case F32:
		return CodeF32
	case F64:
		return CodeF64
	default:
		return CodeStructRef
	}
}

// FuncType is a function-signature-shaped value: an ordered parameter list
// and an ordered result list. This is the key used by the BlockType
// interning table (spec.md §3.5, §4.5): two FuncTypes are equal iff both
// lists are element-wise equal.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether f and other describe the same parameter/result
// shape.
func (f FuncType) Equal(other FuncType) bool {
	if len(f.Params) != len(other.Params) || len(f.Results) != len(other.Results) {
		return false
	}
	for i, p := range f.Params {
		if p.String() != other.Params[i].String() {
			return false
		}
	}
	for i, r := range f.Results {
		if r.String() != other.Results[i].String() {
			return false
		}
	}
	return true
}

// Key returns a string uniquely identifying this FuncType's shape, for use
// as a map key in an interning table.
func (f FuncType) Key() string {
	var b strings.Builder
	for _, p := range f.Params {
		b.WriteString(p.String())
		b.WriteByte(',')
	}
	b.WriteByte('-')
	for _, r := range f.Results {
		b.WriteString(r.String())
		b.WriteByte(',')
	}
	return b.String()
}

func (f FuncType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> (")
	for i, r := range f.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteByte(')')
	return b.String()
}
