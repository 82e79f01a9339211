// Package dispatch implements the DispatchSynthesizer (spec.md §4.3, C6):
// four small WebAssembly-text routines implementing dynamic dispatch and
// subtype testing, registered with the FunctionManager as replacements
// for the CFBC-level primitives of the same role. The emit-then-join
// idiom here is carried over directly from the teacher's LLVM text
// generator (internal/codegen/llvm/vtables.go's packToExistential /
// callExistentialMethod), adapted from a register-stack IR to WebAssembly's
// structured, stack-machine text format.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/cfbc-wasm/typeforge/internal/fnmgr"
)

// Layout constants from spec.md §6.1. Never computed, since they are part
// of the fixed ABI; callInterface and instanceof hard-reference
// InterfaceOffset and InstanceofOffset respectively.
const (
	InterfaceOffset  = 0
	InstanceofOffset = 4
	TypeNameOffset   = 8
	ArrayTypeOffset  = 12
	FieldsOffset     = 16

	// FirstVTableIndex is the "5" in "i + 5": the byte offset of the first
	// v-table slot (20) divided by 4.
	FirstVTableIndex = 5
)

// Names of the four synthetic routines, as registered with C2 (spec.md §6.3).
const (
	NameCallVirtual   = "callVirtual"
	NameCallInterface = "callInterface"
	NameInstanceof    = "instanceof"
	NameCast          = "cast"
)

// builder accumulates WAT text with the teacher's emit-line idiom.
type builder struct {
	sb strings.Builder
}

func (b *builder) emit(format string, args ...any) {
	b.sb.WriteString(fmt.Sprintf(format, args...))
	b.sb.WriteByte('\n')
}

func (b *builder) String() string { return b.sb.String() }

// Synthesizer produces the four dispatch routines and registers them with
// the function manager.
type Synthesizer struct {
	Fns *fnmgr.Manager
}

// New creates a Synthesizer over fns.
func New(fns *fnmgr.Manager) *Synthesizer {
	return &Synthesizer{Fns: fns}
}

// Routine is one synthesized dispatch function: its registered name and
// WebAssembly text body.
type Routine struct {
	Name string
	WAT  string
}

// Synthesize produces all four routines and marks each used in C2, as if
// it were an ordinary compiled function (spec.md §4.3: "registered with C2
// as a replacement for the CFBC primitive of the same role").
func (s *Synthesizer) Synthesize() []Routine {
	routines := []Routine{
		{Name: NameCallVirtual, WAT: s.callVirtual()},
		{Name: NameCallInterface, WAT: s.callInterface()},
		{Name: NameInstanceof, WAT: s.instanceof()},
		{Name: NameCast, WAT: s.cast()},
	}
	for _, r := range routines {
		s.Fns.MarkUsed(r.Name)
	}
	return routines
}

// callVirtual(this, vFuncIndex) -> functionIndex: loads the v-table
// pointer from this's first field, adds vFuncIndex as a byte offset, and
// loads a 4-byte integer there.
func (s *Synthesizer) callVirtual() string {
	var b builder
	b.emit("(func $%s (param $this i32) (param $vFuncIndex i32) (result i32)", NameCallVirtual)
	b.emit("  (i32.load")
	b.emit("    (i32.add")
	b.emit("      (i32.load (local.get $this))")
	b.emit("      (local.get $vFuncIndex)))")
	b.emit(")")
	return b.String()
}

// callInterface(this, classIndex, vFuncIndex) -> functionIndex: loads the
// v-table pointer, follows the i-table linked list looking for a block
// whose class index matches classIndex, and traps on the class-index-0
// sentinel block (the ClassCastException slot).
func (s *Synthesizer) callInterface() string {
	var b builder
	b.emit("(func $%s (param $this i32) (param $classIndex i32) (param $vFuncIndex i32) (result i32)", NameCallInterface)
	b.emit("  (local $vtable i32)")
	b.emit("  (local $block i32)")
	b.emit("  (local $blockClassIndex i32)")
	b.emit("  (local.set $vtable (i32.load (local.get $this)))")
	b.emit("  (local.set $block")
	b.emit("    (i32.add (local.get $vtable) (i32.load (i32.add (local.get $vtable) (i32.const %d)))))", InterfaceOffset)
	b.emit("  (block $done")
	b.emit("    (loop $walk")
	b.emit("      (local.set $blockClassIndex (i32.load (local.get $block)))")
	b.emit("      (if (i32.eqz (local.get $blockClassIndex))")
	b.emit("        (then (unreachable)))") // ClassCastException slot
	b.emit("      (if (i32.eq (local.get $blockClassIndex) (local.get $classIndex))")
	b.emit("        (then")
	b.emit("          (return")
	b.emit("            (i32.load (i32.add (local.get $block) (local.get $vFuncIndex))))))")
	b.emit("      (local.set $block")
	b.emit("        (i32.add (local.get $block) (i32.load (i32.add (local.get $block) (i32.const 4)))))")
	b.emit("      (br $walk)))")
	b.emit("  (unreachable)")
	b.emit(")")
	return b.String()
}

// instanceof(this, classIndex) -> {0,1}: null returns 0. Otherwise loads
// the instanceof list and linearly scans it for classIndex.
func (s *Synthesizer) instanceof() string {
	var b builder
	b.emit("(func $%s (param $this i32) (param $classIndex i32) (result i32)", NameInstanceof)
	b.emit("  (local $vtable i32)")
	b.emit("  (local $list i32)")
	b.emit("  (local $count i32)")
	b.emit("  (local $i i32)")
	b.emit("  (if (i32.eqz (local.get $this))")
	b.emit("    (then (return (i32.const 0))))")
	b.emit("  (local.set $vtable (i32.load (local.get $this)))")
	b.emit("  (local.set $list")
	b.emit("    (i32.add (local.get $vtable) (i32.load (i32.add (local.get $vtable) (i32.const %d)))))", InstanceofOffset)
	b.emit("  (local.set $count (i32.load (local.get $list)))")
	b.emit("  (local.set $i (i32.const 0))")
	b.emit("  (block $done")
	b.emit("    (loop $scan")
	b.emit("      (br_if $done (i32.ge_u (local.get $i) (local.get $count)))")
	b.emit("      (if (i32.eq")
	b.emit("            (i32.load (i32.add (local.get $list) (i32.add (i32.const 4) (i32.mul (local.get $i) (i32.const 4)))))")
	b.emit("            (local.get $classIndex))")
	b.emit("        (then (return (i32.const 1))))")
	b.emit("      (local.set $i (i32.add (local.get $i) (i32.const 1)))")
	b.emit("      (br $scan)))")
	b.emit("  (i32.const 0)")
	b.emit(")")
	return b.String()
}

// cast(this, classIndex) -> this: null passes through; otherwise defers to
// instanceof and traps on a false result.
func (s *Synthesizer) cast() string {
	var b builder
	b.emit("(func $%s (param $this i32) (param $classIndex i32) (result i32)", NameCast)
	b.emit("  (if (i32.eqz (local.get $this))")
	b.emit("    (then (return (local.get $this))))")
	b.emit("  (if (i32.eqz (call $%s (local.get $this) (local.get $classIndex)))", NameInstanceof)
	b.emit("    (then (unreachable)))")
	b.emit("  (local.get $this)")
	b.emit(")")
	return b.String()
}
