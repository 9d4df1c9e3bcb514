// Package sysver names the System 1/2/3 dialect family the compiler and
// decompiler are parameterized over. Most version-dependent behavior
// (number-encoding ceiling, operator set, compound-assignment support,
// SCO header framing) is keyed off a single SysVer value threaded through
// CompileCtx / Decompiler rather than scattered module-level flags.
package sysver

// SysVer orders the dialects from oldest to newest; callers compare with
// >= to mean "this dialect or any later one".
type SysVer int

const (
	// System1 is the original, most restrictive dialect: numbers cap at
	// 0x37 in a single byte, '*' compiles to integer division and '/' is
	// rejected, and only MUL/DIV/ADD/SUB/EQ/LT/GT/NE are recognized.
	System1 SysVer = iota
	// System2 relaxes the '*'/'/' restriction but keeps System1's
	// operator set; its single-byte number ceiling is 0x36, one below
	// System1's.
	System2
	// System3 is the common target of spec.md's scenarios: same operator
	// set as System2, plus the structured `{ expr : ... }` conditional
	// that reserves an end-address hole instead of emitting a trailing
	// '}'.
	System3
	// System3Ain is the newest, SCO-header dialect (System 3.9 / "ain"):
	// adds OP_AND/OR/XOR, the 0xC0-escape MOD/LE/GE/array-index operators,
	// and compound-assignment opcodes (+= through ^=).
	System3Ain
)

func (v SysVer) String() string {
	switch v {
	case System1:
		return "System1"
	case System2:
		return "System2"
	case System3:
		return "System3"
	case System3Ain:
		return "System3Ain"
	default:
		return "unknown"
	}
}

// SupportsExtendedOperators reports whether v recognizes OP_AND/OR/XOR and
// the 0xC0-escape MOD/LE/GE/array-index operators.
func (v SysVer) SupportsExtendedOperators() bool {
	return v >= System3Ain
}

// SupportsCompoundAssignment reports whether v recognizes += through ^=
// as a single assignment opcode rather than requiring them spelled out
// as `var: var op expr`.
func (v SysVer) SupportsCompoundAssignment() bool {
	return v >= System3Ain
}

// NumberCeiling returns N such that values 0..=N emit as a single byte
// 0x40+value (spec §4.1).
func (v SysVer) NumberCeiling(offByOne bool) int {
	n := 0x36
	if v == System1 {
		n = 0x37
	}
	if offByOne {
		n--
	}
	return n
}
