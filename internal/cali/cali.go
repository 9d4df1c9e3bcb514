// Package cali implements the postfix expression codec spec.md calls
// "Cali": a byte encoding for arithmetic/comparison expressions over a
// variable store, its decoder (producing a tree for pretty-printing), and
// the precedence-driven infix printer the decompiler emitter uses.
package cali

import (
	"fmt"

	"github.com/kichikuou/sys3c/internal/buffer"
	"github.com/kichikuou/sys3c/internal/sysver"
)

// Operator bytes (spec §4.1). Values above OP_C0_* live behind the 0xC0
// escape and are only meaningful when the escape byte has been consumed.
const (
	OpMul byte = 0x77
	OpDiv byte = 0x78
	OpAdd byte = 0x79
	OpSub byte = 0x7a
	OpEq  byte = 0x7b
	OpLt  byte = 0x7c
	OpGt  byte = 0x7d
	OpNe  byte = 0x7e
	OpEnd byte = 0x7f

	OpAnd byte = 0x70
	OpOr  byte = 0x71
	OpXor byte = 0x72

	Escape byte = 0xc0

	OpC0Index byte = 0x00
	OpC0Mod   byte = 0x01
	OpC0Le    byte = 0x02
	OpC0Ge    byte = 0x03
)

// overflowChunk is the largest value a two-byte literal can carry (spec
// §4.1: "repeatedly emit 0x3F,0xFF (=16383)").
const overflowChunk = 0x3fff

// NodeKind discriminates the sealed Node variant (Design Notes: "re-model
// as a sealed variant").
type NodeKind int

const (
	Number NodeKind = iota
	Variable
	ArrayRef
	Op
)

// Node is an expression tree node, as produced by Decode for
// pretty-printing. Exactly one of the fields relevant to Kind is
// meaningful.
type Node struct {
	Kind NodeKind

	// Number
	Value int

	// Variable, ArrayRef
	Var int

	// ArrayRef
	Index *Node

	// Op. Operator is either one of the plain Op* byte constants, or, for
	// the 0xC0-escape comparison operators (MOD/LE/GE), that sub-opcode
	// tagged with 0xc000 so it can never collide with a plain operator
	// byte — see operatorInfo.
	Operator int
	LHS, RHS *Node
}

// ---- Encoding ----

// EncodeNumber appends n's postfix encoding (without OP_END) to b,
// emitting OP_ADD chunks for values above 0x3FFF per spec §4.1.
func EncodeNumber(b *buffer.Buffer, n int, ver sysver.SysVer, offByOne bool) error {
	if n < 0 {
		return fmt.Errorf("cali: negative number %d", n)
	}
	chunks := 0
	for n > overflowChunk {
		b.AppendByte(0x3f)
		b.AppendByte(0xff)
		n -= overflowChunk
		chunks++
	}
	encodeNumberLiteral(b, n, ver, offByOne)
	for i := 0; i < chunks; i++ {
		b.AppendByte(OpAdd)
	}
	return nil
}

func encodeNumberLiteral(b *buffer.Buffer, n int, ver sysver.SysVer, offByOne bool) {
	ceiling := ver.NumberCeiling(offByOne)
	if n <= ceiling {
		b.AppendByte(0x40 + byte(n))
		return
	}
	// 0x38..0x3FFF: big-endian 16 bits with the high two bits zero.
	b.AppendWordBE(uint16(n))
}

// EncodeVariable appends var's postfix encoding (without OP_END) to b per
// spec §4.1.
func EncodeVariable(b *buffer.Buffer, v int) error {
	switch {
	case v <= 0x3f:
		b.AppendByte(0x80 | byte(v))
	case v <= 0xff:
		b.AppendByte(0xc0)
		b.AppendByte(byte(v))
	case v <= 0x3fff:
		b.AppendWordBE(uint16(0xc000 | v))
	default:
		return fmt.Errorf("cali: variable id %d out of range", v)
	}
	return nil
}

// EncodeOp appends a single operator byte, resolving System1's '*' (= DIV)
// special case and rejecting operators the given system version doesn't
// support.
func EncodeOp(b *buffer.Buffer, op rune, ver sysver.SysVer) error {
	switch op {
	case '*':
		if ver == sysver.System1 {
			b.AppendByte(OpDiv)
		} else {
			b.AppendByte(OpMul)
		}
	case '/':
		if ver == sysver.System1 {
			return fmt.Errorf("cali: '/' is not valid in System1 (use '*' for division)")
		}
		b.AppendByte(OpDiv)
	case '+':
		b.AppendByte(OpAdd)
	case '-':
		b.AppendByte(OpSub)
	case '=':
		b.AppendByte(OpEq)
	case '<':
		b.AppendByte(OpLt)
	case '>':
		b.AppendByte(OpGt)
	case '\\':
		b.AppendByte(OpNe)
	case '&':
		if !ver.SupportsExtendedOperators() {
			return fmt.Errorf("cali: '&' requires a newer system version")
		}
		b.AppendByte(OpAnd)
	case '|':
		if !ver.SupportsExtendedOperators() {
			return fmt.Errorf("cali: '|' requires a newer system version")
		}
		b.AppendByte(OpOr)
	case '^':
		if !ver.SupportsExtendedOperators() {
			return fmt.Errorf("cali: '^' requires a newer system version")
		}
		b.AppendByte(OpXor)
	case '%':
		if !ver.SupportsExtendedOperators() {
			return fmt.Errorf("cali: '%%' requires a newer system version")
		}
		b.AppendByte(Escape)
		b.AppendByte(OpC0Mod)
	default:
		return fmt.Errorf("cali: unknown operator %q", op)
	}
	return nil
}

// EncodeEnd appends the OP_END sentinel.
func EncodeEnd(b *buffer.Buffer) {
	b.AppendByte(OpEnd)
}

// EncodeArrayIndex appends the 0xC0-escape array-index prefix
// (0xC0, OP_C0_INDEX, var_hi, var_lo); the caller must follow this with
// the index expression's bytes, including its own trailing OP_END (spec
// §4.1; original_source/decompiler/cali.c's parse_cali(&p, false) call
// for this sub-expression only returns via case OP_END).
func EncodeArrayIndex(b *buffer.Buffer, v int, ver sysver.SysVer) error {
	if !ver.SupportsExtendedOperators() {
		return fmt.Errorf("cali: array index requires a newer system version")
	}
	b.AppendByte(Escape)
	b.AppendByte(OpC0Index)
	b.AppendWordBE(uint16(v))
	return nil
}

// ---- Decoding ----

type decodeMode int

const (
	modeNormal decodeMode = iota // read until OP_END
	modeLHS                      // stop after one leaf (variable/array-ref), no OP_END
)

// Decode parses one postfix expression starting at code[0]. If isLHS is
// true, decoding stops after exactly one leaf node (variable or array
// reference) without requiring OP_END, per spec §4.1's "left-hand-side
// mode". It returns the parsed tree and the number of bytes consumed.
func Decode(code []byte, isLHS bool) (*Node, int, error) {
	if isLHS {
		return decode(code, modeLHS)
	}
	return decode(code, modeNormal)
}

func decode(code []byte, mode decodeMode) (*Node, int, error) {
	isLHS := mode == modeLHS
	var stack []*Node
	p := 0

	pop2 := func() (*Node, *Node, error) {
		if len(stack) < 2 {
			return nil, nil, fmt.Errorf("cali: stack underflow at offset %d", p)
		}
		rhs := stack[len(stack)-1]
		lhs := stack[len(stack)-2]
		stack = stack[:len(stack)-2]
		return lhs, rhs, nil
	}

	for {
		if p >= len(code) {
			return nil, 0, fmt.Errorf("cali: unexpected end of buffer")
		}
		op := code[p]
		p++

		switch {
		case op == OpEnd:
			if isLHS {
				return nil, 0, fmt.Errorf("cali: unexpected OP_END in left-hand-side mode")
			}
			if len(stack) == 0 {
				return nil, 0, fmt.Errorf("cali: empty expression")
			}
			return stack[len(stack)-1], p, nil

		case op == OpMul || op == OpDiv || op == OpAdd || op == OpSub ||
			op == OpEq || op == OpLt || op == OpGt || op == OpNe ||
			op == OpAnd || op == OpOr || op == OpXor:
			lhs, rhs, err := pop2()
			if err != nil {
				return nil, 0, err
			}
			stack = append(stack, &Node{Kind: Op, Operator: int(op), LHS: lhs, RHS: rhs})

		case op == Escape:
			if p >= len(code) {
				return nil, 0, fmt.Errorf("cali: truncated 0xC0 escape")
			}
			sub := code[p]
			p++
			switch {
			case sub >= 0x40:
				// A variable ID whose high byte happened to collide with
				// the escape range; treat the escape+byte as a two-byte
				// variable reference (mirrors cali.c: "if (op >= 0x40)").
				stack = append(stack, &Node{Kind: Variable, Var: int(sub)})
			case sub == OpC0Index:
				if p+1 >= len(code) {
					return nil, 0, fmt.Errorf("cali: truncated array index")
				}
				v := int(code[p])<<8 | int(code[p+1])
				p += 2
				index, n, err := decode(code[p:], modeNormal)
				if err != nil {
					return nil, 0, err
				}
				p += n
				stack = append(stack, &Node{Kind: ArrayRef, Var: v, Index: index})
			case sub == OpC0Mod || sub == OpC0Le || sub == OpC0Ge:
				lhs, rhs, err := pop2()
				if err != nil {
					return nil, 0, err
				}
				stack = append(stack, &Node{Kind: Op, Operator: 0xc000 | int(sub), LHS: lhs, RHS: rhs})
			default:
				return nil, 0, fmt.Errorf("cali: unknown 0xC0 sub-opcode %#x", sub)
			}

		case op&0x80 != 0:
			v := int(op & 0x3f)
			if op > Escape {
				if p >= len(code) {
					return nil, 0, fmt.Errorf("cali: truncated variable reference")
				}
				v = v<<8 | int(code[p])
				p++
			}
			stack = append(stack, &Node{Kind: Variable, Var: v})

		default:
			v := int(op & 0x3f)
			if op < 0x40 {
				if p >= len(code) {
					return nil, 0, fmt.Errorf("cali: truncated number literal")
				}
				v = v<<8 | int(code[p])
				p++
			}
			stack = append(stack, &Node{Kind: Number, Value: v})
		}

		if mode != modeNormal && len(stack) == 1 {
			n := stack[0]
			if mode == modeLHS && n.Kind != Variable && n.Kind != ArrayRef {
				return nil, 0, fmt.Errorf("cali: unexpected left-hand-side for assignment (kind %d)", n.Kind)
			}
			return n, p, nil
		}
	}
}

// Note: the 0xC0-escape operators are tagged with the high bit 0xc000 |
// sub-opcode set above so Operator never collides with the plain operator
// byte range; opName and precedence below unpack that tag.

func opName(op byte) (string, int) {
	switch op {
	case OpAnd:
		return " & ", 2
	case OpOr:
		return " | ", 2
	case OpXor:
		return " ^ ", 2
	case OpMul:
		return " * ", 4
	case OpDiv:
		return " / ", 4
	case OpAdd:
		return " + ", 3
	case OpSub:
		return " - ", 3
	case OpEq:
		return " = ", 0
	case OpLt:
		return " < ", 1
	case OpGt:
		return " > ", 1
	case OpNe:
		return " \\ ", 0
	}
	return "", 0
}

// operatorInfo unpacks an Op node's tagged Operator byte (see Decode)
// into its printable text and precedence (spec §4.1's pretty-printing
// table: "* /" = 4, "+ -" = 3, "< >" = 1, "= \\" = 0).
func operatorInfo(tagged int) (string, int) {
	if tagged&0xc000 != 0 {
		switch byte(tagged) {
		case OpC0Mod:
			return " % ", 4
		case OpC0Le:
			return " <= ", 1
		case OpC0Ge:
			return " >= ", 1
		}
	}
	return opName(byte(tagged))
}

// VarNamer resolves a variable index to its display name. The decompiler
// supplies one backed by a growable VAR<n> table (original decompile.c's
// print_cali: "while (variables->len <= node->val) vec_push(...)").
type VarNamer func(idx int) string

// Print renders node as infix text, parenthesizing only where the parent
// operator's precedence exceeds the child's (spec §4.1 "Precedence for
// pretty-printing").
func Print(node *Node, name VarNamer) string {
	s, _ := print(node, name, -1)
	return s
}

func print(node *Node, name VarNamer, parentPrec int) (string, int) {
	switch node.Kind {
	case Number:
		return fmt.Sprintf("%d", node.Value), 100
	case Variable:
		return name(node.Var), 100
	case ArrayRef:
		idx, _ := print(node.Index, name, -1)
		return fmt.Sprintf("%s[%s]", name(node.Var), idx), 100
	case Op:
		text, prec := operatorInfo(node.Operator)
		lhs, _ := print(node.LHS, name, prec)
		rhs, _ := print(node.RHS, name, prec)
		s := lhs + text + rhs
		if parentPrec > prec {
			s = "(" + s + ")"
		}
		return s, prec
	default:
		return "?", 0
	}
}
