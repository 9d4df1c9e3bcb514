package cali

import (
	"testing"

	"github.com/kichikuou/sys3c/internal/buffer"
	"github.com/kichikuou/sys3c/internal/sysver"
)

// scenario 1: `5` compiles (System 3, default ceiling) to 0x45 0x7F.
func TestScenarioNumberEncode(t *testing.T) {
	b := buffer.New()
	if err := EncodeNumber(b, 5, sysver.System3, false); err != nil {
		t.Fatal(err)
	}
	EncodeEnd(b)
	want := []byte{0x45, 0x7f}
	assertBytes(t, b.Bytes(), want)
}

// scenario 3: `A + B * 2`, A=var0, B=var1 -> var0 var1 2 MUL ADD END.
func TestScenarioExpressionWithOperators(t *testing.T) {
	b := buffer.New()
	must(t, EncodeVariable(b, 0))
	must(t, EncodeVariable(b, 1))
	must(t, EncodeNumber(b, 2, sysver.System3, false))
	must(t, EncodeOp(b, '*', sysver.System3))
	must(t, EncodeOp(b, '+', sysver.System3))
	EncodeEnd(b)
	want := []byte{0x80, 0x81, 0x42, OpMul, OpAdd, OpEnd}
	assertBytes(t, b.Bytes(), want)
}

func TestDecodeScenario3(t *testing.T) {
	code := []byte{0x80, 0x81, 0x42, OpMul, OpAdd, OpEnd}
	node, n, err := Decode(code, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(code) {
		t.Fatalf("consumed %d, want %d", n, len(code))
	}
	names := func(i int) string {
		if i == 0 {
			return "A"
		}
		return "B"
	}
	got := Print(node, names)
	want := "A + B * 2"
	if got != want {
		t.Fatalf("Print() = %q, want %q", got, want)
	}
}

func TestSystem1StarMeansDivide(t *testing.T) {
	b := buffer.New()
	must(t, EncodeOp(b, '*', sysver.System1))
	assertBytes(t, b.Bytes(), []byte{OpDiv})

	b2 := buffer.New()
	if err := EncodeOp(b2, '/', sysver.System1); err == nil {
		t.Fatal("expected '/' to be rejected under System1")
	}
}

// invariant 2: decode(encode(n)) == n for representative numbers,
// including values above the single-chunk overflow boundary.
func TestNumberRoundTrip(t *testing.T) {
	values := []int{0, 1, 0x36, 0x37, 0x38, 0x3fff, 0x4000, 0x10000, 0x3ffffff}
	for _, n := range values {
		b := buffer.New()
		must(t, EncodeNumber(b, n, sysver.System3, false))
		EncodeEnd(b)
		node, _, err := Decode(b.Bytes(), false)
		if err != nil {
			t.Fatalf("decode(%d): %v", n, err)
		}
		got := evalConstExpr(t, node)
		if got != n {
			t.Fatalf("round trip %d: got %d", n, got)
		}
	}
}

// invariant 3: decode(encode(v)) == v for representative variable ids.
func TestVariableRoundTrip(t *testing.T) {
	ids := []int{0, 0x3f, 0x40, 0xff, 0x100, 0x3fff}
	for _, v := range ids {
		b := buffer.New()
		must(t, EncodeVariable(b, v))
		EncodeEnd(b)
		node, _, err := Decode(b.Bytes(), false)
		if err != nil {
			t.Fatalf("decode(var %d): %v", v, err)
		}
		if node.Kind != Variable || node.Var != v {
			t.Fatalf("round trip var %d: got kind=%d val=%d", v, node.Kind, node.Var)
		}
	}
}

func TestLHSModeStopsAfterOneLeaf(t *testing.T) {
	// "!X:..." — LHS mode should stop right after the variable leaf
	// without needing OP_END.
	code := []byte{0x80}
	node, n, err := Decode(code, true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("consumed %d, want 1", n)
	}
	if node.Kind != Variable || node.Var != 0 {
		t.Fatalf("got kind=%d var=%d", node.Kind, node.Var)
	}
}

func TestExtendedOperatorsRequireNewerVersion(t *testing.T) {
	b := buffer.New()
	if err := EncodeOp(b, '&', sysver.System3); err == nil {
		t.Fatal("expected '&' to require System3Ain")
	}
	b2 := buffer.New()
	must(t, EncodeOp(b2, '&', sysver.System3Ain))
	assertBytes(t, b2.Bytes(), []byte{OpAnd})
}

func TestArrayIndexDecode(t *testing.T) {
	b := buffer.New()
	must(t, EncodeArrayIndex(b, 5, sysver.System3Ain))
	must(t, EncodeNumber(b, 2, sysver.System3Ain, false))
	EncodeEnd(b) // the index sub-expression carries its own OP_END
	EncodeEnd(b) // and the array-ref itself is a value in an outer expression
	node, n, err := Decode(b.Bytes(), false)
	if err != nil {
		t.Fatal(err)
	}
	if n != b.Len() {
		t.Fatalf("consumed %d, want %d", n, b.Len())
	}
	if node.Kind != ArrayRef || node.Var != 5 {
		t.Fatalf("got kind=%d var=%d", node.Kind, node.Var)
	}
	if node.Index.Kind != Number || node.Index.Value != 2 {
		t.Fatalf("index = %+v", node.Index)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func assertBytes(t *testing.T, got, want []byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %x, want %x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %x, want %x", got, want)
		}
	}
}

// evalConstExpr evaluates a tree of Number/Op(ADD) nodes, which is all
// EncodeNumber ever produces (chunked OP_ADD additions).
func evalConstExpr(t *testing.T, n *Node) int {
	t.Helper()
	switch n.Kind {
	case Number:
		return n.Value
	case Op:
		if n.Operator != int(OpAdd) {
			t.Fatalf("unexpected operator %d in constant expression", n.Operator)
		}
		return evalConstExpr(t, n.LHS) + evalConstExpr(t, n.RHS)
	default:
		t.Fatalf("unexpected node kind %d in constant expression", n.Kind)
		return 0
	}
}
