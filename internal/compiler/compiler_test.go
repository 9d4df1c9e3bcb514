package compiler

import (
	"testing"

	"github.com/kichikuou/sys3c/internal/cali"
	"github.com/kichikuou/sys3c/internal/sys3err"
	"github.com/kichikuou/sys3c/internal/sysver"
)

func compile(t *testing.T, cfg Config, src string) []byte {
	t.Helper()
	buf, err := CompilePage(cfg, NewSymbolTable(nil), src, "test.sco", 0)
	if err != nil {
		t.Fatalf("CompilePage(%q): %v", src, err)
	}
	return buf.Bytes()
}

func compileErr(t *testing.T, cfg Config, src string) error {
	t.Helper()
	_, err := CompilePage(cfg, NewSymbolTable(nil), src, "test.sco", 0)
	return err
}

func TestCompileSimpleAssignment(t *testing.T) {
	got := compile(t, Config{Ver: sysver.System3}, "!x:5!")
	want := []byte{4, 0, '!', 0x80, 0x45, cali.OpEnd}
	if string(got) != string(want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestCompileLabelForwardReference(t *testing.T) {
	// spec §8 scenario 4: a jump referencing a label defined later must
	// resolve to the label's actual address once compilation finishes.
	got := compile(t, Config{Ver: sysver.System3}, "@foo\n*foo\n")
	// Leading 2-byte default-address slot, then '@' + 2-byte address.
	if len(got) != 5 {
		t.Fatalf("unexpected length %d: % x", len(got), got)
	}
	if got[2] != '@' {
		t.Fatalf("expected '@' at offset 2, got %#x", got[2])
	}
	addr := uint16(got[3]) | uint16(got[4])<<8
	// "foo" is defined immediately after the 5-byte jump instruction.
	if addr != 5 {
		t.Fatalf("label resolved to %d, want 5", addr)
	}
}

func TestCompileUndefinedLabelErrors(t *testing.T) {
	err := compileErr(t, Config{Ver: sysver.System3}, "@foo\n")
	if err == nil {
		t.Fatal("expected an error for a label referenced but never defined")
	}
	se, ok := err.(*sys3err.Error)
	if !ok {
		t.Fatalf("expected *sys3err.Error, got %T: %v", err, err)
	}
	if se.Pos.File == "" || se.Pos.Line == 0 {
		t.Fatalf("expected the first referencing source location, got %+v", se.Pos)
	}
}

func TestCompileConditionalSystem3ReservesEndHole(t *testing.T) {
	got := compile(t, Config{Ver: sysver.System3}, "{1:}")
	// default-slot(2) + '{'(1) + number(1) + OP_END(1) + end-address hole(2)
	if len(got) != 7 {
		t.Fatalf("unexpected length %d: % x", len(got), got)
	}
	endAddr := uint16(got[5]) | uint16(got[6])<<8
	if endAddr != uint16(len(got)) {
		t.Fatalf("end-address hole = %d, want %d", endAddr, len(got))
	}
}

func TestCompileConditionalOlderDialectEmitsTrailingBrace(t *testing.T) {
	got := compile(t, Config{Ver: sysver.System2}, "{1:}")
	// No hole is reserved; a literal '}' closes the block instead.
	if got[len(got)-1] != '}' {
		t.Fatalf("expected trailing '}', got % x", got)
	}
}

func TestCompileConstDefinesConstant(t *testing.T) {
	got := compile(t, Config{Ver: sysver.System3}, "const word a=5:!x:a!")
	// The reference to `a` in the assignment must encode as the constant
	// value 5, identical to a literal `5` in the same position.
	want := compile(t, Config{Ver: sysver.System3}, "!x:5!")
	if string(got) != string(want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestCompileConstRedefinitionMismatchErrors(t *testing.T) {
	err := compileErr(t, Config{Ver: sysver.System3}, "const word a=5:const word a=6:")
	if err == nil {
		t.Fatal("expected an error redefining a constant with a different value")
	}
}

func TestCompileCompoundAssignmentRequiresNewestDialect(t *testing.T) {
	// Under an older dialect the '+' after the variable is rejected with
	// a compound-assignment diagnostic.
	if err := compileErr(t, Config{Ver: sysver.System3}, "!x+:5!"); err == nil {
		t.Fatal("expected an error: compound assignment is System3Ain-only")
	}
	if _, err := CompilePage(Config{Ver: sysver.System3Ain}, NewSymbolTable(nil), "!x+:5!", "t", 0); err != nil {
		t.Fatalf("System3Ain should accept compound assignment: %v", err)
	}
}

func TestCompileCompoundAssignmentEmitsOpcodeByte(t *testing.T) {
	got := compile(t, Config{Ver: sysver.System3Ain}, "!x+:5!")
	if got[2] != 0x10 {
		t.Fatalf("expected compound '+' opcode 0x10 at offset 2, got %#x", got[2])
	}
}

func TestCompileOpcodeArgSignature(t *testing.T) {
	// 'M' is seeded with signature "s": a string body terminated by ':'.
	got := compile(t, Config{Ver: sysver.System3}, "Mhi:")
	want := []byte{4, 0, 'M', 'h', 'i', ':'}
	if string(got) != string(want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestCompileWhileLoopBackEdge(t *testing.T) {
	got := compile(t, Config{Ver: sysver.System3}, "<@1:>")
	// default-slot(2) + '{'(1) + number(1) + OP_END(1) + hole(2) + '>'(1) + back-edge(2)
	if len(got) != 10 {
		t.Fatalf("unexpected length %d: % x", len(got), got)
	}
	entry := uint16(2) // '{' sits right after the default-address slot
	backEdge := uint16(got[8]) | uint16(got[9])<<8
	if backEdge != entry {
		t.Fatalf("back-edge = %d, want %d", backEdge, entry)
	}
	holeOff := 5
	endAddr := uint16(got[holeOff]) | uint16(got[holeOff+1])<<8
	if endAddr != uint16(len(got)) {
		t.Fatalf("loop end-address = %d, want %d", endAddr, len(got))
	}
}

func TestCompileForLoopEncodesBothMarkers(t *testing.T) {
	got := compile(t, Config{Ver: sysver.System3}, "<x,0,10,1,1:>")
	if len(got) < 4 {
		t.Fatalf("output too short: % x", got)
	}
	// After the init assignment, the loop body opens with the `<0x00`
	// once marker immediately followed by the `<0x01` iterate marker.
	foundZero := false
	for i := 2; i+1 < len(got); i++ {
		if got[i] == '<' && got[i+1] == 0x00 {
			foundZero = true
			if got[i+2] != '<' || got[i+3] != 0x01 {
				t.Fatalf("expected '<0x01' immediately after '<0x00' at %d: % x", i, got)
			}
			break
		}
	}
	if !foundZero {
		t.Fatalf("did not find the '<0x00' once-marker in % x", got)
	}
	if got[len(got)-3] != '>' {
		t.Fatalf("expected '>' closing the loop, got % x", got[len(got)-3:])
	}
}

func TestCompilePragmaAldVolumeSetsVolumeBits(t *testing.T) {
	ctx := NewCompileCtx(Config{Ver: sysver.System3}, NewSymbolTable(nil), "pragma ald_volume 3:", "t", 0)
	if err := ctx.commands(); err != nil {
		t.Fatalf("commands: %v", err)
	}
	if got := ctx.VolumeBits(); got != 1<<3 {
		t.Fatalf("VolumeBits() = %#x, want %#x", got, 1<<3)
	}
}

func TestCompilePragmaDriVolumeSetsVolumeBits(t *testing.T) {
	ctx := NewCompileCtx(Config{Ver: sysver.System3}, NewSymbolTable(nil), "pragma dri_volume AC:", "t", 0)
	if err := ctx.commands(); err != nil {
		t.Fatalf("commands: %v", err)
	}
	want := uint32(1<<1) | uint32(1<<3)
	if got := ctx.VolumeBits(); got != want {
		t.Fatalf("VolumeBits() = %#x, want %#x", got, want)
	}
}

func TestCompileUnknownPragmaErrors(t *testing.T) {
	if err := compileErr(t, Config{Ver: sysver.System3}, "pragma bogus:"); err == nil {
		t.Fatal("expected an error for an unrecognized pragma name")
	}
}

func TestCompileVerbObject(t *testing.T) {
	got := compile(t, Config{Ver: sysver.System3}, "[foo,3,7:\n*foo\n")
	// default-slot(2) + '['(1) + placeholder(2) + label-ref(2)
	if len(got) < 7 {
		t.Fatalf("output too short: % x", got)
	}
	if got[2] != '[' {
		t.Fatalf("expected '[' at offset 2, got %#x", got[2])
	}
	verb, obj := got[3], got[4]
	if verb != 3 || obj != 7 {
		t.Fatalf("got verb=%d obj=%d, want verb=3 obj=7", verb, obj)
	}
}

func TestCompileConditionalVerbObject(t *testing.T) {
	got := compile(t, Config{Ver: sysver.System3}, ":1,foo,3,7:\n*foo\n")
	if got[2] != ':' {
		t.Fatalf("expected ':' at offset 2, got %#x", got[2])
	}
}

func TestCompileKeywordEncodesEscapeAndSubByte(t *testing.T) {
	// "wavplay" is CMD2F(0x0b) with signature "e": a 2-byte escape (the
	// shared 0x2f lead plus the keyword's own sub-byte) rather than a
	// single ASCII-letter opcode, since the keyword can't double as one.
	got := compile(t, Config{Ver: sysver.System3}, "wavplay 1:")
	want := []byte{4, 0, KeywordEscape, 0x0b, 0x41, cali.OpEnd}
	if string(got) != string(want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestCompileMessageStringAppendsNulTerminator(t *testing.T) {
	got := compile(t, Config{Ver: sysver.System3}, "'hi'")
	want := []byte{3, 0, 'h', 'i', 0}
	if string(got) != string(want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestCompileMessageStringQuotedStringsWrapsBody(t *testing.T) {
	// The quoted_strings dialect wraps the body in an extra pair of
	// literal '\'' bytes but still appends the usual trailing NUL.
	got := compile(t, Config{Ver: sysver.System3, QuotedStrings: true}, "'hi'")
	want := []byte{5, 0, '\'', 'h', 'i', '\'', 0}
	if string(got) != string(want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestPreprocessPageRegistersSymbolsWithoutEmittingLabels(t *testing.T) {
	symbols := NewSymbolTable(nil)
	cfg := Config{Ver: sysver.System3}
	if err := PreprocessPage(cfg, symbols, "const word a=9:!x:a!", "t", 0); err != nil {
		t.Fatalf("PreprocessPage: %v", err)
	}
	if s := symbols.Lookup("a"); s == nil || s.Kind != SymConstant || s.Value != 9 {
		t.Fatalf("expected constant a=9 registered by preprocessing, got %+v", s)
	}
	if s := symbols.Lookup("x"); s == nil || s.Kind != SymVariable {
		t.Fatalf("expected variable x registered by preprocessing, got %+v", s)
	}
}
