package decompile

import (
	"strings"
	"testing"

	"github.com/kichikuou/sys3c/internal/archive"
	"github.com/kichikuou/sys3c/internal/cali"
	"github.com/kichikuou/sys3c/internal/compiler"
	"github.com/kichikuou/sys3c/internal/sysver"
)

// emit is a small test helper that walks a hand-built page body once in
// emit mode and returns the rendered text. hdr defaults to 2, the
// 2-byte default-address slot every dialect carries.
func emit(t *testing.T, cfg Config, data []byte) string {
	t.Helper()
	p := NewPage(0, "t.adv", data, 2)
	funcs := NewFunctionTable()
	Analyze([]*Page{p}, cfg, funcs)
	renameFunctions([]*Page{p}, funcs)
	var out strings.Builder
	w := NewWalker(p, cfg, funcs, modeEmit, &out)
	w.Run()
	return out.String()
}

func TestWalkSimpleAssignment(t *testing.T) {
	// "!x:5!" compiled: default slot + '!' + var0 + number5 + OP_END.
	data := []byte{0, 0, '!', 0x80, 0x45, cali.OpEnd}
	got := emit(t, Config{Ver: sysver.System3}, data)
	want := "!v0:5!\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkCompoundAssignment(t *testing.T) {
	// "!x+:5!" — the compound opcode byte (0x10) replaces the plain '!'
	// lead entirely, per compileAssignment's SetByte patch-in-place.
	data := []byte{0, 0, 0x10, 0x80, 0x45, cali.OpEnd}
	got := emit(t, Config{Ver: sysver.System3}, data)
	want := "!v0+:5!\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkConditionalSystem3ReservesEndHole(t *testing.T) {
	// "{1:}" under System3: '{' number1 OP_END <2-byte end addr>.
	// The hole resolves to the literal byte offset right past itself.
	data := []byte{0, 0, '{', 0x41, cali.OpEnd, 7, 0}
	got := emit(t, Config{Ver: sysver.System3}, data)
	want := "{1:\n}\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkConditionalOlderDialectUsesTrailingBrace(t *testing.T) {
	data := []byte{0, 0, '{', 0x41, cali.OpEnd, '}'}
	got := emit(t, Config{Ver: sysver.System2}, data)
	want := "{1:\n}\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkWhileLoopBackEdge(t *testing.T) {
	// "<@1:>" compiled: '{' number1 OP_END <hole> '>' <backedge-to-'{'>.
	// '{' sits at offset 2; the loop spans to offset 10.
	data := []byte{0, 0, '{', 0x41, cali.OpEnd, 10, 0, '>', 2, 0}
	got := emit(t, Config{Ver: sysver.System3}, data)
	want := "<@1:\n>\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkElseBranch(t *testing.T) {
	// "{9:!x:2!}@<else>!y:3!" — then-body is one assignment, followed
	// by an else-jump skipping a second assignment.
	data := []byte{
		0, 0,
		'{', 0x49, cali.OpEnd, 0, 0, // cond "9", placeholder end-hole patched below
		'!', 0x80, 0x42, cali.OpEnd, // then-body: !v0:2!
		'@', 0, 0, // else-jump, patched below
		'!', 0x81, 0x43, cali.OpEnd, // else-body: !v1:3!
	}
	thenEnd := 11 // offset right after the then-body, where '@' sits
	data[5] = byte(thenEnd)
	data[6] = byte(thenEnd >> 8)
	elseEnd := len(data)
	data[thenEnd+1] = byte(elseEnd)
	data[thenEnd+2] = byte(elseEnd >> 8)

	got := emit(t, Config{Ver: sysver.System3}, data)
	want := "{9:\n!v0:2!\n}\nelse {\n!v1:3!\n}\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkFunctionCallFoldsAssignmentIntoArgs(t *testing.T) {
	// Labels (and so functions) are page-local: a `\`-call can only ever
	// target an address within its own page. Lay out a trivial
	// zero-argument-looking function body ('R', direct echo) at offset
	// 2, then a call back to it preceded by one assignment that the
	// analyzer should claim as the function's sole argument.
	data := []byte{
		0, 0,
		'R', // function body at offset 2
		'!', 0x80, 0x45, cali.OpEnd, // !v0:5!
		'\\', 2, 0, // \ call to offset 2
	}
	p := NewPage(0, "a.adv", data, 2)
	funcs := NewFunctionTable()
	Analyze([]*Page{p}, Config{Ver: sysver.System3}, funcs)
	renameFunctions([]*Page{p}, funcs)

	var out strings.Builder
	w := NewWalker(p, Config{Ver: sysver.System3}, funcs, modeEmit, &out)
	w.Run()
	got := out.String()

	want := "**a_0002 v0:\nR\n~a_0002 5:\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkMessageString(t *testing.T) {
	// A plain-ASCII message must still begin with a byte isStringLead
	// recognizes (here, a leading space) for the decompiler's
	// dialect-independent heuristic to find it at all.
	data := []byte{0, 0, 0x20, 'h', 'i', 0}
	got := emit(t, Config{Ver: sysver.System3}, data)
	want := "' hi'\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkMessageStringQuotedStringsDialect(t *testing.T) {
	data := []byte{0, 0, '\'', 'h', 'i', '\'', 0}
	got := emit(t, Config{Ver: sysver.System3, QuotedStrings: true}, data)
	want := "'hi'\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkOpcodeCommand(t *testing.T) {
	// 'M' is seeded with signature "s": a string body terminated by ':'.
	data := []byte{0, 0, 'M', 'h', 'i', ':'}
	got := emit(t, Config{Ver: sysver.System3}, data)
	want := "M \"hi\":\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkKeywordCommand(t *testing.T) {
	data := []byte{0, 0, compiler.KeywordEscape, 0x0b, 0x41, cali.OpEnd}
	got := emit(t, Config{Ver: sysver.System3}, data)
	want := "wavPlay 1:\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkVerbObject(t *testing.T) {
	// '[' + 2-byte verb/obj placeholder(low=verb,high=obj) + 2-byte label.
	data := []byte{0, 0, '[', 3, 7, 2, 0}
	got := emit(t, Config{Ver: sysver.System3}, data)
	// The label points back at the '[' itself, so its definition is
	// printed first.
	want := "*L_0002:\n[L_0002,3,7:\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWalkConditionalVerbObject(t *testing.T) {
	data := []byte{0, 0, ':', 0x41, cali.OpEnd, 3, 7, 2, 0}
	got := emit(t, Config{Ver: sysver.System3}, data)
	want := "*L_0002:\n:1,L_0002,3,7:\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecompilePagesMarksMissingEntries(t *testing.T) {
	entries := []*archive.Entry{nil, {ID: 1, Data: []byte{0, 0}}}
	results := DecompilePages(entries, Config{Ver: sysver.System3}, 2, nil)
	if results[0].Name != "_missing0.adv" {
		t.Fatalf("expected missing-page placeholder name, got %q", results[0].Name)
	}
	if results[0].Text != "" {
		t.Fatalf("expected no text for a missing page, got %q", results[0].Text)
	}
	if results[1].Name != "page1.adv" {
		t.Fatalf("got %q", results[1].Name)
	}
}

func TestDataTableBlockFormatsAsIntegerArray(t *testing.T) {
	// A '#'+2-byte-addr+OP_END page-constant reference (Phase 1's
	// prescan) pointing forward at a run of non-string bytes.
	data := []byte{
		0, 0,
		'#', 6, 0, cali.OpEnd, // reference to offset 6
		1, 0, 2, 0, // the data table itself: two 16-bit integers
	}
	p := NewPage(0, "t.adv", data, 2)
	funcs := NewFunctionTable()
	Analyze([]*Page{p}, Config{Ver: sysver.System3}, funcs)
	var out strings.Builder
	w := NewWalker(p, Config{Ver: sysver.System3}, funcs, modeEmit, &out)
	w.Run()
	got := out.String()
	if !strings.Contains(got, "[1, 2]") {
		t.Fatalf("expected the data table to render as an integer array, got %q", got)
	}
}
