// Package compiler implements the recursive-descent command compiler
// (spec §4.3): it drives the lexer and expression codec to translate one
// page's DSL source into a bytecode buffer, resolving labels via
// in-buffer hole chains and threading a single symbol table across every
// page of the compilation unit.
package compiler

import (
	"fmt"
	"strings"

	"github.com/kichikuou/sys3c/internal/buffer"
	"github.com/kichikuou/sys3c/internal/cali"
	"github.com/kichikuou/sys3c/internal/lexer"
	"github.com/kichikuou/sys3c/internal/sys3err"
	"github.com/kichikuou/sys3c/internal/sysver"
)

// Config carries the project-wide settings that vary compiled output
// (spec §6's project-config keys relevant to the compiler).
type Config struct {
	Ver            sysver.SysVer
	Unicode        bool // source/output text is UTF-8, not CP932
	QuotedStrings  bool // message strings keep their surrounding quotes
	CompactKana    bool // compact half-width kana into single bytes
	Sys0dcOffByOne bool // see DESIGN.md "Open Questions" decision 1
	DisableElse    bool // decompiler-only, threaded through for symmetry
	AsciiMessages  bool
}

// CompileCtx is the one stateful object a compile run threads through
// every helper (spec §9: "one CompileCtx value ... owning these fields"),
// replacing the source's module-level current-pointer/buffer/label-table
// globals.
type CompileCtx struct {
	Cfg     Config
	Symbols *SymbolTable

	Lex    *lexer.Lexer
	Buf    *buffer.Buffer
	Labels *LabelTable
	Page   int

	inMenuItem bool
	twoPass    bool
	preprocess bool // true during the preprocess pass of two-pass mode

	driVolume       uint32 // pragma dri_volume: volume-bits for this page
	aldVolume       int    // pragma ald_volume: single volume id for this page
	addressOverride int    // pragma address: last requested cursor rewind, if any
}

// VolumeBits returns the page's volume membership as set by `pragma
// dri_volume`/`ald_volume` (0 if neither pragma appeared, meaning the
// archive assembler should fall back to the project's default volume).
func (c *CompileCtx) VolumeBits() uint32 {
	if c.driVolume != 0 {
		return c.driVolume
	}
	if c.aldVolume != 0 {
		return 1 << uint(c.aldVolume)
	}
	return 0
}

// NewCompileCtx starts a compile of one page's source.
func NewCompileCtx(cfg Config, symbols *SymbolTable, source, name string, page int) *CompileCtx {
	return &CompileCtx{
		Cfg:     cfg,
		Symbols: symbols,
		Lex:     lexer.New(source, name, page),
		Buf:     buffer.New(),
		Labels:  NewLabelTable(),
		Page:    page,
	}
}

// CompilePage runs the full per-page pipeline described in spec §4.3's
// "Page epilogue": two leading zero bytes reserved for the default
// address, the command stream, then the default-address patch.
func CompilePage(cfg Config, symbols *SymbolTable, source, name string, page int) (*buffer.Buffer, error) {
	ctx := NewCompileCtx(cfg, symbols, source, name, page)
	ctx.Buf.AppendWord(0) // default-address slot, patched in pageEpilogue

	if err := ctx.commands(); err != nil {
		return nil, err
	}
	if err := ctx.pageEpilogue(); err != nil {
		return nil, err
	}
	return ctx.Buf, nil
}

// CompilePageWithVolume behaves like CompilePage but also returns the
// page's resolved volume-bits mask (set by a `pragma ald_volume`/
// `pragma dri_volume` line, if any), for the archive assembler (spec
// §4.7) to route the page's compiled bytes to the right output file.
func CompilePageWithVolume(cfg Config, symbols *SymbolTable, source, name string, page int) (*buffer.Buffer, uint32, error) {
	ctx := NewCompileCtx(cfg, symbols, source, name, page)
	ctx.Buf.AppendWord(0)

	if err := ctx.commands(); err != nil {
		return nil, 0, err
	}
	if err := ctx.pageEpilogue(); err != nil {
		return nil, 0, err
	}
	return ctx.Buf, ctx.VolumeBits(), nil
}

// PreprocessPage runs the preprocess pass of two-pass mode (spec §4.3):
// it drives the same grammar as CompilePage but discards label
// definitions/references (labels are page-local and only meaningful
// once the real output offsets exist), registering only the constants
// and variables a later page's expressions may already reference.
func PreprocessPage(cfg Config, symbols *SymbolTable, source, name string, page int) error {
	ctx := NewCompileCtx(cfg, symbols, source, name, page)
	ctx.preprocess = true
	ctx.Buf.AppendWord(0)
	return ctx.commands()
}

// pageEpilogue patches the page's default-address slot (spec §4.3) and
// rejects any label referenced but never defined.
func (c *CompileCtx) pageEpilogue() error {
	if undef := c.Labels.Undefined(); len(undef) > 0 {
		l := undef[0]
		return sys3err.At(sys3err.Semantic, l.FirstPos, "", "undefined label %q", l.Name)
	}
	def := c.Labels.Lookup("default")
	addr := uint16(c.Buf.Len() - 2)
	if def != nil && def.Resolved {
		addr = def.Addr
	}
	c.Buf.SetByte(0, byte(addr))
	c.Buf.SetByte(1, byte(addr>>8))
	return nil
}

// commands runs command() until it signals the end of this block (EOF,
// or a closing `}`/`>` consumed by the caller's construct).
func (c *CompileCtx) commands() error {
	for {
		more, err := c.command()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// command dispatches on the next non-whitespace lead byte (spec §4.3's
// dispatch table) and reports whether the caller should keep looping.
func (c *CompileCtx) command() (bool, error) {
	lead, err := c.Lex.NextChar()
	if err != nil {
		return false, err
	}
	switch {
	case lead == 0 && c.Lex.AtEOF():
		return false, nil
	case lead == '}' || lead == '>':
		c.Lex.Advance()
		return false, nil
	case lead == '\'':
		return true, c.compileMessageString()
	case lead == '"':
		return true, c.compileRawString()
	case lead == '!':
		return true, c.compileAssignment()
	case lead == '{':
		return true, c.compileConditional()
	case lead == '*':
		return true, c.compileLabelDef()
	case lead == '@' || lead == '\\' || lead == '&':
		return true, c.compileJump(lead)
	case lead == '$':
		return true, c.compileMenuItem()
	case lead == '[':
		c.Lex.Advance()
		c.Buf.AppendByte('[')
		return true, c.compileVerbObject()
	case lead == ':':
		return true, c.compileCondVerbObject()
	case lead == '<':
		return true, c.compileLoop()
	}

	if ok, err := c.Lex.ConsumeKeyword("if"); err != nil {
		return false, err
	} else if ok {
		return true, c.compileIf()
	}
	if ok, err := c.Lex.ConsumeKeyword("const"); err != nil {
		return false, err
	} else if ok {
		return true, c.compileConst()
	}
	if ok, err := c.Lex.ConsumeKeyword("pragma"); err != nil {
		return false, err
	} else if ok {
		return true, c.compilePragma()
	}

	if lexer.IsUpper(lead) {
		return true, c.compileOpcode(lead)
	}
	if lexer.IsLower(lead) {
		return true, c.compileKeywordCommand()
	}
	return false, c.Lex.ErrorAt("unknown command character %q", rune(lead))
}

// compileMessageString handles the `'...'` message-string command. Per
// lexer.c's compile_message, the wire form carries no leading marker: the
// compiled body is followed by a single NUL terminator, which is also
// what the decompiler's byte-value heuristic scans for. The QuotedStrings
// dialect additionally wraps the body in literal `'` bytes (old_SR
// round-tripping, spec §6's `quoted_strings` project config key).
func (c *CompileCtx) compileMessageString() error {
	c.Lex.Advance() // opening quote
	if c.Cfg.QuotedStrings {
		c.Buf.AppendByte('\'')
	}
	if err := c.compileStringBody('\'', c.Cfg.CompactKana); err != nil {
		return err
	}
	c.Lex.Advance() // closing quote
	if c.Cfg.QuotedStrings {
		c.Buf.AppendByte('\'')
	}
	c.Buf.AppendByte(0)
	return nil
}

// compileRawString handles the `"..."` raw-string/data command: no kana
// compaction, terminated by `:` or a NUL per the caller's convention.
func (c *CompileCtx) compileRawString() error {
	c.Lex.Advance() // opening quote
	if err := c.compileStringBody('"', false); err != nil {
		return err
	}
	c.Lex.Advance() // closing quote
	if ok, err := c.Lex.Consume(':'); err != nil {
		return err
	} else if ok {
		c.Buf.AppendByte(':')
	} else {
		c.Buf.AppendByte(0)
	}
	return nil
}

var compoundOps = map[byte]byte{
	'+': 0x10, '-': 0x11, '*': 0x12, '/': 0x13,
	'%': 0x14, '&': 0x15, '|': 0x16, '^': 0x17,
}

// compileAssignment handles `!var:expr!`, and newer dialects' compound
// forms `!var op:expr!` (spec §4.3; grammar
// `!var [+-*/%&|^]? ':' expr '!'` — the operator, if present, is a
// single character with no '=' sign).
func (c *CompileCtx) compileAssignment() error {
	c.Lex.Advance() // '!'
	startOff := c.Buf.AppendByte('!')

	if _, err := c.compileLHSVariable(); err != nil {
		return err
	}

	if c.Cfg.Ver.SupportsCompoundAssignment() {
		if op, ok := c.peekCompoundOp(); ok {
			c.Buf.SetByte(startOff, compoundOps[op])
		}
	} else if ch, err := c.Lex.NextChar(); err == nil {
		if _, isOp := compoundOps[ch]; isOp {
			return c.Lex.ErrorAt("compound assignment requires a newer system version")
		}
	}

	if err := c.Lex.Expect(':'); err != nil {
		return err
	}
	if err := c.compileExpr(); err != nil {
		return err
	}
	return c.Lex.Expect('!')
}

// peekCompoundOp consumes a single compound-assignment operator
// character, if present, and returns it.
func (c *CompileCtx) peekCompoundOp() (byte, bool) {
	for op := range compoundOps {
		if ok, _ := c.Lex.Consume(op); ok {
			return op, true
		}
	}
	return 0, false
}

// compileLHSVariable compiles the target of an assignment using cali's
// left-hand-side decode-shape (one leaf, no OP_END), defining the
// variable symbol on first use.
func (c *CompileCtx) compileLHSVariable() (string, error) {
	name, err := c.Lex.GetIdentifier()
	if err != nil {
		return "", err
	}
	sym, err := c.Symbols.DefineVariable(name)
	if err != nil {
		return "", err
	}
	if ok, _ := c.Lex.Consume('['); ok {
		if err := cali.EncodeArrayIndex(c.Buf, sym.Value, c.Cfg.Ver); err != nil {
			return "", err
		}
		if err := c.compileExpr(); err != nil {
			return "", err
		}
		if err := c.Lex.Expect(']'); err != nil {
			return "", err
		}
		return name, nil
	}
	if err := cali.EncodeVariable(c.Buf, sym.Value); err != nil {
		return "", err
	}
	return name, nil
}

// compileConditional handles `{expr:commands}` (spec §4.3).
func (c *CompileCtx) compileConditional() error {
	c.Lex.Advance() // '{'
	c.Buf.AppendByte('{')
	if err := c.compileExpr(); err != nil {
		return err
	}
	if err := c.Lex.Expect(':'); err != nil {
		return err
	}

	var holeOff int
	reserveHole := c.Cfg.Ver >= sysver.System3
	if reserveHole {
		holeOff = c.Buf.Reserve(2)
	}

	if err := c.commands(); err != nil {
		return err
	}

	if reserveHole {
		c.Buf.SwapWord(holeOff, uint16(c.Buf.Len()))
	} else {
		c.Buf.AppendByte('}')
	}
	return nil
}

// compileIf handles the `if {...}` keyword-prefixed spelling of a
// conditional.
func (c *CompileCtx) compileIf() error {
	if err := c.Lex.Expect('{'); err != nil {
		return err
	}
	return c.compileConditionalBody()
}

// compileConditionalBody is compileConditional without re-consuming the
// already-matched '{'.
func (c *CompileCtx) compileConditionalBody() error {
	c.Buf.AppendByte('{')
	if err := c.compileExpr(); err != nil {
		return err
	}
	if err := c.Lex.Expect(':'); err != nil {
		return err
	}
	var holeOff int
	reserveHole := c.Cfg.Ver >= sysver.System3
	if reserveHole {
		holeOff = c.Buf.Reserve(2)
	}
	if err := c.commands(); err != nil {
		return err
	}
	if reserveHole {
		c.Buf.SwapWord(holeOff, uint16(c.Buf.Len()))
	} else {
		c.Buf.AppendByte('}')
	}
	return nil
}

// compileLabelDef handles `*name`: labels emit no bytes; they resolve
// the name's hole chain to the current offset.
func (c *CompileCtx) compileLabelDef() error {
	c.Lex.Advance() // '*'
	name, err := c.Lex.GetLabel()
	if err != nil {
		return err
	}
	pos := sys3err.Pos{File: c.Lex.Name, Page: c.Page, Line: c.Lex.Line()}
	return c.Labels.Define(c.Buf, name, pos)
}

// compileJump handles `@label`, `\label` (call), and `&label`
// (page-jump); `\0` emits a zero word instead of a label reference.
func (c *CompileCtx) compileJump(lead byte) error {
	c.Lex.Advance()
	c.Buf.AppendByte(lead)
	if lead == '\\' {
		if ok, _ := c.Lex.Consume('0'); ok {
			c.Buf.AppendWord(0)
			return nil
		}
	}
	name, err := c.Lex.GetLabel()
	if err != nil {
		return err
	}
	pos := sys3err.Pos{File: c.Lex.Name, Page: c.Page, Line: c.Lex.Line()}
	l := c.Labels.Reference(c.Buf, name, pos)
	if lead == '\\' {
		l.IsFunction = true
	}
	return nil
}

// compileMenuItem handles `$label$text$` menu-item toggling.
func (c *CompileCtx) compileMenuItem() error {
	c.Lex.Advance()
	c.Buf.AppendByte('$')
	if !c.inMenuItem {
		c.inMenuItem = true
		name, err := c.Lex.GetLabel()
		if err != nil {
			return err
		}
		pos := sys3err.Pos{File: c.Lex.Name, Page: c.Page, Line: c.Lex.Line()}
		c.Labels.Reference(c.Buf, name, pos)
		if err := c.Lex.Expect('$'); err != nil {
			return err
		}
		c.Buf.AppendByte('$')
		if r := c.Lex.Rune(); r >= 0x80 {
			return c.compileStringBody('$', c.Cfg.CompactKana)
		}
		return nil
	}
	c.inMenuItem = false
	return nil
}

// compileVerbObject compiles the `[label, verb, obj:` tail shared by the
// `[` (verb-obj) and `:` (conditional verb-obj) commands: a 2-byte
// placeholder, the label reference, then the placeholder is patched with
// verb in its low byte and obj in its high byte once both numbers are
// read (spec §4.3; grounded on compile.c's verb_obj, which set_bytes the
// same two offsets individually).
func (c *CompileCtx) compileVerbObject() error {
	placeholder := c.Buf.Reserve(2)

	name, err := c.Lex.GetLabel()
	if err != nil {
		return err
	}
	pos := sys3err.Pos{File: c.Lex.Name, Page: c.Page, Line: c.Lex.Line()}
	c.Labels.Reference(c.Buf, name, pos)

	if err := c.Lex.Expect(','); err != nil {
		return err
	}
	verb, err := c.Lex.GetNumber()
	if err != nil {
		return err
	}
	if err := c.Lex.Expect(','); err != nil {
		return err
	}
	obj, err := c.Lex.GetNumber()
	if err != nil {
		return err
	}
	c.Buf.SwapWord(placeholder, uint16(verb)|uint16(obj)<<8)
	return c.Lex.Expect(':')
}

// compileCondVerbObject handles `: expr , label, verb, obj:`, the
// conditional form of the verb-obj command (compile.c's `case ':'`).
func (c *CompileCtx) compileCondVerbObject() error {
	c.Lex.Advance()
	c.Buf.AppendByte(':')
	if err := c.compileExpr(); err != nil {
		return err
	}
	if err := c.Lex.Expect(','); err != nil {
		return err
	}
	return c.compileVerbObject()
}

// compileLoop dispatches `<@...>` (while) vs `<...>` (for).
func (c *CompileCtx) compileLoop() error {
	c.Lex.Advance() // '<'
	if ok, _ := c.Lex.Consume('@'); ok {
		return c.compileWhileLoop()
	}
	return c.compileForLoop()
}

// compileWhileLoop encodes `<@ expr : commands >` (spec §4.3).
func (c *CompileCtx) compileWhileLoop() error {
	entry := c.Buf.Len()
	c.Buf.AppendByte('{')
	if err := c.compileExpr(); err != nil {
		return err
	}
	if err := c.Lex.Expect(':'); err != nil {
		return err
	}
	holeOff := c.Buf.Reserve(2)
	if err := c.commands(); err != nil {
		return err
	}
	c.Buf.AppendByte('>')
	c.Buf.AppendWord(uint16(entry))
	c.Buf.SwapWord(holeOff, uint16(c.Buf.Len()))
	return nil
}

// compileForLoop encodes `< var, init, end, direction, step : commands >`
// per spec §4.3's byte-for-byte description.
func (c *CompileCtx) compileForLoop() error {
	c.Buf.AppendByte('!')
	lhsStart := c.Buf.Len()
	if _, err := c.compileLHSVariable(); err != nil {
		return err
	}
	lhsEncoding := append([]byte(nil), c.Buf.Bytes()[lhsStart:]...)

	if err := c.Lex.Expect(','); err != nil {
		return err
	}
	if err := c.compileExpr(); err != nil {
		return err
	}

	c.Buf.AppendByte('<')
	c.Buf.AppendByte(0x00)

	entryPoint := c.Buf.Len()
	c.Buf.AppendByte('<')
	c.Buf.AppendByte(0x01)
	holeOff := c.Buf.Reserve(2)
	c.Buf.AppendBytes(lhsEncoding)
	cali.EncodeEnd(c.Buf)

	if err := c.Lex.Expect(','); err != nil {
		return err
	}
	if err := c.compileExpr(); err != nil {
		return err
	}
	if err := c.Lex.Expect(','); err != nil {
		return err
	}
	if err := c.compileExpr(); err != nil {
		return err
	}
	if err := c.Lex.Expect(','); err != nil {
		return err
	}
	if err := c.compileExpr(); err != nil {
		return err
	}
	if err := c.Lex.Expect(':'); err != nil {
		return err
	}

	if err := c.commands(); err != nil {
		return err
	}

	c.Buf.AppendByte('>')
	c.Buf.AppendWord(uint16(entryPoint))
	c.Buf.SwapWord(holeOff, uint16(c.Buf.Len()))
	return nil
}

// compileConst handles `const word id = n (, id = n)* :`.
func (c *CompileCtx) compileConst() error {
	if _, err := c.Lex.GetIdentifier(); err != nil { // consumes "word"
		return err
	}
	for {
		name, err := c.Lex.GetIdentifier()
		if err != nil {
			return err
		}
		if err := c.Lex.Expect('='); err != nil {
			return err
		}
		n, err := c.Lex.GetNumber()
		if err != nil {
			return err
		}
		if err := c.Symbols.DefineConstant(name, n); err != nil {
			return err
		}
		if ok, _ := c.Lex.Consume(','); ok {
			continue
		}
		break
	}
	return c.Lex.Expect(':')
}

// compilePragma dispatches the preprocessor directives of spec §4.3.
func (c *CompileCtx) compilePragma() error {
	name, err := c.Lex.GetIdentifier()
	if err != nil {
		return err
	}
	switch name {
	case "dri_volume":
		letters, err := c.Lex.GetIdentifier()
		if err != nil {
			return err
		}
		c.driVolume = volumeBitsFromLetters(letters)
	case "ald_volume":
		n, err := c.Lex.GetNumber()
		if err != nil {
			return err
		}
		c.aldVolume = n
	case "address":
		n, err := c.Lex.GetNumber()
		if err != nil {
			return err
		}
		// Rewinding below already-emitted labels is accepted silently
		// per spec §9's third Open Question. The address is only recorded: the
		// write cursor does not move, so later commands and label references
		// still land at the end of the buffer.
		c.rewindTo(n)
	case "default_address":
		n, err := c.Lex.GetNumber()
		if err != nil {
			return err
		}
		pos := sys3err.Pos{File: c.Lex.Name, Page: c.Page, Line: c.Lex.Line()}
		if err := c.Labels.Define(c.Buf, "default", pos); err != nil {
			// "default" may already be defined by an explicit *default
			// label; a pragma override is only meaningful pre-resolution.
			_ = err
		}
		def := c.Labels.Lookup("default")
		def.Addr = uint16(n)
	default:
		return c.Lex.ErrorAt("unknown pragma %q", name)
	}
	return c.Lex.Expect(':')
}

// rewindTo records addr in addressOverride. Buffer is append-only, so
// the write cursor does not move: bytes are never overwritten in place,
// and output continues at Buf.Len().
func (c *CompileCtx) rewindTo(addr int) {
	c.addressOverride = addr
}

func volumeBitsFromLetters(letters string) uint32 {
	var bits uint32
	for _, r := range letters {
		if r >= 'A' && r <= 'Z' {
			bits |= 1 << uint(r-'A'+1)
		}
	}
	return bits
}

// compileOpcode handles a single uppercase VM-opcode letter.
func (c *CompileCtx) compileOpcode(lead byte) error {
	c.Lex.Advance()
	op, ok := uppercaseOpcodes[lead]
	if !ok {
		return c.Lex.ErrorAt("unknown command letter %q", rune(lead))
	}
	if c.Cfg.Ver < op.MinVer {
		return c.Lex.ErrorAt("command %q requires %s or later", op.Name, op.MinVer)
	}
	if lead == 'A' || lead == 'R' {
		// Direct-echo commands per spec §4.3: emit the lead byte as-is
		// with no further argument compilation.
		c.Buf.AppendByte(lead)
		return nil
	}
	c.Buf.AppendByte(lead)
	return c.compileArgs(op.Signature)
}

// compileKeywordCommand handles a lowercase multi-character keyword.
func (c *CompileCtx) compileKeywordCommand() error {
	kw := c.Lex.GetKeyword()
	op, ok := lowercaseKeywords[kw]
	if !ok {
		return c.Lex.ErrorAt("unknown keyword %q", kw)
	}
	if c.Cfg.Ver < op.MinVer {
		return c.Lex.ErrorAt("command %q requires %s or later", op.Name, op.MinVer)
	}
	c.Buf.AppendByte(KeywordEscape)
	c.Buf.AppendByte(op.Byte)
	return c.compileArgs(op.Signature)
}

// compileArgs compiles a comma-separated argument signature (spec
// §4.3's directive characters).
func (c *CompileCtx) compileArgs(sig string) error {
	if sig == "" {
		return c.Lex.Expect(':')
	}
	directives := strings.Split(sig, ",")
	for i, d := range directives {
		if len(d) != 1 {
			return fmt.Errorf("compiler: malformed argument signature %q", sig)
		}
		// A leading 'n' directive's following comma is optional (a
		// "sub-command number"); every other inter-directive comma is
		// mandatory (spec §4.3, compile.c's arguments()).
		if i == 0 && d[0] == 'n' && len(directives) > 1 {
			n, err := c.Lex.GetNumber()
			if err != nil {
				return err
			}
			if n < 0 || n > 0xff {
				return c.Lex.ErrorAt("sub-command number %d out of range", n)
			}
			c.Buf.AppendByte(byte(n))
			c.Lex.Consume(',')
			continue
		}
		switch d[0] {
		case 'e':
			if err := c.compileExpr(); err != nil {
				return err
			}
		case 'n':
			n, err := c.Lex.GetNumber()
			if err != nil {
				return err
			}
			if n < 0 || n > 0xff {
				return c.Lex.ErrorAt("sub-command number %d out of range", n)
			}
			c.Buf.AppendByte(byte(n))
		case 's':
			if err := c.compileStringBody(':', c.Cfg.CompactKana); err != nil {
				return err
			}
			c.Buf.AppendByte(':')
		case 'v':
			name, err := c.Lex.GetIdentifier()
			if err != nil {
				return err
			}
			sym, err := c.Symbols.DefineVariable(name)
			if err != nil {
				return err
			}
			if err := cali.EncodeVariable(c.Buf, sym.Value); err != nil {
				return err
			}
			cali.EncodeEnd(c.Buf)
		case 'z':
			if err := c.compileStringBody(':', false); err != nil {
				return err
			}
			c.Buf.AppendByte(0)
		case 'o':
			start := c.Buf.Len()
			if err := c.compileStringBody(':', false); err != nil {
				return err
			}
			for off := start; off < c.Buf.Len(); off++ {
				c.Buf.SetByte(off, nibbleSwap(c.Buf.ByteAt(off)))
			}
			c.Buf.AppendByte(0)
		}
		if i+1 < len(directives) {
			if err := c.Lex.Expect(','); err != nil {
				return err
			}
		}
	}
	return c.Lex.Expect(':')
}

// compileExpr compiles a full postfix expression terminated by OP_END,
// delegating to the lexer for operand tokens and cali for encoding.
func (c *CompileCtx) compileExpr() error {
	if err := c.compileExprInner(); err != nil {
		return err
	}
	cali.EncodeEnd(c.Buf)
	return nil
}

// compileExprInner compiles the shunting-yard-free recursive-descent
// expression grammar (number | variable | array-ref | parenthesized sum)
// without emitting the trailing OP_END; compileExpr adds that.
func (c *CompileCtx) compileExprInner() error {
	return c.compileExprPrec(0)
}

var binOpPrec = map[byte]int{
	'*': 4, '/': 4, '%': 4,
	'+': 3, '-': 3,
	'&': 2, '|': 2, '^': 2,
	'<': 1, '>': 1,
	'=': 0, '\\': 0,
}

func (c *CompileCtx) compileExprPrec(minPrec int) error {
	if err := c.compileExprPrimary(); err != nil {
		return err
	}
	for {
		ch, err := c.Lex.NextChar()
		if err != nil {
			return err
		}
		prec, isOp := binOpPrec[ch]
		if !isOp || prec < minPrec {
			return nil
		}
		c.Lex.Advance()
		if err := c.compileExprPrec(prec + 1); err != nil {
			return err
		}
		if err := cali.EncodeOp(c.Buf, rune(ch), c.Cfg.Ver); err != nil {
			return err
		}
	}
}

func (c *CompileCtx) compileExprPrimary() error {
	ch, err := c.Lex.NextChar()
	if err != nil {
		return err
	}
	if ch == '(' {
		c.Lex.Advance()
		if err := c.compileExprPrec(0); err != nil {
			return err
		}
		return c.Lex.Expect(')')
	}
	if ch >= '0' && ch <= '9' {
		n, err := c.Lex.GetNumber()
		if err != nil {
			return err
		}
		return cali.EncodeNumber(c.Buf, n, c.Cfg.Ver, c.Cfg.Sys0dcOffByOne)
	}
	name, err := c.Lex.GetIdentifier()
	if err != nil {
		return err
	}
	if sym := c.Symbols.Lookup(name); sym != nil && sym.Kind == SymConstant {
		return cali.EncodeNumber(c.Buf, sym.Value, c.Cfg.Ver, c.Cfg.Sys0dcOffByOne)
	}
	sym, err := c.Symbols.DefineVariable(name)
	if err != nil {
		return err
	}
	if ok, _ := c.Lex.Consume('['); ok {
		if err := cali.EncodeArrayIndex(c.Buf, sym.Value, c.Cfg.Ver); err != nil {
			return err
		}
		if err := c.compileExpr(); err != nil {
			return err
		}
		return c.Lex.Expect(']')
	}
	return cali.EncodeVariable(c.Buf, sym.Value)
}
