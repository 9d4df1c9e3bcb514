// Package lexer implements the DSL's on-demand tokenizer (spec §4.2): the
// compiler calls the getter for the token kind it expects next (an
// identifier, a label, a number, ...) rather than pulling from a generic
// token stream, mirroring original_source/compiler/lexer.c.
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kichikuou/sys3c/internal/sys3err"
)

// Lexer scans a UTF-8 source buffer with a current byte offset and line
// counter. It has no token-kind-agnostic Next(): callers ask for the kind
// of token the grammar position demands.
type Lexer struct {
	Name string // source file name, for diagnostics
	Page int    // page index, for diagnostics

	src  string
	pos  int
	line int

	// Unicode selects whether multi-byte source text should be treated
	// as UTF-8 literally (true) or transcoded through CP932 by the
	// caller (false); the lexer itself only needs to know which bytes
	// count as "non-ASCII" for identifier/label classification, which is
	// true either way.
	Unicode bool
}

// New creates a Lexer over source, starting at line 1.
func New(source, name string, page int) *Lexer {
	return &Lexer{Name: name, Page: page, src: source, line: 1}
}

// Line returns the current line number (1-based).
func (l *Lexer) Line() int { return l.line }

// Pos returns the current byte offset, for label/hole bookkeeping that
// needs to remember "where in the source was this referenced".
func (l *Lexer) Pos() int { return l.pos }

// AtEOF reports whether the cursor has reached the end of the source.
func (l *Lexer) AtEOF() bool {
	return l.pos >= len(l.src)
}

func (l *Lexer) errorAt(pos int, format string, args ...any) *sys3err.Error {
	line, col, text := l.locate(pos)
	return sys3err.At(sys3err.Lexical, sys3err.Pos{File: l.Name, Page: l.Page, Line: line, Col: col}, text, format, args...)
}

func (l *Lexer) locate(pos int) (line, col int, text string) {
	line = 1
	begin := 0
	for i := 0; i < pos && i < len(l.src); i++ {
		if l.src[i] == '\n' {
			line++
			begin = i + 1
		}
	}
	end := strings.IndexByte(l.src[begin:], '\n')
	if end < 0 {
		end = len(l.src) - begin
	}
	text = l.src[begin : begin+end]
	col = pos - begin
	return
}

func (l *Lexer) byteAt(i int) byte {
	if i >= len(l.src) {
		return 0
	}
	return l.src[i]
}

func (l *Lexer) cur() byte  { return l.byteAt(l.pos) }
func (l *Lexer) at(n int) byte { return l.byteAt(l.pos + n) }

// SkipWhitespace advances past ASCII whitespace, `;`/`//` line comments,
// `/* */` block comments (not nested), and the CJK ideographic space
// U+3000, tracking line numbers.
func (l *Lexer) SkipWhitespace() error {
	for l.pos < len(l.src) {
		c := l.cur()
		switch {
		case c == '\n':
			l.pos++
			l.line++
		case c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f':
			l.pos++
		case c == ';' || (c == '/' && l.at(1) == '/'):
			l.skipToEOL()
		case c == '/' && l.at(1) == '*':
			if err := l.skipBlockComment(); err != nil {
				return err
			}
		case c == 0xe3 && l.at(1) == 0x80 && l.at(2) == 0x80: // U+3000
			l.pos += 3
		default:
			return nil
		}
	}
	return nil
}

func (l *Lexer) skipToEOL() {
	i := strings.IndexByte(l.src[l.pos:], '\n')
	if i < 0 {
		l.pos = len(l.src)
		return
	}
	l.pos += i
}

func (l *Lexer) skipBlockComment() error {
	top := l.pos
	l.pos += 2
	for {
		i := strings.IndexByte(l.src[l.pos:], '*')
		if i < 0 {
			return l.errorAt(top, "unfinished comment")
		}
		l.pos += i
		if l.byteAt(l.pos+1) == '/' {
			l.pos += 2
			// Count the newlines the comment spanned, for line tracking.
			l.line += strings.Count(l.src[top:l.pos], "\n")
			return nil
		}
		l.pos++
	}
}

// NextChar skips whitespace and returns the byte now at the cursor (0 at
// EOF) without consuming it.
func (l *Lexer) NextChar() (byte, error) {
	if err := l.SkipWhitespace(); err != nil {
		return 0, err
	}
	return l.cur(), nil
}

// Consume advances past c if it is the next non-whitespace byte, and
// reports whether it did.
func (l *Lexer) Consume(c byte) (bool, error) {
	got, err := l.NextChar()
	if err != nil {
		return false, err
	}
	if got != c {
		return false, nil
	}
	l.pos++
	return true, nil
}

// Expect consumes c or reports a syntactic error.
func (l *Lexer) Expect(c byte) error {
	ok, err := l.Consume(c)
	if err != nil {
		return err
	}
	if !ok {
		return l.errorAt(l.pos, "'%c' expected", c)
	}
	return nil
}

// ConsumeKeyword consumes keyword if it appears next, is not itself a
// prefix of a longer identifier, and reports whether it did.
func (l *Lexer) ConsumeKeyword(keyword string) (bool, error) {
	if err := l.SkipWhitespace(); err != nil {
		return false, err
	}
	if !strings.HasPrefix(l.src[l.pos:], keyword) {
		return false, nil
	}
	after := l.byteAt(l.pos + len(keyword))
	if isAlnum(after) || after == '_' {
		return false, nil
	}
	l.pos += len(keyword)
	return true, nil
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentifierByte(c byte) bool {
	return isAlnum(c) || c >= 0x80 || c == '_' || c == '.'
}

func isLabelByte(c byte) bool {
	if c >= 0x80 {
		return true
	}
	if c <= ' ' || c == 0x7f {
		return false
	}
	return c != '$' && c != ',' && c != ';' && c != ':'
}

// advanceRune steps the cursor past one full UTF-8 rune (ASCII or
// multi-byte), mirroring advance_to_next_char's UTF8_TRAIL_BYTE skip.
func (l *Lexer) advanceRune() {
	l.pos++
	for l.pos < len(l.src) && isUTF8TrailByte(l.src[l.pos]) {
		l.pos++
	}
}

func isUTF8TrailByte(b byte) bool {
	return int8(b) < -0x40
}

// GetIdentifier reads `[A-Za-z_.]` or non-ASCII, followed by
// `[alnum|_|.|non-ASCII]*`. A leading digit is an error.
func (l *Lexer) GetIdentifier() (string, error) {
	if err := l.SkipWhitespace(); err != nil {
		return "", err
	}
	top := l.pos
	c := l.cur()
	if !isIdentifierByte(c) || (c >= '0' && c <= '9') {
		return "", l.errorAt(top, "identifier expected")
	}
	for isIdentifierByte(l.cur()) && !(l.cur() == 0xe3 && l.at(1) == 0x80 && l.at(2) == 0x80) { // U+3000 ends it
		l.advanceRune()
	}
	return l.src[top:l.pos], nil
}

// GetLabel reads any printable sequence except `$ , ; :` and whitespace.
func (l *Lexer) GetLabel() (string, error) {
	if err := l.SkipWhitespace(); err != nil {
		return "", err
	}
	top := l.pos
	for isLabelByte(l.cur()) {
		l.advanceRune()
	}
	if l.pos == top {
		return "", l.errorAt(top, "label expected")
	}
	return l.src[top:l.pos], nil
}

// GetFilename reads the same character class as GetIdentifier, without
// the leading-digit or leading-whitespace-skip restriction (used after
// `#`).
func (l *Lexer) GetFilename() (string, error) {
	top := l.pos
	for isIdentifierByte(l.cur()) {
		l.advanceRune()
	}
	if l.pos == top {
		return "", l.errorAt(top, "file name expected")
	}
	return l.src[top:l.pos], nil
}

// GetNumber reads a decimal, 0x-hex, or 0b-binary integer literal.
func (l *Lexer) GetNumber() (int, error) {
	c, err := l.NextChar()
	if err != nil {
		return 0, err
	}
	if c < '0' || c > '9' {
		return 0, l.errorAt(l.pos, "number expected")
	}
	base := 10
	top := l.pos
	if c == '0' {
		switch lower(l.at(1)) {
		case 'x':
			base = 16
			l.pos += 2
		case 'b':
			base = 2
			l.pos += 2
		}
	}
	digitsStart := l.pos
	for isDigitForBase(l.cur(), base) {
		l.pos++
	}
	if l.pos == digitsStart {
		return 0, l.errorAt(top, "number expected")
	}
	n, err := strconv.ParseInt(l.src[digitsStart:l.pos], base, 64)
	if err != nil {
		return 0, l.errorAt(top, "malformed number: %v", err)
	}
	return int(n), nil
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func isDigitForBase(c byte, base int) bool {
	switch base {
	case 2:
		return c == '0' || c == '1'
	case 16:
		return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
	default:
		return c >= '0' && c <= '9'
	}
}

// Rune decodes the rune starting at the cursor without consuming it,
// used by callers that need to classify a non-ASCII lead byte (e.g. the
// command compiler's message-string path).
func (l *Lexer) Rune() rune {
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return r
}

// IsUpper reports whether c is an ASCII uppercase letter (VM opcode
// lead byte per spec §4.3's dispatch table).
func IsUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

// IsLower reports whether c is an ASCII lowercase letter (multi-char
// keyword lead byte).
func IsLower(c byte) bool { return c >= 'a' && c <= 'z' }

// GetKeyword reads `[a-z][a-z0-9]*` without consuming leading whitespace
// (the caller has already peeked the lead byte via NextChar), matching
// get_command's lowercase-keyword branch.
func (l *Lexer) GetKeyword() string {
	top := l.pos
	for IsLower(l.cur()) || (l.cur() >= '0' && l.cur() <= '9') {
		l.pos++
	}
	return l.src[top:l.pos]
}

// PeekByte returns the byte at the cursor without skipping whitespace or
// consuming it (used for raw/string-body scanning where whitespace is
// significant).
func (l *Lexer) PeekByte() byte { return l.cur() }

// Advance consumes exactly one byte (not rune) and returns it,
// incrementing the line counter if it is '\n'. Mirrors lexer.c's echo(),
// minus the emit side effect (callers append it to their own buffer).
func (l *Lexer) Advance() byte {
	c := l.cur()
	l.pos++
	if c == '\n' {
		l.line++
	}
	return c
}

// AdvanceRune consumes one full UTF-8 rune (for non-ASCII message/string
// bodies) and returns its raw bytes.
func (l *Lexer) AdvanceRune() string {
	top := l.pos
	l.advanceRune()
	return l.src[top:l.pos]
}

// ErrorAt builds a Lexical error positioned at the current cursor, for
// callers (the compiler) that detect a problem mid-getter.
func (l *Lexer) ErrorAt(format string, args ...any) error {
	return l.errorAt(l.pos, format, args...)
}

// ErrorAtPos builds a Lexical error positioned at a previously captured
// offset (e.g. the start of an unterminated string).
func (l *Lexer) ErrorAtPos(pos int, format string, args ...any) error {
	return l.errorAt(pos, format, args...)
}

// WarnAt formats a continuable Warning diagnostic string in lexer.c's
// "name line N column M: msg" + source-quote-and-caret shape. Callers log
// it through logrus; the lexer itself does not own a logger.
func (l *Lexer) WarnAt(pos int, format string, args ...any) string {
	line, col, text := l.locate(pos)
	msg := fmt.Sprintf(format, args...)
	caret := strings.Repeat(" ", col) + "^"
	return fmt.Sprintf("%s line %d column %d: %s\n%s\n%s", l.Name, line, col+1, msg, text, caret)
}
