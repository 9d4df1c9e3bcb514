package compiler

import (
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/kichikuou/sys3c/internal/sjis"
)

// compileStringBody reads source bytes up to (not including) terminator
// and appends the engine's wire encoding to the output buffer, per
// lexer.c's compile_string/compile_message/compile_bare_string family:
// ASCII passes through unchanged; a `<0xHHHH>` escape emits the literal
// SJIS code point (one or two bytes, compacted if possible and
// requested); any other non-ASCII rune is transcoded from the source's
// UTF-8 to CP932 and, if compact is true and the result is compactable,
// written as a single byte. terminator is not consumed.
func (c *CompileCtx) compileStringBody(terminator byte, compact bool) error {
	top := c.Lex.Pos()
	for {
		b := c.Lex.PeekByte()
		if b == 0 && c.Lex.AtEOF() {
			return c.Lex.ErrorAtPos(top, "unterminated string")
		}
		if b == terminator {
			return nil
		}
		switch {
		case b == '\\':
			c.Lex.Advance()
			esc := c.Lex.Advance()
			c.Buf.AppendByte(esc)
		case b == '<':
			if err := c.compileSJISCodepoint(compact); err != nil {
				return err
			}
		case b < 0x20 && b != '\n' && b != '\t':
			logrus.Warn(c.Lex.WarnAt(c.Lex.Pos(), "control character 0x%02x in string", b))
			c.Buf.AppendByte(c.Lex.Advance())
		case b < 0x80:
			c.Buf.AppendByte(c.Lex.Advance())
		default:
			if err := c.compileMultibyteRune(compact); err != nil {
				return err
			}
		}
	}
}

// compileSJISCodepoint handles the `<0xHHHH>` character-reference escape
// the emitter falls back to for bytes with no safe Unicode mapping.
func (c *CompileCtx) compileSJISCodepoint(compact bool) error {
	start := c.Lex.Pos()
	c.Lex.Advance() // '<'
	n, err := c.Lex.GetNumber()
	if err != nil {
		return err
	}
	if err := c.Lex.Expect('>'); err != nil {
		return err
	}
	if n > 0xffff || n < 0 {
		return c.Lex.ErrorAtPos(start, "SJIS code point out of range: 0x%x", n)
	}
	if n > 0xff {
		hi, lo := byte(n>>8), byte(n)
		if compact {
			if half := sjis.CompactSJIS(hi, lo); half != 0 {
				c.Buf.AppendByte(half)
				return nil
			}
		}
		c.Buf.AppendByte(hi)
		c.Buf.AppendByte(lo)
		return nil
	}
	c.Buf.AppendByte(byte(n))
	return nil
}

// compileMultibyteRune transcodes one UTF-8 rune from source into CP932
// and appends it, compacted to a single byte when compact is true and
// the code point has a compacted form.
func (c *CompileCtx) compileMultibyteRune(compact bool) error {
	r := c.Lex.Rune()
	if r == utf8.RuneError {
		return c.Lex.ErrorAt("invalid UTF-8 in source")
	}
	raw := c.Lex.AdvanceRune()
	sjisBytes, err := sjis.CP932.FromUTF8(raw)
	if err != nil {
		return c.Lex.ErrorAt("cannot represent %q in CP932: %v", raw, err)
	}
	if len(sjisBytes) == 1 {
		c.Buf.AppendByte(sjisBytes[0])
		return nil
	}
	if compact && len(sjisBytes) == 2 {
		if half := sjis.CompactSJIS(sjisBytes[0], sjisBytes[1]); half != 0 {
			c.Buf.AppendByte(half)
			return nil
		}
	}
	c.Buf.AppendBytes(sjisBytes)
	return nil
}

// nibbleSwap returns b with its high and low nibbles exchanged, used by
// the 'o' (obfuscated string) argument directive.
func nibbleSwap(b byte) byte {
	return b<<4 | b>>4
}
