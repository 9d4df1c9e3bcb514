package decompile

import (
	"strings"

	"github.com/kichikuou/sys3c/internal/sjis"
)

// decodeStringRun reads a run of message/string-data bytes starting at
// data[p], per decompile.c's dc_put_string_n: ASCII graphic bytes pass
// through, control bytes are escaped, compacted kana bytes expand to
// their two-byte SJIS form when expand is true, and an SJIS two-byte
// sequence either passes through or falls back to a `<0xHHHH>` escape
// when it has no safe Unicode mapping. The run stops at the first NUL
// (consumed) or at end; it returns the decoded text and the offset just
// past the terminator (or past the run, if it hit end with no NUL).
func decodeStringRun(data []byte, p, end int, expand bool) (string, int) {
	var b strings.Builder
	for p < end {
		c := data[p]
		switch {
		case c == 0:
			return b.String(), p + 1
		case c == '\\' || c == '\'' || c == '"' || c == '<':
			b.WriteByte('\\')
			b.WriteByte(c)
			p++
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
			p++
		case sjis.IsCompactedSJIS(c):
			if expand {
				full := sjis.ExpandSJIS(c)
				hi, lo := byte(full>>8), byte(full)
				writeSJISPair(&b, hi, lo)
			} else {
				b.WriteByte(c)
			}
			p++
		case c == 0xde || c == 0xdf: // half-width (semi-)voiced sound mark
			b.WriteByte(c)
			p++
		case sjis.IsSJISLeadByte(c) && p+1 < end:
			writeSJISPair(&b, c, data[p+1])
			p += 2
		default:
			b.WriteByte(c)
			p++
		}
	}
	return b.String(), p
}

func writeSJISPair(b *strings.Builder, hi, lo byte) {
	if !sjis.IsUnicodeSafe(hi, lo) {
		b.WriteString(formatHex16(uint16(hi)<<8 | uint16(lo)))
		return
	}
	s, err := sjis.CP932.ToUTF8([]byte{hi, lo})
	if err != nil {
		b.WriteString(formatHex16(uint16(hi)<<8 | uint16(lo)))
		return
	}
	b.WriteString(s)
}

// decodeUntilByte scans data[p:end] up to (not including) the first
// occurrence of term, applying the same escaping/expansion rules as
// decodeStringRun. Used for wire fields the compiler terminates with an
// explicit literal byte (menu-item text stops at '$', the 's' argument
// directive stops at ':') rather than a NUL.
func decodeUntilByte(data []byte, p, end int, term byte, expand bool) (string, int) {
	var b strings.Builder
	for p < end && data[p] != term {
		c := data[p]
		switch {
		case c == '\\' || c == '\'' || c == '"' || c == '<':
			b.WriteByte('\\')
			b.WriteByte(c)
			p++
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
			p++
		case sjis.IsCompactedSJIS(c):
			if expand {
				full := sjis.ExpandSJIS(c)
				writeSJISPair(&b, byte(full>>8), byte(full))
			} else {
				b.WriteByte(c)
			}
			p++
		case sjis.IsSJISLeadByte(c) && p+1 < end:
			writeSJISPair(&b, c, data[p+1])
			p += 2
		default:
			b.WriteByte(c)
			p++
		}
	}
	return b.String(), p
}

func formatHex16(v uint16) string {
	const hexDigits = "0123456789ABCDEF"
	return "<0x" + string([]byte{
		hexDigits[v>>12&0xf], hexDigits[v>>8&0xf],
		hexDigits[v>>4&0xf], hexDigits[v&0xf],
	}) + ">"
}

// isStringLead reports whether byte b can begin a decoded message/data
// string under decompile.c's byte-value heuristic: a NUL (empty
// message), a plain space, or any byte with the high bit set (SJIS lead
// or compacted kana).
func isStringLead(b byte) bool {
	return b == 0 || b == 0x20 || b >= 0x80
}

// dataBlockText formats a run of raw bytes (data[p:end]) the way
// data_block's NUL-terminated-string-vs-16-bit-integers heuristic does:
// a run that looks like printable text (including the single "empty
// string" case of a lone NUL) becomes a quoted string; otherwise the
// bytes are paired up as little-endian 16-bit integers and printed as
// `[n, n, ...]`. A trailing odd byte is emitted on its own as `Nb`
// (decompile.c's "data block with odd number of bytes" fallback).
func dataBlockText(data []byte, p, end int) string {
	var out strings.Builder
	for p < end {
		if looksLikeString(data, p, end) {
			s, next := decodeStringRun(data, p, end, true)
			out.WriteString("\"")
			out.WriteString(s)
			out.WriteString("\"\n")
			p = next
			continue
		}
		out.WriteString("[")
		sep := ""
		for p < end && !looksLikeString(data, p, end) {
			if p+1 == end {
				out.WriteString(sep)
				out.WriteString(itoa(int(data[p])))
				out.WriteString("b")
				p++
				break
			}
			out.WriteString(sep)
			out.WriteString(itoa(int(data[p]) | int(data[p+1])<<8))
			sep = ", "
			p += 2
		}
		out.WriteString("]\n")
	}
	return out.String()
}

// looksLikeString is a simplified is_string_data: true for a lone
// terminating NUL, or a run of printable/high-bit bytes at least two
// bytes long before the next NUL.
func looksLikeString(data []byte, p, end int) bool {
	if p >= end {
		return false
	}
	if data[p] == 0 {
		return p+1 == end
	}
	n := 0
	for q := p; q < end && data[q] != 0; q++ {
		if !(data[q] >= 0x20 && data[q] < 0x7f) && !sjis.IsSJISLeadByte(data[q]) && !sjis.IsCompactedSJIS(data[q]) {
			return false
		}
		n++
	}
	return n >= 2
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
