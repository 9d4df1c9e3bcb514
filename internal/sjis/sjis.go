// Package sjis wraps CP932 (Shift_JIS superset) transcoding and the
// engine's "compacted" single-byte kana/message form behind the two-method
// interface the port's Design Notes ask for, localizing the dependency on
// golang.org/x/text/encoding/japanese.
package sjis

import (
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Transcoder converts between UTF-8 and CP932. The production instance is
// backed by golang.org/x/text; tests may substitute a fake.
type Transcoder interface {
	ToUTF8(cp932 []byte) (string, error)
	FromUTF8(s string) ([]byte, error)
}

type cp932Transcoder struct{}

// CP932 is the production Transcoder, backed by x/text's ShiftJIS codec
// (a superset that accepts the vendor extensions CP932 adds over plain
// Shift_JIS).
var CP932 Transcoder = cp932Transcoder{}

func (cp932Transcoder) ToUTF8(b []byte) (string, error) {
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (cp932Transcoder) FromUTF8(s string) ([]byte, error) {
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(s))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// compactable lists every SJIS single byte this engine treats as a
// "compacted" kana/message byte, in the order they map to the two-byte
// plane: the CJK ideographic space representative, then the half-width
// kana range 0xA1..0xDD. 0xDE/0xDF (dakuten/handakuten) are never
// independently compacted: they combine with the preceding kana byte.
var compactable = func() []byte {
	b := []byte{' '}
	for c := byte(0xa1); c <= 0xdd; c++ {
		b = append(b, c)
	}
	return b
}()

var expandTable = func() map[byte]uint16 {
	m := make(map[byte]uint16, len(compactable))
	for i, c := range compactable {
		m[c] = 0x8140 + uint16(i)
	}
	return m
}()

var compactTable = func() map[uint16]byte {
	m := make(map[uint16]byte, len(expandTable))
	for c, full := range expandTable {
		m[full] = c
	}
	return m
}()

// IsCompactedSJIS reports whether c is a byte in the engine's compacted
// single-byte kana form.
func IsCompactedSJIS(c byte) bool {
	_, ok := expandTable[c]
	return ok
}

// IsHalfWidthKana reports whether c falls in the SJIS half-width-kana
// byte range, per common/common.h's is_sjis_half_kana.
func IsHalfWidthKana(c byte) bool {
	return 0xa1 <= c && c <= 0xdf
}

// IsSJISLeadByte reports whether c can begin a two-byte SJIS character.
func IsSJISLeadByte(c byte) bool {
	return (0x81 <= c && c <= 0x9f) || (0xe0 <= c && c <= 0xfc)
}

// IsSJISTrailByte reports whether c can be the second byte of a two-byte
// SJIS character.
func IsSJISTrailByte(c byte) bool {
	return 0x40 <= c && c <= 0xfc && c != 0x7f
}

// ExpandSJIS returns the two-byte SJIS code (high byte in bits 8-15) that
// compacted byte c represents, or 0 if c is not compactable. Mirrors
// common/common.h's expand_sjis.
func ExpandSJIS(c byte) uint16 {
	return expandTable[c]
}

// CompactSJIS returns the single compacted byte representing the two-byte
// SJIS code (c1, c2), or 0 if that pair has no compacted form. Mirrors
// common/common.h's compact_sjis.
func CompactSJIS(c1, c2 byte) byte {
	return compactTable[uint16(c1)<<8|uint16(c2)]
}

// IsUnicodeSafe reports whether the two-byte SJIS sequence (c1, c2) maps
// to a Unicode code point the decompiler emitter can print literally,
// rather than falling back to a <0xHHHH> character reference.
func IsUnicodeSafe(c1, c2 byte) bool {
	if !IsSJISLeadByte(c1) || !IsSJISTrailByte(c2) {
		return false
	}
	_, err := CP932.ToUTF8([]byte{c1, c2})
	return err == nil
}
