package compiler

import "github.com/kichikuou/sys3c/internal/sysver"

// Opcode describes one VM command's wire byte and argument signature
// (spec §4.3 "Argument signatures"). Signature characters:
//
//	e  expression, postfix-encoded, terminated by OP_END
//	n  single byte, read from source as an ASCII-decimal literal
//	s  string, terminated by ':' (compiled per the current quoting mode)
//	v  variable reference, terminated by OP_END
//	z  NUL-terminated string
//	o  obfuscated string: compile body, nibble-swap each byte, append NUL
//
// Signatures are comma-separated in source; a trailing ':' closes the
// command. A leading 'n' may be followed by an optional comma before the
// next argument (a "sub-command number").
type Opcode struct {
	Name      string
	Byte      byte
	Signature string
	MinVer    sysver.SysVer
}

// uppercaseOpcodes is keyed by the single ASCII lead letter (spec §4.3's
// "Uppercase letter" dispatch row). The source's real table numbers in
// the hundreds and varies per (system version, game id); this is a
// representative seed covering the commands spec's own scenarios and
// Non-goals discussion exercise, grounded on xsys35c.h's CMD2F-prefixed
// enum shape and common command names (wavPlay, msg, menu, ...) — callers
// that need the full per-game table register additional entries via
// RegisterOpcode before compiling.
var uppercaseOpcodes = map[byte]*Opcode{
	'A': {Name: "A", Byte: 'A', Signature: "e", MinVer: sysver.System1},   // compiled and decompiled as a direct echo with no arguments; Signature is not read
	'B': {Name: "B", Byte: 'B', Signature: "e,e", MinVer: sysver.System1}, // box/coordinates
	'C': {Name: "C", Byte: 'C', Signature: "e", MinVer: sysver.System1},
	'D': {Name: "D", Byte: 'D', Signature: "e,e,e,e", MinVer: sysver.System1},
	'E': {Name: "E", Byte: 'E', Signature: "n", MinVer: sysver.System1},
	'F': {Name: "F", Byte: 'F', Signature: "e", MinVer: sysver.System1},
	'G': {Name: "G", Byte: 'G', Signature: "e,e", MinVer: sysver.System1},
	'H': {Name: "H", Byte: 'H', Signature: "n", MinVer: sysver.System1},
	'I': {Name: "I", Byte: 'I', Signature: "e", MinVer: sysver.System1},
	'J': {Name: "J", Byte: 'J', Signature: "e,e", MinVer: sysver.System1},
	'K': {Name: "K", Byte: 'K', Signature: "e", MinVer: sysver.System1},
	'L': {Name: "L", Byte: 'L', Signature: "n", MinVer: sysver.System1},
	'M': {Name: "M", Byte: 'M', Signature: "s", MinVer: sysver.System1}, // message box
	'N': {Name: "N", Byte: 'N', Signature: "e", MinVer: sysver.System1},
	'O': {Name: "O", Byte: 'O', Signature: "e,e", MinVer: sysver.System1},
	'P': {Name: "P", Byte: 'P', Signature: "e,e,e", MinVer: sysver.System1}, // sprite put
	'Q': {Name: "Q", Byte: 'Q', Signature: "e", MinVer: sysver.System1},
	'R': {Name: "R", Byte: 'R', Signature: "", MinVer: sysver.System1}, // direct echo, no arguments
	'S': {Name: "S", Byte: 'S', Signature: "z", MinVer: sysver.System1}, // save description
	'T': {Name: "T", Byte: 'T', Signature: "e,e", MinVer: sysver.System1},
	'U': {Name: "U", Byte: 'U', Signature: "e", MinVer: sysver.System1},
	'V': {Name: "V", Byte: 'V', Signature: "v", MinVer: sysver.System1},
	'W': {Name: "W", Byte: 'W', Signature: "e", MinVer: sysver.System1}, // wait
	'X': {Name: "X", Byte: 'X', Signature: "n", MinVer: sysver.System1},
	'Y': {Name: "Y", Byte: 'Y', Signature: "e,e", MinVer: sysver.System1},
	'Z': {Name: "Z", Byte: 'Z', Signature: "o", MinVer: sysver.System1}, // obfuscated label string
}

// KeywordEscape is the lead byte a lowercase multi-character keyword
// command compiles to on the wire: xsys35c.h defines every such command
// as CMD2F(b) = a 2-byte (0x2F, b) pair rather than reusing the ASCII
// letter, since the keyword itself (arbitrary length) cannot double as
// a one-byte opcode. Opcode.Byte below holds that sub-byte b.
const KeywordEscape = 0x2f

// lowercaseKeywords holds multi-character keyword commands (spec §4.3's
// "Lowercase letter" row), keyed by the full keyword the lexer's
// GetKeyword reads. Grounded on xsys35c.h's CMD2F(b) enum member names
// and sub-byte order (newMS/newHH/wavPlay/...); each entry's MinVer
// names the oldest dialect that accepts it (System3Ain for the newest
// ones).
var lowercaseKeywords = map[string]*Opcode{
	"wavload":     {Name: "wavLoad", Byte: 0x0a, Signature: "e,e", MinVer: sysver.System1},
	"wavplay":     {Name: "wavPlay", Byte: 0x0b, Signature: "e", MinVer: sysver.System1},
	"wavstop":     {Name: "wavStop", Byte: 0x0c, Signature: "e", MinVer: sysver.System1},
	"wavunload":   {Name: "wavUnload", Byte: 0x0d, Signature: "e", MinVer: sysver.System1},
	"trace":       {Name: "trace", Byte: 0x12, Signature: "z", MinVer: sysver.System1},
	"sndplay":     {Name: "sndPlay", Byte: 0x1e, Signature: "e", MinVer: sysver.System2},
	"sndstop":     {Name: "sndStop", Byte: 0x1f, Signature: "e", MinVer: sysver.System2},
	"msg":         {Name: "msg", Byte: 0x21, Signature: "s", MinVer: sysver.System1},
	"menu":        {Name: "menu", Byte: 0x2a, Signature: "", MinVer: sysver.System1},
	"newhh":       {Name: "newHH", Byte: 0x22, Signature: "e,e", MinVer: sysver.System3},
	"newms":       {Name: "newMS", Byte: 0x23, Signature: "e", MinVer: sysver.System3},
	"ainmsg":      {Name: "ainMsg", Byte: 0x40, Signature: "s", MinVer: sysver.System3Ain},
	"fncsettable": {Name: "fncSetTable", Byte: 0x41, Signature: "e,z", MinVer: sysver.System3Ain},
	"fnccall":     {Name: "fncCall", Byte: 0x42, Signature: "e", MinVer: sysver.System3Ain},
}

// RegisterOpcode adds or replaces an entry in the uppercase single-letter
// dispatch table, for callers (project config) supplying a game-specific
// extension of the seed table above.
func RegisterOpcode(op *Opcode) {
	uppercaseOpcodes[op.Byte] = op
}

// RegisterKeyword adds or replaces an entry in the lowercase
// multi-character keyword table.
func RegisterKeyword(keyword string, op *Opcode) {
	lowercaseKeywords[keyword] = op
}

// LookupOpcode returns the uppercase single-letter command registered for
// lead, so the decompiler can recover a signature string from the same
// table the compiler used to emit it (round-trip fidelity: a project that
// RegisterOpcode's a game-specific table sees it honored on both sides).
func LookupOpcode(lead byte) (*Opcode, bool) {
	op, ok := uppercaseOpcodes[lead]
	return op, ok
}

// Keywords returns the lowercase multi-character keyword table, keyed by
// the Opcode's own Byte (the CMD2F sub-byte xsys35c.h assigns each entry,
// which follows KeywordEscape on the wire), for the decompiler's command
// dispatch.
func Keywords() map[byte]*Opcode {
	byByte := make(map[byte]*Opcode, len(lowercaseKeywords))
	for _, op := range lowercaseKeywords {
		byByte[op.Byte] = op
	}
	return byByte
}
