package project

import (
	"fmt"
	"os"
	"strings"

	"github.com/kichikuou/sys3c/internal/sys3err"
)

// VerbObjectTable is the decoded form of `AG00.DAT` (spec §6): a header
// of two unknown fields plus the verb and object counts, followed by
// that many `\r`-terminated names. Grounded on
// original_source/common/ag00.c's ag00_read/ag00_write.
type VerbObjectTable struct {
	Uk1, Uk2 int
	Verbs    []string
	Objects  []string
}

// MaxVerbObjectCount is the per-list ceiling spec §6 names ("verb_count
// and obj_count each limited to 256").
const MaxVerbObjectCount = 256

// ReadVerbObjectTable reads an AG00.DAT file. Each record (header and
// every name) is terminated by `\r`; `\n` bytes are tolerated and
// stripped wherever they appear, matching ag00_read's ag00_gets helper,
// which skips `\n` without treating it as a terminator. A 0x1A trailer
// byte (if present) is not itself a record and is ignored.
func ReadVerbObjectTable(path string) (*VerbObjectTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, sys3err.New(sys3err.IO, "open AG00 file %s: %v", path, err)
	}
	records := splitAG00Records(raw)
	if len(records) == 0 {
		return nil, sys3err.New(sys3err.Structural, "%s: invalid AG00 header", path)
	}

	var uk1, nVerbs, nObjs, uk2 int
	if n, err := fmt.Sscanf(records[0], "%d,%d,%d,%d", &uk1, &nVerbs, &nObjs, &uk2); n != 4 || err != nil {
		return nil, sys3err.New(sys3err.Structural, "%s: invalid AG00 header", path)
	}
	if nVerbs > MaxVerbObjectCount || nObjs > MaxVerbObjectCount {
		return nil, sys3err.New(sys3err.Structural, "%s: invalid AG00 data", path)
	}
	if len(records) < 1+nVerbs+nObjs {
		return nil, sys3err.New(sys3err.Structural, "%s: truncated AG00 file", path)
	}

	t := &VerbObjectTable{Uk1: uk1, Uk2: uk2}
	t.Verbs = append(t.Verbs, records[1:1+nVerbs]...)
	t.Objects = append(t.Objects, records[1+nVerbs:1+nVerbs+nObjs]...)
	return t, nil
}

// splitAG00Records splits raw on `\r`, stripping any `\n` byte found
// within a record (ag00_gets never treats `\n` as content or as a
// terminator) and dropping the trailing 0x1A/empty remainder.
func splitAG00Records(raw []byte) []string {
	var records []string
	var cur strings.Builder
	for _, b := range raw {
		switch b {
		case '\r':
			records = append(records, cur.String())
			cur.Reset()
		case '\n', 0x1a:
			// skip
		default:
			cur.WriteByte(b)
		}
	}
	return records
}

// WriteVerbObjectTable writes t to path in AG00.DAT form, matching
// ag00_write exactly: `uk1,verbs,objs,uk2\r\n` then each name
// `\r`-terminated, then a trailing 0x1A byte.
func WriteVerbObjectTable(path string, t *VerbObjectTable) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d,%d,%d,%d\r\n", t.Uk1, len(t.Verbs), len(t.Objects), t.Uk2)
	for _, v := range t.Verbs {
		b.WriteString(v)
		b.WriteByte('\r')
	}
	for _, o := range t.Objects {
		b.WriteString(o)
		b.WriteByte('\r')
	}
	b.WriteByte(0x1a)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return sys3err.New(sys3err.IO, "write AG00 file %s: %v", path, err)
	}
	return nil
}
