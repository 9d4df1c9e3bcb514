package compiler

import (
	"sort"

	"github.com/kichikuou/sys3c/internal/buffer"
	"github.com/kichikuou/sys3c/internal/sys3err"
)

// Label is a name-addressable address inside one page (spec §3 "Label").
// An unresolved label's HoleHead is the offset of the most recently
// emitted reference slot still awaiting the resolved address; that slot
// in turn holds the offset of the previous such slot (or 0), so the
// whole chain threads through the output buffer itself rather than
// needing a side list (spec §9 "Label hole chains via in-buffer
// next-pointers").
type Label struct {
	Name        string
	Resolved    bool
	Addr        uint16
	HoleHead    uint16
	FirstPos    sys3err.Pos
	hasFirstPos bool
	IsFunction  bool
}

// LabelTable tracks one page's labels; a fresh table is used per page
// (labels do not cross page boundaries).
type LabelTable struct {
	byName map[string]*Label
}

// NewLabelTable returns an empty table.
func NewLabelTable() *LabelTable {
	return &LabelTable{byName: make(map[string]*Label)}
}

func (t *LabelTable) get(name string) *Label {
	l, ok := t.byName[name]
	if !ok {
		l = &Label{Name: name}
		t.byName[name] = l
	}
	return l
}

// Reference emits a 2-byte placeholder for name at the buffer's current
// append point (or the resolved address, if name is already defined),
// threading the placeholder into name's hole chain. pos is recorded as
// the label's FirstPos the first time it is referenced while still
// unresolved, so an eventual "undefined label" diagnostic (see Undefined)
// can point at the first place the source named it. Returns the label so
// the caller can mark IsFunction where relevant.
func (t *LabelTable) Reference(b *buffer.Buffer, name string, pos sys3err.Pos) *Label {
	l := t.get(name)
	if l.Resolved {
		b.AppendWord(l.Addr)
		return l
	}
	if !l.hasFirstPos {
		l.FirstPos = pos
		l.hasFirstPos = true
	}
	off := b.AppendWord(l.HoleHead)
	l.HoleHead = uint16(off)
	return l
}

// Define resolves name to the buffer's current append point, walking and
// patching every pending reference in its hole chain. It is an error to
// define an already-resolved label twice.
func (t *LabelTable) Define(b *buffer.Buffer, name string, pos sys3err.Pos) error {
	l := t.get(name)
	if l.Resolved {
		return sys3err.At(sys3err.Semantic, pos, "", "label %q is already defined", name)
	}
	addr := uint16(b.Len())
	for l.HoleHead != 0 {
		l.HoleHead = b.SwapWord(int(l.HoleHead), addr)
	}
	l.Resolved = true
	l.Addr = addr
	l.FirstPos = pos
	return nil
}

// Undefined returns every label referenced but never defined, in name
// order, for the end-of-page diagnostic (spec §4.3 "Page epilogue").
func (t *LabelTable) Undefined() []*Label {
	var out []*Label
	for _, l := range t.byName {
		if !l.Resolved {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns name's label without creating it, or nil.
func (t *LabelTable) Lookup(name string) *Label {
	return t.byName[name]
}
