package decompile

// maxPasses bounds Phase 2's fixed-point iteration (spec §4.5): each pass
// can only narrow a function's confirmed parameter count, never widen it
// back out, so the lattice is guaranteed to stabilize well before this
// many passes over any bytecode this project's compiler could plausibly
// produce.
const maxPasses = 6

// Analyze runs Phase 1's best-effort prescan followed by Phase 2's
// iterative byte-walk over every page, repeating the walk until no pass
// narrows any function's parameter lattice (spec §4.5: "a later call
// site can narrow an earlier one's confirmed argument count").
func Analyze(pages []*Page, cfg Config, funcs *FunctionTable) {
	for _, p := range pages {
		if !p.Missing {
			prescan(p)
		}
	}
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, p := range pages {
			if p.Missing {
				continue
			}
			w := NewWalker(p, cfg, funcs, modeAnalyze, nil)
			w.Run()
			if w.Changed {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	for _, p := range pages {
		p.Analyzed = true
	}
}

// prescan implements spec §4.5's Phase 1: a best-effort forward scan for
// a `#` byte followed by a 2-byte address and a trailing OP_END (0x7F),
// marking the addressed offset DataTable when the pointer precedes its
// target. This project's compiler has no DSL operand form that emits a
// leading '#' byte (page-constant-table authoring is outside the
// language this port's compiler accepts), so in practice this prescan
// only ever fires against a page decompiled from a foreign,
// already-compiled .ADV/.ALD file this tool did not itself produce; it
// is kept for exactly that case, per decompile.c's own two-phase design.
func prescan(p *Page) {
	data := p.Data
	for i := p.HdrSize; i+4 <= len(data); i++ {
		if data[i] != '#' || data[i+3] != 0x7f {
			continue
		}
		target := int(le16(data[i+1:]))
		if target > i && target < len(data) {
			p.Annotate(target, DataTable)
		}
	}
}
