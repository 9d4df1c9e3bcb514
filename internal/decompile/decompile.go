package decompile

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kichikuou/sys3c/internal/archive"
)

// Result is one page's reconstructed source text, or (for a page the
// archive had no entry for) just the synthesized filename a project
// listing should still mention (spec §4.6's `_missingN.adv` fallback).
type Result struct {
	Index int
	Name  string
	Text  string
}

// DecompilePages runs the full two-phase decompiler (spec §4.5's
// analyzer, spec §4.6's emitter) over a set of archive entries treated
// as consecutive scenario pages: Phase 1/2 analysis to a fixed point
// across every page, then a final per-page emit pass. entries[i] == nil
// is treated as a page the source archive never carried (spec's
// "decompile reference to non-existent page" diagnostic); srcNames
// supplies a display name per page index (typically a project's .hed
// listing), used as both the emitted source's suggested filename and the
// seed for synthesizing that page's functions' names.
func DecompilePages(entries []*archive.Entry, cfg Config, hdrSize int, srcNames map[int]string) []Result {
	pages := make([]*Page, len(entries))
	for i, e := range entries {
		name := srcNames[i]
		missing := e == nil
		var data []byte
		if e != nil {
			data = e.Data
		}
		if name == "" {
			if missing {
				name = fmt.Sprintf("_missing%d.adv", i)
			} else {
				name = fmt.Sprintf("page%d.adv", i)
			}
		}
		if missing {
			logrus.Warnf("decompile reference to non-existent page %d (%s)", i, name)
		}
		pg := NewPage(i, name, data, hdrSize)
		pg.Missing = missing
		pages[i] = pg
	}

	funcs := NewFunctionTable()
	Analyze(pages, cfg, funcs)
	renameFunctions(pages, funcs)

	results := make([]Result, len(pages))
	for i, p := range pages {
		if p.Missing {
			results[i] = Result{Index: i, Name: p.SrcName}
			continue
		}
		var out strings.Builder
		w := NewWalker(p, cfg, funcs, modeEmit, &out)
		w.Run()
		results[i] = Result{Index: i, Name: p.SrcName, Text: out.String()}
	}
	return results
}

// renameFunctions assigns every discovered Function a display name
// derived from its owning page's source-name stem plus its address
// (decompile.c's get_function naming), once analysis has finished
// discovering call targets.
func renameFunctions(pages []*Page, funcs *FunctionTable) {
	for _, fn := range funcs.byAddr {
		stem := fmt.Sprintf("page%d", fn.Page)
		if fn.Page >= 0 && fn.Page < len(pages) && pages[fn.Page] != nil {
			stem = strings.TrimSuffix(pages[fn.Page].SrcName, ".adv")
		}
		fn.Rename(fmt.Sprintf("%s_%04x", stem, fn.Addr))
	}
}
