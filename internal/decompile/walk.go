package decompile

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kichikuou/sys3c/internal/cali"
	"github.com/kichikuou/sys3c/internal/compiler"
	"github.com/kichikuou/sys3c/internal/sysver"
)

// noEnd tells walkBlock to run until it consumes an explicit terminator
// byte ('}' or '>') rather than until a known address.
const noEnd = -1

// mode selects whether a walk only updates Marks/the function-parameter
// lattice (Phase 2 of spec §4.5), or also renders source text into Out
// (the emit pass of spec §4.6). Both passes share one walker so the
// control-flow-recognition logic is written exactly once.
type mode int

const (
	modeAnalyze mode = iota
	modeEmit
)

// varName is the VarNamer every emitted expression uses: this decompiler
// has no record of the original source's identifier names, only variable
// indices, so it synthesizes one (decompile.c's print_cali does the
// analogous thing with a growable VAR<n> table).
func varName(idx int) string {
	return fmt.Sprintf("v%d", idx)
}

func labelName(addr int) string {
	return fmt.Sprintf("L_%04x", addr)
}

var compoundOpChars = map[byte]string{
	0x10: "+", 0x11: "-", 0x12: "*", 0x13: "/",
	0x14: "%", 0x15: "&", 0x16: "|", 0x17: "^",
}

func compoundOpChar(lead byte) string {
	return compoundOpChars[lead]
}

func nibbleSwap(b byte) byte {
	return b<<4 | b>>4
}

// pendingAssign is one `!var[op]:expr!` statement decoded but not yet
// written out, because it might still turn out to be the leading part of
// a function call's argument list (spec §4.6's `~func args:` sugar).
type pendingAssign struct {
	lhs, rhs *cali.Node
	op       string
}

// Walker re-derives one page's control-flow structure by walking its
// bytecode the same way CompileCtx.commands/command walks source text,
// in reverse. Grounded on original_source/decompiler/decompile.c's main
// loop, adapted to this port's uniform 2-byte label addressing (see
// DESIGN.md) and to the fact that this compiler's own grammar is
// strictly well-nested: every block's extent is either an explicit
// terminator byte (older dialects' conditionals) or a literal resolved
// address already sitting in the bytecode (the "hole" the compiler
// patched at compile time), so block boundaries need a single forward
// pass rather than decompile.c's backward-patching machinery.
type Walker struct {
	Page  *Page
	Cfg   Config
	Funcs *FunctionTable
	Mode  mode
	Out   *strings.Builder

	keywords map[byte]*compiler.Opcode

	runStarts []int // offsets of a contiguous run of plain `!var:expr!` statements
	pending   []pendingAssign

	// Changed reports whether this pass narrowed or widened any function's
	// parameter lattice; the multi-pass driver (analyze.go) repeats Phase 2
	// until a pass leaves it false.
	Changed bool
}

// NewWalker returns a Walker for one analyze-or-emit pass over page.
func NewWalker(page *Page, cfg Config, funcs *FunctionTable, m mode, out *strings.Builder) *Walker {
	return &Walker{
		Page:     page,
		Cfg:      cfg,
		Funcs:    funcs,
		Mode:     m,
		Out:      out,
		keywords: compiler.Keywords(),
	}
}

// Run walks the whole page body, from HdrSize to the end of Data.
func (w *Walker) Run() {
	w.walkBlock(w.Page.HdrSize, noEnd)
	w.flushAllPending()
}

// walkBlock runs commands until p reaches end (when end >= 0), or until a
// command consumes an explicit block terminator (when end == noEnd).
func (w *Walker) walkBlock(p, end int) int {
	for {
		if end >= 0 {
			if p >= end {
				return p
			}
		} else if p >= len(w.Page.Data) {
			return p
		}
		next, term := w.command(p)
		p = next
		if term {
			return p
		}
	}
}

func (w *Walker) command(p int) (int, bool) {
	if w.Page.Marks[p].Has(Label) {
		w.flushAllPending()
	}
	w.maybeEmitLabel(p)

	if w.Page.Marks[p].Has(DataTable) && !w.Page.Marks[p].Has(Code) {
		w.flushAllPending()
		return w.dataTableBlock(p), false
	}

	lead := w.Page.Data[p]
	_, isCompoundOp := compoundOpChars[lead]
	if lead != '!' && lead != '\\' && !isCompoundOp {
		w.flushAllPending()
	}

	switch {
	case lead == '}' || lead == '>':
		// Every other terminator is consumed silently because its
		// containing construct (while/for/if+else) already knows the
		// body's address-bounded extent and prints its own closing text;
		// this generic case only fires for the older dialect's
		// trailing-'}' conditional (conditionalOrWhile's Ver<System3
		// branch), which has no hole to bound the body and relies on
		// this literal byte to know where it ends.
		if w.Mode == modeEmit {
			fmt.Fprintf(w.Out, "%c\n", lead)
		}
		return p + 1, true
	case lead == '!' || isCompoundOp:
		return w.bang(p), false
	case lead == '{':
		return w.conditionalOrWhile(p), false
	case lead == '@' || lead == '\\' || lead == '&':
		return w.jump(p, lead), false
	case lead == '$':
		return w.menuItem(p), false
	case lead == '[':
		return w.bracket(p), false
	case lead == ':':
		return w.condBracket(p), false
	case lead == '<':
		return w.loop(p), false
	case lead == compiler.KeywordEscape:
		return w.keywordCommand(p), false
	case lead >= 'A' && lead <= 'Z':
		return w.opcodeCommand(p, lead), false
	case lead == '\'' && w.Cfg.QuotedStrings:
		return w.message(p), false
	case isStringLead(lead):
		return w.message(p), false
	}

	w.Page.Annotate(p, Data)
	if w.Mode == modeEmit {
		fmt.Fprintf(w.Out, "%db\n", lead)
	}
	return p + 1, false
}

// dataTableBlock consumes a Phase 1 DataTable region (spec §4.5's
// page-constant tables): the block runs until the next byte the main walk
// has already marked Code, since a data table this decompiler recognizes
// always sits in space no jump/call/loop-back edge ever lands inside of.
// Grounded on decompile.c's data_block, adapted from its own backward-scan
// bookkeeping to this port's forward single-pass Marks array.
func (w *Walker) dataTableBlock(p int) int {
	end := p
	for end < len(w.Page.Data) && !w.Page.Marks[end].Has(Code) {
		end++
	}
	for i := p; i < end; i++ {
		w.Page.Annotate(i, Data)
	}
	if w.Mode == modeEmit {
		if (end-p)%2 != 0 {
			logrus.Warnf("%s: data block at offset %d has odd byte count %d", w.Page.SrcName, p, end-p)
		}
		w.Out.WriteString(dataBlockText(w.Page.Data, p, end))
	}
	return end
}

func (w *Walker) maybeEmitLabel(p int) {
	if !w.Page.Marks[p].Has(Label) || w.Mode != modeEmit {
		return
	}
	if fn := w.Funcs.lookupByAddr(w.Page.Index, uint16(p)); fn != nil && w.Page.Marks[p].Has(FuncTop) {
		w.emitFuncTop(fn)
		return
	}
	fmt.Fprintf(w.Out, "*%s:\n", labelName(p))
}

func (w *Walker) emitFuncTop(fn *Function) {
	name := fn.Name
	if name == "" {
		name = fmt.Sprintf("F_%d_%04x", fn.Page, fn.Addr)
	}
	w.emitFuncHeader(fn, name)
	for _, alias := range fn.Aliases {
		w.emitFuncHeader(fn, alias)
	}
}

// emitFuncHeader prints one `**name arg1, ...:` header line for fn under
// name, reused for both its canonical name and every alias (decompile.c's
// func_labels: "defun(f, f->name)" followed by one defun per f->aliases
// entry, all sharing the same argc/argv).
func (w *Walker) emitFuncHeader(fn *Function, name string) {
	fmt.Fprintf(w.Out, "**%s", name)
	for i := range fn.Argv {
		if i == 0 {
			w.Out.WriteString(" ")
		} else {
			w.Out.WriteString(", ")
		}
		w.Out.WriteString(varName(fn.Argv[i]))
	}
	w.Out.WriteString(":\n")
}

// ---- message strings ----

func (w *Walker) message(p int) int {
	w.Page.Annotate(p, Code|Data)
	if w.Cfg.QuotedStrings {
		text, next := decodeUntilByte(w.Page.Data, p+1, len(w.Page.Data), '\'', true)
		next++ // closing quote
		if w.Page.At(next) == 0 {
			next++ // trailing NUL, always emitted regardless of quoting
		}
		if w.Mode == modeEmit {
			fmt.Fprintf(w.Out, "'%s'\n", text)
		}
		return next
	}
	text, next := decodeStringRun(w.Page.Data, p, len(w.Page.Data), true)
	if w.Mode == modeEmit {
		fmt.Fprintf(w.Out, "'%s'\n", text)
	}
	return next
}

// ---- assignment / for-loop (both begin with '!') ----

func (w *Walker) bang(p int) int {
	lead := w.Page.Data[p]
	lhs, n1, err := cali.Decode(w.Page.Data[p+1:], true)
	if err != nil {
		w.Page.Annotate(p, Data)
		w.runStarts = nil
		return p + 1
	}
	rhsStart := p + 1 + n1
	rhs, n2, err := cali.Decode(w.Page.Data[rhsStart:], false)
	if err != nil {
		w.Page.Annotate(p, Data)
		w.runStarts = nil
		return p + 1
	}
	next := rhsStart + n2

	if lead == '!' && w.Page.At(next) == '<' && w.Page.At(next+1) == 0x00 {
		return w.forLoop(p, lhs, rhs, next+2)
	}

	w.Page.Annotate(p, Code)
	w.pending = append(w.pending, pendingAssign{lhs: lhs, rhs: rhs, op: compoundOpChar(lead)})
	if lead == '!' {
		w.runStarts = append(w.runStarts, p)
	} else {
		w.runStarts = nil
	}
	return next
}

func (w *Walker) flushAllPending() {
	w.flushPending(len(w.pending))
}

func (w *Walker) flushPending(n int) {
	if w.Mode == modeEmit {
		for _, pa := range w.pending[:n] {
			fmt.Fprintf(w.Out, "!%s%s:%s!\n", cali.Print(pa.lhs, varName), pa.op, cali.Print(pa.rhs, varName))
		}
	}
	w.pending = w.pending[n:]
}

// ---- for-loop: `!var,init,end,dir,step:commands>` ----

func (w *Walker) forLoop(p int, lhsNode, initNode *cali.Node, entryPoint int) int {
	w.Page.Annotate(p, ForStart|Code)
	if w.Page.At(entryPoint) != '<' || w.Page.At(entryPoint+1) != 0x01 {
		w.Page.Annotate(p, Data)
		w.runStarts = nil
		return p + 1
	}
	q := entryPoint + 2
	loopEnd := int(le16(w.Page.Data[q:]))
	q += 2

	// The induction variable is re-encoded here (no terminator, followed
	// by an explicit OP_END the compiler appends separately), then the
	// end/direction/step expressions, each a normal cali expression.
	_, n, err := cali.Decode(w.Page.Data[q:], false)
	if err != nil {
		w.Page.Annotate(p, Data)
		w.runStarts = nil
		return p + 1
	}
	q += n
	endNode, n, err := cali.Decode(w.Page.Data[q:], false)
	if err != nil {
		w.Page.Annotate(p, Data)
		return p + 1
	}
	q += n
	dirNode, n, err := cali.Decode(w.Page.Data[q:], false)
	if err != nil {
		w.Page.Annotate(p, Data)
		return p + 1
	}
	q += n
	stepNode, n, err := cali.Decode(w.Page.Data[q:], false)
	if err != nil {
		w.Page.Annotate(p, Data)
		return p + 1
	}
	q += n

	bodyEnd := loopEnd - 3
	if w.Mode == modeEmit {
		fmt.Fprintf(w.Out, "<%s,%s,%s,%s,%s:\n",
			cali.Print(lhsNode, varName), cali.Print(initNode, varName),
			cali.Print(endNode, varName), cali.Print(dirNode, varName), cali.Print(stepNode, varName))
	}
	w.walkBlock(q, bodyEnd)
	w.flushAllPending()
	if w.Mode == modeEmit {
		w.Out.WriteString(">\n")
	}
	w.runStarts = nil
	return loopEnd
}

// ---- conditional / while-loop (both begin with '{') ----

func (w *Walker) conditionalOrWhile(p int) int {
	w.Page.Annotate(p, Code)
	exprStart := p + 1
	node, n, err := cali.Decode(w.Page.Data[exprStart:], false)
	if err != nil {
		w.Page.Annotate(p, Data)
		return p + 1
	}
	afterExpr := exprStart + n

	if w.Cfg.Ver < sysver.System3 {
		// No hole is reserved in this dialect: the then-body is delimited
		// by an explicit trailing '}' byte.
		if w.Mode == modeEmit {
			fmt.Fprintf(w.Out, "{%s:\n", cali.Print(node, varName))
		}
		end := w.walkBlock(afterExpr, noEnd)
		return end
	}

	target := int(le16(w.Page.Data[afterExpr:]))
	bodyStart := afterExpr + 2
	isWhile := target >= p+3 && w.Page.At(target-3) == '>' &&
		int(le16(w.Page.Data[target-2:])) == p

	if isWhile {
		w.Page.Annotate(p, WhileStart)
		bodyEnd := target - 3
		if w.Mode == modeEmit {
			fmt.Fprintf(w.Out, "<@%s:\n", cali.Print(node, varName))
		}
		w.walkBlock(bodyStart, bodyEnd)
		w.flushAllPending()
		if w.Mode == modeEmit {
			w.Out.WriteString(">\n")
		}
		return target
	}

	elseStart, elseEnd, hasElse := w.elseJumpAt(target)
	if w.Mode == modeEmit {
		fmt.Fprintf(w.Out, "{%s:\n", cali.Print(node, varName))
	}
	w.walkBlock(bodyStart, target)
	w.flushAllPending()
	if !hasElse {
		if w.Mode == modeEmit {
			w.Out.WriteString("}\n")
		}
		return target
	}
	if w.Mode == modeEmit {
		w.Out.WriteString("}\n")
	}
	w.emitElse(elseStart, elseEnd)
	return elseEnd
}

// elseJumpAt reports whether a conditional whose then-body ends at
// bodyEnd is immediately followed by an else-branch: an explicit `@` jump
// (three bytes: lead + 2-byte target) that skips over it. disable_else
// (spec §4.5's `disable_else` project setting) suppresses this check
// entirely, treating every conditional as else-less (useful for dialects
// where a plain jump can legitimately follow a conditional with no
// relation to it).
func (w *Walker) elseJumpAt(bodyEnd int) (start, end int, ok bool) {
	if w.Cfg.DisableElse {
		return 0, 0, false
	}
	if w.Page.At(bodyEnd) != '@' {
		return 0, 0, false
	}
	target := int(le16(w.Page.Data[bodyEnd+1:]))
	if target <= bodyEnd {
		return 0, 0, false
	}
	w.Page.Annotate(bodyEnd, Else)
	return bodyEnd + 3, target, true
}

// emitElse prints the else-branch spanning [start,end); when that range
// holds exactly one nested conditional with no else-jump of its own
// skipping past end, it is flattened into `else if {...}:` rather than
// `else {\n{...}\n}` (one level of the spec's "else if" chain sugar).
func (w *Walker) emitElse(start, end int) {
	if w.Page.At(start) == '{' {
		node, n, err := cali.Decode(w.Page.Data[start+1:], false)
		if err == nil {
			afterExpr := start + 1 + n
			if w.Cfg.Ver >= sysver.System3 {
				target := int(le16(w.Page.Data[afterExpr:]))
				bodyStart := afterExpr + 2
				isWhile := target >= start+3 && w.Page.At(target-3) == '>' &&
					int(le16(w.Page.Data[target-2:])) == start
				if !isWhile && target == end {
					w.Page.SetType(start, ElseIf)
					if w.Mode == modeEmit {
						fmt.Fprintf(w.Out, "else if {%s:\n", cali.Print(node, varName))
					}
					w.walkBlock(bodyStart, target)
					w.flushAllPending()
					if w.Mode == modeEmit {
						w.Out.WriteString("}\n")
					}
					return
				}
			}
		}
	}
	if w.Mode == modeEmit {
		w.Out.WriteString("else {\n")
	}
	w.walkBlock(start, end)
	w.flushAllPending()
	if w.Mode == modeEmit {
		w.Out.WriteString("}\n")
	}
}

// ---- `<` dispatch: while vs for share the '{'/'!' lead bytes above, so
// this only handles a bare `<` that begins neither (shouldn't normally be
// reached on well-formed bytecode; treated as a stray data byte). ----

func (w *Walker) loop(p int) int {
	w.Page.Annotate(p, Data)
	if w.Mode == modeEmit {
		fmt.Fprintf(w.Out, "%db\n", w.Page.At(p))
	}
	return p + 1
}

// ---- jump / call: '@', '\\', '&' ----

func (w *Walker) jump(p int, lead byte) int {
	w.Page.Annotate(p, Code)
	target := le16(w.Page.Data[p+1:])
	next := p + 3

	if lead == '\\' && target == 0 {
		w.flushAllPending()
		if w.Mode == modeEmit {
			w.Out.WriteString("\\0\n")
		}
		w.runStarts = nil
		return next
	}

	w.Page.Annotate(int(target), Label)

	if lead != '\\' {
		w.flushAllPending()
		if w.Mode == modeEmit {
			fmt.Fprintf(w.Out, "%c%s\n", lead, labelName(int(target)))
		}
		w.runStarts = nil
		return next
	}

	w.Page.Annotate(int(target), FuncTop)
	fn := w.Funcs.Get(w.Page.Index, target)

	vars, _ := scanAssignmentRun(w.Page.Data, w.runStarts, p)
	claimed, changed := fn.AnalyzeArgs(vars)
	if changed {
		w.Changed = true
	}
	if claimed > 0 {
		idx := len(w.runStarts) - claimed
		w.Page.SetType(w.runStarts[idx], FuncallTop)
	}

	if claimed > len(w.pending) {
		claimed = len(w.pending)
	}
	w.flushPending(len(w.pending) - claimed)
	args := w.pending
	w.pending = nil

	if w.Mode == modeEmit {
		name := fn.Name
		if name == "" {
			name = fmt.Sprintf("F_%d_%04x", fn.Page, fn.Addr)
		}
		fmt.Fprintf(w.Out, "~%s", name)
		for i, pa := range args {
			if i == 0 {
				w.Out.WriteString(" ")
			} else {
				w.Out.WriteString(", ")
			}
			w.Out.WriteString(cali.Print(pa.rhs, varName))
		}
		w.Out.WriteString(":\n")
	}
	w.runStarts = nil
	return next
}

// ---- menu item: `$label$text$` ----

func (w *Walker) menuItem(p int) int {
	w.Page.Annotate(p, Code)
	q := p + 1
	target := int(le16(w.Page.Data[q:]))
	w.Page.Annotate(target, Label)
	q += 2
	if w.Page.At(q) == '$' {
		q++
	}
	var text string
	if w.Page.At(q) != '$' {
		s, next := decodeUntilByte(w.Page.Data, q, len(w.Page.Data), '$', true)
		text = s
		q = next
	}
	if w.Page.At(q) == '$' {
		q++
	}
	if w.Mode == modeEmit {
		fmt.Fprintf(w.Out, "$%s$%s$\n", labelName(target), text)
	}
	return q
}

// ---- verb-object: `[label,verb,obj:` and `:expr,label,verb,obj:` ----

func (w *Walker) bracket(p int) int {
	w.Page.Annotate(p, Code)
	q := p + 1
	verbObj := le16(w.Page.Data[q:])
	q += 2
	target := int(le16(w.Page.Data[q:]))
	w.Page.Annotate(target, Label)
	q += 2
	if w.Mode == modeEmit {
		fmt.Fprintf(w.Out, "[%s,%d,%d:\n", labelName(target), int(verbObj&0xff), int(verbObj>>8))
	}
	return q
}

func (w *Walker) condBracket(p int) int {
	w.Page.Annotate(p, Code)
	exprStart := p + 1
	node, n, err := cali.Decode(w.Page.Data[exprStart:], false)
	if err != nil {
		w.Page.Annotate(p, Data)
		return p + 1
	}
	q := exprStart + n
	verbObj := le16(w.Page.Data[q:])
	q += 2
	target := int(le16(w.Page.Data[q:]))
	w.Page.Annotate(target, Label)
	q += 2
	if w.Mode == modeEmit {
		fmt.Fprintf(w.Out, ":%s,%s,%d,%d:\n", cali.Print(node, varName), labelName(target), int(verbObj&0xff), int(verbObj>>8))
	}
	return q
}

// ---- uppercase opcodes / lowercase keyword commands ----

func (w *Walker) opcodeCommand(p int, lead byte) int {
	w.Page.Annotate(p, Code)
	if lead == 'A' || lead == 'R' {
		if w.Mode == modeEmit {
			fmt.Fprintf(w.Out, "%c\n", lead)
		}
		return p + 1
	}
	op, ok := compiler.LookupOpcode(lead)
	if !ok {
		w.Page.Annotate(p, Data)
		return p + 1
	}
	return w.decodeArgs(p+1, op.Name, op.Signature)
}

func (w *Walker) keywordCommand(p int) int {
	w.Page.Annotate(p, Code)
	sub := w.Page.At(p + 1)
	op, ok := w.keywords[sub]
	if !ok {
		w.Page.Annotate(p, Data)
		return p + 1
	}
	return w.decodeArgs(p+2, op.Name, op.Signature)
}

// decodeArgs decodes a comma-separated argument signature (mirrors
// CompileCtx.compileArgs byte-for-byte, in reverse) and, in emit mode,
// renders `name arg1, arg2:`.
func (w *Walker) decodeArgs(q int, name, sig string) int {
	if sig == "" {
		if w.Mode == modeEmit {
			fmt.Fprintf(w.Out, "%s:\n", name)
		}
		return q
	}
	directives := strings.Split(sig, ",")
	var args []string
	for i, d := range directives {
		if i == 0 && d == "n" && len(directives) > 1 {
			args = append(args, itoa(int(w.Page.At(q))))
			q++
			continue
		}
		switch d {
		case "e":
			node, n, err := cali.Decode(w.Page.Data[q:], false)
			if err != nil {
				return q
			}
			args = append(args, cali.Print(node, varName))
			q += n
		case "n":
			args = append(args, itoa(int(w.Page.At(q))))
			q++
		case "s":
			s, next := decodeUntilByte(w.Page.Data, q, len(w.Page.Data), ':', true)
			args = append(args, "\""+s+"\"")
			q = next + 1
		case "v":
			node, n, err := cali.Decode(w.Page.Data[q:], false)
			if err != nil {
				return q
			}
			args = append(args, cali.Print(node, varName))
			q += n
		case "z":
			s, next := decodeStringRun(w.Page.Data, q, len(w.Page.Data), false)
			args = append(args, "\""+s+"\"")
			q = next
		case "o":
			start := q
			for w.Page.At(q) != 0 {
				q++
			}
			raw := append([]byte(nil), w.Page.Data[start:q]...)
			for i := range raw {
				raw[i] = nibbleSwap(raw[i])
			}
			s, _ := decodeStringRun(raw, 0, len(raw), false)
			args = append(args, "\""+s+"\"")
			q++ // consume the NUL
		}
	}
	if w.Mode == modeEmit {
		fmt.Fprintf(w.Out, "%s %s:\n", name, strings.Join(args, ","))
	}
	return q
}
