package decompile

import "github.com/kichikuou/sys3c/internal/cali"

// Function records one decompiled function's identity and its inferred
// parameter list. A function is simply a Label referenced by a `\`-call
// (decompile.c's "Label call"); Page/Addr together name that label's
// page-local 2-byte address, matching this port's uniform label width
// (see DESIGN.md's addressing-width note). A function reachable under
// more than one label gets its extra names recorded as Aliases (spec
// §4.6: "synthesized aliases for functions reachable by multiple
// names").
type Function struct {
	Name    string
	Page    int
	Addr    uint16
	Aliases []string

	// Argc is the confirmed parameter count: -1 means "no call site
	// analyzed yet", 0 means "confirmed to take no arguments".
	Argc int
	// Argv holds the confirmed parameter variable IDs, in call order.
	// Grounded on decompile.c's analyze_args: the lattice is the longest
	// common suffix, across every call site seen so far, of the chain of
	// `!var:expr!` assignments immediately preceding the call.
	Argv []int
}

// FunctionTable deduplicates Function records by (page, addr) across an
// entire decompile run, since the same function may be called from
// several pages.
type FunctionTable struct {
	byAddr map[funcKey]*Function
}

type funcKey struct {
	page int
	addr uint16
}

func NewFunctionTable() *FunctionTable {
	return &FunctionTable{byAddr: make(map[funcKey]*Function)}
}

// Get returns the Function for (page, addr), creating an unnamed one on
// first sight. An unnamed function is printed under the emitter's
// `F_<page>_<addr>` fallback (spec §4.6); a page with a known source name
// instead gets `<stem>_<addr>`, set by the caller via Rename once the
// owning page is known.
func (ft *FunctionTable) Get(page int, addr uint16) *Function {
	key := funcKey{page, addr}
	if f, ok := ft.byAddr[key]; ok {
		return f
	}
	f := &Function{Page: page, Addr: addr, Argc: -1}
	ft.byAddr[key] = f
	return f
}

// lookupByAddr returns the Function already recorded at (page, addr)
// without creating one, for the emitter's label-printing path (which must
// not conjure a function out of an ordinary jump target).
func (ft *FunctionTable) lookupByAddr(page int, addr uint16) *Function {
	return ft.byAddr[funcKey{page, addr}]
}

// Rename assigns f's display name from the owning page's source name
// stem plus the function's address (decompile.c's get_function). A
// function already named under a different stem keeps its first name and
// records stem as an Aliases entry instead of discarding it, so a
// function reachable under more than one synthesized name still gets
// every one of them printed (spec §4.6's "synthesized aliases for
// functions reachable by multiple names"; emitted by emitFuncTop).
func (f *Function) Rename(stem string) {
	if f.Name == "" {
		f.Name = stem
		return
	}
	if stem == f.Name {
		return
	}
	for _, a := range f.Aliases {
		if a == stem {
			return
		}
	}
	f.Aliases = append(f.Aliases, stem)
}

// AnalyzeArgs updates fn's parameter-lattice from one call site: the run
// of consecutive `!var:expr!` assignments, given as their target variable
// ids in assignVars (oldest first), immediately preceding a call at callAddr.
// A zero-length assignVars (no candidate run, e.g. the call is not
// preceded by any assignment) records Argc=0 once and otherwise leaves
// an already-wider lattice alone, mirroring analyze_args's
// !topaddr_candidate-is-zero early return.
//
// Returns the number of leading assignments (out of assignVars) that
// belong to the confirmed parameter prefix, so the caller can annotate
// the matching FuncallTop offset (the rest of the run is ordinary code,
// per spec §4.5: a lattice that narrows can "un-claim" a previously
// claimed assignment), and whether this call changed fn's lattice at all
// — the multi-pass driver (analyze.go) uses that to detect a fixed
// point, since re-processing an already-stable call site must not look
// like forward progress.
func (fn *Function) AnalyzeArgs(assignVars []int) (claimed int, changed bool) {
	if len(assignVars) == 0 {
		if fn.Argc == -1 {
			fn.Argc = 0
			return 0, true
		}
		return 0, false
	}
	if fn.Argc == -1 {
		fn.Argv = append([]int(nil), assignVars...)
		fn.Argc = len(assignVars)
		return fn.Argc, true
	}

	// Find the longest common suffix of assignVars and fn.Argv.
	suffix := 0
	for suffix < len(assignVars) && suffix < len(fn.Argv) &&
		assignVars[len(assignVars)-1-suffix] == fn.Argv[len(fn.Argv)-1-suffix] {
		suffix++
	}
	if suffix < len(fn.Argv) {
		fn.Argv = fn.Argv[len(fn.Argv)-suffix:]
		fn.Argc = suffix
		return suffix, true
	}
	return suffix, false
}

// scanAssignmentRun walks backward from callAddr over a page's bytes
// counting consecutive `!var:expr!` statements (each taken from runStarts,
// the assignment start offsets the main byte-walk recorded), decoding each
// assignment's LHS variable id with cali.Decode in left-hand-side mode.
// vars is returned oldest-first; start is the offset of the first
// (oldest) assignment in the run, or callAddr if there is none.
func scanAssignmentRun(data []byte, runStarts []int, callAddr int) (vars []int, start int) {
	start = callAddr
	for i := len(runStarts) - 1; i >= 0; i-- {
		addr := runStarts[i]
		if addr >= callAddr || data[addr] != '!' {
			break
		}
		node, _, err := cali.Decode(data[addr+1:], true)
		if err != nil || node.Kind != cali.Variable {
			break
		}
		vars = append([]int{node.Var}, vars...)
		start = addr
	}
	return vars, start
}
