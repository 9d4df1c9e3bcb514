package compiler

import "github.com/kichikuou/sys3c/internal/sys3err"

// SymbolKind distinguishes a name bound to a variable slot from one bound
// to a constant value (spec §3 "Symbol").
type SymbolKind int

const (
	SymVariable SymbolKind = iota
	SymConstant
)

// Symbol is a name bound once, for the lifetime of the compilation unit,
// to either a variable index or a constant value. Redefining a name under
// a different kind is a semantic error.
type Symbol struct {
	Kind  SymbolKind
	Value int // variable index, or constant value
}

// SymbolTable is the single global scope shared by every page of a
// compilation unit (spec §3: "Symbols live in a global scope per
// compilation unit").
type SymbolTable struct {
	byName    map[string]*Symbol
	variables []string // variable index -> display name, in definition order
}

// NewSymbolTable returns an empty table, optionally pre-seeded with a
// known variable list (e.g. loaded from a project's *.txt variable
// list), so variable indices match a prior compile.
func NewSymbolTable(knownVariables []string) *SymbolTable {
	t := &SymbolTable{byName: make(map[string]*Symbol)}
	for _, name := range knownVariables {
		t.defineVariable(name)
	}
	return t
}

func (t *SymbolTable) defineVariable(name string) *Symbol {
	s := &Symbol{Kind: SymVariable, Value: len(t.variables)}
	t.variables = append(t.variables, name)
	t.byName[name] = s
	return s
}

// Variables returns the variable table in index order.
func (t *SymbolTable) Variables() []string {
	return t.variables
}

// Lookup returns the symbol bound to name, or nil.
func (t *SymbolTable) Lookup(name string) *Symbol {
	return t.byName[name]
}

// DefineVariable returns name's existing variable symbol, or creates one
// on first use. It is an error for name to already be bound to a
// constant.
func (t *SymbolTable) DefineVariable(name string) (*Symbol, error) {
	if s, ok := t.byName[name]; ok {
		if s.Kind != SymVariable {
			return nil, sys3err.New(sys3err.Semantic, "%q is already defined as a constant", name)
		}
		return s, nil
	}
	return t.defineVariable(name), nil
}

// DefineConstant binds name to value. Redefinition under a different
// value, or as a variable, is an error.
func (t *SymbolTable) DefineConstant(name string, value int) error {
	if s, ok := t.byName[name]; ok {
		if s.Kind != SymConstant {
			return sys3err.New(sys3err.Semantic, "%q is already defined as a variable", name)
		}
		if s.Value != value {
			return sys3err.New(sys3err.Semantic, "constant %q redefined with a different value", name)
		}
		return nil
	}
	t.byName[name] = &Symbol{Kind: SymConstant, Value: value}
	return nil
}
