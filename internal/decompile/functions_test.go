package decompile

import (
	"strings"
	"testing"
)

func TestFunctionRenameAccumulatesAliases(t *testing.T) {
	f := &Function{}
	f.Rename("page0_0010")
	f.Rename("page0_0010") // same name again: not an alias
	f.Rename("common_0010")
	f.Rename("common_0010") // duplicate alias: not appended twice

	if f.Name != "page0_0010" {
		t.Fatalf("Name = %q, want the first name assigned", f.Name)
	}
	if want := []string{"common_0010"}; !equalStrings(f.Aliases, want) {
		t.Fatalf("Aliases = %v, want %v", f.Aliases, want)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEmitFuncTopPrintsEveryAlias(t *testing.T) {
	fn := &Function{Name: "page0_0002", Aliases: []string{"common_0002"}}
	var out strings.Builder
	w := &Walker{Out: &out}
	w.emitFuncTop(fn)

	got := out.String()
	want := "**page0_0002:\n**common_0002:\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if !strings.Contains(got, "**common_0002:") {
		t.Fatalf("alias header missing from %q", got)
	}
}
