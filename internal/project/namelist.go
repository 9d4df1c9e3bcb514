package project

import (
	"bufio"
	"os"
	"strings"

	"github.com/kichikuou/sys3c/internal/sys3err"
)

// ReadNameList reads a plain `*.txt` name list (spec §6: variables,
// verbs, or objects — one name per line), right-trimming each line and
// dropping any trailing empty lines, matching the source's
// read_var_list/trim_right convention.
func ReadNameList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sys3err.New(sys3err.IO, "open name list %s: %v", path, err)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		names = append(names, strings.TrimRight(sc.Text(), " \t\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, sys3err.New(sys3err.IO, "read name list %s: %v", path, err)
	}
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	return names, nil
}

// WriteNameList writes names one per line.
func WriteNameList(path string, names []string) error {
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return sys3err.New(sys3err.IO, "write name list %s: %v", path, err)
	}
	return nil
}
