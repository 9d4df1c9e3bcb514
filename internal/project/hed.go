package project

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/kichikuou/sys3c/internal/sys3err"
)

// ReadHeaderFile reads a `.hed` header listing (spec §6), following the
// source's read_hed: lines are read until one that begins with a literal
// 0x1A (DOS EOF) byte,
// a `;` starts a line comment, and only lines inside the `#SYSTEM35`
// section are recognized as page source paths (any other `#` line is an
// unknown-section error; a source line before any section header is a
// syntax error). Paths are returned joined against path's directory, as
// the compiler's page ordering expects.
func ReadHeaderFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sys3err.New(sys3err.IO, "open header file %s: %v", path, err)
	}
	defer f.Close()
	dir := filepath.Dir(path)

	const (
		sectionNone = iota
		sectionSystem35
	)
	section := sectionNone

	var sources []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.IndexByte(line, 0x1a) == 0 {
			break
		}
		if strings.HasPrefix(line, "#") {
			trimmed := strings.TrimRight(line, " \t\r")
			if trimmed != "#SYSTEM35" {
				return nil, sys3err.New(sys3err.Syntactic, "%s: unknown section %s", path, trimmed)
			}
			section = sectionSystem35
			continue
		}
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}
		if section != sectionSystem35 {
			return nil, sys3err.New(sys3err.Syntactic, "%s: syntax error", path)
		}
		sources = append(sources, filepath.Join(dir, line))
	}
	if err := sc.Err(); err != nil {
		return nil, sys3err.New(sys3err.IO, "read header file %s: %v", path, err)
	}
	return sources, nil
}

// WriteHeaderFile writes a `.hed` listing of sourceNames (base filenames,
// not full paths) under a single `#SYSTEM35` section, matching
// init_project's scaffold output.
func WriteHeaderFile(path string, sourceNames []string) error {
	var b strings.Builder
	b.WriteString("#SYSTEM35\n")
	for _, name := range sourceNames {
		b.WriteString(name)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return sys3err.New(sys3err.IO, "write header file %s: %v", path, err)
	}
	return nil
}
