package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kichikuou/sys3c/internal/sysver"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestLoadParsesRecognizedKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sys3c.cfg", []byte(
		"sys_ver = 3.9\n"+
			"encoding = sjis\n"+
			"hed = sources.hed\n"+
			"debug = true\n"+
			"ag00_uk1 = 7\n"+
			"# a stray comment-looking line = an unrecognized key, ignored\n",
	))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sysver.System3Ain, cfg.Ver)
	assert.Equal(t, "sjis", cfg.Encoding)
	assert.False(t, cfg.Unicode)
	assert.Equal(t, "sources.hed", cfg.Hed)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 7, cfg.Ag00Uk1)
}

func TestLoadRejectsUnknownSysVer(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sys3c.cfg", []byte("sys_ver = 9.9\n"))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestParseSysVerAcceptsOriginalOptionStrings(t *testing.T) {
	cases := map[string]sysver.SysVer{
		"1":   sysver.System1,
		"3.5": sysver.System2,
		"3.8": sysver.System3,
		"3.9": sysver.System3Ain,
		"S380": sysver.System3Ain,
	}
	for in, want := range cases {
		got, err := ParseSysVer(in)
		require.NoErrorf(t, err, "ParseSysVer(%q)", in)
		assert.Equalf(t, want, got, "ParseSysVer(%q)", in)
	}
}

func TestReadHeaderFileRecognizesSystem35Section(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sources.hed", []byte(
		"; a leading comment\n"+
			"#SYSTEM35\n"+
			"initial.adv ; trailing comment\n"+
			"scene1.adv\n"+
			"\x1a garbage after DOS EOF\n",
	))

	sources, err := ReadHeaderFile(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, filepath.Join(dir, "initial.adv"), sources[0])
	assert.Equal(t, filepath.Join(dir, "scene1.adv"), sources[1])
}

func TestReadHeaderFileRejectsSourceBeforeSection(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sources.hed", []byte("initial.adv\n"))
	_, err := ReadHeaderFile(path)
	assert.Error(t, err)
}

func TestReadHeaderFileRejectsUnknownSection(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sources.hed", []byte("#BOGUS\n"))
	_, err := ReadHeaderFile(path)
	assert.Error(t, err)
}

func TestVerbObjectTableRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AG00.DAT")
	want := &VerbObjectTable{
		Uk1:     1,
		Uk2:     2,
		Verbs:   []string{"look", "take", "use"},
		Objects: []string{"door", "key"},
	}
	require.NoError(t, WriteVerbObjectTable(path, want))

	got, err := ReadVerbObjectTable(path)
	require.NoError(t, err)
	assert.Equal(t, want.Uk1, got.Uk1)
	assert.Equal(t, want.Uk2, got.Uk2)
	assert.Equal(t, want.Verbs, got.Verbs)
	assert.Equal(t, want.Objects, got.Objects)
}

func TestReadVerbObjectTableRejectsOversizedCounts(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "AG00.DAT", []byte("0,300,0,0\r\x1a"))
	_, err := ReadVerbObjectTable(path)
	assert.Error(t, err)
}

func TestReadNameListStripsTrailingEmptyLines(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "variables.txt", []byte("FLAG1\nFLAG2\n\n\n"))
	names, err := ReadNameList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"FLAG1", "FLAG2"}, names)
}

func TestConfigCompilerConfigProjectsDialectFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ver = sysver.System3Ain
	cfg.QuotedStrings = true

	cc := cfg.CompilerConfig()
	assert.Equal(t, sysver.System3Ain, cc.Ver)
	assert.True(t, cc.QuotedStrings)
	assert.True(t, cc.CompactKana)
}
