// Command sys3c compiles System 1/2/3 scenario source pages into an ALD
// or DRI volume archive (spec §4.7's "archive assembler"), following
// original_source/compiler/sys3c.c's page order (a `.hed` listing, or
// source files named directly on the command line), two-pass symbol
// preprocessing, per-page compile, and volume-letter output naming.
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/kichikuou/sys3c/internal/archive"
	"github.com/kichikuou/sys3c/internal/compiler"
	"github.com/kichikuou/sys3c/internal/project"
	"github.com/kichikuou/sys3c/internal/sys3err"
)

func main() {
	app := &cli.App{
		Name:      "sys3c",
		Usage:     "compile System 1/2/3 scenario sources into an archive",
		Version:   "0.1.0",
		ArgsUsage: "[source.adv ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "o", Usage: "output archive path", Value: "ADISK.ALD"},
			&cli.BoolFlag{Name: "g", Usage: "emit a debug-symbol sibling file"},
			&cli.StringFlag{Name: "G", Usage: "game id"},
			&cli.StringFlag{Name: "E", Usage: "encoding: s (CP932) or u (UTF-8)"},
			&cli.StringFlag{Name: "i", Usage: "header (.hed) file listing source pages"},
			&cli.StringFlag{Name: "p", Usage: "project config file"},
			&cli.BoolFlag{Name: "u", Usage: "Unicode output (shorthand for -Eu)"},
			&cli.StringFlag{Name: "V", Usage: "variable name list"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		sys3err.Fatal(err)
	}
}

func run(ctx *cli.Context) error {
	cfg := project.DefaultConfig()
	if p := ctx.String("p"); p != "" {
		var err error
		cfg, err = project.Load(p)
		if err != nil {
			return err
		}
	}
	project.ApplyEnvOverrides(&cfg)

	if h := ctx.String("i"); h != "" {
		cfg.Hed = h
	}
	if g := ctx.String("G"); g != "" {
		cfg.Game = g
	}
	if e := ctx.String("E"); e != "" {
		switch e {
		case "s":
			cfg.Unicode = false
		case "u":
			cfg.Unicode = true
		default:
			return sys3err.New(sys3err.Syntactic, "unknown -E encoding %q", e)
		}
	}
	if ctx.Bool("u") {
		cfg.Unicode = true
	}
	if ctx.Bool("g") {
		cfg.Debug = true
	}
	if v := ctx.String("V"); v != "" {
		cfg.Variables = v
	}
	output := ctx.String("o")

	var sourcePaths []string
	if cfg.Hed != "" {
		paths, err := project.ReadHeaderFile(cfg.Hed)
		if err != nil {
			return err
		}
		sourcePaths = paths
	} else {
		sourcePaths = ctx.Args().Slice()
	}
	if len(sourcePaths) == 0 {
		return sys3err.New(sys3err.IO, "no source pages given (use -i <hed> or list sources directly)")
	}

	var knownVars []string
	if cfg.Variables != "" {
		vars, err := project.ReadNameList(cfg.Variables)
		if err != nil {
			return err
		}
		knownVars = vars
	}

	sources := make([]string, len(sourcePaths))
	for i, p := range sourcePaths {
		b, err := os.ReadFile(p)
		if err != nil {
			return sys3err.New(sys3err.IO, "read source %s: %v", p, err)
		}
		sources[i] = string(b)
	}

	ccfg := cfg.CompilerConfig()
	symbols := compiler.NewSymbolTable(knownVars)
	for i, src := range sources {
		if err := compiler.PreprocessPage(ccfg, symbols, src, sourcePaths[i], i); err != nil {
			return err
		}
	}

	entries := make([]*archive.Entry, len(sources))
	var volumeUnion uint32
	for i, src := range sources {
		buf, bits, err := compiler.CompilePageWithVolume(ccfg, symbols, src, sourcePaths[i], i)
		if err != nil {
			return err
		}
		entries[i] = &archive.Entry{ID: i + 1, Data: buf.Bytes(), VolumeBits: bits}
		volumeUnion |= bits
	}
	for _, e := range entries {
		if e.VolumeBits == 0 {
			e.VolumeBits = 1 << 1 // no pragma ald_volume/dri_volume: the page lives in volume 1
			volumeUnion |= e.VolumeBits
		}
	}

	format := archive.ALD
	if strings.EqualFold(filepath.Ext(output), ".dri") {
		format = archive.DRI
	}
	if err := writeVolumes(format, entries, volumeUnion, output); err != nil {
		return err
	}

	if cfg.Verbs != "" || cfg.Objects != "" {
		if err := writeAG00(cfg, output); err != nil {
			return err
		}
	}

	logrus.Infof("compiled %d page(s) into %s", len(entries), output)
	return nil
}

// writeVolumes writes one archive file per set bit in volumeMask,
// substituting the output path's basename-leading letter for every
// volume past the first (sys3c.c's build: `*base += i - 1`, requiring
// the unmodified name to start with 'A').
func writeVolumes(format archive.Format, entries []*archive.Entry, volumeMask uint32, output string) error {
	for v := 1; v <= archive.MaxVolume; v++ {
		if volumeMask&(1<<uint(v)) == 0 {
			continue
		}
		path := output
		if v != 1 {
			dir, base := filepath.Split(output)
			if len(base) == 0 || (base[0] != 'A' && base[0] != 'a') {
				return sys3err.New(sys3err.Semantic, "cannot determine output filename for volume %d from %q", v, output)
			}
			letter := base[0] + byte(v-1)
			path = filepath.Join(dir, string(letter)+base[1:])
		}
		data := archive.WriteVolume(format, entries, v)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return sys3err.New(sys3err.IO, "write archive %s: %v", path, err)
		}
	}
	return nil
}

// writeAG00 writes the verb/object sibling table next to the output
// archive, reusing whatever name lists the project config named (spec
// §4.7: "sibling files ... written only when their source inputs are
// present").
func writeAG00(cfg project.Config, output string) error {
	var verbs, objects []string
	var err error
	if cfg.Verbs != "" {
		if verbs, err = project.ReadNameList(cfg.Verbs); err != nil {
			return err
		}
	}
	if cfg.Objects != "" {
		if objects, err = project.ReadNameList(cfg.Objects); err != nil {
			return err
		}
	}
	dir := filepath.Dir(output)
	path := filepath.Join(dir, "AG00.DAT")
	return project.WriteVerbObjectTable(path, &project.VerbObjectTable{
		Uk1: cfg.Ag00Uk1, Uk2: cfg.Ag00Uk2, Verbs: verbs, Objects: objects,
	})
}
