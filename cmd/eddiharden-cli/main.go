// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"eddiharden/internal/cfc"
	"eddiharden/internal/diag"
	"eddiharden/internal/harden"
	"eddiharden/internal/irtext"
	"eddiharden/internal/report"
)

func main() {
	var (
		mode       = flag.String("duplication-mode", "eddi", "eddi, seddi, or fdsc")
		memmap     = flag.String("alternate-memmap", "off", "on or off: interleaved vs segregated layout")
		section    = flag.String("duplicate-section", ".dup", "section name for duplicated globals")
		debugInfo  = flag.String("debug-info", "on", "on or off: whether duplicates inherit debug locations")
		cfcMode    = flag.String("cfc-mode", "", "cfcss, rasm, inter-rasm, or empty to skip control-flow checking")
		out        = flag.String("o", "", "output path for the hardened IR text (default: stdout)")
		csvOut     = flag.String("report", "", "output path for the CSV side-output (default: none)")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: eddiharden-cli [flags] <file.ir>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	path := flag.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("failed to read %s: %s", path, err)
		os.Exit(1)
	}

	m, err := irtext.ParseModule(path, string(source))
	if err != nil {
		color.Red("failed to parse %s: %s", path, err)
		os.Exit(1)
	}

	cfg, err := configFromFlags(*mode, *memmap, *section, *debugInfo)
	if err != nil {
		color.Red("%s", err)
		os.Exit(1)
	}

	rep := diag.NewReporter()
	result, err := harden.Run(m, cfg, rep)
	if err != nil {
		fmt.Print(rep.Format())
		color.Red("hardening aborted: %s", err)
		os.Exit(1)
	}

	if mode := cfc.Mode(*cfcMode); mode != "" {
		if _, err := cfc.Run(m, result.Annotations, mode); err != nil {
			color.Red("control-flow checking pass failed: %s", err)
			os.Exit(1)
		}
	}

	if rep.HasErrors() {
		fmt.Print(rep.Format())
		color.Red("❌ hardening completed with errors")
		os.Exit(1)
	}
	if len(rep.Diagnostics()) > 0 {
		fmt.Print(rep.Format())
	}

	rendered := irtext.Render(m)
	if *out == "" {
		fmt.Print(rendered)
	} else if err := os.WriteFile(*out, []byte(rendered), 0o644); err != nil {
		color.Red("failed to write %s: %s", *out, err)
		os.Exit(1)
	}

	if *csvOut != "" {
		if err := writeReport(*csvOut, result.DuplicatedFunctions); err != nil {
			color.Red("failed to write %s: %s", *csvOut, err)
			os.Exit(1)
		}
	}

	color.Green("✅ hardened %s (%d functions duplicated)", path, len(result.DuplicatedFunctions))
}

func configFromFlags(mode, memmap, section, debugInfo string) (*harden.Config, error) {
	cfg := harden.NewConfig()
	switch harden.DuplicationMode(mode) {
	case harden.ModeEDDI, harden.ModeSEDDI, harden.ModeFDSC:
		cfg.SetDuplicationMode(harden.DuplicationMode(mode))
	default:
		return nil, fmt.Errorf("unknown duplication-mode %q", mode)
	}
	switch memmap {
	case "on":
		cfg.AlternateMemmap = true
	case "off":
		cfg.AlternateMemmap = false
	default:
		return nil, fmt.Errorf("alternate-memmap must be on or off, got %q", memmap)
	}
	switch debugInfo {
	case "on":
		cfg.DebugInfo = true
	case "off":
		cfg.DebugInfo = false
	default:
		return nil, fmt.Errorf("debug-info must be on or off, got %q", debugInfo)
	}
	cfg.DuplicateSection = section
	return cfg, nil
}

func writeReport(path string, names []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return report.Write(f, report.RunID(), names)
}
