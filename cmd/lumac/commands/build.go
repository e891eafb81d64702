// cmd/lumac/commands/build.go
package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"lumac/internal/ast"
	"lumac/internal/astjson"
	"lumac/internal/config"
	"lumac/internal/diag"
	"lumac/internal/driver"
)

// BuildCommand compiles the JSON-encoded AST at args[0] (a single source
// file, or a JSON array of source files -- see internal/astjson.DecodeFile
// vs DecodeProgram) into one linked IR module and reports the result. It
// takes the place of the teacher's build.Builder.Build, which walked a
// project directory of .sn files straight from disk; this core has no
// lexer/parser of its own, so the input here is always an already-parsed
// tree an external front end produced (spec.md §1 Non-goals).
func BuildCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: lumac build <ast.json>")
	}

	files, err := loadSourceFiles(args[0])
	if err != nil {
		return err
	}

	opts := optionsFromEnv()
	result, buildErr := driver.Build(context.Background(), files, opts)

	printer := diag.NewPrinter(os.Stderr)
	if result != nil {
		printer.Print(result.Diags)
	}
	if buildErr != nil {
		return buildErr
	}

	fmt.Printf("lumac: built %d function(s), %d global(s), %d layout global(s)\n",
		len(result.Module.Functions), len(result.Module.Globals), len(result.LayoutGlobals.Globals))
	if os.Getenv("LUMAC_VERBOSE") == "1" {
		printLayoutSizes(printer, result)
	}
	return nil
}

// printLayoutSizes reports each laid-out class's storage footprint, one
// word-sized slot per storage-tuple field (the same slot model the typed-GC
// bitmap uses), in deterministic name order.
func printLayoutSizes(printer *diag.Printer, result *driver.Result) {
	names := make([]string, 0, len(result.Classes.Classes))
	for name := range result.Classes.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		storage := result.Classes.StorageTuple(name)
		if storage == nil {
			continue
		}
		printer.PrintLayoutSize(name, uint64(len(storage.Fields))*8)
	}
}

// loadSourceFiles reads path and decodes it as either one source file or a
// JSON array of source files, dispatching on the leading non-whitespace
// byte the way a small CLI reasonably can without a full content sniff.
func loadSourceFiles(path string) ([]*ast.SourceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lumac: read %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return astjson.DecodeProgram(data)
	}
	f, err := astjson.DecodeFile(data)
	if err != nil {
		return nil, err
	}
	return []*ast.SourceFile{f}, nil
}

// optionsFromEnv builds a config.Options from LUMAC_-prefixed environment
// variables, falling back to config.Default() -- the same unadorned,
// flag-library-free configuration surface the teacher's BuildConfig used,
// generalized from a sentra.json project manifest to a few env toggles
// since this core has no project/manifest concept of its own.
func optionsFromEnv() config.Options {
	opts := config.Default()
	if v := os.Getenv("LUMAC_EXCEPTION_ABI"); v == string(config.ABIMSVC) {
		opts.ExceptionABI = config.ABIMSVC
	}
	if v := os.Getenv("LUMAC_NUMBER_PRECISION"); v == string(config.PrecisionF32) {
		opts.NumberPrecision = config.PrecisionF32
	}
	if os.Getenv("LUMAC_DISABLE_GC") == "1" {
		opts.DisableGC = true
	}
	if os.Getenv("LUMAC_ANY_AS_DEFAULT") == "1" {
		opts.AnyAsDefault = true
	}
	if os.Getenv("LUMAC_DISABLE_RTTI") == "1" {
		opts.EnableRTTI = false
	}
	opts.BuildCacheDSN = os.Getenv("LUMAC_BUILD_CACHE_DSN")
	opts.WatchAddr = os.Getenv("LUMAC_WATCH_ADDR")
	return opts
}
