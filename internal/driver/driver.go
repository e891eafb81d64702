// Package driver orchestrates a whole-program build: it turns a set of
// parsed source files into one linked internal/ir.Module, running the
// registration and lowering passes internal/lower exposes in the order
// spec.md §4.3/§5 requires (see internal/ast.SourceFile's doc comment:
// "declaration registration, then dependency-fixed-point lowering").
//
// Grounded on the teacher's internal/build.Builder, which resolves a
// project's module dependency graph before linking (spec.md's equivalent
// of Builder.Build's loadManifest/compile/link sequence), generalized from
// a manifest-driven multi-package link to a single compiled program: this
// core has no package system of its own, only file-to-file imports, so
// "linking" here is simply "every file shares one Namespace/Table/Module".
package driver

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	llvmir "github.com/llir/llvm/ir"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"lumac/internal/ast"
	"lumac/internal/buildcache"
	"lumac/internal/classlayout"
	"lumac/internal/config"
	"lumac/internal/diag"
	"lumac/internal/generics"
	"lumac/internal/ir"
	"lumac/internal/llvmglobals"
	"lumac/internal/lower"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// Result is one Build call's output: the typed IR module plus the
// LLVM-level layout globals (RTTI strings, vtables, per-interface vtables,
// typed-GC descriptors) spec.md §6 lists under "Outputs produced".
type Result struct {
	Module        *ir.Module
	LayoutGlobals *llvmir.Module
	Classes       *classlayout.Arena
	Diags         *diag.Sink
}

// Build lowers files into a single linked ir.Module (spec.md §4: a lumac
// build produces one compiled program, see DESIGN.md's Open Question
// decision on sharing one symtab.Table/Namespace across every file rather
// than partitioning by package).
//
// Files are grouped into dependency batches from their top-level
// ast.ImportDecl graph (spec.md §5 "parallelism is only at the coarse
// grain of compiling independent modules concurrently") and each batch is
// dispatched through an errgroup.Group. The mutation every goroutine in a
// batch shares -- one Namespace, one Table, one ir.Module/Builder -- is
// critical-sectioned by mu: internal/ir.Builder's single current-insertion-
// point cursor and internal/symtab.Namespace's unsynchronized short-name
// maps are not safe for concurrent mutation, so each file's whole step runs
// with mu held and the files of one batch compile one at a time: "coarse
// grain" here is the batch ordering, not concurrent IR emission. A batch
// with a real dependency
// cycle still compiles correctly -- BindStmt/DeclareStmt's own two-pass
// split already tolerates forward references -- it just loses the
// scheduling benefit of being split into smaller batches.
func Build(ctx context.Context, files []*ast.SourceFile, opts config.Options) (*Result, error) {
	return BuildWithListener(ctx, files, opts, nil)
}

// BuildWithListener is Build with diags.Listener wired to listener before
// any pass runs, so every diagnostic reported during binding, declaration,
// or lowering reaches it as it happens rather than only once compilation
// finishes. cmd/lumac's watch command uses this to hand internal/watchserver
// a live feed (spec.md §7: watch mode observes the fixed-point loop "as it
// makes progress"); a nil listener makes this identical to Build.
func BuildWithListener(ctx context.Context, files []*ast.SourceFile, opts config.Options, listener func(diag.Message)) (*Result, error) {
	batches := orderByDependency(files)

	diags := diag.NewSink()
	diags.Listener = listener
	module := ir.NewModule("program")
	table := symtab.NewTable("program")
	gen := generics.NewEngine(diags)
	classes := classlayout.NewArena(diags)

	if opts.BuildCacheDSN != "" {
		cache, err := buildcache.Open(opts.BuildCacheDSN)
		if err != nil {
			return nil, fmt.Errorf("driver: open build cache: %w", err)
		}
		defer cache.Close()
		gen.Persist = cache
	}

	root := lower.NewContext(module, diags, table, gen, classes, opts)
	root.Namespace = table.Root
	root.Scope = symtab.NewScope(nil)

	// Wires internal/generics' emission step back into internal/lower
	// without an import cycle: the first time a generic function's
	// specialization is emitted, its body is lowered once under the
	// specialized symbol, in its own declaring namespace rather than the
	// namespace of whichever call site triggered the specialization.
	gen.Materializer = func(info *generics.Info, symbol string, bindings map[string]*types.Type) {
		fn, ok := info.Node.(*ast.FunctionExpr)
		if !ok {
			return
		}
		ns, ok := table.NamespaceByFullName(info.Namespace)
		if !ok {
			ns = table.Root
		}
		root.MaterializeSpecialization(ns, fn, bindings, symbol)
	}

	// Same wiring for class/interface specializations: the first emission of
	// a (name, bindings) pair registers a specialized arena record (and, for
	// classes, method bodies) under the `Name<Args>` symbol, so `new
	// Box<number>()` gets its own storage layout, vtable, and constructor
	// rather than borrowing the unspecialized template's.
	gen.LayoutMaterializer = func(info *generics.Info, symbol string, bindings map[string]*types.Type) {
		ns, ok := table.NamespaceByFullName(info.Namespace)
		if !ok {
			ns = table.Root
		}
		switch n := info.Node.(type) {
		case *ast.ClassDecl:
			root.MaterializeClassSpecialization(ns, n, bindings, symbol)
		case *ast.InterfaceDecl:
			root.MaterializeInterfaceSpecialization(ns, n, bindings, symbol)
		}
	}

	var mu sync.Mutex

	runBatched := func(step func(f *ast.SourceFile)) error {
		for _, batch := range batches {
			g, gctx := errgroup.WithContext(ctx)
			for _, f := range batch {
				f := f
				g.Go(func() error {
					if err := gctx.Err(); err != nil {
						return err
					}
					mu.Lock()
					defer mu.Unlock()
					step(f)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
		}
		return nil
	}

	// Pass one: bind every declaration's short name everywhere, across
	// every file, before any file's pass two or body lowering can resolve a
	// cross-file or forward reference against it.
	if err := runBatched(func(f *ast.SourceFile) {
		for _, stmt := range f.Stmts {
			root.BindStmt(stmt)
		}
	}); err != nil {
		return nil, err
	}

	// Pass two: shape each declaration's arena record / generics template
	// now that every name in the program resolves.
	if err := runBatched(func(f *ast.SourceFile) {
		for _, stmt := range f.Stmts {
			root.DeclareStmt(stmt)
		}
	}); err != nil {
		return nil, err
	}

	// Pass three: lower class method bodies, then every file's own
	// dependency-fixed-point top-level statement ordering (spec.md §4.3).
	if err := runBatched(func(f *ast.SourceFile) {
		root.LowerClassBodies(f.Stmts)
		root.LowerFileTopLevel(f.Path, f.Stmts)
	}); err != nil {
		return nil, err
	}

	// Layout-global emission: every laid-out class (templates and
	// specializations alike, in deterministic name order) materializes its
	// RTTI string, vtable, per-interface vtables, and typed-GC descriptor
	// as concrete LLVM globals -- the artifact shape a downstream machine-
	// code lowering consumes (spec.md §6 "Outputs produced").
	emitter := llvmglobals.NewEmitter(classes)
	classNames := maps.Keys(classes.Classes)
	slices.Sort(classNames)
	for _, name := range classNames {
		emitter.EmitClass(name)
	}

	result := &Result{Module: module, LayoutGlobals: emitter.Module, Classes: classes, Diags: diags}
	if diags.HasErrors() {
		return result, fmt.Errorf("driver: compilation failed:\n%s", diags.String())
	}
	return result, nil
}

// orderByDependency groups files into dependency batches by their top-level
// ast.ImportDecl graph: batch 0 holds every file with no unresolved
// same-unit import, batch 1 every file whose imports are all satisfied by
// batch 0, and so on (a textbook Kahn's-algorithm topological layering). An
// import naming a path outside the compiled unit (a builtin or an
// already-built dependency) is simply not an edge -- it can never block a
// file from batch 0.
//
// A residual cycle (every remaining file still has an unresolved in-unit
// import once no further progress is possible) is not an error: it is
// flushed as one final batch. BindStmt/DeclareStmt's split already makes
// same-batch forward references safe, so a cyclic batch only loses
// scheduling parallelism, never correctness.
func orderByDependency(files []*ast.SourceFile) [][]*ast.SourceFile {
	byPath := make(map[string]*ast.SourceFile, len(files))
	for _, f := range files {
		byPath[normalizeImportPath(f.Path)] = f
	}

	deps := make(map[*ast.SourceFile]map[*ast.SourceFile]bool, len(files))
	for _, f := range files {
		depSet := map[*ast.SourceFile]bool{}
		for _, stmt := range f.Stmts {
			imp, ok := stmt.(*ast.ImportDecl)
			if !ok {
				continue
			}
			target, ok := byPath[normalizeImportPath(imp.Path)]
			if !ok || target == f {
				continue
			}
			depSet[target] = true
		}
		deps[f] = depSet
	}

	remaining := append([]*ast.SourceFile(nil), files...)
	var batches [][]*ast.SourceFile
	satisfied := map[*ast.SourceFile]bool{}

	for len(remaining) > 0 {
		var ready, stuck []*ast.SourceFile
		for _, f := range remaining {
			ok := true
			for dep := range deps[f] {
				if !satisfied[dep] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, f)
			} else {
				stuck = append(stuck, f)
			}
		}
		if len(ready) == 0 {
			// Cycle: flush everything left as one final batch rather than
			// looping forever.
			batches = append(batches, stuck)
			break
		}
		batches = append(batches, ready)
		for _, f := range ready {
			satisfied[f] = true
		}
		remaining = stuck
	}
	return batches
}

// normalizeImportPath strips a trailing source extension and any leading
// "./" so an ast.ImportDecl.Path naming a sibling file by either its bare
// module name or its literal file path still matches that file's own
// ast.SourceFile.Path.
func normalizeImportPath(p string) string {
	p = strings.TrimPrefix(p, "./")
	return strings.TrimSuffix(p, filepath.Ext(p))
}
