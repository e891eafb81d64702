package lower

import (
	"lumac/internal/ast"
	"lumac/internal/diag"
	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// LowerFileTopLevel emits a file's top-level statements into a synthetic
// `<path>..init` function, the same global-constructor convention the
// static-field initializers use, so top-level side effects land inside a
// real region of the emitted module instead of floating outside every
// function. Each file gets its own lexical scope; cross-file references
// resolve through the shared namespace, not through top-level locals.
func (c *Context) LowerFileTopLevel(path string, stmts []ast.Stmt) {
	name := path + "..init"
	if _, ok := c.Module.Function(name); ok {
		return
	}
	irFn := &ir.Function{Name: name, Type: types.NewFunction(types.FuncSig{Return: types.TVoid}), Entry: ir.NewRegion(nil), Personality: c.ABI.Personality()}
	c.Module.AddFunction(irFn)

	restore := c.Builder.InsertionGuard()
	entry := c.Builder.NewRegionBlock(irFn.Entry, "entry")
	c.Builder.SetInsertionPointToEnd(entry)
	c.Builder.Entry(nil)

	fileCtx := c.fork(symtab.NewScope(c.Scope), nil)
	fileCtx.RegionPath = append(fileCtx.RegionPath, irFn.Entry)
	fileCtx.LowerBlockFixedPoint(stmts)
	c.Builder.Exit(nil)
	restore()
}

// LowerBlockFixedPoint implements spec.md §4.3/§7's ordering guarantee:
// statements inside a block lower in source order except for a
// dependency-fixed-point loop that retries a statement whose symbolic
// dependencies are not yet bound (a forward reference to a later
// declaration in the same block), terminating either when every statement
// succeeds or when a full pass makes no further progress -- at which point
// an error is reported at the first still-unresolved statement's location
// (spec.md §4.3 "this guarantees ... compilation fails deterministically").
// Confluent: which order independent successful statements retry in never
// changes the emitted IR, since each one only ever commits once, in its own
// original source position within pending.
func (c *Context) LowerBlockFixedPoint(stmts []ast.Stmt) {
	pending := stmts
	for len(pending) > 0 {
		var remaining []ast.Stmt
		progressed := false
		for _, s := range pending {
			if c.tryCommitStmt(s) {
				progressed = true
				continue
			}
			remaining = append(remaining, s)
		}
		if len(remaining) == 0 {
			return
		}
		if !progressed {
			c.Diags.Errorf(diag.UnresolvedSymbol, remaining[0].Range(), "statement could not be resolved: unbound symbolic dependency")
			return
		}
		pending = remaining
	}
}

// tryCommitStmt probes s under a forked child scope and a scratch region so
// a failed attempt -- one that reports diag.UnresolvedSymbol -- leaves
// neither stray IR nor stray declarations in the real block (mirroring
// func.go's dummyRun scratch-region/diagnostic-buffer discard pattern).
// On success it re-lowers s for real at the caller's actual insertion
// point, committing its declarations into the caller's own scope.
func (c *Context) tryCommitStmt(s ast.Stmt) bool {
	probe := c.fork(symtab.NewScope(c.Scope), c.ReturnType)
	probe.Discovery = c.Discovery
	probe.discoveredReturn = c.discoveredReturn
	probe.currentTry = c.currentTry
	probe.controlStack = append([]controlFrame(nil), c.controlStack...)
	probe.probing = true

	scratch := ir.NewRegion(nil)
	restore := c.Builder.InsertionGuard()
	blk := c.Builder.NewRegionBlock(scratch, "probe")
	c.Builder.SetInsertionPointToEnd(blk)

	c.Diags.BeginBuffer()
	probe.LowerStmt(s)
	msgs := c.Diags.EndBuffer(false)
	restore()

	if hasUnresolvedSymbol(msgs) {
		return false
	}

	c.LowerStmt(s)
	return true
}

func hasUnresolvedSymbol(msgs []diag.Message) bool {
	for _, m := range msgs {
		if m.Kind == diag.UnresolvedSymbol {
			return true
		}
	}
	return false
}
