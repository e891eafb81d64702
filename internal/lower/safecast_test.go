package lower

import (
	"testing"

	"lumac/internal/ast"
	"lumac/internal/classlayout"
	"lumac/internal/config"
	"lumac/internal/diag"
	"lumac/internal/generics"
	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

func newTestContext() *Context {
	diags := diag.NewSink()
	table := symtab.NewTable("test")
	c := NewContext(ir.NewModule("test"), diags, table, generics.NewEngine(diags), classlayout.NewArena(diags), config.Default())
	c.Namespace = table.Root
	c.Scope = symtab.NewScope(nil)
	fn := &ir.Function{Name: "test", Entry: ir.NewRegion(nil)}
	c.Module.AddFunction(fn)
	blk := c.Builder.NewRegionBlock(fn.Entry, "entry")
	c.Builder.SetInsertionPointToEnd(blk)
	c.RegionPath = append(c.RegionPath, fn.Entry)
	return c
}

func TestTypeofSafeCastShadowsOnlyInThenBranch(t *testing.T) {
	c := newTestContext()
	union := types.Union(types.TString, types.NewFloat(64))
	c.Scope.Declare(&symtab.Symbol{Name: "x", Type: union}, false)

	cond := &ast.BinaryExpr{
		Op:    "===",
		Left:  &ast.UnaryExpr{Op: "typeof", Operand: &ast.Identifier{Name: "x"}},
		Right: &ast.Literal{Kind: ast.LitString, Value: "string"},
	}
	c.lowerIf(&ast.IfStmt{Cond: cond, Then: &ast.ExprStmt{Expr: &ast.Identifier{Name: "x"}}})

	ifOp := c.Builder.CurrentBlock().Terminator()
	if ifOp == nil || ifOp.Kind != ir.KIf {
		t.Fatalf("expected a trailing if op")
	}
	thenOps := ifOp.Regions[1].Blocks[0].Ops
	if len(thenOps) == 0 {
		t.Fatalf("expected ops in the then branch")
	}
	ref := thenOps[0].Result0()
	if ref == nil || !ref.Type.Equal(types.TString) {
		t.Fatalf("expected x refined to string inside the then branch, got %v", ref)
	}

	sym, _ := c.Scope.Lookup("x")
	if !sym.Type.Equal(union) {
		t.Fatalf("expected x to keep its union type after the if, got %s", sym.Type.String())
	}
}

func TestLiteralEqualitySafeCastRefinesToLiteralOf(t *testing.T) {
	c := newTestContext()
	c.Scope.Declare(&symtab.Symbol{Name: "mode", Type: types.TString}, false)

	cond := &ast.BinaryExpr{Op: "===", Left: &ast.Identifier{Name: "mode"}, Right: &ast.Literal{Kind: ast.LitString, Value: "fast"}}
	ref, ok := c.detectRefinement(cond)
	if !ok {
		t.Fatalf("expected a refinement to be detected")
	}
	if ref.name != "mode" || ref.refined.Kind != types.LiteralOf {
		t.Fatalf("expected literal-of refinement for mode, got %+v", ref)
	}
	if !ref.refined.LiteralBase.Equal(types.TString) {
		t.Fatalf("expected literal base string, got %s", ref.refined.LiteralBase.String())
	}
}

func TestNonDiscriminatingConditionYieldsNoRefinement(t *testing.T) {
	c := newTestContext()
	cond := &ast.BinaryExpr{Op: "<", Left: &ast.Identifier{Name: "a"}, Right: &ast.Identifier{Name: "b"}}
	if _, ok := c.detectRefinement(cond); ok {
		t.Fatalf("expected no refinement for an ordering comparison")
	}
}
