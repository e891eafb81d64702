package lower

import (
	"strconv"

	"lumac/internal/ast"
	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// lowerGeneratorBody implements spec.md §4.3/§8's generator desugaring:
// "generator functions are rewritten to a state machine keyed by a resume
// step, each `yield` suspending at its own numbered resume point." The
// function body is split at each top-level `yield` statement into
// segments; a switch on a hidden `step` variable dispatches straight into
// whichever segment the next call should resume at, and the segment that
// contains a yield advances `step` past itself before its YieldReturnVal
// (already emitted by the ordinary LowerExpr path for *ast.YieldExpr)
// suspends execution there.
//
// Nesting a yield inside an if/while/for/etc. is not split into its own
// resume point by this pass -- only top-level statements in the function
// body are segment boundaries. A yield nested in a structured control op
// still lowers correctly as an ordinary YieldReturnVal, it just shares its
// enclosing segment's resume point rather than getting one of its own.
func (c *Context) lowerGeneratorBody(fn *ast.FunctionExpr) {
	segments := splitYieldSegments(fn.Body)

	stepType := types.NewInt(32, false)
	stepRef := c.Builder.Variable(stepType, c.Builder.Constant(stepType, int64(0)))
	sym := &symtab.Symbol{Name: "step", Type: types.NewRef(stepType), Mutable: true, At: fn.Range(), IgnoreForCapture: true, Def: stepRef}
	c.Scope.Declare(sym, false)

	step := c.Builder.Load(stepRef)
	opLabel := c.pushControl("", false)
	defer c.popControl()

	regions := make([]*ir.Region, 0, len(segments)+1)
	regions = append(regions, ir.NewRegion(nil))
	for range segments {
		regions = append(regions, ir.NewRegion(nil))
	}
	op := c.Builder.NewOp(ir.KSwitch, opLabel, nil, nil, regions)

	restore := c.Builder.InsertionGuard()
	discBlk := c.Builder.NewRegionBlock(op.Regions[0], "step")
	c.Builder.SetInsertionPointToEnd(discBlk)
	c.Builder.Result(step)

	for i, seg := range segments {
		blk := c.Builder.NewRegionBlock(op.Regions[i+1], "state"+strconv.Itoa(i))
		c.Builder.SetInsertionPointToEnd(blk)
		c.withChildScope(func() {
			c.Builder.Condition(c.Builder.Constant(stepType, int64(i)))
			if i == len(segments)-1 {
				c.LowerBlockFixedPoint(seg)
				return
			}
			// Every segment but the last ends with its yield statement.
			c.LowerBlockFixedPoint(seg[:len(seg)-1])
			next := c.Builder.Constant(stepType, int64(i+1))
			c.Builder.Store(next, stepRef)
			c.LowerStmt(seg[len(seg)-1])
		})
	}
	restore()
}

// splitYieldSegments partitions body into runs of statements, each run
// ending right after a top-level `yield` expression statement (inclusive)
// except the last, which runs to the end of the function with no trailing
// yield.
func splitYieldSegments(body []ast.Stmt) [][]ast.Stmt {
	var segments [][]ast.Stmt
	var current []ast.Stmt
	for _, s := range body {
		current = append(current, s)
		if stmtIsYield(s) {
			segments = append(segments, current)
			current = nil
		}
	}
	if len(current) > 0 || len(segments) == 0 {
		segments = append(segments, current)
	}
	return segments
}

func stmtIsYield(s ast.Stmt) bool {
	es, ok := s.(*ast.ExprStmt)
	if !ok {
		return false
	}
	_, ok = es.Expr.(*ast.YieldExpr)
	return ok
}
