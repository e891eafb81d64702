package lower

import (
	"lumac/internal/ast"
	"lumac/internal/diag"
	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// LowerStmt dispatches one statement node, appending ops to the builder's
// current block (spec.md §4.3).
func (c *Context) LowerStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.Block:
		c.LowerBlockFixedPoint(n.Stmts)
	case *ast.ExprStmt:
		c.LowerExpr(n.Expr)
	case *ast.VariableStmt:
		c.lowerVariableStmt(n)
	case *ast.FunctionDecl:
		c.lowerFunctionDecl(n)
	case *ast.ReturnStmt:
		c.lowerReturn(n)
	case *ast.IfStmt:
		c.lowerIf(n)
	case *ast.WhileStmt:
		c.lowerWhile(n)
	case *ast.DoWhileStmt:
		c.lowerDoWhile(n)
	case *ast.ForStmt:
		c.lowerFor(n)
	case *ast.ForInStmt:
		c.lowerForIn(n)
	case *ast.ForOfStmt:
		c.lowerForOf(n)
	case *ast.BreakStmt:
		c.lowerBreak(n)
	case *ast.ContinueStmt:
		c.lowerContinue(n)
	case *ast.LabeledStmt:
		c.lowerLabeled(n)
	case *ast.SwitchStmt:
		c.lowerSwitch(n)
	case *ast.TryStmt:
		c.lowerTry(n)
	case *ast.ThrowStmt:
		c.lowerThrow(n)
	case *ast.ModuleDecl:
		c.lowerModuleBody(n)
	case *ast.ImportDecl, *ast.ImportEqualsDecl, *ast.EnumDecl, *ast.TypeAliasDecl,
		*ast.ClassDecl, *ast.InterfaceDecl:
		// Declarations that only affect the namespace/arena state are
		// registered ahead of body lowering by the driver; nothing to emit
		// here.
	default:
		panic(diag.Bug("lower: unhandled statement node %T", s))
	}
}

func (c *Context) lowerVariableStmt(n *ast.VariableStmt) {
	for _, decl := range n.Decls {
		c.lowerVarDecl(decl, n.Kind, n.Range())
	}
}

func (c *Context) lowerVarDecl(decl *ast.VarDecl, kind ast.VarKind, at diag.Location) {
	var declaredType *types.Type
	if decl.Type != nil {
		declaredType = c.ResolveType(decl.Type)
	}

	var init *ir.Value
	if decl.Init != nil {
		init = c.LowerExpr(decl.Init)
	}

	valType := declaredType
	if valType == nil {
		if init != nil {
			valType = init.Type
		} else if c.Options.AnyAsDefault {
			c.Diags.Warnf(diag.MissingType, at, "variable %q has no declared type; defaulting to any", decl.Name)
			valType = types.TAny
		} else {
			c.Diags.Errorf(diag.MissingType, at, "variable %q has no declared type", decl.Name)
			valType = types.TAny
		}
	}

	if decl.Pattern != nil {
		if init == nil {
			return
		}
		c.bindPattern(decl.Pattern, init, kind != ast.VarConst)
		return
	}

	mutable := kind != ast.VarConst
	storageType := valType
	if mutable {
		storageType = types.NewRef(valType)
	}

	ref := c.Builder.Variable(valType, init)
	sym := &symtab.Symbol{Name: decl.Name, Type: storageType, Mutable: mutable, At: at, Def: ref}
	c.Scope.Declare(sym, kind != ast.VarVar)
	if init != nil && declaredType != nil && !init.Type.Equal(declaredType) {
		c.Builder.Store(c.coerce(init, declaredType), ref)
	}
}

func (c *Context) bindPattern(p ast.Pattern, source *ir.Value, mutable bool) {
	switch t := p.(type) {
	case *ast.IdentifierPattern:
		ref := c.Builder.Variable(source.Type, source)
		sym := &symtab.Symbol{Name: t.Name, Type: types.NewRef(source.Type), Mutable: mutable, At: p.Range(), Def: ref}
		c.Scope.Declare(sym, true)
	case *ast.ArrayPattern:
		elem := elementTypeOf(source.Type)
		for i, el := range t.Elements {
			if el == nil {
				continue
			}
			idx := c.Builder.Constant(types.NewInt(64, false), i)
			item := c.Builder.Load(c.Builder.ElementRef(source, idx, elem))
			c.bindPattern(el, item, mutable)
		}
		if t.Rest != "" {
			sym := &symtab.Symbol{Name: t.Rest, Type: types.NewRef(source.Type), Mutable: mutable, At: p.Range()}
			c.Scope.Declare(sym, true)
		}
	case *ast.ObjectPattern:
		for i, key := range t.Keys {
			ref, _, ok := c.resolveProperty(source, key, p.Range())
			if !ok || ref == nil || i >= len(t.Elements) {
				continue
			}
			item := c.Builder.Load(ref)
			c.bindPattern(t.Elements[i], item, mutable)
		}
		if t.Rest != "" {
			sym := &symtab.Symbol{Name: t.Rest, Type: types.NewRef(source.Type), Mutable: mutable, At: p.Range()}
			c.Scope.Declare(sym, true)
		}
	}
}

// lowerModuleBody descends into a nested `module Foo { ... }` block's own
// namespace (already created by the declaration pass) and runs the same
// dependency-fixed-point ordering over its body that a top-level file gets
// (spec.md §4.2 nested namespaces).
func (c *Context) lowerModuleBody(n *ast.ModuleDecl) {
	child, ok := c.Namespace.Children[n.Name]
	if !ok {
		return
	}
	saved := c.Namespace
	c.Namespace = child
	c.LowerBlockFixedPoint(n.Body)
	c.Namespace = saved
}

func (c *Context) lowerFunctionDecl(n *ast.FunctionDecl) {
	if len(n.Fn.TypeParams) > 0 {
		// A generic is never emitted itself, only specialized (spec.md §4.4);
		// internal/lower/declare.go already registered its template in
		// internal/generics.Engine during the declaration pass.
		return
	}
	full := n.Fn.Name
	if c.Namespace != nil {
		if resolved, _, ok := c.Namespace.Lookup(n.Fn.Name, nil); ok {
			full = resolved
		}
	}
	c.LowerFunction(n.Fn, full)
}

// lowerReturn implements spec.md §4.3's return semantics: `return;` lowers
// to the bare return op in a void context; `return expr;` in a non-void
// context casts expr to the declared return type and stores it through
// the function's return-val op (or, if partial-resolve buffering is
// active via an open diagnostic buffer, is still emitted -- buffering only
// withholds the diagnostic, never the IR).
func (c *Context) lowerReturn(n *ast.ReturnStmt) {
	if n.Value == nil {
		if c.discoveredReturn != nil {
			c.observeReturn(types.TVoid)
		} else if c.ReturnType != nil && c.ReturnType.Kind != types.Void {
			c.Diags.Errorf(diag.ReturnInVoidContext, n.Range(), "return without a value in a function that returns %s", c.ReturnType.String())
		}
		c.Builder.Return()
		return
	}
	value := c.LowerExpr(n.Value)
	if c.discoveredReturn != nil {
		c.observeReturn(value.Type)
		c.Builder.ReturnVal(value)
		return
	}
	if c.ReturnType != nil && c.ReturnType.Kind == types.Void {
		c.Diags.Errorf(diag.ReturnInVoidContext, n.Range(), "return with a value in a void function")
		c.Builder.Return()
		return
	}
	if c.ReturnType != nil {
		value = c.coerce(value, c.ReturnType)
	}
	c.Builder.ReturnVal(value)
}

func (c *Context) lowerIf(n *ast.IfStmt) {
	regions := []*ir.Region{ir.NewRegion(nil), ir.NewRegion(nil)}
	hasElse := n.Else != nil
	if hasElse {
		regions = append(regions, ir.NewRegion(nil))
	}
	ifOp := c.Builder.NewOp(ir.KIf, "", nil, nil, regions)

	restore := c.Builder.InsertionGuard()
	condBlk := c.Builder.NewRegionBlock(ifOp.Regions[0], "cond")
	c.Builder.SetInsertionPointToEnd(condBlk)
	cond := c.LowerExpr(n.Cond)
	c.Builder.Condition(cond)

	thenBlk := c.Builder.NewRegionBlock(ifOp.Regions[1], "then")
	c.Builder.SetInsertionPointToEnd(thenBlk)
	ref, okRef := c.detectRefinement(n.Cond)
	c.withRefinement(ref, okRef, func() { c.LowerStmt(n.Then) })

	if hasElse {
		elseBlk := c.Builder.NewRegionBlock(ifOp.Regions[2], "else")
		c.Builder.SetInsertionPointToEnd(elseBlk)
		c.LowerStmt(n.Else)
	}
	restore()
}

// lowerWhile assembles a `while(cond-region, body-region)` op (spec.md
// §4.1), reusing lowerIf's region-by-region assembly pattern. The
// construct's own synthetic label is what break/continue inside the body
// reference, via the shared controlStack (spec.md §9 "pass the label
// explicitly").
func (c *Context) lowerWhile(n *ast.WhileStmt) {
	opLabel := c.pushControl(n.Label, true)
	defer c.popControl()

	regions := []*ir.Region{ir.NewRegion(nil), ir.NewRegion(nil)}
	op := c.Builder.NewOp(ir.KWhile, opLabel, nil, nil, regions)

	restore := c.Builder.InsertionGuard()
	condBlk := c.Builder.NewRegionBlock(op.Regions[0], "cond")
	c.Builder.SetInsertionPointToEnd(condBlk)
	c.Builder.Condition(c.LowerExpr(n.Cond))

	bodyBlk := c.Builder.NewRegionBlock(op.Regions[1], "body")
	c.Builder.SetInsertionPointToEnd(bodyBlk)
	c.withChildScope(func() { c.LowerStmt(n.Body) })
	restore()
}

// lowerDoWhile mirrors lowerWhile with the body region preceding the
// condition region (spec.md §4.1 "do-while(body-region, cond-region)").
func (c *Context) lowerDoWhile(n *ast.DoWhileStmt) {
	opLabel := c.pushControl(n.Label, true)
	defer c.popControl()

	regions := []*ir.Region{ir.NewRegion(nil), ir.NewRegion(nil)}
	op := c.Builder.NewOp(ir.KDoWhile, opLabel, nil, nil, regions)

	restore := c.Builder.InsertionGuard()
	bodyBlk := c.Builder.NewRegionBlock(op.Regions[0], "body")
	c.Builder.SetInsertionPointToEnd(bodyBlk)
	c.withChildScope(func() { c.LowerStmt(n.Body) })

	condBlk := c.Builder.NewRegionBlock(op.Regions[1], "cond")
	c.Builder.SetInsertionPointToEnd(condBlk)
	c.Builder.Condition(c.LowerExpr(n.Cond))
	restore()
}

// lowerFor assembles a `for(cond-region, body-region, incr-region)` op
// (spec.md §4.1). The init clause is lowered into the enclosing block
// before the op so an `init` variable declaration is scoped to the whole
// loop via withChildScope, matching a C-style for's block scoping.
func (c *Context) lowerFor(n *ast.ForStmt) {
	c.withChildScope(func() {
		switch init := n.Init.(type) {
		case *ast.VariableStmt:
			c.lowerVariableStmt(init)
		case *ast.ExprStmt:
			c.LowerExpr(init.Expr)
		}

		opLabel := c.pushControl(n.Label, true)
		defer c.popControl()

		regions := []*ir.Region{ir.NewRegion(nil), ir.NewRegion(nil), ir.NewRegion(nil)}
		op := c.Builder.NewOp(ir.KFor, opLabel, nil, nil, regions)

		restore := c.Builder.InsertionGuard()
		condBlk := c.Builder.NewRegionBlock(op.Regions[0], "cond")
		c.Builder.SetInsertionPointToEnd(condBlk)
		if n.Cond != nil {
			c.Builder.Condition(c.LowerExpr(n.Cond))
		} else {
			c.Builder.NoCondition()
		}

		bodyBlk := c.Builder.NewRegionBlock(op.Regions[1], "body")
		c.Builder.SetInsertionPointToEnd(bodyBlk)
		c.withChildScope(func() { c.LowerStmt(n.Body) })

		incrBlk := c.Builder.NewRegionBlock(op.Regions[2], "incr")
		c.Builder.SetInsertionPointToEnd(incrBlk)
		if n.Update != nil {
			c.LowerExpr(n.Update)
		}
		restore()
	})
}

// resolveControlFrame finds the innermost controlStack frame a break (any
// breakable construct) or continue (loop only) targets: a bare label binds
// to the nearest qualifying frame; a named label binds to the frame that
// carries it regardless of loop-ness (a labeled non-loop block is still a
// valid break target, spec.md §4.1 "labeled-statement").
func (c *Context) resolveControlFrame(label string, requireLoop bool) (controlFrame, bool) {
	for i := len(c.controlStack) - 1; i >= 0; i-- {
		f := c.controlStack[i]
		if label == "" {
			if requireLoop && !f.loop {
				continue
			}
			return f, true
		}
		if f.userLabel == label {
			return f, true
		}
	}
	return controlFrame{}, false
}

func (c *Context) lowerBreak(n *ast.BreakStmt) {
	frame, ok := c.resolveControlFrame(n.Label, false)
	if !ok {
		c.Diags.Errorf(diag.UnknownLabel, n.Range(), "break targets unknown label %q", n.Label)
		return
	}
	c.Builder.Break(frame.opLabel)
}

func (c *Context) lowerContinue(n *ast.ContinueStmt) {
	frame, ok := c.resolveControlFrame(n.Label, true)
	if !ok {
		c.Diags.Errorf(diag.UnknownLabel, n.Range(), "continue targets unknown label %q", n.Label)
		return
	}
	c.Builder.Continue(frame.opLabel)
}

// lowerLabeled implements spec.md §4.1's labeled statement: when the body
// is itself a loop, the label attaches directly to that loop's own
// controlStack frame (set on the AST node so `pushControl` picks it up
// without this function needing a second frame). Otherwise the label names
// a one-shot construct solely so an inner `break label;` has something to
// resolve against.
func (c *Context) lowerLabeled(n *ast.LabeledStmt) {
	switch body := n.Body.(type) {
	case *ast.WhileStmt:
		if body.Label == "" {
			body.Label = n.Label
		}
		c.lowerWhile(body)
	case *ast.DoWhileStmt:
		if body.Label == "" {
			body.Label = n.Label
		}
		c.lowerDoWhile(body)
	case *ast.ForStmt:
		if body.Label == "" {
			body.Label = n.Label
		}
		c.lowerFor(body)
	case *ast.ForInStmt:
		if body.Label == "" {
			body.Label = n.Label
		}
		c.lowerForIn(body)
	case *ast.ForOfStmt:
		if body.Label == "" {
			body.Label = n.Label
		}
		c.lowerForOf(body)
	default:
		c.lowerLabeledBlock(n.Label, n.Body)
	}
}

// lowerLabeledBlock gives a labeled non-loop statement a breakable target:
// a one-shot while(false) whose body is the statement itself, so `break
// label;` inside it resolves through the ordinary controlStack mechanism
// rather than needing a distinct unlabeled-block op kind.
func (c *Context) lowerLabeledBlock(label string, body ast.Stmt) {
	opLabel := c.pushControl(label, false)
	defer c.popControl()

	regions := []*ir.Region{ir.NewRegion(nil), ir.NewRegion(nil)}
	op := c.Builder.NewOp(ir.KWhile, opLabel, nil, nil, regions)

	restore := c.Builder.InsertionGuard()
	condBlk := c.Builder.NewRegionBlock(op.Regions[0], "cond")
	c.Builder.SetInsertionPointToEnd(condBlk)
	c.Builder.Condition(c.Builder.Constant(types.TBool, false))

	bodyBlk := c.Builder.NewRegionBlock(op.Regions[1], "body")
	c.Builder.SetInsertionPointToEnd(bodyBlk)
	c.withChildScope(func() { c.LowerStmt(body) })
	restore()
}

// lowerSwitch assembles a `switch(disc-region, case-region...)` op. Each
// case region leads with `condition(test)` (or `no-condition()` for the
// default case), mirroring how `for`'s cond region distinguishes a present
// from an absent test. Per spec.md §1 the final linearization of these
// structured, branch-target-free ops into real jump code is an explicitly
// out-of-scope downstream pass; case fallthrough is therefore left for that
// pass to interpret from adjacency, the same way break/continue are left as
// unresolved markers here rather than wired to a concrete block.
func (c *Context) lowerSwitch(n *ast.SwitchStmt) {
	opLabel := c.pushControl("", false)
	defer c.popControl()

	regions := make([]*ir.Region, 0, len(n.Cases)+1)
	regions = append(regions, ir.NewRegion(nil))
	for range n.Cases {
		regions = append(regions, ir.NewRegion(nil))
	}
	op := c.Builder.NewOp(ir.KSwitch, opLabel, nil, nil, regions)

	restore := c.Builder.InsertionGuard()
	discBlk := c.Builder.NewRegionBlock(op.Regions[0], "disc")
	c.Builder.SetInsertionPointToEnd(discBlk)
	disc := c.LowerExpr(n.Disc)
	c.Builder.Result(disc)

	for i, cs := range n.Cases {
		blk := c.Builder.NewRegionBlock(op.Regions[i+1], "case")
		c.Builder.SetInsertionPointToEnd(blk)
		c.withChildScope(func() {
			if cs.Test != nil {
				c.Builder.Condition(c.LowerExpr(*cs.Test))
			} else {
				c.Builder.NoCondition()
			}
			for _, s := range cs.Body {
				c.LowerStmt(s)
			}
		})
	}
	restore()
}

// lowerTry assembles a `try(body-region, catch-region?, finally-region?)`
// op (spec.md §4.7). Before lowering the body, the enclosing try's catch
// block is published on the Context so any throw/call/new deep inside picks
// it up as its invoke's unwind target (the same mechanism lowerCall and
// lowerNew already use).
func (c *Context) lowerTry(n *ast.TryStmt) {
	hasCatch := n.CatchBlock != nil
	hasFinally := n.Finally != nil

	regions := []*ir.Region{ir.NewRegion(nil)}
	if hasCatch {
		regions = append(regions, ir.NewRegion(nil))
	}
	if hasFinally {
		regions = append(regions, ir.NewRegion(nil))
	}
	op := c.Builder.NewOp(ir.KTry, "", nil, nil, regions)

	restore := c.Builder.InsertionGuard()
	bodyBlk := c.Builder.NewRegionBlock(op.Regions[0], "body")

	var catchBlk *ir.Block
	if hasCatch {
		catchBlk = c.Builder.NewRegionBlock(op.Regions[1], "catch")
	}

	savedTry := c.currentTry
	if hasCatch {
		c.currentTry = &tryTargets{catchesBlock: catchBlk}
	}
	c.Builder.SetInsertionPointToEnd(bodyBlk)
	c.withChildScope(func() {
		for _, s := range n.Block.Stmts {
			c.LowerStmt(s)
		}
	})
	c.currentTry = savedTry

	if hasCatch {
		c.Builder.SetInsertionPointToEnd(catchBlk)
		c.withChildScope(func() {
			exc := c.Builder.Catch(n.CatchParam, types.TAny)
			if n.CatchPattern != nil {
				c.bindPattern(n.CatchPattern, c.Builder.Load(exc), true)
			} else if n.CatchParam != "" {
				sym := &symtab.Symbol{Name: n.CatchParam, Type: exc.Type, Mutable: true, At: n.Range(), Def: exc}
				c.Scope.Declare(sym, false)
			}
			for _, s := range n.CatchBlock.Stmts {
				c.LowerStmt(s)
			}
		})
	}

	if hasFinally {
		idx := 1
		if hasCatch {
			idx = 2
		}
		finallyBlk := c.Builder.NewRegionBlock(op.Regions[idx], "finally")
		c.Builder.SetInsertionPointToEnd(finallyBlk)
		c.withChildScope(func() {
			for _, s := range n.Finally.Stmts {
				c.LowerStmt(s)
			}
		})
	}
	restore()
}

// lowerThrow implements spec.md §4.7's throw lowering, delegating the exact
// ABI sequence to the configured exceptions.Lowering (Itanium or MSVC,
// spec.md §4.7/REDESIGN FLAGS). Both ABI implementations already end the
// current block themselves (invoke-with-unwind inside a try, or
// invoke-then-unreachable at top level), so lowerThrow never emits a
// trailing terminator of its own.
func (c *Context) lowerThrow(n *ast.ThrowStmt) {
	var normal, unwind *ir.Block
	if c.currentTry != nil {
		normal = c.Builder.CurrentBlock()
		unwind = c.currentTry.catchesBlock
	}
	if n.Value == nil {
		c.ABI.LowerRethrow(c.Module, c.Builder, normal, unwind)
		return
	}
	value := c.LowerExpr(n.Value)
	c.ABI.LowerThrow(c.Module, c.Builder, value, value.Type, normal, unwind)
}
