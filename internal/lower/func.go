package lower

import (
	"lumac/internal/ast"
	"lumac/internal/closure"
	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// LowerFunction implements spec.md §4.6's two-pass function lowering: a
// disposable dummy-run discovers the function's inferred return type (when
// unannotated) and its captured outer variables, then a real pass emits
// the function with an amended signature (capture tuple prepended when
// non-empty) and, for a generator, a desugared state-machine body
// (spec.md §4.3 "Generator functions are rewritten...").
//
// It returns the emitted Function and the captures discovered for it, so
// callers in value position (lowerFunctionExpr) can build the
// create-bound-function wrapper without re-running discovery.
func (c *Context) LowerFunction(fn *ast.FunctionExpr, fullName string) (*ir.Function, []closure.Capture) {
	if existing, ok := c.Module.Function(fullName); ok {
		return existing, nil
	}

	sig := c.buildParamSig(fn)

	declaredReturn := sig.Return
	discovery, inferredReturn := c.dummyRun(fn, sig)
	returnType := declaredReturn
	if returnType == nil {
		returnType = inferredReturn
	}
	sig.Return = returnType

	captures := discovery.Captures()
	captureType := closure.TupleType(captures)
	if len(captures) > 0 {
		sig = closure.PrependCaptureParam(sig, captureType)
		if !c.probing {
			closure.MarkCaptured(captures)
		}
	}

	fnType := types.NewFunction(sig)
	irFn := &ir.Function{Name: fullName, Type: fnType, Entry: ir.NewRegion(nil), Personality: c.ABI.Personality()}
	if len(captures) > 0 {
		irFn.CaptureTupleID = closure.TupleID(captures)
		for _, capt := range captures {
			irFn.CaptureNames = append(irFn.CaptureNames, capt.Name)
		}
	}
	// A probing pass builds the function floating -- its regions are
	// reachable only through the returned value and die with the probe --
	// so a discarded probe never registers a function the real pass would
	// then skip re-lowering (spec.md §5: dummy-run passes mutate copies).
	if !c.probing {
		c.Module.AddFunction(irFn)
	}

	restore := c.Builder.InsertionGuard()
	entry := c.Builder.NewRegionBlock(irFn.Entry, "entry")
	c.Builder.SetInsertionPointToEnd(entry)
	c.Builder.Entry(nil)

	bodyCtx := c.fork(symtab.NewFunctionScope(c.Scope, -1), returnType)
	bodyCtx.RegionPath = append(bodyCtx.RegionPath, irFn.Entry)

	if len(captures) > 0 {
		captureRef := bodyCtx.Builder.Param(closure.CapturedFieldName, types.NewRef(captureType))
		for i, cap := range captures {
			idx := bodyCtx.Builder.Constant(types.NewInt(64, false), i)
			fieldType := captureType.Fields[i]
			fieldRef := bodyCtx.Builder.ElementRef(captureRef, idx, fieldType)
			val := bodyCtx.Builder.Load(fieldRef)
			sym := &symtab.Symbol{Name: cap.Name, Type: val.Type, Mutable: cap.Mode == closure.ByRef, At: fn.Range(), Def: val}
			bodyCtx.Scope.Declare(sym, false)
		}
	}

	bodyCtx.bindParams(fn, sig, captures)

	if fn.IsGenerator {
		bodyCtx.lowerGeneratorBody(fn)
	} else {
		bodyCtx.lowerFunctionBody(fn)
	}
	bodyCtx.Builder.Exit(nil)
	restore()

	return irFn, captures
}

// MaterializeSpecialization re-lowers a generic function's body for one
// concrete specialization, called back from internal/generics.Engine the
// first time a (name, bindings) pair is materialized (spec.md §4.4 step 6).
// It runs in ns, the generic's own declaring namespace, rather than
// whatever namespace the triggering call site happens to sit in, with
// bindings installed as TypeBindings so resolveNamedType substitutes every
// occurrence of a type parameter before the body's own declarations bind.
func (c *Context) MaterializeSpecialization(ns *symtab.Namespace, fn *ast.FunctionExpr, bindings map[string]*types.Type, specializedName string) {
	specCtx := c.fork(symtab.NewScope(nil), nil)
	specCtx.Namespace = ns
	specCtx.TypeBindings = bindings
	specCtx.LowerFunction(fn, specializedName)
}

// probeArrow specializes an arrow-function argument against the parameter
// type a generic callee requires at its position (spec.md §4.4 step 3):
// unannotated arrow parameters take their types from expected's signature,
// then -- unless the arrow declares its return type -- a dummy-run over the
// arrow's body under those parameter types discovers the concrete return.
// The resulting function type is what the instantiation engine re-unifies
// against the callee's template parameter.
func (c *Context) probeArrow(fn *ast.FunctionExpr, expected *types.Type) *types.Type {
	var expectedSig *types.FuncSig
	if expected != nil && expected.Sig != nil {
		expectedSig = expected.Sig
	}

	sig := types.FuncSig{}
	sig.Params = make([]types.Param, len(fn.Params))
	for i, p := range fn.Params {
		pt := types.TAny
		switch {
		case p.Type != nil:
			pt = c.ResolveType(p.Type)
		case expectedSig != nil && i < len(expectedSig.Params):
			pt = expectedSig.Params[i].Type
		}
		sig.Params[i] = types.Param{Name: p.Name, Type: pt, Optional: p.Optional, Variadic: p.Variadic}
	}

	if fn.ReturnType != nil {
		sig.Return = c.ResolveType(fn.ReturnType)
		return types.NewFunction(sig)
	}
	_, inferred := c.dummyRun(fn, sig)
	sig.Return = inferred
	return types.NewFunction(sig)
}

// buildParamSig resolves a function expression's parameter and return type
// annotations into a template FuncSig, independent of any capture rewrite.
func (c *Context) buildParamSig(fn *ast.FunctionExpr) types.FuncSig {
	sig := types.FuncSig{}
	sig.Params = make([]types.Param, len(fn.Params))
	for i, p := range fn.Params {
		pt := types.TAny
		if p.Type != nil {
			pt = c.ResolveType(p.Type)
		}
		if p.Variadic {
			sig.Variadic = true
		}
		sig.Params[i] = types.Param{Name: p.Name, Type: pt, Optional: p.Optional, Variadic: p.Variadic}
	}
	if fn.ReturnType != nil {
		sig.Return = c.ResolveType(fn.ReturnType)
	}
	return sig
}

// dummyRun implements the disposable pass of spec.md's "Dummy-run": it
// lowers a throwaway copy of fn's body into a scratch region so the
// identifier resolver's capture-discovery hook (internal/closure.Discovery)
// and the return-type accumulator (Context.discoveredReturn) can observe
// it, then discards every op and diagnostic it produced.
func (c *Context) dummyRun(fn *ast.FunctionExpr, sig types.FuncSig) (*closure.Discovery, *types.Type) {
	discovery := closure.NewDiscovery()
	child := c.fork(symtab.NewFunctionScope(c.Scope, -1), nil)
	child.Discovery = discovery
	child.discoveredReturn = &discoveredReturn{}
	child.probing = true

	scratchRegion := ir.NewRegion(nil)
	scratchBlock := child.Builder.NewRegionBlock(scratchRegion, "dummy")
	child.RegionPath = append(child.RegionPath, scratchRegion)

	c.Diags.BeginBuffer()
	restore := c.Builder.InsertionGuard()
	c.Builder.SetInsertionPointToEnd(scratchBlock)

	child.bindParams(fn, sig, nil)
	child.lowerFunctionBody(fn)

	restore()
	c.Diags.EndBuffer(false) // discard: dummy-run diagnostics never reach the user (spec.md §7)

	ret := child.discoveredReturn.union
	if ret == nil {
		ret = types.TVoid
	}
	return discovery, ret
}

// discoveredReturn accumulates the union of every `return expr;`'s type
// seen while the enclosing function's return type is still unknown, i.e.
// during a dummy-run for an unannotated function (spec.md §4.6).
type discoveredReturn struct {
	union *types.Type
}

func (c *Context) observeReturn(t *types.Type) {
	if c.discoveredReturn.union == nil {
		c.discoveredReturn.union = t
	} else {
		c.discoveredReturn.union = types.Union(c.discoveredReturn.union, t)
	}
}

// bindParams declares each of fn's parameters in the current scope and
// emits its param/param-optional op. skipCaptures is the real pass's
// capture list: when it is non-empty, sig.Params[0] is the injected
// capture-tuple parameter, so fn's parameters are read from sig.Params
// starting at index 1.
func (c *Context) bindParams(fn *ast.FunctionExpr, sig types.FuncSig, skipCaptures []closure.Capture) {
	offset := 0
	if len(skipCaptures) > 0 {
		offset = 1 // sig.Params[0] is the injected capture-tuple parameter
	}
	for i, p := range fn.Params {
		pt := sig.Params[i+offset].Type
		var v *ir.Value
		if p.Default != nil {
			defRegion := ir.NewRegion(nil)
			restore := c.Builder.InsertionGuard()
			blk := c.Builder.NewRegionBlock(defRegion, "default")
			c.Builder.SetInsertionPointToEnd(blk)
			defVal := c.LowerExpr(p.Default)
			c.Builder.Result(defVal)
			restore()
			v = c.Builder.ParamOptional(p.Name, pt, defRegion)
		} else {
			v = c.Builder.Param(p.Name, pt)
		}
		if p.Pattern != nil {
			c.bindPattern(p.Pattern, v, true)
			continue
		}
		sym := &symtab.Symbol{Name: p.Name, Type: pt, Mutable: true, At: fn.Range(), Def: v}
		c.Scope.Declare(sym, false)
	}
}

func (c *Context) lowerFunctionBody(fn *ast.FunctionExpr) {
	if fn.ExprBody != nil {
		v := c.LowerExpr(fn.ExprBody)
		c.lowerReturnValue(v)
		return
	}
	c.LowerBlockFixedPoint(fn.Body)
}

// lowerReturnValue is the counterpart of lowerReturn used for arrow
// expression bodies (`x => x + 1`), which have no explicit ReturnStmt to
// hook the dummy-run's return-type accumulator into.
func (c *Context) lowerReturnValue(v *ir.Value) {
	if c.discoveredReturn != nil {
		c.observeReturn(v.Type)
		c.Builder.ReturnVal(v)
		return
	}
	if c.ReturnType != nil && !v.Type.Equal(c.ReturnType) {
		v = c.Builder.Cast(v, c.ReturnType)
	}
	c.Builder.ReturnVal(v)
}
