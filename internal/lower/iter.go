package lower

import (
	"lumac/internal/ast"
	"lumac/internal/diag"
	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// hasNextMember reports whether t exposes a `next` member, making it
// eligible for iterator-protocol desugaring. Checked before hasLengthMember
// everywhere a for-of/for-in loop picks its strategy, since spec.md §8's
// testable property states the preference rule explicitly: "next wins".
func (c *Context) hasNextMember(t *types.Type) bool {
	switch t.Kind {
	case types.Class:
		_, _, ok := c.resolveMethodSymbol(t.Name, "next")
		return ok
	case types.Interface:
		_, ok := c.interfaceMemberSig(t.Name, "next")
		return ok
	}
	return false
}

// hasLengthMember reports whether t supports the index-based for-of/for-in
// fallback: a statically-sized collection, or a class/interface exposing a
// `length` field or method.
func (c *Context) hasLengthMember(t *types.Type) bool {
	switch t.Kind {
	case types.Array, types.ConstArray, types.Tuple, types.ConstTuple:
		return true
	case types.Class:
		if _, ok := c.Classes.FieldOffset(t.Name, "length"); ok {
			return true
		}
		_, _, ok := c.resolveMethodSymbol(t.Name, "length")
		return ok
	case types.Interface:
		_, ok := c.interfaceMemberSig(t.Name, "length")
		return ok
	}
	return false
}

// lowerLengthOf reads an iterable's element count: a const-array's length
// is static, a dynamic array's comes from array-length, and anything else
// falls back to reading its `length` property.
func (c *Context) lowerLengthOf(iterable *ir.Value, at diag.Location) *ir.Value {
	if iterable.Type.Kind == types.ConstArray || iterable.Type.Kind == types.ConstTuple {
		return c.Builder.Constant(types.NewInt(64, true), int64(iterable.Type.Length))
	}
	if iterable.Type.Kind == types.Array {
		return c.Builder.ArrayLength(iterable)
	}
	ref, valType, ok := c.resolveProperty(iterable, "length", at)
	if !ok {
		return c.Builder.Constant(types.NewInt(64, true), int64(0))
	}
	if ref == nil {
		return c.Builder.Undef(valType)
	}
	return c.Builder.Load(ref)
}

// callMethodOnValue invokes method on an already-lowered receiver value,
// mirroring call.go's resolveMethodCallee/lowerCall pair but operating on
// an ir.Value instead of re-lowering an AST PropertyAccessExpr -- needed
// because the iterator-protocol loop calls `.next()` on a value produced
// by earlier IR, not by a fresh call expression.
func (c *Context) callMethodOnValue(obj *ir.Value, method string, args []*ir.Value, at diag.Location) *ir.Value {
	operands := append([]*ir.Value{obj}, args...)
	resultType := types.TAny
	calleeName := method

	if obj.Type.Kind == types.Class {
		className := obj.Type.Name
		if symbol, sig, ok := c.resolveMethodSymbol(className, method); ok {
			calleeName = symbol
			resultType = sig.Return
			cls, _ := c.Classes.Class(className)
			if methodIsVirtual(cls, method) {
				idx := vtableIndexOf(c.Classes, className, method)
				c.Builder.ThisVirtualSymbolRef(symbol, idx, types.NewFunction(*sig))
			}
		}
	} else {
		_, boundType, ok := c.resolveProperty(obj, method, at)
		if ok && boundType.Kind == types.BoundFunction {
			resultType = boundType.Sig.Return
		}
	}

	var normal, unwind *ir.Block
	if c.currentTry != nil {
		normal = c.Builder.CurrentBlock()
		unwind = c.currentTry.catchesBlock
	}
	op := c.Builder.Invoke(calleeName, operands, resultType, normal, unwind)
	return op.Result0()
}

// bindLoopVar declares a for-in/for-of loop's per-iteration binding,
// following the same storage-type convention lowerVarDecl uses (ref(T) for
// a mutable `let`/`var` binding, T directly for `const`).
func (c *Context) bindLoopVar(kind ast.VarKind, name string, pattern ast.Pattern, value *ir.Value, at diag.Location) {
	if pattern != nil {
		c.bindPattern(pattern, value, kind != ast.VarConst)
		return
	}
	mutable := kind != ast.VarConst
	storageType := value.Type
	if mutable {
		storageType = types.NewRef(value.Type)
	}
	ref := c.Builder.Variable(value.Type, value)
	sym := &symtab.Symbol{Name: name, Type: storageType, Mutable: mutable, At: at, Def: ref}
	c.Scope.Declare(sym, false)
}

// lowerIndexLoop builds a counted `for(i = 0; i < length; i++)` construct
// (spec.md §4.1 KFor), reused identically by the index-based paths of
// for-of (itemFn loads the element) and for-in (itemFn produces the
// stringified index).
func (c *Context) lowerIndexLoop(label string, length *ir.Value, itemFn func(idx *ir.Value) *ir.Value, bindFn func(item *ir.Value), body ast.Stmt) {
	idxType := types.NewInt(64, true)
	idxRef := c.Builder.Variable(idxType, c.Builder.Constant(idxType, 0))

	opLabel := c.pushControl(label, true)
	defer c.popControl()

	regions := []*ir.Region{ir.NewRegion(nil), ir.NewRegion(nil), ir.NewRegion(nil)}
	op := c.Builder.NewOp(ir.KFor, opLabel, nil, nil, regions)

	restore := c.Builder.InsertionGuard()
	condBlk := c.Builder.NewRegionBlock(op.Regions[0], "cond")
	c.Builder.SetInsertionPointToEnd(condBlk)
	idx := c.Builder.Load(idxRef)
	c.Builder.Condition(c.Builder.ArithBinary("<", idx, length, types.TBool))

	bodyBlk := c.Builder.NewRegionBlock(op.Regions[1], "body")
	c.Builder.SetInsertionPointToEnd(bodyBlk)
	c.withChildScope(func() {
		item := itemFn(c.Builder.Load(idxRef))
		bindFn(item)
		c.LowerStmt(body)
	})

	incrBlk := c.Builder.NewRegionBlock(op.Regions[2], "incr")
	c.Builder.SetInsertionPointToEnd(incrBlk)
	c.Builder.PostfixUnary("++", idxRef, idxType)
	restore()
}

// lowerIteratorProtocolLoop builds a `while` that drives an iterable's
// `next()`/{value,done} protocol (spec.md §4.3/§8). `step.done` gates
// continuation; `step.value` is what bindFn binds into the per-iteration
// variable.
func (c *Context) lowerIteratorProtocolLoop(label string, iterable *ir.Value, at diag.Location, bindFn func(item *ir.Value), body ast.Stmt) {
	stepRef := c.Builder.Variable(types.TAny, nil)

	opLabel := c.pushControl(label, true)
	defer c.popControl()

	regions := []*ir.Region{ir.NewRegion(nil), ir.NewRegion(nil)}
	op := c.Builder.NewOp(ir.KWhile, opLabel, nil, nil, regions)

	restore := c.Builder.InsertionGuard()
	condBlk := c.Builder.NewRegionBlock(op.Regions[0], "cond")
	c.Builder.SetInsertionPointToEnd(condBlk)
	step := c.callMethodOnValue(iterable, "next", nil, at)
	c.Builder.Store(step, stepRef)
	doneRef, doneType, ok := c.resolveProperty(step, "done", at)
	var done *ir.Value
	if ok && doneRef != nil {
		done = c.Builder.Load(doneRef)
	} else if ok {
		done = c.Builder.Undef(doneType)
	} else {
		done = c.Builder.Constant(types.TBool, false)
	}
	c.Builder.Condition(c.Builder.ArithUnary("!", done, types.TBool))

	bodyBlk := c.Builder.NewRegionBlock(op.Regions[1], "body")
	c.Builder.SetInsertionPointToEnd(bodyBlk)
	c.withChildScope(func() {
		loaded := c.Builder.Load(stepRef)
		valRef, valType, ok := c.resolveProperty(loaded, "value", at)
		var item *ir.Value
		if ok && valRef != nil {
			item = c.Builder.Load(valRef)
		} else if ok {
			item = c.Builder.Undef(valType)
		} else {
			item = c.Builder.Undef(types.TAny)
		}
		bindFn(item)
		c.LowerStmt(body)
	})
	restore()
}

// lowerForOf implements spec.md §4.3/§8's for-of desugaring: iterator
// protocol (next) is checked and preferred over the index-based (length)
// path whenever the iterable exposes both.
func (c *Context) lowerForOf(n *ast.ForOfStmt) {
	c.withChildScope(func() {
		iterable := c.LowerExpr(n.Iterable)
		bind := func(item *ir.Value) { c.bindLoopVar(n.DeclKind, n.VarName, n.Pattern, item, n.Range()) }

		if n.IsAwait {
			c.lowerForAwaitOf(n, iterable, bind)
			return
		}

		switch {
		case c.hasNextMember(iterable.Type):
			c.lowerIteratorProtocolLoop(n.Label, iterable, n.Iterable.Range(), bind, n.Body)
		case c.hasLengthMember(iterable.Type):
			elem := elementTypeOf(iterable.Type)
			length := c.lowerLengthOf(iterable, n.Range())
			c.lowerIndexLoop(n.Label, length, func(idx *ir.Value) *ir.Value {
				return c.Builder.Load(c.Builder.ElementRef(iterable, idx, elem))
			}, bind, n.Body)
		default:
			c.Diags.Errorf(diag.TypeMismatch, n.Iterable.Range(), "for-of operand is neither iterable nor array-like")
		}
	})
}

// lowerForIn implements for-in's index-based enumeration: it always binds
// the stringified index/key rather than an element value (spec.md §4.1
// "for-in(object, body) enumerates keys").
func (c *Context) lowerForIn(n *ast.ForInStmt) {
	c.withChildScope(func() {
		object := c.LowerExpr(n.Object)
		bind := func(item *ir.Value) { c.bindLoopVar(n.DeclKind, n.VarName, n.Pattern, item, n.Range()) }

		if !c.hasLengthMember(object.Type) {
			c.Diags.Errorf(diag.TypeMismatch, n.Object.Range(), "for-in operand has no length to enumerate")
			return
		}
		length := c.lowerLengthOf(object, n.Range())
		c.lowerIndexLoop(n.Label, length, func(idx *ir.Value) *ir.Value {
			return c.Builder.Cast(idx, types.TString)
		}, bind, n.Body)
	})
}

// lowerForAwaitOf implements the `for await...of` design note (spec.md §4.3
// / §4.7): each iteration's body runs as its own async-execute task added
// to a group, with a single await-all after the loop drains the iterable
// rather than awaiting inline per-iteration.
func (c *Context) lowerForAwaitOf(n *ast.ForOfStmt, iterable *ir.Value, bind func(*ir.Value)) {
	group := c.Builder.AsyncGroupCreate()

	runAsTask := func(item *ir.Value) {
		region := ir.NewRegion(nil)
		restore := c.Builder.InsertionGuard()
		blk := c.Builder.NewRegionBlock(region, "task")
		c.Builder.SetInsertionPointToEnd(blk)
		c.withChildScope(func() {
			bind(item)
			c.LowerStmt(n.Body)
		})
		restore()
		task := c.Builder.AsyncExecute(region)
		c.Builder.AsyncAddToGroup(group, task)
	}

	empty := &ast.Block{}
	switch {
	case c.hasNextMember(iterable.Type):
		c.lowerIteratorProtocolLoop(n.Label, iterable, n.Iterable.Range(), runAsTask, empty)
	case c.hasLengthMember(iterable.Type):
		elem := elementTypeOf(iterable.Type)
		length := c.lowerLengthOf(iterable, n.Range())
		c.lowerIndexLoop(n.Label, length, func(idx *ir.Value) *ir.Value {
			return c.Builder.Load(c.Builder.ElementRef(iterable, idx, elem))
		}, runAsTask, empty)
	default:
		c.Diags.Errorf(diag.TypeMismatch, n.Iterable.Range(), "for-await-of operand is neither iterable nor array-like")
	}
	c.Builder.AwaitAll(group)
}
