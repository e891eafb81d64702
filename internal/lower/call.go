package lower

import (
	"lumac/internal/ast"
	"lumac/internal/classlayout"
	"lumac/internal/diag"
	"lumac/internal/generics"
	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

var (
	funcLikeCats  = symtab.Categories(symtab.CatFunction, symtab.CatGenericFunction)
	classLikeCats = symtab.Categories(symtab.CatClass, symtab.CatGenericClass)
)

// lowerCall implements call-site lowering for every callee shape spec.md
// §4.3/§4.4 distinguishes: a plain function (direct or generic
// specialization), a bound method (direct dispatch or RTTI-guarded
// virtual dispatch through the class's vtable), and an extension function
// (this bound as the hybrid-function's first argument). Every call lowers
// to an invoke -- even outside a try -- so the exception-ABI personality
// attached to the enclosing function always has a consistent unwind story
// (spec.md §4.7); normal/unwind point at the active try's blocks only
// when one is in scope.
func (c *Context) lowerCall(n *ast.CallExpr) *ir.Value {
	args := make([]*ir.Value, len(n.Args))
	for i, a := range n.Args {
		args[i] = c.LowerExpr(a)
	}

	// resolveCallee also emits the ThisVirtualSymbolRef dispatch op as a side
	// effect when the call targets a virtual method, so the vtable lookup
	// itself is visible in the IR even though invoke below still names the
	// statically-resolved symbol (this IR's invoke has no indirect-call
	// operand -- see DESIGN.md).
	calleeName, prefixArgs, resultType, _ := c.resolveCallee(n, args)
	operands := append(append([]*ir.Value(nil), prefixArgs...), args...)

	var normal, unwind *ir.Block
	if c.currentTry != nil {
		normal = c.Builder.CurrentBlock()
		unwind = c.currentTry.catchesBlock
	}

	op := c.Builder.Invoke(calleeName, operands, resultType, normal, unwind)
	return op.Result0()
}

// resolveCallee returns the callee's symbol name, any prefix operands (a
// bound `this` for a method/extension-function call), the static result
// type, and -- when the call should dispatch virtually -- the
// ThisVirtualSymbolRef value that performed the vtable lookup.
func (c *Context) resolveCallee(n *ast.CallExpr, args []*ir.Value) (string, []*ir.Value, *types.Type, *ir.Value) {
	switch callee := n.Callee.(type) {
	case *ast.Identifier:
		return c.resolveFunctionCallee(callee.Name, n, args)
	case *ast.PropertyAccessExpr:
		return c.resolveMethodCallee(callee, args)
	default:
		v := c.LowerExpr(n.Callee)
		result := types.TAny
		if v.Type.Kind == types.Function || v.Type.Kind == types.BoundFunction || v.Type.Kind == types.HybridFunction {
			result = v.Type.Sig.Return
		}
		return "", nil, result, nil
	}
}

func (c *Context) resolveFunctionCallee(name string, n *ast.CallExpr, args []*ir.Value) (string, []*ir.Value, *types.Type, *ir.Value) {
	// A function-typed local (an arrow or function expression bound to a
	// variable) shadows any namespace-level function of the same name; its
	// invoke goes through the value, so the callee has no symbol name of
	// its own -- same convention the non-identifier-callee path uses.
	if sym, outer, ok := c.Scope.LookupOuter(name); ok {
		t := sym.Type
		if t.Kind == types.Ref || t.Kind == types.ValueRef {
			t = t.Elem
		}
		if t.Kind == types.Function || t.Kind == types.BoundFunction || t.Kind == types.HybridFunction {
			if c.Discovery != nil {
				c.Discovery.Observe(sym, sym.Def, c.definingRegion(outer), c.RegionPath)
			}
			result := types.TAny
			if t.Sig != nil {
				result = t.Sig.Return
			}
			return "", nil, result, nil
		}
	}

	full, cat, ok := c.Namespace.Lookup(name, funcLikeCats)
	if !ok {
		c.Diags.Errorf(diag.UnresolvedSymbol, n.Range(), "unresolved function %q", name)
		return name, nil, types.TAny, nil
	}

	if cat == symtab.CatGenericFunction {
		operandTypes := make([]*types.Type, len(args))
		for i, a := range args {
			operandTypes[i] = a.Type
		}
		explicit := make([]*types.Type, len(n.TypeArgs))
		for i, ta := range n.TypeArgs {
			explicit[i] = c.ResolveType(ta)
		}
		var arrows []generics.ArrowArg
		for i, a := range n.Args {
			if fn, ok := a.(*ast.FunctionExpr); ok {
				// An unannotated arrow's lowered type came out with `any`
				// parameters, which is not unification evidence; its
				// contribution arrives through the delayed probe instead
				// (spec.md §4.4 step 3).
				operandTypes[i] = nil
				arrows = append(arrows, generics.ArrowArg{Index: i, Probe: func(expected *types.Type) *types.Type {
					return c.probeArrow(fn, expected)
				}})
			}
		}
		specialized, symbol, err := c.specialize(full, explicit, operandTypes, arrows)
		if err != nil {
			c.Diags.Errorf(diag.UnresolvedSymbol, n.Range(), "%v", err)
			return full, nil, types.TAny, nil
		}
		result := types.TAny
		if specialized.Kind == types.Function {
			result = specialized.Sig.Return
		}
		return symbol, nil, result, nil
	}

	if fn, ok := c.Module.Function(full); ok && fn.Type != nil && fn.Type.Sig != nil {
		return full, c.captureTupleOperand(fn), fn.Type.Sig.Return, nil
	}
	return full, nil, types.TAny, nil
}

// captureTupleOperand rebuilds the hidden capture-tuple argument for a
// directly-named callee whose prototype was rewritten by capture discovery
// (spec.md §4.6): each captured name resolves in the caller's own scope
// chain, which is the declaring scope or one nested inside it.
func (c *Context) captureTupleOperand(fn *ir.Function) []*ir.Value {
	if len(fn.CaptureNames) == 0 || len(fn.Type.Sig.Params) == 0 {
		return nil
	}
	tupleType := fn.Type.Sig.Params[0].Type
	if tupleType.Kind == types.Ref {
		tupleType = tupleType.Elem
	}
	sources := make([]*ir.Value, len(fn.CaptureNames))
	for i, name := range fn.CaptureNames {
		if sym, outer, ok := c.Scope.LookupOuter(name); ok {
			sources[i] = sym.Def
			if c.Discovery != nil {
				c.Discovery.Observe(sym, sym.Def, c.definingRegion(outer), c.RegionPath)
			}
		}
	}
	return []*ir.Value{c.Builder.Capture(sources, tupleType)}
}

func (c *Context) resolveMethodCallee(n *ast.PropertyAccessExpr, args []*ir.Value) (string, []*ir.Value, *types.Type, *ir.Value) {
	obj := c.LowerExpr(n.Object)

	if obj.Type.Kind == types.Interface {
		// An interface receiver has no static target: the callee comes out
		// of the interface's vtable slot and `this` is extracted from the
		// (instance, vtable) pair the new-interface op packed.
		if m, _, ok := c.Classes.Member(obj.Type.Name, n.Property); ok && m.Sig != nil {
			dispatch := c.Builder.InterfaceSymbolRef(n.Property, types.NewFunction(*m.Sig))
			this := c.Builder.ExtractInterfaceThis(obj, types.TOpaque)
			return "", []*ir.Value{this}, m.Sig.Return, dispatch
		}
	}

	if obj.Type.Kind != types.Class {
		// Interface-typed or structural receiver: fall back to a
		// this-symbol-ref carrying the member's bound-function type.
		_, boundType, ok := c.resolveProperty(obj, n.Property, n.Object.Range())
		result := types.TAny
		if ok && boundType.Kind == types.BoundFunction {
			result = boundType.Sig.Return
		}
		return n.Property, []*ir.Value{obj}, result, nil
	}

	className := obj.Type.Name
	symbol, sig, ok := c.resolveMethodSymbol(className, n.Property)
	if !ok {
		// Extension-function call: `this` becomes the hybrid function's
		// leading argument.
		full, _, lookedUp := c.Namespace.Lookup(n.Property, funcLikeCats)
		if lookedUp {
			return full, []*ir.Value{obj}, types.TAny, nil
		}
		c.Diags.Errorf(diag.UnresolvedSymbol, n.Object.Range(), "class %q has no method %q", className, n.Property)
		return n.Property, []*ir.Value{obj}, types.TAny, nil
	}

	cls, _ := c.Classes.Class(className)
	if methodIsVirtual(cls, n.Property) {
		idx := vtableIndexOf(c.Classes, className, n.Property)
		dispatch := c.Builder.ThisVirtualSymbolRef(symbol, idx, types.NewFunction(*sig))
		return symbol, []*ir.Value{obj}, sig.Return, dispatch
	}
	return symbol, []*ir.Value{obj}, sig.Return, nil
}

func methodIsVirtual(cls *classlayout.ClassInfo, name string) bool {
	if cls == nil {
		return false
	}
	for _, m := range cls.Methods {
		if m.Name == name {
			return m.Virtual
		}
	}
	return false
}

func vtableIndexOf(arena *classlayout.Arena, className, methodName string) int {
	for i, e := range arena.VTable(className) {
		if e.Kind == classlayout.VTableMethod && e.MethodName == methodName {
			return i
		}
	}
	return -1
}

// lowerNew implements `new Class(...)` (spec.md §4.5): allocate storage
// (typed-GC fast path unless disabled), then invoke the constructor with
// the new instance as `this`.
func (c *Context) lowerNew(n *ast.NewExpr) *ir.Value {
	className, ok := calleeIdentifierName(n.Callee)
	if !ok {
		c.Diags.Errorf(diag.TypeMismatch, n.Range(), "new target is not a class reference")
		return c.Builder.Undef(types.TAny)
	}

	full, _, ok := c.Namespace.Lookup(className, classLikeCats)
	if !ok {
		c.Diags.Errorf(diag.UnresolvedSymbol, n.Range(), "unresolved class %q", className)
		return c.Builder.Undef(types.TAny)
	}

	if len(n.TypeArgs) > 0 {
		typeArgs := make([]*types.Type, len(n.TypeArgs))
		for i, ta := range n.TypeArgs {
			typeArgs[i] = c.ResolveType(ta)
		}
		if _, symbol, err := c.specialize(full, typeArgs, nil, nil); err == nil {
			full = symbol
		}
	}

	instanceType := types.NewNamed(types.Class, full)
	var instance *ir.Value
	if c.Options.DisableGC {
		instance = c.Builder.New(instanceType, false)
	} else {
		descriptor := c.Builder.AddressOf(classlayout.TypeDescrGlobalName(full), types.TOpaque)
		instance = c.Builder.GCNewTyped(instanceType, descriptor)
	}

	args := make([]*ir.Value, len(n.Args))
	for i, a := range n.Args {
		args[i] = c.LowerExpr(a)
	}
	operands := append([]*ir.Value{instance}, args...)

	var normal, unwind *ir.Block
	if c.currentTry != nil {
		normal = c.Builder.CurrentBlock()
		unwind = c.currentTry.catchesBlock
	}
	c.Builder.Invoke(full+".constructor", operands, nil, normal, unwind)
	return instance
}

func calleeIdentifierName(e ast.Expr) (string, bool) {
	switch t := e.(type) {
	case *ast.Identifier:
		return t.Name, true
	case *ast.PropertyAccessExpr:
		return t.Property, true
	}
	return "", false
}

// lowerInstanceof implements spec.md §4.3's instanceof dispatch: a
// class-typed operand that is className or derives from it resolves to a
// constant true, and, with RTTI disabled, any other class-typed operand to
// a constant false. Every other operand -- any-typed and union-typed ones
// included -- invokes className's own instanceOf method with className as
// the rtti argument; no typeof guard is emitted ahead of that call.
func (c *Context) lowerInstanceof(left *ir.Value, className string) *ir.Value {
	if left.Type.Kind == types.Class {
		if left.Type.Name == className || classExtends(c.Classes, left.Type.Name, className) {
			return c.Builder.Constant(types.TBool, true)
		}
		if !c.Options.EnableRTTI {
			return c.Builder.Constant(types.TBool, false)
		}
	}

	symbol := classlayout.InstanceOfMethodName(className)
	rtti := c.Builder.Constant(types.TString, className)
	op := c.Builder.Invoke(symbol, []*ir.Value{left, rtti}, types.TBool, nil, nil)
	return op.Result0()
}

func classExtends(arena *classlayout.Arena, className, ancestor string) bool {
	for cur := className; cur != ""; {
		cls, ok := arena.Class(cur)
		if !ok {
			return false
		}
		if cur == ancestor {
			return true
		}
		cur = cls.BaseName
	}
	return false
}
