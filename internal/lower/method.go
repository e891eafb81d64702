package lower

import (
	"lumac/internal/ast"
	"lumac/internal/classlayout"
	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// LowerClassBodies is the second half of the driver's two-pass top-level
// handling: once every declaration in the compiled unit has been registered
// (internal/lower/declare.go's DeclareStmt, run over the whole unit first so
// a method body can forward-reference a class declared later in the same
// file), this emits each concrete class's method bodies. Generic classes are
// skipped -- like generic functions, a generic is only ever lowered at
// specialization time, not here.
func (c *Context) LowerClassBodies(stmts []ast.Stmt) {
	for _, s := range stmts {
		switch n := s.(type) {
		case *ast.ClassDecl:
			if len(n.TypeParams) > 0 {
				continue
			}
			full := n.Name
			if resolved, _, ok := c.Namespace.Lookup(n.Name, nil); ok {
				full = resolved
			}
			c.lowerClassMethods(full, n)
		case *ast.ModuleDecl:
			child, ok := c.Namespace.Children[n.Name]
			if !ok {
				continue
			}
			saved := c.Namespace
			c.Namespace = child
			c.LowerClassBodies(n.Body)
			c.Namespace = saved
		}
	}
}

// lowerClassMethods emits every non-abstract method declared directly on n
// (spec.md §4.5), named classFull + "." + method name to match
// resolveMethodSymbol's lookup convention (internal/lower/expr.go). Each
// gets an implicit leading "this" parameter of type Ref(classFull),
// mirroring LowerFunction's shape but without LowerFunction's dummy-run:
// a method's signature is already fully declared (spec.md has no
// unannotated-method return-type inference), so there is nothing to
// discover ahead of the real pass.
func (c *Context) lowerClassMethods(full string, n *ast.ClassDecl) {
	thisType := types.NewRef(types.NewNamed(types.Class, full))
	hasCtor := false
	for _, m := range n.Methods {
		if m.Name == "constructor" {
			hasCtor = true
		}
		if m.Abstract {
			continue
		}
		c.lowerMethodBody(full, thisType, m, n)
	}
	cls, ok := c.Classes.Class(full)
	if !ok {
		return
	}
	if !hasCtor && !cls.IsAbstract {
		c.synthesizeConstructor(full, thisType, n)
	}
	c.synthesizeStaticConstructor(full, n)
	if cls.EnableRTTI {
		c.synthesizeInstanceOf(full, cls.BaseName, thisType)
	}
	if !cls.IsAbstract {
		c.synthesizeNew(full)
	}
}

// synthesizeInstanceOf emits the virtual RTTI probe of spec.md §4.5:
// `Class.instanceOf(rtti: string): bool` returns whether rtti matches this
// class's own RTTI string, OR-ed through the base chain when one exists.
func (c *Context) synthesizeInstanceOf(classFull, baseFull string, thisType *types.Type) {
	name := classlayout.InstanceOfMethodName(classFull)
	if _, ok := c.Module.Function(name); ok {
		return
	}
	sig := types.FuncSig{
		Params: []types.Param{{Name: "this", Type: thisType}, {Name: "rtti", Type: types.TString}},
		Return: types.TBool,
	}
	irFn := &ir.Function{Name: name, Type: types.NewFunction(sig), Entry: ir.NewRegion(nil), Personality: c.ABI.Personality()}
	c.Module.AddFunction(irFn)

	restore := c.Builder.InsertionGuard()
	entry := c.Builder.NewRegionBlock(irFn.Entry, "entry")
	c.Builder.SetInsertionPointToEnd(entry)
	c.Builder.Entry(nil)
	this := c.Builder.Param("this", thisType)
	rtti := c.Builder.Param("rtti", types.TString)

	own := c.Builder.Load(c.Builder.AddressOf(classlayout.RTTIGlobalName(classFull), types.TString))
	match := c.Builder.StringCompare("==", own, rtti)
	if baseFull != "" {
		baseProbe := c.Builder.Invoke(classlayout.InstanceOfMethodName(baseFull), []*ir.Value{this, rtti}, types.TBool, nil, nil)
		match = c.Builder.LogicalBinary("||", match, baseProbe.Result0())
	}
	c.Builder.ReturnVal(match)
	c.Builder.Exit(nil)
	restore()
}

// synthesizeNew emits the static allocator of spec.md §4.5: `Class..new`
// allocates storage (typed-GC fast path unless disabled), stores the vtable
// pointer into the leading slot when the class has one, and returns the
// instance.
func (c *Context) synthesizeNew(classFull string) {
	name := classlayout.NewStaticMethodName(classFull)
	if _, ok := c.Module.Function(name); ok {
		return
	}
	classType := types.NewNamed(types.Class, classFull)
	sig := types.FuncSig{Return: classType}
	irFn := &ir.Function{Name: name, Type: types.NewFunction(sig), Entry: ir.NewRegion(nil), Personality: c.ABI.Personality()}
	c.Module.AddFunction(irFn)

	restore := c.Builder.InsertionGuard()
	entry := c.Builder.NewRegionBlock(irFn.Entry, "entry")
	c.Builder.SetInsertionPointToEnd(entry)
	c.Builder.Entry(nil)

	var instance *ir.Value
	if c.Options.DisableGC {
		instance = c.Builder.New(classType, false)
	} else {
		descriptor := c.Builder.AddressOf(classlayout.TypeDescrGlobalName(classFull), types.TOpaque)
		instance = c.Builder.GCNewTyped(classType, descriptor)
	}
	if offset, ok := c.Classes.FieldOffset(classFull, "vtable"); ok {
		vt := c.Builder.AddressOf(classFull+"..vtable", types.TOpaque)
		c.Builder.Store(vt, c.Builder.PointerOffsetRef(instance, offset, types.TOpaque))
	}
	c.Builder.ReturnVal(instance)
	c.Builder.Exit(nil)
	restore()
}

func (c *Context) lowerMethodBody(classFull string, thisType *types.Type, m *ast.MethodDecl, decl *ast.ClassDecl) {
	name := classFull + "." + methodSymbolName(m)
	if _, ok := c.Module.Function(name); ok {
		return
	}

	sig := c.buildParamSig(m.Fn)
	sig.Params = append([]types.Param{{Name: "this", Type: thisType}}, sig.Params...)

	fnType := types.NewFunction(sig)
	irFn := &ir.Function{Name: name, Type: fnType, Entry: ir.NewRegion(nil), Personality: c.ABI.Personality()}
	c.Module.AddFunction(irFn)

	restore := c.Builder.InsertionGuard()
	entry := c.Builder.NewRegionBlock(irFn.Entry, "entry")
	c.Builder.SetInsertionPointToEnd(entry)
	c.Builder.Entry(nil)

	bodyCtx := c.fork(symtab.NewFunctionScope(c.Scope, -1), sig.Return)
	bodyCtx.RegionPath = append(bodyCtx.RegionPath, irFn.Entry)

	thisParam := bodyCtx.Builder.Param("this", thisType)
	bodyCtx.Scope.Declare(&symtab.Symbol{Name: "this", Type: thisType, Mutable: false, At: m.Fn.Range(), Def: thisParam}, false)

	bodyCtx.bindParams(m.Fn, sig, nil)
	if m.Name == "constructor" {
		bodyCtx.emitFieldInitializers(classFull, decl)
		bodyCtx.storePromotedParams(classFull, m.Fn)
	}
	bodyCtx.lowerFunctionBody(m.Fn)
	bodyCtx.Builder.Exit(nil)
	restore()
}

// emitFieldInitializers stores each instance field's declared initializer
// into this's storage before the constructor body runs, so `new C()`
// observes initialized fields. Static-field initializers go through the
// synthesized static constructor instead.
func (c *Context) emitFieldInitializers(classFull string, decl *ast.ClassDecl) {
	this, ok := c.Scope.Lookup("this")
	if !ok {
		return
	}
	thisVal := c.Builder.GetThis(this.Type)
	for _, f := range decl.Fields {
		if f.Initializer == nil || f.Static {
			continue
		}
		offset, ok := c.Classes.FieldOffset(classFull, f.Name)
		if !ok {
			continue
		}
		val := c.LowerExpr(f.Initializer)
		fieldType := c.fieldTypeAt(classFull, offset)
		val = c.Builder.Cast(val, fieldType)
		c.Builder.Store(val, c.Builder.PointerOffsetRef(thisVal, offset, fieldType))
	}
}

// storePromotedParams writes each promoted constructor parameter into its
// storage-tuple field before the declared body runs (spec.md §4.5
// "constructor-parameter-promoted fields in parameter order").
func (c *Context) storePromotedParams(classFull string, fn *ast.FunctionExpr) {
	this, ok := c.Scope.Lookup("this")
	if !ok {
		return
	}
	thisVal := c.Builder.GetThis(this.Type)
	for _, p := range fn.Params {
		if !p.Promoted {
			continue
		}
		offset, ok := c.Classes.FieldOffset(classFull, p.Name)
		if !ok {
			continue
		}
		sym, found := c.Scope.Lookup(p.Name)
		if !found {
			continue
		}
		val := c.Builder.Load(c.Builder.SymbolRef(p.Name, sym.Type))
		fieldType := c.fieldTypeAt(classFull, offset)
		c.Builder.Store(c.Builder.Cast(val, fieldType), c.Builder.PointerOffsetRef(thisVal, offset, fieldType))
	}
}

// synthesizeConstructor emits a default `Class.constructor` when the class
// declares none, so `new C()`'s constructor invoke always has a target and
// field initializers always run. A base class's constructor chains first.
func (c *Context) synthesizeConstructor(classFull string, thisType *types.Type, decl *ast.ClassDecl) {
	name := classFull + ".constructor"
	if _, ok := c.Module.Function(name); ok {
		return
	}
	sig := types.FuncSig{Params: []types.Param{{Name: "this", Type: thisType}}, Return: types.TVoid}
	irFn := &ir.Function{Name: name, Type: types.NewFunction(sig), Entry: ir.NewRegion(nil), Personality: c.ABI.Personality()}
	c.Module.AddFunction(irFn)

	restore := c.Builder.InsertionGuard()
	entry := c.Builder.NewRegionBlock(irFn.Entry, "entry")
	c.Builder.SetInsertionPointToEnd(entry)
	c.Builder.Entry(nil)

	bodyCtx := c.fork(symtab.NewFunctionScope(c.Scope, -1), types.TVoid)
	bodyCtx.RegionPath = append(bodyCtx.RegionPath, irFn.Entry)
	thisParam := bodyCtx.Builder.Param("this", thisType)
	bodyCtx.Scope.Declare(&symtab.Symbol{Name: "this", Type: thisType, Mutable: false, At: decl.Range(), Def: thisParam}, false)

	if cls, ok := c.Classes.Class(classFull); ok && cls.BaseName != "" {
		thisVal := bodyCtx.Builder.GetThis(thisType)
		bodyCtx.Builder.Invoke(cls.BaseName+".constructor", []*ir.Value{thisVal}, nil, nil, nil)
	}
	bodyCtx.emitFieldInitializers(classFull, decl)
	bodyCtx.Builder.Exit(nil)
	restore()
}

// synthesizeStaticConstructor emits `Class..cctor`, storing each static
// field's initializer into its `Class.field` global, in declaration order.
// The module's function list keeps insertion order, which is what the
// downstream global-constructor pass consumes -- cross-class ordering is
// therefore the classes' own declaration order, preserved exactly.
func (c *Context) synthesizeStaticConstructor(classFull string, decl *ast.ClassDecl) {
	var inits []*ast.FieldDecl
	for _, f := range decl.Fields {
		if f.Static && f.Initializer != nil {
			inits = append(inits, f)
		}
	}
	if len(inits) == 0 {
		return
	}
	name := classFull + "..cctor"
	if _, ok := c.Module.Function(name); ok {
		return
	}
	irFn := &ir.Function{Name: name, Type: types.NewFunction(types.FuncSig{Return: types.TVoid}), Entry: ir.NewRegion(nil), Personality: c.ABI.Personality()}
	c.Module.AddFunction(irFn)

	restore := c.Builder.InsertionGuard()
	entry := c.Builder.NewRegionBlock(irFn.Entry, "entry")
	c.Builder.SetInsertionPointToEnd(entry)
	c.Builder.Entry(nil)
	for _, f := range inits {
		g, ok := c.Module.Global(classFull + "." + f.Name)
		if !ok {
			continue
		}
		val := c.Builder.Cast(c.LowerExpr(f.Initializer), g.Type)
		c.Builder.Store(val, c.Builder.AddressOf(g.Name, g.Type))
	}
	c.Builder.Exit(nil)
	restore()
}

// methodSymbolName maps a declaration to its emitted symbol suffix. A
// constructor keeps its declared name "constructor" (matching
// classlayout.MethodDef.Name and lowerNew's constructor-invocation naming);
// a get/set accessor gets the get_/set_ prefix save-logic and property
// reads dispatch through (classlayout.GetterSymbolName/SetterSymbolName).
func methodSymbolName(m *ast.MethodDecl) string {
	switch m.Kind {
	case "get":
		return "get_" + m.Name
	case "set":
		return "set_" + m.Name
	}
	return m.Name
}
