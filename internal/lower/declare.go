package lower

import (
	"lumac/internal/ast"
	"lumac/internal/classlayout"
	"lumac/internal/config"
	"lumac/internal/diag"
	"lumac/internal/generics"
	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// BindStmt is pass one of spec.md §4.3's two-pass top-level handling (the
// SourceFile doc comment's "declaration registration" step): it binds a
// declaration's short name to its full name in the namespace tree, across
// every file in a compiled unit, before DeclareStmt (pass two) or any body
// lowering runs. Splitting the short-name bind out from arena/signature
// construction is what lets a forward reference -- a class extending
// another declared later in the same file, or in a different file the
// driver batched concurrently -- resolve: by the time pass two runs every
// name in the unit already has a full name, even though nothing has been
// shaped into a ClassInfo/FuncSig/generics.Info yet.
func (c *Context) BindStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.FunctionDecl:
		cat := symtab.CatFunction
		if len(n.Fn.TypeParams) > 0 {
			cat = symtab.CatGenericFunction
		}
		if full, ok := c.Namespace.Bind(c.Symbols, cat, n.Fn.Name); !ok {
			c.Diags.Errorf(diag.Redeclaration, n.Range(), "duplicate declaration of %q", full)
		}
	case *ast.ClassDecl:
		cat := symtab.CatClass
		if len(n.TypeParams) > 0 {
			cat = symtab.CatGenericClass
		}
		if full, ok := c.Namespace.Bind(c.Symbols, cat, n.Name); !ok {
			c.Diags.Errorf(diag.Redeclaration, n.Range(), "duplicate declaration of %q", full)
		}
	case *ast.InterfaceDecl:
		cat := symtab.CatInterface
		if len(n.TypeParams) > 0 {
			cat = symtab.CatGenericInterface
		}
		if full, ok := c.Namespace.Bind(c.Symbols, cat, n.Name); !ok {
			c.Diags.Errorf(diag.Redeclaration, n.Range(), "duplicate declaration of %q", full)
		}
	case *ast.EnumDecl:
		if full, ok := c.Namespace.Bind(c.Symbols, symtab.CatEnum, n.Name); !ok {
			c.Diags.Errorf(diag.Redeclaration, n.Range(), "duplicate declaration of %q", full)
		}
	case *ast.TypeAliasDecl:
		cat := symtab.CatTypeAlias
		if len(n.TypeParams) > 0 {
			cat = symtab.CatGenericTypeAlias
		}
		if full, ok := c.Namespace.Bind(c.Symbols, cat, n.Name); !ok {
			c.Diags.Errorf(diag.Redeclaration, n.Range(), "duplicate declaration of %q", full)
		}
	case *ast.ModuleDecl:
		child := c.Namespace.NewChild(n.Name)
		saved := c.Namespace
		c.Namespace = child
		for _, stmt := range n.Body {
			c.BindStmt(stmt)
		}
		c.Namespace = saved
	case *ast.ImportDecl, *ast.ImportEqualsDecl:
		// ImportDecl only orders the driver's file batching; ImportEqualsDecl
		// resolves its target in DeclareStmt, once every real name is bound.
	}
}

// DeclareStmt is pass two: now that every name in the compiled unit has a
// full name (BindStmt having run over the whole unit first), it builds each
// declaration's arena record (classlayout.ClassInfo/InterfaceInfo) or
// generics.Info template, resolving cross-references -- base classes,
// implemented interfaces, alias targets -- freely against the now-complete
// namespace.
//
// It is a no-op for any statement kind LowerStmt already lowers directly
// (expressions, control flow); callers run it only over a block's/file's
// top-level declaration statements, before LowerBlockFixedPoint lowers
// their bodies.
func (c *Context) DeclareStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.FunctionDecl:
		c.declareFunction(n)
	case *ast.ClassDecl:
		c.declareClass(n)
	case *ast.InterfaceDecl:
		c.declareInterface(n)
	case *ast.TypeAliasDecl:
		c.declareTypeAlias(n)
	case *ast.ImportEqualsDecl:
		c.declareImportEquals(n)
	case *ast.ModuleDecl:
		c.declareModule(n)
	case *ast.EnumDecl, *ast.ImportDecl:
		// EnumDecl needs nothing beyond BindStmt's name bind (see
		// declareEnum's doc comment); ImportDecl is the driver's concern.
	}
}

func (c *Context) declareFunction(n *ast.FunctionDecl) {
	full, cat, ok := c.Namespace.Lookup(n.Fn.Name, symtab.Categories(symtab.CatFunction, symtab.CatGenericFunction))
	if !ok || cat != symtab.CatGenericFunction {
		return
	}
	tps, bindings := c.templateTypeParams(n.Fn.TypeParams)
	sig := withTemplateBindings(c, bindings, func() types.FuncSig {
		return c.buildParamSig(n.Fn)
	})
	c.Generics.Register(&generics.Info{
		FullName:   full,
		Kind:       generics.KindFunction,
		TypeParams: tps,
		Namespace:  c.Namespace.FullName,
		Node:       n.Fn,
		Sig:        &sig,
	})
}

func (c *Context) declareClass(n *ast.ClassDecl) {
	full, cat, ok := c.Namespace.Lookup(n.Name, symtab.Categories(symtab.CatClass, symtab.CatGenericClass))
	if !ok {
		return
	}

	tps, bindings := c.templateTypeParams(n.TypeParams)
	info := withTemplateBindings(c, bindings, func() *classlayout.ClassInfo {
		return c.buildClassInfo(full, n)
	})

	if cat == symtab.CatGenericClass {
		c.Generics.Register(&generics.Info{
			FullName:   full,
			Kind:       generics.KindClass,
			TypeParams: tps,
			Namespace:  c.Namespace.FullName,
			Node:       n,
		})
		// The arena still gets the unspecialized template shape, keyed
		// under the generic's own full name, so member lookups against the
		// unspecialized base (spec.md §4.4's genericBase fallback) resolve.
	}
	c.Classes.AddClass(info)
	c.declareStaticFieldGlobals(info)
}

// literalInitType infers an unannotated field's type from a literal
// initializer. Anything non-literal stays `any`: full initializer-driven
// inference would need a dummy-run here at declaration time, before the
// builder has an insertion point to lower into.
func (c *Context) literalInitType(e ast.Expr) *types.Type {
	lit, ok := e.(*ast.Literal)
	if !ok {
		return types.TAny
	}
	switch lit.Kind {
	case ast.LitNumber:
		width := 64
		if c.Options.NumberPrecision == config.PrecisionF32 {
			width = 32
		}
		return types.NewFloat(width)
	case ast.LitString:
		return types.TString
	case ast.LitBool:
		return types.TBool
	case ast.LitBigInt:
		return types.TBigInt
	case ast.LitNull:
		return types.TNull
	}
	return types.TAny
}

// declareStaticFieldGlobals registers one module global per static field,
// named `Class.field` (spec.md §4.5 "Static fields become module globals").
func (c *Context) declareStaticFieldGlobals(info *classlayout.ClassInfo) {
	for _, f := range info.Fields {
		if !f.Static {
			continue
		}
		c.Module.AddGlobal(&ir.Global{Name: info.FullName + "." + f.Name, Type: f.Type})
	}
}

func (c *Context) buildClassInfo(full string, n *ast.ClassDecl) *classlayout.ClassInfo {
	info := &classlayout.ClassInfo{FullName: full, IsAbstract: n.IsAbstract, EnableRTTI: c.Options.EnableRTTI, EnableGC: !c.Options.DisableGC}
	if n.Extends != nil {
		if named, ok := n.Extends.(*ast.NamedTypeNode); ok {
			if baseFull, _, ok := c.Namespace.Lookup(named.Name, symtab.Categories(symtab.CatClass, symtab.CatGenericClass)); ok {
				info.BaseName = baseFull
			}
		}
	}
	for _, impl := range n.Implements {
		if named, ok := impl.(*ast.NamedTypeNode); ok {
			if ifaceFull, _, ok := c.Namespace.Lookup(named.Name, symtab.Categories(symtab.CatInterface, symtab.CatGenericInterface)); ok {
				info.Implements = append(info.Implements, ifaceFull)
			}
		}
	}
	for _, f := range n.Fields {
		ft := c.ResolveType(f.Type)
		if f.Type == nil && f.Initializer != nil {
			ft = c.literalInitType(f.Initializer)
		}
		info.Fields = append(info.Fields, classlayout.FieldDef{Name: f.Name, Type: ft, Static: f.Static})
	}
	for _, m := range n.Methods {
		sig := c.buildParamSig(m.Fn)
		if m.Kind == "get" || m.Kind == "set" {
			mergeAccessor(info, m, &sig)
			continue
		}
		info.Methods = append(info.Methods, classlayout.MethodDef{Name: m.Name, Sig: &sig, Static: m.Static, Virtual: m.Virtual, Abstract: m.Abstract})
		if m.Name != "constructor" {
			continue
		}
		for _, p := range m.Fn.Params {
			if !p.Promoted {
				continue
			}
			pt := types.TAny
			if p.Type != nil {
				pt = c.ResolveType(p.Type)
			}
			info.ConstructorPromoted = append(info.ConstructorPromoted, classlayout.FieldDef{Name: p.Name, Type: pt})
		}
	}
	if info.EnableRTTI {
		// The synthesized RTTI probe occupies a virtual slot like any
		// declared method, so subclass overrides replace it in place and
		// dispatch through the shared vtable prefix (spec.md §4.5).
		info.Methods = append(info.Methods, classlayout.MethodDef{
			Name:    "instanceOf",
			Sig:     &types.FuncSig{Params: []types.Param{{Name: "rtti", Type: types.TString}}, Return: types.TBool},
			Virtual: true,
		})
	}
	return info
}

// mergeAccessor folds a get/set declaration into the class's accessor list,
// pairing a getter and setter for the same property into one entry. The
// property's value type is the getter's return when declared, the setter's
// sole parameter otherwise.
func mergeAccessor(info *classlayout.ClassInfo, m *ast.MethodDecl, sig *types.FuncSig) {
	t := types.TAny
	if m.Kind == "get" {
		if sig.Return != nil {
			t = sig.Return
		}
	} else if len(sig.Params) > 0 {
		t = sig.Params[0].Type
	}
	for i := range info.Accessors {
		if info.Accessors[i].Name != m.Name {
			continue
		}
		if m.Kind == "get" {
			info.Accessors[i].HasGetter = true
		} else {
			info.Accessors[i].HasSetter = true
		}
		if info.Accessors[i].Type == types.TAny {
			info.Accessors[i].Type = t
		}
		return
	}
	info.Accessors = append(info.Accessors, classlayout.AccessorDef{
		Name: m.Name, Type: t, Static: m.Static,
		HasGetter: m.Kind == "get", HasSetter: m.Kind == "set",
	})
}

func (c *Context) declareInterface(n *ast.InterfaceDecl) {
	full, cat, ok := c.Namespace.Lookup(n.Name, symtab.Categories(symtab.CatInterface, symtab.CatGenericInterface))
	if !ok {
		return
	}

	tps, bindings := c.templateTypeParams(n.TypeParams)
	info := withTemplateBindings(c, bindings, func() *classlayout.InterfaceInfo {
		return c.buildInterfaceInfo(full, n)
	})

	if cat == symtab.CatGenericInterface {
		c.Generics.Register(&generics.Info{
			FullName:   full,
			Kind:       generics.KindInterface,
			TypeParams: tps,
			Namespace:  c.Namespace.FullName,
			Node:       n,
		})
	}
	c.Classes.AddInterface(info)
}

func (c *Context) buildInterfaceInfo(full string, n *ast.InterfaceDecl) *classlayout.InterfaceInfo {
	info := &classlayout.InterfaceInfo{FullName: full}
	for _, ext := range n.Extends {
		if named, ok := ext.(*ast.NamedTypeNode); ok {
			if extFull, _, ok := c.Namespace.Lookup(named.Name, symtab.Categories(symtab.CatInterface, symtab.CatGenericInterface)); ok {
				info.Extends = append(info.Extends, extFull)
			}
		}
	}
	for _, m := range n.Members {
		member := classlayout.InterfaceMember{Name: m.Name, Conditional: m.Conditional}
		if m.Fn != nil {
			sig := c.buildParamSig(m.Fn)
			member.Sig = &sig
		} else {
			member.Type = c.ResolveType(m.Type)
		}
		info.Members = append(info.Members, member)
	}
	return info
}

// Enum declarations need nothing beyond BindStmt's name bind:
// resolveNamedType's CatEnum branch resolves straight to a nominal
// types.NewNamed(types.Enum, full) with no backing arena record, so enum
// members are consulted only at the point a member-access expression
// lowers EnumMember.Value (spec.md §4.5: enums are "compile-time constant
// integral/string values", not a runtime type).

func (c *Context) declareTypeAlias(n *ast.TypeAliasDecl) {
	full, _, ok := c.Namespace.Lookup(n.Name, symtab.Categories(symtab.CatTypeAlias, symtab.CatGenericTypeAlias))
	if !ok {
		return
	}

	tps, bindings := c.templateTypeParams(n.TypeParams)
	aliased := withTemplateBindings(c, bindings, func() *types.Type {
		return c.ResolveType(n.Type)
	})
	// resolveNamedType's CatTypeAlias branch always consults Generics.Lookup
	// for Aliased, even for a non-generic alias (TypeParams empty), so every
	// alias is registered here regardless of cat.
	c.Generics.Register(&generics.Info{
		FullName:   full,
		Kind:       generics.KindTypeAlias,
		TypeParams: tps,
		Namespace:  c.Namespace.FullName,
		Node:       n,
		Aliased:    aliased,
	})
}

func (c *Context) declareImportEquals(n *ast.ImportEqualsDecl) {
	targetFull := n.Target
	if resolved, _, ok := c.Namespace.Lookup(n.Target, nil); ok {
		targetFull = resolved
	}
	c.Namespace.ImportEquals[n.Alias] = targetFull
}

// MaterializeClassSpecialization rebuilds a generic class's arena record --
// storage layout, vtable shape, method signatures -- and emits its method
// bodies under the specialized name, with the specialization's bindings
// installed as TypeBindings so every occurrence of a type parameter in a
// field type, method signature, or method body resolves to its concrete
// binding (spec.md §4.4 step 6 applied to KindClass). Called back from
// internal/generics.Engine the first time a (name, bindings) pair is
// emitted; the arena-presence check makes it idempotent against the
// tombstone path, which can re-enter with the same symbol.
func (c *Context) MaterializeClassSpecialization(ns *symtab.Namespace, n *ast.ClassDecl, bindings map[string]*types.Type, symbol string) {
	if _, ok := c.Classes.Class(symbol); ok {
		return
	}
	specCtx := c.fork(symtab.NewScope(nil), nil)
	specCtx.Namespace = ns
	specCtx.TypeBindings = bindings
	info := specCtx.buildClassInfo(symbol, n)
	c.Classes.AddClass(info)
	c.declareStaticFieldGlobals(info)
	specCtx.lowerClassMethods(symbol, n)
}

// MaterializeInterfaceSpecialization is the KindInterface counterpart:
// interfaces carry no method bodies, so only the arena record is rebuilt.
func (c *Context) MaterializeInterfaceSpecialization(ns *symtab.Namespace, n *ast.InterfaceDecl, bindings map[string]*types.Type, symbol string) {
	if _, ok := c.Classes.Interface(symbol); ok {
		return
	}
	specCtx := c.fork(symtab.NewScope(nil), nil)
	specCtx.Namespace = ns
	specCtx.TypeBindings = bindings
	c.Classes.AddInterface(specCtx.buildInterfaceInfo(symbol, n))
}

// declareModule descends into a nested `module Foo { ... }` block's own
// namespace -- already created by BindStmt's pass over the same node, which
// ran first over the whole compiled unit -- and recurses pass two into it
// (spec.md §4.2 nested namespaces). Body statements still go through the
// enclosing file's ordinary fixed-point lowering pass afterward, walked
// with this nested namespace active.
func (c *Context) declareModule(n *ast.ModuleDecl) {
	child, ok := c.Namespace.Children[n.Name]
	if !ok {
		return
	}
	saved := c.Namespace
	c.Namespace = child
	for _, stmt := range n.Body {
		c.DeclareStmt(stmt)
	}
	c.Namespace = saved
}

// templateTypeParams resolves each declared type parameter's constraint and
// default against a binding where every parameter name maps to its own
// placeholder, so a constraint referencing a sibling parameter (`T extends
// U`) resolves instead of erroring as unbound, then returns both the
// generics.TypeParam slice and the same placeholder map for the caller to
// use while building the template Sig/Aliased/ClassInfo.
func (c *Context) templateTypeParams(params []*ast.TypeParam) ([]generics.TypeParam, map[string]*types.Type) {
	bindings := make(map[string]*types.Type, len(params))
	for _, p := range params {
		bindings[p.Name] = types.NewNamedGeneric(p.Name)
	}
	out := make([]generics.TypeParam, len(params))
	withTemplateBindings(c, bindings, func() struct{} {
		for i, p := range params {
			tp := generics.TypeParam{Name: p.Name}
			if p.Constraint != nil {
				tp.Constraint = c.ResolveType(p.Constraint)
			}
			if p.Default != nil {
				tp.Default = c.ResolveType(p.Default)
			}
			out[i] = tp
		}
		return struct{}{}
	})
	return out, bindings
}

// withTemplateBindings runs fn with bindings merged on top of c.TypeBindings
// (so an unqualified type-parameter reference resolves to its own
// placeholder via resolveNamedType's TypeBindings check), restoring the
// prior bindings before returning fn's result.
func withTemplateBindings[T any](c *Context, bindings map[string]*types.Type, fn func() T) T {
	saved := c.TypeBindings
	merged := make(map[string]*types.Type, len(saved)+len(bindings))
	for k, v := range saved {
		merged[k] = v
	}
	for k, v := range bindings {
		merged[k] = v
	}
	c.TypeBindings = merged
	result := fn()
	c.TypeBindings = saved
	return result
}
