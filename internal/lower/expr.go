package lower

import (
	"fmt"
	"strconv"
	"strings"

	"lumac/internal/ast"
	"lumac/internal/classlayout"
	"lumac/internal/closure"
	"lumac/internal/config"
	"lumac/internal/diag"
	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// nameSuggestionLimit caps how many locally-declared names an
// unresolved-identifier diagnostic lists alongside the error -- past this
// a dump of every name in scope is noise, not a suggestion.
const nameSuggestionLimit = 8

func suggestionSuffix(names []string) string {
	if len(names) == 0 || len(names) > nameSuggestionLimit {
		return ""
	}
	return fmt.Sprintf(" (known names here: %s)", strings.Join(names, ", "))
}

// LowerExpr dispatches one expression node to its ir.Value, per spec.md
// §4.3's "AST-node dispatch to a ValueOrLogicalResult". Every case either
// returns a value directly or -- for && / || / ?? -- builds the
// if-with-merged-result shape and returns the merge block's result.
func (c *Context) LowerExpr(e ast.Expr) *ir.Value {
	switch n := e.(type) {
	case *ast.Literal:
		return c.lowerLiteral(n)
	case *ast.Identifier:
		return c.lowerIdentifier(n)
	case *ast.ThisExpr:
		return c.Builder.GetThis(c.thisType())
	case *ast.ParenExpr:
		return c.LowerExpr(n.Inner)
	case *ast.BinaryExpr:
		return c.lowerBinary(n)
	case *ast.LogicalExpr:
		return c.lowerLogical(n)
	case *ast.UnaryExpr:
		return c.lowerUnary(n)
	case *ast.PrefixExpr:
		return c.lowerIncDec(n.Operand, n.Op, true)
	case *ast.PostfixExpr:
		return c.lowerIncDec(n.Operand, n.Op, false)
	case *ast.AssignExpr:
		return c.lowerAssign(n)
	case *ast.ConditionalExpr:
		return c.lowerConditional(n)
	case *ast.CallExpr:
		return c.lowerCall(n)
	case *ast.NewExpr:
		return c.lowerNew(n)
	case *ast.PropertyAccessExpr:
		return c.lowerPropertyAccess(n)
	case *ast.ElementAccessExpr:
		return c.lowerElementAccess(n)
	case *ast.AsExpr:
		inner := c.LowerExpr(n.Expr)
		return c.Builder.Cast(inner, c.ResolveType(n.Type))
	case *ast.TypeAssertionExpr:
		inner := c.LowerExpr(n.Expr)
		return c.Builder.Cast(inner, c.ResolveType(n.Type))
	case *ast.AwaitExpr:
		return c.LowerExpr(n.Operand)
	case *ast.YieldExpr:
		var v *ir.Value
		if n.Operand != nil {
			v = c.LowerExpr(n.Operand)
		}
		c.Builder.YieldReturnVal(v)
		return v
	case *ast.SpreadExpr:
		return c.LowerExpr(n.Operand)
	case *ast.FunctionExpr:
		return c.lowerFunctionExpr(n)
	case *ast.TemplateLiteral:
		return c.lowerTemplateLiteral(n)
	case *ast.ArrayLiteral:
		return c.lowerArrayLiteral(n)
	case *ast.ObjectLiteral:
		return c.lowerObjectLiteral(n)
	case *ast.TaggedTemplateExpr:
		return c.LowerExpr(n.Template)
	}
	panic(diag.Bug("lower: unhandled expression node %T", e))
}

func (c *Context) thisType() *types.Type {
	if sym, ok := c.Scope.Lookup("this"); ok {
		return sym.Type
	}
	return types.TAny
}

func (c *Context) lowerLiteral(n *ast.Literal) *ir.Value {
	switch n.Kind {
	case ast.LitNumber:
		width := 64
		if c.Options.NumberPrecision == config.PrecisionF32 {
			width = 32
		}
		return c.Builder.Constant(types.NewFloat(width), n.Value)
	case ast.LitString:
		return c.Builder.Constant(types.TString, n.Value)
	case ast.LitBigInt:
		return c.Builder.Constant(types.TBigInt, n.Value)
	case ast.LitBool:
		return c.Builder.Constant(types.TBool, n.Value)
	case ast.LitNull:
		return c.Builder.NullValue()
	}
	panic(diag.Bug("lower: unknown literal kind %d", n.Kind))
}

// lowerIdentifier resolves a bare name: first against the lexical scope
// chain (falling through to the enclosing namespace on miss, spec.md
// §4.2), recording a closure-discovery observation when the symbol's
// defining region lies outside the current function (spec.md §4.6).
func (c *Context) lowerIdentifier(n *ast.Identifier) *ir.Value {
	if sym, outer, ok := c.Scope.LookupOuter(n.Name); ok {
		if c.Discovery != nil {
			c.Discovery.Observe(sym, sym.Def, c.definingRegion(outer), c.RegionPath)
		}
		if sym.Mutable {
			return c.Builder.Load(c.Builder.SymbolRef(n.Name, sym.Type))
		}
		return c.Builder.SymbolRef(n.Name, sym.Type)
	}

	if full, cat, ok := c.Namespace.Lookup(n.Name, nil); ok {
		switch cat {
		case symtab.CatClass:
			return c.Builder.ClassRef(full, types.NewNamed(types.Class, full))
		case symtab.CatInterface:
			return c.Builder.InterfaceRef(full, types.NewNamed(types.Interface, full))
		default:
			return c.Builder.SymbolRef(full, types.TAny)
		}
	}

	c.Diags.Errorf(diag.UnresolvedSymbol, n.Range(), "unresolved identifier %q%s", n.Name, suggestionSuffix(c.Namespace.DeclaredNames()))
	return c.Builder.Undef(types.TAny)
}

// definingRegion models spec.md §4.6's capture test through scope locality
// rather than a symbol-to-region index: a symbol resolved within the
// current function's own scopes counts as defined at the innermost region
// of the current path (always an ancestor, so never a capture), while a
// symbol resolved beyond the function-scope boundary has no region in the
// current path at all -- exactly the not-an-ancestor condition
// closure.Discovery.Observe records.
func (c *Context) definingRegion(outer bool) *ir.Region {
	if outer || len(c.RegionPath) == 0 {
		return nil
	}
	return c.RegionPath[len(c.RegionPath)-1]
}

func (c *Context) lowerBinary(n *ast.BinaryExpr) *ir.Value {
	if n.Op == "instanceof" {
		left := c.LowerExpr(n.Left)
		className, ok := calleeIdentifierName(n.Right)
		if !ok {
			c.Diags.Errorf(diag.TypeMismatch, n.Right.Range(), "instanceof right-hand side is not a class reference")
			return c.Builder.Constant(types.TBool, false)
		}
		full, cat, resolved := c.Namespace.Lookup(className, classLikeCats)
		if !resolved {
			full = className
		} else if cat == symtab.CatGenericClass {
			// An uninstantiated generic has no runtime identity to test
			// against.
			c.Diags.Errorf(diag.TypeMismatch, n.Right.Range(), "instanceof against uninstantiated generic class %q", className)
			return c.Builder.Constant(types.TBool, false)
		}
		return c.lowerInstanceof(left, full)
	}

	left := c.LowerExpr(n.Left)
	right := c.LowerExpr(n.Right)

	if left.Type.Kind == types.String && (n.Op == "+" || n.Op == "==" || n.Op == "!=" || n.Op == "<" || n.Op == ">") {
		if n.Op == "+" {
			return c.Builder.StringConcat(left, right)
		}
		return c.Builder.StringCompare(n.Op, left, right)
	}

	result := arithResultType(n.Op, left.Type, right.Type)
	return c.Builder.ArithBinary(n.Op, left, right, result)
}

func arithResultType(op string, a, b *types.Type) *types.Type {
	switch op {
	case "==", "!=", "===", "!==", "<", ">", "<=", ">=":
		return types.TBool
	}
	if a.Kind == types.Float || b.Kind == types.Float {
		return types.NewFloat(64)
	}
	return a
}

// lowerLogical lowers && / || / ?? per spec.md §4.3: each is an `if`
// producing a union-typed merged result rather than a primitive boolean
// op, so the right-hand side's own type survives short-circuiting.
func (c *Context) lowerLogical(n *ast.LogicalExpr) *ir.Value {
	left := c.LowerExpr(n.Left)

	switch n.Op {
	case "&&":
		return c.buildLogicalIf(left, n.Right, false)
	case "||":
		return c.buildLogicalIf(left, n.Right, true)
	case "??":
		return c.buildNullishIf(left, n.Right)
	}
	panic(diag.Bug("lower: unknown logical operator %q", n.Op))
}

// buildLogicalIf builds: if (cond [negated for ||]) { right } else { left },
// merging to union(leftType, rightType) -- && takes the right branch only
// when left is truthy, || only when left is falsy.
func (c *Context) buildLogicalIf(left *ir.Value, rhs ast.Expr, negate bool) *ir.Value {
	ifOp := c.Builder.NewOp(ir.KIf, "", nil, nil, []*ir.Region{ir.NewRegion(nil), ir.NewRegion(nil), ir.NewRegion(nil)})
	condRegion, thenRegion, elseRegion := ifOp.Regions[0], ifOp.Regions[1], ifOp.Regions[2]

	restore := c.Builder.InsertionGuard()
	condBlk := c.Builder.NewRegionBlock(condRegion, "cond")
	c.Builder.SetInsertionPointToEnd(condBlk)
	cond := left
	if negate {
		cond = c.Builder.ArithUnary("!", left, types.TBool)
	}
	c.Builder.Condition(cond)

	thenBlk := c.Builder.NewRegionBlock(thenRegion, "then")
	c.Builder.SetInsertionPointToEnd(thenBlk)
	right := c.LowerExpr(rhs)
	c.Builder.Result(right)

	elseBlk := c.Builder.NewRegionBlock(elseRegion, "else")
	c.Builder.SetInsertionPointToEnd(elseBlk)
	c.Builder.Result(left)
	restore()

	merged := types.Union(left.Type, right.Type)
	ifOp.Results = append(ifOp.Results, &ir.Value{Type: merged, Def: ifOp})
	return ifOp.Result0()
}

// buildNullishIf builds `??`: the right branch runs only when left is
// null/undefined (spec.md §4.3 "?? gates on a null/undefined check, not
// general truthiness").
func (c *Context) buildNullishIf(left *ir.Value, rhs ast.Expr) *ir.Value {
	ifOp := c.Builder.NewOp(ir.KIf, "", nil, nil, []*ir.Region{ir.NewRegion(nil), ir.NewRegion(nil), ir.NewRegion(nil)})
	condRegion, thenRegion, elseRegion := ifOp.Regions[0], ifOp.Regions[1], ifOp.Regions[2]

	restore := c.Builder.InsertionGuard()
	condBlk := c.Builder.NewRegionBlock(condRegion, "cond")
	c.Builder.SetInsertionPointToEnd(condBlk)
	isNullish := c.Builder.ArithBinary("==", left, c.Builder.NullValue(), types.TBool)
	c.Builder.Condition(isNullish)

	thenBlk := c.Builder.NewRegionBlock(thenRegion, "then")
	c.Builder.SetInsertionPointToEnd(thenBlk)
	right := c.LowerExpr(rhs)
	c.Builder.Result(right)

	elseBlk := c.Builder.NewRegionBlock(elseRegion, "else")
	c.Builder.SetInsertionPointToEnd(elseBlk)
	narrowed := left
	if base, ok := left.Type.IsOptional(); ok {
		narrowed = c.Builder.Cast(left, base)
	}
	c.Builder.Result(narrowed)
	restore()

	merged := types.Union(right.Type, narrowed.Type)
	ifOp.Results = append(ifOp.Results, &ir.Value{Type: merged, Def: ifOp})
	return ifOp.Result0()
}

func (c *Context) lowerUnary(n *ast.UnaryExpr) *ir.Value {
	switch n.Op {
	case "typeof":
		return c.Builder.TypeOf(c.LowerExpr(n.Operand))
	case "void":
		// The operand runs for its side effects only; the expression's own
		// value is always undefined.
		c.LowerExpr(n.Operand)
		return c.Builder.Undef(types.TUndefined)
	case "delete":
		return c.Builder.ArithUnary("delete", c.LowerExpr(n.Operand), types.TBool)
	}
	operand := c.LowerExpr(n.Operand)
	result := operand.Type
	if n.Op == "!" {
		result = types.TBool
	}
	return c.Builder.ArithUnary(n.Op, operand, result)
}

func (c *Context) lowerIncDec(target ast.Expr, op string, prefix bool) *ir.Value {
	ref, elemType, ok := c.lowerRef(target)
	if !ok || ref == nil {
		return c.Builder.Undef(elemType)
	}
	if prefix {
		return c.Builder.PrefixUnary(op, ref, elemType)
	}
	return c.Builder.PostfixUnary(op, ref, elemType)
}

// lowerRef resolves an lvalue expression to its ref(T) address, used by
// ++/-- and by the left side of a compound assignment.
func (c *Context) lowerRef(target ast.Expr) (*ir.Value, *types.Type, bool) {
	switch t := target.(type) {
	case *ast.Identifier:
		sym, outer, ok := c.Scope.LookupOuter(t.Name)
		if !ok {
			c.Diags.Errorf(diag.UnresolvedSymbol, t.Range(), "unresolved identifier %q", t.Name)
			return nil, types.TAny, false
		}
		if c.Discovery != nil {
			c.Discovery.Observe(sym, sym.Def, c.definingRegion(outer), c.RegionPath)
		}
		elem := sym.Type
		if elem.Kind == types.Ref {
			elem = elem.Elem
		}
		return c.Builder.SymbolRef(t.Name, sym.Type), elem, true
	case *ast.PropertyAccessExpr:
		ref, valType, ok := c.resolvePropertyRef(t)
		return ref, valType, ok
	case *ast.ElementAccessExpr:
		obj := c.LowerExpr(t.Object)
		idx := c.LowerExpr(t.Index)
		elem := elementTypeOf(obj.Type)
		return c.Builder.ElementRef(obj, idx, elem), elem, true
	}
	c.Diags.Errorf(diag.TypeMismatch, target.Range(), "expression is not assignable")
	return nil, types.TAny, false
}

func elementTypeOf(t *types.Type) *types.Type {
	if t.Kind == types.Array || t.Kind == types.ConstArray {
		return t.Elem
	}
	return types.TAny
}

// lowerPropertyAccess reads `obj.name`: a property backed by an accessor
// dispatches through its getter body, anything else resolves to a storage
// ref (or a bound-function type) through resolveProperty.
func (c *Context) lowerPropertyAccess(n *ast.PropertyAccessExpr) *ir.Value {
	obj := c.LowerExpr(n.Object)
	if owner, acc, ok := c.accessorFor(obj.Type, n.Property); ok {
		if !acc.HasGetter {
			c.Diags.Errorf(diag.TypeMismatch, n.Range(), "property %q has a setter but no getter", n.Property)
			return c.Builder.Undef(acc.Type)
		}
		return c.emitAccessorCall(classlayout.GetterSymbolName(owner, n.Property), []*ir.Value{obj}, acc.Type)
	}
	ref, valType, ok := c.resolveProperty(obj, n.Property, n.Object.Range())
	if !ok {
		return c.Builder.Undef(types.TAny)
	}
	if ref == nil {
		return c.Builder.Undef(valType)
	}
	return c.Builder.Load(ref)
}

// classOf unwraps ref/optional/literal-of wrappers down to a class type's
// full name, the receiver shapes accessor dispatch applies to.
func classOf(t *types.Type) (string, bool) {
	for {
		switch t.Kind {
		case types.Ref, types.ValueRef:
			t = t.Elem
		case types.LiteralOf:
			t = t.LiteralBase
		case types.Class:
			return t.Name, true
		default:
			if base, ok := t.IsOptional(); ok {
				t = base
				continue
			}
			return "", false
		}
	}
}

func (c *Context) accessorFor(t *types.Type, name string) (string, classlayout.AccessorDef, bool) {
	className, ok := classOf(t)
	if !ok {
		return "", classlayout.AccessorDef{}, false
	}
	return c.Classes.Accessor(className, name)
}

// emitAccessorCall invokes an accessor body with the same unwind wiring an
// ordinary call gets (internal/lower/call.go): inside a try, the invoke's
// unwind edge targets the enclosing catches block. Returns nil when result
// is nil (a setter call, consumed for effect only).
func (c *Context) emitAccessorCall(symbol string, operands []*ir.Value, result *types.Type) *ir.Value {
	var normal, unwind *ir.Block
	if c.currentTry != nil {
		normal = c.Builder.CurrentBlock()
		unwind = c.currentTry.catchesBlock
	}
	op := c.Builder.Invoke(symbol, operands, result, normal, unwind)
	if result == nil {
		return nil
	}
	return op.Result0()
}

// resolvePropertyRef implements spec.md §4.3's property-access resolution
// chain: union member cast-and-recurse, optional unwrap, literal-of
// widen-and-recurse, then class field / method / inherited-field /
// extension-function fallback. Returns (ref, type, ok); ref is nil for a
// method/bound-function result that has no addressable storage.
func (c *Context) resolvePropertyRef(n *ast.PropertyAccessExpr) (*ir.Value, *types.Type, bool) {
	obj := c.LowerExpr(n.Object)
	return c.resolveProperty(obj, n.Property, n.Object.Range())
}

func (c *Context) resolveProperty(obj *ir.Value, name string, at diag.Location) (*ir.Value, *types.Type, bool) {
	t := obj.Type

	// `this` inside a method body carries ref(Class); member resolution
	// works on the pointee.
	if t.Kind == types.Ref || t.Kind == types.ValueRef {
		return c.resolveProperty(c.Builder.Cast(obj, t.Elem), name, at)
	}
	if base, ok := t.IsOptional(); ok {
		narrowed := c.Builder.Cast(obj, base)
		return c.resolveProperty(narrowed, name, at)
	}
	if t.Kind == types.LiteralOf {
		widened := c.Builder.Cast(obj, t.LiteralBase)
		return c.resolveProperty(widened, name, at)
	}
	if t.Kind == types.KindUnion {
		// Recurse into the first member that actually carries the member;
		// a full per-member switch belongs to the checker pass that would
		// precede this, not to lowering itself.
		for _, m := range t.Members {
			casted := c.Builder.Cast(obj, m)
			if c.classHasMember(m, name) {
				return c.resolveProperty(casted, name, at)
			}
		}
	}

	if t.Kind == types.Class {
		return c.resolveClassMember(obj, t.Name, name, at)
	}
	if t.Kind == types.Interface {
		if m, idx, ok := c.Classes.Member(t.Name, name); ok {
			if m.Sig != nil {
				return nil, types.NewBoundFunction(t, *m.Sig), true
			}
			// Field access through an interface goes through its vtable
			// slot: the entry holds the field's address within the
			// implementing class (spec.md §4.5), so the access is a load
			// through that slot.
			return c.Builder.VTableOffsetRef(obj, idx, m.Type), m.Type, true
		}
		c.Diags.Errorf(diag.UnresolvedSymbol, at, "interface %q has no member %q", t.Name, name)
		return nil, types.TAny, false
	}
	if t.Kind == types.Object {
		for i, fn := range t.FieldNames {
			if fn == name {
				return c.Builder.ElementRef(obj, c.Builder.Constant(types.NewInt(64, false), i), t.Fields[i]), t.Fields[i], true
			}
		}
	}

	c.Diags.Errorf(diag.UnresolvedSymbol, at, "unresolved property %q", name)
	return nil, types.TAny, false
}

func (c *Context) classHasMember(t *types.Type, name string) bool {
	if t.Kind != types.Class {
		return false
	}
	if _, ok := c.Classes.FieldOffset(t.Name, name); ok {
		return true
	}
	if cls, ok := c.Classes.Class(t.Name); ok {
		for _, m := range cls.Methods {
			if m.Name == name {
				return true
			}
		}
	}
	if _, _, ok := c.Classes.Accessor(t.Name, name); ok {
		return true
	}
	return false
}

func (c *Context) interfaceMemberSig(ifaceName, name string) (*types.FuncSig, bool) {
	iface, ok := c.Classes.Interface(ifaceName)
	if !ok {
		return nil, false
	}
	for _, m := range iface.Members {
		if m.Name == name {
			return m.Sig, true
		}
	}
	return nil, false
}

// resolveClassMember implements the class-specific leaf of the property
// chain: own/inherited field (by storage offset), own/inherited method
// (bound-function reference), falling back to an extension function
// registered as a hybrid-function in the enclosing namespace.
func (c *Context) resolveClassMember(obj *ir.Value, className, name string, at diag.Location) (*ir.Value, *types.Type, bool) {
	if offset, ok := c.Classes.FieldOffset(className, name); ok {
		fieldType := c.fieldTypeAt(className, offset)
		return c.Builder.PointerOffsetRef(obj, offset, fieldType), fieldType, true
	}

	if _, sig, ok := c.resolveMethodSymbol(className, name); ok {
		boundType := types.NewBoundFunction(types.NewNamed(types.Class, className), *sig)
		return nil, boundType, true
	}

	// Accessor reached through a non-addressing path (destructuring, union
	// member selection): the property's type is known even though there is
	// no storage ref to hand back -- read and write sites that can dispatch
	// the accessor bodies do so before landing here.
	if _, acc, ok := c.Classes.Accessor(className, name); ok {
		return nil, acc.Type, true
	}

	// Extension-function fallback (spec.md §4.3): a free function bound into
	// the enclosing namespace under this name is callable as if it were a
	// method, carried as a hybrid-function type so call lowering can bind
	// `this` as its first argument.
	if full, cat, ok := c.Namespace.Lookup(name, symtab.Categories(symtab.CatFunction, symtab.CatGenericFunction)); ok && cat == symtab.CatFunction {
		return nil, types.NewHybridFunction(types.FuncSig{Params: []types.Param{{Name: "this", Type: types.NewNamed(types.Class, className)}}}), full != ""
	}

	c.Diags.Errorf(diag.UnresolvedSymbol, at, "class %q has no member %q", className, name)
	return nil, types.TAny, false
}

func (c *Context) fieldTypeAt(className string, offset int) *types.Type {
	storage := c.Classes.StorageTuple(className)
	if storage == nil || offset >= len(storage.Fields) {
		return types.TAny
	}
	return storage.Fields[offset]
}

func (c *Context) resolveMethodSymbol(className, name string) (string, *types.FuncSig, bool) {
	for cur := className; cur != ""; {
		cls, ok := c.Classes.Class(cur)
		if !ok {
			return "", nil, false
		}
		for _, m := range cls.Methods {
			if m.Name == name {
				return cur + "." + name, m.Sig, true
			}
		}
		cur = cls.BaseName
	}
	return "", nil, false
}

func (c *Context) lowerElementAccess(n *ast.ElementAccessExpr) *ir.Value {
	obj := c.LowerExpr(n.Object)
	idx := c.LowerExpr(n.Index)
	elem := elementTypeOf(obj.Type)
	return c.Builder.Load(c.Builder.ElementRef(obj, idx, elem))
}

// lowerConditional lowers `cond ? then : else` to an `if` whose merged
// result type is the union of the two branch types, collapsing to the
// common type when they're equal (spec.md §4.3 "conditional-expression
// base-or-union result typing").
func (c *Context) lowerConditional(n *ast.ConditionalExpr) *ir.Value {
	ifOp := c.Builder.NewOp(ir.KIf, "", nil, nil, []*ir.Region{ir.NewRegion(nil), ir.NewRegion(nil), ir.NewRegion(nil)})
	condRegion, thenRegion, elseRegion := ifOp.Regions[0], ifOp.Regions[1], ifOp.Regions[2]

	restore := c.Builder.InsertionGuard()
	condBlk := c.Builder.NewRegionBlock(condRegion, "cond")
	c.Builder.SetInsertionPointToEnd(condBlk)
	cond := c.LowerExpr(n.Cond)
	c.Builder.Condition(cond)

	thenBlk := c.Builder.NewRegionBlock(thenRegion, "then")
	c.Builder.SetInsertionPointToEnd(thenBlk)
	thenVal := c.LowerExpr(n.Then)
	c.Builder.Result(thenVal)

	elseBlk := c.Builder.NewRegionBlock(elseRegion, "else")
	c.Builder.SetInsertionPointToEnd(elseBlk)
	elseVal := c.LowerExpr(n.Else)
	c.Builder.Result(elseVal)
	restore()

	var merged *types.Type
	if thenVal.Type.Equal(elseVal.Type) {
		merged = thenVal.Type
	} else {
		merged = types.Union(thenVal.Type, elseVal.Type)
	}
	ifOp.Results = append(ifOp.Results, &ir.Value{Type: merged, Def: ifOp})
	return ifOp.Result0()
}

// lowerAssign implements spec.md §4.3's save-logic: `=` evaluates the
// right-hand side once, then stores it through whichever lvalue shape the
// left side names (identifier, property, element, or a destructuring
// pattern literal on the left -- array/object literals used as `=`
// targets desugar element-by-element).
func (c *Context) lowerAssign(n *ast.AssignExpr) *ir.Value {
	value := c.LowerExpr(n.Value)

	if n.Op != "=" {
		op := n.Op[:len(n.Op)-1]
		if pa, ok := n.Target.(*ast.PropertyAccessExpr); ok {
			return c.compoundStoreProperty(pa, op, value)
		}
		ref, elemType, ok := c.lowerRef(n.Target)
		if !ok {
			return value
		}
		cur := c.Builder.Load(ref)
		combined := c.Builder.ArithBinary(op, cur, value, elemType)
		c.Builder.Store(combined, ref)
		return combined
	}

	switch target := n.Target.(type) {
	case *ast.ArrayLiteral:
		c.lowerArrayDestructure(target, value)
		return value
	case *ast.ObjectLiteral:
		c.lowerObjectDestructure(target, value)
		return value
	case *ast.PropertyAccessExpr:
		return c.storeProperty(target, value)
	default:
		ref, elemType, ok := c.lowerRef(n.Target)
		if !ok {
			return value
		}
		casted := c.coerce(value, elemType)
		c.Builder.Store(casted, ref)
		return casted
	}
}

// storeProperty is the property-target leg of the save-logic: the receiver
// is evaluated once, then the value goes through the accessor's setter when
// the property is an accessor, or through its storage ref otherwise.
func (c *Context) storeProperty(pa *ast.PropertyAccessExpr, value *ir.Value) *ir.Value {
	obj := c.LowerExpr(pa.Object)
	if owner, acc, ok := c.accessorFor(obj.Type, pa.Property); ok {
		if !acc.HasSetter {
			c.Diags.Errorf(diag.TypeMismatch, pa.Range(), "property %q has a getter but no setter", pa.Property)
			return value
		}
		casted := c.coerce(value, acc.Type)
		c.emitAccessorCall(classlayout.SetterSymbolName(owner, pa.Property), []*ir.Value{obj, casted}, nil)
		return casted
	}
	ref, elemType, ok := c.resolveProperty(obj, pa.Property, pa.Object.Range())
	if !ok || ref == nil {
		return value
	}
	casted := c.coerce(value, elemType)
	c.Builder.Store(casted, ref)
	return casted
}

// compoundStoreProperty implements `obj.x op= v` with the receiver lowered
// once. An accessor target reads through the getter and writes back through
// the setter; both halves must exist.
func (c *Context) compoundStoreProperty(pa *ast.PropertyAccessExpr, op string, value *ir.Value) *ir.Value {
	obj := c.LowerExpr(pa.Object)
	if owner, acc, ok := c.accessorFor(obj.Type, pa.Property); ok {
		if !acc.HasGetter || !acc.HasSetter {
			c.Diags.Errorf(diag.TypeMismatch, pa.Range(), "property %q needs both a getter and a setter here", pa.Property)
			return value
		}
		cur := c.emitAccessorCall(classlayout.GetterSymbolName(owner, pa.Property), []*ir.Value{obj}, acc.Type)
		combined := c.Builder.ArithBinary(op, cur, value, acc.Type)
		c.emitAccessorCall(classlayout.SetterSymbolName(owner, pa.Property), []*ir.Value{obj, combined}, nil)
		return combined
	}
	ref, elemType, ok := c.resolveProperty(obj, pa.Property, pa.Object.Range())
	if !ok || ref == nil {
		return value
	}
	cur := c.Builder.Load(ref)
	combined := c.Builder.ArithBinary(op, cur, value, elemType)
	c.Builder.Store(combined, ref)
	return combined
}

func (c *Context) lowerArrayDestructure(pattern *ast.ArrayLiteral, source *ir.Value) {
	elem := elementTypeOf(source.Type)
	for i, el := range pattern.Elements {
		if el == nil {
			continue
		}
		idx := c.Builder.Constant(types.NewInt(64, false), i)
		itemRef := c.Builder.ElementRef(source, idx, elem)
		item := c.Builder.Load(itemRef)
		c.storeIntoTarget(el, item)
	}
}

func (c *Context) lowerObjectDestructure(pattern *ast.ObjectLiteral, source *ir.Value) {
	for i, key := range pattern.Keys {
		ref, _, ok := c.resolveProperty(source, key, pattern.Range())
		if !ok || ref == nil {
			continue
		}
		item := c.Builder.Load(ref)
		if i < len(pattern.Values) {
			c.storeIntoTarget(pattern.Values[i], item)
		}
	}
}

func (c *Context) storeIntoTarget(target ast.Expr, value *ir.Value) {
	switch t := target.(type) {
	case *ast.ArrayLiteral:
		c.lowerArrayDestructure(t, value)
	case *ast.ObjectLiteral:
		c.lowerObjectDestructure(t, value)
	case *ast.PropertyAccessExpr:
		c.storeProperty(t, value)
	default:
		ref, elemType, ok := c.lowerRef(target)
		if !ok {
			return
		}
		c.Builder.Store(c.coerce(value, elemType), ref)
	}
}

func (c *Context) lowerTemplateLiteral(n *ast.TemplateLiteral) *ir.Value {
	if len(n.Parts) == 0 {
		return c.Builder.Constant(types.TString, "")
	}
	acc := c.LowerExpr(n.Parts[0])
	if acc.Type.Kind != types.String {
		acc = c.Builder.Cast(acc, types.TString)
	}
	for _, part := range n.Parts[1:] {
		next := c.LowerExpr(part)
		if next.Type.Kind != types.String {
			next = c.Builder.Cast(next, types.TString)
		}
		acc = c.Builder.StringConcat(acc, next)
	}
	return acc
}

func (c *Context) lowerArrayLiteral(n *ast.ArrayLiteral) *ir.Value {
	var elemType *types.Type = types.TAny
	values := make([]*ir.Value, len(n.Elements))
	for i, el := range n.Elements {
		values[i] = c.LowerExpr(el)
		if i == 0 {
			elemType = values[i].Type
		} else if !elemType.Equal(values[i].Type) {
			elemType = types.Union(elemType, values[i].Type)
		}
	}
	arr := c.Builder.NewArray(elemType, c.Builder.Constant(types.NewInt(64, false), len(values)))
	for i, v := range values {
		idx := c.Builder.Constant(types.NewInt(64, false), i)
		c.Builder.Store(v, c.Builder.ElementRef(arr, idx, elemType))
	}
	return arr
}

// lowerObjectLiteral builds the object's storage: declared key/value
// fields first, then one function-typed field per object-literal method,
// then -- when any method closed over outer variables -- a single
// accumulated `.captured` tuple all the literal's methods share
// (spec.md §4.6); method bodies reach it through `this..captured`.
func (c *Context) lowerObjectLiteral(n *ast.ObjectLiteral) *ir.Value {
	names := append([]string(nil), n.Keys...)
	var fields []*types.Type
	var values []*ir.Value
	for _, v := range n.Values {
		val := c.LowerExpr(v)
		values = append(values, val)
		fields = append(fields, val.Type)
	}

	var shared []closure.Capture
	seen := map[string]bool{}
	for _, m := range n.Methods {
		fn, captures := c.LowerFunction(m, c.syntheticFuncName(m))
		for _, capt := range captures {
			if seen[capt.Name] {
				continue
			}
			seen[capt.Name] = true
			shared = append(shared, capt)
		}
		fieldName := m.Name
		if fieldName == "" {
			fieldName = fn.Name
		}
		names = append(names, fieldName)
		fields = append(fields, fn.Type)
		values = append(values, c.Builder.SymbolRef(fn.Name, fn.Type))
	}
	if len(shared) > 0 {
		tupleType := closure.TupleType(shared)
		sources := make([]*ir.Value, len(shared))
		for i, capt := range shared {
			sources[i] = capt.Source
		}
		names = append(names, closure.CapturedFieldName)
		fields = append(fields, tupleType)
		values = append(values, c.Builder.Capture(sources, tupleType))
	}

	objType := types.NewObject(names, fields)
	storage := c.Builder.New(objType, true)
	for i, v := range values {
		idx := c.Builder.Constant(types.NewInt(64, false), i)
		c.Builder.Store(v, c.Builder.ElementRef(storage, idx, fields[i]))
	}
	return storage
}

// lowerFunctionExpr lowers an arrow/function expression in value position:
// its capture tuple (if any) is built from the enclosing discovery and the
// resulting value is either a plain symbol-ref (no captures) or a
// create-bound-function pairing the capture tuple with the function
// symbol (spec.md §4.6).
func (c *Context) lowerFunctionExpr(n *ast.FunctionExpr) *ir.Value {
	fn, captures := c.LowerFunction(n, c.syntheticFuncName(n))
	if len(captures) == 0 {
		return c.Builder.SymbolRef(fn.Name, fn.Type)
	}
	captureType := closure.TupleType(captures)
	sources := make([]*ir.Value, len(captures))
	for i, capt := range captures {
		sources[i] = capt.Source
	}
	tuple := c.Builder.Capture(sources, captureType)
	boundType := closure.BoundType(captureType, *fn.Type.Sig)
	return c.Builder.CreateBoundFunction(tuple, c.Builder.SymbolRef(fn.Name, fn.Type), boundType)
}

// coerce adapts value to a declared target type. A class value flowing
// into an interface it implements becomes a
// new-interface(instance, &Class.Interface..vtable) pair (spec.md §4.5);
// everything else is a plain cast.
func (c *Context) coerce(value *ir.Value, target *types.Type) *ir.Value {
	if target == nil || value.Type.Equal(target) {
		return value
	}
	if value.Type.Kind == types.Class && target.Kind == types.Interface && c.classImplements(value.Type.Name, target.Name) {
		vt := c.Builder.AddressOf(value.Type.Name+"."+target.Name+"..vtable", types.TOpaque)
		return c.Builder.NewInterface(value, vt, target)
	}
	return c.Builder.Cast(value, target)
}

func (c *Context) classImplements(className, ifaceName string) bool {
	for cur := className; cur != ""; {
		cls, ok := c.Classes.Class(cur)
		if !ok {
			return false
		}
		for _, i := range cls.Implements {
			if i == ifaceName {
				return true
			}
		}
		cur = cls.BaseName
	}
	return false
}

var anonCounter int

func (c *Context) syntheticFuncName(n *ast.FunctionExpr) string {
	if n.Name != "" {
		return n.Name
	}
	anonCounter++
	return "$anon" + strconv.Itoa(anonCounter)
}
