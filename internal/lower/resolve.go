package lower

import (
	"lumac/internal/ast"
	"lumac/internal/config"
	"lumac/internal/diag"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// ResolveType mirrors a syntax-level ast.TypeNode into the internal/types
// sum (spec.md §6 "type nodes mirroring the Type sum"). It is the one
// place lowering crosses from the parser's annotation shape into the
// interned Type world; every other package consumes *types.Type only.
func (c *Context) ResolveType(n ast.TypeNode) *types.Type {
	if n == nil {
		return types.TAny
	}
	switch t := n.(type) {
	case *ast.KeywordTypeNode:
		switch t.Keyword {
		case "any":
			return types.TAny
		case "unknown":
			return types.TUnknown
		case "never":
			return types.TNever
		case "void":
			return types.TVoid
		case "undefined":
			return types.TUndefined
		case "null":
			return types.TNull
		case "object":
			return types.NewObject(nil, nil)
		case "number":
			width := 64
			if c.Options.NumberPrecision == config.PrecisionF32 {
				width = 32
			}
			return types.NewFloat(width)
		case "string":
			return types.TString
		case "boolean":
			return types.TBool
		case "bigint":
			return types.TBigInt
		case "symbol":
			return types.TSymbol
		}
		return types.TAny
	case *ast.NamedTypeNode:
		return c.resolveNamedType(t)
	case *ast.ArrayTypeNode:
		elem := c.ResolveType(t.Elem)
		if t.Length >= 0 {
			return types.NewConstArray(elem, t.Length)
		}
		return types.NewArray(elem)
	case *ast.TupleTypeNode:
		elems := make([]*types.Type, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = c.ResolveType(e)
		}
		return types.NewTuple(elems...)
	case *ast.UnionTypeNode:
		members := make([]*types.Type, len(t.Members))
		for i, m := range t.Members {
			members[i] = c.ResolveType(m)
		}
		return types.Union(members...)
	case *ast.IntersectionTypeNode:
		members := make([]*types.Type, len(t.Members))
		for i, m := range t.Members {
			members[i] = c.ResolveType(m)
		}
		return types.Intersection(members...)
	case *ast.OptionalTypeNode:
		return types.NewOptional(c.ResolveType(t.Elem))
	case *ast.FunctionTypeNode:
		sig := types.FuncSig{Return: c.ResolveType(t.Return)}
		sig.Params = make([]types.Param, len(t.Params))
		for i, p := range t.Params {
			sig.Params[i] = types.Param{Name: p.Name, Type: c.ResolveType(p.Type), Optional: p.Optional, Variadic: p.Variadic}
			if p.Variadic {
				sig.Variadic = true
			}
		}
		return types.NewFunction(sig)
	case *ast.LiteralTypeNode:
		return types.NewLiteralOf(t.Value, literalBaseFor(t.Value))
	case *ast.ThisTypeNode:
		// ThisType<T> is accepted as an annotation. ThisTypeNode carries no
		// type argument, so it resolves to any here, not to T.
		return types.TAny
	case *ast.InferTypeNode:
		return types.NewInfer(types.NewNamedGeneric(t.Name))
	}
	return types.TAny
}

func literalBaseFor(v any) *types.Type {
	switch v.(type) {
	case string:
		return types.TString
	case bool:
		return types.TBool
	default:
		return types.NewFloat(64)
	}
}

// resolveNamedType resolves a NamedTypeNode against the namespace tree and
// generic arenas, applying spec.md §9's identity-transform decisions for
// Readonly<T>/Partial<T>/Required<T> before falling through to ordinary
// class/interface/type-alias/generic resolution.
func (c *Context) resolveNamedType(t *ast.NamedTypeNode) *types.Type {
	switch t.Name {
	case "Readonly", "Partial", "Required":
		if len(t.TypeArgs) == 1 {
			return c.ResolveType(t.TypeArgs[0])
		}
	}

	if len(t.TypeArgs) == 0 {
		if bound, ok := c.TypeBindings[t.Name]; ok {
			return bound
		}
	}

	typeArgs := make([]*types.Type, len(t.TypeArgs))
	for i, a := range t.TypeArgs {
		typeArgs[i] = c.ResolveType(a)
	}

	full, cat, ok := c.Namespace.Lookup(t.Name, nil)
	if !ok {
		c.Diags.Errorf(diag.UnresolvedSymbol, diag.Location{}, "unresolved type %q", t.Name)
		return types.TAny
	}

	switch cat {
	case symtab.CatClass, symtab.CatGenericClass:
		if len(typeArgs) > 0 {
			spec, _, err := c.specialize(full, typeArgs, nil, nil)
			if err == nil {
				return spec
			}
		}
		return types.NewNamed(types.Class, full, typeArgs...)
	case symtab.CatInterface, symtab.CatGenericInterface:
		if len(typeArgs) > 0 {
			spec, _, err := c.specialize(full, typeArgs, nil, nil)
			if err == nil {
				return spec
			}
		}
		return types.NewNamed(types.Interface, full, typeArgs...)
	case symtab.CatEnum:
		return types.NewNamed(types.Enum, full)
	case symtab.CatTypeAlias, symtab.CatGenericTypeAlias:
		if len(typeArgs) > 0 {
			spec, _, err := c.specialize(full, typeArgs, nil, nil)
			if err == nil {
				return spec
			}
			// Self-reference while the alias's own template is still being
			// shaped (`type L<T> = T | L<T>`): the inner occurrence stays a
			// generic placeholder carrying its unresolved args, so the
			// fixed point terminates with `T | L<T>` intact.
			return types.NewNamed(types.Generic, full, typeArgs...)
		}
		if info, ok := c.Generics.Lookup(full); ok && info.Aliased != nil {
			return info.Aliased
		}
		return types.TAny
	}
	return types.NewNamedGeneric(t.Name)
}
