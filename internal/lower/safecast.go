package lower

import (
	"lumac/internal/ast"
	"lumac/internal/config"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// refinement is one scope-local retyping of an identifier, proven by a
// discriminating predicate in an if condition (spec.md §4.3 "Safe-cast").
// The shadow binding lives only inside the then-branch's child scope; the
// enclosing scope keeps the identifier's original type, so the refinement
// vanishes at the end of the branch (spec.md §8 "after the if, x's type is
// its original union type").
type refinement struct {
	name    string
	refined *types.Type
}

// detectRefinement recognizes the three predicate shapes spec.md §4.3
// enumerates, in either operand order for the equality forms:
//
//	typeof x === "string"   -> x : string (et al. per typeof keyword)
//	x === <literal>         -> x : literal-of(v, base)
//	x instanceof C          -> x : C
func (c *Context) detectRefinement(cond ast.Expr) (refinement, bool) {
	bin, ok := cond.(*ast.BinaryExpr)
	if !ok {
		return refinement{}, false
	}

	if bin.Op == "instanceof" {
		id, ok := bin.Left.(*ast.Identifier)
		if !ok {
			return refinement{}, false
		}
		className, ok := calleeIdentifierName(bin.Right)
		if !ok {
			return refinement{}, false
		}
		full, _, resolved := c.Namespace.Lookup(className, classLikeCats)
		if !resolved {
			return refinement{}, false
		}
		return refinement{name: id.Name, refined: types.NewNamed(types.Class, full)}, true
	}

	if bin.Op != "===" && bin.Op != "==" {
		return refinement{}, false
	}

	left, right := bin.Left, bin.Right
	if _, isLit := left.(*ast.Literal); isLit {
		left, right = right, left
	}

	lit, ok := right.(*ast.Literal)
	if !ok {
		return refinement{}, false
	}

	if un, ok := left.(*ast.UnaryExpr); ok && un.Op == "typeof" {
		id, ok := un.Operand.(*ast.Identifier)
		if !ok {
			return refinement{}, false
		}
		name, ok := lit.Value.(string)
		if !ok {
			return refinement{}, false
		}
		refined, ok := c.typeofResult(name)
		if !ok {
			return refinement{}, false
		}
		return refinement{name: id.Name, refined: refined}, true
	}

	if id, ok := left.(*ast.Identifier); ok {
		return refinement{name: id.Name, refined: types.NewLiteralOf(lit.Value, literalBaseFor(lit.Value))}, true
	}
	return refinement{}, false
}

// typeofResult maps a typeof-comparison string to the type it discriminates.
func (c *Context) typeofResult(name string) (*types.Type, bool) {
	switch name {
	case "string":
		return types.TString, true
	case "number":
		width := 64
		if c.Options.NumberPrecision == config.PrecisionF32 {
			width = 32
		}
		return types.NewFloat(width), true
	case "boolean":
		return types.TBool, true
	case "bigint":
		return types.TBigInt, true
	case "symbol":
		return types.TSymbol, true
	case "undefined":
		return types.TUndefined, true
	}
	return nil, false
}

// withRefinement runs fn in a child scope holding the refined shadow
// binding (immutable, so references load the refined value directly), or
// plain if the refined identifier is not actually in scope.
func (c *Context) withRefinement(ref refinement, okRef bool, fn func()) {
	if !okRef {
		fn()
		return
	}
	sym, found := c.Scope.Lookup(ref.name)
	if !found {
		fn()
		return
	}
	c.withChildScope(func() {
		shadow := &symtab.Symbol{Name: ref.name, Type: ref.refined, Mutable: false, At: sym.At, IgnoreForCapture: sym.IgnoreForCapture, Def: sym.Def}
		c.Scope.Declare(shadow, false)
		fn()
	})
}
