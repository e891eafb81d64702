package symtab

import (
	"testing"

	"lumac/internal/types"
)

func TestLookupOuterLocalStaysLocal(t *testing.T) {
	fnScope := NewFunctionScope(nil, -1)
	fnScope.Declare(&Symbol{Name: "x", Type: types.TString}, false)

	sym, outer, ok := fnScope.LookupOuter("x")
	if !ok || sym == nil {
		t.Fatalf("expected x to resolve")
	}
	if outer {
		t.Fatalf("a symbol declared in the function's own scope is not outer")
	}
}

func TestLookupOuterCrossesFunctionBoundary(t *testing.T) {
	enclosing := NewScope(nil)
	enclosing.Declare(&Symbol{Name: "counter", Type: types.NewInt(32, false), Mutable: true}, false)
	inner := NewScope(NewFunctionScope(enclosing, -1))

	sym, outer, ok := inner.LookupOuter("counter")
	if !ok || sym == nil {
		t.Fatalf("expected counter to resolve through the chain")
	}
	if !outer {
		t.Fatalf("a symbol beyond the function-scope entry must report outer")
	}
}

func TestLookupOuterShadowingParamIsNotOuter(t *testing.T) {
	enclosing := NewScope(nil)
	enclosing.Declare(&Symbol{Name: "v", Type: types.TString}, false)
	fnScope := NewFunctionScope(enclosing, -1)
	fnScope.Declare(&Symbol{Name: "v", Type: types.TBool}, false)

	sym, outer, ok := fnScope.LookupOuter("v")
	if !ok || sym.Type != types.TBool {
		t.Fatalf("expected the parameter to shadow the enclosing binding")
	}
	if outer {
		t.Fatalf("the shadowing parameter is the function's own binding")
	}
}
