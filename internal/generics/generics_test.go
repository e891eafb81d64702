package generics

import (
	"testing"

	"lumac/internal/diag"
	"lumac/internal/types"
)

func newTestEngine() *Engine {
	return NewEngine(diag.NewSink())
}

// identity<T>(x: T): T
func identityInfo() *Info {
	tParam := types.NewNamedGeneric("T")
	return &Info{
		FullName:   "identity",
		Kind:       KindFunction,
		TypeParams: []TypeParam{{Name: "T"}},
		Sig: &types.FuncSig{
			Params: []types.Param{{Name: "x", Type: tParam}},
			Return: tParam,
		},
	}
}

func TestSpecializeInfersFromOperand(t *testing.T) {
	e := newTestEngine()
	e.Register(identityInfo())

	result, symbol, err := e.Specialize("identity", nil, []*types.Type{types.NewInt(32, false)}, nil)
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if result.Kind != types.Function {
		t.Fatalf("expected function type, got %v", result.Kind)
	}
	if !result.Sig.Return.Equal(types.NewInt(32, false)) {
		t.Fatalf("expected return type i32, got %s", result.Sig.Return.String())
	}
	if symbol != "identity<i32>" {
		t.Fatalf("expected specialized symbol identity<i32>, got %s", symbol)
	}
}

func TestSpecializeIsCached(t *testing.T) {
	e := newTestEngine()
	e.Register(identityInfo())

	a, aSymbol, err := e.Specialize("identity", nil, []*types.Type{types.TString}, nil)
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	b, bSymbol, err := e.Specialize("identity", nil, []*types.Type{types.TString}, nil)
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if a != b {
		t.Fatalf("expected pointer-identical cached specialization")
	}
	if aSymbol != bSymbol {
		t.Fatalf("expected identical cached symbol, got %q and %q", aSymbol, bSymbol)
	}
}

func TestSpecializeExplicitArgBeatsInference(t *testing.T) {
	e := newTestEngine()
	e.Register(identityInfo())

	result, _, err := e.Specialize("identity", []*types.Type{types.TBool}, []*types.Type{types.NewInt(32, false)}, nil)
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if !result.Sig.Return.Equal(types.TBool) {
		t.Fatalf("expected explicit type arg to win, got %s", result.Sig.Return.String())
	}
}

// A dry specialization must answer the type-level question without
// emitting anything or caching: the first real pass afterward still owes
// the one materialization.
func TestSpecializeDryLeavesEngineUntouched(t *testing.T) {
	e := newTestEngine()
	e.Register(identityInfo())
	materialized := 0
	e.Materializer = func(*Info, string, map[string]*types.Type) { materialized++ }

	result, symbol, err := e.SpecializeDry("identity", nil, []*types.Type{types.NewInt(32, false)}, nil)
	if err != nil {
		t.Fatalf("SpecializeDry: %v", err)
	}
	if !result.Sig.Return.Equal(types.NewInt(32, false)) || symbol != "identity<i32>" {
		t.Fatalf("expected the dry pass to compute the same answer, got %s / %q", result.String(), symbol)
	}
	if materialized != 0 {
		t.Fatalf("expected no materialization during a dry pass, got %d", materialized)
	}
	if len(e.cache) != 0 {
		t.Fatalf("expected no cache write during a dry pass, got %d entries", len(e.cache))
	}

	if _, _, err := e.Specialize("identity", nil, []*types.Type{types.NewInt(32, false)}, nil); err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if materialized != 1 {
		t.Fatalf("expected the first real pass to materialize once, got %d", materialized)
	}
}

func TestSpecializeLeavesGenericWhenUnderConstrained(t *testing.T) {
	e := newTestEngine()
	e.Register(identityInfo())

	result, symbol, err := e.Specialize("identity", nil, nil, nil)
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if result.Kind != types.Function {
		t.Fatalf("expected the generic base function type back, got %v", result.Kind)
	}
	if result.Sig.Return.Kind != types.NamedGeneric {
		t.Fatalf("expected unresolved named-generic return, got %s", result.Sig.Return.String())
	}
	if symbol != "identity" {
		t.Fatalf("expected the unspecialized symbol back, got %q", symbol)
	}
}

func TestSpecializeReentrancyReturnsTombstone(t *testing.T) {
	e := newTestEngine()
	info := identityInfo()
	e.Register(info)

	key := specializationKey(info.FullName, info.TypeParams, map[string]*types.Type{"T": types.TString})
	e.inProgress[key] = true
	defer delete(e.inProgress, key)

	result, symbol, err := e.Specialize("identity", []*types.Type{types.TString}, nil, nil)
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if result.Kind != types.Function {
		t.Fatalf("expected tombstone to resolve to the generic base, got %v", result.Kind)
	}
	if symbol != "identity" {
		t.Fatalf("expected the tombstone to carry the unspecialized symbol, got %q", symbol)
	}
}

// apply<T, U>(x: T, f: (v: T) => U): U -- the shape whose U is only
// discoverable through the arrow argument's inferred return type.
func TestSpecializeDelayedArrowBindsReturnParam(t *testing.T) {
	e := newTestEngine()
	tp := types.NewNamedGeneric("T")
	up := types.NewNamedGeneric("U")
	e.Register(&Info{
		FullName:   "apply",
		Kind:       KindFunction,
		TypeParams: []TypeParam{{Name: "T"}, {Name: "U"}},
		Sig: &types.FuncSig{
			Params: []types.Param{
				{Name: "x", Type: tp},
				{Name: "f", Type: types.NewFunction(types.FuncSig{Params: []types.Param{{Name: "v", Type: tp}}, Return: up})},
			},
			Return: up,
		},
	})

	var seen *types.Type
	probe := func(expected *types.Type) *types.Type {
		seen = expected
		sig := *expected.Sig
		sig.Return = types.TString
		return types.NewFunction(sig)
	}

	result, symbol, err := e.Specialize("apply", nil,
		[]*types.Type{types.NewInt(32, false), nil},
		[]ArrowArg{{Index: 1, Probe: probe}})
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if seen == nil || seen.Sig == nil || !seen.Sig.Params[0].Type.Equal(types.NewInt(32, false)) {
		t.Fatalf("expected the probe to see T already substituted to i32, got %v", seen)
	}
	if !result.Sig.Return.Equal(types.TString) {
		t.Fatalf("expected U bound to string through the arrow's return, got %s", result.Sig.Return.String())
	}
	if symbol != "apply<i32,string>" {
		t.Fatalf("expected symbol apply<i32,string>, got %q", symbol)
	}
}

// type L<T> = T | L<T> -- the recursive-alias fixed point must terminate
// with the inner occurrence still carrying its unresolved named-generic.
func TestSpecializeRecursiveAliasTerminatesWithPlaceholder(t *testing.T) {
	e := newTestEngine()
	tp := types.NewNamedGeneric("T")
	inner := types.NewNamed(types.Generic, "L", tp)
	e.Register(&Info{
		FullName:   "L",
		Kind:       KindTypeAlias,
		TypeParams: []TypeParam{{Name: "T"}},
		Aliased:    types.Union(tp, inner),
	})

	result, _, err := e.Specialize("L", []*types.Type{types.TString}, nil, nil)
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if result.Kind != types.KindUnion {
		t.Fatalf("expected a union, got %s", result.String())
	}
	foundString, foundInner := false, false
	for _, m := range result.Members {
		if m.Equal(types.TString) {
			foundString = true
		}
		if m.Kind == types.Generic && m.Name == "L" && len(m.TypeArgs) == 1 && m.TypeArgs[0].Kind == types.NamedGeneric {
			foundInner = true
		}
	}
	if !foundString || !foundInner {
		t.Fatalf("expected string | L<T> with the inner named-generic intact, got %s", result.String())
	}
}

func TestUnifyArrayElement(t *testing.T) {
	bindings := map[string]*types.Type{}
	param := types.NewArray(types.NewNamedGeneric("E"))
	arg := types.NewArray(types.TString)
	if err := Unify(param, arg, bindings); err != nil {
		t.Fatalf("Unify: %v", err)
	}
	if !bindings["E"].Equal(types.TString) {
		t.Fatalf("expected E bound to string, got %s", bindings["E"].String())
	}
}

func TestUnifyOptionalInner(t *testing.T) {
	bindings := map[string]*types.Type{}
	param := types.NewOptional(types.NewNamedGeneric("T"))
	if err := Unify(param, types.NewInt(64, false), bindings); err != nil {
		t.Fatalf("Unify: %v", err)
	}
	if !bindings["T"].Equal(types.NewInt(64, false)) {
		t.Fatalf("expected T bound to i64, got %s", bindings["T"].String())
	}
}

func TestSubstituteSubstitutesNestedFunction(t *testing.T) {
	tParam := types.NewNamedGeneric("T")
	sig := types.FuncSig{Params: []types.Param{{Name: "x", Type: types.NewArray(tParam)}}, Return: tParam}
	fn := types.NewFunction(sig)

	result := Substitute(fn, map[string]*types.Type{"T": types.TBool})
	if !result.Sig.Return.Equal(types.TBool) {
		t.Fatalf("expected substituted return type bool, got %s", result.Sig.Return.String())
	}
	if !result.Sig.Params[0].Type.Elem.Equal(types.TBool) {
		t.Fatalf("expected substituted param element type bool, got %s", result.Sig.Params[0].Type.Elem.String())
	}
}
