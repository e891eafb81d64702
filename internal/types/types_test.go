package types

import "testing"

func TestUnionIsIdempotent(t *testing.T) {
	u := Union(NewInt(32, false), TString)
	if got := Union(u, TString); got != u {
		t.Fatalf("expected U|Ti == U, got %s", got.String())
	}
	if got := Union(u, u); got != u {
		t.Fatalf("expected U|U == U, got %s", got.String())
	}
}

func TestUnionIsOrderIndependent(t *testing.T) {
	a := Union(TString, TBool, NewInt(32, false))
	b := Union(NewInt(32, false), TString, TBool)
	if a != b {
		t.Fatalf("expected canonical order to make member order irrelevant, got %s vs %s", a.String(), b.String())
	}
}

func TestUnionFlattensNested(t *testing.T) {
	inner := Union(TString, TBool)
	outer := Union(inner, NewInt(32, false))
	if len(outer.Members) != 3 {
		t.Fatalf("expected 3 flattened members, got %v", outer.Members)
	}
}

func TestUnionCollapsesLiteralWithBase(t *testing.T) {
	lit := NewLiteralOf("a", TString)
	u := Union(lit, TString)
	if u != TString {
		t.Fatalf("expected literal-of to collapse into its base, got %s", u.String())
	}
}

func TestEmptyUnionIsNever(t *testing.T) {
	if Union() != TNever {
		t.Fatalf("expected empty union to be never")
	}
}

func TestOptionalIsUnionWithUndefPlaceholder(t *testing.T) {
	opt := NewOptional(TString)
	if opt != Union(TString, TUndefPlaceholder) {
		t.Fatalf("expected optional(T) == union(T, undef-placeholder), got %s", opt.String())
	}
	inner, ok := opt.IsOptional()
	if !ok || inner != TString {
		t.Fatalf("expected IsOptional to unwrap string, got %v %v", inner, ok)
	}
}

func TestWidenErasesLiteralAndConstness(t *testing.T) {
	if got := Widen(NewLiteralOf(1, NewFloat(64))); got != NewFloat(64) {
		t.Fatalf("expected widen(literal-of(v,T)) == T, got %s", got.String())
	}
	ct := NewConstTuple(NewLiteralOf(1, NewFloat(64)), TString)
	widened := Widen(ct)
	if widened.Kind != Tuple {
		t.Fatalf("expected const-tuple to widen to tuple, got %s", widened.String())
	}
	if widened.Fields[0] != NewFloat(64) {
		t.Fatalf("expected widened tuple field to lose literal-of, got %s", widened.Fields[0].String())
	}
}

func TestIntersectionOfIncompatibleValueTypesIsNever(t *testing.T) {
	if got := Intersection(NewInt(32, false), TString); got != TNever {
		t.Fatalf("expected never, got %s", got.String())
	}
}

func TestIntersectionWithAnyIsIdentity(t *testing.T) {
	if got := Intersection(TAny, TString); got != TString {
		t.Fatalf("expected any to be identity, got %s", got.String())
	}
}

func TestIntersectionMergesTupleFields(t *testing.T) {
	a := NewTuple(NewInt(32, false))
	b := NewTuple(TString)
	got := Intersection(a, b)
	if got.Kind != Tuple || len(got.Fields) != 2 {
		t.Fatalf("expected merged 2-field tuple, got %s", got.String())
	}
}

func TestInterningGivesPointerEquality(t *testing.T) {
	a := NewFunction(FuncSig{Params: []Param{{Name: "x", Type: TString}}, Return: TBool})
	b := NewFunction(FuncSig{Params: []Param{{Name: "y", Type: TString}}, Return: TBool})
	if a != b {
		t.Fatalf("expected structurally-equal function types to intern to one instance")
	}
}

func TestLiteralOfIsSubtypeOfBase(t *testing.T) {
	lit := NewLiteralOf("e", TString)
	if !IsSubtype(lit, TString) {
		t.Fatalf("expected literal-of(v,T) <: T")
	}
	if IsSubtype(TString, lit) {
		t.Fatalf("expected T not <: literal-of(v,T)")
	}
}
