package closure

import (
	"testing"

	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

func TestObserveSkipsAncestorRegion(t *testing.T) {
	outer := &ir.Region{}
	d := NewDiscovery()
	sym := &symtab.Symbol{Name: "x", Type: types.NewInt(32, false)}
	value := &ir.Value{Type: types.NewRef(sym.Type)}

	d.Observe(sym, value, outer, RegionPath{outer})
	if !d.Empty() {
		t.Fatalf("expected no capture when defining region is in the current path")
	}
}

func TestObserveRecordsNonAncestorByRefWhenMutable(t *testing.T) {
	defRegion := &ir.Region{}
	curPath := RegionPath{&ir.Region{}}
	d := NewDiscovery()
	sym := &symtab.Symbol{Name: "counter", Type: types.NewInt(32, false), Mutable: true}
	value := &ir.Value{Type: types.NewRef(sym.Type)}

	d.Observe(sym, value, defRegion, curPath)
	if d.Empty() {
		t.Fatalf("expected a capture to be recorded")
	}
	captures := d.Captures()
	if len(captures) != 1 || captures[0].Mode != ByRef {
		t.Fatalf("expected one by-ref capture, got %+v", captures)
	}
}

func TestObserveIgnoresFlaggedSymbol(t *testing.T) {
	defRegion := &ir.Region{}
	d := NewDiscovery()
	sym := &symtab.Symbol{Name: "this", Type: types.TOpaque, IgnoreForCapture: true}
	d.Observe(sym, &ir.Value{}, defRegion, RegionPath{})
	if !d.Empty() {
		t.Fatalf("expected ignore-for-capture symbol to be skipped")
	}
}

func TestObserveIsIdempotentPerName(t *testing.T) {
	defRegion := &ir.Region{}
	d := NewDiscovery()
	sym := &symtab.Symbol{Name: "x", Type: types.TString}
	d.Observe(sym, &ir.Value{}, defRegion, RegionPath{})
	d.Observe(sym, &ir.Value{}, defRegion, RegionPath{})
	if len(d.Captures()) != 1 {
		t.Fatalf("expected one capture despite two observations, got %d", len(d.Captures()))
	}
}

func TestMarkCapturedFlagsSourceValue(t *testing.T) {
	v := &ir.Value{}
	MarkCaptured([]Capture{{Name: "x", Source: v}})
	if !v.Captured {
		t.Fatalf("expected source value to be marked captured")
	}
}

func TestTupleTypeUsesRefForByRefCaptures(t *testing.T) {
	tup := TupleType([]Capture{
		{Name: "a", Type: types.TString, Mode: ByValue},
		{Name: "b", Type: types.NewInt(32, false), Mode: ByRef},
	})
	if tup.Fields[0].Kind != types.String {
		t.Fatalf("expected by-value field to be string, got %v", tup.Fields[0].Kind)
	}
	if tup.Fields[1].Kind != types.Ref {
		t.Fatalf("expected by-ref field to be wrapped in ref(), got %v", tup.Fields[1].Kind)
	}
}

func TestPrependCaptureParamAddsLeadingParam(t *testing.T) {
	sig := types.FuncSig{Params: []types.Param{{Name: "x", Type: types.TString}}, Return: types.TVoid}
	captureType := types.NewTuple(types.TString)
	amended := PrependCaptureParam(sig, captureType)
	if len(amended.Params) != 2 || amended.Params[0].Name != CapturedFieldName {
		t.Fatalf("expected capture param prepended, got %+v", amended.Params)
	}
}

func TestTupleIDIsDeterministicAndDistinguishesShape(t *testing.T) {
	a := []Capture{{Name: "x", Type: types.TString, Mode: ByValue}}
	b := []Capture{{Name: "x", Type: types.TString, Mode: ByValue}}
	c := []Capture{{Name: "y", Type: types.TString, Mode: ByValue}}

	if TupleID(a) != TupleID(b) {
		t.Fatalf("expected identical capture lists to yield the same id")
	}
	if TupleID(a) == TupleID(c) {
		t.Fatalf("expected different capture lists to yield different ids")
	}
}

func TestBoundTypeDropsCaptureParamFromVisibleArity(t *testing.T) {
	captureType := types.NewTuple(types.TString)
	amended := types.FuncSig{
		Params: []types.Param{{Name: CapturedFieldName, Type: types.NewRef(captureType)}, {Name: "x", Type: types.TBool}},
		Return: types.TVoid,
	}
	bound := BoundType(captureType, amended)
	if len(bound.Sig.Params) != 1 || bound.Sig.Params[0].Name != "x" {
		t.Fatalf("expected visible arity to drop the capture param, got %+v", bound.Sig.Params)
	}
}
