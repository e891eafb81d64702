package classlayout

import (
	"testing"

	"lumac/internal/diag"
	"lumac/internal/types"
)

func newTestArena() *Arena {
	return NewArena(diag.NewSink())
}

func TestStorageTupleOrdersVTableBaseOwnPromoted(t *testing.T) {
	a := newTestArena()
	a.AddClass(&ClassInfo{
		FullName: "Animal",
		Fields:   []FieldDef{{Name: "name", Type: types.TString}},
	})
	a.AddClass(&ClassInfo{
		FullName:   "Dog",
		BaseName:   "Animal",
		Implements: []string{"Pet"},
		Fields:     []FieldDef{{Name: "breed", Type: types.TString}},
		ConstructorPromoted: []FieldDef{
			{Name: "tagId", Type: types.NewInt(32, false)},
		},
		Methods: []MethodDef{{Name: "bark", Virtual: true, Sig: &types.FuncSig{Return: types.TVoid}}},
	})
	a.AddInterface(&InterfaceInfo{FullName: "Pet"})

	storage := a.StorageTuple("Dog")
	want := []string{"vtable", "name", "breed", "tagId"}
	if len(storage.FieldNames) != len(want) {
		t.Fatalf("expected %d fields, got %v", len(want), storage.FieldNames)
	}
	for i, n := range want {
		if storage.FieldNames[i] != n {
			t.Fatalf("field %d: expected %q, got %q", i, n, storage.FieldNames[i])
		}
	}
}

func TestVTableInheritsParentPrefixAndAppends(t *testing.T) {
	a := newTestArena()
	a.AddClass(&ClassInfo{
		FullName: "Shape",
		Methods:  []MethodDef{{Name: "area", Virtual: true, Sig: &types.FuncSig{Return: types.NewFloat(64)}}},
	})
	a.AddClass(&ClassInfo{
		FullName: "Circle",
		BaseName: "Shape",
		Methods: []MethodDef{
			{Name: "area", Virtual: true, Sig: &types.FuncSig{Return: types.NewFloat(64)}},
			{Name: "circumference", Virtual: true, Sig: &types.FuncSig{Return: types.NewFloat(64)}},
		},
	})

	vt := a.VTable("Circle")
	if len(vt) != 2 {
		t.Fatalf("expected 2 vtable entries, got %d", len(vt))
	}
	if vt[0].MethodName != "area" || vt[0].Symbol != "Circle.area" {
		t.Fatalf("expected overridden area slot to point at Circle.area, got %+v", vt[0])
	}
	if vt[1].MethodName != "circumference" {
		t.Fatalf("expected appended circumference slot, got %+v", vt[1])
	}
}

func TestInterfaceVTableResolvesFieldAndMethodAndConditional(t *testing.T) {
	a := newTestArena()
	a.AddInterface(&InterfaceInfo{
		FullName: "Named",
		Members: []InterfaceMember{
			{Name: "name", Type: types.TString},
			{Name: "rename", Sig: &types.FuncSig{Return: types.TVoid}},
			{Name: "nickname", Type: types.TString, Conditional: true},
		},
	})
	a.AddClass(&ClassInfo{
		FullName:   "Person",
		Implements: []string{"Named"},
		Fields:     []FieldDef{{Name: "name", Type: types.TString}},
		Methods:    []MethodDef{{Name: "rename", Virtual: true, Sig: &types.FuncSig{Return: types.TVoid}}},
	})

	entries := a.InterfaceVTableForClass("Person", "Named")
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Kind != IfaceEntryField || entries[0].FieldOffset != 1 {
		t.Fatalf("expected field entry at offset 1 (after the vtable slot), got %+v", entries[0])
	}
	if entries[1].Kind != IfaceEntryMethod || entries[1].Symbol != "Person.rename" {
		t.Fatalf("expected method entry for rename, got %+v", entries[1])
	}
	if entries[2].Kind != IfaceEntryMissingConditional {
		t.Fatalf("expected conditional-missing entry for nickname, got %+v", entries[2])
	}
}

func TestTypedGCBitmapMarksOnlyPointerLikeFields(t *testing.T) {
	a := newTestArena()
	a.AddClass(&ClassInfo{
		FullName: "Point",
		Fields: []FieldDef{
			{Name: "x", Type: types.NewInt(32, false)},
			{Name: "label", Type: types.TString},
		},
	})

	bitmap, length := a.TypedGCBitmap("Point")
	if length != 2 {
		t.Fatalf("expected length 2, got %d", length)
	}
	if bitmap[0] != 0b10 {
		t.Fatalf("expected only the string field's bit set, got %b", bitmap[0])
	}
}

func TestAccessorResolvesThroughBaseChain(t *testing.T) {
	a := newTestArena()
	a.AddClass(&ClassInfo{
		FullName: "Base",
		Accessors: []AccessorDef{
			{Name: "size", Type: types.NewFloat(64), HasGetter: true, HasSetter: true},
		},
	})
	a.AddClass(&ClassInfo{FullName: "Derived", BaseName: "Base"})

	owner, acc, ok := a.Accessor("Derived", "size")
	if !ok {
		t.Fatalf("expected the inherited accessor to resolve")
	}
	if owner != "Base" {
		t.Fatalf("expected Base to own the accessor, got %q", owner)
	}
	if !acc.HasGetter || !acc.HasSetter {
		t.Fatalf("expected both halves, got %+v", acc)
	}
	if _, _, ok := a.Accessor("Derived", "weight"); ok {
		t.Fatalf("expected an unknown accessor name to miss")
	}
}

func TestInterfaceMemberIndexFollowsFlattenedOrder(t *testing.T) {
	a := newTestArena()
	a.AddInterface(&InterfaceInfo{
		FullName: "HasName",
		Members:  []InterfaceMember{{Name: "name", Type: types.TString}},
	})
	a.AddInterface(&InterfaceInfo{
		FullName: "Labeled",
		Extends:  []string{"HasName"},
		Members:  []InterfaceMember{{Name: "label", Type: types.TString}},
	})

	if _, idx, ok := a.Member("Labeled", "name"); !ok || idx != 0 {
		t.Fatalf("expected inherited member first, got idx=%d ok=%v", idx, ok)
	}
	if _, idx, ok := a.Member("Labeled", "label"); !ok || idx != 1 {
		t.Fatalf("expected own member after inherited ones, got idx=%d ok=%v", idx, ok)
	}
}
