package exceptions

import (
	"testing"

	"lumac/internal/config"
	"lumac/internal/ir"
	"lumac/internal/types"
)

func TestNewSelectsLoweringByABI(t *testing.T) {
	if _, ok := New(config.ABIItanium).(itaniumLowering); !ok {
		t.Fatalf("expected itaniumLowering for ABIItanium")
	}
	if _, ok := New(config.ABIMSVC).(msvcLowering); !ok {
		t.Fatalf("expected msvcLowering for ABIMSVC")
	}
}

func TestItaniumTypeInfoNameForClass(t *testing.T) {
	l := itaniumLowering{}
	classType := types.NewNamed(types.Class, "Widget")
	if got := l.TypeInfoName(classType); got != "_ZTIP6Widget" {
		t.Fatalf("expected _ZTIP6Widget, got %s", got)
	}
}

func TestItaniumLowerThrowWithoutUnwindEmitsUnreachable(t *testing.T) {
	l := itaniumLowering{}
	m := ir.NewModule("test")
	fn := &ir.Function{Name: "f", Entry: ir.NewRegion(nil)}
	m.AddFunction(fn)
	b := ir.NewBuilder(m)
	blk := b.NewRegionBlock(fn.Entry, "entry")
	b.SetInsertionPointToEnd(blk)

	classType := types.NewNamed(types.Class, "MyError")
	val := b.Constant(classType, "boom")

	l.LowerThrow(m, b, val, classType, nil, nil)

	if len(blk.Ops) == 0 {
		t.Fatalf("expected ops emitted")
	}
	last := blk.Ops[len(blk.Ops)-1]
	if last.Kind != ir.KUnreachable {
		t.Fatalf("expected trailing unreachable, got %s", last.Kind)
	}

	foundThrow := false
	for _, op := range blk.Ops {
		if op.Kind == ir.KInvoke && op.Name == itaniumThrowFunc {
			foundThrow = true
		}
	}
	if !foundThrow {
		t.Fatalf("expected an invoke of __cxa_throw")
	}
	if _, ok := m.Global("_ZTIP7MyError"); !ok {
		t.Fatalf("expected typeinfo global to be registered")
	}
}

func TestItaniumLowerThrowWithUnwindOmitsUnreachable(t *testing.T) {
	l := itaniumLowering{}
	m := ir.NewModule("test")
	fn := &ir.Function{Name: "f", Entry: ir.NewRegion(nil)}
	m.AddFunction(fn)
	b := ir.NewBuilder(m)
	blk := b.NewRegionBlock(fn.Entry, "entry")
	b.SetInsertionPointToEnd(blk)
	unwind := b.NewRegionBlock(fn.Entry, "catches")
	normal := b.NewRegionBlock(fn.Entry, "unreachable")

	classType := types.NewNamed(types.Class, "MyError")
	val := b.Constant(classType, "boom")
	l.LowerThrow(m, b, val, classType, normal, unwind)

	last := blk.Ops[len(blk.Ops)-1]
	if last.Kind != ir.KInvoke {
		t.Fatalf("expected trailing invoke when an unwind target is present, got %s", last.Kind)
	}
	gotNormal, _ := last.Attr("normal")
	gotUnwind, _ := last.Attr("unwind")
	if gotNormal.(*ir.Block) != normal || gotUnwind.(*ir.Block) != unwind {
		t.Fatalf("expected invoke to carry the provided normal/unwind blocks")
	}
}

func TestMSVCLowerThrowBuildsTypeChain(t *testing.T) {
	l := msvcLowering{}
	m := ir.NewModule("test")
	fn := &ir.Function{Name: "f", Entry: ir.NewRegion(nil)}
	m.AddFunction(fn)
	b := ir.NewBuilder(m)
	blk := b.NewRegionBlock(fn.Entry, "entry")
	b.SetInsertionPointToEnd(blk)

	classType := types.NewNamed(types.Class, "MyError")
	val := b.Constant(classType, "boom")
	l.LowerThrow(m, b, val, classType, nil, nil)

	for _, suffix := range []string{"..ehtypedescriptor", "..catchabletype", "..catchabletypearray", "..throwinfo"} {
		if _, ok := m.Global("MyError" + suffix); !ok {
			t.Fatalf("expected global MyError%s to be emitted", suffix)
		}
	}

	throwInfo, _ := m.Global("MyError..throwinfo")
	arrayName, _ := throwInfo.Attr("catchableArray")
	if arrayName.(string) != "MyError..catchabletypearray" {
		t.Fatalf("expected throwinfo to reference the catchable type array, got %v", arrayName)
	}
}

func TestMSVCRethrowUsesNullOperands(t *testing.T) {
	l := msvcLowering{}
	m := ir.NewModule("test")
	fn := &ir.Function{Name: "f", Entry: ir.NewRegion(nil)}
	m.AddFunction(fn)
	b := ir.NewBuilder(m)
	blk := b.NewRegionBlock(fn.Entry, "entry")
	b.SetInsertionPointToEnd(blk)

	l.LowerRethrow(m, b, nil, nil)

	var throwOp *ir.Op
	for _, op := range blk.Ops {
		if op.Kind == ir.KInvoke && op.Name == msvcThrowFunc {
			throwOp = op
		}
	}
	if throwOp == nil {
		t.Fatalf("expected an invoke of _CxxThrowException")
	}
	if len(throwOp.Operands) != 2 {
		t.Fatalf("expected two operands, got %d", len(throwOp.Operands))
	}
}
