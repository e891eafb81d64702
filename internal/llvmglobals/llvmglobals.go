// Package llvmglobals materializes the layout metadata computed by
// internal/classlayout -- RTTI strings, virtual tables, per-interface
// vtables, and typed-GC bitmap descriptors -- as real LLVM IR globals
// using github.com/llir/llvm.
//
// This package is the final materialization step for spec.md §4.5's
// layout objects: internal/classlayout decides *what* belongs in a
// vtable or RTTI record; this package decides how that record becomes
// concrete LLVM constants and globals. Method slots reference external
// function declarations (the bodies themselves are emitted by whatever
// consumes this core's typed ir.Module -- out of scope here, same as
// the original compiler's later LLVM dialect conversion passes).
package llvmglobals

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"

	"lumac/internal/classlayout"
)

var i8ptr = types.NewPointer(types.I8)

// Emitter accumulates classlayout-derived globals into one llir Module.
type Emitter struct {
	Module *ir.Module
	arena  *classlayout.Arena

	funcs   map[string]*ir.Func
	globals map[string]*ir.Global
}

func NewEmitter(arena *classlayout.Arena) *Emitter {
	return &Emitter{Module: ir.NewModule(), arena: arena, funcs: map[string]*ir.Func{}, globals: map[string]*ir.Global{}}
}

// globalDef returns (defining if needed) a named global. Dedupes by name:
// a class's per-field sentinel `Class.field` is requested again when a
// second implemented interface (or a static-field vtable slot) names the
// same field, and the first definition wins.
func (e *Emitter) globalDef(name string, init constant.Constant) *ir.Global {
	if g, ok := e.globals[name]; ok {
		return g
	}
	g := e.Module.NewGlobalDef(name, init)
	e.globals[name] = g
	return g
}

// externFunc returns (declaring if needed) an external function
// declaration for a vtable method symbol, so its address can be taken for
// the vtable's constant array.
func (e *Emitter) externFunc(symbol string) *ir.Func {
	if fn, ok := e.funcs[symbol]; ok {
		return fn
	}
	fn := e.Module.NewFunc(symbol, types.Void)
	e.funcs[symbol] = fn
	return fn
}

func bitcastToI8Ptr(v constant.Constant) constant.Constant {
	return constant.NewBitCast(v, i8ptr)
}

// RTTI emits the `Class..rtti` static string global (spec.md §4.5).
func (e *Emitter) RTTI(fullName string) *ir.Global {
	name := classlayout.RTTIGlobalName(fullName)
	str := constant.NewCharArrayFromString(fullName + "\x00")
	return e.globalDef(name, str)
}

// VTable emits a class's virtual table as an `[]i8*` global: one slot per
// classlayout.VTableEntry, in order, each pointed at a placeholder i8
// sentinel for a static field, an external function for a method, or a
// null pointer for an abstract method / absent entry.
func (e *Emitter) VTable(fullName string) *ir.Global {
	entries := e.arena.VTable(fullName)
	elems := make([]constant.Constant, len(entries))

	for i, entry := range entries {
		switch entry.Kind {
		case classlayout.VTableInterfacePtr:
			ifaceVT := e.InterfaceVTable(fullName, entry.InterfaceName)
			elems[i] = bitcastToI8Ptr(ifaceVT)
		case classlayout.VTableStaticField:
			g := e.globalDef(fullName+"."+entry.FieldName, constant.NewInt(types.I64, 0))
			elems[i] = bitcastToI8Ptr(g)
		case classlayout.VTableMethod:
			if entry.Symbol == "" {
				elems[i] = constant.NewNull(i8ptr)
				continue
			}
			fn := e.externFunc(entry.Symbol)
			elems[i] = bitcastToI8Ptr(fn)
		}
	}

	arrType := types.NewArray(uint64(len(elems)), i8ptr)
	init := constant.NewArray(arrType, elems...)
	return e.globalDef(fullName+"..vtable", init)
}

// InterfaceVTable emits the vtable a class presents for one implemented
// interface (spec.md §4.5 "Interface vtable for a class"). Field entries
// become an i8* bitcast of a per-class, per-field sentinel global (real field
// offset arithmetic is the lowering package's job via element-ref, not
// this emitter's); a conditional member the class doesn't supply is the
// literal -1 bitcast to i8*, per spec.md.
func (e *Emitter) InterfaceVTable(className, interfaceName string) *ir.Global {
	entries := e.arena.InterfaceVTableForClass(className, interfaceName)
	elems := make([]constant.Constant, len(entries))

	for i, entry := range entries {
		switch entry.Kind {
		case classlayout.IfaceEntryField:
			g := e.globalDef(className+"."+entry.Name, constant.NewInt(types.I64, 0))
			elems[i] = bitcastToI8Ptr(g)
		case classlayout.IfaceEntryMethod:
			fn := e.externFunc(entry.Symbol)
			elems[i] = bitcastToI8Ptr(fn)
		case classlayout.IfaceEntryMissingConditional:
			elems[i] = constant.NewIntToPtr(constant.NewInt(types.I64, -1), i8ptr)
		}
	}

	arrType := types.NewArray(uint64(len(elems)), i8ptr)
	init := constant.NewArray(arrType, elems...)
	return e.globalDef(className+"."+interfaceName+"..vtable", init)
}

// TypedGC emits the lazily-initialized `Class..typedescr` global carrying
// the precomputed typed-GC bitmap (spec.md §4.5 "Typed-GC bitmap"), plus
// an external declaration for the generated `Class..typebitmap()`
// constructor the slow path falls back to.
func (e *Emitter) TypedGC(fullName string) *ir.Global {
	bitmap, _ := e.arena.TypedGCBitmap(fullName)
	words := make([]constant.Constant, len(bitmap))
	for i, w := range bitmap {
		words[i] = constant.NewInt(types.I64, int64(w))
	}
	arrType := types.NewArray(uint64(len(words)), types.I64)
	init := constant.NewArray(arrType, words...)

	e.externFunc(classlayout.TypeBitmapCtorName(fullName))
	return e.globalDef(classlayout.TypeDescrGlobalName(fullName), init)
}

// EmitClass runs every materialization step for one class, in the order a
// real build would need them available (RTTI and field/static globals
// before the vtable that references them). Each piece is gated on the
// class's own flags: an RTTI-disabled build gets no `..rtti` string, a
// GC-disabled build no `..typedescr`, and a class with no interfaces or
// virtual methods no vtable at all.
func (e *Emitter) EmitClass(fullName string) {
	cls, ok := e.arena.Class(fullName)
	if !ok {
		return
	}
	if cls.EnableRTTI {
		e.RTTI(fullName)
	}
	if len(e.arena.VTable(fullName)) > 0 {
		e.VTable(fullName)
	}
	if cls.EnableGC {
		e.TypedGC(fullName)
	}
}
