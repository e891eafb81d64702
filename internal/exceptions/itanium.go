package exceptions

import (
	"fmt"

	"lumac/internal/ir"
	"lumac/internal/types"
)

const (
	itaniumAllocFunc   = "__cxa_allocate_exception"
	itaniumThrowFunc   = "__cxa_throw"
	itaniumRethrowFunc = "__cxa_rethrow"
	itaniumPersonality = "__gxx_personality_v0"
)

type itaniumLowering struct{}

func (itaniumLowering) Personality() string { return itaniumPersonality }

// TypeInfoName follows spec.md §4.7 literally for class types: the global
// named `_ZTIP<len><name>` (an Itanium-mangled "pointer to <name>" RTTI
// symbol). Primitive types use the fixed small set the Itanium C++ ABI
// reserves for built-ins.
func (itaniumLowering) TypeInfoName(t *types.Type) string {
	if t.Kind == types.Class || t.Kind == types.Interface {
		return fmt.Sprintf("_ZTIP%d%s", len(t.Name), t.Name)
	}
	if name, ok := itaniumPrimitiveTypeInfo[t.Kind]; ok {
		return name
	}
	return "_ZTIPv"
}

var itaniumPrimitiveTypeInfo = map[types.Kind]string{
	types.Int:    "_ZTIi",
	types.Float:  "_ZTId",
	types.Bool:   "_ZTIb",
	types.String: "_ZTIPKc",
	types.Char:   "_ZTIc",
	types.Void:   "_ZTIv",
}

func (l itaniumLowering) LowerThrow(m *ir.Module, b *ir.Builder, value *ir.Value, exceptionType *types.Type, normal, unwind *ir.Block) {
	size := b.SizeOf(exceptionType)
	alloc := b.Invoke(itaniumAllocFunc, []*ir.Value{size}, types.TOpaque, nil, nil)

	ref := b.Cast(alloc.Result0(), types.NewRef(exceptionType))
	b.Store(value, ref)

	typeInfoName := l.TypeInfoName(exceptionType)
	m.AddGlobal(&ir.Global{Name: typeInfoName, Type: types.TOpaque})
	typeInfoRef := b.AddressOf(typeInfoName, types.TOpaque)
	null := b.NullValue()

	throwOperands := []*ir.Value{alloc.Result0(), typeInfoRef, null}
	if unwind != nil {
		b.Invoke(itaniumThrowFunc, throwOperands, nil, normal, unwind)
		return
	}
	b.Invoke(itaniumThrowFunc, throwOperands, nil, nil, nil)
	b.Unreachable()
}

func (itaniumLowering) LowerRethrow(m *ir.Module, b *ir.Builder, normal, unwind *ir.Block) {
	if unwind != nil {
		b.Invoke(itaniumRethrowFunc, nil, nil, normal, unwind)
		return
	}
	b.Invoke(itaniumRethrowFunc, nil, nil, nil, nil)
	b.Unreachable()
}
