package exceptions

import (
	"lumac/internal/ir"
	"lumac/internal/types"
)

const (
	msvcThrowFunc   = "_CxxThrowException"
	msvcPersonality = "__CxxFrameHandler3"
	msvcImageBase   = "__ImageBase"
)

type msvcLowering struct{}

func (msvcLowering) Personality() string { return msvcPersonality }

// TypeInfoName names the eh-type-descriptor global for t. The original
// compiler derives exact MSVC RTTI mangling from a fixed per-primitive
// constants table (LLVMRTTIHelperVCWin32Const.h); this core has no C++
// name-mangling component (out of scope -- the parser/mangler is an
// external collaborator per spec.md §1), so class/interface types use the
// same `Name..suffix` convention classlayout uses for its own RTTI global
// (spec.md §4.5 "Class..rtti"), kept internally consistent rather than
// attempting real MSVC template mangling.
func (msvcLowering) TypeInfoName(t *types.Type) string {
	if t.Kind == types.Class || t.Kind == types.Interface {
		return t.Name + "..ehtypedescriptor"
	}
	if name, ok := msvcPrimitiveTypeInfo[t.Kind]; ok {
		return name
	}
	return "void..ehtypedescriptor"
}

var msvcPrimitiveTypeInfo = map[types.Kind]string{
	types.Int:    "i32..ehtypedescriptor",
	types.Float:  "f64..ehtypedescriptor",
	types.Bool:   "bool..ehtypedescriptor",
	types.String: "string..ehtypedescriptor",
}

// emitTypeChain materializes the TypeDescriptor / CatchableType /
// CatchableTypeArray / ThrowInfo chain as linkonce-ODR globals, each
// conceptually offset-relative to __ImageBase (spec.md §4.7), and returns
// the ThrowInfo global's name. Idempotent: Module.AddGlobal already
// dedupes by name, so re-throwing the same exceptionType across a
// function reuses the same chain.
func (l msvcLowering) emitTypeChain(m *ir.Module, exceptionType *types.Type) string {
	descrName := l.TypeInfoName(exceptionType)
	descr := m.AddGlobal(&ir.Global{Name: descrName, Type: types.TOpaque, LinkOnce: true})

	catchableName := exceptionType.String() + "..catchabletype"
	catchable := m.AddGlobal(&ir.Global{Name: catchableName, Type: types.TOpaque, LinkOnce: true})
	catchable.SetAttr("descriptor", descr.Name)

	arrayName := exceptionType.String() + "..catchabletypearray"
	array := m.AddGlobal(&ir.Global{Name: arrayName, Type: types.TOpaque, LinkOnce: true})
	array.SetAttr("members", []string{catchable.Name})

	throwInfoName := exceptionType.String() + "..throwinfo"
	throwInfo := m.AddGlobal(&ir.Global{Name: throwInfoName, Type: types.TOpaque, LinkOnce: true})
	throwInfo.SetAttr("catchableArray", array.Name)
	throwInfo.SetAttr("imageBaseRelative", msvcImageBase)

	return throwInfoName
}

func (l msvcLowering) LowerThrow(m *ir.Module, b *ir.Builder, value *ir.Value, exceptionType *types.Type, normal, unwind *ir.Block) {
	variable := b.Variable(exceptionType, nil)
	b.Store(value, variable)

	throwInfoName := l.emitTypeChain(m, exceptionType)
	throwInfoRef := b.AddressOf(throwInfoName, types.TOpaque)
	castValue := b.Cast(variable, types.TOpaque)

	operands := []*ir.Value{castValue, throwInfoRef}
	if unwind != nil {
		b.Invoke(msvcThrowFunc, operands, nil, normal, unwind)
		return
	}
	b.Invoke(msvcThrowFunc, operands, nil, nil, nil)
	b.Unreachable()
}

// LowerRethrow re-raises the active exception: _CxxThrowException called
// with null operands is the standard MSVC rethrow idiom (the runtime
// resumes propagating the exception already in flight).
func (msvcLowering) LowerRethrow(m *ir.Module, b *ir.Builder, normal, unwind *ir.Block) {
	null := b.NullValue()
	operands := []*ir.Value{null, null}
	if unwind != nil {
		b.Invoke(msvcThrowFunc, operands, nil, normal, unwind)
		return
	}
	b.Invoke(msvcThrowFunc, operands, nil, nil, nil)
	b.Unreachable()
}
