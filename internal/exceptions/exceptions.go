// Package exceptions implements spec.md §4.7's exception-ABI emission:
// both Itanium and MSVC lowerings of the shared `throw`/`try`/`catch` IR
// surface, selected at build time by internal/config.Options.ExceptionABI
// and coexisting in the same binary (spec.md §9: "runtime-dispatch on the
// exception-abi configuration; both lowerings coexist").
//
// Grounded directly on the original compiler's
// LowerToLLVM/ThrowLogic.h (Itanium/Win32 dispatch and the exact
// __cxa_allocate_exception / __cxa_throw / __cxa_rethrow call sequence)
// and LLVMRTTIHelperVCWin32.h (the TypeDescriptor / CatchableType /
// CatchableTypeArray / ThrowInfo chain and _CxxThrowException).
package exceptions

import (
	"lumac/internal/config"
	"lumac/internal/ir"
	"lumac/internal/types"
)

// Lowering is the ABI-specific strategy for throw/rethrow emission. Both
// implementations share the same IR surface (invoke + unreachable);
// only the callee names, operand shapes, and global chains differ.
type Lowering interface {
	// Personality names the unwinder personality function attached to
	// every function that can propagate an exception.
	Personality() string

	// TypeInfoName returns the ABI's RTTI symbol name for t.
	TypeInfoName(t *types.Type) string

	// LowerThrow emits the full throw sequence for value of the given
	// static exceptionType. normal/unwind follow invoke's convention
	// (spec.md §4.7): when unwind is nil this is a top-level throw,
	// lowered as an invoke with no successor blocks followed by
	// unreachable; otherwise it is
	// an invoke into the enclosing try's catches block, with normal
	// (never actually reached, since the throw builtins never return)
	// pointed at an unreachable block.
	LowerThrow(m *ir.Module, b *ir.Builder, value *ir.Value, exceptionType *types.Type, normal, unwind *ir.Block)

	// LowerRethrow emits a bare `throw;` (rethrow of the active
	// exception), with the same normal/unwind convention as LowerThrow.
	LowerRethrow(m *ir.Module, b *ir.Builder, normal, unwind *ir.Block)
}

// New selects the Lowering strategy for the configured ABI.
func New(abi config.ExceptionABI) Lowering {
	if abi == config.ABIMSVC {
		return msvcLowering{}
	}
	return itaniumLowering{}
}
