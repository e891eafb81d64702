package generics

import (
	"fmt"

	"lumac/internal/types"
)

// Unify implements spec.md §4.4 step 2's recursive unification rules,
// merge-binding each named-generic encountered in paramType against the
// corresponding piece of argType.
func Unify(paramType, argType *types.Type, bindings map[string]*types.Type) error {
	if paramType == nil || argType == nil {
		return nil
	}

	if paramType.Kind == types.NamedGeneric {
		prior, ok := bindings[paramType.Name]
		if !ok {
			bindings[paramType.Name] = argType
			return nil
		}
		bindings[paramType.Name] = join(prior, argType)
		return nil
	}

	switch paramType.Kind {
	case types.Class, types.Interface:
		if argType.Kind != paramType.Kind || argType.Name != paramType.Name {
			return nil
		}
		n := len(paramType.TypeArgs)
		if len(argType.TypeArgs) < n {
			n = len(argType.TypeArgs)
		}
		for i := 0; i < n; i++ {
			if err := Unify(paramType.TypeArgs[i], argType.TypeArgs[i], bindings); err != nil {
				return err
			}
		}
		return nil

	case types.Array, types.ConstArray:
		elemArg := elemOf(argType)
		if elemArg == nil {
			return fmt.Errorf("expected array-like, got %s", argType.String())
		}
		return Unify(paramType.Elem, elemArg, bindings)

	case types.Function, types.BoundFunction, types.HybridFunction:
		if argType.Sig == nil || paramType.Sig == nil {
			return nil
		}
		n := len(paramType.Sig.Params)
		if len(argType.Sig.Params) < n {
			n = len(argType.Sig.Params)
		}
		for i := 0; i < n; i++ {
			if err := Unify(paramType.Sig.Params[i].Type, argType.Sig.Params[i].Type, bindings); err != nil {
				return err
			}
		}
		return Unify(paramType.Sig.Return, argType.Sig.Return, bindings)

	case types.KindUnion:
		// optional(T) is structurally union(T, undef-placeholder) (see
		// types.NewOptional), so optional unification lives here, not under
		// a distinct Optional kind.
		if inner, ok := paramType.IsOptional(); ok {
			if argInner, argOk := argType.IsOptional(); argOk {
				return Unify(inner, argInner, bindings)
			}
			return Unify(inner, argType, bindings)
		}
		if argType.Kind != types.KindUnion || len(argType.Members) != len(paramType.Members) {
			return nil
		}
		for i, m := range paramType.Members {
			if err := Unify(m, argType.Members[i], bindings); err != nil {
				return err
			}
		}
		return nil
	}

	return nil
}

// elemOf returns the element type of an array-like type, or nil.
func elemOf(t *types.Type) *types.Type {
	if t.Kind == types.Array || t.Kind == types.ConstArray {
		return t.Elem
	}
	return nil
}

// join merges two bindings discovered for the same named-generic across
// multiple call operands (spec.md §4.4 step 2: "merge-bind n ↦
// join(prior(n), T_a)"). Identical bindings collapse to one; distinct
// bindings widen to their union so the parameter remains satisfiable by
// either actual.
func join(prior, next *types.Type) *types.Type {
	if prior.Equal(next) {
		return prior
	}
	return types.Union(prior, next)
}
