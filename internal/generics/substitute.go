package generics

import "lumac/internal/types"

// Substitute walks t replacing every named-generic(n) with bindings[n],
// leaving unbound names untouched (they surface in the emitted type as a
// remaining named-generic, which is the expected shape for a
// partially-specialized recursive alias -- spec.md §8 "the inner occurrence
// carrying the unresolved named-generic").
func Substitute(t *types.Type, bindings map[string]*types.Type) *types.Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case types.NamedGeneric:
		if bound, ok := bindings[t.Name]; ok {
			return bound
		}
		return t

	case types.Array:
		return types.NewArray(Substitute(t.Elem, bindings))
	case types.ConstArray:
		return types.NewConstArray(Substitute(t.Elem, bindings), t.Length)
	case types.Ref:
		return types.NewRef(Substitute(t.Elem, bindings))
	case types.ValueRef:
		return types.NewValueRef(Substitute(t.Elem, bindings))
	case types.Infer:
		return types.NewInfer(Substitute(t.Elem, bindings))

	case types.Tuple:
		fields := substituteAll(t.Fields, bindings)
		return types.NewTuple(fields...)
	case types.ConstTuple:
		fields := substituteAll(t.Fields, bindings)
		return types.NewConstTuple(fields...)
	case types.Object:
		fields := substituteAll(t.Fields, bindings)
		return types.NewObject(t.FieldNames, fields)

	case types.Class, types.Interface:
		if len(t.TypeArgs) == 0 {
			return t
		}
		return types.NewNamed(t.Kind, t.Name, substituteAll(t.TypeArgs, bindings)...)

	case types.Function:
		return types.NewFunction(substituteSig(t.Sig, bindings))
	case types.BoundFunction:
		sig := substituteSig(t.Sig, bindings)
		this := t.Sig.This
		if this != nil {
			this = Substitute(this, bindings)
		}
		return types.NewBoundFunction(this, sig)
	case types.HybridFunction:
		return types.NewHybridFunction(substituteSig(t.Sig, bindings))

	case types.KindUnion:
		return types.Union(substituteAll(t.Members, bindings)...)
	case types.KindIntersection:
		return types.Intersection(substituteAll(t.Members, bindings)...)

	case types.LiteralOf:
		return types.NewLiteralOf(t.LiteralAttr, Substitute(t.LiteralBase, bindings))

	default:
		return t
	}
}

func substituteAll(ts []*types.Type, bindings map[string]*types.Type) []*types.Type {
	out := make([]*types.Type, len(ts))
	for i, t := range ts {
		out[i] = Substitute(t, bindings)
	}
	return out
}

func substituteSig(sig *types.FuncSig, bindings map[string]*types.Type) types.FuncSig {
	out := types.FuncSig{Variadic: sig.Variadic, Return: Substitute(sig.Return, bindings)}
	out.Params = make([]types.Param, len(sig.Params))
	for i, p := range sig.Params {
		out.Params[i] = types.Param{Name: p.Name, Type: Substitute(p.Type, bindings), Optional: p.Optional, Variadic: p.Variadic}
	}
	return out
}
