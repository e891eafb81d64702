// Package types implements the closed Type sum of spec.md §3/§4.1: value and
// reference type categories, structural equality, interning, and the union /
// intersection constructors. Grounded on the teacher's pattern of small,
// value-shaped domain structs (e.g. bytecode.Chunk, parser.Literal) rather
// than a class hierarchy: Type is one struct tagged by Kind, and every
// constructor function funnels through a single intern table so that
// pointer equality implies structural equality for every interned Type.
package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Kind tags which of the closed sum's constructors a Type instantiates.
type Kind int

const (
	Void Kind = iota
	Bool
	Int     // fixed-width signed/unsigned integer, see Width/Unsigned
	Float   // "number" alias; Width is 32 or 64 (spec.md §6 number-precision)
	BigInt
	String
	Char
	Symbol
	Array
	ConstArray // fixed Length
	Tuple
	ConstTuple
	Object
	Class
	ClassStorage
	Interface
	Namespace
	Enum
	Function
	BoundFunction
	HybridFunction
	KindUnion
	KindIntersection
	LiteralOf
	Optional
	Ref
	ValueRef
	Opaque
	Any
	Unknown
	Never
	Null
	Undefined
	UndefPlaceholder
	Generic
	NamedGeneric
	Infer
)

var kindNames = map[Kind]string{
	Void: "void", Bool: "boolean", Int: "int", Float: "number", BigInt: "bigint",
	String: "string", Char: "char", Symbol: "symbol", Array: "array",
	ConstArray: "const-array", Tuple: "tuple", ConstTuple: "const-tuple",
	Object: "object", Class: "class", ClassStorage: "class-storage",
	Interface: "interface", Namespace: "namespace", Enum: "enum",
	Function: "function", BoundFunction: "bound-function", HybridFunction: "hybrid-function",
	KindUnion: "union", KindIntersection: "intersection", LiteralOf: "literal-of",
	Optional: "optional", Ref: "ref", ValueRef: "value-ref", Opaque: "opaque",
	Any: "any", Unknown: "unknown", Never: "never", Null: "null",
	Undefined: "undefined", UndefPlaceholder: "undef-placeholder",
	Generic: "generic", NamedGeneric: "named-generic", Infer: "infer",
}

// Param describes one function-type parameter used by Function/BoundFunction
// /HybridFunction types (not to be confused with symtab's richer Parameter,
// which additionally carries an initializer AST and binding pattern).
type Param struct {
	Name     string
	Type     *Type
	Optional bool
	Variadic bool
}

// Type is the single representation for every member of the closed sum.
// Only the fields relevant to Kind are populated; it is never mutated after
// interning (Intern takes care to return a shared, frozen instance).
type Type struct {
	Kind Kind

	Name string // class/interface/enum/named-generic/namespace short name

	Width    int  // Int/Float bit width
	Unsigned bool // Int signedness

	Elem   *Type // Array/ConstArray/Optional/Ref/ValueRef/Infer element type
	Length int   // ConstArray/ConstTuple fixed length (-1 when not fixed)

	Fields     []*Type // Tuple/ConstTuple/Object field types
	FieldNames []string

	Members []*Type // Union/Intersection members, canonical order

	LiteralAttr any   // LiteralOf constant attribute
	LiteralBase *Type // LiteralOf underlying widened type

	Sig *FuncSig // Function/BoundFunction/HybridFunction signature

	TypeArgs []*Type // Class<T1,...>/Interface<T1,...> instantiation args
}

// FuncSig is the callable signature carried by function-like types.
type FuncSig struct {
	This     *Type // receiver type for BoundFunction, nil otherwise
	Params   []Param
	Return   *Type
	Variadic bool
}

var (
	internMu    sync.Mutex
	internTable = map[string]*Type{}
)

// intern returns the canonical shared instance for t, computing t's
// canonical key once. Two structurally-equal Types built independently
// always return the same pointer afterward (spec.md §8: "re-specializing
// ... yields the cached instance (pointer-equal funcType)" generalizes to
// every interned Type, not just specializations).
func intern(t *Type) *Type {
	key := t.key()
	internMu.Lock()
	defer internMu.Unlock()
	if existing, ok := internTable[key]; ok {
		return existing
	}
	internTable[key] = t
	return t
}

// Simple singletons for the zero-field kinds.
var (
	TVoid             = intern(&Type{Kind: Void})
	TBool             = intern(&Type{Kind: Bool})
	TBigInt           = intern(&Type{Kind: BigInt})
	TString           = intern(&Type{Kind: String})
	TChar             = intern(&Type{Kind: Char})
	TSymbol           = intern(&Type{Kind: Symbol})
	TOpaque           = intern(&Type{Kind: Opaque})
	TAny              = intern(&Type{Kind: Any})
	TUnknown          = intern(&Type{Kind: Unknown})
	TNever            = intern(&Type{Kind: Never})
	TNull             = intern(&Type{Kind: Null})
	TUndefined        = intern(&Type{Kind: Undefined})
	TUndefPlaceholder = intern(&Type{Kind: UndefPlaceholder})
)

// NewInt returns the interned fixed-width integer type.
func NewInt(width int, unsigned bool) *Type {
	return intern(&Type{Kind: Int, Width: width, Unsigned: unsigned})
}

// NewFloat returns the interned "number" type at the given width (32 or 64,
// spec.md §6 number-precision).
func NewFloat(width int) *Type {
	return intern(&Type{Kind: Float, Width: width})
}

// NewArray returns array(elem).
func NewArray(elem *Type) *Type {
	return intern(&Type{Kind: Array, Elem: elem})
}

// NewConstArray returns const-array(elem, length).
func NewConstArray(elem *Type, length int) *Type {
	return intern(&Type{Kind: ConstArray, Elem: elem, Length: length})
}

// NewTuple returns a (mutable) tuple of the given field types.
func NewTuple(fields ...*Type) *Type {
	return intern(&Type{Kind: Tuple, Fields: append([]*Type(nil), fields...)})
}

// NewConstTuple returns an immutable tuple.
func NewConstTuple(fields ...*Type) *Type {
	return intern(&Type{Kind: ConstTuple, Fields: append([]*Type(nil), fields...)})
}

// NewObject returns a structural object type with named fields.
func NewObject(names []string, fields []*Type) *Type {
	return intern(&Type{Kind: Object, FieldNames: append([]string(nil), names...), Fields: append([]*Type(nil), fields...)})
}

// NewNamed returns a nominal reference to a class/interface/enum/namespace
// by name, optionally parameterized by type args (generalized generics).
func NewNamed(kind Kind, name string, typeArgs ...*Type) *Type {
	t := &Type{Kind: kind, Name: name}
	if len(typeArgs) > 0 {
		t.TypeArgs = append([]*Type(nil), typeArgs...)
	}
	return intern(t)
}

// NewClassStorage returns the storage-tuple view of a class (spec.md §4.5
// "class-storage"): the concrete layout backing a `class` nominal type.
func NewClassStorage(name string, names []string, fields []*Type) *Type {
	return intern(&Type{Kind: ClassStorage, Name: name, FieldNames: append([]string(nil), names...), Fields: append([]*Type(nil), fields...)})
}

// NewFunction returns a plain function type.
func NewFunction(sig FuncSig) *Type {
	return intern(&Type{Kind: Function, Sig: cloneSig(sig)})
}

// NewBoundFunction returns the (receiver, signature) pair representing an
// instance method reference (spec.md glossary "Bound function").
func NewBoundFunction(this *Type, sig FuncSig) *Type {
	s := cloneSig(sig)
	s.This = this
	return intern(&Type{Kind: BoundFunction, Sig: s})
}

// NewHybridFunction returns a type that is callable both as a plain
// function and, when bound, as a method -- used for extension-function
// resolution (spec.md §4.3 "extension-function resolution").
func NewHybridFunction(sig FuncSig) *Type {
	return intern(&Type{Kind: HybridFunction, Sig: cloneSig(sig)})
}

func cloneSig(sig FuncSig) *FuncSig {
	s := sig
	s.Params = append([]Param(nil), sig.Params...)
	return &s
}

// NewLiteralOf returns literal-of(attr, base). Per spec.md §3, literal-of(a,T)
// is a subtype of T, and Widen(literal-of(a,T)) == T (spec.md §8).
func NewLiteralOf(attr any, base *Type) *Type {
	return intern(&Type{Kind: LiteralOf, LiteralAttr: attr, LiteralBase: base})
}

// NewOptional returns optional(t). Per spec.md §3 optional(T) is defined to
// be structurally identical to union(T, undef-placeholder); NewOptional
// therefore simply delegates to Union so the invariant holds by
// construction rather than by a separate equality special-case.
func NewOptional(t *Type) *Type {
	return Union(t, TUndefPlaceholder)
}

// NewRef returns ref(t): the storage type of a mutable variable (spec.md §3
// "a mutable variable is an IR reference cell").
func NewRef(t *Type) *Type {
	return intern(&Type{Kind: Ref, Elem: t})
}

// NewValueRef returns value-ref(t): a reference whose pointee is never
// reassigned.
func NewValueRef(t *Type) *Type {
	return intern(&Type{Kind: ValueRef, Elem: t})
}

// NewGeneric returns the un-substituted placeholder used while a generic's
// own declaration is being processed (before any specialization exists).
func NewGeneric(name string) *Type {
	return intern(&Type{Kind: Generic, Name: name})
}

// NewNamedGeneric returns a free type variable left unbound after
// unification (spec.md glossary "Named-generic").
func NewNamedGeneric(name string) *Type {
	return intern(&Type{Kind: NamedGeneric, Name: name})
}

// NewInfer returns infer(t): the placeholder produced by a conditional
// type's `infer` position.
func NewInfer(t *Type) *Type {
	return intern(&Type{Kind: Infer, Elem: t})
}

// key computes the canonical structural string used for interning and for
// structural equality -- two Types are Equal iff their keys match.
func (t *Type) key() string {
	var b strings.Builder
	t.writeKey(&b)
	return b.String()
}

func (t *Type) writeKey(b *strings.Builder) {
	if t == nil {
		b.WriteString("<nil>")
		return
	}
	b.WriteString(kindNames[t.Kind])
	switch t.Kind {
	case Int:
		b.WriteByte('<')
		if t.Unsigned {
			b.WriteByte('u')
		}
		b.WriteString(strconv.Itoa(t.Width))
		b.WriteByte('>')
	case Float:
		b.WriteByte('<')
		b.WriteString(strconv.Itoa(t.Width))
		b.WriteByte('>')
	case Array, Optional, Ref, ValueRef, Infer:
		b.WriteByte('(')
		t.Elem.writeKey(b)
		b.WriteByte(')')
	case ConstArray:
		b.WriteByte('(')
		t.Elem.writeKey(b)
		b.WriteString(fmt.Sprintf(",%d)", t.Length))
	case Tuple, ConstTuple:
		b.WriteByte('[')
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			f.writeKey(b)
		}
		b.WriteByte(']')
	case Object:
		b.WriteByte('{')
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(t.FieldNames[i])
			b.WriteByte(':')
			f.writeKey(b)
		}
		b.WriteByte('}')
	case ClassStorage:
		b.WriteByte(':')
		b.WriteString(t.Name)
		b.WriteByte('{')
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(t.FieldNames[i])
			b.WriteByte(':')
			f.writeKey(b)
		}
		b.WriteByte('}')
	case Class, Interface, Enum, Namespace, Generic, NamedGeneric:
		b.WriteByte(':')
		b.WriteString(t.Name)
		if len(t.TypeArgs) > 0 {
			b.WriteByte('<')
			for i, a := range t.TypeArgs {
				if i > 0 {
					b.WriteByte(',')
				}
				a.writeKey(b)
			}
			b.WriteByte('>')
		}
	case Function, BoundFunction, HybridFunction:
		b.WriteByte('(')
		if t.Sig.This != nil {
			b.WriteString("this:")
			t.Sig.This.writeKey(b)
			b.WriteByte(';')
		}
		for i, p := range t.Sig.Params {
			if i > 0 {
				b.WriteByte(',')
			}
			if p.Optional {
				b.WriteByte('?')
			}
			if p.Variadic {
				b.WriteString("...")
			}
			p.Type.writeKey(b)
		}
		b.WriteString(")=>")
		t.Sig.Return.writeKey(b)
	case KindUnion, KindIntersection:
		sep := byte('|')
		if t.Kind == KindIntersection {
			sep = '&'
		}
		b.WriteByte('(')
		for i, m := range t.Members {
			if i > 0 {
				b.WriteByte(sep)
			}
			m.writeKey(b)
		}
		b.WriteByte(')')
	case LiteralOf:
		b.WriteByte('(')
		fmt.Fprintf(b, "%v", t.LiteralAttr)
		b.WriteByte(':')
		t.LiteralBase.writeKey(b)
		b.WriteByte(')')
	}
}

// Equal reports structural equality. Because every constructor interns its
// result, pointer equality already implies structural equality for any two
// Types built through this package; Equal falls back to key comparison so
// it also holds for Types assembled ad hoc (e.g. during unification probing
// before a final intern call).
func (t *Type) Equal(other *Type) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	return t.key() == other.key()
}

func (t *Type) String() string {
	switch t.Kind {
	case Class, Interface, Enum, Namespace, Generic, NamedGeneric:
		if len(t.TypeArgs) == 0 {
			return t.Name
		}
		parts := make([]string, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			parts[i] = a.String()
		}
		return fmt.Sprintf("%s<%s>", t.Name, strings.Join(parts, ","))
	case Int:
		pre := "i"
		if t.Unsigned {
			pre = "u"
		}
		return fmt.Sprintf("%s%d", pre, t.Width)
	case Float:
		return fmt.Sprintf("f%d", t.Width)
	case Array:
		return t.Elem.String() + "[]"
	case ConstArray:
		return fmt.Sprintf("const %s[%d]", t.Elem.String(), t.Length)
	case KindUnion:
		parts := make([]string, len(t.Members))
		for i, m := range t.Members {
			parts[i] = m.String()
		}
		return strings.Join(parts, " | ")
	case KindIntersection:
		parts := make([]string, len(t.Members))
		for i, m := range t.Members {
			parts[i] = m.String()
		}
		return strings.Join(parts, " & ")
	case LiteralOf:
		return fmt.Sprintf("%v", t.LiteralAttr)
	case Optional:
		return t.Elem.String() + "?"
	case Ref:
		return "ref<" + t.Elem.String() + ">"
	default:
		if name, ok := kindNames[t.Kind]; ok {
			return name
		}
		return "?"
	}
}

// IsOptional reports whether t is structurally union(x, undef-placeholder)
// for some x, and returns x.
func (t *Type) IsOptional() (*Type, bool) {
	if t.Kind != KindUnion {
		return nil, false
	}
	var rest []*Type
	found := false
	for _, m := range t.Members {
		if m.Kind == UndefPlaceholder {
			found = true
			continue
		}
		rest = append(rest, m)
	}
	if !found {
		return nil, false
	}
	if len(rest) == 1 {
		return rest[0], true
	}
	return Union(rest...), true
}

// sortKey orders union members canonically so construction is
// order-independent (spec.md §3 "union flattening is idempotent and
// order-independent modulo canonical sort").
func sortKey(t *Type) string { return t.key() }

// flattenMembers recursively flattens nested unions/intersections of the
// same kind into one member list.
func flattenMembers(kind Kind, ts []*Type) []*Type {
	var out []*Type
	for _, t := range ts {
		if t.Kind == kind {
			out = append(out, flattenMembers(kind, t.Members)...)
		} else {
			out = append(out, t)
		}
	}
	return out
}

// Union builds union(ts...), flattening nested unions, deduplicating
// members (idempotent: building U|Ti where Ti is already a member yields
// U, and U|U yields U -- spec.md §8), collapsing literal-of(x,T) into T
// when T is also present, canonically sorting, and returning Never for an
// empty union (spec.md §4.1 "Failure mode").
func Union(ts ...*Type) *Type {
	flat := flattenMembers(KindUnion, ts)
	seen := map[string]*Type{}
	order := []string{}
	for _, m := range flat {
		// Collapse literal-of(x,T) when T is also present as a member.
		if m.Kind == LiteralOf {
			hasBase := false
			for _, other := range flat {
				if other != m && other.Equal(m.LiteralBase) {
					hasBase = true
					break
				}
			}
			if hasBase {
				continue
			}
		}
		k := m.key()
		if _, ok := seen[k]; !ok {
			seen[k] = m
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return TNever
	}
	sort.Strings(order)
	members := make([]*Type, len(order))
	for i, k := range order {
		members[i] = seen[k]
	}
	if len(members) == 1 {
		return members[0]
	}
	return intern(&Type{Kind: KindUnion, Members: members})
}

// Intersection builds intersection(ts...). Per spec.md §4.1: merges tuple
// fields, chains interface extends lists (left to the classlayout package,
// which owns interface metadata), and otherwise returns Never unless one
// side is any/unknown (identity on the other).
func Intersection(ts ...*Type) *Type {
	flat := flattenMembers(KindIntersection, ts)
	if len(flat) == 0 {
		return TNever
	}
	acc := flat[0]
	for _, next := range flat[1:] {
		acc = intersectPair(acc, next)
		if acc.Kind == Never {
			return TNever
		}
	}
	return acc
}

func intersectPair(a, b *Type) *Type {
	if a.Kind == Any || a.Kind == Unknown {
		return b
	}
	if b.Kind == Any || b.Kind == Unknown {
		return a
	}
	if a.Equal(b) {
		return a
	}
	if (a.Kind == Tuple || a.Kind == ConstTuple) && (b.Kind == Tuple || b.Kind == ConstTuple) {
		fields := append(append([]*Type(nil), a.Fields...), b.Fields...)
		return NewTuple(fields...)
	}
	if a.Kind == Object && b.Kind == Object {
		names := append(append([]string(nil), a.FieldNames...), b.FieldNames...)
		fields := append(append([]*Type(nil), a.Fields...), b.Fields...)
		return NewObject(names, fields)
	}
	return TNever
}

// Widen erases literal-of constraints and const-collection-ness, producing
// the storage form used in emission (spec.md §4.4 step 5, §8
// "widen(literal-of(v,T)) = T").
func Widen(t *Type) *Type {
	switch t.Kind {
	case LiteralOf:
		return Widen(t.LiteralBase)
	case ConstArray:
		return NewArray(Widen(t.Elem))
	case ConstTuple:
		fields := make([]*Type, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = Widen(f)
		}
		return NewTuple(fields...)
	case KindUnion:
		members := make([]*Type, len(t.Members))
		for i, m := range t.Members {
			members[i] = Widen(m)
		}
		return Union(members...)
	default:
		return t
	}
}

// IsSubtype reports a (deliberately conservative, structural) subtyping
// relation sufficient for the core's own checks: identity, literal-of(v,T)
// <: T (spec.md §3), any/unknown absorb everything, never is bottom, and a
// union is a subtype of U when every member is.
func IsSubtype(sub, super *Type) bool {
	if sub.Equal(super) {
		return true
	}
	if super.Kind == Any || super.Kind == Unknown {
		return true
	}
	if sub.Kind == Never {
		return true
	}
	if sub.Kind == LiteralOf {
		return IsSubtype(sub.LiteralBase, super)
	}
	if sub.Kind == KindUnion {
		for _, m := range sub.Members {
			if !IsSubtype(m, super) {
				return false
			}
		}
		return true
	}
	if super.Kind == KindUnion {
		for _, m := range super.Members {
			if IsSubtype(sub, m) {
				return true
			}
		}
		return false
	}
	if sub.Kind == ConstArray && super.Kind == Array {
		return IsSubtype(sub.Elem, super.Elem)
	}
	return false
}
