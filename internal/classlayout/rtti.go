package classlayout

import "lumac/internal/types"

// RTTIGlobalName is the static string global holding a class's full name
// (spec.md §4.5 "Class..rtti").
func RTTIGlobalName(fullName string) string { return fullName + "..rtti" }

// InstanceOfMethodName is the virtual method lowering dispatches
// `instanceof` through (spec.md §4.5).
func InstanceOfMethodName(fullName string) string { return fullName + ".instanceOf" }

// NewStaticMethodName is the synthesized allocator method (spec.md §4.5
// "Class..new").
func NewStaticMethodName(fullName string) string { return fullName + "..new" }

// TypeDescrGlobalName is the lazily-initialized typed-GC descriptor global
// (spec.md §4.5 "Class..typedescr").
func TypeDescrGlobalName(fullName string) string { return fullName + "..typedescr" }

// TypeBitmapCtorName is the generated constructor that computes the typed-GC
// descriptor the first time it's needed (spec.md §4.5 "Class..typebitmap()").
func TypeBitmapCtorName(fullName string) string { return fullName + "..typebitmap" }

// GetterSymbolName and SetterSymbolName name the emitted bodies of a
// property accessor pair, kept distinct from `Class.prop` so an accessor
// and a field of the same name can never collide in the module.
func GetterSymbolName(classFull, prop string) string { return classFull + ".get_" + prop }

func SetterSymbolName(classFull, prop string) string { return classFull + ".set_" + prop }

// isPointerLike reports whether a storage-tuple field contributes a
// "non-value" (pointer) bit to the typed-GC bitmap (spec.md §4.5: "each
// non-value field of the storage tuple contributes a 1-bit").
func isPointerLike(t *types.Type) bool {
	switch t.Kind {
	case types.Void, types.Bool, types.Int, types.Float, types.BigInt, types.Char,
		types.Enum, types.Undefined, types.Null, types.UndefPlaceholder:
		return false
	default:
		return true
	}
}

const bitmapWordBits = 64

// TypedGCBitmap computes the class's typed-GC bitmap (spec.md §4.5
// "Typed-GC bitmap"): one bit per storage-tuple field, set when the field
// is pointer-like, packed into 64-bit words. The field-granular bit is a
// deliberate simplification of the spec's byte-level
// ⌈sizeof(Class)/sizeof(word)⌉ sizing: this IR has no byte-level struct
// layout of its own, so each storage-tuple slot stands in for one
// word-sized unit, which is exact for every field kind this core emits
// (all are pointer- or register-sized).
func (a *Arena) TypedGCBitmap(fullName string) (bitmap []uint64, length int) {
	storage := a.StorageTuple(fullName)
	if storage == nil {
		return nil, 0
	}
	length = len(storage.Fields)
	bitmap = make([]uint64, (length+bitmapWordBits-1)/bitmapWordBits)
	for i, f := range storage.Fields {
		if isPointerLike(f) {
			bitmap[i/bitmapWordBits] |= 1 << uint(i%bitmapWordBits)
		}
	}
	return bitmap, length
}
