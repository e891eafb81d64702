package symtab

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Namespace is one node of the namespace tree (spec.md §3 "Namespace"):
// short name, fully-qualified name, parent, and maps of locally-declared
// entities for every category the spec lists. The actual entity records
// (FunctionPrototype, ClassInfo, InterfaceInfo, GenericInfo, ...) live in
// their owning packages' arenas (internal/generics, internal/classlayout),
// addressed here only by full name -- the "arena + typed indices" pattern
// called for in spec.md's design notes, which keeps internal/symtab free of
// import-cycle-inducing dependencies on every other subsystem.
type Namespace struct {
	ShortName string
	FullName  string
	Parent    *Namespace

	// IsFunctionScope marks a namespace pushed for a function body; lookups
	// that miss here ascend to Parent and retry, repeating until a
	// non-function namespace is reached or the name is found (spec.md §4.2).
	IsFunctionScope bool

	Children map[string]*Namespace

	Functions              map[string]string // short -> full name
	GenericFunctions       map[string]string
	Globals                map[string]string
	Classes                map[string]string
	GenericClasses         map[string]string
	Interfaces             map[string]string
	GenericInterfaces      map[string]string
	Enums                  map[string]string
	TypeAliases            map[string]string
	GenericTypeAliases     map[string]string
	ImportEquals           map[string]string // alias -> target full name
}

func newNamespace(short, full string, parent *Namespace) *Namespace {
	return &Namespace{
		ShortName:          short,
		FullName:           full,
		Parent:             parent,
		Children:           map[string]*Namespace{},
		Functions:          map[string]string{},
		GenericFunctions:   map[string]string{},
		Globals:            map[string]string{},
		Classes:            map[string]string{},
		GenericClasses:     map[string]string{},
		Interfaces:         map[string]string{},
		GenericInterfaces:  map[string]string{},
		Enums:              map[string]string{},
		TypeAliases:        map[string]string{},
		GenericTypeAliases: map[string]string{},
		ImportEquals:       map[string]string{},
	}
}

// NewChild pushes a nested namespace (e.g. a `namespace Foo { ... }` block).
func (n *Namespace) NewChild(short string) *Namespace {
	full := short
	if n.FullName != "" {
		full = n.FullName + "." + short
	}
	child := newNamespace(short, full, n)
	n.Children[short] = child
	return child
}

// NewFunctionNamespace pushes a function-body namespace whose lookup falls
// through to n (spec.md §4.2 and §3 "function bodies push a function-
// namespace whose lookup transparently falls through to the parent chain").
func (n *Namespace) NewFunctionNamespace(short string) *Namespace {
	full := short
	if n.FullName != "" {
		full = n.FullName + "." + short
	}
	child := newNamespace(short, full, n)
	child.IsFunctionScope = true
	return child
}

// category names one of the spec's entity categories; mapFor returns the
// map for one by key, so Lookup and Bind share one implementation across
// all of them.
type category int

const (
	CatFunction category = iota
	CatGenericFunction
	CatGlobal
	CatClass
	CatGenericClass
	CatInterface
	CatGenericInterface
	CatEnum
	CatTypeAlias
	CatGenericTypeAlias
)

// Categories packages a restricted search order for Lookup. Exported so
// callers outside this package can build one without needing to name the
// unexported category type directly -- Go infers it from the Cat*
// constants passed in.
func Categories(cats ...category) []category { return cats }

func (n *Namespace) mapFor(cat category) map[string]string {
	switch cat {
	case CatFunction:
		return n.Functions
	case CatGenericFunction:
		return n.GenericFunctions
	case CatGlobal:
		return n.Globals
	case CatClass:
		return n.Classes
	case CatGenericClass:
		return n.GenericClasses
	case CatInterface:
		return n.Interfaces
	case CatGenericInterface:
		return n.GenericInterfaces
	case CatEnum:
		return n.Enums
	case CatTypeAlias:
		return n.TypeAliases
	case CatGenericTypeAlias:
		return n.GenericTypeAliases
	}
	return nil
}

// Bind records short -> full under the given category in n, and registers
// full in the owning Table's flat map (spec.md §3 invariant: "every entity
// has a short name bound inside its owning namespace and a full name
// parent.short bound in the root map; parent.short is unique across the
// module"). Returns false if full is already bound (duplicate).
func (n *Namespace) Bind(table *Table, cat category, short string) (full string, ok bool) {
	full = short
	if n.FullName != "" {
		full = n.FullName + "." + short
	}
	if _, exists := table.fullNames[full]; exists {
		return full, false
	}
	n.mapFor(cat)[short] = full
	table.fullNames[full] = struct{}{}
	return full, true
}

// DeclaredNames returns every short name bound directly in n across all
// categories (not ascending to Parent), sorted for deterministic
// diagnostic output -- an unresolved-identifier error suggesting nearby
// declarations needs the same candidate list on every run, which a bare
// map range can't promise.
func (n *Namespace) DeclaredNames() []string {
	all := map[string]struct{}{}
	for _, m := range []map[string]string{
		n.Functions, n.GenericFunctions, n.Globals, n.Classes, n.GenericClasses,
		n.Interfaces, n.GenericInterfaces, n.Enums, n.TypeAliases, n.GenericTypeAliases,
	} {
		for k := range m {
			all[k] = struct{}{}
		}
	}
	names := maps.Keys(all)
	slices.Sort(names)
	return names
}

// Lookup resolves a short name against n, ascending the function-namespace
// chain on miss (spec.md §4.2). cats restricts which categories are
// searched at each level, in order; pass nil to search every category.
func (n *Namespace) Lookup(name string, cats []category) (full string, cat category, ok bool) {
	allCats := cats
	if allCats == nil {
		allCats = []category{CatFunction, CatGenericFunction, CatGlobal, CatClass, CatGenericClass,
			CatInterface, CatGenericInterface, CatEnum, CatTypeAlias, CatGenericTypeAlias}
	}
	for cur := n; cur != nil; {
		for _, c := range allCats {
			if f, exists := cur.mapFor(c)[name]; exists {
				return f, c, true
			}
		}
		if cur.IsFunctionScope {
			cur = cur.Parent
			continue
		}
		break
	}
	return "", 0, false
}

// Table owns the namespace tree root and the flat full-name registries
// spec.md §4.2 requires ("Fully-qualified names are resolved directly
// against the flat full-name maps").
type Table struct {
	Root *Namespace

	mu        sync.RWMutex
	fullNames map[string]struct{}
}

// NewTable creates the module's namespace tree with its root (spec.md §3:
// "Namespace tree root is created at module init").
func NewTable(moduleName string) *Table {
	return &Table{
		Root:      newNamespace(moduleName, "", nil),
		fullNames: map[string]struct{}{},
	}
}

// ResolveFullName looks up a dotted fully-qualified name directly, without
// walking any namespace's local maps -- spec.md §4.2's "Fully-qualified
// names are resolved directly against the flat full-name maps".
func (t *Table) ResolveFullName(full string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.fullNames[full]
	return ok
}

// MustUnique panics (via a diag.Bug-shaped message) if full is already
// registered; used at call sites that have already checked Bind's ok
// result and should never hit a duplicate.
func (t *Table) MustUnique(full string) {
	if t.ResolveFullName(full) {
		panic(fmt.Sprintf("internal invariant violated: duplicate full name %q", full))
	}
}

// NamespaceByFullName walks the tree from Root looking for the namespace
// node whose own FullName equals full -- the inverse of Bind's short-to-full
// mapping, needed to restore a generic's declaring namespace when
// internal/generics re-lowers its body for one specialization away from
// the namespace of whichever call site triggered it.
func (t *Table) NamespaceByFullName(full string) (*Namespace, bool) {
	return t.Root.findDescendant(full)
}

func (n *Namespace) findDescendant(full string) (*Namespace, bool) {
	if n.FullName == full {
		return n, true
	}
	for _, child := range n.Children {
		if found, ok := child.findDescendant(full); ok {
			return found, true
		}
	}
	return nil, false
}
