// Package classlayout implements spec.md §4.5: class and interface storage
// layout, virtual-table construction, per-interface vtables for a class,
// RTTI naming, and typed-GC bitmap descriptors.
//
// Class/interface metadata lives in this package's own arena, addressed
// elsewhere only by full name, per spec.md §9's "arena + typed indices"
// design note -- internal/symtab's Namespace never holds a *ClassInfo
// pointer, only the full-name string that indexes into Classes here.
package classlayout

import (
	"fmt"

	"lumac/internal/diag"
	"lumac/internal/types"
)

// FieldDef is one declared (non-promoted) class field.
type FieldDef struct {
	Name   string
	Type   *types.Type
	Static bool
}

// MethodDef is one declared class method.
type MethodDef struct {
	Name     string
	Sig      *types.FuncSig
	Static   bool
	Virtual  bool
	Abstract bool
}

// AccessorDef is one property accessor entry, merged by property name: a
// `get name()` declaration supplies HasGetter, a `set name(v)` supplies
// HasSetter, and Type is the property's value type (the getter's return,
// the setter's sole parameter).
type AccessorDef struct {
	Name      string
	Type      *types.Type
	Static    bool
	HasGetter bool
	HasSetter bool
}

// ClassInfo is the arena record for one class (spec.md §3, §4.5).
type ClassInfo struct {
	FullName   string
	BaseName   string   // full name of the direct base class, "" if none
	Implements []string // full names of implemented interfaces, declaration order

	Fields              []FieldDef
	ConstructorPromoted []FieldDef // constructor-parameter-promoted fields, parameter order
	Methods             []MethodDef
	Accessors           []AccessorDef

	IsAbstract bool
	EnableRTTI bool
	EnableGC   bool
}

// InterfaceMember is one interface member: a field (Type set, Sig nil) or a
// method signature (Sig set, Type nil). Conditional members need not be
// implemented by every conforming class (spec.md §4.5).
type InterfaceMember struct {
	Name        string
	Type        *types.Type
	Sig         *types.FuncSig
	Conditional bool
}

// InterfaceInfo is the arena record for one interface.
type InterfaceInfo struct {
	FullName string
	Extends  []string
	Members  []InterfaceMember
}

// Arena owns every class/interface record discovered in a compilation.
type Arena struct {
	Classes    map[string]*ClassInfo
	Interfaces map[string]*InterfaceInfo
	Diags      *diag.Sink
}

func NewArena(diags *diag.Sink) *Arena {
	return &Arena{
		Classes:    map[string]*ClassInfo{},
		Interfaces: map[string]*InterfaceInfo{},
		Diags:      diags,
	}
}

func (a *Arena) AddClass(c *ClassInfo) {
	a.Classes[c.FullName] = c
}

func (a *Arena) AddInterface(i *InterfaceInfo) {
	a.Interfaces[i.FullName] = i
}

func (a *Arena) Class(fullName string) (*ClassInfo, bool) {
	c, ok := a.Classes[fullName]
	return c, ok
}

func (a *Arena) Interface(fullName string) (*InterfaceInfo, bool) {
	i, ok := a.Interfaces[fullName]
	return i, ok
}

// Member resolves name within an interface's flattened member list
// (inherited members first -- the vtable slot order), returning the member
// and its slot index.
func (a *Arena) Member(interfaceName, name string) (InterfaceMember, int, bool) {
	members := a.flattenedInterfaceMembers(interfaceName, map[string]bool{})
	for i, m := range members {
		if m.Name == name {
			return m, i, true
		}
	}
	return InterfaceMember{}, 0, false
}

// Accessor resolves a property accessor on className or any of its bases,
// returning the owning class's full name alongside the definition so call
// sites can name the emitted getter/setter body.
func (a *Arena) Accessor(className, name string) (string, AccessorDef, bool) {
	for cur := className; cur != ""; {
		c, ok := a.Class(cur)
		if !ok {
			break
		}
		for _, acc := range c.Accessors {
			if acc.Name == name {
				return cur, acc, true
			}
		}
		cur = c.BaseName
	}
	return "", AccessorDef{}, false
}

// hasVTable reports whether c needs a vtable slot at all: it implements at
// least one interface, declares at least one virtual method, or its base
// (transitively) does.
func (a *Arena) hasVTable(c *ClassInfo) bool {
	if len(c.Implements) > 0 {
		return true
	}
	for _, m := range c.Methods {
		if m.Virtual {
			return true
		}
	}
	if c.BaseName == "" {
		return false
	}
	base, ok := a.Class(c.BaseName)
	if !ok {
		return false
	}
	return a.hasVTable(base)
}

// flattenedInterfaceMembers walks an interface's Extends chain, returning
// every member (own and inherited) in declaration order with inherited
// members first.
func (a *Arena) flattenedInterfaceMembers(fullName string, seen map[string]bool) []InterfaceMember {
	if seen[fullName] {
		return nil
	}
	seen[fullName] = true
	iface, ok := a.Interface(fullName)
	if !ok {
		return nil
	}
	var out []InterfaceMember
	for _, ext := range iface.Extends {
		out = append(out, a.flattenedInterfaceMembers(ext, seen)...)
	}
	out = append(out, iface.Members...)
	return out
}

func (a *Arena) errorf(format string, args ...any) {
	if a.Diags == nil {
		return
	}
	a.Diags.Report(diag.Message{
		Kind:     diag.MissingInterfaceMember,
		Severity: diag.SeverityError,
		Text:     fmt.Sprintf(format, args...),
	})
}
