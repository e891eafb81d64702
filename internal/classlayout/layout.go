package classlayout

import "lumac/internal/types"

// StorageTuple computes a class's storage tuple (spec.md §4.5 "Field
// order"): an optional leading opaque vtable slot, then the base class's
// own storage fields, then own fields in declaration order, then
// constructor-parameter-promoted fields in parameter order.
func (a *Arena) StorageTuple(fullName string) *types.Type {
	c, ok := a.Class(fullName)
	if !ok {
		return nil
	}
	var names []string
	var fields []*types.Type

	if a.hasVTable(c) {
		names = append(names, "vtable")
		fields = append(fields, types.TOpaque)
	}

	if c.BaseName != "" {
		baseStorage := a.StorageTuple(c.BaseName)
		if baseStorage != nil {
			names = append(names, baseStorage.FieldNames...)
			fields = append(fields, baseStorage.Fields...)
		}
	}

	for _, f := range c.Fields {
		if f.Static {
			continue
		}
		names = append(names, f.Name)
		fields = append(fields, f.Type)
	}
	for _, f := range c.ConstructorPromoted {
		names = append(names, f.Name)
		fields = append(fields, f.Type)
	}

	return types.NewClassStorage(fullName, names, fields)
}

// FieldOffset returns the index of name within fullName's storage tuple,
// used both for element-ref lowering and for the interface-vtable field
// entries below.
func (a *Arena) FieldOffset(fullName, fieldName string) (int, bool) {
	storage := a.StorageTuple(fullName)
	if storage == nil {
		return 0, false
	}
	for i, n := range storage.FieldNames {
		if n == fieldName {
			return i, true
		}
	}
	return 0, false
}

// VTableEntryKind distinguishes the three entry shapes spec.md §4.5 lists.
type VTableEntryKind int

const (
	VTableInterfacePtr VTableEntryKind = iota
	VTableStaticField
	VTableMethod
)

// VTableEntry is one slot of a class's virtual table.
type VTableEntry struct {
	Kind VTableEntryKind

	// InterfaceName is set for VTableInterfacePtr: the interface this slot
	// points to a (class-specialized) vtable for.
	InterfaceName string

	// FieldName is set for VTableStaticField: the static field's short name.
	FieldName string
	FieldType *types.Type

	// MethodName/Sig/Symbol are set for VTableMethod. Symbol is "" for an
	// abstract method -- the slot exists but carries no callable (spec.md
	// §4.5 "abstract methods occupy a slot but have no symbol").
	MethodName string
	Sig        *types.FuncSig
	Symbol     string
}

// VTable computes a class's full virtual table, inheriting the parent's
// prefix intact (spec.md §4.5: "Every subclass keeps the parent's vtable
// prefix intact and appends its own entries"). An override -- a virtual
// method declared by this class whose name matches an inherited slot --
// replaces that slot's Symbol in place rather than appending a new one;
// everything else genuinely new to this class is appended.
func (a *Arena) VTable(fullName string) []VTableEntry {
	c, ok := a.Class(fullName)
	if !ok || !a.hasVTable(c) {
		return nil
	}

	var entries []VTableEntry
	inheritedIfaces := map[string]bool{}
	if c.BaseName != "" {
		entries = append(entries, a.VTable(c.BaseName)...)
		for _, e := range entries {
			if e.Kind == VTableInterfacePtr {
				inheritedIfaces[e.InterfaceName] = true
			}
		}
	}

	for _, iface := range c.Implements {
		if inheritedIfaces[iface] {
			continue
		}
		entries = append(entries, VTableEntry{Kind: VTableInterfacePtr, InterfaceName: iface})
	}

	for _, f := range c.Fields {
		if !f.Static {
			continue
		}
		entries = append(entries, VTableEntry{Kind: VTableStaticField, FieldName: f.Name, FieldType: f.Type})
	}

	for _, m := range c.Methods {
		if !m.Virtual {
			continue
		}
		symbol := ""
		if !m.Abstract {
			symbol = fullName + "." + m.Name
		}
		if idx := findMethodSlot(entries, m.Name); idx >= 0 {
			entries[idx].Symbol = symbol
			entries[idx].Sig = m.Sig
			continue
		}
		entries = append(entries, VTableEntry{Kind: VTableMethod, MethodName: m.Name, Sig: m.Sig, Symbol: symbol})
	}

	return entries
}

func findMethodSlot(entries []VTableEntry, name string) int {
	for i, e := range entries {
		if e.Kind == VTableMethod && e.MethodName == name {
			return i
		}
	}
	return -1
}

// InterfaceVTableEntryKind distinguishes the two (three, counting the
// conditional-missing case) shapes of an interface vtable's entries.
type InterfaceVTableEntryKind int

const (
	IfaceEntryField InterfaceVTableEntryKind = iota
	IfaceEntryMethod
	IfaceEntryMissingConditional
)

// InterfaceVTableEntry is one slot of a class's vtable for one implemented
// interface (spec.md §4.5 "Interface vtable for a class").
type InterfaceVTableEntry struct {
	Kind InterfaceVTableEntryKind

	Name string

	// FieldOffset/FieldType are set for IfaceEntryField: the storage-tuple
	// index `load(base + offset)` resolves through.
	FieldOffset int
	FieldType   *types.Type

	// Symbol is set for IfaceEntryMethod: the dispatching class's method
	// full symbol name.
	Symbol string
	Sig    *types.FuncSig
}

// InterfaceVTableForClass builds the ordered tuple of entries backing
// class's vtable for the given interface (spec.md §4.5). Unresolvable,
// non-conditional members are reported as diagnostics and otherwise
// skipped (the emitted vtable is still usable for every resolved member).
func (a *Arena) InterfaceVTableForClass(className, interfaceName string) []InterfaceVTableEntry {
	members := a.flattenedInterfaceMembers(interfaceName, map[string]bool{})
	var entries []InterfaceVTableEntry

	for _, m := range members {
		if m.Type != nil {
			if offset, ok := a.FieldOffset(className, m.Name); ok {
				entries = append(entries, InterfaceVTableEntry{Kind: IfaceEntryField, Name: m.Name, FieldOffset: offset, FieldType: m.Type})
				continue
			}
		} else if sym, sig, ok := a.resolveVirtualMethod(className, m.Name); ok {
			entries = append(entries, InterfaceVTableEntry{Kind: IfaceEntryMethod, Name: m.Name, Symbol: sym, Sig: sig})
			continue
		}
		if m.Conditional {
			entries = append(entries, InterfaceVTableEntry{Kind: IfaceEntryMissingConditional, Name: m.Name})
			continue
		}
		a.errorf("class %q does not implement required interface member %q of %q", className, m.Name, interfaceName)
	}

	return entries
}

func (a *Arena) resolveVirtualMethod(className, methodName string) (symbol string, sig *types.FuncSig, ok bool) {
	for cur := className; cur != ""; {
		c, found := a.Class(cur)
		if !found {
			return "", nil, false
		}
		for _, m := range c.Methods {
			if m.Name == methodName {
				if m.Abstract {
					return "", nil, false
				}
				return cur + "." + m.Name, m.Sig, true
			}
		}
		cur = c.BaseName
	}
	return "", nil, false
}
