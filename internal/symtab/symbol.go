// Package symtab implements the symbol entries and namespace tree of
// spec.md §3/§4.2: scoped variable tables, and a namespace tree whose
// function-namespaces transparently fall through to their parent chain on
// lookup miss.
package symtab

import (
	"lumac/internal/diag"
	"lumac/internal/ir"
	"lumac/internal/types"
)

// Symbol is one (name, storage-type, ...) entry (spec.md §3 "Symbol entry").
type Symbol struct {
	Name   string
	Type   *types.Type // storage type: ref(T) for mutable vars, T for immutable bindings
	Mutable bool
	OwningFunctionID int // identifies the function namespace this symbol was declared in
	IgnoreForCapture bool
	At     diag.Location

	// Def is the defining variable/param op's result, recorded so capture
	// discovery can mark it captured and build the capture tuple from it
	// (spec.md §4.6). Nil for synthetic bindings with no single defining op.
	Def *ir.Value
}

// Scope is one lexical block's variable table.
type Scope struct {
	parent  *Scope
	symbols map[string]*Symbol
	// isFunctionScope marks the entry scope of a function body: LookupOuter
	// reports a match found beyond it as outer (spec.md §4.6).
	isFunctionScope bool
	functionID      int
}

// NewScope creates a child lexical scope.
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, symbols: map[string]*Symbol{}}
}

// NewFunctionScope creates the entry scope of a new function body.
func NewFunctionScope(parent *Scope, functionID int) *Scope {
	s := NewScope(parent)
	s.isFunctionScope = true
	s.functionID = functionID
	return s
}

// Declare registers name in this scope. Per spec.md §4.2, "register(name,
// entry) rejects duplicates only when policy requires (variable
// redeclaration in the same scope); otherwise it shadows."
// rejectRedeclaration controls that policy at the call site (true: reject same-scope dup).
func (s *Scope) Declare(sym *Symbol, rejectRedeclaration bool) bool {
	if rejectRedeclaration {
		if _, exists := s.symbols[sym.Name]; exists {
			return false
		}
	}
	s.symbols[sym.Name] = sym
	return true
}

// Lookup walks the scope chain upward from s. It returns the first match,
// shadowing outer declarations of the same name -- ordinary lexical scoping
// within a single function. Namespace fallback (spec.md §4.2's "ascend to
// the parent namespace") is handled one level up, by Namespace.Lookup.
func (s *Scope) Lookup(name string) (*Symbol, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if sym, ok := cur.symbols[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// LookupOuter is Lookup plus locality: outer reports whether the match sat
// beyond the nearest enclosing function-scope entry, i.e. the symbol
// belongs to an enclosing function and referencing it here closes over it
// (spec.md §4.6).
func (s *Scope) LookupOuter(name string) (sym *Symbol, outer, ok bool) {
	crossed := false
	for cur := s; cur != nil; cur = cur.parent {
		if sym, found := cur.symbols[name]; found {
			return sym, crossed, true
		}
		if cur.isFunctionScope {
			crossed = true
		}
	}
	return nil, false, false
}

// EntryFunctionID returns the nearest enclosing function scope's id, or -1
// if none (i.e. this is module/global scope).
func (s *Scope) EntryFunctionID() int {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.isFunctionScope {
			return cur.functionID
		}
	}
	return -1
}
