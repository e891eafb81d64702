// Package ir implements the MLIR-like typed intermediate representation of
// spec.md §4.1: typed Values produced by Ops, Ops grouped into basic Blocks,
// Blocks grouped into Regions, Regions owned by Functions, inside one
// Module. Every Op has a location, zero or more typed operands, zero or
// more typed results, and optional attributes -- mirrored directly below.
//
// Per spec.md's design notes this models the op universe as a closed sum
// (OpKind) dispatched by exhaustive switch, not a teacher-style
// Accept/Visit double dispatch, and exposes an explicit Builder object
// carrying the current insertion point rather than ambient mutable
// rewriter state.
package ir

import (
	"lumac/internal/diag"
	"lumac/internal/types"
)

// Value is one typed SSA-like result, either produced by an Op or bound as
// a block argument.
type Value struct {
	ID        int
	Type      *types.Type
	Def       *Op // nil when this is a block argument
	ResultIdx int
	BlockArg  bool

	// Captured is set true by internal/closure's capture-discovery pass on
	// the defining variable/param op when a reference to this value is
	// found outside its defining function's region (spec.md §4.6).
	Captured bool
}

// Op is one instruction. Kind selects which op-family constructor built it;
// Attrs carries family-specific data that doesn't warrant its own struct
// field (kept small and named, e.g. "op" for arith-binary's operator).
type Op struct {
	ID       int
	Kind     Kind
	At       diag.Location
	Operands []*Value
	Results  []*Value
	Regions  []*Region
	Attrs    map[string]any

	// Name carries symbol/class/interface/namespace/global names, label
	// names, and cast/attribute tags uniformly -- every op family that
	// needs a single string attribute uses this field instead of a
	// map lookup.
	Name string
}

func (op *Op) Attr(key string) (any, bool) {
	if op.Attrs == nil {
		return nil, false
	}
	v, ok := op.Attrs[key]
	return v, ok
}

func (op *Op) SetAttr(key string, v any) {
	if op.Attrs == nil {
		op.Attrs = map[string]any{}
	}
	op.Attrs[key] = v
}

// Result0 returns the op's sole result value, or nil if it produces none.
func (op *Op) Result0() *Value {
	if len(op.Results) == 0 {
		return nil
	}
	return op.Results[0]
}

// Block is a basic block: a straight-line sequence of ops, terminated (once
// lowering of its parent region completes) by a control-transfer op.
type Block struct {
	ID     int
	Label  string
	Params []*Value
	Ops    []*Op
	Parent *Region
}

// Terminator returns the block's last op, or nil if empty.
func (b *Block) Terminator() *Op {
	if len(b.Ops) == 0 {
		return nil
	}
	return b.Ops[len(b.Ops)-1]
}

// Region is an ordered list of basic blocks owned by a structured-control
// op (if/while/for/try/...) or a Function body.
type Region struct {
	Blocks []*Block
	Owner  *Op // nil for a Function's entry region
}

func NewRegion(owner *Op) *Region { return &Region{Owner: owner} }

// Function is one lowered function: a name, its (possibly generic-
// specialized) type, and a single entry region of basic blocks (spec.md
// §6: "For each function, a region of typed basic blocks terminated by
// return/return-val/exit").
type Function struct {
	Name   string
	Type   *types.Type // Kind == types.Function (or BoundFunction post-closure-rewrite)
	Entry  *Region
	IsExtern bool // true for declared-but-not-defined (has-no-body) prototypes

	// Personality names the exception personality function attached by
	// internal/exceptions (spec.md §4.7): "__gxx_personality_v0" or
	// equivalent for the MSVC funclet model.
	Personality string

	// CaptureNames lists the captured outer variables in capture-tuple
	// field order, so a call site that names this function directly can
	// rebuild the tuple operand (references through a function value carry
	// it inside the bound-function instead).
	CaptureNames []string

	// CaptureTupleID is the content-derived identifier internal/closure
	// mints for this function's capture tuple (empty when the function has
	// no captures). Distinguishes two closures whose captures happen to
	// share one structurally-interned *types.Type in diagnostics and any
	// downstream global naming, without affecting type identity itself.
	CaptureTupleID string
}

// Global is one module-level global value: a static class field, an RTTI
// string, a vtable, a typed-GC descriptor, or an exception-ABI table
// (spec.md §6 "Outputs produced").
type Global struct {
	Name     string
	Type     *types.Type
	Init     *Op // a constant-producing op, or nil for a zero-initialized global
	LinkOnce bool

	// Attrs carries ABI-specific linkage metadata that doesn't warrant its
	// own field -- e.g. internal/exceptions' MSVC lowering uses it to
	// record a CatchableType/ThrowInfo chain's cross-references by name.
	Attrs map[string]any
}

func (g *Global) SetAttr(key string, v any) {
	if g.Attrs == nil {
		g.Attrs = map[string]any{}
	}
	g.Attrs[key] = v
}

func (g *Global) Attr(key string) (any, bool) {
	if g.Attrs == nil {
		return nil, false
	}
	v, ok := g.Attrs[key]
	return v, ok
}

// Module is the single IR module a compilation job produces (spec.md §6).
type Module struct {
	Name      string
	Functions []*Function
	Globals   []*Global

	byFuncName   map[string]*Function
	byGlobalName map[string]*Global
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		Name:         name,
		byFuncName:   map[string]*Function{},
		byGlobalName: map[string]*Global{},
	}
}

// AddFunction registers fn in the module, indexed by name.
func (m *Module) AddFunction(fn *Function) {
	m.Functions = append(m.Functions, fn)
	m.byFuncName[fn.Name] = fn
}

// Function looks up a function by its full name.
func (m *Module) Function(name string) (*Function, bool) {
	fn, ok := m.byFuncName[name]
	return fn, ok
}

// AddGlobal registers g, or returns the existing global of the same name
// (globals -- e.g. a class's typed-GC descriptor -- are idempotently
// declared the first time any caller needs them).
func (m *Module) AddGlobal(g *Global) *Global {
	if existing, ok := m.byGlobalName[g.Name]; ok {
		return existing
	}
	m.Globals = append(m.Globals, g)
	m.byGlobalName[g.Name] = g
	return g
}

func (m *Module) Global(name string) (*Global, bool) {
	g, ok := m.byGlobalName[name]
	return g, ok
}
