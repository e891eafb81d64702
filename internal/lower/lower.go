// Package lower implements spec.md §4.3's expression and statement
// lowering: AST nodes dispatched via a Go type switch (per spec.md §9's
// "model as a closed sum and exhaustive pattern matching" design note,
// replacing the teacher's Accept/Visit double dispatch) into
// internal/ir ops, built through an explicit internal/ir.Builder.
//
// Lowering is total over the supported AST and side-effecting on the
// builder: every LowerExpr/LowerStmt call appends ops to whatever block
// ctx.Builder currently points at. Diagnostics are never returned as Go
// errors for recoverable semantic problems (spec.md §9: model as
// Result<Value,()> with a diagnostic sink threaded through the context);
// only truly unreachable internal states panic via diag.Bug.
package lower

import (
	"fmt"

	"lumac/internal/classlayout"
	"lumac/internal/closure"
	"lumac/internal/config"
	"lumac/internal/diag"
	"lumac/internal/exceptions"
	"lumac/internal/generics"
	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// Context is the mutable lowering state threaded through every call --
// the "explicit object passed by value-reference" spec.md §9 calls for,
// generalized beyond just the builder's insertion point to the rest of
// the per-function lowering state (current scope, label stack, capture
// discovery).
type Context struct {
	Module   *ir.Module
	Builder  *ir.Builder
	Diags    *diag.Sink
	Symbols  *symtab.Table
	Generics *generics.Engine
	Classes  *classlayout.Arena
	ABI      exceptions.Lowering
	Options  config.Options

	Namespace *symtab.Namespace
	Scope     *symtab.Scope

	// RegionPath is the stack of regions lexically enclosing the current
	// lowering position, used by closure discovery (spec.md §4.6).
	RegionPath closure.RegionPath

	// Discovery is non-nil only during a function's dummy-run pass.
	Discovery *closure.Discovery

	// probing is true inside a disposable pass -- a dummy-run or a
	// fixed-point statement probe -- whose output is discarded. A probing
	// context must not mutate shared pass state beyond its own scratch
	// region (spec.md §5: "dummy-run passes mutate *copies* and discard
	// them"); specialize below enforces this for the generics engine.
	probing bool

	// ReturnType is the enclosing function's declared/inferred return
	// type, used by ReturnStmt to decide void-vs-value lowering (spec.md
	// §4.3 "return without expression in a non-void context...").
	ReturnType *types.Type

	// TypeBindings resolves a generic type parameter's name to the type it
	// is bound to while re-lowering a generic's body for one specialization
	// (spec.md §4.4); consulted by resolveNamedType before any namespace
	// lookup. nil outside a specialization re-lowering.
	TypeBindings map[string]*types.Type

	// discoveredReturn is non-nil only during a function's dummy-run pass,
	// accumulating the union of every return expression's type so an
	// unannotated function's return type can be inferred (spec.md §4.6).
	discoveredReturn *discoveredReturn

	// controlStack tracks the labels of lexically enclosing
	// break/continue-able constructs, replacing the teacher's ambient
	// pending-label global with an explicit per-Context stack (spec.md §9:
	// "pass the label explicitly"). Each loop/switch lowering function
	// pushes its own frame and pops it before returning.
	controlStack []controlFrame

	// labelSeq numbers synthetic op labels within one function body: fork
	// gives each forked Context a fresh sequence, and the scopes and
	// statements lowered through that Context share it.
	labelSeq *int

	currentTry *tryTargets
}

// controlFrame names one active breakable (loop or switch) or
// continuable (loop) construct. opLabel is the synthetic name stamped on
// the construct's own op (spec.md §4.1 KWhile/KFor/KSwitch); break/continue
// ops reference it directly rather than an explicit block, so the
// resolution mechanism matches internal/ir.Builder's Label/Break/Continue
// leaf ops.
type controlFrame struct {
	userLabel string
	opLabel   string
	loop      bool
}

// tryTargets records the enclosing try's catches block, so a throw deep
// inside the try body lowers to an invoke that unwinds into it rather than
// an invoke with no unwind target (spec.md §4.7).
type tryTargets struct {
	catchesBlock *ir.Block
}

// NewContext builds the shared, mostly-immutable services a compilation
// job's Context values are forked from per function.
func NewContext(m *ir.Module, diags *diag.Sink, symbols *symtab.Table, gen *generics.Engine, classes *classlayout.Arena, opts config.Options) *Context {
	seq := 0
	return &Context{
		Module:   m,
		Builder:  ir.NewBuilder(m),
		Diags:    diags,
		Symbols:  symbols,
		Generics: gen,
		Classes:  classes,
		ABI:      exceptions.New(opts.ExceptionABI),
		Options:  opts,
		labelSeq: &seq,
	}
}

// fork derives a per-function Context sharing every service but owning
// its own scope and region path. It starts a fresh label sequence and
// control stack, since break/continue/labels never cross a function
// boundary.
func (c *Context) fork(scope *symtab.Scope, returnType *types.Type) *Context {
	seq := 0
	return &Context{
		Module:       c.Module,
		Builder:      c.Builder,
		Diags:        c.Diags,
		Symbols:      c.Symbols,
		Generics:     c.Generics,
		Classes:      c.Classes,
		ABI:          c.ABI,
		Options:      c.Options,
		Namespace:    c.Namespace,
		Scope:        scope,
		RegionPath:   append(closure.RegionPath{}, c.RegionPath...),
		ReturnType:   returnType,
		TypeBindings: c.TypeBindings,
		probing:      c.probing,
		labelSeq:     &seq,
	}
}

// specialize routes a specialization request through the engine's real or
// dry entry point depending on whether this context is a disposable pass:
// a probe that later fails must not have permanently materialized a
// function body or class layout it happened to walk past.
func (c *Context) specialize(full string, explicit, operands []*types.Type, arrows []generics.ArrowArg) (*types.Type, string, error) {
	if c.probing {
		return c.Generics.SpecializeDry(full, explicit, operands, arrows)
	}
	return c.Generics.Specialize(full, explicit, operands, arrows)
}

// withChildScope runs fn with a nested lexical scope active (spec.md §4.2
// block scoping), restoring the enclosing scope afterward. Unlike fork,
// this keeps the same control stack, label sequence, and closure-discovery
// state, since a nested scope's break/continue/capture tracking still
// belongs to the enclosing function.
func (c *Context) withChildScope(fn func()) {
	saved := c.Scope
	c.Scope = symtab.NewScope(c.Scope)
	fn()
	c.Scope = saved
}

// pushControl opens a new breakable (and, for loops, continuable) frame,
// returning the synthetic op label the construct's own builder call should
// stamp on itself.
func (c *Context) pushControl(userLabel string, loop bool) string {
	*c.labelSeq++
	opLabel := fmt.Sprintf("$L%d", *c.labelSeq)
	c.controlStack = append(c.controlStack, controlFrame{userLabel: userLabel, opLabel: opLabel, loop: loop})
	return opLabel
}

func (c *Context) popControl() {
	c.controlStack = c.controlStack[:len(c.controlStack)-1]
}
