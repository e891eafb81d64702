// Package generics implements the generic instantiation engine of
// spec.md §4.4: explicit-argument zip, call-operand unification, delayed
// arrow specialization, constraint checking, widening, and emission.
//
// Per spec.md §9's design notes, reentrancy is guarded by a push/pop
// HashSet<SpecializationKey> on the engine rather than a mutable
// `processing` flag on each generic info -- this also sidesteps the need
// for GenericInfo to live inside internal/symtab (it stays in this
// package's own arena, addressed by full name, per the "arena + typed
// indices" design note).
package generics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"lumac/internal/ast"
	"lumac/internal/diag"
	"lumac/internal/types"
)

// Kind distinguishes which of the four generic entity families an Info
// describes (spec.md §3 "Generic info (function/class/interface/type-alias)").
type Kind int

const (
	KindFunction Kind = iota
	KindClass
	KindInterface
	KindTypeAlias
)

// TypeParam is one declared type parameter: a name, optional constraint,
// and optional default (spec.md §3 "typeParams [(name, constraint?, default?)]").
type TypeParam struct {
	Name       string
	Constraint *types.Type
	Default    *types.Type
}

// Info is one generic entity's arena record: never emitted itself, only
// specialized (spec.md §3 "A generic is never emitted; each specialization
// ... produces a concrete instance").
type Info struct {
	FullName   string
	Kind       Kind
	TypeParams []TypeParam
	Namespace  string
	Node       ast.Node

	// Sig is the function generic's template signature, with named-generic
	// placeholders standing in for each TypeParam. Populated for
	// KindFunction only.
	Sig *types.FuncSig

	// Aliased is the type-alias generic's template type. Populated for
	// KindTypeAlias only.
	Aliased *types.Type

	// DiscoveredFuncType caches the result of a dummy-run discovery pass
	// over this generic's own prototype (spec.md §3).
	DiscoveredFuncType *types.Type
}

// ArrowProbe dummy-runs one arrow-function argument under the parameter
// type the callee requires at its position -- every binding inferred so far
// already substituted in -- and reports the concrete function type the
// arrow specializes to (spec.md §4.4 step 3 "Delayed arrow specialization").
// Each ArrowArg carries its own probe as a closure built by internal/lower
// at the call site, so this package never imports internal/lower (which
// depends on internal/generics, not the reverse) and the probe runs with
// the call site's own scope, not some ambient root scope.
type ArrowProbe func(expected *types.Type) *types.Type

// Materializer is supplied by internal/lower: given a generic function's
// arena Info, the symbol a fresh (name, bindings) specialization was just
// assigned, and the bindings themselves, it re-lowers the generic's body
// once under that symbol (spec.md §4.4 step 6 "Emission"). Like ArrowProbe,
// this is an injected callback rather than a direct call into
// internal/lower, to keep the dependency one-directional. It runs only the
// first time a given specialization key is materialized -- Specialize's own
// cache/singleflight/inProgress guards already make that guarantee, so
// Materializer never needs its own idempotency check beyond the one
// LowerFunction already does against c.Module.Function(fullName).
//
// Only KindFunction specializations call back through Materializer;
// KindClass/KindInterface go through LayoutMaterializer instead, since
// emitting a class specialization means building an arena layout record and
// method bodies, not a single function body.
type Materializer func(info *Info, symbol string, bindings map[string]*types.Type)

// specializedResult is one cache entry: the type AND the symbol name the
// call/reference site should use, since for KindFunction the symbol is not
// recoverable from the *types.Type alone (function types intern on
// structural signature only, never on name -- see internal/types.Type.key).
type specializedResult struct {
	typ    *types.Type
	symbol string
}

// Engine owns the generic-info arena and the specialization cache.
type Engine struct {
	mu    sync.Mutex
	infos map[string]*Info
	cache map[string]specializedResult

	// inProgress is the spec.md §9 HashSet<SpecializationKey> reentrancy
	// guard: push before descending into a specialization, pop after.
	inProgress map[string]bool

	sf    singleflight.Group
	Diags *diag.Sink

	// Materializer emits a fresh function specialization's body;
	// LayoutMaterializer registers a fresh class/interface specialization's
	// arena record (storage layout, vtable, method bodies) under the
	// specialized name. Both run at spec.md §4.4 step 6, at most once per
	// specialization key.
	Materializer       Materializer
	LayoutMaterializer Materializer

	// Persist is an optional cross-invocation specialization cache
	// (internal/buildcache.Store). A hit only records that fullName/key
	// specialized cleanly in a prior build, for warm-build diagnostics --
	// the engine still materializes its own *types.Type locally, since the
	// persisted record is a signature string, not a reconstructible Type.
	Persist PersistentCache
}

// PersistentCache is the subset of internal/buildcache.Store the engine
// depends on, kept as a local interface so this package never imports
// internal/buildcache (the dependency runs the other way: the driver wires
// a buildcache.Store in here).
type PersistentCache interface {
	Get(key string) (sig string, ok bool, err error)
	Put(key, sig string) error
}

func NewEngine(diags *diag.Sink) *Engine {
	return &Engine{
		infos:      map[string]*Info{},
		cache:      map[string]specializedResult{},
		inProgress: map[string]bool{},
		Diags:      diags,
	}
}

// Register adds a generic entity to the arena. Panics on duplicate full
// name: callers must have already reserved the name via internal/symtab's
// Namespace.Bind.
func (e *Engine) Register(info *Info) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.infos[info.FullName]; exists {
		panic(diag.Bug("duplicate generic registration for %q", info.FullName))
	}
	e.infos[info.FullName] = info
}

func (e *Engine) Lookup(fullName string) (*Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	info, ok := e.infos[fullName]
	return info, ok
}

// ArrowArg pairs an operand position holding an arrow-function argument
// with the probe that specializes it, for step 3's delayed specialization.
type ArrowArg struct {
	Index int
	Probe ArrowProbe
}

// Specialize performs the full spec.md §4.4 pipeline for one call site:
// zip, infer, delayed-arrow, constrain, widen, emit. It returns both the
// specialized type and the symbol a call/reference site should target --
// for KindClass/KindInterface the two carry the same name (types.NewNamed
// stores it on the type itself), but for KindFunction the symbol is only
// available here, since internal/types interns function types on
// signature alone.
func (e *Engine) Specialize(fullName string, explicitArgs []*types.Type, operandTypes []*types.Type, arrows []ArrowArg) (*types.Type, string, error) {
	return e.specialize(fullName, explicitArgs, operandTypes, arrows, false)
}

// SpecializeDry runs the same zip/infer/constrain/widen pipeline but stops
// short of step 6's side effects: no Materializer or LayoutMaterializer
// callback, no specialization-cache write, no persistent-cache round trip.
// Dummy-run and probe passes call this (via internal/lower's probing
// Context flag) so a discarded pass leaves the engine, module, and layout
// arena exactly as it found them -- spec.md §5: "dummy-run passes mutate
// *copies* and discard them." A cached result from an earlier real pass is
// still returned on hit; a dry miss is recomputed again, with emission, by
// the first real pass that asks.
func (e *Engine) SpecializeDry(fullName string, explicitArgs []*types.Type, operandTypes []*types.Type, arrows []ArrowArg) (*types.Type, string, error) {
	return e.specialize(fullName, explicitArgs, operandTypes, arrows, true)
}

func (e *Engine) specialize(fullName string, explicitArgs []*types.Type, operandTypes []*types.Type, arrows []ArrowArg, dry bool) (*types.Type, string, error) {
	info, ok := e.Lookup(fullName)
	if !ok {
		return nil, fullName, fmt.Errorf("generics: unknown generic entity %q", fullName)
	}

	bindings := map[string]*types.Type{}

	// Step 1: explicit-argument zip.
	if len(explicitArgs) > len(info.TypeParams) {
		return nil, fullName, fmt.Errorf("generics: %q given %d type arguments, wants at most %d", fullName, len(explicitArgs), len(info.TypeParams))
	}
	for i, arg := range explicitArgs {
		bindings[info.TypeParams[i].Name] = arg
	}

	// Step 2: inference from call operands, against the template signature.
	// Inferred types bind only the type parameters the explicit arguments
	// left open; an explicit argument is never joined with an operand type.
	if info.Sig != nil {
		inferred := map[string]*types.Type{}
		for i, p := range info.Sig.Params {
			if i >= len(operandTypes) {
				break
			}
			if err := Unify(p.Type, operandTypes[i], inferred); err != nil {
				e.Diags.Report(diag.Message{
					Kind:     diag.UnderConstrained,
					Severity: diag.SeverityWarning,
					Text:     fmt.Sprintf("generics: %q parameter %d: %v", fullName, i, err),
				})
			}
		}
		for name, t := range inferred {
			if _, explicit := bindings[name]; !explicit {
				bindings[name] = t
			}
		}
	}

	// Step 3: delayed arrow specialization. The expected type handed to the
	// probe is the callee's parameter type at the arrow's position with every
	// binding inferred so far substituted in, so the arrow's own unannotated
	// parameters pick up concrete types before its dummy-run; the concrete
	// function type the probe reports is then re-unified to bind whatever the
	// arrow alone could determine (typically the callee's return parameter).
	for _, a := range arrows {
		if a.Probe == nil || info.Sig == nil || a.Index >= len(info.Sig.Params) {
			continue
		}
		expected := Substitute(info.Sig.Params[a.Index].Type, bindings)
		if concrete := a.Probe(expected); concrete != nil {
			_ = Unify(info.Sig.Params[a.Index].Type, concrete, bindings)
		}
	}

	// Apply defaults to params still unbound, only now that inference ran.
	for _, tp := range info.TypeParams {
		if _, bound := bindings[tp.Name]; !bound && tp.Default != nil {
			bindings[tp.Name] = tp.Default
		}
	}

	key := specializationKey(fullName, info.TypeParams, bindings)

	e.mu.Lock()
	if e.inProgress[key] {
		e.mu.Unlock()
		// Cycle: the redesigned reentrancy guard returns a tombstone that
		// resolves to the generic base (spec.md §9). The symbol the
		// tombstone carries is the unspecialized template name -- a
		// self-referential generic never reaches emission, so there is no
		// specialized symbol to hand back.
		return e.genericBase(info), fullName, nil
	}
	if cached, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return cached.typ, cached.symbol, nil
	}
	e.mu.Unlock()

	if dry {
		e.mu.Lock()
		e.inProgress[key] = true
		e.mu.Unlock()
		defer func() {
			e.mu.Lock()
			delete(e.inProgress, key)
			e.mu.Unlock()
		}()
		specialized, err := e.materialize(info, bindings, key, true)
		if err != nil {
			return nil, fullName, err
		}
		return specialized.typ, specialized.symbol, nil
	}

	warmHit := false
	if e.Persist != nil {
		if _, ok, perr := e.Persist.Get(key); perr == nil && ok {
			warmHit = true
		}
	}

	result, err, _ := e.sf.Do(key, func() (interface{}, error) {
		e.mu.Lock()
		e.inProgress[key] = true
		e.mu.Unlock()
		defer func() {
			e.mu.Lock()
			delete(e.inProgress, key)
			e.mu.Unlock()
		}()

		return e.materialize(info, bindings, key, false)
	})
	if err != nil {
		return nil, fullName, err
	}
	specialized := result.(specializedResult)
	if e.Persist != nil && !warmHit {
		_ = e.Persist.Put(key, specialized.typ.String())
	}
	return specialized.typ, specialized.symbol, nil
}

func (e *Engine) materialize(info *Info, bindings map[string]*types.Type, key string, dry bool) (specializedResult, error) {
	// Step 4: constraint check (warning only, never fatal).
	for _, tp := range info.TypeParams {
		bound, ok := bindings[tp.Name]
		if !ok || tp.Constraint == nil {
			continue
		}
		if !types.IsSubtype(bound, tp.Constraint) {
			e.Diags.Report(diag.Message{
				Kind:     diag.ConstraintViolated,
				Severity: diag.SeverityWarning,
				Text:     fmt.Sprintf("generics: %q does not satisfy constraint %q for type parameter %q", bound.String(), tp.Constraint.String(), tp.Name),
			})
		}
	}

	// Step 5: widening.
	widened := map[string]*types.Type{}
	for name, t := range bindings {
		widened[name] = types.Widen(t)
	}

	// Step 6: emission, or remain generic if any parameter is unbound.
	for _, tp := range info.TypeParams {
		if _, ok := widened[tp.Name]; !ok {
			base := specializedResult{typ: e.genericBase(info), symbol: info.FullName}
			if !dry {
				e.mu.Lock()
				e.cache[key] = base
				e.mu.Unlock()
			}
			return base, nil
		}
	}

	specialized := e.emit(info, widened, dry)
	if !dry {
		e.mu.Lock()
		e.cache[key] = specialized
		e.mu.Unlock()
	}
	return specialized, nil
}

func (e *Engine) genericBase(info *Info) *types.Type {
	switch info.Kind {
	case KindFunction:
		if info.Sig != nil {
			return types.NewFunction(*info.Sig)
		}
	case KindTypeAlias:
		if info.Aliased != nil {
			return info.Aliased
		}
	}
	return types.NewGeneric(info.FullName)
}

// emit computes the specialized type and symbol for one fully-bound key.
// dry suppresses the Materializer/LayoutMaterializer callbacks: a dry
// caller wants only the type-level answer, never a body or layout emitted
// into the real module/arena.
func (e *Engine) emit(info *Info, bindings map[string]*types.Type, dry bool) specializedResult {
	specializedName := specializedName(info.FullName, info.TypeParams, bindings)
	switch info.Kind {
	case KindFunction:
		sig := *info.Sig
		sig.Params = make([]types.Param, len(info.Sig.Params))
		for i, p := range info.Sig.Params {
			sig.Params[i] = types.Param{Name: p.Name, Type: Substitute(p.Type, bindings), Optional: p.Optional, Variadic: p.Variadic}
		}
		sig.Return = Substitute(info.Sig.Return, bindings)
		// The body is re-lowered once under specializedName (spec.md §4.4
		// step 6), via the injected Materializer, before the call site
		// below ever references that symbol -- see the type's doc comment.
		if !dry && e.Materializer != nil {
			e.Materializer(info, specializedName, bindings)
		}
		return specializedResult{typ: types.NewFunction(sig), symbol: specializedName}
	case KindTypeAlias:
		return specializedResult{typ: Substitute(info.Aliased, bindings), symbol: specializedName}
	case KindClass:
		if !dry && e.LayoutMaterializer != nil {
			e.LayoutMaterializer(info, specializedName, bindings)
		}
		typeArgs := orderedArgs(info.TypeParams, bindings)
		return specializedResult{typ: types.NewNamed(types.Class, specializedName, typeArgs...), symbol: specializedName}
	case KindInterface:
		if !dry && e.LayoutMaterializer != nil {
			e.LayoutMaterializer(info, specializedName, bindings)
		}
		typeArgs := orderedArgs(info.TypeParams, bindings)
		return specializedResult{typ: types.NewNamed(types.Interface, specializedName, typeArgs...), symbol: specializedName}
	}
	return specializedResult{typ: types.NewGeneric(specializedName), symbol: specializedName}
}

func orderedArgs(params []TypeParam, bindings map[string]*types.Type) []*types.Type {
	out := make([]*types.Type, len(params))
	for i, p := range params {
		out[i] = bindings[p.Name]
	}
	return out
}

func specializedName(fullName string, params []TypeParam, bindings map[string]*types.Type) string {
	if len(params) == 0 {
		return fullName
	}
	parts := make([]string, len(params))
	for i, p := range params {
		if t, ok := bindings[p.Name]; ok {
			parts[i] = t.String()
		} else {
			parts[i] = p.Name
		}
	}
	return fmt.Sprintf("%s<%s>", fullName, strings.Join(parts, ","))
}

func specializationKey(fullName string, params []TypeParam, bindings map[string]*types.Type) string {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(fullName)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(bindings[name].String())
	}
	return b.String()
}
