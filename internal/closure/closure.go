// Package closure implements spec.md §4.6's two-pass capture discovery:
// a disposable dummy-run records every free variable a function body
// references, then a second (real) pass rewrites the function's prototype
// to receive a capture tuple and materializes the amended body.
//
// internal/lower drives both passes (it owns the AST traversal and the
// ir.Builder); this package only accumulates capture records and computes
// the resulting types, keeping closure analysis a plain value-in/value-out
// component with no traversal logic of its own.
package closure

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lumac/internal/ir"
	"lumac/internal/symtab"
	"lumac/internal/types"
)

// tupleIDNamespace scopes the deterministic capture-tuple identifiers below
// so they never collide with a UUID minted by an unrelated subsystem.
var tupleIDNamespace = uuid.MustParse("2c9a6a6e-2b37-4b61-9f8d-9d8a6b9a2b10")

// Mode selects whether a captured variable is closed over by value or by
// reference (spec.md §4.6: "by-reference capture when the variable is
// read-write; by-value otherwise").
type Mode int

const (
	ByValue Mode = iota
	ByRef
)

// CapturedFieldName is the synthetic field name a function's capture
// tuple (or an object literal's accumulated one) is addressed through
// (spec.md §4.6: "methods see it through this..captured").
const CapturedFieldName = ".captured"

// Capture is one free variable discovered by a dummy-run.
type Capture struct {
	Name   string
	Type   *types.Type
	Mode   Mode
	Source *ir.Value // the defining variable/param op's result
}

// RegionPath is the stack of regions lexically enclosing the point
// currently being lowered, outer to inner, maintained by the caller.
type RegionPath []*ir.Region

// Contains reports whether r appears anywhere in path -- i.e. r is (or is
// an ancestor enclosing) the current lowering position.
func Contains(path RegionPath, r *ir.Region) bool {
	for _, p := range path {
		if p == r {
			return true
		}
	}
	return false
}

// Discovery accumulates captures found during one function body's
// dummy-run. Re-observing the same name is a no-op, so a variable
// referenced from several nested blocks is captured exactly once.
type Discovery struct {
	order    []string
	captures map[string]Capture
}

func NewDiscovery() *Discovery {
	return &Discovery{captures: map[string]Capture{}}
}

// Observe is called by the identifier resolver on every successful
// variable lookup during the dummy-run (spec.md §4.6). definedAt is the
// region that owns the variable's defining op; currentPath is the region
// nest the reference occurs in. A variable is a capture when its
// defining region is absent from currentPath (i.e. not an ancestor of the
// current function's region) and it is not flagged ignore-for-capture.
func (d *Discovery) Observe(sym *symtab.Symbol, value *ir.Value, definedAt *ir.Region, currentPath RegionPath) {
	if sym.IgnoreForCapture {
		return
	}
	if Contains(currentPath, definedAt) {
		return
	}
	if _, already := d.captures[sym.Name]; already {
		return
	}
	mode := ByValue
	if sym.Mutable {
		mode = ByRef
	}
	d.order = append(d.order, sym.Name)
	d.captures[sym.Name] = Capture{Name: sym.Name, Type: sym.Type, Mode: mode, Source: value}
}

// Empty reports whether no captures were discovered -- the function needs
// no prototype rewrite.
func (d *Discovery) Empty() bool { return len(d.order) == 0 }

// Captures returns every discovered capture, in first-observed order (the
// order the capture tuple's fields are laid out in).
func (d *Discovery) Captures() []Capture {
	out := make([]Capture, len(d.order))
	for i, name := range d.order {
		out[i] = d.captures[name]
	}
	return out
}

// MarkCaptured flags every capture's source variable/param op as captured
// (spec.md §4.6: "Each capture's source variable/param op is marked
// captured = true").
func MarkCaptured(captures []Capture) {
	for _, c := range captures {
		if c.Source != nil {
			c.Source.Captured = true
		}
	}
}

// TupleType builds the capture tuple type mirroring the discovered
// captures: by-reference captures store a ref(T) field, by-value captures
// store T directly (spec.md §4.6).
func TupleType(captures []Capture) *types.Type {
	names := make([]string, len(captures))
	fields := make([]*types.Type, len(captures))
	for i, c := range captures {
		names[i] = c.Name
		if c.Mode == ByRef {
			fields[i] = types.NewRef(c.Type)
		} else {
			fields[i] = c.Type
		}
	}
	return types.NewTuple(fields...)
}

// TupleID assigns a stable synthetic identifier to one closure's capture
// tuple. internal/types interns TupleType's result structurally, so two
// unrelated closures that happen to capture the same (name, type, mode)
// sequence share one *types.Type pointer -- that's correct for the type
// system (spec.md §4.1 structural equality) but leaves diagnostics and IR
// global names with no way to tell the two closures' captured-tuple
// instances apart. TupleID derives a version-5 UUID (content-hashed, not
// random, so the same capture list always yields the same id across
// separate compiler invocations -- unlike uuid.New, whose output would
// differ run to run and break the reproducible-build-cache story
// internal/buildcache otherwise guarantees) from the ordered capture list
// and is attached to the owning ir.Function as Function.CaptureTupleID.
func TupleID(captures []Capture) string {
	var sb strings.Builder
	for _, c := range captures {
		fmt.Fprintf(&sb, "%s:%d:%s|", c.Name, c.Mode, c.Type.String())
	}
	return uuid.NewSHA1(tupleIDNamespace, []byte(sb.String())).String()
}

// PrependCaptureParam rewrites sig to receive the capture tuple as its
// first parameter (spec.md §4.6: "the prototype is rewritten to prepend
// one parameter holding a pointer to a capture tuple").
func PrependCaptureParam(sig types.FuncSig, captureType *types.Type) types.FuncSig {
	params := make([]types.Param, 0, len(sig.Params)+1)
	params = append(params, types.Param{Name: CapturedFieldName, Type: types.NewRef(captureType)})
	params = append(params, sig.Params...)
	sig.Params = params
	return sig
}

// BoundType builds the bound-function type a referencing site rewrites a
// symbol-ref to once the callee has captures (spec.md §4.6: "References to
// the original function value ... are replaced by
// create-bound-function(capture, funcSymbol) at every referencing site").
// The bound type's visible arity drops the prepended capture parameter --
// callers still invoke it with the original argument list.
func BoundType(captureType *types.Type, amendedSig types.FuncSig) *types.Type {
	sig := amendedSig
	if len(sig.Params) > 0 {
		sig.Params = sig.Params[1:]
	}
	return types.NewBoundFunction(captureType, sig)
}
