package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"lumac/internal/ast"
	"lumac/internal/astjson"
	"lumac/internal/config"
	"lumac/internal/ir"
)

// loadFixture decodes one of the end-to-end scenario fixtures under
// tests/testdata (spec.md §8) into a single-file compiled unit.
func loadFixture(t *testing.T, name string) []*ast.SourceFile {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "tests", "testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	f, err := astjson.DecodeFile(data)
	if err != nil {
		t.Fatalf("decode fixture %s: %v", name, err)
	}
	return []*ast.SourceFile{f}
}

// TestGenericIdentitySpecializesPerCallSite covers spec.md §8 scenario 1:
// two calls to a generic identity function with distinct argument types
// must each produce their own named specialization.
func TestGenericIdentitySpecializesPerCallSite(t *testing.T) {
	files := loadFixture(t, "generic_identity.json")
	result, err := Build(context.Background(), files, config.Default())
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, result.Diags.String())
	}
	names := make([]string, 0, len(result.Module.Functions))
	for _, fn := range result.Module.Functions {
		names = append(names, fn.Name)
	}
	_, foundNumber := result.Module.Function("id<f64>")
	_, foundString := result.Module.Function("id<string>")
	if !foundNumber || !foundString {
		t.Fatalf("expected id<f64> and id<string> specializations, got %v", names)
	}
}

// TestGenericClassSpecializationMaterializesLayout checks that `new
// Box<number>()` emits the specialization's own method bodies under the
// Box<f64> symbol, not just a named type borrowing the template's layout.
func TestGenericClassSpecializationMaterializesLayout(t *testing.T) {
	files := loadFixture(t, "generic_class.json")
	result, err := Build(context.Background(), files, config.Default())
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, result.Diags.String())
	}
	if _, ok := result.Module.Function("Box<f64>.get"); !ok {
		names := make([]string, 0, len(result.Module.Functions))
		for _, fn := range result.Module.Functions {
			names = append(names, fn.Name)
		}
		t.Fatalf("expected Box<f64>.get for the specialization, got %v", names)
	}
}

// TestClassInheritanceLayersStorage covers spec.md §8 scenario 2: a
// subclass's storage tuple begins with its vtable slot (if any) followed by
// the base class's own tuple, then the subclass's own fields.
func TestClassInheritanceLayersStorage(t *testing.T) {
	files := loadFixture(t, "class_inherit.json")
	result, err := Build(context.Background(), files, config.Default())
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, result.Diags.String())
	}
	if result.Diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", result.Diags.String())
	}
	storageA := result.Classes.StorageTuple("A")
	storageB := result.Classes.StorageTuple("B")
	if storageA == nil || storageB == nil {
		t.Fatalf("expected storage tuples for A and B")
	}
	lead := len(storageB.FieldNames) - len(storageA.FieldNames) - 1
	if lead < 0 || lead > 1 || (lead == 1 && storageB.FieldNames[0] != "vtable") {
		t.Fatalf("expected B's storage to be [vtable] + A's storage + g, got %v (A: %v)", storageB.FieldNames, storageA.FieldNames)
	}
	for i, name := range storageA.FieldNames {
		if storageB.FieldNames[lead+i] != name {
			t.Fatalf("expected A's storage %v inside B's storage %v at %d", storageA.FieldNames, storageB.FieldNames, lead)
		}
	}
	if last := storageB.FieldNames[len(storageB.FieldNames)-1]; last != "g" {
		t.Fatalf("expected B's own field g last in its storage, got %v", storageB.FieldNames)
	}
}

// TestInterfaceImplementationBuildsVTable covers spec.md §8 scenario 3: a
// class implementing an interface gets a per-class interface vtable and the
// `let i: I = new C()` assignment lowers without diagnostics.
func TestInterfaceImplementationBuildsVTable(t *testing.T) {
	files := loadFixture(t, "interface_vtable.json")
	result, err := Build(context.Background(), files, config.Default())
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, result.Diags.String())
	}
	if result.Diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", result.Diags.String())
	}
	var names []string
	found := false
	for _, g := range result.LayoutGlobals.Globals {
		names = append(names, g.Name())
		if g.Name() == "C.I..vtable" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected interface vtable global C.I..vtable, got %v", names)
	}

	initFn, ok := result.Module.Function("interface_vtable.lm..init")
	if !ok {
		t.Fatalf("expected the file's top-level init function")
	}
	if !regionHasOpKind(initFn.Entry, ir.KNewInterface) {
		t.Fatalf("expected `let i: I = new C()` to lower to a new-interface op")
	}
}

// TestClassAccessorDispatchesThroughGetterSetter checks that a get/set
// property pair emits its own C.get_x/C.set_x bodies and that reads and
// writes of `c.x` at the top level invoke them instead of touching storage.
func TestClassAccessorDispatchesThroughGetterSetter(t *testing.T) {
	files := loadFixture(t, "class_accessor.json")
	result, err := Build(context.Background(), files, config.Default())
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, result.Diags.String())
	}
	if result.Diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", result.Diags.String())
	}
	if _, ok := result.Module.Function("C.get_x"); !ok {
		t.Fatalf("expected emitted getter body C.get_x")
	}
	if _, ok := result.Module.Function("C.set_x"); !ok {
		t.Fatalf("expected emitted setter body C.set_x")
	}
	initFn, ok := result.Module.Function("class_accessor.lm..init")
	if !ok {
		t.Fatalf("expected the file's top-level init function")
	}
	if !regionHasInvokeOf(initFn.Entry, "C.set_x") {
		t.Fatalf("expected `c.x = 5` to invoke C.set_x")
	}
	if !regionHasInvokeOf(initFn.Entry, "C.get_x") {
		t.Fatalf("expected `const y = c.x` to invoke C.get_x")
	}
}

// TestObjectLiteralMethodSharesCaptureTuple checks spec.md §4.6's
// object-literal method rule: a method closing over an outer variable gets
// its prototype rewritten to receive a capture tuple, and the literal's
// storage gains one accumulated `.captured` field built by a capture op.
func TestObjectLiteralMethodSharesCaptureTuple(t *testing.T) {
	files := loadFixture(t, "object_capture.json")
	result, err := Build(context.Background(), files, config.Default())
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, result.Diags.String())
	}
	if result.Diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", result.Diags.String())
	}
	peek, ok := result.Module.Function("peek")
	if !ok {
		t.Fatalf("expected the object-literal method to be emitted as a function")
	}
	if len(peek.CaptureNames) != 1 || peek.CaptureNames[0] != "k" {
		t.Fatalf("expected peek to capture k, got %v", peek.CaptureNames)
	}
	initFn, ok := result.Module.Function("object_capture.lm..init")
	if !ok {
		t.Fatalf("expected the file's top-level init function")
	}
	if !regionHasOpKind(initFn.Entry, ir.KCapture) {
		t.Fatalf("expected a capture op building the shared .captured tuple")
	}
}

func regionHasInvokeOf(r *ir.Region, callee string) bool {
	for _, b := range r.Blocks {
		for _, op := range b.Ops {
			if op.Kind == ir.KInvoke && op.Name == callee {
				return true
			}
			for _, nested := range op.Regions {
				if regionHasInvokeOf(nested, callee) {
					return true
				}
			}
		}
	}
	return false
}

func regionHasOpKind(r *ir.Region, kind ir.Kind) bool {
	for _, b := range r.Blocks {
		for _, op := range b.Ops {
			if op.Kind == kind {
				return true
			}
			for _, nested := range op.Regions {
				if regionHasOpKind(nested, kind) {
					return true
				}
			}
		}
	}
	return false
}

// TestTryThrowLowersUnderItaniumABI covers spec.md §8 scenario 4.
func TestTryThrowLowersUnderItaniumABI(t *testing.T) {
	files := loadFixture(t, "try_throw.json")
	opts := config.Default()
	opts.ExceptionABI = config.ABIItanium
	result, err := Build(context.Background(), files, opts)
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, result.Diags.String())
	}
	if result.Diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", result.Diags.String())
	}
}

// TestForOfArrayDesugarsToIndexLoop covers spec.md §8 scenario 5: iterating
// a plain array literal (which has a length but no next) takes the
// index-based loop path rather than the iterator protocol.
func TestForOfArrayDesugarsToIndexLoop(t *testing.T) {
	files := loadFixture(t, "for_of_array.json")
	result, err := Build(context.Background(), files, config.Default())
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, result.Diags.String())
	}
	if result.Diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", result.Diags.String())
	}
	initFn, ok := result.Module.Function("for_of_array.lm..init")
	if !ok {
		t.Fatalf("expected module init function")
	}
	if !regionHasOpKind(initFn.Entry, ir.KFor) {
		t.Fatalf("expected the for-of over an array to lower to an index-based for op")
	}
	if regionHasOpKind(initFn.Entry, ir.KWhile) {
		t.Fatalf("expected no iterator-protocol while loop for a plain array")
	}
}

// TestGeneratorDesugarsToStateMachine covers spec.md §8 scenario 6: a
// generator function with two top-level yields lowers to a switch keyed on
// a hidden step variable with one region per yield segment.
func TestGeneratorDesugarsToStateMachine(t *testing.T) {
	files := loadFixture(t, "generator_yield.json")
	result, err := Build(context.Background(), files, config.Default())
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, result.Diags.String())
	}
	if result.Diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", result.Diags.String())
	}
	fn, ok := result.Module.Function("g")
	if !ok {
		t.Fatalf("expected function %q in module", "g")
	}
	if fn == nil {
		t.Fatalf("function %q has nil body", "g")
	}
	if !regionHasOpKind(fn.Entry, ir.KSwitch) {
		t.Fatalf("expected generator %q to lower to a switch on its step variable", "g")
	}
}
