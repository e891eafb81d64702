package diag

import (
	"fmt"

	"github.com/pkg/errors"
)

// Bug is raised for internal invariant violations (spec.md §7 "Fatal":
// "internal invariant violations ... are assertion failures, not user
// errors"). It carries a stack trace via github.com/pkg/errors so a panic
// recovered at the driver boundary can still be reported with a useful
// trace, mirroring the teacher's SentraError.CallStack without resurrecting
// its source-text-dependent formatting for what is, by definition, a
// compiler-internal condition rather than a user-facing one.
func Bug(format string, args ...any) error {
	return errors.WithStack(fmt.Errorf("internal invariant violated: "+format, args...))
}

// Assert panics with a Bug if cond is false. Used at construction
// boundaries that spec.md calls out explicitly, e.g. "attempting to build a
// function type with a null return type".
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(Bug(format, args...))
	}
}
