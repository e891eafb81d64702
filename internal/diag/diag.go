// Package diag implements the diagnostics surface described in spec.md §7:
// user-visible messages carrying a source range, buffered during exploratory
// (dummy-run / discovery) passes and flushed only on confirmed failure.
package diag

import (
	"fmt"
	"strings"
)

// Kind enumerates the diagnostic kinds surfaced to users (spec.md §7).
type Kind string

const (
	ParseDiagnostic         Kind = "parse-diagnostic"
	UnresolvedSymbol        Kind = "unresolved-symbol"
	AmbiguousName           Kind = "ambiguous-name"
	Redeclaration           Kind = "redeclaration"
	TypeMismatch            Kind = "type-mismatch"
	MissingType             Kind = "missing-type"
	IncompatibleIntersect   Kind = "incompatible-intersection"
	UnderConstrained        Kind = "under-constrained-type-parameter"
	ConstraintViolated      Kind = "constraint-violated"
	InfiniteSpecialization  Kind = "infinite-specialization"
	MissingInterfaceMember  Kind = "missing-interface-member"
	SignatureMismatch       Kind = "signature-mismatch"
	DuplicateMethod         Kind = "duplicate-method"
	UnknownLabel            Kind = "unknown-label"
	ReturnInVoidContext     Kind = "return-in-void-context"
	YieldOutsideGenerator   Kind = "yield-outside-generator"
)

// Severity distinguishes hard failures from advisory messages (e.g.
// constraint-violated is a warning per spec.md §4.4 step 4).
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Location is a source range, carried on every diagnostic (spec.md §6:
// "Each node carries source range (pos, end)").
type Location struct {
	File      string
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Message is a single diagnostic.
type Message struct {
	Kind     Kind
	Severity Severity
	Text     string
	At       Location
}

func (m Message) String() string {
	sev := "error"
	if m.Severity == SeverityWarning {
		sev = "warning"
	}
	return fmt.Sprintf("%s: %s: %s [%s]", m.At, sev, m.Text, m.Kind)
}

// Sink accumulates diagnostics. It is threaded explicitly through lowering
// (spec.md's "Design notes" rejects ambient mutable state), rather than
// reached for as a package-level global the way the teacher's SentraError
// construction sites did.
type Sink struct {
	messages []Message
	buffered []*Sink // stack of buffering adaptors pushed by discovery passes
	fatal    error

	// Listener, when non-nil, is called for every message as it becomes
	// user-visible -- a direct top-level Report, or an EndBuffer(flush=true)
	// landing back in this root sink -- never for a message still sitting in
	// a discovery-pass buffer. Wired by internal/watchserver in watch mode
	// (spec.md §7: "pushes buffered/flushed diagnostic messages ... as the
	// fixed-point loop makes progress"); left nil for a plain build, so
	// there is no observer overhead on the hot lowering path.
	Listener func(Message)
}

// NewSink creates an empty diagnostic sink.
func NewSink() *Sink {
	return &Sink{}
}

// Report appends a message, or -- while a buffering adaptor is active --
// writes into the innermost buffer instead (spec.md §7 "Partial-resolve
// mode ... suppresses all user-visible error emission: diagnostics are
// buffered").
func (s *Sink) Report(m Message) {
	if n := len(s.buffered); n > 0 {
		s.buffered[n-1].messages = append(s.buffered[n-1].messages, m)
		return
	}
	s.messages = append(s.messages, m)
	if s.Listener != nil {
		s.Listener(m)
	}
}

func (s *Sink) Errorf(kind Kind, at Location, format string, args ...any) {
	s.Report(Message{Kind: kind, Severity: SeverityError, Text: fmt.Sprintf(format, args...), At: at})
}

func (s *Sink) Warnf(kind Kind, at Location, format string, args ...any) {
	s.Report(Message{Kind: kind, Severity: SeverityWarning, Text: fmt.Sprintf(format, args...), At: at})
}

// BeginBuffer pushes a fresh buffering adaptor. Every Report call made until
// the matching EndBuffer call lands in the returned *Sink's own message list
// instead of the parent's, exactly mirroring the teacher's pattern of a
// disposable dummy-run copy (spec.md "Dummy-run").
func (s *Sink) BeginBuffer() *Sink {
	child := &Sink{}
	s.buffered = append(s.buffered, child)
	return child
}

// EndBuffer pops the innermost buffering adaptor. When flush is true its
// accumulated messages are appended to the parent (the outer pass failed);
// when false they are discarded (the outer pass succeeded) -- spec.md §7.
func (s *Sink) EndBuffer(flush bool) []Message {
	n := len(s.buffered)
	if n == 0 {
		return nil
	}
	child := s.buffered[n-1]
	s.buffered = s.buffered[:n-1]
	if flush {
		if n2 := len(s.buffered); n2 > 0 {
			s.buffered[n2-1].messages = append(s.buffered[n2-1].messages, child.messages...)
		} else {
			s.messages = append(s.messages, child.messages...)
			if s.Listener != nil {
				for _, m := range child.messages {
					s.Listener(m)
				}
			}
		}
	}
	return child.messages
}

// Messages returns all messages reported directly on this sink (not into a
// still-open buffer).
func (s *Sink) Messages() []Message { return s.messages }

// HasErrors reports whether any SeverityError message has been recorded.
func (s *Sink) HasErrors() bool {
	for _, m := range s.messages {
		if m.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (s *Sink) String() string {
	var sb strings.Builder
	for _, m := range s.messages {
		sb.WriteString(m.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
