package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Printer renders a Sink's messages, gating ANSI color on whether the
// destination is a real terminal -- the same isatty check the teacher's
// dependency tree already carries (transitively, through its DB driver
// stack); here it is used directly by the diagnostics path instead.
type Printer struct {
	w     io.Writer
	Color bool
}

// NewPrinter builds a Printer for w, auto-detecting color support when w is
// an *os.File.
func NewPrinter(w io.Writer) *Printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{w: w, Color: color}
}

func (p *Printer) colorize(code, s string) string {
	if !p.Color {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

// Print writes every message in sink to the printer's writer.
func (p *Printer) Print(sink *Sink) {
	for _, m := range sink.Messages() {
		label := "error"
		code := "31"
		if m.Severity == SeverityWarning {
			label = "warning"
			code = "33"
		}
		fmt.Fprintf(p.w, "%s: %s: %s [%s]\n", m.At, p.colorize(code, label), m.Text, m.Kind)
	}
}

// PrintLayoutSize reports a class's storage size in human-readable form,
// used by cmd/lumac's verbose build summary.
func (p *Printer) PrintLayoutSize(name string, bytes uint64) {
	fmt.Fprintf(p.w, "%s: storage size %s\n", name, humanize.Bytes(bytes))
}
