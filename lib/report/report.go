// Package report renders benchmark results for people (text) and tools (json).
package report

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"percipio.com/growbench/lib/history"
	"percipio.com/growbench/lib/runner"
	"percipio.com/growbench/lib/stats"
)

// Report is everything a reporter may render. History is nil when history
// tracking is disabled.
type Report struct {
	Config     runner.Config       `json:"config"`
	Results    []runner.Result     `json:"results"`
	Statistics *stats.Statistics   `json:"statistics"`
	History    *history.RunHistory `json:"-"`
	Succeeded  bool                `json:"succeeded"`
}

type Reporter interface {
	Write(w io.Writer, r *Report) error
}

// New returns the reporter for format. Colour is enabled for text output
// when w is a terminal.
func New(format string, w io.Writer) (Reporter, error) {
	switch format {
	case "text":
		return &TextReporter{Color: IsTerminal(w)}, nil
	case "json":
		return &JSONReporter{Indent: true}, nil
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
