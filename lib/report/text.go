package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"percipio.com/growbench/lib/runner"
	"percipio.com/growbench/lib/util"
)

const (
	modeLabel = "thrpt"
	unitLabel = "ops/s"

	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorReset  = "\033[0m"
)

// TextReporter prints a per-fork table, a per-operation summary and any
// failures or degradations.
type TextReporter struct {
	Color bool
}

func (t *TextReporter) Write(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(tw, "Fork\tBenchmark\tMode\tScore\tUnits\t\n")
	for _, res := range r.Results {
		score := fmt.Sprintf("%.3f", res.Throughput)
		if !res.Succeeded() {
			score = strings.ToUpper(string(res.Status))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n", res.Fork, res.Operation, modeLabel, score, unitLabel)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if r.Statistics != nil {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(tw, "Benchmark\tMode\tCnt\tScore\tError\tUnits\t\n")
		for _, op := range r.Statistics.Operations {
			score, errMargin := "n/a", ""
			if op.SuccessForks > 0 {
				score = fmt.Sprintf("%.3f", op.MeanOpsPerSec)
				errMargin = fmt.Sprintf("± %.3f", op.StdDev)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t\n", op.Operation, modeLabel, op.SuccessForks, score, errMargin, unitLabel)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	t.writeFailures(w, r.Results)
	t.writeComparison(w, r)

	if !r.Succeeded {
		fmt.Fprintln(w, t.paint(colorRed, "\nRun failed: at least one fork completed no operation"))
	}
	return nil
}

func (t *TextReporter) writeFailures(w io.Writer, results []runner.Result) {
	var failures []runner.Result
	for _, res := range results {
		if !res.Succeeded() {
			failures = append(failures, res)
		}
	}
	if len(failures) == 0 {
		return
	}

	fmt.Fprintln(w, "\nFailures:")
	for _, res := range failures {
		color := colorRed
		if res.Status == runner.StatusTimeout {
			color = colorYellow
		}
		fmt.Fprintf(w, "  %s fork %d %s: %s\n", t.paint(color, strings.ToUpper(string(res.Status))), res.Fork, res.Operation, res.Error)
	}
}

func (t *TextReporter) writeComparison(w io.Writer, r *Report) {
	h := r.History
	if h == nil || h.BaselineID == "" || r.Statistics == nil {
		return
	}

	fmt.Fprintf(w, "\nComparison with run %s (threshold %.1f%%):\n", h.BaselineID, h.ThresholdPct)
	for _, op := range r.Statistics.Operations {
		c, ok := h.Operations[op.Operation]
		if !ok || c.Previous == nil {
			fmt.Fprintf(w, "  %s: new\n", op.Operation)
			continue
		}
		change := util.FormatChange(-c.Changes.ThroughputDecrease) + "%"
		switch {
		case c.Degradation:
			change = t.paint(colorRed, change+" DEGRADED")
		case c.Changes.ThroughputDecrease < 0:
			change = t.paint(colorGreen, change)
		}
		fmt.Fprintf(w, "  %s: %s -> %s ops/s %s\n", op.Operation,
			util.FormatOpsPerSec(c.Previous.MeanOpsPerSec), util.FormatOpsPerSec(op.MeanOpsPerSec), change)
	}
}

func (t *TextReporter) paint(color, s string) string {
	if !t.Color {
		return s
	}
	return color + s + colorReset
}
