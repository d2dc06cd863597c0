package report

import (
	"encoding/json"
	"io"
)

type JSONReporter struct {
	Indent bool
}

type jsonReport struct {
	*Report
	RunID       string `json:"runId,omitempty"`
	BaselineID  string `json:"baselineId,omitempty"`
	Degradation bool   `json:"degradation"`
}

func (j *JSONReporter) Write(w io.Writer, r *Report) error {
	out := jsonReport{Report: r}
	if r.History != nil {
		out.RunID = r.History.RunID
		out.BaselineID = r.History.BaselineID
		out.Degradation = r.History.Degradation
	}

	enc := json.NewEncoder(w)
	if j.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}
