package history

import (
	"time"

	"percipio.com/growbench/lib/runner"
	"percipio.com/growbench/lib/stats"
)

// RunHistory is one stored benchmark run.
type RunHistory struct {
	RunID        string                 `json:"runId"`
	Timestamp    time.Time              `json:"timestamp"`
	Config       runner.Config          `json:"config"`
	Results      []runner.Result        `json:"results"`
	Statistics   *stats.Statistics      `json:"statistics"`
	Operations   map[string]*Comparison `json:"operations"`
	BaselineID   string                 `json:"baselineId,omitempty"`
	Degradation  bool                   `json:"degradation"`
	ThresholdPct float64                `json:"thresholdPct"`
	GitInfo      GitMetadata            `json:"gitInfo"`
}

type GitMetadata struct {
	CommitHash    string    `json:"commitHash"`
	CommitMessage string    `json:"commitMessage"`
	Branch        string    `json:"branch"`
	ShortHash     string    `json:"shortHash"`
	Timestamp     time.Time `json:"timestamp"`
}

type Comparison struct {
	Current     *stats.OperationStatistics `json:"current"`
	Previous    *stats.OperationStatistics `json:"previous,omitempty"`
	Degradation bool                       `json:"degradation"`
	Changes     DegradationReport          `json:"changes"`
}

type DegradationReport struct {
	ThroughputDecrease float64 `json:"throughputDecrease"` // percent, negative is an improvement
	LostForks          int     `json:"lostForks"`          // fewer successful forks than the baseline
}

// TrendReport is the throughput of an operation in one run.
type TrendReport struct {
	RunID         string    `json:"runId"`
	CommitHash    string    `json:"commitHash"`
	ShortHash     string    `json:"shortHash"`
	CommitTime    time.Time `json:"commitTime"`
	Timestamp     time.Time `json:"timestamp"`
	MeanOpsPerSec float64   `json:"meanOpsPerSec"`
	MinOpsPerSec  float64   `json:"minOpsPerSec"`
	MaxOpsPerSec  float64   `json:"maxOpsPerSec"`
	StdDev        float64   `json:"stdDev"`
	Forks         int       `json:"forks"`
	SuccessForks  int       `json:"successForks"`
	TrendPercent  float64   `json:"trendPercent"` // change against the previous point
	BaselineHash  string    `json:"baselineHash,omitempty"`
}

type Summary struct {
	LastRun          time.Time                `json:"lastRun"`
	RunCount         int                      `json:"runCount"`
	Degradation      bool                     `json:"degradation"`
	History          []string                 `json:"history"`
	Trends           map[string]TrendReport   `json:"trends"`
	OperationHistory map[string][]TrendReport `json:"operationHistory"`
}
