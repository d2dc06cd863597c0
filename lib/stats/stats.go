package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"percipio.com/growbench/lib/runner"
)

// OperationStatistics aggregates the per-fork throughput of one operation.
type OperationStatistics struct {
	Operation     string        `json:"operation"`
	Forks         int           `json:"forks"`
	SuccessForks  int           `json:"successForks"`
	TimeoutForks  int           `json:"timeoutForks"`
	FailedForks   int           `json:"failedForks"`
	TotalSamples  int64         `json:"totalSamples"`
	MeanOpsPerSec float64       `json:"meanOpsPerSec"`
	MinOpsPerSec  float64       `json:"minOpsPerSec"`
	MaxOpsPerSec  float64       `json:"maxOpsPerSec"`
	StdDev        float64       `json:"stdDev"`
	Relative      float64       `json:"relative"` // mean / fastest mean, 0 when no fork succeeded
	TotalElapsed  time.Duration `json:"totalElapsed"`
}

// Statistics holds one entry per operation, in the order the operations
// first appear in the results.
type Statistics struct {
	Operations   []*OperationStatistics `json:"operations"`
	TotalResults int                    `json:"totalResults"`
	Fastest      string                 `json:"fastest,omitempty"`
}

func Calculate(results []runner.Result) *Statistics {
	stats := &Statistics{TotalResults: len(results)}
	index := make(map[string]*OperationStatistics)
	samples := make(map[string][]float64)

	for _, result := range results {
		opStat, exists := index[result.Operation]
		if !exists {
			opStat = &OperationStatistics{Operation: result.Operation}
			index[result.Operation] = opStat
			stats.Operations = append(stats.Operations, opStat)
		}

		opStat.Forks++
		opStat.TotalElapsed += result.Elapsed

		switch result.Status {
		case runner.StatusOK:
			opStat.SuccessForks++
			opStat.TotalSamples += result.Samples
			samples[result.Operation] = append(samples[result.Operation], result.Throughput)
		case runner.StatusTimeout:
			opStat.TimeoutForks++
		default:
			opStat.FailedForks++
		}
	}

	for _, opStat := range stats.Operations {
		calculateThroughput(opStat, samples[opStat.Operation])
	}
	stats.calculateRelative()

	return stats
}

func calculateThroughput(stat *OperationStatistics, values []float64) {
	if len(values) == 0 {
		return
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	stat.MinOpsPerSec = sorted[0]
	stat.MaxOpsPerSec = sorted[len(sorted)-1]

	var sum float64
	for _, v := range values {
		sum += v
	}
	stat.MeanOpsPerSec = sum / float64(len(values))

	if len(values) < 2 {
		return
	}
	var sq float64
	for _, v := range values {
		d := v - stat.MeanOpsPerSec
		sq += d * d
	}
	// sample standard deviation
	stat.StdDev = math.Sqrt(sq / float64(len(values)-1))
}

func (s *Statistics) calculateRelative() {
	var best float64
	for _, op := range s.Operations {
		if op.MeanOpsPerSec > best {
			best = op.MeanOpsPerSec
			s.Fastest = op.Operation
		}
	}
	if best == 0 {
		return
	}
	for _, op := range s.Operations {
		op.Relative = op.MeanOpsPerSec / best
	}
}

// Lookup returns the statistics of one operation.
func (s *Statistics) Lookup(operation string) (*OperationStatistics, bool) {
	for _, op := range s.Operations {
		if op.Operation == operation {
			return op, true
		}
	}
	return nil, false
}

func (s *Statistics) String() string {
	var sb strings.Builder
	sb.WriteString("Benchmark Summary\n")
	sb.WriteString("=================\n")
	sb.WriteString(fmt.Sprintf("Total Results: %d\n", s.TotalResults))
	if s.Fastest != "" {
		sb.WriteString(fmt.Sprintf("Fastest:       %s\n", s.Fastest))
	}
	sb.WriteString("\n")

	for _, stat := range s.Operations {
		sb.WriteString(fmt.Sprintf("Operation: %s\n", stat.Operation))
		sb.WriteString("------------------------\n")
		sb.WriteString(fmt.Sprintf("Forks:        %d (ok %d, timeout %d, failed %d)\n",
			stat.Forks, stat.SuccessForks, stat.TimeoutForks, stat.FailedForks))
		if stat.SuccessForks == 0 {
			sb.WriteString("Throughput:   n/a\n\n")
			continue
		}
		sb.WriteString(fmt.Sprintf("Mean ops/s:   %.2f\n", stat.MeanOpsPerSec))
		sb.WriteString(fmt.Sprintf("Min ops/s:    %.2f\n", stat.MinOpsPerSec))
		sb.WriteString(fmt.Sprintf("Max ops/s:    %.2f\n", stat.MaxOpsPerSec))
		sb.WriteString(fmt.Sprintf("Std dev:      %.2f\n", stat.StdDev))
		sb.WriteString(fmt.Sprintf("Relative:     %.1f%%\n\n", stat.Relative*100))
	}

	return sb.String()
}
