package runner

import (
	"fmt"
	"time"
)

// Mode selects what a benchmark reports. Only throughput is supported.
type Mode string

const ModeThroughput Mode = "throughput"

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeThroughput, "thrpt", "Throughput":
		return ModeThroughput, nil
	}
	return "", &ConfigError{
		BenchmarkError: BenchmarkError{Op: "parse mode", Err: ErrInvalidConfiguration},
		Field:          "mode",
		Value:          s,
	}
}

// Config is the measurement regimen applied to every operation.
type Config struct {
	Mode             Mode          `json:"mode"`
	Timeout          time.Duration `json:"timeout"`
	WarmupIterations int           `json:"warmupIterations"`
	WarmupTime       time.Duration `json:"warmupTime"`
	MeasurementTime  time.Duration `json:"measurementTime"`
	Forks            int           `json:"forks"`
}

// Operation is a named unit of work timed by the runner. Fn must not share
// mutable state with other operations.
type Operation struct {
	Name string
	Fn   func()
}

type Status string

const (
	StatusOK      Status = "ok"
	StatusTimeout Status = "timeout"
	StatusFailed  Status = "failed"
)

// Result is the measurement of one operation in one fork.
type Result struct {
	Fork       int           `json:"fork"`
	Operation  string        `json:"operation"`
	Status     Status        `json:"status"`
	Throughput float64       `json:"throughput"` // ops/sec
	Samples    int64         `json:"samples"`
	Elapsed    time.Duration `json:"elapsed"`
	Error      string        `json:"error,omitempty"`

	timeout time.Duration
}

func (r Result) Succeeded() bool {
	return r.Status == StatusOK
}

// Err rebuilds the typed error for a failed result, nil for a successful one.
func (r Result) Err() error {
	switch r.Status {
	case StatusTimeout:
		return &TimeoutError{
			BenchmarkError: BenchmarkError{Op: "measure", Err: ErrOperationTimeout},
			Fork:           r.Fork,
			Operation:      r.Operation,
			Timeout:        r.timeout,
		}
	case StatusFailed:
		return &BenchmarkError{Op: "measure " + r.Operation, Err: fmt.Errorf("%s", r.Error)}
	}
	return nil
}

// Resolver maps operation names back to operations, used by fork children.
type Resolver interface {
	Lookup(name string) (Operation, bool)
}
