package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"percipio.com/growbench/lib/logger"
)

// Forker executes one fork of the suite in an isolated environment.
type Forker interface {
	Fork(ctx context.Context, fork int, cfg Config, ops []Operation) ([]Result, error)
}

// InProcessForker runs forks inside the current process. Isolation is limited
// to a forced GC and returning freed memory to the OS between forks.
type InProcessForker struct{}

func (InProcessForker) Fork(ctx context.Context, fork int, cfg Config, ops []Operation) ([]Result, error) {
	if n := Abandoned(); n > 0 {
		logger.Warn("Fork %d: %d timed-out invocation(s) still running in this process, results may be skewed", fork, n)
	}
	runtime.GC()
	debug.FreeOSMemory()
	return RunFork(ctx, fork, cfg, ops)
}

type Runner struct {
	config     Config
	operations []Operation
	forker     Forker
}

type Option func(*Runner)

func WithForker(f Forker) Option {
	return func(r *Runner) {
		r.forker = f
	}
}

func NewRunner(cfg Config, opts ...Option) *Runner {
	r := &Runner{
		config: cfg,
		forker: InProcessForker{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) AddOperation(op Operation) {
	r.operations = append(r.operations, op)
}

func (r *Runner) Operations() []Operation {
	return r.operations
}

// Run is a convenience wrapper around NewRunner and Runner.Run.
func Run(ctx context.Context, cfg Config, ops []Operation, opts ...Option) ([]Result, error) {
	r := NewRunner(cfg, opts...)
	for _, op := range ops {
		r.AddOperation(op)
	}
	return r.Run(ctx)
}

// Run validates the configuration, then executes every fork in sequence.
// Results are ordered by fork, then by registration order.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	if err := Validate(r.config); err != nil {
		return nil, err
	}
	if err := validateOperations(r.operations); err != nil {
		return nil, err
	}

	logger.Info("Starting benchmark: %d operations, %d fork(s), warmup %d x %v, measurement %v, timeout %v",
		len(r.operations), r.config.Forks, r.config.WarmupIterations, r.config.WarmupTime,
		r.config.MeasurementTime, r.config.Timeout)

	results := make([]Result, 0, r.config.Forks*len(r.operations))
	for fork := 1; fork <= r.config.Forks; fork++ {
		logger.Info("Fork %d/%d", fork, r.config.Forks)

		forkResults, err := r.forker.Fork(ctx, fork, r.config, r.operations)
		if err != nil {
			if ctx.Err() != nil {
				return append(results, forkResults...), err
			}
			logger.Error("Fork %d failed: %v", fork, err)
			forkResults = completeFork(fork, r.operations, forkResults, err.Error())
		}
		results = append(results, forkResults...)
	}

	logger.Info("Benchmark completed. Total results: %d", len(results))
	return results, nil
}

// Validate rejects any non-positive tunable or unsupported mode.
func Validate(cfg Config) error {
	var errs []error
	if cfg.Mode != ModeThroughput {
		errs = append(errs, invalid("mode", cfg.Mode))
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, invalid("timeout", cfg.Timeout))
	}
	if cfg.WarmupIterations <= 0 {
		errs = append(errs, invalid("warmupIterations", cfg.WarmupIterations))
	}
	if cfg.WarmupTime <= 0 {
		errs = append(errs, invalid("warmupTime", cfg.WarmupTime))
	}
	if cfg.MeasurementTime <= 0 {
		errs = append(errs, invalid("measurementTime", cfg.MeasurementTime))
	}
	if cfg.Forks < 1 {
		errs = append(errs, invalid("forks", cfg.Forks))
	}
	return errors.Join(errs...)
}

func validateOperations(ops []Operation) error {
	if len(ops) == 0 {
		return &BenchmarkError{Op: "run", Err: ErrNoOperationsRegistered}
	}
	seen := make(map[string]bool, len(ops))
	var errs []error
	for i, op := range ops {
		field := fmt.Sprintf("operations[%d]", i)
		switch {
		case op.Name == "":
			errs = append(errs, invalid(field, "unnamed"))
		case op.Fn == nil:
			errs = append(errs, invalid(field, op.Name))
		case seen[op.Name]:
			errs = append(errs, invalid(field, "duplicate "+op.Name))
		}
		seen[op.Name] = true
	}
	return errors.Join(errs...)
}

// RunFork measures every operation once under cfg, in order. It only returns
// an error when ctx is cancelled.
func RunFork(ctx context.Context, fork int, cfg Config, ops []Operation) ([]Result, error) {
	results := make([]Result, 0, len(ops))
	err := runFork(ctx, fork, cfg, ops, func(res Result) {
		results = append(results, res)
	})
	return results, err
}

func runFork(ctx context.Context, fork int, cfg Config, ops []Operation, emit func(Result)) error {
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := measure(ctx, fork, cfg, op)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch res.Status {
		case StatusOK:
			logger.Info("Fork %d: %s: %.2f ops/s (%d samples)", fork, op.Name, res.Throughput, res.Samples)
		default:
			logger.Warn("Fork %d: %s: %s", fork, op.Name, res.Error)
		}
		emit(res)
	}
	return nil
}

func measure(ctx context.Context, fork int, cfg Config, op Operation) Result {
	res := Result{Fork: fork, Operation: op.Name, timeout: cfg.Timeout}

	for i := 1; i <= cfg.WarmupIterations; i++ {
		n, _, err := invokeFor(ctx, op, cfg.WarmupTime, cfg.Timeout)
		if err != nil {
			return failed(res, "warmup", err)
		}
		logger.Debug("Fork %d: %s: warmup %d/%d: %d ops", fork, op.Name, i, cfg.WarmupIterations, n)
	}

	n, elapsed, err := invokeFor(ctx, op, cfg.MeasurementTime, cfg.Timeout)
	res.Samples = n
	res.Elapsed = elapsed
	if err != nil {
		return failed(res, "measurement", err)
	}
	res.Status = StatusOK
	res.Throughput = float64(n) / cfg.MeasurementTime.Seconds()
	return res
}

func failed(res Result, phase string, err error) Result {
	res.Throughput = 0
	if errors.Is(err, ErrOperationTimeout) {
		res.Status = StatusTimeout
		res.Error = (&TimeoutError{
			BenchmarkError: BenchmarkError{Op: phase, Err: ErrOperationTimeout},
			Fork:           res.Fork,
			Operation:      res.Operation,
			Timeout:        res.timeout,
		}).Error()
		return res
	}
	res.Status = StatusFailed
	res.Error = fmt.Sprintf("%s: %v", phase, err)
	return res
}

const (
	loopRunning int32 = iota
	loopFinished
	loopAbandoned
)

// abandoned counts invocation loops left running after a timeout or
// cancellation. They finish on their own once the stuck call returns.
var abandoned atomic.Int64

// Abandoned returns the number of timed-out or cancelled invocations still
// running in this process.
func Abandoned() int64 {
	return abandoned.Load()
}

// invokeFor calls op repeatedly until budget elapses and returns the number
// of completed invocations. A watchdog samples the completion counter every
// timeout; two equal samples mean one invocation ran for at least timeout,
// and the loop is abandoned with ErrOperationTimeout.
func invokeFor(ctx context.Context, op Operation, budget, timeout time.Duration) (int64, time.Duration, error) {
	var (
		completed atomic.Int64
		stop      atomic.Bool
		state     atomic.Int32
	)
	done := make(chan error, 1)
	start := time.Now()

	go func() {
		var err error
		defer func() {
			if v := recover(); v != nil {
				err = fmt.Errorf("panic: %v", v)
			}
			if !state.CompareAndSwap(loopRunning, loopFinished) {
				abandoned.Add(-1)
				logger.Debug("%s: abandoned invocation returned", op.Name)
			}
			done <- err
		}()
		for !stop.Load() {
			op.Fn()
			completed.Add(1)
		}
	}()

	abandon := func() {
		stop.Store(true)
		abandoned.Add(1)
		if !state.CompareAndSwap(loopRunning, loopAbandoned) {
			// the loop finished in the meantime
			abandoned.Add(-1)
		}
	}

	deadline := time.NewTimer(budget)
	defer deadline.Stop()
	watchdog := time.NewTicker(timeout)
	defer watchdog.Stop()

	var last int64
	for {
		select {
		case err := <-done:
			return completed.Load(), time.Since(start), err
		case <-deadline.C:
			stop.Store(true)
		case <-watchdog.C:
			n := completed.Load()
			if n == last {
				abandon()
				logger.Warn("%s: invocation still running after %v, abandoning it", op.Name, timeout)
				return n, time.Since(start), ErrOperationTimeout
			}
			last = n
		case <-ctx.Done():
			abandon()
			return completed.Load(), time.Since(start), ctx.Err()
		}
	}
}

// ForkSucceeded reports whether every fork present in results completed at
// least one operation.
func ForkSucceeded(results []Result) bool {
	if len(results) == 0 {
		return false
	}
	ok := make(map[int]bool)
	for _, res := range results {
		ok[res.Fork] = ok[res.Fork] || res.Succeeded()
	}
	for _, v := range ok {
		if !v {
			return false
		}
	}
	return true
}

// completeFork returns one result per operation in registration order,
// filling operations absent from got with a failed result.
func completeFork(fork int, ops []Operation, got []Result, reason string) []Result {
	have := make(map[string]Result, len(got))
	for _, res := range got {
		have[res.Operation] = res
	}
	results := make([]Result, 0, len(ops))
	for _, op := range ops {
		res, ok := have[op.Name]
		if !ok {
			res = Result{
				Fork:      fork,
				Operation: op.Name,
				Status:    StatusFailed,
				Error:     reason,
			}
		}
		results = append(results, res)
	}
	return results
}
