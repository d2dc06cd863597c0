package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"time"

	"percipio.com/growbench/lib/logger"
)

// ForkEnv is set in the environment of every child started by ProcessForker.
const ForkEnv = "GROWBENCH_IN_FORK"

// forkStartupGrace covers process start and teardown on top of the
// computed measurement budget.
const forkStartupGrace = 30 * time.Second

type forkRequest struct {
	Fork       int      `json:"fork"`
	Config     Config   `json:"config"`
	Operations []string `json:"operations"`
	LogLevel   string   `json:"logLevel,omitempty"`
}

// ProcessForker runs each fork in a fresh child process. The child is
// Executable invoked with Args; it receives the fork request as JSON on stdin
// and must answer through ServeFork, one JSON result per line on stdout.
type ProcessForker struct {
	Executable string
	Args       []string
	Stderr     io.Writer
	// LogLevel is applied by the child before it measures anything.
	LogLevel string
}

// NewProcessForker re-executes the running binary with the given arguments.
func NewProcessForker(args ...string) (*ProcessForker, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return &ProcessForker{
		Executable: exe,
		Args:       args,
		Stderr:     os.Stderr,
	}, nil
}

func (p *ProcessForker) Fork(ctx context.Context, fork int, cfg Config, ops []Operation) ([]Result, error) {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	payload, err := json.Marshal(forkRequest{Fork: fork, Config: cfg, Operations: names, LogLevel: p.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("failed to encode fork request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, forkBudget(cfg, len(ops)))
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Executable, p.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(), ForkEnv+"=1")
	cmd.Stderr = p.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open child stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start fork %d: %w", fork, err)
	}
	logger.Debug("Fork %d running as pid %d", fork, cmd.Process.Pid)

	results, readErr := readResults(stdout, cfg)
	waitErr := cmd.Wait()

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return completeFork(fork, ops, results, "fork timed out"), nil
	case ctx.Err() != nil:
		return results, ctx.Err()
	case readErr != nil:
		return completeFork(fork, ops, results, fmt.Sprintf("failed to read result: %v", readErr)), nil
	case waitErr != nil:
		return completeFork(fork, ops, results, fmt.Sprintf("fork exited: %v", waitErr)), nil
	}
	return completeFork(fork, ops, results, "no result received from fork"), nil
}

func readResults(r io.Reader, cfg Config) ([]Result, error) {
	var results []Result
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var res Result
		if err := json.Unmarshal(line, &res); err != nil {
			// drain so the child does not block on a full pipe
			_, _ = io.Copy(io.Discard, r)
			return results, err
		}
		res.timeout = cfg.Timeout
		results = append(results, res)
	}
	return results, scanner.Err()
}

// forkBudget bounds a whole child run: every warm-up and measurement window,
// plus two watchdog periods per operation and process startup.
// The budget saturates at maxForkBudget instead of overflowing.
func forkBudget(cfg Config, ops int) time.Duration {
	perOp := addBudget(mulBudget(cfg.WarmupTime, int64(cfg.WarmupIterations)), cfg.MeasurementTime)
	perOp = addBudget(perOp, mulBudget(cfg.Timeout, 2))
	return addBudget(mulBudget(perOp, int64(ops)), forkStartupGrace)
}

const maxForkBudget = time.Duration(math.MaxInt64)

func mulBudget(d time.Duration, n int64) time.Duration {
	if d <= 0 || n <= 0 {
		return 0
	}
	if d > maxForkBudget/time.Duration(n) {
		return maxForkBudget
	}
	return d * time.Duration(n)
}

func addBudget(a, b time.Duration) time.Duration {
	if a > maxForkBudget-b {
		return maxForkBudget
	}
	return a + b
}

// ServeFork is the child side of ProcessForker. It reads a fork request from
// r, resolves the operations by name and streams each result to w as soon as
// it is measured.
func ServeFork(ctx context.Context, r io.Reader, w io.Writer, resolver Resolver) error {
	var req forkRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("failed to decode fork request: %w", err)
	}
	if req.LogLevel != "" {
		if err := logger.SetLevel(req.LogLevel); err != nil {
			return invalid("logLevel", req.LogLevel)
		}
	}
	if err := Validate(req.Config); err != nil {
		return err
	}

	ops := make([]Operation, 0, len(req.Operations))
	for _, name := range req.Operations {
		op, ok := resolver.Lookup(name)
		if !ok {
			return invalid("operation", name)
		}
		ops = append(ops, op)
	}
	if err := validateOperations(ops); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	var encErr error
	err := runFork(ctx, req.Fork, req.Config, ops, func(res Result) {
		if encErr == nil {
			encErr = enc.Encode(res)
		}
	})
	if err != nil {
		return err
	}
	return encErr
}
