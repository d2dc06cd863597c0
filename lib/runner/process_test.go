package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crashAfterFirstEnv = "GROWBENCH_TEST_CRASH_AFTER_FIRST"

type mapResolver map[string]Operation

func (m mapResolver) Lookup(name string) (Operation, bool) {
	op, ok := m[name]
	return op, ok
}

func testResolver() mapResolver {
	m := mapResolver{}
	for _, op := range fourOps() {
		m[op.Name] = op
	}
	m["stuck"] = Operation{Name: "stuck", Fn: func() { time.Sleep(500 * time.Millisecond) }}
	return m
}

// crashingWriter lets one result through, then kills the process.
type crashingWriter struct {
	w      *os.File
	writes int
}

func (c *crashingWriter) Write(p []byte) (int, error) {
	if c.writes == 1 {
		os.Exit(3)
	}
	c.writes++
	return c.w.Write(p)
}

// TestForkHelperProcess is not a real test: ProcessForker re-executes the
// test binary with this test selected to act as a fork child.
func TestForkHelperProcess(t *testing.T) {
	if os.Getenv(ForkEnv) != "1" {
		return
	}
	var out io.Writer = os.Stdout
	if os.Getenv(crashAfterFirstEnv) == "1" {
		out = &crashingWriter{w: os.Stdout}
	}
	if err := ServeFork(context.Background(), os.Stdin, out, testResolver()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(0)
}

func helperForker() *ProcessForker {
	return &ProcessForker{
		Executable: os.Args[0],
		Args:       []string{"-test.run=^TestForkHelperProcess$"},
		Stderr:     os.Stderr,
	}
}

func TestProcessForkerRunsForksInChildren(t *testing.T) {
	cfg := quickConfig()
	cfg.Forks = 2
	ops := fourOps()

	results, err := Run(context.Background(), cfg, ops, WithForker(helperForker()))
	require.NoError(t, err)
	require.Len(t, results, 8)

	for i, res := range results {
		assert.Equal(t, i/len(ops)+1, res.Fork)
		assert.Equal(t, ops[i%len(ops)].Name, res.Operation)
		assert.Equal(t, StatusOK, res.Status, res.Error)
		assert.Positive(t, res.Throughput)
	}
}

func TestProcessForkerFillsResultsWhenChildDies(t *testing.T) {
	t.Setenv(crashAfterFirstEnv, "1")
	ops := fourOps()

	results, err := helperForker().Fork(context.Background(), 1, quickConfig(), ops)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, StatusOK, results[0].Status)
	for _, res := range results[1:] {
		assert.Equal(t, StatusFailed, res.Status)
		assert.Contains(t, res.Error, "fork exited")
	}
}

func TestServeForkStreamsResults(t *testing.T) {
	req, err := json.Marshal(forkRequest{
		Fork:       3,
		Config:     quickConfig(),
		Operations: []string{"c", "a"},
	})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, ServeFork(context.Background(), bytes.NewReader(req), &out, testResolver()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	results, err := readResults(&out, quickConfig())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c", results[0].Operation)
	assert.Equal(t, "a", results[1].Operation)
	assert.Equal(t, 3, results[0].Fork)
}

func TestServeForkRejectsBadRequests(t *testing.T) {
	encode := func(req forkRequest) *bytes.Reader {
		data, err := json.Marshal(req)
		require.NoError(t, err)
		return bytes.NewReader(data)
	}

	t.Run("unknown operation", func(t *testing.T) {
		req := encode(forkRequest{Fork: 1, Config: quickConfig(), Operations: []string{"zzz"}})
		err := ServeFork(context.Background(), req, &bytes.Buffer{}, testResolver())
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("no operations", func(t *testing.T) {
		req := encode(forkRequest{Fork: 1, Config: quickConfig()})
		err := ServeFork(context.Background(), req, &bytes.Buffer{}, testResolver())
		assert.ErrorIs(t, err, ErrNoOperationsRegistered)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := quickConfig()
		cfg.MeasurementTime = 0
		req := encode(forkRequest{Fork: 1, Config: cfg, Operations: []string{"a"}})
		err := ServeFork(context.Background(), req, &bytes.Buffer{}, testResolver())
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("garbage", func(t *testing.T) {
		err := ServeFork(context.Background(), strings.NewReader("{"), &bytes.Buffer{}, testResolver())
		assert.Error(t, err)
	})
}

func TestForkBudget(t *testing.T) {
	cfg := Config{
		Timeout:          time.Second,
		WarmupIterations: 2,
		WarmupTime:       100 * time.Millisecond,
		MeasurementTime:  time.Second,
	}
	// 3 ops * (200ms + 1s + 2s) + grace
	assert.Equal(t, 3*3200*time.Millisecond+forkStartupGrace, forkBudget(cfg, 3))
}

func TestProcessForkerReportsChildTimeout(t *testing.T) {
	cfg := quickConfig()
	cfg.Timeout = 20 * time.Millisecond
	resolver := testResolver()
	ops := []Operation{resolver["a"], resolver["stuck"], resolver["c"]}

	results, err := helperForker().Fork(context.Background(), 1, cfg, ops)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, StatusOK, results[0].Status, results[0].Error)
	assert.Equal(t, StatusTimeout, results[1].Status)
	assert.Zero(t, results[1].Throughput)
	assert.True(t, IsTimeoutError(results[1].Err()))

	var timeoutErr *TimeoutError
	require.ErrorAs(t, results[1].Err(), &timeoutErr)
	assert.Equal(t, cfg.Timeout, timeoutErr.Timeout)
	assert.Equal(t, StatusOK, results[2].Status, results[2].Error)
}

func TestProcessForkerPassesLogLevel(t *testing.T) {
	run := func(level string) string {
		var stderr bytes.Buffer
		forker := helperForker()
		forker.Stderr = &stderr
		forker.LogLevel = level

		results, err := forker.Fork(context.Background(), 1, quickConfig(), fourOps()[:1])
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, StatusOK, results[0].Status, results[0].Error)
		return stderr.String()
	}

	assert.Contains(t, run("info"), "ops/s")
	assert.NotContains(t, run("error"), "ops/s")
}

func TestServeForkRejectsBadLogLevel(t *testing.T) {
	req, err := json.Marshal(forkRequest{Fork: 1, Config: quickConfig(), Operations: []string{"a"}, LogLevel: "loud"})
	require.NoError(t, err)

	err = ServeFork(context.Background(), bytes.NewReader(req), &bytes.Buffer{}, testResolver())
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestForkBudgetSaturates(t *testing.T) {
	cfg := quickConfig()
	cfg.Timeout = time.Duration(math.MaxInt64 / 2)
	assert.Equal(t, maxForkBudget, forkBudget(cfg, 4))

	cfg = quickConfig()
	cfg.WarmupIterations = math.MaxInt32
	cfg.WarmupTime = time.Duration(math.MaxInt64 / 1000)
	assert.Equal(t, maxForkBudget, forkBudget(cfg, 1))
}
