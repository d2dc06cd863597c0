package history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"percipio.com/growbench/lib/runner"
	"percipio.com/growbench/lib/stats"
)

func newTestStore(t *testing.T, threshold float64) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), t.TempDir(), threshold, false)
	require.NoError(t, err)

	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return store
}

func run(throughput map[string]float64, order ...string) []runner.Result {
	var results []runner.Result
	for _, op := range order {
		res := runner.Result{Fork: 1, Operation: op, Status: runner.StatusOK, Throughput: throughput[op], Samples: 10}
		if throughput[op] == 0 {
			res = runner.Result{Fork: 1, Operation: op, Status: runner.StatusTimeout, Error: "timeout"}
		}
		results = append(results, res)
	}
	return results
}

func save(t *testing.T, s *Store, results []runner.Result) *RunHistory {
	t.Helper()
	h, err := s.SaveResults(runner.Config{Mode: runner.ModeThroughput, Forks: 1}, results, stats.Calculate(results))
	require.NoError(t, err)
	return h
}

func TestNewStoreRejectsEmptyDir(t *testing.T) {
	_, err := NewStore(context.Background(), "", 10, false)
	assert.Error(t, err)
}

func TestFirstRunHasNoBaseline(t *testing.T) {
	s := newTestStore(t, 10)

	latest, err := s.LoadLatest()
	require.NoError(t, err)
	assert.Nil(t, latest)

	h := save(t, s, run(map[string]float64{"a": 100}, "a"))
	assert.True(t, strings.HasPrefix(h.RunID, "run_"), h.RunID)
	assert.Empty(t, h.BaselineID)
	assert.False(t, h.Degradation)
	require.Contains(t, h.Operations, "a")
	assert.Nil(t, h.Operations["a"].Previous)

	_, err = os.Stat(filepath.Join(s.Dir(), h.RunID+".json"))
	assert.NoError(t, err)
}

func TestDegradationAgainstBaseline(t *testing.T) {
	s := newTestStore(t, 10)

	first := save(t, s, run(map[string]float64{"a": 100, "b": 100, "c": 100}, "a", "b", "c"))
	second := save(t, s, run(map[string]float64{"a": 95, "b": 80, "c": 0}, "a", "b", "c"))

	assert.Equal(t, first.RunID, second.BaselineID)
	assert.True(t, second.Degradation)

	a := second.Operations["a"]
	assert.InDelta(t, 5, a.Changes.ThroughputDecrease, 1e-9)
	assert.False(t, a.Degradation)

	b := second.Operations["b"]
	assert.InDelta(t, 20, b.Changes.ThroughputDecrease, 1e-9)
	assert.True(t, b.Degradation)

	c := second.Operations["c"]
	assert.Equal(t, 1, c.Changes.LostForks)
	assert.True(t, c.Degradation)

	latest, err := s.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, second.RunID, latest.RunID)
	require.Len(t, latest.Results, 3)
	assert.Equal(t, runner.StatusTimeout, latest.Results[2].Status)
}

func TestImprovementIsNotDegradation(t *testing.T) {
	s := newTestStore(t, 10)
	save(t, s, run(map[string]float64{"a": 100}, "a"))
	h := save(t, s, run(map[string]float64{"a": 300}, "a"))

	assert.False(t, h.Degradation)
	assert.InDelta(t, -200, h.Operations["a"].Changes.ThroughputDecrease, 1e-9)
}

func TestSummaryTrends(t *testing.T) {
	s := newTestStore(t, 10)

	summary, err := s.GetSummary()
	require.NoError(t, err)
	assert.Zero(t, summary.RunCount)

	first := save(t, s, run(map[string]float64{"a": 100, "b": 50}, "a", "b"))
	second := save(t, s, run(map[string]float64{"a": 150, "b": 25}, "a", "b"))

	summary, err = s.GetSummary()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RunCount)
	assert.Equal(t, []string{first.RunID, second.RunID}, summary.History)
	assert.True(t, summary.Degradation)
	assert.Equal(t, second.Timestamp, summary.LastRun)

	require.Len(t, summary.OperationHistory["a"], 2)
	assert.InDelta(t, 50, summary.OperationHistory["a"][1].TrendPercent, 1e-9)
	assert.InDelta(t, -50, summary.Trends["b"].TrendPercent, 1e-9)
	assert.Equal(t, second.RunID, summary.Trends["b"].RunID)
	assert.Equal(t, first.GitInfo.ShortHash, summary.Trends["b"].BaselineHash)
}

func TestLoadLatestWithoutSummary(t *testing.T) {
	s := newTestStore(t, 10)
	h := save(t, s, run(map[string]float64{"a": 100}, "a"))
	require.NoError(t, os.Remove(filepath.Join(s.Dir(), summaryFile)))

	latest, err := s.LoadLatest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, h.RunID, latest.RunID)
}

func TestCorruptSummary(t *testing.T) {
	s := newTestStore(t, 10)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), summaryFile), []byte("{"), 0644))

	_, err := s.GetSummary()
	assert.Error(t, err)
}
