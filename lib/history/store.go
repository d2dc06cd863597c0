package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.jetify.com/typeid"

	"percipio.com/growbench/lib/git"
	"percipio.com/growbench/lib/logger"
	"percipio.com/growbench/lib/runner"
	"percipio.com/growbench/lib/stats"
	"percipio.com/growbench/lib/util"
)

const (
	summaryFile = "summary.json"
	runPrefix   = "run"
)

type Store struct {
	baseDir      string
	thresholdPct float64
	gitInfo      GitMetadata
	now          func() time.Time
}

func NewStore(ctx context.Context, baseDir string, thresholdPct float64, useGit bool) (*Store, error) {
	if baseDir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", baseDir, err)
	}

	commitInfo, err := git.GetCommitInfo(ctx, "", useGit)
	if err != nil {
		logger.Warn("Git information not available: %v. Using timestamp-based tracking.", err)
		commitInfo = git.TimestampInfo(time.Now())
	}

	return &Store{
		baseDir:      baseDir,
		thresholdPct: thresholdPct,
		gitInfo:      metadataFrom(commitInfo),
		now:          time.Now,
	}, nil
}

func metadataFrom(info *git.CommitInfo) GitMetadata {
	return GitMetadata{
		CommitHash:    info.Hash,
		CommitMessage: info.Message,
		Branch:        info.Branch,
		ShortHash:     info.ShortHash,
		Timestamp:     info.Timestamp,
	}
}

func (s *Store) Dir() string {
	return s.baseDir
}

func newRunID() (string, error) {
	tid, err := typeid.WithPrefix(runPrefix)
	if err != nil {
		return "", fmt.Errorf("failed to generate run id: %w", err)
	}
	return tid.String(), nil
}

// SaveResults stores the run, compares it with the latest stored run and
// appends one trend point per operation to the summary.
func (s *Store) SaveResults(cfg runner.Config, results []runner.Result, statistics *stats.Statistics) (*RunHistory, error) {
	runID, err := newRunID()
	if err != nil {
		return nil, err
	}

	history := &RunHistory{
		RunID:        runID,
		Timestamp:    s.now(),
		Config:       cfg,
		Results:      results,
		Statistics:   statistics,
		Operations:   make(map[string]*Comparison),
		ThresholdPct: s.thresholdPct,
		GitInfo:      s.gitInfo,
	}

	previous, err := s.LoadLatest()
	if err != nil {
		logger.Warn("Could not load baseline: %v", err)
	}
	if previous != nil {
		history.BaselineID = previous.RunID
	}
	history.Degradation = s.compareWithBaseline(history, previous)

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(s.baseDir, history.RunID+".json"), data, 0644); err != nil {
		return nil, err
	}

	if err := s.updateSummary(history, previous); err != nil {
		return history, fmt.Errorf("failed to update summary: %w", err)
	}
	return history, nil
}

// LoadLatest returns the most recently saved run, or nil when there is none.
func (s *Store) LoadLatest() (*RunHistory, error) {
	summary, err := s.GetSummary()
	if err != nil {
		return nil, err
	}
	if n := len(summary.History); n > 0 {
		return s.Load(summary.History[n-1])
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" && entry.Name() != summaryFile {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return nil, nil
	}

	// run ids embed a UUIDv7, so names sort by creation time
	sort.Strings(files)
	latest := files[len(files)-1]
	return s.Load(latest[:len(latest)-len(".json")])
}

func (s *Store) Load(runID string) (*RunHistory, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID+".json"))
	if err != nil {
		return nil, err
	}

	var history RunHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse run %s: %w", runID, err)
	}
	return &history, nil
}

func (s *Store) compareWithBaseline(current, baseline *RunHistory) bool {
	hasDegradation := false

	for _, currentStats := range current.Statistics.Operations {
		comparison := &Comparison{Current: currentStats}
		current.Operations[currentStats.Operation] = comparison

		if baseline == nil || baseline.Statistics == nil {
			continue
		}
		baselineStats, exists := baseline.Statistics.Lookup(currentStats.Operation)
		if !exists {
			continue
		}

		comparison.Previous = baselineStats
		comparison.Changes = DegradationReport{
			ThroughputDecrease: -util.CalculatePercentageChange(currentStats.MeanOpsPerSec, baselineStats.MeanOpsPerSec),
			LostForks:          max(0, baselineStats.SuccessForks-currentStats.SuccessForks),
		}
		comparison.Degradation = s.isDegraded(comparison.Changes)

		if comparison.Degradation {
			logger.Warn("%s: throughput %s%% against run %s",
				currentStats.Operation, util.FormatChange(-comparison.Changes.ThroughputDecrease), baseline.RunID)
			hasDegradation = true
		}
	}

	return hasDegradation
}

func (s *Store) isDegraded(changes DegradationReport) bool {
	return changes.ThroughputDecrease > s.thresholdPct || changes.LostForks > 0
}

func (s *Store) updateSummary(current, baseline *RunHistory) error {
	logger.Debug("Updating benchmark summary for run %s", current.RunID)

	summary, err := s.GetSummary()
	if err != nil {
		return err
	}

	summary.LastRun = current.Timestamp
	summary.RunCount++
	summary.History = append(summary.History, current.RunID)
	summary.Degradation = current.Degradation

	for _, opStats := range current.Statistics.Operations {
		trend := TrendReport{
			RunID:         current.RunID,
			CommitHash:    s.gitInfo.CommitHash,
			ShortHash:     s.gitInfo.ShortHash,
			CommitTime:    s.gitInfo.Timestamp,
			Timestamp:     current.Timestamp,
			MeanOpsPerSec: opStats.MeanOpsPerSec,
			MinOpsPerSec:  opStats.MinOpsPerSec,
			MaxOpsPerSec:  opStats.MaxOpsPerSec,
			StdDev:        opStats.StdDev,
			Forks:         opStats.Forks,
			SuccessForks:  opStats.SuccessForks,
		}

		points := summary.OperationHistory[opStats.Operation]
		if n := len(points); n > 0 {
			trend.TrendPercent = util.CalculatePercentageChange(trend.MeanOpsPerSec, points[n-1].MeanOpsPerSec)
		}
		if baseline != nil {
			trend.BaselineHash = baseline.GitInfo.ShortHash
		}

		summary.OperationHistory[opStats.Operation] = append(points, trend)
		summary.Trends[opStats.Operation] = trend
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.baseDir, summaryFile), data, 0644)
}

// GetSummary returns the stored summary, or an empty one before the first run.
func (s *Store) GetSummary() (*Summary, error) {
	summary := &Summary{
		Trends:           make(map[string]TrendReport),
		OperationHistory: make(map[string][]TrendReport),
	}

	data, err := os.ReadFile(filepath.Join(s.baseDir, summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return summary, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	if summary.Trends == nil {
		summary.Trends = make(map[string]TrendReport)
	}
	if summary.OperationHistory == nil {
		summary.OperationHistory = make(map[string][]TrendReport)
	}
	return summary, nil
}
