package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"percipio.com/growbench/lib/config"
	"percipio.com/growbench/lib/growth"
	"percipio.com/growbench/lib/history"
	"percipio.com/growbench/lib/logger"
	"percipio.com/growbench/lib/report"
	"percipio.com/growbench/lib/runner"
	"percipio.com/growbench/lib/stats"
	"percipio.com/growbench/lib/viz"
)

// ForkCommand is the hidden subcommand a child process is started with.
const ForkCommand = "fork"

type App struct {
	runner       *runner.Runner
	config       *config.Config
	historyStore *history.Store
	output       io.Writer
}

type Option func(*appOptions)

type appOptions struct {
	forker runner.Forker
	output io.Writer
}

// WithForker overrides the forker chosen from the configuration.
func WithForker(f runner.Forker) Option {
	return func(o *appOptions) { o.forker = f }
}

// WithOutput sets where the report goes when no output file is configured.
func WithOutput(w io.Writer) Option {
	return func(o *appOptions) { o.output = w }
}

// New prepares a run of the selected growth operations under cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	options := appOptions{output: os.Stdout}
	for _, opt := range opts {
		opt(&options)
	}

	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logger.Debug("Initializing application...")

	registry := growth.NewRegistry(growth.SliceFactory{})
	ops, unknown := registry.Select(cfg.Benchmark.Operations)
	if len(unknown) > 0 {
		return nil, &runner.ConfigError{
			BenchmarkError: runner.BenchmarkError{Op: "select", Err: runner.ErrInvalidConfiguration},
			Field:          "operation",
			Value:          fmt.Sprintf("%s (known: %s)", strings.Join(unknown, ", "), strings.Join(registry.Names(), ", ")),
		}
	}

	forker := options.forker
	if forker == nil {
		forker = runner.InProcessForker{}
		if !cfg.Benchmark.InProcess {
			pf, err := runner.NewProcessForker(ForkCommand)
			if err != nil {
				return nil, err
			}
			pf.LogLevel = cfg.Log.Level
			forker = pf
		}
	}

	benchRunner := runner.NewRunner(cfg.Runner(), runner.WithForker(forker))
	for _, op := range ops {
		benchRunner.AddOperation(op)
	}
	logger.Info("Registered %d operation(s)", len(ops))

	var historyStore *history.Store
	if cfg.History.Enabled {
		store, err := history.NewStore(ctx, cfg.History.Dir, cfg.History.ThresholdPct, cfg.History.UseGit)
		if err != nil {
			logger.Warn("Failed to initialize history store: %v. Continuing without history tracking.", err)
		} else {
			historyStore = store
		}
	}

	return &App{
		runner:       benchRunner,
		config:       cfg,
		historyStore: historyStore,
		output:       options.output,
	}, nil
}

// Run executes the benchmark, records history and writes the report. The
// returned error is fatal; a run whose forks all failed is reported through
// Report.Succeeded instead.
func (a *App) Run(ctx context.Context) (*report.Report, error) {
	results, err := a.runner.Run(ctx)
	if err != nil {
		return nil, err
	}

	statistics := stats.Calculate(results)
	rep := &report.Report{
		Config:     a.config.Runner(),
		Results:    results,
		Statistics: statistics,
		Succeeded:  runner.ForkSucceeded(results),
	}

	if a.historyStore != nil {
		runHistory, err := a.historyStore.SaveResults(rep.Config, results, statistics)
		if err != nil {
			logger.Error("Failed to save run history: %v", err)
		}
		rep.History = runHistory
		if runHistory != nil && runHistory.Degradation {
			logger.Warn("Throughput degradation detected against run %s", runHistory.BaselineID)
		}
	}

	if err := a.writeReport(rep); err != nil {
		return rep, err
	}

	if a.historyStore != nil {
		a.generateGraphs()
	}
	return rep, nil
}

func (a *App) writeReport(rep *report.Report) error {
	w := a.output
	if path := a.config.Report.Output; path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		w = f
	}

	reporter, err := report.New(a.config.Report.Format, w)
	if err != nil {
		return err
	}
	if err := reporter.Write(w, rep); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (a *App) generateGraphs() {
	summary, err := a.historyStore.GetSummary()
	if err != nil {
		logger.Error("Failed to load benchmark summary: %v", err)
		return
	}

	reportPath, err := viz.GenerateGraph(summary, a.config.Report.Dir)
	if err != nil {
		logger.Error("Failed to generate throughput graphs: %v", err)
		return
	}
	absPath, _ := filepath.Abs(reportPath)
	logger.Info("View throughput trends at: file://%s", absPath)
}
