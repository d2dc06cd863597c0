package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"percipio.com/growbench/lib/runner"
)

const envPrefix = "GROWBENCH_"

type Config struct {
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Report    ReportConfig    `yaml:"report"`
	History   HistoryConfig   `yaml:"history"`
	Log       LogConfig       `yaml:"log"`

	// Path of the YAML file the configuration was loaded from, if any.
	Path string `yaml:"-"`
}

type BenchmarkConfig struct {
	Mode             string        `yaml:"mode"`
	Timeout          time.Duration `yaml:"timeout"`
	WarmupIterations int           `yaml:"warmup_iterations"`
	WarmupTime       time.Duration `yaml:"warmup_time"`
	MeasurementTime  time.Duration `yaml:"measurement_time"`
	Forks            int           `yaml:"forks"`
	Operations       []string      `yaml:"operations"` // empty means all
	InProcess        bool          `yaml:"in_process"` // run forks without a child process
}

type ReportConfig struct {
	Format string `yaml:"format"` // text|json
	Output string `yaml:"output"` // file path, stdout when empty
	Dir    string `yaml:"dir"`    // HTML trend graphs
}

type HistoryConfig struct {
	Dir          string  `yaml:"dir"`
	Enabled      bool    `yaml:"enabled"`
	ThresholdPct float64 `yaml:"threshold_pct"`
	UseGit       bool    `yaml:"use_git"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current value.
func LoadFile(path string, cfg *Config) error {
	if path == "" {
		return fmt.Errorf("config path cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("cannot parse config: %w", err)
	}
	cfg.Path = path
	return nil
}

// ApplyEnv overrides cfg with GROWBENCH_* variables that are set.
func ApplyEnv(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, invalid(envPrefix+name, v))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, invalid(envPrefix+name, v))
				return
			}
			*dst = d
		}
	}

	str("MODE", &cfg.Benchmark.Mode)
	duration("TIMEOUT", &cfg.Benchmark.Timeout)
	integer("WARMUP_ITERATIONS", &cfg.Benchmark.WarmupIterations)
	duration("WARMUP_TIME", &cfg.Benchmark.WarmupTime)
	duration("MEASUREMENT_TIME", &cfg.Benchmark.MeasurementTime)
	integer("FORKS", &cfg.Benchmark.Forks)
	str("FORMAT", &cfg.Report.Format)
	str("HISTORY_DIR", &cfg.History.Dir)
	str("LOG_LEVEL", &cfg.Log.Level)

	return errors.Join(errs...)
}

// Runner converts the benchmark section into the runner's configuration.
func (c *Config) Runner() runner.Config {
	mode, err := runner.ParseMode(c.Benchmark.Mode)
	if err != nil {
		mode = runner.Mode(c.Benchmark.Mode)
	}
	return runner.Config{
		Mode:             mode,
		Timeout:          c.Benchmark.Timeout,
		WarmupIterations: c.Benchmark.WarmupIterations,
		WarmupTime:       c.Benchmark.WarmupTime,
		MeasurementTime:  c.Benchmark.MeasurementTime,
		Forks:            c.Benchmark.Forks,
	}
}

// Validate checks every section and joins all problems. Each problem
// matches runner.ErrInvalidConfiguration.
func (c *Config) Validate() error {
	var errs []error

	if err := runner.Validate(c.Runner()); err != nil {
		errs = append(errs, fmt.Errorf("benchmark: %w", err))
	}
	for i, name := range c.Benchmark.Operations {
		if name == "" {
			errs = append(errs, invalid(fmt.Sprintf("benchmark.operations[%d]", i), name))
		}
	}
	switch c.Report.Format {
	case FormatText, FormatJSON:
	default:
		errs = append(errs, invalid("report.format", c.Report.Format))
	}
	if c.History.ThresholdPct < 0 {
		errs = append(errs, invalid("history.threshold_pct", c.History.ThresholdPct))
	}
	if c.History.Enabled && c.History.Dir == "" {
		errs = append(errs, invalid("history.dir", c.History.Dir))
	}

	return errors.Join(errs...)
}

func invalid(field string, value any) error {
	return &runner.ConfigError{
		BenchmarkError: runner.BenchmarkError{Op: "config", Err: runner.ErrInvalidConfiguration},
		Field:          field,
		Value:          fmt.Sprint(value),
	}
}

// Flags holds command-line values until Resolve merges them with the file
// and environment. Only flags the user actually set take precedence.
type Flags struct {
	fs        *pflag.FlagSet
	values    Config
	path      string
	noHistory bool
	noGit     bool
}

var flagAppliers = map[string]func(dst, src *Config){
	"mode":              func(d, s *Config) { d.Benchmark.Mode = s.Benchmark.Mode },
	"timeout":           func(d, s *Config) { d.Benchmark.Timeout = s.Benchmark.Timeout },
	"warmup-iterations": func(d, s *Config) { d.Benchmark.WarmupIterations = s.Benchmark.WarmupIterations },
	"warmup-time":       func(d, s *Config) { d.Benchmark.WarmupTime = s.Benchmark.WarmupTime },
	"measurement-time":  func(d, s *Config) { d.Benchmark.MeasurementTime = s.Benchmark.MeasurementTime },
	"forks":             func(d, s *Config) { d.Benchmark.Forks = s.Benchmark.Forks },
	"operation":         func(d, s *Config) { d.Benchmark.Operations = s.Benchmark.Operations },
	"in-process":        func(d, s *Config) { d.Benchmark.InProcess = s.Benchmark.InProcess },
	"format":            func(d, s *Config) { d.Report.Format = s.Report.Format },
	"output":            func(d, s *Config) { d.Report.Output = s.Report.Output },
	"report-dir":        func(d, s *Config) { d.Report.Dir = s.Report.Dir },
	"history-dir":       func(d, s *Config) { d.History.Dir = s.History.Dir },
	"no-history":        func(d, s *Config) { d.History.Enabled = s.History.Enabled },
	"threshold":         func(d, s *Config) { d.History.ThresholdPct = s.History.ThresholdPct },
	"no-git":            func(d, s *Config) { d.History.UseGit = s.History.UseGit },
	"log-level":         func(d, s *Config) { d.Log.Level = s.Log.Level },
}

// RegisterFlags defines every option on fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	d := Default()
	v := &f.values

	fs.StringVarP(&f.path, "config", "c", "", "YAML configuration file")

	fs.StringVarP(&v.Benchmark.Mode, "mode", "m", d.Benchmark.Mode, "Benchmark mode (only throughput is supported)")
	fs.DurationVar(&v.Benchmark.Timeout, "timeout", d.Benchmark.Timeout, "Maximum time a single invocation may take")
	fs.IntVarP(&v.Benchmark.WarmupIterations, "warmup-iterations", "w", d.Benchmark.WarmupIterations, "Number of warmup iterations")
	fs.DurationVar(&v.Benchmark.WarmupTime, "warmup-time", d.Benchmark.WarmupTime, "Duration of each warmup iteration")
	fs.DurationVarP(&v.Benchmark.MeasurementTime, "measurement-time", "t", d.Benchmark.MeasurementTime, "Duration of the measurement phase")
	fs.IntVarP(&v.Benchmark.Forks, "forks", "f", d.Benchmark.Forks, "Number of isolated forks")
	fs.StringSliceVarP(&v.Benchmark.Operations, "operation", "o", nil, "Operation to run (repeatable, default all)")
	fs.BoolVar(&v.Benchmark.InProcess, "in-process", false, "Run forks inside this process instead of child processes")

	fs.StringVar(&v.Report.Format, "format", d.Report.Format, "Result format: text or json")
	fs.StringVar(&v.Report.Output, "output", "", "Write results to this file instead of stdout")
	fs.StringVar(&v.Report.Dir, "report-dir", d.Report.Dir, "Directory for HTML trend graphs")

	fs.StringVar(&v.History.Dir, "history-dir", d.History.Dir, "Directory holding previous runs")
	fs.BoolVar(&f.noHistory, "no-history", false, "Do not record or compare run history")
	fs.Float64Var(&v.History.ThresholdPct, "threshold", d.History.ThresholdPct, "Throughput drop (percent) reported as degradation")
	fs.BoolVar(&f.noGit, "no-git", false, "Use timestamp-based run metadata instead of git commits")

	fs.StringVar(&v.Log.Level, "log-level", d.Log.Level, "Log level (debug, info, warn, error)")
	return f
}

// Resolve merges defaults, the config file, GROWBENCH_* variables and the
// flags explicitly set, in that order, and validates the result.
func (f *Flags) Resolve() (*Config, error) {
	cfg := Default()

	path := f.path
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	f.values.History.Enabled = !f.noHistory
	f.values.History.UseGit = !f.noGit
	f.fs.Visit(func(fl *pflag.Flag) {
		if apply, ok := flagAppliers[fl.Name]; ok {
			apply(cfg, &f.values)
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
