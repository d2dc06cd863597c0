package config

import "time"

const (
	DefaultMode             = "throughput"
	DefaultTimeout          = 300 * time.Second
	DefaultWarmupIterations = 5
	DefaultWarmupTime       = 5000 * time.Millisecond
	DefaultMeasurementTime  = 5 * time.Second
	DefaultForks            = 1
	DefaultThresholdPct     = 10.0
	DefaultHistoryDir       = "bench-history"
	DefaultReportDir        = "performance-reports"
	DefaultFormat           = FormatText
	DefaultLogLevel         = "info"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Default returns the configuration used when nothing else is specified.
func Default() *Config {
	return &Config{
		Benchmark: BenchmarkConfig{
			Mode:             DefaultMode,
			Timeout:          DefaultTimeout,
			WarmupIterations: DefaultWarmupIterations,
			WarmupTime:       DefaultWarmupTime,
			MeasurementTime:  DefaultMeasurementTime,
			Forks:            DefaultForks,
		},
		Report: ReportConfig{
			Format: DefaultFormat,
			Dir:    DefaultReportDir,
		},
		History: HistoryConfig{
			Dir:          DefaultHistoryDir,
			Enabled:      true,
			ThresholdPct: DefaultThresholdPct,
			UseGit:       true,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}
