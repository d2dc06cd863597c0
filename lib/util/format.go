package util

import (
	"fmt"
	"math"
)

func FormatChange(value float64) string {
	if value > 0 {
		return fmt.Sprintf("+%.2f", value)
	}
	return fmt.Sprintf("%.2f", value)
}

func FormatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

// FormatOpsPerSec renders a throughput with a k/M/G suffix.
func FormatOpsPerSec(value float64) string {
	abs := math.Abs(value)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fG", value/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", value/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fk", value/1e3)
	}
	return FormatFloat(value)
}

func CalculatePercentageChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return ((current - previous) / previous) * 100
}
