package viz

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hist "percipio.com/growbench/lib/history"
)

func trend(i int, mean float64) hist.TrendReport {
	return hist.TrendReport{
		RunID:         fmt.Sprintf("run_%02d", i),
		ShortHash:     fmt.Sprintf("abcdef%02d", i),
		Timestamp:     time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
		MeanOpsPerSec: mean,
		MinOpsPerSec:  mean * 0.9,
		MaxOpsPerSec:  mean * 1.1,
		Forks:         2,
		SuccessForks:  2,
	}
}

func TestGenerateOperationGraph(t *testing.T) {
	g := generateOperationGraph([]hist.TrendReport{trend(1, 100), trend(2, 150), trend(3, 200)}, 20)

	require.Len(t, g.Points, 3)
	assert.Equal(t, 3, g.TotalPoints)
	assert.InDelta(t, xPadding, g.Points[0].X, 1e-9)
	assert.InDelta(t, xPadding+fixedGraphWidth, g.Points[2].X, 1e-9)
	assert.Greater(t, g.Points[0].Y, g.Points[2].Y, "higher throughput is drawn higher")
	assert.InDelta(t, 100, g.TrendPercent, 1e-9)
	assert.Equal(t, "abcdef0", g.BaselineHash)
	assert.Equal(t, "2/2", g.Stats.Forks)
	assert.Len(t, g.YAxisLabels, 6)
	assert.Contains(t, g.ConnectionPath, "M ")
	assert.Contains(t, g.ConnectionPath, " L ")
}

func TestGenerateOperationGraphLimitsPoints(t *testing.T) {
	var history []hist.TrendReport
	for i := 0; i < 30; i++ {
		history = append(history, trend(i, float64(100+i)))
	}

	g := generateOperationGraph(history, 10)
	require.Len(t, g.Points, 10)
	assert.InDelta(t, 120, g.Points[0].Value, 1e-9)
}

func TestGenerateOperationGraphAllZero(t *testing.T) {
	g := generateOperationGraph([]hist.TrendReport{trend(1, 0)}, 20)
	require.Len(t, g.Points, 1)
	assert.InDelta(t, graphHeight, g.Points[0].Y, 1e-9)
	assert.Zero(t, g.TrendPercent)
}

func TestGenerateGraph(t *testing.T) {
	summary := &hist.Summary{
		OperationHistory: map[string][]hist.TrendReport{
			"initializeTargetCapacity": {trend(1, 1000), trend(2, 1100)},
			"initializeZeroCapacity":   {trend(1, 500)},
			"empty":                    nil,
		},
	}

	dir := filepath.Join(t.TempDir(), "reports")
	path, err := GenerateGraph(summary, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(content)
	assert.Contains(t, html, `id="initializeTargetCapacity"`)
	assert.Contains(t, html, `id="initializeZeroCapacity"`)
	assert.NotContains(t, html, `id="empty"`)
	// html/template escapes "+" in text content
	assert.Contains(t, html, `<span class="trend-up">&#43;10.00%</span>`)
}
