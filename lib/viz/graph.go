package viz

import (
	"fmt"
	"html/template"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	hist "percipio.com/growbench/lib/history"
	"percipio.com/growbench/lib/logger"
	"percipio.com/growbench/lib/util"
)

const (
	defaultPointLimit = 20
	fixedGraphWidth   = 1000.0
	graphHeight       = 300.0
	xPadding          = 50.0
)

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
    <title>Benchmark Throughput</title>
    <style>
        body { font-family: sans-serif; }
        .metric { margin-bottom: 40px; }
        .point { fill: #fff; stroke: #4ecdc4; stroke-width: 2; }
        .axis { stroke: #333; }
        .label { font-size: 12px; fill: #333; }
        .commit-label { font-size: 12px; fill: #333; text-anchor: middle; dominant-baseline: hanging; }
        .connection-line { fill: none; stroke: #4ecdc4; stroke-width: 2; }
        .trend-line { stroke-width: 2; stroke-dasharray: 5,5; }
        .trend-up { color: #4ecdc4; stroke: #4ecdc4; }
        .trend-down { color: #ff6b6b; stroke: #ff6b6b; }
        .stats-panel { display: flex; gap: 20px; margin: 20px; padding: 20px; background: #f8f9fa; border-radius: 4px; }
        .stat-box { flex: 1; text-align: center; padding: 15px; background: white; border-radius: 8px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
        .stat-label { font-size: 14px; color: #666; margin-bottom: 5px; }
        .stat-value { font-size: 24px; font-weight: bold; color: #333; }
        .graph { width: 100%; height: 450px; }
    </style>
</head>
<body>
    <h1>Benchmark Throughput</h1>
    <p>Generated {{.Generated}}, showing up to {{.PointLimit}} runs per operation.</p>

    {{range $name, $g := .Operations}}
    <div id="{{$name}}" class="metric">
        <h2>{{$name}}</h2>
        <div class="stats-panel">
            <div class="stat-box">
                <div class="stat-label">Mean ops/s</div>
                <div class="stat-value">{{$g.Stats.Mean}} <span class="{{if isPositive $g.Stats.MeanChange}}trend-up{{else}}trend-down{{end}}">{{$g.Stats.MeanChange}}</span></div>
            </div>
            <div class="stat-box">
                <div class="stat-label">Min / Max ops/s</div>
                <div class="stat-value">{{$g.Stats.Min}} / {{$g.Stats.Max}}</div>
            </div>
            <div class="stat-box">
                <div class="stat-label">Std dev</div>
                <div class="stat-value">{{$g.Stats.StdDev}}</div>
            </div>
            <div class="stat-box">
                <div class="stat-label">Successful forks</div>
                <div class="stat-value">{{$g.Stats.Forks}}</div>
            </div>
        </div>

        <div>
            <span>Baseline: {{$g.BaselineHash}}</span>
            <span class="{{if isPositive $g.TrendPercent}}trend-up{{else}}trend-down{{end}}">{{printf "%+.2f%%" $g.TrendPercent}}</span>
        </div>
        <svg viewBox="0 0 1200 450" preserveAspectRatio="xMidYMid meet" class="graph">
            <g transform="translate(50, 20)">
                <line x1="0" y1="0" x2="0" y2="300" class="axis"/>
                {{range $g.YAxisLabels}}
                <text x="-45" y="{{.Y}}" class="label">{{.Label}}</text>
                {{end}}
                <line x1="0" y1="300" x2="1100" y2="300" class="axis"/>
                <path d="{{$g.ConnectionPath}}" class="connection-line"/>
                {{range $g.Points}}
                <circle cx="{{.X}}" cy="{{.Y}}" r="4" class="point" data-label="{{.Label}}"/>
                {{end}}
                {{range $g.XAxisLabels}}
                <text x="{{.X}}" y="340" class="commit-label" data-title="{{.Title}}">{{.Label}}</text>
                {{end}}
                {{if gt (len $g.Points) 1}}
                <line x1="{{$g.BaselineX}}" y1="{{$g.BaselineY}}" x2="{{$g.CurrentX}}" y2="{{$g.CurrentY}}"
                      class="trend-line {{if isPositive $g.TrendPercent}}trend-up{{else}}trend-down{{end}}"/>
                {{end}}
            </g>
        </svg>
    </div>
    {{end}}
</body>
</html>`

var graphTemplate = template.Must(template.New("graph").Funcs(template.FuncMap{
	"isPositive": isPositive,
}).Parse(htmlTemplate))

type GraphData struct {
	Operations map[string]TrendGraph
	PointLimit int
	Generated  string
}

type TrendGraph struct {
	YAxisLabels    []AxisLabel
	XAxisLabels    []AxisLabel
	Points         []Point
	Stats          Stats
	BaselineHash   string
	TrendPercent   float64
	BaselineX      float64
	BaselineY      float64
	CurrentX       float64
	CurrentY       float64
	ConnectionPath string
	TotalPoints    int
}

// Stats holds formatted values for the stats panel.
type Stats struct {
	Mean       string
	MeanChange string
	Min        string
	Max        string
	StdDev     string
	Forks      string
}

type AxisLabel struct {
	X     float64
	Y     float64
	Label string
	Title string
}

type Point struct {
	X     float64
	Y     float64
	Value float64
	Label string
}

// GenerateGraph writes an HTML page with one throughput trend per operation
// and returns its path.
func GenerateGraph(summary *hist.Summary, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}

	now := time.Now()
	data := &GraphData{
		Operations: make(map[string]TrendGraph),
		PointLimit: defaultPointLimit,
		Generated:  now.Format(time.DateTime),
	}
	for operation, history := range summary.OperationHistory {
		if len(history) == 0 {
			continue
		}
		logger.Debug("Graphing %s: %d runs", operation, len(history))
		data.Operations[operation] = generateOperationGraph(history, defaultPointLimit)
	}

	outputFile := filepath.Join(outputDir, fmt.Sprintf("throughput_%s.html", now.Format("20060102_150405")))
	f, err := os.Create(outputFile)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := graphTemplate.Execute(f, data); err != nil {
		return "", err
	}
	return outputFile, nil
}

func generateOperationGraph(history []hist.TrendReport, limit int) TrendGraph {
	points := history
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	graph := TrendGraph{TotalPoints: len(points)}

	var maxOps float64
	for _, p := range points {
		maxOps = math.Max(maxOps, p.MaxOpsPerSec)
		maxOps = math.Max(maxOps, p.MeanOpsPerSec)
	}
	maxOps = math.Ceil(maxOps * 1.2)
	if maxOps == 0 {
		maxOps = 1
	}

	for i := 0; i <= 5; i++ {
		value := float64(i) * maxOps / 5.0
		graph.YAxisLabels = append(graph.YAxisLabels, AxisLabel{
			Y:     scaleValue(value, 0, maxOps, graphHeight, 0),
			Label: util.FormatOpsPerSec(value),
		})
	}

	spacing := fixedGraphWidth
	if len(points) > 1 {
		spacing = fixedGraphWidth / float64(len(points)-1)
	}

	var path strings.Builder
	for i, p := range points {
		x := xPadding + float64(i)*spacing
		y := scaleValue(p.MeanOpsPerSec, 0, maxOps, graphHeight, 0)

		graph.Points = append(graph.Points, Point{
			X:     x,
			Y:     y,
			Value: p.MeanOpsPerSec,
			Label: fmt.Sprintf("%s ops/s", util.FormatOpsPerSec(p.MeanOpsPerSec)),
		})
		graph.XAxisLabels = append(graph.XAxisLabels, AxisLabel{
			X:     x,
			Label: shortHash(p.ShortHash),
			Title: fmt.Sprintf("%s\n%s", p.RunID, p.Timestamp.Format(time.DateTime)),
		})

		if i == 0 {
			path.WriteString(fmt.Sprintf("M %f %f", x, y))
		} else {
			path.WriteString(fmt.Sprintf(" L %f %f", x, y))
		}
	}
	graph.ConnectionPath = path.String()

	first, last := points[0], points[len(points)-1]
	graph.Stats = Stats{
		Mean:       util.FormatOpsPerSec(last.MeanOpsPerSec),
		MeanChange: util.FormatChange(last.TrendPercent) + "%",
		Min:        util.FormatOpsPerSec(last.MinOpsPerSec),
		Max:        util.FormatOpsPerSec(last.MaxOpsPerSec),
		StdDev:     util.FormatOpsPerSec(last.StdDev),
		Forks:      fmt.Sprintf("%d/%d", last.SuccessForks, last.Forks),
	}
	graph.BaselineHash = shortHash(first.ShortHash)

	if len(points) > 1 {
		graph.TrendPercent = util.CalculatePercentageChange(last.MeanOpsPerSec, first.MeanOpsPerSec)
		graph.BaselineX = graph.Points[0].X
		graph.BaselineY = graph.Points[0].Y
		graph.CurrentX = graph.Points[len(graph.Points)-1].X
		graph.CurrentY = graph.Points[len(graph.Points)-1].Y
	}

	return graph
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func scaleValue(value, minInput, maxInput, minOutput, maxOutput float64) float64 {
	return (value-minInput)*(maxOutput-minOutput)/(maxInput-minInput) + minOutput
}

func isPositive(v interface{}) bool {
	switch value := v.(type) {
	case float64:
		return value > 0
	case string:
		return strings.HasPrefix(value, "+")
	}
	return false
}
