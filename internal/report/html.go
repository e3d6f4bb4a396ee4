package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderHTML renders the trace as an interactive line chart of the joint
// angle and running rep count.
func (t *Trace) RenderHTML() ([]byte, error) {
	samples := t.Samples()

	x := make([]string, 0, len(samples))
	angles := make([]opts.LineData, 0, len(samples))
	counts := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		x = append(x, strconv.FormatUint(s.Seq, 10))
		if s.HasAngle {
			angles = append(angles, opts.LineData{Value: s.Angle})
		} else {
			// "-" leaves a gap in the series
			angles = append(angles, opts.LineData{Value: "-"})
		}
		counts = append(counts, opts.LineData{Value: s.Count})
	}

	sum := t.Summarize()
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: t.Profile.Label + " trace", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s: %d reps", t.Profile.Label, sum.Count),
			Subtitle: fmt.Sprintf("frames=%d detected=%d mean=%.1f", sum.Frames, sum.Detected, sum.MeanAngle),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "angle (deg)", Min: 0, Max: 180}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	line.SetXAxis(x).
		AddSeries("angle", angles,
			charts.WithLineChartOpts(opts.LineChart{ConnectNulls: opts.Bool(false)}),
			charts.WithMarkLineNameYAxisItemOpts(
				opts.MarkLineNameYAxisItem{Name: "up", YAxis: t.Profile.Up},
				opts.MarkLineNameYAxisItem{Name: "down", YAxis: t.Profile.Down},
			),
		).
		AddSeries("count", counts,
			charts.WithLineChartOpts(opts.LineChart{Step: "end"}),
		)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteHTML renders the chart to path.
func (t *Trace) WriteHTML(path string) error {
	data, err := t.RenderHTML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
