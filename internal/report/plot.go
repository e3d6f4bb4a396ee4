package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// WritePlot saves a PNG of the joint angle per frame with the profile
// thresholds and a marker at every counted repetition.
func (t *Trace) WritePlot(path string) error {
	samples := t.Samples()
	if len(samples) == 0 {
		return fmt.Errorf("no samples to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s joint angle", t.Profile.Label)
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "angle (deg)"
	p.Y.Min = 0
	p.Y.Max = 180
	p.X.Min = float64(samples[0].Seq)
	p.X.Max = max(float64(samples[len(samples)-1].Seq), p.X.Min+1)

	anglePts := make(plotter.XYs, 0, len(samples))
	repPts := make(plotter.XYs, 0)
	prev := 0
	for _, s := range samples {
		x := float64(s.Seq)
		if s.HasAngle {
			anglePts = append(anglePts, plotter.XY{X: x, Y: s.Angle})
		}
		if s.Count > prev {
			repPts = append(repPts, plotter.XY{X: x, Y: s.Angle})
			prev = s.Count
		}
	}

	if len(anglePts) > 0 {
		line, err := plotter.NewLine(anglePts)
		if err != nil {
			return fmt.Errorf("angle line: %w", err)
		}
		line.Width = vg.Points(1)
		line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		p.Add(line)
		p.Legend.Add("angle", line)
	}

	up := plotter.NewFunction(func(float64) float64 { return t.Profile.Up })
	up.Color = color.RGBA{G: 160, A: 255}
	up.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(up)
	p.Legend.Add(fmt.Sprintf("up %.0f", t.Profile.Up), up)

	down := plotter.NewFunction(func(float64) float64 { return t.Profile.Down })
	down.Color = color.RGBA{R: 200, A: 255}
	down.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(down)
	p.Legend.Add(fmt.Sprintf("down %.0f", t.Profile.Down), down)

	if len(repPts) > 0 {
		reps, err := plotter.NewScatter(repPts)
		if err != nil {
			return fmt.Errorf("rep markers: %w", err)
		}
		reps.GlyphStyle.Shape = draw.CircleGlyph{}
		reps.GlyphStyle.Radius = vg.Points(3)
		reps.GlyphStyle.Color = color.RGBA{R: 255, G: 165, A: 255}
		p.Add(reps)
		p.Legend.Add("rep", reps)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
