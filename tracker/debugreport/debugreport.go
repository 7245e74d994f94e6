// Package debugreport is an optional, attach-only tracker.Observer that
// records per-frame pool-size/weight/centroid history and renders it two
// ways: a PNG trail plot (gonum/plot) and an HTML dashboard
// (go-echarts). Neither the tracker core nor any other LGT package
// imports this one; it exists purely as offline diagnostics for a
// recorded run.
package debugreport

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/lgt-tracker/tracker"
)

// Sample is one frame's recorded pool summary, taken at StageEnd.
type Sample struct {
	Frame      int
	CentroidX  float32
	CentroidY  float32
	PoolSize   int
	MeanWeight float64
	IsTracking bool
}

// Collector implements tracker.Observer, accumulating one Sample per
// frame. It is safe to attach to a Tracker and read from concurrently
// with rendering, but not concurrently with the tracker's own Update.
type Collector struct {
	mu      sync.Mutex
	samples []Sample
}

// NewCollector returns an empty Collector ready to attach via
// Tracker.AddObserver.
func NewCollector() *Collector {
	return &Collector{}
}

// OnStage implements tracker.Observer. Only StageEnd events are recorded;
// intermediate stages don't carry a settled pool state worth plotting.
func (c *Collector) OnStage(e tracker.Event) {
	if e.Stage != tracker.StageEnd {
		return
	}
	var sumWeight float64
	for _, p := range e.Patches.Patches {
		sumWeight += float64(p.Weight)
	}
	mean := 0.0
	if n := len(e.Patches.Patches); n > 0 {
		mean = sumWeight / float64(n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, Sample{
		Frame:      e.Frame,
		CentroidX:  e.Patches.Centroid.X,
		CentroidY:  e.Patches.Centroid.Y,
		PoolSize:   len(e.Patches.Patches),
		MeanWeight: mean,
		IsTracking: len(e.Patches.Patches) > 0,
	})
}

// Samples returns a copy of the recorded per-frame history.
func (c *Collector) Samples() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sample, len(c.samples))
	copy(out, c.samples)
	return out
}

// RenderTrails writes a PNG at path plotting the centroid's X/Y trail and
// the pool's mean-weight trail across the recorded run (all three series
// on one plot, saved at a fixed 14x6in canvas).
func (c *Collector) RenderTrails(path string) error {
	samples := c.Samples()
	if len(samples) == 0 {
		return fmt.Errorf("debugreport: no samples recorded")
	}

	p := plot.New()
	p.Title.Text = "LGT patch-constellation centroid and weight trail"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "value"

	centroidX := make(plotter.XYs, len(samples))
	centroidY := make(plotter.XYs, len(samples))
	meanWeight := make(plotter.XYs, len(samples))
	for i, s := range samples {
		centroidX[i] = plotter.XY{X: float64(s.Frame), Y: float64(s.CentroidX)}
		centroidY[i] = plotter.XY{X: float64(s.Frame), Y: float64(s.CentroidY)}
		meanWeight[i] = plotter.XY{X: float64(s.Frame), Y: s.MeanWeight}
	}

	cxLine, err := plotter.NewLine(centroidX)
	if err != nil {
		return fmt.Errorf("debugreport: centroid-x line: %w", err)
	}
	cyLine, err := plotter.NewLine(centroidY)
	if err != nil {
		return fmt.Errorf("debugreport: centroid-y line: %w", err)
	}
	mwLine, err := plotter.NewLine(meanWeight)
	if err != nil {
		return fmt.Errorf("debugreport: mean-weight line: %w", err)
	}
	p.Add(cxLine, cyLine, mwLine)
	p.Legend.Add("centroid x", cxLine)
	p.Legend.Add("centroid y", cyLine)
	p.Legend.Add("mean weight", mwLine)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("debugreport: save %s: %w", path, err)
	}
	return nil
}

// RenderDashboard writes an HTML page to w with a bar chart of patch-pool
// size per frame.
func (c *Collector) RenderDashboard(w io.Writer) error {
	samples := c.Samples()

	x := make([]string, len(samples))
	y := make([]opts.BarData, len(samples))
	for i, s := range samples {
		x[i] = fmt.Sprintf("%d", s.Frame)
		y[i] = opts.BarData{Value: s.PoolSize}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "LGT patch-pool size", Subtitle: fmt.Sprintf("%d frames", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
	)
	bar.SetXAxis(x).AddSeries("pool size", y)

	page := components.NewPage()
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("debugreport: render dashboard: %w", err)
	}
	return nil
}
