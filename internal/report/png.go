package report

import (
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ErrNoData is returned when there is nothing to chart.
var ErrNoData = errors.New("report: no timed runs")

// WritePNG draws a grouped bar chart of per-query latency, one group per run
// and one bar per strategy.
func WritePNG(w io.Writer, b *Benchmark, width, height vg.Length) error {
	kinds := b.Kinds()
	if len(kinds) == 0 {
		return ErrNoData
	}

	p := plot.New()
	p.Title.Text = b.Title
	p.Y.Label.Text = "Per-query median (µs)"

	names := make([]string, len(b.Runs))
	for i, run := range b.Runs {
		names[i] = run.Name
	}

	barWidth := vg.Points(48 / float64(len(kinds)))
	for i, kind := range kinds {
		values := make(plotter.Values, len(b.Runs))
		for j, run := range b.Runs {
			values[j] = perQueryMicros(run, kind)
		}
		bars, err := plotter.NewBarChart(values, barWidth)
		if err != nil {
			return fmt.Errorf("bar chart for %s: %w", kind, err)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = barWidth * vg.Length(float64(i)-float64(len(kinds)-1)/2)
		p.Add(bars)
		p.Legend.Add(kind.String(), bars)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.NominalX(names...)

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}
