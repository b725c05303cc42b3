package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteHTML renders an interactive page with per-query latency and build
// time bar charts.
func WriteHTML(w io.Writer, b *Benchmark) error {
	kinds := b.Kinds()
	if len(kinds) == 0 {
		return ErrNoData
	}
	names := make([]string, len(b.Runs))
	for i, run := range b.Runs {
		names[i] = run.Name
	}
	subtitle := fmt.Sprintf("%s, %s/%s, %d CPUs", b.Environment.Version,
		b.Environment.OS, b.Environment.Arch, b.Environment.CPUs)

	latency := charts.NewBar()
	latency.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: b.Title, Width: "100%", Height: "540px"}),
		charts.WithTitleOpts(opts.Title{Title: "Per-query median (µs)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
	)
	latency.SetXAxis(names)

	build := charts.NewBar()
	build.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "540px"}),
		charts.WithTitleOpts(opts.Title{Title: "Build time (ms)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
	)
	build.SetXAxis(names)

	for _, kind := range kinds {
		perQuery := make([]opts.BarData, len(b.Runs))
		builds := make([]opts.BarData, len(b.Runs))
		for i, run := range b.Runs {
			perQuery[i] = opts.BarData{Value: perQueryMicros(run, kind)}
			var ms float64
			if rec, ok := run.Report.Record(kind); ok {
				ms = rec.Build.Seconds() * 1000
			}
			builds[i] = opts.BarData{Value: ms}
		}
		latency.AddSeries(kind.String(), perQuery)
		build.AddSeries(kind.String(), builds)
	}

	page := components.NewPage()
	page.AddCharts(latency, build)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}
