// Package report renders benchmark results from the strategy evaluator as
// JSON, a plain-text table, a PNG bar chart and an interactive HTML page.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"slices"
	"text/tabwriter"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/banshee-data/cloudsearch/internal/search"
	"github.com/banshee-data/cloudsearch/internal/search/autotune"
	"github.com/banshee-data/cloudsearch/internal/version"
)

// Environment describes the machine a benchmark ran on.
type Environment struct {
	Version    string   `json:"version"`
	GoVersion  string   `json:"go_version"`
	OS         string   `json:"os"`
	Arch       string   `json:"arch"`
	CPUs       int      `json:"cpus"`
	GOMAXPROCS int      `json:"gomaxprocs"`
	Features   []string `json:"cpu_features,omitempty"`
}

// CurrentEnvironment captures the running process's environment.
func CurrentEnvironment() Environment {
	return Environment{
		Version:    version.String(),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPUs:       runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		Features:   cpuFeatures(),
	}
}

func cpuFeatures() []string {
	var fs []string
	add := func(name string, ok bool) {
		if ok {
			fs = append(fs, name)
		}
	}
	add("sse4.2", cpu.X86.HasSSE42)
	add("avx", cpu.X86.HasAVX)
	add("avx2", cpu.X86.HasAVX2)
	add("fma", cpu.X86.HasFMA)
	add("avx512f", cpu.X86.HasAVX512F)
	add("asimd", cpu.ARM64.HasASIMD)
	add("sve", cpu.ARM64.HasSVE)
	add("sve2", cpu.ARM64.HasSVE2)
	return fs
}

// Run is one evaluated workload.
type Run struct {
	Name   string           `json:"name"`
	Report *autotune.Report `json:"report"`
}

// Benchmark collects the runs of one benchmark session.
type Benchmark struct {
	Title       string      `json:"title"`
	CreatedAt   time.Time   `json:"created_at"`
	Environment Environment `json:"environment"`
	Runs        []Run       `json:"runs"`
}

// New starts a benchmark stamped with the current environment.
func New(title string, now time.Time) *Benchmark {
	return &Benchmark{Title: title, CreatedAt: now.UTC(), Environment: CurrentEnvironment()}
}

// Add appends a run. Nil reports are ignored.
func (b *Benchmark) Add(name string, r *autotune.Report) {
	if r == nil {
		return
	}
	b.Runs = append(b.Runs, Run{Name: name, Report: r})
}

// Kinds returns every strategy kind with a record in any run, in Kind order.
func (b *Benchmark) Kinds() []search.Kind {
	var kinds []search.Kind
	for _, run := range b.Runs {
		for _, rec := range run.Report.Records {
			if !slices.Contains(kinds, rec.Kind) {
				kinds = append(kinds, rec.Kind)
			}
		}
	}
	slices.Sort(kinds)
	return kinds
}

// perQueryMicros returns the per-query median of kind in run, in
// microseconds, or 0 when the kind has no record.
func perQueryMicros(run Run, kind search.Kind) float64 {
	rec, ok := run.Report.Record(kind)
	if !ok {
		return 0
	}
	return float64(rec.PerQuery) / float64(time.Microsecond)
}

// WriteJSON writes b as indented JSON.
func WriteJSON(w io.Writer, b *Benchmark) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode benchmark: %w", err)
	}
	return nil
}

// ReadJSON decodes a benchmark written by WriteJSON.
func ReadJSON(r io.Reader) (*Benchmark, error) {
	var b Benchmark
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode benchmark: %w", err)
	}
	return &b, nil
}

// WriteTable writes one line per run and strategy with timings, the winner
// marked with '*', followed by exclusions.
func WriteTable(w io.Writer, b *Benchmark) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tQUERY\tPOINTS\tSTRATEGY\tBUILD\tMEDIAN\tPER QUERY\tVERIFIED\t")
	for _, run := range b.Runs {
		r := run.Report
		if len(r.Records) == 0 {
			note := "no timings"
			switch {
			case r.ShortCircuit:
				note = "small cloud"
			case r.FromHistory:
				note = "history"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s*\t-\t-\t-\t%s\t\n",
				run.Name, r.Workload.QueryType, r.Workload.Points, r.Best, note)
			continue
		}
		for _, rec := range r.Records {
			mark := ""
			if rec.Kind == r.Best {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s%s\t%v\t%v\t%v\t%t\t\n",
				run.Name, r.Workload.QueryType, r.Workload.Points, rec.Kind, mark,
				rec.Build.Round(time.Microsecond), rec.Median.Round(time.Microsecond),
				rec.PerQuery, rec.Verified)
		}
		kinds := make([]search.Kind, 0, len(r.Excluded))
		for k := range r.Excluded {
			kinds = append(kinds, k)
		}
		slices.Sort(kinds)
		for _, k := range kinds {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\texcluded: %s\t\t\t\t\n",
				run.Name, r.Workload.QueryType, r.Workload.Points, k, r.Excluded[k])
		}
	}
	return tw.Flush()
}
