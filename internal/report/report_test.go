package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/cloudsearch/internal/search"
	"github.com/banshee-data/cloudsearch/internal/search/autotune"
	"github.com/banshee-data/cloudsearch/internal/version"
)

var created = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleBenchmark() *Benchmark {
	b := New("lattice", created)
	b.Add("uniform/1000", &autotune.Report{
		Workload: autotune.Workload{QueryType: autotune.KNearest, Points: 1000, Dim: 3, K: 10},
		Best:     search.KindKdTree,
		Records: []autotune.Record{
			{Kind: search.KindKdTree, Build: 2 * time.Millisecond, Median: 640 * time.Microsecond, PerQuery: 10 * time.Microsecond, Passes: 3, Verified: true},
			{Kind: search.KindBruteForce, Median: 6400 * time.Microsecond, PerQuery: 100 * time.Microsecond, Passes: 3, Verified: true},
		},
		Excluded:  map[search.Kind]string{search.KindGrid: "build: strategy unavailable"},
		CreatedAt: created,
	})
	b.Add("tiny/10", &autotune.Report{
		Workload:     autotune.Workload{QueryType: autotune.RadiusQuery, Points: 10, Dim: 3, Radius: 0.5},
		Best:         search.KindBruteForce,
		ShortCircuit: true,
		CreatedAt:    created,
	})
	b.Add("ignored", nil)
	return b
}

func TestCurrentEnvironment(t *testing.T) {
	env := CurrentEnvironment()
	if env.Version != version.String() {
		t.Errorf("expected version %q, got %q", version.String(), env.Version)
	}
	if env.CPUs < 1 || env.GOMAXPROCS < 1 {
		t.Errorf("expected positive CPU counts, got %+v", env)
	}
	if env.GoVersion == "" || env.OS == "" || env.Arch == "" {
		t.Errorf("expected runtime fields to be set, got %+v", env)
	}
}

func TestBenchmark_Kinds(t *testing.T) {
	b := sampleBenchmark()
	if len(b.Runs) != 2 {
		t.Fatalf("expected nil reports to be skipped, got %d runs", len(b.Runs))
	}
	want := []search.Kind{search.KindBruteForce, search.KindKdTree}
	if diff := cmp.Diff(want, b.Kinds()); diff != "" {
		t.Errorf("Kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteJSON_ReadBack(t *testing.T) {
	b := sampleBenchmark()
	var buf bytes.Buffer
	if err := WriteJSON(&buf, b); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	for _, want := range []string{`"best": "kdtree"`, `"query_type": "radius"`, `"per_query_ns": 10000`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected JSON to contain %s", want)
		}
	}

	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if diff := cmp.Diff(b, got); diff != "" {
		t.Errorf("benchmark changed after decode (-want +got):\n%s", diff)
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, sampleBenchmark()); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"kdtree*", "bruteforce ", "excluded: build: strategy unavailable", "small cloud", "10µs"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected table to contain %q:\n%s", want, out)
		}
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, sampleBenchmark(), 400, 300); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Errorf("expected PNG signature")
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleBenchmark()); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"<html", "echarts", "kdtree", "uniform/1000"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected HTML to contain %q", want)
		}
	}
}

func TestWriters_NoData(t *testing.T) {
	b := New("empty", created)
	if err := WritePNG(&bytes.Buffer{}, b, 100, 100); err != ErrNoData {
		t.Errorf("expected ErrNoData from WritePNG, got %v", err)
	}
	if err := WriteHTML(&bytes.Buffer{}, b); err != ErrNoData {
		t.Errorf("expected ErrNoData from WriteHTML, got %v", err)
	}
}
