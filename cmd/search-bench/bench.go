package main

import (
	"fmt"
	"io"
	"log"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/cloudsearch/internal/config"
	"github.com/banshee-data/cloudsearch/internal/fsutil"
	"github.com/banshee-data/cloudsearch/internal/perfstore"
	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/report"
	"github.com/banshee-data/cloudsearch/internal/search"
	"github.com/banshee-data/cloudsearch/internal/search/autotune"
)

// shapes generates a synthetic cloud of about n points.
var shapes = map[string]func(n, dim int, seed uint64) *pointcloud.Cloud{
	"uniform": func(n, dim int, seed uint64) *pointcloud.Cloud {
		return pointcloud.Uniform(n, dim, -10, 10, seed)
	},
	"grid": func(n, _ int, _ uint64) *pointcloud.Cloud {
		side := max(1, int(math.Round(math.Cbrt(float64(n)))))
		return pointcloud.GridCube(side, 0.1, 0)
	},
	"clustered": func(n, _ int, seed uint64) *pointcloud.Cloud {
		return pointcloud.Clustered(n, 8, 10, 0.5, seed)
	},
	"sphere": func(n, _ int, _ uint64) *pointcloud.Cloud {
		return pointcloud.Sphere(n, 5)
	},
}

func shapeNames() []string {
	names := make([]string, 0, len(shapes))
	for name := range shapes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseSizes(s string) ([]int, error) {
	var sizes []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid size %q", part)
		}
		sizes = append(sizes, n)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no sizes given")
	}
	return sizes, nil
}

func parseQueries(s string) ([]autotune.QueryType, error) {
	var qts []autotune.QueryType
	for _, part := range splitList(s) {
		qt, err := autotune.ParseQueryType(part)
		if err != nil {
			return nil, err
		}
		qts = append(qts, qt)
	}
	if len(qts) == 0 {
		return nil, fmt.Errorf("no query types given")
	}
	return qts, nil
}

func loadConfig(path string) (*config.SearchConfig, error) {
	if path == "" {
		return config.DefaultSearchConfig(), nil
	}
	return config.LoadSearchConfig(path)
}

// run executes the benchmark described by cfg and prints a table to out.
func run(cfg Config, out io.Writer) error {
	sizes, err := parseSizes(cfg.Sizes)
	if err != nil {
		return err
	}
	queries, err := parseQueries(cfg.Queries)
	if err != nil {
		return err
	}
	cloudNames := splitList(cfg.Clouds)
	for _, name := range cloudNames {
		if _, ok := shapes[name]; !ok {
			return fmt.Errorf("unknown cloud shape %q (want one of %s)", name, strings.Join(shapeNames(), ", "))
		}
	}
	if cfg.Dim < 1 {
		return fmt.Errorf("invalid dimension %d", cfg.Dim)
	}
	searchCfg, err := loadConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}

	opts := []autotune.Option{autotune.WithConfig(searchCfg)}
	if cfg.DBPath != "" {
		store, err := perfstore.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if cfg.Prune != "" {
			age, err := time.ParseDuration(cfg.Prune)
			if err != nil {
				return fmt.Errorf("invalid -prune: %w", err)
			}
			n, err := store.Prune(age)
			if err != nil {
				return err
			}
			log.Printf("Pruned %d stored reports older than %s", n, age)
		}
		opts = append(opts, autotune.WithRecorder(store))
		if cfg.UseHistory {
			opts = append(opts, autotune.WithHistory(store))
		}
	}
	evaluator, err := autotune.NewEvaluator(opts...)
	if err != nil {
		return err
	}

	bench := report.New("search-bench", time.Now())
	for _, name := range cloudNames {
		for _, n := range sizes {
			cloud := shapes[name](n, cfg.Dim, cfg.Seed)
			view, err := search.NewView(cloud, nil)
			if err != nil {
				return fmt.Errorf("%s/%d: %w", name, n, err)
			}
			for _, qt := range queries {
				runName := fmt.Sprintf("%s/%d/%s", name, cloud.Len(), qt)
				log.Printf("Evaluating %s (%d-D)", runName, cloud.Dim())
				rep, err := evaluator.Evaluate(view, qt)
				if err != nil {
					return fmt.Errorf("%s: %w", runName, err)
				}
				bench.Add(runName, rep)
			}
		}
	}

	if err := report.WriteTable(out, bench); err != nil {
		return err
	}
	if cfg.OutputDir != "" {
		if err := writeReports(cfg.OutputDir, bench); err != nil {
			return err
		}
	}
	return nil
}

func writeReports(dir string, bench *report.Benchmark) error {
	written, err := report.WriteAll(fsutil.OSFileSystem{}, dir, bench)
	for _, path := range written {
		log.Printf("Wrote %s", path)
	}
	return err
}
