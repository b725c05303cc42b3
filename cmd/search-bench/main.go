// Command search-bench times every nearest-neighbour strategy on synthetic
// clouds and reports which one the evaluator would pick.
//
//	search-bench -sizes 1000,100000 -clouds uniform,clustered -query knn,radius -out ./bench
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/banshee-data/cloudsearch/internal/monitoring"
	"github.com/banshee-data/cloudsearch/internal/version"
)

// Config holds the command-line options.
type Config struct {
	ConfigFile string
	Sizes      string
	Clouds     string
	Queries    string
	Dim        int
	Seed       uint64
	DBPath     string
	UseHistory bool
	Prune      string
	OutputDir  string
	Verbose    bool
}

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetVerbose(cfg.Verbose)

	if err := run(cfg, os.Stdout); err != nil {
		log.Fatalf("search-bench: %v", err)
	}
}

func parseFlags() (Config, bool) {
	cfg := Config{}

	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to a search config JSON file (defaults apply when empty)")
	flag.StringVar(&cfg.Sizes, "sizes", "1000,10000,100000", "Comma-separated cloud sizes")
	flag.StringVar(&cfg.Clouds, "clouds", "uniform,grid,clustered", "Comma-separated cloud shapes: "+strings.Join(shapeNames(), ", "))
	flag.StringVar(&cfg.Queries, "query", "knn,radius", "Comma-separated query types: knn, radius")
	flag.IntVar(&cfg.Dim, "dim", 3, "Dimension of uniform clouds (other shapes are 3-D)")
	flag.Uint64Var(&cfg.Seed, "seed", 1, "Seed for cloud generation")
	flag.StringVar(&cfg.DBPath, "db", "", "SQLite database to record results in")
	flag.BoolVar(&cfg.UseHistory, "use-history", false, "Reuse recent results from -db instead of timing again")
	flag.StringVar(&cfg.Prune, "prune", "", "Delete stored reports older than this duration (e.g. 720h) before running")
	flag.StringVar(&cfg.OutputDir, "out", "", "Directory for report.json, report.png and report.html")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Parse()

	return cfg, *showVersion
}
