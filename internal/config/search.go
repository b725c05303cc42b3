package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical search defaults file.
const DefaultConfigPath = "config/search.defaults.json"

// Strategy and metric names accepted in configuration files.
var (
	validStrategies = map[string]bool{"auto": true, "bruteforce": true, "kdtree": true, "octree": true, "grid": true}
	validMetrics    = map[string]bool{"euclidean": true, "manhattan": true, "chebyshev": true}
)

// SearchConfig represents the root configuration for the search core and the
// autotune evaluator. Every field is optional; the Get* accessors supply the
// defaults, so partial files are safe.
type SearchConfig struct {
	// Strategy selection
	Strategy *string `json:"strategy,omitempty"` // "auto" or a strategy name
	Metric   *string `json:"metric,omitempty"`

	// Strategy build params
	KdTreeLeafSize    *int     `json:"kdtree_leaf_size,omitempty"`
	OctreeBucketSize  *int     `json:"octree_bucket_size,omitempty"`
	OctreeMaxDepth    *int     `json:"octree_max_depth,omitempty"`
	GridCellSize      *float64 `json:"grid_cell_size,omitempty"` // 0 derives from the cloud extent
	GridPointsPerCell *int     `json:"grid_points_per_cell,omitempty"`

	// Evaluator params
	SampleQueries        *int     `json:"sample_queries,omitempty"`
	SampleK              *int     `json:"sample_k,omitempty"`
	SampleRadius         *float64 `json:"sample_radius,omitempty"` // 0 derives from SampleRadiusFraction
	SampleRadiusFraction *float64 `json:"sample_radius_fraction,omitempty"`
	Repetitions          *int     `json:"repetitions,omitempty"`
	Seed                 *uint64  `json:"seed,omitempty"`
	BruteForceThreshold  *int     `json:"brute_force_threshold,omitempty"`
	Verify               *bool    `json:"verify,omitempty"`
	Candidates           []string `json:"candidates,omitempty"`
	HistoryMaxAge        *string  `json:"history_max_age,omitempty"` // duration string like "24h"

	// Consumers
	BatchWorkers *int `json:"batch_workers,omitempty"` // 0 uses GOMAXPROCS
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptySearchConfig returns a SearchConfig with all fields set to nil.
func EmptySearchConfig() *SearchConfig {
	return &SearchConfig{}
}

// DefaultSearchConfig returns a SearchConfig with every field populated with
// its default value.
func DefaultSearchConfig() *SearchConfig {
	return &SearchConfig{
		Strategy:             ptrString("auto"),
		Metric:               ptrString("euclidean"),
		KdTreeLeafSize:       ptrInt(15),
		OctreeBucketSize:     ptrInt(32),
		OctreeMaxDepth:       ptrInt(16),
		GridCellSize:         ptrFloat64(0),
		GridPointsPerCell:    ptrInt(4),
		SampleQueries:        ptrInt(64),
		SampleK:              ptrInt(10),
		SampleRadius:         ptrFloat64(0),
		SampleRadiusFraction: ptrFloat64(0.02),
		Repetitions:          ptrInt(3),
		Seed:                 ptrUint64(42),
		BruteForceThreshold:  ptrInt(64),
		Verify:               ptrBool(true),
		HistoryMaxAge:        ptrString("24h"),
		BatchWorkers:         ptrInt(0),
	}
}

// LoadSearchConfig loads a SearchConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadSearchConfig(path string) (*SearchConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySearchConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *SearchConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/search/autotune/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadSearchConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *SearchConfig) Validate() error {
	if c.Strategy != nil && !validStrategies[*c.Strategy] {
		return fmt.Errorf("unknown strategy %q", *c.Strategy)
	}
	if c.Metric != nil && !validMetrics[*c.Metric] {
		return fmt.Errorf("unknown metric %q", *c.Metric)
	}
	for _, name := range c.Candidates {
		if name == "auto" || !validStrategies[name] {
			return fmt.Errorf("unknown candidate strategy %q", name)
		}
	}

	positive := map[string]*int{
		"kdtree_leaf_size":     c.KdTreeLeafSize,
		"octree_bucket_size":   c.OctreeBucketSize,
		"octree_max_depth":     c.OctreeMaxDepth,
		"grid_points_per_cell": c.GridPointsPerCell,
		"sample_queries":       c.SampleQueries,
		"sample_k":             c.SampleK,
		"repetitions":          c.Repetitions,
	}
	for name, v := range positive {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	if c.BruteForceThreshold != nil && *c.BruteForceThreshold < 0 {
		return fmt.Errorf("brute_force_threshold must be non-negative, got %d", *c.BruteForceThreshold)
	}
	if c.BatchWorkers != nil && *c.BatchWorkers < 0 {
		return fmt.Errorf("batch_workers must be non-negative, got %d", *c.BatchWorkers)
	}
	if c.GridCellSize != nil && (*c.GridCellSize < 0 || math.IsNaN(*c.GridCellSize)) {
		return fmt.Errorf("grid_cell_size must be non-negative, got %f", *c.GridCellSize)
	}
	if c.SampleRadius != nil && (*c.SampleRadius < 0 || math.IsNaN(*c.SampleRadius)) {
		return fmt.Errorf("sample_radius must be non-negative, got %f", *c.SampleRadius)
	}
	if c.SampleRadiusFraction != nil {
		if f := *c.SampleRadiusFraction; f <= 0 || f > 1 {
			return fmt.Errorf("sample_radius_fraction must be in (0, 1], got %f", f)
		}
	}
	if c.HistoryMaxAge != nil && *c.HistoryMaxAge != "" {
		if _, err := time.ParseDuration(*c.HistoryMaxAge); err != nil {
			return fmt.Errorf("invalid history_max_age '%s': %w", *c.HistoryMaxAge, err)
		}
	}

	return nil
}

// GetStrategy returns the strategy name or "auto".
func (c *SearchConfig) GetStrategy() string {
	if c.Strategy == nil || *c.Strategy == "" {
		return "auto"
	}
	return *c.Strategy
}

// GetMetric returns the metric name or "euclidean".
func (c *SearchConfig) GetMetric() string {
	if c.Metric == nil || *c.Metric == "" {
		return "euclidean"
	}
	return *c.Metric
}

// GetKdTreeLeafSize returns the kdtree_leaf_size value or the default.
func (c *SearchConfig) GetKdTreeLeafSize() int {
	if c.KdTreeLeafSize == nil {
		return 15
	}
	return *c.KdTreeLeafSize
}

// GetOctreeBucketSize returns the octree_bucket_size value or the default.
func (c *SearchConfig) GetOctreeBucketSize() int {
	if c.OctreeBucketSize == nil {
		return 32
	}
	return *c.OctreeBucketSize
}

// GetOctreeMaxDepth returns the octree_max_depth value or the default.
func (c *SearchConfig) GetOctreeMaxDepth() int {
	if c.OctreeMaxDepth == nil {
		return 16
	}
	return *c.OctreeMaxDepth
}

// GetGridCellSize returns the grid_cell_size value; 0 means derive from the cloud.
func (c *SearchConfig) GetGridCellSize() float64 {
	if c.GridCellSize == nil {
		return 0
	}
	return *c.GridCellSize
}

// GetGridPointsPerCell returns the grid_points_per_cell value or the default.
func (c *SearchConfig) GetGridPointsPerCell() int {
	if c.GridPointsPerCell == nil {
		return 4
	}
	return *c.GridPointsPerCell
}

// GetSampleQueries returns the sample_queries value or the default.
func (c *SearchConfig) GetSampleQueries() int {
	if c.SampleQueries == nil {
		return 64
	}
	return *c.SampleQueries
}

// GetSampleK returns the sample_k value or the default.
func (c *SearchConfig) GetSampleK() int {
	if c.SampleK == nil {
		return 10
	}
	return *c.SampleK
}

// GetSampleRadius returns the sample_radius value; 0 means derive from the cloud.
func (c *SearchConfig) GetSampleRadius() float64 {
	if c.SampleRadius == nil {
		return 0
	}
	return *c.SampleRadius
}

// GetSampleRadiusFraction returns the sample_radius_fraction value or the default.
func (c *SearchConfig) GetSampleRadiusFraction() float64 {
	if c.SampleRadiusFraction == nil {
		return 0.02
	}
	return *c.SampleRadiusFraction
}

// GetRepetitions returns the repetitions value or the default.
func (c *SearchConfig) GetRepetitions() int {
	if c.Repetitions == nil {
		return 3
	}
	return *c.Repetitions
}

// GetSeed returns the seed value or the default.
func (c *SearchConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 42
	}
	return *c.Seed
}

// GetBruteForceThreshold returns the brute_force_threshold value or the default.
func (c *SearchConfig) GetBruteForceThreshold() int {
	if c.BruteForceThreshold == nil {
		return 64
	}
	return *c.BruteForceThreshold
}

// GetVerify returns the verify value or the default.
func (c *SearchConfig) GetVerify() bool {
	if c.Verify == nil {
		return true
	}
	return *c.Verify
}

// GetCandidates returns the candidate strategy names, in evaluation order.
func (c *SearchConfig) GetCandidates() []string {
	if len(c.Candidates) == 0 {
		return []string{"bruteforce", "kdtree", "octree", "grid"}
	}
	out := make([]string, len(c.Candidates))
	copy(out, c.Candidates)
	return out
}

// GetHistoryMaxAge parses and returns HistoryMaxAge as a time.Duration.
func (c *SearchConfig) GetHistoryMaxAge() time.Duration {
	if c.HistoryMaxAge == nil || *c.HistoryMaxAge == "" {
		return 24 * time.Hour // default
	}
	d, err := time.ParseDuration(*c.HistoryMaxAge)
	if err != nil {
		return 24 * time.Hour // default on parse error
	}
	return d
}

// GetBatchWorkers returns the batch_workers value; 0 means GOMAXPROCS.
func (c *SearchConfig) GetBatchWorkers() int {
	if c.BatchWorkers == nil {
		return 0
	}
	return *c.BatchWorkers
}
