package search

import (
	"fmt"
	"math"

	"github.com/banshee-data/cloudsearch/internal/config"
	"github.com/banshee-data/cloudsearch/internal/pointcloud/metric"
)

// Kind identifies a strategy implementation.
type Kind int

// Strategy kinds, in the default evaluation order.
const (
	KindBruteForce Kind = iota
	KindKdTree
	KindOctree
	KindGrid
)

// AllKinds lists every strategy kind in evaluation order.
var AllKinds = []Kind{KindBruteForce, KindKdTree, KindOctree, KindGrid}

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBruteForce:
		return "bruteforce"
	case KindKdTree:
		return "kdtree"
	case KindOctree:
		return "octree"
	case KindGrid:
		return "grid"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind resolves a configuration name.
func ParseKind(name string) (Kind, error) {
	for _, k := range AllKinds {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown strategy %q", ErrStrategyUnavailable, name)
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Searcher is the query contract consumed by filters, feature estimators and
// other collaborators.
type Searcher interface {
	// NearestK returns up to k nearest neighbours of q ordered by (distance, id).
	NearestK(q []float64, k int) ([]Neighbor, error)

	// Radius returns every neighbour within r of q (inclusive) ordered by
	// (distance, id). maxResults > 0 keeps only the closest maxResults.
	Radius(q []float64, r float64, maxResults int) ([]Neighbor, error)
}

// Strategy is a spatial index implementation.
type Strategy interface {
	Searcher

	// Kind identifies the implementation.
	Kind() Kind

	// Build indexes the view, replacing any previous structure.
	Build(v *View) error
}

// Options carries build parameters for every strategy kind. Zero values
// select defaults.
type Options struct {
	Metric        metric.Metric
	LeafSize      int     // kd-tree leaf bucket size
	BucketSize    int     // octree leaf bucket size
	MaxDepth      int     // octree depth limit
	CellSize      float64 // grid cell edge; 0 derives from the cloud
	PointsPerCell int     // grid occupancy target when deriving CellSize
}

// OptionsFromConfig maps the search configuration onto strategy options.
func OptionsFromConfig(cfg *config.SearchConfig) (Options, error) {
	if cfg == nil {
		cfg = config.EmptySearchConfig()
	}
	m, err := metric.ByName(cfg.GetMetric())
	if err != nil {
		return Options{}, err
	}
	return Options{
		Metric:        m,
		LeafSize:      cfg.GetKdTreeLeafSize(),
		BucketSize:    cfg.GetOctreeBucketSize(),
		MaxDepth:      cfg.GetOctreeMaxDepth(),
		CellSize:      cfg.GetGridCellSize(),
		PointsPerCell: cfg.GetGridPointsPerCell(),
	}, nil
}

// New constructs an unbuilt strategy of the given kind.
func New(kind Kind, opts Options) (Strategy, error) {
	switch kind {
	case KindBruteForce:
		return NewBruteForce(opts.Metric), nil
	case KindKdTree:
		return NewKdTree(opts.Metric, opts.LeafSize), nil
	case KindOctree:
		return NewOctree(opts.Metric, opts.BucketSize, opts.MaxDepth), nil
	case KindGrid:
		return NewGrid(opts.Metric, opts.CellSize, opts.PointsPerCell), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrStrategyUnavailable, kind)
	}
}

// requireBounded returns m as a Bounded metric or ErrStrategyUnavailable.
func requireBounded(kind Kind, m metric.Metric) (metric.Bounded, error) {
	b, ok := m.(metric.Bounded)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs a box-bounded metric, got %s", ErrStrategyUnavailable, kind, m.Name())
	}
	return b, nil
}

// prepareQuery runs the checks shared by every strategy before a query.
func prepareQuery(v *View, q []float64) error {
	if v == nil {
		return ErrNotInitialized
	}
	if err := v.Check(); err != nil {
		return err
	}
	return ValidateQuery(q, v.Dim())
}

// ValidateQuery rejects query points of the wrong dimension or with
// non-finite coordinates.
func ValidateQuery(q []float64, dim int) error {
	if len(q) != dim {
		return fmt.Errorf("%w: query has %d coordinates, cloud has %d", ErrInvalidArgument, len(q), dim)
	}
	for _, c := range q {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: query has non-finite coordinates", ErrInvalidArgument)
		}
	}
	return nil
}

// ValidateK rejects k <= 0.
func ValidateK(k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	return nil
}

// ValidateRadius rejects negative and NaN radii.
func ValidateRadius(r float64) error {
	if r < 0 || math.IsNaN(r) {
		return fmt.Errorf("%w: radius must be non-negative, got %v", ErrInvalidArgument, r)
	}
	return nil
}

func defaultMetric(m metric.Metric) metric.Metric {
	if m == nil {
		return metric.Default
	}
	return m
}
