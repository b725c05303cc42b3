package autotune

import (
	"fmt"
	"maps"
	"slices"

	"github.com/banshee-data/cloudsearch/internal/monitoring"
	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/search"
)

// State is the lifecycle state of a Search.
type State int

const (
	// StateUnconfigured: no usable input cloud.
	StateUnconfigured State = iota
	// StateBuilt: the input is indexed and current.
	StateBuilt
	// StateStale: the cloud was mutated since the last build. The next query
	// rebuilds.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateBuilt:
		return "built"
	case StateStale:
		return "stale"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Search answers nearest-neighbour queries over an input cloud through the
// fastest strategy for each query type. In fixed mode it always uses one
// strategy and never benchmarks.
type Search struct {
	evaluator *Evaluator
	factory   Factory
	opts      search.Options
	fixed     bool
	fixedKind search.Kind

	cloud  *pointcloud.Cloud
	subset []int
	view   *search.View

	built   map[search.Kind]search.Strategy
	chosen  map[QueryType]search.Kind
	reports map[QueryType]*Report
}

// New creates an automatic Search. When the configuration names a strategy
// other than "auto", the Search is fixed to it.
func New(opts ...Option) (*Search, error) {
	st := newSettings(opts)
	s, err := newSearch(st)
	if err != nil {
		return nil, err
	}
	if name := st.cfg.GetStrategy(); name != "auto" {
		kind, err := search.ParseKind(name)
		if err != nil {
			return nil, err
		}
		s.fixed, s.fixedKind = true, kind
	}
	return s, nil
}

// NewFixed creates a Search that always uses kind.
func NewFixed(kind search.Kind, opts ...Option) (*Search, error) {
	if !slices.Contains(search.AllKinds, kind) {
		return nil, fmt.Errorf("%w: %v", search.ErrStrategyUnavailable, kind)
	}
	s, err := newSearch(newSettings(opts))
	if err != nil {
		return nil, err
	}
	s.fixed, s.fixedKind = true, kind
	return s, nil
}

func newSearch(st settings) (*Search, error) {
	e := st.evaluator
	if e == nil {
		var err error
		if e, err = newEvaluator(st); err != nil {
			return nil, err
		}
	}
	return &Search{
		evaluator: e,
		factory:   st.factory,
		opts:      e.Options(),
		built:     make(map[search.Kind]search.Strategy),
		chosen:    make(map[QueryType]search.Kind),
		reports:   make(map[QueryType]*Report),
	}, nil
}

// State reports the lifecycle state.
func (s *Search) State() State {
	if s.view == nil {
		return StateUnconfigured
	}
	if s.view.Check() != nil {
		return StateStale
	}
	return StateBuilt
}

// Fixed reports whether the Search is fixed to one strategy.
func (s *Search) Fixed() bool { return s.fixed }

// InputCloud returns the current cloud and subset. Callers must not modify
// the subset.
func (s *Search) InputCloud() (*pointcloud.Cloud, []int) { return s.cloud, s.subset }

// SetInputCloud indexes cloud restricted to subset (nil for the whole cloud).
// Re-submitting the current, unmodified input is a no-op. On error the
// Search is left unconfigured.
func (s *Search) SetInputCloud(cloud *pointcloud.Cloud, subset []int) error {
	v, err := search.NewView(cloud, subset)
	if err != nil {
		s.reset()
		return err
	}
	if s.view != nil && s.cloud == cloud && s.view.Token() == v.Token() {
		return nil
	}
	s.cloud = cloud
	s.subset = slices.Clone(subset)
	return s.adopt(v)
}

// adopt installs v and drops everything derived from the previous input.
func (s *Search) adopt(v *search.View) error {
	s.view = v
	clear(s.built)
	clear(s.chosen)
	clear(s.reports)
	if s.fixed {
		if _, err := s.strategy(s.fixedKind); err != nil {
			s.reset()
			return err
		}
	}
	return nil
}

func (s *Search) reset() {
	s.cloud = nil
	s.subset = nil
	s.view = nil
	clear(s.built)
	clear(s.chosen)
	clear(s.reports)
}

// refresh rebuilds after the cloud was mutated.
func (s *Search) refresh() error {
	if s.view == nil {
		return search.ErrNotInitialized
	}
	if s.view.Check() == nil {
		return nil
	}
	monitoring.Debugf("[autotune] cloud %s changed, rebuilding", s.cloud.ID())
	v, err := search.NewView(s.cloud, s.subset)
	if err != nil {
		s.reset()
		return err
	}
	return s.adopt(v)
}

// strategy returns the built strategy of kind, building it on first use.
func (s *Search) strategy(kind search.Kind) (search.Strategy, error) {
	if st, ok := s.built[kind]; ok {
		return st, nil
	}
	st, err := s.factory(kind, s.opts)
	if err != nil {
		return nil, err
	}
	if err := st.Build(s.view); err != nil {
		return nil, err
	}
	s.built[kind] = st
	return st, nil
}

// Prepare resolves and builds the strategy serving qt, running the evaluator
// if no choice was made yet. The result may be queried concurrently until the
// input changes.
func (s *Search) Prepare(qt QueryType) (search.Strategy, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	if s.fixed {
		return s.strategy(s.fixedKind)
	}
	if kind, ok := s.chosen[qt]; ok {
		return s.strategy(kind)
	}

	report, built, err := s.evaluator.evaluate(s.view, qt)
	if err != nil {
		return nil, err
	}
	kind := report.Best
	if st, ok := built[kind]; ok {
		if _, have := s.built[kind]; !have {
			s.built[kind] = st
		}
	}
	// Cache the choice only once its strategy is built.
	st, err := s.strategy(kind)
	if err != nil {
		return nil, err
	}
	s.chosen[qt] = kind
	s.reports[qt] = report
	return st, nil
}

// ActiveKind returns the strategy serving qt, if one has been chosen.
func (s *Search) ActiveKind(qt QueryType) (search.Kind, bool) {
	if s.view == nil {
		return 0, false
	}
	if s.fixed {
		return s.fixedKind, true
	}
	k, ok := s.chosen[qt]
	return k, ok
}

// Report returns the evaluation report behind the choice for qt.
func (s *Search) Report(qt QueryType) (*Report, bool) {
	r, ok := s.reports[qt]
	return r, ok
}

// Built returns the kinds currently built, in kind order.
func (s *Search) Built() []search.Kind {
	return slices.Sorted(maps.Keys(s.built))
}

func (s *Search) checkQuery(q []float64) error {
	if s.view == nil {
		return search.ErrNotInitialized
	}
	return search.ValidateQuery(q, s.view.Dim())
}

// NearestK returns up to k nearest neighbours of q ordered by (distance, id).
func (s *Search) NearestK(q []float64, k int) ([]search.Neighbor, error) {
	if err := s.checkQuery(q); err != nil {
		return nil, err
	}
	if err := search.ValidateK(k); err != nil {
		return nil, err
	}
	st, err := s.Prepare(KNearest)
	if err != nil {
		return nil, err
	}
	return st.NearestK(q, k)
}

// Radius returns every neighbour within r of q ordered by (distance, id).
// maxResults > 0 keeps only the closest maxResults.
func (s *Search) Radius(q []float64, r float64, maxResults int) ([]search.Neighbor, error) {
	if err := s.checkQuery(q); err != nil {
		return nil, err
	}
	if err := search.ValidateRadius(r); err != nil {
		return nil, err
	}
	st, err := s.Prepare(RadiusQuery)
	if err != nil {
		return nil, err
	}
	return st.Radius(q, r, maxResults)
}

// NearestKSearch is NearestK returning parallel id and distance slices.
func (s *Search) NearestKSearch(q []float64, k int) ([]int, []float64, error) {
	ns, err := s.NearestK(q, k)
	if err != nil {
		return nil, nil, err
	}
	ids, dists := search.Split(ns)
	return ids, dists, nil
}

// RadiusSearch is Radius returning parallel id and distance slices.
func (s *Search) RadiusSearch(q []float64, r float64, maxResults int) ([]int, []float64, error) {
	ns, err := s.Radius(q, r, maxResults)
	if err != nil {
		return nil, nil, err
	}
	ids, dists := search.Split(ns)
	return ids, dists, nil
}

// pointAt returns the coordinates of cloud point id as a query.
func (s *Search) pointAt(id int) ([]float64, error) {
	if s.view == nil {
		return nil, search.ErrNotInitialized
	}
	if err := s.refresh(); err != nil {
		return nil, err
	}
	if id < 0 || id >= s.cloud.Len() {
		return nil, fmt.Errorf("%w: point %d out of range [0,%d)", search.ErrInvalidArgument, id, s.cloud.Len())
	}
	return slices.Clone(s.cloud.Point(id)), nil
}

// NearestKAt queries around cloud point id. The point itself is included in
// the results when it is searchable.
func (s *Search) NearestKAt(id, k int) ([]search.Neighbor, error) {
	q, err := s.pointAt(id)
	if err != nil {
		return nil, err
	}
	return s.NearestK(q, k)
}

// RadiusAt queries around cloud point id.
func (s *Search) RadiusAt(id int, r float64, maxResults int) ([]search.Neighbor, error) {
	q, err := s.pointAt(id)
	if err != nil {
		return nil, err
	}
	return s.Radius(q, r, maxResults)
}

var _ search.Searcher = (*Search)(nil)
