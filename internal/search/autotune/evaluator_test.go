package autotune

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cloudsearch/internal/config"
	"github.com/banshee-data/cloudsearch/internal/monitoring"
	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/pointcloud/metric"
	"github.com/banshee-data/cloudsearch/internal/search"
	"github.com/banshee-data/cloudsearch/internal/timeutil"
)

// scriptedStrategy wraps brute force and charges a fixed cost to the mock
// clock on every query, so rankings are exact.
type scriptedStrategy struct {
	search.Strategy
	kind     search.Kind
	clock    *timeutil.MockClock
	cost     time.Duration
	buildErr error
	corrupt  bool
}

func (s *scriptedStrategy) Kind() search.Kind { return s.kind }

func (s *scriptedStrategy) Build(v *search.View) error {
	if s.buildErr != nil {
		return s.buildErr
	}
	return s.Strategy.Build(v)
}

func (s *scriptedStrategy) NearestK(q []float64, k int) ([]search.Neighbor, error) {
	s.clock.Advance(s.cost)
	ns, err := s.Strategy.NearestK(q, k)
	if s.corrupt && len(ns) > 0 {
		ns[len(ns)-1].Distance += 1
	}
	return ns, err
}

func (s *scriptedStrategy) Radius(q []float64, r float64, maxResults int) ([]search.Neighbor, error) {
	s.clock.Advance(s.cost)
	ns, err := s.Strategy.Radius(q, r, maxResults)
	if s.corrupt {
		ns = append(ns, search.Neighbor{ID: 0, Distance: r})
	}
	return ns, err
}

type script struct {
	clock    *timeutil.MockClock
	costs    map[search.Kind]time.Duration
	buildErr map[search.Kind]error
	corrupt  map[search.Kind]bool
	made     int
}

func newScript(costs map[search.Kind]time.Duration) *script {
	return &script{
		clock:    timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		costs:    costs,
		buildErr: map[search.Kind]error{},
		corrupt:  map[search.Kind]bool{},
	}
}

func (sc *script) factory(kind search.Kind, opts search.Options) (search.Strategy, error) {
	sc.made++
	return &scriptedStrategy{
		Strategy: search.NewBruteForce(opts.Metric),
		kind:     kind,
		clock:    sc.clock,
		cost:     sc.costs[kind],
		buildErr: sc.buildErr[kind],
		corrupt:  sc.corrupt[kind],
	}, nil
}

func (sc *script) options(extra ...Option) []Option {
	return append([]Option{WithClock(sc.clock), WithFactory(sc.factory)}, extra...)
}

type captureRecorder struct {
	reports []*Report
	err     error
}

func (r *captureRecorder) Save(rep *Report) error {
	r.reports = append(r.reports, rep)
	return r.err
}

type fixedHistory struct {
	kind  search.Kind
	ok    bool
	err   error
	asked []Bucket
}

func (h *fixedHistory) Best(b Bucket, _ time.Duration) (search.Kind, bool, error) {
	h.asked = append(h.asked, b)
	return h.kind, h.ok, h.err
}

func muteLogs(t *testing.T) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

func lattice(t *testing.T) *search.View {
	t.Helper()
	v, err := search.NewView(pointcloud.GridCube(6, 1, 0), nil)
	require.NoError(t, err)
	return v
}

var defaultCosts = map[search.Kind]time.Duration{
	search.KindBruteForce: 50 * time.Microsecond,
	search.KindKdTree:     5 * time.Microsecond,
	search.KindOctree:     10 * time.Microsecond,
	search.KindGrid:       20 * time.Microsecond,
}

func TestEvaluate_RanksByMedian(t *testing.T) {
	muteLogs(t)
	sc := newScript(defaultCosts)
	rec := &captureRecorder{}
	e, err := NewEvaluator(sc.options(WithRecorder(rec))...)
	require.NoError(t, err)

	report, err := e.Evaluate(lattice(t), KNearest)
	require.NoError(t, err)

	assert.Equal(t, search.KindKdTree, report.Best)
	require.Len(t, report.Records, 4)
	order := []search.Kind{report.Records[0].Kind, report.Records[1].Kind, report.Records[2].Kind, report.Records[3].Kind}
	assert.Equal(t, []search.Kind{search.KindKdTree, search.KindOctree, search.KindGrid, search.KindBruteForce}, order)

	kd, ok := report.Record(search.KindKdTree)
	require.True(t, ok)
	assert.Equal(t, 64*5*time.Microsecond, kd.Median)
	assert.Equal(t, kd.Median, kd.Mean)
	assert.Equal(t, time.Duration(0), kd.StdDev)
	assert.Equal(t, 5*time.Microsecond, kd.PerQuery)
	assert.Equal(t, 3, kd.Passes)
	assert.True(t, kd.Verified)
	assert.Empty(t, report.Excluded)
	assert.Equal(t, 10, report.Workload.K)
	assert.Equal(t, 216, report.Workload.Points)
	assert.True(t, report.Measured())

	require.Len(t, rec.reports, 1)
	assert.Same(t, report, rec.reports[0])
	// 4 candidates x 3 passes x 64 queries.
	assert.Equal(t, 4*3*64, sc.clock.Advances())
}

func TestEvaluate_TiesKeepCandidateOrder(t *testing.T) {
	muteLogs(t)
	sc := newScript(map[search.Kind]time.Duration{})
	cfg := config.EmptySearchConfig()
	cfg.Candidates = []string{"grid", "kdtree", "bruteforce"}
	e, err := NewEvaluator(sc.options(WithConfig(cfg))...)
	require.NoError(t, err)

	report, err := e.Evaluate(lattice(t), RadiusQuery)
	require.NoError(t, err)
	assert.Equal(t, search.KindGrid, report.Best)
	assert.Equal(t, []search.Kind{search.KindGrid, search.KindKdTree, search.KindBruteForce}, e.Candidates())
}

func TestEvaluate_ExcludesFailingAndWrongCandidates(t *testing.T) {
	muteLogs(t)
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = append(logged, format) })

	sc := newScript(defaultCosts)
	sc.buildErr[search.KindOctree] = errors.New("boom")
	sc.corrupt[search.KindKdTree] = true
	e, err := NewEvaluator(sc.options()...)
	require.NoError(t, err)

	for _, qt := range QueryTypes {
		report, err := e.Evaluate(lattice(t), qt)
		require.NoError(t, err)
		assert.Equal(t, search.KindGrid, report.Best, qt)
		assert.Contains(t, report.Excluded[search.KindOctree], "boom")
		assert.Contains(t, report.Excluded[search.KindKdTree], search.ErrResultMismatch.Error())
		_, ok := report.Record(search.KindKdTree)
		assert.False(t, ok)
	}
	assert.NotEmpty(t, logged)
}

func TestEvaluate_VerifyDisabledKeepsWrongCandidate(t *testing.T) {
	muteLogs(t)
	sc := newScript(defaultCosts)
	sc.corrupt[search.KindKdTree] = true
	cfg := config.EmptySearchConfig()
	off := false
	cfg.Verify = &off
	e, err := NewEvaluator(sc.options(WithConfig(cfg))...)
	require.NoError(t, err)

	report, err := e.Evaluate(lattice(t), KNearest)
	require.NoError(t, err)
	assert.Equal(t, search.KindKdTree, report.Best)
	assert.False(t, report.Records[0].Verified)
}

func TestEvaluate_VerifiesWithoutBruteForceCandidate(t *testing.T) {
	muteLogs(t)
	sc := newScript(defaultCosts)
	sc.corrupt[search.KindOctree] = true
	cfg := config.EmptySearchConfig()
	cfg.Candidates = []string{"kdtree", "octree"}
	e, err := NewEvaluator(sc.options(WithConfig(cfg))...)
	require.NoError(t, err)

	report, err := e.Evaluate(lattice(t), KNearest)
	require.NoError(t, err)
	assert.Equal(t, search.KindKdTree, report.Best)
	assert.Contains(t, report.Excluded, search.KindOctree)
}

func TestEvaluate_NoSurvivor(t *testing.T) {
	muteLogs(t)
	sc := newScript(defaultCosts)
	for _, k := range search.AllKinds {
		sc.buildErr[k] = search.ErrStrategyUnavailable
	}
	rec := &captureRecorder{}
	e, err := NewEvaluator(sc.options(WithRecorder(rec))...)
	require.NoError(t, err)

	_, err = e.Evaluate(lattice(t), KNearest)
	assert.ErrorIs(t, err, search.ErrStrategyUnavailable)
	assert.Empty(t, rec.reports)
}

func TestEvaluate_ShortCircuitsSmallClouds(t *testing.T) {
	muteLogs(t)
	sc := newScript(defaultCosts)
	rec := &captureRecorder{}
	e, err := NewEvaluator(sc.options(WithRecorder(rec))...)
	require.NoError(t, err)

	v, err := search.NewView(pointcloud.Uniform(10, 3, 0, 1, 1), nil)
	require.NoError(t, err)
	report, err := e.Evaluate(v, KNearest)
	require.NoError(t, err)

	assert.True(t, report.ShortCircuit)
	assert.Equal(t, search.KindBruteForce, report.Best)
	assert.False(t, report.Measured())
	assert.Zero(t, sc.made)
	assert.Empty(t, rec.reports)
}

func TestEvaluate_UsesHistory(t *testing.T) {
	muteLogs(t)
	sc := newScript(defaultCosts)
	h := &fixedHistory{kind: search.KindOctree, ok: true}
	e, err := NewEvaluator(sc.options(WithHistory(h))...)
	require.NoError(t, err)

	report, err := e.Evaluate(lattice(t), RadiusQuery)
	require.NoError(t, err)
	assert.True(t, report.FromHistory)
	assert.Equal(t, search.KindOctree, report.Best)
	assert.Zero(t, sc.clock.Advances())
	require.Len(t, h.asked, 1)
	assert.Equal(t, Bucket{QueryType: RadiusQuery, Dim: 3, Metric: "euclidean", SizeClass: 7}, h.asked[0])
	assert.Equal(t, 1, sc.made)
}

func TestEvaluate_StoredChoiceThatCannotBuildIsReevaluated(t *testing.T) {
	muteLogs(t)
	sc := newScript(defaultCosts)
	sc.buildErr[search.KindKdTree] = search.ErrStrategyUnavailable
	h := &fixedHistory{kind: search.KindKdTree, ok: true}
	rec := &captureRecorder{}
	e, err := NewEvaluator(sc.options(WithHistory(h), WithRecorder(rec))...)
	require.NoError(t, err)

	report, err := e.Evaluate(lattice(t), KNearest)
	require.NoError(t, err)
	assert.False(t, report.FromHistory)
	assert.True(t, report.Measured())
	assert.Equal(t, search.KindOctree, report.Best)
	assert.Contains(t, report.Excluded, search.KindKdTree)
	require.Len(t, rec.reports, 1)
}

func TestEvaluate_StoredKdTreeWithCustomMetric(t *testing.T) {
	muteLogs(t)
	custom := metric.Func{Label: "custom", Fn: metric.Euclidean.Distance}
	h := &fixedHistory{kind: search.KindKdTree, ok: true}
	e, err := NewEvaluator(WithMetric(custom), WithHistory(h))
	require.NoError(t, err)

	v, err := search.NewView(pointcloud.Uniform(5000, 3, 0, 1, 4), nil)
	require.NoError(t, err)
	report, err := e.Evaluate(v, KNearest)
	require.NoError(t, err)
	assert.False(t, report.FromHistory)
	assert.NotEqual(t, search.KindKdTree, report.Best)
	assert.Contains(t, report.Excluded, search.KindKdTree)
	require.Len(t, h.asked, 1)
	assert.Equal(t, "custom", h.asked[0].Metric)
}

func TestEvaluate_HistoryMissOrFailureBenchmarks(t *testing.T) {
	muteLogs(t)
	for _, h := range []*fixedHistory{
		{ok: false},
		{err: errors.New("db locked")},
		// A stored kind that is not a candidate is ignored.
		{kind: search.KindOctree, ok: true},
	} {
		sc := newScript(defaultCosts)
		cfg := config.EmptySearchConfig()
		cfg.Candidates = []string{"bruteforce", "kdtree"}
		e, err := NewEvaluator(sc.options(WithConfig(cfg), WithHistory(h))...)
		require.NoError(t, err)

		report, err := e.Evaluate(lattice(t), KNearest)
		require.NoError(t, err)
		assert.False(t, report.FromHistory)
		assert.Equal(t, search.KindKdTree, report.Best)
	}
}

func TestEvaluate_RecorderErrorIsNotFatal(t *testing.T) {
	muteLogs(t)
	sc := newScript(defaultCosts)
	e, err := NewEvaluator(sc.options(WithRecorder(&captureRecorder{err: errors.New("disk full")}))...)
	require.NoError(t, err)
	_, err = e.Evaluate(lattice(t), KNearest)
	assert.NoError(t, err)
}

func TestEvaluate_InvalidInput(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)
	_, err = e.Evaluate(nil, KNearest)
	assert.ErrorIs(t, err, search.ErrInvalidInput)
	_, err = e.Evaluate(lattice(t), QueryType(9))
	assert.ErrorIs(t, err, search.ErrInvalidArgument)
}

func TestNewEvaluator_InvalidConfig(t *testing.T) {
	cfg := config.EmptySearchConfig()
	cfg.Candidates = []string{"vptree"}
	_, err := NewEvaluator(WithConfig(cfg))
	assert.Error(t, err)
}

func TestSampling_IsDeterministic(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)
	v := lattice(t)
	a := e.sampleQueries(v)
	b := e.sampleQueries(v)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	for _, q := range a {
		assert.Len(t, q, 3)
	}
}

func TestSampleRadius(t *testing.T) {
	v := lattice(t) // 0..5 on every axis

	e, err := NewEvaluator()
	require.NoError(t, err)
	assert.InDelta(t, 0.02*math.Sqrt(75), e.sampleRadius(v), 1e-12)

	cfg := config.EmptySearchConfig()
	r := 0.5
	cfg.SampleRadius = &r
	e, err = NewEvaluator(WithConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, 0.5, e.sampleRadius(v))
}

func TestWorkloadBucket(t *testing.T) {
	tests := []struct {
		points int
		class  int
	}{
		{0, 0}, {1, 0}, {2, 1}, {3, 1}, {64, 6}, {1000, 9}, {300000, 18},
	}
	for _, tt := range tests {
		b := Workload{QueryType: KNearest, Points: tt.points, Dim: 3}.Bucket()
		if b.SizeClass != tt.class {
			t.Errorf("Bucket(%d).SizeClass = %d, want %d", tt.points, b.SizeClass, tt.class)
		}
		if b.Metric != DefaultMetricName {
			t.Errorf("Bucket(%d).Metric = %q, want %q", tt.points, b.Metric, DefaultMetricName)
		}
	}
	b := Workload{QueryType: KNearest, Points: 10, Dim: 3, Metric: "manhattan"}.Bucket()
	assert.Equal(t, "manhattan", b.Metric)
}

func TestQueryTypeText(t *testing.T) {
	for _, qt := range QueryTypes {
		b, err := qt.MarshalText()
		require.NoError(t, err)
		var back QueryType
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, qt, back)
	}
	_, err := ParseQueryType("range")
	assert.ErrorIs(t, err, search.ErrInvalidArgument)
}
