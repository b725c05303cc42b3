package autotune

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cloudsearch/internal/config"
	"github.com/banshee-data/cloudsearch/internal/monitoring"
	"github.com/banshee-data/cloudsearch/internal/search"
	"github.com/banshee-data/cloudsearch/internal/timeutil"
)

// distanceTolerance is the largest distance difference accepted when
// comparing a candidate with brute force.
const distanceTolerance = 1e-9

// Evaluator benchmarks candidate strategies on a view.
type Evaluator struct {
	cfg        *config.SearchConfig
	opts       search.Options
	candidates []search.Kind
	clock      timeutil.Clock
	factory    Factory
	recorder   Recorder
	history    History
}

// NewEvaluator creates an evaluator. The configuration is validated.
func NewEvaluator(opts ...Option) (*Evaluator, error) {
	return newEvaluator(newSettings(opts))
}

func newEvaluator(s settings) (*Evaluator, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search config: %w", err)
	}
	sopts, err := s.strategyOptions()
	if err != nil {
		return nil, err
	}
	var kinds []search.Kind
	for _, name := range s.cfg.GetCandidates() {
		k, err := search.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	return &Evaluator{
		cfg:        s.cfg,
		opts:       sopts,
		candidates: kinds,
		clock:      s.clock,
		factory:    s.factory,
		recorder:   s.recorder,
		history:    s.history,
	}, nil
}

// Candidates returns the kinds considered, in evaluation order.
func (e *Evaluator) Candidates() []search.Kind { return slices.Clone(e.candidates) }

// Options returns the strategy build options.
func (e *Evaluator) Options() search.Options { return e.opts }

// Evaluate benchmarks every candidate on v for the given query type and
// returns the ranked report.
func (e *Evaluator) Evaluate(v *search.View, qt QueryType) (*Report, error) {
	report, _, err := e.evaluate(v, qt)
	return report, err
}

// evaluate also returns the strategies built along the way so the caller can
// reuse the winner.
func (e *Evaluator) evaluate(v *search.View, qt QueryType) (*Report, map[search.Kind]search.Strategy, error) {
	if v == nil || v.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: nothing to evaluate", search.ErrInvalidInput)
	}
	if qt != KNearest && qt != RadiusQuery {
		return nil, nil, fmt.Errorf("%w: %v", search.ErrInvalidArgument, qt)
	}

	w := Workload{QueryType: qt, Points: v.Len(), Dim: v.Dim(), Metric: e.opts.Metric.Name()}
	switch qt {
	case KNearest:
		w.K = e.cfg.GetSampleK()
	case RadiusQuery:
		w.Radius = e.sampleRadius(v)
	}
	report := &Report{Workload: w, CreatedAt: e.clock.Now()}

	if v.Len() < e.cfg.GetBruteForceThreshold() {
		report.Best = search.KindBruteForce
		report.ShortCircuit = true
		monitoring.Debugf("[autotune] %d points below threshold %d, using %s for %s",
			v.Len(), e.cfg.GetBruteForceThreshold(), report.Best, qt)
		return report, nil, nil
	}

	if kind, ok := e.fromHistory(w); ok {
		s, err := e.build(kind, v)
		if err == nil {
			report.Best = kind
			report.FromHistory = true
			monitoring.Logf("[autotune] reusing stored choice %s for %s on %d points", kind, qt, v.Len())
			return report, map[search.Kind]search.Strategy{kind: s}, nil
		}
		monitoring.Logf("[autotune] stored choice %s cannot serve %s here, re-evaluating: %v", kind, qt, err)
	}

	queries := e.sampleQueries(v)
	built := make(map[search.Kind]search.Strategy, len(e.candidates))
	results := make(map[search.Kind][][]search.Neighbor, len(e.candidates))
	report.Excluded = make(map[search.Kind]string)
	exclude := func(kind search.Kind, err error) {
		report.Excluded[kind] = err.Error()
		monitoring.Logf("[autotune] excluding %s for %s: %v", kind, qt, err)
	}

	for _, kind := range e.candidates {
		rec, out, s, err := e.benchmark(kind, v, w, queries)
		if err != nil {
			exclude(kind, err)
			continue
		}
		built[kind] = s
		results[kind] = out
		report.Records = append(report.Records, rec)
	}

	if e.cfg.GetVerify() && len(report.Records) > 0 {
		truth, err := e.groundTruth(v, w, queries, results)
		if err != nil {
			return nil, nil, err
		}
		kept := report.Records[:0]
		for _, rec := range report.Records {
			if err := compareResults(truth, results[rec.Kind]); err != nil {
				exclude(rec.Kind, err)
				delete(built, rec.Kind)
				continue
			}
			rec.Verified = true
			kept = append(kept, rec)
		}
		report.Records = kept
	}

	if len(report.Records) == 0 {
		return nil, nil, fmt.Errorf("%w: no candidate survived evaluation for %s", search.ErrStrategyUnavailable, qt)
	}

	// Stable sort keeps candidate order among equal medians.
	slices.SortStableFunc(report.Records, func(a, b Record) int {
		return cmp.Compare(a.Median, b.Median)
	})
	report.Best = report.Records[0].Kind
	monitoring.Logf("[autotune] selected %s for %s on %d points (median %v per query)",
		report.Best, qt, v.Len(), report.Records[0].PerQuery)

	if e.recorder != nil {
		if err := e.recorder.Save(report); err != nil {
			monitoring.Logf("[autotune] failed to record report: %v", err)
		}
	}
	return report, built, nil
}

func (e *Evaluator) fromHistory(w Workload) (search.Kind, bool) {
	if e.history == nil {
		return 0, false
	}
	kind, ok, err := e.history.Best(w.Bucket(), e.cfg.GetHistoryMaxAge())
	if err != nil {
		monitoring.Logf("[autotune] history lookup failed: %v", err)
		return 0, false
	}
	if !ok || !slices.Contains(e.candidates, kind) {
		return 0, false
	}
	return kind, true
}

// build constructs and builds one candidate without timing it.
func (e *Evaluator) build(kind search.Kind, v *search.View) (search.Strategy, error) {
	s, err := e.factory(kind, e.opts)
	if err != nil {
		return nil, err
	}
	if err := s.Build(v); err != nil {
		return nil, err
	}
	return s, nil
}

// benchmark builds one candidate and times Repetitions passes over the
// sample. The results of the first pass are returned for verification.
func (e *Evaluator) benchmark(kind search.Kind, v *search.View, w Workload, queries [][]float64) (Record, [][]search.Neighbor, search.Strategy, error) {
	s, err := e.factory(kind, e.opts)
	if err != nil {
		return Record{}, nil, nil, err
	}
	start := e.clock.Now()
	if err := s.Build(v); err != nil {
		return Record{}, nil, nil, err
	}
	rec := Record{Kind: kind, Workload: w, Build: e.clock.Since(start)}

	reps := e.cfg.GetRepetitions()
	passes := make([]float64, reps)
	var first [][]search.Neighbor
	for rep := 0; rep < reps; rep++ {
		out := make([][]search.Neighbor, len(queries))
		start := e.clock.Now()
		for i, q := range queries {
			ns, err := runQuery(s, w, q)
			if err != nil {
				return Record{}, nil, nil, err
			}
			out[i] = ns
		}
		passes[rep] = float64(e.clock.Since(start))
		if rep == 0 {
			first = out
		}
	}

	rec.Passes = reps
	rec.Median = time.Duration(median(passes))
	mean, std := stat.MeanStdDev(passes, nil)
	if reps < 2 || math.IsNaN(std) {
		std = 0
	}
	rec.Mean = time.Duration(mean)
	rec.StdDev = time.Duration(std)
	rec.PerQuery = rec.Median / time.Duration(len(queries))
	monitoring.Debugf("[autotune] %s %s: build %v, median %v, stddev %v over %d passes",
		kind, w.QueryType, rec.Build, rec.Median, rec.StdDev, reps)
	return rec, first, s, nil
}

func runQuery(s search.Searcher, w Workload, q []float64) ([]search.Neighbor, error) {
	if w.QueryType == RadiusQuery {
		return s.Radius(q, w.Radius, 0)
	}
	return s.NearestK(q, w.K)
}

// groundTruth returns brute-force results for the sample, reusing the brute
// force candidate's output when it was benchmarked.
func (e *Evaluator) groundTruth(v *search.View, w Workload, queries [][]float64, results map[search.Kind][][]search.Neighbor) ([][]search.Neighbor, error) {
	if out, ok := results[search.KindBruteForce]; ok {
		return out, nil
	}
	ref := search.NewBruteForce(e.opts.Metric)
	if err := ref.Build(v); err != nil {
		return nil, err
	}
	out := make([][]search.Neighbor, len(queries))
	for i, q := range queries {
		ns, err := runQuery(ref, w, q)
		if err != nil {
			return nil, err
		}
		out[i] = ns
	}
	return out, nil
}

// compareResults checks that got matches want query by query. Ids may differ
// only where distances tie, so distances are compared.
func compareResults(want, got [][]search.Neighbor) error {
	for i := range want {
		if len(want[i]) != len(got[i]) {
			return fmt.Errorf("%w: query %d returned %d neighbours, want %d",
				search.ErrResultMismatch, i, len(got[i]), len(want[i]))
		}
		for j := range want[i] {
			if math.Abs(want[i][j].Distance-got[i][j].Distance) > distanceTolerance {
				return fmt.Errorf("%w: query %d rank %d at distance %g, want %g",
					search.ErrResultMismatch, i, j, got[i][j].Distance, want[i][j].Distance)
			}
		}
	}
	return nil
}

// sampleQueries draws query points from the searchable set. The draw depends
// only on the seed and the view size.
func (e *Evaluator) sampleQueries(v *search.View) [][]float64 {
	rng := rand.New(rand.NewPCG(e.cfg.GetSeed(), uint64(v.Len())))
	ids := v.IDs()
	out := make([][]float64, e.cfg.GetSampleQueries())
	for i := range out {
		out[i] = slices.Clone(v.Point(ids[rng.IntN(len(ids))]))
	}
	return out
}

// sampleRadius returns the configured radius, or a fraction of the bounding
// box diagonal when none is set.
func (e *Evaluator) sampleRadius(v *search.View) float64 {
	if r := e.cfg.GetSampleRadius(); r > 0 {
		return r
	}
	lo, hi := v.Bounds()
	var sum float64
	for d := range lo {
		sum += (hi[d] - lo[d]) * (hi[d] - lo[d])
	}
	return e.cfg.GetSampleRadiusFraction() * math.Sqrt(sum)
}

// median returns the lower median of xs.
func median(xs []float64) float64 {
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
