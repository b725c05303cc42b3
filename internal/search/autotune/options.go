package autotune

import (
	"github.com/banshee-data/cloudsearch/internal/config"
	"github.com/banshee-data/cloudsearch/internal/pointcloud/metric"
	"github.com/banshee-data/cloudsearch/internal/search"
	"github.com/banshee-data/cloudsearch/internal/timeutil"
)

// Factory constructs an unbuilt strategy. search.New is the default.
type Factory func(kind search.Kind, opts search.Options) (search.Strategy, error)

// Option configures an Evaluator or a Search.
type Option func(*settings)

type settings struct {
	cfg       *config.SearchConfig
	metric    metric.Metric
	clock     timeutil.Clock
	recorder  Recorder
	history   History
	factory   Factory
	evaluator *Evaluator
}

func newSettings(opts []Option) settings {
	s := settings{
		cfg:     config.EmptySearchConfig(),
		clock:   timeutil.RealClock{},
		factory: search.New,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithConfig sets the search configuration. Nil keeps the defaults.
func WithConfig(cfg *config.SearchConfig) Option {
	return func(s *settings) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithMetric overrides the configured metric.
func WithMetric(m metric.Metric) Option {
	return func(s *settings) { s.metric = m }
}

// WithClock sets the clock used to time benchmark passes.
func WithClock(c timeutil.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithRecorder forwards every measured report to r.
func WithRecorder(r Recorder) Option {
	return func(s *settings) { s.recorder = r }
}

// WithHistory consults h before benchmarking.
func WithHistory(h History) Option {
	return func(s *settings) { s.history = h }
}

// WithFactory replaces the strategy constructor.
func WithFactory(f Factory) Option {
	return func(s *settings) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithEvaluator makes a Search use e instead of building its own.
// Evaluator-level options passed alongside it are ignored.
func WithEvaluator(e *Evaluator) Option {
	return func(s *settings) { s.evaluator = e }
}

// strategyOptions resolves the build options from the configuration and the
// metric override.
func (s settings) strategyOptions() (search.Options, error) {
	opts, err := search.OptionsFromConfig(s.cfg)
	if err != nil {
		return search.Options{}, err
	}
	if s.metric != nil {
		opts.Metric = s.metric
	}
	return opts, nil
}
