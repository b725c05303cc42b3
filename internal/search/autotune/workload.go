package autotune

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/banshee-data/cloudsearch/internal/search"
)

// QueryType distinguishes the two query families a strategy is tuned for.
type QueryType int

const (
	KNearest QueryType = iota
	RadiusQuery
)

// QueryTypes lists every query type.
var QueryTypes = []QueryType{KNearest, RadiusQuery}

func (t QueryType) String() string {
	switch t {
	case KNearest:
		return "knn"
	case RadiusQuery:
		return "radius"
	default:
		return fmt.Sprintf("QueryType(%d)", int(t))
	}
}

// ParseQueryType resolves "knn" or "radius".
func ParseQueryType(s string) (QueryType, error) {
	for _, t := range QueryTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown query type %q", search.ErrInvalidArgument, s)
}

// MarshalText encodes the query type by name.
func (t QueryType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes a query type name.
func (t *QueryType) UnmarshalText(b []byte) error {
	parsed, err := ParseQueryType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Workload describes what was benchmarked.
type Workload struct {
	QueryType QueryType `json:"query_type"`
	Points    int       `json:"points"`
	Dim       int       `json:"dim"`
	Metric    string    `json:"metric,omitempty"`
	K         int       `json:"k,omitempty"`
	Radius    float64   `json:"radius,omitempty"`
}

// Bucket groups workloads that should share a strategy choice: same query
// type, dimension and metric, and point counts within the same power of two.
type Bucket struct {
	QueryType QueryType `json:"query_type"`
	Dim       int       `json:"dim"`
	Metric    string    `json:"metric"`
	SizeClass int       `json:"size_class"` // floor(log2(points))
}

// DefaultMetricName is the metric assumed for workloads that do not name one.
const DefaultMetricName = "euclidean"

// MetricName returns name, or DefaultMetricName when it is empty.
func MetricName(name string) string {
	if name == "" {
		return DefaultMetricName
	}
	return name
}

// Bucket returns the history lookup key of the workload.
func (w Workload) Bucket() Bucket {
	class := 0
	if w.Points > 0 {
		class = bits.Len(uint(w.Points)) - 1
	}
	return Bucket{QueryType: w.QueryType, Dim: w.Dim, Metric: MetricName(w.Metric), SizeClass: class}
}

// Record holds the timing statistics of one candidate.
type Record struct {
	Kind     search.Kind `json:"strategy"`
	Workload Workload    `json:"workload"`

	Build    time.Duration `json:"build_ns"`
	Median   time.Duration `json:"median_ns"` // per pass over the whole sample
	Mean     time.Duration `json:"mean_ns"`
	StdDev   time.Duration `json:"stddev_ns"`
	PerQuery time.Duration `json:"per_query_ns"` // Median divided by the sample size
	Passes   int           `json:"passes"`

	// Verified is set when the results were checked against brute force.
	Verified bool `json:"verified"`
}

// Report is the outcome of one evaluation.
type Report struct {
	Workload Workload    `json:"workload"`
	Best     search.Kind `json:"best"`
	// Records holds the surviving candidates, fastest first.
	Records []Record `json:"records,omitempty"`
	// Excluded maps candidates that failed to build, query or verify to the reason.
	Excluded map[search.Kind]string `json:"excluded,omitempty"`

	// ShortCircuit is set when the cloud was too small to be worth timing.
	ShortCircuit bool `json:"short_circuit,omitempty"`
	// FromHistory is set when the choice came from stored results.
	FromHistory bool      `json:"from_history,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record returns the record of the given kind, if it survived.
func (r *Report) Record(kind search.Kind) (Record, bool) {
	for _, rec := range r.Records {
		if rec.Kind == kind {
			return rec, true
		}
	}
	return Record{}, false
}

// Measured reports whether the report carries fresh timings.
func (r *Report) Measured() bool {
	return !r.ShortCircuit && !r.FromHistory && len(r.Records) > 0
}

// Recorder persists evaluation reports. perfstore.Store implements it.
type Recorder interface {
	Save(r *Report) error
}

// History returns the best known strategy for a workload bucket, ignoring
// records older than maxAge. ok is false when nothing usable is stored.
type History interface {
	Best(b Bucket, maxAge time.Duration) (kind search.Kind, ok bool, err error)
}
