package search

import (
	"fmt"

	"github.com/banshee-data/cloudsearch/internal/pointcloud/metric"
)

// BruteForce answers queries with a linear scan over the view. It works with
// any metric and dimension, serves as the small-cloud fallback, and is the
// ground truth other strategies are checked against.
type BruteForce struct {
	metric metric.Metric
	view   *View
}

// NewBruteForce creates a brute-force strategy. A nil metric selects Euclidean.
func NewBruteForce(m metric.Metric) *BruteForce {
	return &BruteForce{metric: defaultMetric(m)}
}

// Kind returns KindBruteForce.
func (b *BruteForce) Kind() Kind { return KindBruteForce }

// Build records the view. There is no structure to construct.
func (b *BruteForce) Build(v *View) error {
	if v == nil || v.Len() == 0 {
		return fmt.Errorf("%w: empty view", ErrInvalidInput)
	}
	b.view = v
	return nil
}

// NearestK implements Searcher.
func (b *BruteForce) NearestK(q []float64, k int) ([]Neighbor, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	if err := prepareQuery(b.view, q); err != nil {
		return nil, err
	}
	h := newKHeap(k)
	cloud := b.view.Cloud()
	for _, id := range b.view.IDs() {
		d := b.metric.Distance(q, cloud.Point(id))
		if h.admits(d) {
			h.push(Neighbor{ID: id, Distance: d})
		}
	}
	return h.sorted(), nil
}

// Radius implements Searcher.
func (b *BruteForce) Radius(q []float64, r float64, maxResults int) ([]Neighbor, error) {
	if err := ValidateRadius(r); err != nil {
		return nil, err
	}
	if err := prepareQuery(b.view, q); err != nil {
		return nil, err
	}
	var out []Neighbor
	cloud := b.view.Cloud()
	for _, id := range b.view.IDs() {
		if d := b.metric.Distance(q, cloud.Point(id)); d <= r {
			out = append(out, Neighbor{ID: id, Distance: d})
		}
	}
	return finishRadius(out, maxResults), nil
}

var _ Strategy = (*BruteForce)(nil)
