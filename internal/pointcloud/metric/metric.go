// Package metric provides the pluggable dissimilarity functions used by the
// search strategies.
//
// Tree and grid strategies prune with a lower bound on the distance from a
// query to an axis-aligned box, so they need a Bounded metric. Brute force
// accepts any Metric.
package metric

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Metric computes a scalar dissimilarity between two points of equal dimension.
type Metric interface {
	Name() string
	Distance(a, b []float64) float64
}

// Bounded metrics can lower-bound the distance from q to any point inside
// the box [lo, hi]. The bound must be 0 when q lies inside the box.
type Bounded interface {
	Metric
	BoxDistance(q, lo, hi []float64) float64
}

// Minkowski is the L_p distance for p >= 1. P = +Inf gives the Chebyshev distance.
type Minkowski struct {
	P float64
}

// Presets.
var (
	Euclidean Bounded = Minkowski{P: 2}
	Manhattan Bounded = Minkowski{P: 1}
	Chebyshev Bounded = Minkowski{P: math.Inf(1)}
)

// Default is the metric used when none is configured.
var Default = Euclidean

// Name returns the configuration name of the metric.
func (m Minkowski) Name() string {
	switch {
	case m.P == 2:
		return "euclidean"
	case m.P == 1:
		return "manhattan"
	case math.IsInf(m.P, 1):
		return "chebyshev"
	default:
		return fmt.Sprintf("minkowski(%g)", m.P)
	}
}

// Distance returns the L_p distance between a and b.
// The L2 case sums squares directly so it rounds the same way as BoxDistance.
func (m Minkowski) Distance(a, b []float64) float64 {
	if m.P != 2 {
		return floats.Distance(a, b, m.P)
	}
	var sum float64
	for i, v := range a {
		d := v - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// BoxDistance returns the L_p norm of the per-axis gap between q and [lo, hi].
func (m Minkowski) BoxDistance(q, lo, hi []float64) float64 {
	var acc float64
	for d, v := range q {
		var gap float64
		switch {
		case v < lo[d]:
			gap = lo[d] - v
		case v > hi[d]:
			gap = v - hi[d]
		default:
			continue
		}
		switch {
		case m.P == 2:
			acc += gap * gap
		case m.P == 1:
			acc += gap
		case math.IsInf(m.P, 1):
			if gap > acc {
				acc = gap
			}
		default:
			acc += math.Pow(gap, m.P)
		}
	}
	switch {
	case m.P == 2:
		return math.Sqrt(acc)
	case m.P == 1, math.IsInf(m.P, 1):
		return acc
	default:
		return math.Pow(acc, 1/m.P)
	}
}

// ByName resolves a configuration name to a metric.
func ByName(name string) (Metric, error) {
	switch name {
	case "", "euclidean":
		return Euclidean, nil
	case "manhattan":
		return Manhattan, nil
	case "chebyshev":
		return Chebyshev, nil
	default:
		return nil, fmt.Errorf("unknown metric %q", name)
	}
}

// Func adapts a plain function to Metric. It is not Bounded, so only brute
// force can search with it.
type Func struct {
	Label string
	Fn    func(a, b []float64) float64
}

// Name returns the label.
func (f Func) Name() string { return f.Label }

// Distance calls Fn.
func (f Func) Distance(a, b []float64) float64 { return f.Fn(a, b) }
