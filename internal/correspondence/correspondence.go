// Package correspondence pairs points of a source cloud with their nearest
// neighbours in a target cloud, the matching step of ICP-style registration.
package correspondence

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/search"
)

// Correspondence pairs a source id with its nearest target id.
type Correspondence struct {
	Source   int
	Target   int
	Distance float64
}

// Estimator finds correspondences. Pairs farther apart than MaxDistance are
// dropped; a non-positive MaxDistance keeps every pair.
type Estimator struct {
	MaxDistance float64
}

func (e Estimator) accept(d float64) bool {
	return e.MaxDistance <= 0 || d <= e.MaxDistance
}

// Determine matches each id of source (every point when nil) to its nearest
// point in target. Source points with non-finite coordinates are skipped.
// The result is in source order.
func (e Estimator) Determine(ctx context.Context, source *pointcloud.Cloud, ids []int, target search.Searcher) ([]Correspondence, error) {
	if math.IsNaN(e.MaxDistance) {
		return nil, fmt.Errorf("%w: max distance NaN", search.ErrInvalidArgument)
	}
	if ids == nil {
		ids = make([]int, source.Len())
		for i := range ids {
			ids[i] = i
		}
	}
	out := make([]Correspondence, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if id < 0 || id >= source.Len() {
			return nil, fmt.Errorf("%w: source id %d outside cloud of %d", search.ErrInvalidInput, id, source.Len())
		}
		if !source.IsFinite(id) {
			continue
		}
		ns, err := target.NearestK(source.Point(id), 1)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", id, err)
		}
		if len(ns) == 0 || !e.accept(ns[0].Distance) {
			continue
		}
		out = append(out, Correspondence{Source: id, Target: ns[0].ID, Distance: ns[0].Distance})
	}
	return out, nil
}

// DetermineReciprocal keeps only pairs that are mutual nearest neighbours:
// the target point's nearest source point must be the pair's source.
// sourceIndex must index source and targetIndex must index target.
func (e Estimator) DetermineReciprocal(ctx context.Context,
	source *pointcloud.Cloud, sourceIndex search.Searcher,
	target *pointcloud.Cloud, targetIndex search.Searcher) ([]Correspondence, error) {

	forward, err := e.Determine(ctx, source, nil, targetIndex)
	if err != nil {
		return nil, err
	}
	back := make(map[int]int, len(forward))
	out := forward[:0]
	for _, c := range forward {
		nearest, ok := back[c.Target]
		if !ok {
			ns, err := sourceIndex.NearestK(target.Point(c.Target), 1)
			if err != nil {
				return nil, fmt.Errorf("target %d: %w", c.Target, err)
			}
			nearest = -1
			if len(ns) > 0 {
				nearest = ns[0].ID
			}
			back[c.Target] = nearest
		}
		if nearest == c.Source {
			out = append(out, c)
		}
	}
	return out, nil
}

// Summary describes a correspondence set.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	RMS    float64
	Max    float64
}

// Summarize returns distance statistics for cs.
func Summarize(cs []Correspondence) Summary {
	if len(cs) == 0 {
		return Summary{}
	}
	ds := make([]float64, len(cs))
	sq := 0.0
	s := Summary{Count: len(cs)}
	for i, c := range cs {
		ds[i] = c.Distance
		sq += c.Distance * c.Distance
		s.Max = max(s.Max, c.Distance)
	}
	s.Mean, s.StdDev = stat.MeanStdDev(ds, nil)
	if len(cs) == 1 {
		s.StdDev = 0
	}
	s.RMS = math.Sqrt(sq / float64(len(cs)))
	return s
}
