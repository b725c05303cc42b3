package filters

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cloudsearch/internal/monitoring"
	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/search"
)

// ErrBadParameter is returned for filter settings that cannot select anything.
var ErrBadParameter = errors.New("filters: bad parameter")

// RadiusOutlierRemoval drops points with fewer than MinNeighbors other
// points within Radius. The searcher must index the filtered cloud.
type RadiusOutlierRemoval struct {
	Radius       float64
	MinNeighbors int
}

// Filter applies the radius test to ids of cloud (every point when nil).
func (f RadiusOutlierRemoval) Filter(ctx context.Context, s search.Searcher, cloud *pointcloud.Cloud, ids []int) (Result, error) {
	if f.Radius <= 0 || math.IsNaN(f.Radius) {
		return Result{}, fmt.Errorf("%w: radius %v", ErrBadParameter, f.Radius)
	}
	if f.MinNeighbors < 0 {
		return Result{}, fmt.Errorf("%w: min neighbours %d", ErrBadParameter, f.MinNeighbors)
	}
	ids = allIDs(cloud, ids)
	res := newResult(len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if !cloud.IsFinite(id) {
			res.remove(id)
			continue
		}
		// One slot more than needed in case the point finds itself.
		ns, err := s.Radius(cloud.Point(id), f.Radius, f.MinNeighbors+1)
		if err != nil {
			return Result{}, err
		}
		if countOthers(ns, id) >= f.MinNeighbors {
			res.keep(id)
		} else {
			res.remove(id)
		}
	}
	monitoring.Debugf("[filters] radius outlier removal r=%.3f min=%d kept %d of %d",
		f.Radius, f.MinNeighbors, len(res.Kept), len(ids))
	return res, nil
}

// StatisticalOutlierRemoval computes each point's mean distance to its MeanK
// nearest neighbours and drops points whose mean exceeds the population
// mean plus StdMul standard deviations.
type StatisticalOutlierRemoval struct {
	MeanK  int
	StdMul float64
}

// Filter applies the statistical test to ids of cloud (every point when nil).
func (f StatisticalOutlierRemoval) Filter(ctx context.Context, s search.Searcher, cloud *pointcloud.Cloud, ids []int) (Result, error) {
	if f.MeanK <= 0 {
		return Result{}, fmt.Errorf("%w: mean k %d", ErrBadParameter, f.MeanK)
	}
	ids = allIDs(cloud, ids)
	means := make([]float64, len(ids))
	valid := make([]float64, 0, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		means[i] = math.NaN()
		if !cloud.IsFinite(id) {
			continue
		}
		ns, err := s.NearestK(cloud.Point(id), f.MeanK+1)
		if err != nil {
			return Result{}, err
		}
		sum, n := 0.0, 0
		for _, nb := range ns {
			if nb.ID == id || n == f.MeanK {
				continue
			}
			sum += nb.Distance
			n++
		}
		if n == 0 {
			continue
		}
		means[i] = sum / float64(n)
		valid = append(valid, means[i])
	}

	res := newResult(len(ids))
	if len(valid) == 0 {
		for _, id := range ids {
			res.remove(id)
		}
		return res, nil
	}
	mean, std := stat.MeanStdDev(valid, nil)
	if len(valid) == 1 {
		std = 0
	}
	threshold := mean + f.StdMul*std
	for i, id := range ids {
		if !math.IsNaN(means[i]) && means[i] <= threshold {
			res.keep(id)
		} else {
			res.remove(id)
		}
	}
	monitoring.Debugf("[filters] statistical outlier removal k=%d mean=%.4f std=%.4f threshold=%.4f kept %d of %d",
		f.MeanK, mean, std, threshold, len(res.Kept), len(ids))
	return res, nil
}

func countOthers(ns []search.Neighbor, self int) int {
	n := 0
	for _, nb := range ns {
		if nb.ID != self {
			n++
		}
	}
	return n
}
