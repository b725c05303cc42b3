// Package clustering groups points by density using neighbourhoods from a
// search.Searcher.
package clustering

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/search"
)

const (
	// DefaultEps is the default neighbourhood radius.
	DefaultEps = 0.6
	// DefaultMinPts is the default minimum neighbourhood size (self included)
	// for a core point.
	DefaultMinPts = 12

	// Noise labels points that belong to no cluster.
	Noise = -1
	// Unlabelled marks ids that were not part of the clustered set.
	Unlabelled = 0
)

// Params contains parameters for DBSCAN.
type Params struct {
	Eps    float64 // Neighbourhood radius
	MinPts int     // Minimum points, self included, for a core point
}

// DefaultParams returns the default DBSCAN parameters.
func DefaultParams() Params {
	return Params{Eps: DefaultEps, MinPts: DefaultMinPts}
}

// Validate reports parameters DBSCAN cannot run with.
func (p Params) Validate() error {
	if !(p.Eps > 0) || math.IsInf(p.Eps, 1) {
		return fmt.Errorf("%w: eps %v", search.ErrInvalidArgument, p.Eps)
	}
	if p.MinPts < 1 {
		return fmt.Errorf("%w: min points %d", search.ErrInvalidArgument, p.MinPts)
	}
	return nil
}

// Cluster is one dense group of points with summary metrics.
type Cluster struct {
	ID          int
	Members     []int // ascending point ids
	Centroid    [3]float64
	Min, Max    [3]float64
	HeightP95   float64
	Density     float64 // points per unit volume of the bounding box, 0 when flat
	AspectRatio float64 // longer / shorter horizontal extent, 0 when degenerate
}

// Size returns the number of member points.
func (c Cluster) Size() int { return len(c.Members) }

// Result holds the clusters and a label per cloud position: a cluster ID
// (1-based), Noise, or Unlabelled for ids outside the clustered set.
type Result struct {
	Clusters []Cluster
	Labels   []int
	Noise    int
}

// DBSCAN clusters ids of cloud (every point when nil) using s for region
// queries. s must index the cloud; neighbours outside ids are ignored.
// Points with non-finite coordinates are noise.
func DBSCAN(s search.Searcher, cloud *pointcloud.Cloud, ids []int, params Params) (Result, error) {
	if err := params.Validate(); err != nil {
		return Result{}, err
	}
	n := cloud.Len()
	labels := make([]int, n) // Unlabelled, Noise, or cluster ID
	member := make([]bool, n)
	if ids == nil {
		for i := range member {
			member[i] = true
		}
	} else {
		for _, id := range ids {
			if id < 0 || id >= n {
				return Result{}, fmt.Errorf("%w: id %d outside cloud of %d", search.ErrInvalidInput, id, n)
			}
			member[id] = true
		}
	}
	visited := make([]bool, n)

	region := func(id int) ([]int, error) {
		ns, err := s.Radius(cloud.Point(id), params.Eps, 0)
		if err != nil {
			return nil, err
		}
		out := make([]int, 0, len(ns))
		for _, nb := range ns {
			if nb.ID >= 0 && nb.ID < n && member[nb.ID] {
				out = append(out, nb.ID)
			}
		}
		return out, nil
	}

	clusterID := 0
	for i := 0; i < n; i++ {
		if !member[i] || visited[i] {
			continue
		}
		visited[i] = true
		if !cloud.IsFinite(i) {
			labels[i] = Noise
			continue
		}
		neighbours, err := region(i)
		if err != nil {
			return Result{}, err
		}
		if len(neighbours) < params.MinPts {
			labels[i] = Noise
			continue
		}

		clusterID++
		labels[i] = clusterID
		for j := 0; j < len(neighbours); j++ {
			idx := neighbours[j]
			if labels[idx] == Noise {
				labels[idx] = clusterID // noise becomes a border point
			}
			if visited[idx] {
				continue
			}
			visited[idx] = true
			labels[idx] = clusterID
			more, err := region(idx)
			if err != nil {
				return Result{}, err
			}
			if len(more) >= params.MinPts {
				neighbours = append(neighbours, more...)
			}
		}
	}

	return buildResult(cloud, labels, clusterID), nil
}

func buildResult(cloud *pointcloud.Cloud, labels []int, maxID int) Result {
	members := make([][]int, maxID+1)
	noise := 0
	for id, l := range labels {
		switch {
		case l > 0:
			members[l] = append(members[l], id)
		case l == Noise:
			noise++
		}
	}
	clusters := make([]Cluster, 0, maxID)
	for cid := 1; cid <= maxID; cid++ {
		if len(members[cid]) == 0 {
			continue
		}
		clusters = append(clusters, computeMetrics(cloud, cid, members[cid]))
	}
	return Result{Clusters: clusters, Labels: labels, Noise: noise}
}

func computeMetrics(cloud *pointcloud.Cloud, cid int, ids []int) Cluster {
	c := Cluster{ID: cid, Members: ids}
	for a := range 3 {
		c.Min[a] = math.Inf(1)
		c.Max[a] = math.Inf(-1)
	}
	heights := make([]float64, len(ids))
	for i, id := range ids {
		x, y, z := cloud.XYZ(id)
		for a, v := range [3]float64{x, y, z} {
			c.Centroid[a] += v
			c.Min[a] = min(c.Min[a], v)
			c.Max[a] = max(c.Max[a], v)
		}
		heights[i] = z
	}
	for a := range 3 {
		c.Centroid[a] /= float64(len(ids))
	}

	slices.Sort(heights)
	p95 := min(int(0.95*float64(len(heights))), len(heights)-1)
	c.HeightP95 = heights[p95]

	length := c.Max[0] - c.Min[0]
	width := c.Max[1] - c.Min[1]
	height := c.Max[2] - c.Min[2]
	if vol := length * width * height; vol > 0 {
		c.Density = float64(len(ids)) / vol
	}
	if length > 0 && width > 0 {
		c.AspectRatio = max(length, width) / min(length, width)
	}
	return c
}

// sortClusters orders clusters by centroid (x, then y, then z) so repeated
// runs over the same data give identical output.
func sortClusters(cs []Cluster) {
	slices.SortStableFunc(cs, func(a, b Cluster) int {
		for i := range 3 {
			if c := cmp.Compare(a.Centroid[i], b.Centroid[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
