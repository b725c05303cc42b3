package clustering

import (
	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/search"
)

// Clusterer is implemented by density clustering algorithms.
type Clusterer interface {
	Cluster(s search.Searcher, cloud *pointcloud.Cloud, ids []int) (Result, error)
	GetParams() Params
	SetParams(Params)
}

// DBSCANClusterer implements Clusterer with DBSCAN and returns clusters in
// deterministic centroid order.
type DBSCANClusterer struct {
	params Params
}

// NewDBSCANClusterer creates a DBSCAN clusterer with the given parameters.
func NewDBSCANClusterer(eps float64, minPts int) *DBSCANClusterer {
	return &DBSCANClusterer{params: Params{Eps: eps, MinPts: minPts}}
}

// NewDefaultDBSCANClusterer creates a DBSCAN clusterer with default parameters.
func NewDefaultDBSCANClusterer() *DBSCANClusterer {
	p := DefaultParams()
	return NewDBSCANClusterer(p.Eps, p.MinPts)
}

// Cluster runs DBSCAN and sorts the clusters by centroid.
func (c *DBSCANClusterer) Cluster(s search.Searcher, cloud *pointcloud.Cloud, ids []int) (Result, error) {
	res, err := DBSCAN(s, cloud, ids, c.params)
	if err != nil {
		return Result{}, err
	}
	sortClusters(res.Clusters)
	return res, nil
}

// GetParams returns the current clustering parameters.
func (c *DBSCANClusterer) GetParams() Params { return c.params }

// SetParams updates the clustering parameters.
func (c *DBSCANClusterer) SetParams(p Params) { c.params = p }

var _ Clusterer = (*DBSCANClusterer)(nil)
