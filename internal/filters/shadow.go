package filters

import (
	"fmt"
	"math"

	"github.com/banshee-data/cloudsearch/internal/features"
	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/search"
)

// ShadowPoints removes veil points: returns whose estimated surface is seen
// almost edge-on from Viewpoint. A point is kept when the absolute cosine
// between its normal and the viewing ray is at least Threshold.
type ShadowPoints struct {
	Threshold float64
	Viewpoint [3]float64
}

// Filter tests ids of cloud (every point when nil) against normals, which
// must be parallel to ids. Points with invalid normals are removed.
func (f ShadowPoints) Filter(cloud *pointcloud.Cloud, ids []int, normals []features.Normal) (Result, error) {
	ids = allIDs(cloud, ids)
	if len(normals) != len(ids) {
		return Result{}, fmt.Errorf("%w: %d normals for %d points", search.ErrInvalidInput, len(normals), len(ids))
	}
	if f.Threshold < 0 || f.Threshold > 1 || math.IsNaN(f.Threshold) {
		return Result{}, fmt.Errorf("%w: threshold %v outside [0, 1]", ErrBadParameter, f.Threshold)
	}
	res := newResult(len(ids))
	for i, id := range ids {
		n := normals[i]
		if !n.Valid || !cloud.IsFinite(id) {
			res.remove(id)
			continue
		}
		x, y, z := cloud.XYZ(id)
		rx, ry, rz := x-f.Viewpoint[0], y-f.Viewpoint[1], z-f.Viewpoint[2]
		l := math.Sqrt(rx*rx + ry*ry + rz*rz)
		if l == 0 {
			res.keep(id)
			continue
		}
		if math.Abs(n.Dot(rx, ry, rz))/l >= f.Threshold {
			res.keep(id)
		} else {
			res.remove(id)
		}
	}
	return res, nil
}
