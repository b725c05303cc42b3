package filters

import (
	"math"
	"slices"

	"github.com/banshee-data/cloudsearch/internal/pointcloud"
)

type voxelKey struct{ x, y, z int64 }

type voxelAcc struct {
	sx, sy, sz float64
	members    []int
}

// VoxelGrid downsamples a 3-D cloud: every occupied cube of edge leaf keeps
// the one point nearest to the centroid of its points. Ties go to the lower
// id. A non-positive leaf keeps every finite point. Kept ids are ascending.
func VoxelGrid(cloud *pointcloud.Cloud, ids []int, leaf float64) Result {
	ids = allIDs(cloud, ids)
	res := newResult(len(ids))
	if len(ids) == 0 {
		return res
	}

	if leaf <= 0 || math.IsNaN(leaf) {
		for _, id := range ids {
			if cloud.IsFinite(id) {
				res.keep(id)
			} else {
				res.remove(id)
			}
		}
		return res
	}

	voxels := make(map[voxelKey]*voxelAcc)
	for _, id := range ids {
		if !cloud.IsFinite(id) {
			res.remove(id)
			continue
		}
		x, y, z := cloud.XYZ(id)
		k := voxelKey{
			x: int64(math.Floor(x / leaf)),
			y: int64(math.Floor(y / leaf)),
			z: int64(math.Floor(z / leaf)),
		}
		acc := voxels[k]
		if acc == nil {
			acc = &voxelAcc{}
			voxels[k] = acc
		}
		acc.sx += x
		acc.sy += y
		acc.sz += z
		acc.members = append(acc.members, id)
	}

	for _, acc := range voxels {
		n := float64(len(acc.members))
		cx, cy, cz := acc.sx/n, acc.sy/n, acc.sz/n
		best, bestD := -1, math.Inf(1)
		for _, id := range acc.members {
			x, y, z := cloud.XYZ(id)
			d := (x-cx)*(x-cx) + (y-cy)*(y-cy) + (z-cz)*(z-cz)
			if d < bestD || (d == bestD && id < best) {
				best, bestD = id, d
			}
		}
		for _, id := range acc.members {
			if id == best {
				res.keep(id)
			} else {
				res.remove(id)
			}
		}
	}
	slices.Sort(res.Kept)
	res.Kept = slices.Compact(res.Kept)
	return res
}
