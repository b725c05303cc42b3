// Package filters removes points from a cloud. Each filter reports the kept
// ids in input order and the removed ids as a roaring bitmap, leaving the
// cloud itself untouched.
//
// PassThrough and VoxelGrid work on coordinates alone. The outlier filters
// and ShadowPoints query a search.Searcher built over the same cloud.
package filters

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/banshee-data/cloudsearch/internal/pointcloud"
)

// Result is the outcome of a filter.
type Result struct {
	Kept    []int
	Removed *roaring.Bitmap
}

func newResult(capacity int) Result {
	return Result{Kept: make([]int, 0, capacity), Removed: roaring.New()}
}

func (r *Result) keep(id int)   { r.Kept = append(r.Kept, id) }
func (r *Result) remove(id int) { r.Removed.Add(uint32(id)) }

// Cloud copies the kept points into a new cloud.
func (r Result) Cloud(src *pointcloud.Cloud) *pointcloud.Cloud {
	return src.Select(r.Kept)
}

// allIDs returns ids, or every position of cloud when ids is nil.
func allIDs(cloud *pointcloud.Cloud, ids []int) []int {
	if ids != nil {
		return ids
	}
	out := make([]int, cloud.Len())
	for i := range out {
		out[i] = i
	}
	return out
}
