package filters

import (
	"github.com/banshee-data/cloudsearch/internal/pointcloud"
)

// PassThrough keeps the points whose coordinate on Axis lies within
// [Min, Max]. With Negative set the band is removed instead. Points with
// non-finite coordinates are always removed.
type PassThrough struct {
	Axis     int
	Min, Max float64
	Negative bool

	// Counters across Filter calls. Non-finite points count as processed only.
	pointsProcessed int64
	pointsInBand    int64
	pointsBelow     int64
	pointsAbove     int64
}

// NewPassThrough constructs a band filter on the given axis.
func NewPassThrough(axis int, lo, hi float64) *PassThrough {
	return &PassThrough{Axis: axis, Min: lo, Max: hi}
}

// HeightBand returns a z-axis filter keeping [floor, ceiling], the usual way
// of stripping road surface and overhead structure from street scans.
func HeightBand(floor, ceiling float64) *PassThrough {
	return NewPassThrough(2, floor, ceiling)
}

// Filter applies the band test to ids of cloud (every point when ids is nil).
func (f *PassThrough) Filter(cloud *pointcloud.Cloud, ids []int) Result {
	ids = allIDs(cloud, ids)
	res := newResult(len(ids))
	if f.Axis < 0 || f.Axis >= cloud.Dim() {
		for _, id := range ids {
			res.remove(id)
		}
		return res
	}

	for _, id := range ids {
		f.pointsProcessed++
		if !cloud.IsFinite(id) {
			res.remove(id)
			continue
		}
		v := cloud.At(id, f.Axis)
		inBand := true
		switch {
		case v < f.Min:
			f.pointsBelow++
			inBand = false
		case v > f.Max:
			f.pointsAbove++
			inBand = false
		default:
			f.pointsInBand++
		}
		if inBand != f.Negative {
			res.keep(id)
		} else {
			res.remove(id)
		}
	}
	return res
}

// Stats returns the counters accumulated since the last ResetStats.
func (f *PassThrough) Stats() (processed, inBand, below, above int64) {
	return f.pointsProcessed, f.pointsInBand, f.pointsBelow, f.pointsAbove
}

// ResetStats zeroes the counters.
func (f *PassThrough) ResetStats() {
	f.pointsProcessed = 0
	f.pointsInBand = 0
	f.pointsBelow = 0
	f.pointsAbove = 0
}
