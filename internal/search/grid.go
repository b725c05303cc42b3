package search

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/pointcloud/metric"
)

// DefaultPointsPerCell is the target occupancy used to derive a grid cell size.
const DefaultPointsPerCell = 4

// Grid is a uniform voxel hash over 3-D points. Cell keys are integer
// coordinates relative to the cloud's lower corner; the points of each cell
// are stored contiguously.
type Grid struct {
	metric        metric.Metric
	bounded       metric.Bounded
	cellSize      float64
	pointsPerCell int

	view  *View
	cloud *pointcloud.Cloud
	cell  float64 // effective cell edge after Build
	lo    [3]float64
	span  cellKey // number of cells along each axis
	perm  []int
	cells map[cellKey]cellRange
}

type cellKey struct{ x, y, z int }

type cellRange struct{ start, end int }

// NewGrid creates a grid strategy. A cellSize of zero derives the edge length
// from the cloud so that occupied cells hold about pointsPerCell points.
func NewGrid(m metric.Metric, cellSize float64, pointsPerCell int) *Grid {
	if pointsPerCell <= 0 {
		pointsPerCell = DefaultPointsPerCell
	}
	if cellSize < 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = 0
	}
	return &Grid{metric: defaultMetric(m), cellSize: cellSize, pointsPerCell: pointsPerCell}
}

// Kind returns KindGrid.
func (g *Grid) Kind() Kind { return KindGrid }

// CellSize returns the effective cell edge of the built grid.
func (g *Grid) CellSize() float64 { return g.cell }

// Cells returns the number of occupied cells.
func (g *Grid) Cells() int { return len(g.cells) }

// Build hashes every point of the view into its cell.
func (g *Grid) Build(v *View) error {
	if v == nil || v.Len() == 0 {
		return fmt.Errorf("%w: empty view", ErrInvalidInput)
	}
	if v.Dim() != 3 {
		return fmt.Errorf("%w: grid needs 3-D points, got %d-D", ErrStrategyUnavailable, v.Dim())
	}
	b, err := requireBounded(KindGrid, g.metric)
	if err != nil {
		return err
	}

	g.view = nil
	g.bounded = b
	g.cloud = v.Cloud()
	lo, hi := v.Bounds()
	copy(g.lo[:], lo)
	g.cell = g.cellSize
	if g.cell == 0 {
		g.cell = deriveCellSize(lo, hi, v.Len(), g.pointsPerCell)
	}
	g.span = cellKey{
		x: int((hi[0]-lo[0])/g.cell) + 1,
		y: int((hi[1]-lo[1])/g.cell) + 1,
		z: int((hi[2]-lo[2])/g.cell) + 1,
	}

	type keyed struct {
		id  int
		key cellKey
	}
	entries := make([]keyed, v.Len())
	for i, id := range v.IDs() {
		entries[i] = keyed{id: id, key: g.keyOf(g.cloud.Point(id))}
	}
	slices.SortStableFunc(entries, func(a, b keyed) int {
		if a.key.x != b.key.x {
			return a.key.x - b.key.x
		}
		if a.key.y != b.key.y {
			return a.key.y - b.key.y
		}
		return a.key.z - b.key.z
	})

	g.perm = g.perm[:0]
	g.cells = make(map[cellKey]cellRange)
	for i := 0; i < len(entries); {
		k := entries[i].key
		j := i
		for j < len(entries) && entries[j].key == k {
			g.perm = append(g.perm, entries[j].id)
			j++
		}
		g.cells[k] = cellRange{start: i, end: j}
		i = j
	}
	g.view = v
	return nil
}

// deriveCellSize picks an edge so that the bounding volume divided into cells
// of that size holds about ppc points per cell. Degenerate axes are ignored.
func deriveCellSize(lo, hi []float64, n, ppc int) float64 {
	vol, dims, longest := 1.0, 0, 0.0
	for d := range lo {
		e := hi[d] - lo[d]
		if e > 0 {
			vol *= e
			dims++
		}
		longest = math.Max(longest, e)
	}
	if dims == 0 {
		return 1
	}
	size := math.Pow(vol*float64(ppc)/float64(n), 1/float64(dims))
	if floor := longest * 1e-6; size < floor {
		size = floor
	}
	return size
}

func (g *Grid) axisCell(v float64, axis int) int {
	return int(math.Floor((v - g.lo[axis]) / g.cell))
}

func (g *Grid) keyOf(p []float64) cellKey {
	return cellKey{g.axisCell(p[0], 0), g.axisCell(p[1], 1), g.axisCell(p[2], 2)}
}

// clampedCell returns the cell index of v on axis, clipped to [0, span).
func (g *Grid) clampedCell(v float64, axis, span int) int {
	f := math.Floor((v - g.lo[axis]) / g.cell)
	return int(math.Max(0, math.Min(f, float64(span-1))))
}

// cellBox returns the box of cell k grown by pad on every side. Points are
// keyed by floor division, so boxes are padded to absorb rounding.
func (g *Grid) cellBox(k cellKey, pad float64) (lo, hi [3]float64) {
	lo = [3]float64{
		g.lo[0] + float64(k.x)*g.cell - pad,
		g.lo[1] + float64(k.y)*g.cell - pad,
		g.lo[2] + float64(k.z)*g.cell - pad,
	}
	edge := g.cell + 2*pad
	hi = [3]float64{lo[0] + edge, lo[1] + edge, lo[2] + edge}
	return lo, hi
}

func (g *Grid) slack() float64 { return g.cell * 1e-9 }

// cellBound is a lower bound on the distance from q to any point of cell k.
func (g *Grid) cellBound(q []float64, k cellKey) float64 {
	lo, hi := g.cellBox(k, g.slack())
	return g.bounded.BoxDistance(q, lo[:], hi[:])
}

func (g *Grid) scanCell(q []float64, k cellKey, visit func(id int, d float64)) {
	rng, ok := g.cells[k]
	if !ok {
		return
	}
	for _, id := range g.perm[rng.start:rng.end] {
		visit(id, g.metric.Distance(q, g.cloud.Point(id)))
	}
}

// Radius implements Searcher.
func (g *Grid) Radius(q []float64, r float64, maxResults int) ([]Neighbor, error) {
	if err := ValidateRadius(r); err != nil {
		return nil, err
	}
	if err := prepareQuery(g.view, q); err != nil {
		return nil, err
	}

	var lo, hi cellKey
	lo.x, hi.x = g.clampRange(q[0], r, 0, g.span.x)
	lo.y, hi.y = g.clampRange(q[1], r, 1, g.span.y)
	lo.z, hi.z = g.clampRange(q[2], r, 2, g.span.z)

	var out []Neighbor
	collect := func(id int, d float64) {
		if d <= r {
			out = append(out, Neighbor{ID: id, Distance: d})
		}
	}
	// Iterate whichever is smaller: the cell block or the occupied cells.
	block := (hi.x - lo.x + 1) * (hi.y - lo.y + 1) * (hi.z - lo.z + 1)
	if lo.x > hi.x || lo.y > hi.y || lo.z > hi.z {
		block = 0
	}
	if block > len(g.cells) {
		for k := range g.cells {
			if k.x < lo.x || k.x > hi.x || k.y < lo.y || k.y > hi.y || k.z < lo.z || k.z > hi.z {
				continue
			}
			if g.cellBound(q, k) <= r {
				g.scanCell(q, k, collect)
			}
		}
	} else {
		for x := lo.x; x <= hi.x; x++ {
			for y := lo.y; y <= hi.y; y++ {
				for z := lo.z; z <= hi.z; z++ {
					k := cellKey{x, y, z}
					if _, ok := g.cells[k]; ok && g.cellBound(q, k) <= r {
						g.scanCell(q, k, collect)
					}
				}
			}
		}
	}
	return finishRadius(out, maxResults), nil
}

// clampRange converts [v-r, v+r] into an inclusive cell interval clipped to
// the occupied span. The interval is widened by one cell on each side so that
// points sitting exactly on a cell boundary are never missed. An empty result
// has lo > hi.
func (g *Grid) clampRange(v, r float64, axis, span int) (int, int) {
	a := math.Floor((v-r-g.lo[axis])/g.cell) - 1
	b := math.Floor((v+r-g.lo[axis])/g.cell) + 1
	if b < 0 || a > float64(span-1) {
		return 1, 0
	}
	return int(math.Max(a, 0)), int(math.Min(b, float64(span-1)))
}

// NearestK implements Searcher. Cells are visited in growing Chebyshev rings
// around the query cell until the k-th distance is closer than the ring. Once
// a ring holds more cells than remain occupied, the remaining occupied cells
// are scanned directly in order of their distance bound.
func (g *Grid) NearestK(q []float64, k int) ([]Neighbor, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	if err := prepareQuery(g.view, q); err != nil {
		return nil, err
	}

	h := newKHeap(k)
	push := func(id int, d float64) {
		if h.admits(d) {
			h.push(Neighbor{ID: id, Distance: d})
		}
	}

	// Rings are centred on the query cell clamped into the occupied span, so
	// far-away queries start at the nearest edge of the grid.
	c := cellKey{
		x: g.clampedCell(q[0], 0, g.span.x),
		y: g.clampedCell(q[1], 1, g.span.y),
		z: g.clampedCell(q[2], 2, g.span.z),
	}
	maxRing := max(c.x, g.span.x-1-c.x, c.y, g.span.y-1-c.y, c.z, g.span.z-1-c.z)

	visited := 0
	for ring := 0; ring <= maxRing; ring++ {
		if h.full() && visited > 0 && g.ringBound(q, c, ring) > h.worst() {
			break
		}
		if ringCells(ring) > float64(len(g.cells)-visited) {
			g.scanRemaining(q, c, ring, h, push)
			break
		}
		g.forRing(c, ring, func(key cellKey) {
			if _, ok := g.cells[key]; !ok {
				return
			}
			visited++
			if h.full() && g.cellBound(q, key) > h.worst() {
				return
			}
			g.scanCell(q, key, push)
		})
		if visited == len(g.cells) {
			break
		}
	}
	return h.sorted(), nil
}

// ringCells is the number of cells at Chebyshev distance exactly ring,
// ignoring the span clip.
func ringCells(ring int) float64 {
	if ring == 0 {
		return 1
	}
	outer, inner := float64(2*ring+1), float64(2*ring-1)
	return outer*outer*outer - inner*inner*inner
}

// scanRemaining visits the occupied cells at least ring away from c, nearest
// bound first, until the bound passes the k-th distance.
func (g *Grid) scanRemaining(q []float64, c cellKey, ring int, h *kHeap, push func(int, float64)) {
	type candidate struct {
		key   cellKey
		bound float64
	}
	rest := make([]candidate, 0, len(g.cells))
	for key := range g.cells {
		if chebyshev(key, c) < ring {
			continue
		}
		rest = append(rest, candidate{key: key, bound: g.cellBound(q, key)})
	}
	slices.SortFunc(rest, func(a, b candidate) int { return cmp.Compare(a.bound, b.bound) })
	for _, cand := range rest {
		if h.full() && cand.bound > h.worst() {
			return
		}
		g.scanCell(q, cand.key, push)
	}
}

func chebyshev(a, b cellKey) int {
	return max(abs(a.x-b.x), abs(a.y-b.y), abs(a.z-b.z))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ringBound is a lower bound on the distance from q to any cell in the given
// ring around c and every ring beyond it: the distance from q to the outside
// of the box spanned by the rings strictly inside.
func (g *Grid) ringBound(q []float64, c cellKey, ring int) float64 {
	if ring == 0 {
		return 0
	}
	inner := ring - 1
	lo, _ := g.cellBox(cellKey{c.x - inner, c.y - inner, c.z - inner}, -g.slack())
	_, hi := g.cellBox(cellKey{c.x + inner, c.y + inner, c.z + inner}, -g.slack())
	gap := math.Inf(1)
	for d := 0; d < 3; d++ {
		if q[d] < lo[d] || q[d] > hi[d] {
			// The query lies outside the inner block on this axis; the ring
			// offers no useful bound.
			return 0
		}
		gap = math.Min(gap, math.Min(q[d]-lo[d], hi[d]-q[d]))
	}
	return g.axisLowerBound(gap)
}

// axisLowerBound converts a single-axis gap into a metric lower bound.
func (g *Grid) axisLowerBound(gap float64) float64 {
	zero := []float64{0, 0, 0}
	return g.bounded.BoxDistance(zero, []float64{gap, -1, -1}, []float64{gap, 1, 1})
}

// forRing calls fn for every cell at Chebyshev distance exactly ring from c
// and inside the occupied span.
func (g *Grid) forRing(c cellKey, ring int, fn func(cellKey)) {
	in := func(k cellKey) bool {
		return k.x >= 0 && k.x < g.span.x && k.y >= 0 && k.y < g.span.y && k.z >= 0 && k.z < g.span.z
	}
	if ring == 0 {
		if in(c) {
			fn(c)
		}
		return
	}
	for x := c.x - ring; x <= c.x+ring; x++ {
		for y := c.y - ring; y <= c.y+ring; y++ {
			edgeXY := x == c.x-ring || x == c.x+ring || y == c.y-ring || y == c.y+ring
			if edgeXY {
				for z := c.z - ring; z <= c.z+ring; z++ {
					if k := (cellKey{x, y, z}); in(k) {
						fn(k)
					}
				}
				continue
			}
			for _, z := range [2]int{c.z - ring, c.z + ring} {
				if k := (cellKey{x, y, z}); in(k) {
					fn(k)
				}
			}
		}
	}
}

var _ Strategy = (*Grid)(nil)
