package search

import (
	"fmt"

	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/pointcloud/metric"
)

// DefaultLeafSize is the default number of points held by a k-d tree leaf.
const DefaultLeafSize = 15

// KdTree is a balanced k-d tree with leaf buckets. Each node keeps the tight
// bounding box of its points; queries prune subtrees whose box lower bound
// cannot beat the current result.
type KdTree struct {
	metric   metric.Metric
	bounded  metric.Bounded
	leafSize int

	view  *View
	cloud *pointcloud.Cloud
	dim   int
	perm  []int     // searchable ids, reordered so every node owns a contiguous range
	nodes []kdNode  //
	boxes []float64 // per node: dim lows followed by dim highs
}

type kdNode struct {
	start, end  int
	left, right int32 // -1 for leaves
}

// NewKdTree creates a k-d tree strategy. A nil metric selects Euclidean and a
// non-positive leafSize selects DefaultLeafSize.
func NewKdTree(m metric.Metric, leafSize int) *KdTree {
	if leafSize <= 0 {
		leafSize = DefaultLeafSize
	}
	return &KdTree{metric: defaultMetric(m), leafSize: leafSize}
}

// Kind returns KindKdTree.
func (t *KdTree) Kind() Kind { return KindKdTree }

// Build constructs the tree over the view.
func (t *KdTree) Build(v *View) error {
	if v == nil || v.Len() == 0 {
		return fmt.Errorf("%w: empty view", ErrInvalidInput)
	}
	b, err := requireBounded(KindKdTree, t.metric)
	if err != nil {
		return err
	}

	t.view = nil
	t.bounded = b
	t.cloud = v.Cloud()
	t.dim = v.Dim()
	t.perm = append(t.perm[:0], v.IDs()...)
	est := 2*(len(t.perm)/t.leafSize) + 1
	t.nodes = make([]kdNode, 0, est)
	t.boxes = make([]float64, 0, est*2*t.dim)
	t.build(0, len(t.perm))
	t.view = v
	return nil
}

func (t *KdTree) build(start, end int) int32 {
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, kdNode{start: start, end: end, left: -1, right: -1})

	boxStart := len(t.boxes)
	t.boxes = append(t.boxes, make([]float64, 2*t.dim)...)
	lo := t.boxes[boxStart : boxStart+t.dim]
	hi := t.boxes[boxStart+t.dim : boxStart+2*t.dim]
	fitBox(t.cloud, t.perm[start:end], lo, hi)

	if end-start <= t.leafSize {
		return idx
	}

	axis, spread := 0, -1.0
	for d := 0; d < t.dim; d++ {
		if s := hi[d] - lo[d]; s > spread {
			axis, spread = d, s
		}
	}
	if spread <= 0 {
		// Every point is identical; splitting cannot separate them.
		return idx
	}

	mid := (start + end) / 2
	cloud := t.cloud
	selectNth(t.perm[start:end], mid-start, func(id int) float64 { return cloud.At(id, axis) })

	left := t.build(start, mid)
	right := t.build(mid, end)
	t.nodes[idx].left = left
	t.nodes[idx].right = right
	return idx
}

func (t *KdTree) box(node int32) (lo, hi []float64) {
	off := int(node) * 2 * t.dim
	return t.boxes[off : off+t.dim], t.boxes[off+t.dim : off+2*t.dim]
}

func (t *KdTree) boxDistance(q []float64, node int32) float64 {
	lo, hi := t.box(node)
	return t.bounded.BoxDistance(q, lo, hi)
}

// NearestK implements Searcher.
func (t *KdTree) NearestK(q []float64, k int) ([]Neighbor, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	if err := prepareQuery(t.view, q); err != nil {
		return nil, err
	}
	h := newKHeap(k)
	t.nearest(0, q, h)
	return h.sorted(), nil
}

func (t *KdTree) nearest(node int32, q []float64, h *kHeap) {
	n := t.nodes[node]
	if n.left < 0 {
		for _, id := range t.perm[n.start:n.end] {
			d := t.metric.Distance(q, t.cloud.Point(id))
			if h.admits(d) {
				h.push(Neighbor{ID: id, Distance: d})
			}
		}
		return
	}

	first, second := n.left, n.right
	d1, d2 := t.boxDistance(q, first), t.boxDistance(q, second)
	if d2 < d1 {
		first, second = second, first
		d1, d2 = d2, d1
	}
	if h.admits(d1) {
		t.nearest(first, q, h)
	}
	if h.admits(d2) {
		t.nearest(second, q, h)
	}
}

// Radius implements Searcher.
func (t *KdTree) Radius(q []float64, r float64, maxResults int) ([]Neighbor, error) {
	if err := ValidateRadius(r); err != nil {
		return nil, err
	}
	if err := prepareQuery(t.view, q); err != nil {
		return nil, err
	}
	var out []Neighbor
	if t.boxDistance(q, 0) <= r {
		out = t.within(0, q, r, out)
	}
	return finishRadius(out, maxResults), nil
}

func (t *KdTree) within(node int32, q []float64, r float64, out []Neighbor) []Neighbor {
	n := t.nodes[node]
	if n.left < 0 {
		for _, id := range t.perm[n.start:n.end] {
			if d := t.metric.Distance(q, t.cloud.Point(id)); d <= r {
				out = append(out, Neighbor{ID: id, Distance: d})
			}
		}
		return out
	}
	if t.boxDistance(q, n.left) <= r {
		out = t.within(n.left, q, r, out)
	}
	if t.boxDistance(q, n.right) <= r {
		out = t.within(n.right, q, r, out)
	}
	return out
}

// Depth returns the height of the built tree (1 for a single leaf).
func (t *KdTree) Depth() int {
	if len(t.nodes) == 0 {
		return 0
	}
	var walk func(int32) int
	walk = func(n int32) int {
		node := t.nodes[n]
		if node.left < 0 {
			return 1
		}
		return 1 + max(walk(node.left), walk(node.right))
	}
	return walk(0)
}

// fitBox writes the bounding box of ids into lo and hi.
func fitBox(cloud *pointcloud.Cloud, ids []int, lo, hi []float64) {
	first := cloud.Point(ids[0])
	copy(lo, first)
	copy(hi, first)
	for _, id := range ids[1:] {
		for d, v := range cloud.Point(id) {
			if v < lo[d] {
				lo[d] = v
			} else if v > hi[d] {
				hi[d] = v
			}
		}
	}
}

// selectNth partially orders ids so that ids[nth] holds the element that would
// be there after a full sort by key, with smaller-or-equal keys before it and
// greater-or-equal keys after. Three-way partitioning keeps it linear on
// inputs with many equal keys.
func selectNth(ids []int, nth int, key func(id int) float64) {
	lo, hi := 0, len(ids)-1
	for lo < hi {
		pivot := median3(key(ids[lo]), key(ids[lo+(hi-lo)/2]), key(ids[hi]))
		lt, i, gt := lo, lo, hi
		for i <= gt {
			v := key(ids[i])
			switch {
			case v < pivot:
				ids[lt], ids[i] = ids[i], ids[lt]
				lt++
				i++
			case v > pivot:
				ids[i], ids[gt] = ids[gt], ids[i]
				gt--
			default:
				i++
			}
		}
		switch {
		case nth < lt:
			hi = lt - 1
		case nth > gt:
			lo = gt + 1
		default:
			return
		}
	}
}

func median3(a, b, c float64) float64 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		return a
	}
	return b
}

var _ Strategy = (*KdTree)(nil)
