package search

import (
	"container/heap"
	"fmt"

	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/pointcloud/metric"
)

// Octree defaults.
const (
	DefaultBucketSize = 32
	DefaultMaxDepth   = 16
)

// Octree recursively divides 3-D space into octants around the midpoint of
// each node's bounding box. Leaves hold up to bucketSize points or sit at
// maxDepth. Nearest-k queries run best-first over node lower bounds.
type Octree struct {
	metric     metric.Metric
	bounded    metric.Bounded
	bucketSize int
	maxDepth   int

	view    *View
	cloud   *pointcloud.Cloud
	perm    []int
	scratch []int
	nodes   []octNode
}

type octNode struct {
	start, end int
	lo, hi     [3]float64
	// children holds node indices; -1 for empty octants. A leaf has
	// leaf set and no children.
	children [8]int32
	leaf     bool
}

// NewOctree creates an octree strategy. Non-positive arguments select
// DefaultBucketSize and DefaultMaxDepth.
func NewOctree(m metric.Metric, bucketSize, maxDepth int) *Octree {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Octree{metric: defaultMetric(m), bucketSize: bucketSize, maxDepth: maxDepth}
}

// Kind returns KindOctree.
func (o *Octree) Kind() Kind { return KindOctree }

// Build constructs the octree over the view. Only 3-D clouds are supported.
func (o *Octree) Build(v *View) error {
	if v == nil || v.Len() == 0 {
		return fmt.Errorf("%w: empty view", ErrInvalidInput)
	}
	if v.Dim() != 3 {
		return fmt.Errorf("%w: octree needs 3-D points, got %d-D", ErrStrategyUnavailable, v.Dim())
	}
	b, err := requireBounded(KindOctree, o.metric)
	if err != nil {
		return err
	}

	o.view = nil
	o.bounded = b
	o.cloud = v.Cloud()
	o.perm = append(o.perm[:0], v.IDs()...)
	o.scratch = make([]int, len(o.perm))
	o.nodes = o.nodes[:0]
	o.build(0, len(o.perm), 0)
	o.scratch = nil
	o.view = v
	return nil
}

func (o *Octree) build(start, end, depth int) int32 {
	idx := int32(len(o.nodes))
	node := octNode{start: start, end: end}
	for i := range node.children {
		node.children[i] = -1
	}
	var lo, hi [3]float64
	fitBox(o.cloud, o.perm[start:end], lo[:], hi[:])
	node.lo, node.hi = lo, hi

	flat := lo == hi
	if end-start <= o.bucketSize || depth >= o.maxDepth || flat {
		node.leaf = true
		o.nodes = append(o.nodes, node)
		return idx
	}
	o.nodes = append(o.nodes, node)

	mid := [3]float64{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2, (lo[2] + hi[2]) / 2}
	octant := func(id int) int {
		x, y, z := o.cloud.XYZ(id)
		c := 0
		if x > mid[0] {
			c |= 1
		}
		if y > mid[1] {
			c |= 2
		}
		if z > mid[2] {
			c |= 4
		}
		return c
	}

	// Counting sort of the node range into octant order.
	var counts [8]int
	for _, id := range o.perm[start:end] {
		counts[octant(id)]++
	}
	var offsets [9]int
	for i := 0; i < 8; i++ {
		offsets[i+1] = offsets[i] + counts[i]
	}
	fill := offsets
	buf := o.scratch[start:end]
	for _, id := range o.perm[start:end] {
		c := octant(id)
		buf[fill[c]] = id
		fill[c]++
	}
	copy(o.perm[start:end], buf)

	for c := 0; c < 8; c++ {
		if counts[c] == 0 {
			continue
		}
		child := o.build(start+offsets[c], start+offsets[c+1], depth+1)
		o.nodes[idx].children[c] = child
	}
	return idx
}

func (o *Octree) boxDistance(q []float64, n *octNode) float64 {
	return o.bounded.BoxDistance(q, n.lo[:], n.hi[:])
}

// NearestK implements Searcher.
func (o *Octree) NearestK(q []float64, k int) ([]Neighbor, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	if err := prepareQuery(o.view, q); err != nil {
		return nil, err
	}

	h := newKHeap(k)
	frontier := &nodeQueue{{node: 0, bound: o.boxDistance(q, &o.nodes[0])}}
	for frontier.Len() > 0 {
		next := heap.Pop(frontier).(nodeEntry)
		if !h.admits(next.bound) {
			break
		}
		n := &o.nodes[next.node]
		if n.leaf {
			for _, id := range o.perm[n.start:n.end] {
				d := o.metric.Distance(q, o.cloud.Point(id))
				if h.admits(d) {
					h.push(Neighbor{ID: id, Distance: d})
				}
			}
			continue
		}
		for _, c := range n.children {
			if c < 0 {
				continue
			}
			if b := o.boxDistance(q, &o.nodes[c]); h.admits(b) {
				heap.Push(frontier, nodeEntry{node: c, bound: b})
			}
		}
	}
	return h.sorted(), nil
}

// Radius implements Searcher.
func (o *Octree) Radius(q []float64, r float64, maxResults int) ([]Neighbor, error) {
	if err := ValidateRadius(r); err != nil {
		return nil, err
	}
	if err := prepareQuery(o.view, q); err != nil {
		return nil, err
	}
	var out []Neighbor
	if o.boxDistance(q, &o.nodes[0]) <= r {
		out = o.within(0, q, r, out)
	}
	return finishRadius(out, maxResults), nil
}

func (o *Octree) within(node int32, q []float64, r float64, out []Neighbor) []Neighbor {
	n := &o.nodes[node]
	if n.leaf {
		for _, id := range o.perm[n.start:n.end] {
			if d := o.metric.Distance(q, o.cloud.Point(id)); d <= r {
				out = append(out, Neighbor{ID: id, Distance: d})
			}
		}
		return out
	}
	for _, c := range n.children {
		if c >= 0 && o.boxDistance(q, &o.nodes[c]) <= r {
			out = o.within(c, q, r, out)
		}
	}
	return out
}

// Nodes returns the number of nodes in the built tree.
func (o *Octree) Nodes() int { return len(o.nodes) }

type nodeEntry struct {
	node  int32
	bound float64
}

// nodeQueue is a min-heap of nodes by lower-bound distance.
type nodeQueue []nodeEntry

func (q nodeQueue) Len() int           { return len(q) }
func (q nodeQueue) Less(i, j int) bool { return q[i].bound < q[j].bound }
func (q nodeQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)        { *q = append(*q, x.(nodeEntry)) }
func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

var _ Strategy = (*Octree)(nil)
