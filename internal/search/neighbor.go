package search

import (
	"cmp"
	"slices"
)

// Neighbor is one query result.
type Neighbor struct {
	// ID is the point identifier (position in the cloud).
	ID int
	// Distance is the metric distance from the query point.
	Distance float64
}

// compareNeighbors orders by distance, then by id.
func compareNeighbors(a, b Neighbor) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortNeighbors sorts results into the canonical (distance, id) order.
func SortNeighbors(ns []Neighbor) {
	slices.SortFunc(ns, compareNeighbors)
}

// Split converts results into parallel id and distance slices.
func Split(ns []Neighbor) (ids []int, dists []float64) {
	ids = make([]int, len(ns))
	dists = make([]float64, len(ns))
	for i, n := range ns {
		ids[i] = n.ID
		dists[i] = n.Distance
	}
	return ids, dists
}

// finishRadius sorts radius results and applies the optional cap.
func finishRadius(ns []Neighbor, maxResults int) []Neighbor {
	SortNeighbors(ns)
	if maxResults > 0 && len(ns) > maxResults {
		ns = ns[:maxResults]
	}
	return ns
}

// kHeap is a bounded max-heap keeping the k best neighbours seen so far.
// The top is the worst kept neighbour under (distance, id) order.
type kHeap struct {
	k     int
	items []Neighbor
}

func newKHeap(k int) *kHeap {
	c := k
	if c > 1024 {
		c = 1024
	}
	return &kHeap{k: k, items: make([]Neighbor, 0, c)}
}

func (h *kHeap) full() bool { return len(h.items) >= h.k }

// worst returns the distance of the worst kept neighbour. Only valid when full.
func (h *kHeap) worst() float64 { return h.items[0].Distance }

// admits reports whether a candidate at distance d could still enter the heap.
// Equal distances are admitted so that lower ids win ties.
func (h *kHeap) admits(d float64) bool {
	return !h.full() || d <= h.items[0].Distance
}

func (h *kHeap) push(n Neighbor) {
	if len(h.items) < h.k {
		h.items = append(h.items, n)
		h.siftUp(len(h.items) - 1)
		return
	}
	if compareNeighbors(n, h.items[0]) >= 0 {
		return
	}
	h.items[0] = n
	h.siftDown(0)
}

func (h *kHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if compareNeighbors(h.items[i], h.items[parent]) <= 0 {
			return
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *kHeap) siftDown(i int) {
	n := len(h.items)
	for {
		largest := i
		l, r := 2*i+1, 2*i+2
		if l < n && compareNeighbors(h.items[l], h.items[largest]) > 0 {
			largest = l
		}
		if r < n && compareNeighbors(h.items[r], h.items[largest]) > 0 {
			largest = r
		}
		if largest == i {
			return
		}
		h.items[i], h.items[largest] = h.items[largest], h.items[i]
		i = largest
	}
}

// sorted drains the heap into ascending (distance, id) order.
func (h *kHeap) sorted() []Neighbor {
	out := h.items
	SortNeighbors(out)
	h.items = nil
	return out
}
