package pointcloud

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ErrDimensionMismatch is returned when a point does not have the cloud's dimension.
var ErrDimensionMismatch = errors.New("pointcloud: dimension mismatch")

// Cloud is an ordered point set of fixed dimension.
//
// Cloud is not safe for concurrent mutation. Concurrent reads are safe as long
// as no goroutine mutates the cloud.
type Cloud struct {
	dim    int
	coords []float64
	id     uuid.UUID
	gen    uint64
}

// New creates an empty cloud of the given dimension.
func New(dim int) (*Cloud, error) {
	if dim < 1 {
		return nil, fmt.Errorf("pointcloud: dimension must be positive, got %d", dim)
	}
	return &Cloud{dim: dim, id: uuid.New()}, nil
}

// FromXYZ builds a 3-D cloud from coordinate triples.
func FromXYZ(pts [][3]float64) *Cloud {
	coords := make([]float64, 0, len(pts)*3)
	for _, p := range pts {
		coords = append(coords, p[0], p[1], p[2])
	}
	return &Cloud{dim: 3, coords: coords, id: uuid.New()}
}

// FromRows builds a cloud from equally sized rows. The rows are copied.
func FromRows(rows [][]float64) (*Cloud, error) {
	if len(rows) == 0 {
		return nil, errors.New("pointcloud: no rows")
	}
	dim := len(rows[0])
	c, err := New(dim)
	if err != nil {
		return nil, err
	}
	c.coords = make([]float64, 0, len(rows)*dim)
	for i, r := range rows {
		if len(r) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(r), dim)
		}
		c.coords = append(c.coords, r...)
	}
	return c, nil
}

// FromFlat adopts a row-major coordinate slice without copying it. The caller
// must not modify coords afterwards except through the returned Cloud.
func FromFlat(dim int, coords []float64) (*Cloud, error) {
	if dim < 1 {
		return nil, fmt.Errorf("pointcloud: dimension must be positive, got %d", dim)
	}
	if len(coords)%dim != 0 {
		return nil, fmt.Errorf("%w: %d values is not a multiple of %d", ErrDimensionMismatch, len(coords), dim)
	}
	return &Cloud{dim: dim, coords: coords, id: uuid.New()}, nil
}

// Len returns the number of points. A nil or zero Cloud is empty.
func (c *Cloud) Len() int {
	if c == nil || c.dim == 0 {
		return 0
	}
	return len(c.coords) / c.dim
}

// Dim returns the dimension of every point.
func (c *Cloud) Dim() int { return c.dim }

// ID returns the cloud's identity token. It never changes.
func (c *Cloud) ID() uuid.UUID { return c.id }

// Generation returns the mutation counter.
func (c *Cloud) Generation() uint64 { return c.gen }

// Point returns a read-only view of point i. The slice aliases the cloud's
// storage and has its capacity clipped so appends cannot clobber neighbours.
func (c *Cloud) Point(i int) []float64 {
	off := i * c.dim
	return c.coords[off : off+c.dim : off+c.dim]
}

// At returns coordinate axis of point i.
func (c *Cloud) At(i, axis int) float64 {
	return c.coords[i*c.dim+axis]
}

// XYZ returns the first three coordinates of point i. Missing axes read as 0.
func (c *Cloud) XYZ(i int) (x, y, z float64) {
	p := c.Point(i)
	switch {
	case c.dim >= 3:
		return p[0], p[1], p[2]
	case c.dim == 2:
		return p[0], p[1], 0
	default:
		return p[0], 0, 0
	}
}

// IsFinite reports whether every coordinate of point i is finite.
func (c *Cloud) IsFinite(i int) bool {
	for _, v := range c.Point(i) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Append adds a point and bumps the generation.
func (c *Cloud) Append(p ...float64) error {
	if len(p) != c.dim {
		return fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(p), c.dim)
	}
	c.coords = append(c.coords, p...)
	c.gen++
	return nil
}

// Set overwrites point i and bumps the generation.
func (c *Cloud) Set(i int, p []float64) error {
	if len(p) != c.dim {
		return fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(p), c.dim)
	}
	if i < 0 || i >= c.Len() {
		return fmt.Errorf("pointcloud: index %d out of range [0,%d)", i, c.Len())
	}
	copy(c.coords[i*c.dim:], p)
	c.gen++
	return nil
}

// Truncate drops every point from n onwards and bumps the generation.
func (c *Cloud) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n >= c.Len() {
		return
	}
	c.coords = c.coords[:n*c.dim]
	c.gen++
}

// Select copies the given points, in order, into a new cloud with a fresh identity.
func (c *Cloud) Select(ids []int) *Cloud {
	out := &Cloud{dim: c.dim, coords: make([]float64, 0, len(ids)*c.dim), id: uuid.New()}
	for _, i := range ids {
		out.coords = append(out.coords, c.Point(i)...)
	}
	return out
}

// Clone returns a deep copy with a fresh identity.
func (c *Cloud) Clone() *Cloud {
	coords := make([]float64, len(c.coords))
	copy(coords, c.coords)
	return &Cloud{dim: c.dim, coords: coords, id: uuid.New()}
}

// Bounds returns the axis-aligned bounding box of the finite points among ids
// (all points when ids is nil). ok is false when no finite point was seen.
func (c *Cloud) Bounds(ids []int) (lo, hi []float64, ok bool) {
	lo = make([]float64, c.dim)
	hi = make([]float64, c.dim)
	for d := range lo {
		lo[d] = math.Inf(1)
		hi[d] = math.Inf(-1)
	}
	visit := func(i int) {
		if !c.IsFinite(i) {
			return
		}
		ok = true
		for d, v := range c.Point(i) {
			if v < lo[d] {
				lo[d] = v
			}
			if v > hi[d] {
				hi[d] = v
			}
		}
	}
	if ids == nil {
		for i := 0; i < c.Len(); i++ {
			visit(i)
		}
	} else {
		for _, i := range ids {
			visit(i)
		}
	}
	return lo, hi, ok
}
