package search

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/banshee-data/cloudsearch/internal/pointcloud"
)

// Token identifies the exact input an index was built from.
type Token struct {
	CloudID    uuid.UUID
	Generation uint64
	// Subset is a hash of the index subset; 0 when the whole cloud is searched.
	Subset uint64
}

// View is a borrowed, read-only handle over a cloud and an optional index
// subset. It does not copy point data: the cloud must outlive every index built
// on the view, and any mutation of the cloud makes the view stale.
type View struct {
	cloud   *pointcloud.Cloud
	ids     []int
	members *roaring.Bitmap
	token   Token
	skipped int
}

// NewView resolves the searchable point set of cloud restricted to subset.
// A nil subset searches the whole cloud. Subset ids must be valid positions;
// duplicates are kept. Points with non-finite coordinates are skipped.
func NewView(cloud *pointcloud.Cloud, subset []int) (*View, error) {
	if cloud == nil || cloud.Len() == 0 {
		return nil, fmt.Errorf("%w: empty cloud", ErrInvalidInput)
	}
	if subset != nil && len(subset) == 0 {
		return nil, fmt.Errorf("%w: empty index subset", ErrInvalidInput)
	}

	n := cloud.Len()
	v := &View{
		cloud:   cloud,
		members: roaring.New(),
		token: Token{
			CloudID:    cloud.ID(),
			Generation: cloud.Generation(),
		},
	}

	if subset == nil {
		v.ids = make([]int, 0, n)
		for i := 0; i < n; i++ {
			if !cloud.IsFinite(i) {
				v.skipped++
				continue
			}
			v.ids = append(v.ids, i)
		}
	} else {
		h := fnv.New64a()
		var buf [8]byte
		v.ids = make([]int, 0, len(subset))
		for _, id := range subset {
			if id < 0 || id >= n {
				return nil, fmt.Errorf("%w: subset id %d out of range [0,%d)", ErrInvalidInput, id, n)
			}
			binary.LittleEndian.PutUint64(buf[:], uint64(id))
			_, _ = h.Write(buf[:])
			if !cloud.IsFinite(id) {
				v.skipped++
				continue
			}
			v.ids = append(v.ids, id)
		}
		v.token.Subset = h.Sum64() | 1 // never collides with the whole-cloud token
	}

	if len(v.ids) == 0 {
		return nil, fmt.Errorf("%w: no finite points to index", ErrInvalidInput)
	}
	for _, id := range v.ids {
		v.members.Add(uint32(id))
	}
	return v, nil
}

// Cloud returns the borrowed cloud.
func (v *View) Cloud() *pointcloud.Cloud { return v.cloud }

// IDs returns the searchable ids in subset order. Callers must not modify it.
func (v *View) IDs() []int { return v.ids }

// Len returns the number of searchable entries (duplicates included).
func (v *View) Len() int { return len(v.ids) }

// Dim returns the point dimension.
func (v *View) Dim() int { return v.cloud.Dim() }

// Token returns the identity of the input the view was taken from.
func (v *View) Token() Token { return v.token }

// Skipped returns how many subset entries were dropped for non-finite coordinates.
func (v *View) Skipped() int { return v.skipped }

// Contains reports whether id is searchable through this view.
func (v *View) Contains(id int) bool {
	return id >= 0 && v.members.Contains(uint32(id))
}

// Members returns a copy of the searchable id set.
func (v *View) Members() *roaring.Bitmap { return v.members.Clone() }

// Point returns the coordinates of point id.
func (v *View) Point(id int) []float64 { return v.cloud.Point(id) }

// Check fails with ErrStaleIndex when the cloud has been mutated since the
// view was taken.
func (v *View) Check() error {
	if g := v.cloud.Generation(); g != v.token.Generation {
		return fmt.Errorf("%w (built at generation %d, cloud at %d)", ErrStaleIndex, v.token.Generation, g)
	}
	return nil
}

// Bounds returns the bounding box of the searchable points.
func (v *View) Bounds() (lo, hi []float64) {
	lo, hi, _ = v.cloud.Bounds(v.ids)
	return lo, hi
}
