// Package features estimates local surface descriptors from neighbourhoods
// found through a search.Searcher.
package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/search"
)

// ErrNoNeighbourhood is returned when neither K nor Radius is configured.
var ErrNoNeighbourhood = errors.New("features: set K or Radius")

// Normal is an estimated surface normal. Invalid normals (fewer than three
// neighbours, or non-finite input) have NaN components and Valid unset.
type Normal struct {
	X, Y, Z   float64
	Curvature float64
	Valid     bool
}

// Dot returns the dot product of the normal with (x, y, z).
func (n Normal) Dot(x, y, z float64) float64 { return n.X*x + n.Y*y + n.Z*z }

var invalidNormal = Normal{X: math.NaN(), Y: math.NaN(), Z: math.NaN(), Curvature: math.NaN()}

// NormalEstimation fits a plane to each point's neighbourhood with PCA. The
// normal is the eigenvector of the smallest covariance eigenvalue, oriented
// towards Viewpoint. Curvature is λ0 / (λ0 + λ1 + λ2).
type NormalEstimation struct {
	// K selects the K nearest neighbours. Used when Radius is zero.
	K int
	// Radius selects every neighbour within Radius. Takes precedence over K.
	Radius float64
	// Viewpoint normals are flipped to face.
	Viewpoint [3]float64
	// Workers bounds the goroutines used by Compute. 1 runs sequentially,
	// which is required when the searcher is not safe for concurrent reads
	// (autotune.Search). 0 uses GOMAXPROCS.
	Workers int
}

// Compute estimates a normal for each id of cloud (every point when ids is
// nil). The result is parallel to ids.
func (ne *NormalEstimation) Compute(ctx context.Context, s search.Searcher, cloud *pointcloud.Cloud, ids []int) ([]Normal, error) {
	if ne.K <= 0 && ne.Radius <= 0 {
		return nil, ErrNoNeighbourhood
	}
	if cloud.Dim() != 3 {
		return nil, fmt.Errorf("%w: normals need 3-D points, got %d-D", search.ErrInvalidInput, cloud.Dim())
	}
	if ids == nil {
		ids = make([]int, cloud.Len())
		for i := range ids {
			ids[i] = i
		}
	}

	out := make([]Normal, len(ids))
	workers := ne.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	const chunk = 512

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		g.Go(func() error {
			cov := mat.NewSymDense(3, nil)
			var eig mat.EigenSym
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				n, err := ne.estimate(s, cloud, ids[i], cov, &eig)
				if err != nil {
					return err
				}
				out[i] = n
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (ne *NormalEstimation) estimate(s search.Searcher, cloud *pointcloud.Cloud, id int, cov *mat.SymDense, eig *mat.EigenSym) (Normal, error) {
	if !cloud.IsFinite(id) {
		return invalidNormal, nil
	}
	p := cloud.Point(id)
	var (
		ns  []search.Neighbor
		err error
	)
	if ne.Radius > 0 {
		ns, err = s.Radius(p, ne.Radius, 0)
	} else {
		ns, err = s.NearestK(p, ne.K)
	}
	if err != nil {
		return Normal{}, err
	}
	if len(ns) < 3 {
		return invalidNormal, nil
	}

	n, ok := fitPlane(cloud, ns, cov, eig)
	if !ok {
		return invalidNormal, nil
	}
	// Orient towards the viewpoint.
	vx, vy, vz := ne.Viewpoint[0]-p[0], ne.Viewpoint[1]-p[1], ne.Viewpoint[2]-p[2]
	if n.Dot(vx, vy, vz) < 0 {
		n.X, n.Y, n.Z = -n.X, -n.Y, -n.Z
	}
	return n, nil
}

// fitPlane computes the covariance of the neighbourhood and returns its
// smallest eigenvector.
func fitPlane(cloud *pointcloud.Cloud, ns []search.Neighbor, cov *mat.SymDense, eig *mat.EigenSym) (Normal, bool) {
	var cx, cy, cz float64
	for _, nb := range ns {
		x, y, z := cloud.XYZ(nb.ID)
		cx += x
		cy += y
		cz += z
	}
	inv := 1 / float64(len(ns))
	cx, cy, cz = cx*inv, cy*inv, cz*inv

	var xx, xy, xz, yy, yz, zz float64
	for _, nb := range ns {
		x, y, z := cloud.XYZ(nb.ID)
		dx, dy, dz := x-cx, y-cy, z-cz
		xx += dx * dx
		xy += dx * dy
		xz += dx * dz
		yy += dy * dy
		yz += dy * dz
		zz += dz * dz
	}
	cov.SetSym(0, 0, xx*inv)
	cov.SetSym(0, 1, xy*inv)
	cov.SetSym(0, 2, xz*inv)
	cov.SetSym(1, 1, yy*inv)
	cov.SetSym(1, 2, yz*inv)
	cov.SetSym(2, 2, zz*inv)

	if !eig.Factorize(cov, true) {
		return Normal{}, false
	}
	// Eigenvalues come back in ascending order.
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	n := Normal{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0), Valid: true}
	if sum := vals[0] + vals[1] + vals[2]; sum > 0 {
		n.Curvature = math.Max(vals[0], 0) / sum
	}
	return n, true
}
