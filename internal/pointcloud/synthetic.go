package pointcloud

import (
	"math"
	"math/rand/v2"
)

// GridCube returns a 3-D lattice of n×n×n points spaced step apart, starting
// at origin on every axis. Points are ordered x-fastest.
func GridCube(n int, step, origin float64) *Cloud {
	pts := make([][3]float64, 0, n*n*n)
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				pts = append(pts, [3]float64{
					origin + float64(i)*step,
					origin + float64(j)*step,
					origin + float64(k)*step,
				})
			}
		}
	}
	return FromXYZ(pts)
}

// Uniform returns n points drawn uniformly from [lo, hi) on every axis.
// The same seed always yields the same cloud.
func Uniform(n, dim int, lo, hi float64, seed uint64) *Cloud {
	rng := rand.New(rand.NewPCG(seed, uint64(n)))
	coords := make([]float64, n*dim)
	for i := range coords {
		coords[i] = lo + rng.Float64()*(hi-lo)
	}
	c, _ := FromFlat(dim, coords)
	return c
}

// Clustered returns n 3-D points spread over the given number of Gaussian
// blobs with centres uniform in [-extent, extent) and standard deviation sigma.
func Clustered(n, clusters int, extent, sigma float64, seed uint64) *Cloud {
	if clusters < 1 {
		clusters = 1
	}
	rng := rand.New(rand.NewPCG(seed, uint64(n)^0x9e3779b97f4a7c15))
	centres := make([][3]float64, clusters)
	for i := range centres {
		for d := 0; d < 3; d++ {
			centres[i][d] = (rng.Float64()*2 - 1) * extent
		}
	}
	pts := make([][3]float64, n)
	for i := range pts {
		c := centres[i%clusters]
		for d := 0; d < 3; d++ {
			pts[i][d] = c[d] + rng.NormFloat64()*sigma
		}
	}
	return FromXYZ(pts)
}

// Sphere returns n points on the surface of a sphere of the given radius
// centred at the origin, spread with a Fibonacci lattice.
func Sphere(n int, radius float64) *Cloud {
	pts := make([][3]float64, n)
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := range pts {
		y := 1 - 2*(float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - y*y)
		theta := golden * float64(i)
		pts[i] = [3]float64{radius * r * math.Cos(theta), radius * y, radius * r * math.Sin(theta)}
	}
	return FromXYZ(pts)
}
