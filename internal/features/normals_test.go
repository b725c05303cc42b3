package features

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/cloudsearch/internal/pointcloud"
	"github.com/banshee-data/cloudsearch/internal/search"
)

func buildKdTree(t *testing.T, cloud *pointcloud.Cloud) search.Strategy {
	t.Helper()
	v, err := search.NewView(cloud, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	s := search.NewKdTree(nil, 0)
	if err := s.Build(v); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return s
}

// planeCloud returns an n×n lattice in the z = 0 plane.
func planeCloud(n int) *pointcloud.Cloud {
	pts := make([][3]float64, 0, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			pts = append(pts, [3]float64{float64(i) * 0.1, float64(j) * 0.1, 0})
		}
	}
	return pointcloud.FromXYZ(pts)
}

func TestNormalEstimation_Plane(t *testing.T) {
	cloud := planeCloud(20)
	s := buildKdTree(t, cloud)

	for _, ne := range []*NormalEstimation{
		{K: 8, Viewpoint: [3]float64{0, 0, 10}},
		{Radius: 0.25, Viewpoint: [3]float64{0, 0, 10}, Workers: 1},
	} {
		normals, err := ne.Compute(context.Background(), s, cloud, nil)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if len(normals) != cloud.Len() {
			t.Fatalf("got %d normals, want %d", len(normals), cloud.Len())
		}
		for i, n := range normals {
			if !n.Valid {
				t.Fatalf("normal %d invalid", i)
			}
			if math.Abs(n.Z-1) > 1e-9 || math.Abs(n.X) > 1e-9 || math.Abs(n.Y) > 1e-9 {
				t.Fatalf("normal %d = (%f, %f, %f), want (0, 0, 1)", i, n.X, n.Y, n.Z)
			}
			if n.Curvature > 1e-9 {
				t.Errorf("normal %d curvature = %g, want 0 on a plane", i, n.Curvature)
			}
		}
	}
}

func TestNormalEstimation_FlipsTowardsViewpoint(t *testing.T) {
	cloud := planeCloud(10)
	s := buildKdTree(t, cloud)
	ne := &NormalEstimation{K: 6, Viewpoint: [3]float64{0.5, 0.5, -4}}
	normals, err := ne.Compute(context.Background(), s, cloud, []int{0, 55})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i, n := range normals {
		if n.Z > -0.999 {
			t.Errorf("normal %d should face -z, got %+v", i, n)
		}
	}
}

func TestNormalEstimation_Sphere(t *testing.T) {
	cloud := pointcloud.Sphere(2000, 1)
	s := buildKdTree(t, cloud)
	ne := &NormalEstimation{K: 12}
	normals, err := ne.Compute(context.Background(), s, cloud, nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i, n := range normals {
		x, y, z := cloud.XYZ(i)
		// Viewpoint is the centre, so normals point inwards.
		if d := n.Dot(x, y, z); d > -0.95 {
			t.Fatalf("normal %d not radial: dot = %f", i, d)
		}
		if n.Curvature <= 0 {
			t.Errorf("sphere point %d has zero curvature", i)
		}
	}
}

func TestNormalEstimation_InvalidNeighbourhoods(t *testing.T) {
	cloud := pointcloud.FromXYZ([][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {10, 10, 10}})
	s := buildKdTree(t, cloud)
	ne := &NormalEstimation{Radius: 1.5}
	normals, err := ne.Compute(context.Background(), s, cloud, nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !normals[0].Valid {
		t.Error("point 0 has three neighbours and should be valid")
	}
	if normals[3].Valid || !math.IsNaN(normals[3].X) {
		t.Errorf("isolated point should be invalid, got %+v", normals[3])
	}
}

func TestNormalEstimation_Errors(t *testing.T) {
	cloud := planeCloud(4)
	s := buildKdTree(t, cloud)

	if _, err := (&NormalEstimation{}).Compute(context.Background(), s, cloud, nil); !errors.Is(err, ErrNoNeighbourhood) {
		t.Errorf("expected ErrNoNeighbourhood, got %v", err)
	}

	flat := pointcloud.Uniform(10, 2, 0, 1, 1)
	if _, err := (&NormalEstimation{K: 3}).Compute(context.Background(), s, flat, nil); !errors.Is(err, search.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for 2-D cloud, got %v", err)
	}

	// A searcher built on the cloud goes stale once the cloud changes.
	if err := cloud.Append(5, 5, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := (&NormalEstimation{K: 3}).Compute(context.Background(), s, cloud, nil); !errors.Is(err, search.ErrStaleIndex) {
		t.Errorf("expected ErrStaleIndex, got %v", err)
	}
}
