package pointcloud

import (
	"errors"
	"math"
	"testing"
)

func TestNew_InvalidDimension(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

func TestZeroCloudIsEmpty(t *testing.T) {
	var c Cloud
	if n := c.Len(); n != 0 {
		t.Errorf("zero Cloud Len = %d, want 0", n)
	}
	var nilCloud *Cloud
	if n := nilCloud.Len(); n != 0 {
		t.Errorf("nil Cloud Len = %d, want 0", n)
	}
	if err := c.Append(1, 2, 3); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Append on zero Cloud err = %v, want ErrDimensionMismatch", err)
	}
}

func TestFromRows(t *testing.T) {
	c, err := FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}})
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	if c.Len() != 3 || c.Dim() != 2 {
		t.Fatalf("got len=%d dim=%d, want 3,2", c.Len(), c.Dim())
	}
	if c.At(2, 1) != 6 {
		t.Errorf("At(2,1) = %f, want 6", c.At(2, 1))
	}

	_, err = FromRows([][]float64{{1, 2}, {3}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for ragged rows, got %v", err)
	}
}

func TestFromFlat_SharesStorage(t *testing.T) {
	coords := []float64{0, 0, 0, 1, 1, 1}
	c, err := FromFlat(3, coords)
	if err != nil {
		t.Fatalf("FromFlat: %v", err)
	}
	coords[3] = 9
	if c.At(1, 0) != 9 {
		t.Errorf("FromFlat should not copy, At(1,0) = %f", c.At(1, 0))
	}
	if _, err := FromFlat(3, []float64{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestMutationBumpsGeneration(t *testing.T) {
	c, _ := New(3)
	id := c.ID()
	if c.Generation() != 0 {
		t.Fatalf("fresh cloud generation = %d", c.Generation())
	}

	if err := c.Append(1, 2, 3); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := c.Append(4, 5, 6); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if c.Generation() != 2 {
		t.Errorf("generation after two appends = %d, want 2", c.Generation())
	}

	if err := c.Set(0, []float64{7, 8, 9}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if c.Generation() != 3 {
		t.Errorf("generation after Set = %d, want 3", c.Generation())
	}

	c.Truncate(1)
	if c.Len() != 1 || c.Generation() != 4 {
		t.Errorf("after Truncate len=%d gen=%d, want 1,4", c.Len(), c.Generation())
	}

	c.Truncate(5) // no-op
	if c.Generation() != 4 {
		t.Errorf("no-op Truncate should not bump generation")
	}

	if c.ID() != id {
		t.Error("mutation must not change the identity token")
	}
}

func TestAppendSet_Errors(t *testing.T) {
	c, _ := New(3)
	if err := c.Append(1, 2); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Append wrong dim: got %v", err)
	}
	if err := c.Set(0, []float64{1, 2, 3}); err == nil {
		t.Error("Set out of range should fail")
	}
}

func TestPoint_CapacityClipped(t *testing.T) {
	c := FromXYZ([][3]float64{{1, 2, 3}, {4, 5, 6}})
	p := c.Point(0)
	_ = append(p, 99)
	if c.At(1, 0) != 4 {
		t.Errorf("append through Point clobbered the next point: %f", c.At(1, 0))
	}
}

func TestIsFiniteAndBounds(t *testing.T) {
	c := FromXYZ([][3]float64{
		{-1, 0, 2},
		{math.NaN(), 0, 0},
		{3, -4, 1},
		{0, math.Inf(1), 0},
	})
	if c.IsFinite(1) || c.IsFinite(3) {
		t.Error("NaN/Inf points should not be finite")
	}
	if !c.IsFinite(0) {
		t.Error("point 0 should be finite")
	}

	lo, hi, ok := c.Bounds(nil)
	if !ok {
		t.Fatal("Bounds reported no finite points")
	}
	wantLo := []float64{-1, -4, 1}
	wantHi := []float64{3, 0, 2}
	for d := 0; d < 3; d++ {
		if lo[d] != wantLo[d] || hi[d] != wantHi[d] {
			t.Errorf("axis %d: got [%f,%f], want [%f,%f]", d, lo[d], hi[d], wantLo[d], wantHi[d])
		}
	}

	if _, _, ok := c.Bounds([]int{1, 3}); ok {
		t.Error("Bounds over only non-finite points should report !ok")
	}
}

func TestSelectAndClone(t *testing.T) {
	c := FromXYZ([][3]float64{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}})
	sel := c.Select([]int{2, 0, 2})
	if sel.Len() != 3 || sel.At(0, 0) != 2 || sel.At(1, 0) != 0 {
		t.Errorf("Select produced wrong points")
	}
	if sel.ID() == c.ID() {
		t.Error("Select should produce a fresh identity")
	}

	cl := c.Clone()
	_ = cl.Set(0, []float64{5, 5, 5})
	if c.At(0, 0) != 0 {
		t.Error("Clone shares storage with the source")
	}
}

func TestXYZ(t *testing.T) {
	c2, _ := FromRows([][]float64{{1, 2}})
	x, y, z := c2.XYZ(0)
	if x != 1 || y != 2 || z != 0 {
		t.Errorf("XYZ on 2-D cloud = (%f,%f,%f)", x, y, z)
	}
}

func TestSyntheticGenerators(t *testing.T) {
	g := GridCube(11, 0.1, -0.5)
	if g.Len() != 1331 {
		t.Fatalf("GridCube(11) len = %d, want 1331", g.Len())
	}
	lo, hi, _ := g.Bounds(nil)
	if math.Abs(lo[0]+0.5) > 1e-12 || math.Abs(hi[2]-0.5) > 1e-12 {
		t.Errorf("GridCube bounds = %v %v", lo, hi)
	}

	a := Uniform(100, 4, -1, 1, 7)
	b := Uniform(100, 4, -1, 1, 7)
	if a.Dim() != 4 || a.Len() != 100 {
		t.Fatalf("Uniform shape = %d×%d", a.Len(), a.Dim())
	}
	for i := 0; i < a.Len(); i++ {
		for d := 0; d < 4; d++ {
			if a.At(i, d) != b.At(i, d) {
				t.Fatal("Uniform is not deterministic for equal seeds")
			}
		}
	}

	cl := Clustered(300, 3, 10, 0.2, 1)
	if cl.Len() != 300 || cl.Dim() != 3 {
		t.Errorf("Clustered shape = %d×%d", cl.Len(), cl.Dim())
	}

	s := Sphere(200, 2)
	for i := 0; i < s.Len(); i++ {
		x, y, z := s.XYZ(i)
		if r := math.Sqrt(x*x + y*y + z*z); math.Abs(r-2) > 1e-9 {
			t.Fatalf("Sphere point %d radius %f", i, r)
		}
	}
}
