package search

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/cloudsearch/internal/pointcloud"
)

func TestNewView_Errors(t *testing.T) {
	empty, _ := pointcloud.New(3)
	cloud := pointcloud.FromXYZ([][3]float64{{0, 0, 0}, {1, 1, 1}})
	nan := pointcloud.FromXYZ([][3]float64{{math.NaN(), 0, 0}})

	tests := []struct {
		name   string
		cloud  *pointcloud.Cloud
		subset []int
	}{
		{"nil cloud", nil, nil},
		{"empty cloud", empty, nil},
		{"zero-value cloud", &pointcloud.Cloud{}, nil},
		{"empty subset", cloud, []int{}},
		{"negative id", cloud, []int{-1}},
		{"id out of range", cloud, []int{0, 2}},
		{"only non-finite points", nan, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewView(tt.cloud, tt.subset)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestNewView_SkipsNonFinite(t *testing.T) {
	cloud := pointcloud.FromXYZ([][3]float64{
		{0, 0, 0},
		{math.Inf(1), 0, 0},
		{1, 0, 0},
		{0, math.NaN(), 0},
	})
	v, err := NewView(cloud, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if v.Len() != 2 || v.Skipped() != 2 {
		t.Errorf("Len=%d Skipped=%d, want 2 and 2", v.Len(), v.Skipped())
	}
	if v.Contains(1) || !v.Contains(2) || v.Contains(-5) {
		t.Error("Contains disagrees with the finite id set")
	}
	if v.Token().Subset != 0 {
		t.Error("whole-cloud view should have a zero subset hash")
	}
}

func TestNewView_SubsetKeepsDuplicatesAndOrder(t *testing.T) {
	cloud := pointcloud.GridCube(3, 1, 0)
	v, err := NewView(cloud, []int{5, 2, 5})
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	ids := v.IDs()
	if len(ids) != 3 || ids[0] != 5 || ids[1] != 2 || ids[2] != 5 {
		t.Errorf("IDs() = %v, want [5 2 5]", ids)
	}
	if v.Members().GetCardinality() != 2 {
		t.Errorf("Members cardinality = %d, want 2", v.Members().GetCardinality())
	}

	other, _ := NewView(cloud, []int{2, 5, 5})
	if v.Token().Subset == 0 || v.Token() == other.Token() {
		t.Error("subset order should be part of the token")
	}
}

func TestView_StaleAfterMutation(t *testing.T) {
	cloud := pointcloud.GridCube(2, 1, 0)
	v, err := NewView(cloud, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := v.Check(); err != nil {
		t.Fatalf("fresh view should be valid: %v", err)
	}
	if err := cloud.Append(5, 5, 5); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := v.Check(); !errors.Is(err, ErrStaleIndex) {
		t.Errorf("expected ErrStaleIndex, got %v", err)
	}
}

func TestView_Bounds(t *testing.T) {
	cloud := pointcloud.FromXYZ([][3]float64{{0, 0, 0}, {5, -1, 2}, {1, 1, 1}})
	v, _ := NewView(cloud, []int{1, 2})
	lo, hi := v.Bounds()
	if lo[0] != 1 || lo[1] != -1 || lo[2] != 1 || hi[0] != 5 || hi[1] != 1 || hi[2] != 2 {
		t.Errorf("Bounds = %v %v", lo, hi)
	}
}
