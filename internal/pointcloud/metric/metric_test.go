package metric

import (
	"math"
	"testing"
)

func TestMinkowski_Distance(t *testing.T) {
	a := []float64{0, 0, 0}
	b := []float64{3, 4, 12}

	tests := []struct {
		m    Metric
		want float64
	}{
		{Euclidean, 13},
		{Manhattan, 19},
		{Chebyshev, 12},
	}
	for _, tt := range tests {
		t.Run(tt.m.Name(), func(t *testing.T) {
			if got := tt.m.Distance(a, b); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Distance = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestMinkowski_HigherDimension(t *testing.T) {
	a := []float64{1, 1, 1, 1}
	b := []float64{2, 2, 2, 2}
	if got := Euclidean.Distance(a, b); math.Abs(got-2) > 1e-12 {
		t.Errorf("4-D euclidean = %f, want 2", got)
	}
	p3 := Minkowski{P: 3}
	if got := p3.Distance([]float64{0, 0}, []float64{1, 1}); math.Abs(got-math.Cbrt(2)) > 1e-12 {
		t.Errorf("L3 = %f, want %f", got, math.Cbrt(2))
	}
	if p3.Name() != "minkowski(3)" {
		t.Errorf("Name() = %q", p3.Name())
	}
}

func TestBoxDistance(t *testing.T) {
	lo := []float64{0, 0, 0}
	hi := []float64{1, 1, 1}

	tests := []struct {
		name string
		q    []float64
		m    Bounded
		want float64
	}{
		{"inside", []float64{0.5, 0.5, 0.5}, Euclidean, 0},
		{"on face", []float64{1, 0.5, 0.5}, Euclidean, 0},
		{"one axis", []float64{3, 0.5, 0.5}, Euclidean, 2},
		{"corner l2", []float64{2, 2, 2}, Euclidean, math.Sqrt(3)},
		{"corner l1", []float64{2, 2, 2}, Manhattan, 3},
		{"corner linf", []float64{2, -3, 2}, Chebyshev, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.BoxDistance(tt.q, lo, hi); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("BoxDistance = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestBoxDistance_IsLowerBound(t *testing.T) {
	lo := []float64{-1, -1, -1}
	hi := []float64{1, 2, 0.5}
	q := []float64{3, -2, 4}
	inside := [][]float64{{-1, -1, -1}, {1, 2, 0.5}, {0.9, -0.9, 0.4}, {0, 0, 0}}

	for _, m := range []Bounded{Euclidean, Manhattan, Chebyshev, Minkowski{P: 3}} {
		bound := m.BoxDistance(q, lo, hi)
		for _, p := range inside {
			if d := m.Distance(q, p); d+1e-12 < bound {
				t.Errorf("%s: distance %f to %v below box bound %f", m.Name(), d, p, bound)
			}
		}
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"euclidean", "manhattan", "chebyshev"} {
		m, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if m.Name() != name {
			t.Errorf("ByName(%q).Name() = %q", name, m.Name())
		}
	}
	if m, err := ByName(""); err != nil || m.Name() != "euclidean" {
		t.Errorf("empty name should default to euclidean")
	}
	if _, err := ByName("cosine"); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestFunc_NotBounded(t *testing.T) {
	var m Metric = Func{Label: "abs-x", Fn: func(a, b []float64) float64 { return math.Abs(a[0] - b[0]) }}
	if _, ok := m.(Bounded); ok {
		t.Error("Func should not satisfy Bounded")
	}
	if got := m.Distance([]float64{1, 5}, []float64{4, -5}); got != 3 {
		t.Errorf("Distance = %f, want 3", got)
	}
}
