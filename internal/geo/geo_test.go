package geo

import (
	"math"
	"testing"
)

func TestDistanceIdentity(t *testing.T) {
	p := Point{Lat: 10.0, Lng: 124.0}
	if d := Distance(p, p); d != 0 {
		t.Fatalf("expected 0 for identical points, got %f", d)
	}
}

func TestDistanceSymmetry(t *testing.T) {
	pairs := [][2]Point{
		{{10.0, 124.0}, {10.001, 124.001}},
		{{-33.86, 151.21}, {51.5, -0.12}},
		{{0, 0}, {0, 180}},
		{{89.9, 0}, {-89.9, 0}},
	}
	for _, pair := range pairs {
		ab := Distance(pair[0], pair[1])
		ba := Distance(pair[1], pair[0])
		if ab != ba {
			t.Errorf("distance not symmetric: %f vs %f for %v", ab, ba, pair)
		}
	}
}

func TestDistanceKnownValues(t *testing.T) {
	// One degree of latitude is ~111.19 km on the 6371 km sphere.
	d := Distance(Point{0, 0}, Point{1, 0})
	if math.Abs(d-111195) > 10 {
		t.Errorf("one degree latitude: got %f, want ~111195", d)
	}

	// ~30m offset north of a venue center.
	d = Distance(Point{10.0, 124.0}, Point{10.00027, 124.0})
	if d < 25 || d > 35 {
		t.Errorf("expected ~30m, got %f", d)
	}
}

func TestDistanceMonotonic(t *testing.T) {
	center := Point{10.0, 124.0}
	prev := 0.0
	for i := 1; i <= 10; i++ {
		p := Point{10.0 + float64(i)*0.0001, 124.0}
		d := Distance(center, p)
		if d <= prev {
			t.Fatalf("distance not monotonic with separation at step %d: %f <= %f", i, d, prev)
		}
		prev = d
	}
}

func TestDistanceNaNPropagates(t *testing.T) {
	d := Distance(Point{math.NaN(), 0}, Point{1, 1})
	if !math.IsNaN(d) {
		t.Fatalf("expected NaN, got %f", d)
	}
}
