package models

import (
	"math"
	"testing"
)

func TestCanonicalizeOrderIndependent(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Point
		wantA Point
	}{
		{"smaller x first", Point{1, 5}, Point{8, 2}, Point{1, 5}},
		{"swapped input", Point{8, 2}, Point{1, 5}, Point{1, 5}},
		{"vertical tie on x", Point{3, 9}, Point{3, 1}, Point{3, 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a1, b1 := Canonicalize(tc.a, tc.b)
			a2, b2 := Canonicalize(tc.b, tc.a)
			if a1 != tc.wantA {
				t.Errorf("Expected pole A %v, got %v", tc.wantA, a1)
			}
			if a1 != a2 || b1 != b2 {
				t.Errorf("Canonical order depends on input order: (%v,%v) vs (%v,%v)", a1, b1, a2, b2)
			}
		})
	}
}

func TestNewPoleEstimateRejectsCoincidentPoles(t *testing.T) {
	if _, err := NewPoleEstimate(Point{2, 2}, Point{2, 2}, 1, Manual); err == nil {
		t.Fatal("Expected an error for coincident poles")
	}
}

func TestMeasure(t *testing.T) {
	est, err := NewPoleEstimate(Point{8, 8}, Point{1, 1}, 1, Automatic)
	if err != nil {
		t.Fatalf("NewPoleEstimate failed: %v", err)
	}

	m := Measure(*est)
	if math.Abs(m.Length-math.Sqrt(98)) > 1e-9 {
		t.Errorf("Expected length %.4f, got %.4f", math.Sqrt(98), m.Length)
	}
	if math.Abs(m.Angle-45) > 1e-9 {
		t.Errorf("Expected angle 45, got %.4f", m.Angle)
	}
	if m.Midpoint != (Point{4.5, 4.5}) {
		t.Errorf("Expected midpoint (4.5, 4.5), got %v", m.Midpoint)
	}
}

func TestRecordMeasurementsFollowEstimate(t *testing.T) {
	rec := FrameRecord{Index: 0}
	if _, ok := rec.Measurements(); ok {
		t.Error("Unresolved record should have no measurements")
	}

	rec.Estimate, _ = NewPoleEstimate(Point{0, 0}, Point{3, 4}, 1, Manual)
	m, ok := rec.Measurements()
	if !ok || m.Length != 5 {
		t.Errorf("Expected length 5, got %v (ok=%v)", m.Length, ok)
	}
}

func TestFrameContains(t *testing.T) {
	f := NewFrame(0, 10, 5, 16)
	if !f.Contains(Point{0, 0}) || !f.Contains(Point{9.5, 4.9}) {
		t.Error("Expected points inside the frame to be contained")
	}
	if f.Contains(Point{-1, 0}) || f.Contains(Point{10, 0}) || f.Contains(Point{0, 5}) {
		t.Error("Expected points outside the frame to be rejected")
	}
}
