package models

import (
	"fmt"
	"math"
)

// Point is a 2-D coordinate in image space (x to the right, y down).
type Point struct {
	X, Y float64
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Equal reports whether two points coincide.
func (p Point) Equal(q Point) bool {
	return p.Distance(q) < coincidenceTolerance
}

func (p Point) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

// coincidenceTolerance is the distance below which two poles are the same point.
const coincidenceTolerance = 1e-9

// Provenance records which path produced a PoleEstimate.
type Provenance int

const (
	Automatic Provenance = iota
	Manual
)

func (p Provenance) String() string {
	switch p {
	case Automatic:
		return "automatic"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

// ShapeMetrics are the curve-fit measurements of the spindle body.
// For manual estimates they are measured against the hand-placed poles.
type ShapeMetrics struct {
	// ArcLength is the length of the fitted quadratic between the poles
	ArcLength float64

	// AreaMetric is the area between the fitted curve and the pole chord
	AreaMetric float64

	// MaxCurvature is |2a| of the fitted quadratic
	MaxCurvature float64

	// AvgCurvature is the mean curvature between the poles
	AvgCurvature float64
}

// PoleEstimate holds the two spindle poles of one frame.
// PoleA and PoleB are always distinct and in canonical order.
type PoleEstimate struct {
	PoleA      Point
	PoleB      Point
	Quality    float64
	Provenance Provenance

	// Shape is nil when no curve could be fitted
	Shape *ShapeMetrics
}

// NewPoleEstimate builds a canonicalized estimate. It fails if the poles coincide.
func NewPoleEstimate(a, b Point, quality float64, provenance Provenance) (*PoleEstimate, error) {
	if a.Equal(b) {
		return nil, fmt.Errorf("poles coincide at %s", a)
	}
	a, b = Canonicalize(a, b)
	return &PoleEstimate{
		PoleA:      a,
		PoleB:      b,
		Quality:    quality,
		Provenance: provenance,
	}, nil
}

// Canonicalize orders two poles so that pole A has the smaller x,
// ties broken by the smaller y. The rule is stateless so pole A refers
// to the same end regardless of input order or provenance.
func Canonicalize(a, b Point) (Point, Point) {
	if b.X < a.X || (b.X == a.X && b.Y < a.Y) {
		return b, a
	}
	return a, b
}

// Measurements are the geometric quantities derived from a PoleEstimate.
type Measurements struct {
	// Length is the pole separation in pixels
	Length float64

	// Angle is the direction from pole A to pole B in degrees, measured
	// from the +x axis of the image; canonical order keeps it in (-90, 90]
	Angle float64

	// Midpoint is the mean of the two poles
	Midpoint Point
}

// Measure derives length, angle and midpoint from an estimate.
func Measure(e PoleEstimate) Measurements {
	dx := e.PoleB.X - e.PoleA.X
	dy := e.PoleB.Y - e.PoleA.Y
	return Measurements{
		Length: math.Hypot(dx, dy),
		Angle:  math.Atan2(dy, dx) * 180 / math.Pi,
		Midpoint: Point{
			X: (e.PoleA.X + e.PoleB.X) / 2,
			Y: (e.PoleA.Y + e.PoleB.Y) / 2,
		},
	}
}
