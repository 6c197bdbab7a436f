package fitting

import (
	"image"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"

	"spindlefit/internal/models"
	"spindlefit/pkg/threshold"
)

// quadratic is v = a*u^2 + b*u + c in the axis frame
type quadratic struct {
	a, b, c float64
}

func (q quadratic) at(u float64) float64 {
	return q.a*u*u + q.b*u + q.c
}

// slope returns dv/du at u
func (q quadratic) slope(u float64) float64 {
	return 2*q.a*u + q.b
}

// solveQuadratic fits v(u) through the samples in the given frame by
// least squares. It reports false when the system is rank deficient.
func solveQuadratic(samples []sample, axis axisFrame) (quadratic, bool) {
	if len(samples) < 3 {
		return quadratic{}, false
	}

	design := mat.NewDense(len(samples), 3, nil)
	target := mat.NewVecDense(len(samples), nil)
	for i, s := range samples {
		u, v := axis.project(s.x, s.y)
		design.Set(i, 0, u*u)
		design.Set(i, 1, u)
		design.Set(i, 2, 1)
		target.SetVec(i, v)
	}

	// SolveVec on a tall matrix is a QR least-squares solve
	var coef mat.VecDense
	if err := coef.SolveVec(design, target); err != nil {
		return quadratic{}, false
	}
	q := quadratic{a: coef.AtVec(0), b: coef.AtVec(1), c: coef.AtVec(2)}
	if math.IsNaN(q.a) || math.IsNaN(q.b) || math.IsNaN(q.c) {
		return quadratic{}, false
	}
	return q, true
}

// curveMetrics integrates the shape of q over [u0, u1] against the
// straight line chord
func curveMetrics(q quadratic, u0, u1 float64, chord func(u float64) float64, n int) models.ShapeMetrics {
	arc := quad.Fixed(func(u float64) float64 {
		s := q.slope(u)
		return math.Sqrt(1 + s*s)
	}, u0, u1, n, nil, 0)

	area := quad.Fixed(func(u float64) float64 {
		return chord(u) - q.at(u)
	}, u0, u1, n, nil, 0)

	curvature := quad.Fixed(func(u float64) float64 {
		s := q.slope(u)
		return 2 * q.a / math.Pow(1+s*s, 1.5)
	}, u0, u1, n, nil, 0)

	return models.ShapeMetrics{
		ArcLength:    arc,
		AreaMetric:   math.Abs(area),
		MaxCurvature: math.Abs(2 * q.a),
		AvgCurvature: math.Abs(curvature / (u1 - u0)),
	}
}

// fitShape fits a quadratic through the samples in the axis frame and
// integrates the shape metrics between the extremal projections. It
// returns nil when no curve can be fitted.
func fitShape(samples []sample, axis axisFrame, n int) *models.ShapeMetrics {
	if n <= 0 {
		return nil
	}

	minU, maxU := math.Inf(1), math.Inf(-1)
	for _, s := range samples {
		u, _ := axis.project(s.x, s.y)
		minU = math.Min(minU, u)
		maxU = math.Max(maxU, u)
	}
	if maxU-minU <= 0 {
		return nil
	}

	q, ok := solveQuadratic(samples, axis)
	if !ok {
		return nil
	}

	// chord through the curve's end points
	v1, v2 := q.at(minU), q.at(maxU)
	m := (v2 - v1) / (maxU - minU)
	shape := curveMetrics(q, minU, maxU, func(u float64) float64 {
		return m*(u-minU) + v1
	}, n)
	return &shape
}

// ManualShape measures the spindle body of frame against poles placed by
// hand. The arc length is the pole separation. Area and curvature come
// from a quadratic fitted through the spindle pixels of mask in the frame
// of the pole chord, and stay zero when the mask has no usable signal.
//
// The result depends only on the frame, the mask and the pole pair, not
// on the order the poles are given in.
func ManualShape(frame *models.Frame, mask *threshold.Mask, a, b models.Point, p Params) *models.ShapeMetrics {
	a, b = models.Canonicalize(a, b)
	length := a.Distance(b)
	shape := &models.ShapeMetrics{ArcLength: length}

	if frame == nil || mask == nil || mask.Empty() || length == 0 || p.CurveSamples <= 0 {
		return shape
	}
	if mask.Width != frame.Width || mask.Height != frame.Height {
		return shape
	}

	var points []image.Point
	if p.SelectRegion {
		points = selectSpindle(frame, mask, p.MergeDistance)
	} else {
		points = mask.Points()
	}

	chord := axisFrame{
		centroid: a,
		ux:       (b.X - a.X) / length,
		uy:       (b.Y - a.Y) / length,
	}
	q, ok := solveQuadratic(weightedSamples(frame, points), chord)
	if !ok {
		return shape
	}

	m := curveMetrics(q, 0, length, func(float64) float64 { return 0 }, p.CurveSamples)
	shape.AreaMetric = m.AreaMetric
	shape.MaxCurvature = m.MaxCurvature
	shape.AvgCurvature = m.AvgCurvature
	return shape
}
