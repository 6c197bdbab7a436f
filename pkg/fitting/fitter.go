// Package fitting recovers the two spindle poles of a segmented frame.
//
// The fitter computes the intensity-weighted principal axis of the masked
// pixels, takes the extremal projections on that axis as the poles, and
// fits a quadratic in the axis frame to describe the curvature of the
// spindle body.
package fitting

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"

	"spindlefit/internal/models"
	"spindlefit/pkg/threshold"
)

// sample is one masked pixel with its intensity weight
type sample struct {
	x, y   float64
	weight float64
}

// axisFrame is the principal axis through the weighted centroid
type axisFrame struct {
	centroid models.Point
	// unit vector along the major axis
	ux, uy float64
	// major and minor eigenvalues of the weighted covariance
	major, minor float64
}

// project returns the coordinate of (x, y) along and across the axis
func (a axisFrame) project(x, y float64) (u, v float64) {
	dx := x - a.centroid.X
	dy := y - a.centroid.Y
	return dx*a.ux + dy*a.uy, -dx*a.uy + dy*a.ux
}

// Fit locates the two poles of the spindle in frame using its mask.
//
// Failures are reported as *FitFailure values:
//   - NoSignal when the mask is empty
//   - DegenerateGeometry when the region is a single pixel, has no
//     resolvable axis, or its extremal points coincide
//   - LowQuality when the principal axis explains less than
//     p.MinQuality of the variance
//
// On success the returned estimate is in canonical pole order and has
// Provenance Automatic.
func Fit(frame *models.Frame, mask *threshold.Mask, p Params) (*models.PoleEstimate, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if mask == nil || mask.Width != frame.Width || mask.Height != frame.Height {
		return nil, fmt.Errorf("mask does not match the %dx%d frame", frame.Width, frame.Height)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if mask.Empty() {
		return nil, &FitFailure{Kind: NoSignal}
	}

	var points []image.Point
	if p.SelectRegion {
		points = selectSpindle(frame, mask, p.MergeDistance)
	} else {
		points = mask.Points()
	}

	samples := weightedSamples(frame, points)
	if len(samples) < 2 {
		return nil, failf(DegenerateGeometry, "%d signal pixel(s), no resolvable axis", len(samples))
	}

	axis, err := principalAxis(samples)
	if err != nil {
		return nil, err
	}

	quality := axis.major / (axis.major + axis.minor)
	if quality < p.MinQuality {
		return nil, failf(LowQuality, "axis explains %.3f of the variance, need %.3f", quality, p.MinQuality)
	}

	low, high := extremalPoles(samples, axis, p.EndpointWindow)
	if low.Equal(high) {
		return nil, failf(DegenerateGeometry, "extremal points coincide at %s", low)
	}

	estimate, err := models.NewPoleEstimate(low, high, quality, models.Automatic)
	if err != nil {
		return nil, failf(DegenerateGeometry, "%v", err)
	}
	estimate.Shape = fitShape(samples, axis, p.CurveSamples)

	return estimate, nil
}

// weightedSamples pairs each pixel with its intensity. If every intensity
// is zero the pixels are weighted uniformly.
func weightedSamples(frame *models.Frame, points []image.Point) []sample {
	samples := make([]sample, len(points))
	total := 0.0
	for i, pt := range points {
		w := float64(frame.At(pt.X, pt.Y))
		samples[i] = sample{x: float64(pt.X), y: float64(pt.Y), weight: w}
		total += w
	}
	if total == 0 {
		for i := range samples {
			samples[i].weight = 1
		}
	}
	return samples
}

// principalAxis computes the weighted centroid and the eigen-decomposition
// of the weighted coordinate covariance
func principalAxis(samples []sample) (axisFrame, error) {
	var sumW, sumX, sumY float64
	for _, s := range samples {
		sumW += s.weight
		sumX += s.weight * s.x
		sumY += s.weight * s.y
	}
	cx := sumX / sumW
	cy := sumY / sumW

	var sxx, syy, sxy float64
	for _, s := range samples {
		dx := s.x - cx
		dy := s.y - cy
		sxx += s.weight * dx * dx
		syy += s.weight * dy * dy
		sxy += s.weight * dx * dy
	}
	sxx /= sumW
	syy /= sumW
	sxy /= sumW

	cov := mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy})
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return axisFrame{}, failf(DegenerateGeometry, "eigen-decomposition of the pixel covariance failed")
	}

	// Values are returned in ascending order
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	major := values[1]
	minor := math.Max(values[0], 0)
	if major <= 1e-12 {
		return axisFrame{}, failf(DegenerateGeometry, "pixels have no spatial spread")
	}

	return axisFrame{
		centroid: models.Point{X: cx, Y: cy},
		ux:       vectors.At(0, 1),
		uy:       vectors.At(1, 1),
		major:    major,
		minor:    minor,
	}, nil
}

// extremalPoles returns the intensity-weighted positions of the pixels
// within window of the lowest and highest projections on the axis
func extremalPoles(samples []sample, axis axisFrame, window float64) (models.Point, models.Point) {
	proj := make([]float64, len(samples))
	minU, maxU := math.Inf(1), math.Inf(-1)
	for i, s := range samples {
		u, _ := axis.project(s.x, s.y)
		proj[i] = u
		minU = math.Min(minU, u)
		maxU = math.Max(maxU, u)
	}

	// Rounding noise in the projection must not split tied extremes
	const eps = 1e-9
	var low, high centroidSum
	for i, s := range samples {
		if proj[i] <= minU+window+eps {
			low.add(s)
		}
		if proj[i] >= maxU-window-eps {
			high.add(s)
		}
	}

	return low.point(), high.point()
}

// centroidSum accumulates weighted and unweighted coordinate sums
type centroidSum struct {
	x, y, w    float64
	ux, uy, un float64
}

func (c *centroidSum) add(s sample) {
	c.x += s.weight * s.x
	c.y += s.weight * s.y
	c.w += s.weight
	c.ux += s.x
	c.uy += s.y
	c.un++
}

// point returns the weighted mean, or the plain mean when every weight is zero
func (c *centroidSum) point() models.Point {
	if c.w > 0 {
		return models.Point{X: c.x / c.w, Y: c.y / c.w}
	}
	return models.Point{X: c.ux / c.un, Y: c.uy / c.un}
}
