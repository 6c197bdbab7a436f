package fitting

import "fmt"

// Params controls the pole fitter.
type Params struct {
	// MinQuality is the minimum fraction of variance the principal axis
	// must explain; fits below it fail with LowQuality
	MinQuality float64

	// EndpointWindow is the distance along the axis, in pixels, within
	// which pixels near each extreme are averaged (intensity-weighted)
	// into the pole position; 0 uses only the extremal pixels, averaging
	// those tied at the same projection. Windows of 1 or more take in the
	// neighbours of axis-aligned spindles and shorten them.
	EndpointWindow float64

	// SelectRegion restricts the fit to the most central large object
	// instead of every signal pixel of the mask
	SelectRegion bool

	// MergeDistance joins objects whose pixels come closer than this
	// (Chebyshev distance) before the central object is chosen
	MergeDistance int

	// CurveSamples is the number of quadrature points used to integrate
	// the shape metrics of the fitted curve
	CurveSamples int
}

// DefaultParams returns the fitter configuration used when none is given.
func DefaultParams() Params {
	return Params{
		MinQuality:     0.6,
		EndpointWindow: 0,
		SelectRegion:   true,
		MergeDistance:  10,
		CurveSamples:   64,
	}
}

// Validate checks p for values the fitter cannot use.
func (p Params) Validate() error {
	if p.MinQuality < 0 || p.MinQuality > 1 {
		return fmt.Errorf("minQuality must be between 0 and 1, got %g", p.MinQuality)
	}
	if p.EndpointWindow < 0 {
		return fmt.Errorf("endpointWindow must be non-negative, got %g", p.EndpointWindow)
	}
	if p.MergeDistance < 0 {
		return fmt.Errorf("mergeDistance must be non-negative, got %d", p.MergeDistance)
	}
	if p.CurveSamples < 0 {
		return fmt.Errorf("curveSamples must be non-negative, got %d", p.CurveSamples)
	}
	return nil
}
