package threshold

import (
	"errors"
	"fmt"
	"strings"
)

// Method selects how the effective cutoff is derived from Params.Cutoff.
type Method int

const (
	// Fixed uses Params.Cutoff as an absolute intensity
	Fixed Method = iota

	// Percentile treats Params.Cutoff as a percentile (0-100) of the
	// frame's intensity distribution
	Percentile
)

func (m Method) String() string {
	switch m {
	case Fixed:
		return "fixed"
	case Percentile:
		return "percentile"
	default:
		return "unknown"
	}
}

// ParseMethod converts a configuration string into a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed", "":
		return Fixed, nil
	case "percentile", "adaptive":
		return Percentile, nil
	default:
		return Fixed, fmt.Errorf("unknown threshold method %q", s)
	}
}

// Params controls which pixels are classified as spindle signal.
// A single Params value is shared read-only by every frame of a batch run.
type Params struct {
	Method Method

	// Cutoff is an intensity for Fixed, or a percentile in [0, 100] for Percentile
	Cutoff float64

	// MinRegionSize drops connected signal regions with fewer pixels
	MinRegionSize int

	// ErosionIterations is the number of neighbourhood erosion passes (0 disables)
	ErosionIterations int

	// ErosionFactor is the minimum number of signal pixels in the 3x3
	// neighbourhood (centre included) for a pixel to survive a pass
	ErosionFactor int

	// ClearBorder forces the outermost row and column to background
	ClearBorder bool

	// MedianFilter replaces each intensity by the median of its 3x3
	// neighbourhood before thresholding, suppressing shot noise
	MedianFilter bool
}

// DefaultParams returns the parameters the interactive tool starts with.
func DefaultParams() Params {
	return Params{
		Method:            Fixed,
		Cutoff:            1000,
		MinRegionSize:     10,
		ErosionIterations: 1,
		ErosionFactor:     4,
		ClearBorder:       true,
	}
}

// ErrInvalidParams is matched by every ThresholdError.
var ErrInvalidParams = errors.New("invalid threshold parameters")

// ThresholdError reports parameters that cannot be applied to a frame.
type ThresholdError struct {
	Param  string
	Value  float64
	Reason string
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("threshold: %s=%g: %s", e.Param, e.Value, e.Reason)
}

func (e *ThresholdError) Unwrap() error {
	return ErrInvalidParams
}

// Validate checks the frame-independent constraints on p.
func (p Params) Validate() error {
	if p.MinRegionSize < 0 {
		return &ThresholdError{Param: "minRegionSize", Value: float64(p.MinRegionSize), Reason: "must be non-negative"}
	}
	if p.ErosionIterations < 0 {
		return &ThresholdError{Param: "erosionIterations", Value: float64(p.ErosionIterations), Reason: "must be non-negative"}
	}
	if p.ErosionFactor < 0 || p.ErosionFactor > 9 {
		return &ThresholdError{Param: "erosionFactor", Value: float64(p.ErosionFactor), Reason: "must be between 0 and 9"}
	}
	switch p.Method {
	case Fixed:
		if p.Cutoff < 0 {
			return &ThresholdError{Param: "cutoff", Value: p.Cutoff, Reason: "must be non-negative"}
		}
	case Percentile:
		if p.Cutoff < 0 || p.Cutoff > 100 {
			return &ThresholdError{Param: "cutoff", Value: p.Cutoff, Reason: "percentile must be between 0 and 100"}
		}
	default:
		return &ThresholdError{Param: "method", Value: float64(p.Method), Reason: "unknown method"}
	}
	return nil
}
