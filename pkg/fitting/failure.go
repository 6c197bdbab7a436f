package fitting

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an automatic fit produced no estimate.
type FailureKind int

const (
	// NoSignal means the mask had no signal pixels
	NoSignal FailureKind = iota

	// LowQuality means the principal axis explains too little of the variance
	LowQuality

	// DegenerateGeometry means no axis or no pair of distinct poles could be resolved
	DegenerateGeometry
)

func (k FailureKind) String() string {
	switch k {
	case NoSignal:
		return "no-signal"
	case LowQuality:
		return "low-quality"
	case DegenerateGeometry:
		return "degenerate-geometry"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by FitFailure through errors.Is.
var (
	ErrNoSignal           = errors.New("no signal")
	ErrLowQuality         = errors.New("low fit quality")
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)

// FitFailure is the typed, non-fatal failure of Fit.
type FitFailure struct {
	Kind   FailureKind
	Detail string
}

func (f *FitFailure) Error() string {
	if f.Detail == "" {
		return fmt.Sprintf("fit failed: %s", f.Kind)
	}
	return fmt.Sprintf("fit failed: %s: %s", f.Kind, f.Detail)
}

// Is lets errors.Is match a FitFailure against the sentinel of its kind.
func (f *FitFailure) Is(target error) bool {
	switch f.Kind {
	case NoSignal:
		return target == ErrNoSignal
	case LowQuality:
		return target == ErrLowQuality
	case DegenerateGeometry:
		return target == ErrDegenerateGeometry
	}
	return false
}

func failf(kind FailureKind, format string, args ...interface{}) *FitFailure {
	return &FitFailure{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
