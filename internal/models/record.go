package models

// Status is the processing state of one frame.
type Status int

const (
	Unprocessed Status = iota
	FitSucceeded
	FitFailed
	ManuallySet
)

func (s Status) String() string {
	switch s {
	case Unprocessed:
		return "unprocessed"
	case FitSucceeded:
		return "fit-succeeded"
	case FitFailed:
		return "fit-failed"
	case ManuallySet:
		return "manually-set"
	default:
		return "unknown"
	}
}

// FrameRecord is the current measurement state of one frame.
// Records handed out by the store are copies; mutating them has no effect.
type FrameRecord struct {
	Index  int
	Status Status

	// Estimate is nil while the frame is unresolved
	Estimate *PoleEstimate

	// FailureReason describes the last automatic failure
	FailureReason string

	// Excluded marks a frame the user tossed from the results
	Excluded bool
}

// Measurements derives the geometry of the current estimate.
// The second return value is false when the record has no estimate.
func (r FrameRecord) Measurements() (Measurements, bool) {
	if r.Estimate == nil {
		return Measurements{}, false
	}
	return Measure(*r.Estimate), true
}

// Resolved reports whether the record carries an estimate.
func (r FrameRecord) Resolved() bool {
	return r.Estimate != nil
}

// Outcome is the result of one automatic fit attempt: exactly one of
// Estimate and Err is set.
type Outcome struct {
	Estimate *PoleEstimate
	Err      error
}
