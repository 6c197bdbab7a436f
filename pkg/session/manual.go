package session

import (
	"fmt"

	"spindlefit/internal/log"
	"spindlefit/internal/models"
	"spindlefit/pkg/fitting"
	"spindlefit/pkg/threshold"
)

// ValidationError reports human-supplied poles that cannot be stored.
type ValidationError struct {
	Index  int
	Pole   string
	Point  models.Point
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("frame %d: pole %s at %s %s", e.Index, e.Pole, e.Point, e.Reason)
}

// ApplyManual validates two poles entered by the user for the frame at
// index and stores them as a manual estimate. Both poles must lie inside
// the frame and be distinct. On error the store is unchanged.
//
// The estimate carries the body metrics of the segmented frame measured
// against the new poles. A frame that cannot be segmented still gets the
// pole separation as its arc length.
func ApplyManual(s *Session, index int, a, b models.Point) (models.FrameRecord, error) {
	frame, err := s.Frame(index)
	if err != nil {
		return models.FrameRecord{}, err
	}

	bounds := fmt.Sprintf("outside the %dx%d frame", frame.Width, frame.Height)
	if !frame.Contains(a) {
		return models.FrameRecord{}, &ValidationError{Index: index, Pole: "A", Point: a, Reason: bounds}
	}
	if !frame.Contains(b) {
		return models.FrameRecord{}, &ValidationError{Index: index, Pole: "B", Point: b, Reason: bounds}
	}
	if a.Equal(b) {
		return models.FrameRecord{}, &ValidationError{Index: index, Pole: "B", Point: b, Reason: "coincides with pole A"}
	}

	params := s.ParamsFor(index)
	mask, err := threshold.Segment(frame, params.Threshold)
	if err != nil {
		log.Warnw("manual poles measured without a mask", "frame", index, "error", err)
		mask = nil
	}
	shape := fitting.ManualShape(frame, mask, a, b, params.Fitting)

	return s.store.SetManual(index, a, b, shape)
}

// DefaultManualPoles returns the poles offered to the user before any
// are placed: on the horizontal centre line at 30% and 70% of the width,
// or the current estimate if the frame already has one.
func DefaultManualPoles(s *Session, index int) (models.Point, models.Point, error) {
	frame, err := s.Frame(index)
	if err != nil {
		return models.Point{}, models.Point{}, err
	}
	rec, err := s.store.Get(index)
	if err != nil {
		return models.Point{}, models.Point{}, err
	}
	if rec.Estimate != nil {
		return rec.Estimate.PoleA, rec.Estimate.PoleB, nil
	}

	w, h := float64(frame.Width), float64(frame.Height)
	return models.Point{X: 0.3 * w, Y: 0.5 * h}, models.Point{X: 0.7 * w, Y: 0.5 * h}, nil
}
