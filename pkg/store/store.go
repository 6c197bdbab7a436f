// Package store holds the per-frame measurement records of a stack.
//
// Every record is guarded by its own mutex and carries a revision counter
// that advances on each estimate write. Automatic writers read the revision before
// fitting and commit with CompareAndSetAutomatic, so a manual override that
// lands while a fit is in flight is never replaced by the stale result.
package store

import (
	"errors"
	"fmt"
	"sync"

	"spindlefit/internal/models"
)

// Sentinel errors wrapped by StoreError.
var (
	ErrOutOfRange      = errors.New("frame index out of range")
	ErrManualProtected = errors.New("record is manually set")
	ErrStaleRevision   = errors.New("record changed since it was read")
	ErrInvalidOutcome  = errors.New("invalid automatic outcome")
)

// StoreError reports a failed store operation on one frame.
type StoreError struct {
	Op    string
	Index int
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s frame %d: %v", e.Op, e.Index, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// slot is one frame record and its write lock
type slot struct {
	mu       sync.Mutex
	record   models.FrameRecord
	revision uint64
}

// Store is an ordered, fixed-size collection of frame records.
type Store struct {
	slots []slot
}

// New creates a store with one unprocessed record per frame index.
func New(frameCount int) *Store {
	if frameCount < 0 {
		frameCount = 0
	}
	s := &Store{slots: make([]slot, frameCount)}
	for i := range s.slots {
		s.slots[i].record = models.FrameRecord{Index: i, Status: models.Unprocessed}
	}
	return s
}

// Len returns the number of frames.
func (s *Store) Len() int {
	return len(s.slots)
}

func (s *Store) at(op string, index int) (*slot, error) {
	if index < 0 || index >= len(s.slots) {
		return nil, &StoreError{Op: op, Index: index, Err: ErrOutOfRange}
	}
	return &s.slots[index], nil
}

// Get returns a copy of the record at index.
func (s *Store) Get(index int) (models.FrameRecord, error) {
	sl, err := s.at("get", index)
	if err != nil {
		return models.FrameRecord{}, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return cloneRecord(sl.record), nil
}

// Revision returns the current revision of the record at index.
func (s *Store) Revision(index int) (uint64, error) {
	sl, err := s.at("revision", index)
	if err != nil {
		return 0, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.revision, nil
}

// Snapshot returns a copy of the record at index with its revision.
func (s *Store) Snapshot(index int) (models.FrameRecord, uint64, error) {
	sl, err := s.at("snapshot", index)
	if err != nil {
		return models.FrameRecord{}, 0, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return cloneRecord(sl.record), sl.revision, nil
}

// Iterate returns copies of all records ordered by frame index.
func (s *Store) Iterate() []models.FrameRecord {
	records := make([]models.FrameRecord, len(s.slots))
	for i := range s.slots {
		sl := &s.slots[i]
		sl.mu.Lock()
		records[i] = cloneRecord(sl.record)
		sl.mu.Unlock()
	}
	return records
}

// SetAutomatic stores the outcome of an automatic fit.
//
// A successful outcome sets status fit-succeeded; a failed one sets
// fit-failed, clears the estimate and records the failure reason. A
// manually-set record is only replaced when overwriteManual is true,
// otherwise ErrManualProtected is returned and the record is untouched.
func (s *Store) SetAutomatic(index int, outcome models.Outcome, overwriteManual bool) (models.FrameRecord, error) {
	return s.setAutomatic("set-automatic", index, nil, outcome, overwriteManual)
}

// CompareAndSetAutomatic is SetAutomatic guarded by the revision read
// before the fit started. If the record was written since, the call
// fails with ErrStaleRevision and the record is untouched.
func (s *Store) CompareAndSetAutomatic(index int, revision uint64, outcome models.Outcome, overwriteManual bool) (models.FrameRecord, error) {
	return s.setAutomatic("compare-and-set", index, &revision, outcome, overwriteManual)
}

func (s *Store) setAutomatic(op string, index int, expected *uint64, outcome models.Outcome, overwriteManual bool) (models.FrameRecord, error) {
	sl, err := s.at(op, index)
	if err != nil {
		return models.FrameRecord{}, err
	}

	estimate, err := automaticEstimate(outcome)
	if err != nil {
		return models.FrameRecord{}, &StoreError{Op: op, Index: index, Err: err}
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if expected != nil && *expected != sl.revision {
		return cloneRecord(sl.record), &StoreError{Op: op, Index: index, Err: ErrStaleRevision}
	}
	if sl.record.Status == models.ManuallySet && !overwriteManual {
		return cloneRecord(sl.record), &StoreError{Op: op, Index: index, Err: ErrManualProtected}
	}

	if estimate != nil {
		sl.record.Status = models.FitSucceeded
		sl.record.Estimate = estimate
		sl.record.FailureReason = ""
	} else {
		sl.record.Status = models.FitFailed
		sl.record.Estimate = nil
		sl.record.FailureReason = outcome.Err.Error()
	}
	sl.revision++

	return cloneRecord(sl.record), nil
}

// automaticEstimate validates an outcome and returns the canonical
// estimate to store, or nil for a failure
func automaticEstimate(outcome models.Outcome) (*models.PoleEstimate, error) {
	switch {
	case outcome.Estimate != nil && outcome.Err != nil:
		return nil, fmt.Errorf("%w: both estimate and error set", ErrInvalidOutcome)
	case outcome.Err != nil:
		return nil, nil
	case outcome.Estimate == nil:
		return nil, fmt.Errorf("%w: neither estimate nor error set", ErrInvalidOutcome)
	}

	e := cloneEstimate(outcome.Estimate)
	if e.PoleA.Equal(e.PoleB) {
		return nil, fmt.Errorf("%w: poles coincide at %s", ErrInvalidOutcome, e.PoleA)
	}
	e.PoleA, e.PoleB = models.Canonicalize(e.PoleA, e.PoleB)
	e.Provenance = models.Automatic
	return e, nil
}

// SetManual stores a human-supplied pair of poles regardless of the
// record's status. The poles are canonicalized and must be distinct.
// shape holds the body metrics measured against those poles and may be nil.
func (s *Store) SetManual(index int, a, b models.Point, shape *models.ShapeMetrics) (models.FrameRecord, error) {
	sl, err := s.at("set-manual", index)
	if err != nil {
		return models.FrameRecord{}, err
	}

	estimate, err := models.NewPoleEstimate(a, b, 1, models.Manual)
	if err != nil {
		return models.FrameRecord{}, &StoreError{Op: "set-manual", Index: index, Err: err}
	}
	if shape != nil {
		metrics := *shape
		estimate.Shape = &metrics
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.record.Status = models.ManuallySet
	sl.record.Estimate = estimate
	sl.record.FailureReason = ""
	sl.revision++

	return cloneRecord(sl.record), nil
}

// SetExcluded marks or unmarks a frame as tossed from the results.
// The estimate and status are kept so the frame can be restored, and the
// revision does not change since no estimate was written.
func (s *Store) SetExcluded(index int, excluded bool) (models.FrameRecord, error) {
	sl, err := s.at("set-excluded", index)
	if err != nil {
		return models.FrameRecord{}, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.record.Excluded = excluded
	return cloneRecord(sl.record), nil
}

func cloneRecord(r models.FrameRecord) models.FrameRecord {
	r.Estimate = cloneEstimate(r.Estimate)
	return r
}

func cloneEstimate(e *models.PoleEstimate) *models.PoleEstimate {
	if e == nil {
		return nil
	}
	c := *e
	if e.Shape != nil {
		shape := *e.Shape
		c.Shape = &shape
	}
	return &c
}
