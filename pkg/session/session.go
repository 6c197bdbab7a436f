// Package session ties a loaded stack to its analysis parameters and
// its frame records.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"spindlefit/internal/models"
	"spindlefit/pkg/fitting"
	"spindlefit/pkg/store"
	"spindlefit/pkg/threshold"
)

// Params bundles the threshold and fitter settings used for a frame.
type Params struct {
	Threshold threshold.Params
	Fitting   fitting.Params
}

// Session is one loaded stack: its frames, the shared parameters, any
// per-frame parameter overrides and the record store. It is created when
// a stack is loaded and discarded when the stack is closed.
type Session struct {
	// ID correlates log lines of one session
	ID uuid.UUID

	frames []*models.Frame
	store  *store.Store

	mu        sync.RWMutex
	params    Params
	overrides map[int]Params
}

// New creates a session for frames. Frames are borrowed read-only and
// must be ordered by their Index.
func New(frames []*models.Frame, params Params) (*Session, error) {
	if err := params.Threshold.Validate(); err != nil {
		return nil, err
	}
	if err := params.Fitting.Validate(); err != nil {
		return nil, err
	}
	for i, f := range frames {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("invalid stack: %w", err)
		}
		if f.Index != i {
			return nil, fmt.Errorf("invalid stack: frame at position %d has index %d", i, f.Index)
		}
	}

	return &Session{
		ID:        uuid.New(),
		frames:    frames,
		store:     store.New(len(frames)),
		params:    params,
		overrides: make(map[int]Params),
	}, nil
}

// Len returns the number of frames in the stack.
func (s *Session) Len() int {
	return len(s.frames)
}

// Store returns the frame record store of the session.
func (s *Session) Store() *store.Store {
	return s.store
}

// Frame returns the frame at index.
func (s *Session) Frame(index int) (*models.Frame, error) {
	if index < 0 || index >= len(s.frames) {
		return nil, &store.StoreError{Op: "frame", Index: index, Err: store.ErrOutOfRange}
	}
	return s.frames[index], nil
}

// Params returns the parameters shared by every frame without an override.
func (s *Session) Params() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// SetParams replaces the shared parameters.
func (s *Session) SetParams(p Params) error {
	if err := p.Threshold.Validate(); err != nil {
		return err
	}
	if err := p.Fitting.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}

// ParamsFor returns the parameters in effect for the frame at index.
func (s *Session) ParamsFor(index int) Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.overrides[index]; ok {
		return p
	}
	return s.params
}

// SetFrameParams overrides the parameters of a single frame.
func (s *Session) SetFrameParams(index int, p Params) error {
	if _, err := s.Frame(index); err != nil {
		return err
	}
	if err := p.Threshold.Validate(); err != nil {
		return err
	}
	if err := p.Fitting.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.overrides[index] = p
	s.mu.Unlock()
	return nil
}

// ClearFrameParams drops the override of a frame.
func (s *Session) ClearFrameParams(index int) {
	s.mu.Lock()
	delete(s.overrides, index)
	s.mu.Unlock()
}

// Mask segments the frame at index with its effective parameters.
// Masks are derived on demand and never kept by the session.
func (s *Session) Mask(index int) (*threshold.Mask, error) {
	frame, err := s.Frame(index)
	if err != nil {
		return nil, err
	}
	return threshold.Segment(frame, s.ParamsFor(index).Threshold)
}
