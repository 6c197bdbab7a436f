// Package batch runs the thresholder and the pole fitter across the frames
// of a session and records every outcome in the session's store.
//
// Frames are fitted concurrently on a bounded pool of workers. Each commit
// is a revision check-and-set against the record read before the fit, so a
// manual override that arrives mid-fit always wins over the stale result.
// A failed frame never aborts the run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spindlefit/internal/log"
	"spindlefit/internal/models"
	"spindlefit/pkg/fitting"
	"spindlefit/pkg/session"
	"spindlefit/pkg/store"
	"spindlefit/pkg/threshold"
)

// Result is the outcome category of one frame in a run.
type Result int

const (
	Succeeded Result = iota
	Failed
	Skipped
)

func (r Result) String() string {
	switch r {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ProgressCallback reports progress during a run. It is called from
// worker goroutines, one call at a time.
type ProgressCallback func(completed, total int, message string)

// Summary counts the outcomes of a run. Frame lists are ascending.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int

	FailedFrames  []int
	SkippedFrames []int

	// Canceled is set when the run stopped before reaching every frame
	Canceled bool
}

// Processed returns the number of frames that were reached.
func (s Summary) Processed() int {
	return s.Succeeded + s.Failed + s.Skipped
}

// Runner drives batch processing.
type Runner struct {
	// Workers bounds the number of frames fitted at once; values below 1
	// use runtime.NumCPU()
	Workers int

	// Progress is optional
	Progress ProgressCallback
}

// NewRunner creates a runner with the given worker count.
func NewRunner(workers int) *Runner {
	return &Runner{Workers: workers}
}

// RunAll processes every frame of the session in ascending index order.
// Manually set frames are skipped unless overwriteManual is true.
//
// If ctx is canceled the run stops between frames: frames already being
// fitted are committed, frames not yet started stay unprocessed, and the
// partial summary is returned with ctx.Err().
func (r *Runner) RunAll(ctx context.Context, s *session.Session, overwriteManual bool) (Summary, error) {
	return r.RunRange(ctx, s, 0, s.Len(), overwriteManual)
}

// RunRange processes frames from (inclusive) to to (exclusive).
func (r *Runner) RunRange(ctx context.Context, s *session.Session, from, to int, overwriteManual bool) (Summary, error) {
	if from < 0 || to > s.Len() || from > to {
		return Summary{}, fmt.Errorf("invalid frame range [%d, %d) for a stack of %d frames", from, to, s.Len())
	}

	workers := r.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	total := to - from
	start := time.Now()
	log.Infow("starting batch run",
		"session", s.ID,
		"from", from,
		"to", to,
		"workers", workers,
		"overwriteManual", overwriteManual)

	acc := &accumulator{total: total, progress: r.Progress}

	var g errgroup.Group
	g.SetLimit(workers)

	for i := from; i < to; i++ {
		if ctx.Err() != nil {
			break
		}
		index := i
		g.Go(func() error {
			// cancellation is honoured between frames, never mid-fit
			if ctx.Err() != nil {
				return nil
			}
			result, rec, err := processFrame(s, index, overwriteManual)
			if err != nil {
				log.Errorw("frame could not be committed", "session", s.ID, "frame", index, "error", err)
			}
			log.Debugw("frame processed",
				"session", s.ID,
				"frame", index,
				"result", result,
				"status", rec.Status,
				"reason", rec.FailureReason)
			acc.add(index, result)
			return nil
		})
	}
	// workers never return errors; a frame failure is an outcome
	_ = g.Wait()

	summary := acc.summary()
	err := ctx.Err()
	if err != nil && summary.Processed() < total {
		summary.Canceled = true
	} else {
		err = nil
	}

	log.Infow("batch run finished",
		"session", s.ID,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"canceled", summary.Canceled,
		"elapsed", time.Since(start))

	return summary, err
}

// RunFrame processes a single frame synchronously and returns its record.
// Unlike the batch methods it reports a protected manual record as an
// error wrapping store.ErrManualProtected.
func (r *Runner) RunFrame(s *session.Session, index int, overwriteManual bool) (models.FrameRecord, error) {
	if _, err := s.Frame(index); err != nil {
		return models.FrameRecord{}, err
	}
	result, rec, err := processFrame(s, index, overwriteManual)
	if err != nil {
		return rec, err
	}
	if result == Skipped {
		return rec, &store.StoreError{Op: "run-frame", Index: index, Err: store.ErrManualProtected}
	}
	return rec, nil
}

// processFrame segments and fits one frame and commits the outcome with a
// revision check-and-set. Only store errors other than a lost race are
// returned; fit and threshold failures are recorded as fit-failed.
func processFrame(s *session.Session, index int, overwriteManual bool) (Result, models.FrameRecord, error) {
	st := s.Store()
	rec, revision, err := st.Snapshot(index)
	if err != nil {
		return Failed, rec, err
	}
	if rec.Status == models.ManuallySet && !overwriteManual {
		return Skipped, rec, nil
	}

	outcome := fitFrame(s, index)

	committed, err := st.CompareAndSetAutomatic(index, revision, outcome, overwriteManual)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrStaleRevision), errors.Is(err, store.ErrManualProtected):
		// someone else wrote the record while we were fitting
		return Skipped, committed, nil
	default:
		return Failed, committed, err
	}

	if committed.Status == models.FitSucceeded {
		return Succeeded, committed, nil
	}
	return Failed, committed, nil
}

// fitFrame runs the thresholder and fitter with the frame's parameters
func fitFrame(s *session.Session, index int) models.Outcome {
	frame, err := s.Frame(index)
	if err != nil {
		return models.Outcome{Err: err}
	}
	params := s.ParamsFor(index)

	mask, err := threshold.Segment(frame, params.Threshold)
	if err != nil {
		return models.Outcome{Err: err}
	}

	estimate, err := fitting.Fit(frame, mask, params.Fitting)
	if err != nil {
		return models.Outcome{Err: err}
	}
	return models.Outcome{Estimate: estimate}
}

// accumulator collects per-frame results from concurrent workers
type accumulator struct {
	mu       sync.Mutex
	total    int
	done     int
	progress ProgressCallback
	counts   Summary
}

func (a *accumulator) add(index int, result Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch result {
	case Succeeded:
		a.counts.Succeeded++
	case Failed:
		a.counts.Failed++
		a.counts.FailedFrames = append(a.counts.FailedFrames, index)
	case Skipped:
		a.counts.Skipped++
		a.counts.SkippedFrames = append(a.counts.SkippedFrames, index)
	}
	a.done++

	if a.progress != nil {
		a.progress(a.done, a.total, fmt.Sprintf("frame %d %s", index, result))
	}
}

func (a *accumulator) summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.counts
	s.FailedFrames = append([]int(nil), a.counts.FailedFrames...)
	s.SkippedFrames = append([]int(nil), a.counts.SkippedFrames...)
	sort.Ints(s.FailedFrames)
	sort.Ints(s.SkippedFrames)
	return s
}
