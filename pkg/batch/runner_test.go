package batch

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"spindlefit/internal/models"
	"spindlefit/pkg/fitting"
	"spindlefit/pkg/session"
	"spindlefit/pkg/store"
	"spindlefit/pkg/threshold"
)

// createTestStack creates count 10x10 frames with a diagonal line from
// (1,1) to (8,8); frames listed in empty are left all-zero
func createTestStack(count int, empty ...int) []*models.Frame {
	blank := make(map[int]bool)
	for _, i := range empty {
		blank[i] = true
	}

	frames := make([]*models.Frame, count)
	for i := range frames {
		f := models.NewFrame(i, 10, 10, 16)
		if !blank[i] {
			for k := 1; k <= 8; k++ {
				f.Set(k, k, 200)
			}
		}
		frames[i] = f
	}
	return frames
}

func newTestSession(t *testing.T, count int, empty ...int) *session.Session {
	t.Helper()
	tp := threshold.Params{Method: threshold.Fixed, Cutoff: 1, MinRegionSize: 3, ClearBorder: true}
	s, err := session.New(createTestStack(count, empty...), session.Params{Threshold: tp, Fitting: fitting.DefaultParams()})
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}
	return s
}

func TestRunAllPartialFailure(t *testing.T) {
	s := newTestSession(t, 5, 3)

	summary, err := NewRunner(2).RunAll(context.Background(), s, false)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if summary.Succeeded != 4 || summary.Failed != 1 || summary.Skipped != 0 {
		t.Errorf("Expected 4/1/0, got %d/%d/%d", summary.Succeeded, summary.Failed, summary.Skipped)
	}
	if !reflect.DeepEqual(summary.FailedFrames, []int{3}) {
		t.Errorf("Expected frame 3 to fail, got %v", summary.FailedFrames)
	}

	rec, _ := s.Store().Get(3)
	if rec.Status != models.FitFailed {
		t.Errorf("Expected frame 3 fit-failed, got %s", rec.Status)
	}
	if !strings.Contains(rec.FailureReason, "no-signal") {
		t.Errorf("Expected a no-signal reason, got %q", rec.FailureReason)
	}

	rec, _ = s.Store().Get(0)
	m, ok := rec.Measurements()
	if !ok || m.Length < 9.89 || m.Length > 9.91 {
		t.Errorf("Expected length ~9.90 on frame 0, got %+v", m)
	}
}

func TestRunAllIdempotent(t *testing.T) {
	s := newTestSession(t, 5, 1, 4)
	runner := NewRunner(3)

	first, err := runner.RunAll(context.Background(), s, false)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	state := s.Store().Iterate()

	second, err := runner.RunAll(context.Background(), s, false)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if !reflect.DeepEqual(state, s.Store().Iterate()) {
		t.Error("Second run changed the store state")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Summaries differ: %+v vs %+v", first, second)
	}
}

func TestRunAllWorkerCountDoesNotMatter(t *testing.T) {
	serial := newTestSession(t, 6, 2)
	parallel := newTestSession(t, 6, 2)

	if _, err := NewRunner(1).RunAll(context.Background(), serial, false); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if _, err := NewRunner(0).RunAll(context.Background(), parallel, false); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if !reflect.DeepEqual(serial.Store().Iterate(), parallel.Store().Iterate()) {
		t.Error("Parallel run produced different records")
	}
}

func TestRunAllSkipsManual(t *testing.T) {
	s := newTestSession(t, 5)
	manual, err := session.ApplyManual(s, 2, models.Point{X: 2, Y: 2}, models.Point{X: 6, Y: 3})
	if err != nil {
		t.Fatalf("ApplyManual failed: %v", err)
	}

	summary, err := NewRunner(2).RunAll(context.Background(), s, false)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if summary.Succeeded != 4 || summary.Skipped != 1 || !reflect.DeepEqual(summary.SkippedFrames, []int{2}) {
		t.Errorf("Expected frame 2 skipped, got %+v", summary)
	}

	rec, _ := s.Store().Get(2)
	if rec.Status != models.ManuallySet || !reflect.DeepEqual(rec.Estimate, manual.Estimate) {
		t.Errorf("Manual record changed: %+v", rec)
	}

	summary, err = NewRunner(2).RunAll(context.Background(), s, true)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if summary.Succeeded != 5 {
		t.Errorf("Expected overwrite to fit every frame, got %+v", summary)
	}
	if rec, _ := s.Store().Get(2); rec.Status != models.FitSucceeded {
		t.Errorf("Expected frame 2 refitted, got %s", rec.Status)
	}
}

func TestRunAllCanceledBeforeStart(t *testing.T) {
	s := newTestSession(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := NewRunner(2).RunAll(ctx, s, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if !summary.Canceled || summary.Processed() != 0 {
		t.Errorf("Expected an empty canceled summary, got %+v", summary)
	}
	for _, rec := range s.Store().Iterate() {
		if rec.Status != models.Unprocessed {
			t.Errorf("Frame %d should be unprocessed, got %s", rec.Index, rec.Status)
		}
	}
}

func TestRunAllCanceledBetweenFrames(t *testing.T) {
	s := newTestSession(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := NewRunner(1)
	runner.Progress = func(completed, total int, message string) {
		if completed == 1 {
			cancel()
		}
	}

	summary, err := runner.RunAll(ctx, s, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if summary.Succeeded != 1 || !summary.Canceled {
		t.Errorf("Expected one frame before cancellation, got %+v", summary)
	}

	for _, rec := range s.Store().Iterate() {
		want := models.Unprocessed
		if rec.Index == 0 {
			want = models.FitSucceeded
		}
		if rec.Status != want {
			t.Errorf("Frame %d: expected %s, got %s", rec.Index, want, rec.Status)
		}
	}
}

func TestRunRange(t *testing.T) {
	s := newTestSession(t, 6)

	summary, err := NewRunner(2).RunRange(context.Background(), s, 3, 6, false)
	if err != nil {
		t.Fatalf("RunRange failed: %v", err)
	}
	if summary.Succeeded != 3 {
		t.Errorf("Expected 3 frames, got %+v", summary)
	}
	for _, rec := range s.Store().Iterate() {
		processed := rec.Status != models.Unprocessed
		if processed != (rec.Index >= 3) {
			t.Errorf("Frame %d has unexpected status %s", rec.Index, rec.Status)
		}
	}

	for _, r := range [][2]int{{-1, 2}, {2, 7}, {4, 3}} {
		if _, err := NewRunner(1).RunRange(context.Background(), s, r[0], r[1], false); err == nil {
			t.Errorf("Expected an error for range %v", r)
		}
	}
}

func TestRunFrame(t *testing.T) {
	s := newTestSession(t, 3, 1)
	runner := NewRunner(1)

	rec, err := runner.RunFrame(s, 0, false)
	if err != nil || rec.Status != models.FitSucceeded {
		t.Errorf("Expected frame 0 to succeed, got %s %v", rec.Status, err)
	}

	rec, err = runner.RunFrame(s, 1, false)
	if err != nil || rec.Status != models.FitFailed {
		t.Errorf("Expected frame 1 to fail without error, got %s %v", rec.Status, err)
	}

	if _, err := session.ApplyManual(s, 2, models.Point{X: 1, Y: 1}, models.Point{X: 3, Y: 3}); err != nil {
		t.Fatalf("ApplyManual failed: %v", err)
	}
	if _, err := runner.RunFrame(s, 2, false); !errors.Is(err, store.ErrManualProtected) {
		t.Errorf("Expected ErrManualProtected, got %v", err)
	}
	if _, err := runner.RunFrame(s, 9, false); !errors.Is(err, store.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
}

func TestThresholdErrorRecordedAsFailure(t *testing.T) {
	frames := createTestStack(2)
	frames[1].BitDepth = 8
	tp := threshold.Params{Method: threshold.Fixed, Cutoff: 1000, MinRegionSize: 3}
	s, err := session.New(frames, session.Params{Threshold: tp, Fitting: fitting.DefaultParams()})
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}

	summary, err := NewRunner(1).RunAll(context.Background(), s, false)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	// cutoff 1000 is outside the 8-bit range of frame 1
	if summary.Failed != 2 {
		t.Errorf("Expected both frames to fail, got %+v", summary)
	}
	rec, _ := s.Store().Get(1)
	if !strings.HasPrefix(rec.FailureReason, "threshold:") {
		t.Errorf("Expected a threshold failure, got %q", rec.FailureReason)
	}
}

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	progress := ConsoleProgress(&buf)
	progress(0, 0, "loading")
	progress(2, 2, "done")

	out := buf.String()
	if !strings.HasPrefix(out, "loading\n") {
		t.Errorf("Expected informational line first, got %q", out)
	}
	if !strings.Contains(out, "100.0% (2/2)") || !strings.HasSuffix(out, "\n") {
		t.Errorf("Unexpected progress output %q", out)
	}
}

func TestProgressLine(t *testing.T) {
	line := progressLine(1, 4, 2*time.Second, "")
	if !strings.Contains(line, "25.0% (1/4)") || !strings.Contains(line, "6.0s remaining") {
		t.Errorf("Unexpected progress line %q", line)
	}
	if got := formatSeconds(90); got != "1.5m" {
		t.Errorf("Expected 1.5m, got %s", got)
	}
}
