package threshold

import (
	"errors"
	"image"
	"testing"

	"spindlefit/internal/models"
)

// createLineFrame draws a 1-pixel bright diagonal from (from,from) to (to,to)
func createLineFrame(size, from, to int, value uint16) *models.Frame {
	frame := models.NewFrame(0, size, size, 16)
	for i := from; i <= to; i++ {
		frame.Set(i, i, value)
	}
	return frame
}

// lineParams disables the noise filters so a 1-pixel line survives
func lineParams(cutoff float64) Params {
	return Params{
		Method:        Fixed,
		Cutoff:        cutoff,
		MinRegionSize: 3,
		ClearBorder:   true,
	}
}

func TestSegmentRecoversDiagonalLine(t *testing.T) {
	frame := createLineFrame(10, 1, 8, 200)

	mask, err := Segment(frame, lineParams(1))
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if mask.Width != 10 || mask.Height != 10 {
		t.Fatalf("Expected 10x10 mask, got %dx%d", mask.Width, mask.Height)
	}

	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			want := x == y && x >= 1 && x <= 8
			if mask.At(x, y) != want {
				t.Errorf("Pixel (%d,%d): expected %v, got %v", x, y, want, mask.At(x, y))
			}
		}
	}

	if mask.Count() != 8 {
		t.Errorf("Expected 8 signal pixels, got %d", mask.Count())
	}
}

func TestSegmentAllZeroFrameIsEmpty(t *testing.T) {
	frame := models.NewFrame(0, 10, 10, 16)

	mask, err := Segment(frame, lineParams(1))
	if err != nil {
		t.Fatalf("Empty frame must not be an error: %v", err)
	}
	if !mask.Empty() {
		t.Errorf("Expected empty mask, got %d signal pixels", mask.Count())
	}
}

func TestSegmentMinRegionSize(t *testing.T) {
	frame := models.NewFrame(0, 20, 20, 16)
	// a 3-pixel speck and a 12-pixel bar
	for x := 2; x < 5; x++ {
		frame.Set(x, 2, 500)
	}
	for x := 4; x < 16; x++ {
		frame.Set(x, 10, 500)
	}

	p := lineParams(100)
	p.MinRegionSize = 5
	mask, err := Segment(frame, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if mask.At(3, 2) {
		t.Error("Small region should have been discarded")
	}
	if mask.Count() != 12 {
		t.Errorf("Expected the 12-pixel bar to survive, got %d pixels", mask.Count())
	}

	// every region too small -> empty, still not an error
	p.MinRegionSize = 50
	mask, err = Segment(frame, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if !mask.Empty() {
		t.Error("Expected empty mask when no region meets the size filter")
	}
}

func TestSegmentPercentile(t *testing.T) {
	frame := models.NewFrame(0, 10, 10, 8)
	for i := range frame.Pix {
		frame.Pix[i] = uint16(i)
	}

	p := Params{Method: Percentile, Cutoff: 90}
	mask, err := Segment(frame, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	// the 90th empirical percentile of 0..99 is 89; values 90..99 exceed it
	if mask.Cutoff != 89 {
		t.Errorf("Expected effective cutoff 89, got %g", mask.Cutoff)
	}
	if mask.Count() != 10 {
		t.Errorf("Expected 10 signal pixels, got %d", mask.Count())
	}
}

func TestSegmentErosion(t *testing.T) {
	frame := models.NewFrame(0, 12, 12, 16)
	// 4x4 block plus an isolated pixel
	for y := 3; y < 7; y++ {
		for x := 3; x < 7; x++ {
			frame.Set(x, y, 900)
		}
	}
	frame.Set(9, 9, 900)

	p := Params{Method: Fixed, Cutoff: 10, ErosionIterations: 1, ErosionFactor: 4, ClearBorder: true}
	mask, err := Segment(frame, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if mask.At(9, 9) {
		t.Error("Isolated pixel should be eroded")
	}
	// corners of the block have exactly 4 signal neighbours including themselves
	if !mask.At(3, 3) || !mask.At(5, 5) {
		t.Error("Block pixels should survive erosion")
	}
}

func TestSegmentClearsBorder(t *testing.T) {
	frame := models.NewFrame(0, 6, 6, 16)
	for i := range frame.Pix {
		frame.Pix[i] = 100
	}

	mask, err := Segment(frame, Params{Method: Fixed, Cutoff: 50, ClearBorder: true})
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if mask.At(0, 0) || mask.At(5, 3) || mask.At(2, 5) {
		t.Error("Border pixels should be background")
	}
	if mask.Count() != 16 {
		t.Errorf("Expected 16 interior pixels, got %d", mask.Count())
	}
}

func TestSegmentInvalidParameters(t *testing.T) {
	frame8 := models.NewFrame(0, 4, 4, 8)

	tests := []struct {
		name   string
		frame  *models.Frame
		params Params
	}{
		{"cutoff above 8-bit range", frame8, Params{Method: Fixed, Cutoff: 300}},
		{"negative cutoff", frame8, Params{Method: Fixed, Cutoff: -1}},
		{"percentile above 100", frame8, Params{Method: Percentile, Cutoff: 101}},
		{"negative region size", frame8, Params{Method: Fixed, Cutoff: 1, MinRegionSize: -2}},
		{"erosion factor too large", frame8, Params{Method: Fixed, Cutoff: 1, ErosionFactor: 10}},
		{"empty frame", &models.Frame{BitDepth: 16}, Params{Method: Fixed, Cutoff: 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Segment(tc.frame, tc.params)
			if err == nil {
				t.Fatal("Expected an error")
			}
			var te *ThresholdError
			if !errors.As(err, &te) {
				t.Errorf("Expected *ThresholdError, got %T", err)
			}
			if !errors.Is(err, ErrInvalidParams) {
				t.Error("Expected error to match ErrInvalidParams")
			}
		})
	}
}

func TestSegmentDeterministic(t *testing.T) {
	frame := createLineFrame(16, 2, 13, 700)
	p := DefaultParams()
	p.Cutoff = 100
	p.ErosionIterations = 0

	first, err := Segment(frame, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	second, err := Segment(frame, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if first.At(x, y) != second.At(x, y) {
				t.Fatalf("Masks differ at (%d,%d)", x, y)
			}
		}
	}
}

func TestRegions(t *testing.T) {
	mask := NewMask(8, 8)
	// diagonal pair is one 8-connected region
	mask.Set(1, 1, true)
	mask.Set(2, 2, true)
	// separate region
	mask.Set(6, 1, true)
	mask.Set(6, 2, true)
	mask.Set(6, 3, true)

	regions := Regions(mask)
	if len(regions) != 2 {
		t.Fatalf("Expected 2 regions, got %d", len(regions))
	}
	if regions[0].Len() != 2 || regions[1].Len() != 3 {
		t.Errorf("Unexpected region sizes %d and %d", regions[0].Len(), regions[1].Len())
	}
	if got := regions[1].Bounds(); got != image.Rect(6, 1, 7, 4) {
		t.Errorf("Unexpected bounds %v", got)
	}
}

func TestParseMethod(t *testing.T) {
	if m, err := ParseMethod("Percentile"); err != nil || m != Percentile {
		t.Errorf("Expected Percentile, got %v (%v)", m, err)
	}
	if m, err := ParseMethod("fixed"); err != nil || m != Fixed {
		t.Errorf("Expected Fixed, got %v (%v)", m, err)
	}
	if _, err := ParseMethod("otsu"); err == nil {
		t.Error("Expected an error for an unknown method")
	}
}
