// Package threshold isolates the spindle signal of a frame from its background.
package threshold

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"spindlefit/internal/models"
)

// Segment classifies each pixel of frame as signal when its intensity exceeds
// the effective cutoff (after the optional median filter), optionally clears the border and erodes isolated
// pixels, then discards connected regions smaller than p.MinRegionSize.
//
// The result is a pure function of its inputs. A mask with no surviving
// region is returned as a valid result; check it with Mask.Empty.
func Segment(frame *models.Frame, p Params) (*Mask, error) {
	if err := frame.Validate(); err != nil {
		return nil, &ThresholdError{Param: "frame", Reason: err.Error()}
	}

	if p.MedianFilter {
		frame = medianFiltered(frame)
	}

	cutoff, err := EffectiveCutoff(frame, p)
	if err != nil {
		return nil, err
	}

	mask := NewMask(frame.Width, frame.Height)
	mask.Cutoff = cutoff
	for i, v := range frame.Pix {
		mask.bits[i] = float64(v) > cutoff
	}

	if p.ClearBorder {
		clearBorder(mask)
	}

	for i := 0; i < p.ErosionIterations; i++ {
		erode(mask, p.ErosionFactor)
	}

	if p.MinRegionSize > 1 {
		removeSmallRegions(mask, p.MinRegionSize)
	}

	return mask, nil
}

// EffectiveCutoff resolves the intensity cutoff p implies for frame.
// Fixed cutoffs must lie within the range representable at the frame's bit depth.
func EffectiveCutoff(frame *models.Frame, p Params) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	switch p.Method {
	case Percentile:
		values := make([]float64, len(frame.Pix))
		for i, v := range frame.Pix {
			values[i] = float64(v)
		}
		sort.Float64s(values)
		return stat.Quantile(p.Cutoff/100, stat.Empirical, values, nil), nil

	default:
		if p.Cutoff > frame.MaxIntensity() {
			return 0, &ThresholdError{
				Param:  "cutoff",
				Value:  p.Cutoff,
				Reason: fmt.Sprintf("outside the %d-bit intensity range [0, %g]", frame.BitDepth, frame.MaxIntensity()),
			}
		}
		return p.Cutoff, nil
	}
}

// clearBorder sets the outermost rows and columns to background
func clearBorder(m *Mask) {
	for x := 0; x < m.Width; x++ {
		m.Set(x, 0, false)
		m.Set(x, m.Height-1, false)
	}
	for y := 0; y < m.Height; y++ {
		m.Set(0, y, false)
		m.Set(m.Width-1, y, false)
	}
}

// erode keeps a signal pixel only if at least factor pixels of its 3x3
// neighbourhood (itself included) are signal. All pixels are updated from
// the same previous state so the pass does not depend on scan order.
func erode(m *Mask, factor int) {
	prev := m.Clone()
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !prev.At(x, y) {
				continue
			}
			count := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if prev.At(x+dx, y+dy) {
						count++
					}
				}
			}
			if count < factor {
				m.Set(x, y, false)
			}
		}
	}
}

// removeSmallRegions clears every 8-connected region below minSize pixels
func removeSmallRegions(m *Mask, minSize int) {
	for _, region := range Regions(m) {
		if region.Len() >= minSize {
			continue
		}
		for _, p := range region.Points {
			m.Set(p.X, p.Y, false)
		}
	}
}
