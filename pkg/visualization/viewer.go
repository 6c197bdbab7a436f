// Package visualization renders frames, masks and fitted poles to images
// so intermediary results of a run can be inspected.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"spindlefit/internal/models"
	"spindlefit/pkg/session"
	"spindlefit/pkg/threshold"
)

// Stage directories written by SaveFrame
const (
	StageFrames   = "01_frames"
	StageMasks    = "02_masks"
	StageOverlays = "03_overlays"
)

var (
	maskTint  = color.RGBA{R: 0, G: 160, B: 255, A: 255}
	poleAMark = color.RGBA{R: 255, G: 64, B: 64, A: 255}
	poleBMark = color.RGBA{R: 64, G: 255, B: 64, A: 255}
	axisMark  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// Viewer writes intermediary images below an output directory.
type Viewer struct {
	// outputDir holds one subdirectory per stage
	outputDir string
}

// NewViewer creates a viewer writing below outputDir
func NewViewer(outputDir string) *Viewer {
	return &Viewer{outputDir: outputDir}
}

// FrameImage returns the frame contrast-stretched to the full 16-bit range
func FrameImage(frame *models.Frame) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, frame.Width, frame.Height))

	lo, hi := uint16(math.MaxUint16), uint16(0)
	for _, v := range frame.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := float64(hi) - float64(lo)

	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			value := uint16(0)
			if span > 0 {
				value = uint16(math.Round((float64(frame.At(x, y)) - float64(lo)) / span * 65535))
			}
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img
}

// MaskImage renders signal pixels white on black
func MaskImage(mask *threshold.Mask) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, mask.Width, mask.Height))
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if mask.At(x, y) {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// Overlay draws the mask tinted over the frame and, if estimate is not nil,
// the pole axis with pole A in red and pole B in green
func Overlay(frame *models.Frame, mask *threshold.Mask, estimate *models.PoleEstimate) *image.RGBA {
	base := FrameImage(frame)
	img := image.NewRGBA(base.Bounds())
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			g := uint8(base.Gray16At(x, y).Y >> 8)
			c := color.RGBA{R: g, G: g, B: g, A: 255}
			if mask != nil && mask.At(x, y) {
				c = blend(c, maskTint)
			}
			img.SetRGBA(x, y, c)
		}
	}

	if estimate != nil {
		drawLine(img, estimate.PoleA, estimate.PoleB, axisMark)
		drawMarker(img, estimate.PoleA, poleAMark)
		drawMarker(img, estimate.PoleB, poleBMark)
	}
	return img
}

// blend mixes two colours half and half
func blend(a, b color.RGBA) color.RGBA {
	return color.RGBA{
		R: uint8((uint16(a.R) + uint16(b.R)) / 2),
		G: uint8((uint16(a.G) + uint16(b.G)) / 2),
		B: uint8((uint16(a.B) + uint16(b.B)) / 2),
		A: 255,
	}
}

// drawLine samples the segment at sub-pixel steps
func drawLine(img *image.RGBA, a, b models.Point, c color.RGBA) {
	steps := int(math.Ceil(a.Distance(b) * 2))
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(math.Round(a.X + t*(b.X-a.X)))
		y := int(math.Round(a.Y + t*(b.Y-a.Y)))
		if image.Pt(x, y).In(img.Bounds()) {
			img.SetRGBA(x, y, c)
		}
	}
}

// drawMarker draws a small cross centred on p
func drawMarker(img *image.RGBA, p models.Point, c color.RGBA) {
	cx, cy := int(math.Round(p.X)), int(math.Round(p.Y))
	for d := -2; d <= 2; d++ {
		for _, pt := range []image.Point{image.Pt(cx+d, cy), image.Pt(cx, cy+d)} {
			if pt.In(img.Bounds()) {
				img.SetRGBA(pt.X, pt.Y, c)
			}
		}
	}
}

// SaveImage writes img as <outputDir>/<stage>/<index>.png
func (v *Viewer) SaveImage(img image.Image, stage string, index int) error {
	stageDir := filepath.Join(v.outputDir, stage)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return fmt.Errorf("failed to create intermediary directory: %w", err)
	}

	filename := filepath.Join(stageDir, fmt.Sprintf("%03d.png", index))
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}

// SaveFrame writes the frame, its mask and the overlay with the current
// estimate of the frame at index
func (v *Viewer) SaveFrame(s *session.Session, index int) error {
	frame, err := s.Frame(index)
	if err != nil {
		return err
	}
	mask, err := s.Mask(index)
	if err != nil {
		return err
	}
	rec, err := s.Store().Get(index)
	if err != nil {
		return err
	}

	if err := v.SaveImage(FrameImage(frame), StageFrames, index); err != nil {
		return err
	}
	if err := v.SaveImage(MaskImage(mask), StageMasks, index); err != nil {
		return err
	}
	return v.SaveImage(Overlay(frame, mask, rec.Estimate), StageOverlays, index)
}

// SaveSequence writes every frame of the session
func (v *Viewer) SaveSequence(s *session.Session) error {
	for i := 0; i < s.Len(); i++ {
		if err := v.SaveFrame(s, i); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}
