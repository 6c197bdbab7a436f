package models

import (
	"fmt"
	"math"
)

// Frame represents a single decoded image of a time-lapse stack.
// Frames are owned by the loader and only read by the analysis core.
type Frame struct {
	// Index is the position of this frame in the stack
	Index int

	// Width and Height are the frame dimensions in pixels
	Width  int
	Height int

	// BitDepth is 8 or 16 and bounds the representable intensity range
	BitDepth int

	// Pix holds the intensities in row-major order (len == Width*Height)
	Pix []uint16
}

// NewFrame allocates an all-zero frame with the given dimensions.
func NewFrame(index, width, height, bitDepth int) *Frame {
	return &Frame{
		Index:    index,
		Width:    width,
		Height:   height,
		BitDepth: bitDepth,
		Pix:      make([]uint16, width*height),
	}
}

// At returns the intensity at (x, y).
func (f *Frame) At(x, y int) uint16 {
	return f.Pix[y*f.Width+x]
}

// Set stores an intensity at (x, y).
func (f *Frame) Set(x, y int, v uint16) {
	f.Pix[y*f.Width+x] = v
}

// Validate checks that the frame is a non-empty 2-D array.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("frame is nil")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("frame %d has invalid dimensions %dx%d", f.Index, f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height {
		return fmt.Errorf("frame %d has %d pixels, expected %d", f.Index, len(f.Pix), f.Width*f.Height)
	}
	return nil
}

// MaxIntensity returns the largest value representable at the frame's bit depth.
func (f *Frame) MaxIntensity() float64 {
	if f.BitDepth == 8 {
		return math.MaxUint8
	}
	return math.MaxUint16
}

// Contains reports whether p lies inside the frame's pixel grid.
func (f *Frame) Contains(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < float64(f.Width) && p.Y < float64(f.Height)
}
