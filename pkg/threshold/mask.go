package threshold

import (
	"image"
)

// Mask is a binary classification of a frame's pixels into signal and background.
// It always has the dimensions of the frame it was derived from.
type Mask struct {
	Width  int
	Height int

	// Cutoff is the effective intensity cutoff that produced the mask
	Cutoff float64

	bits []bool
}

// NewMask creates an all-background mask.
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		bits:   make([]bool, width*height),
	}
}

// At reports whether (x, y) is signal. Out-of-bounds coordinates are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.bits[y*m.Width+x]
}

// Set marks (x, y) as signal or background.
func (m *Mask) Set(x, y int, on bool) {
	m.bits[y*m.Width+x] = on
}

// Count returns the number of signal pixels.
func (m *Mask) Count() int {
	n := 0
	for _, on := range m.bits {
		if on {
			n++
		}
	}
	return n
}

// Empty reports whether no signal pixel survived segmentation.
// An empty mask is a valid result, not an error.
func (m *Mask) Empty() bool {
	for _, on := range m.bits {
		if on {
			return false
		}
	}
	return true
}

// Points returns the signal pixels in raster order.
func (m *Mask) Points() []image.Point {
	points := make([]image.Point, 0)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.bits[y*m.Width+x] {
				points = append(points, image.Pt(x, y))
			}
		}
	}
	return points
}

// Clone returns an independent copy of the mask.
func (m *Mask) Clone() *Mask {
	c := &Mask{Width: m.Width, Height: m.Height, Cutoff: m.Cutoff, bits: make([]bool, len(m.bits))}
	copy(c.bits, m.bits)
	return c
}

// Region is a set of 8-connected signal pixels.
type Region struct {
	Points []image.Point
}

// Len returns the number of pixels in the region.
func (r Region) Len() int {
	return len(r.Points)
}

// Bounds returns the smallest rectangle containing the region.
func (r Region) Bounds() image.Rectangle {
	if len(r.Points) == 0 {
		return image.Rectangle{}
	}
	b := image.Rect(r.Points[0].X, r.Points[0].Y, r.Points[0].X+1, r.Points[0].Y+1)
	for _, p := range r.Points[1:] {
		b = b.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
	}
	return b
}

// Regions labels the 8-connected signal regions of m. Regions are ordered
// by their first pixel in raster order, and each region's points are in
// discovery order.
func Regions(m *Mask) []Region {
	visited := make([]bool, len(m.bits))
	regions := make([]Region, 0)
	queue := make([]image.Point, 0, 64)

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			idx := y*m.Width + x
			if !m.bits[idx] || visited[idx] {
				continue
			}

			visited[idx] = true
			queue = append(queue[:0], image.Pt(x, y))
			region := Region{}

			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]
				region.Points = append(region.Points, p)

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.X+dx, p.Y+dy
						if !m.At(nx, ny) {
							continue
						}
						nIdx := ny*m.Width + nx
						if visited[nIdx] {
							continue
						}
						visited[nIdx] = true
						queue = append(queue, image.Pt(nx, ny))
					}
				}
			}

			regions = append(regions, region)
		}
	}

	return regions
}
