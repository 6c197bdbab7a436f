package threshold

import (
	"sort"

	"spindlefit/internal/models"
)

// medianFiltered returns a copy of frame where every intensity is the
// median of its 3x3 neighbourhood. Pixels on the edge use the neighbours
// inside the frame; with an even count the two middle values are averaged.
func medianFiltered(frame *models.Frame) *models.Frame {
	out := models.NewFrame(frame.Index, frame.Width, frame.Height, frame.BitDepth)
	neighbors := make([]uint16, 0, 9)

	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			neighbors = neighbors[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= frame.Width || ny < 0 || ny >= frame.Height {
						continue
					}
					neighbors = append(neighbors, frame.At(nx, ny))
				}
			}
			out.Set(x, y, median(neighbors))
		}
	}
	return out
}

// median sorts values in place and returns their median
func median(values []uint16) uint16 {
	if len(values) == 0 {
		return 0
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	mid := len(values) / 2
	if len(values)%2 == 0 {
		return uint16((uint32(values[mid-1]) + uint32(values[mid])) / 2)
	}
	return values[mid]
}
