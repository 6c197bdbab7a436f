package fitting

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"spindlefit/internal/models"
	"spindlefit/pkg/threshold"
)

// selectSpindle picks the pixels of the object most likely to be the spindle.
//
// Regions closer than mergeDistance are joined into objects first. Among
// the objects larger than the average object size, the one whose
// intensity-weighted centroid lies nearest the frame centre wins; if no
// object is above average, every object is a candidate. Ties go to the
// object found first in raster order.
func selectSpindle(frame *models.Frame, mask *threshold.Mask, mergeDistance int) []image.Point {
	regions := threshold.Regions(mask)
	if len(regions) == 1 {
		return regions[0].Points
	}

	objects := mergeRegions(regions, mergeDistance)
	if len(objects) == 1 {
		return objects[0]
	}

	sizes := make([]float64, len(objects))
	for i, obj := range objects {
		sizes[i] = float64(len(obj))
	}
	avgSize := stat.Mean(sizes, nil)

	candidates := make([]int, 0, len(objects))
	for i := range objects {
		if sizes[i] > avgSize {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		for i := range objects {
			candidates = append(candidates, i)
		}
	}

	center := models.Point{X: float64(frame.Width) / 2, Y: float64(frame.Height) / 2}
	best := candidates[0]
	bestDist := math.Inf(1)
	for _, i := range candidates {
		d := objectCentroid(frame, objects[i]).Distance(center)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	return objects[best]
}

// objectCentroid returns the intensity-weighted centre of mass of points
func objectCentroid(frame *models.Frame, points []image.Point) models.Point {
	var c centroidSum
	for _, pt := range weightedSamples(frame, points) {
		c.add(pt)
	}
	return c.point()
}

// mergeRegions joins regions that have any pair of pixels closer than
// distance on both axes. Objects keep the order of their first region.
func mergeRegions(regions []threshold.Region, distance int) [][]image.Point {
	parent := make([]int, len(regions))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	if distance > 0 {
		bounds := make([]image.Rectangle, len(regions))
		for i, r := range regions {
			bounds[i] = r.Bounds().Inset(-(distance - 1))
		}

		for i := 0; i < len(regions); i++ {
			for j := i + 1; j < len(regions); j++ {
				if find(i) == find(j) || !bounds[i].Overlaps(regions[j].Bounds()) {
					continue
				}
				if regionsNear(regions[i], regions[j], distance) {
					a, b := find(i), find(j)
					if a < b {
						parent[b] = a
					} else {
						parent[a] = b
					}
				}
			}
		}
	}

	order := make([]int, 0)
	groups := make(map[int][]image.Point)
	for i, r := range regions {
		root := find(i)
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], r.Points...)
	}

	objects := make([][]image.Point, len(order))
	for i, root := range order {
		objects[i] = groups[root]
	}
	return objects
}

// regionsNear reports whether any pixel of a is within distance of any pixel of b
func regionsNear(a, b threshold.Region, distance int) bool {
	for _, p := range a.Points {
		for _, q := range b.Points {
			if abs(p.X-q.X) < distance && abs(p.Y-q.Y) < distance {
				return true
			}
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
