package cluster

import (
	"math"

	"pointview/internal/usecase"
)

type cellKey [3]int

// spatialIndex hashes points into cubic cells of edge radius, so a radius
// query only visits the 27 surrounding cells.
type spatialIndex struct {
	radius float64
	cells  map[cellKey][]int
}

func newSpatialIndex(points usecase.PointCloud, radius float64) *spatialIndex {
	si := &spatialIndex{radius: radius, cells: make(map[cellKey][]int)}
	for i, p := range points {
		k := si.key(float64(p[0]), float64(p[1]), float64(p[2]))
		si.cells[k] = append(si.cells[k], i)
	}
	return si
}

func (si *spatialIndex) key(x, y, z float64) cellKey {
	return cellKey{
		int(math.Floor(x / si.radius)),
		int(math.Floor(y / si.radius)),
		int(math.Floor(z / si.radius)),
	}
}

// within returns the indices of points at distance <= radius from (x, y, z),
// in ascending order of cell then insertion.
func (si *spatialIndex) within(points usecase.PointCloud, x, y, z float64, dst []int) []int {
	c := si.key(x, y, z)
	r2 := si.radius * si.radius
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				for _, idx := range si.cells[cellKey{c[0] + dx, c[1] + dy, c[2] + dz}] {
					p := points[idx]
					ex := float64(p[0]) - x
					ey := float64(p[1]) - y
					ez := float64(p[2]) - z
					if ex*ex+ey*ey+ez*ez <= r2 {
						dst = append(dst, idx)
					}
				}
			}
		}
	}
	return dst
}
