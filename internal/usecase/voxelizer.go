package usecase

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

const (
	// DefaultCellSize is used when the cell size cannot be derived from the cloud.
	DefaultCellSize = 1.0
	// DefaultMaxResolution caps the number of cells along the longest side
	// when the cell size is derived from the point count.
	DefaultMaxResolution = 64
	// DefaultMaxCells caps the number of occupied cells in one grid.
	DefaultMaxCells = 1 << 18

	// maxCellIndex keeps cell indices exactly representable in a float64.
	maxCellIndex = 1 << 52
)

// VoxelIndex addresses a cell: cell i spans [i*size, (i+1)*size) on each axis.
type VoxelIndex [3]int

// Voxel is an occupied cell.
type Voxel struct {
	Index  VoxelIndex `json:"index"`
	Min    Point      `json:"min"`
	Max    Point      `json:"max"`
	Center Point      `json:"center"`
	Count  int        `json:"count"`
}

// VoxelCells is the wire form of a voxel grid: one list of corner tuples per cell.
type VoxelCells [][]Point

// VoxelGrid is the set of occupied cells, sorted by index.
type VoxelGrid struct {
	CellSize float32 `json:"cell_size"`
	Voxels   []Voxel `json:"voxels"`
}

// Cells renders the grid as [min, max] corner pairs.
func (g *VoxelGrid) Cells() VoxelCells {
	cells := make(VoxelCells, len(g.Voxels))
	for i, v := range g.Voxels {
		cells[i] = []Point{v.Min, v.Max}
	}
	return cells
}

// Centers returns the cell centers in grid order.
func (g *VoxelGrid) Centers() PointCloud {
	out := make(PointCloud, len(g.Voxels))
	for i, v := range g.Voxels {
		out[i] = v.Center
	}
	return out
}

// lookup returns the voxel holding p, if that cell is occupied.
func (g *VoxelGrid) lookup(p Point) (Voxel, bool) {
	idx, err := cellIndex(p, g.CellSize)
	if err != nil {
		return Voxel{}, false
	}
	i, ok := slices.BinarySearchFunc(g.Voxels, idx, func(v Voxel, t VoxelIndex) int {
		return compareIndex(v.Index, t)
	})
	if !ok {
		return Voxel{}, false
	}
	return g.Voxels[i], true
}

// Voxelizer buckets points into a regular grid anchored at the origin.
type Voxelizer struct {
	// CellSize is the cube edge. Zero derives it from the point count.
	CellSize float32
	// MaxResolution caps cells along the longest side when CellSize is derived.
	MaxResolution int
	// MaxCells caps the number of occupied cells.
	MaxCells int
}

// NewVoxelizer returns a voxelizer with the default limits.
func NewVoxelizer(cellSize float32) *Voxelizer {
	return &Voxelizer{
		CellSize:      cellSize,
		MaxResolution: DefaultMaxResolution,
		MaxCells:      DefaultMaxCells,
	}
}

// CellSizeFor returns the cell size used for the cloud.
func (v *Voxelizer) CellSizeFor(cloud PointCloud) (float32, error) {
	if err := cloud.Validate(); err != nil {
		return 0, err
	}
	if c := float64(v.CellSize); math.IsInf(c, 0) || math.IsNaN(c) {
		return 0, fmt.Errorf("cell size %g: %w", v.CellSize, ErrNonFinite)
	}
	if v.CellSize > 0 {
		return v.CellSize, nil
	}
	box, _ := Bounds(cloud)
	longest := box.LongestSide()
	if longest == 0 {
		return DefaultCellSize, nil
	}
	maxRes := v.MaxResolution
	if maxRes <= 0 {
		maxRes = DefaultMaxResolution
	}
	n := int(math.Round(math.Cbrt(float64(len(cloud)))))
	n = max(1, min(n, maxRes))
	size := longest / float64(n)
	switch {
	case size > math.MaxFloat32:
		return math.MaxFloat32, nil
	case float32(size) <= 0:
		// longest side underflows float32 once divided
		return DefaultCellSize, nil
	}
	return float32(size), nil
}

// Voxelize marks every cell that holds at least one point. The output is
// deterministic and never empty for a non-empty cloud.
func (v *Voxelizer) Voxelize(cloud PointCloud) (*VoxelGrid, error) {
	size, err := v.CellSizeFor(cloud)
	if err != nil {
		return nil, fmt.Errorf("voxelize: %w", err)
	}
	counts := make(map[VoxelIndex]int)
	for _, p := range cloud {
		idx, err := cellIndex(p, size)
		if err != nil {
			return nil, fmt.Errorf("voxelize: %w", err)
		}
		counts[idx]++
		if err := v.checkCells(len(counts)); err != nil {
			return nil, fmt.Errorf("voxelize: %w", err)
		}
	}

	grid := &VoxelGrid{CellSize: size, Voxels: make([]Voxel, 0, len(counts))}
	for idx, n := range counts {
		grid.Voxels = append(grid.Voxels, newVoxel(idx, size, n))
	}
	slices.SortFunc(grid.Voxels, func(a, b Voxel) int {
		return compareIndex(a.Index, b.Index)
	})
	return grid, nil
}

// Downsample replaces the points of each occupied cell by their centroid.
func (v *Voxelizer) Downsample(cloud PointCloud) (PointCloud, error) {
	size, err := v.CellSizeFor(cloud)
	if err != nil {
		return nil, fmt.Errorf("downsample: %w", err)
	}
	type acc struct {
		sum [3]float64
		n   int
	}
	cells := make(map[VoxelIndex]*acc)
	for _, p := range cloud {
		idx, err := cellIndex(p, size)
		if err != nil {
			return nil, fmt.Errorf("downsample: %w", err)
		}
		a, ok := cells[idx]
		if !ok {
			a = &acc{}
			cells[idx] = a
			if err := v.checkCells(len(cells)); err != nil {
				return nil, fmt.Errorf("downsample: %w", err)
			}
		}
		a.sum[0] += float64(p[0])
		a.sum[1] += float64(p[1])
		a.sum[2] += float64(p[2])
		a.n++
	}

	keys := make([]VoxelIndex, 0, len(cells))
	for idx := range cells {
		keys = append(keys, idx)
	}
	slices.SortFunc(keys, compareIndex)

	out := make(PointCloud, 0, len(keys))
	for _, idx := range keys {
		a := cells[idx]
		n := float64(a.n)
		out = append(out, Point{float32(a.sum[0] / n), float32(a.sum[1] / n), float32(a.sum[2] / n)})
	}
	return out, nil
}

func (v *Voxelizer) checkCells(n int) error {
	limit := v.MaxCells
	if limit <= 0 {
		limit = DefaultMaxCells
	}
	if n > limit {
		return fmt.Errorf("%w: more than %d cells", ErrTooManyCells, limit)
	}
	return nil
}

func cellIndex(p Point, size float32) (VoxelIndex, error) {
	var idx VoxelIndex
	s := float64(size)
	for i := 0; i < 3; i++ {
		f := math.Floor(float64(p[i]) / s)
		if math.IsNaN(f) || math.Abs(f) > maxCellIndex {
			return VoxelIndex{}, fmt.Errorf("%w: coordinate %g at cell size %g", ErrTooManyCells, p[i], size)
		}
		idx[i] = int(f)
	}
	return idx, nil
}

func newVoxel(idx VoxelIndex, size float32, count int) Voxel {
	v := Voxel{Index: idx, Count: count}
	s := float64(size)
	for i := 0; i < 3; i++ {
		lo := float64(idx[i]) * s
		v.Min[i] = clampFloat32(lo)
		v.Max[i] = clampFloat32(lo + s)
		v.Center[i] = clampFloat32(lo + s/2)
	}
	return v
}

// clampFloat32 keeps corners of cells at the edge of the float32 range finite.
func clampFloat32(f float64) float32 {
	return float32(max(-math.MaxFloat32, min(f, math.MaxFloat32)))
}

func compareIndex(a, b VoxelIndex) int {
	for i := 0; i < 3; i++ {
		if c := cmp.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}
