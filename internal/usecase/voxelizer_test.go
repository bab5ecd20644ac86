package usecase

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoxelizeTwoCorners(t *testing.T) {
	grid, err := NewVoxelizer(1).Voxelize(PointCloud{{0, 0, 0}, {1, 1, 1}})
	require.NoError(t, err)

	require.Len(t, grid.Voxels, 2)
	assert.Equal(t, VoxelIndex{0, 0, 0}, grid.Voxels[0].Index)
	assert.Equal(t, VoxelIndex{1, 1, 1}, grid.Voxels[1].Index)
	assert.Equal(t, VoxelCells{
		{{0, 0, 0}, {1, 1, 1}},
		{{1, 1, 1}, {2, 2, 2}},
	}, grid.Cells())
	assert.Equal(t, PointCloud{{0.5, 0.5, 0.5}, {1.5, 1.5, 1.5}}, grid.Centers())
}

func TestVoxelizeEveryPointHasItsCell(t *testing.T) {
	cloud := randomCloud(7, 500, 5)
	for _, size := range []float32{0, 0.25, 1, 3} {
		grid, err := NewVoxelizer(size).Voxelize(cloud)
		require.NoError(t, err)
		require.NotEmpty(t, grid.Voxels)

		total := 0
		for _, v := range grid.Voxels {
			total += v.Count
		}
		assert.Equal(t, len(cloud), total)
		for _, p := range cloud {
			v, ok := grid.lookup(p)
			require.True(t, ok, "cell of %v missing at size %g", p, size)
			for axis := 0; axis < 3; axis++ {
				assert.LessOrEqual(t, v.Min[axis], p[axis])
				assert.GreaterOrEqual(t, v.Max[axis], p[axis])
			}
		}
	}
}

func TestVoxelizeCentersIsIdempotent(t *testing.T) {
	v := NewVoxelizer(0.25)
	grid, err := v.Voxelize(randomCloud(3, 300, 4))
	require.NoError(t, err)

	again, err := v.Voxelize(grid.Centers())
	require.NoError(t, err)
	assert.Equal(t, grid.Cells(), again.Cells())
	assert.Equal(t, grid.CellSize, again.CellSize)
}

func TestVoxelizeIsDeterministic(t *testing.T) {
	cloud := randomCloud(11, 200, 3)
	shuffled := cloud.Clone()
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	v := NewVoxelizer(0.5)
	a, err := v.Voxelize(cloud)
	require.NoError(t, err)
	b, err := v.Voxelize(shuffled)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVoxelizeNegativeCoordinates(t *testing.T) {
	grid, err := NewVoxelizer(1).Voxelize(PointCloud{{-0.5, -1, 0.5}})
	require.NoError(t, err)
	require.Len(t, grid.Voxels, 1)
	assert.Equal(t, VoxelIndex{-1, -1, 0}, grid.Voxels[0].Index)
	assert.Equal(t, Point{-1, -1, 0}, grid.Voxels[0].Min)
}

func TestVoxelizeErrors(t *testing.T) {
	_, err := NewVoxelizer(1).Voxelize(nil)
	assert.ErrorIs(t, err, ErrEmptyCloud)

	v := NewVoxelizer(1)
	v.MaxCells = 1
	_, err = v.Voxelize(PointCloud{{0, 0, 0}, {5, 5, 5}})
	assert.ErrorIs(t, err, ErrTooManyCells)

	_, err = NewVoxelizer(1e-30).Voxelize(PointCloud{{1e30, 0, 0}})
	assert.ErrorIs(t, err, ErrTooManyCells)
}

func TestVoxelizeFloat32Extremes(t *testing.T) {
	clouds := map[string]PointCloud{
		"symmetric span": {{-3e38, 0, 0}, {3e38, 0, 0}},
		"max float":      {{-3e38, 0, 0}, {math.MaxFloat32, 1, -math.MaxFloat32}, {0, 0, 0}},
	}
	for name, cloud := range clouds {
		t.Run(name, func(t *testing.T) {
			v := NewVoxelizer(0)
			size, err := v.CellSizeFor(cloud)
			require.NoError(t, err)
			assert.False(t, math.IsInf(float64(size), 0))

			grid, err := v.Voxelize(cloud)
			require.NoError(t, err)
			for _, vx := range grid.Voxels {
				require.NoError(t, PointCloud{vx.Min, vx.Max, vx.Center}.Validate())
			}
			for _, p := range cloud {
				vx, ok := grid.lookup(p)
				require.True(t, ok)
				for i := 0; i < 3; i++ {
					assert.LessOrEqual(t, vx.Min[i], p[i])
					assert.GreaterOrEqual(t, vx.Max[i], p[i])
				}
			}

			again, err := NewVoxelizer(grid.CellSize).Voxelize(grid.Centers())
			require.NoError(t, err)
			assert.Equal(t, grid.Cells(), again.Cells())
		})
	}
}

func TestCellSizeForRejectsNonFinite(t *testing.T) {
	for _, size := range []float32{float32(math.Inf(1)), float32(math.NaN())} {
		_, err := NewVoxelizer(size).CellSizeFor(PointCloud{{0, 0, 0}})
		assert.ErrorIs(t, err, ErrNonFinite)
		_, err = NewVoxelizer(size).Voxelize(PointCloud{{0, 0, 0}})
		assert.ErrorIs(t, err, ErrNonFinite)
	}
}

func TestCellSizeFor(t *testing.T) {
	tests := []struct {
		name  string
		v     *Voxelizer
		cloud PointCloud
		want  float32
	}{
		{"explicit", NewVoxelizer(0.3), PointCloud{{0, 0, 0}}, 0.3},
		{"single point", NewVoxelizer(0), PointCloud{{2, 2, 2}}, DefaultCellSize},
		{"cube root of count", NewVoxelizer(0), PointCloud{
			{0, 0, 0}, {2, 0, 0}, {0, 2, 0}, {0, 0, 2},
			{2, 2, 0}, {2, 0, 2}, {0, 2, 2}, {2, 2, 2},
		}, 1},
		{"resolution cap", &Voxelizer{MaxResolution: 1}, PointCloud{
			{0, 0, 0}, {4, 0, 0}, {0, 1, 0}, {0, 0, 1},
			{1, 1, 0}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
		}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.v.CellSizeFor(tt.cloud)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDownsample(t *testing.T) {
	cloud := PointCloud{{0.1, 0.1, 0.1}, {0.3, 0.3, 0.3}, {1.5, 0, 0}}
	out, err := NewVoxelizer(1).Downsample(cloud)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.2, out[0][0], 1e-6)
	assert.Equal(t, Point{1.5, 0, 0}, out[1])

	_, err = NewVoxelizer(1).Downsample(nil)
	assert.ErrorIs(t, err, ErrEmptyCloud)
}
