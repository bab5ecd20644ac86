package usecase

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParsePointCloud decodes a JSON array of [x, y, z] arrays. Every row must
// have exactly three finite numbers.
func ParsePointCloud(data []byte) (PointCloud, error) {
	var rows [][]float32
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse point cloud: %w: %v", ErrShape, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parse point cloud: %w", ErrEmptyCloud)
	}
	cloud := make(PointCloud, len(rows))
	for i, row := range rows {
		if len(row) != 3 {
			return nil, fmt.Errorf("parse point cloud: row %d has %d values: %w", i, len(row), ErrShape)
		}
		cloud[i] = Point{row[0], row[1], row[2]}
	}
	if err := cloud.Validate(); err != nil {
		return nil, fmt.Errorf("parse point cloud: %w", err)
	}
	return cloud, nil
}

// ParseVoxelCells decodes a JSON voxel grid: one list of corner tuples per cell.
func ParseVoxelCells(data []byte) (VoxelCells, error) {
	var raw [][][]float32
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse voxels: %w: %v", ErrShape, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("parse voxels: %w", ErrEmptyCloud)
	}
	cells := make(VoxelCells, len(raw))
	for i, cell := range raw {
		if len(cell) == 0 {
			return nil, fmt.Errorf("parse voxels: cell %d has no corners: %w", i, ErrShape)
		}
		corners := make([]Point, len(cell))
		for j, c := range cell {
			if len(c) != 3 {
				return nil, fmt.Errorf("parse voxels: cell %d corner %d has %d values: %w", i, j, len(c), ErrShape)
			}
			corners[j] = Point{c[0], c[1], c[2]}
			if !corners[j].IsFinite() {
				return nil, fmt.Errorf("parse voxels: cell %d: %w", i, ErrNonFinite)
			}
		}
		cells[i] = corners
	}
	return cells, nil
}

// DecodeFigure detects whether data holds a point cloud or a voxel grid by
// looking at the depth of its first element, then decodes it strictly.
// Exactly one of the returned values is non-nil on success.
func DecodeFigure(data []byte) (PointCloud, VoxelCells, error) {
	var probe []jsoniter.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, nil, fmt.Errorf("decode figure: %w: %v", ErrShape, err)
	}
	if len(probe) == 0 {
		return nil, nil, fmt.Errorf("decode figure: %w", ErrEmptyCloud)
	}
	var first []jsoniter.RawMessage
	if err := json.Unmarshal(probe[0], &first); err != nil || len(first) == 0 {
		return nil, nil, fmt.Errorf("decode figure: %w", ErrShape)
	}
	switch json.Get(first[0]).ValueType() {
	case jsoniter.NumberValue:
		cloud, err := ParsePointCloud(data)
		return cloud, nil, err
	case jsoniter.ArrayValue:
		cells, err := ParseVoxelCells(data)
		return nil, cells, err
	default:
		return nil, nil, fmt.Errorf("decode figure: %w", ErrShape)
	}
}
