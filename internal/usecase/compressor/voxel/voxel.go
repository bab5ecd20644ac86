package compressor

import (
	"pointview/internal/usecase"
)

// VoxelCompressor is lossy: every occupied cell is replaced by the centroid
// of its points. Decompress is the identity.
type VoxelCompressor struct {
	voxelizer *usecase.Voxelizer
}

func NewVoxelCompressor(voxelSize float32) usecase.PointCloudCompressor {
	return &VoxelCompressor{voxelizer: usecase.NewVoxelizer(voxelSize)}
}

func (c *VoxelCompressor) Compress(data []byte) ([]byte, error) {
	pts, err := usecase.DecodePoints(data)
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return data, nil
	}
	downsampled, err := c.voxelizer.Downsample(pts)
	if err != nil {
		return nil, err
	}
	return usecase.EncodePoints(downsampled), nil
}

func (c *VoxelCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
