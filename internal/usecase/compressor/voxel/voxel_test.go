package compressor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointview/internal/usecase"
)

func TestVoxelCompressorDownsamples(t *testing.T) {
	cloud := usecase.PointCloud{{0.01, 0.01, 0.01}, {0.03, 0.03, 0.03}, {0.5, 0.5, 0.5}}
	c := NewVoxelCompressor(0.1)

	packed, err := c.Compress(usecase.EncodePoints(cloud))
	require.NoError(t, err)
	out, err := usecase.DecodePoints(packed)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.InDelta(t, 0.02, out[0][0], 1e-6)
	assert.InDelta(t, 0.5, out[1][2], 1e-6)

	same, err := c.Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, packed, same)
}

func TestVoxelCompressorEdgeCases(t *testing.T) {
	c := NewVoxelCompressor(0.1)
	out, err := c.Compress(nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = c.Compress([]byte{1, 2, 3})
	assert.Error(t, err)
}
