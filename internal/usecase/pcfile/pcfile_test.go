package pcfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointview/internal/usecase"
)

func TestReadPTS(t *testing.T) {
	input := `# exported scan
3
0 0 0 255 10 10 10
1.5 -2 3

4e1 5 6
`
	cloud, err := ReadPTS(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, usecase.PointCloud{{0, 0, 0}, {1.5, -2, 3}, {40, 5, 6}}, cloud)
}

func TestReadPTSWithoutCount(t *testing.T) {
	cloud, err := ReadPTS(strings.NewReader("1 2 3\n4 5 6"))
	require.NoError(t, err)
	assert.Equal(t, usecase.PointCloud{{1, 2, 3}, {4, 5, 6}}, cloud)
}

func TestReadPTSErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too few fields", "1 2\n"},
		{"not a number", "1 2 x\n"},
		{"out of float32 range", "1 2 1e39\n"},
		{"bad line after count", "2\n0 0 0\n1 y 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPTS(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, usecase.ErrShape)
		})
	}
}

func TestWritePTSRoundTrip(t *testing.T) {
	cloud := usecase.PointCloud{{0.25, -1, 3}, {7, 8, 9}}
	var buf bytes.Buffer
	require.NoError(t, WritePTS(&buf, cloud))
	back, err := ReadPTS(&buf)
	require.NoError(t, err)
	assert.Equal(t, cloud, back)
}

const asciiPCD = `# .PCD v0.7 - Point Cloud Data file format
VERSION 0.7
FIELDS rgb x y z
SIZE 4 4 4 4
TYPE F F F F
COUNT 1 1 1 1
WIDTH 2
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 2
DATA ascii
4.2108e+06 1 2 3
4.2108e+06 -1 -2 -3.5
`

func TestReadPCD(t *testing.T) {
	cloud, err := ReadPCD(strings.NewReader(asciiPCD))
	require.NoError(t, err)
	assert.Equal(t, usecase.PointCloud{{1, 2, 3}, {-1, -2, -3.5}}, cloud)
}

func TestReadPCDErrors(t *testing.T) {
	binary := strings.Replace(asciiPCD, "DATA ascii", "DATA binary", 1)
	_, err := ReadPCD(strings.NewReader(binary))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	noZ := strings.Replace(asciiPCD, "FIELDS rgb x y z", "FIELDS rgb x y w", 1)
	_, err = ReadPCD(strings.NewReader(noZ))
	assert.ErrorIs(t, err, usecase.ErrShape)

	short := strings.Replace(asciiPCD, "4.2108e+06 -1 -2 -3.5", "-1 -2", 1)
	_, err = ReadPCD(strings.NewReader(short))
	assert.ErrorIs(t, err, usecase.ErrShape)

	tests := []struct {
		name  string
		input string
	}{
		{"truncated header", "VERSION 0.7\n"},
		{"bad width", strings.Replace(asciiPCD, "WIDTH 2", "WIDTH two", 1)},
		{"bad points", strings.Replace(asciiPCD, "POINTS 2", "POINTS 2.5", 1)},
		{"negative points", strings.Replace(asciiPCD, "POINTS 2", "POINTS -1", 1)},
		{"bad value", strings.Replace(asciiPCD, "4.2108e+06 1 2 3", "4.2108e+06 1 two 3", 1)},
		{"missing rows", strings.Replace(asciiPCD, "POINTS 2", "POINTS 5", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPCD(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, usecase.ErrShape)
		})
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	cloud, err := Read(write("scan.PTS", "1 2 3\n"))
	require.NoError(t, err)
	assert.Equal(t, usecase.PointCloud{{1, 2, 3}}, cloud)

	cloud, err = Read(write("scan.pcd", asciiPCD))
	require.NoError(t, err)
	assert.Len(t, cloud, 2)

	_, err = Read(write("scan.ply", "ply\n"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Read(write("empty.xyz", "# nothing\n"))
	assert.ErrorIs(t, err, usecase.ErrEmptyCloud)

	_, err = Read(write("broken.las", "not a las file"))
	assert.ErrorIs(t, err, usecase.ErrShape)

	_, err = Read(write("broken.pcd", "VERSION 0.7\nFIELDS x y z\n"))
	assert.ErrorIs(t, err, usecase.ErrShape)

	_, err = Read(filepath.Join(dir, "missing.pts"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.pts"))
	assert.True(t, Supported("b.LAS"))
	assert.False(t, Supported("c.md"))
	assert.False(t, Supported("noext"))
}
