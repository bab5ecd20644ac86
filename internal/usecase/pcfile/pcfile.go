// Package pcfile reads point cloud files into usecase.PointCloud.
package pcfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pointview/internal/usecase"
)

// ErrUnsupportedFormat is returned for a file extension with no reader.
var ErrUnsupportedFormat = errors.New("unsupported point cloud format")

// Extensions lists the readable extensions, without the dot.
var Extensions = []string{"pts", "xyz", "txt", "pcd", "las"}

// Supported reports whether a file with this name can be read.
func Supported(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Read picks the reader from the file extension.
func Read(path string) (usecase.PointCloud, error) {
	var (
		cloud usecase.PointCloud
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pts", ".xyz", ".txt":
		cloud, err = readWith(path, ReadPTS)
	case ".pcd":
		cloud, err = readWith(path, ReadPCD)
	case ".las":
		cloud, err = ReadLAS(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := cloud.Validate(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return cloud, nil
}

func readWith(path string, read func(r io.Reader) (usecase.PointCloud, error)) (usecase.PointCloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return read(f)
}
