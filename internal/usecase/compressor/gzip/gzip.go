package compressor

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"pointview/internal/usecase"
)

// GzipCompressor deflates whatever the previous stage produced.
type GzipCompressor struct {
	level int
}

func NewGzipCompressor() usecase.PointCloudCompressor {
	return &GzipCompressor{level: gzip.DefaultCompression}
}

// NewGzipCompressorLevel accepts the compress/gzip levels.
func NewGzipCompressorLevel(level int) (usecase.PointCloudCompressor, error) {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("gzip level %d out of range", level)
	}
	return &GzipCompressor{level: level}, nil
}

func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	zw, err := gzip.NewWriterLevel(&out, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (c *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
