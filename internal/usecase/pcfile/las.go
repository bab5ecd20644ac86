package pcfile

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/edaniels/lidario"

	"pointview/internal/usecase"
)

var lasSignature = []byte("LASF")

// ReadLAS reads the point records of a LAS file.
func ReadLAS(path string) (usecase.PointCloud, error) {
	if err := checkLASSignature(path); err != nil {
		return nil, err
	}
	lf, err := lidario.NewLasFile(path, "r")
	if err != nil {
		return nil, fmt.Errorf("las: %w: %w", usecase.ErrShape, err)
	}
	defer lf.Close()

	cloud := make(usecase.PointCloud, 0, lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, fmt.Errorf("las point %d: %w: %w", i, usecase.ErrShape, err)
		}
		data := p.PointData()
		cloud = append(cloud, usecase.Point{float32(data.X), float32(data.Y), float32(data.Z)})
	}
	return cloud, nil
}

// checkLASSignature rejects files without the LASF magic before lidario parses the header.
func checkLASSignature(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	magic := make([]byte, len(lasSignature))
	if _, err := io.ReadFull(f, magic); err != nil || !bytes.Equal(magic, lasSignature) {
		return fmt.Errorf("las: missing LASF signature: %w", usecase.ErrShape)
	}
	return nil
}
