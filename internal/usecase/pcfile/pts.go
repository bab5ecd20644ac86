package pcfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pointview/internal/usecase"
)

// ReadPTS reads whitespace separated "x y z" lines. Extra columns (intensity,
// color) are ignored, blank lines and '#' comments are skipped, and a leading
// line holding a single integer is taken as the point count.
func ReadPTS(r io.Reader) (usecase.PointCloud, error) {
	var cloud usecase.PointCloud
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	first := true
	for scanner.Scan() {
		lineNo++
		line, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if first {
			first = false
			if len(fields) == 1 {
				if n, err := strconv.Atoi(fields[0]); err == nil && n >= 0 {
					cloud = make(usecase.PointCloud, 0, min(n, 1<<22))
					continue
				}
			}
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected x y z, got %d fields: %w", lineNo, len(fields), usecase.ErrShape)
		}
		var p usecase.Point
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid coordinate %q: %w: %w", lineNo, fields[i], usecase.ErrShape, err)
			}
			p[i] = float32(v)
		}
		cloud = append(cloud, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w: %w", lineNo+1, usecase.ErrShape, err)
	}
	return cloud, nil
}

// WritePTS writes one "x y z" line per point.
func WritePTS(w io.Writer, cloud usecase.PointCloud) error {
	bw := bufio.NewWriter(w)
	for _, p := range cloud {
		if _, err := fmt.Fprintf(bw, "%g %g %g\n", p[0], p[1], p[2]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
