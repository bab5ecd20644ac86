package pcfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pointview/internal/usecase"
)

type pcdHeader struct {
	fields []string
	width  int
	height int
	points int
	data   string
}

// xyz returns the column of each coordinate.
func (h pcdHeader) xyz() ([3]int, error) {
	cols := [3]int{-1, -1, -1}
	for i, f := range h.fields {
		switch f {
		case "x":
			cols[0] = i
		case "y":
			cols[1] = i
		case "z":
			cols[2] = i
		}
	}
	for _, c := range cols {
		if c < 0 {
			return cols, fmt.Errorf("pcd fields %v lack x y z: %w", h.fields, usecase.ErrShape)
		}
	}
	return cols, nil
}

// ReadPCD reads an ascii PCD file. Binary variants are rejected.
func ReadPCD(r io.Reader) (usecase.PointCloud, error) {
	in := bufio.NewReader(r)
	header, err := readPCDHeader(in)
	if err != nil {
		return nil, err
	}
	if header.data != "ascii" {
		return nil, fmt.Errorf("%w: pcd data %q", ErrUnsupportedFormat, header.data)
	}
	cols, err := header.xyz()
	if err != nil {
		return nil, err
	}

	cloud := make(usecase.PointCloud, 0, min(header.points, 1<<22))
	for i := 0; i < header.points; i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return nil, fmt.Errorf("pcd point %d: %w: %w", i, usecase.ErrShape, err)
		}
		tokens := strings.Fields(line)
		if len(tokens) != len(header.fields) {
			return nil, fmt.Errorf("pcd point %d: %d values for %d fields: %w", i, len(tokens), len(header.fields), usecase.ErrShape)
		}
		var p usecase.Point
		for axis, col := range cols {
			v, err := strconv.ParseFloat(tokens[col], 32)
			if err != nil {
				return nil, fmt.Errorf("pcd point %d: invalid value %q: %w: %w", i, tokens[col], usecase.ErrShape, err)
			}
			p[axis] = float32(v)
		}
		cloud = append(cloud, p)
	}
	return cloud, nil
}

func readPCDHeader(in *bufio.Reader) (pcdHeader, error) {
	var h pcdHeader
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return h, fmt.Errorf("pcd header: %w: %w", usecase.ErrShape, err)
		}
		line, _, _ = strings.Cut(line, "#")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, _ := strings.Cut(line, " ")
		value = strings.TrimSpace(value)
		switch strings.ToUpper(name) {
		case "FIELDS":
			h.fields = strings.Fields(value)
		case "WIDTH":
			if h.width, err = strconv.Atoi(value); err != nil {
				return h, fmt.Errorf("pcd WIDTH %q: %w: %w", value, usecase.ErrShape, err)
			}
		case "HEIGHT":
			if h.height, err = strconv.Atoi(value); err != nil {
				return h, fmt.Errorf("pcd HEIGHT %q: %w: %w", value, usecase.ErrShape, err)
			}
		case "POINTS":
			if h.points, err = strconv.Atoi(value); err != nil {
				return h, fmt.Errorf("pcd POINTS %q: %w: %w", value, usecase.ErrShape, err)
			}
		case "DATA":
			h.data = value
			if h.points == 0 {
				h.points = h.width * h.height
			}
			if h.points < 0 {
				return h, fmt.Errorf("pcd point count %d: %w", h.points, usecase.ErrShape)
			}
			return h, nil
		}
	}
}
