package usecase

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chewxy/math32"
)

// pointSize is the number of bytes of an encoded point: three little-endian float32.
const pointSize = 12

// Point is a single (x, y, z) sample.
type Point [3]float32

// PointCloud is an ordered sequence of points. Order is the input order.
type PointCloud []Point

// IsFinite reports whether no coordinate is NaN or infinite.
func (p Point) IsFinite() bool {
	for _, v := range p {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate returns ErrEmptyCloud or ErrNonFinite when the cloud cannot be framed or gridded.
func (c PointCloud) Validate() error {
	if len(c) == 0 {
		return ErrEmptyCloud
	}
	for i, p := range c {
		if !p.IsFinite() {
			return fmt.Errorf("point %d: %w", i, ErrNonFinite)
		}
	}
	return nil
}

// Clone returns a copy that does not share the backing array.
func (c PointCloud) Clone() PointCloud {
	if c == nil {
		return nil
	}
	out := make(PointCloud, len(c))
	copy(out, c)
	return out
}

// BoundingBox is an axis-aligned box. Min and Max are inclusive.
type BoundingBox struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// NewBoundingBox returns the degenerate box holding only p.
func NewBoundingBox(p Point) BoundingBox {
	return BoundingBox{Min: p, Max: p}
}

// Bounds computes the bounding box of a non-empty cloud.
func Bounds(c PointCloud) (BoundingBox, error) {
	if len(c) == 0 {
		return BoundingBox{}, ErrEmptyCloud
	}
	box := NewBoundingBox(c[0])
	for _, p := range c[1:] {
		box = box.Extend(p)
	}
	return box, nil
}

// Extend grows the box so that it contains p.
func (b BoundingBox) Extend(p Point) BoundingBox {
	for i := 0; i < 3; i++ {
		b.Min[i] = math32.Min(b.Min[i], p[i])
		b.Max[i] = math32.Max(b.Max[i], p[i])
	}
	return b
}

// Contains reports whether p lies inside the box, borders included.
func (b BoundingBox) Contains(p Point) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Center is the midpoint of the box. It is computed in float64 so that
// boxes spanning most of the float32 range do not overflow.
func (b BoundingBox) Center() [3]float64 {
	var c [3]float64
	for i := 0; i < 3; i++ {
		c[i] = (float64(b.Min[i]) + float64(b.Max[i])) / 2
	}
	return c
}

// Size returns the extent along each axis.
func (b BoundingBox) Size() [3]float64 {
	var s [3]float64
	for i := 0; i < 3; i++ {
		s[i] = float64(b.Max[i]) - float64(b.Min[i])
	}
	return s
}

// Diagonal returns the length of the box diagonal.
func (b BoundingBox) Diagonal() float64 {
	s := b.Size()
	return math.Sqrt(s[0]*s[0] + s[1]*s[1] + s[2]*s[2])
}

// LongestSide returns the largest extent along any axis.
func (b BoundingBox) LongestSide() float64 {
	s := b.Size()
	return math.Max(s[0], math.Max(s[1], s[2]))
}

// Centroid returns the mean of the points.
func Centroid(c PointCloud) (Point, error) {
	if len(c) == 0 {
		return Point{}, ErrEmptyCloud
	}
	var sum [3]float64
	for _, p := range c {
		sum[0] += float64(p[0])
		sum[1] += float64(p[1])
		sum[2] += float64(p[2])
	}
	n := float64(len(c))
	return Point{float32(sum[0] / n), float32(sum[1] / n), float32(sum[2] / n)}, nil
}

// Normalize centers the cloud on its centroid and scales it into the unit sphere.
// A cloud whose points all coincide is only centered.
func Normalize(c PointCloud) (PointCloud, error) {
	centroid, err := Centroid(c)
	if err != nil {
		return nil, err
	}
	out := make(PointCloud, len(c))
	var furthest float32
	for i, p := range c {
		q := Point{p[0] - centroid[0], p[1] - centroid[1], p[2] - centroid[2]}
		out[i] = q
		furthest = math32.Max(furthest, math32.Sqrt(q[0]*q[0]+q[1]*q[1]+q[2]*q[2]))
	}
	if furthest == 0 {
		return out, nil
	}
	for i := range out {
		out[i][0] /= furthest
		out[i][1] /= furthest
		out[i][2] /= furthest
	}
	return out, nil
}

// EncodePoints serializes points as consecutive little-endian float32 triples.
func EncodePoints(points PointCloud) []byte {
	buf := make([]byte, len(points)*pointSize)
	for i, pt := range points {
		off := i * pointSize
		binary.LittleEndian.PutUint32(buf[off:], math32.Float32bits(pt[0]))
		binary.LittleEndian.PutUint32(buf[off+4:], math32.Float32bits(pt[1]))
		binary.LittleEndian.PutUint32(buf[off+8:], math32.Float32bits(pt[2]))
	}
	return buf
}

// DecodePoints is the inverse of EncodePoints.
func DecodePoints(data []byte) (PointCloud, error) {
	if len(data)%pointSize != 0 {
		return nil, fmt.Errorf("encoded points: length %d is not a multiple of %d", len(data), pointSize)
	}
	pts := make(PointCloud, 0, len(data)/pointSize)
	for i := 0; i+pointSize <= len(data); i += pointSize {
		x := math32.Float32frombits(binary.LittleEndian.Uint32(data[i : i+4]))
		y := math32.Float32frombits(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		z := math32.Float32frombits(binary.LittleEndian.Uint32(data[i+8 : i+12]))
		pts = append(pts, Point{x, y, z})
	}
	return pts, nil
}
