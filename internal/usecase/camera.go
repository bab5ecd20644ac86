package usecase

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

const (
	// DefaultFOV is the vertical field of view in degrees.
	DefaultFOV = 45.0
	// DefaultAspect matches the viewer canvas, which keeps width at twice the height.
	DefaultAspect = 2.0
	// DefaultMargin leaves a little room around the framed cloud.
	DefaultMargin = 1.1
	// DefaultMinDistance is used when the cloud has no extent.
	DefaultMinDistance = 0.1
)

// CameraOptions control how a bounding box is framed.
type CameraOptions struct {
	FOV           float64   `yaml:"fov" validate:"gte=0,lt=180"`
	Aspect        float64   `yaml:"aspect" validate:"gte=0"`
	Margin        float64   `yaml:"margin" validate:"gte=0"`
	MinDistance   float64   `yaml:"minDistance" validate:"gte=0"`
	ViewDirection r3.Vector `yaml:"-"`
}

// DefaultCameraOptions returns the options used by the viewer.
func DefaultCameraOptions() CameraOptions {
	return CameraOptions{
		FOV:           DefaultFOV,
		Aspect:        DefaultAspect,
		Margin:        DefaultMargin,
		MinDistance:   DefaultMinDistance,
		ViewDirection: r3.Vector{Z: 1},
	}
}

func (o CameraOptions) withDefaults() CameraOptions {
	d := DefaultCameraOptions()
	if o.FOV <= 0 || o.FOV >= 180 {
		o.FOV = d.FOV
	}
	if o.Aspect <= 0 {
		o.Aspect = d.Aspect
	}
	if o.Margin <= 0 {
		o.Margin = d.Margin
	}
	if o.MinDistance <= 0 {
		o.MinDistance = d.MinDistance
	}
	if o.ViewDirection.Norm() == 0 {
		o.ViewDirection = d.ViewDirection
	}
	return o
}

// CameraParams initialize an orbit camera: it looks at (LookX, LookY, LookZ)
// from (CameraX, CameraY, CameraZ), Distance away.
type CameraParams struct {
	LookX    float64 `json:"look_x"`
	LookY    float64 `json:"look_y"`
	LookZ    float64 `json:"look_z"`
	CameraX  float64 `json:"camera_x"`
	CameraY  float64 `json:"camera_y"`
	CameraZ  float64 `json:"camera_z"`
	Distance float64 `json:"distance"`
	Radius   float64 `json:"radius"`
	FOV      float64 `json:"fov"`
	Aspect   float64 `json:"aspect"`
	Near     float64 `json:"near"`
	Far      float64 `json:"far"`
}

// Target returns the look-at point.
func (p CameraParams) Target() r3.Vector {
	return r3.Vector{X: p.LookX, Y: p.LookY, Z: p.LookZ}
}

// Eye returns the camera position.
func (p CameraParams) Eye() r3.Vector {
	return r3.Vector{X: p.CameraX, Y: p.CameraY, Z: p.CameraZ}
}

// FitCamera frames every point of the cloud.
func FitCamera(cloud PointCloud, opts CameraOptions) (CameraParams, error) {
	if err := cloud.Validate(); err != nil {
		return CameraParams{}, fmt.Errorf("fit camera: %w", err)
	}
	box, _ := Bounds(cloud)
	return FitBox(box, opts), nil
}

// FitVoxelCamera frames every corner of every cell.
func FitVoxelCamera(cells VoxelCells, opts CameraOptions) (CameraParams, error) {
	var (
		box   BoundingBox
		empty = true
	)
	for i, cell := range cells {
		for _, corner := range cell {
			if !corner.IsFinite() {
				return CameraParams{}, fmt.Errorf("fit voxel camera: cell %d: %w", i, ErrNonFinite)
			}
			if empty {
				box = NewBoundingBox(corner)
				empty = false
				continue
			}
			box = box.Extend(corner)
		}
	}
	if empty {
		return CameraParams{}, fmt.Errorf("fit voxel camera: %w", ErrEmptyCloud)
	}
	return FitBox(box, opts), nil
}

// FitBox derives the camera for a bounding box. The bounding sphere of the box
// is fit into the narrower of the vertical and horizontal fields of view.
func FitBox(box BoundingBox, opts CameraOptions) CameraParams {
	opts = opts.withDefaults()

	c := box.Center()
	target := r3.Vector{X: c[0], Y: c[1], Z: c[2]}
	radius := box.Diagonal() / 2

	vfov := opts.FOV * math.Pi / 180
	hfov := 2 * math.Atan(math.Tan(vfov/2)*opts.Aspect)
	fov := math.Min(vfov, hfov)

	distance := opts.MinDistance
	if radius > 0 {
		distance = math.Max(radius/math.Sin(fov/2)*opts.Margin, opts.MinDistance)
	}

	eye := target.Add(opts.ViewDirection.Normalize().Mul(distance))
	return CameraParams{
		LookX:    target.X,
		LookY:    target.Y,
		LookZ:    target.Z,
		CameraX:  eye.X,
		CameraY:  eye.Y,
		CameraZ:  eye.Z,
		Distance: distance,
		Radius:   radius,
		FOV:      opts.FOV,
		Aspect:   opts.Aspect,
		Near:     distance / 100,
		Far:      (distance + radius) * 10,
	}
}
