package usecase

import "errors"

var (
	// ErrEmptyCloud is returned by operations that need at least one point.
	ErrEmptyCloud = errors.New("point cloud is empty")
	// ErrShape is returned when an array does not look like a point cloud or a voxel grid.
	ErrShape = errors.New("not recognized array format")
	// ErrNonFinite is returned for NaN or infinite coordinates.
	ErrNonFinite = errors.New("coordinate is not finite")
	// ErrMissingInput is returned when neither points nor voxels were provided.
	ErrMissingInput = errors.New("points or voxels are required")
	// ErrTooManyCells is returned when a voxel grid would exceed the configured cell budget.
	ErrTooManyCells = errors.New("voxel grid exceeds cell limit")
	// ErrBusy is returned when the same action is already running for a session.
	ErrBusy = errors.New("action already in flight")
	// ErrUnknownMode is returned for a view mode other than points or voxels.
	ErrUnknownMode = errors.New("unknown view mode")
)
