package usecase

import (
	"context"
	"fmt"
	"sync"
)

// ViewMode selects how a cloud is shown.
type ViewMode string

const (
	ModePoints ViewMode = "points"
	ModeVoxels ViewMode = "voxels"
)

// ParseViewMode accepts the mode names and the tab indices used by the viewer.
func ParseViewMode(s string) (ViewMode, error) {
	switch s {
	case "", "0", string(ModePoints):
		return ModePoints, nil
	case "1", string(ModeVoxels):
		return ModeVoxels, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// RenderSettings are the material parameters of the viewer panel.
type RenderSettings struct {
	Size      float32 `json:"size" form:"size" yaml:"size" validate:"gte=0.001,lte=1"`
	Opacity   float32 `json:"opacity" form:"opacity" yaml:"opacity" validate:"gte=0.1,lte=1"`
	Wireframe bool    `json:"wireframe" form:"wireframe" yaml:"wireframe"`
}

// DefaultRenderSettings returns the panel defaults.
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{Size: 0.01, Opacity: 1}
}

// Scene is what a viewer needs to draw one figure.
type Scene struct {
	Name       string          `json:"name"`
	Mode       ViewMode        `json:"mode"`
	Points     PointCloud      `json:"points,omitempty"`
	Voxels     VoxelCells      `json:"voxels,omitempty"`
	Segments   []PointCloud    `json:"segments,omitempty"`
	Camera     CameraParams    `json:"camera"`
	Render     *RenderSettings `json:"render,omitempty"`
	Prediction string          `json:"prediction,omitempty"`
}

// Session holds the view state of one uploaded cloud.
type Session struct {
	name      string
	voxelizer *Voxelizer
	camera    CameraOptions

	mu         sync.Mutex
	original   PointCloud
	current    PointCloud
	grid       *VoxelGrid
	mode       ViewMode
	prediction string
	segments   []PointCloud
	busy       map[string]bool
}

// NewSession returns an empty session.
func NewSession(name string, voxelizer *Voxelizer, camera CameraOptions) *Session {
	if voxelizer == nil {
		voxelizer = NewVoxelizer(0)
	}
	return &Session{
		name:      name,
		voxelizer: voxelizer,
		camera:    camera,
		mode:      ModePoints,
		busy:      make(map[string]bool),
	}
}

// Name returns the session key.
func (s *Session) Name() string {
	return s.name
}

// Load replaces the cloud and clears everything derived from the previous one.
// The voxel grid is built on first use.
func (s *Session) Load(points PointCloud) error {
	if err := points.Validate(); err != nil {
		return fmt.Errorf("load %s: %w", s.name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.original = points.Clone()
	s.current = s.original
	s.grid = nil
	s.prediction = ""
	s.segments = nil
	return nil
}

// SetPoints replaces the displayed points, for example with one segment,
// and rebuilds the voxel grid for them.
func (s *Session) SetPoints(points PointCloud) error {
	grid, err := s.voxelizer.Voxelize(points)
	if err != nil {
		return fmt.Errorf("set points %s: %w", s.name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = points.Clone()
	s.grid = grid
	return nil
}

// Reset shows the originally loaded points again.
func (s *Session) Reset() error {
	s.mu.Lock()
	original := s.original
	s.mu.Unlock()
	if original == nil {
		return fmt.Errorf("reset %s: %w", s.name, ErrEmptyCloud)
	}
	return s.SetPoints(original)
}

// Points returns the displayed points.
func (s *Session) Points() PointCloud {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetPrediction records the last prediction.
func (s *Session) SetPrediction(prediction string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prediction = prediction
}

// SetSegments records the last segmentation, ordered by cluster id.
func (s *Session) SetSegments(segments map[string]PointCloud) {
	ordered := OrderSegments(segments)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = ordered
}

// SelectMode switches the view and returns the scene to draw.
func (s *Session) SelectMode(mode ViewMode) (Scene, error) {
	if mode != ModePoints && mode != ModeVoxels {
		return Scene{}, fmt.Errorf("select mode: %w: %q", ErrUnknownMode, mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	return s.sceneLocked()
}

// Scene returns the scene for the current mode.
func (s *Session) Scene() (Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sceneLocked()
}

func (s *Session) sceneLocked() (Scene, error) {
	if s.current == nil {
		return Scene{}, fmt.Errorf("scene %s: %w", s.name, ErrEmptyCloud)
	}
	scene := Scene{
		Name:       s.name,
		Mode:       s.mode,
		Segments:   s.segments,
		Prediction: s.prediction,
	}
	var err error
	switch s.mode {
	case ModeVoxels:
		if s.grid == nil {
			if s.grid, err = s.voxelizer.Voxelize(s.current); err != nil {
				return Scene{}, fmt.Errorf("scene %s: %w", s.name, err)
			}
		}
		scene.Voxels = s.grid.Cells()
		scene.Camera, err = FitVoxelCamera(scene.Voxels, s.camera)
	default:
		scene.Points = s.current
		scene.Camera, err = FitCamera(s.current, s.camera)
	}
	if err != nil {
		return Scene{}, fmt.Errorf("scene %s: %w", s.name, err)
	}
	return scene, nil
}

// Run executes fn unless the same action is already running for this
// session, in which case it returns ErrBusy right away.
func (s *Session) Run(ctx context.Context, action string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.busy[action] {
		s.mu.Unlock()
		return fmt.Errorf("%s on %s: %w", action, s.name, ErrBusy)
	}
	s.busy[action] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.busy, action)
		s.mu.Unlock()
	}()
	return fn(ctx)
}

// SessionStore keeps one session per uploaded file.
type SessionStore struct {
	voxelizer *Voxelizer
	camera    CameraOptions

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore returns an empty store whose sessions share the voxelizer and camera options.
func NewSessionStore(voxelizer *Voxelizer, camera CameraOptions) *SessionStore {
	return &SessionStore{
		voxelizer: voxelizer,
		camera:    camera,
		sessions:  make(map[string]*Session),
	}
}

// Get returns the session for name, if any.
func (st *SessionStore) Get(name string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[name]
	return s, ok
}

// GetOrCreate returns the session for name, creating an empty one when missing.
func (st *SessionStore) GetOrCreate(name string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[name]
	if !ok {
		s = NewSession(name, st.voxelizer, st.camera)
		st.sessions[name] = s
	}
	return s
}

// Delete drops the session for name.
func (st *SessionStore) Delete(name string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, name)
}
