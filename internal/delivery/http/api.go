package http

import (
	"context"
	"errors"
	"net/http"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"pointview/internal/storage"
	"pointview/internal/usecase"
	"pointview/internal/usecase/cluster"
	"pointview/internal/usecase/pcfile"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoUpstream is returned by predict and models when no prediction service is configured.
var ErrNoUpstream = errors.New("prediction service not configured")

// Predictor is the model service behind /predict and /models.
type Predictor interface {
	Predict(ctx context.Context, cloud usecase.PointCloud, model string) (string, error)
	Models(ctx context.Context) ([]string, error)
}

// API serves the viewer endpoints.
type API struct {
	store     *storage.UploadStore
	sessions  *usecase.SessionStore
	voxelizer *usecase.Voxelizer
	camera    usecase.CameraOptions
	predictor Predictor
	hub       *Hub
	log       logrus.FieldLogger

	renderMu sync.RWMutex
	render   usecase.RenderSettings
}

type Option func(*API)

// WithPredictor enables /predict and /models.
func WithPredictor(p Predictor) Option {
	return func(a *API) { a.predictor = p }
}

// WithHub publishes every scene change to the viewers of the hub.
func WithHub(h *Hub) Option {
	return func(a *API) { a.hub = h }
}

func WithRenderSettings(r usecase.RenderSettings) Option {
	return func(a *API) { a.render = r }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(a *API) { a.log = log }
}

func NewAPI(store *storage.UploadStore, voxelizer *usecase.Voxelizer, camera usecase.CameraOptions, opts ...Option) *API {
	if voxelizer == nil {
		voxelizer = usecase.NewVoxelizer(0)
	}
	a := &API{
		store:     store,
		sessions:  usecase.NewSessionStore(voxelizer, camera),
		voxelizer: voxelizer,
		camera:    camera,
		render:    usecase.DefaultRenderSettings(),
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.hub == nil {
		a.hub = NewHub(0)
	}
	return a
}

// Hub returns the hub scenes are published to.
func (a *API) Hub() *Hub {
	return a.hub
}

// Sessions returns the per-upload view state.
func (a *API) Sessions() *usecase.SessionStore {
	return a.sessions
}

// Register mounts the API routes on e.
func (a *API) Register(e *echo.Echo) {
	e.POST("/upload", a.upload)
	e.GET("/uploads", a.uploads)
	e.GET("/plot/points/:filename", a.points)
	e.POST("/plot/settings", a.cameraSettings)
	e.POST("/plot/voxels", a.voxelize)
	e.POST("/cluster", a.cluster)
	e.POST("/predict", a.predict)
	e.GET("/models", a.models)
	e.GET("/view/:filename", a.view)
	e.POST("/view/:filename/reset", a.reset)
	e.GET("/render/settings", a.getRender)
	e.POST("/render/settings", a.setRender)
}

func (a *API) renderSettings() usecase.RenderSettings {
	a.renderMu.RLock()
	defer a.renderMu.RUnlock()
	return a.render
}

// publish attaches the render settings and pushes the scene to the viewers.
func (a *API) publish(scene usecase.Scene) usecase.Scene {
	render := a.renderSettings()
	scene.Render = &render
	if n := a.hub.Publish(scene); n > 0 {
		a.log.WithFields(logrus.Fields{"name": scene.Name, "mode": scene.Mode, "viewers": n}).Debug("scene published")
	}
	return scene
}

// session returns the session for an uploaded file, loading the file on first use.
func (a *API) session(name string) (*usecase.Session, error) {
	if s, ok := a.sessions.Get(name); ok && s.Points() != nil {
		return s, nil
	}
	path, err := a.store.Path(name)
	if err != nil {
		return nil, err
	}
	cloud, err := pcfile.Read(path)
	if err != nil {
		return nil, err
	}
	s := a.sessions.GetOrCreate(name)
	if err := s.Load(cloud); err != nil {
		return nil, err
	}
	return s, nil
}

// httpError maps domain errors to status codes.
func httpError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, usecase.ErrShape),
		errors.Is(err, usecase.ErrMissingInput),
		errors.Is(err, usecase.ErrEmptyCloud),
		errors.Is(err, usecase.ErrNonFinite),
		errors.Is(err, usecase.ErrTooManyCells),
		errors.Is(err, usecase.ErrUnknownMode),
		errors.Is(err, storage.ErrNoFilename),
		errors.Is(err, storage.ErrExtensionNotAllowed),
		errors.Is(err, pcfile.ErrUnsupportedFormat),
		errors.Is(err, cluster.ErrUnknownAlgorithm),
		errors.Is(err, cluster.ErrInvalidSettings):
		code = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, usecase.ErrBusy):
		code = http.StatusConflict
	case errors.Is(err, ErrNoUpstream):
		code = http.StatusServiceUnavailable
	}
	return echo.NewHTTPError(code, err.Error()).SetInternal(err)
}
