package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointview/internal/logger"
	"pointview/internal/storage"
	"pointview/internal/usecase"
	"pointview/internal/usecase/cluster"
	"pointview/internal/usecase/pcfile"
)

type fakePredictor struct {
	models    []string
	lastModel string
	lastCloud usecase.PointCloud
}

func (f *fakePredictor) Predict(_ context.Context, cloud usecase.PointCloud, model string) (string, error) {
	f.lastModel, f.lastCloud = model, cloud
	return fmt.Sprintf("%s saw %d points", model, len(cloud)), nil
}

func (f *fakePredictor) Models(context.Context) ([]string, error) {
	return f.models, nil
}

type testServer struct {
	api   *API
	e     *echo.Echo
	store *storage.UploadStore
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	store := storage.NewUploadStore(t.TempDir(), pcfile.Extensions)
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	api := NewAPI(store, usecase.NewVoxelizer(1), usecase.DefaultCameraOptions(), opts...)
	return &testServer{
		api:   api,
		e:     NewServer(ServerConfig{CORS: "*"}, api, logger.Discard()),
		store: store,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *testServer) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return s.do(req)
}

func (s *testServer) upload(t *testing.T, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	return s.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestUploadAndPoints(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, []string{}, decode[[]string](t, s.get("/uploads")))

	rec := s.upload(t, "my cube.pts", "0 0 0\n1 1 1\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "File uploaded", rec.Body.String())
	assert.Equal(t, []string{"my_cube.pts"}, decode[[]string](t, s.get("/uploads")))

	rec = s.get("/plot/points/my_cube.pts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, usecase.PointCloud{{0, 0, 0}, {1, 1, 1}}, decode[usecase.PointCloud](t, rec))

	rec = s.get("/plot/points/missing.pts")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadReloadsReplacedFile(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.upload(t, "a.pts", "0 0 0\n").Code)
	require.Equal(t, http.StatusOK, s.get("/plot/points/a.pts").Code)
	require.Equal(t, http.StatusOK, s.upload(t, "a.pts", "5 5 5\n6 6 6\n").Code)

	rec := s.get("/plot/points/a.pts")
	assert.Equal(t, usecase.PointCloud{{5, 5, 5}, {6, 6, 6}}, decode[usecase.PointCloud](t, rec))
}

func TestUploadRejects(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, s.upload(t, "notes.md", "hello").Code)
	for name, content := range map[string]string{
		"broken.pts":  "1 2\n",
		"letters.pts": "1 2 x\n",
		"huge.xyz":    "1 2 1e39\n",
		"cut.pcd":     "VERSION 0.7\nFIELDS x y z\n",
		"fake.las":    "not a las file",
	} {
		assert.Equal(t, http.StatusBadRequest, s.upload(t, name, content).Code, name)
		_, err := os.Stat(filepath.Join(s.store.Dir(), name))
		assert.ErrorIs(t, err, os.ErrNotExist, "unreadable uploads are not kept")
	}

	rec := s.postForm("/upload", url.Values{"file": {"not a file"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCameraSettings(t *testing.T) {
	s := newTestServer(t)
	opts := usecase.DefaultCameraOptions()

	rec := s.postForm("/plot/settings", url.Values{"name": {"a"}, "pointcloud": {"[[0,0,0],[2,2,2]]"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[usecase.CameraParams](t, rec)
	want, err := usecase.FitCamera(usecase.PointCloud{{0, 0, 0}, {2, 2, 2}}, opts)
	require.NoError(t, err)
	assert.InDelta(t, want.Distance, got.Distance, 1e-9)
	assert.Equal(t, 1.0, got.LookX)

	rec = s.postForm("/plot/settings", url.Values{
		"pointcloud": {"[[0,0,0]]"},
		"voxels":     {"[[[0,0,0],[1,1,1]],[[3,3,3],[4,4,4]]]"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decode[usecase.CameraParams](t, rec)
	assert.Equal(t, 2.0, got.LookX)

	rec = s.postForm("/plot/settings", url.Values{"name": {"a"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.postForm("/plot/settings", url.Values{"pointcloud": {"[1,2,3]"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), usecase.ErrShape.Error())
}

func TestVoxelize(t *testing.T) {
	s := newTestServer(t)
	rec := s.postForm("/plot/voxels", url.Values{"pointcloud": {"[[0,0,0],[1,1,1]]"}, "cell_size": {"1"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, usecase.VoxelCells{
		{{0, 0, 0}, {1, 1, 1}},
		{{1, 1, 1}, {2, 2, 2}},
	}, decode[usecase.VoxelCells](t, rec))

	rec = s.postForm("/plot/voxels", url.Values{"pointcloud": {"[[0,0,0],[1,1,1]]"}, "cell_size": {"2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[usecase.VoxelCells](t, rec), 1)

	rec = s.postForm("/plot/voxels", url.Values{"pointcloud": {"[[-3e38,0,0],[3e38,0,0]]"}, "cell_size": {"0"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cells := decode[usecase.VoxelCells](t, rec)
	require.Len(t, cells, 2)
	for _, cell := range cells {
		assert.NoError(t, usecase.PointCloud(cell).Validate())
	}

	for _, size := range []string{"big", "-1", "Inf", "NaN"} {
		rec = s.postForm("/plot/voxels", url.Values{"pointcloud": {"[[0,0,0]]"}, "cell_size": {size}})
		assert.Equal(t, http.StatusBadRequest, rec.Code, size)
	}
	rec = s.postForm("/plot/voxels", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

const blobs = `[[0,0,0],[0.1,0,0],[0,0.1,0],[0,0,0.1],[5,5,5],[5.1,5,5],[5,5.1,5],[-20,40,3]]`

func TestCluster(t *testing.T) {
	s := newTestServer(t)
	rec := s.postForm("/cluster", url.Values{
		"pointcloud":  {blobs},
		"algorithm":   {"DBSCAN"},
		"eps":         {"0.5"},
		"min_samples": {"3"},
		"normalize":   {"false"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	segments := decode[map[string]usecase.PointCloud](t, rec)
	require.Len(t, segments, 3)
	assert.Len(t, segments["0"], 4)
	assert.Len(t, segments["1"], 3)
	assert.Equal(t, usecase.PointCloud{{-20, 40, 3}}, segments["-1"])

	tests := []struct {
		name string
		form url.Values
	}{
		{"unknown algorithm", url.Values{"pointcloud": {blobs}, "algorithm": {"spectral"}}},
		{"bad eps", url.Values{"pointcloud": {blobs}, "eps": {"wide"}}},
		{"bad normalize", url.Values{"pointcloud": {blobs}, "normalize": {"maybe"}}},
		{"missing points", url.Values{"algorithm": {"KMEANS"}}},
		{"too many clusters", url.Values{"pointcloud": {blobs}, "algorithm": {"KMEANS"}, "n_clusters": {"50"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, s.postForm("/cluster", tt.form).Code)
		})
	}
}

func TestClusterUploadedFile(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.upload(t, "blobs.pts", "0 0 0\n0.1 0 0\n0 0.1 0\n5 5 5\n5.1 5 5\n5 5.1 5\n").Code)

	_, scenes := s.api.Hub().Subscribe()
	rec := s.postForm("/cluster", url.Values{
		"name": {"blobs.pts"}, "algorithm": {"meanshift"}, "bandwidth": {"1"}, "normalize": {"false"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[map[string]usecase.PointCloud](t, rec), 2)

	scene := <-scenes
	assert.Equal(t, "blobs.pts", scene.Name)
	assert.Len(t, scene.Segments, 2)
	require.NotNil(t, scene.Render)
}

func TestPredictWithoutUpstream(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, s.get("/models").Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.postForm("/predict", url.Values{"pointcloud": {"[[0,0,0]]"}}).Code)
}

func TestPredict(t *testing.T) {
	predictor := &fakePredictor{models: []string{"pointnet", "voxnet"}}
	s := newTestServer(t, WithPredictor(predictor))

	rec := s.get("/models")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"pointnet", "voxnet"}, decode[[]string](t, rec))

	require.Equal(t, http.StatusOK, s.upload(t, "chair.pts", "0 0 0\n1 1 1\n").Code)
	rec = s.postForm("/predict", url.Values{"pointcloud": {"[[0,0,0],[1,1,1]]"}, "model": {"pointnet"}, "name": {"chair.pts"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "pointnet saw 2 points", rec.Body.String())
	assert.Equal(t, "pointnet", predictor.lastModel)

	rec = s.get("/view/chair.pts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pointnet saw 2 points", decode[usecase.Scene](t, rec).Prediction)

	assert.Equal(t, http.StatusBadRequest, s.postForm("/predict", url.Values{"model": {"pointnet"}}).Code)
}

func TestViewModesAndReset(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.upload(t, "cube.pts", "0 0 0\n1 1 1\n").Code)

	rec := s.get("/view/cube.pts?mode=voxels")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scene := decode[usecase.Scene](t, rec)
	assert.Equal(t, usecase.ModeVoxels, scene.Mode)
	assert.Len(t, scene.Voxels, 2)
	require.NotNil(t, scene.Render)
	assert.Equal(t, usecase.DefaultRenderSettings(), *scene.Render)

	rec = s.get("/view/cube.pts?mode=0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[usecase.Scene](t, rec).Points, 2)

	assert.Equal(t, http.StatusBadRequest, s.get("/view/cube.pts?mode=mesh").Code)
	assert.Equal(t, http.StatusNotFound, s.get("/view/other.pts").Code)

	rec = s.do(httptest.NewRequest(http.MethodPost, "/view/cube.pts/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[usecase.Scene](t, rec).Points, 2)
}

func TestRenderSettings(t *testing.T) {
	s := newTestServer(t)
	rec := s.get("/render/settings")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, usecase.DefaultRenderSettings(), decode[usecase.RenderSettings](t, rec))

	rec = s.postForm("/render/settings", url.Values{"size": {"0.05"}, "wireframe": {"true"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[usecase.RenderSettings](t, rec)
	assert.Equal(t, float32(0.05), got.Size)
	assert.Equal(t, float32(1), got.Opacity)
	assert.True(t, got.Wireframe)

	req := httptest.NewRequest(http.MethodPost, "/render/settings", strings.NewReader(`{"opacity": 0.5}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float32(0.5), decode[usecase.RenderSettings](t, rec).Opacity)

	rec = s.postForm("/render/settings", url.Values{"size": {"5"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, float32(0.05), decode[usecase.RenderSettings](t, s.get("/render/settings")).Size)
}

func TestUploadPublishesScene(t *testing.T) {
	s := newTestServer(t)
	id, scenes := s.api.Hub().Subscribe()
	defer s.api.Hub().Unsubscribe(id)

	require.Equal(t, http.StatusOK, s.upload(t, "a.pts", "1 2 3\n").Code)
	scene := <-scenes
	assert.Equal(t, "a.pts", scene.Name)
	assert.Equal(t, usecase.PointCloud{{1, 2, 3}}, scene.Points)
	assert.Equal(t, usecase.DefaultMinDistance, scene.Camera.Distance)
}

func TestServeFrames(t *testing.T) {
	s := newTestServer(t)
	_, scenes := s.api.Hub().Subscribe()

	frames := make(chan usecase.Frame, 2)
	frames <- usecase.Frame{Source: "10.0.0.2:4000"}
	frames <- usecase.Frame{Source: "10.0.0.2:4000", Points: usecase.PointCloud{{1, 1, 1}, {2, 2, 2}}}
	close(frames)
	s.api.ServeFrames(context.Background(), frames)

	scene := <-scenes
	assert.Equal(t, LivePrefix+"10.0.0.2:4000", scene.Name)
	assert.Len(t, scene.Points, 2)
}

func TestHTTPErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("x: %w", usecase.ErrShape), http.StatusBadRequest},
		{usecase.ErrMissingInput, http.StatusBadRequest},
		{usecase.ErrEmptyCloud, http.StatusBadRequest},
		{cluster.ErrUnknownAlgorithm, http.StatusBadRequest},
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("cluster on a.pts: %w", usecase.ErrBusy), http.StatusConflict},
		{ErrNoUpstream, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
		{echo.NewHTTPError(http.StatusTeapot), http.StatusTeapot},
	}
	for _, tt := range tests {
		var he *echo.HTTPError
		require.ErrorAs(t, httpError(tt.err), &he)
		assert.Equal(t, tt.code, he.Code, tt.err.Error())
	}
}

func TestStaticViewer(t *testing.T) {
	s := newTestServer(t)
	rec := s.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Contains(t, rec.Body.String(), "viewer.js")
}
