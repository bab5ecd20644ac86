package http

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pointview/internal/usecase"
	"pointview/internal/usecase/cluster"
)

// StatusError is returned by the Client for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Client talks to a pointview server, or to any prediction service that
// serves the same /predict and /models endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request. Zero disables the timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload sends a point cloud file and returns the server's reply.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// Uploads lists the names of the uploaded files.
func (c *Client) Uploads(ctx context.Context) ([]string, error) {
	var names []string
	err := c.getJSON(ctx, "/uploads", &names)
	return names, err
}

// Points returns the points of an uploaded file.
func (c *Client) Points(ctx context.Context, name string) (usecase.PointCloud, error) {
	var cloud usecase.PointCloud
	err := c.getJSON(ctx, "/plot/points/"+url.PathEscape(name), &cloud)
	return cloud, err
}

// CameraSettings asks the server to frame the points or, when given, the voxels.
func (c *Client) CameraSettings(ctx context.Context, name string, cloud usecase.PointCloud, cells usecase.VoxelCells) (usecase.CameraParams, error) {
	form := url.Values{"name": {name}}
	if cloud != nil {
		data, err := json.Marshal(cloud)
		if err != nil {
			return usecase.CameraParams{}, err
		}
		form.Set("pointcloud", string(data))
	}
	if cells != nil {
		data, err := json.Marshal(cells)
		if err != nil {
			return usecase.CameraParams{}, err
		}
		form.Set("voxels", string(data))
	}
	var params usecase.CameraParams
	err := c.postJSON(ctx, "/plot/settings", form, &params)
	return params, err
}

// Voxelize returns the occupied cells. A zero cell size lets the server pick one.
func (c *Client) Voxelize(ctx context.Context, cloud usecase.PointCloud, cellSize float32) (usecase.VoxelCells, error) {
	form, err := cloudForm(cloud)
	if err != nil {
		return nil, err
	}
	if cellSize > 0 {
		form.Set("cell_size", strconv.FormatFloat(float64(cellSize), 'g', -1, 32))
	}
	var cells usecase.VoxelCells
	err = c.postJSON(ctx, "/plot/voxels", form, &cells)
	return cells, err
}

// Cluster segments the cloud. Unset settings use the server defaults.
func (c *Client) Cluster(ctx context.Context, cloud usecase.PointCloud, settings cluster.Settings) (map[string]usecase.PointCloud, error) {
	form, err := cloudForm(cloud)
	if err != nil {
		return nil, err
	}
	form.Set("algorithm", settings.Algorithm)
	if settings.Eps > 0 {
		form.Set("eps", strconv.FormatFloat(settings.Eps, 'g', -1, 64))
	}
	if settings.MinSamples > 0 {
		form.Set("min_samples", strconv.Itoa(settings.MinSamples))
	}
	if settings.Bandwidth > 0 {
		form.Set("bandwidth", strconv.FormatFloat(settings.Bandwidth, 'g', -1, 64))
	}
	if settings.NClusters > 0 {
		form.Set("n_clusters", strconv.Itoa(settings.NClusters))
	}
	if settings.Normalize != nil {
		form.Set("normalize", strconv.FormatBool(*settings.Normalize))
	}
	var segments map[string]usecase.PointCloud
	err = c.postJSON(ctx, "/cluster", form, &segments)
	return segments, err
}

// Predict returns the model's answer for the cloud as text.
func (c *Client) Predict(ctx context.Context, cloud usecase.PointCloud, model string) (string, error) {
	form, err := cloudForm(cloud)
	if err != nil {
		return "", err
	}
	form.Set("model", model)
	body, err := c.postForm(ctx, "/predict", form)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// Models lists the models the prediction service offers.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var models []string
	err := c.getJSON(ctx, "/models", &models)
	return models, err
}

// View switches the view mode of an uploaded file and returns the scene.
func (c *Client) View(ctx context.Context, name string, mode usecase.ViewMode) (usecase.Scene, error) {
	var scene usecase.Scene
	path := "/view/" + url.PathEscape(name) + "?mode=" + url.QueryEscape(string(mode))
	err := c.getJSON(ctx, path, &scene)
	return scene, err
}

func cloudForm(cloud usecase.PointCloud) (url.Values, error) {
	if len(cloud) == 0 {
		return nil, usecase.ErrEmptyCloud
	}
	data, err := json.Marshal(cloud)
	if err != nil {
		return nil, err
	}
	return url.Values{"pointcloud": {string(data)}}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) postJSON(ctx context.Context, path string, form url.Values, out any) error {
	body, err := c.postForm(ctx, path, form)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage extracts echo's {"message": ...} body, falling back to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}
