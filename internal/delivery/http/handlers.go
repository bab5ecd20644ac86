package http

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"pointview/internal/usecase"
	"pointview/internal/usecase/cluster"
)

func (a *API) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "No file part")
	}
	src, err := fh.Open()
	if err != nil {
		return httpError(err)
	}
	defer src.Close()

	name, err := a.store.Save(fh.Filename, src)
	if err != nil {
		return httpError(err)
	}
	a.sessions.Delete(name)
	s, err := a.session(name)
	if err != nil {
		if rmErr := a.store.Remove(name); rmErr != nil {
			a.log.WithError(rmErr).WithField("name", name).Warn("cannot remove unreadable upload")
		}
		return httpError(err)
	}
	a.log.WithFields(logrus.Fields{"name": name, "points": len(s.Points())}).Info("upload stored")

	if scene, err := s.Scene(); err == nil {
		a.publish(scene)
	}
	return c.String(http.StatusOK, "File uploaded")
}

func (a *API) uploads(c echo.Context) error {
	names, err := a.store.List()
	if err != nil {
		return httpError(err)
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, names)
}

func (a *API) points(c echo.Context) error {
	s, err := a.session(c.Param("filename"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s.Points())
}

// cameraSettings frames the voxels when present, otherwise the points.
func (a *API) cameraSettings(c echo.Context) error {
	raw := c.FormValue("voxels")
	if raw == "" {
		raw = c.FormValue("pointcloud")
	}
	if raw == "" {
		return httpError(fmt.Errorf("camera settings: %w", usecase.ErrMissingInput))
	}
	cloud, cells, err := usecase.DecodeFigure([]byte(raw))
	if err != nil {
		return httpError(err)
	}
	var params usecase.CameraParams
	if cells != nil {
		params, err = usecase.FitVoxelCamera(cells, a.camera)
	} else {
		params, err = usecase.FitCamera(cloud, a.camera)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, params)
}

func (a *API) voxelize(c echo.Context) error {
	cloud, err := a.formCloud(c)
	if err != nil {
		return httpError(err)
	}
	v := *a.voxelizer
	if raw := c.FormValue("cell_size"); raw != "" {
		size, err := strconv.ParseFloat(raw, 32)
		if err != nil || size < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid cell_size %q", raw))
		}
		if math.IsInf(size, 0) || math.IsNaN(size) {
			return httpError(fmt.Errorf("cell_size %q: %w", raw, usecase.ErrNonFinite))
		}
		v.CellSize = float32(size)
	}
	grid, err := v.Voxelize(cloud)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, grid.Cells())
}

func (a *API) cluster(c echo.Context) error {
	settings, err := clusterSettings(c)
	if err != nil {
		return httpError(err)
	}
	clusterer, err := cluster.New(settings)
	if err != nil {
		return httpError(err)
	}

	name := c.FormValue("name")
	var s *usecase.Session
	if name != "" {
		if s, err = a.session(name); err != nil {
			return httpError(err)
		}
	}
	cloud, err := a.formCloud(c)
	if err != nil {
		if s == nil || c.FormValue("pointcloud") != "" {
			return httpError(err)
		}
		cloud = s.Points()
	}

	var segments map[string]usecase.PointCloud
	run := func(ctx context.Context) error {
		segments, err = usecase.Segment(ctx, clusterer, cloud)
		return err
	}
	if s != nil {
		err = s.Run(c.Request().Context(), "cluster", run)
	} else {
		err = run(c.Request().Context())
	}
	if err != nil {
		return httpError(err)
	}

	a.log.WithFields(logrus.Fields{"algorithm": settings.Algorithm, "points": len(cloud), "segments": len(segments)}).Info("cloud segmented")
	if s != nil {
		s.SetSegments(segments)
		if scene, err := s.Scene(); err == nil {
			a.publish(scene)
		}
	}
	return c.JSON(http.StatusOK, segments)
}

func (a *API) predict(c echo.Context) error {
	if a.predictor == nil {
		return httpError(ErrNoUpstream)
	}
	cloud, err := a.formCloud(c)
	if err != nil {
		return httpError(err)
	}
	model := c.FormValue("model")

	var prediction string
	run := func(ctx context.Context) error {
		prediction, err = a.predictor.Predict(ctx, cloud, model)
		return err
	}
	s, _ := a.sessions.Get(c.FormValue("name"))
	if s != nil {
		err = s.Run(c.Request().Context(), "predict", run)
	} else {
		err = run(c.Request().Context())
	}
	if err != nil {
		return httpError(err)
	}

	if s != nil {
		s.SetPrediction(prediction)
		if scene, err := s.Scene(); err == nil {
			a.publish(scene)
		}
	}
	return c.String(http.StatusOK, prediction)
}

func (a *API) models(c echo.Context) error {
	if a.predictor == nil {
		return httpError(ErrNoUpstream)
	}
	models, err := a.predictor.Models(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, models)
}

func (a *API) view(c echo.Context) error {
	mode, err := usecase.ParseViewMode(c.QueryParam("mode"))
	if err != nil {
		return httpError(err)
	}
	s, err := a.session(c.Param("filename"))
	if err != nil {
		return httpError(err)
	}
	scene, err := s.SelectMode(mode)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a.publish(scene))
}

func (a *API) reset(c echo.Context) error {
	s, err := a.session(c.Param("filename"))
	if err != nil {
		return httpError(err)
	}
	if err := s.Reset(); err != nil {
		return httpError(err)
	}
	scene, err := s.Scene()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a.publish(scene))
}

func (a *API) getRender(c echo.Context) error {
	return c.JSON(http.StatusOK, a.renderSettings())
}

func (a *API) setRender(c echo.Context) error {
	settings := a.renderSettings()
	if err := c.Bind(&settings); err != nil {
		return err
	}
	if err := c.Validate(&settings); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.renderMu.Lock()
	a.render = settings
	a.renderMu.Unlock()
	return c.JSON(http.StatusOK, settings)
}

func (a *API) formCloud(c echo.Context) (usecase.PointCloud, error) {
	raw := c.FormValue("pointcloud")
	if raw == "" {
		return nil, fmt.Errorf("pointcloud: %w", usecase.ErrMissingInput)
	}
	return usecase.ParsePointCloud([]byte(raw))
}

// clusterSettings reads the algorithm form. Empty fields keep their defaults.
func clusterSettings(c echo.Context) (cluster.Settings, error) {
	s := cluster.Settings{Algorithm: c.FormValue("algorithm")}
	if s.Algorithm == "" {
		s.Algorithm = cluster.DBSCAN
	}
	var err error
	parseFloat := func(field string, dst *float64) {
		if raw := c.FormValue(field); raw != "" && err == nil {
			if *dst, err = strconv.ParseFloat(raw, 64); err != nil {
				err = fmt.Errorf("%w: %s=%q", cluster.ErrInvalidSettings, field, raw)
			}
		}
	}
	parseInt := func(field string, dst *int) {
		if raw := c.FormValue(field); raw != "" && err == nil {
			if *dst, err = strconv.Atoi(raw); err != nil {
				err = fmt.Errorf("%w: %s=%q", cluster.ErrInvalidSettings, field, raw)
			}
		}
	}
	parseFloat("eps", &s.Eps)
	parseInt("min_samples", &s.MinSamples)
	parseFloat("bandwidth", &s.Bandwidth)
	parseInt("n_clusters", &s.NClusters)
	if raw := c.FormValue("normalize"); raw != "" && err == nil {
		b, perr := strconv.ParseBool(strings.ToLower(raw))
		if perr != nil {
			err = fmt.Errorf("%w: normalize=%q", cluster.ErrInvalidSettings, raw)
		}
		s.Normalize = &b
	}
	return s, err
}
