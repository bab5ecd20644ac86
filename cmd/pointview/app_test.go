package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpDelivery "pointview/internal/delivery/http"
	"pointview/internal/logger"
	"pointview/internal/storage"
	"pointview/internal/usecase"
	"pointview/internal/usecase/pcfile"
)

func startServer(t *testing.T) string {
	t.Helper()
	log := logger.Discard()
	store := storage.NewUploadStore(t.TempDir(), pcfile.Extensions)
	api := httpDelivery.NewAPI(store, usecase.NewVoxelizer(1), usecase.DefaultCameraOptions(), httpDelivery.WithLogger(log))
	srv := httptest.NewServer(httpDelivery.NewServer(httpDelivery.ServerConfig{}, api, log))
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app.Writer = &out
	t.Cleanup(func() { app.Writer = os.Stdout })
	err := app.RunContext(context.Background(), append([]string{"pointview", "--server", server}, args...))
	return out.String(), err
}

func TestUploadListAndExport(t *testing.T) {
	server := startServer(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "scan.pts")
	require.NoError(t, os.WriteFile(src, []byte("0 0 0\n1 1 1\n2.5 0 -1\n"), 0o644))

	out, err := run(t, server, "upload", src)
	require.NoError(t, err)
	assert.Equal(t, "File uploaded\n", out)

	out, err = run(t, server, "list")
	require.NoError(t, err)
	assert.Equal(t, "scan.pts\n", out)

	exported := filepath.Join(dir, "copy.pts")
	_, err = run(t, server, "points", "--output", exported, "scan.pts")
	require.NoError(t, err)
	cloud, err := pcfile.Read(exported)
	require.NoError(t, err)
	assert.Equal(t, usecase.PointCloud{{0, 0, 0}, {1, 1, 1}, {2.5, 0, -1}}, cloud)
}

func TestClusterSummary(t *testing.T) {
	server := startServer(t)
	src := filepath.Join(t.TempDir(), "blobs.xyz")
	require.NoError(t, os.WriteFile(src, []byte("0 0 0\n0.1 0 0\n0 0.1 0\n5 5 5\n5.1 5 5\n"), 0o644))

	out, err := run(t, server, "cluster", "--algorithm", "DBSCAN", "--eps", "0.5", "--min-samples", "2", "--normalize", "false", src)
	require.NoError(t, err)
	assert.Equal(t, "segment 0: 3 points\nsegment 1: 2 points\n", out)

	_, err = run(t, server, "cluster", "--algorithm", "spectral", src)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "KMEANS"), err.Error())
}
