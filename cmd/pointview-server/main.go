package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pointview/internal/config"
	httpDelivery "pointview/internal/delivery/http"
	quicDelivery "pointview/internal/delivery/quic"
	"pointview/internal/logger"
	"pointview/internal/storage"
	"pointview/internal/usecase"
	gzipCompressor "pointview/internal/usecase/compressor/gzip"
	voxelCompressor "pointview/internal/usecase/compressor/voxel"
)

func main() {
	cfg, err := config.LoadServerConfig(os.Args[1:])
	if err != nil {
		logrus.Fatalf("configuration: %v", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	voxelizer := usecase.NewVoxelizer(float32(cfg.Processing.ViewCellSize))
	if cfg.Processing.MaxResolution > 0 {
		voxelizer.MaxResolution = cfg.Processing.MaxResolution
	}
	if cfg.Processing.MaxCells > 0 {
		voxelizer.MaxCells = cfg.Processing.MaxCells
	}

	opts := []httpDelivery.Option{
		httpDelivery.WithLogger(log),
		httpDelivery.WithRenderSettings(cfg.Render),
		httpDelivery.WithHub(httpDelivery.NewHub(64)),
	}
	if cfg.ML.BaseURL != "" {
		opts = append(opts, httpDelivery.WithPredictor(
			httpDelivery.NewClient(cfg.ML.BaseURL, httpDelivery.WithTimeout(cfg.ML.Timeout))))
		log.WithField("url", cfg.ML.BaseURL).Info("prediction service configured")
	}
	store := storage.NewUploadStore(cfg.Storage.UploadDir, cfg.Storage.Extensions)
	api := httpDelivery.NewAPI(store, voxelizer, cfg.Camera, opts...)

	if cfg.Network.ListenPort > 0 {
		if err := startLive(ctx, cfg, api, log); err != nil {
			log.Fatalf("live frames: %v", err)
		}
	}

	e := httpDelivery.NewServer(httpDelivery.ServerConfig{CORS: cfg.Network.Cors, BodyLimit: "512M"}, api, log)
	addr := fmt.Sprintf("%s:%d", cfg.Network.HTTPIP, cfg.Network.HTTPPort)
	go func() {
		log.Infof("HTTP server listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown")
	}
}

// startLive receives compressed frames over QUIC, decodes them and hands
// them to the API, which publishes them to the viewers.
func startLive(ctx context.Context, cfg *config.ServerConfig, api *httpDelivery.API, log *logrus.Logger) error {
	tlsConfig, err := quicDelivery.ServerTLSConfig(cfg.SSL.CertFile, cfg.SSL.KeyFile)
	if err != nil {
		return err
	}

	encoded := make(chan usecase.EncodedFrame, 1024)
	frames := make(chan usecase.Frame, 64)

	// frames arrive decoded, so the near-field filter already ran on the sender
	processor := usecase.NewPointCloudProcessor(0, log)
	// same order as the sender; Rx undoes gzip first
	processor.SetCompressors(
		voxelCompressor.NewVoxelCompressor(float32(cfg.Processing.VoxelSize)),
		gzipCompressor.NewGzipCompressor(),
	)
	go processor.Rx(encoded, frames)
	go api.ServeFrames(ctx, frames)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Network.ListenIP, cfg.Network.ListenPort)
		err := quicDelivery.StartQUICServer(ctx, addr, tlsConfig, func(source string, data []byte) {
			select {
			case encoded <- usecase.EncodedFrame{Source: source, Data: data}:
			default:
				log.WithField("source", source).Warn("frame queue full, dropping frame")
			}
		}, log)
		if err != nil {
			log.Fatalf("QUIC server: %v", err)
		}
	}()
	return nil
}
