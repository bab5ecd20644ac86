package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"

	"pointview/internal/config"
	httpDelivery "pointview/internal/delivery/http"
	quicDelivery "pointview/internal/delivery/quic"
	"pointview/internal/delivery/udp"
	"pointview/internal/logger"
	"pointview/internal/usecase"
	"pointview/internal/usecase/cluster"
	gzipCompressor "pointview/internal/usecase/compressor/gzip"
	voxelCompressor "pointview/internal/usecase/compressor/voxel"
	"pointview/internal/usecase/pcfile"
)

const defaultTimeout = 2 * time.Minute

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newClient(c *cli.Context) *httpDelivery.Client {
	return httpDelivery.NewClient(c.String("server"), httpDelivery.WithTimeout(c.Duration("timeout")))
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s: expected one argument %s", c.Command.Name, c.Command.ArgsUsage)
	}
	return c.Args().First(), nil
}

// loadCloud reads a local file when the argument names one, otherwise it
// fetches the points of the upload with that name.
func loadCloud(c *cli.Context) (usecase.PointCloud, error) {
	arg, err := firstArg(c)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return pcfile.Read(arg)
	}
	return newClient(c).Points(c.Context, arg)
}

func UploadAction(c *cli.Context) error {
	path, err := firstArg(c)
	if err != nil {
		return err
	}
	reply, err := newClient(c).Upload(c.Context, path)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, reply)
	return nil
}

func PointsAction(c *cli.Context) error {
	name, err := firstArg(c)
	if err != nil {
		return err
	}
	cloud, err := newClient(c).Points(c.Context, name)
	if err != nil {
		return err
	}
	out := c.Path("output")
	if out == "" {
		return printJSON(c, cloud)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := pcfile.WritePTS(f, cloud); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", out, err)
	}
	return f.Close()
}

func ListAction(c *cli.Context) error {
	names, err := newClient(c).Uploads(c.Context)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(c.App.Writer, name)
	}
	return nil
}

func SettingsAction(c *cli.Context) error {
	cloud, err := loadCloud(c)
	if err != nil {
		return err
	}
	client := newClient(c)
	name := c.Args().First()
	if !c.Bool("voxels") {
		params, err := client.CameraSettings(c.Context, name, cloud, nil)
		if err != nil {
			return err
		}
		return printJSON(c, params)
	}
	cells, err := client.Voxelize(c.Context, cloud, float32(c.Float64("cell-size")))
	if err != nil {
		return err
	}
	params, err := client.CameraSettings(c.Context, name, nil, cells)
	if err != nil {
		return err
	}
	return printJSON(c, params)
}

func VoxelizeAction(c *cli.Context) error {
	cloud, err := loadCloud(c)
	if err != nil {
		return err
	}
	cells, err := newClient(c).Voxelize(c.Context, cloud, float32(c.Float64("cell-size")))
	if err != nil {
		return err
	}
	return printJSON(c, cells)
}

func ClusterAction(c *cli.Context) error {
	cloud, err := loadCloud(c)
	if err != nil {
		return err
	}
	settings := cluster.Settings{
		Algorithm:  c.String("algorithm"),
		Eps:        c.Float64("eps"),
		MinSamples: c.Int("min-samples"),
		Bandwidth:  c.Float64("bandwidth"),
		NClusters:  c.Int("n-clusters"),
	}
	if raw := c.String("normalize"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("normalize: %w", err)
		}
		settings.Normalize = &b
	}
	segments, err := newClient(c).Cluster(c.Context, cloud, settings)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(c, segments)
	}
	for i, segment := range usecase.OrderSegments(segments) {
		fmt.Fprintf(c.App.Writer, "segment %d: %d points\n", i, len(segment))
	}
	return nil
}

func PredictAction(c *cli.Context) error {
	cloud, err := loadCloud(c)
	if err != nil {
		return err
	}
	prediction, err := newClient(c).Predict(c.Context, cloud, c.String("model"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, prediction)
	return nil
}

func ModelsAction(c *cli.Context) error {
	models, err := newClient(c).Models(c.Context)
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Fprintln(c.App.Writer, m)
	}
	return nil
}

// StreamAction reads VLP-16 packets from UDP, groups them into frames,
// compresses them and sends them to the server until interrupted.
func StreamAction(c *cli.Context) error {
	cfg, err := config.LoadClientConfig(c.Args().Slice())
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	ctx := c.Context

	packets := make(chan udp.Packet, 4096)
	frames := make(chan []byte, 64)

	gz, err := gzipCompressor.NewGzipCompressorLevel(cfg.Processing.GzipLevel)
	if err != nil {
		return err
	}
	processor := usecase.NewPointCloudProcessor(float32(cfg.Processing.FilterRadius), log)
	processor.SetCompressors(
		voxelCompressor.NewVoxelCompressor(float32(cfg.Processing.VoxelSize)),
		gz,
	)
	go processor.Tx(packets, frames)

	if err := udp.StartUDPListener(ctx, cfg.Network.ListenIP, cfg.Network.ListenPort, packets, log); err != nil {
		return fmt.Errorf("UDP listener: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Network.ServerIP, cfg.Network.ServerPort)
	sender, err := quicDelivery.Dial(ctx, addr, log)
	if err != nil {
		return err
	}
	defer sender.Close()

	if err := sender.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stream stopped")
	return nil
}
