package main

import (
	"strings"

	"github.com/urfave/cli/v2"

	"pointview/internal/usecase/cluster"
)

var app = &cli.App{
	Name:            "pointview",
	Usage:           "upload, inspect and stream point clouds",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Value:   "http://localhost:8080",
			Usage:   "base URL of the pointview server",
			EnvVars: []string{"POINTVIEW_SERVER"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: defaultTimeout,
			Usage: "request timeout",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "upload",
			Usage:     "upload a point cloud file",
			ArgsUsage: "<file>",
			Action:    UploadAction,
		},
		{
			Name:   "list",
			Usage:  "list the uploaded files",
			Action: ListAction,
		},
		{
			Name:      "points",
			Usage:     "print the points of an uploaded file",
			ArgsUsage: "<name>",
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "write the points to this .pts file instead of printing JSON",
				},
			},
			Action: PointsAction,
		},
		{
			Name:      "settings",
			Usage:     "print the camera that frames a cloud",
			ArgsUsage: "<file|name>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "voxels",
					Usage: "frame the voxel grid instead of the points",
				},
				&cli.Float64Flag{
					Name:  "cell-size",
					Usage: "voxel cell size with --voxels, 0 lets the server pick",
				},
			},
			Action: SettingsAction,
		},
		{
			Name:      "voxelize",
			Usage:     "print the occupied voxels of a cloud",
			ArgsUsage: "<file|name>",
			Flags: []cli.Flag{
				&cli.Float64Flag{
					Name:  "cell-size",
					Usage: "cell size, 0 lets the server pick",
				},
			},
			Action: VoxelizeAction,
		},
		{
			Name:      "cluster",
			Usage:     "segment a cloud",
			ArgsUsage: "<file|name>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "algorithm",
					Value: cluster.DBSCAN,
					Usage: "one of " + strings.Join(cluster.Names(), ", "),
				},
				&cli.Float64Flag{Name: "eps", Usage: "DBSCAN neighborhood radius"},
				&cli.IntFlag{Name: "min-samples", Usage: "DBSCAN core point threshold"},
				&cli.Float64Flag{Name: "bandwidth", Usage: "mean shift kernel radius"},
				&cli.IntFlag{Name: "n-clusters", Usage: "k-means cluster count"},
				&cli.StringFlag{Name: "normalize", Usage: "true or false, empty keeps the algorithm default"},
				&cli.BoolFlag{Name: "json", Usage: "print the segments instead of a summary"},
			},
			Action: ClusterAction,
		},
		{
			Name:      "predict",
			Usage:     "ask the prediction service about a cloud",
			ArgsUsage: "<file|name>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "model", Usage: "model name, see the models command"},
			},
			Action: PredictAction,
		},
		{
			Name:   "models",
			Usage:  "list the models of the prediction service",
			Action: ModelsAction,
		},
		{
			Name:            "stream",
			Usage:           "forward a live VLP-16 sensor to the server over QUIC",
			ArgsUsage:       "[-config file] [-server-ip ip] [-server-port port] [-port udp-port] ...",
			SkipFlagParsing: true,
			Action:          StreamAction,
		},
	},
}
