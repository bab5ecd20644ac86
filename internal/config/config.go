package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"pointview/internal/logger"
	"pointview/internal/usecase"
	"pointview/internal/usecase/pcfile"
)

// ServerConfig holds the server configuration.
type ServerConfig struct {
	Network struct {
		ListenIP   string `yaml:"listenIP" validate:"omitempty,ip"`
		ListenPort int    `yaml:"listenPort" validate:"gte=0,lte=65535"`
		HTTPIP     string `yaml:"httpIP" validate:"omitempty,ip"`
		HTTPPort   int    `yaml:"httpPort" validate:"gt=0,lte=65535"`
		Cors       string `yaml:"cors"`
	} `yaml:"network"`

	SSL struct {
		CertFile string `yaml:"certFile"`
		KeyFile  string `yaml:"keyFile"`
	} `yaml:"ssl"`

	Storage struct {
		UploadDir  string   `yaml:"uploadDir" validate:"required"`
		Extensions []string `yaml:"extensions" validate:"min=1,dive,required"`
	} `yaml:"storage"`

	Processing struct {
		// VoxelSize is the live frame downsampling cell; ViewCellSize is the
		// voxel view cell, 0 derives it from the point count.
		VoxelSize     float64 `yaml:"voxelSize" validate:"gte=0"`
		ViewCellSize  float64 `yaml:"viewCellSize" validate:"gte=0"`
		MaxResolution int     `yaml:"maxResolution" validate:"gte=0"`
		MaxCells      int     `yaml:"maxCells" validate:"gte=0"`
	} `yaml:"processing"`

	Camera usecase.CameraOptions  `yaml:"camera"`
	Render usecase.RenderSettings `yaml:"render"`

	ML struct {
		BaseURL string        `yaml:"baseURL" validate:"omitempty,url"`
		Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	} `yaml:"ml"`

	Log logger.Options `yaml:"log"`
}

// ClientConfig holds the configuration of the streaming client.
type ClientConfig struct {
	Network struct {
		ServerIP   string `yaml:"serverIP" validate:"required"`
		ServerPort int    `yaml:"serverPort" validate:"gt=0,lte=65535"`
		ListenIP   string `yaml:"listenIP" validate:"omitempty,ip"`
		ListenPort int    `yaml:"listenPort" validate:"gt=0,lte=65535"`
	} `yaml:"network"`

	Processing struct {
		FilterRadius float64 `yaml:"filterRadius" validate:"gte=0"`
		VoxelSize    float64 `yaml:"voxelSize" validate:"gte=0"`
		// GzipLevel follows compress/gzip: -2 Huffman only, -1 default, 0 to 9.
		GzipLevel int `yaml:"gzipLevel" validate:"gte=-2,lte=9"`
	} `yaml:"processing"`

	Log logger.Options `yaml:"log"`
}

var validate = validator.New()

// unsetGzipLevel marks the -gzip-level flag as not given; -1 is a valid level.
const unsetGzipLevel = -100

// DefaultServerConfig returns the configuration written when no file exists.
func DefaultServerConfig() *ServerConfig {
	config := &ServerConfig{}
	config.Network.ListenIP = "0.0.0.0"
	config.Network.ListenPort = 8081
	config.Network.HTTPIP = "0.0.0.0"
	config.Network.HTTPPort = 8080
	config.Network.Cors = "*"

	config.SSL.CertFile = "/etc/pointview/config/localhost.pem"
	config.SSL.KeyFile = "/etc/pointview/config/localhost-key.pem"

	config.Storage.UploadDir = "uploads"
	config.Storage.Extensions = append([]string(nil), pcfile.Extensions...)

	config.Processing.VoxelSize = 0.01
	config.Processing.MaxResolution = usecase.DefaultMaxResolution
	config.Processing.MaxCells = usecase.DefaultMaxCells

	config.Camera = usecase.DefaultCameraOptions()
	config.Render = usecase.DefaultRenderSettings()

	config.ML.Timeout = 30 * time.Second
	config.Log.Level = "info"
	return config
}

// DefaultClientConfig returns the configuration written when no file exists.
func DefaultClientConfig() *ClientConfig {
	config := &ClientConfig{}
	config.Network.ServerIP = "localhost"
	config.Network.ServerPort = 8081
	config.Network.ListenIP = "0.0.0.0"
	config.Network.ListenPort = 2368
	config.Processing.FilterRadius = 0.5
	config.Processing.VoxelSize = 0.05
	config.Processing.GzipLevel = -1
	config.Log.Level = "info"
	return config
}

// LoadServerConfig loads the server configuration from the file named by
// -config and applies flag overrides. A missing file is created with defaults.
func LoadServerConfig(args []string) (*ServerConfig, error) {
	fs := flag.NewFlagSet("pointview-server", flag.ContinueOnError)
	configPath := fs.String("config", "/etc/pointview/server.yaml", "Path to the configuration file")

	listenIP := fs.String("ip", "", "QUIC listen IP")
	listenPort := fs.Int("port", -1, "QUIC listen port (0 disables live frames)")
	httpIP := fs.String("http-ip", "", "HTTP listen IP")
	httpPort := fs.Int("http-port", 0, "HTTP listen port")
	cors := fs.String("cors", "", "Access-Control-Allow-Origin value")

	certFile := fs.String("cert", "", "Certificate file")
	keyFile := fs.String("key", "", "Key file")

	uploadDir := fs.String("upload-dir", "", "Directory for uploaded point clouds")

	viewCellSize := fs.Float64("cell-size", -1, "Voxel view cell size (0 derives it from the point count)")

	mlURL := fs.String("ml-url", "", "Base URL of the prediction service")
	logLevel := fs.String("log-level", "", "Log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	config := DefaultServerConfig()
	if err := loadOrCreate(*configPath, config); err != nil {
		return nil, err
	}

	// command line flags take precedence over the file
	if *listenIP != "" {
		config.Network.ListenIP = *listenIP
	}
	if *listenPort != -1 {
		config.Network.ListenPort = *listenPort
	}
	if *httpIP != "" {
		config.Network.HTTPIP = *httpIP
	}
	if *httpPort != 0 {
		config.Network.HTTPPort = *httpPort
	}
	if *cors != "" {
		config.Network.Cors = *cors
	}
	if *certFile != "" {
		config.SSL.CertFile = *certFile
	}
	if *keyFile != "" {
		config.SSL.KeyFile = *keyFile
	}
	if *uploadDir != "" {
		config.Storage.UploadDir = *uploadDir
	}
	if *viewCellSize != -1 {
		config.Processing.ViewCellSize = *viewCellSize
	}
	if *mlURL != "" {
		config.ML.BaseURL = *mlURL
	}
	if *logLevel != "" {
		config.Log.Level = *logLevel
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	return config, nil
}

// LoadClientConfig loads the streaming client configuration the same way.
func LoadClientConfig(args []string) (*ClientConfig, error) {
	fs := flag.NewFlagSet("pointview stream", flag.ContinueOnError)
	configPath := fs.String("config", "/etc/pointview/client.yaml", "Path to the configuration file")

	serverIP := fs.String("server-ip", "", "Server IP for the QUIC connection")
	serverPort := fs.Int("server-port", 0, "Server port for the QUIC connection")
	listenPort := fs.Int("port", 0, "UDP port of the sensor")
	listenIP := fs.String("ip", "", "UDP listen IP")

	filterRadius := fs.Float64("filter-radius", -1, "Drop points inside this cube around the sensor (0 disables)")
	voxelSize := fs.Float64("voxel-size", -1, "Downsampling cell size (0 derives it from the point count)")
	gzipLevel := fs.Int("gzip-level", unsetGzipLevel, "gzip level of live frames, -2 to 9")
	logLevel := fs.String("log-level", "", "Log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	config := DefaultClientConfig()
	if err := loadOrCreate(*configPath, config); err != nil {
		return nil, err
	}

	if *serverIP != "" {
		config.Network.ServerIP = *serverIP
	}
	if *serverPort != 0 {
		config.Network.ServerPort = *serverPort
	}
	if *listenIP != "" {
		config.Network.ListenIP = *listenIP
	}
	if *listenPort != 0 {
		config.Network.ListenPort = *listenPort
	}
	if *filterRadius != -1 {
		config.Processing.FilterRadius = *filterRadius
	}
	if *voxelSize != -1 {
		config.Processing.VoxelSize = *voxelSize
	}
	if *gzipLevel != unsetGzipLevel {
		config.Processing.GzipLevel = *gzipLevel
	}
	if *logLevel != "" {
		config.Log.Level = *logLevel
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}
	return config, nil
}

// loadOrCreate unmarshals the file into config, or writes config to the
// file when it does not exist yet.
func loadOrCreate(configPath string, config any) error {
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("cannot parse YAML configuration %s: %w", configPath, err)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot read configuration %s: %w", configPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("cannot create configuration directory: %w", err)
	}
	data, err = yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("cannot serialize configuration: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("cannot write configuration %s: %w", configPath, err)
	}
	return nil
}
