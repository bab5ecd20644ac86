// Package logger builds the logrus logger shared by the binaries.
package logger

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure the logger. An empty File logs to stderr only.
type Options struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB" validate:"gte=0"`
	MaxAgeDays int    `yaml:"maxAgeDays" validate:"gte=0"`
	MaxBackups int    `yaml:"maxBackups" validate:"gte=0"`
	NoColors   bool   `yaml:"noColors"`
}

// New returns a logger writing to stderr and, when configured, to a rotated file.
func New(opts Options) (*logrus.Logger, error) {
	log := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		var err error
		if level, err = logrus.ParseLevel(opts.Level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	log.SetLevel(level)

	log.SetFormatter(&formatter.Formatter{
		NoColors:        opts.NoColors,
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, funcName)
		},
	})
	log.SetReportCaller(true)

	writers := []io.Writer{os.Stderr}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
			MaxBackups: orDefault(opts.MaxBackups, 3),
		})
	}
	log.SetOutput(io.MultiWriter(writers...))
	return log, nil
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
