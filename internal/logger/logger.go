// Package logger builds the zap logger used across the server: JSON output
// to stdout and, when enabled, a lumberjack-rotated file.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log level and sinks.
type Config struct {
	Level  string     `mapstructure:"level" yaml:"level"`
	Stdout bool       `mapstructure:"stdout" yaml:"stdout"`
	File   FileConfig `mapstructure:"file" yaml:"file"`
}

// FileConfig controls the rotating file sink.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	Name       string `mapstructure:"name" yaml:"name"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// New builds a logger from cfg. With every sink disabled it still logs to
// stdout rather than dropping output.
func New(cfg Config) (*zap.Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")

	var sinks []zapcore.WriteSyncer
	if cfg.Stdout {
		sinks = append(sinks, zapcore.AddSync(os.Stdout))
	}
	if cfg.File.Enabled {
		writer, err := cfg.File.writer()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, zapcore.AddSync(writer))
	}
	if len(sinks) == 0 {
		sinks = append(sinks, zapcore.AddSync(os.Stdout))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.NewMultiWriteSyncer(sinks...),
		cfg.level(),
	)
	return zap.New(core, zap.AddCaller()), nil
}

// level tolerates unknown strings, falling back to info.
func (c Config) level() zapcore.Level {
	raw := strings.ToLower(strings.TrimSpace(c.Level))
	if raw == "warning" {
		raw = "warn"
	}
	if raw == "" {
		return zapcore.InfoLevel
	}
	if level, err := zapcore.ParseLevel(raw); err == nil {
		return level
	}
	return zapcore.InfoLevel
}

func (f FileConfig) writer() (*lumberjack.Logger, error) {
	dir := strings.TrimSpace(f.Path)
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}

	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = "elevate-fitness.log"
	}

	maxSize := f.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    maxSize,
		MaxBackups: max(f.MaxBackups, 0),
		MaxAge:     max(f.MaxAgeDays, 0),
		Compress:   f.Compress,
		LocalTime:  true,
	}, nil
}
