package log

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/amanthanvi/posvault/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB = 10
	defaultMaxFiles  = 5
)

// NewRotatingWriter opens the log file named by cfg.File. Rotated backups
// sit next to it with a timestamp suffix; at most cfg.MaxFiles are kept.
func NewRotatingWriter(cfg config.LoggingConfig) (*lumberjack.Logger, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("open log file: path must not be empty")
	}
	if info, err := os.Stat(cfg.File); err == nil && info.IsDir() {
		return nil, fmt.Errorf("open log file: %s is a directory", cfg.File)
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, fmt.Errorf("open log file: create directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: maxFiles,
	}, nil
}
