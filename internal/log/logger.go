package log

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/amanthanvi/posvault/internal/config"
)

// New builds the process logger: JSON records, redacted, written to the
// rotating file when one is configured and to fallback otherwise. The
// returned closer releases the file and is never nil.
func New(cfg config.LoggingConfig, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = fallback
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		writer, err := NewRotatingWriter(cfg)
		if err != nil {
			return nil, nil, err
		}
		out = writer
		closer = writer
	}
	if out == nil {
		out = io.Discard
	}

	base := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(NewRedactingHandler(base)), closer, nil
}

func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
