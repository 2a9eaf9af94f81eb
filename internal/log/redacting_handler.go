package log

import (
	"context"
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveKeys are redacted on exact match. A key ending in one of
// sensitiveSuffixes ("db_password", "api_token") is redacted too.
var sensitiveKeys = map[string]struct{}{
	"secret":            {},
	"token":             {},
	"password":          {},
	"connection_string": {},
	"key":               {},
	"master_key":        {},
	"private_key":       {},
	"value":             {},
	"passphrase":        {},
	"kek":               {},
	"dek":               {},
}

var sensitiveSuffixes = []string{"_password", "_passphrase", "_secret", "_token", "_key"}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	if _, ok := sensitiveKeys[key]; ok {
		return true
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// RedactingHandler masks sensitive attributes, including attributes nested
// in groups and values produced by slog.LogValuer, before the inner handler
// sees them.
type RedactingHandler struct {
	inner slog.Handler
}

func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fallback := slog.NewRecord(record.Time, slog.LevelError, "log redaction failed", record.PC)
			fallback.AddAttrs(slog.String("panic", redacted))
			err = h.inner.Handle(ctx, fallback)
		}
	}()

	out := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(redactAttr(attr))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, redactAttr(attr))
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(out)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(attr slog.Attr) slog.Attr {
	if isSensitiveKey(attr.Key) {
		return slog.String(attr.Key, redacted)
	}

	value := attr.Value.Resolve()
	if value.Kind() != slog.KindGroup {
		return slog.Attr{Key: attr.Key, Value: value}
	}
	group := value.Group()
	nested := make([]slog.Attr, 0, len(group))
	for _, inner := range group {
		nested = append(nested, redactAttr(inner))
	}
	return slog.Attr{Key: attr.Key, Value: slog.GroupValue(nested...)}
}
