package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/amanthanvi/posvault/internal/config"
	"github.com/stretchr/testify/require"
)

func TestRedactionSecretField(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "secret", "abc123")
	require.Equal(t, "[REDACTED]", out["secret"])
}

func TestRedactionPassphraseField(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "passphrase", "hunter2")
	require.Equal(t, "[REDACTED]", out["passphrase"])
}

func TestRedactionPrivateKeyField(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "private_key", "super-secret-key")
	require.Equal(t, "[REDACTED]", out["private_key"])
}

func TestRedactionTokenField(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "token", "abc.token.xyz")
	require.Equal(t, "[REDACTED]", out["token"])
}

func TestRedactionPasswordField(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "password", "not-safe")
	require.Equal(t, "[REDACTED]", out["password"])
}

func TestRedactionConnectionStringField(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "connection_string", "Server=sql01;Password=pw;")
	require.Equal(t, "[REDACTED]", out["connection_string"])
}

func TestRedactionMasterKeyField(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "master_key", "deadbeef")
	require.Equal(t, "[REDACTED]", out["master_key"])
}

func TestRedactionNestedGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("profile saved", slog.Group("profile", slog.String("name", "Main"), slog.String("password", "pw")))

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out))
	group := out["profile"].(map[string]any)
	require.Equal(t, "Main", group["name"])
	require.Equal(t, "[REDACTED]", group["password"])
}

func TestRedactionWithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil))).With("token", "abc")
	logger.Info("hello")
	require.NotContains(t, buf.String(), "abc")
}

func TestRedactionKEKField(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "kek", "deadbeef")
	require.Equal(t, "[REDACTED]", out["kek"])
}

func TestRedactionDEKField(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "dek", "deadbeef")
	require.Equal(t, "[REDACTED]", out["dek"])
}

func TestRedactionSensitiveSuffix(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "db_password", "pw")
	require.Equal(t, "[REDACTED]", out["db_password"])
	out = logSingleField(t, "API_TOKEN", "abc")
	require.Equal(t, "[REDACTED]", out["API_TOKEN"])
}

type profileValuer struct{ name, password string }

func (p profileValuer) LogValue() slog.Value {
	return slog.GroupValue(slog.String("name", p.name), slog.String("password", p.password))
}

func TestRedactionResolvesLogValuer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("profile saved", "profile", profileValuer{name: "Main", password: "hunter2"})
	require.NotContains(t, buf.String(), "hunter2")
	require.Contains(t, buf.String(), "Main")
}

func TestNonSensitiveFieldsPassThrough(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "path", "POSVault/Printers")
	require.Equal(t, "POSVault/Printers", out["path"])
}

func TestNewWritesToFallbackAtConfiguredLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer, err := New(config.LoggingConfig{Level: "warn"}, &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	logger.Info("hidden")
	logger.Warn("shown", "password", "pw")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
	require.NotContains(t, buf.String(), `"pw"`)
}

func TestNewWritesToRotatingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "posvault.log")
	logger, closer, err := New(config.LoggingConfig{Level: "debug", File: path, MaxSizeMB: 1, MaxFiles: 2}, nil)
	require.NoError(t, err)
	logger.Debug("to file")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "to file")
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	t.Parallel()

	_, err := ParseLevel("trace")
	require.Error(t, err)
	level, err := ParseLevel("WARNING")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, level)
}

func TestLogRotationCreatesNewFileAfterTenMiB(t *testing.T) {
	logDir := t.TempDir()
	logPath := filepath.Join(logDir, "posvault.log")

	writer, err := NewRotatingWriter(config.LoggingConfig{
		File:      logPath,
		MaxSizeMB: 10,
		MaxFiles:  5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	chunk := bytes.Repeat([]byte("a"), 1024*1024)
	for i := 0; i < 11; i++ {
		_, err = writer.Write(chunk)
		require.NoError(t, err)
	}

	files, err := filepath.Glob(filepath.Join(logDir, "posvault*"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(files), 2)
}

func TestLogRotationRetainsMaxFiveFiles(t *testing.T) {
	logDir := t.TempDir()
	logPath := filepath.Join(logDir, "posvault.log")

	writer, err := NewRotatingWriter(config.LoggingConfig{
		File:      logPath,
		MaxSizeMB: 10,
		MaxFiles:  5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	chunk := bytes.Repeat([]byte("b"), 1024*1024)
	for i := 0; i < 80; i++ {
		_, err := writer.Write(chunk)
		require.NoError(t, err)
	}

	files, err := filepath.Glob(filepath.Join(logDir, "posvault*"))
	require.NoError(t, err)

	backupCount := 0
	for _, f := range files {
		if f == logPath {
			continue
		}
		backupCount++
	}
	require.LessOrEqual(t, backupCount, 5)
}

func TestRotatingWriterRejectsDirectory(t *testing.T) {
	t.Parallel()

	_, err := NewRotatingWriter(config.LoggingConfig{File: t.TempDir()})
	require.Error(t, err)
	_, err = NewRotatingWriter(config.LoggingConfig{})
	require.Error(t, err)
}

func logSingleField(t *testing.T, key, value string) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewRedactingHandler(base))
	logger.Info("test", key, value)

	line := bytes.TrimSpace(buf.Bytes())
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(line, &out))
	return out
}
