//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	repoRoot         string
	integrationBin   string
	integrationCache string
)

func TestMain(m *testing.M) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		fmt.Fprintln(os.Stderr, "integration: resolve current file")
		os.Exit(1)
	}
	repoRoot = filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))

	tmpDir, err := os.MkdirTemp(repoRoot, ".integration-bin-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration: create temp dir: %v\n", err)
		os.Exit(1)
	}

	integrationCache = filepath.Join(tmpDir, "gocache")
	if err := os.MkdirAll(integrationCache, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "integration: create gocache: %v\n", err)
		os.Exit(1)
	}

	integrationBin = filepath.Join(tmpDir, "posvault")
	buildCmd := exec.Command("go", "build", "-o", integrationBin, "./cmd/posvault")
	buildCmd.Dir = repoRoot
	buildCmd.Env = append(os.Environ(), "GOCACHE="+integrationCache)
	if output, err := buildCmd.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "integration: build cli: %v\n%s\n", err, string(output))
		os.Exit(1)
	}

	code := m.Run()
	_ = os.RemoveAll(tmpDir)
	os.Exit(code)
}

type cliHarness struct {
	home  string
	extra []string
}

type cliResult struct {
	output   string
	exitCode int
	err      error
}

func newHarness(t *testing.T, extraEnv ...string) *cliHarness {
	t.Helper()

	base, err := os.MkdirTemp(repoRoot, ".integration-run-")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = os.RemoveAll(base)
	})

	return &cliHarness{
		home:  filepath.Join(base, "home"),
		extra: extraEnv,
	}
}

func (h *cliHarness) env() []string {
	env := []string{
		"POSVAULT_HOME=" + h.home,
		"POSVAULT_CONFIG_PATH=" + filepath.Join(h.home, "config.toml"),
		"POSVAULT_ACTOR=integration",
		"GOCACHE=" + integrationCache,
	}
	return append(env, h.extra...)
}

func (h *cliHarness) run(timeout time.Duration, args ...string) cliResult {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, integrationBin, args...)
	cmd.Dir = repoRoot
	cmd.Env = append(os.Environ(), h.env()...)
	output, err := cmd.CombinedOutput()

	res := cliResult{
		output: strings.TrimSpace(string(output)),
		err:    err,
	}
	if err == nil {
		res.exitCode = 0
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitErr.ExitCode()
		return res
	}
	res.exitCode = -1
	if ctx.Err() != nil {
		res.output = strings.TrimSpace(string(output) + "\n" + ctx.Err().Error())
	}
	return res
}

func requireSuccess(t *testing.T, res cliResult, command ...string) string {
	t.Helper()
	require.NoError(t, res.err, "command failed: %s\noutput:\n%s", strings.Join(command, " "), res.output)
	require.Equal(t, 0, res.exitCode)
	return res.output
}

func requireExit(t *testing.T, res cliResult, code int, command ...string) string {
	t.Helper()
	require.Error(t, res.err, "command unexpectedly succeeded: %s\noutput:\n%s", strings.Join(command, " "), res.output)
	require.Equal(t, code, res.exitCode, "command: %s\noutput:\n%s", strings.Join(command, " "), res.output)
	return res.output
}

func TestIntegrationLifecycleSQLite(t *testing.T) {
	h := newHarness(t)

	requireSuccess(t, h.run(10*time.Second, "init"), "init")
	requireSuccess(t, h.run(10*time.Second, "db", "add", "--name", "main", "--server", "sql01", "--database", "pos", "--integrated-security"), "db add main")
	listOut := requireSuccess(t, h.run(10*time.Second, "db", "ls"), "db ls")
	require.Contains(t, listOut, "main")

	requireSuccess(t, h.run(10*time.Second, "setting", "set", "receipt.footer", "Thanks"), "setting set")
	getOut := requireSuccess(t, h.run(10*time.Second, "setting", "get", "receipt.footer"), "setting get")
	require.Equal(t, "Thanks", getOut)

	requireExit(t, h.run(10*time.Second, "db", "show", "missing"), 3, "db show missing")
	requireExit(t, h.run(10*time.Second, "db", "rm", "main"), 4, "db rm main")
	requireExit(t, h.run(10*time.Second, "db", "add", "--name", "x"), 2, "db add --name x")

	raw, err := os.ReadFile(filepath.Join(h.home, "posvault.db"))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "sql01")
}

func TestIntegrationFileBackendKeepsRecordsEncrypted(t *testing.T) {
	h := newHarness(t, "POSVAULT_STORE_BACKEND=file")

	requireSuccess(t, h.run(10*time.Second, "init"), "init")
	requireSuccess(t, h.run(10*time.Second, "printer", "add", "--name", "grill", "--kind", "kitchen",
		"--connection", "network", "--address", "10.0.0.40"), "printer add grill")

	dir := filepath.Join(h.home, "store", "POSVault", "Printers")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "10.0.0.40")
	require.NotContains(t, string(raw), "grill")
}

func TestIntegrationDoctorFlagsCorruptRecord(t *testing.T) {
	h := newHarness(t, "POSVAULT_STORE_BACKEND=file")

	requireSuccess(t, h.run(10*time.Second, "init"), "init")
	requireSuccess(t, h.run(10*time.Second, "db", "add", "--name", "main", "--server", "sql01", "--database", "pos", "--integrated-security"), "db add main")
	requireSuccess(t, h.run(10*time.Second, "db", "add", "--name", "backup", "--server", "sql02", "--database", "pos", "--integrated-security"), "db add backup")
	requireSuccess(t, h.run(10*time.Second, "doctor"), "doctor")

	dir := filepath.Join(h.home, "store", "POSVault", "Databases")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, entries[0].Name()), []byte("garbage"), 0o600))

	doctorOut := requireExit(t, h.run(10*time.Second, "doctor"), 1, "doctor")
	require.Contains(t, doctorOut, "records:database_profile")
	require.Contains(t, doctorOut, "fail")

	listOut := requireSuccess(t, h.run(10*time.Second, "--json", "db", "ls"), "db ls")
	require.Contains(t, listOut, `"total_count": 1`)

	requireExit(t, h.run(10*time.Second, "doctor", "--purge-corrupt"), 2, "doctor --purge-corrupt")
	purgeOut := requireSuccess(t, h.run(10*time.Second, "doctor", "--purge-corrupt", "--yes"), "doctor --purge-corrupt --yes")
	require.Contains(t, purgeOut, "removed 1 undecodable records")
	requireSuccess(t, h.run(10*time.Second, "doctor"), "doctor after purge")

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestIntegrationPassphraseKeyFromEnvironment(t *testing.T) {
	h := newHarness(t, "POSVAULT_KEY_MODE=passphrase", "POSVAULT_PASSPHRASE=integration-pass")

	requireSuccess(t, h.run(20*time.Second, "init"), "init")
	requireSuccess(t, h.run(20*time.Second, "setting", "set", "terminal.name", "lane-1"), "setting set")

	locked := &cliHarness{home: h.home, extra: []string{"POSVAULT_PASSPHRASE=wrong-pass"}}
	requireExit(t, locked.run(20*time.Second, "setting", "get", "terminal.name"), 5, "setting get with wrong passphrase")
}

func TestIntegrationTransferBetweenTerminals(t *testing.T) {
	source := newHarness(t)
	bundlePath := filepath.Join(source.home, "bundle.json")

	requireSuccess(t, source.run(10*time.Second, "init"), "init")
	requireSuccess(t, source.run(10*time.Second, "db", "add", "--name", "main", "--server", "sql01", "--database", "pos", "--integrated-security"), "db add main")
	requireSuccess(t, source.run(10*time.Second, "export", "--output", bundlePath), "export")

	target := newHarness(t)
	require.NoError(t, os.MkdirAll(target.home, 0o700))
	copyFile(t, filepath.Join(source.home, "master.key"), filepath.Join(target.home, "master.key"))
	requireSuccess(t, target.run(10*time.Second, "init"), "init")
	requireSuccess(t, target.run(10*time.Second, "import", "--input", bundlePath), "import")
	showOut := requireSuccess(t, target.run(10*time.Second, "db", "show", "main"), "db show main")
	require.Contains(t, showOut, "sql01")

	stranger := newHarness(t)
	requireSuccess(t, stranger.run(10*time.Second, "init"), "init")
	requireExit(t, stranger.run(10*time.Second, "import", "--input", bundlePath), 2, "import with another key")
}

func TestIntegrationConcurrentCLIReads(t *testing.T) {
	h := newHarness(t)

	requireSuccess(t, h.run(10*time.Second, "init"), "init")
	requireSuccess(t, h.run(10*time.Second, "db", "add", "--name", "parallel", "--server", "sql01", "--database", "pos", "--integrated-security"), "db add parallel")

	var wg sync.WaitGroup
	errCh := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := h.run(10*time.Second, "db", "ls")
			if res.err != nil {
				errCh <- fmt.Errorf("exit=%d output=%s", res.exitCode, res.output)
				return
			}
			if !strings.Contains(res.output, "parallel") {
				errCh <- fmt.Errorf("missing profile in output: %s", res.output)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
}

func copyFile(t *testing.T, from, to string) {
	t.Helper()
	src, err := os.Open(from)
	require.NoError(t, err)
	defer src.Close()
	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	require.NoError(t, err)
	_, err = io.Copy(dst, src)
	require.NoError(t, err)
	require.NoError(t, dst.Close())
}
