// Package debug assembles the support bundle written by doctor --bundle.
package debug

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/afero"
)

type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type RepoStatus struct {
	Type          string `json:"type"`
	Root          string `json:"root"`
	InTransaction bool   `json:"in_transaction"`
	Skipped       int    `json:"skipped"`
}

// Bundle never carries record contents or key material; Config is expected
// to be redacted by the caller.
type Bundle struct {
	GeneratedAt  string         `json:"generated_at"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	Version      map[string]any `json:"version,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	Repositories []RepoStatus   `json:"repositories,omitempty"`
	Checks       []Check        `json:"checks,omitempty"`
	Notes        []string       `json:"notes,omitempty"`
}

func NewBundle() Bundle {
	return Bundle{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339Nano),
		GOOS:        runtime.GOOS,
		GOARCH:      runtime.GOARCH,
	}
}

// Failed reports whether any check failed.
func (b Bundle) Failed() bool {
	for _, check := range b.Checks {
		if !check.OK {
			return true
		}
	}
	return false
}

func WriteBundle(fs afero.Fs, outputPath string, bundle Bundle) error {
	if outputPath == "" {
		return fmt.Errorf("write debug bundle: output path is required")
	}
	if err := fs.MkdirAll(filepath.Dir(outputPath), 0o700); err != nil {
		return fmt.Errorf("write debug bundle: create output directory: %w", err)
	}

	payload, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("write debug bundle: marshal json: %w", err)
	}
	if err := afero.WriteFile(fs, outputPath, payload, 0o600); err != nil {
		return fmt.Errorf("write debug bundle: %w", err)
	}
	return nil
}
