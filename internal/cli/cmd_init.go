package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amanthanvi/posvault/internal/app"
	"github.com/amanthanvi/posvault/internal/config"
	"github.com/amanthanvi/posvault/internal/crypto"
	"github.com/awnumar/memguard"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const initConfigTemplate = `[store]
backend = %q
path = %q
base_path = %q

[keys]
mode = %q
file = %q

[session]
timeout = %q

[logging]
level = %q
file = ""
max_size_mb = %d
max_files = %d
`

type initResult struct {
	ConfigPath    string `json:"config_path"`
	ConfigWritten bool   `json:"config_written"`
	KeyFile       string `json:"key_file"`
	KeyCreated    bool   `json:"key_created"`
	KeyMode       string `json:"key_mode"`
	Seeded        int    `json:"settings_seeded"`
}

func newInitCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the master key, config file and built-in settings",
		Example: "  posvault init\n" +
			"  echo \"$PASS\" | posvault --passphrase-stdin init",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("init does not accept positional arguments")
			}
			cfg, report, err := loadConfig(deps)
			if err != nil {
				return mapCommandError(err)
			}
			result := initResult{
				ConfigPath: report.ConfigPath,
				KeyFile:    cfg.Keys.File,
				KeyMode:    cfg.Keys.Mode,
			}

			yes := deps.globals != nil && deps.globals.Yes
			result.ConfigWritten, err = writeInitConfig(deps.fs, report.ConfigPath, cfg, yes)
			if err != nil {
				return mapCommandError(err)
			}

			result.KeyCreated, err = ensureKeyFile(cmd, deps, cfg)
			if err != nil {
				return mapCommandError(err)
			}

			err = withSession(cmd, deps, func(ctx context.Context, s *session) error {
				seeded, err := app.NewSettingService(s.work).Seed(ctx)
				result.Seeded = seeded
				return err
			})
			if err != nil {
				return err
			}

			return mapCommandError(printMessage(deps, result,
				"initialized posvault store (key=%s created=%s settings=%d)",
				result.KeyFile,
				boolToState(result.KeyCreated, "yes", "no"),
				result.Seeded,
			))
		},
	}
}

// writeInitConfig writes the resolved settings to path unless a config file
// already exists and overwrite is false.
func writeInitConfig(fs afero.Fs, path string, cfg config.Config, overwrite bool) (bool, error) {
	if path == "" {
		return false, nil
	}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return false, fmt.Errorf("init: stat config: %w", err)
	}
	if exists && !overwrite {
		return false, nil
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("init: create config dir: %w", err)
	}
	content := fmt.Sprintf(initConfigTemplate,
		cfg.Store.Backend,
		cfg.Store.Path,
		cfg.Store.BasePath,
		cfg.Keys.Mode,
		cfg.Keys.File,
		cfg.Session.Timeout.String(),
		cfg.Logging.Level,
		cfg.Logging.MaxSizeMB,
		cfg.Logging.MaxFiles,
	)
	if err := afero.WriteFile(fs, path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("init: write config: %w", err)
	}
	return true, nil
}

// ensureKeyFile creates the master key file in the configured mode. An
// existing, readable key file is kept.
func ensureKeyFile(cmd *cobra.Command, deps commandDeps, cfg config.Config) (bool, error) {
	if _, err := os.Stat(cfg.Keys.File); err == nil {
		if _, err := crypto.ReadKeyFile(cfg.Keys.File); err != nil {
			return false, fmt.Errorf("init: existing key file: %w", err)
		}
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("init: stat key file: %w", err)
	}

	switch cfg.Keys.Mode {
	case config.KeyModePassphrase:
		passphrase, err := readPassphrase(cmd.InOrStdin(), deps.globals)
		if err != nil {
			return false, err
		}
		defer memguard.WipeBytes(passphrase)
		if err := crypto.WritePassphraseKeyFile(cfg.Keys.File, passphrase, crypto.DefaultArgon2Params()); err != nil {
			return false, fmt.Errorf("init: %w", err)
		}
	default:
		key, err := crypto.GenerateMasterKey()
		if err != nil {
			return false, fmt.Errorf("init: %w", err)
		}
		defer key.Destroy()
		if err := crypto.WriteRawKeyFile(cfg.Keys.File, key); err != nil {
			return false, fmt.Errorf("init: %w", err)
		}
	}
	return true, nil
}
