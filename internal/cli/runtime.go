package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/amanthanvi/posvault/internal/changelog"
	"github.com/amanthanvi/posvault/internal/codec"
	"github.com/amanthanvi/posvault/internal/config"
	"github.com/amanthanvi/posvault/internal/crypto"
	"github.com/amanthanvi/posvault/internal/domain"
	"github.com/amanthanvi/posvault/internal/kvstore"
	logpkg "github.com/amanthanvi/posvault/internal/log"
	"github.com/amanthanvi/posvault/internal/uow"
	"github.com/spf13/cobra"
)

const passphraseEnv = "POSVAULT_PASSPHRASE"

var (
	loadConfigFn = config.Load
	openStoreFn  = kvstore.Open
)

// session is the per-command wiring: one store, one codec and one unit of
// work, torn down when the command returns.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	store  kvstore.Store
	codec  *codec.Codec
	work   *uow.UnitOfWork
}

func loadOptions(globals *GlobalOptions) config.LoadOptions {
	opts := config.LoadOptions{}
	if globals == nil {
		return opts
	}
	opts.ConfigPath = strings.TrimSpace(globals.ConfigPath)
	opts.PolicyPath = strings.TrimSpace(globals.PolicyPath)
	opts.Flags.StoreBackend = optionalFlag(globals.StoreBackend)
	opts.Flags.StorePath = optionalFlag(globals.StorePath)
	opts.Flags.KeyFile = optionalFlag(globals.KeyFile)
	opts.Flags.Actor = optionalFlag(globals.Actor)
	return opts
}

func optionalFlag(raw string) *string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	return &value
}

func loadConfig(deps commandDeps) (config.Config, config.LoadReport, error) {
	cfg, report, err := loadConfigFn(loadOptions(deps.globals))
	if err != nil {
		return config.Config{}, report, fmt.Errorf("load config: %w", err)
	}
	return cfg, report, nil
}

func withSession(cmd *cobra.Command, deps commandDeps, fn func(context.Context, *session) error) error {
	cfg, report, err := loadConfig(deps)
	if err != nil {
		return mapCommandError(err)
	}

	logger, logCloser, err := logpkg.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return mapCommandError(fmt.Errorf("open log: %w", err))
	}
	defer logCloser.Close()
	for _, field := range report.PolicyOverrides {
		logger.Debug("policy override applied", "field", field)
	}

	timeout := cfg.Session.Timeout
	if deps.globals != nil && deps.globals.Timeout > 0 {
		timeout = deps.globals.Timeout
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	store, err := openStoreFn(kvstore.Options{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Hive:    cfg.Store.Hive,
	})
	if err != nil {
		return mapCommandError(fmt.Errorf("open store: %w", err))
	}
	defer store.Close()

	keys := crypto.NewFileKeyProvider(cfg.Keys.File, func() ([]byte, error) {
		return readPassphrase(cmd.InOrStdin(), deps.globals)
	})
	c, err := codec.New(keys, domain.TypeDatabaseProfile, domain.TypePrinterProfile, domain.TypeSystemSetting)
	deps.globals.forgetPassphrase()
	if err != nil {
		return mapCommandError(fmt.Errorf("open codec: %w", err))
	}
	defer c.Close()

	work, err := uow.New(uow.Config{
		BasePath:  cfg.Store.BasePath,
		Subtrees:  cfg.Subtrees,
		Actor:     cfg.Session.Actor,
		CacheSize: cfg.Store.CacheSize,
	}, store, c, uow.WithLogger(logger), uow.WithChangeLog(changelog.New()))
	if err != nil {
		return mapCommandError(err)
	}

	err = fn(ctx, &session{cfg: cfg, logger: logger, store: store, codec: c, work: work})
	if err == nil {
		var saved int
		saved, err = work.SaveChanges(ctx)
		if err == nil && saved > 0 {
			logger.InfoContext(ctx, "configuration changed",
				"writes", saved,
				"actor", cfg.Session.Actor,
				"backend", cfg.Store.Backend,
			)
		}
	}
	if closeErr := work.Close(ctx); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return mapCommandError(err)
}

// readPassphrase returns a copy of the session passphrase, reading it once
// from the environment or stdin.
func readPassphrase(in io.Reader, globals *GlobalOptions) ([]byte, error) {
	if globals == nil {
		return nil, crypto.ErrPassphraseRequired
	}
	if globals.passphrase == nil {
		switch {
		case os.Getenv(passphraseEnv) != "":
			globals.passphrase = []byte(os.Getenv(passphraseEnv))
		case globals.PassphraseStdin:
			line, err := bufio.NewReader(in).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read passphrase from stdin: %w", err)
			}
			line = strings.TrimRight(line, "\r\n")
			if strings.TrimSpace(line) == "" {
				return nil, usageErrorf("--passphrase-stdin requires a non-empty value on stdin")
			}
			globals.passphrase = []byte(line)
		default:
			return nil, fmt.Errorf("%w: set %s or use --passphrase-stdin", crypto.ErrPassphraseRequired, passphraseEnv)
		}
	}
	return append([]byte(nil), globals.passphrase...), nil
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func boolToState(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
