package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amanthanvi/posvault/internal/kvstore"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultBackend        = kvstore.BackendSQLite
	defaultBasePath       = "POSVault"
	defaultHive           = "HKCU"
	defaultKeyMode        = KeyModeFile
	defaultSessionTimeout = 30 * time.Second
	defaultActor          = "posvault"
	defaultLogLevel       = "info"
	defaultLogMaxSizeMB   = 10
	defaultLogMaxFiles    = 5
)

const (
	KeyModeFile       = "file"
	KeyModePassphrase = "passphrase"
)

var ErrInvalidConfig = errors.New("invalid config")

var logLevels = []string{"debug", "info", "warn", "error"}

type Config struct {
	Store    StoreConfig       `toml:"store"`
	Subtrees map[string]string `toml:"subtrees"`
	Keys     KeysConfig        `toml:"keys"`
	Session  SessionConfig     `toml:"session"`
	Logging  LoggingConfig     `toml:"logging"`
}

type StoreConfig struct {
	Backend  string `toml:"backend"`
	Path     string `toml:"path"`
	BasePath string `toml:"base_path"`
	Hive     string `toml:"hive"`
	// CacheSize bounds each repository's decoded record cache. Zero uses
	// the built-in size, a negative value disables the cache.
	CacheSize int `toml:"cache_size"`
}

type KeysConfig struct {
	Mode string `toml:"mode"`
	File string `toml:"file"`
}

type SessionConfig struct {
	Actor string `toml:"actor"`
	// Timeout bounds each command's store work.
	Timeout time.Duration `toml:"timeout"`
}

type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

type LoadOptions struct {
	ConfigPath string
	PolicyPath string
	Env        map[string]string
	Flags      FlagOverrides
}

type FlagOverrides struct {
	StoreBackend *string
	StorePath    *string
	KeyFile      *string
	Actor        *string
}

type LoadReport struct {
	ConfigPath      string
	PolicyOverrides []string
}

// DefaultSubtrees maps the record type tags to their subtree names.
func DefaultSubtrees() map[string]string {
	return map[string]string{
		"database_profile": "Databases",
		"printer_profile":  "Printers",
		"system_setting":   "Settings",
	}
}

func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Backend:  defaultBackend,
			BasePath: defaultBasePath,
			Hive:     defaultHive,
		},
		Subtrees: DefaultSubtrees(),
		Keys: KeysConfig{
			Mode: defaultKeyMode,
		},
		Session: SessionConfig{
			Actor:   defaultActor,
			Timeout: defaultSessionTimeout,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			File:      "",
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
	}
}

func Load(opts LoadOptions) (Config, LoadReport, error) {
	cfg := DefaultConfig()
	report := LoadReport{PolicyOverrides: []string{}}

	if actor, ok := lookupEnv(opts, "USER"); ok && actor != "" {
		cfg.Session.Actor = actor
	} else if actor, ok := lookupEnv(opts, "USERNAME"); ok && actor != "" {
		cfg.Session.Actor = actor
	}

	configPath, err := resolveConfigPath(opts)
	if err != nil {
		return Config{}, report, fmt.Errorf("resolve config path: %w", err)
	}
	report.ConfigPath = configPath
	if err := loadAndApplyFile(configPath, &cfg, nil); err != nil {
		return Config{}, report, err
	}

	if err := applyEnvOverrides(&cfg, opts); err != nil {
		return Config{}, report, err
	}
	applyFlagOverrides(&cfg, opts.Flags)

	policyPath, err := resolvePolicyPath(opts)
	if err != nil {
		return Config{}, report, fmt.Errorf("resolve policy path: %w", err)
	}
	if err := loadAndApplyFile(policyPath, &cfg, &report.PolicyOverrides); err != nil {
		return Config{}, report, err
	}

	if err := fillPaths(&cfg, opts); err != nil {
		return Config{}, report, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, report, err
	}

	return cfg, report, nil
}

type rawConfig struct {
	Store    *rawStore         `toml:"store"`
	Subtrees map[string]string `toml:"subtrees"`
	Keys     *rawKeys          `toml:"keys"`
	Session  *rawSession       `toml:"session"`
	Logging  *rawLogging       `toml:"logging"`
}

type rawStore struct {
	Backend   *string `toml:"backend"`
	Path      *string `toml:"path"`
	BasePath  *string `toml:"base_path"`
	Hive      *string `toml:"hive"`
	CacheSize *int    `toml:"cache_size"`
}

type rawKeys struct {
	Mode *string `toml:"mode"`
	File *string `toml:"file"`
}

type rawSession struct {
	Actor   *string `toml:"actor"`
	Timeout *string `toml:"timeout"`
}

type rawLogging struct {
	Level     *string `toml:"level"`
	File      *string `toml:"file"`
	MaxSizeMB *int    `toml:"max_size_mb"`
	MaxFiles  *int    `toml:"max_files"`
}

func loadAndApplyFile(path string, cfg *Config, policyOverrides *[]string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parse TOML file %q: %v", ErrInvalidConfig, path, err)
	}

	return applyRawConfig(cfg, raw, policyOverrides)
}

func applyRawConfig(cfg *Config, raw rawConfig, policyOverrides *[]string) error {
	if raw.Store != nil {
		setString("store.backend", raw.Store.Backend, &cfg.Store.Backend, policyOverrides)
		setString("store.path", raw.Store.Path, &cfg.Store.Path, policyOverrides)
		setString("store.base_path", raw.Store.BasePath, &cfg.Store.BasePath, policyOverrides)
		setString("store.hive", raw.Store.Hive, &cfg.Store.Hive, policyOverrides)
		setInt("store.cache_size", raw.Store.CacheSize, &cfg.Store.CacheSize, policyOverrides)
	}

	tags := make([]string, 0, len(raw.Subtrees))
	for tag := range raw.Subtrees {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		value := raw.Subtrees[tag]
		current := cfg.Subtrees[tag]
		setString("subtrees."+tag, &value, &current, policyOverrides)
		cfg.Subtrees[tag] = current
	}

	if raw.Keys != nil {
		setString("keys.mode", raw.Keys.Mode, &cfg.Keys.Mode, policyOverrides)
		setString("keys.file", raw.Keys.File, &cfg.Keys.File, policyOverrides)
	}

	if raw.Session != nil {
		setString("session.actor", raw.Session.Actor, &cfg.Session.Actor, policyOverrides)
		if err := setDuration("session.timeout", raw.Session.Timeout, &cfg.Session.Timeout, policyOverrides); err != nil {
			return err
		}
	}

	if raw.Logging != nil {
		setString("logging.level", raw.Logging.Level, &cfg.Logging.Level, policyOverrides)
		setString("logging.file", raw.Logging.File, &cfg.Logging.File, policyOverrides)
		setInt("logging.max_size_mb", raw.Logging.MaxSizeMB, &cfg.Logging.MaxSizeMB, policyOverrides)
		setInt("logging.max_files", raw.Logging.MaxFiles, &cfg.Logging.MaxFiles, policyOverrides)
	}

	return nil
}

func applyEnvOverrides(cfg *Config, opts LoadOptions) error {
	if value, ok := lookupEnv(opts, "POSVAULT_STORE_BACKEND"); ok {
		cfg.Store.Backend = value
	}
	if value, ok := lookupEnv(opts, "POSVAULT_STORE_PATH"); ok {
		cfg.Store.Path = value
	}
	if value, ok := lookupEnv(opts, "POSVAULT_STORE_BASE_PATH"); ok {
		cfg.Store.BasePath = value
	}
	if value, ok := lookupEnv(opts, "POSVAULT_STORE_HIVE"); ok {
		cfg.Store.Hive = value
	}
	if value, ok := lookupEnv(opts, "POSVAULT_STORE_CACHE_SIZE"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse POSVAULT_STORE_CACHE_SIZE: %v", ErrInvalidConfig, err)
		}
		cfg.Store.CacheSize = parsed
	}

	if value, ok := lookupEnv(opts, "POSVAULT_KEY_MODE"); ok {
		cfg.Keys.Mode = value
	}
	if value, ok := lookupEnv(opts, "POSVAULT_KEY_FILE"); ok {
		cfg.Keys.File = value
	}

	if value, ok := lookupEnv(opts, "POSVAULT_ACTOR"); ok {
		cfg.Session.Actor = value
	}
	if value, ok := lookupEnv(opts, "POSVAULT_SESSION_TIMEOUT"); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: parse POSVAULT_SESSION_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		cfg.Session.Timeout = d
	}

	if value, ok := lookupEnv(opts, "POSVAULT_LOG_LEVEL"); ok {
		cfg.Logging.Level = value
	}
	if value, ok := lookupEnv(opts, "POSVAULT_LOG_FILE"); ok {
		cfg.Logging.File = value
	}
	if value, ok := lookupEnv(opts, "POSVAULT_LOG_MAX_SIZE_MB"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse POSVAULT_LOG_MAX_SIZE_MB: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxSizeMB = parsed
	}
	if value, ok := lookupEnv(opts, "POSVAULT_LOG_MAX_FILES"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse POSVAULT_LOG_MAX_FILES: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxFiles = parsed
	}

	return nil
}

func applyFlagOverrides(cfg *Config, flags FlagOverrides) {
	if flags.StoreBackend != nil {
		cfg.Store.Backend = *flags.StoreBackend
	}
	if flags.StorePath != nil {
		cfg.Store.Path = *flags.StorePath
	}
	if flags.KeyFile != nil {
		cfg.Keys.File = *flags.KeyFile
	}
	if flags.Actor != nil {
		cfg.Session.Actor = *flags.Actor
	}
}

// fillPaths points unset file locations at the posvault home directory.
func fillPaths(cfg *Config, opts LoadOptions) error {
	if cfg.Store.Path != "" && cfg.Keys.File != "" {
		return nil
	}
	home, err := posvaultHome(opts)
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		switch cfg.Store.Backend {
		case kvstore.BackendSQLite:
			cfg.Store.Path = filepath.Join(home, "posvault.db")
		case kvstore.BackendFile:
			cfg.Store.Path = filepath.Join(home, "store")
		case kvstore.BackendRegistry:
			cfg.Store.Path = `Software`
		}
	}
	if cfg.Keys.File == "" {
		cfg.Keys.File = filepath.Join(home, "master.key")
	}
	return nil
}

func validate(cfg Config) error {
	if !slices.Contains(kvstore.Backends, cfg.Store.Backend) {
		return fmt.Errorf("%w: store.backend must be one of %s", ErrInvalidConfig, strings.Join(kvstore.Backends, ", "))
	}
	if err := kvstore.ValidatePath(cfg.Store.BasePath); err != nil {
		return fmt.Errorf("%w: store.base_path: %v", ErrInvalidConfig, err)
	}
	for tag, sub := range cfg.Subtrees {
		if err := kvstore.ValidatePath(sub); err != nil || strings.Contains(sub, kvstore.Separator) {
			return fmt.Errorf("%w: subtrees.%s must be a single path segment", ErrInvalidConfig, tag)
		}
	}
	if cfg.Keys.Mode != KeyModeFile && cfg.Keys.Mode != KeyModePassphrase {
		return fmt.Errorf("%w: keys.mode must be %q or %q", ErrInvalidConfig, KeyModeFile, KeyModePassphrase)
	}
	if strings.TrimSpace(cfg.Session.Actor) == "" {
		return fmt.Errorf("%w: session.actor must not be empty", ErrInvalidConfig)
	}
	if cfg.Session.Timeout <= 0 || cfg.Session.Timeout > 10*time.Minute {
		return fmt.Errorf("%w: session.timeout must be > 0 and <= 10m", ErrInvalidConfig)
	}
	if !slices.Contains(logLevels, strings.ToLower(cfg.Logging.Level)) {
		return fmt.Errorf("%w: logging.level must be one of %s", ErrInvalidConfig, strings.Join(logLevels, ", "))
	}
	if cfg.Logging.MaxSizeMB <= 0 || cfg.Logging.MaxFiles <= 0 {
		return fmt.Errorf("%w: logging.max_size_mb and logging.max_files must be > 0", ErrInvalidConfig)
	}
	return nil
}

func setDuration(field string, raw *string, target *time.Duration, policyOverrides *[]string) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, field, err)
	}
	if policyOverrides != nil && *target != d {
		*policyOverrides = append(*policyOverrides, field)
	}
	*target = d
	return nil
}

func setString(field string, raw *string, target *string, policyOverrides *[]string) {
	if raw == nil {
		return
	}
	if policyOverrides != nil && *target != *raw {
		*policyOverrides = append(*policyOverrides, field)
	}
	*target = *raw
}

func setInt(field string, raw *int, target *int, policyOverrides *[]string) {
	if raw == nil {
		return
	}
	if policyOverrides != nil && *target != *raw {
		*policyOverrides = append(*policyOverrides, field)
	}
	*target = *raw
}

func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	if value, ok := lookupEnv(opts, "POSVAULT_CONFIG_PATH"); ok {
		return value, nil
	}
	return defaultConfigPath()
}

// resolvePolicyPath finds the policy file a head office uses to pin
// settings on managed terminals.
func resolvePolicyPath(opts LoadOptions) (string, error) {
	if opts.PolicyPath != "" {
		return opts.PolicyPath, nil
	}
	if value, ok := lookupEnv(opts, "POSVAULT_POLICY_FILE"); ok {
		return value, nil
	}
	home, err := posvaultHome(opts)
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "policy.toml"), nil
}

func lookupEnv(opts LoadOptions, key string) (string, bool) {
	if opts.Env != nil {
		if value, ok := opts.Env[key]; ok {
			return value, true
		}
	}
	return os.LookupEnv(key)
}

func posvaultHome(opts LoadOptions) (string, error) {
	if value, ok := lookupEnv(opts, "POSVAULT_HOME"); ok {
		return value, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "POSVault"), nil
	case "windows":
		if appData, ok := lookupEnv(opts, "LOCALAPPDATA"); ok && appData != "" {
			return filepath.Join(appData, "POSVault"), nil
		}
	}

	dataHome := filepath.Join(home, ".local", "share")
	if xdgDataHome, ok := lookupEnv(opts, "XDG_DATA_HOME"); ok && xdgDataHome != "" {
		dataHome = xdgDataHome
	}
	return filepath.Join(dataHome, "posvault"), nil
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "POSVault", "config.toml"), nil
	}

	configHome := filepath.Join(home, ".config")
	if xdgConfigHome, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdgConfigHome != "" {
		configHome = xdgConfigHome
	}
	return filepath.Join(configHome, "posvault", "config.toml"), nil
}
