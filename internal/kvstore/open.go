package kvstore

import (
	"fmt"

	"github.com/spf13/afero"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendFile     = "file"
	BackendRegistry = "registry"
)

var Backends = []string{BackendMemory, BackendSQLite, BackendFile, BackendRegistry}

type Options struct {
	Backend string
	// Path is the database file (sqlite), root directory (file) or base key
	// (registry).
	Path string
	// Hive selects HKCU or HKLM for the registry backend.
	Hive string
}

func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return OpenSQLite(opts.Path)
	case BackendFile:
		return NewFileTree(afero.NewOsFs(), opts.Path)
	case BackendRegistry:
		return OpenRegistry(opts.Hive, opts.Path)
	default:
		return nil, fmt.Errorf("open store: unknown backend %q", opts.Backend)
	}
}
