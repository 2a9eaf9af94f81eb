//go:build !windows

package kvstore

import "fmt"

func OpenRegistry(hive, base string) (Store, error) {
	return nil, fmt.Errorf("open registry store %s\\%s: %w", hive, base, ErrUnsupported)
}
