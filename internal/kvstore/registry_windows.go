//go:build windows

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// Registry stores each leaf as a REG_BINARY value. For a store path a/b/c
// the value "c" lives under the key base\a\b.
type Registry struct {
	hive registry.Key
	base string
}

var _ Store = (*Registry)(nil)

func OpenRegistry(hive, base string) (Store, error) {
	root, err := parseHive(hive)
	if err != nil {
		return nil, err
	}
	base = strings.Trim(base, `\`)
	if base == "" {
		return nil, fmt.Errorf("open registry store: empty base key")
	}
	k, _, err := registry.CreateKey(root, base, registry.CREATE_SUB_KEY)
	if err != nil {
		return nil, accessError("open", base, err)
	}
	_ = k.Close()
	return &Registry{hive: root, base: base}, nil
}

func (r *Registry) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := precheck(ctx, path); err != nil {
		return nil, false, err
	}
	parent, name := Split(path)
	k, err := registry.OpenKey(r.hive, r.keyPath(parent), registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, accessError("get", path, err)
	}
	defer k.Close()

	value, _, err := k.GetBinaryValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, accessError("get", path, err)
	}
	return value, true, nil
}

func (r *Registry) Set(ctx context.Context, path string, value []byte) error {
	if err := precheck(ctx, path); err != nil {
		return err
	}
	return accessError("set", path, r.setValue(path, value))
}

func (r *Registry) setValue(path string, value []byte) error {
	parent, name := Split(path)
	k, _, err := registry.CreateKey(r.hive, r.keyPath(parent), registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()
	return k.SetBinaryValue(name, value)
}

func (r *Registry) Delete(ctx context.Context, path string) error {
	if err := precheck(ctx, path); err != nil {
		return err
	}
	parent, name := Split(path)
	k, err := registry.OpenKey(r.hive, r.keyPath(parent), registry.SET_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return accessError("delete", path, err)
	}
	defer k.Close()
	if err := k.DeleteValue(name); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return accessError("delete", path, err)
	}
	return nil
}

func (r *Registry) ListChildren(ctx context.Context, path string) ([]string, error) {
	if err := precheck(ctx, path); err != nil {
		return nil, err
	}
	k, err := registry.OpenKey(r.hive, r.keyPath(path), registry.QUERY_VALUE|registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return []string{}, nil
		}
		return nil, accessError("list", path, err)
	}
	defer k.Close()

	values, err := k.ReadValueNames(0)
	if err != nil {
		return nil, accessError("list", path, err)
	}
	subkeys, err := k.ReadSubKeyNames(0)
	if err != nil {
		return nil, accessError("list", path, err)
	}
	return sortedUnique(append(values, subkeys...)), nil
}

func (r *Registry) ExportSubtree(ctx context.Context, path string) (*Snapshot, error) {
	if err := precheck(ctx, path); err != nil {
		return nil, err
	}
	snap := newSnapshot(path)
	if err := r.exportKey(r.keyPath(path), "", snap); err != nil {
		return nil, accessError("export", path, err)
	}
	return snap, nil
}

// ImportSubtree deletes the key for path with all subkeys and recreates it
// from snap. The registry has no multi-key transaction; if a write fails the
// contents that were live before the import are written back.
func (r *Registry) ImportSubtree(ctx context.Context, path string, snap *Snapshot) error {
	if err := precheck(ctx, path); err != nil {
		return err
	}
	if snap == nil {
		return accessError("import", path, errNilSnapshot)
	}
	for rel := range snap.Entries {
		if err := ValidatePath(Join(path, rel)); err != nil {
			return err
		}
	}
	previous := newSnapshot(path)
	if err := r.exportKey(r.keyPath(path), "", previous); err != nil {
		return accessError("import", path, err)
	}
	err := replaceSubtree(ctx,
		func() error { return r.deleteTree(r.keyPath(path)) },
		func(rel string, value []byte) error { return r.setValue(Join(path, rel), value) },
		snap, previous,
	)
	return accessError("import", path, err)
}

func (r *Registry) HasAccess(ctx context.Context, path string) bool {
	if precheck(ctx, path) != nil {
		return false
	}
	k, _, err := registry.CreateKey(r.hive, r.keyPath(path), registry.QUERY_VALUE|registry.SET_VALUE)
	if err != nil {
		return false
	}
	_ = k.Close()
	return true
}

func (r *Registry) Close() error { return nil }

func (r *Registry) keyPath(path string) string {
	if path == "" {
		return r.base
	}
	return r.base + `\` + strings.ReplaceAll(path, Separator, `\`)
}

func (r *Registry) exportKey(keyPath, rel string, snap *Snapshot) error {
	k, err := registry.OpenKey(r.hive, keyPath, registry.QUERY_VALUE|registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return err
	}
	defer k.Close()

	values, err := k.ReadValueNames(0)
	if err != nil {
		return err
	}
	for _, name := range values {
		value, _, err := k.GetBinaryValue(name)
		if err != nil {
			return fmt.Errorf("read value %s: %w", name, err)
		}
		snap.Entries[Join(rel, name)] = value
	}

	subkeys, err := k.ReadSubKeyNames(0)
	if err != nil {
		return err
	}
	for _, sub := range subkeys {
		if err := r.exportKey(keyPath+`\`+sub, Join(rel, sub), snap); err != nil {
			return err
		}
	}
	return nil
}

// deleteTree removes keyPath bottom-up because DeleteKey refuses keys that
// still have subkeys.
func (r *Registry) deleteTree(keyPath string) error {
	k, err := registry.OpenKey(r.hive, keyPath, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return err
	}
	subkeys, err := k.ReadSubKeyNames(0)
	_ = k.Close()
	if err != nil {
		return err
	}
	for _, sub := range subkeys {
		if err := r.deleteTree(keyPath + `\` + sub); err != nil {
			return err
		}
	}
	if err := registry.DeleteKey(r.hive, keyPath); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return err
	}
	return nil
}

func parseHive(name string) (registry.Key, error) {
	switch strings.ToUpper(name) {
	case "HKCU", "HKEY_CURRENT_USER", "":
		return registry.CURRENT_USER, nil
	case "HKLM", "HKEY_LOCAL_MACHINE":
		return registry.LOCAL_MACHINE, nil
	default:
		return 0, fmt.Errorf("open registry store: unknown hive %q", name)
	}
}
