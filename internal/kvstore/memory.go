package kvstore

import (
	"context"
	"strings"
	"sync"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
	closed  bool
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: map[string][]byte{}}
}

func (m *Memory) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := m.precheck(ctx, "get", path); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.entries[path]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(value), true, nil
}

func (m *Memory) Set(ctx context.Context, path string, value []byte) error {
	if err := m.precheck(ctx, "set", path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[path] = cloneBytes(value)
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := m.precheck(ctx, "delete", path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, path)
	return nil
}

func (m *Memory) ListChildren(ctx context.Context, path string) ([]string, error) {
	if err := m.precheck(ctx, "list", path); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := []string{}
	for full := range m.entries {
		if name, ok := childName(path, full); ok {
			names = append(names, name)
		}
	}
	return sortedUnique(names), nil
}

func (m *Memory) ExportSubtree(ctx context.Context, path string) (*Snapshot, error) {
	if err := m.precheck(ctx, "export", path); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := newSnapshot(path)
	prefix := path + Separator
	for full, value := range m.entries {
		if strings.HasPrefix(full, prefix) {
			snap.Entries[full[len(prefix):]] = cloneBytes(value)
		}
	}
	return snap, nil
}

func (m *Memory) ImportSubtree(ctx context.Context, path string, snap *Snapshot) error {
	if err := m.precheck(ctx, "import", path); err != nil {
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

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := path + Separator
	for full := range m.entries {
		if strings.HasPrefix(full, prefix) {
			delete(m.entries, full)
		}
	}
	for rel, value := range snap.Entries {
		m.entries[prefix+rel] = cloneBytes(value)
	}
	return nil
}

func (m *Memory) HasAccess(ctx context.Context, path string) bool {
	return m.precheck(ctx, "access", path) == nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) precheck(ctx context.Context, op, path string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := ValidatePath(path); err != nil {
		return err
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return accessError(op, path, ErrClosed)
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
