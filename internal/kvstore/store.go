package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const Separator = "/"

var (
	ErrAccess       = errors.New("kvstore: access failure")
	ErrInvalidPath  = errors.New("kvstore: invalid path")
	ErrClosed       = errors.New("kvstore: store is closed")
	ErrUnsupported  = errors.New("kvstore: backend unsupported on this platform")
	ErrSchemaTooNew = errors.New("kvstore: schema version newer than code")

	errNilSnapshot = errors.New("nil snapshot")
)

// Store is the only surface the persistence engine uses to reach the host
// store. Writes are durable when the call returns; there is no multi-key
// atomicity beyond ImportSubtree.
type Store interface {
	// Get returns the value at path and whether it exists.
	Get(ctx context.Context, path string) ([]byte, bool, error)
	Set(ctx context.Context, path string, value []byte) error
	// Delete removes the leaf at path. Deleting an absent path is not an error.
	Delete(ctx context.Context, path string) error
	// ListChildren returns the sorted names of the immediate children of path.
	ListChildren(ctx context.Context, path string) ([]string, error)
	ExportSubtree(ctx context.Context, path string) (*Snapshot, error)
	// ImportSubtree replaces everything below path with the snapshot contents.
	ImportSubtree(ctx context.Context, path string, snap *Snapshot) error
	HasAccess(ctx context.Context, path string) bool
	Close() error
}

// Snapshot is a point-in-time copy of every leaf below Root, keyed by path
// relative to Root.
type Snapshot struct {
	Root    string            `json:"root"`
	TakenAt time.Time         `json:"taken_at"`
	Entries map[string][]byte `json:"entries"`
}

func newSnapshot(root string) *Snapshot {
	return &Snapshot{
		Root:    root,
		TakenAt: time.Now().UTC(),
		Entries: map[string][]byte{},
	}
}

// Len reports the number of leaves in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// Paths returns the relative leaf paths in sorted order.
func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Entries))
	for p := range s.Entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AccessError reports a permission or I/O failure from a backend.
type AccessError struct {
	Op   string
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("kvstore: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

func (e *AccessError) Is(target error) bool { return target == ErrAccess }

func accessError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &AccessError{Op: op, Path: path, Err: err}
}

// Join builds a store path from segments, dropping empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.Trim(seg, Separator)
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, Separator)
}

// ValidatePath checks that path is a non-empty, slash separated sequence of
// non-empty segments with no relative components.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasPrefix(path, Separator) || strings.HasSuffix(path, Separator) {
		return fmt.Errorf("%w: %q has a leading or trailing separator", ErrInvalidPath, path)
	}
	for _, seg := range strings.Split(path, Separator) {
		switch seg {
		case "", ".", "..":
			return fmt.Errorf("%w: %q has an empty or relative segment", ErrInvalidPath, path)
		}
		if strings.ContainsAny(seg, "\\\x00") {
			return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidPath, path)
		}
	}
	return nil
}

// Split returns the parent path and final segment of path.
func Split(path string) (string, string) {
	idx := strings.LastIndex(path, Separator)
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

func childName(prefix, full string) (string, bool) {
	if !strings.HasPrefix(full, prefix+Separator) {
		return "", false
	}
	rest := full[len(prefix)+1:]
	if idx := strings.Index(rest, Separator); idx >= 0 {
		rest = rest[:idx]
	}
	return rest, rest != ""
}

func sortedUnique(names []string) []string {
	sort.Strings(names)
	out := names[:0]
	for i, name := range names {
		if i > 0 && name == names[i-1] {
			continue
		}
		out = append(out, name)
	}
	return out
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// replaceSubtree clears a subtree and writes snap into it. When a write
// fails the subtree is cleared again and previous is written back, so a
// backend without multi-key transactions never keeps a half-imported tree
// unless the restore fails too.
func replaceSubtree(ctx context.Context, wipe func() error, write func(rel string, value []byte) error, snap, previous *Snapshot) error {
	if err := wipe(); err != nil {
		return err
	}
	var failed error
	for _, rel := range snap.Paths() {
		if err := checkContext(ctx); err != nil {
			failed = err
			break
		}
		if err := write(rel, snap.Entries[rel]); err != nil {
			failed = fmt.Errorf("write %s: %w", rel, err)
			break
		}
	}
	if failed == nil {
		return nil
	}

	restore := wipe()
	for _, rel := range previous.Paths() {
		if restore != nil {
			break
		}
		if err := write(rel, previous.Entries[rel]); err != nil {
			restore = fmt.Errorf("write %s: %w", rel, err)
		}
	}
	if restore != nil {
		return errors.Join(failed, fmt.Errorf("restore previous subtree: %w", restore))
	}
	return failed
}
