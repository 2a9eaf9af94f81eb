package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	tmpSuffix = ".tmp"
	probeName = ".posvault-probe"
	dirPerm   = 0o700
	filePerm  = 0o600
)

// FileTree maps every store path to a file below root. Writes go to a
// sibling temp file that is renamed into place.
type FileTree struct {
	fs   afero.Fs
	root string
}

var _ Store = (*FileTree)(nil)

func NewFileTree(fsys afero.Fs, root string) (*FileTree, error) {
	if fsys == nil {
		return nil, fmt.Errorf("open file tree store: filesystem is nil")
	}
	if root == "" {
		return nil, fmt.Errorf("open file tree store: empty root")
	}
	if err := fsys.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("open file tree store: create root: %w", err)
	}
	return &FileTree{fs: fsys, root: root}, nil
}

func (t *FileTree) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := precheck(ctx, path); err != nil {
		return nil, false, err
	}
	name := t.filename(path)
	info, err := t.fs.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, accessError("get", path, err)
	}
	if info.IsDir() {
		return nil, false, nil
	}
	data, err := afero.ReadFile(t.fs, name)
	if err != nil {
		return nil, false, accessError("get", path, err)
	}
	return data, true, nil
}

func (t *FileTree) Set(ctx context.Context, path string, value []byte) error {
	if err := precheck(ctx, path); err != nil {
		return err
	}
	return accessError("set", path, t.writeAtomic(t.filename(path), value))
}

func (t *FileTree) Delete(ctx context.Context, path string) error {
	if err := precheck(ctx, path); err != nil {
		return err
	}
	err := t.fs.Remove(t.filename(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return accessError("delete", path, err)
	}
	return nil
}

func (t *FileTree) ListChildren(ctx context.Context, path string) ([]string, error) {
	if err := precheck(ctx, path); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(t.fs, t.filename(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, accessError("list", path, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if skipName(info.Name()) {
			continue
		}
		names = append(names, info.Name())
	}
	return sortedUnique(names), nil
}

func (t *FileTree) ExportSubtree(ctx context.Context, path string) (*Snapshot, error) {
	if err := precheck(ctx, path); err != nil {
		return nil, err
	}
	dir := t.filename(path)
	snap := newSnapshot(path)
	err := afero.Walk(t.fs, dir, func(name string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) && name == dir {
				return nil
			}
			return walkErr
		}
		if skipName(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, name)
		if err != nil {
			return err
		}
		data, err := afero.ReadFile(t.fs, name)
		if err != nil {
			return err
		}
		snap.Entries[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, accessError("export", path, err)
	}
	return snap, nil
}

// ImportSubtree writes snap into a staging directory next to path and swaps
// it in with two renames. A failed write leaves the live subtree untouched.
func (t *FileTree) ImportSubtree(ctx context.Context, path string, snap *Snapshot) error {
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

	dir := t.filename(path)
	staging := dir + ".import" + tmpSuffix
	retired := dir + ".old" + tmpSuffix
	if err := t.fs.RemoveAll(staging); err != nil {
		return accessError("import", path, err)
	}
	if err := t.stage(ctx, staging, snap); err != nil {
		_ = t.fs.RemoveAll(staging)
		return accessError("import", path, err)
	}
	if err := t.swap(dir, staging, retired); err != nil {
		_ = t.fs.RemoveAll(staging)
		return accessError("import", path, err)
	}
	_ = t.fs.RemoveAll(retired)
	return nil
}

func (t *FileTree) stage(ctx context.Context, staging string, snap *Snapshot) error {
	if err := t.fs.MkdirAll(staging, dirPerm); err != nil {
		return err
	}
	for _, rel := range snap.Paths() {
		if err := checkContext(ctx); err != nil {
			return err
		}
		if err := t.writeAtomic(filepath.Join(staging, filepath.FromSlash(rel)), snap.Entries[rel]); err != nil {
			return err
		}
	}
	return nil
}

// swap moves dir aside to retired and staging into dir, putting dir back if
// the second rename fails.
func (t *FileTree) swap(dir, staging, retired string) error {
	if err := t.fs.RemoveAll(retired); err != nil {
		return err
	}
	hadDir := true
	if err := t.fs.Rename(dir, retired); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		hadDir = false
	}
	if err := t.fs.Rename(staging, dir); err != nil {
		if hadDir {
			if restoreErr := t.fs.Rename(retired, dir); restoreErr != nil {
				return errors.Join(err, fmt.Errorf("restore %s: %w", dir, restoreErr))
			}
		}
		return err
	}
	return nil
}

// HasAccess creates and removes a probe file under path.
func (t *FileTree) HasAccess(ctx context.Context, path string) bool {
	if precheck(ctx, path) != nil {
		return false
	}
	dir := t.filename(path)
	if err := t.fs.MkdirAll(dir, dirPerm); err != nil {
		return false
	}
	probe := filepath.Join(dir, probeName)
	if err := afero.WriteFile(t.fs, probe, nil, filePerm); err != nil {
		return false
	}
	return t.fs.Remove(probe) == nil
}

func (t *FileTree) Close() error { return nil }

func (t *FileTree) filename(path string) string {
	return filepath.Join(t.root, filepath.FromSlash(path))
}

func (t *FileTree) writeAtomic(name string, value []byte) error {
	if err := t.fs.MkdirAll(filepath.Dir(name), dirPerm); err != nil {
		return err
	}
	tmp := name + tmpSuffix
	if err := afero.WriteFile(t.fs, tmp, value, filePerm); err != nil {
		return err
	}
	if err := t.fs.Rename(tmp, name); err != nil {
		_ = t.fs.Remove(tmp)
		return err
	}
	return nil
}

func skipName(name string) bool {
	return strings.HasSuffix(name, tmpSuffix) || name == probeName
}

func precheck(ctx context.Context, path string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	return ValidatePath(path)
}
