package repository

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/amanthanvi/posvault/internal/codec"
	"github.com/amanthanvi/posvault/internal/crypto"
	"github.com/amanthanvi/posvault/internal/kvstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const widgetRoot = "posvault/widgets"

type widget struct {
	WID    uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Rank   int       `json:"rank"`
	Locked bool      `json:"locked,omitempty"`
}

func (w widget) ID() uuid.UUID { return w.WID }
func (widget) TypeTag() string { return "widget" }
func (w widget) Validate() error {
	if w.Name == "" {
		return errors.New("name is required")
	}
	return nil
}
func (w widget) CheckDeletable() error {
	if w.Locked {
		return errors.New("widget is locked")
	}
	return nil
}

func newWidget(name string, rank int) widget {
	return widget{WID: uuid.New(), Name: name, Rank: rank}
}

func newTestCodec(t *testing.T) *codec.Codec {
	t.Helper()
	key, err := crypto.GenerateMasterKey()
	require.NoError(t, err)
	t.Cleanup(key.Destroy)

	c, err := codec.New(crypto.NewStaticKeyProvider(key))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func newTestRepo(t *testing.T, store kvstore.Store, opts ...Option) *Repository[widget] {
	t.Helper()
	repo, err := New[widget](store, newTestCodec(t), widgetRoot, opts...)
	require.NoError(t, err)
	return repo
}

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

// faultStore fails selected operations and passes the rest through.
type faultStore struct {
	kvstore.Store
	failExport error
	failImport error
	failSet    error
}

func (f *faultStore) Set(ctx context.Context, path string, value []byte) error {
	if f.failSet != nil {
		return f.failSet
	}
	return f.Store.Set(ctx, path, value)
}

func (f *faultStore) ExportSubtree(ctx context.Context, path string) (*kvstore.Snapshot, error) {
	if f.failExport != nil {
		return nil, f.failExport
	}
	return f.Store.ExportSubtree(ctx, path)
}

func (f *faultStore) ImportSubtree(ctx context.Context, path string, snap *kvstore.Snapshot) error {
	if f.failImport != nil {
		return f.failImport
	}
	return f.Store.ImportSubtree(ctx, path, snap)
}

func accessFailure(op string) error {
	return &kvstore.AccessError{Op: op, Path: widgetRoot, Err: errors.New("permission denied")}
}
