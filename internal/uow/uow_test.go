package uow

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/amanthanvi/posvault/internal/changelog"
	"github.com/amanthanvi/posvault/internal/codec"
	"github.com/amanthanvi/posvault/internal/crypto"
	"github.com/amanthanvi/posvault/internal/kvstore"
	"github.com/amanthanvi/posvault/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type widget struct {
	WID  uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (w widget) ID() uuid.UUID       { return w.WID }
func (widget) TypeTag() string       { return "widget" }
func (widget) Validate() error       { return nil }
func (widget) CheckDeletable() error { return nil }

type gadget struct {
	GID   uuid.UUID `json:"id"`
	Label string    `json:"label"`
}

func (g gadget) ID() uuid.UUID       { return g.GID }
func (gadget) TypeTag() string       { return "gadget" }
func (gadget) Validate() error       { return nil }
func (gadget) CheckDeletable() error { return nil }

// faultStore fails export or import below one root.
type faultStore struct {
	kvstore.Store
	exportRoot string
	importRoot string
}

func (f *faultStore) ExportSubtree(ctx context.Context, path string) (*kvstore.Snapshot, error) {
	if f.exportRoot != "" && path == f.exportRoot {
		return nil, &kvstore.AccessError{Op: "export", Path: path, Err: errors.New("denied")}
	}
	return f.Store.ExportSubtree(ctx, path)
}

func (f *faultStore) ImportSubtree(ctx context.Context, path string, snap *kvstore.Snapshot) error {
	if f.importRoot != "" && path == f.importRoot {
		return &kvstore.AccessError{Op: "import", Path: path, Err: errors.New("denied")}
	}
	return f.Store.ImportSubtree(ctx, path, snap)
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

func testConfig() Config {
	return Config{
		BasePath: "posvault",
		Subtrees: map[string]string{"widget": "Widgets"},
		Actor:    "tester",
	}
}

func newTestUoW(t *testing.T, store kvstore.Store, opts ...Option) *UnitOfWork {
	t.Helper()
	u, err := New(testConfig(), store, newTestCodec(t), opts...)
	require.NoError(t, err)
	return u
}

func mustRepos(t *testing.T, u *UnitOfWork) (*repository.Repository[widget], *repository.Repository[gadget]) {
	t.Helper()
	ctx := context.Background()
	w, err := Repo[widget](ctx, u)
	require.NoError(t, err)
	g, err := Repo[gadget](ctx, u)
	require.NoError(t, err)
	return w, g
}

func TestRepoIsLazyAndCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	u := newTestUoW(t, kvstore.NewMemory())
	require.Empty(t, u.Status())

	first, err := Repo[widget](ctx, u)
	require.NoError(t, err)
	second, err := Repo[widget](ctx, u)
	require.NoError(t, err)
	require.Same(t, first, second)

	status := u.Status()
	require.Len(t, status, 1)
	require.Equal(t, "widget", status[0].TypeTag)
	require.Equal(t, "posvault/Widgets", status[0].Root)

	g, err := Repo[gadget](ctx, u)
	require.NoError(t, err)
	require.Equal(t, "posvault/gadget", g.Root())
}

func TestRollbackFansOutToEveryRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	u := newTestUoW(t, kvstore.NewMemory())
	widgets, gadgets := mustRepos(t, u)

	w := widget{WID: uuid.New(), Name: "X"}
	_, err := widgets.Add(ctx, w)
	require.NoError(t, err)

	require.NoError(t, u.BeginTransaction(ctx))
	require.True(t, u.HasActiveTransaction())
	require.True(t, widgets.InTransaction())
	require.True(t, gadgets.InTransaction())

	w.Name = "Y"
	_, err = widgets.Update(ctx, w)
	require.NoError(t, err)
	_, err = gadgets.Add(ctx, gadget{GID: uuid.New(), Label: "temp"})
	require.NoError(t, err)

	require.NoError(t, u.Rollback(ctx))
	require.False(t, u.HasActiveTransaction())

	got, _, err := widgets.GetByID(ctx, w.WID)
	require.NoError(t, err)
	require.Equal(t, "X", got.Name)
	all, err := gadgets.GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	require.NoError(t, u.Rollback(ctx))
}

func TestCommitFansOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	u := newTestUoW(t, kvstore.NewMemory())
	widgets, gadgets := mustRepos(t, u)

	require.NoError(t, u.BeginTransaction(ctx))
	_, err := widgets.Add(ctx, widget{WID: uuid.New(), Name: "kept"})
	require.NoError(t, err)
	require.NoError(t, u.Commit(ctx))
	require.False(t, widgets.InTransaction())
	require.False(t, gadgets.InTransaction())

	count, err := widgets.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, count, 1)
}

func TestTransactionStateErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	u := newTestUoW(t, kvstore.NewMemory())

	require.ErrorIs(t, u.Commit(ctx), repository.ErrNoActiveTransaction)
	require.NoError(t, u.BeginTransaction(ctx))
	require.ErrorIs(t, u.BeginTransaction(ctx), repository.ErrTransactionAlreadyActive)
	require.ErrorIs(t, u.BeginTransaction(ctx), repository.ErrTransactionState)
}

func TestRepositoryCreatedDuringTransactionJoinsIt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	u := newTestUoW(t, kvstore.NewMemory())

	require.NoError(t, u.BeginTransaction(ctx))
	widgets, err := Repo[widget](ctx, u)
	require.NoError(t, err)
	require.True(t, widgets.InTransaction())

	_, err = widgets.Add(ctx, widget{WID: uuid.New(), Name: "temp"})
	require.NoError(t, err)
	require.NoError(t, u.Rollback(ctx))

	all, err := widgets.GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestRepositoryJoiningTransactionHonoursContext(t *testing.T) {
	t.Parallel()

	u := newTestUoW(t, kvstore.NewMemory())
	require.NoError(t, u.BeginTransaction(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Repo[widget](cancelled, u)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, u.Status())

	widgets, err := Repo[widget](context.Background(), u)
	require.NoError(t, err)
	require.True(t, widgets.InTransaction())
}

func TestBeginFailureRollsBackStartedRepositories(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &faultStore{Store: kvstore.NewMemory(), exportRoot: "posvault/gadget"}
	u := newTestUoW(t, store)
	widgets, gadgets := mustRepos(t, u)

	err := u.BeginTransaction(ctx)
	require.ErrorIs(t, err, kvstore.ErrAccess)
	require.False(t, u.HasActiveTransaction())
	require.False(t, widgets.InTransaction())
	require.False(t, gadgets.InTransaction())
}

func TestRollbackFailureIsReportedAndRetryable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &faultStore{Store: kvstore.NewMemory()}
	u := newTestUoW(t, store)
	widgets, gadgets := mustRepos(t, u)

	require.NoError(t, u.BeginTransaction(ctx))
	_, err := widgets.Add(ctx, widget{WID: uuid.New(), Name: "w"})
	require.NoError(t, err)
	_, err = gadgets.Add(ctx, gadget{GID: uuid.New(), Label: "g"})
	require.NoError(t, err)

	store.importRoot = "posvault/Widgets"
	err = u.Rollback(ctx)
	require.ErrorIs(t, err, kvstore.ErrAccess)
	require.True(t, u.HasActiveTransaction())
	require.True(t, widgets.InTransaction())
	require.False(t, gadgets.InTransaction())

	store.importRoot = ""
	require.NoError(t, u.Rollback(ctx))
	require.False(t, u.HasActiveTransaction())
	all, err := widgets.GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestSaveChangesCountsAndResets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	u := newTestUoW(t, kvstore.NewMemory())
	widgets, gadgets := mustRepos(t, u)

	w := widget{WID: uuid.New(), Name: "a"}
	_, err := widgets.Add(ctx, w)
	require.NoError(t, err)
	_, err = gadgets.Add(ctx, gadget{GID: uuid.New(), Label: "b"})
	require.NoError(t, err)
	require.NoError(t, widgets.Delete(ctx, w.WID))
	_, err = widgets.Add(ctx, widget{})
	require.Error(t, err)

	n, err := u.SaveChanges(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = u.SaveChanges(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestChangeLogAccumulatesAcrossTypes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := changelog.New()
	u := newTestUoW(t, kvstore.NewMemory(), WithChangeLog(log))
	widgets, gadgets := mustRepos(t, u)

	_, err := widgets.Add(ctx, widget{WID: uuid.New(), Name: "a"})
	require.NoError(t, err)
	_, err = gadgets.Add(ctx, gadget{GID: uuid.New(), Label: "b"})
	require.NoError(t, err)

	entries := u.ChangeLog()
	require.Len(t, entries, 2)
	require.Equal(t, "widget", entries[0].EntityType)
	require.Equal(t, "gadget", entries[1].EntityType)
	require.Equal(t, "tester", entries[1].Actor)
	require.True(t, u.VerifyChangeLog().Valid)
	require.Equal(t, 2, log.Len())

	u.ClearChangeLog()
	require.Empty(t, u.ChangeLog())
}

func TestCloseWithOpenTransactionLogsAndRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	store := kvstore.NewMemory()
	u := newTestUoW(t, store, WithLogger(logger))
	widgets, _ := mustRepos(t, u)

	require.NoError(t, u.BeginTransaction(ctx))
	w := widget{WID: uuid.New(), Name: "uncommitted"}
	_, err := widgets.Add(ctx, w)
	require.NoError(t, err)

	require.NoError(t, u.Close(ctx))
	require.Contains(t, buf.String(), "open transaction")
	require.True(t, strings.Contains(buf.String(), `"level":"ERROR"`))

	_, ok, err := store.Get(ctx, kvstore.Join("posvault/Widgets", w.WID.String()))
	require.NoError(t, err)
	require.False(t, ok)

	require.Empty(t, u.ChangeLog())
	require.NoError(t, u.Close(ctx))
	_, err = Repo[widget](ctx, u)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, u.BeginTransaction(ctx), ErrClosed)
	_, err = u.SaveChanges(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	_, err := New(Config{BasePath: "/abs"}, kvstore.NewMemory(), c)
	require.ErrorIs(t, err, kvstore.ErrInvalidPath)

	_, err = New(testConfig(), nil, c)
	require.Error(t, err)
}
