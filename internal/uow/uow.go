// Package uow coordinates the repositories of one editing session: it
// creates them lazily, fans transactions out to them and collects their
// change log.
package uow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amanthanvi/posvault/internal/changelog"
	"github.com/amanthanvi/posvault/internal/codec"
	"github.com/amanthanvi/posvault/internal/kvstore"
	"github.com/amanthanvi/posvault/internal/repository"
)

var ErrClosed = errors.New("uow: unit of work is closed")

// Config maps entity type tags to subtrees below BasePath. Types without an
// entry use their tag as subtree name.
type Config struct {
	BasePath  string
	Subtrees  map[string]string
	Actor     string
	CacheSize int
}

func (c Config) rootFor(typeTag string) string {
	sub := c.Subtrees[typeTag]
	if sub == "" {
		sub = typeTag
	}
	return kvstore.Join(c.BasePath, sub)
}

type Option func(*UnitOfWork)

func WithLogger(logger *slog.Logger) Option {
	return func(u *UnitOfWork) {
		if logger != nil {
			u.logger = logger
		}
	}
}

func WithChangeLog(log *changelog.Log) Option {
	return func(u *UnitOfWork) {
		if log != nil {
			u.log = log
		}
	}
}

// participant is the type-erased view of a repository.
type participant interface {
	TypeTag() string
	Root() string
	Skipped() int
	InTransaction() bool
	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}

// UnitOfWork is not safe for concurrent use.
type UnitOfWork struct {
	cfg    Config
	store  kvstore.Store
	codec  *codec.Codec
	logger *slog.Logger
	log    *changelog.Log

	repos     map[string]participant
	order     []string
	active    bool
	mutations int
	closed    bool
}

// New does not take ownership of store or c; the caller closes them after
// Close.
func New(cfg Config, store kvstore.Store, c *codec.Codec, opts ...Option) (*UnitOfWork, error) {
	if store == nil || c == nil {
		return nil, fmt.Errorf("new unit of work: store and codec are required")
	}
	if err := kvstore.ValidatePath(cfg.BasePath); err != nil {
		return nil, fmt.Errorf("new unit of work: base path: %w", err)
	}
	u := &UnitOfWork{
		cfg:    cfg,
		store:  store,
		codec:  c,
		logger: slog.Default(),
		log:    changelog.New(),
		repos:  map[string]participant{},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Repo returns the session's repository for T, creating it on first use.
// A repository created while a transaction is active joins it; ctx bounds
// the snapshot it takes to do so.
func Repo[T repository.Entity](ctx context.Context, u *UnitOfWork) (*repository.Repository[T], error) {
	if u.closed {
		return nil, ErrClosed
	}
	var zero T
	tag := zero.TypeTag()
	if existing, ok := u.repos[tag]; ok {
		repo, ok := existing.(*repository.Repository[T])
		if !ok {
			return nil, fmt.Errorf("repository %s: type tag already bound to %T", tag, existing)
		}
		return repo, nil
	}

	cacheSize := u.cfg.CacheSize
	if cacheSize == 0 {
		cacheSize = repository.DefaultCacheSize
	}
	if cacheSize < 0 {
		cacheSize = 0
	}
	repo, err := repository.New[T](u.store, u.codec, u.cfg.rootFor(tag),
		repository.WithLogger(u.logger),
		repository.WithCacheSize(cacheSize),
		repository.WithChangeLog(u.log, u.cfg.Actor),
		repository.WithMutationHook(func() { u.mutations++ }),
	)
	if err != nil {
		return nil, err
	}
	if u.active {
		if err := repo.BeginTransaction(ctx); err != nil {
			return nil, fmt.Errorf("repository %s: join transaction: %w", tag, err)
		}
	}
	u.repos[tag] = repo
	u.order = append(u.order, tag)
	u.logger.Debug("repository created", "type", tag, "root", repo.Root())
	return repo, nil
}

// RootFor returns the subtree path that holds typeTag's records.
func (u *UnitOfWork) RootFor(typeTag string) string {
	return u.cfg.rootFor(typeTag)
}

func (u *UnitOfWork) participants() []participant {
	out := make([]participant, 0, len(u.order))
	for _, tag := range u.order {
		out = append(out, u.repos[tag])
	}
	return out
}

func (u *UnitOfWork) HasActiveTransaction() bool {
	return u.active
}

// BeginTransaction begins on every repository created so far, in creation
// order. If one fails, those already begun are rolled back.
func (u *UnitOfWork) BeginTransaction(ctx context.Context) error {
	if u.closed {
		return ErrClosed
	}
	if u.active {
		return fmt.Errorf("begin transaction: %w", repository.ErrTransactionAlreadyActive)
	}
	parts := u.participants()
	for i, p := range parts {
		if err := p.BeginTransaction(ctx); err != nil {
			var undo []error
			for j := i - 1; j >= 0; j-- {
				if rbErr := parts[j].RollbackTransaction(ctx); rbErr != nil {
					undo = append(undo, rbErr)
				}
			}
			return fmt.Errorf("begin transaction: %w", errors.Join(append([]error{err}, undo...)...))
		}
	}
	u.active = true
	u.logger.DebugContext(ctx, "unit of work transaction started", "repositories", len(parts))
	return nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.closed {
		return ErrClosed
	}
	if !u.active {
		return fmt.Errorf("commit: %w", repository.ErrNoActiveTransaction)
	}
	var errs []error
	for _, p := range u.participants() {
		if p.InTransaction() {
			if err := p.CommitTransaction(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	u.active = false
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	u.logger.DebugContext(ctx, "unit of work transaction committed")
	return nil
}

// Rollback restores every repository and is a no-op when no transaction is
// active. Failures are joined; repositories that failed stay active and
// keep their snapshots, so Rollback can be called again.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.closed {
		return ErrClosed
	}
	if !u.active {
		return nil
	}
	var errs []error
	stillActive := false
	for _, p := range u.participants() {
		if err := p.RollbackTransaction(ctx); err != nil {
			errs = append(errs, err)
		}
		if p.InTransaction() {
			stillActive = true
		}
	}
	u.active = stillActive
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	u.logger.DebugContext(ctx, "unit of work transaction rolled back")
	return nil
}

// SaveChanges returns the number of writes since the previous call and
// resets the counter. Writes are already durable when they return.
func (u *UnitOfWork) SaveChanges(ctx context.Context) (int, error) {
	if u.closed {
		return 0, ErrClosed
	}
	n := u.mutations
	u.mutations = 0
	u.logger.DebugContext(ctx, "changes saved", "count", n)
	return n, nil
}

func (u *UnitOfWork) ChangeLog() []changelog.Entry {
	return u.log.Entries()
}

func (u *UnitOfWork) ClearChangeLog() {
	u.log.Clear()
}

func (u *UnitOfWork) VerifyChangeLog() changelog.VerifyResult {
	return u.log.Verify()
}

type RepoStatus struct {
	TypeTag       string
	Root          string
	InTransaction bool
	Skipped       int
}

// Status describes the repositories created so far, in creation order.
func (u *UnitOfWork) Status() []RepoStatus {
	out := make([]RepoStatus, 0, len(u.order))
	for _, p := range u.participants() {
		out = append(out, RepoStatus{
			TypeTag:       p.TypeTag(),
			Root:          p.Root(),
			InTransaction: p.InTransaction(),
			Skipped:       p.Skipped(),
		})
	}
	return out
}

// Close releases the repositories and the change log. An open transaction
// is a caller bug: it is logged and rolled back, and the rollback error is
// returned. Close is idempotent.
func (u *UnitOfWork) Close(ctx context.Context) error {
	if u.closed {
		return nil
	}
	var err error
	if u.active {
		u.logger.ErrorContext(ctx, "unit of work closed with an open transaction; rolling back",
			"repositories", len(u.order),
		)
		err = u.Rollback(ctx)
	}
	u.repos = nil
	u.order = nil
	u.active = false
	u.log.Clear()
	u.closed = true
	return err
}
