package repository

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/amanthanvi/posvault/internal/changelog"
	"github.com/amanthanvi/posvault/internal/codec"
	"github.com/amanthanvi/posvault/internal/kvstore"
	"github.com/amanthanvi/posvault/internal/spec"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 256

// Entity is the persistence contract. Methods must work on the zero value
// of the type, because the repository reads TypeTag from it.
type Entity interface {
	spec.Identified
	TypeTag() string
	Validate() error
	CheckDeletable() error
}

// ChangeSink receives one entry per successful mutation.
type ChangeSink interface {
	Append(entry changelog.Entry) (changelog.Entry, error)
}

type Option func(*options)

type options struct {
	logger     *slog.Logger
	cacheSize  int
	sink       ChangeSink
	actor      string
	onMutation func()
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCacheSize sets the decoded record cache size; zero disables it.
func WithCacheSize(size int) Option {
	return func(o *options) { o.cacheSize = size }
}

func WithChangeLog(sink ChangeSink, actor string) Option {
	return func(o *options) {
		o.sink = sink
		o.actor = actor
	}
}

// WithMutationHook registers fn to run after every successful write.
func WithMutationHook(fn func()) Option {
	return func(o *options) { o.onMutation = fn }
}

type cachedRecord[T any] struct {
	digest [sha256.Size]byte
	record T
}

// Repository is bound to one entity type and one subtree. It is not safe
// for concurrent use.
type Repository[T Entity] struct {
	store   kvstore.Store
	codec   *codec.Codec
	root    string
	typeTag string
	opts    options
	cache   *lru.Cache[string, cachedRecord[T]]

	state    TxState
	snapshot *kvstore.Snapshot
	skipped  int
}

// New binds a repository for T to the subtree at root and registers T's
// type tag with c.
func New[T Entity](store kvstore.Store, c *codec.Codec, root string, opts ...Option) (*Repository[T], error) {
	var zero T
	typeTag := zero.TypeTag()
	if store == nil || c == nil {
		return nil, fmt.Errorf("new repository %s: %w: store and codec are required", typeTag, ErrInvalidArgument)
	}
	if typeTag == "" {
		return nil, fmt.Errorf("new repository: %w: empty type tag", ErrInvalidArgument)
	}
	if err := kvstore.ValidatePath(root); err != nil {
		return nil, fmt.Errorf("new repository %s: %w", typeTag, err)
	}

	o := options{logger: slog.Default(), cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Repository[T]{
		store:   store,
		codec:   c,
		root:    root,
		typeTag: typeTag,
		opts:    o,
	}
	if o.cacheSize > 0 {
		cache, err := lru.New[string, cachedRecord[T]](o.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("new repository %s: init cache: %w", typeTag, err)
		}
		r.cache = cache
	}
	c.Register(typeTag)
	return r, nil
}

func (r *Repository[T]) TypeTag() string { return r.typeTag }

func (r *Repository[T]) Root() string { return r.root }

// Skipped reports how many undecodable records GetAll has skipped over the
// lifetime of the repository.
func (r *Repository[T]) Skipped() int { return r.skipped }

func (r *Repository[T]) path(id uuid.UUID) string {
	return kvstore.Join(r.root, id.String())
}

// GetByID returns the entity with id. A missing id is reported through the
// bool, not as an error; a corrupt record fails with ErrCodec.
func (r *Repository[T]) GetByID(ctx context.Context, id uuid.UUID) (T, bool, error) {
	var zero T
	raw, ok, err := r.store.Get(ctx, r.path(id))
	if err != nil {
		return zero, false, fmt.Errorf("get %s %s: %w", r.typeTag, id, err)
	}
	if !ok {
		return zero, false, nil
	}
	record, err := r.decode(r.path(id), raw, id)
	if err != nil {
		return zero, false, fmt.Errorf("get %s %s: %w", r.typeTag, id, err)
	}
	return record, true, nil
}

func (r *Repository[T]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok, err := r.store.Get(ctx, r.path(id))
	if err != nil {
		return false, fmt.Errorf("exists %s %s: %w", r.typeTag, id, err)
	}
	return ok, nil
}

// GetAll returns every decodable entity sorted by id. Records that fail to
// decode are logged, counted in Skipped and left out.
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	names, err := r.store.ListChildren(ctx, r.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.typeTag, err)
	}

	out := make([]T, 0, len(names))
	for _, name := range names {
		path := kvstore.Join(r.root, name)
		id, err := uuid.Parse(name)
		if err != nil {
			r.skip(ctx, path, fmt.Errorf("%w: leaf name is not an id", ErrCodec))
			continue
		}
		raw, ok, err := r.store.Get(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", r.typeTag, err)
		}
		if !ok {
			continue
		}
		record, err := r.decode(path, raw, id)
		if err != nil {
			r.skip(ctx, path, err)
			continue
		}
		out = append(out, record)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ID(), out[j].ID()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return out, nil
}

// Corrupt lists the ids of records that exist but cannot be decoded.
func (r *Repository[T]) Corrupt(ctx context.Context) ([]string, error) {
	names, err := r.store.ListChildren(ctx, r.root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.typeTag, err)
	}
	bad := []string{}
	for _, name := range names {
		path := kvstore.Join(r.root, name)
		id, err := uuid.Parse(name)
		if err != nil {
			bad = append(bad, name)
			continue
		}
		raw, ok, err := r.store.Get(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.typeTag, err)
		}
		if !ok {
			continue
		}
		if _, err := r.decode(path, raw, id); err != nil {
			bad = append(bad, name)
		}
	}
	return bad, nil
}

func (r *Repository[T]) skip(ctx context.Context, path string, err error) {
	r.skipped++
	r.opts.logger.WarnContext(ctx, "skipping undecodable record",
		"type", r.typeTag,
		"path", path,
		"error", err,
	)
}

func (r *Repository[T]) decode(path string, raw []byte, id uuid.UUID) (T, error) {
	if r.cache == nil {
		return codec.DecodeRecord[T](r.codec, raw, r.typeTag, id)
	}
	digest := sha256.Sum256(raw)
	if hit, ok := r.cache.Get(path); ok && hit.digest == digest {
		return hit.record, nil
	}
	record, err := codec.DecodeRecord[T](r.codec, raw, r.typeTag, id)
	if err != nil {
		r.cache.Remove(path)
		return record, err
	}
	r.cache.Add(path, cachedRecord[T]{digest: digest, record: record})
	return record, nil
}

func (r *Repository[T]) encode(entity T) ([]byte, error) {
	return codec.EncodeRecord(r.codec, r.typeTag, entity.ID(), entity)
}

func (r *Repository[T]) remember(path string, raw []byte, entity T) {
	if r.cache == nil {
		return
	}
	r.cache.Add(path, cachedRecord[T]{digest: sha256.Sum256(raw), record: entity})
}

func (r *Repository[T]) recordChange(ctx context.Context, op changelog.Operation, id uuid.UUID, before, after *T) {
	if r.opts.onMutation != nil {
		r.opts.onMutation()
	}
	if r.opts.sink == nil {
		return
	}
	entry := changelog.Entry{
		EntityType: r.typeTag,
		EntityID:   id,
		Operation:  op,
		Actor:      r.opts.actor,
	}
	var err error
	if entry.Before, err = payload(before); err == nil {
		entry.After, err = payload(after)
	}
	if err == nil {
		_, err = r.opts.sink.Append(entry)
	}
	if err != nil {
		r.opts.logger.ErrorContext(ctx, "change log append failed",
			"type", r.typeTag,
			"id", id.String(),
			"operation", string(op),
			"error", err,
		)
	}
}

func payload[T any](v *T) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(*v)
	if err != nil {
		return nil, fmt.Errorf("marshal change payload: %w", err)
	}
	return raw, nil
}
