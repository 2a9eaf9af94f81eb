package repository

import (
	"context"
	"fmt"

	"github.com/amanthanvi/posvault/internal/changelog"
	"github.com/google/uuid"
)

// Add stores a new entity. It never overwrites: an existing id fails with
// ErrDuplicate.
func (r *Repository[T]) Add(ctx context.Context, entity T) (T, error) {
	var zero T
	id := entity.ID()
	if id == uuid.Nil {
		return zero, fmt.Errorf("add %s: %w: nil id", r.typeTag, ErrInvalidArgument)
	}
	if err := entity.Validate(); err != nil {
		return zero, fmt.Errorf("add %s %s: %w: %w", r.typeTag, id, ErrValidation, err)
	}

	path := r.path(id)
	_, exists, err := r.store.Get(ctx, path)
	if err != nil {
		return zero, fmt.Errorf("add %s %s: %w", r.typeTag, id, err)
	}
	if exists {
		return zero, fmt.Errorf("add %s %s: %w", r.typeTag, id, ErrDuplicate)
	}

	raw, err := r.encode(entity)
	if err != nil {
		return zero, fmt.Errorf("add %s %s: %w", r.typeTag, id, err)
	}
	if err := r.store.Set(ctx, path, raw); err != nil {
		return zero, fmt.Errorf("add %s %s: %w", r.typeTag, id, err)
	}
	r.remember(path, raw, entity)
	r.recordChange(ctx, changelog.OpCreated, id, nil, &entity)
	return entity, nil
}

// Update overwrites an existing entity. The change log entry carries the
// stored version as Before; when that version cannot be decoded the entry
// has no Before and the write still goes through.
func (r *Repository[T]) Update(ctx context.Context, entity T) (T, error) {
	var zero T
	id := entity.ID()
	if id == uuid.Nil {
		return zero, fmt.Errorf("update %s: %w: nil id", r.typeTag, ErrInvalidArgument)
	}
	if err := entity.Validate(); err != nil {
		return zero, fmt.Errorf("update %s %s: %w: %w", r.typeTag, id, ErrValidation, err)
	}

	path := r.path(id)
	current, exists, err := r.store.Get(ctx, path)
	if err != nil {
		return zero, fmt.Errorf("update %s %s: %w", r.typeTag, id, err)
	}
	if !exists {
		return zero, fmt.Errorf("update %s %s: %w", r.typeTag, id, ErrNotFound)
	}
	var before *T
	if prior, err := r.decode(path, current, id); err == nil {
		before = &prior
	} else {
		r.opts.logger.WarnContext(ctx, "overwriting undecodable record",
			"type", r.typeTag,
			"path", path,
			"error", err,
		)
	}

	raw, err := r.encode(entity)
	if err != nil {
		return zero, fmt.Errorf("update %s %s: %w", r.typeTag, id, err)
	}
	if err := r.store.Set(ctx, path, raw); err != nil {
		return zero, fmt.Errorf("update %s %s: %w", r.typeTag, id, err)
	}
	r.remember(path, raw, entity)
	r.recordChange(ctx, changelog.OpUpdated, id, before, &entity)
	return entity, nil
}

// Delete removes the entity with id after it agrees to be deleted. A
// record that cannot be decoded is removed without the deletable check and
// its change log entry has no Before.
func (r *Repository[T]) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("delete %s: %w: nil id", r.typeTag, ErrInvalidArgument)
	}
	path := r.path(id)
	raw, exists, err := r.store.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", r.typeTag, id, err)
	}
	if !exists {
		return fmt.Errorf("delete %s %s: %w", r.typeTag, id, ErrNotFound)
	}
	var before *T
	if prior, err := r.decode(path, raw, id); err == nil {
		if err := prior.CheckDeletable(); err != nil {
			return fmt.Errorf("delete %s %s: %w: %w", r.typeTag, id, ErrNotDeletable, err)
		}
		before = &prior
	} else {
		r.opts.logger.WarnContext(ctx, "deleting undecodable record",
			"type", r.typeTag,
			"path", path,
			"error", err,
		)
	}

	if err := r.store.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete %s %s: %w", r.typeTag, id, err)
	}
	if r.cache != nil {
		r.cache.Remove(path)
	}
	r.recordChange(ctx, changelog.OpDeleted, id, before, nil)
	return nil
}

// AddRange applies Add to each entity in order and stops at the first
// failure. It returns how many were applied. Entities applied before the
// failure stay unless the caller rolls back a transaction.
func (r *Repository[T]) AddRange(ctx context.Context, entities []T) (int, error) {
	for i, entity := range entities {
		if _, err := r.Add(ctx, entity); err != nil {
			return i, fmt.Errorf("add range at %d: %w", i, err)
		}
	}
	return len(entities), nil
}

func (r *Repository[T]) UpdateRange(ctx context.Context, entities []T) (int, error) {
	for i, entity := range entities {
		if _, err := r.Update(ctx, entity); err != nil {
			return i, fmt.Errorf("update range at %d: %w", i, err)
		}
	}
	return len(entities), nil
}

func (r *Repository[T]) DeleteRange(ctx context.Context, ids []uuid.UUID) (int, error) {
	for i, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			return i, fmt.Errorf("delete range at %d: %w", i, err)
		}
	}
	return len(ids), nil
}
