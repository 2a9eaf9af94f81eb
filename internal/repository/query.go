package repository

import (
	"context"
	"fmt"

	"github.com/amanthanvi/posvault/internal/spec"
)

// Page is one slice of a paged listing.
type Page[T any] struct {
	Items       []T
	TotalCount  int
	PageNumber  int
	PageSize    int
	TotalPages  int
	HasPrevious bool
	HasNext     bool
}

func (r *Repository[T]) Find(ctx context.Context, s spec.Specification[T]) ([]T, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("find %s: %w: %w", r.typeTag, ErrInvalidArgument, err)
	}
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", r.typeTag, err)
	}
	out, err := spec.Evaluate(all, s)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w: %w", r.typeTag, ErrInvalidArgument, err)
	}
	return out, nil
}

// FindOne returns the first entity s yields, after ordering and paging.
func (r *Repository[T]) FindOne(ctx context.Context, s spec.Specification[T]) (T, bool, error) {
	var zero T
	out, err := r.Find(ctx, s)
	if err != nil {
		return zero, false, err
	}
	if len(out) == 0 {
		return zero, false, nil
	}
	return out[0], true, nil
}

// Count ignores paging on s.
func (r *Repository[T]) Count(ctx context.Context, s spec.Specification[T]) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, fmt.Errorf("count %s: %w: %w", r.typeTag, ErrInvalidArgument, err)
	}
	all, err := r.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.typeTag, err)
	}
	return spec.Count(all, s), nil
}

// GetPaged returns page pageNumber (1-based) of the id-ordered population.
func (r *Repository[T]) GetPaged(ctx context.Context, pageNumber, pageSize int) (Page[T], error) {
	if pageNumber < 1 || pageSize < 1 {
		return Page[T]{}, fmt.Errorf("page %s: %w: page=%d size=%d", r.typeTag, ErrInvalidArgument, pageNumber, pageSize)
	}
	all, err := r.GetAll(ctx)
	if err != nil {
		return Page[T]{}, fmt.Errorf("page %s: %w", r.typeTag, err)
	}

	total := len(all)
	totalPages := PageCount(total, pageSize)
	items := []T{}
	if pageNumber <= totalPages {
		items, err = spec.Evaluate(all, spec.All[T]().Page((pageNumber-1)*pageSize, pageSize))
		if err != nil {
			return Page[T]{}, fmt.Errorf("page %s: %w: %w", r.typeTag, ErrInvalidArgument, err)
		}
	}
	return Page[T]{
		Items:       items,
		TotalCount:  total,
		PageNumber:  pageNumber,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		HasPrevious: pageNumber > 1,
		HasNext:     pageNumber < totalPages,
	}, nil
}

// PageCount is ceil(total/pageSize) without overflowing for large sizes.
func PageCount(total, pageSize int) int {
	if pageSize < 1 {
		return 0
	}
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	return pages
}
