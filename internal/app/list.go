package app

import (
	"context"
	"fmt"

	"github.com/amanthanvi/posvault/internal/repository"
	"github.com/amanthanvi/posvault/internal/spec"
)

// listWith evaluates query against repo, paging when req asks for it.
func listWith[T repository.Entity](ctx context.Context, repo *repository.Repository[T], query spec.Specification[T], req ListRequest) (ListResult[T], error) {
	if req.PageSize < 0 || req.Page < 0 {
		return ListResult[T]{}, fmt.Errorf("%w: page and page size must not be negative", ErrValidation)
	}
	total, err := repo.Count(ctx, query)
	if err != nil {
		return ListResult[T]{}, err
	}
	if req.PageSize == 0 {
		items, err := repo.Find(ctx, query)
		if err != nil {
			return ListResult[T]{}, err
		}
		return ListResult[T]{Items: items, TotalCount: total}, nil
	}

	page := req.Page
	if page == 0 {
		page = 1
	}
	totalPages := repository.PageCount(total, req.PageSize)
	items := []T{}
	if page <= totalPages {
		items, err = repo.Find(ctx, query.Page((page-1)*req.PageSize, req.PageSize))
		if err != nil {
			return ListResult[T]{}, err
		}
	}
	return ListResult[T]{
		Items:      items,
		TotalCount: total,
		Page:       page,
		TotalPages: totalPages,
	}, nil
}
