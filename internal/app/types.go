// Package app implements the configuration use cases on top of a unit of
// work: one service per record type plus transfer and health checks.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amanthanvi/posvault/internal/uow"
)

var (
	ErrValidation    = errors.New("app: validation failed")
	ErrDuplicateName = errors.New("app: duplicate name")
	ErrReadOnly      = errors.New("app: setting is read-only")
)

type CreateDatabaseRequest struct {
	Name               string
	Server             string
	Port               int
	Database           string
	Username           string
	Password           string
	IntegratedSecurity bool
	TimeoutSeconds     int
	MakeDefault        bool
}

type CreatePrinterRequest struct {
	Name         string
	Kind         string
	Connection   string
	Address      string
	Port         int
	PaperWidthMM int
	Disabled     bool
}

type ListRequest struct {
	Search string
	// Page and PageSize are 1-based; a zero PageSize returns everything.
	Page     int
	PageSize int
}

type ListResult[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
	Page       int `json:"page,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

func requireName(kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: %s name is required", ErrValidation, kind)
	}
	return name, nil
}

// inTransaction runs fn inside a unit of work transaction and rolls back
// when fn fails.
func inTransaction(ctx context.Context, u *uow.UnitOfWork, fn func() error) error {
	if err := u.BeginTransaction(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := u.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return u.Commit(ctx)
}
