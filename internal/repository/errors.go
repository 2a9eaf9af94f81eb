package repository

import (
	"errors"
	"fmt"

	"github.com/amanthanvi/posvault/internal/codec"
	"github.com/amanthanvi/posvault/internal/kvstore"
)

var (
	ErrNotFound        = errors.New("repository: not found")
	ErrDuplicate       = errors.New("repository: duplicate id")
	ErrValidation      = errors.New("repository: validation failed")
	ErrNotDeletable    = errors.New("repository: entity cannot be deleted")
	ErrInvalidArgument = errors.New("repository: invalid argument")

	ErrTransactionState         = errors.New("repository: invalid transaction state")
	ErrTransactionAlreadyActive = fmt.Errorf("%w: transaction already active", ErrTransactionState)
	ErrNoActiveTransaction      = fmt.Errorf("%w: no active transaction", ErrTransactionState)

	// ErrCodec and ErrAccess are re-exported so callers of this package can
	// classify every failure without importing the lower layers.
	ErrCodec  = codec.ErrCodec
	ErrAccess = kvstore.ErrAccess
)
