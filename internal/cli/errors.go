package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/amanthanvi/posvault/internal/app"
	"github.com/amanthanvi/posvault/internal/config"
	"github.com/amanthanvi/posvault/internal/crypto"
	"github.com/amanthanvi/posvault/internal/kvstore"
	"github.com/amanthanvi/posvault/internal/repository"
)

const (
	ExitCodeSuccess           = 0
	ExitCodeGeneric           = 1
	ExitCodeUsage             = 2
	ExitCodeNotFound          = 3
	ExitCodePermission        = 4
	ExitCodeAuthFailed        = 5
	ExitCodeDependencyMissing = 6
	ExitCodeIO                = 7
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ExitError) ExitCode() int {
	if e == nil {
		return ExitCodeGeneric
	}
	return e.Code
}

func asExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

func mapCommandError(err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return asExitError(ExitCodeNotFound, err)
	case errors.Is(err, repository.ErrNotDeletable),
		errors.Is(err, app.ErrReadOnly):
		return asExitError(ExitCodePermission, err)
	case errors.Is(err, repository.ErrValidation),
		errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrInvalidArgument),
		errors.Is(err, app.ErrValidation),
		errors.Is(err, app.ErrDuplicateName),
		errors.Is(err, config.ErrInvalidConfig):
		return asExitError(ExitCodeUsage, err)
	case errors.Is(err, crypto.ErrPassphraseRequired),
		errors.Is(err, crypto.ErrCommitmentMismatch),
		errors.Is(err, crypto.ErrInvalidKeyFile):
		return asExitError(ExitCodeAuthFailed, err)
	case errors.Is(err, kvstore.ErrUnsupported):
		return asExitError(ExitCodeDependencyMissing, err)
	case errors.Is(err, kvstore.ErrAccess):
		return asExitError(ExitCodeIO, err)
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, os.ErrNotExist) {
		return asExitError(ExitCodeIO, err)
	}

	return asExitError(ExitCodeGeneric, err)
}

func usageErrorf(format string, args ...any) error {
	return &ExitError{
		Code: ExitCodeUsage,
		Err:  fmt.Errorf(format, args...),
	}
}
