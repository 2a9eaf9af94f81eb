package app

import (
	"context"
	"fmt"

	"github.com/amanthanvi/posvault/internal/debug"
	"github.com/amanthanvi/posvault/internal/domain"
	"github.com/amanthanvi/posvault/internal/kvstore"
	"github.com/amanthanvi/posvault/internal/repository"
	"github.com/amanthanvi/posvault/internal/uow"
	"github.com/google/uuid"
)

type DoctorService struct {
	u     *uow.UnitOfWork
	store kvstore.Store
}

func NewDoctorService(u *uow.UnitOfWork, store kvstore.Store) *DoctorService {
	return &DoctorService{u: u, store: store}
}

// Run checks store access and record integrity for every record type. A
// failed check is reported in the result, not as an error.
func (s *DoctorService) Run(ctx context.Context) []debug.Check {
	checks := []debug.Check{}
	for _, tag := range transferTypes {
		root := s.u.RootFor(tag)
		if s.store.HasAccess(ctx, root) {
			checks = append(checks, debug.Check{Name: "access:" + tag, OK: true, Message: root})
		} else {
			checks = append(checks, debug.Check{Name: "access:" + tag, OK: false, Message: "no access to " + root})
		}
	}

	checks = append(checks,
		integrityCheck(ctx, s.u, uow.Repo[domain.DatabaseProfile]),
		integrityCheck(ctx, s.u, uow.Repo[domain.PrinterProfile]),
		integrityCheck(ctx, s.u, uow.Repo[domain.SystemSetting]),
	)

	verify := s.u.VerifyChangeLog()
	msg := fmt.Sprintf("%d entries", verify.EntryCount)
	if !verify.Valid {
		msg += ": " + verify.Error
	}
	checks = append(checks, debug.Check{Name: "changelog", OK: verify.Valid, Message: msg})
	return checks
}

// PurgeCorrupt removes every record that cannot be decoded, inside one
// transaction, and returns how many were removed.
func (s *DoctorService) PurgeCorrupt(ctx context.Context) (int, error) {
	if _, err := uow.Repo[domain.DatabaseProfile](ctx, s.u); err != nil {
		return 0, err
	}
	if _, err := uow.Repo[domain.PrinterProfile](ctx, s.u); err != nil {
		return 0, err
	}
	if _, err := uow.Repo[domain.SystemSetting](ctx, s.u); err != nil {
		return 0, err
	}

	removed := 0
	err := inTransaction(ctx, s.u, func() error {
		for _, purge := range []func() (int, error){
			func() (int, error) { return purgeCorrupt(ctx, s.u, s.store, uow.Repo[domain.DatabaseProfile]) },
			func() (int, error) { return purgeCorrupt(ctx, s.u, s.store, uow.Repo[domain.PrinterProfile]) },
			func() (int, error) { return purgeCorrupt(ctx, s.u, s.store, uow.Repo[domain.SystemSetting]) },
		} {
			n, err := purge()
			removed += n
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// purgeCorrupt deletes undecodable records through the repository so they
// reach the change log. Leaves whose name is not a record id are removed
// from the store directly.
func purgeCorrupt[T repository.Entity](ctx context.Context, u *uow.UnitOfWork, store kvstore.Store, open func(context.Context, *uow.UnitOfWork) (*repository.Repository[T], error)) (int, error) {
	repo, err := open(ctx, u)
	if err != nil {
		return 0, err
	}
	bad, err := repo.Corrupt(ctx)
	if err != nil {
		return 0, err
	}
	for i, name := range bad {
		if id, parseErr := uuid.Parse(name); parseErr == nil {
			err = repo.Delete(ctx, id)
		} else {
			err = store.Delete(ctx, kvstore.Join(repo.Root(), name))
		}
		if err != nil {
			return i, fmt.Errorf("purge %s %s: %w", repo.TypeTag(), name, err)
		}
	}
	return len(bad), nil
}

func integrityCheck[T repository.Entity](ctx context.Context, u *uow.UnitOfWork, open func(context.Context, *uow.UnitOfWork) (*repository.Repository[T], error)) debug.Check {
	var zero T
	name := "records:" + zero.TypeTag()
	repo, err := open(ctx, u)
	if err != nil {
		return debug.Check{Name: name, OK: false, Message: err.Error()}
	}
	bad, err := repo.Corrupt(ctx)
	if err != nil {
		return debug.Check{Name: name, OK: false, Message: err.Error()}
	}
	if len(bad) > 0 {
		return debug.Check{Name: name, OK: false, Message: fmt.Sprintf("%d undecodable: %v", len(bad), bad)}
	}
	return debug.Check{Name: name, OK: true, Message: "all records decode"}
}
