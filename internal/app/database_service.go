package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amanthanvi/posvault/internal/domain"
	"github.com/amanthanvi/posvault/internal/repository"
	"github.com/amanthanvi/posvault/internal/spec"
	"github.com/amanthanvi/posvault/internal/uow"
	"github.com/google/uuid"
)

type DatabaseService struct {
	u   *uow.UnitOfWork
	now func() time.Time
}

func NewDatabaseService(u *uow.UnitOfWork) *DatabaseService {
	return &DatabaseService{u: u, now: func() time.Time { return time.Now().UTC() }}
}

func (s *DatabaseService) repo(ctx context.Context) (*repository.Repository[domain.DatabaseProfile], error) {
	return uow.Repo[domain.DatabaseProfile](ctx, s.u)
}

func profileNamed(name string) spec.Specification[domain.DatabaseProfile] {
	return spec.Where(func(p domain.DatabaseProfile) bool { return strings.EqualFold(p.Name, name) })
}

func isDefaultProfile(p domain.DatabaseProfile) bool { return p.IsDefault }

// Create adds a profile. The first profile always becomes the default;
// MakeDefault moves the default flag inside one transaction.
func (s *DatabaseService) Create(ctx context.Context, req CreateDatabaseRequest) (domain.DatabaseProfile, error) {
	name, err := requireName("database profile", req.Name)
	if err != nil {
		return domain.DatabaseProfile{}, err
	}
	repo, err := s.repo(ctx)
	if err != nil {
		return domain.DatabaseProfile{}, err
	}
	if _, found, err := repo.FindOne(ctx, profileNamed(name)); err != nil {
		return domain.DatabaseProfile{}, fmt.Errorf("create database profile: %w", err)
	} else if found {
		return domain.DatabaseProfile{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	current, hasDefault, err := repo.FindOne(ctx, spec.Where(isDefaultProfile))
	if err != nil {
		return domain.DatabaseProfile{}, fmt.Errorf("create database profile: %w", err)
	}

	now := s.now()
	profile := domain.DatabaseProfile{
		ProfileID:          uuid.New(),
		Name:               name,
		Server:             strings.TrimSpace(req.Server),
		Port:               req.Port,
		Database:           strings.TrimSpace(req.Database),
		Username:           strings.TrimSpace(req.Username),
		Password:           req.Password,
		IntegratedSecurity: req.IntegratedSecurity,
		TimeoutSeconds:     req.TimeoutSeconds,
		IsDefault:          req.MakeDefault || !hasDefault,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = inTransaction(ctx, s.u, func() error {
		if hasDefault && profile.IsDefault {
			current.IsDefault = false
			current.UpdatedAt = now
			if _, err := repo.Update(ctx, current); err != nil {
				return err
			}
		}
		_, err := repo.Add(ctx, profile)
		return err
	})
	if err != nil {
		return domain.DatabaseProfile{}, fmt.Errorf("create database profile: %w", err)
	}
	return profile, nil
}

func (s *DatabaseService) Get(ctx context.Context, name string) (domain.DatabaseProfile, error) {
	name, err := requireName("database profile", name)
	if err != nil {
		return domain.DatabaseProfile{}, err
	}
	repo, err := s.repo(ctx)
	if err != nil {
		return domain.DatabaseProfile{}, err
	}
	profile, found, err := repo.FindOne(ctx, profileNamed(name))
	if err != nil {
		return domain.DatabaseProfile{}, fmt.Errorf("get database profile: %w", err)
	}
	if !found {
		return domain.DatabaseProfile{}, fmt.Errorf("get database profile %q: %w", name, repository.ErrNotFound)
	}
	return profile, nil
}

// Default returns the default profile, if any.
func (s *DatabaseService) Default(ctx context.Context) (domain.DatabaseProfile, bool, error) {
	repo, err := s.repo(ctx)
	if err != nil {
		return domain.DatabaseProfile{}, false, err
	}
	return repo.FindOne(ctx, spec.Where(isDefaultProfile))
}

func (s *DatabaseService) List(ctx context.Context, req ListRequest) (ListResult[domain.DatabaseProfile], error) {
	repo, err := s.repo(ctx)
	if err != nil {
		return ListResult[domain.DatabaseProfile]{}, err
	}
	query := spec.All[domain.DatabaseProfile]()
	if search := strings.ToLower(strings.TrimSpace(req.Search)); search != "" {
		query = query.Where(func(p domain.DatabaseProfile) bool {
			return strings.Contains(strings.ToLower(p.Name), search) ||
				strings.Contains(strings.ToLower(p.Server), search) ||
				strings.Contains(strings.ToLower(p.Database), search)
		})
	}
	query = query.OrderBy(spec.Key(func(p domain.DatabaseProfile) string { return strings.ToLower(p.Name) }))
	result, err := listWith(ctx, repo, query, req)
	if err != nil {
		return ListResult[domain.DatabaseProfile]{}, fmt.Errorf("list database profiles: %w", err)
	}
	return result, nil
}

// SetDefault moves the default flag to name.
func (s *DatabaseService) SetDefault(ctx context.Context, name string) (domain.DatabaseProfile, error) {
	target, err := s.Get(ctx, name)
	if err != nil {
		return domain.DatabaseProfile{}, err
	}
	if target.IsDefault {
		return target, nil
	}
	repo, err := s.repo(ctx)
	if err != nil {
		return domain.DatabaseProfile{}, err
	}
	current, hasDefault, err := repo.FindOne(ctx, spec.Where(isDefaultProfile))
	if err != nil {
		return domain.DatabaseProfile{}, fmt.Errorf("set default database profile: %w", err)
	}

	now := s.now()
	err = inTransaction(ctx, s.u, func() error {
		if hasDefault {
			current.IsDefault = false
			current.UpdatedAt = now
			if _, err := repo.Update(ctx, current); err != nil {
				return err
			}
		}
		target.IsDefault = true
		target.UpdatedAt = now
		_, err := repo.Update(ctx, target)
		return err
	})
	if err != nil {
		return domain.DatabaseProfile{}, fmt.Errorf("set default database profile: %w", err)
	}
	return target, nil
}

func (s *DatabaseService) Delete(ctx context.Context, name string) error {
	profile, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	repo, err := s.repo(ctx)
	if err != nil {
		return err
	}
	if err := repo.Delete(ctx, profile.ProfileID); err != nil {
		return fmt.Errorf("delete database profile: %w", err)
	}
	return nil
}
