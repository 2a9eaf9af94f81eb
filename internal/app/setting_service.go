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
)

// BuiltinSettings are created read-only by Seed.
var BuiltinSettings = []domain.SystemSetting{
	{Key: "store.schema_version", Value: "1", Description: "configuration layout version", ReadOnly: true},
	{Key: "terminal.locale", Value: "en-US", Description: "display and receipt locale"},
}

type SettingService struct {
	u   *uow.UnitOfWork
	now func() time.Time
}

func NewSettingService(u *uow.UnitOfWork) *SettingService {
	return &SettingService{u: u, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SettingService) repo(ctx context.Context) (*repository.Repository[domain.SystemSetting], error) {
	return uow.Repo[domain.SystemSetting](ctx, s.u)
}

// Set creates or updates key. Read-only settings cannot be changed.
func (s *SettingService) Set(ctx context.Context, key, value, description string) (domain.SystemSetting, error) {
	key = strings.TrimSpace(key)
	repo, err := s.repo(ctx)
	if err != nil {
		return domain.SystemSetting{}, err
	}
	current, found, err := repo.GetByID(ctx, domain.SettingID(key))
	if err != nil {
		return domain.SystemSetting{}, fmt.Errorf("set setting %q: %w", key, err)
	}

	if !found {
		setting := domain.NewSystemSetting(key, value)
		setting.Description = description
		setting.UpdatedAt = s.now()
		if _, err := repo.Add(ctx, setting); err != nil {
			return domain.SystemSetting{}, fmt.Errorf("set setting %q: %w", key, err)
		}
		return setting, nil
	}

	if current.ReadOnly {
		return domain.SystemSetting{}, fmt.Errorf("set setting %q: %w", key, ErrReadOnly)
	}
	current.Value = value
	if description != "" {
		current.Description = description
	}
	current.UpdatedAt = s.now()
	if _, err := repo.Update(ctx, current); err != nil {
		return domain.SystemSetting{}, fmt.Errorf("set setting %q: %w", key, err)
	}
	return current, nil
}

func (s *SettingService) Get(ctx context.Context, key string) (domain.SystemSetting, error) {
	key = strings.TrimSpace(key)
	repo, err := s.repo(ctx)
	if err != nil {
		return domain.SystemSetting{}, err
	}
	setting, found, err := repo.GetByID(ctx, domain.SettingID(key))
	if err != nil {
		return domain.SystemSetting{}, fmt.Errorf("get setting %q: %w", key, err)
	}
	if !found {
		return domain.SystemSetting{}, fmt.Errorf("get setting %q: %w", key, repository.ErrNotFound)
	}
	return setting, nil
}

// List returns settings whose key starts with prefix, sorted by key.
func (s *SettingService) List(ctx context.Context, prefix string) ([]domain.SystemSetting, error) {
	repo, err := s.repo(ctx)
	if err != nil {
		return nil, err
	}
	query := spec.All[domain.SystemSetting]()
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		query = query.Where(func(st domain.SystemSetting) bool { return strings.HasPrefix(st.Key, prefix) })
	}
	out, err := repo.Find(ctx, query.OrderBy(spec.Key(func(st domain.SystemSetting) string { return st.Key })))
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return out, nil
}

func (s *SettingService) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	repo, err := s.repo(ctx)
	if err != nil {
		return err
	}
	if err := repo.Delete(ctx, domain.SettingID(key)); err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}
	return nil
}

// Seed adds the builtin settings that are missing and reports how many
// were added.
func (s *SettingService) Seed(ctx context.Context) (int, error) {
	repo, err := s.repo(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	err = inTransaction(ctx, s.u, func() error {
		for _, builtin := range BuiltinSettings {
			setting := builtin
			setting.SettingID = domain.SettingID(setting.Key)
			exists, err := repo.Exists(ctx, setting.SettingID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			setting.UpdatedAt = s.now()
			if _, err := repo.Add(ctx, setting); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed settings: %w", err)
	}
	return added, nil
}
