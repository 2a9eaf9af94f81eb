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

const defaultPaperWidthMM = 80

type PrinterService struct {
	u   *uow.UnitOfWork
	now func() time.Time
}

func NewPrinterService(u *uow.UnitOfWork) *PrinterService {
	return &PrinterService{u: u, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PrinterService) repo(ctx context.Context) (*repository.Repository[domain.PrinterProfile], error) {
	return uow.Repo[domain.PrinterProfile](ctx, s.u)
}

func printerNamed(name string) spec.Specification[domain.PrinterProfile] {
	return spec.Where(func(p domain.PrinterProfile) bool { return strings.EqualFold(p.Name, name) })
}

func (s *PrinterService) Create(ctx context.Context, req CreatePrinterRequest) (domain.PrinterProfile, error) {
	name, err := requireName("printer", req.Name)
	if err != nil {
		return domain.PrinterProfile{}, err
	}
	repo, err := s.repo(ctx)
	if err != nil {
		return domain.PrinterProfile{}, err
	}
	n, err := repo.Count(ctx, printerNamed(name))
	if err != nil {
		return domain.PrinterProfile{}, fmt.Errorf("create printer: %w", err)
	}
	if n > 0 {
		return domain.PrinterProfile{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	width := req.PaperWidthMM
	if width == 0 {
		width = defaultPaperWidthMM
	}
	now := s.now()
	printer := domain.PrinterProfile{
		ProfileID:    uuid.New(),
		Name:         name,
		Kind:         strings.ToLower(strings.TrimSpace(req.Kind)),
		Connection:   strings.ToLower(strings.TrimSpace(req.Connection)),
		Address:      strings.TrimSpace(req.Address),
		Port:         req.Port,
		PaperWidthMM: width,
		Enabled:      !req.Disabled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := repo.Add(ctx, printer); err != nil {
		return domain.PrinterProfile{}, fmt.Errorf("create printer: %w", err)
	}
	return printer, nil
}

func (s *PrinterService) Get(ctx context.Context, name string) (domain.PrinterProfile, error) {
	name, err := requireName("printer", name)
	if err != nil {
		return domain.PrinterProfile{}, err
	}
	repo, err := s.repo(ctx)
	if err != nil {
		return domain.PrinterProfile{}, err
	}
	printer, found, err := repo.FindOne(ctx, printerNamed(name))
	if err != nil {
		return domain.PrinterProfile{}, fmt.Errorf("get printer: %w", err)
	}
	if !found {
		return domain.PrinterProfile{}, fmt.Errorf("get printer %q: %w", name, repository.ErrNotFound)
	}
	return printer, nil
}

// List filters by kind when kind is set.
func (s *PrinterService) List(ctx context.Context, kind string, req ListRequest) (ListResult[domain.PrinterProfile], error) {
	repo, err := s.repo(ctx)
	if err != nil {
		return ListResult[domain.PrinterProfile]{}, err
	}
	query := spec.All[domain.PrinterProfile]()
	if kind = strings.ToLower(strings.TrimSpace(kind)); kind != "" {
		query = query.Where(func(p domain.PrinterProfile) bool { return p.Kind == kind })
	}
	if search := strings.ToLower(strings.TrimSpace(req.Search)); search != "" {
		query = query.Where(func(p domain.PrinterProfile) bool {
			return strings.Contains(strings.ToLower(p.Name), search) ||
				strings.Contains(strings.ToLower(p.Address), search)
		})
	}
	query = query.OrderBy(spec.Key(func(p domain.PrinterProfile) string { return strings.ToLower(p.Name) }))
	result, err := listWith(ctx, repo, query, req)
	if err != nil {
		return ListResult[domain.PrinterProfile]{}, fmt.Errorf("list printers: %w", err)
	}
	return result, nil
}

func (s *PrinterService) SetEnabled(ctx context.Context, name string, enabled bool) (domain.PrinterProfile, error) {
	printer, err := s.Get(ctx, name)
	if err != nil {
		return domain.PrinterProfile{}, err
	}
	repo, err := s.repo(ctx)
	if err != nil {
		return domain.PrinterProfile{}, err
	}
	printer.Enabled = enabled
	printer.UpdatedAt = s.now()
	if _, err := repo.Update(ctx, printer); err != nil {
		return domain.PrinterProfile{}, fmt.Errorf("update printer: %w", err)
	}
	return printer, nil
}

func (s *PrinterService) Delete(ctx context.Context, name string) error {
	printer, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	repo, err := s.repo(ctx)
	if err != nil {
		return err
	}
	if err := repo.Delete(ctx, printer.ProfileID); err != nil {
		return fmt.Errorf("delete printer: %w", err)
	}
	return nil
}
