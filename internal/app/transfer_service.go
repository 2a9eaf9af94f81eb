package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/amanthanvi/posvault/internal/codec"
	"github.com/amanthanvi/posvault/internal/domain"
	"github.com/amanthanvi/posvault/internal/kvstore"
	"github.com/amanthanvi/posvault/internal/uow"
	"github.com/google/uuid"
)

const exportBundleVersion = 1

// ExportBundle carries the encrypted subtrees of every record type. Values
// stay encrypted; only a terminal holding the same master key can import
// them.
type ExportBundle struct {
	Version   int                          `json:"version"`
	CreatedAt time.Time                    `json:"created_at"`
	Subtrees  map[string]*kvstore.Snapshot `json:"subtrees"`
}

type ImportSummary struct {
	Types   []string `json:"types"`
	Records int      `json:"records"`
}

var transferTypes = []string{
	domain.TypeDatabaseProfile,
	domain.TypePrinterProfile,
	domain.TypeSystemSetting,
}

type TransferService struct {
	u     *uow.UnitOfWork
	store kvstore.Store
	codec *codec.Codec
}

func NewTransferService(u *uow.UnitOfWork, store kvstore.Store, c *codec.Codec) *TransferService {
	return &TransferService{u: u, store: store, codec: c}
}

func (s *TransferService) Export(ctx context.Context) (ExportBundle, error) {
	bundle := ExportBundle{
		Version:   exportBundleVersion,
		CreatedAt: time.Now().UTC(),
		Subtrees:  map[string]*kvstore.Snapshot{},
	}
	for _, tag := range transferTypes {
		snap, err := s.store.ExportSubtree(ctx, s.u.RootFor(tag))
		if err != nil {
			return ExportBundle{}, fmt.Errorf("export %s: %w", tag, err)
		}
		bundle.Subtrees[tag] = snap
	}
	return bundle, nil
}

// Import replaces the subtrees present in bundle. Every record is checked
// against the local key first; the subtrees are then restored inside one
// transaction so a failed restore leaves the previous contents.
func (s *TransferService) Import(ctx context.Context, bundle ExportBundle) (ImportSummary, error) {
	if bundle.Version != exportBundleVersion {
		return ImportSummary{}, fmt.Errorf("%w: unsupported bundle version %d", ErrValidation, bundle.Version)
	}
	if err := s.openRepositories(ctx); err != nil {
		return ImportSummary{}, err
	}
	summary := ImportSummary{Types: []string{}}
	for tag, snap := range bundle.Subtrees {
		if !knownTransferType(tag) {
			return ImportSummary{}, fmt.Errorf("%w: unknown record type %q", ErrValidation, tag)
		}
		if snap == nil {
			return ImportSummary{}, fmt.Errorf("%w: %s subtree is empty", ErrValidation, tag)
		}
		if err := s.checkSnapshot(tag, snap); err != nil {
			return ImportSummary{}, err
		}
		summary.Types = append(summary.Types, tag)
		summary.Records += snap.Len()
	}
	sort.Strings(summary.Types)

	err := inTransaction(ctx, s.u, func() error {
		for _, tag := range summary.Types {
			if err := s.store.ImportSubtree(ctx, s.u.RootFor(tag), bundle.Subtrees[tag]); err != nil {
				return fmt.Errorf("import %s: %w", tag, err)
			}
		}
		return nil
	})
	if err != nil {
		return ImportSummary{}, err
	}
	return summary, nil
}

func (s *TransferService) checkSnapshot(tag string, snap *kvstore.Snapshot) error {
	for _, name := range snap.Paths() {
		id, err := uuid.Parse(name)
		if err != nil {
			return fmt.Errorf("%w: %s entry %q is not a record id", ErrValidation, tag, name)
		}
		var payload json.RawMessage
		if err := s.codec.Decode(snap.Entries[name], tag, id, &payload); err != nil {
			return fmt.Errorf("%w: %s record %s: %w", ErrValidation, tag, name, err)
		}
	}
	return nil
}

// openRepositories registers every transfer type with the codec and makes
// it take part in the import transaction.
func (s *TransferService) openRepositories(ctx context.Context) error {
	if _, err := uow.Repo[domain.DatabaseProfile](ctx, s.u); err != nil {
		return err
	}
	if _, err := uow.Repo[domain.PrinterProfile](ctx, s.u); err != nil {
		return err
	}
	_, err := uow.Repo[domain.SystemSetting](ctx, s.u)
	return err
}

func knownTransferType(tag string) bool {
	for _, known := range transferTypes {
		if known == tag {
			return true
		}
	}
	return false
}

func WriteBundle(w io.Writer, bundle ExportBundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return nil
}

func ReadBundle(r io.Reader) (ExportBundle, error) {
	var bundle ExportBundle
	if err := json.NewDecoder(r).Decode(&bundle); err != nil {
		return ExportBundle{}, fmt.Errorf("%w: read bundle: %v", ErrValidation, err)
	}
	return bundle, nil
}
