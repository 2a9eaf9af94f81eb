package repository

import (
	"context"
	"fmt"
)

type TxState int

const (
	TxIdle TxState = iota
	TxActive
)

func (s TxState) String() string {
	if s == TxActive {
		return "active"
	}
	return "idle"
}

func (r *Repository[T]) State() TxState { return r.state }

func (r *Repository[T]) InTransaction() bool { return r.state == TxActive }

// BeginTransaction takes a snapshot of the subtree. If the export fails the
// repository stays idle.
func (r *Repository[T]) BeginTransaction(ctx context.Context) error {
	if r.state == TxActive {
		return fmt.Errorf("begin %s: %w", r.typeTag, ErrTransactionAlreadyActive)
	}
	snap, err := r.store.ExportSubtree(ctx, r.root)
	if err != nil {
		return fmt.Errorf("begin %s: snapshot: %w", r.typeTag, err)
	}
	r.snapshot = snap
	r.state = TxActive
	r.opts.logger.DebugContext(ctx, "transaction started",
		"type", r.typeTag,
		"root", r.root,
		"records", snap.Len(),
	)
	return nil
}

// CommitTransaction discards the snapshot; the writes are already durable.
func (r *Repository[T]) CommitTransaction(ctx context.Context) error {
	if r.state != TxActive {
		return fmt.Errorf("commit %s: %w", r.typeTag, ErrNoActiveTransaction)
	}
	r.snapshot = nil
	r.state = TxIdle
	r.opts.logger.DebugContext(ctx, "transaction committed", "type", r.typeTag)
	return nil
}

// RollbackTransaction restores the subtree from the snapshot. It is a no-op
// when idle. If the restore fails the snapshot is kept and the repository
// stays active, so the rollback can be retried.
func (r *Repository[T]) RollbackTransaction(ctx context.Context) error {
	if r.state != TxActive {
		return nil
	}
	if err := r.store.ImportSubtree(ctx, r.root, r.snapshot); err != nil {
		r.opts.logger.ErrorContext(ctx, "transaction rollback failed",
			"type", r.typeTag,
			"root", r.root,
			"error", err,
		)
		return fmt.Errorf("rollback %s: restore snapshot: %w", r.typeTag, err)
	}
	restored := r.snapshot.Len()
	r.snapshot = nil
	r.state = TxIdle
	if r.cache != nil {
		r.cache.Purge()
	}
	r.opts.logger.DebugContext(ctx, "transaction rolled back",
		"type", r.typeTag,
		"records", restored,
	)
	return nil
}
