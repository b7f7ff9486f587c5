/*
versioner.go - Versioned revenue snapshots

PURPOSE:
  Maintains the deduplicated "latest known truth" per original transaction.
  When a later observation changes the gross or net amount, the current
  snapshot is superseded and a new version inserted; identical observations
  write nothing. The result is a replayable history of how the system's
  belief about a transaction's value changed - essential for explaining
  financial discrepancies after the fact.

INVARIANT:
  At most one snapshot per (tenant, provider, transaction) has
  is_current = true at any time. The store enforces this with a partial
  unique index; Supersede flips and inserts atomically.
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UpsertOutcome says whether a snapshot upsert changed stored state.
type UpsertOutcome string

const (
	SnapshotInserted  UpsertOutcome = "inserted"
	SnapshotUnchanged UpsertOutcome = "unchanged"
)

// Versioner owns the snapshot upsert protocol.
type Versioner struct {
	Snapshots SnapshotStore
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewVersioner(snapshots SnapshotStore, logger *zap.Logger) *Versioner {
	return &Versioner{Snapshots: snapshots, Logger: logger, Now: time.Now}
}

// Upsert records the observation. First sight inserts version 1; a material
// change (gross or net differs) supersedes the current version; anything else
// is a no-op.
func (v *Versioner) Upsert(ctx context.Context, snap RevenueSnapshot) (UpsertOutcome, error) {
	current, err := v.Snapshots.GetCurrent(ctx, snap.Tenant, snap.Provider, snap.TransactionID)
	if err != nil {
		return SnapshotUnchanged, fmt.Errorf("load current snapshot %s: %w", snap.TransactionID, err)
	}

	snap.ID = uuid.NewString()
	snap.IsCurrent = true
	snap.CreatedAt = v.Now().UTC()

	if current == nil {
		snap.Version = 1
		if err := v.Snapshots.InsertSnapshot(ctx, snap); err != nil {
			return SnapshotUnchanged, fmt.Errorf("insert snapshot v1 %s: %w", snap.TransactionID, err)
		}
		return SnapshotInserted, nil
	}

	if current.Gross.Equal(snap.Gross) && current.Net.Equal(snap.Net) {
		return SnapshotUnchanged, nil
	}

	snap.Version = current.Version + 1
	if err := v.Snapshots.Supersede(ctx, current.ID, snap); err != nil {
		return SnapshotUnchanged, fmt.Errorf("supersede snapshot %s v%d: %w", snap.TransactionID, current.Version, err)
	}
	v.Logger.Info("revenue snapshot superseded",
		zap.String("transaction", snap.TransactionID),
		zap.Int("version", snap.Version),
		zap.String("gross", snap.Gross.String()),
		zap.String("previous_gross", current.Gross.String()))
	return SnapshotInserted, nil
}
