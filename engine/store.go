/*
store.go - Persistence interfaces for the reconciliation engine

PURPOSE:
  Defines the contract between the engine and its four logical tables:
  raw events (append-only), canonical orders + line items, ledger entries,
  and revenue snapshots. Implementations: store/sqlite for production,
  engine/store for in-memory testing.

IDEMPOTENCY IS THE WRITER'S CONTRACT:
  Conflict-aware writes return typed duplicate errors instead of requiring
  callers to check-then-write. A duplicate ledger key, line item, or raw
  event surfaces as ErrDuplicate* and is counted as "skipped" upstream -
  this eliminates check-then-insert races and makes replay safe.

APPEND-ONLY CONTRACT:
  Raw events and ledger entries have no update or delete operations.
  Corrections are offsetting ledger entries; order state is the only
  read-modify-write aggregate.
*/
package engine

import (
	"context"
	"time"
)

// ReadOrder selects the stable page ordering for event reads.
type ReadOrder string

const (
	// NewestFirst is the default for backfills: recent problems get fixed first.
	NewestFirst ReadOrder = "newest_first"
	// OldestFirst replays history forward.
	OldestFirst ReadOrder = "oldest_first"
)

// EventStore is the append-only log of raw provider events.
type EventStore interface {
	// AppendEvent records one raw event. Returns ErrDuplicateEvent when
	// (tenant, provider, provider event id) already exists.
	AppendEvent(ctx context.Context, e RawEvent) error

	// ReadPage returns one page of events received at or after since,
	// in a stable order. Pure read, resumable via offset.
	ReadPage(ctx context.Context, tenant, provider string, since time.Time, order ReadOrder, limit, offset int) ([]RawEvent, error)
}

// OrderStore persists canonical orders and their line items.
type OrderStore interface {
	// GetOrder returns the order for a key, or nil when absent.
	GetOrder(ctx context.Context, tenant, provider, orderKey string) (*Order, error)

	// CreateOrder inserts a new order aggregate.
	CreateOrder(ctx context.Context, o Order) error

	// UpdateOrder rewrites the mutable aggregate fields (status, totals,
	// buyer, attribution, updated-at).
	UpdateOrder(ctx context.Context, o Order) error

	// InsertLineItem adds one item. Returns ErrDuplicateLineItem when the
	// (order, product) pair already exists.
	InsertLineItem(ctx context.Context, item LineItem) error

	// ListLineItems returns an order's items in insertion order.
	ListLineItems(ctx context.Context, orderID string) ([]LineItem, error)

	// ListOrders returns a tenant's orders, most recently updated first.
	ListOrders(ctx context.Context, tenant, provider string, limit int) ([]Order, error)
}

// LedgerStore persists signed monetary entries. Append-only.
type LedgerStore interface {
	// InsertEntry appends one entry. Returns ErrDuplicateIdempotencyKey when
	// the entry's key was already written.
	InsertEntry(ctx context.Context, e LedgerEntry) error

	// ListEntriesByOrderKey returns all entries for an order, oldest first.
	ListEntriesByOrderKey(ctx context.Context, tenant, provider, orderKey string) ([]LedgerEntry, error)
}

// SnapshotStore persists versioned revenue snapshots.
type SnapshotStore interface {
	// GetCurrent returns the is-current snapshot for a transaction, or nil.
	GetCurrent(ctx context.Context, tenant, provider, transactionID string) (*RevenueSnapshot, error)

	// InsertSnapshot inserts a new version (used for version 1).
	InsertSnapshot(ctx context.Context, s RevenueSnapshot) error

	// Supersede atomically marks the old version non-current and inserts the
	// next version as current.
	Supersede(ctx context.Context, oldID string, next RevenueSnapshot) error

	// ListVersions returns all versions for a transaction, oldest first.
	ListVersions(ctx context.Context, tenant, provider, transactionID string) ([]RevenueSnapshot, error)
}

// RunStore records backfill executions for observability.
type RunStore interface {
	InsertRun(ctx context.Context, run BackfillRun) error
	FinishRun(ctx context.Context, run BackfillRun) error
	ListRuns(ctx context.Context, tenant string, limit int) ([]BackfillRun, error)
}

// Store is the composite a full deployment wires together.
type Store interface {
	EventStore
	OrderStore
	LedgerStore
	SnapshotStore
	RunStore
}
