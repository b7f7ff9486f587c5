/*
Package sqlite provides the SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:
  Implements engine.Store (events, orders + line items, ledger entries,
  revenue snapshots, backfill runs) on SQLite. The same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

IDEMPOTENCY ENFORCEMENT:
  Uniqueness lives in the schema, not in caller-side checks:
  - raw_events          UNIQUE(tenant, provider, provider_event_id)
  - order_items         UNIQUE(order_id, product_id)
  - ledger_entries      UNIQUE(idempotency_key)
  - revenue_snapshots   partial UNIQUE on (tenant, provider, transaction_id)
                        WHERE is_current = 1
  Constraint violations surface as the engine's typed duplicate errors;
  every other failure is wrapped as a TransientStoreError so the
  orchestrator knows it may retry.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements exist for raw_events or ledger_entries.
  Corrections are offsetting ledger entries.

WAL MODE:
  Opened with WAL for concurrent readers and better crash recovery.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/revenue-engine/engine"
)

// Store implements all engine storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Raw provider events (append-only)
	CREATE TABLE IF NOT EXISTS raw_events (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		received_at TEXT NOT NULL,
		UNIQUE(tenant, provider, provider_event_id)
	);

	CREATE INDEX IF NOT EXISTS idx_raw_events_window
		ON raw_events(tenant, provider, received_at DESC);

	-- Canonical orders
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		provider TEXT NOT NULL,
		order_key TEXT NOT NULL,
		buyer_name TEXT,
		buyer_email TEXT,
		status TEXT NOT NULL,
		currency TEXT,
		paid_total TEXT NOT NULL,
		gross_total TEXT NOT NULL,
		seller_net TEXT NOT NULL,
		utm_source TEXT,
		src TEXT,
		sck TEXT,
		first_seen_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(tenant, provider, order_key)
	);

	CREATE INDEX IF NOT EXISTS idx_orders_updated
		ON orders(tenant, provider, updated_at DESC);

	-- Order line items (one per order+product)
	CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		product_id TEXT NOT NULL,
		offer_id TEXT,
		name TEXT,
		item_type TEXT NOT NULL,
		base_price TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		UNIQUE(order_id, product_id)
	);

	CREATE INDEX IF NOT EXISTS idx_order_items_order
		ON order_items(order_id);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		provider TEXT NOT NULL,
		order_key TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		actor TEXT NOT NULL,
		actor_name TEXT,
		amount TEXT NOT NULL,
		currency TEXT,
		occurred_at TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_order
		ON ledger_entries(tenant, provider, order_key);
	CREATE INDEX IF NOT EXISTS idx_ledger_transaction
		ON ledger_entries(tenant, provider, transaction_id);

	-- Revenue snapshots (versioned truth per transaction)
	CREATE TABLE IF NOT EXISTS revenue_snapshots (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		provider TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		gross TEXT NOT NULL,
		net TEXT NOT NULL,
		currency TEXT,
		utm_source TEXT,
		src TEXT,
		sck TEXT,
		raw_payload TEXT,
		version INTEGER NOT NULL,
		is_current INTEGER NOT NULL,
		observed_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(tenant, provider, transaction_id, version)
	);

	-- CRITICAL: at most one current snapshot per transaction.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_current
		ON revenue_snapshots(tenant, provider, transaction_id)
		WHERE is_current = 1;

	-- Backfill runs (observability)
	CREATE TABLE IF NOT EXISTS backfill_runs (
		id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		provider TEXT NOT NULL,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		page_size INTEGER NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		events_read INTEGER DEFAULT 0,
		events_relevant INTEGER DEFAULT 0,
		orders_created INTEGER DEFAULT 0,
		orders_updated INTEGER DEFAULT 0,
		items_created INTEGER DEFAULT 0,
		entries_created INTEGER DEFAULT 0,
		entries_skipped INTEGER DEFAULT 0,
		snapshots_written INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_backfill_runs_tenant
		ON backfill_runs(tenant, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

// transient wraps non-constraint failures so the orchestrator can retry them.
func transient(op string, err error) error {
	return &engine.TransientStoreError{Op: op, Err: err}
}

// =============================================================================
// EVENT STORE (engine.EventStore interface)
// =============================================================================

// AppendEvent records one raw provider event. Append-only.
func (s *Store) AppendEvent(ctx context.Context, e engine.RawEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO raw_events (id, tenant, provider, provider_event_id, kind, payload_json, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Tenant, e.Provider, e.ProviderEventID, string(e.Kind),
		string(e.Payload.Raw()), e.ReceivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateEvent
		}
		return transient("append event", err)
	}
	return nil
}

// ReadPage returns one stable page of events received at or after since.
func (s *Store) ReadPage(ctx context.Context, tenant, provider string, since time.Time, order engine.ReadOrder, limit, offset int) ([]engine.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := "DESC"
	if order == engine.OldestFirst {
		dir = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT id, tenant, provider, provider_event_id, kind, payload_json, received_at
		FROM raw_events
		WHERE tenant = ? AND provider = ? AND received_at >= ?
		ORDER BY received_at %s, provider_event_id ASC
		LIMIT ? OFFSET ?
	`, dir)

	rows, err := s.db.QueryContext(ctx, query,
		tenant, provider, since.UTC().Format(time.RFC3339Nano), limit, offset)
	if err != nil {
		return nil, transient("read events", err)
	}
	defer rows.Close()

	var events []engine.RawEvent
	for rows.Next() {
		var (
			e           engine.RawEvent
			kind        string
			payloadJSON string
			receivedAt  string
		)
		if err := rows.Scan(&e.ID, &e.Tenant, &e.Provider, &e.ProviderEventID, &kind, &payloadJSON, &receivedAt); err != nil {
			return nil, transient("scan event", err)
		}
		e.Kind = engine.EventKind(kind)
		e.Payload, err = engine.ParsePayload([]byte(payloadJSON))
		if err != nil {
			return nil, fmt.Errorf("corrupt payload for event %s: %w", e.ProviderEventID, err)
		}
		e.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// ORDER STORE (engine.OrderStore interface)
// =============================================================================

func (s *Store) GetOrder(ctx context.Context, tenant, provider, key string) (*engine.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant, provider, order_key, buyer_name, buyer_email, status, currency,
		       paid_total, gross_total, seller_net, utm_source, src, sck,
		       first_seen_at, updated_at
		FROM orders
		WHERE tenant = ? AND provider = ? AND order_key = ?
	`
	row := s.db.QueryRowContext(ctx, query, tenant, provider, key)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, transient("get order", err)
	}
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, o engine.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO orders
		(id, tenant, provider, order_key, buyer_name, buyer_email, status, currency,
		 paid_total, gross_total, seller_net, utm_source, src, sck, first_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.Tenant, o.Provider, o.OrderKey, o.BuyerName, o.BuyerEmail,
		string(o.Status), o.Currency,
		o.PaidTotal.String(), o.GrossTotal.String(), o.SellerNet.String(),
		o.Attribution.UTMSource, o.Attribution.Src, o.Attribution.Sck,
		o.FirstSeenAt.UTC().Format(time.RFC3339Nano),
		o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return transient("create order", err)
	}
	return nil
}

func (s *Store) UpdateOrder(ctx context.Context, o engine.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE orders SET
			buyer_name = ?, buyer_email = ?, status = ?, currency = ?,
			paid_total = ?, gross_total = ?, seller_net = ?,
			utm_source = ?, src = ?, sck = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		o.BuyerName, o.BuyerEmail, string(o.Status), o.Currency,
		o.PaidTotal.String(), o.GrossTotal.String(), o.SellerNet.String(),
		o.Attribution.UTMSource, o.Attribution.Src, o.Attribution.Sck,
		o.UpdatedAt.UTC().Format(time.RFC3339Nano),
		o.ID,
	)
	if err != nil {
		return transient("update order", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrOrderNotFound
	}
	return nil
}

func (s *Store) InsertLineItem(ctx context.Context, item engine.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO order_items (id, order_id, product_id, offer_id, name, item_type, base_price, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.OrderID, item.ProductID, item.OfferID, item.Name,
		string(item.Type), item.BasePrice.String(), item.Quantity,
		item.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateLineItem
		}
		return transient("insert line item", err)
	}
	return nil
}

func (s *Store) ListLineItems(ctx context.Context, orderID string) ([]engine.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, order_id, product_id, offer_id, name, item_type, base_price, quantity, created_at
		FROM order_items
		WHERE order_id = ?
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, transient("list line items", err)
	}
	defer rows.Close()

	var items []engine.LineItem
	for rows.Next() {
		var (
			item      engine.LineItem
			offerID   sql.NullString
			name      sql.NullString
			itemType  string
			basePrice string
			createdAt string
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &offerID, &name,
			&itemType, &basePrice, &item.Quantity, &createdAt); err != nil {
			return nil, transient("scan line item", err)
		}
		item.OfferID = offerID.String
		item.Name = name.String
		item.Type = engine.ItemType(itemType)
		item.BasePrice = mustDecimal(basePrice)
		item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListOrders(ctx context.Context, tenant, provider string, limit int) ([]engine.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, tenant, provider, order_key, buyer_name, buyer_email, status, currency,
		       paid_total, gross_total, seller_net, utm_source, src, sck,
		       first_seen_at, updated_at
		FROM orders
		WHERE tenant = ? AND provider = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, tenant, provider, limit)
	if err != nil {
		return nil, transient("list orders", err)
	}
	defer rows.Close()

	var orders []engine.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, transient("scan order", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*engine.Order, error) {
	var (
		o          engine.Order
		buyerName  sql.NullString
		buyerEmail sql.NullString
		currency   sql.NullString
		status     string
		paid       string
		gross      string
		net        string
		utm        sql.NullString
		src        sql.NullString
		sck        sql.NullString
		firstSeen  string
		updatedAt  string
	)
	err := row.Scan(&o.ID, &o.Tenant, &o.Provider, &o.OrderKey, &buyerName, &buyerEmail,
		&status, &currency, &paid, &gross, &net, &utm, &src, &sck, &firstSeen, &updatedAt)
	if err != nil {
		return nil, err
	}
	o.BuyerName = buyerName.String
	o.BuyerEmail = buyerEmail.String
	o.Currency = currency.String
	o.Status = engine.OrderStatus(status)
	o.PaidTotal = mustDecimal(paid)
	o.GrossTotal = mustDecimal(gross)
	o.SellerNet = mustDecimal(net)
	o.Attribution = engine.Attribution{UTMSource: utm.String, Src: src.String, Sck: sck.String}
	o.FirstSeenAt, _ = time.Parse(time.RFC3339Nano, firstSeen)
	o.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &o, nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// LEDGER STORE (engine.LedgerStore interface)
// =============================================================================

// InsertEntry appends one ledger entry. Append-only; the idempotency key's
// unique constraint is the only duplicate gate.
func (s *Store) InsertEntry(ctx context.Context, e engine.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query := `
		INSERT INTO ledger_entries
		(id, tenant, provider, order_key, transaction_id, entry_type, actor, actor_name,
		 amount, currency, occurred_at, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Tenant, e.Provider, e.OrderKey, e.TransactionID,
		string(e.EntryType), string(e.Actor), e.ActorName,
		e.Amount.String(), e.Currency,
		e.OccurredAt.UTC().Format(time.RFC3339Nano),
		e.IdempotencyKey,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateIdempotencyKey
		}
		return transient("insert ledger entry", err)
	}
	return nil
}

func (s *Store) ListEntriesByOrderKey(ctx context.Context, tenant, provider, key string) ([]engine.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant, provider, order_key, transaction_id, entry_type, actor, actor_name,
		       amount, currency, occurred_at, idempotency_key, created_at
		FROM ledger_entries
		WHERE tenant = ? AND provider = ? AND order_key = ?
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenant, provider, key)
	if err != nil {
		return nil, transient("list ledger entries", err)
	}
	defer rows.Close()

	var entries []engine.LedgerEntry
	for rows.Next() {
		var (
			e          engine.LedgerEntry
			entryType  string
			actor      string
			actorName  sql.NullString
			amount     string
			currency   sql.NullString
			occurredAt string
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &e.Tenant, &e.Provider, &e.OrderKey, &e.TransactionID,
			&entryType, &actor, &actorName, &amount, &currency, &occurredAt,
			&e.IdempotencyKey, &createdAt); err != nil {
			return nil, transient("scan ledger entry", err)
		}
		e.EntryType = engine.EntryType(entryType)
		e.Actor = engine.ActorType(actor)
		e.ActorName = actorName.String
		e.Amount = mustDecimal(amount)
		e.Currency = currency.String
		e.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SNAPSHOT STORE (engine.SnapshotStore interface)
// =============================================================================

func (s *Store) GetCurrent(ctx context.Context, tenant, provider, tx string) (*engine.RevenueSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant, provider, transaction_id, gross, net, currency,
		       utm_source, src, sck, raw_payload, version, is_current, observed_at, created_at
		FROM revenue_snapshots
		WHERE tenant = ? AND provider = ? AND transaction_id = ? AND is_current = 1
	`
	row := s.db.QueryRowContext(ctx, query, tenant, provider, tx)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, transient("get current snapshot", err)
	}
	return snap, nil
}

func (s *Store) InsertSnapshot(ctx context.Context, snap engine.RevenueSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertSnapshot(ctx, s.db, snap); err != nil {
		return transient("insert snapshot", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertSnapshot(ctx context.Context, db execer, snap engine.RevenueSnapshot) error {
	query := `
		INSERT INTO revenue_snapshots
		(id, tenant, provider, transaction_id, gross, net, currency,
		 utm_source, src, sck, raw_payload, version, is_current, observed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	isCurrent := 0
	if snap.IsCurrent {
		isCurrent = 1
	}
	_, err := db.ExecContext(ctx, query,
		snap.ID, snap.Tenant, snap.Provider, snap.TransactionID,
		snap.Gross.String(), snap.Net.String(), snap.Currency,
		snap.Attribution.UTMSource, snap.Attribution.Src, snap.Attribution.Sck,
		string(snap.RawPayload), snap.Version, isCurrent,
		snap.ObservedAt.UTC().Format(time.RFC3339Nano),
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Supersede flips the old version and inserts the next one atomically, so the
// partial unique index on is_current never sees two current rows.
func (s *Store) Supersede(ctx context.Context, oldID string, next engine.RevenueSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("begin supersede", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx,
		"UPDATE revenue_snapshots SET is_current = 0 WHERE id = ?", oldID); err != nil {
		return transient("mark superseded", err)
	}
	if err := s.insertSnapshot(ctx, sqlTx, next); err != nil {
		return transient("insert next snapshot", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return transient("commit supersede", err)
	}
	return nil
}

func (s *Store) ListVersions(ctx context.Context, tenant, provider, tx string) ([]engine.RevenueSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant, provider, transaction_id, gross, net, currency,
		       utm_source, src, sck, raw_payload, version, is_current, observed_at, created_at
		FROM revenue_snapshots
		WHERE tenant = ? AND provider = ? AND transaction_id = ?
		ORDER BY version ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenant, provider, tx)
	if err != nil {
		return nil, transient("list snapshot versions", err)
	}
	defer rows.Close()

	var snaps []engine.RevenueSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, transient("scan snapshot", err)
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

func scanSnapshot(row rowScanner) (*engine.RevenueSnapshot, error) {
	var (
		snap       engine.RevenueSnapshot
		gross      string
		net        string
		currency   sql.NullString
		utm        sql.NullString
		src        sql.NullString
		sck        sql.NullString
		rawPayload sql.NullString
		isCurrent  int
		observedAt string
		createdAt  string
	)
	err := row.Scan(&snap.ID, &snap.Tenant, &snap.Provider, &snap.TransactionID,
		&gross, &net, &currency, &utm, &src, &sck, &rawPayload,
		&snap.Version, &isCurrent, &observedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	snap.Gross = mustDecimal(gross)
	snap.Net = mustDecimal(net)
	snap.Currency = currency.String
	snap.Attribution = engine.Attribution{UTMSource: utm.String, Src: src.String, Sck: sck.String}
	snap.RawPayload = []byte(rawPayload.String)
	snap.IsCurrent = isCurrent == 1
	snap.ObservedAt, _ = time.Parse(time.RFC3339Nano, observedAt)
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &snap, nil
}

// =============================================================================
// RUN STORE (engine.RunStore interface)
// =============================================================================

func (s *Store) InsertRun(ctx context.Context, run engine.BackfillRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO backfill_runs
		(id, tenant, provider, window_start, window_end, page_size, dry_run, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	dryRun := 0
	if run.DryRun {
		dryRun = 1
	}
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Tenant, run.Provider,
		run.WindowStart.UTC().Format(time.RFC3339Nano),
		run.WindowEnd.UTC().Format(time.RFC3339Nano),
		run.PageSize, dryRun, string(run.Status),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return transient("insert run", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, run engine.BackfillRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE backfill_runs SET
			status = ?, events_read = ?, events_relevant = ?,
			orders_created = ?, orders_updated = ?, items_created = ?,
			entries_created = ?, entries_skipped = ?, snapshots_written = ?,
			errors = ?, error = ?, completed_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(run.Status),
		run.Result.EventsRead, run.Result.Relevant,
		run.Result.OrdersCreated, run.Result.OrdersUpdated, run.Result.ItemsCreated,
		run.Result.EntriesCreated, run.Result.EntriesSkipped, run.Result.Snapshots,
		run.Result.Errors, run.Error,
		run.CompletedAt.UTC().Format(time.RFC3339Nano),
		run.ID,
	)
	if err != nil {
		return transient("finish run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrRunNotFound
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, tenant string, limit int) ([]engine.BackfillRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, tenant, provider, window_start, window_end, page_size, dry_run, status,
		       events_read, events_relevant, orders_created, orders_updated, items_created,
		       entries_created, entries_skipped, snapshots_written, errors, error,
		       started_at, completed_at
		FROM backfill_runs
		WHERE tenant = ?
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, tenant, limit)
	if err != nil {
		return nil, transient("list runs", err)
	}
	defer rows.Close()

	var runs []engine.BackfillRun
	for rows.Next() {
		var (
			run         engine.BackfillRun
			windowStart string
			windowEnd   string
			dryRun      int
			status      string
			errMsg      sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Tenant, &run.Provider, &windowStart, &windowEnd,
			&run.PageSize, &dryRun, &status,
			&run.Result.EventsRead, &run.Result.Relevant,
			&run.Result.OrdersCreated, &run.Result.OrdersUpdated, &run.Result.ItemsCreated,
			&run.Result.EntriesCreated, &run.Result.EntriesSkipped, &run.Result.Snapshots,
			&run.Result.Errors, &errMsg, &startedAt, &completedAt); err != nil {
			return nil, transient("scan run", err)
		}
		run.WindowStart, _ = time.Parse(time.RFC3339Nano, windowStart)
		run.WindowEnd, _ = time.Parse(time.RFC3339Nano, windowEnd)
		run.DryRun = dryRun == 1
		run.Status = engine.RunStatus(status)
		run.Error = errMsg.String
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if completedAt.Valid {
			run.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt.String)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
