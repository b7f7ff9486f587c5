// Package store provides an in-memory engine.Store implementation
// (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ledgerline/revenue-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of all engine store interfaces
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	events    []engine.RawEvent
	eventKeys map[string]bool

	orders    map[orderKey]*engine.Order
	items     map[string][]engine.LineItem // orderID -> items
	itemKeys  map[string]bool              // orderID+productID

	entries   []engine.LedgerEntry
	entryKeys map[string]bool

	snapshots map[string][]engine.RevenueSnapshot // tenant:provider:tx -> versions

	runs map[string]engine.BackfillRun
}

type orderKey struct {
	Tenant   string
	Provider string
	Key      string
}

func NewMemory() *Memory {
	return &Memory{
		eventKeys: make(map[string]bool),
		orders:    make(map[orderKey]*engine.Order),
		items:     make(map[string][]engine.LineItem),
		itemKeys:  make(map[string]bool),
		entryKeys: make(map[string]bool),
		snapshots: make(map[string][]engine.RevenueSnapshot),
		runs:      make(map[string]engine.BackfillRun),
	}
}

// =============================================================================
// EVENT STORE
// =============================================================================

func eventUniq(tenant, provider, providerEventID string) string {
	return tenant + "\x00" + provider + "\x00" + providerEventID
}

func (m *Memory) AppendEvent(_ context.Context, e engine.RawEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := eventUniq(e.Tenant, e.Provider, e.ProviderEventID)
	if m.eventKeys[k] {
		return engine.ErrDuplicateEvent
	}
	m.eventKeys[k] = true
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) ReadPage(_ context.Context, tenant, provider string, since time.Time, order engine.ReadOrder, limit, offset int) ([]engine.RawEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []engine.RawEvent
	for _, e := range m.events {
		if e.Tenant != tenant || e.Provider != provider {
			continue
		}
		if e.ReceivedAt.Before(since) {
			continue
		}
		matched = append(matched, e)
	}

	// Stable ordering with received-at ties broken by provider event id.
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			if order == engine.OldestFirst {
				return a.ReceivedAt.Before(b.ReceivedAt)
			}
			return a.ReceivedAt.After(b.ReceivedAt)
		}
		return a.ProviderEventID < b.ProviderEventID
	})

	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := make([]engine.RawEvent, end-offset)
	copy(page, matched[offset:end])
	return page, nil
}

// =============================================================================
// ORDER STORE
// =============================================================================

func (m *Memory) GetOrder(_ context.Context, tenant, provider, key string) (*engine.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderKey{tenant, provider, key}]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) CreateOrder(_ context.Context, o engine.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[orderKey{o.Tenant, o.Provider, o.OrderKey}] = &o
	return nil
}

func (m *Memory) UpdateOrder(_ context.Context, o engine.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := orderKey{o.Tenant, o.Provider, o.OrderKey}
	if _, ok := m.orders[k]; !ok {
		return engine.ErrOrderNotFound
	}
	m.orders[k] = &o
	return nil
}

func itemUniq(orderID, productID string) string {
	return orderID + "\x00" + productID
}

func (m *Memory) InsertLineItem(_ context.Context, item engine.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := itemUniq(item.OrderID, item.ProductID)
	if m.itemKeys[k] {
		return engine.ErrDuplicateLineItem
	}
	m.itemKeys[k] = true
	m.items[item.OrderID] = append(m.items[item.OrderID], item)
	return nil
}

func (m *Memory) ListLineItems(_ context.Context, orderID string) ([]engine.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.LineItem, len(m.items[orderID]))
	copy(out, m.items[orderID])
	return out, nil
}

func (m *Memory) ListOrders(_ context.Context, tenant, provider string, limit int) ([]engine.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Order
	for _, o := range m.orders {
		if o.Tenant == tenant && o.Provider == provider {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (m *Memory) InsertEntry(_ context.Context, e engine.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entryKeys[e.IdempotencyKey] {
		return engine.ErrDuplicateIdempotencyKey
	}
	m.entryKeys[e.IdempotencyKey] = true
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) ListEntriesByOrderKey(_ context.Context, tenant, provider, key string) ([]engine.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.LedgerEntry
	for _, e := range m.entries {
		if e.Tenant == tenant && e.Provider == provider && e.OrderKey == key {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

func snapUniq(tenant, provider, tx string) string {
	return tenant + "\x00" + provider + "\x00" + tx
}

func (m *Memory) GetCurrent(_ context.Context, tenant, provider, tx string) (*engine.RevenueSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.snapshots[snapUniq(tenant, provider, tx)] {
		if s.IsCurrent {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) InsertSnapshot(_ context.Context, s engine.RevenueSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := snapUniq(s.Tenant, s.Provider, s.TransactionID)
	m.snapshots[k] = append(m.snapshots[k], s)
	return nil
}

func (m *Memory) Supersede(_ context.Context, oldID string, next engine.RevenueSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := snapUniq(next.Tenant, next.Provider, next.TransactionID)
	versions := m.snapshots[k]
	for i := range versions {
		if versions[i].ID == oldID {
			versions[i].IsCurrent = false
		}
	}
	m.snapshots[k] = append(versions, next)
	return nil
}

func (m *Memory) ListVersions(_ context.Context, tenant, provider, tx string) ([]engine.RevenueSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.snapshots[snapUniq(tenant, provider, tx)]
	out := make([]engine.RevenueSnapshot, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// =============================================================================
// RUN STORE
// =============================================================================

func (m *Memory) InsertRun(_ context.Context, run engine.BackfillRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) FinishRun(_ context.Context, run engine.BackfillRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return engine.ErrRunNotFound
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) ListRuns(_ context.Context, tenant string, limit int) ([]engine.BackfillRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.BackfillRun
	for _, r := range m.runs {
		if r.Tenant == tenant {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
