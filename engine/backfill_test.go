package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerline/revenue-engine/engine"
	memstore "github.com/ledgerline/revenue-engine/engine/store"
)

func seedEvents(t *testing.T, mem *memstore.Memory, n int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		p := mustPayload(t, fmt.Sprintf(`{
			"transaction": "HP%03d",
			"product":     {"id": "p%03d", "name": "Produto %d"},
			"price":       {"value": 100.0, "currency": "BRL"},
			"commissions": [
				{"source": "MARKETPLACE", "value": 10.0},
				{"source": "PRODUCER",    "value": 60.0}
			]
		}`, i, i, i))
		e := engine.RawEvent{
			ID:              fmt.Sprintf("ev-%03d", i),
			Tenant:          testTenant,
			Provider:        testProvider,
			ProviderEventID: fmt.Sprintf("evt-%03d", i),
			Kind:            engine.KindPurchaseApproved,
			Payload:         p,
			ReceivedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, mem.AppendEvent(context.Background(), e))
	}
}

func window(base time.Time, n int) engine.BackfillRequest {
	return engine.BackfillRequest{
		Tenant:      testTenant,
		Provider:    testProvider,
		WindowStart: base.Add(-time.Hour),
		WindowEnd:   base.Add(time.Duration(n) * time.Hour),
		PageSize:    3,
		Order:       engine.OldestFirst,
	}
}

func TestOrchestrator_ProcessesWholeWindow(t *testing.T) {
	mem := memstore.NewMemory()
	o := engine.NewOrchestrator(mem, zap.NewNop())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedEvents(t, mem, 7, base)

	result, err := o.Run(context.Background(), window(base, 7))
	require.NoError(t, err)

	assert.Equal(t, 7, result.EventsRead)
	assert.Equal(t, 7, result.Relevant)
	assert.Equal(t, 7, result.OrdersCreated)
	assert.Equal(t, 7, result.ItemsCreated)
	assert.Equal(t, 14, result.EntriesCreated)
	assert.Equal(t, 7, result.Snapshots)
	assert.Equal(t, 0, result.Errors)
}

func TestOrchestrator_RerunIsHarmless(t *testing.T) {
	mem := memstore.NewMemory()
	o := engine.NewOrchestrator(mem, zap.NewNop())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedEvents(t, mem, 5, base)
	ctx := context.Background()

	_, err := o.Run(ctx, window(base, 5))
	require.NoError(t, err)

	// Re-running the same window reads everything again but creates nothing.
	result, err := o.Run(ctx, window(base, 5))
	require.NoError(t, err)
	assert.Equal(t, 5, result.EventsRead)
	assert.Equal(t, 0, result.OrdersCreated)
	assert.Equal(t, 0, result.ItemsCreated)
	assert.Equal(t, 0, result.EntriesCreated)
	assert.Equal(t, 10, result.EntriesSkipped)
	assert.Equal(t, 0, result.Snapshots)
}

func TestOrchestrator_BadEventCountedNotFatal(t *testing.T) {
	mem := memstore.NewMemory()
	o := engine.NewOrchestrator(mem, zap.NewNop())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedEvents(t, mem, 2, base)
	ctx := context.Background()

	// An event with no identifier at all cannot be resolved to an order.
	unresolvable := engine.RawEvent{
		ID:              "ev-bad",
		Tenant:          testTenant,
		Provider:        testProvider,
		ProviderEventID: "evt-bad",
		Kind:            engine.KindPurchaseApproved,
		Payload:         payloadFrom(t, map[string]any{"buyer": map[string]any{"name": "x"}}),
		ReceivedAt:      base.Add(30 * time.Second),
	}
	require.NoError(t, mem.AppendEvent(ctx, unresolvable))

	result, err := o.Run(ctx, window(base, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, result.EventsRead)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 2, result.OrdersCreated)
}

func TestOrchestrator_DryRunWritesNothing(t *testing.T) {
	mem := memstore.NewMemory()
	o := engine.NewOrchestrator(mem, zap.NewNop())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedEvents(t, mem, 3, base)
	ctx := context.Background()

	req := window(base, 3)
	req.DryRun = true
	result, err := o.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3, result.EventsRead)
	assert.Equal(t, 0, result.OrdersCreated)
	assert.Equal(t, 0, result.EntriesCreated)

	orders, err := mem.ListOrders(ctx, testTenant, testProvider, 0)
	require.NoError(t, err)
	assert.Empty(t, orders)

	// Dry runs leave no operator record either.
	runs, err := mem.ListRuns(ctx, testTenant, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestOrchestrator_RecordsRun(t *testing.T) {
	mem := memstore.NewMemory()
	o := engine.NewOrchestrator(mem, zap.NewNop())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedEvents(t, mem, 2, base)
	ctx := context.Background()

	_, err := o.Run(ctx, window(base, 2))
	require.NoError(t, err)

	runs, err := mem.ListRuns(ctx, testTenant, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, engine.RunCompleted, runs[0].Status)
	assert.Equal(t, 2, runs[0].Result.EventsRead)
	assert.False(t, runs[0].CompletedAt.IsZero())
}

func TestOrchestrator_WindowEndExcludesLaterEvents(t *testing.T) {
	mem := memstore.NewMemory()
	o := engine.NewOrchestrator(mem, zap.NewNop())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedEvents(t, mem, 4, base)
	ctx := context.Background()

	req := window(base, 4)
	req.WindowEnd = base.Add(90 * time.Second) // only the first two events qualify
	result, err := o.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.EventsRead)
	assert.Equal(t, 2, result.OrdersCreated)
}

func TestOrchestrator_CancelledContextStopsBetweenPages(t *testing.T) {
	mem := memstore.NewMemory()
	o := engine.NewOrchestrator(mem, zap.NewNop())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedEvents(t, mem, 3, base)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, window(base, 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
