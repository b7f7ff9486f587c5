package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/revenue-engine/engine"
)

func TestPipeline_ProcessPurchase(t *testing.T) {
	pl, mem := newPipeline(t)
	ctx := context.Background()

	e := rawEvent(engine.KindPurchaseApproved, "evt-1", purchasePayload(t))
	out, err := pl.ProcessEvent(ctx, e)
	require.NoError(t, err)

	assert.Equal(t, "HP100", out.OrderKey)
	assert.Equal(t, engine.ItemPrimary, out.ItemType)
	assert.True(t, out.Relevant)
	assert.True(t, out.Projection.OrderCreated)
	assert.True(t, out.Projection.ItemCreated)
	assert.Equal(t, 3, out.Ledger.Created)
	assert.Equal(t, engine.SnapshotInserted, out.Snapshot)

	entries, err := mem.ListEntriesByOrderKey(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	cur, err := mem.GetCurrent(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.True(t, cur.Gross.Equal(dec("100")))
	assert.True(t, cur.Net.Equal(dec("60")))
}

func TestPipeline_ReplayIsIdempotent(t *testing.T) {
	pl, mem := newPipeline(t)
	ctx := context.Background()

	e := rawEvent(engine.KindPurchaseApproved, "evt-1", purchasePayload(t))
	_, err := pl.ProcessEvent(ctx, e)
	require.NoError(t, err)

	// Wholesale replay: identical event, identical final state, zero creates.
	out, err := pl.ProcessEvent(ctx, e)
	require.NoError(t, err)
	assert.False(t, out.Projection.OrderCreated)
	assert.False(t, out.Projection.ItemCreated)
	assert.Equal(t, 0, out.Ledger.Created)
	assert.Equal(t, 3, out.Ledger.Skipped)
	assert.Equal(t, engine.SnapshotUnchanged, out.Snapshot)

	o, err := mem.GetOrder(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.True(t, o.PaidTotal.Equal(dec("100")))
}

func TestPipeline_RefundWritesOffsettingEntries(t *testing.T) {
	pl, mem := newPipeline(t)
	ctx := context.Background()

	_, err := pl.ProcessEvent(ctx, rawEvent(engine.KindPurchaseApproved, "evt-1", purchasePayload(t)))
	require.NoError(t, err)

	out, err := pl.ProcessEvent(ctx, rawEvent(engine.KindPurchaseRefunded, "evt-2", purchasePayload(t)))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Ledger.Created)
	assert.Equal(t, engine.SnapshotUnchanged, out.Snapshot,
		"reversal must not rewrite the snapshot")

	entries, err := mem.ListEntriesByOrderKey(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	assert.Len(t, entries, 6)

	var refund *engine.LedgerEntry
	for i := range entries {
		if entries[i].EntryType == engine.EntryRefund && entries[i].Actor == engine.ActorSeller {
			refund = &entries[i]
		}
	}
	require.NotNil(t, refund)
	assert.True(t, refund.Amount.Equal(dec("-60")))

	o, err := mem.GetOrder(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRefunded, o.Status)

	// Snapshot history still shows the original value, one version only.
	versions, err := mem.ListVersions(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.True(t, versions[0].Gross.Equal(dec("100")))
}

func TestPipeline_UnresolvableEventFails(t *testing.T) {
	pl, _ := newPipeline(t)

	e := rawEvent(engine.KindPurchaseApproved, "evt-1", payloadFrom(t, map[string]any{
		"buyer": map[string]any{"name": "no identifiers"},
	}))
	_, err := pl.ProcessEvent(context.Background(), e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrUnresolvableOrder))
}

func TestPipeline_DryRunTouchesNoStore(t *testing.T) {
	pl, mem := newPipeline(t)
	pl.DryRun = true
	ctx := context.Background()

	out, err := pl.ProcessEvent(ctx, rawEvent(engine.KindPurchaseApproved, "evt-1", purchasePayload(t)))
	require.NoError(t, err)
	assert.Equal(t, "HP100", out.OrderKey)
	assert.Equal(t, 3, out.Candidates)
	assert.Equal(t, 0, out.Ledger.Created)

	o, err := mem.GetOrder(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	assert.Nil(t, o)

	entries, err := mem.ListEntriesByOrderKey(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPipeline_IrrelevantEventStillProjectsStatus(t *testing.T) {
	pl, mem := newPipeline(t)
	ctx := context.Background()

	// No price, no commissions: nothing for the ledger, but the order and its
	// status still materialize.
	e := rawEvent(engine.KindSubscriptionStopped, "evt-1", payloadFrom(t, map[string]any{
		"transaction": "HP300",
	}))
	out, err := pl.ProcessEvent(ctx, e)
	require.NoError(t, err)
	assert.False(t, out.Relevant)
	assert.Equal(t, 0, out.Ledger.Created)

	o, err := mem.GetOrder(ctx, testTenant, testProvider, "HP300")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, engine.StatusCancelled, o.Status)
}

func TestPipeline_SnapshotVersionBumpOnPriceChange(t *testing.T) {
	pl, mem := newPipeline(t)
	ctx := context.Background()

	_, err := pl.ProcessEvent(ctx, rawEvent(engine.KindPurchaseApproved, "evt-1", purchasePayload(t)))
	require.NoError(t, err)

	// The completed event reports a corrected price.
	corrected := mustPayload(t, `{
		"transaction": "HP100",
		"product":     {"id": "991", "name": "Mentoria X"},
		"price":       {"value": 120.0, "currency": "BRL"},
		"commissions": [{"source": "PRODUCER", "value": 72.0}]
	}`)
	out, err := pl.ProcessEvent(ctx, rawEvent(engine.KindPurchaseCompleted, "evt-2", corrected))
	require.NoError(t, err)
	assert.Equal(t, engine.SnapshotInserted, out.Snapshot)

	versions, err := mem.ListVersions(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.False(t, versions[0].IsCurrent)
	assert.True(t, versions[1].IsCurrent)
	assert.True(t, versions[1].Gross.Equal(dec("120")))
}
