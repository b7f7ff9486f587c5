package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerline/revenue-engine/engine"
	memstore "github.com/ledgerline/revenue-engine/engine/store"
)

func snapshot(tx, gross, net string) engine.RevenueSnapshot {
	return engine.RevenueSnapshot{
		Tenant:        testTenant,
		Provider:      testProvider,
		TransactionID: tx,
		Gross:         dec(gross),
		Net:           dec(net),
		Currency:      "BRL",
		ObservedAt:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestVersioner_FirstObservationIsVersionOne(t *testing.T) {
	mem := memstore.NewMemory()
	v := engine.NewVersioner(mem, zap.NewNop())
	ctx := context.Background()

	out, err := v.Upsert(ctx, snapshot("HP100", "100", "60"))
	require.NoError(t, err)
	assert.Equal(t, engine.SnapshotInserted, out)

	cur, err := mem.GetCurrent(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, 1, cur.Version)
	assert.True(t, cur.IsCurrent)
}

func TestVersioner_IdenticalObservationWritesNothing(t *testing.T) {
	mem := memstore.NewMemory()
	v := engine.NewVersioner(mem, zap.NewNop())
	ctx := context.Background()

	_, err := v.Upsert(ctx, snapshot("HP100", "100", "60"))
	require.NoError(t, err)

	out, err := v.Upsert(ctx, snapshot("HP100", "100", "60"))
	require.NoError(t, err)
	assert.Equal(t, engine.SnapshotUnchanged, out)

	versions, err := mem.ListVersions(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestVersioner_ChangedAmountSupersedes(t *testing.T) {
	mem := memstore.NewMemory()
	v := engine.NewVersioner(mem, zap.NewNop())
	ctx := context.Background()

	_, err := v.Upsert(ctx, snapshot("HP100", "100", "60"))
	require.NoError(t, err)

	out, err := v.Upsert(ctx, snapshot("HP100", "120", "72"))
	require.NoError(t, err)
	assert.Equal(t, engine.SnapshotInserted, out)

	versions, err := mem.ListVersions(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	require.Len(t, versions, 2)

	assert.Equal(t, 1, versions[0].Version)
	assert.False(t, versions[0].IsCurrent, "superseded version still marked current")
	assert.Equal(t, 2, versions[1].Version)
	assert.True(t, versions[1].IsCurrent)
	assert.True(t, versions[1].Gross.Equal(dec("120")))

	cur, err := mem.GetCurrent(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, 2, cur.Version)
}

func TestVersioner_NetChangeAloneSupersedes(t *testing.T) {
	mem := memstore.NewMemory()
	v := engine.NewVersioner(mem, zap.NewNop())
	ctx := context.Background()

	_, err := v.Upsert(ctx, snapshot("HP100", "100", "60"))
	require.NoError(t, err)

	out, err := v.Upsert(ctx, snapshot("HP100", "100", "55"))
	require.NoError(t, err)
	assert.Equal(t, engine.SnapshotInserted, out)

	cur, err := mem.GetCurrent(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, 2, cur.Version)
	assert.True(t, cur.Net.Equal(dec("55")))
}

func TestVersioner_TransactionsAreIndependent(t *testing.T) {
	mem := memstore.NewMemory()
	v := engine.NewVersioner(mem, zap.NewNop())
	ctx := context.Background()

	_, err := v.Upsert(ctx, snapshot("HP100", "100", "60"))
	require.NoError(t, err)
	_, err = v.Upsert(ctx, snapshot("HP200", "50", "30"))
	require.NoError(t, err)

	a, err := mem.GetCurrent(ctx, testTenant, testProvider, "HP100")
	require.NoError(t, err)
	b, err := mem.GetCurrent(ctx, testTenant, testProvider, "HP200")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Version)
	assert.Equal(t, 1, b.Version)
}
