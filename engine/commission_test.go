package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerline/revenue-engine/engine"
)

func extract(t *testing.T, jsonBody string) engine.Breakdown {
	t.Helper()
	return engine.ExtractBreakdown(mustPayload(t, jsonBody), zap.NewNop())
}

func assertDec(t *testing.T, want string, got *decimal.Decimal) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, got.Equal(decimal.RequireFromString(want)),
		"want %s, got %s", want, got.String())
}

func TestExtractBreakdown_MapsActorTags(t *testing.T) {
	bd := extract(t, `{
		"price": {"value": 100.0, "currency": "BRL"},
		"commissions": [
			{"source": "MARKETPLACE", "value": 10.0},
			{"source": "PRODUCER",    "value": 60.0},
			{"source": "CO_PRODUCER", "value": 25.0},
			{"source": "AFFILIATE",   "value": 5.0}
		]
	}`)

	assertDec(t, "10", bd.PlatformFee)
	assertDec(t, "60", bd.SellerNet)
	assertDec(t, "25", bd.CoProducer)
	assertDec(t, "5", bd.Affiliate)
	assert.Equal(t, "BRL", bd.Currency)
}

func TestExtractBreakdown_AlternateTags(t *testing.T) {
	bd := extract(t, `{
		"commissions": [
			{"source": "PLATFORM",   "value": 7.5},
			{"source": "SELLER",     "value": 50.0},
			{"source": "COPRODUCER", "value": 12.5}
		]
	}`)

	assertDec(t, "7.5", bd.PlatformFee)
	assertDec(t, "50", bd.SellerNet)
	assertDec(t, "12.5", bd.CoProducer)
	assert.Nil(t, bd.Affiliate)
}

func TestExtractBreakdown_UnknownTagIgnored(t *testing.T) {
	bd := extract(t, `{
		"commissions": [
			{"source": "PRODUCER",  "value": 60.0},
			{"source": "MYSTERIOUS", "value": 40.0}
		]
	}`)

	assertDec(t, "60", bd.SellerNet)
	assert.Nil(t, bd.PlatformFee)
	assert.Nil(t, bd.CoProducer)
	assert.Nil(t, bd.Affiliate)
}

func TestExtractBreakdown_MalformedEntrySkipped(t *testing.T) {
	bd := extract(t, `{
		"commissions": [
			{"source": "MARKETPLACE", "value": "not-a-number"},
			{"source": "PRODUCER",    "value": 60.0}
		]
	}`)

	assert.Nil(t, bd.PlatformFee)
	assertDec(t, "60", bd.SellerNet)
}

func TestExtractBreakdown_RepeatedActorsAccumulate(t *testing.T) {
	bd := extract(t, `{
		"commissions": [
			{"source": "AFFILIATE", "value": 5.0},
			{"source": "AFFILIATE", "value": 3.0}
		]
	}`)

	assertDec(t, "8", bd.Affiliate)
}

func TestExtractBreakdown_AbsentIsNilNotZero(t *testing.T) {
	bd := extract(t, `{"price": {"value": 100.0}}`)

	assert.Nil(t, bd.PlatformFee)
	assert.Nil(t, bd.SellerNet)
	assert.Nil(t, bd.CoProducer)
	assert.Nil(t, bd.Affiliate)
}

// =============================================================================
// CO-PRODUCER INFERENCE
// =============================================================================

func TestInferCoProducer_FillsMissingShare(t *testing.T) {
	// 100 gross - 10 platform - 5 affiliate - 60 seller = 25 co-producer.
	bd := extract(t, `{
		"product": {"id": "1", "co_production": true},
		"price":   {"value": 100.0},
		"commissions": [
			{"source": "MARKETPLACE", "value": 10.0},
			{"source": "AFFILIATE",   "value": 5.0},
			{"source": "PRODUCER",    "value": 60.0}
		]
	}`)

	assertDec(t, "25", bd.CoProducer)
}

func TestInferCoProducer_ExplicitEntryWins(t *testing.T) {
	bd := extract(t, `{
		"product": {"id": "1", "co_production": true},
		"price":   {"value": 100.0},
		"commissions": [
			{"source": "PRODUCER",    "value": 60.0},
			{"source": "CO_PRODUCER", "value": 20.0}
		]
	}`)

	assertDec(t, "20", bd.CoProducer)
}

func TestInferCoProducer_SkippedWithoutFlag(t *testing.T) {
	bd := extract(t, `{
		"price": {"value": 100.0},
		"commissions": [{"source": "PRODUCER", "value": 60.0}]
	}`)

	assert.Nil(t, bd.CoProducer)
}

func TestInferCoProducer_SkippedWithoutSellerNet(t *testing.T) {
	bd := extract(t, `{
		"product": {"id": "1", "co_production": true},
		"price":   {"value": 100.0},
		"commissions": [{"source": "MARKETPLACE", "value": 10.0}]
	}`)

	assert.Nil(t, bd.CoProducer)
}

func TestInferCoProducer_SkippedWhenRemainderNotPositive(t *testing.T) {
	// Seller already takes the whole gross; nothing is left to infer.
	bd := extract(t, `{
		"product": {"id": "1", "co_production": true},
		"price":   {"value": 100.0},
		"commissions": [{"source": "PRODUCER", "value": 100.0}]
	}`)

	assert.Nil(t, bd.CoProducer)
}

func TestInferCoProducer_SkippedWhenRemainderExceedsGross(t *testing.T) {
	// A negative seller line pushes the remainder past gross; that is broken
	// input, not a split, and no co-producer amount is invented from it.
	bd := extract(t, `{
		"product": {"id": "1", "co_production": true},
		"price":   {"value": 100.0},
		"commissions": [{"source": "PRODUCER", "value": -50.0}]
	}`)

	assert.Nil(t, bd.CoProducer)
}
