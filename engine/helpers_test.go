package engine_test

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerline/revenue-engine/engine"
	memstore "github.com/ledgerline/revenue-engine/engine/store"
)

// Shared fixtures for the engine tests. Payloads are built from JSON so the
// decoding path (json.Number handling included) is exercised the same way the
// HTTP layer exercises it.

const (
	testTenant   = "acme"
	testProvider = "hotmart"
)

func mustPayload(t *testing.T, jsonBody string) engine.Payload {
	t.Helper()
	p, err := engine.ParsePayload([]byte(jsonBody))
	if err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return p
}

func payloadFrom(t *testing.T, m map[string]any) engine.Payload {
	t.Helper()
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return mustPayload(t, string(raw))
}

// purchasePayload is a fully-populated approved purchase with the standard
// 10% platform, 5% affiliate, 60% producer split over a 100.00 sale.
func purchasePayload(t *testing.T) engine.Payload {
	return mustPayload(t, `{
		"transaction": "HP100",
		"offer":       {"code": "of-1", "name": "Mentoria X"},
		"product":     {"id": "991", "name": "Mentoria X"},
		"price":       {"value": 100.0, "currency": "BRL"},
		"buyer":       {"name": "Maria Silva", "email": "maria@example.com"},
		"commissions": [
			{"source": "MARKETPLACE", "value": 10.0},
			{"source": "AFFILIATE",   "value": 5.0},
			{"source": "PRODUCER",    "value": 60.0}
		],
		"tracking":    {"utm_source": "fb", "src": "camp-9", "sck": "adset-2"}
	}`)
}

func rawEvent(kind engine.EventKind, providerEventID string, p engine.Payload) engine.RawEvent {
	return engine.RawEvent{
		ID:              "ev-" + providerEventID,
		Tenant:          testTenant,
		Provider:        testProvider,
		ProviderEventID: providerEventID,
		Kind:            kind,
		Payload:         p,
		ReceivedAt:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func newPipeline(t *testing.T) (*engine.Pipeline, *memstore.Memory) {
	t.Helper()
	mem := memstore.NewMemory()
	return engine.NewPipeline(mem, zap.NewNop()), mem
}
