/*
payload.go - Opaque provider payload with named accessors

PURPOSE:
  Provider payloads are loosely-typed nested JSON whose shape drifts between
  event kinds and provider versions. Rather than one brittle struct, the
  payload stays an opaque map and every field the engine needs has a narrow
  accessor returning an explicit "absent" flag. One missing field never
  aborts processing of the rest of the event.

PAYLOAD SHAPE (representative purchase event):

  {
    "transaction": "HP1234567890",
    "order_ref":   "ORD-8841",
    "offer":       {"code": "abc123", "name": "Mentoria X - Upsell"},
    "product":     {"id": "991", "name": "Mentoria X", "co_production": true},
    "price":       {"value": 297.0, "base": 297.0, "currency": "BRL"},
    "quantity":    1,
    "buyer":       {"name": "Maria Silva", "email": "maria@example.com"},
    "order_bump":  {"is_order_bump": true, "parent_transaction": "HP1234567889"},
    "commissions": [
      {"source": "MARKETPLACE", "value": 29.7},
      {"source": "PRODUCER",    "value": 207.9},
      {"source": "AFFILIATE",   "value": 59.4}
    ],
    "tracking":    {"utm_source": "fb", "src": "campaign-9", "sck": "adset-2"}
  }

Accessors never panic on missing or mistyped fields.
*/
package engine

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Payload is the opaque structured body of one provider event.
type Payload map[string]any

// ParsePayload decodes raw JSON into a Payload. Numbers are kept as
// json.Number so monetary values survive without float rounding.
func ParsePayload(raw []byte) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return p, nil
}

// Raw re-encodes the payload for snapshot audit storage.
func (p Payload) Raw() []byte {
	b, _ := json.Marshal(p)
	return b
}

// =============================================================================
// FIELD ACCESSORS - (value, ok) pairs, never panic
// =============================================================================

func (p Payload) TransactionID() (string, bool) { return p.str("transaction") }
func (p Payload) OrderRef() (string, bool)      { return p.str("order_ref") }
func (p Payload) OfferCode() (string, bool)     { return p.str("offer", "code") }
func (p Payload) OfferName() (string, bool)     { return p.str("offer", "name") }
func (p Payload) ProductID() (string, bool)     { return p.str("product", "id") }
func (p Payload) ProductName() (string, bool)   { return p.str("product", "name") }
func (p Payload) BuyerName() (string, bool)     { return p.str("buyer", "name") }
func (p Payload) BuyerEmail() (string, bool)    { return p.str("buyer", "email") }

// IsOrderBump reports whether the provider flagged this event as an add-on
// sold inside another purchase's checkout.
func (p Payload) IsOrderBump() bool {
	v, ok := p.boolean("order_bump", "is_order_bump")
	return ok && v
}

// ParentTransactionID is the transaction this add-on or post-purchase offer
// belongs to, when the provider linked it.
func (p Payload) ParentTransactionID() (string, bool) {
	if v, ok := p.str("order_bump", "parent_transaction"); ok {
		return v, true
	}
	return p.str("parent_transaction")
}

// IsCoProduction reports whether the product is flagged as jointly produced.
func (p Payload) IsCoProduction() bool {
	v, ok := p.boolean("product", "co_production")
	return ok && v
}

// Price is the amount the customer paid for this event's item.
func (p Payload) Price() (decimal.Decimal, bool) {
	return p.number("price", "value")
}

// BasePrice is the item's list price before checkout discounts. Falls back to
// the paid price when the provider omits it.
func (p Payload) BasePrice() (decimal.Decimal, bool) {
	if v, ok := p.number("price", "base"); ok {
		return v, true
	}
	return p.Price()
}

func (p Payload) Currency() (string, bool) { return p.str("price", "currency") }

func (p Payload) Quantity() int {
	if v, ok := p.number("quantity"); ok && v.IsPositive() {
		return int(v.IntPart())
	}
	return 1
}

// Attribution extracts whichever traffic-source markers are present.
func (p Payload) Attribution() Attribution {
	utm, _ := p.str("tracking", "utm_source")
	src, _ := p.str("tracking", "src")
	sck, _ := p.str("tracking", "sck")
	return Attribution{UTMSource: utm, Src: src, Sck: sck}
}

// CommissionEntry is one raw element of the payload's commission array.
// Value may be malformed; the extractor decides what to do with it.
type CommissionEntry struct {
	Source string
	Value  decimal.Decimal
	Err    error
}

// Commissions returns the raw commission array in payload order. Entries with
// non-numeric values carry a MalformedCommissionError instead of a value.
func (p Payload) Commissions() []CommissionEntry {
	arr, ok := p["commissions"].([]any)
	if !ok {
		return nil
	}
	entries := make([]CommissionEntry, 0, len(arr))
	for _, raw := range arr {
		m, ok := raw.(map[string]any)
		if !ok {
			entries = append(entries, CommissionEntry{Err: &MalformedCommissionError{Raw: raw}})
			continue
		}
		source, _ := asString(m["source"])
		value, ok := asNumber(m["value"])
		if !ok {
			entries = append(entries, CommissionEntry{
				Source: source,
				Err:    &MalformedCommissionError{Source: source, Raw: m["value"]},
			})
			continue
		}
		entries = append(entries, CommissionEntry{Source: source, Value: value})
	}
	return entries
}

// =============================================================================
// TRAVERSAL HELPERS
// =============================================================================

func (p Payload) lookup(path ...string) (any, bool) {
	var cur any = map[string]any(p)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (p Payload) str(path ...string) (string, bool) {
	v, ok := p.lookup(path...)
	if !ok {
		return "", false
	}
	return asString(v)
}

func (p Payload) boolean(path ...string) (bool, bool) {
	v, ok := p.lookup(path...)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (p Payload) number(path ...string) (decimal.Decimal, bool) {
	v, ok := p.lookup(path...)
	if !ok {
		return decimal.Zero, false
	}
	return asNumber(v)
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func asNumber(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	case decimal.Decimal:
		return n, true
	}
	return decimal.Zero, false
}
