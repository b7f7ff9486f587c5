/*
resolve.go - Order identity resolution

PURPOSE:
  Every line item sold in one checkout (primary product, order bumps,
  post-purchase upsells/downsells) must land on the same canonical order.
  The provider spreads them across separate events with separate transaction
  ids, so the grouping key has to be derived, not read.

RULE PRIORITY (first match wins):
  1. Flagged order bump with a parent transaction  -> parent transaction
  2. Upsell/downsell offer name with a parent ref  -> parent transaction
  3. Any other parent transaction reference        -> parent transaction
  4. The event's own transaction id
  5. Order-level reference, then raw offer code

An event matching none of these is unresolvable and MUST surface as an
error outcome; it is never silently dropped or guessed.
*/
package engine

import "strings"

// Post-purchase funnel markers observed in provider offer names.
// Matching is case-insensitive substring.
var (
	upsellMarkers   = []string{"upsell", "up-sell"}
	downsellMarkers = []string{"downsell", "down-sell"}
)

func nameContainsAny(name string, markers []string) bool {
	lower := strings.ToLower(name)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// ResolveOrderKey derives the canonical order key for one event.
// Returns ErrUnresolvableOrder when no identifier of any kind is present.
func ResolveOrderKey(p Payload) (string, error) {
	parent, hasParent := p.ParentTransactionID()

	// 1. Explicit order bump linked to its parent purchase.
	if p.IsOrderBump() && hasParent {
		return parent, nil
	}

	// 2. Post-purchase offer linked to the original transaction.
	if name, ok := p.OfferName(); ok && hasParent {
		if nameContainsAny(name, upsellMarkers) || nameContainsAny(name, downsellMarkers) {
			return parent, nil
		}
	}

	// 3. Any remaining parent reference still groups the item.
	if hasParent {
		return parent, nil
	}

	// 4. A standalone purchase is its own order.
	if tx, ok := p.TransactionID(); ok {
		return tx, nil
	}

	// 5. Last-resort identifiers for legacy/partial payloads.
	if ref, ok := p.OrderRef(); ok {
		return ref, nil
	}
	if code, ok := p.OfferCode(); ok {
		return code, nil
	}

	return "", ErrUnresolvableOrder
}
