/*
classify.go - Line-item classification

PURPOSE:
  Decides whether an event's item is the primary purchase, an add-on sold in
  the same checkout, or a post-purchase upsell/downsell.

PRECEDENCE (subtle - the fallbacks exist for a reason):
  1. Offer name carries an upsell marker    -> upsell
  2. Offer name carries a downsell marker   -> downsell
  3. Flagged as order bump:
     a. parent ref present and != own tx id -> add_on
     b. parent ref == own tx id             -> primary (provider quirk)
     c. no parent ref at all                -> primary (unlinked flag)
  4. Otherwise                              -> primary

The provider has been observed marking EVERY item in certain checkouts as an
order bump regardless of truth. An add-on flag that is self-referencing or
unlinked cannot indicate a real add-on; treating it as primary keeps main
purchases from being systematically misfiled and revenue from fragmenting.
*/
package engine

// ClassifyLineItem determines the item type for one event's payload.
func ClassifyLineItem(p Payload) ItemType {
	if name, ok := p.OfferName(); ok {
		if nameContainsAny(name, upsellMarkers) {
			return ItemUpsell
		}
		if nameContainsAny(name, downsellMarkers) {
			return ItemDownsell
		}
	}

	if p.IsOrderBump() {
		parent, hasParent := p.ParentTransactionID()
		if !hasParent {
			return ItemPrimary
		}
		if own, ok := p.TransactionID(); ok && parent == own {
			return ItemPrimary
		}
		return ItemAddOn
	}

	return ItemPrimary
}
