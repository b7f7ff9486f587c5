/*
commission.go - Commission extraction and co-producer inference

PURPOSE:
  Parses the provider's commission array into per-actor amounts. Tags map as:

    MARKETPLACE / PLATFORM        -> platform fee
    PRODUCER / SELLER             -> seller net
    COPRODUCER / CO_PRODUCER      -> co-producer amount
    AFFILIATE                     -> affiliate amount

  Unknown tags are logged and ignored - never folded into another bucket.
  Malformed values skip that entry; the rest of the array still processes.

CO-PRODUCER INFERENCE:
  Some event shapes omit the co-producer line entirely even when a joint
  production split undeniably occurred. When the product is flagged as
  co-produced, no co-producer entry exists, and both gross and seller net are
  known, the missing share is inferred as

    gross - platformFee - affiliate - sellerNet

  only when strictly positive. A remainder exceeding gross indicates broken
  input data, not a legitimate split; inference is skipped and logged.
*/
package engine

import (
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Actor tags recognized in commission entries, normalized to upper case.
var commissionActors = map[string]ActorType{
	"MARKETPLACE": ActorPlatform,
	"PLATFORM":    ActorPlatform,
	"PRODUCER":    ActorSeller,
	"SELLER":      ActorSeller,
	"COPRODUCER":  ActorCoProducer,
	"CO_PRODUCER": ActorCoProducer,
	"AFFILIATE":   ActorAffiliate,
}

// ExtractBreakdown maps the payload's commission array to per-actor amounts
// and applies co-producer inference when the split is demonstrably incomplete.
func ExtractBreakdown(p Payload, logger *zap.Logger) Breakdown {
	currency, _ := p.Currency()
	bd := Breakdown{Currency: currency}

	for _, entry := range p.Commissions() {
		if entry.Err != nil {
			logger.Warn("skipping malformed commission entry",
				zap.String("source", entry.Source),
				zap.Error(entry.Err))
			continue
		}
		actor, known := commissionActors[strings.ToUpper(entry.Source)]
		if !known {
			logger.Warn("ignoring unknown commission source",
				zap.String("source", entry.Source),
				zap.String("value", entry.Value.String()))
			continue
		}
		v := entry.Value
		switch actor {
		case ActorPlatform:
			bd.PlatformFee = accumulate(bd.PlatformFee, v)
		case ActorSeller:
			bd.SellerNet = accumulate(bd.SellerNet, v)
		case ActorCoProducer:
			bd.CoProducer = accumulate(bd.CoProducer, v)
		case ActorAffiliate:
			bd.Affiliate = accumulate(bd.Affiliate, v)
		}
	}

	inferCoProducer(p, &bd, logger)
	return bd
}

// accumulate sums repeated entries for the same actor (multiple affiliates,
// split platform fees) while preserving nil-means-absent.
func accumulate(cur *decimal.Decimal, v decimal.Decimal) *decimal.Decimal {
	if cur == nil {
		return &v
	}
	sum := cur.Add(v)
	return &sum
}

func inferCoProducer(p Payload, bd *Breakdown, logger *zap.Logger) {
	if bd.CoProducer != nil || !p.IsCoProduction() {
		return
	}
	gross, ok := p.Price()
	if !ok || bd.SellerNet == nil {
		return
	}

	remainder := gross
	if bd.PlatformFee != nil {
		remainder = remainder.Sub(*bd.PlatformFee)
	}
	if bd.Affiliate != nil {
		remainder = remainder.Sub(*bd.Affiliate)
	}
	remainder = remainder.Sub(*bd.SellerNet)

	if !remainder.IsPositive() {
		return
	}
	if remainder.GreaterThan(gross) {
		tx, _ := p.TransactionID()
		logger.Warn("co-producer remainder exceeds gross, refusing inference",
			zap.String("transaction", tx),
			zap.String("gross", gross.String()),
			zap.String("remainder", remainder.String()))
		return
	}
	bd.CoProducer = &remainder
}
