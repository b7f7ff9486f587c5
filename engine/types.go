/*
Package engine is the revenue event reconciliation core.

PURPOSE:
  Turns the provider's noisy purchase-lifecycle event stream (duplicates,
  out-of-order delivery, partial commission breakdowns, wholesale replays)
  into a trustworthy financial record: canonical orders with line items,
  an append-only ledger of signed per-actor amounts, and a versioned
  "current truth" snapshot per transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal amount with a currency (never float64)
  - RawEvent: one immutable provider notification with an opaque payload
  - Order / LineItem: the canonical order aggregate and its items
  - LedgerEntry: one signed, idempotent monetary fact for one actor
  - RevenueSnapshot: versioned per-transaction financial truth

DESIGN PRINCIPLES:
  1. Immutability: ledger entries and raw events are never modified
  2. Precision: decimal.Decimal everywhere money is involved
  3. Idempotency: every write carries a derived idempotency key
  4. Absence is meaningful: missing commission fields are nil, not zero

SEE ALSO:
  - payload.go: opaque payload field access
  - ledger.go: commission-to-entry translation and idempotent writes
  - projector.go: order aggregate accumulation and status machine
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal amount with currency
// =============================================================================

type Money struct {
	Value    decimal.Decimal
	Currency string
}

func NewMoney(value float64, currency string) Money {
	return Money{Value: decimal.NewFromFloat(value), Currency: currency}
}

func ZeroMoney(currency string) Money {
	return Money{Value: decimal.Zero, Currency: currency}
}

func (m Money) Add(b Money) Money    { return Money{Value: m.Value.Add(b.Value), Currency: m.Currency} }
func (m Money) Sub(b Money) Money    { return Money{Value: m.Value.Sub(b.Value), Currency: m.Currency} }
func (m Money) Neg() Money           { return Money{Value: m.Value.Neg(), Currency: m.Currency} }
func (m Money) IsZero() bool         { return m.Value.IsZero() }
func (m Money) IsPositive() bool     { return m.Value.IsPositive() }
func (m Money) IsNegative() bool     { return m.Value.IsNegative() }
func (m Money) Equal(b Money) bool   { return m.Value.Equal(b.Value) }
func (m Money) GreaterThan(b Money) bool { return m.Value.GreaterThan(b.Value) }

// =============================================================================
// RAW EVENT - Immutable provider notification
// =============================================================================

type EventKind string

const (
	KindPurchaseApproved    EventKind = "purchase.approved"
	KindPurchaseCompleted   EventKind = "purchase.completed"
	KindPurchaseCanceled    EventKind = "purchase.canceled"
	KindPurchaseRefunded    EventKind = "purchase.refunded"
	KindPurchaseChargeback  EventKind = "purchase.chargeback"
	KindSubscriptionStarted EventKind = "subscription.started"
	KindSubscriptionStopped EventKind = "subscription.cancelled"
)

// ReversalKinds are event kinds that represent money leaving the system.
// Ledger amounts derived from them are sign-inverted.
func (k EventKind) IsReversal() bool {
	switch k {
	case KindPurchaseRefunded, KindPurchaseChargeback, KindPurchaseCanceled:
		return true
	}
	return false
}

// RawEvent is one notification as received from the provider.
// Append-only; uniqueness is (Tenant, Provider, ProviderEventID).
type RawEvent struct {
	ID              string
	Tenant          string
	Provider        string
	ProviderEventID string
	Kind            EventKind
	Payload         Payload
	ReceivedAt      time.Time
}

// =============================================================================
// CANONICAL ORDER - One aggregate per order key
// =============================================================================

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusApproved   OrderStatus = "approved"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
	StatusChargeback OrderStatus = "chargeback"
)

// statusRank orders statuses for monotone upgrades. A chargeback outranks a
// refund, so a late chargeback on a refunded order still lands; a stale
// approved event on a cancelled order does not.
func (s OrderStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusApproved:
		return 1
	case StatusCompleted:
		return 2
	case StatusCancelled:
		return 3
	case StatusRefunded:
		return 4
	case StatusChargeback:
		return 5
	}
	return -1
}

// Attribution holds traffic-source markers captured once per order.
type Attribution struct {
	UTMSource string
	Src       string
	Sck       string
}

func (a Attribution) IsEmpty() bool {
	return a.UTMSource == "" && a.Src == "" && a.Sck == ""
}

// Order is the canonical order aggregate, keyed by (Tenant, Provider, OrderKey).
// Totals accumulate exactly once per distinct line item; reprocessing the same
// item never re-adds its amount.
type Order struct {
	ID          string
	Tenant      string
	Provider    string
	OrderKey    string
	BuyerName   string
	BuyerEmail  string
	Status      OrderStatus
	Currency    string
	PaidTotal   decimal.Decimal // what the customer actually paid
	GrossTotal  decimal.Decimal // base prices before splits
	SellerNet   decimal.Decimal // producer take-home
	Attribution Attribution
	FirstSeenAt time.Time
	UpdatedAt   time.Time
}

type ItemType string

const (
	ItemPrimary  ItemType = "primary"
	ItemAddOn    ItemType = "add_on"
	ItemUpsell   ItemType = "upsell"
	ItemDownsell ItemType = "downsell"
)

// IsPostPurchase reports whether the item was offered after the primary
// purchase (upsell/downsell funnel step).
func (t ItemType) IsPostPurchase() bool { return t == ItemUpsell || t == ItemDownsell }

// LineItem is one product within an order. Unique per (OrderID, ProductID).
type LineItem struct {
	ID        string
	OrderID   string
	ProductID string
	OfferID   string
	Name      string
	Type      ItemType
	BasePrice decimal.Decimal
	Quantity  int
	CreatedAt time.Time
}

// =============================================================================
// COMMISSION BREAKDOWN - Per-actor split of one event's value
// =============================================================================

// Breakdown is the actor-attributed split of one event's monetary value.
// nil means the provider did not report that actor, NOT that the amount
// is zero.
type Breakdown struct {
	PlatformFee *decimal.Decimal
	SellerNet   *decimal.Decimal
	CoProducer  *decimal.Decimal
	Affiliate   *decimal.Decimal
	Currency    string
}

// =============================================================================
// LEDGER ENTRY - One signed monetary fact
// =============================================================================

type ActorType string

const (
	ActorPlatform   ActorType = "platform"
	ActorSeller     ActorType = "seller"
	ActorCoProducer ActorType = "coproducer"
	ActorAffiliate  ActorType = "affiliate"
)

type EntryType string

const (
	EntrySale        EntryType = "sale"
	EntryRefund      EntryType = "refund"
	EntryChargeback  EntryType = "chargeback"
	EntryPlatformFee EntryType = "platform_fee"
	EntryCoProducer  EntryType = "coproducer"
	EntryAffiliate   EntryType = "affiliate"
)

// LedgerEntry is one signed monetary fact. Append-only; corrections are new
// entries with an offsetting sign.
type LedgerEntry struct {
	ID             string
	Tenant         string
	Provider       string
	OrderKey       string
	TransactionID  string
	EntryType      EntryType
	Actor          ActorType
	ActorName      string
	Amount         decimal.Decimal
	Currency       string
	OccurredAt     time.Time
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// REVENUE SNAPSHOT - Versioned per-transaction truth
// =============================================================================

// RevenueSnapshot is one version of the system's belief about a transaction's
// value. At most one row per (Tenant, Provider, TransactionID) is current.
type RevenueSnapshot struct {
	ID            string
	Tenant        string
	Provider      string
	TransactionID string
	Gross         decimal.Decimal
	Net           decimal.Decimal
	Currency      string
	Attribution   Attribution
	RawPayload    []byte
	Version       int
	IsCurrent     bool
	ObservedAt    time.Time
	CreatedAt     time.Time
}

// =============================================================================
// BACKFILL RUN - Operator-visible record of one orchestrator execution
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

type BackfillRun struct {
	ID          string
	Tenant      string
	Provider    string
	WindowStart time.Time
	WindowEnd   time.Time
	PageSize    int
	DryRun      bool
	Status      RunStatus
	Result      Result
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}
