// Package domain holds the core's wire- and book-level types: Order,
// Trade, Position and the OrderBook snapshot shape (spec.md §3). These
// types carry no persistence or matching logic themselves — they are the
// shared vocabulary that internal/book, internal/matching,
// internal/perpetual and internal/storage all speak.
package domain

import (
	"time"

	"github.com/segmentio/ksuid"

	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// OrderType enumerates the eleven order families from spec.md §3.
type OrderType string

const (
	OrderTypeMarket          OrderType = "MARKET"
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeStopLoss        OrderType = "STOP_LOSS"
	OrderTypeStopLimit       OrderType = "STOP_LIMIT"
	OrderTypeTrailingStop    OrderType = "TRAILING_STOP"
	OrderTypeOCO             OrderType = "OCO"
	OrderTypeIceberg         OrderType = "ICEBERG"
	OrderTypeTWAP            OrderType = "TWAP"
	OrderTypeVWAP            OrderType = "VWAP"
	OrderTypePerpetualLimit  OrderType = "PERPETUAL_LIMIT"
	OrderTypePerpetualMarket OrderType = "PERPETUAL_MARKET"
)

// Side is BUY or SELL (LONG/SHORT perpetual orders are normalized onto
// the same axis: LONG opens/increases a buy-side position).
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// TimeInForce is one of GTC, DAY, IOC, FOK (spec.md §3, default GTC).
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFDAY TimeInForce = "DAY"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// Status is the order lifecycle state (spec.md §3).
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusOpen            Status = "OPEN"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusExpired         Status = "EXPIRED"
	StatusTriggered       Status = "TRIGGERED"
	StatusRejected        Status = "REJECTED"
)

// IsTerminal reports whether an order in this status is done mutating and
// is a candidate for hot-tier eviction once archived (spec.md §4.2).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusExpired, StatusRejected:
		return true
	default:
		return false
	}
}

// Order is the mutable record tracked across all three storage tiers.
type Order struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Pair   string `json:"pair"`

	Type OrderType `json:"type"`
	Side Side      `json:"side"`

	Quantity fixedpoint.UInt  `json:"quantity"`
	Price    *fixedpoint.UInt `json:"price,omitempty"`
	StopPrice *fixedpoint.UInt `json:"stopPrice,omitempty"`

	TimeInForce TimeInForce `json:"timeInForce"`
	PostOnly    bool        `json:"postOnly"`
	ReduceOnly  bool        `json:"reduceOnly"`

	Leverage int64 `json:"leverage"`

	Status Status `json:"status"`

	Filled    fixedpoint.UInt `json:"filled"`
	Remaining fixedpoint.UInt `json:"remaining"`

	AveragePrice *fixedpoint.UInt `json:"averagePrice,omitempty"`
	Fees         fixedpoint.UInt  `json:"fees"`
	FeeAsset     string           `json:"feeAsset"`

	Timestamp time.Time `json:"timestamp"`
	UpdatedAt time.Time `json:"updatedAt"`

	LinkedOrderID  *string `json:"linkedOrderId,omitempty"`
	ParentOrderID  *string `json:"parentOrderId,omitempty"`
	VisibleAmount  *fixedpoint.UInt `json:"visibleAmount,omitempty"`
	TotalAmount    *fixedpoint.UInt `json:"totalAmount,omitempty"`

	// Duration/Slices parameterize TWAP/VWAP decomposition at arrival
	// (spec.md §4.4): the parent is cut into Slices child orders released
	// evenly across Duration. Unused by every other order type.
	Duration time.Duration `json:"duration,omitempty"`
	Slices   int           `json:"slices,omitempty"`

	// TrailDistance is the fixed offset TRAILING_STOP keeps between
	// StopPrice and the running best adverse price (spec.md §4.4).
	TrailDistance *fixedpoint.UInt `json:"trailDistance,omitempty"`

	// Private marks an encrypted-matching order (spec.md §9 privacy
	// variant): Quantity carries no plaintext meaning and EncryptedQuantity
	// holds the MPC ciphertext the engine delegates comparisons and output
	// computation for. Unset for every regular order type.
	Private           bool   `json:"private,omitempty"`
	EncryptedQuantity string `json:"encryptedQuantity,omitempty"`

	ArchiveRef string `json:"archiveRef,omitempty"`

	RejectReason string `json:"rejectReason,omitempty"`

	// WarmDegraded is set by the tiered storage orchestrator when warm
	// writes have exhausted retry and the order is flagged but left
	// authoritative in hot (spec.md §4.2 write path step 2).
	WarmDegraded bool `json:"-"`
}

// NewOrderID mints an opaque, k-sortable order id (spec.md §3: "generated
// by the core"). A KSUID starts with a seconds-resolution timestamp
// followed by a random payload, so ids sort by creation second; ids
// minted within the same second sort in random order, not arrival order.
// Price-time priority in the book comes from each price level's FIFO
// queue, not from comparing ids.
func NewOrderID() string {
	return ksuid.New().String()
}

// Invariant I1/I2 helper: RecordFill mutates Filled/Remaining/Status
// together so the invariant "filled + remaining == quantity" can never be
// observed broken between the two field writes.
func (o *Order) RecordFill(fillQty fixedpoint.UInt, fillPrice fixedpoint.UInt, now time.Time) error {
	if fillQty.GT(o.Remaining) {
		return errOverfill(o.ID, fillQty, o.Remaining)
	}

	// Volume-weighted average price update, computed before mutating Filled.
	if o.Filled.IsZero() {
		o.AveragePrice = &fillPrice
	} else {
		prevNotional, err := fixedpoint.MulOverBase(o.Filled, *o.AveragePrice)
		if err != nil {
			return err
		}
		fillNotional, err := fixedpoint.MulOverBase(fillQty, fillPrice)
		if err != nil {
			return err
		}
		newFilled := o.Filled.Add(fillQty)
		avg, err := fixedpoint.DivOverBase(prevNotional.Add(fillNotional), newFilled)
		if err != nil {
			return err
		}
		o.AveragePrice = &avg
	}

	o.Filled = o.Filled.Add(fillQty)
	o.Remaining = o.Remaining.Sub(fillQty)
	o.UpdatedAt = now

	if o.Remaining.IsZero() {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	return nil
}

// AveragePriceOrZero returns the order's volume-weighted average fill
// price, or the zero value if it has not filled at all.
func (o *Order) AveragePriceOrZero() fixedpoint.UInt {
	if o.AveragePrice == nil {
		return fixedpoint.Zero()
	}
	return *o.AveragePrice
}

type overfillError struct {
	orderID   string
	fillQty   fixedpoint.UInt
	remaining fixedpoint.UInt
}

func (e *overfillError) Error() string {
	return "order " + e.orderID + ": fill quantity " + e.fillQty.FromBase() +
		" exceeds remaining " + e.remaining.FromBase()
}

func errOverfill(orderID string, fillQty, remaining fixedpoint.UInt) error {
	return &overfillError{orderID: orderID, fillQty: fillQty, remaining: remaining}
}
