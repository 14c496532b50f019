package domain

import (
	"time"

	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// PriceLevel aggregates the resting orders at one price (spec.md §4.3).
type PriceLevel struct {
	Price          fixedpoint.UInt `json:"price"`
	TotalRemaining fixedpoint.UInt `json:"totalRemaining"`
	OrderCount     int             `json:"orderCount"`
}

// BookSnapshot is the read-path shape for getOrderBook (spec.md §3, §6).
type BookSnapshot struct {
	Pair      string       `json:"pair"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Sequence  uint64       `json:"sequence"`
	Timestamp time.Time    `json:"timestamp"`
}
