package domain

import (
	"time"

	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// Trade is a single match between a resting (maker) and incoming (taker)
// order (spec.md §3).
type Trade struct {
	ID           string          `json:"id"`
	Pair         string          `json:"pair"`
	BuyOrderID   string          `json:"buyOrderId"`
	SellOrderID  string          `json:"sellOrderId"`
	Price        fixedpoint.UInt `json:"price"`
	Quantity     fixedpoint.UInt `json:"quantity"`
	QuoteQuantity fixedpoint.UInt `json:"quoteQuantity"`
	Fee          fixedpoint.UInt `json:"fee"`
	FeeAsset     string          `json:"feeAsset"`
	BuyerIsMaker bool            `json:"buyerIsMaker"`
	Timestamp    time.Time       `json:"timestamp"`
	Sequence     uint64          `json:"sequence"`

	// OnChainStatus tracks the settlement surface's dispatch state
	// (spec.md §4.6): "" until settlement is planned, then "pending",
	// "confirmed", or "failed". TxHash is populated only from a genuine
	// settleDEXTrade response, never fabricated locally (spec.md §9).
	OnChainStatus string `json:"onChainStatus,omitempty"`
	TxHash        string `json:"txHash,omitempty"`
}

const (
	OnChainStatusPending   = "pending"
	OnChainStatusConfirmed = "confirmed"
	OnChainStatusFailed    = "failed"
)

// NewTrade computes QuoteQuantity = price * quantity / 10^18 per spec.md
// §3 and stamps a fresh trade id.
func NewTrade(pair string, price, quantity fixedpoint.UInt, buyOrderID, sellOrderID string, buyerIsMaker bool, seq uint64, now time.Time) (*Trade, error) {
	quote, err := fixedpoint.MulOverBase(price, quantity)
	if err != nil {
		return nil, err
	}
	return &Trade{
		ID:            NewOrderID(),
		Pair:          pair,
		BuyOrderID:    buyOrderID,
		SellOrderID:   sellOrderID,
		Price:         price,
		Quantity:      quantity,
		QuoteQuantity: quote,
		BuyerIsMaker:  buyerIsMaker,
		Timestamp:     now,
		Sequence:      seq,
	}, nil
}
