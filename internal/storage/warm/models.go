// Package warm is the Tiered Storage module's durable relational layer
// (SPEC_FULL.md §4.2): the gorm/postgres store of record for orders,
// trades, positions and market data once they leave the matching hot
// path. Grounded on the teacher's internal/db/models.go gorm conventions
// (gorm.Model embedding, primaryKey/index tags), but every monetary field
// is widened from the teacher's float64 to a NUMERIC(78,0) string column
// holding fixedpoint.UInt's base-unit representation — a float64 cannot
// losslessly round-trip a 10^18-scaled 256-bit quantity.
package warm

import (
	"time"

	"gorm.io/gorm"
)

// Order is the warm-tier row for a domain.Order.
type Order struct {
	gorm.Model
	OrderID       string `gorm:"uniqueIndex;size:32"`
	UserID        string `gorm:"index;size:64"`
	Pair          string `gorm:"index;size:32"`
	Type          string `gorm:"size:32"`
	Side          string `gorm:"size:8"`
	Quantity      string `gorm:"type:numeric(78,0)"`
	Price         string `gorm:"type:numeric(78,0)"`
	StopPrice     string `gorm:"type:numeric(78,0)"`
	TimeInForce   string `gorm:"size:8"`
	PostOnly      bool
	ReduceOnly    bool
	Leverage      int64
	Status        string `gorm:"index;size:32"`
	Filled        string `gorm:"type:numeric(78,0)"`
	Remaining     string `gorm:"type:numeric(78,0)"`
	AveragePrice  string `gorm:"type:numeric(78,0)"`
	Fees          string `gorm:"type:numeric(78,0)"`
	FeeAsset      string `gorm:"size:16"`
	LinkedOrderID string `gorm:"size:32"`
	ParentOrderID string `gorm:"size:32"`
	ArchiveRef    string `gorm:"size:128"`
	RejectReason  string `gorm:"size:256"`
	PlacedAt      time.Time
	UpdatedAtWire time.Time
}

// TableName pins the table name independent of the Go type name.
func (Order) TableName() string { return "orders" }

// Trade is the warm-tier row for a domain.Trade.
type Trade struct {
	gorm.Model
	TradeID       string `gorm:"uniqueIndex;size:32"`
	Pair          string `gorm:"index;size:32"`
	BuyOrderID    string `gorm:"index;size:32"`
	SellOrderID   string `gorm:"index;size:32"`
	Price         string `gorm:"type:numeric(78,0)"`
	Quantity      string `gorm:"type:numeric(78,0)"`
	QuoteQuantity string `gorm:"type:numeric(78,0)"`
	Fee           string `gorm:"type:numeric(78,0)"`
	FeeAsset      string `gorm:"size:16"`
	BuyerIsMaker  bool
	Sequence      uint64 `gorm:"index"`
	OnChainStatus string `gorm:"size:16"`
	TxHash        string `gorm:"size:80"`
	TradedAt      time.Time `gorm:"index"`
}

func (Trade) TableName() string { return "trades" }

// Position is the warm-tier row for a domain.Position.
type Position struct {
	gorm.Model
	UserID           string `gorm:"index;size:64"`
	Contract         string `gorm:"index;size:32"`
	Side             string `gorm:"size:8"`
	Size             string `gorm:"type:numeric(78,0)"`
	EntryPrice       string `gorm:"type:numeric(78,0)"`
	MarkPrice        string `gorm:"type:numeric(78,0)"`
	Leverage         int64
	MarginMode       string `gorm:"size:16"`
	Margin           string `gorm:"type:numeric(78,0)"`
	LiquidationPrice string `gorm:"type:numeric(78,0)"`
	FundingPayment   string `gorm:"type:numeric(78,0)"`
	LastFundingTime  time.Time
	Status           string `gorm:"index;size:16"`
}

func (Position) TableName() string { return "positions" }

// MarketData is an OHLCV-style row persisted for each pair/tick per
// SPEC_FULL.md §4.2's "market_data" table, populated from the published
// book/trade stream rather than read on the matching hot path.
type MarketData struct {
	gorm.Model
	Pair       string `gorm:"index;size:32"`
	LastPrice  string `gorm:"type:numeric(78,0)"`
	BestBid    string `gorm:"type:numeric(78,0)"`
	BestAsk    string `gorm:"type:numeric(78,0)"`
	Volume24h  string `gorm:"type:numeric(78,0)"`
	RecordedAt time.Time `gorm:"index"`
}

func (MarketData) TableName() string { return "market_data" }
