package domain

import (
	"time"

	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// MarginMode distinguishes cross margin (shared across all of a user's
// positions) from isolated margin (a position can only draw on its own
// deposited margin) — a dropped feature recovered from the pack's
// perpetual-DEX margin_mode.go (SPEC_FULL.md §4.5).
type MarginMode string

const (
	MarginModeCross    MarginMode = "CROSS"
	MarginModeIsolated MarginMode = "ISOLATED"
)

// PositionStatus tracks a perpetual position's lifecycle.
type PositionStatus string

const (
	PositionStatusOpen        PositionStatus = "OPEN"
	PositionStatusLiquidated  PositionStatus = "LIQUIDATED"
	PositionStatusADLQueued   PositionStatus = "ADL_QUEUED"
	PositionStatusClosed      PositionStatus = "CLOSED"
)

// Position is a perpetual contract position (spec.md §3).
type Position struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Contract   string          `json:"contract"`
	Side       Side            `json:"side"`
	Size       fixedpoint.UInt `json:"size"`
	EntryPrice fixedpoint.UInt `json:"entryPrice"`
	MarkPrice  fixedpoint.UInt `json:"markPrice"`
	Leverage   int64           `json:"leverage"`
	MarginMode MarginMode      `json:"marginMode"`
	Margin     fixedpoint.UInt `json:"margin"`

	// UnrealizedPnLNeg/Pos model a signed quantity without a signed
	// fixed-point type: exactly one of the two is non-zero at a time.
	UnrealizedPnLPositive fixedpoint.UInt `json:"-"`
	UnrealizedPnLNegative fixedpoint.UInt `json:"-"`

	LiquidationPrice fixedpoint.UInt `json:"liquidationPrice"`
	FundingPayment   fixedpoint.UInt `json:"fundingPayment"`
	LastFundingTime  time.Time       `json:"lastFundingTime"`

	Status PositionStatus `json:"status"`
}

// UnrealizedPnL reports the signed unrealized PnL as (isNegative, magnitude).
func (p *Position) UnrealizedPnL() (negative bool, magnitude fixedpoint.UInt) {
	if !p.UnrealizedPnLNegative.IsZero() {
		return true, p.UnrealizedPnLNegative
	}
	return false, p.UnrealizedPnLPositive
}

// SetUnrealizedPnL stores a signed PnL value.
func (p *Position) SetUnrealizedPnL(negative bool, magnitude fixedpoint.UInt) {
	if negative {
		p.UnrealizedPnLNegative = magnitude
		p.UnrealizedPnLPositive = fixedpoint.Zero()
	} else {
		p.UnrealizedPnLPositive = magnitude
		p.UnrealizedPnLNegative = fixedpoint.Zero()
	}
}

// Equity returns margin + unrealizedPnL, floored at zero (a position
// cannot be worth less than nothing once liquidation has been applied).
func (p *Position) Equity() fixedpoint.UInt {
	neg, mag := p.UnrealizedPnL()
	if neg {
		if mag.GTE(p.Margin) {
			return fixedpoint.Zero()
		}
		return p.Margin.Sub(mag)
	}
	return p.Margin.Add(mag)
}
