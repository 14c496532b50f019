package domain

import "github.com/latticefi/dexcore/pkg/fixedpoint"

// Account is a user's collateral balance for one asset, the bookkeeping
// counterpart to the Settlement Surface's depositToDEX/withdrawFromDEX
// (spec.md §6). ReservedMargin is the sum of margin currently backing
// open isolated positions; cross-margin positions instead draw against
// FreeMargin directly at evaluation time rather than reserving upfront.
type Account struct {
	UserID         string          `json:"userId"`
	Asset          string          `json:"asset"`
	Balance        fixedpoint.UInt `json:"balance"`
	ReservedMargin fixedpoint.UInt `json:"reservedMargin"`
}

// FreeMargin is the balance not already committed to isolated positions
// (spec.md §4.5 "the user's free margin covers the requirement").
func (a *Account) FreeMargin() fixedpoint.UInt {
	if a.ReservedMargin.GTE(a.Balance) {
		return fixedpoint.Zero()
	}
	return a.Balance.Sub(a.ReservedMargin)
}
