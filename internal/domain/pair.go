package domain

import "strings"

// QuoteAsset extracts the quote leg of a "BASE-QUOTE" pair symbol, e.g.
// "BTC-USDT" -> "USDT". Perpetual contracts follow the same convention
// ("BTC-PERP" quotes in "PERP", normally a stablecoin alias configured
// upstream) so fees for spot and perpetual trades both settle in the
// pair's quote asset (SPEC_FULL.md §9 Open Question resolution).
func QuoteAsset(pair string) string {
	_, quote, ok := strings.Cut(pair, "-")
	if !ok {
		return pair
	}
	return quote
}

// BaseAsset extracts the base leg of a "BASE-QUOTE" pair symbol.
func BaseAsset(pair string) string {
	base, _, ok := strings.Cut(pair, "-")
	if !ok {
		return pair
	}
	return base
}
