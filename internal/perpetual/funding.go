package perpetual

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// NextFundingTime returns the next UTC-aligned funding boundary after now,
// given the configured interval (spec.md §4.5 "at each fundingInterval").
// Grounded on x/perpetual/keeper/funding.go's nextFundingTimeUTC, which
// hardcodes an 8h interval; this version takes the interval from Config so
// a deployment can shorten or lengthen it without a code change.
func (e *Engine) NextFundingTime(now time.Time) time.Time {
	utc := now.UTC()
	dayStart := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	period := time.Duration(e.cfg.FundingIntervalHours) * time.Hour
	if period <= 0 {
		period = 8 * time.Hour
	}
	elapsed := utc.Sub(dayStart)
	return dayStart.Add((elapsed/period + 1) * period)
}

// ApplyFunding accrues one funding settlement across every open position
// on contract (spec.md §4.5): a signed rate, bounded to ±FundingMaxRateBps,
// applied per position as size*markPrice/10^18 * |rateBps|/10000. Longs pay when rate
// is positive and shorts receive, and vice versa when rate is negative.
// rateBps arrives from the caller's funding-rate computation (a
// mark/index basis observation); this method owns only its clamping and
// application, not its derivation.
func (e *Engine) ApplyFunding(ctx context.Context, contract string, rateBps int64, now time.Time) {
	if rateBps > e.cfg.FundingMaxRateBps {
		rateBps = e.cfg.FundingMaxRateBps
	} else if rateBps < -e.cfg.FundingMaxRateBps {
		rateBps = -e.cfg.FundingMaxRateBps
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for key, pos := range e.positions {
		if key.contract != contract || pos.Status != domain.PositionStatusOpen {
			continue
		}
		e.applyFundingToPosition(pos, rateBps, now)
	}
}

func (e *Engine) applyFundingToPosition(pos *domain.Position, rateBps int64, now time.Time) {
	notional, err := fixedpoint.MulOverBase(pos.Size, pos.MarkPrice)
	if err != nil {
		e.logger.Error("perpetual: failed to compute funding notional", zap.Error(err))
		return
	}
	magnitude, err := fixedpoint.FeeBps(notional, absInt64(rateBps))
	if err != nil {
		e.logger.Error("perpetual: failed to compute funding payment", zap.Error(err))
		return
	}
	pos.LastFundingTime = now
	if magnitude.IsZero() {
		pos.FundingPayment = fixedpoint.Zero()
		return
	}

	longPays := (rateBps > 0 && pos.Side == domain.SideBuy) || (rateBps < 0 && pos.Side == domain.SideSell)

	acc := e.account(pos.UserID, domain.QuoteAsset(pos.Contract))
	if longPays {
		paid := fixedpoint.Min(magnitude, acc.Balance)
		acc.Balance = acc.Balance.Sub(paid)
		pos.FundingPayment = paid
	} else {
		acc.Balance = acc.Balance.Add(magnitude)
		pos.FundingPayment = magnitude
	}
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
