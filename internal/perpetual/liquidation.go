package perpetual

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// revalue recomputes unrealizedPnL and liquidationPrice for pos against
// mark (spec.md §4.5 "after each mark update, unrealized PnL and
// liquidationPrice are recomputed per position"), then liquidates it if
// the maintenance condition is breached.
func (e *Engine) revalue(pos *domain.Position, mark fixedpoint.UInt) {
	if pos.Size.IsZero() {
		return
	}
	pos.MarkPrice = mark

	neg, mag := unrealizedPnL(pos, mark)
	pos.SetUnrealizedPnL(neg, mag)

	pos.LiquidationPrice = liquidationPrice(pos, e.cfg.MaintenanceMarginBps)

	if pos.Status != domain.PositionStatusOpen {
		return
	}
	if e.breachesMaintenance(pos) {
		e.liquidate(pos)
	}
}

// unrealizedPnL computes size*(mark-entry)/10^18 for a long, or
// size*(entry-mark)/10^18 for a short, returning (isNegative, magnitude)
// since fixedpoint.UInt has no signed representation (spec.md §3).
func unrealizedPnL(pos *domain.Position, mark fixedpoint.UInt) (neg bool, mag fixedpoint.UInt) {
	long := pos.Side == domain.SideBuy
	var hi, lo fixedpoint.UInt
	if long {
		neg = pos.EntryPrice.GT(mark)
		hi, lo = maxMin(mark, pos.EntryPrice)
	} else {
		neg = mark.GT(pos.EntryPrice)
		hi, lo = maxMin(pos.EntryPrice, mark)
	}
	diff := hi.Sub(lo)
	pnl, err := fixedpoint.MulOverBase(pos.Size, diff)
	if err != nil {
		return false, fixedpoint.Zero()
	}
	return neg, pnl
}

func maxMin(a, b fixedpoint.UInt) (fixedpoint.UInt, fixedpoint.UInt) {
	if a.GTE(b) {
		return a, b
	}
	return b, a
}

// breachesMaintenance reports spec.md §4.5's liquidation condition:
// margin + unrealizedPnL <= maintenanceMargin, where maintenanceMargin is
// maintBps/10000 of current notional (size*mark/10^18).
func (e *Engine) breachesMaintenance(pos *domain.Position) bool {
	notional, err := fixedpoint.MulOverBase(pos.Size, pos.MarkPrice)
	if err != nil {
		return false
	}
	maintenance, err := fixedpoint.FeeBps(notional, e.cfg.MaintenanceMarginBps)
	if err != nil {
		return false
	}
	return pos.Equity().LTE(maintenance)
}

// liquidationPrice solves spec.md §4.5's maintenance condition for the
// mark price at the position's current margin: for a long,
// (size*entry - margin)/(size*(1-rate)); for a short,
// (size*entry + margin)/(size*(1+rate)). This generalizes the pack's
// CalculateLiquidationPrice (a flat entry-price*(1 ∓ rate) formula that
// ignores margin and leverage entirely) into one that depends on the
// position's actual current margin, which spec.md's invariant I8
// requires — the flat version gives the same liquidation price for every
// leverage, which cannot satisfy "margin*leverage >= notional".
func liquidationPrice(pos *domain.Position, maintBps int64) fixedpoint.UInt {
	if pos.Size.IsZero() {
		return fixedpoint.Zero()
	}

	marginPerUnit, err := fixedpoint.DivOverBase(pos.Margin, pos.Size)
	if err != nil {
		return fixedpoint.Zero()
	}

	tenK := fixedpoint.FromU64(10_000)
	rate := fixedpoint.FromU64(uint64(maintBps))

	if pos.Side == domain.SideBuy {
		oneMinusRateBps := tenK.Sub(rate)
		if oneMinusRateBps.IsZero() || marginPerUnit.GTE(pos.EntryPrice) {
			return fixedpoint.Zero()
		}
		price, err := fixedpoint.MulDiv(pos.EntryPrice.Sub(marginPerUnit), tenK, oneMinusRateBps)
		if err != nil {
			return fixedpoint.Zero()
		}
		return price
	}

	onePlusRateBps := tenK.Add(rate)
	numerator := pos.EntryPrice.Add(marginPerUnit)
	price, err := fixedpoint.MulDiv(numerator, tenK, onePlusRateBps)
	if err != nil {
		return fixedpoint.Zero()
	}
	return price
}

// liquidate closes pos at mark, realizing its loss up to the deposited
// margin (spec.md §4.5 "the position is closed at mark, realized loss <=
// deposited margin"), or queues it for auto-deleverage when the keeper
// has no direct counterparty liquidity model to absorb the close
// (spec.md §4.5 "or queued for auto-deleverage if insufficient
// liquidity" — this in-process keeper always queues, since matching
// counterparty liquidity against the live book is internal/matching's
// concern, not this package's).
func (e *Engine) liquidate(pos *domain.Position) {
	pos.Status = domain.PositionStatusADLQueued
	acc := e.account(pos.UserID, domain.QuoteAsset(pos.Contract))
	loss := fixedpoint.Min(pos.Margin, acc.Balance)
	acc.Balance = acc.Balance.Sub(loss)
	if pos.Margin.GTE(acc.ReservedMargin) {
		acc.ReservedMargin = fixedpoint.Zero()
	} else {
		acc.ReservedMargin = acc.ReservedMargin.Sub(pos.Margin)
	}
	e.logger.Warn("perpetual: position liquidated, queued for ADL",
		zap.String("user_id", pos.UserID), zap.String("contract", pos.Contract),
		zap.String("size", pos.Size.String()), zap.String("mark", pos.MarkPrice.String()))
}

// ADLCandidate is one entry in the auto-deleverage ranking for a contract
// and side (spec.md §4.5 "ADL queue ordered by profit × leverage").
type ADLCandidate struct {
	UserID   string
	Score    fixedpoint.UInt
	Position *domain.Position
}

// BuildADLQueue ranks every profitable open position on the opposite
// side of a liquidated position, most profitable-times-leveraged first,
// so the head of the queue absorbs the forced close (grounded on
// x/clearinghouse/keeper/adl.go's BuildADLQueue, adapted from a
// PnL-percent-only ranking to profit×leverage per SPEC_FULL.md §4.5).
func (e *Engine) BuildADLQueue(ctx context.Context, contract string, closingSide domain.Side) []ADLCandidate {
	e.mu.Lock()
	defer e.mu.Unlock()

	targetSide := closingSide.Opposite()
	var candidates []ADLCandidate
	for key, pos := range e.positions {
		if key.contract != contract || pos.Status != domain.PositionStatusOpen || pos.Side != targetSide {
			continue
		}
		neg, mag := unrealizedPnL(pos, pos.MarkPrice)
		if neg || mag.IsZero() {
			continue
		}
		score := mag.Mul(fixedpoint.FromU64(uint64(pos.Leverage)))
		candidates = append(candidates, ADLCandidate{UserID: pos.UserID, Score: score, Position: pos})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score.GT(candidates[j].Score) })
	return candidates
}
