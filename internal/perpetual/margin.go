// Package perpetual implements the Perpetual & Margin Bookkeeping module
// (spec.md §4.5): position/account state, margin admission checks,
// liquidation price, the auto-deleverage queue, and funding accrual.
// Grounded on VictorVVedtion-perp-dex's x/perpetual/keeper (margin.go,
// funding.go) and x/clearinghouse/keeper/adl.go, re-expressed against
// this codebase's plain in-memory keeper + zap logging idiom rather than
// cosmos-sdk's KVStore/sdk.Context, since this module is not a chain
// application.
package perpetual

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/coreerrors"
	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// Config parameterizes margin/liquidation/funding behavior (spec.md §6).
type Config struct {
	MaintenanceMarginBps int64
	MaxLeverage          int64
	FundingMaxRateBps    int64
	FundingIntervalHours int64
}

// Engine is the perpetual bookkeeping keeper: it implements
// matching.MarginChecker and owns position/account/mark-price state for
// every perpetual contract. One Engine instance is shared across all
// perpetual pair engines, guarded by a single mutex — position updates
// are comparatively rare next to the matching hot path, so a coarse lock
// is the teacher's preferred tradeoff over per-contract sharding here
// (see internal/matching.Manager's per-pair sharding for the contrast,
// where updates are the hot path).
type Engine struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	positions map[positionKey]*domain.Position
	accounts  map[string]*domain.Account
	markPrice map[string]fixedpoint.UInt
}

type positionKey struct {
	contract string
	userID   string
}

// New builds a perpetual bookkeeping Engine.
func New(cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		positions: make(map[positionKey]*domain.Position),
		accounts:  make(map[string]*domain.Account),
		markPrice: make(map[string]fixedpoint.UInt),
	}
}

// CreditAccount deposits into a user's collateral balance (the
// bookkeeping side of the Settlement Surface's depositToDEX, spec.md §6).
func (e *Engine) CreditAccount(userID, asset string, amount fixedpoint.UInt) {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc := e.account(userID, asset)
	acc.Balance = acc.Balance.Add(amount)
}

// DebitAccount withdraws from a user's collateral balance, rejecting a
// withdrawal that would exceed the deposited balance (spec.md §7
// Authorization: "withdraw exceeding balance").
func (e *Engine) DebitAccount(userID, asset string, amount fixedpoint.UInt) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc := e.account(userID, asset)
	if amount.GT(acc.Balance) {
		return coreerrors.New(coreerrors.ErrWithdrawExceedsBalance, "withdrawal exceeds deposited balance")
	}
	acc.Balance = acc.Balance.Sub(amount)
	return nil
}

func (e *Engine) account(userID, asset string) *domain.Account {
	acc, ok := e.accounts[userID]
	if !ok {
		acc = &domain.Account{UserID: userID, Asset: asset, Balance: fixedpoint.Zero(), ReservedMargin: fixedpoint.Zero()}
		e.accounts[userID] = acc
	}
	return acc
}

// SetMarkPrice updates the reference price used for perpetual valuation
// and liquidation for contract (spec.md §4.5 "after each mark update").
// Called from the settlement/market-data feed, not the matching hot path
// directly — a pair engine publishes trades, a mark-price subscriber
// calls this.
func (e *Engine) SetMarkPrice(contract string, mark fixedpoint.UInt) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markPrice[contract] = mark
	for key, pos := range e.positions {
		if key.contract != contract || pos.Status != domain.PositionStatusOpen {
			continue
		}
		e.revalue(pos, mark)
	}
}

// CheckMargin implements matching.MarginChecker: admits a perpetual order
// only if the user's free margin covers the initial requirement (spec.md
// §4.5 "A new perpetual order is admitted only if the user's free margin
// covers the requirement"). Non-perpetual orders pass through untouched.
func (e *Engine) CheckMargin(ctx context.Context, order *domain.Order) error {
	if order.Type != domain.OrderTypePerpetualLimit && order.Type != domain.OrderTypePerpetualMarket {
		return nil
	}
	if order.Leverage < 1 || order.Leverage > e.cfg.MaxLeverage {
		return coreerrors.New(coreerrors.ErrLeverageOutOfBounds, fmt.Sprintf("leverage %d outside [1,%d]", order.Leverage, e.cfg.MaxLeverage))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	mark := e.markPriceLocked(order.Pair)
	refPrice := mark
	if order.Price != nil && order.Price.GT(fixedpoint.Zero()) {
		refPrice = *order.Price
	}

	required, err := requiredMargin(order.Quantity, refPrice, order.Leverage)
	if err != nil {
		return err
	}

	acc := e.account(order.UserID, domain.QuoteAsset(order.Pair))
	if required.GT(acc.FreeMargin()) {
		return coreerrors.New(coreerrors.ErrInsufficientMargin, "free margin does not cover required margin")
	}
	return nil
}

// requiredMargin computes spec.md §4.5's "margin required to open size s
// at leverage L and mark m": s*m/(L*10^18).
func requiredMargin(size, markPrice fixedpoint.UInt, leverage int64) (fixedpoint.UInt, error) {
	notional, err := fixedpoint.MulOverBase(size, markPrice)
	if err != nil {
		return fixedpoint.UInt{}, err
	}
	return fixedpoint.DivOverBase(notional, fixedpoint.FromU64(uint64(leverage)))
}

// OnFill implements matching.MarginChecker: opens, increases, reduces, or
// flips a position on a perpetual fill, reserving the corresponding
// margin from the user's account.
func (e *Engine) OnFill(ctx context.Context, order *domain.Order, fillQty, fillPrice fixedpoint.UInt) {
	if order.Type != domain.OrderTypePerpetualLimit && order.Type != domain.OrderTypePerpetualMarket {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := positionKey{contract: order.Pair, userID: order.UserID}
	pos, ok := e.positions[key]
	if !ok {
		pos = &domain.Position{
			ID: order.UserID + ":" + order.Pair, UserID: order.UserID, Contract: order.Pair,
			Side: order.Side, MarginMode: domain.MarginModeIsolated, Status: domain.PositionStatusOpen,
			EntryPrice: fillPrice, Size: fixedpoint.Zero(), Margin: fixedpoint.Zero(),
			MarkPrice: e.markPriceLocked(order.Pair),
		}
		e.positions[key] = pos
	}

	required, err := requiredMargin(fillQty, fillPrice, order.Leverage)
	if err != nil {
		e.logger.Error("perpetual: failed to compute fill margin", zap.Error(err))
		return
	}

	if pos.Size.IsZero() || pos.Side == order.Side {
		newSize := pos.Size.Add(fillQty)
		weighted, _ := fixedpoint.MulOverBase(pos.Size, pos.EntryPrice)
		added, _ := fixedpoint.MulOverBase(fillQty, fillPrice)
		newEntry, err := fixedpoint.DivOverBase(weighted.Add(added), newSize)
		if err == nil {
			pos.EntryPrice = newEntry
		}
		pos.Size = newSize
		pos.Side = order.Side
		pos.Leverage = order.Leverage
		pos.Margin = pos.Margin.Add(required)

		acc := e.account(order.UserID, domain.QuoteAsset(order.Pair))
		acc.ReservedMargin = acc.ReservedMargin.Add(required)
	} else {
		e.reduceOrFlip(pos, order, fillQty, fillPrice, required)
	}

	e.revalue(pos, e.markPriceLocked(order.Pair))
}

// reduceOrFlip closes size against an opposite-side fill, releasing a
// proportional share of reserved margin, and opens a new position on the
// opposite side if the fill overshoots the existing size.
func (e *Engine) reduceOrFlip(pos *domain.Position, order *domain.Order, fillQty, fillPrice, required fixedpoint.UInt) {
	closeQty := fixedpoint.Min(pos.Size, fillQty)
	if !pos.Size.IsZero() {
		releaseFrac, err := fixedpoint.DivOverBase(closeQty, pos.Size)
		if err == nil {
			released, _ := fixedpoint.MulOverBase(pos.Margin, releaseFrac)
			pos.Margin = pos.Margin.Sub(released)
			acc := e.account(order.UserID, domain.QuoteAsset(order.Pair))
			if released.GT(acc.ReservedMargin) {
				acc.ReservedMargin = fixedpoint.Zero()
			} else {
				acc.ReservedMargin = acc.ReservedMargin.Sub(released)
			}
		}
	}
	pos.Size = pos.Size.Sub(closeQty)

	if pos.Size.IsZero() {
		pos.Status = domain.PositionStatusClosed
	}

	remainder := fillQty.Sub(closeQty)
	if remainder.IsZero() {
		return
	}

	pos.Side = order.Side
	pos.Size = remainder
	pos.EntryPrice = fillPrice
	pos.Status = domain.PositionStatusOpen
	flipMargin, _ := fixedpoint.MulDiv(required, remainder, fillQty)
	pos.Margin = flipMargin
	acc := e.account(order.UserID, domain.QuoteAsset(order.Pair))
	acc.ReservedMargin = acc.ReservedMargin.Add(flipMargin)
}

func (e *Engine) markPriceLocked(contract string) fixedpoint.UInt {
	if mark, ok := e.markPrice[contract]; ok {
		return mark
	}
	return fixedpoint.Zero()
}

// Position returns a user's position on contract, if any.
func (e *Engine) Position(contract, userID string) (*domain.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[positionKey{contract: contract, userID: userID}]
	return pos, ok
}

// Positions returns every position the engine tracks, whatever its
// status, a helper for the ADL queue
// builder and the reconciler.
func (e *Engine) Positions() []*domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, pos)
	}
	return out
}
