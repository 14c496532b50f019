package matching

import (
	"context"

	"github.com/latticefi/dexcore/internal/coreerrors"
	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/internal/privacyswap"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// placePrivacyOrder is the admission path for an encrypted-matching order
// (spec.md §9 privacy variant): amounts travel as opaque ciphertexts and
// every comparison or output computation is delegated to e.privacy, never
// derived from plaintext the engine holds itself. Price-time priority still
// runs in plaintext against a FIFO queue kept separate from the regular
// ladder, exactly as the regular book does for price levels; only Quantity
// is ever encrypted, so the engine tracks "exhausted or not" rather than a
// plaintext Remaining for these orders.
func (e *PairEngine) placePrivacyOrder(ctx context.Context, o *domain.Order) (*Result, error) {
	if o.Price == nil || o.Price.IsZero() {
		err := coreerrors.New(coreerrors.ErrInvalidPrice, "privacy orders require a limit price")
		o.Status = domain.StatusRejected
		o.RejectReason = err.Error()
		e.publishReject(ctx, o)
		return &Result{Order: o, Rejected: true}, err
	}
	if o.EncryptedQuantity == "" {
		err := coreerrors.New(coreerrors.ErrMissingField, "privacy orders require an encryptedQuantity ciphertext")
		o.Status = domain.StatusRejected
		o.RejectReason = err.Error()
		e.publishReject(ctx, o)
		return &Result{Order: o, Rejected: true}, err
	}

	if !e.privacy.Available() {
		// spec.md's fallback when the oracle is unavailable: reject the
		// privacy order outright and keep matching the regular book. Never
		// a Fatal condition for the pair.
		err := coreerrors.New(coreerrors.ErrPrivacyOracleUnavailable, "privacy oracle unavailable, rejecting encrypted order")
		o.Status = domain.StatusRejected
		o.RejectReason = err.Error()
		e.publishReject(ctx, o)
		return &Result{Order: o, Rejected: true}, err
	}

	var trades []*domain.Trade
	opp := o.Side.Opposite()
	takerExhausted := false

	for !takerExhausted {
		queue := e.privacyResting[opp]
		if len(queue) == 0 {
			break
		}
		maker := queue[0]
		if !priceAcceptable(o.Side, *o.Price, *maker.Price) {
			break
		}

		takerCT := privacyswap.Ciphertext{Value: o.EncryptedQuantity}
		makerCT := privacyswap.Ciphertext{Value: maker.EncryptedQuantity}

		result, err := e.privacy.ComputeSwapOutput(ctx, privacyswap.SwapRequest{
			TakerAmount: takerCT,
			MakerAmount: makerCT,
			Price:       maker.Price.FromBase(),
		})
		if err != nil {
			return e.rejectPrivacyOrder(ctx, o, trades, err)
		}

		fillQty, err := e.decryptFillFor(ctx, o.UserID, result.TakerFill)
		if err != nil {
			return e.rejectPrivacyOrder(ctx, o, trades, err)
		}
		if fillQty.IsZero() {
			break
		}

		exactMatch, err := e.privacy.CompareEncrypted(ctx, privacyswap.CompareEQ, takerCT, makerCT)
		if err != nil {
			return e.rejectPrivacyOrder(ctx, o, trades, err)
		}
		takerLarger := false
		if !exactMatch {
			takerLarger, err = e.privacy.CompareEncrypted(ctx, privacyswap.CompareGT, takerCT, makerCT)
			if err != nil {
				return e.rejectPrivacyOrder(ctx, o, trades, err)
			}
		}

		now := e.clock.Now()
		buyID, sellID, buyerIsMaker := buySellIDs(o, maker)
		trade, err := domain.NewTrade(e.Pair, *maker.Price, fillQty, buyID, sellID, buyerIsMaker, e.ladder.Sequence()+1, now)
		if err != nil {
			return nil, err
		}
		e.applyFees(trade)
		trades = append(trades, trade)

		o.Filled = o.Filled.Add(fillQty)
		maker.Filled = maker.Filled.Add(fillQty)
		o.UpdatedAt, maker.UpdatedAt = now, now

		switch {
		case exactMatch:
			takerExhausted = true
			maker.EncryptedQuantity = ""
			maker.Status = domain.StatusFilled
			e.popPrivacyResting(opp)
			e.settlePrivacyMakerTerminal(ctx, maker)
		case takerLarger:
			maker.EncryptedQuantity = ""
			maker.Status = domain.StatusFilled
			o.EncryptedQuantity = result.Remainder.Value
			o.Status = domain.StatusPartiallyFilled
			e.popPrivacyResting(opp)
			e.settlePrivacyMakerTerminal(ctx, maker)
		default:
			takerExhausted = true
			maker.EncryptedQuantity = result.Remainder.Value
			maker.Status = domain.StatusPartiallyFilled
			e.persistAsync(ctx, maker, nil)
			e.publisher.PublishOrder(ctx, "orderUpdated", maker)
		}
	}

	e.commitTrades(ctx, trades)

	if !takerExhausted {
		if o.Status != domain.StatusPartiallyFilled {
			o.Status = domain.StatusOpen
		}
		e.privacyResting[o.Side] = append(e.privacyResting[o.Side], o)
	} else if o.Status != domain.StatusPartiallyFilled {
		o.Status = domain.StatusFilled
	}

	e.orders[o.ID] = o
	e.persistAsync(ctx, o, trades)
	e.publisher.PublishOrder(ctx, orderEventKind(o), o)

	return &Result{Order: o, Trades: trades}, nil
}

func (e *PairEngine) rejectPrivacyOrder(ctx context.Context, o *domain.Order, trades []*domain.Trade, cause error) (*Result, error) {
	// The oracle tripped mid-match: any already-committed trades stand,
	// but the taker's unconsumed remainder is rejected rather than left
	// resting against an oracle we now expect to keep failing.
	if len(trades) > 0 {
		e.commitTrades(ctx, trades)
	}
	o.Status = domain.StatusRejected
	o.RejectReason = cause.Error()
	e.publishReject(ctx, o)
	return &Result{Order: o, Trades: trades, Rejected: true}, cause
}

// decryptFillFor asks the oracle to decrypt a fill amount the owner is
// entitled to see, then parses it into the engine's fixed-point
// representation for trade/settlement bookkeeping. The engine never
// decrypts anything on its own authority — this always passes through
// e.privacy, which only returns plaintext the oracle has attested belongs
// to owner.
func (e *PairEngine) decryptFillFor(ctx context.Context, owner string, ct privacyswap.Ciphertext) (fixedpoint.UInt, error) {
	plain, err := e.privacy.DecryptForOwner(ctx, owner, ct)
	if err != nil {
		return fixedpoint.UInt{}, err
	}
	qty, err := fixedpoint.ToBase(plain)
	if err != nil {
		return fixedpoint.UInt{}, coreerrors.Wrap(err, coreerrors.ErrInvalidAmount, "privacy oracle returned a malformed fill amount")
	}
	return qty, nil
}

func (e *PairEngine) popPrivacyResting(side domain.Side) {
	queue := e.privacyResting[side]
	if len(queue) == 0 {
		return
	}
	e.privacyResting[side] = queue[1:]
}

func (e *PairEngine) settlePrivacyMakerTerminal(ctx context.Context, maker *domain.Order) {
	e.persistAsync(ctx, maker, nil)
	e.publisher.PublishOrder(ctx, "orderFilled", maker)
}

// cancelPrivacyOrder removes a resting encrypted-matching order from its
// side's FIFO queue (the counterpart of ladder.RemoveOrder for the regular
// book, which privacy orders never enter).
func (e *PairEngine) cancelPrivacyOrder(o *domain.Order) {
	queue := e.privacyResting[o.Side]
	for i, resting := range queue {
		if resting.ID == o.ID {
			e.privacyResting[o.Side] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}
