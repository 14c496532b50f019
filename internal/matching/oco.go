package matching

import (
	"context"

	"github.com/latticefi/dexcore/internal/coreerrors"
	"github.com/latticefi/dexcore/internal/domain"
)

// placeOCO splits an OCO parent into its two linked children — a LIMIT at
// the target price and a STOP_LIMIT at the stop price — and links them so
// a fill or cancel of either atomically cancels the other (spec.md §4.4,
// invariant I7). The parent itself is bookkeeping only: it never rests or
// matches directly.
func (e *PairEngine) placeOCO(ctx context.Context, parent *domain.Order) (*Result, error) {
	if parent.Price == nil || parent.Price.IsZero() {
		err := coreerrors.New(coreerrors.ErrInvalidPrice, "OCO orders require a limit target price")
		parent.Status = domain.StatusRejected
		parent.RejectReason = err.Error()
		e.publishReject(ctx, parent)
		return &Result{Order: parent, Rejected: true}, err
	}
	if parent.StopPrice == nil || parent.StopPrice.IsZero() {
		err := coreerrors.New(coreerrors.ErrInvalidPrice, "OCO orders require a stop price")
		parent.Status = domain.StatusRejected
		parent.RejectReason = err.Error()
		e.publishReject(ctx, parent)
		return &Result{Order: parent, Rejected: true}, err
	}

	limitChild := &domain.Order{
		ID:          domain.NewOrderID(),
		UserID:      parent.UserID,
		Pair:        parent.Pair,
		Type:        domain.OrderTypeLimit,
		Side:        parent.Side,
		Quantity:    parent.Quantity,
		Price:       parent.Price,
		TimeInForce: domain.TIFGTC,
		ParentOrderID: &parent.ID,
	}
	stopChild := &domain.Order{
		ID:          domain.NewOrderID(),
		UserID:      parent.UserID,
		Pair:        parent.Pair,
		Type:        domain.OrderTypeStopLimit,
		Side:        parent.Side,
		Quantity:    parent.Quantity,
		Price:       parent.Price,
		StopPrice:   parent.StopPrice,
		TimeInForce: domain.TIFGTC,
		ParentOrderID: &parent.ID,
	}
	sharedLink := parent.ID
	limitChild.LinkedOrderID = &sharedLink
	stopChild.LinkedOrderID = &sharedLink
	e.ocoLinks[limitChild.ID] = stopChild.ID
	e.ocoLinks[stopChild.ID] = limitChild.ID

	parent.Status = domain.StatusOpen
	e.orders[parent.ID] = parent
	e.publisher.PublishOrder(ctx, "orderPlaced", parent)

	limitResult, err := e.runImmediateMatchAndRestForChild(ctx, limitChild)
	if err != nil {
		return nil, err
	}

	var trades []*domain.Trade
	trades = append(trades, limitResult.Trades...)

	if !limitChild.Status.IsTerminal() || limitChild.Status == domain.StatusCancelled {
		// Limit leg didn't immediately fill/cancel-for-other-reasons:
		// arm the stop leg so exactly one of the two can eventually win.
		if limitChild.Status == domain.StatusOpen || limitChild.Status == domain.StatusPartiallyFilled {
			stopChild.Status = domain.StatusOpen
			e.orders[stopChild.ID] = stopChild
			e.triggers.add(stopChild)
			e.persistAsync(ctx, stopChild, nil)
			e.publisher.PublishOrder(ctx, "orderPlaced", stopChild)
		}
	} else {
		// Limit leg already filled/rejected terminally: the stop leg
		// never arms.
		stopChild.Status = domain.StatusCancelled
		e.orders[stopChild.ID] = stopChild
		delete(e.ocoLinks, limitChild.ID)
		delete(e.ocoLinks, stopChild.ID)
	}

	return &Result{Order: parent, Trades: trades}, nil
}

// runImmediateMatchAndRestForChild validates price-band then runs the
// shared core loop, without re-running top-level validate (the child was
// synthesized by the engine itself from an already-validated parent).
func (e *PairEngine) runImmediateMatchAndRestForChild(ctx context.Context, child *domain.Order) (*Result, error) {
	now := e.clock.Now()
	child.Timestamp = now
	child.UpdatedAt = now
	child.Remaining = child.Quantity
	child.Status = domain.StatusPending

	if err := e.priceBandGuard(child); err != nil {
		child.Status = domain.StatusRejected
		child.RejectReason = err.Error()
		e.publishReject(ctx, child)
		return &Result{Order: child, Rejected: true}, nil
	}
	return e.runImmediateMatchAndRest(ctx, child)
}
