package matching

import (
	"context"

	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/domain"
)

// Rehydrate reconstructs in-memory matching state from orders previously
// persisted to warm storage with status OPEN or PARTIALLY_FILLED (spec.md
// §9 "Global state": the ladder is durable-backed, not ephemeral — a
// restart must not silently drop resting orders). It must run before the
// pair's worker goroutine starts taking live commands, since it mutates
// e.orders/e.ladder/e.triggers directly rather than going through the
// single-writer command channel.
//
// The warm schema only carries the fields every order type shares
// (spec.md §3's common fields plus Price/StopPrice); it has no column for
// an Iceberg's VisibleAmount/TotalAmount split, a TRAILING_STOP's
// TrailDistance, a TWAP/VWAP's slice schedule, or a privacy order's
// EncryptedQuantity. Those variants rehydrate on a best-effort basis (an
// Iceberg rests its full remaining quantity as a single visible slice,
// losing the reveal behavior) or are expired outright with a logged
// warning when no safe reconstruction exists, rather than silently
// resuming with guessed state.
func (e *PairEngine) Rehydrate(ctx context.Context, orders []*domain.Order) {
	linkGroups := make(map[string][]*domain.Order)

	for _, o := range orders {
		if o.Status.IsTerminal() {
			continue
		}
		e.orders[o.ID] = o

		switch {
		case o.Private:
			e.logger.Warn("matching: cannot rehydrate a privacy order, encrypted amount is not persisted to warm storage", zap.String("orderId", o.ID))
			continue

		case o.Type == domain.OrderTypeTWAP || o.Type == domain.OrderTypeVWAP:
			e.logger.Warn("matching: cannot rehydrate a twap/vwap slice schedule, expiring the remainder", zap.String("orderId", o.ID))
			e.expireUnrehydratable(ctx, o)
			continue

		case o.Type == domain.OrderTypeTrailingStop:
			e.logger.Warn("matching: cannot rehydrate a trailing-stop trail distance, expiring the order", zap.String("orderId", o.ID))
			e.expireUnrehydratable(ctx, o)
			continue

		case o.Type == domain.OrderTypeStopLoss || o.Type == domain.OrderTypeStopLimit:
			if o.StopPrice == nil || o.StopPrice.IsZero() {
				e.logger.Warn("matching: dropping conditional order with no stopPrice on rehydration", zap.String("orderId", o.ID))
				continue
			}
			e.triggers.add(o)

		case o.Price == nil || o.Price.IsZero():
			e.logger.Warn("matching: dropping restable order with no price on rehydration", zap.String("orderId", o.ID), zap.String("type", string(o.Type)))
			continue

		default: // LIMIT, ICEBERG, PERPETUAL_LIMIT
			e.ladder.AddOrder(o.Side, o.ID, *o.Price, o.Remaining)
			if o.Type == domain.OrderTypeIceberg {
				e.icebergs[o.ID] = &icebergState{visible: o.Remaining}
			}
		}

		if o.LinkedOrderID != nil {
			linkGroups[*o.LinkedOrderID] = append(linkGroups[*o.LinkedOrderID], o)
		}
	}

	// OCO siblings both carry the parent's id as LinkedOrderID (invariant
	// I7); any group of exactly two rehydrated orders sharing one id is
	// reconstructed as a live OCO pair so cancel-on-fill keeps working
	// across a restart.
	for _, group := range linkGroups {
		if len(group) == 2 {
			e.ocoLinks[group[0].ID] = group[1].ID
			e.ocoLinks[group[1].ID] = group[0].ID
		}
	}

	e.publishBookSnapshot(ctx)
	e.refreshTrailingStops(ctx)
}

func (e *PairEngine) expireUnrehydratable(ctx context.Context, o *domain.Order) {
	o.Status = domain.StatusExpired
	o.UpdatedAt = e.clock.Now()
	e.persistAsync(ctx, o, nil)
	e.publisher.PublishOrder(ctx, "orderCancelled", o)
}

// FlushOpenOrders synchronously persists every non-terminal order this
// engine currently holds, so a graceful shutdown leaves warm storage
// current enough for the next startup's Rehydrate pass — unlike the
// fire-and-forget persistAsync used on the matching hot path, this blocks
// the caller until every write has been attempted.
func (e *PairEngine) FlushOpenOrders(ctx context.Context) {
	if e.persister == nil {
		return
	}
	for _, o := range e.orders {
		if o.Status.IsTerminal() {
			continue
		}
		snapshot := *o
		if err := e.persister.SaveOrder(ctx, &snapshot); err != nil {
			e.logger.Warn("matching: shutdown flush failed for order", zap.String("orderId", o.ID), zap.Error(err))
		}
	}
}
