package matching

import (
	"context"

	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// triggerSet holds resting STOP_LOSS/STOP_LIMIT/TRAILING_STOP orders,
// side-indexed for cheap evaluation on each last-trade update (spec.md
// §4.4). A linear scan is acceptable here: trigger sets are orders of
// magnitude shallower than the ladder itself in practice.
type triggerSet struct {
	buy  []*domain.Order
	sell []*domain.Order

	// bestAdverse records the stopPrice each TRAILING_STOP order had when
	// it was added; nothing reads it. The trailing itself is done by
	// updateTrailingStopPrices, which moves the order's StopPrice against
	// the best opposite-side quote.
	bestAdverse map[string]fixedpoint.UInt
}

func newTriggerSet() *triggerSet {
	return &triggerSet{bestAdverse: make(map[string]fixedpoint.UInt)}
}

func (t *triggerSet) add(o *domain.Order) {
	if o.Side == domain.SideBuy {
		t.buy = append(t.buy, o)
	} else {
		t.sell = append(t.sell, o)
	}
	if o.Type == domain.OrderTypeTrailingStop {
		t.bestAdverse[o.ID] = *o.StopPrice
	}
}

func (t *triggerSet) remove(o *domain.Order) {
	list := &t.buy
	if o.Side == domain.SideSell {
		list = &t.sell
	}
	for i, e := range *list {
		if e.ID == o.ID {
			*list = append((*list)[:i], (*list)[i+1:]...)
			break
		}
	}
	delete(t.bestAdverse, o.ID)
}

// evaluateTriggers runs spec.md §4.4's trigger rules against the latest
// trade price for STOP_LOSS/STOP_LIMIT orders: sell fires when last <=
// stopPrice, buy fires when last >= stopPrice; STOP_LIMIT converts to a
// LIMIT order on trigger, STOP_LOSS converts to MARKET. TRAILING_STOP is
// evaluated separately by refreshTrailingStops, since its reference price
// is the best opposite-side quote rather than last trade (§9).
func (e *PairEngine) evaluateTriggers(ctx context.Context, lastPrice fixedpoint.UInt) {
	fired := e.collectFired(lastPrice)
	for _, o := range fired {
		e.triggers.remove(o)
		e.fireTrigger(ctx, o)
	}
}

// refreshTrailingStops recomputes every TRAILING_STOP's stopPrice against
// the current best opposite-side quote (best bid for a sell trailing-stop,
// best ask for a buy trailing-stop) and fires any that have been crossed.
// This is the resolved form of spec.md §9's Open Question: the reference
// price tracks continuously as the book moves, not only on trade prints,
// so it must run after every book mutation — rest, cancel, fill, and
// Iceberg reveal — not just inside matchPass.
func (e *PairEngine) refreshTrailingStops(ctx context.Context) {
	e.updateTrailingStopPrices()

	var fired []*domain.Order
	for _, o := range e.triggers.sell {
		if o.Type != domain.OrderTypeTrailingStop {
			continue
		}
		if bestBid, ok := e.ladder.BestPrice(domain.SideBuy); ok && bestBid.LTE(*o.StopPrice) {
			fired = append(fired, o)
		}
	}
	for _, o := range e.triggers.buy {
		if o.Type != domain.OrderTypeTrailingStop {
			continue
		}
		if bestAsk, ok := e.ladder.BestPrice(domain.SideSell); ok && bestAsk.GTE(*o.StopPrice) {
			fired = append(fired, o)
		}
	}
	for _, o := range fired {
		e.triggers.remove(o)
		e.fireTrigger(ctx, o)
	}
}

func (e *PairEngine) updateTrailingStopPrices() {
	for _, o := range append(append([]*domain.Order{}, e.triggers.buy...), e.triggers.sell...) {
		if o.Type != domain.OrderTypeTrailingStop {
			continue
		}
		dist := *o.TrailDistance
		if o.Side == domain.SideSell {
			// Sell trailing-stop trails below the running best bid: as
			// the bid rises, stopPrice rises with it, staying dist below.
			bestBid, ok := e.ladder.BestPrice(domain.SideBuy)
			if !ok {
				continue
			}
			candidate := fixedpoint.Zero()
			if bestBid.GT(dist) {
				candidate = bestBid.Sub(dist)
			}
			if candidate.GT(*o.StopPrice) {
				o.StopPrice = &candidate
			}
		} else {
			// Buy trailing-stop trails above the running best ask.
			bestAsk, ok := e.ladder.BestPrice(domain.SideSell)
			if !ok {
				continue
			}
			candidate := bestAsk.Add(dist)
			if candidate.LT(*o.StopPrice) {
				o.StopPrice = &candidate
			}
		}
	}
}

func (e *PairEngine) collectFired(lastPrice fixedpoint.UInt) []*domain.Order {
	var fired []*domain.Order
	for _, o := range e.triggers.sell {
		if o.Type == domain.OrderTypeTrailingStop {
			continue
		}
		if lastPrice.LTE(*o.StopPrice) {
			fired = append(fired, o)
		}
	}
	for _, o := range e.triggers.buy {
		if o.Type == domain.OrderTypeTrailingStop {
			continue
		}
		if lastPrice.GTE(*o.StopPrice) {
			fired = append(fired, o)
		}
	}
	return fired
}

func (e *PairEngine) fireTrigger(ctx context.Context, o *domain.Order) {
	o.Status = domain.StatusTriggered
	e.logger.Debug("conditional order triggered", zap.String("orderId", o.ID), zap.String("type", string(o.Type)))

	switch o.Type {
	case domain.OrderTypeStopLoss:
		o.Type = domain.OrderTypeMarket
	case domain.OrderTypeStopLimit, domain.OrderTypeTrailingStop:
		o.Type = domain.OrderTypeLimit
	}

	if err := e.priceBandGuard(o); err != nil {
		o.Status = domain.StatusRejected
		o.RejectReason = err.Error()
		e.publishReject(ctx, o)
		return
	}

	if _, err := e.runImmediateMatchAndRest(ctx, o); err != nil {
		e.logger.Warn("triggered order failed during commit", zap.String("orderId", o.ID), zap.Error(err))
	}

	if sibling, ok := e.ocoLinks[o.ID]; ok {
		e.cancelLinkedSilently(ctx, sibling)
	}
}
