package matching

import (
	"context"

	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/book"
	"github.com/latticefi/dexcore/internal/coreerrors"
	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// Config bounds a pair engine's behavior (spec.md §4.4, §6 fee config).
type Config struct {
	PriceBandBps    int64 // default 5000 = 50%, spec.md §4.4 step 2
	SpotMakerBps    int64
	SpotTakerBps    int64
	PerpMakerBps    int64
	PerpTakerBps    int64
}

// Result is the synchronous response to PlaceOrder (spec.md §6
// placeOrder shape).
type Result struct {
	Order    *domain.Order
	Trades   []*domain.Trade
	Rejected bool
}

// PairEngine owns one trading pair's ladder, conditional-trigger set, and
// linked-order bookkeeping (OCO/Iceberg/TWAP/VWAP). It is not internally
// synchronized: the single-writer goroutine in Manager is the only
// permitted caller, per the concurrency model in spec.md §5.
type PairEngine struct {
	Pair string
	Perp bool

	cfg    Config
	clock  Clock
	logger *zap.Logger

	publisher EventPublisher
	persister Persister
	settler   SettlementPlanner
	margin    MarginChecker
	privacy   PrivacyGate

	ladder *book.Book

	// privacyResting holds open encrypted-matching orders, FIFO per side,
	// kept separate from ladder since their Quantity carries no plaintext
	// price-time-priority meaning the book type understands.
	privacyResting map[domain.Side][]*domain.Order

	// orders indexes every order this engine has ever seen, live or
	// terminal, for O(1) lookup on cancel/fill/linked-order propagation.
	orders map[string]*domain.Order

	lastTradePrice fixedpoint.UInt
	hasLastTrade   bool

	triggers   *triggerSet
	ocoLinks   map[string]string // orderID -> sibling orderID
	icebergs   map[string]*icebergState
	schedules  map[string]*sliceSchedule

	halted bool
}

// NewPairEngine constructs an engine for pair, wiring the async
// collaborators (spec.md §5: storage/settlement/events never block the
// matching task).
func NewPairEngine(pair string, perp bool, cfg Config, clock Clock, logger *zap.Logger, publisher EventPublisher, persister Persister, settler SettlementPlanner, margin MarginChecker, privacy PrivacyGate) *PairEngine {
	if privacy == nil {
		privacy = NoopPrivacyGate{}
	}
	return &PairEngine{
		Pair:           pair,
		Perp:           perp,
		cfg:            cfg,
		clock:          clock,
		logger:         logger,
		publisher:      publisher,
		persister:      persister,
		settler:        settler,
		margin:         margin,
		privacy:        privacy,
		ladder:         book.New(pair),
		orders:         make(map[string]*domain.Order),
		triggers:       newTriggerSet(),
		ocoLinks:       make(map[string]string),
		icebergs:       make(map[string]*icebergState),
		schedules:      make(map[string]*sliceSchedule),
		privacyResting: make(map[domain.Side][]*domain.Order),
	}
}

// Halted reports whether a Fatal invariant violation has halted this pair
// (spec.md §7).
func (e *PairEngine) Halted() bool { return e.halted }

func (e *PairEngine) halt(ctx context.Context, cause error) {
	e.halted = true
	e.logger.Error("pair halted on invariant violation", zap.String("pair", e.Pair), zap.Error(cause))
}

// PlaceOrder runs the core loop of spec.md §4.4 for a freshly-arrived
// order: validate, price-band guard, immediate-match pass, rest, commit.
func (e *PairEngine) PlaceOrder(ctx context.Context, o *domain.Order) (*Result, error) {
	if e.halted {
		return nil, coreerrors.New(coreerrors.ErrPairHalted, "pair "+e.Pair+" is halted")
	}

	now := e.clock.Now()
	o.Timestamp = now
	o.UpdatedAt = now
	if o.ID == "" {
		o.ID = domain.NewOrderID()
	}
	o.Remaining = o.Quantity
	o.Status = domain.StatusPending

	if err := e.validate(o); err != nil {
		o.Status = domain.StatusRejected
		o.RejectReason = err.Error()
		e.publishReject(ctx, o)
		return &Result{Order: o, Rejected: true}, err
	}

	if o.Private {
		return e.placePrivacyOrder(ctx, o)
	}

	if e.margin != nil {
		if err := e.margin.CheckMargin(ctx, o); err != nil {
			o.Status = domain.StatusRejected
			o.RejectReason = err.Error()
			e.publishReject(ctx, o)
			return &Result{Order: o, Rejected: true}, err
		}
	}

	// Conditional order families never enter the ladder directly; they
	// wait in the trigger set (or slice scheduler) until activated.
	switch o.Type {
	case domain.OrderTypeStopLoss, domain.OrderTypeStopLimit, domain.OrderTypeTrailingStop:
		if err := e.validateConditional(o); err != nil {
			o.Status = domain.StatusRejected
			o.RejectReason = err.Error()
			e.publishReject(ctx, o)
			return &Result{Order: o, Rejected: true}, err
		}
		o.Status = domain.StatusOpen
		e.orders[o.ID] = o
		e.triggers.add(o)
		e.persistAsync(ctx, o, nil)
		e.publisher.PublishOrder(ctx, "orderPlaced", o)
		return &Result{Order: o}, nil

	case domain.OrderTypeOCO:
		return e.placeOCO(ctx, o)

	case domain.OrderTypeTWAP, domain.OrderTypeVWAP:
		return e.placeSliced(ctx, o)
	}

	if err := e.priceBandGuard(o); err != nil {
		o.Status = domain.StatusRejected
		o.RejectReason = err.Error()
		e.publishReject(ctx, o)
		return &Result{Order: o, Rejected: true}, err
	}

	return e.runImmediateMatchAndRest(ctx, o)
}

// runImmediateMatchAndRest implements steps 3-5 of spec.md §4.4 for any
// order already past validation/price-band/conditional routing: MARKET,
// LIMIT, ICEBERG slices, and activated STOP_LIMIT/TWAP/VWAP children.
func (e *PairEngine) runImmediateMatchAndRest(ctx context.Context, o *domain.Order) (*Result, error) {
	visibleQty := o.Remaining
	if o.Type == domain.OrderTypeIceberg {
		vis := *o.VisibleAmount
		if o.Remaining.LT(vis) {
			vis = o.Remaining
		}
		visibleQty = vis
	}

	if o.TimeInForce == domain.TIFFOK && !e.canFillFully(o, visibleQty) {
		o.Status = domain.StatusRejected
		o.RejectReason = "fill-or-kill order could not be fully filled"
		e.publishReject(ctx, o)
		return &Result{Order: o, Rejected: true}, coreerrors.New(coreerrors.ErrFOKUnfillable, o.RejectReason)
	}

	if o.PostOnly && e.wouldCross(o) {
		o.Status = domain.StatusRejected
		o.RejectReason = "post-only order would have crossed the book"
		e.publishReject(ctx, o)
		return &Result{Order: o, Rejected: true}, coreerrors.New(coreerrors.ErrPostOnlyWouldCross, o.RejectReason)
	}

	trades, _, err := e.matchPass(ctx, o, visibleQty)
	if err != nil {
		return nil, err
	}

	e.commitTrades(ctx, trades)

	rest := o.TimeInForce != domain.TIFIOC && o.TimeInForce != domain.TIFFOK
	canRest := o.Type == domain.OrderTypeLimit || o.Type == domain.OrderTypeIceberg || o.Type == domain.OrderTypeStopLimit || o.Type == domain.OrderTypePerpetualLimit

	if rest && canRest && !o.Remaining.IsZero() {
		restQty := o.Remaining
		if o.Type == domain.OrderTypeIceberg {
			restQty = *o.VisibleAmount
			if o.Remaining.LT(restQty) {
				restQty = o.Remaining
			}
			e.icebergs[o.ID] = &icebergState{visible: restQty}
		}
		e.ladder.AddOrder(o.Side, o.ID, *o.Price, restQty)
		if o.Status != domain.StatusPartiallyFilled {
			o.Status = domain.StatusOpen
		}
	} else if !o.Remaining.IsZero() {
		// IOC/FOK/MARKET remainder, or a non-restable type: cancel what
		// didn't fill rather than leaving it stranded.
		if o.Status != domain.StatusFilled {
			o.Status = cancelOrExpire(o)
		}
	}

	e.orders[o.ID] = o
	e.persistAsync(ctx, o, trades)
	e.publisher.PublishOrder(ctx, orderEventKind(o), o)
	e.publishBookSnapshot(ctx)
	e.refreshTrailingStops(ctx)

	if e.ladder.Crossed() {
		e.halt(ctx, coreerrors.New(coreerrors.ErrInvariantViolation, "book crossed after commit"))
		return &Result{Order: o, Trades: trades}, coreerrors.New(coreerrors.ErrInvariantViolation, "book crossed after commit")
	}

	return &Result{Order: o, Trades: trades}, nil
}

func cancelOrExpire(o *domain.Order) domain.Status {
	if o.TimeInForce == domain.TIFDAY {
		return domain.StatusExpired
	}
	return domain.StatusCancelled
}

func orderEventKind(o *domain.Order) string {
	switch o.Status {
	case domain.StatusFilled:
		return "orderFilled"
	case domain.StatusOpen:
		return "orderPlaced"
	case domain.StatusPartiallyFilled:
		return "orderUpdated"
	case domain.StatusCancelled, domain.StatusExpired:
		return "orderCancelled"
	default:
		return "orderUpdated"
	}
}

// matchPass walks the opposing ladder, consuming resting orders in FIFO
// order at each eligible price level (spec.md §4.4 step 3). The taker's
// fillable quantity is capped by takerQtyCap: its full Remaining, or for
// an Iceberg taker its currently visible slice.
func (e *PairEngine) matchPass(ctx context.Context, o *domain.Order, takerQtyCap fixedpoint.UInt) ([]*domain.Trade, bool, error) {
	var trades []*domain.Trade
	remaining := takerQtyCap
	opp := o.Side.Opposite()

	effectivePrice, hasCap := effectivePrice(o)

	for !remaining.IsZero() {
		bestPrice, ok := e.ladder.BestPrice(opp)
		if !ok {
			break
		}
		if hasCap && !priceAcceptable(o.Side, effectivePrice, bestPrice) {
			break
		}

		frontID, _, ok := e.ladder.FrontOrderID(opp)
		if !ok {
			break
		}
		maker, ok := e.orders[frontID]
		if !ok {
			// Ladder/index desync would itself be an invariant
			// violation; defensively drop the level pointer rather
			// than spin.
			e.ladder.RemoveOrder(frontID, fixedpoint.Zero())
			continue
		}

		// An Iceberg maker only offers its currently-revealed slice; the
		// taker can still walk through multiple reveals within one pass
		// (the loop simply visits the same resting order id again).
		makerCap := maker.Remaining
		if maker.Type == domain.OrderTypeIceberg {
			if st, ok := e.icebergs[frontID]; ok {
				makerCap = st.visible
			}
		}
		fillQty := fixedpoint.Min(remaining, makerCap)

		buyID, sellID, buyerIsMaker := buySellIDs(o, maker)
		trade, err := domain.NewTrade(e.Pair, bestPrice, fillQty, buyID, sellID, buyerIsMaker, e.ladder.Sequence()+1, e.clock.Now())
		if err != nil {
			return nil, false, err
		}
		e.applyFees(trade)
		trades = append(trades, trade)

		if err := maker.RecordFill(fillQty, bestPrice, e.clock.Now()); err != nil {
			return nil, false, err
		}
		if err := o.RecordFill(fillQty, bestPrice, e.clock.Now()); err != nil {
			return nil, false, err
		}
		if e.margin != nil {
			e.margin.OnFill(ctx, maker, fillQty, bestPrice)
			e.margin.OnFill(ctx, o, fillQty, bestPrice)
		}

		remaining = remaining.Sub(fillQty)
		e.ladder.DecrementLevel(frontID, fillQty)
		if maker.Type == domain.OrderTypeIceberg {
			e.decrementIcebergSlice(frontID, fillQty)
		}

		switch {
		case maker.Type == domain.OrderTypeIceberg && e.icebergSliceExhausted(frontID):
			if refilled := e.refillIceberg(maker); !refilled {
				e.ladder.RemoveOrder(frontID, fillQty)
				e.settleMakerTerminal(ctx, maker)
			}
		case maker.Remaining.IsZero():
			e.ladder.RemoveOrder(frontID, fillQty)
			e.settleMakerTerminal(ctx, maker)
		default:
			e.publisher.PublishOrder(ctx, "orderUpdated", maker)
			e.persistAsync(ctx, maker, nil)
		}

		e.lastTradePrice = bestPrice
		e.hasLastTrade = true
		e.evaluateTriggers(ctx, bestPrice)
	}

	return trades, remaining.IsZero(), nil
}

// settleMakerTerminal finalizes a maker order that has fully traded out,
// handling OCO-sibling cancellation (invariant I7).
func (e *PairEngine) settleMakerTerminal(ctx context.Context, maker *domain.Order) {
	e.persistAsync(ctx, maker, nil)
	e.publisher.PublishOrder(ctx, "orderFilled", maker)
	if sibling, ok := e.ocoLinks[maker.ID]; ok {
		e.cancelLinkedSilently(ctx, sibling)
	}
}

// buySellIDs resolves the buy/sell order ids and whether the maker is the
// buyer, from the taker's perspective (the maker is always resting,
// hence always the side opposite the taker).
func buySellIDs(taker, maker *domain.Order) (buyID, sellID string, buyerIsMaker bool) {
	if taker.Side == domain.SideBuy {
		return taker.ID, maker.ID, false
	}
	return maker.ID, taker.ID, true
}

// applyFees charges maker/taker fee rates in the pair's quote asset
// (SPEC_FULL.md §9: fee currency = quote asset, spot and perp alike).
func (e *PairEngine) applyFees(t *domain.Trade) {
	makerBps, takerBps := e.cfg.SpotMakerBps, e.cfg.SpotTakerBps
	if e.Perp {
		makerBps, takerBps = e.cfg.PerpMakerBps, e.cfg.PerpTakerBps
	}
	takerFee, _ := fixedpoint.FeeBps(t.QuoteQuantity, takerBps)
	makerFee, _ := fixedpoint.FeeBps(t.QuoteQuantity, makerBps)
	t.Fee = takerFee.Add(makerFee)
	t.FeeAsset = domain.QuoteAsset(e.Pair)
}

// effectivePrice returns the cap price for a taker's immediate-match
// pass: unset for MARKET (no cap), the limit price otherwise.
func effectivePrice(o *domain.Order) (fixedpoint.UInt, bool) {
	if o.Type == domain.OrderTypeMarket || o.Type == domain.OrderTypePerpetualMarket {
		return fixedpoint.UInt{}, false
	}
	if o.Price == nil {
		return fixedpoint.UInt{}, false
	}
	return *o.Price, true
}

func priceAcceptable(side domain.Side, cap, resting fixedpoint.UInt) bool {
	if side == domain.SideBuy {
		return resting.LTE(cap)
	}
	return resting.GTE(cap)
}

// commitTrades publishes trade events and dispatches persistence +
// settlement for a batch produced by one taker's match pass (spec.md
// §4.4 step 5).
func (e *PairEngine) commitTrades(ctx context.Context, trades []*domain.Trade) {
	for _, t := range trades {
		e.publisher.PublishTrade(ctx, t)
		if e.persister != nil {
			go func(t *domain.Trade) { _ = e.persister.SaveTrade(ctx, t) }(t)
		}
		if e.settler != nil {
			go func(t *domain.Trade) { e.settler.PlanTrade(ctx, t) }(t)
		}
	}
}

func (e *PairEngine) persistAsync(ctx context.Context, o *domain.Order, _ []*domain.Trade) {
	if e.persister == nil {
		return
	}
	snapshot := *o
	go func() {
		if err := e.persister.SaveOrder(ctx, &snapshot); err != nil {
			e.logger.Warn("warm persist failed, hot remains authoritative", zap.String("orderId", o.ID), zap.Error(err))
		}
	}()
}

func (e *PairEngine) publishReject(ctx context.Context, o *domain.Order) {
	e.orders[o.ID] = o
	e.publisher.PublishOrder(ctx, "orderRejected", o)
}

func (e *PairEngine) publishBookSnapshot(ctx context.Context) {
	bids, asks := e.ladder.Depth(50)
	e.publisher.PublishBook(ctx, domain.BookSnapshot{
		Pair:      e.Pair,
		Bids:      bids,
		Asks:      asks,
		Sequence:  e.ladder.Sequence(),
		Timestamp: e.clock.Now(),
	})
}

// Snapshot returns an order-book snapshot to depth n (spec.md §6
// getOrderBook).
func (e *PairEngine) Snapshot(depth int) domain.BookSnapshot {
	bids, asks := e.ladder.Depth(depth)
	return domain.BookSnapshot{
		Pair:      e.Pair,
		Bids:      bids,
		Asks:      asks,
		Sequence:  e.ladder.Sequence(),
		Timestamp: e.clock.Now(),
	}
}

// CancelOrder removes an open order from the book or trigger set
// (spec.md §4.4 Cancel). Only the owner may cancel.
func (e *PairEngine) CancelOrder(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	o, ok := e.orders[orderID]
	if !ok {
		return nil, coreerrors.New(coreerrors.ErrOrderNotFound, "order not found")
	}
	if o.UserID != userID {
		return nil, coreerrors.New(coreerrors.ErrNotOrderOwner, "order belongs to another user")
	}
	if o.Status.IsTerminal() {
		return nil, coreerrors.New(coreerrors.ErrOrderNotOpen, "order is not open")
	}

	switch {
	case o.Private:
		e.cancelPrivacyOrder(o)
	case o.Type == domain.OrderTypeStopLoss, o.Type == domain.OrderTypeStopLimit, o.Type == domain.OrderTypeTrailingStop:
		e.triggers.remove(o)
	default:
		e.ladder.RemoveOrder(o.ID, o.Remaining)
	}
	if sched, ok := e.schedules[o.ID]; ok {
		sched.cancelled = true
	}

	o.Status = domain.StatusCancelled
	o.UpdatedAt = e.clock.Now()
	e.persistAsync(ctx, o, nil)
	e.publisher.PublishOrder(ctx, "orderCancelled", o)

	if sibling, ok := e.ocoLinks[o.ID]; ok {
		e.cancelLinkedSilently(ctx, sibling)
	}

	e.publishBookSnapshot(ctx)
	e.refreshTrailingStops(ctx)

	return o, nil
}

func (e *PairEngine) cancelLinkedSilently(ctx context.Context, siblingID string) {
	sib, ok := e.orders[siblingID]
	if !ok || sib.Status.IsTerminal() {
		return
	}
	switch sib.Type {
	case domain.OrderTypeStopLoss, domain.OrderTypeStopLimit, domain.OrderTypeTrailingStop:
		e.triggers.remove(sib)
	default:
		e.ladder.RemoveOrder(sib.ID, sib.Remaining)
	}
	sib.Status = domain.StatusCancelled
	sib.UpdatedAt = e.clock.Now()
	delete(e.ocoLinks, sib.ID)
	delete(e.ocoLinks, siblingID)
	e.persistAsync(ctx, sib, nil)
	e.publisher.PublishOrder(ctx, "orderCancelled", sib)
}

// validate enforces spec.md §4.4 step 1 and the field-level invariants of
// §3.
func (e *PairEngine) validate(o *domain.Order) error {
	if o.UserID == "" {
		return coreerrors.New(coreerrors.ErrMissingField, "userId is required")
	}
	if o.Pair != e.Pair {
		return coreerrors.Newf(coreerrors.ErrUnknownPair, "order pair %q does not match engine pair %q", o.Pair, e.Pair)
	}
	if !o.Private && o.Quantity.IsZero() {
		return coreerrors.New(coreerrors.ErrInvalidAmount, "quantity must be > 0")
	}
	switch o.Type {
	case domain.OrderTypeLimit, domain.OrderTypeOCO, domain.OrderTypeIceberg, domain.OrderTypePerpetualLimit:
		if o.Price == nil || o.Price.IsZero() {
			return coreerrors.New(coreerrors.ErrInvalidPrice, "price must be > 0")
		}
	}
	if o.Type == domain.OrderTypeIceberg {
		if o.VisibleAmount == nil || o.VisibleAmount.IsZero() || o.TotalAmount == nil || o.TotalAmount.IsZero() {
			return coreerrors.New(coreerrors.ErrMissingField, "iceberg orders require visibleAmount and totalAmount")
		}
		if o.VisibleAmount.GT(*o.TotalAmount) {
			return coreerrors.New(coreerrors.ErrInvalidAmount, "visibleAmount cannot exceed totalAmount")
		}
	}
	if o.Type == domain.OrderTypeTWAP || o.Type == domain.OrderTypeVWAP {
		if o.Slices <= 0 || o.Duration <= 0 {
			return coreerrors.New(coreerrors.ErrMissingField, "twap/vwap orders require slices and duration")
		}
	}
	if (o.Type == domain.OrderTypePerpetualLimit || o.Type == domain.OrderTypePerpetualMarket) && (o.Leverage <= 0) {
		return coreerrors.New(coreerrors.ErrLeverageOutOfBounds, "leverage must be > 0")
	}
	if o.FeeAsset != "" && o.FeeAsset != domain.QuoteAsset(e.Pair) {
		return coreerrors.Newf(coreerrors.ErrFeeAssetMismatch, "feeAsset %q does not match the pair's quote asset %q", o.FeeAsset, domain.QuoteAsset(e.Pair))
	}
	return nil
}

func (e *PairEngine) validateConditional(o *domain.Order) error {
	if o.StopPrice == nil || o.StopPrice.IsZero() {
		return coreerrors.New(coreerrors.ErrInvalidPrice, "stopPrice must be > 0")
	}
	if o.Type == domain.OrderTypeStopLimit && (o.Price == nil || o.Price.IsZero()) {
		return coreerrors.New(coreerrors.ErrInvalidPrice, "stop-limit orders require a limit price")
	}
	if o.Type == domain.OrderTypeTrailingStop && (o.TrailDistance == nil || o.TrailDistance.IsZero()) {
		return coreerrors.New(coreerrors.ErrMissingField, "trailing-stop orders require trailDistance")
	}
	return nil
}

// canFillFully answers spec.md §4.4's FOK pre-check without mutating the
// book: the incoming order may only commit any fill at all if the
// opposing side can satisfy its entire takerQtyCap at acceptable prices.
func (e *PairEngine) canFillFully(o *domain.Order, takerQtyCap fixedpoint.UInt) bool {
	effPrice, hasCap := effectivePrice(o)
	opp := o.Side.Opposite()
	available := e.ladder.SumAvailable(opp, func(p fixedpoint.UInt) bool {
		return !hasCap || priceAcceptable(o.Side, effPrice, p)
	})
	return available.GTE(takerQtyCap)
}

// wouldCross reports whether o's effective price would immediately match
// against the opposing best price (spec.md §4.4 POST_ONLY rule).
func (e *PairEngine) wouldCross(o *domain.Order) bool {
	effPrice, hasCap := effectivePrice(o)
	if !hasCap {
		return true // MARKET orders always "cross" by definition
	}
	opp := o.Side.Opposite()
	bestPrice, ok := e.ladder.BestPrice(opp)
	if !ok {
		return false
	}
	return priceAcceptable(o.Side, effPrice, bestPrice)
}

// priceBandGuard rejects orders whose effective price strays too far from
// the last trade price (spec.md §4.4 step 2).
func (e *PairEngine) priceBandGuard(o *domain.Order) error {
	if !e.hasLastTrade {
		return nil
	}
	price, hasCap := effectivePrice(o)
	if !hasCap {
		return nil
	}
	bandBps := e.cfg.PriceBandBps
	if bandBps <= 0 {
		bandBps = 5000
	}
	maxDeviation, err := fixedpoint.FeeBps(e.lastTradePrice, bandBps)
	if err != nil {
		return nil
	}
	lower := fixedpoint.Zero()
	if e.lastTradePrice.GTE(maxDeviation) {
		lower = e.lastTradePrice.Sub(maxDeviation)
	}
	upper := e.lastTradePrice.Add(maxDeviation)
	if price.LT(lower) || price.GT(upper) {
		return coreerrors.Newf(coreerrors.ErrPriceBandBreach, "price %s outside band [%s, %s]", price.FromBase(), lower.FromBase(), upper.FromBase())
	}
	return nil
}
