package matching

import (
	"context"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/latticefi/dexcore/internal/coreerrors"
	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// sliceSchedule decomposes a TWAP/VWAP parent into evenly-timed child
// orders (spec.md §4.4). Release is driven by Manager's per-pair ticker,
// never by a timer owned by the engine itself, so the matching hot path
// stays synchronous (spec.md §5: "scheduled timers... are suspension
// points").
type sliceSchedule struct {
	parent      *domain.Order
	baseQty     fixedpoint.UInt
	totalSlices int
	released    int
	interval    time.Duration
	nextAt      time.Time
	vwap        bool
	volumeLog   []float64 // traded-volume observed per completed interval, for VWAP bias
	cancelled   bool
}

// placeSliced admits a TWAP/VWAP parent and releases its first slice
// immediately; remaining slices are released by ReleaseDueSlices on the
// Manager's ticker.
func (e *PairEngine) placeSliced(ctx context.Context, parent *domain.Order) (*Result, error) {
	baseQty, err := fixedpoint.MulDiv(parent.Quantity, fixedpoint.FromU64(1), fixedpoint.FromU64(uint64(parent.Slices)))
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.ErrInvalidAmount, "could not divide quantity into slices")
	}

	parent.Status = domain.StatusOpen
	parent.Remaining = parent.Quantity
	e.orders[parent.ID] = parent
	e.publisher.PublishOrder(ctx, "orderPlaced", parent)

	sched := &sliceSchedule{
		parent:      parent,
		baseQty:     baseQty,
		totalSlices: parent.Slices,
		interval:    parent.Duration / time.Duration(parent.Slices),
		nextAt:      e.clock.Now(),
		vwap:        parent.Type == domain.OrderTypeVWAP,
	}
	e.schedules[parent.ID] = sched

	e.releaseOneSlice(ctx, sched)
	return &Result{Order: parent}, nil
}

// ReleaseDueSlices is called by Manager on every tick; it releases any
// TWAP/VWAP slice whose scheduled time has passed.
func (e *PairEngine) ReleaseDueSlices(ctx context.Context) {
	now := e.clock.Now()
	for _, sched := range e.schedules {
		if sched.cancelled || sched.released >= sched.totalSlices {
			continue
		}
		if now.Before(sched.nextAt) {
			continue
		}
		e.releaseOneSlice(ctx, sched)
	}
}

func (e *PairEngine) releaseOneSlice(ctx context.Context, sched *sliceSchedule) {
	qty := sched.baseQty
	if sched.released == sched.totalSlices-1 {
		// Final slice absorbs any rounding remainder.
		qty = sched.parent.Remaining
	} else if sched.vwap {
		qty = e.vwapBiasedQty(sched)
	}
	if qty.IsZero() || qty.GT(sched.parent.Remaining) {
		qty = sched.parent.Remaining
	}

	child := &domain.Order{
		ID:            domain.NewOrderID(),
		UserID:        sched.parent.UserID,
		Pair:          sched.parent.Pair,
		Type:          domain.OrderTypeMarket,
		Side:          sched.parent.Side,
		Quantity:      qty,
		TimeInForce:   domain.TIFIOC,
		ParentOrderID: &sched.parent.ID,
	}

	result, err := e.runImmediateMatchAndRestForChild(ctx, child)
	sched.released++
	sched.nextAt = sched.nextAt.Add(sched.interval)

	if err == nil && result != nil {
		filled := qty.Sub(child.Remaining)
		if !filled.IsZero() {
			_ = sched.parent.RecordFill(filled, child.AveragePriceOrZero(), e.clock.Now())
		}
		if len(result.Trades) > 0 {
			vol := 0.0
			for _, t := range result.Trades {
				vol += t.Quantity.Float64Approx()
			}
			sched.volumeLog = append(sched.volumeLog, vol)
		}
	}

	if sched.released >= sched.totalSlices || sched.parent.Remaining.IsZero() {
		if sched.parent.Remaining.IsZero() {
			sched.parent.Status = domain.StatusFilled
		} else {
			sched.parent.Status = domain.StatusExpired
		}
		e.persistAsync(ctx, sched.parent, nil)
		e.publisher.PublishOrder(ctx, orderEventKind(sched.parent), sched.parent)
		delete(e.schedules, sched.parent.ID)
	} else {
		e.publisher.PublishOrder(ctx, "orderUpdated", sched.parent)
	}
}

// vwapBiasedQty scales the base per-slice quantity by the ratio of the
// most recent interval's observed fill volume to the running mean, so
// VWAP slices grow in higher-volume intervals and shrink in quieter ones
// (spec.md §4.4: "VWAP additionally biases slice size by observed volume
// in each interval"). With no observations yet, the base (equal-split)
// quantity is used.
func (e *PairEngine) vwapBiasedQty(sched *sliceSchedule) fixedpoint.UInt {
	if len(sched.volumeLog) == 0 {
		return sched.baseQty
	}
	mean := stat.Mean(sched.volumeLog, nil)
	if mean <= 0 {
		return sched.baseQty
	}
	last := sched.volumeLog[len(sched.volumeLog)-1]
	bias := last / mean
	if bias < 0.5 {
		bias = 0.5
	}
	if bias > 1.5 {
		bias = 1.5
	}
	return fixedpoint.FromFloat64Approx(sched.baseQty.Float64Approx() * bias)
}
