package matching

import (
	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// icebergState tracks the currently-revealed slice of an Iceberg order
// resting in the ladder (spec.md §4.4).
type icebergState struct {
	visible fixedpoint.UInt
}

// decrementIcebergSlice reduces the currently-revealed slice's remaining
// quantity by fillQty as a taker consumes it.
func (e *PairEngine) decrementIcebergSlice(orderID string, fillQty fixedpoint.UInt) {
	st, ok := e.icebergs[orderID]
	if !ok {
		return
	}
	if st.visible.GTE(fillQty) {
		st.visible = st.visible.Sub(fillQty)
	} else {
		st.visible = fixedpoint.Zero()
	}
}

// icebergSliceExhausted reports whether the currently-revealed slice has
// been fully consumed, meaning a reveal (or terminal settlement) is due.
func (e *PairEngine) icebergSliceExhausted(orderID string) bool {
	st, ok := e.icebergs[orderID]
	if !ok {
		return true
	}
	return st.visible.IsZero()
}

// refillIceberg releases a new slice of up to VisibleAmount once the
// currently-visible slice is fully consumed, replenishing the ladder
// total by the newly-revealed amount, until the order's true Remaining
// (tracking TotalAmount) is exhausted. Returns false once nothing is left
// to reveal.
func (e *PairEngine) refillIceberg(o *domain.Order) bool {
	if o.Remaining.IsZero() {
		delete(e.icebergs, o.ID)
		return false
	}
	vis := *o.VisibleAmount
	if o.Remaining.LT(vis) {
		vis = o.Remaining
	}
	st, ok := e.icebergs[o.ID]
	if !ok {
		st = &icebergState{}
		e.icebergs[o.ID] = st
	}
	st.visible = vis
	e.ladder.ReplenishLevel(o.ID, vis)
	return true
}
