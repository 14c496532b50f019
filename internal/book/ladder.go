// Package book implements the Order Book State module (spec.md §4.3):
// per-pair, two price-ordered ladders, each a FIFO queue per price level,
// plus the per-pair monotonic sequence counter (invariant I4).
//
// A ladder is owned exclusively by the single goroutine running that
// pair's matching loop (spec.md §5) — Book itself holds no mutex; callers
// outside internal/matching must go through that goroutine.
package book

import (
	"container/list"

	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// level is one price point on a ladder: a FIFO of order ids plus a
// running total so snapshots don't need to re-sum the queue.
type level struct {
	price          fixedpoint.UInt
	orders         *list.List // of string order ids, front = oldest
	totalRemaining fixedpoint.UInt
}

// entry locates an order within a ladder for O(1) removal/decrement. The
// level is re-resolved by price on each mutation (levels shift as others
// are inserted/removed), so only price is cached, not an index.
type entry struct {
	side  domain.Side
	price fixedpoint.UInt
	elem  *list.Element
}

// Book is one pair's bid/ask ladders.
type Book struct {
	Pair string

	bids []*level // descending by price
	asks []*level // ascending by price

	index map[string]*entry

	sequence uint64
}

// New creates an empty book for pair.
func New(pair string) *Book {
	return &Book{
		Pair:  pair,
		index: make(map[string]*entry),
	}
}

// Sequence returns the current per-pair sequence (invariant I4).
func (b *Book) Sequence() uint64 { return b.sequence }

func (b *Book) bump() uint64 {
	b.sequence++
	return b.sequence
}

// findLevel returns the index of the level at price within levels, or
// -1 if absent. Levels are kept sorted by the ladder's priority order, so
// this is a linear scan over typically-shallow depth; real deployments
// with very deep books would upgrade this to a binary search or a
// skiplist keyed by price, as the teacher's order_book.go anticipates
// with its heap-based levels.
func findLevel(levels []*level, price fixedpoint.UInt) int {
	for i, l := range levels {
		if l.price.Eq(price) {
			return i
		}
	}
	return -1
}

// insertLevelIndex returns the index at which a new level at price should
// be inserted to keep levels in priority order for side.
func insertLevelIndex(levels []*level, price fixedpoint.UInt, bid bool) int {
	for i, l := range levels {
		if bid {
			if price.GT(l.price) {
				return i
			}
		} else {
			if price.LT(l.price) {
				return i
			}
		}
	}
	return len(levels)
}

// AddOrder inserts orderID into the FIFO at price on side, creating the
// level if necessary, and returns the new sequence number.
func (b *Book) AddOrder(side domain.Side, orderID string, price, remaining fixedpoint.UInt) uint64 {
	levels := b.levelsFor(side)
	idx := findLevel(*levels, price)
	if idx == -1 {
		idx = insertLevelIndex(*levels, price, side == domain.SideBuy)
		lv := &level{price: price, orders: list.New(), totalRemaining: fixedpoint.Zero()}
		*levels = append(*levels, nil)
		copy((*levels)[idx+1:], (*levels)[idx:])
		(*levels)[idx] = lv
	}
	lv := (*levels)[idx]
	elem := lv.orders.PushBack(orderID)
	lv.totalRemaining = lv.totalRemaining.Add(remaining)

	b.index[orderID] = &entry{side: side, price: price, elem: elem}
	return b.bump()
}

func (b *Book) levelsFor(side domain.Side) *[]*level {
	if side == domain.SideBuy {
		return &b.bids
	}
	return &b.asks
}

// RemoveOrder removes orderID entirely from its ladder (cancel, or a fill
// that exhausts it), returning its side and price and whether it was
// found.
func (b *Book) RemoveOrder(orderID string, removedRemaining fixedpoint.UInt) (domain.Side, fixedpoint.UInt, bool) {
	e, ok := b.index[orderID]
	if !ok {
		return "", fixedpoint.UInt{}, false
	}
	levels := b.levelsFor(e.side)
	idx := findLevel(*levels, e.price)
	if idx == -1 {
		delete(b.index, orderID)
		return e.side, e.price, true
	}
	lv := (*levels)[idx]
	lv.orders.Remove(e.elem)
	if lv.totalRemaining.GTE(removedRemaining) {
		lv.totalRemaining = lv.totalRemaining.Sub(removedRemaining)
	} else {
		lv.totalRemaining = fixedpoint.Zero()
	}
	if lv.orders.Len() == 0 {
		*levels = append((*levels)[:idx], (*levels)[idx+1:]...)
	}
	delete(b.index, orderID)
	b.bump()
	return e.side, e.price, true
}

// DecrementLevel reduces the resting quantity at an order's level by
// filledQty without removing the order from the FIFO (a partial fill of a
// resting order). Call RemoveOrder separately once the order is fully
// consumed.
func (b *Book) DecrementLevel(orderID string, filledQty fixedpoint.UInt) {
	e, ok := b.index[orderID]
	if !ok {
		return
	}
	levels := b.levelsFor(e.side)
	idx := findLevel(*levels, e.price)
	if idx == -1 {
		return
	}
	lv := (*levels)[idx]
	if lv.totalRemaining.GTE(filledQty) {
		lv.totalRemaining = lv.totalRemaining.Sub(filledQty)
	} else {
		lv.totalRemaining = fixedpoint.Zero()
	}
	b.bump()
}

// ReplenishLevel increases the resting quantity tracked for orderID's
// level without disturbing its FIFO position, for Iceberg slice reveal
// (spec.md §4.4): the order keeps its place in line while a fresh slice
// of its remaining total becomes visible.
func (b *Book) ReplenishLevel(orderID string, qty fixedpoint.UInt) {
	e, ok := b.index[orderID]
	if !ok {
		return
	}
	levels := b.levelsFor(e.side)
	idx := findLevel(*levels, e.price)
	if idx == -1 {
		return
	}
	(*levels)[idx].totalRemaining = (*levels)[idx].totalRemaining.Add(qty)
	b.bump()
}

// FrontOrderID returns the oldest order id at the front of side's best
// level, or "" if that side is empty.
func (b *Book) FrontOrderID(side domain.Side) (string, fixedpoint.UInt, bool) {
	levels := *b.levelsFor(side)
	if len(levels) == 0 {
		return "", fixedpoint.UInt{}, false
	}
	best := levels[0]
	if best.orders.Len() == 0 {
		return "", fixedpoint.UInt{}, false
	}
	front := best.orders.Front()
	return front.Value.(string), best.price, true
}

// SumAvailable totals the resting quantity on side across consecutive
// best-to-worst levels while accept reports true, stopping at the first
// level accept rejects. Used by FOK's pre-commit fillability check
// (spec.md §4.4): the book must not be mutated while answering "can this
// fully fill", so this walks the same aggregate totals Depth exposes
// without touching any FIFO.
func (b *Book) SumAvailable(side domain.Side, accept func(price fixedpoint.UInt) bool) fixedpoint.UInt {
	total := fixedpoint.Zero()
	for _, lv := range *b.levelsFor(side) {
		if !accept(lv.price) {
			break
		}
		total = total.Add(lv.totalRemaining)
	}
	return total
}

// BestPrice returns the best price on side, or false if empty.
func (b *Book) BestPrice(side domain.Side) (fixedpoint.UInt, bool) {
	levels := *b.levelsFor(side)
	if len(levels) == 0 {
		return fixedpoint.UInt{}, false
	}
	return levels[0].price, true
}

// Crossed reports whether the book is currently crossed (invariant I3:
// best_bid < best_ask must hold once matching settles).
func (b *Book) Crossed() bool {
	bid, hasBid := b.BestPrice(domain.SideBuy)
	ask, hasAsk := b.BestPrice(domain.SideSell)
	if !hasBid || !hasAsk {
		return false
	}
	return bid.GTE(ask)
}

// Depth returns up to n price levels per side for a snapshot (spec.md §3,
// §4.3).
func (b *Book) Depth(n int) (bids, asks []domain.PriceLevel) {
	bids = levelsToSnapshot(b.bids, n)
	asks = levelsToSnapshot(b.asks, n)
	return
}

func levelsToSnapshot(levels []*level, n int) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, n)
	for i, lv := range levels {
		if i >= n {
			break
		}
		out = append(out, domain.PriceLevel{
			Price:          lv.price,
			TotalRemaining: lv.totalRemaining,
			OrderCount:     lv.orders.Len(),
		})
	}
	return out
}
