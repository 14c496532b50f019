package matching

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/internal/privacyswap"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// recordingPublisher captures every event for assertions, mirroring the
// teacher's in-memory-hub test doubles rather than a generated mock.
type recordingPublisher struct {
	mu     sync.Mutex
	orders []string
	trades []*domain.Trade
	books  []domain.BookSnapshot
}

func (p *recordingPublisher) PublishOrder(_ context.Context, kind string, o *domain.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, kind+":"+o.ID)
}

func (p *recordingPublisher) PublishTrade(_ context.Context, t *domain.Trade) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, t)
}

func (p *recordingPublisher) PublishBook(_ context.Context, s domain.BookSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.books = append(p.books, s)
}

func (p *recordingPublisher) tradeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.trades)
}

type nopPersister struct{}

func (nopPersister) SaveOrder(context.Context, *domain.Order) error { return nil }
func (nopPersister) SaveTrade(context.Context, *domain.Trade) error { return nil }

type nopSettler struct{}

func (nopSettler) PlanTrade(context.Context, *domain.Trade) {}

type nopMargin struct{}

func (nopMargin) CheckMargin(context.Context, *domain.Order) error { return nil }
func (nopMargin) OnFill(context.Context, *domain.Order, fixedpoint.UInt, fixedpoint.UInt) {}

// fixedClock lets tests control TWAP/VWAP scheduling deterministically.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(t time.Time) *fixedClock { return &fixedClock{now: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	return Config{
		PriceBandBps: 5000,
		SpotMakerBps: 10,
		SpotTakerBps: 20,
		PerpMakerBps: 2,
		PerpTakerBps: 6,
	}
}

func newTestEngine(pair string) (*PairEngine, *recordingPublisher, *fixedClock) {
	pub := &recordingPublisher{}
	clock := newFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := NewPairEngine(pair, false, testConfig(), clock, zap.NewNop(), pub, nopPersister{}, nopSettler{}, nopMargin{}, nil)
	return e, pub, clock
}

// fakePrivacyGate stands in for privacyswap.Matcher in tests: ciphertext
// "encryption" is the identity function on the decimal string, which lets
// assertions drive it with plain amounts while still exercising every
// PrivacyGate call the engine makes.
type fakePrivacyGate struct {
	available bool
}

func (g *fakePrivacyGate) Available() bool { return g.available }

func (g *fakePrivacyGate) ComputeSwapOutput(_ context.Context, req privacyswap.SwapRequest) (privacyswap.SwapResult, error) {
	taker, err := fixedpoint.ToBase(req.TakerAmount.Value)
	if err != nil {
		return privacyswap.SwapResult{}, err
	}
	maker, err := fixedpoint.ToBase(req.MakerAmount.Value)
	if err != nil {
		return privacyswap.SwapResult{}, err
	}
	fill := fixedpoint.Min(taker, maker)
	result := privacyswap.SwapResult{
		TakerFill: privacyswap.Ciphertext{Value: fill.FromBase()},
		MakerFill: privacyswap.Ciphertext{Value: fill.FromBase()},
	}
	switch {
	case taker.GT(maker):
		result.Remainder = privacyswap.Ciphertext{Value: taker.Sub(maker).FromBase()}
	case maker.GT(taker):
		result.Remainder = privacyswap.Ciphertext{Value: maker.Sub(taker).FromBase()}
	}
	return result, nil
}

func (g *fakePrivacyGate) CompareEncrypted(_ context.Context, op privacyswap.CompareOp, a, b privacyswap.Ciphertext) (bool, error) {
	av, err := fixedpoint.ToBase(a.Value)
	if err != nil {
		return false, err
	}
	bv, err := fixedpoint.ToBase(b.Value)
	if err != nil {
		return false, err
	}
	switch op {
	case privacyswap.CompareGT:
		return av.GT(bv), nil
	case privacyswap.CompareGTE:
		return av.GTE(bv), nil
	case privacyswap.CompareLT:
		return av.LT(bv), nil
	case privacyswap.CompareLTE:
		return av.LTE(bv), nil
	case privacyswap.CompareEQ:
		return av.Eq(bv), nil
	default:
		return false, nil
	}
}

func (g *fakePrivacyGate) DecryptForOwner(_ context.Context, _ string, ct privacyswap.Ciphertext) (string, error) {
	return ct.Value, nil
}

func newTestPrivacyEngine(pair string, gate *fakePrivacyGate) (*PairEngine, *recordingPublisher, *fixedClock) {
	pub := &recordingPublisher{}
	clock := newFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := NewPairEngine(pair, false, testConfig(), clock, zap.NewNop(), pub, nopPersister{}, nopSettler{}, nopMargin{}, gate)
	return e, pub, clock
}

func price(s string) *fixedpoint.UInt {
	v, err := fixedpoint.ToBase(s)
	if err != nil {
		panic(err)
	}
	return &v
}

func qty(s string) fixedpoint.UInt {
	v, err := fixedpoint.ToBase(s)
	if err != nil {
		panic(err)
	}
	return v
}
