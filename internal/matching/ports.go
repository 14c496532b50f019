// Package matching implements the Matching Engine module (spec.md §4.4):
// per-pair price-time-priority matching, TIF semantics, conditional order
// families, OCO, Iceberg, and TWAP/VWAP decomposition, run one logical
// owner per pair per the concurrency model in spec.md §5.
package matching

import (
	"context"
	"time"

	"github.com/latticefi/dexcore/internal/coreerrors"
	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/internal/privacyswap"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// EventPublisher is the egress sink for live-update events (spec.md §6).
// internal/events implements this against watermill/NATS; tests use an
// in-memory recorder. Matching never blocks on publish — implementations
// must not perform synchronous network I/O on this path.
type EventPublisher interface {
	PublishOrder(ctx context.Context, kind string, order *domain.Order)
	PublishTrade(ctx context.Context, trade *domain.Trade)
	PublishBook(ctx context.Context, snapshot domain.BookSnapshot)
}

// Persister is the write-through sink into the tiered storage substrate
// (spec.md §4.2). Matching dispatches to it asynchronously; a Persister
// failure is logged and retried by the storage layer, never surfaced to
// the matching hot path (spec.md §7 Transient propagation policy).
type Persister interface {
	SaveOrder(ctx context.Context, order *domain.Order) error
	SaveTrade(ctx context.Context, trade *domain.Trade) error
}

// SettlementPlanner receives committed trades for on-chain settlement
// planning (spec.md §4.6). Called asynchronously, never on the matching
// hot path.
type SettlementPlanner interface {
	PlanTrade(ctx context.Context, trade *domain.Trade)
}

// MarginChecker gates perpetual order admission and is notified of fills
// so internal/perpetual can update position state (spec.md §4.5). A spot
// pair's engine is constructed with a no-op MarginChecker.
type MarginChecker interface {
	CheckMargin(ctx context.Context, order *domain.Order) error
	OnFill(ctx context.Context, order *domain.Order, fillQty, fillPrice fixedpoint.UInt)
}

// PrivacyGate is the subset of privacyswap.Matcher the engine calls on the
// admission path for an encrypted-matching order (spec.md §9 privacy
// variant). *privacyswap.Matcher satisfies this directly. A pair engine
// constructed with NoopPrivacyGate rejects every privacy order outright,
// which is the correct behavior for a pair the privacy variant was never
// enabled for.
type PrivacyGate interface {
	Available() bool
	ComputeSwapOutput(ctx context.Context, req privacyswap.SwapRequest) (privacyswap.SwapResult, error)
	CompareEncrypted(ctx context.Context, op privacyswap.CompareOp, a, b privacyswap.Ciphertext) (bool, error)
	DecryptForOwner(ctx context.Context, owner string, ct privacyswap.Ciphertext) (string, error)
}

// NoopPrivacyGate is the PrivacyGate for pairs the privacy variant is
// disabled for: Available always reports false, so every privacy order is
// rejected on admission per spec.md's fallback ("reject privacy orders,
// continue regular matching").
type NoopPrivacyGate struct{}

func (NoopPrivacyGate) Available() bool { return false }
func (NoopPrivacyGate) ComputeSwapOutput(ctx context.Context, req privacyswap.SwapRequest) (privacyswap.SwapResult, error) {
	return privacyswap.SwapResult{}, coreerrors.New(coreerrors.ErrPrivacyOracleUnavailable, "privacy matching is not enabled for this pair")
}
func (NoopPrivacyGate) CompareEncrypted(ctx context.Context, op privacyswap.CompareOp, a, b privacyswap.Ciphertext) (bool, error) {
	return false, coreerrors.New(coreerrors.ErrPrivacyOracleUnavailable, "privacy matching is not enabled for this pair")
}
func (NoopPrivacyGate) DecryptForOwner(ctx context.Context, owner string, ct privacyswap.Ciphertext) (string, error) {
	return "", coreerrors.New(coreerrors.ErrPrivacyOracleUnavailable, "privacy matching is not enabled for this pair")
}

// Clock abstracts wall-clock reads so TWAP/VWAP scheduling and funding
// ticks are deterministic in tests (grounded on the teacher's own
// injected-clock pattern in its resilience/circuit breaker package).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// NoopMarginChecker is the MarginChecker for spot pairs, which carry no
// leverage or liquidation concept (spec.md §4.5 applies only to
// PERPETUAL_LIMIT/PERPETUAL_MARKET orders).
type NoopMarginChecker struct{}

func (NoopMarginChecker) CheckMargin(ctx context.Context, order *domain.Order) error { return nil }
func (NoopMarginChecker) OnFill(ctx context.Context, order *domain.Order, fillQty, fillPrice fixedpoint.UInt) {
}
