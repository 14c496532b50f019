// Package storage wires the Tiered Storage module's three tiers
// (SPEC_FULL.md §4.2) into matching.Persister: every write lands in the
// hot tier synchronously on the caller's goroutine, then is mirrored to
// the warm tier asynchronously behind a circuit breaker, with an ants
// worker pool driving archival of terminal orders into the cold tier and
// a reconciliation sweep that retries warm writes of terminal orders the
// breaker previously shed. Failed warm trade writes are logged and not
// retried. Grounded on the teacher's internal/orders/service_core.go
// (hot cache as the authoritative fast path, persistence layered behind
// it) and internal/architecture/fx/{resilience,workerpool} for the two
// fault-tolerance primitives.
package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/architecture/fx/resilience"
	"github.com/latticefi/dexcore/internal/architecture/fx/workerpool"
	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/internal/storage/cold"
	"github.com/latticefi/dexcore/internal/storage/hot"
	"github.com/latticefi/dexcore/internal/storage/warm"
)

const (
	warmWriteBreaker = "storage-warm-write"
	archivalPool     = "storage-archival"
	reconcilePool    = "storage-reconcile"
)

// Orchestrator implements matching.Persister across all three tiers.
type Orchestrator struct {
	hot    *hot.Store
	warm   *warm.Repository
	cold   *cold.Archive
	cb     *resilience.CircuitBreakerFactory
	pool   *workerpool.WorkerPoolFactory
	logger *zap.Logger

	archiveThreshold time.Duration
	archiveBatch     int
}

// New builds an Orchestrator over already-constructed tier stores.
func New(
	hotStore *hot.Store,
	warmRepo *warm.Repository,
	coldArchive *cold.Archive,
	cb *resilience.CircuitBreakerFactory,
	pool *workerpool.WorkerPoolFactory,
	archiveThreshold time.Duration,
	archiveBatch int,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		hot:              hotStore,
		warm:             warmRepo,
		cold:             coldArchive,
		cb:               cb,
		pool:             pool,
		logger:           logger,
		archiveThreshold: archiveThreshold,
		archiveBatch:     archiveBatch,
	}
}

// SaveOrder implements matching.Persister's write-through path (spec.md
// §4.2 write path): hot synchronously, warm asynchronously behind the
// circuit breaker. A warm failure never propagates to the matching hot
// path — it flags domain.Order.WarmDegraded and is picked up later by
// Reconcile.
func (o *Orchestrator) SaveOrder(ctx context.Context, order *domain.Order) error {
	o.hot.PutOrder(ctx, order)

	snapshot := *order
	err := o.pool.SubmitTask(warmWriteBreaker+"-orders", func() error {
		result := o.cb.ExecuteWithContext(context.Background(), warmWriteBreaker, func(ctx context.Context) (interface{}, error) {
			return nil, o.warm.SaveOrder(ctx, &snapshot)
		})
		if result.Error != nil {
			snapshot.WarmDegraded = true
			o.hot.PutOrder(context.Background(), &snapshot)
			o.logger.Warn("storage: warm write degraded for order",
				zap.String("order_id", snapshot.ID), zap.Error(result.Error))
		}
		return result.Error
	})
	if err != nil {
		o.logger.Warn("storage: failed to dispatch warm order write", zap.String("order_id", order.ID), zap.Error(err))
	}
	return nil
}

// SaveTrade mirrors SaveOrder's write-through discipline for trades.
func (o *Orchestrator) SaveTrade(ctx context.Context, trade *domain.Trade) error {
	o.hot.PutTrade(ctx, trade)

	snapshot := *trade
	err := o.pool.SubmitTask(warmWriteBreaker+"-trades", func() error {
		result := o.cb.ExecuteWithContext(context.Background(), warmWriteBreaker, func(ctx context.Context) (interface{}, error) {
			return nil, o.warm.SaveTrade(ctx, &snapshot)
		})
		if result.Error != nil {
			o.logger.Warn("storage: warm write degraded for trade",
				zap.String("trade_id", snapshot.ID), zap.Error(result.Error))
		}
		return result.Error
	})
	if err != nil {
		o.logger.Warn("storage: failed to dispatch warm trade write", zap.String("trade_id", trade.ID), zap.Error(err))
	}
	return nil
}

// LoadOpenOrders reconstructs a pair's resting orders from the warm tier on
// startup (spec.md §9 "Global state": the in-memory ladder is durable-backed,
// so a restart must not silently drop resting orders) and re-seeds the hot
// cache for each, mirroring the invariant SaveOrder maintains on the write
// path.
func (o *Orchestrator) LoadOpenOrders(ctx context.Context, pair string) ([]*domain.Order, error) {
	rows, err := o.warm.FindOpenOrders(ctx, pair)
	if err != nil {
		return nil, err
	}
	orders := make([]*domain.Order, 0, len(rows))
	for _, row := range rows {
		ord, err := o.warm.RowToDomainOrder(row)
		if err != nil {
			o.logger.Error("storage: skipping malformed open-order row during rehydration", zap.String("order_id", row.OrderID), zap.Error(err))
			continue
		}
		o.hot.PutOrder(ctx, ord)
		orders = append(orders, ord)
	}
	return orders, nil
}

// RunArchivalSweep dispatches one archival pass onto the ants pool,
// moving terminal orders older than the configured threshold from the
// warm tier into the cold tier (spec.md §4.2 archival policy). The
// storage module's hourly ticker (registerArchivalTicker) calls it.
func (o *Orchestrator) RunArchivalSweep(ctx context.Context) error {
	return o.pool.SubmitTask(archivalPool, func() error {
		cutoff := time.Now().Add(-o.archiveThreshold)
		candidates, err := o.warm.FindOrdersOlderThan(ctx, cutoff, o.archiveBatch)
		if err != nil {
			return err
		}
		for _, row := range candidates {
			ord, err := o.warm.RowToDomainOrder(row)
			if err != nil {
				o.logger.Error("storage: skipping malformed archival candidate", zap.String("order_id", row.OrderID), zap.Error(err))
				continue
			}
			ref, err := o.cold.ArchiveOrder(ctx, ord)
			if err != nil {
				o.logger.Error("storage: archival failed", zap.String("order_id", ord.ID), zap.Error(err))
				continue
			}
			if err := o.warm.MarkArchived(ctx, ord.ID, ref); err != nil {
				o.logger.Error("storage: failed to mark order archived", zap.String("order_id", ord.ID), zap.Error(err))
				continue
			}
			o.hot.DeleteOrder(ord.ID)
		}
		o.logger.Info("storage: archival sweep complete", zap.Int("candidates", len(candidates)))
		return nil
	})
}

// Reconcile dispatches a pass that re-attempts warm writes for every
// terminal hot-tier order still flagged WarmDegraded, closing the window
// opened when the warm-write breaker was open (spec.md §4.2 Degraded
// modes). A degraded order that is not yet terminal is not retried by
// this pass, and trades are not reconciled.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	return o.pool.SubmitTask(reconcilePool, func() error {
		degraded := 0
		for _, ord := range o.hot.AllTerminalOrders() {
			if !ord.WarmDegraded {
				continue
			}
			degraded++
			result := o.cb.ExecuteWithContext(ctx, warmWriteBreaker, func(ctx context.Context) (interface{}, error) {
				return nil, o.warm.SaveOrder(ctx, ord)
			})
			if result.Error == nil {
				ord.WarmDegraded = false
				o.hot.PutOrder(ctx, ord)
			}
		}
		o.logger.Info("storage: reconcile sweep complete", zap.Int("degraded_orders_seen", degraded))
		return nil
	})
}
