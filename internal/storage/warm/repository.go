package warm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// Repository is the warm tier's gorm-backed store of record. Grounded on
// the teacher's internal/db/repositories/order_repository.go CRUD shape,
// but written against plain gorm calls rather than that file's
// query.Builder/query.Optimizer: that package is imported by the
// teacher's own order_repository.go yet does not exist anywhere under
// internal/db/query in the teacher's tree (internal/db/query_cache.go is
// the only file there) — a dead import in the teacher's own code, so
// nothing to adapt.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New opens a Repository and runs AutoMigrate for the four warm-tier
// tables (spec.md §4.2: orders, trades, positions, market_data).
func New(db *gorm.DB, logger *zap.Logger) (*Repository, error) {
	if err := db.AutoMigrate(&Order{}, &Trade{}, &Position{}, &MarketData{}); err != nil {
		return nil, err
	}
	return &Repository{db: db, logger: logger}, nil
}

// SaveOrder upserts an order row, implementing matching.Persister.
func (r *Repository) SaveOrder(ctx context.Context, o *domain.Order) error {
	row := orderToRow(o)
	var existing Order
	result := r.db.WithContext(ctx).
		Where(Order{OrderID: o.ID}).
		Assign(*row).
		FirstOrCreate(&existing)
	if result.Error != nil {
		r.logger.Error("warm tier: failed to save order", zap.Error(result.Error), zap.String("order_id", o.ID))
		return result.Error
	}
	return nil
}

// SaveTrade inserts a trade row, implementing matching.Persister. Trades
// are append-only — a trade never mutates once committed (spec.md §3).
func (r *Repository) SaveTrade(ctx context.Context, t *domain.Trade) error {
	row := tradeToRow(t)
	result := r.db.WithContext(ctx).Create(row)
	if result.Error != nil {
		r.logger.Error("warm tier: failed to save trade", zap.Error(result.Error), zap.String("trade_id", t.ID))
		return result.Error
	}
	return nil
}

// FindOrderByID retrieves an order by its wire id, or (nil, nil) if absent.
func (r *Repository) FindOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var row Order
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("warm tier: failed to find order", zap.Error(err), zap.String("order_id", orderID))
		return nil, err
	}
	o, err := rowToOrder(&row)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// RowToDomainOrder converts a warm-tier row back into a domain.Order, for
// callers (the archival sweep) that queried rows directly via
// FindOrdersOlderThan rather than FindOrderByID.
func (r *Repository) RowToDomainOrder(row *Order) (*domain.Order, error) {
	return rowToOrder(row)
}

// FindOpenOrders returns every non-terminal order row for pair, the
// rehydration source for a pair engine restarting with a warm-backed book
// (spec.md §9 "Global state": the ladder is durable-backed, not ephemeral).
func (r *Repository) FindOpenOrders(ctx context.Context, pair string) ([]*Order, error) {
	var rows []*Order
	err := r.db.WithContext(ctx).
		Where("pair = ? AND status IN ?", pair, []string{
			string(domain.StatusOpen), string(domain.StatusPartiallyFilled),
		}).
		Find(&rows).Error
	if err != nil {
		r.logger.Error("warm tier: failed to query open orders", zap.Error(err), zap.String("pair", pair))
		return nil, err
	}
	return rows, nil
}

// FindOrdersOlderThan returns orders whose PlacedAt is before cutoff, the
// archival scheduler's candidate pool (spec.md §4.2 archival policy).
func (r *Repository) FindOrdersOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error) {
	var rows []*Order
	err := r.db.WithContext(ctx).
		Where("placed_at < ? AND status IN ?", cutoff, []string{
			string(domain.StatusFilled), string(domain.StatusCancelled),
			string(domain.StatusExpired), string(domain.StatusRejected),
		}).
		Where("archive_ref = ?", "").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		r.logger.Error("warm tier: failed to query archival candidates", zap.Error(err))
		return nil, err
	}
	return rows, nil
}

// MarkArchived stamps the archive content-address onto an order row once
// the cold tier has accepted it.
func (r *Repository) MarkArchived(ctx context.Context, orderID, archiveRef string) error {
	return r.db.WithContext(ctx).Model(&Order{}).
		Where("order_id = ?", orderID).
		Update("archive_ref", archiveRef).Error
}

// UpsertPosition writes a position, creating it on first sight and
// updating in place thereafter — grounded on the teacher's
// UpdatePosition transaction pattern (select-then-create-or-update under
// an explicit tx with panic-recover rollback).
func (r *Repository) UpsertPosition(ctx context.Context, p *domain.Position) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if rec := recover(); rec != nil {
			tx.Rollback()
		}
	}()

	row := positionToRow(p)
	result := tx.Model(&Position{}).
		Where("contract = ? AND user_id = ?", p.Contract, p.UserID).
		Updates(row)
	if result.Error != nil {
		tx.Rollback()
		r.logger.Error("warm tier: failed to update position", zap.Error(result.Error), zap.String("contract", p.Contract))
		return result.Error
	}
	if result.RowsAffected == 0 {
		if err := tx.Create(row).Error; err != nil {
			tx.Rollback()
			r.logger.Error("warm tier: failed to create position", zap.Error(err), zap.String("contract", p.Contract))
			return err
		}
	}
	return tx.Commit().Error
}

// RecordMarketData inserts one OHLCV-ish tick row from the live book
// feed (spec.md §4.2's market_data table).
func (r *Repository) RecordMarketData(ctx context.Context, md *MarketData) error {
	return r.db.WithContext(ctx).Create(md).Error
}

func orderToRow(o *domain.Order) *Order {
	row := &Order{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Pair:          o.Pair,
		Type:          string(o.Type),
		Side:          string(o.Side),
		Quantity:      o.Quantity.Raw(),
		TimeInForce:   string(o.TimeInForce),
		PostOnly:      o.PostOnly,
		ReduceOnly:    o.ReduceOnly,
		Leverage:      o.Leverage,
		Status:        string(o.Status),
		Filled:        o.Filled.Raw(),
		Remaining:     o.Remaining.Raw(),
		Fees:          o.Fees.Raw(),
		FeeAsset:      o.FeeAsset,
		ArchiveRef:    o.ArchiveRef,
		RejectReason:  o.RejectReason,
		PlacedAt:      o.Timestamp,
		UpdatedAtWire: o.UpdatedAt,
	}
	if o.Price != nil {
		row.Price = o.Price.Raw()
	}
	if o.StopPrice != nil {
		row.StopPrice = o.StopPrice.Raw()
	}
	if o.AveragePrice != nil {
		row.AveragePrice = o.AveragePrice.Raw()
	}
	if o.LinkedOrderID != nil {
		row.LinkedOrderID = *o.LinkedOrderID
	}
	if o.ParentOrderID != nil {
		row.ParentOrderID = *o.ParentOrderID
	}
	return row
}

func rowToOrder(row *Order) (*domain.Order, error) {
	qty, err := fixedpoint.RawFromString(row.Quantity)
	if err != nil {
		return nil, err
	}
	filled, err := fixedpoint.RawFromString(row.Filled)
	if err != nil {
		return nil, err
	}
	remaining, err := fixedpoint.RawFromString(row.Remaining)
	if err != nil {
		return nil, err
	}
	fees, err := fixedpoint.RawFromString(row.Fees)
	if err != nil {
		return nil, err
	}
	o := &domain.Order{
		ID:           row.OrderID,
		UserID:       row.UserID,
		Pair:         row.Pair,
		Type:         domain.OrderType(row.Type),
		Side:         domain.Side(row.Side),
		Quantity:     qty,
		TimeInForce:  domain.TimeInForce(row.TimeInForce),
		PostOnly:     row.PostOnly,
		ReduceOnly:   row.ReduceOnly,
		Leverage:     row.Leverage,
		Status:       domain.Status(row.Status),
		Filled:       filled,
		Remaining:    remaining,
		Fees:         fees,
		FeeAsset:     row.FeeAsset,
		ArchiveRef:   row.ArchiveRef,
		RejectReason: row.RejectReason,
		Timestamp:    row.PlacedAt,
		UpdatedAt:    row.UpdatedAtWire,
	}
	if row.Price != "" {
		p, err := fixedpoint.RawFromString(row.Price)
		if err != nil {
			return nil, err
		}
		o.Price = &p
	}
	if row.StopPrice != "" {
		sp, err := fixedpoint.RawFromString(row.StopPrice)
		if err != nil {
			return nil, err
		}
		o.StopPrice = &sp
	}
	if row.AveragePrice != "" {
		ap, err := fixedpoint.RawFromString(row.AveragePrice)
		if err != nil {
			return nil, err
		}
		o.AveragePrice = &ap
	}
	if row.LinkedOrderID != "" {
		o.LinkedOrderID = &row.LinkedOrderID
	}
	if row.ParentOrderID != "" {
		o.ParentOrderID = &row.ParentOrderID
	}
	return o, nil
}

func tradeToRow(t *domain.Trade) *Trade {
	return &Trade{
		TradeID:       t.ID,
		Pair:          t.Pair,
		BuyOrderID:    t.BuyOrderID,
		SellOrderID:   t.SellOrderID,
		Price:         t.Price.Raw(),
		Quantity:      t.Quantity.Raw(),
		QuoteQuantity: t.QuoteQuantity.Raw(),
		Fee:           t.Fee.Raw(),
		FeeAsset:      t.FeeAsset,
		BuyerIsMaker:  t.BuyerIsMaker,
		Sequence:      t.Sequence,
		OnChainStatus: t.OnChainStatus,
		TxHash:        t.TxHash,
		TradedAt:      t.Timestamp,
	}
}

func positionToRow(p *domain.Position) *Position {
	return &Position{
		UserID:           p.UserID,
		Contract:         p.Contract,
		Side:             string(p.Side),
		Size:             p.Size.Raw(),
		EntryPrice:       p.EntryPrice.Raw(),
		MarkPrice:        p.MarkPrice.Raw(),
		Leverage:         p.Leverage,
		MarginMode:       string(p.MarginMode),
		Margin:           p.Margin.Raw(),
		LiquidationPrice: p.LiquidationPrice.Raw(),
		FundingPayment:   p.FundingPayment.Raw(),
		LastFundingTime:  p.LastFundingTime,
		Status:           string(p.Status),
	}
}
