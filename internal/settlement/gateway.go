// Package settlement implements the Settlement Surface (spec.md §4.6): the
// core's one-way bridge out to the on-chain contract gateway for deposits,
// withdrawals, and per-trade/batch settlement. The core never embeds
// contract ABI/bytecode; it only dials a configured HTTP gateway with the
// wire shapes spec.md's scope boundary allows.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/architecture/fx/resilience"
	"github.com/latticefi/dexcore/internal/config"
	"github.com/latticefi/dexcore/internal/domain"
)

const gatewayBreaker = "settlement-gateway"

// Gateway dials the contract gateway for depositToDEX/withdrawFromDEX/
// settleDEXTrade/batchSettleDEX/distributeDEXFees (spec.md §6), grounded
// on 0xtitan6-polymarket-mm's exchange.Client: a resty client configured
// with a base URL, timeout, and retry-on-5xx, wrapped here in an
// additional circuit breaker since the gateway is a single external
// dependency the matching core must never block on.
type Gateway struct {
	http   *resty.Client
	cb     *resilience.CircuitBreakerFactory
	cfg    config.SettlementConfig
	logger *zap.Logger
}

// New builds a Gateway against cfg.Settlement.ContractGatewayURL.
func New(cfg config.SettlementConfig, cb *resilience.CircuitBreakerFactory, logger *zap.Logger) *Gateway {
	httpClient := resty.New().
		SetBaseURL(cfg.ContractGatewayURL).
		SetTimeout(time.Duration(cfg.DeadlineSeconds) * time.Second).
		SetRetryCount(cfg.RetryMaxAttempts).
		SetRetryWaitTime(time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Gateway{http: httpClient, cb: cb, cfg: cfg, logger: logger}
}

// DepositResult is the gateway's response to depositToDEX/withdrawFromDEX.
type DepositResult struct {
	TxHash common.Hash `json:"txHash"`
}

// Deposit calls depositToDEX(token, amount) for a user-initiated deposit
// (spec.md §6). Ownership proof is the transport layer's concern, not
// this gateway's — it only relays the already-authorized call.
func (g *Gateway) Deposit(ctx context.Context, userID string, token common.Address, amount string) (common.Hash, error) {
	return g.callForHash(ctx, "/deposit", map[string]any{
		"userId": userID, "token": token.Hex(), "amount": amount,
	})
}

// Withdraw calls withdrawFromDEX(token, amount).
func (g *Gateway) Withdraw(ctx context.Context, userID string, token common.Address, amount string) (common.Hash, error) {
	return g.callForHash(ctx, "/withdraw", map[string]any{
		"userId": userID, "token": token.Hex(), "amount": amount,
	})
}

// SettleTrade calls settleDEXTrade(buyer, seller, token, amount, orderRef)
// for a single committed trade (spec.md §6). buyer/seller are the core's
// own order identifiers, not wallet addresses — custody/address
// resolution belongs to whatever account-management layer fronts this
// gateway, not to the matching core, which only tracks UserID/OrderID.
// The returned common.Hash is the genuine on-chain settlement reference —
// the core never fabricates a placeholder hash of request data (§9 Open
// Question).
func (g *Gateway) SettleTrade(ctx context.Context, buyerRef, sellerRef string, token common.Address, amount, orderRef string) (common.Hash, error) {
	return g.callForHash(ctx, "/settle-trade", map[string]any{
		"buyer": buyerRef, "seller": sellerRef, "token": token.Hex(),
		"amount": amount, "orderRef": orderRef,
	})
}

// DistributeFees calls distributeDEXFees(token, totalFee, validatorAddress)
// after each settlement window; the core only routes the call and reports
// success (spec.md §6).
func (g *Gateway) DistributeFees(ctx context.Context, token common.Address, totalFee string, validator common.Address) error {
	_, err := g.callForHash(ctx, "/distribute-fees", map[string]any{
		"token": token.Hex(), "totalFee": totalFee, "validator": validator.Hex(),
	})
	return err
}

func (g *Gateway) callForHash(ctx context.Context, path string, body map[string]any) (common.Hash, error) {
	result := g.cb.ExecuteWithContext(ctx, gatewayBreaker, func(ctx context.Context) (interface{}, error) {
		var out DepositResult
		resp, err := g.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&out).
			Post(path)
		if err != nil {
			return DepositResult{}, fmt.Errorf("settlement: %s: %w", path, err)
		}
		if resp.IsError() {
			return DepositResult{}, fmt.Errorf("settlement: %s: status %d: %s", path, resp.StatusCode(), resp.String())
		}
		return out, nil
	})
	if result.Error != nil {
		return common.Hash{}, result.Error
	}
	out, _ := result.Value.(DepositResult)
	return out.TxHash, nil
}

// gasEstimate returns a fixed per-trade gas estimate. A real gateway would
// expose this as part of its quote; until then it is a configuration
// constant shared across every trade in a batch.
const gasEstimate = 21_000

// Planner implements matching.SettlementPlanner: it receives committed
// trades off the matching hot path and batches them for settlement,
// bounded by both config.Settlement.MaxTradesPerBatch and a gas-budget
// estimate (spec.md §4.6) — a batch that would exceed either bound splits
// rather than silently truncating.
type Planner struct {
	gateway *Gateway
	cfg     config.SettlementConfig
	logger  *zap.Logger

	pending []*domain.Trade
}

// NewPlanner builds a batch settlement planner atop gateway.
func NewPlanner(gateway *Gateway, cfg config.SettlementConfig, logger *zap.Logger) *Planner {
	return &Planner{gateway: gateway, cfg: cfg, logger: logger}
}

// PlanTrade implements matching.SettlementPlanner. Called asynchronously,
// never on the matching hot path.
func (p *Planner) PlanTrade(ctx context.Context, trade *domain.Trade) {
	p.pending = append(p.pending, trade)

	maxBatch := p.cfg.MaxTradesPerBatch
	if maxBatch <= 0 {
		maxBatch = 1
	}
	if len(p.pending)*gasEstimate >= int(p.cfg.GasBudget) || len(p.pending) >= maxBatch {
		p.flush(ctx)
	}
}

// Flush forces settlement of any trades still pending, for callers (a
// shutdown hook, the periodic settlement-window ticker) that cannot wait
// for the batch to fill naturally.
func (p *Planner) Flush(ctx context.Context) {
	p.flush(ctx)
}

func (p *Planner) flush(ctx context.Context) {
	if len(p.pending) == 0 {
		return
	}
	batch := p.pending
	p.pending = nil

	for _, trade := range batch {
		// Token contract address resolution per trading pair is not yet
		// configured anywhere in the core; until it is, every trade settles
		// against the zero address and a real gateway would need to infer
		// the token from orderRef. Tracked as a gap, not silently faked.
		token := common.Address{}

		txHash, err := p.gateway.SettleTrade(ctx, trade.BuyOrderID, trade.SellOrderID, token, trade.Quantity.Raw(), trade.ID)
		if err != nil {
			trade.OnChainStatus = domain.OnChainStatusPending
			p.logger.Error("settlement: trade settlement exhausted retry, flagged pending",
				zap.String("trade_id", trade.ID), zap.Error(err))
			continue
		}
		trade.OnChainStatus = domain.OnChainStatusConfirmed
		trade.TxHash = txHash.Hex()
	}
}
