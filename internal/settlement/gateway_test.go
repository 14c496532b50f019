package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/architecture/fx/resilience"
	"github.com/latticefi/dexcore/internal/config"
	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

func testCfg(url string) config.SettlementConfig {
	return config.SettlementConfig{
		ContractGatewayURL: url,
		MaxTradesPerBatch:  3,
		GasBudget:          1_000_000,
		RetryMaxAttempts:   1,
		RetryBaseDelayMS:   1,
		DeadlineSeconds:    2,
	}
}

func testBreaker() *resilience.CircuitBreakerFactory {
	return resilience.NewCircuitBreakerFactory(resilience.CircuitBreakerParams{Logger: zap.NewNop()})
}

func TestGatewaySettleTradeReturnsGenuineTxHash(t *testing.T) {
	wantHash := common.HexToHash("0xabc123")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/settle-trade", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "buyer-ref", body["buyer"])
		require.Equal(t, "seller-ref", body["seller"])
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(DepositResult{TxHash: wantHash})
	}))
	defer srv.Close()

	g := New(testCfg(srv.URL), testBreaker(), zap.NewNop())
	hash, err := g.SettleTrade(context.Background(), "buyer-ref", "seller-ref", common.Address{}, "10", "order-1")
	require.NoError(t, err)
	require.Equal(t, wantHash, hash)
}

func TestGatewaySettleTradeSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("gateway down"))
	}))
	defer srv.Close()

	g := New(testCfg(srv.URL), testBreaker(), zap.NewNop())
	_, err := g.SettleTrade(context.Background(), "buyer-ref", "seller-ref", common.Address{}, "10", "order-1")
	require.Error(t, err)
}

func TestGatewayDepositAndWithdrawHitDistinctPaths(t *testing.T) {
	var gotPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(DepositResult{TxHash: common.HexToHash("0x1")})
	}))
	defer srv.Close()

	g := New(testCfg(srv.URL), testBreaker(), zap.NewNop())
	_, err := g.Deposit(context.Background(), "alice", common.Address{}, "100")
	require.NoError(t, err)
	_, err = g.Withdraw(context.Background(), "alice", common.Address{}, "50")
	require.NoError(t, err)

	require.Equal(t, []string{"/deposit", "/withdraw"}, gotPaths)
}

func TestGatewayDistributeFeesReportsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/distribute-fees", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(DepositResult{TxHash: common.HexToHash("0x2")})
	}))
	defer srv.Close()

	g := New(testCfg(srv.URL), testBreaker(), zap.NewNop())
	err := g.DistributeFees(context.Background(), common.Address{}, "5", common.Address{})
	require.NoError(t, err)
}

func newTrade(t *testing.T, buyOrderID, sellOrderID string) *domain.Trade {
	t.Helper()
	qty, err := fixedpoint.ToBase("1")
	require.NoError(t, err)
	price, err := fixedpoint.ToBase("100")
	require.NoError(t, err)
	trade, err := domain.NewTrade("BTC-PERP", price, qty, buyOrderID, sellOrderID, true, 1, time.Now())
	require.NoError(t, err)
	return trade
}

// TestPlannerFlushesAtMaxBatch exercises the "split rather than truncate"
// invariant: the third trade in a 3-trade-max batch triggers a flush before
// a fourth trade would ever be silently dropped.
func TestPlannerFlushesAtMaxBatch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(DepositResult{TxHash: common.HexToHash("0x3")})
	}))
	defer srv.Close()

	gateway := New(testCfg(srv.URL), testBreaker(), zap.NewNop())
	planner := NewPlanner(gateway, testCfg(srv.URL), zap.NewNop())

	for i := 0; i < 3; i++ {
		planner.PlanTrade(context.Background(), newTrade(t, "buy-order", "sell-order"))
	}

	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Empty(t, planner.pending)
}

func TestPlannerFlushMarksConfirmedOnSuccess(t *testing.T) {
	wantHash := common.HexToHash("0xdeadbeef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(DepositResult{TxHash: wantHash})
	}))
	defer srv.Close()

	gateway := New(testCfg(srv.URL), testBreaker(), zap.NewNop())
	planner := NewPlanner(gateway, testCfg(srv.URL), zap.NewNop())

	trade := newTrade(t, "buy-order", "sell-order")
	planner.PlanTrade(context.Background(), trade)
	planner.Flush(context.Background())

	require.Equal(t, domain.OnChainStatusConfirmed, trade.OnChainStatus)
	require.Equal(t, wantHash.Hex(), trade.TxHash)
}

func TestPlannerFlushFlagsPendingOnGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gateway := New(testCfg(srv.URL), testBreaker(), zap.NewNop())
	planner := NewPlanner(gateway, testCfg(srv.URL), zap.NewNop())

	trade := newTrade(t, "buy-order", "sell-order")
	planner.PlanTrade(context.Background(), trade)
	planner.Flush(context.Background())

	require.Equal(t, domain.OnChainStatusPending, trade.OnChainStatus)
	require.Empty(t, trade.TxHash)
}

func TestPlannerFlushIsNoopWhenEmpty(t *testing.T) {
	gateway := New(testCfg("http://unused"), testBreaker(), zap.NewNop())
	planner := NewPlanner(gateway, testCfg("http://unused"), zap.NewNop())
	planner.Flush(context.Background())
	require.Empty(t, planner.pending)
}
