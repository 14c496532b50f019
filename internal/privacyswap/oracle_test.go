package privacyswap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/architecture/fx/resilience"
	"github.com/latticefi/dexcore/internal/config"
	"github.com/latticefi/dexcore/internal/coreerrors"
)

func testCfg(url string) config.PrivacySwapConfig {
	return config.PrivacySwapConfig{
		OracleURL:        url,
		RetryMaxAttempts: 1,
		RetryBaseDelayMS: 1,
		DeadlineSeconds:  2,
	}
}

func testBreaker() *resilience.CircuitBreakerFactory {
	return resilience.NewCircuitBreakerFactory(resilience.CircuitBreakerParams{Logger: zap.NewNop()})
}

func TestHTTPOracleEncryptRoundTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/encrypt", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "10", body["plaintext"])
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Ciphertext{Value: "ct-10"})
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(testCfg(srv.URL), zap.NewNop())
	ct, err := oracle.Encrypt(context.Background(), "10")
	require.NoError(t, err)
	require.Equal(t, "ct-10", ct.Value)
}

func TestHTTPOracleComputeSwapOutputHitsCorrectPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/compute-swap-output", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SwapResult{
			TakerFill: Ciphertext{Value: "tf"},
			MakerFill: Ciphertext{Value: "mf"},
			Remainder: Ciphertext{Value: "rem"},
		})
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(testCfg(srv.URL), zap.NewNop())
	result, err := oracle.ComputeSwapOutput(context.Background(), SwapRequest{
		TakerAmount: Ciphertext{Value: "a"},
		MakerAmount: Ciphertext{Value: "b"},
		Price:       "100",
	})
	require.NoError(t, err)
	require.Equal(t, "tf", result.TakerFill.Value)
	require.Equal(t, "mf", result.MakerFill.Value)
	require.Equal(t, "rem", result.Remainder.Value)
}

func TestHTTPOracleCompareEncryptedSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(testCfg(srv.URL), zap.NewNop())
	_, err := oracle.CompareEncrypted(context.Background(), CompareGT, Ciphertext{Value: "a"}, Ciphertext{Value: "b"})
	require.Error(t, err)
}

// TestMatcherWrapsFailureAsPrivacyOracleUnavailable pins the spec's
// fallback contract: any oracle failure surfaces as
// coreerrors.ErrPrivacyOracleUnavailable so the caller can reject the
// privacy order and continue regular matching rather than halt the pair.
func TestMatcherWrapsFailureAsPrivacyOracleUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(testCfg(srv.URL), zap.NewNop())
	matcher := NewMatcher(oracle, testBreaker(), zap.NewNop())

	_, err := matcher.Encrypt(context.Background(), "10")
	require.Error(t, err)
	require.True(t, coreerrors.Is(err, coreerrors.ErrPrivacyOracleUnavailable))
	require.True(t, coreerrors.IsRetryable(err))
}

func TestMatcherSucceedsWhenOracleIsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Ciphertext{Value: "ct-5"})
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(testCfg(srv.URL), zap.NewNop())
	matcher := NewMatcher(oracle, testBreaker(), zap.NewNop())

	ct, err := matcher.Encrypt(context.Background(), "5")
	require.NoError(t, err)
	require.Equal(t, "ct-5", ct.Value)
	require.True(t, matcher.Available())
}

func TestMatcherDecryptForOwnerDelegatesToOracle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/decrypt-for-owner", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "alice", body["owner"])
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"plaintext": "42"})
	}))
	defer srv.Close()

	oracle := NewHTTPOracle(testCfg(srv.URL), zap.NewNop())
	matcher := NewMatcher(oracle, testBreaker(), zap.NewNop())

	plaintext, err := matcher.DecryptForOwner(context.Background(), "alice", Ciphertext{Value: "ct-42"})
	require.NoError(t, err)
	require.Equal(t, "42", plaintext)
}
