// Package privacyswap adapts the privacy-variant matching path (spec.md's
// "Encrypted matching (privacy variant, optional)"): when amounts are
// opaque ciphertexts, comparisons and output computation delegate to an
// external MPC operator set rather than being computed in-process. The
// core never reads plaintext it did not itself encrypt, and never
// implements the MPC protocol — only the operation set spec.md names:
// encrypt, decryptForOwner, addEncrypted, subtractEncrypted,
// compareEncrypted(op), computeSwapOutput.
package privacyswap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/architecture/fx/resilience"
	"github.com/latticefi/dexcore/internal/config"
	"github.com/latticefi/dexcore/internal/coreerrors"
)

func secondsOrDefault(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

func millisOrDefault(millis, fallback int) time.Duration {
	if millis <= 0 {
		millis = fallback
	}
	return time.Duration(millis) * time.Millisecond
}

const oracleBreaker = "privacyswap-oracle"

// Ciphertext is an opaque MPC-encrypted value. The core treats its
// contents as unreadable: every operation on it is delegated to Oracle.
type Ciphertext struct {
	Value string `json:"value"`
}

// CompareOp is one of the comparison operators compareEncrypted supports.
type CompareOp string

const (
	CompareGT CompareOp = "gt"
	CompareGTE CompareOp = "gte"
	CompareLT CompareOp = "lt"
	CompareLTE CompareOp = "lte"
	CompareEQ CompareOp = "eq"
)

// SwapRequest is computeSwapOutput's input: two encrypted order amounts
// and the plaintext price the engine is allowed to see (spec.md's privacy
// variant encrypts amounts, not price — price-time priority still runs in
// plaintext against the book).
type SwapRequest struct {
	TakerAmount Ciphertext `json:"takerAmount"`
	MakerAmount Ciphertext `json:"makerAmount"`
	Price       string     `json:"price"`
}

// SwapResult is computeSwapOutput's output: encrypted fill amounts for
// both sides plus the encrypted remainder left on the larger side.
type SwapResult struct {
	TakerFill Ciphertext `json:"takerFill"`
	MakerFill Ciphertext `json:"makerFill"`
	Remainder Ciphertext `json:"remainder"`
}

// Oracle is the operation set spec.md requires of the external MPC
// node. internal/matching never calls the oracle directly — every
// implementation is called through Matcher so an unreachable oracle
// degrades to order rejection rather than a propagated panic.
type Oracle interface {
	Encrypt(ctx context.Context, plaintext string) (Ciphertext, error)
	DecryptForOwner(ctx context.Context, owner string, ct Ciphertext) (string, error)
	AddEncrypted(ctx context.Context, a, b Ciphertext) (Ciphertext, error)
	SubtractEncrypted(ctx context.Context, a, b Ciphertext) (Ciphertext, error)
	CompareEncrypted(ctx context.Context, op CompareOp, a, b Ciphertext) (bool, error)
	ComputeSwapOutput(ctx context.Context, req SwapRequest) (SwapResult, error)
}

// HTTPOracle dials an MPC operator set over HTTP, grounded on the same
// resty client pattern internal/settlement.Gateway uses for the contract
// gateway (0xtitan6-polymarket-mm's exchange.Client): base URL, timeout,
// retry-on-5xx.
type HTTPOracle struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewHTTPOracle builds an HTTPOracle against cfg.OracleURL. An empty
// OracleURL is valid — every call will simply fail to dial, which the
// Matcher's circuit breaker and fallback already handle.
func NewHTTPOracle(cfg config.PrivacySwapConfig, logger *zap.Logger) *HTTPOracle {
	httpClient := resty.New().
		SetBaseURL(cfg.OracleURL).
		SetTimeout(secondsOrDefault(cfg.DeadlineSeconds, 5)).
		SetRetryCount(cfg.RetryMaxAttempts).
		SetRetryWaitTime(millisOrDefault(cfg.RetryBaseDelayMS, 100)).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &HTTPOracle{http: httpClient, logger: logger}
}

func (o *HTTPOracle) Encrypt(ctx context.Context, plaintext string) (Ciphertext, error) {
	var out Ciphertext
	return out, o.post(ctx, "/encrypt", map[string]any{"plaintext": plaintext}, &out)
}

func (o *HTTPOracle) DecryptForOwner(ctx context.Context, owner string, ct Ciphertext) (string, error) {
	var out struct {
		Plaintext string `json:"plaintext"`
	}
	if err := o.post(ctx, "/decrypt-for-owner", map[string]any{"owner": owner, "ciphertext": ct}, &out); err != nil {
		return "", err
	}
	return out.Plaintext, nil
}

func (o *HTTPOracle) AddEncrypted(ctx context.Context, a, b Ciphertext) (Ciphertext, error) {
	var out Ciphertext
	return out, o.post(ctx, "/add-encrypted", map[string]any{"a": a, "b": b}, &out)
}

func (o *HTTPOracle) SubtractEncrypted(ctx context.Context, a, b Ciphertext) (Ciphertext, error) {
	var out Ciphertext
	return out, o.post(ctx, "/subtract-encrypted", map[string]any{"a": a, "b": b}, &out)
}

func (o *HTTPOracle) CompareEncrypted(ctx context.Context, op CompareOp, a, b Ciphertext) (bool, error) {
	var out struct {
		Result bool `json:"result"`
	}
	if err := o.post(ctx, "/compare-encrypted", map[string]any{"op": op, "a": a, "b": b}, &out); err != nil {
		return false, err
	}
	return out.Result, nil
}

func (o *HTTPOracle) ComputeSwapOutput(ctx context.Context, req SwapRequest) (SwapResult, error) {
	var out SwapResult
	return out, o.post(ctx, "/compute-swap-output", req, &out)
}

func (o *HTTPOracle) post(ctx context.Context, path string, body any, out any) error {
	resp, err := o.http.R().SetContext(ctx).SetBody(body).SetResult(out).Post(path)
	if err != nil {
		return fmt.Errorf("privacyswap: %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("privacyswap: %s: status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}

// Matcher wraps an Oracle with a circuit breaker: every call that fails
// or trips the breaker surfaces coreerrors.ErrPrivacyOracleUnavailable,
// which the caller must treat as "reject this privacy order, continue
// regular matching" (spec.md's fallback) rather than as a fatal error.
type Matcher struct {
	oracle Oracle
	cb     *resilience.CircuitBreakerFactory
	logger *zap.Logger
}

// NewMatcher builds a Matcher around oracle.
func NewMatcher(oracle Oracle, cb *resilience.CircuitBreakerFactory, logger *zap.Logger) *Matcher {
	return &Matcher{oracle: oracle, cb: cb, logger: logger}
}

func (m *Matcher) run(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result := m.cb.ExecuteWithContext(ctx, oracleBreaker, fn)
	if result.Error != nil {
		m.logger.Warn("privacyswap: oracle call failed, privacy orders will be rejected", zap.Error(result.Error))
		return nil, coreerrors.Wrap(result.Error, coreerrors.ErrPrivacyOracleUnavailable, "privacy oracle unavailable")
	}
	return result.Value, nil
}

// Encrypt delegates to the oracle, surfacing ErrPrivacyOracleUnavailable
// on failure instead of the oracle's raw transport error.
func (m *Matcher) Encrypt(ctx context.Context, plaintext string) (Ciphertext, error) {
	v, err := m.run(ctx, func(ctx context.Context) (interface{}, error) { return m.oracle.Encrypt(ctx, plaintext) })
	if err != nil {
		return Ciphertext{}, err
	}
	return v.(Ciphertext), nil
}

// DecryptForOwner delegates to the oracle. The core never decrypts
// anything itself — this call only ever returns plaintext the oracle
// has attested belongs to owner.
func (m *Matcher) DecryptForOwner(ctx context.Context, owner string, ct Ciphertext) (string, error) {
	v, err := m.run(ctx, func(ctx context.Context) (interface{}, error) { return m.oracle.DecryptForOwner(ctx, owner, ct) })
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// AddEncrypted delegates to the oracle.
func (m *Matcher) AddEncrypted(ctx context.Context, a, b Ciphertext) (Ciphertext, error) {
	v, err := m.run(ctx, func(ctx context.Context) (interface{}, error) { return m.oracle.AddEncrypted(ctx, a, b) })
	if err != nil {
		return Ciphertext{}, err
	}
	return v.(Ciphertext), nil
}

// SubtractEncrypted delegates to the oracle.
func (m *Matcher) SubtractEncrypted(ctx context.Context, a, b Ciphertext) (Ciphertext, error) {
	v, err := m.run(ctx, func(ctx context.Context) (interface{}, error) { return m.oracle.SubtractEncrypted(ctx, a, b) })
	if err != nil {
		return Ciphertext{}, err
	}
	return v.(Ciphertext), nil
}

// CompareEncrypted delegates to the oracle.
func (m *Matcher) CompareEncrypted(ctx context.Context, op CompareOp, a, b Ciphertext) (bool, error) {
	v, err := m.run(ctx, func(ctx context.Context) (interface{}, error) { return m.oracle.CompareEncrypted(ctx, op, a, b) })
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ComputeSwapOutput delegates to the oracle.
func (m *Matcher) ComputeSwapOutput(ctx context.Context, req SwapRequest) (SwapResult, error) {
	v, err := m.run(ctx, func(ctx context.Context) (interface{}, error) { return m.oracle.ComputeSwapOutput(ctx, req) })
	if err != nil {
		return SwapResult{}, err
	}
	return v.(SwapResult), nil
}

// Available reports whether the breaker currently allows calls through,
// letting a caller skip privacy-order admission entirely rather than pay
// for a call it expects to fail.
func (m *Matcher) Available() bool {
	return m.cb.GetState(oracleBreaker).String() != "open"
}
