// Package coreerrors is the matching core's structured error taxonomy
// (spec.md §7): every caller-visible failure carries a stable Code, a
// Severity that drives propagation policy, and enough provenance to
// debug it without re-deriving context from logs.
package coreerrors

import (
	"fmt"
	"runtime"
	"time"
)

// Code identifies a distinct failure condition.
type Code string

const (
	// Validation
	ErrMissingField     Code = "MISSING_FIELD"
	ErrInvalidAmount    Code = "INVALID_AMOUNT"
	ErrInvalidPrice     Code = "INVALID_PRICE"
	ErrUnknownPair      Code = "UNKNOWN_PAIR"
	ErrLeverageOutOfBounds Code = "LEVERAGE_OUT_OF_BOUNDS"
	ErrPostOnlyWouldCross  Code = "POST_ONLY_WOULD_CROSS"
	ErrFeeAssetMismatch    Code = "FEE_ASSET_MISMATCH"

	// Authorization
	ErrNotOrderOwner     Code = "NOT_ORDER_OWNER"
	ErrWithdrawExceedsBalance Code = "WITHDRAW_EXCEEDS_BALANCE"

	// Liquidity
	ErrFOKUnfillable   Code = "FOK_UNFILLABLE"
	ErrEmptyOpposingSide Code = "EMPTY_OPPOSING_SIDE"

	// Risk
	ErrInsufficientMargin Code = "INSUFFICIENT_MARGIN"
	ErrPriceBandBreach    Code = "PRICE_BAND_BREACH"
	ErrCircuitBreakerActive Code = "CIRCUIT_BREAKER_ACTIVE"

	// Conflict
	ErrOrderNotOpen       Code = "ORDER_NOT_OPEN"
	ErrDuplicateIdempotencyKey Code = "DUPLICATE_IDEMPOTENCY_KEY"
	ErrOrderNotFound      Code = "ORDER_NOT_FOUND"

	// Transient
	ErrStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	ErrContractCallTimeout Code = "CONTRACT_CALL_TIMEOUT"
	ErrPrivacyOracleUnavailable Code = "PRIVACY_ORACLE_UNAVAILABLE"

	// Fatal
	ErrInvariantViolation Code = "INVARIANT_VIOLATION"
	ErrPairHalted         Code = "PAIR_HALTED"
)

// Severity drives propagation policy (spec.md §7).
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// CoreError is the structured error returned by every core operation.
type CoreError struct {
	Code      Code                   `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Severity  Severity               `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Function  string                 `json:"function,omitempty"`
	Cause     error                  `json:"-"`
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// WithDetail attaches a key/value pair, e.g. the offending field name.
func (e *CoreError) WithDetail(key string, value interface{}) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying error this one wraps.
func (e *CoreError) WithCause(cause error) *CoreError {
	e.Cause = cause
	return e
}

// New creates a CoreError with the default severity for code.
func New(code Code, message string) *CoreError {
	pc, file, line, _ := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	funcName := ""
	if fn != nil {
		funcName = fn.Name()
	}
	return &CoreError{
		Code:      code,
		Message:   message,
		Severity:  severityFor(code),
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
		Function:  funcName,
	}
}

// Newf creates a CoreError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *CoreError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a CoreError that wraps an existing error.
func Wrap(err error, code Code, message string) *CoreError {
	if err == nil {
		return nil
	}
	ce := New(code, message)
	ce.Cause = err
	return ce
}

// Is reports whether err is a *CoreError with the given code.
func Is(err error, code Code) bool {
	var ce *CoreError
	if As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// As finds the first *CoreError in err's chain.
func As(err error, target **CoreError) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*CoreError); ok {
		*target = ce
		return true
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return As(unwrapper.Unwrap(), target)
	}
	return false
}

// GetCode extracts the Code from err, or "" if err is not a *CoreError.
func GetCode(err error) Code {
	var ce *CoreError
	if As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsRetryable reports whether err is a Transient-class failure that a
// background path may retry without surfacing it to the caller.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrStorageUnavailable, ErrContractCallTimeout, ErrPrivacyOracleUnavailable:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err halts the affected pair (spec.md §7).
func IsFatal(err error) bool {
	var ce *CoreError
	if As(err, &ce) {
		return ce.Severity == SeverityCritical
	}
	return false
}

func severityFor(code Code) Severity {
	switch code {
	case ErrInvariantViolation, ErrPairHalted:
		return SeverityCritical
	case ErrCircuitBreakerActive, ErrStorageUnavailable, ErrContractCallTimeout, ErrFOKUnfillable, ErrPrivacyOracleUnavailable:
		return SeverityHigh
	case ErrInsufficientMargin, ErrPriceBandBreach, ErrOrderNotFound, ErrOrderNotOpen:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
