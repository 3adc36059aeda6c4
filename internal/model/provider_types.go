package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProviderCapability is the static contract a provider declares at construction.
type ProviderCapability struct {
	SupportedNetworks    map[CardNetwork]bool
	SupportedMethods     map[PaymentMethod]bool
	SupportedCurrencies  map[Currency]bool
	SupportedRegions     map[Region]bool
	MinAmount            decimal.Decimal
	MaxAmount            decimal.Decimal
	ProcessingFeePercent decimal.Decimal
}

// ProviderHealth is the computed, point-in-time health view of a provider.
type ProviderHealth struct {
	ProviderName        string             `json:"provider_name"`
	SuccessRate         float64            `json:"success_rate"`
	AvgLatencyMS        float64            `json:"avg_latency_ms"`
	CurrentLoad         int                `json:"current_load"`
	IsHealthy           bool               `json:"is_healthy"`
	LastChecked         time.Time          `json:"last_checked"`
	CircuitBreakerOpen  bool               `json:"circuit_breaker_open"`
	LastCircuitFailure  *time.Time         `json:"last_circuit_failure,omitempty"`
	SuccessRateByNetwork map[string]float64 `json:"success_rate_by_network"`
	SuccessRateByMethod  map[string]float64 `json:"success_rate_by_method"`
	SuccessRateByRegion  map[string]float64 `json:"success_rate_by_region"`
}

// ProviderResult is what a provider returns on a successful process() call.
type ProviderResult struct {
	ProviderTransactionID string
	ProcessingTime        time.Duration
	ProcessingFee         decimal.Decimal
	ProviderResponseCode  string
	NetworkResponseCode   string
}

// ProviderError is the typed failure a provider's process() call returns.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s (%s)", e.Provider, e.Message, e.Kind)
}

// NewProviderError builds a ProviderError with a stock message for the kind.
func NewProviderError(provider string, kind ErrorKind) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Message: errorMessage(kind)}
}

func errorMessage(k ErrorKind) string {
	switch k {
	case ErrTimeout, ErrNetworkTimeout:
		return "request timed out"
	case ErrConnectionRefused:
		return "connection refused"
	case ErrSSLHandshakeFailed:
		return "TLS handshake failed"
	case ErrDNSResolutionFailed:
		return "DNS resolution failed"
	case ErrNetworkUnavailable:
		return "network unavailable"
	case ErrCardDeclined:
		return "card declined"
	case ErrInsufficientFunds:
		return "insufficient funds"
	case ErrAuthFailed:
		return "authentication failed"
	case ErrBlockedCard:
		return "card is blocked"
	case ErrExpiredCard:
		return "card has expired"
	case ErrInvalidCardNumber:
		return "invalid card number"
	case ErrInvalidCVV:
		return "invalid CVV"
	case ErrIssuerUnavailable:
		return "issuer unavailable"
	case ErrAccountRestricted:
		return "account restricted"
	case ErrCurrencyNotSupported:
		return "currency not supported"
	case ErrRegionBlocked:
		return "region blocked"
	case ErrComplianceViolation:
		return "compliance violation"
	case ErrFraudDetected:
		return "suspected fraud"
	case ErrDuplicateTransaction:
		return "duplicate transaction"
	case ErrWalletInsufficientBalance:
		return "wallet balance insufficient"
	case ErrWalletSuspended:
		return "wallet suspended"
	case ErrBankAccountClosed:
		return "bank account closed"
	case ErrBankTransferLimitExceeded:
		return "bank transfer limit exceeded"
	case ErrRateLimited:
		return "rate limit exceeded"
	case ErrProviderMaintenance:
		return "provider under maintenance"
	case ErrUnsupportedTransaction:
		return "transaction not supported by provider capabilities"
	default:
		return "unknown error"
	}
}

// TransactionNotFoundError is returned by facade operations on an unknown id.
type TransactionNotFoundError struct {
	TransactionID string
}

func (e *TransactionNotFoundError) Error() string {
	return fmt.Sprintf("transaction %s not found", e.TransactionID)
}

// InvalidProviderError is returned when a caller names an unregistered provider.
type InvalidProviderError struct {
	Provider string
}

func (e *InvalidProviderError) Error() string {
	return fmt.Sprintf("Invalid provider: %s", e.Provider)
}

// CircuitOpenError is the synthetic breaker signal (never a provider ErrorKind)
// converted by the orchestrator into a retry-eligible Route.
type CircuitOpenError struct {
	Provider string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for provider %s", e.Provider)
}
