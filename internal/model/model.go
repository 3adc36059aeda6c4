package model

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentInstrument describes the funding instrument attached to a transaction.
type PaymentInstrument struct {
	Method   PaymentMethod `json:"method"`
	Network  *CardNetwork  `json:"network,omitempty"`
	LastFour string        `json:"last_four,omitempty"`
	ExpMonth int           `json:"exp_month,omitempty"`
	ExpYear  int           `json:"exp_year,omitempty"`
	Country  string        `json:"country,omitempty"`
	Issuer   string        `json:"issuer,omitempty"`
	Brand    string        `json:"brand,omitempty"`
}

// CustomerInfo carries the customer context used by risk- and region-aware routing.
type CustomerInfo struct {
	CustomerID         string    `json:"customer_id"`
	Country            string    `json:"country,omitempty"`
	Region             *Region   `json:"region,omitempty"`
	RiskLevel          RiskLevel `json:"risk_level,omitempty"`
	SuccessfulPayments int       `json:"successful_payments"`
	PreviousFailures   int       `json:"previous_failures"`
	PreferredProviders []string  `json:"preferred_providers,omitempty"`
}

// RoutingDecision records why the Router picked the provider it picked for one attempt.
type RoutingDecision struct {
	SelectedProvider     string                 `json:"selected_provider"`
	StrategyUsed         RoutingStrategy        `json:"strategy_used"`
	DecisionFactors      map[string]interface{} `json:"decision_factors"`
	AlternativeProviders []string               `json:"alternative_providers"`
	ConfidenceScore      float64                `json:"confidence_score"`
	Timestamp            time.Time              `json:"timestamp"`
}

// Route is the immutable audit record of one provider attempt.
type Route struct {
	Provider             string          `json:"provider"`
	AttemptNumber        int             `json:"attempt_number"`
	Status               RouteStatus     `json:"status"`
	Timestamp            time.Time       `json:"timestamp"`
	Reason               *string         `json:"reason,omitempty"`
	ProcessingTime       *time.Duration  `json:"processing_time,omitempty"`
	ProviderResponseCode *string         `json:"provider_response_code,omitempty"`
	NetworkResponseCode  *string         `json:"network_response_code,omitempty"`
	NetworkLatency       *time.Duration  `json:"network_latency,omitempty"`
	RetryEligible        bool            `json:"retry_eligible"`
	Decision             RoutingDecision `json:"routing_decision"`
}

// Transaction is the unit of orchestration. Its route history and status are
// mutated exclusively by the Orchestrator through the methods below; every
// other reader goes through Snapshot to get a consistent, detached view.
type Transaction struct {
	mu sync.RWMutex

	ID         string
	MerchantID string
	OrderID    string

	Amount          decimal.Decimal
	Currency        Currency
	TransactionType TransactionType

	Instrument *PaymentInstrument
	Customer   *CustomerInfo

	Provider     string
	Status       TransactionStatus
	Attempts     int
	RouteHistory []Route

	RiskScore       *float64
	FraudIndicators []string

	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// NewTransaction constructs a Transaction in the pending state. Economics,
// instrument, and customer are immutable after this call.
func NewTransaction(id string, amount decimal.Decimal, currency Currency, txType TransactionType, instrument *PaymentInstrument, customer *CustomerInfo, merchantID, orderID string) *Transaction {
	return &Transaction{
		ID:              id,
		MerchantID:      merchantID,
		OrderID:         orderID,
		Amount:          amount,
		Currency:        currency,
		TransactionType: txType,
		Instrument:      instrument,
		Customer:        customer,
		Status:          StatusPending,
		RouteHistory:    make([]Route, 0, 1),
		Metadata:        make(map[string]interface{}),
		CreatedAt:       time.Now(),
	}
}

// SetProvider records the provider chosen for the upcoming attempt.
func (t *Transaction) SetProvider(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Provider = name
}

// SetStatus transitions the transaction's lifecycle status.
func (t *Transaction) SetStatus(s TransactionStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = s
}

// AppendRoute records one attempt. The Orchestrator is the sole caller and is
// responsible for attempt_number == len(history)+1 (invariant I1).
func (t *Transaction) AppendRoute(r Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Attempts++
	t.RouteHistory = append(t.RouteHistory, r)
}

// MergeMetadata merges key/value pairs into the transaction's metadata bag.
func (t *Transaction) MergeMetadata(kv map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range kv {
		t.Metadata[k] = v
	}
}

// LastRoute returns the most recent route, if any.
func (t *Transaction) LastRoute() (Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.RouteHistory) == 0 {
		return Route{}, false
	}
	return t.RouteHistory[len(t.RouteHistory)-1], true
}

// NextAttemptNumber returns the attempt_number the next AppendRoute call must
// use to keep route_history[i].attempt_number == i+1 (invariant I1), across
// every call that ever appends to this transaction's history.
func (t *Transaction) NextAttemptNumber() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.RouteHistory) + 1
}

// AttemptedProviders returns the providers already tried, in attempt order.
func (t *Transaction) AttemptedProviders() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.RouteHistory))
	for i, r := range t.RouteHistory {
		out[i] = r.Provider
	}
	return out
}

// IsTerminalSuccess reports whether the transaction already completed successfully.
func (t *Transaction) IsTerminalSuccess() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status == StatusSuccess
}

// StatusValue returns the current lifecycle status.
func (t *Transaction) StatusValue() TransactionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// TransactionView is the read-only, detached envelope shape returned to callers.
type TransactionView struct {
	ID                string                 `json:"id"`
	Amount            decimal.Decimal        `json:"amount"`
	Currency          Currency               `json:"currency"`
	TransactionType   TransactionType        `json:"transaction_type"`
	Provider          string                 `json:"provider"`
	Status            TransactionStatus      `json:"status"`
	PaymentInstrument *PaymentInstrument     `json:"payment_instrument,omitempty"`
	CustomerInfo      *CustomerInfo          `json:"customer_info,omitempty"`
	MerchantID        string                 `json:"merchant_id,omitempty"`
	OrderID           string                 `json:"order_id,omitempty"`
	Attempts          int                    `json:"attempts"`
	RouteHistory      []Route                `json:"route_history"`
	Timestamp         time.Time              `json:"timestamp"`
	Metadata          map[string]interface{} `json:"metadata"`
	RiskScore         *float64               `json:"risk_score,omitempty"`
	FraudIndicators   []string               `json:"fraud_indicators,omitempty"`
}

// Snapshot returns a detached, consistent view of the transaction for readers
// (get_transaction_status, the event bus, the response envelope).
func (t *Transaction) Snapshot() TransactionView {
	t.mu.RLock()
	defer t.mu.RUnlock()

	history := make([]Route, len(t.RouteHistory))
	copy(history, t.RouteHistory)

	meta := make(map[string]interface{}, len(t.Metadata))
	for k, v := range t.Metadata {
		meta[k] = v
	}

	fraud := make([]string, len(t.FraudIndicators))
	copy(fraud, t.FraudIndicators)

	return TransactionView{
		ID:                t.ID,
		Amount:            t.Amount,
		Currency:          t.Currency,
		TransactionType:   t.TransactionType,
		Provider:          t.Provider,
		Status:            t.Status,
		PaymentInstrument: t.Instrument,
		CustomerInfo:      t.Customer,
		MerchantID:        t.MerchantID,
		OrderID:           t.OrderID,
		Attempts:          t.Attempts,
		RouteHistory:      history,
		Timestamp:         t.CreatedAt,
		Metadata:          meta,
		RiskScore:         t.RiskScore,
		FraudIndicators:   fraud,
	}
}
