// Package eventbus implements the C6 component: a synchronous structured
// audit trail, one JSONL stream per event family, distinct from the
// operational zap logger threaded through the other components.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimbus-gateway/orchestrator/internal/model"
	"go.uber.org/zap"
)

// streamName is one of the six recognized JSONL files (§6).
type streamName string

const (
	streamPaymentEvents       streamName = "payment_events"
	streamRoutingDecisions    streamName = "routing_decisions"
	streamFailureAnalysis     streamName = "failure_analysis"
	streamPerformanceMetrics  streamName = "performance_metrics"
	streamCircuitBreakerEvent streamName = "circuit_breaker_events"
	streamSystemHealth        streamName = "system_health"
)

// Level is the entry's severity.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelDebug Level = "DEBUG"
)

// Entry is one JSON line written to a stream, per §6's field list.
type Entry struct {
	LogID              string                 `json:"log_id"`
	Timestamp          time.Time              `json:"timestamp"`
	Level              Level                  `json:"level"`
	EventType          string                 `json:"event_type"`
	TransactionID      *string                `json:"transaction_id"`
	Provider           *string                `json:"provider"`
	Message            string                 `json:"message"`
	Context            map[string]interface{} `json:"context"`
	Metrics            map[string]interface{} `json:"metrics"`
	ErrorDetails       map[string]interface{} `json:"error_details"`
	RoutingContext     map[string]interface{} `json:"routing_context"`
	PerformanceMetrics map[string]interface{} `json:"performance_metrics"`
	BusinessImpact     map[string]interface{} `json:"business_impact"`
}

// Bus is the C6 event bus. Every emitting method is synchronous: the write
// completes (or is swallowed and reported) before the call returns, so the
// orchestrator's next step always happens-after the emission.
type Bus struct {
	mu    sync.Mutex
	dir   string
	files map[streamName]*os.File
	log   *zap.Logger
}

// New opens (creating if absent) the six JSONL files under dir.
func New(dir string, log *zap.Logger) (*Bus, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("eventbus: create log directory: %w", err)
	}

	b := &Bus{dir: dir, files: make(map[streamName]*os.File), log: log}
	streams := []streamName{
		streamPaymentEvents, streamRoutingDecisions, streamFailureAnalysis,
		streamPerformanceMetrics, streamCircuitBreakerEvent, streamSystemHealth,
	}
	for _, s := range streams {
		f, err := os.OpenFile(filepath.Join(dir, string(s)+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("eventbus: open %s: %w", s, err)
		}
		b.files[s] = f
	}
	return b, nil
}

// Close drains and closes every open stream file.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, f := range b.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Bus) write(stream streamName, entry Entry) {
	entry.LogID = uuid.New().String()
	entry.Timestamp = time.Now()

	b.mu.Lock()
	f := b.files[stream]
	b.mu.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		b.log.Error("eventbus_marshal_failed", zap.String("stream", string(stream)), zap.Error(err))
		return
	}
	line = append(line, '\n')

	b.mu.Lock()
	_, writeErr := f.Write(line)
	b.mu.Unlock()
	if writeErr != nil {
		b.log.Error("eventbus_write_failed", zap.String("stream", string(stream)), zap.Error(writeErr))
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func paymentContext(tx *model.Transaction, view model.TransactionView) map[string]interface{} {
	ctx := map[string]interface{}{
		"transaction_amount": view.Amount,
		"transaction_currency": view.Currency,
		"merchant_id":          view.MerchantID,
		"attempt_number":       view.Attempts,
		"total_routes_tried":   len(view.RouteHistory),
	}
	if view.PaymentInstrument != nil {
		ctx["payment_method"] = view.PaymentInstrument.Method
		if view.PaymentInstrument.Network != nil {
			ctx["card_network"] = *view.PaymentInstrument.Network
		}
	}
	if view.CustomerInfo != nil {
		if view.CustomerInfo.Region != nil {
			ctx["customer_region"] = *view.CustomerInfo.Region
		}
		ctx["customer_risk_level"] = view.CustomerInfo.RiskLevel
	}
	return ctx
}

// businessImpact implements the §4.6 business-impact block formulas.
func businessImpact(view model.TransactionView, failed bool) map[string]interface{} {
	revenueAtRisk := 0.0
	if failed {
		amount, _ := view.Amount.Float64()
		revenueAtRisk = amount
	}

	totalProcessingSeconds := 0.0
	var fee interface{}
	for _, r := range view.RouteHistory {
		if r.ProcessingTime != nil {
			totalProcessingSeconds += r.ProcessingTime.Seconds()
		}
		if r.Status == model.RouteSuccess {
			if f, ok := view.Metadata["processing_fee"]; ok {
				fee = f
			}
		}
	}

	score := 100.0 - 10*float64(maxInt(view.Attempts-1, 0)) - min(30, 5*totalProcessingSeconds)
	if failed {
		score -= 50
	}
	score = clamp(score, 0, 100)

	amount, _ := view.Amount.Float64()
	opportunityCost := 0.0
	if failed {
		opportunityCost = 0.1 * amount
	}

	return map[string]interface{}{
		"revenue_at_risk":           revenueAtRisk,
		"customer_experience_score": score,
		"cost_implications": map[string]interface{}{
			"processing_fees": fee,
			"retry_costs":     0.01 * float64(len(view.RouteHistory)),
			"opportunity_cost": opportunityCost,
		},
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PaymentInitiated emits the payment_initiated event.
func (b *Bus) PaymentInitiated(tx *model.Transaction) {
	view := tx.Snapshot()
	amount, _ := view.Amount.Float64()
	b.write(streamPaymentEvents, Entry{
		Level:         LevelInfo,
		EventType:     "payment_initiated",
		TransactionID: strPtr(view.ID),
		Message:       fmt.Sprintf("payment initiated: %.2f %s", amount, view.Currency),
		Context:       paymentContext(tx, view),
	})
}

// PaymentSuccess emits payment_success and routing_decision entries.
func (b *Bus) PaymentSuccess(tx *model.Transaction, route model.Route) {
	view := tx.Snapshot()
	amount, _ := view.Amount.Float64()
	b.write(streamPaymentEvents, Entry{
		Level:          LevelInfo,
		EventType:      "payment_success",
		TransactionID:  strPtr(view.ID),
		Provider:       strPtr(route.Provider),
		Message:        fmt.Sprintf("payment successful: %.2f %s via %s", amount, view.Currency, route.Provider),
		Context:        paymentContext(tx, view),
		BusinessImpact: businessImpact(view, false),
	})
	b.logRoutingDecision(view, route)
}

// PaymentFailure emits payment_failure and failure_analysis entries, one per attempt.
func (b *Bus) PaymentFailure(tx *model.Transaction, route model.Route) {
	view := tx.Snapshot()
	amount, _ := view.Amount.Float64()
	reason := ""
	if route.Reason != nil {
		reason = *route.Reason
	}
	b.write(streamPaymentEvents, Entry{
		Level:          LevelWarn,
		EventType:      "payment_failure",
		TransactionID:  strPtr(view.ID),
		Provider:       strPtr(route.Provider),
		Message:        fmt.Sprintf("payment failed: %.2f %s via %s (%s)", amount, view.Currency, route.Provider, reason),
		Context:        paymentContext(tx, view),
		BusinessImpact: businessImpact(view, false),
	})
	b.logFailureAnalysis(view, route)
	b.logRoutingDecision(view, route)
}

// PaymentFinalFailure emits the terminal payment_final_failure event.
func (b *Bus) PaymentFinalFailure(tx *model.Transaction) {
	view := tx.Snapshot()
	amount, _ := view.Amount.Float64()
	b.write(streamPaymentEvents, Entry{
		Level:          LevelError,
		EventType:      "payment_final_failure",
		TransactionID:  strPtr(view.ID),
		Message:        fmt.Sprintf("payment permanently failed after %d attempts: %.2f", view.Attempts, amount),
		Context:        paymentContext(tx, view),
		BusinessImpact: businessImpact(view, true),
	})
}

// PaymentRetry emits the payment_retry event ahead of the backoff sleep.
func (b *Bus) PaymentRetry(tx *model.Transaction, nextDelay time.Duration) {
	view := tx.Snapshot()
	amount, _ := view.Amount.Float64()
	ctx := paymentContext(tx, view)
	ctx["next_delay_ms"] = nextDelay.Milliseconds()
	b.write(streamPaymentEvents, Entry{
		Level:         LevelWarn,
		EventType:     "payment_retry",
		TransactionID: strPtr(view.ID),
		Message:       fmt.Sprintf("payment retry attempt %d: %.2f", view.Attempts, amount),
		Context:       ctx,
	})
}

func (b *Bus) logRoutingDecision(view model.TransactionView, route model.Route) {
	decision := route.Decision
	b.write(streamRoutingDecisions, Entry{
		Level:         LevelInfo,
		EventType:     "routing_decision",
		TransactionID: strPtr(view.ID),
		Provider:      strPtr(decision.SelectedProvider),
		Message:       fmt.Sprintf("route selected: %s over %v", decision.SelectedProvider, decision.AlternativeProviders),
		Context: map[string]interface{}{
			"selected_provider":     decision.SelectedProvider,
			"alternative_providers": decision.AlternativeProviders,
			"decision_factors":      decision.DecisionFactors,
			"transaction_context": map[string]interface{}{
				"amount":   view.Amount,
				"currency": view.Currency,
			},
		},
		RoutingContext: map[string]interface{}{
			"strategy_used":    decision.StrategyUsed,
			"confidence_score": decision.ConfidenceScore,
		},
	})
}

func (b *Bus) logFailureAnalysis(view model.TransactionView, route model.Route) {
	reason := ""
	if route.Reason != nil {
		reason = *route.Reason
	}
	now := time.Now()
	b.write(streamFailureAnalysis, Entry{
		Level:         LevelError,
		EventType:     "payment_failure",
		TransactionID: strPtr(view.ID),
		Provider:      strPtr(route.Provider),
		Message:       fmt.Sprintf("payment failed: %s", reason),
		Context: map[string]interface{}{
			"error_code":      reason,
			"error_message":   reason,
			"attempt_history": view.RouteHistory,
			"time_of_day":     now.Hour(),
			"day_of_week":     int(now.Weekday()),
		},
		ErrorDetails: map[string]interface{}{
			"retry_eligible": route.RetryEligible,
		},
	})
}

// CircuitBreakerEvent emits a circuit_breaker_event entry on a state transition.
func (b *Bus) CircuitBreakerEvent(provider string, stateChange string, failureCount int, context map[string]interface{}) {
	b.write(streamCircuitBreakerEvent, Entry{
		Level:     LevelWarn,
		EventType: "circuit_breaker_event",
		Provider:  strPtr(provider),
		Message:   fmt.Sprintf("circuit breaker %s for %s", stateChange, provider),
		Context: map[string]interface{}{
			"state_change":  stateChange,
			"failure_count": failureCount,
			"provider_context": context,
		},
	})
}

// PerformanceMetrics emits a performance_metrics entry for provider.
func (b *Bus) PerformanceMetrics(provider string, health model.ProviderHealth) {
	b.write(streamPerformanceMetrics, Entry{
		Level:     LevelInfo,
		EventType: "performance_metrics",
		Provider:  strPtr(provider),
		Message:   fmt.Sprintf("performance metrics for %s", provider),
		Metrics: map[string]interface{}{
			"success_rate": health.SuccessRate,
			"avg_latency":  health.AvgLatencyMS,
		},
		PerformanceMetrics: map[string]interface{}{
			"success_rate":       health.SuccessRate,
			"avg_latency":        health.AvgLatencyMS,
			"network_breakdown":  health.SuccessRateByNetwork,
			"method_breakdown":   health.SuccessRateByMethod,
			"regional_breakdown": health.SuccessRateByRegion,
		},
	})
}

// SystemHealth emits the system_health entry, summarizing registry-wide state.
func (b *Bus) SystemHealth(context map[string]interface{}) {
	b.write(streamSystemHealth, Entry{
		Level:     LevelInfo,
		EventType: "system_health",
		Message:   "system health check",
		Context:   context,
	})
}
