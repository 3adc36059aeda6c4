// Package orchestrator implements the C5 retry/failover loop: the engine
// that calls the Router for a provider, invokes it through its breaker,
// records the attempt onto the transaction, and decides whether to retry.
package orchestrator

import (
	"context"
	"time"

	"github.com/nimbus-gateway/orchestrator/internal/breaker"
	"github.com/nimbus-gateway/orchestrator/internal/config"
	"github.com/nimbus-gateway/orchestrator/internal/model"
	"github.com/nimbus-gateway/orchestrator/internal/provider"
	"github.com/nimbus-gateway/orchestrator/internal/router"
	"go.uber.org/zap"
)

// EventSink receives the C6 event stream. The orchestrator never writes
// JSONL itself; it only reports what happened.
type EventSink interface {
	PaymentInitiated(tx *model.Transaction)
	PaymentSuccess(tx *model.Transaction, route model.Route)
	PaymentFailure(tx *model.Transaction, route model.Route)
	PaymentFinalFailure(tx *model.Transaction)
	PaymentRetry(tx *model.Transaction, nextDelay time.Duration)
	PerformanceMetrics(provider string, health model.ProviderHealth)
}

// Orchestrator runs the §4.5 retry loop over a provider registry.
type Orchestrator struct {
	providers map[string]provider.Provider
	breakers  *breaker.Registry
	router    *router.Router
	events    EventSink
	log       *zap.Logger
	cfg       config.Config
}

// New constructs an Orchestrator. providers must be keyed by Name().
func New(providers map[string]provider.Provider, breakers *breaker.Registry, r *router.Router, events EventSink, log *zap.Logger, cfg config.Config) *Orchestrator {
	return &Orchestrator{
		providers: providers,
		breakers:  breakers,
		router:    r,
		events:    events,
		log:       log,
		cfg:       cfg,
	}
}

// Run executes the §4.5 loop on tx from attempt 1 through success, a
// non-retryable failure, or max_attempts exhaustion.
func (o *Orchestrator) Run(ctx context.Context, tx *model.Transaction) {
	o.events.PaymentInitiated(tx)
	o.runFrom(ctx, tx, nil)
}

// RunExcluding behaves like Run but restricts the first provider selection to
// providers outside exclude, for callers (the facade's preferred-provider
// path) that already emitted payment_initiated themselves.
func (o *Orchestrator) RunExcluding(ctx context.Context, tx *model.Transaction, exclude map[string]bool) {
	o.runFrom(ctx, tx, exclude)
}

// Retry re-enters the loop on an existing non-success transaction per
// §4.5's retry_payment: status resets to retrying, a fresh provider is
// selected (not reusing the last one), and max_attempts applies fresh from
// the current attempt count of zero.
func (o *Orchestrator) Retry(ctx context.Context, tx *model.Transaction) {
	tx.SetStatus(model.StatusRetrying)
	exclude := map[string]bool{tx.Provider: true}
	o.runFrom(ctx, tx, exclude)
}

func (o *Orchestrator) runFrom(ctx context.Context, tx *model.Transaction, initialExclude map[string]bool) {
	// exclude accumulates the providers this call has already tried;
	// initialExclude restricts the first selection only.
	exclude := make(map[string]bool)

	// attempts counts this call's loop iterations against max_attempts only:
	// retry_payment applies the budget fresh on every call. It is never used
	// as Route.AttemptNumber, which must keep counting across every call a
	// transaction ever makes through the loop (see tx.NextAttemptNumber).
	attempts := 0
	for {
		attempts++

		selectExclude := exclude
		if attempts == 1 && initialExclude != nil {
			selectExclude = initialExclude
		}
		name, decision := o.router.Select(tx, "", selectExclude)
		if name == "" {
			tx.SetStatus(model.StatusFailed)
			o.events.PaymentFinalFailure(tx)
			return
		}
		tx.SetProvider(name)

		start := time.Now()
		p := o.providers[name]
		br := o.breakers.Get(name)

		var result model.ProviderResult
		var provErr *model.ProviderError
		var circuitOpen bool

		callErr := br.Call(name, func() error {
			var pe *model.ProviderError
			result, pe = p.Process(ctx, tx)
			if pe != nil {
				provErr = pe
				return pe
			}
			return nil
		})

		elapsed := time.Since(start)

		if callErr != nil {
			if _, ok := callErr.(*model.CircuitOpenError); ok {
				circuitOpen = true
			}
		}

		o.events.PerformanceMetrics(name, p.Health())

		if provErr == nil && !circuitOpen {
			route := successRoute(name, tx.NextAttemptNumber(), result, elapsed, decision)
			tx.AppendRoute(route)
			tx.MergeMetadata(map[string]interface{}{
				"processing_fee":          result.ProcessingFee,
				"provider_transaction_id": result.ProviderTransactionID,
			})
			tx.SetStatus(model.StatusSuccess)
			o.events.PaymentSuccess(tx, route)
			o.log.Info("payment_success",
				zap.String("transaction_id", tx.ID),
				zap.String("provider", name),
				zap.Int("attempts", attempts),
			)
			return
		}

		kind, reason := failureKind(provErr, circuitOpen)
		route := failureRoute(name, tx.NextAttemptNumber(), elapsed, decision, reason, isRetryable(kind, circuitOpen, o.cfg))
		tx.AppendRoute(route)
		o.events.PaymentFailure(tx, route)
		o.log.Warn("payment_attempt_failed",
			zap.String("transaction_id", tx.ID),
			zap.String("provider", name),
			zap.Int("attempts", attempts),
			zap.String("reason", reason),
		)

		if attempts >= o.cfg.MaxAttempts {
			tx.SetStatus(model.StatusFailed)
			o.events.PaymentFinalFailure(tx)
			return
		}
		if !route.RetryEligible {
			tx.SetStatus(model.StatusFailed)
			o.events.PaymentFinalFailure(tx)
			return
		}

		exclude[name] = true
		tx.SetStatus(model.StatusRetrying)

		delay := backoffDelay(o.cfg, attempts)
		o.events.PaymentRetry(tx, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			tx.SetStatus(model.StatusTimeout)
			o.events.PaymentFinalFailure(tx)
			return
		}
	}
}

func successRoute(name string, attempt int, result model.ProviderResult, elapsed time.Duration, decision model.RoutingDecision) model.Route {
	respCode := result.ProviderResponseCode
	netCode := result.NetworkResponseCode
	return model.Route{
		Provider:             name,
		AttemptNumber:        attempt,
		Status:               model.RouteSuccess,
		Timestamp:            time.Now(),
		ProcessingTime:       &elapsed,
		ProviderResponseCode: &respCode,
		NetworkResponseCode:  &netCode,
		RetryEligible:        false,
		Decision:             decision,
	}
}

func failureRoute(name string, attempt int, elapsed time.Duration, decision model.RoutingDecision, reason string, retryEligible bool) model.Route {
	r := reason
	return model.Route{
		Provider:       name,
		AttemptNumber:  attempt,
		Status:         model.RouteFailed,
		Timestamp:      time.Now(),
		Reason:         &r,
		ProcessingTime: &elapsed,
		RetryEligible:  retryEligible,
		Decision:       decision,
	}
}

func failureKind(provErr *model.ProviderError, circuitOpen bool) (model.ErrorKind, string) {
	if circuitOpen {
		return "", "circuit_open"
	}
	return provErr.Kind, string(provErr.Kind)
}

// isRetryable implements §4.5: an ErrorKind is retryable iff it's in the
// retry allowlist, or the failure was a CircuitOpen signal.
func isRetryable(kind model.ErrorKind, circuitOpen bool, cfg config.Config) bool {
	if circuitOpen {
		return true
	}
	return model.IsRetryableByDefault(kind)
}

func backoffDelay(cfg config.Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * pow(cfg.BackoffMultiplier, attempt-1)
	d := time.Duration(delay)
	if d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
