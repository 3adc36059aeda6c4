// Package gateway implements the C7 facade: the single entry point the HTTP
// layer talks to. It owns the transaction map, the provider registry, the
// breakers, the router, and the orchestrator, and exposes the §4.7
// operations.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nimbus-gateway/orchestrator/internal/breaker"
	"github.com/nimbus-gateway/orchestrator/internal/config"
	"github.com/nimbus-gateway/orchestrator/internal/eventbus"
	"github.com/nimbus-gateway/orchestrator/internal/model"
	"github.com/nimbus-gateway/orchestrator/internal/orchestrator"
	"github.com/nimbus-gateway/orchestrator/internal/provider"
	"github.com/nimbus-gateway/orchestrator/internal/router"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Response is the §6 response envelope every operation returns.
type Response struct {
	Success     bool                   `json:"success"`
	Transaction *model.TransactionView `json:"transaction,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Request is the §6 process_payment request envelope.
type Request struct {
	Amount          decimal.Decimal
	Currency        model.Currency
	PreferredProvider string
	Customer        *model.CustomerInfo
	Instrument      *model.PaymentInstrument
	TransactionType model.TransactionType
	MerchantID      string
	OrderID         string
}

// Gateway is the C7 facade.
type Gateway struct {
	mu           sync.RWMutex
	transactions map[string]*model.Transaction

	providers map[string]provider.Provider
	breakers  *breaker.Registry
	router    *router.Router
	orch      *orchestrator.Orchestrator
	bus       *eventbus.Bus
	log       *zap.Logger
	cfg       config.Config
}

// New wires the facade's components together. providers keys its map by Name().
func New(providers map[string]provider.Provider, cfg config.Config, bus *eventbus.Bus, log *zap.Logger, strategy model.RoutingStrategy) *Gateway {
	ordered := make([]provider.Provider, 0, len(providers))
	for _, p := range providers {
		ordered = append(ordered, p)
	}

	breakers := breaker.NewRegistry(cfg)
	breakers.SetEventSink(bus)
	r := router.New(ordered, breakers, strategy)

	g := &Gateway{
		transactions: make(map[string]*model.Transaction),
		providers:    providers,
		breakers:     breakers,
		router:       r,
		bus:          bus,
		log:          log,
		cfg:          cfg,
	}
	g.orch = orchestrator.New(providers, breakers, r, bus, log, cfg)
	return g
}

// ProcessPayment implements process_payment.
func (g *Gateway) ProcessPayment(ctx context.Context, req Request) Response {
	if req.PreferredProvider != "" {
		if _, ok := g.providers[req.PreferredProvider]; !ok {
			return Response{Success: false, Error: (&model.InvalidProviderError{Provider: req.PreferredProvider}).Error()}
		}
	}

	txType := req.TransactionType
	if txType == "" {
		txType = model.TypePayment
	}

	tx := model.NewTransaction(uuid.New().String(), req.Amount, req.Currency, txType, req.Instrument, req.Customer, req.MerchantID, req.OrderID)
	if req.PreferredProvider != "" {
		tx.SetProvider(req.PreferredProvider)
	}

	g.mu.Lock()
	g.transactions[tx.ID] = tx
	g.mu.Unlock()

	if req.PreferredProvider != "" {
		g.runPreferred(ctx, tx, req.PreferredProvider)
	} else {
		g.orch.Run(ctx, tx)
	}

	view := tx.Snapshot()
	return newResponse(&view)
}

// runPreferred pins tx's first attempt to a caller-chosen provider, still
// through the breaker and retry machinery via the orchestrator's normal loop —
// achieved by excluding every other provider from the first selection. Later
// attempts are selected by the router as usual.
func (g *Gateway) runPreferred(ctx context.Context, tx *model.Transaction, preferred string) {
	exclude := make(map[string]bool, len(g.providers))
	for name := range g.providers {
		if name != preferred {
			exclude[name] = true
		}
	}
	g.bus.PaymentInitiated(tx)
	g.orch.RunExcluding(ctx, tx, exclude)
}

// GetTransactionStatus implements get_transaction_status.
func (g *Gateway) GetTransactionStatus(id string) (model.TransactionView, error) {
	g.mu.RLock()
	tx, ok := g.transactions[id]
	g.mu.RUnlock()
	if !ok {
		return model.TransactionView{}, &model.TransactionNotFoundError{TransactionID: id}
	}
	return tx.Snapshot(), nil
}

// RetryPayment implements retry_payment.
func (g *Gateway) RetryPayment(ctx context.Context, id string) Response {
	g.mu.RLock()
	tx, ok := g.transactions[id]
	g.mu.RUnlock()
	if !ok {
		return Response{Success: false, Error: (&model.TransactionNotFoundError{TransactionID: id}).Error()}
	}
	if tx.IsTerminalSuccess() {
		return Response{Success: false, Error: "already successful"}
	}

	g.orch.Retry(ctx, tx)

	view := tx.Snapshot()
	return newResponse(&view)
}

// newResponse builds the §6 response envelope from a post-run transaction
// snapshot. On final failure it fills Error with the literal message the
// user-visible failure contract requires, regardless of which terminal
// non-success status (failed, timeout) the loop ended on.
func newResponse(view *model.TransactionView) Response {
	if view.Status == model.StatusSuccess {
		return Response{Success: true, Transaction: view}
	}
	return Response{Success: false, Transaction: view, Error: "Payment failed after all retry attempts"}
}

// ProviderHealthReport is one provider's combined health + breaker view.
type ProviderHealthReport struct {
	Health  model.ProviderHealth `json:"health"`
	Breaker breaker.Stats        `json:"breaker"`
}

// GetProviderHealth implements get_provider_health.
func (g *Gateway) GetProviderHealth() map[string]ProviderHealthReport {
	out := make(map[string]ProviderHealthReport, len(g.providers))
	for name, p := range g.providers {
		out[name] = ProviderHealthReport{
			Health:  p.Health(),
			Breaker: g.breakers.Get(name).Stats(),
		}
	}
	return out
}

// GetMetrics implements get_metrics: a snapshot over every provider's health
// plus the breaker registry, the closest stand-in for the bus's accumulated
// metrics since streams are append-only JSONL rather than a queryable store.
func (g *Gateway) GetMetrics() map[string]interface{} {
	health := g.GetProviderHealth()
	g.mu.RLock()
	txCount := len(g.transactions)
	g.mu.RUnlock()
	return map[string]interface{}{
		"providers":          health,
		"transaction_count":  txCount,
		"routing_strategy":   g.router.Strategy(),
	}
}

// ConfigureProvider implements configure_provider.
func (g *Gateway) ConfigureProvider(name string, opts provider.ConfigureOptions) error {
	p, ok := g.providers[name]
	if !ok {
		return &model.InvalidProviderError{Provider: name}
	}
	p.Configure(opts)
	return nil
}

// SetRoutingStrategy implements set_routing_strategy.
func (g *Gateway) SetRoutingStrategy(strategy model.RoutingStrategy) {
	g.router.SetStrategy(strategy)
}

// SimulateScenario implements simulate_scenario's seven named scenarios.
func (g *Gateway) SimulateScenario(name string) error {
	ptr := func(f float64) *float64 { return &f }
	bptr := func(b bool) *bool { return &b }

	var err error
	switch name {
	case "stripe_maintenance":
		err = g.ConfigureProvider("stripe", provider.ConfigureOptions{Maintenance: bptr(true)})
	case "adyen_high_latency":
		err = g.ConfigureProvider("adyen", provider.ConfigureOptions{AvgLatencyMS: ptr(2000)})
	case "paypal_low_success":
		err = g.ConfigureProvider("paypal", provider.ConfigureOptions{SuccessRate: ptr(0.3)})
	case "razorpay_rate_limit":
		err = g.ConfigureProvider("razorpay", provider.ConfigureOptions{SuccessRate: ptr(0.3)})
	case "mass_failure":
		for name := range g.providers {
			if err = g.ConfigureProvider(name, provider.ConfigureOptions{SuccessRate: ptr(0.1)}); err != nil {
				break
			}
		}
	case "circuit_breaker_test":
		for name := range g.providers {
			g.breakers.ForceOpen(name)
		}
	case "reset_all":
		for name, p := range g.providers {
			if sim, ok := p.(interface{ ResetToBaseline() }); ok {
				sim.ResetToBaseline()
			}
			g.breakers.ForceClose(name)
		}
	default:
		return fmt.Errorf("Unknown scenario: %s", name)
	}

	if err != nil {
		return err
	}
	g.emitSystemHealth()
	return nil
}

// emitSystemHealth writes a system_health snapshot summarizing registry-wide
// state, following every administrative scenario that can change it.
func (g *Gateway) emitSystemHealth() {
	health := g.GetProviderHealth()

	totalSuccessRate := 0.0
	avgProcessingMS := 0.0
	openBreakers := 0
	for _, r := range health {
		totalSuccessRate += r.Health.SuccessRate
		avgProcessingMS += r.Health.AvgLatencyMS
		if r.Breaker.State == breaker.StateOpen {
			openBreakers++
		}
	}
	if len(health) > 0 {
		totalSuccessRate /= float64(len(health))
		avgProcessingMS /= float64(len(health))
	}

	g.bus.SystemHealth(map[string]interface{}{
		"total_success_rate":    totalSuccessRate,
		"avg_processing_time":   avgProcessingMS,
		"active_providers":      len(g.providers),
		"circuit_breakers_open": openBreakers,
	})
}
