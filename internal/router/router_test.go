package router

import (
	"context"
	"testing"

	"github.com/nimbus-gateway/orchestrator/internal/breaker"
	"github.com/nimbus-gateway/orchestrator/internal/config"
	"github.com/nimbus-gateway/orchestrator/internal/model"
	"github.com/nimbus-gateway/orchestrator/internal/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal provider.Provider test double with fixed health
// and network-preference scores, independent of the simulated contract.
type fakeProvider struct {
	name        string
	cap         model.ProviderCapability
	health      model.ProviderHealth
	netPref     map[model.CardNetwork]float64
	feePercent  decimal.Decimal
}

func (f *fakeProvider) Name() string                        { return f.name }
func (f *fakeProvider) Capabilities() model.ProviderCapability { return f.cap }
func (f *fakeProvider) CanProcess(tx *model.Transaction) bool { return provider.CanProcess(f.cap, tx) }
func (f *fakeProvider) Process(ctx context.Context, tx *model.Transaction) (model.ProviderResult, *model.ProviderError) {
	return model.ProviderResult{}, nil
}
func (f *fakeProvider) Health() model.ProviderHealth           { return f.health }
func (f *fakeProvider) Configure(opts provider.ConfigureOptions) {}
func (f *fakeProvider) SpecificErrors() []model.ErrorKind      { return nil }
func (f *fakeProvider) NetworkPreferenceScore(n model.CardNetwork) float64 { return f.netPref[n] }

func fullCapability() model.ProviderCapability {
	return model.ProviderCapability{
		SupportedNetworks:   map[model.CardNetwork]bool{model.NetworkVisa: true, model.NetworkMastercard: true},
		SupportedMethods:    map[model.PaymentMethod]bool{model.MethodCard: true},
		SupportedCurrencies: map[model.Currency]bool{model.USD: true},
		SupportedRegions:    map[model.Region]bool{model.RegionNorthAmerica: true},
		MinAmount:           decimal.NewFromInt(1),
		MaxAmount:           decimal.NewFromInt(100000),
	}
}

func testTx(amount string) *model.Transaction {
	network := model.NetworkVisa
	return model.NewTransaction("tx_1", decimal.RequireFromString(amount), model.USD, model.TypePayment,
		&model.PaymentInstrument{Method: model.MethodCard, Network: &network}, nil, "m1", "o1")
}

func TestRouter_HealthBasedPicksHighestScore(t *testing.T) {
	strong := &fakeProvider{name: "stripe", cap: fullCapability(), health: model.ProviderHealth{IsHealthy: true, SuccessRate: 0.95, AvgLatencyMS: 100}}
	weak := &fakeProvider{name: "adyen", cap: fullCapability(), health: model.ProviderHealth{IsHealthy: true, SuccessRate: 0.5, AvgLatencyMS: 500}}

	br := breaker.NewRegistry(config.DefaultConfig())
	r := New([]provider.Provider{strong, weak}, br, model.StrategyHealthBased)

	name, decision := r.Select(testTx("100"), "", nil)
	assert.Equal(t, "stripe", name)
	assert.Equal(t, model.StrategyHealthBased, decision.StrategyUsed)
	assert.Contains(t, decision.AlternativeProviders, "adyen")
}

func TestRouter_FailoverUsesStaticPreferenceOrder(t *testing.T) {
	adyen := &fakeProvider{name: "adyen", cap: fullCapability(), health: model.ProviderHealth{IsHealthy: true, SuccessRate: 0.9}}
	stripe := &fakeProvider{name: "stripe", cap: fullCapability(), health: model.ProviderHealth{IsHealthy: true, SuccessRate: 0.1}}

	br := breaker.NewRegistry(config.DefaultConfig())
	r := New([]provider.Provider{adyen, stripe}, br, model.StrategyFailover)

	name, _ := r.Select(testTx("100"), model.StrategyFailover, nil)
	assert.Equal(t, "stripe", name)
}

func TestRouter_FailoverSkipsOpenBreaker(t *testing.T) {
	stripe := &fakeProvider{name: "stripe", cap: fullCapability(), health: model.ProviderHealth{IsHealthy: true, SuccessRate: 0.9}}
	adyen := &fakeProvider{name: "adyen", cap: fullCapability(), health: model.ProviderHealth{IsHealthy: true, SuccessRate: 0.9}}

	br := breaker.NewRegistry(config.DefaultConfig())
	br.Get("stripe").ForceOpen()
	r := New([]provider.Provider{stripe, adyen}, br, model.StrategyFailover)

	name, decision := r.Select(testTx("100"), model.StrategyFailover, nil)
	assert.Equal(t, "adyen", name)
	assert.NotContains(t, decision.AlternativeProviders, "stripe")
}

func TestRouter_CostOptimizedPicksCheapest(t *testing.T) {
	cheap := &fakeProvider{name: "razorpay", cap: withFee(fullCapability(), "2.0"), health: model.ProviderHealth{IsHealthy: true, SuccessRate: 0.9}}
	expensive := &fakeProvider{name: "paypal", cap: withFee(fullCapability(), "3.5"), health: model.ProviderHealth{IsHealthy: true, SuccessRate: 0.9}}

	br := breaker.NewRegistry(config.DefaultConfig())
	r := New([]provider.Provider{expensive, cheap}, br, model.StrategyCostOptimized)

	name, decision := r.Select(testTx("100"), model.StrategyCostOptimized, nil)
	assert.Equal(t, "razorpay", name)
	costs, ok := decision.DecisionFactors["estimated_cost"].(map[string]float64)
	require.True(t, ok)
	assert.Less(t, costs["razorpay"], costs["paypal"])
}

func TestRouter_RoundRobinAdvancesCursor(t *testing.T) {
	a := &fakeProvider{name: "a", cap: fullCapability(), health: model.ProviderHealth{IsHealthy: true}}
	b := &fakeProvider{name: "b", cap: fullCapability(), health: model.ProviderHealth{IsHealthy: true}}

	br := breaker.NewRegistry(config.DefaultConfig())
	r := New([]provider.Provider{a, b}, br, model.StrategyRoundRobin)

	first, _ := r.Select(testTx("100"), model.StrategyRoundRobin, nil)
	second, _ := r.Select(testTx("100"), model.StrategyRoundRobin, nil)
	assert.NotEqual(t, first, second)
}

func TestRouter_CardNetworkOptimizedDegradesWithoutNetwork(t *testing.T) {
	strong := &fakeProvider{name: "stripe", cap: fullCapability(), health: model.ProviderHealth{IsHealthy: true, SuccessRate: 0.95, AvgLatencyMS: 100}}
	br := breaker.NewRegistry(config.DefaultConfig())
	r := New([]provider.Provider{strong}, br, model.StrategyCardNetworkOptimized)

	tx := model.NewTransaction("tx_2", decimal.NewFromInt(100), model.USD, model.TypePayment,
		&model.PaymentInstrument{Method: model.MethodDigitalWallet}, nil, "m1", "o1")

	name, decision := r.Select(tx, model.StrategyCardNetworkOptimized, nil)
	assert.Equal(t, "stripe", name)
	assert.Equal(t, model.StrategyCardNetworkOptimized, decision.StrategyUsed)
}

func TestRouter_FallbackWhenNoEligibleProvider(t *testing.T) {
	narrow := &fakeProvider{name: "stripe", cap: model.ProviderCapability{
		SupportedNetworks:   map[model.CardNetwork]bool{},
		SupportedMethods:    map[model.PaymentMethod]bool{},
		SupportedCurrencies: map[model.Currency]bool{},
		SupportedRegions:    map[model.Region]bool{},
		MinAmount:           decimal.NewFromInt(1),
		MaxAmount:           decimal.NewFromInt(10),
	}, health: model.ProviderHealth{}}

	br := breaker.NewRegistry(config.DefaultConfig())
	r := New([]provider.Provider{narrow}, br, model.StrategyHealthBased)

	name, decision := r.Select(testTx("100"), "", nil)
	assert.Equal(t, "stripe", name)
	assert.Equal(t, true, decision.DecisionFactors["fallback"])
}

func withFee(cap model.ProviderCapability, pct string) model.ProviderCapability {
	cap.ProcessingFeePercent = decimal.RequireFromString(pct)
	return cap
}
