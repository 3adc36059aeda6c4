// Package router implements the C4 component: picks the provider for one
// attempt and records why, across the five closed RoutingStrategy variants.
package router

import (
	"sort"
	"sync"
	"time"

	"github.com/nimbus-gateway/orchestrator/internal/breaker"
	"github.com/nimbus-gateway/orchestrator/internal/model"
	"github.com/nimbus-gateway/orchestrator/internal/provider"
	"github.com/samber/lo"
)

func nowStamp() time.Time { return time.Now() }

// failoverPreferenceOrder is the §4.4 static preference order for the
// failover strategy.
var failoverPreferenceOrder = []string{"stripe", "adyen", "paypal", "razorpay"}

// Router selects a provider for a transaction and explains the choice.
type Router struct {
	providers []provider.Provider
	breakers  *breaker.Registry

	mu       sync.Mutex
	cursor   int
	strategy model.RoutingStrategy
}

// New constructs a Router over providers (registry order matters for the
// round-robin cursor and the fallback-of-last-resort rule) using breakers for
// circuit state.
func New(providers []provider.Provider, breakers *breaker.Registry, defaultStrategy model.RoutingStrategy) *Router {
	return &Router{
		providers: providers,
		breakers:  breakers,
		strategy:  defaultStrategy,
	}
}

// SetStrategy changes the strategy used when Select is called without an override.
func (r *Router) SetStrategy(s model.RoutingStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategy = s
}

// Strategy returns the router's current default strategy.
func (r *Router) Strategy() model.RoutingStrategy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.strategy
}

// candidate bundles a provider with the health/breaker facts the scoring
// functions need, computed once per Select call.
type candidate struct {
	p         provider.Provider
	name      string
	health    model.ProviderHealth
	breakerSt breaker.State
}

// Select runs strategy (or the router's default, when strategy is "") against
// tx, excluding any provider name present in exclude.
func (r *Router) Select(tx *model.Transaction, strategy model.RoutingStrategy, exclude map[string]bool) (string, model.RoutingDecision) {
	r.mu.Lock()
	if strategy == "" {
		strategy = r.strategy
	}
	r.mu.Unlock()

	excludedNames, eligible := r.eligible(tx, exclude)

	switch strategy {
	case model.StrategyRoundRobin:
		return r.selectRoundRobin(eligible, excludedNames, exclude, strategy)
	case model.StrategyFailover:
		return r.selectFailover(eligible, excludedNames, exclude, strategy)
	case model.StrategyCardNetworkOptimized:
		return r.selectCardNetworkOptimized(tx, eligible, excludedNames, exclude, strategy)
	case model.StrategyCostOptimized:
		return r.selectCostOptimized(tx, eligible, excludedNames, exclude, strategy)
	default:
		return r.selectHealthBased(eligible, excludedNames, exclude, strategy)
	}
}

// eligible partitions providers into (excluded-with-reason, eligible
// candidates), per §4.4's can_process ∧ breaker≠OPEN filter. health_based,
// card_network_optimized and failover also require is_healthy; round_robin/
// cost_optimized only require can_process and breaker≠OPEN.
func (r *Router) eligible(tx *model.Transaction, exclude map[string]bool) (map[string]string, []candidate) {
	excludedReasons := make(map[string]string)
	out := make([]candidate, 0, len(r.providers))

	for _, p := range r.providers {
		name := p.Name()
		if exclude[name] {
			excludedReasons[name] = "excluded_by_caller"
			continue
		}
		br := r.breakers.Get(name)
		if br.IsOpen() {
			excludedReasons[name] = "circuit_open"
			continue
		}
		if !p.CanProcess(tx) {
			excludedReasons[name] = "capability_mismatch"
			continue
		}
		out = append(out, candidate{p: p, name: name, health: p.Health(), breakerSt: br.State()})
	}
	return excludedReasons, out
}

func alternativesOf(cands []candidate, chosen string) []string {
	alts := lo.FilterMap(cands, func(c candidate, _ int) (string, bool) {
		return c.name, c.name != chosen
	})
	sort.Strings(alts)
	return alts
}

func decisionFactors(cands []candidate, extra map[string]interface{}) map[string]interface{} {
	health := make(map[string]float64, len(cands))
	breakers := make(map[string]string, len(cands))
	for _, c := range cands {
		health[c.name] = c.health.SuccessRate
		breakers[c.name] = string(c.breakerSt)
	}
	factors := map[string]interface{}{
		"provider_health":        health,
		"circuit_breaker_state": breakers,
	}
	for k, v := range extra {
		factors[k] = v
	}
	return factors
}

func (r *Router) selectHealthBased(cands []candidate, excluded map[string]string, exclude map[string]bool, strategy model.RoutingStrategy) (string, model.RoutingDecision) {
	healthy := lo.Filter(cands, func(c candidate, _ int) bool { return c.health.IsHealthy })
	if len(healthy) == 0 {
		return r.fallback(cands, excluded, exclude, strategy, "no_healthy_provider")
	}

	scored := scoreAndPick(healthy, func(c candidate) float64 {
		latency := c.health.AvgLatencyMS
		if latency < 1 {
			latency = 1
		}
		return c.health.SuccessRate * 1000 / latency
	})

	maxScore := scored[0].score
	decision := model.RoutingDecision{
		SelectedProvider:     scored[0].c.name,
		StrategyUsed:         strategy,
		DecisionFactors:      decisionFactors(cands, map[string]interface{}{"eligibility_filtered_out": excluded}),
		AlternativeProviders: alternativesOf(healthy, scored[0].c.name),
		ConfidenceScore:      normalizeScore(maxScore),
		Timestamp:            nowStamp(),
	}
	return scored[0].c.name, decision
}

func (r *Router) selectRoundRobin(cands []candidate, excluded map[string]string, exclude map[string]bool, strategy model.RoutingStrategy) (string, model.RoutingDecision) {
	if len(cands) == 0 {
		return r.fallback(cands, excluded, exclude, strategy, "no_eligible_provider")
	}

	r.mu.Lock()
	r.cursor = (r.cursor + 1) % len(r.providers)
	start := r.cursor
	r.mu.Unlock()

	byName := make(map[string]candidate, len(cands))
	for _, c := range cands {
		byName[c.name] = c
	}

	var picked candidate
	for i := 0; i < len(r.providers); i++ {
		idx := (start + i) % len(r.providers)
		name := r.providers[idx].Name()
		if c, ok := byName[name]; ok {
			picked = c
			break
		}
	}
	if picked.p == nil {
		return r.fallback(cands, excluded, exclude, strategy, "no_eligible_provider")
	}

	decision := model.RoutingDecision{
		SelectedProvider:     picked.name,
		StrategyUsed:         strategy,
		DecisionFactors:      decisionFactors(cands, map[string]interface{}{"eligibility_filtered_out": excluded}),
		AlternativeProviders: alternativesOf(cands, picked.name),
		ConfidenceScore:      0.5,
		Timestamp:            nowStamp(),
	}
	return picked.name, decision
}

func (r *Router) selectFailover(cands []candidate, excluded map[string]string, exclude map[string]bool, strategy model.RoutingStrategy) (string, model.RoutingDecision) {
	byName := make(map[string]candidate, len(cands))
	for _, c := range cands {
		byName[c.name] = c
	}

	for pos, name := range failoverPreferenceOrder {
		c, ok := byName[name]
		if !ok || !c.health.IsHealthy {
			continue
		}
		decision := model.RoutingDecision{
			SelectedProvider: name,
			StrategyUsed:     strategy,
			DecisionFactors: decisionFactors(cands, map[string]interface{}{
				"eligibility_filtered_out": excluded,
				"preference_position":      pos,
			}),
			AlternativeProviders: alternativesOf(cands, name),
			ConfidenceScore:      1 - float64(pos)/float64(len(failoverPreferenceOrder)),
			Timestamp:            nowStamp(),
		}
		return name, decision
	}
	return r.fallback(cands, excluded, exclude, strategy, "no_eligible_provider_in_preference_order")
}

func (r *Router) selectCardNetworkOptimized(tx *model.Transaction, cands []candidate, excluded map[string]string, exclude map[string]bool, strategy model.RoutingStrategy) (string, model.RoutingDecision) {
	if tx.Instrument == nil || tx.Instrument.Network == nil {
		return r.selectHealthBased(cands, excluded, exclude, strategy)
	}
	network := *tx.Instrument.Network

	healthy := lo.Filter(cands, func(c candidate, _ int) bool { return c.health.IsHealthy })
	if len(healthy) == 0 {
		return r.fallback(cands, excluded, exclude, strategy, "no_healthy_provider")
	}

	scored := scoreAndPick(healthy, func(c candidate) float64 {
		return c.health.SuccessRate * c.p.NetworkPreferenceScore(network)
	})

	preferenceByName := make(map[string]float64, len(cands))
	for _, c := range cands {
		preferenceByName[c.name] = c.p.NetworkPreferenceScore(network)
	}

	decision := model.RoutingDecision{
		SelectedProvider: scored[0].c.name,
		StrategyUsed:     strategy,
		DecisionFactors: decisionFactors(cands, map[string]interface{}{
			"eligibility_filtered_out": excluded,
			"network_preference":      preferenceByName,
		}),
		AlternativeProviders: alternativesOf(healthy, scored[0].c.name),
		ConfidenceScore:      normalizeScore(scored[0].score),
		Timestamp:            nowStamp(),
	}
	return scored[0].c.name, decision
}

func (r *Router) selectCostOptimized(tx *model.Transaction, cands []candidate, excluded map[string]string, exclude map[string]bool, strategy model.RoutingStrategy) (string, model.RoutingDecision) {
	if len(cands) == 0 {
		return r.fallback(cands, excluded, exclude, strategy, "no_eligible_provider")
	}

	type priced struct {
		c   candidate
		fee float64
	}
	prices := lo.Map(cands, func(c candidate, _ int) priced {
		amount, _ := tx.Amount.Float64()
		feePercent, _ := c.p.Capabilities().ProcessingFeePercent.Float64()
		return priced{c: c, fee: amount * feePercent / 100}
	})
	sort.Slice(prices, func(i, j int) bool {
		if prices[i].fee != prices[j].fee {
			return prices[i].fee < prices[j].fee
		}
		return prices[i].c.name < prices[j].c.name
	})

	maxFee := prices[0].fee
	costByName := make(map[string]float64, len(prices))
	for _, p := range prices {
		costByName[p.c.name] = p.fee
		if p.fee > maxFee {
			maxFee = p.fee
		}
	}

	chosen := prices[0]
	confidence := 1.0
	if maxFee > 0 {
		confidence = 1 - chosen.fee/maxFee
	}

	decision := model.RoutingDecision{
		SelectedProvider: chosen.c.name,
		StrategyUsed:     strategy,
		DecisionFactors: decisionFactors(cands, map[string]interface{}{
			"eligibility_filtered_out": excluded,
			"estimated_cost":           costByName,
		}),
		AlternativeProviders: alternativesOf(cands, chosen.c.name),
		ConfidenceScore:      confidence,
		Timestamp:            nowStamp(),
	}
	return chosen.c.name, decision
}

// fallback implements §4.4's mandatory fallback: lowest breaker failure_count
// among the candidates passed in (providers that can_process, whose breaker is
// not OPEN and that the caller has not excluded). When that list is empty it
// returns the first provider in registry order that the caller (not
// eligibility filtering) hasn't excluded, without checking can_process or
// breaker state for it — so a provider just
// attempted and marked excluded by the orchestrator is never handed straight
// back out, even when every provider is currently ineligible. Only when the
// caller itself has excluded every provider do we fall back to providers[0].
func (r *Router) fallback(cands []candidate, excluded map[string]string, exclude map[string]bool, strategy model.RoutingStrategy, reason string) (string, model.RoutingDecision) {
	factors := map[string]interface{}{
		"eligibility_filtered_out": excluded,
		"fallback":                 true,
		"fallback_reason":          reason,
	}

	if len(cands) > 0 {
		sort.Slice(cands, func(i, j int) bool {
			fi := r.breakers.Get(cands[i].name).Stats().FailureCount
			fj := r.breakers.Get(cands[j].name).Stats().FailureCount
			if fi != fj {
				return fi < fj
			}
			return cands[i].name < cands[j].name
		})
		chosen := cands[0].name
		return chosen, model.RoutingDecision{
			SelectedProvider:     chosen,
			StrategyUsed:         strategy,
			DecisionFactors:      factors,
			AlternativeProviders: alternativesOf(cands, chosen),
			ConfidenceScore:      0,
			Timestamp:            nowStamp(),
		}
	}

	if len(r.providers) == 0 {
		return "", model.RoutingDecision{
			StrategyUsed:    strategy,
			DecisionFactors: factors,
			Timestamp:       nowStamp(),
		}
	}

	for _, p := range r.providers {
		if !exclude[p.Name()] {
			chosen := p.Name()
			return chosen, model.RoutingDecision{
				SelectedProvider: chosen,
				StrategyUsed:     strategy,
				DecisionFactors:  factors,
				Timestamp:        nowStamp(),
			}
		}
	}

	chosen := r.providers[0].Name()
	return chosen, model.RoutingDecision{
		SelectedProvider: chosen,
		StrategyUsed:     strategy,
		DecisionFactors:  factors,
		Timestamp:        nowStamp(),
	}
}

type scored struct {
	c     candidate
	score float64
}

// scoreAndPick scores every candidate, sorts descending by score with a
// lexicographic provider-name tie-break (§4.4), and returns the sorted slice.
func scoreAndPick(cands []candidate, score func(candidate) float64) []scored {
	out := make([]scored, len(cands))
	for i, c := range cands {
		out[i] = scored{c: c, score: score(c)}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].c.name < out[j].c.name
	})
	return out
}

func normalizeScore(score float64) float64 {
	if score <= 0 {
		return 0
	}
	n := score / 1000
	if n > 1 {
		return 1
	}
	return n
}
