// Package provider implements the C1 provider abstraction: capability
// matching, the per-provider health tracker (C3), and the deterministic
// simulated-acquirer contract described in §4.1.
package provider

import (
	"context"

	"github.com/nimbus-gateway/orchestrator/internal/model"
)

// Provider is the contract every upstream acquirer (real or simulated) exposes.
type Provider interface {
	// Name returns the provider's unique registry key.
	Name() string
	// Capabilities returns the provider's static, immutable capability declaration.
	Capabilities() model.ProviderCapability
	// CanProcess reports whether tx satisfies every capability constraint.
	CanProcess(tx *model.Transaction) bool
	// Process attempts to authorize tx, returning a result or a typed ProviderError.
	Process(ctx context.Context, tx *model.Transaction) (model.ProviderResult, *model.ProviderError)
	// Health returns the provider's current computed health view.
	Health() model.ProviderHealth
	// Configure applies administrative overrides (scenario injection, tests).
	Configure(opts ConfigureOptions)
	// SpecificErrors returns the ErrorKinds this provider is prone to before
	// contextual augmentation (§4.1.2).
	SpecificErrors() []model.ErrorKind
	// NetworkPreferenceScore returns this provider's affinity for network, in [0,1].
	NetworkPreferenceScore(network model.CardNetwork) float64
}

// ConfigureOptions carries the administrative knobs §4.7's configure_provider
// and simulate_scenario operations can toggle on a provider.
type ConfigureOptions struct {
	SuccessRate *float64
	Maintenance *bool
	AvgLatencyMS *float64
}

// CanProcess implements the §4.1 eligibility conjunction against a provider's
// declared capability, shared by every Provider implementation.
func CanProcess(cap model.ProviderCapability, tx *model.Transaction) bool {
	if !cap.SupportedCurrencies[tx.Currency] {
		return false
	}
	if tx.Amount.LessThan(cap.MinAmount) || tx.Amount.GreaterThan(cap.MaxAmount) {
		return false
	}
	if tx.Instrument != nil {
		if !cap.SupportedMethods[tx.Instrument.Method] {
			return false
		}
		if tx.Instrument.Method == model.MethodCard && tx.Instrument.Network != nil {
			if !cap.SupportedNetworks[*tx.Instrument.Network] {
				return false
			}
		}
	}
	if tx.Customer != nil && tx.Customer.Region != nil {
		if !cap.SupportedRegions[*tx.Customer.Region] {
			return false
		}
	}
	return true
}
