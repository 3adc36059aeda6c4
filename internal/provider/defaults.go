package provider

import (
	"time"

	"github.com/nimbus-gateway/orchestrator/internal/model"
	"github.com/shopspring/decimal"
)

func networks(ns ...model.CardNetwork) map[model.CardNetwork]bool {
	out := make(map[model.CardNetwork]bool, len(ns))
	for _, n := range ns {
		out[n] = true
	}
	return out
}

func methods(ms ...model.PaymentMethod) map[model.PaymentMethod]bool {
	out := make(map[model.PaymentMethod]bool, len(ms))
	for _, m := range ms {
		out[m] = true
	}
	return out
}

func currencies(cs ...model.Currency) map[model.Currency]bool {
	out := make(map[model.Currency]bool, len(cs))
	for _, c := range cs {
		out[c] = true
	}
	return out
}

func regions(rs ...model.Region) map[model.Region]bool {
	out := make(map[model.Region]bool, len(rs))
	for _, r := range rs {
		out[r] = true
	}
	return out
}

// NewStripe creates the global general-purpose provider: broad network
// acceptance, strong on the big four card networks, weaker on APAC schemes.
func NewStripe() *SimulatedProvider {
	return NewSimulated(SimulatedConfig{
		Name: "stripe",
		Capability: model.ProviderCapability{
			SupportedNetworks:   networks(model.NetworkVisa, model.NetworkMastercard, model.NetworkAmex, model.NetworkDiscover, model.NetworkJCB, model.NetworkDiners, model.NetworkUnionPay),
			SupportedMethods:    methods(model.MethodCard, model.MethodDigitalWallet, model.MethodBankTransfer),
			SupportedCurrencies: currencies(model.USD, model.EUR, model.GBP, model.SGD, model.MYR, model.THB, model.IDR, model.VND, model.PHP),
			SupportedRegions:    regions(model.RegionNorthAmerica, model.RegionEurope, model.RegionAsiaPacific, model.RegionSoutheastAsia, model.RegionLatinAmerica),
			MinAmount:           decimal.NewFromInt(1),
			MaxAmount:           decimal.NewFromInt(999999),
			ProcessingFeePercent: decimal.NewFromFloat(2.9),
		},
		BaseSuccessRate: 0.92,
		BaseLatencyMS:   120,
		NetworkPreference: NetworkPreference{
			model.NetworkVisa:       1.0,
			model.NetworkMastercard: 1.0,
			model.NetworkAmex:       0.9,
			model.NetworkDiscover:   0.85,
			model.NetworkJCB:        0.6,
			model.NetworkDiners:     0.6,
			model.NetworkUnionPay:   0.5,
		},
		SpecificErrorKinds: []model.ErrorKind{model.ErrCardDeclined, model.ErrIssuerUnavailable, model.ErrNetworkTimeout},
		RateLimitThreshold: 100,
		RateLimitWindow:    60 * time.Second,
	})
}

// NewAdyen creates the enterprise EU-based provider with broad network
// acceptance including BNPL, strongest on European-heavy geographies.
func NewAdyen() *SimulatedProvider {
	return NewSimulated(SimulatedConfig{
		Name: "adyen",
		Capability: model.ProviderCapability{
			SupportedNetworks:   networks(model.NetworkVisa, model.NetworkMastercard, model.NetworkAmex, model.NetworkDiscover, model.NetworkJCB, model.NetworkDiners, model.NetworkUnionPay),
			SupportedMethods:    methods(model.MethodCard, model.MethodDigitalWallet, model.MethodBankTransfer, model.MethodBNPL),
			SupportedCurrencies: currencies(model.USD, model.EUR, model.GBP, model.SGD, model.MYR, model.THB),
			SupportedRegions:    regions(model.RegionEurope, model.RegionNorthAmerica, model.RegionAsiaPacific, model.RegionMiddleEast),
			MinAmount:           decimal.NewFromInt(1),
			MaxAmount:           decimal.NewFromInt(500000),
			ProcessingFeePercent: decimal.NewFromFloat(2.5),
		},
		BaseSuccessRate: 0.90,
		BaseLatencyMS:   150,
		NetworkPreference: NetworkPreference{
			model.NetworkVisa:       0.95,
			model.NetworkMastercard: 0.95,
			model.NetworkAmex:       0.8,
			model.NetworkDiscover:   0.7,
			model.NetworkJCB:        0.8,
			model.NetworkDiners:     0.7,
			model.NetworkUnionPay:   0.75,
		},
		SpecificErrorKinds: []model.ErrorKind{model.ErrCardDeclined, model.ErrAccountRestricted, model.ErrIssuerUnavailable},
		RateLimitThreshold: 100,
		RateLimitWindow:    60 * time.Second,
	})
}

// NewPayPal creates the wallet-first consumer provider: digital-wallet
// primary, moderate card support, weak on APAC card networks.
func NewPayPal() *SimulatedProvider {
	return NewSimulated(SimulatedConfig{
		Name: "paypal",
		Capability: model.ProviderCapability{
			SupportedNetworks:   networks(model.NetworkVisa, model.NetworkMastercard, model.NetworkAmex, model.NetworkDiscover, model.NetworkJCB, model.NetworkDiners, model.NetworkUnionPay),
			SupportedMethods:    methods(model.MethodDigitalWallet, model.MethodCard),
			SupportedCurrencies: currencies(model.USD, model.EUR, model.GBP),
			SupportedRegions:    regions(model.RegionNorthAmerica, model.RegionEurope, model.RegionLatinAmerica),
			MinAmount:           decimal.NewFromInt(1),
			MaxAmount:           decimal.NewFromInt(10000),
			ProcessingFeePercent: decimal.NewFromFloat(3.49),
		},
		BaseSuccessRate: 0.88,
		BaseLatencyMS:   200,
		NetworkPreference: NetworkPreference{
			model.NetworkVisa:       0.9,
			model.NetworkMastercard: 0.9,
			model.NetworkAmex:       0.85,
			model.NetworkDiscover:   0.6,
			model.NetworkJCB:        0.4,
			model.NetworkDiners:     0.4,
			model.NetworkUnionPay:   0.3,
		},
		SpecificErrorKinds: []model.ErrorKind{model.ErrCardDeclined, model.ErrConnectionRefused},
		RateLimitThreshold: 100,
		RateLimitWindow:    60 * time.Second,
	})
}

// NewRazorpay creates the APAC/India specialist provider: strongest on
// JCB/UnionPay and southeast-asian currencies, weak on Amex.
func NewRazorpay() *SimulatedProvider {
	return NewSimulated(SimulatedConfig{
		Name: "razorpay",
		Capability: model.ProviderCapability{
			SupportedNetworks:   networks(model.NetworkVisa, model.NetworkMastercard, model.NetworkAmex, model.NetworkDiscover, model.NetworkJCB, model.NetworkDiners, model.NetworkUnionPay),
			SupportedMethods:    methods(model.MethodCard, model.MethodDigitalWallet, model.MethodBankTransfer, model.MethodBNPL, model.MethodCrypto),
			SupportedCurrencies: currencies(model.SGD, model.MYR, model.THB, model.IDR, model.VND, model.PHP, model.USD),
			SupportedRegions:    regions(model.RegionAsiaPacific, model.RegionSoutheastAsia),
			MinAmount:           decimal.NewFromInt(1),
			MaxAmount:           decimal.NewFromInt(200000),
			ProcessingFeePercent: decimal.NewFromFloat(2.0),
		},
		BaseSuccessRate: 0.93,
		BaseLatencyMS:   90,
		NetworkPreference: NetworkPreference{
			model.NetworkVisa:       0.9,
			model.NetworkMastercard: 0.9,
			model.NetworkAmex:       0.3,
			model.NetworkDiscover:   0.5,
			model.NetworkJCB:        0.9,
			model.NetworkDiners:     0.5,
			model.NetworkUnionPay:   0.95,
		},
		SpecificErrorKinds: []model.ErrorKind{model.ErrCardDeclined, model.ErrNetworkTimeout, model.ErrIssuerUnavailable},
		RateLimitThreshold: 100,
		RateLimitWindow:    60 * time.Second,
	})
}
