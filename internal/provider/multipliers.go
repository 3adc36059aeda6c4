package provider

import "github.com/nimbus-gateway/orchestrator/internal/model"

// networkLatencyMultiplier is the §4.1/original_source latency multiplier
// table per card network; unlisted networks (diners) default to 1.0.
var networkLatencyMultiplier = map[model.CardNetwork]float64{
	model.NetworkVisa:       1.0,
	model.NetworkMastercard: 1.1,
	model.NetworkAmex:       1.3,
	model.NetworkDiscover:   1.2,
	model.NetworkJCB:        1.4,
	model.NetworkUnionPay:   1.5,
}

// methodLatencyMultiplier is the per-payment-method latency multiplier table.
var methodLatencyMultiplier = map[model.PaymentMethod]float64{
	model.MethodCard:          1.0,
	model.MethodDigitalWallet: 0.8,
	model.MethodBankTransfer:  2.0,
	model.MethodCrypto:        3.0,
}

// networkFeeMultiplier is the per-card-network processing fee multiplier table.
var networkFeeMultiplier = map[model.CardNetwork]float64{
	model.NetworkVisa:       1.0,
	model.NetworkMastercard: 1.05,
	model.NetworkAmex:       1.5,
	model.NetworkDiscover:   1.1,
	model.NetworkJCB:        1.3,
	model.NetworkUnionPay:   1.2,
}

func latencyMultiplierFor(network *model.CardNetwork, method model.PaymentMethod) float64 {
	nm := 1.0
	if network != nil {
		if v, ok := networkLatencyMultiplier[*network]; ok {
			nm = v
		}
	}
	mm := 1.0
	if v, ok := methodLatencyMultiplier[method]; ok {
		mm = v
	}
	return nm * mm
}

func feeMultiplierFor(network *model.CardNetwork) float64 {
	if network == nil {
		return 1.0
	}
	if v, ok := networkFeeMultiplier[*network]; ok {
		return v
	}
	return 1.0
}

// amountPenalty implements the §4.1 amount-based success-rate penalty.
func amountPenalty(amount float64) float64 {
	switch {
	case amount <= 1000:
		return 1.0
	case amount <= 5000:
		return 0.95
	default:
		return 0.90
	}
}

// riskPenalty implements the §4.1 risk-score-based success-rate penalty.
func riskPenalty(riskScore *float64) float64 {
	if riskScore == nil {
		return 1.0
	}
	switch {
	case *riskScore <= 0.5:
		return 1.0
	case *riskScore <= 0.7:
		return 0.95
	default:
		return 0.85
	}
}
