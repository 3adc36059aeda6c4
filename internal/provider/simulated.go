package provider

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimbus-gateway/orchestrator/internal/model"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// NetworkPreference maps a card network to this provider's affinity score.
type NetworkPreference map[model.CardNetwork]float64

// SimulatedConfig is the static construction-time declaration for one
// simulated acquirer: its capability surface, base performance, and the
// ErrorKinds it is prone to before §4.1.2 contextual augmentation.
type SimulatedConfig struct {
	Name                 string
	Capability           model.ProviderCapability
	BaseSuccessRate       float64
	BaseLatencyMS         float64
	NetworkPreference     NetworkPreference
	SpecificErrorKinds    []model.ErrorKind
	RateLimitThreshold    int
	RateLimitWindow       time.Duration
}

// SimulatedProvider is a deterministic-contract simulated upstream acquirer:
// it never makes a real network call, but honors a fixed ordering of checks
// (capability, rate limit, maintenance, outcome) and fixed success-
// probability/latency/fee formulas.
type SimulatedProvider struct {
	cfg     SimulatedConfig
	health  *healthTracker
	limiter *rate.Limiter

	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64
	latencyMS   float64
}

// NewSimulated constructs a SimulatedProvider from cfg.
func NewSimulated(cfg SimulatedConfig) *SimulatedProvider {
	if cfg.RateLimitThreshold == 0 {
		cfg.RateLimitThreshold = 100
	}
	if cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow = 60 * time.Second
	}
	refill := rate.Every(cfg.RateLimitWindow / time.Duration(cfg.RateLimitThreshold))
	return &SimulatedProvider{
		cfg:         cfg,
		health:      newHealthTracker(),
		limiter:     rate.NewLimiter(refill, cfg.RateLimitThreshold),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: cfg.BaseSuccessRate,
		latencyMS:   cfg.BaseLatencyMS,
	}
}

func (p *SimulatedProvider) Name() string { return p.cfg.Name }

func (p *SimulatedProvider) Capabilities() model.ProviderCapability { return p.cfg.Capability }

func (p *SimulatedProvider) CanProcess(tx *model.Transaction) bool {
	return CanProcess(p.cfg.Capability, tx)
}

func (p *SimulatedProvider) SpecificErrors() []model.ErrorKind {
	out := make([]model.ErrorKind, len(p.cfg.SpecificErrorKinds))
	copy(out, p.cfg.SpecificErrorKinds)
	return out
}

func (p *SimulatedProvider) NetworkPreferenceScore(network model.CardNetwork) float64 {
	if score, ok := p.cfg.NetworkPreference[network]; ok {
		return score
	}
	return 0
}

// Configure applies administrative overrides used by the scenario injector and tests.
func (p *SimulatedProvider) Configure(opts ConfigureOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if opts.SuccessRate != nil {
		p.successRate = *opts.SuccessRate
	}
	if opts.AvgLatencyMS != nil {
		p.latencyMS = *opts.AvgLatencyMS
	}
	if opts.Maintenance != nil {
		p.health.setMaintenance(*opts.Maintenance)
	}
}

// ResetToBaseline restores success rate and latency to construction-time
// defaults, zeroes the health counters and clears maintenance mode — the
// reset_all scenario (§8-F).
func (p *SimulatedProvider) ResetToBaseline() {
	p.mu.Lock()
	p.successRate = p.cfg.BaseSuccessRate
	p.latencyMS = p.cfg.BaseLatencyMS
	p.mu.Unlock()
	p.health.reset()
}

// Process implements the §4.1 deterministic process() contract.
func (p *SimulatedProvider) Process(ctx context.Context, tx *model.Transaction) (model.ProviderResult, *model.ProviderError) {
	if !p.CanProcess(tx) {
		return model.ProviderResult{}, model.NewProviderError(p.cfg.Name, model.ErrUnsupportedTransaction)
	}
	if !p.limiter.Allow() {
		return model.ProviderResult{}, model.NewProviderError(p.cfg.Name, model.ErrRateLimited)
	}
	if p.health.isMaintenance() {
		return model.ProviderResult{}, model.NewProviderError(p.cfg.Name, model.ErrProviderMaintenance)
	}

	start := time.Now()

	var network *model.CardNetwork
	method := model.MethodCard
	if tx.Instrument != nil {
		network = tx.Instrument.Network
		method = tx.Instrument.Method
	}

	p.mu.Lock()
	baseSuccess := p.successRate
	baseLatency := p.latencyMS
	rngRoll := p.rng.Float64()
	latencyJitter := 0.7 + p.rng.Float64()*0.6
	p.mu.Unlock()

	networkScore := 1.0
	if network != nil {
		networkScore = p.NetworkPreferenceScore(*network)
	}
	amount, _ := tx.Amount.Float64()
	adjusted := baseSuccess * networkScore * amountPenalty(amount) * riskPenalty(tx.RiskScore)
	if adjusted < 0 {
		adjusted = 0
	}
	if adjusted > 1 {
		adjusted = 1
	}

	latencyMS := baseLatency * latencyMultiplierFor(network, method) * latencyJitter
	delay := time.Duration(latencyMS) * time.Millisecond

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		elapsed := time.Since(start)
		p.health.recordOutcome(tx, false, elapsed)
		return model.ProviderResult{}, model.NewProviderError(p.cfg.Name, model.ErrTimeout)
	}

	elapsed := time.Since(start)
	success := rngRoll < adjusted

	if success {
		p.health.recordOutcome(tx, true, elapsed)
		feePercent := p.cfg.Capability.ProcessingFeePercent
		feeMultiplier := decimal.NewFromFloat(feeMultiplierFor(network))
		fee := tx.Amount.Mul(feePercent).Mul(feeMultiplier).Div(decimal.NewFromInt(100))
		return model.ProviderResult{
			ProviderTransactionID: fmt.Sprintf("%s_%s", p.cfg.Name, uuid.New().String()[:8]),
			ProcessingTime:        elapsed,
			ProcessingFee:         fee,
			ProviderResponseCode:  "SUCCESS",
			NetworkResponseCode:   "00",
		}, nil
	}

	p.health.recordOutcome(tx, false, elapsed)
	kind := p.selectContextualError(tx)
	return model.ProviderResult{}, model.NewProviderError(p.cfg.Name, kind)
}

// selectContextualError implements §4.1.2's augmented error-selection table.
func (p *SimulatedProvider) selectContextualError(tx *model.Transaction) model.ErrorKind {
	candidates := p.SpecificErrors()

	if tx.Instrument != nil && tx.Instrument.Network != nil {
		switch *tx.Instrument.Network {
		case model.NetworkAmex:
			candidates = append(candidates, model.ErrAuthFailed, model.ErrBlockedCard)
		case model.NetworkJCB, model.NetworkUnionPay:
			candidates = append(candidates, model.ErrRegionBlocked, model.ErrCurrencyNotSupported)
		}
	}

	amount, _ := tx.Amount.Float64()
	if amount > 5000 {
		candidates = append(candidates, model.ErrInsufficientFunds, model.ErrFraudDetected)
	}

	if tx.Instrument != nil {
		switch tx.Instrument.Method {
		case model.MethodDigitalWallet:
			candidates = append(candidates, model.ErrWalletInsufficientBalance, model.ErrWalletSuspended)
		case model.MethodBankTransfer:
			candidates = append(candidates, model.ErrBankAccountClosed, model.ErrBankTransferLimitExceeded)
		}
	}

	if len(candidates) == 0 {
		candidates = []model.ErrorKind{model.ErrIssuerUnavailable}
	}

	p.mu.Lock()
	idx := p.rng.Intn(len(candidates))
	p.mu.Unlock()
	return candidates[idx]
}

// Health implements the §4.3 derived view, folding in rate-limiter load.
func (p *SimulatedProvider) Health() model.ProviderHealth {
	h := p.health.snapshot(p.cfg.Name)
	h.CurrentLoad = p.currentLoad()
	return h
}

func (p *SimulatedProvider) currentLoad() int {
	tokens := p.limiter.Tokens()
	load := p.cfg.RateLimitThreshold - int(tokens)
	if load < 0 {
		return 0
	}
	return load
}
