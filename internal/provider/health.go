package provider

import (
	"sync"
	"time"

	"github.com/nimbus-gateway/orchestrator/internal/model"
)

// bucketStats is one (network|method|region) breakdown cell from §4.1.3.
type bucketStats struct {
	requests  int
	failures  int
	totalTime time.Duration
}

func (b bucketStats) successRate() (float64, bool) {
	if b.requests == 0 {
		return 0, false
	}
	return float64(b.requests-b.failures) / float64(b.requests), true
}

// healthTracker is the C3 component: rolling counters broken down by card
// network, payment method, and region, held behind one mutex per provider so
// Health() always observes requests >= failures (concurrency §5).
type healthTracker struct {
	mu sync.Mutex

	requests  int
	failures  int
	totalTime time.Duration

	byNetwork map[model.CardNetwork]*bucketStats
	byMethod  map[model.PaymentMethod]*bucketStats
	byRegion  map[model.Region]*bucketStats

	maintenance bool
	lastCheck   time.Time
}

func newHealthTracker() *healthTracker {
	return &healthTracker{
		byNetwork: make(map[model.CardNetwork]*bucketStats),
		byMethod:  make(map[model.PaymentMethod]*bucketStats),
		byRegion:  make(map[model.Region]*bucketStats),
		lastCheck: time.Now(),
	}
}

// recordOutcome updates all applicable breakdown buckets for one attempt.
func (h *healthTracker) recordOutcome(tx *model.Transaction, success bool, elapsed time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.requests++
	if !success {
		h.failures++
	}
	h.totalTime += elapsed
	h.lastCheck = time.Now()

	if tx.Instrument != nil {
		if tx.Instrument.Network != nil {
			bucket := h.bucketFor(h.byNetwork, *tx.Instrument.Network)
			bucket.requests++
			if !success {
				bucket.failures++
			}
			bucket.totalTime += elapsed
		}
		mbucket := h.bucketForMethod(*tx.Instrument)
		mbucket.requests++
		if !success {
			mbucket.failures++
		}
		mbucket.totalTime += elapsed
	}
	if tx.Customer != nil && tx.Customer.Region != nil {
		rbucket := h.bucketForRegion(*tx.Customer.Region)
		rbucket.requests++
		if !success {
			rbucket.failures++
		}
		rbucket.totalTime += elapsed
	}
}

func (h *healthTracker) bucketFor(m map[model.CardNetwork]*bucketStats, k model.CardNetwork) *bucketStats {
	b, ok := m[k]
	if !ok {
		b = &bucketStats{}
		m[k] = b
	}
	return b
}

func (h *healthTracker) bucketForMethod(instrument model.PaymentInstrument) *bucketStats {
	b, ok := h.byMethod[instrument.Method]
	if !ok {
		b = &bucketStats{}
		h.byMethod[instrument.Method] = b
	}
	return b
}

func (h *healthTracker) bucketForRegion(r model.Region) *bucketStats {
	b, ok := h.byRegion[r]
	if !ok {
		b = &bucketStats{}
		h.byRegion[r] = b
	}
	return b
}

func (h *healthTracker) setMaintenance(m bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maintenance = m
}

func (h *healthTracker) isMaintenance() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maintenance
}

// snapshot computes the derived ProviderHealth view: everything but the
// current-load field, which the provider fills in. The circuit-breaker fields
// are left at their zero values.
func (h *healthTracker) snapshot(name string) model.ProviderHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	successRate := 1.0
	avgLatencyMS := 0.0
	if h.requests > 0 {
		successRate = float64(h.requests-h.failures) / float64(h.requests)
		avgLatencyMS = float64(h.totalTime.Milliseconds()) / float64(h.requests)
	}

	byNetwork := make(map[string]float64, len(h.byNetwork))
	for k, b := range h.byNetwork {
		if rate, ok := b.successRate(); ok {
			byNetwork[string(k)] = rate
		}
	}
	byMethod := make(map[string]float64, len(h.byMethod))
	for k, b := range h.byMethod {
		if rate, ok := b.successRate(); ok {
			byMethod[string(k)] = rate
		}
	}
	byRegion := make(map[string]float64, len(h.byRegion))
	for k, b := range h.byRegion {
		if rate, ok := b.successRate(); ok {
			byRegion[string(k)] = rate
		}
	}

	return model.ProviderHealth{
		ProviderName:         name,
		SuccessRate:          successRate,
		AvgLatencyMS:         avgLatencyMS,
		IsHealthy:            successRate > 0.5 && !h.maintenance,
		LastChecked:          h.lastCheck,
		SuccessRateByNetwork: byNetwork,
		SuccessRateByMethod:  byMethod,
		SuccessRateByRegion:  byRegion,
	}
}

// reset zeroes every counter, used by the reset_all administrative scenario.
func (h *healthTracker) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = 0
	h.failures = 0
	h.totalTime = 0
	h.byNetwork = make(map[model.CardNetwork]*bucketStats)
	h.byMethod = make(map[model.PaymentMethod]*bucketStats)
	h.byRegion = make(map[model.Region]*bucketStats)
	h.maintenance = false
}
