package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nimbus-gateway/orchestrator/internal/config"
	"github.com/nimbus-gateway/orchestrator/internal/eventbus"
	"github.com/nimbus-gateway/orchestrator/internal/gateway"
	"github.com/nimbus-gateway/orchestrator/internal/model"
	"github.com/nimbus-gateway/orchestrator/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestServer(t *testing.T) *http.ServeMux {
	t.Helper()
	bus, err := eventbus.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	providers := map[string]provider.Provider{
		"stripe":   provider.NewStripe(),
		"adyen":    provider.NewAdyen(),
		"paypal":   provider.NewPayPal(),
		"razorpay": provider.NewRazorpay(),
	}
	cfg := config.DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond

	gw := gateway.New(providers, cfg, bus, zap.NewNop(), model.StrategyHealthBased)
	h := New(gw, zap.NewNop())

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestProcessPayment_ReturnsTransactionEnvelope(t *testing.T) {
	mux := setupTestServer(t)

	body := `{"amount":"100.50","currency":"USD","merchant_id":"m1","order_id":"o1","instrument":{"method":"card","network":"visa"}}`
	req := httptest.NewRequest("POST", "/payments", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Contains(t, []int{http.StatusOK, http.StatusUnprocessableEntity}, w.Code)

	var resp gateway.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Transaction)
	assert.NotEmpty(t, resp.Transaction.ID)
}

func TestProcessPayment_RejectsInvalidAmount(t *testing.T) {
	mux := setupTestServer(t)

	body := `{"amount":"0","currency":"USD"}`
	req := httptest.NewRequest("POST", "/payments", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessPayment_RejectsUnsupportedCurrency(t *testing.T) {
	mux := setupTestServer(t)

	body := `{"amount":"10","currency":"ZZZ"}`
	req := httptest.NewRequest("POST", "/payments", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTransactionStatus_NotFound(t *testing.T) {
	mux := setupTestServer(t)

	req := httptest.NewRequest("GET", "/payments/nonexistent", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetProviderHealth_ListsAllProviders(t *testing.T) {
	mux := setupTestServer(t)

	req := httptest.NewRequest("GET", "/providers/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Contains(t, health, "stripe")
	assert.Contains(t, health, "adyen")
}

func TestConfigureProvider_UnknownName(t *testing.T) {
	mux := setupTestServer(t)

	req := httptest.NewRequest("POST", "/providers/nonexistent/configure", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSimulateScenario_UnrecognizedName(t *testing.T) {
	mux := setupTestServer(t)

	req := httptest.NewRequest("POST", "/simulate/not_a_scenario", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSimulateScenario_CircuitBreakerTest(t *testing.T) {
	mux := setupTestServer(t)

	req := httptest.NewRequest("POST", "/simulate/circuit_breaker_test", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetRoutingStrategy_UpdatesMetrics(t *testing.T) {
	mux := setupTestServer(t)

	req := httptest.NewRequest("POST", "/routing-strategy", bytes.NewBufferString(`{"strategy":"cost_optimized"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	metricsReq := httptest.NewRequest("GET", "/metrics", nil)
	metricsW := httptest.NewRecorder()
	mux.ServeHTTP(metricsW, metricsReq)

	var metrics map[string]interface{}
	require.NoError(t, json.Unmarshal(metricsW.Body.Bytes(), &metrics))
	assert.Equal(t, "cost_optimized", metrics["routing_strategy"])
}
