// Package handler exposes the C7 gateway facade over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/nimbus-gateway/orchestrator/internal/gateway"
	"github.com/nimbus-gateway/orchestrator/internal/model"
	"github.com/nimbus-gateway/orchestrator/internal/provider"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler holds HTTP handler dependencies.
type Handler struct {
	gw  *gateway.Gateway
	log *zap.Logger
}

// New creates a new Handler.
func New(gw *gateway.Gateway, log *zap.Logger) *Handler {
	return &Handler{gw: gw, log: log}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /payments", h.ProcessPayment)
	mux.HandleFunc("GET /payments/{id}", h.GetTransactionStatus)
	mux.HandleFunc("POST /payments/{id}/retry", h.RetryPayment)
	mux.HandleFunc("GET /providers/health", h.GetProviderHealth)
	mux.HandleFunc("GET /metrics", h.GetMetrics)
	mux.HandleFunc("POST /providers/{name}/configure", h.ConfigureProvider)
	mux.HandleFunc("POST /simulate/{scenario}", h.SimulateScenario)
	mux.HandleFunc("POST /routing-strategy", h.SetRoutingStrategy)
}

// paymentRequestBody is the JSON shape of process_payment's request envelope (§6).
type paymentRequestBody struct {
	Amount            decimal.Decimal         `json:"amount"`
	Currency          model.Currency          `json:"currency"`
	PreferredProvider string                  `json:"preferred_provider,omitempty"`
	Customer          *model.CustomerInfo     `json:"customer,omitempty"`
	Instrument        *model.PaymentInstrument `json:"instrument,omitempty"`
	TransactionType   model.TransactionType   `json:"transaction_type,omitempty"`
	MerchantID        string                  `json:"merchant_id,omitempty"`
	OrderID           string                  `json:"order_id,omitempty"`
}

// ProcessPayment handles POST /payments.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var body paymentRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Amount.IsZero() || body.Amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "amount must be greater than 0")
		return
	}
	if !model.ValidCurrency(body.Currency) {
		writeError(w, http.StatusBadRequest, "unsupported currency")
		return
	}

	resp := h.gw.ProcessPayment(r.Context(), gateway.Request{
		Amount:            body.Amount,
		Currency:          body.Currency,
		PreferredProvider: body.PreferredProvider,
		Customer:          body.Customer,
		Instrument:        body.Instrument,
		TransactionType:   body.TransactionType,
		MerchantID:        body.MerchantID,
		OrderID:           body.OrderID,
	})

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
		if resp.Transaction == nil {
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, status, resp)
}

// GetTransactionStatus handles GET /payments/{id}.
func (h *Handler) GetTransactionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := h.gw.GetTransactionStatus(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RetryPayment handles POST /payments/{id}/retry.
func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp := h.gw.RetryPayment(r.Context(), id)

	status := http.StatusOK
	if !resp.Success {
		if resp.Transaction == nil {
			status = http.StatusNotFound
		} else {
			status = http.StatusUnprocessableEntity
		}
	}
	writeJSON(w, status, resp)
}

// GetProviderHealth handles GET /providers/health.
func (h *Handler) GetProviderHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.GetProviderHealth())
}

// GetMetrics handles GET /metrics.
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.GetMetrics())
}

type configureProviderBody struct {
	SuccessRate  *float64 `json:"success_rate,omitempty"`
	Maintenance  *bool    `json:"maintenance,omitempty"`
	AvgLatencyMS *float64 `json:"avg_latency_ms,omitempty"`
}

// ConfigureProvider handles POST /providers/{name}/configure.
func (h *Handler) ConfigureProvider(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body configureProviderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := h.gw.ConfigureProvider(name, provider.ConfigureOptions{
		SuccessRate:  body.SuccessRate,
		Maintenance:  body.Maintenance,
		AvgLatencyMS: body.AvgLatencyMS,
	})
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": name, "status": "configured"})
}

// SimulateScenario handles POST /simulate/{scenario}. The §6 administrative
// envelope is {success: bool, message|error: string}, not the payment
// response envelope.
func (h *Handler) SimulateScenario(w http.ResponseWriter, r *http.Request) {
	scenario := r.PathValue("scenario")
	if err := h.gw.SimulateScenario(scenario); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "scenario " + scenario + " applied",
	})
}

type routingStrategyBody struct {
	Strategy model.RoutingStrategy `json:"strategy"`
}

// SetRoutingStrategy handles POST /routing-strategy.
func (h *Handler) SetRoutingStrategy(w http.ResponseWriter, r *http.Request) {
	var body routingStrategyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.gw.SetRoutingStrategy(body.Strategy)
	writeJSON(w, http.StatusOK, map[string]string{"routing_strategy": string(body.Strategy)})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
