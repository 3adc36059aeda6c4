package eventbus

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nimbus-gateway/orchestrator/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	dir := t.TempDir()
	b, err := New(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func readLines(t *testing.T, dir, stream string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, stream+".jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		out = append(out, entry)
	}
	return out
}

func testTx() *model.Transaction {
	return model.NewTransaction("tx_1", decimal.NewFromInt(100), model.USD, model.TypePayment, nil, nil, "m1", "o1")
}

func TestBus_PaymentInitiatedWritesPaymentEventsStream(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	b.PaymentInitiated(testTx())

	lines := readLines(t, dir, "payment_events")
	require.Len(t, lines, 1)
	assert.Equal(t, "payment_initiated", lines[0]["event_type"])
	assert.Equal(t, "tx_1", lines[0]["transaction_id"])
	assert.NotEmpty(t, lines[0]["log_id"])
}

func TestBus_PaymentSuccessAlsoWritesRoutingDecision(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	tx := testTx()
	route := model.Route{
		Provider: "stripe",
		Status:   model.RouteSuccess,
		Decision: model.RoutingDecision{SelectedProvider: "stripe", StrategyUsed: model.StrategyHealthBased},
	}
	tx.AppendRoute(route)
	b.PaymentSuccess(tx, route)

	events := readLines(t, dir, "payment_events")
	require.Len(t, events, 1)
	assert.Equal(t, "payment_success", events[0]["event_type"])

	routing := readLines(t, dir, "routing_decisions")
	require.Len(t, routing, 1)
	assert.Equal(t, "stripe", routing[0]["provider"])
}

func TestBus_PaymentFailureWritesFailureAnalysis(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	tx := testTx()
	reason := "TIMEOUT"
	route := model.Route{Provider: "stripe", Status: model.RouteFailed, Reason: &reason}
	tx.AppendRoute(route)
	b.PaymentFailure(tx, route)

	failures := readLines(t, dir, "failure_analysis")
	require.Len(t, failures, 1)
	assert.Equal(t, "payment_failure", failures[0]["event_type"])
}

func TestBusinessImpact_FailedTransactionScoresLower(t *testing.T) {
	view := testTx().Snapshot()
	view.Attempts = 3

	healthy := businessImpact(view, false)
	failed := businessImpact(view, true)

	assert.Greater(t, healthy["customer_experience_score"], failed["customer_experience_score"])
	assert.Equal(t, 0.0, healthy["revenue_at_risk"])
	assert.NotEqual(t, 0.0, failed["revenue_at_risk"])
}

func TestBus_CircuitBreakerEventWritesStream(t *testing.T) {
	b := newTestBus(t)
	b.CircuitBreakerEvent("stripe", "opened", 5, map[string]interface{}{"pending_transactions": 3})

	lines := readLines(t, b.dir, "circuit_breaker_events")
	require.Len(t, lines, 1)
	assert.Equal(t, "stripe", lines[0]["provider"])
}
