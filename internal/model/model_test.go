package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableByDefault(t *testing.T) {
	tests := []struct {
		name     string
		kind     ErrorKind
		expected bool
	}{
		{"timeout is retryable", ErrTimeout, true},
		{"connection refused is retryable", ErrConnectionRefused, true},
		{"network timeout is retryable", ErrNetworkTimeout, true},
		{"provider maintenance is retryable", ErrProviderMaintenance, true},
		{"insufficient funds is not retryable", ErrInsufficientFunds, false},
		{"fraud detected is not retryable", ErrFraudDetected, false},
		{"expired card is not retryable", ErrExpiredCard, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableByDefault(tt.kind))
		})
	}
}

func TestValidCurrency(t *testing.T) {
	assert.True(t, ValidCurrency(USD))
	assert.True(t, ValidCurrency(PHP))
	assert.False(t, ValidCurrency(Currency("XYZ")))
}

func TestTransaction_AppendRouteTracksAttempts(t *testing.T) {
	tx := NewTransaction("tx-1", decimal.NewFromInt(100), USD, TypePayment, nil, nil, "", "")
	require.Equal(t, StatusPending, tx.StatusValue())

	tx.AppendRoute(Route{Provider: "stripe", AttemptNumber: 1, Status: RouteFailed})
	tx.AppendRoute(Route{Provider: "adyen", AttemptNumber: 2, Status: RouteSuccess})

	snap := tx.Snapshot()
	require.Len(t, snap.RouteHistory, 2)
	assert.Equal(t, 2, snap.Attempts)
	assert.Equal(t, snap.Attempts, len(snap.RouteHistory))
	assert.Equal(t, []string{"stripe", "adyen"}, tx.AttemptedProviders())
}

func TestTransaction_SetStatusSuccessIsTerminal(t *testing.T) {
	tx := NewTransaction("tx-2", decimal.NewFromInt(50), EUR, TypePayment, nil, nil, "", "")
	tx.SetStatus(StatusSuccess)
	assert.True(t, tx.IsTerminalSuccess())
}

func TestTransaction_SnapshotIsDetached(t *testing.T) {
	tx := NewTransaction("tx-3", decimal.NewFromInt(10), USD, TypePayment, nil, nil, "", "")
	tx.MergeMetadata(map[string]interface{}{"k": "v"})

	snap := tx.Snapshot()
	snap.Metadata["k"] = "mutated"

	again := tx.Snapshot()
	assert.Equal(t, "v", again.Metadata["k"])
}

func TestProviderError_Error(t *testing.T) {
	err := NewProviderError("stripe", ErrInsufficientFunds)
	assert.Contains(t, err.Error(), "stripe")
	assert.Contains(t, err.Error(), "INSUFFICIENT_FUNDS")
}

func TestInvalidProviderError(t *testing.T) {
	err := &InvalidProviderError{Provider: "nope"}
	assert.Equal(t, "Invalid provider: nope", err.Error())
}

func TestTransactionNotFoundError(t *testing.T) {
	err := &TransactionNotFoundError{TransactionID: "tx-404"}
	assert.Contains(t, err.Error(), "tx-404")
}
