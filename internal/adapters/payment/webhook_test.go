package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stairs-live/internal/domain"
)

func TestParseOrderCaptureDetails(t *testing.T) {
	body := []byte(`{
		"id": "5O190127TN364715T",
		"status": "COMPLETED",
		"payer": {"email_address": "a@x.com"},
		"purchase_units": [{
			"amount": {"value": "5.00", "currency_code": "USD"},
			"payments": {"captures": [{"id": "3C679366HH908993F", "amount": {"value": "5.00", "currency_code": "USD"}}]}
		}]
	}`)

	n, err := ParseNotification(body)
	require.NoError(t, err)

	assert.Equal(t, "5.00", n.Amount)
	assert.Equal(t, "USD", n.Currency)
	assert.Equal(t, "3C679366HH908993F", n.IdempotencyKey())

	c, err := n.Completion(decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, c.Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "3C679366HH908993F", c.PayerRef)
	assert.Equal(t, "COMPLETED", c.Confirmation["status"])
}

func TestParseWrappedFlatNotification(t *testing.T) {
	body := []byte(`{"event": "payment.captured", "data": {"id": "op-1", "status": "success", "amount": 12.5, "currency": "USD"}}`)

	n, err := ParseNotification(body)
	require.NoError(t, err)

	assert.Equal(t, "payment.captured", n.Event)
	assert.Equal(t, "12.5", n.Amount)
	assert.Equal(t, "op-1", n.IdempotencyKey())
	assert.True(t, n.Captured())
}

func TestCompletionFallsBackToFixedAmount(t *testing.T) {
	n, err := ParseNotification([]byte(`{"id": "order-7", "status": "COMPLETED"}`))
	require.NoError(t, err)

	c, err := n.Completion(decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, c.Amount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "order-7", c.PayerRef)
}

func TestCompletionRejectsPendingPayment(t *testing.T) {
	n, err := ParseNotification([]byte(`{"id": "order-8", "status": "PENDING", "amount": "3"}`))
	require.NoError(t, err)

	_, err = n.Completion(decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNotCaptured)
}

func TestCompletionRejectsNonPositiveAmount(t *testing.T) {
	n, err := ParseNotification([]byte(`{"id": "order-9", "amount": "0"}`))
	require.NoError(t, err)

	_, err = n.Completion(decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCompletionGeneratesRefWhenMissing(t *testing.T) {
	n, err := ParseNotification([]byte(`{"amount": "2"}`))
	require.NoError(t, err)

	c, err := n.Completion(decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.NotEmpty(t, c.PayerRef)
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := ParseNotification([]byte(`{`))
	assert.Error(t, err)
}
