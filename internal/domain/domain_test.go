package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		bank   string
		status OrderStatus
		ok     bool
	}{
		{BankSuccess, OrderPaid, true},
		{BankFailed, OrderPending, true},
		{BankCancel, OrderCancelled, true},
		{"", "", false},
		{"Processing", "", false},
		{"success", "", false},
	}
	for _, c := range cases {
		t.Run(c.bank, func(t *testing.T) {
			status, ok := StatusFor(c.bank)
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.status, status)
		})
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range OrderStatuses {
		want := s == OrderCancelled || s == OrderDelivered
		assert.Equal(t, want, s.Terminal(), s)
	}
}

func TestPriceLines(t *testing.T) {
	items := []LineItem{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("499.99")},
		{Quantity: 1, UnitPrice: decimal.NewFromInt(850)},
	}
	assert.True(t, decimal.RequireFromString("1849.98").Equal(PriceLines(items)))
	assert.True(t, decimal.Zero.Equal(PriceLines(nil)))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{nil, ""},
		{ErrNotFound, CodeNotFound},
		{ErrInvalidOrder, CodeBadRequest},
		{ErrInvalidStatus, CodeBadRequest},
		{ErrValidation, CodeBadRequest},
		{ErrInsufficientStock, CodeConflict},
		{ErrTerminalState, CodeConflict},
		{ErrInvalidTransition, CodeConflict},
		{ErrConflict, CodeConflict},
		{ErrGatewayUnavailable, CodeUnavailable},
		{ErrUnauthorized, CodeUnauthorized},
		{ErrForbidden, CodeForbidden},
		{errors.New("dial tcp: refused"), CodeInternal},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, Classify(c.err), "%v", c.err)
	}

	wrapped := fmt.Errorf("verify: %w", fmt.Errorf("%w: bike 42", ErrInsufficientStock))
	assert.Equal(t, CodeConflict, Classify(wrapped))
}

func TestVerdictTransaction(t *testing.T) {
	v := Verdict{
		CustomerOrderID:   "SP123",
		BankStatus:        BankSuccess,
		GatewayCode:       "1000",
		GatewayMessage:    "Success",
		TransactionStatus: "Completed",
		Method:            "bKash",
		Timestamp:         "2024-05-01 10:00:00",
	}
	tx := v.Transaction("SPREF")
	assert.Equal(t, "SPREF", tx.GatewayReference)
	assert.Equal(t, BankSuccess, tx.BankStatus)
	assert.Equal(t, "1000", tx.GatewayCode)
	assert.Equal(t, "bKash", tx.Method)
}

func TestUserBuyer(t *testing.T) {
	u := User{Name: "Rider", Email: "r@example.com", Phone: "017", Address: "Dhaka", Role: RoleCustomer}
	assert.Equal(t, Buyer{Name: "Rider", Email: "r@example.com", Phone: "017", Address: "Dhaka"}, u.Buyer())
	assert.False(t, Principal{Role: RoleCustomer}.Elevated())
	assert.True(t, Principal{Role: RoleAdmin}.Elevated())
}
