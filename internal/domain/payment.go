package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bank statuses reported by the gateway verification endpoint.
const (
	BankSuccess = "Success"
	BankFailed  = "Failed"
	BankCancel  = "Cancel"
)

// Transaction is the gateway-side record kept on an order.
type Transaction struct {
	GatewayReference  string `json:"id"`
	TransactionStatus string `json:"transactionStatus,omitempty"`
	BankStatus        string `json:"bank_status,omitempty"`
	GatewayCode       string `json:"sp_code,omitempty"`
	GatewayMessage    string `json:"sp_message,omitempty"`
	Method            string `json:"method,omitempty"`
	Timestamp         string `json:"date_time,omitempty"`
}

// Verdict is one verification record returned by the gateway.
type Verdict struct {
	CustomerOrderID   string `json:"customer_order_id"`
	BankStatus        string `json:"bank_status"`
	GatewayCode       string `json:"sp_code"`
	GatewayMessage    string `json:"sp_message"`
	TransactionStatus string `json:"transaction_status"`
	Method            string `json:"method"`
	Timestamp         string `json:"date_time"`
}

// StatusFor maps a bank status to the order status it settles to.
// ok is false when the bank status carries no decision.
func StatusFor(bankStatus string) (status OrderStatus, ok bool) {
	switch bankStatus {
	case BankSuccess:
		return OrderPaid, true
	case BankFailed:
		return OrderPending, true
	case BankCancel:
		return OrderCancelled, true
	}
	return "", false
}

func (v Verdict) Transaction(reference string) Transaction {
	return Transaction{
		GatewayReference:  reference,
		TransactionStatus: v.TransactionStatus,
		BankStatus:        v.BankStatus,
		GatewayCode:       v.GatewayCode,
		GatewayMessage:    v.GatewayMessage,
		Method:            v.Method,
		Timestamp:         v.Timestamp,
	}
}

type Buyer struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

type SessionRequest struct {
	Amount   decimal.Decimal
	Currency string
	OrderRef string
	Buyer    Buyer
	ClientIP string
}

type Session struct {
	CheckoutURL       string
	GatewayReference  string
	TransactionStatus string
}

type AttemptKind string

const (
	AttemptSession      AttemptKind = "session"
	AttemptVerification AttemptKind = "verification"
)

// PaymentAttempt is one exchange with the gateway, kept for audit.
type PaymentAttempt struct {
	ID                uuid.UUID       `json:"id"`
	OrderID           uuid.UUID       `json:"orderId"`
	Kind              AttemptKind     `json:"kind"`
	GatewayReference  string          `json:"gatewayReference,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	TransactionStatus string          `json:"transactionStatus,omitempty"`
	BankStatus        string          `json:"bankStatus,omitempty"`
	Error             string          `json:"error,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}
