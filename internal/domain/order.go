package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderPaid      OrderStatus = "Paid"
	OrderShipped   OrderStatus = "Shipped"
	OrderDelivered OrderStatus = "Delivered"
	OrderCancelled OrderStatus = "Cancelled"
)

var OrderStatuses = []OrderStatus{OrderPending, OrderPaid, OrderShipped, OrderDelivered, OrderCancelled}

// Terminal reports whether no further transition is accepted.
func (s OrderStatus) Terminal() bool {
	return s == OrderCancelled || s == OrderDelivered
}

type LineItem struct {
	ProductID uuid.UUID       `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Order struct {
	ID          uuid.UUID       `json:"_id"`
	UserID      uuid.UUID       `json:"user"`
	Items       []LineItem      `json:"products"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Status      OrderStatus     `json:"status"`
	Transaction *Transaction    `json:"transaction,omitempty"`
	Version     int             `json:"-"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// OrderLine is an unpriced line item as submitted by a buyer.
type OrderLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// PriceLines computes the total over already resolved items.
func PriceLines(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}
