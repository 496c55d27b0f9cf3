// Package logkey holds the attribute keys shared by every slog call site.
package logkey

const (
	TraceID   = "trace_id"
	OrderID   = "order_id"
	UserID    = "user_id"
	ProductID = "product_id"
	Reference = "gateway_reference"
	Status    = "status"
	ERROR     = "error"
)
