package events

import (
	"context"
	"encoding/json"
	"time"

	"bike-storefront/internal/config"
	"bike-storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	OrderCreated       = "order.created"
	OrderPaid          = "order.paid"
	OrderStatusChanged = "order.status_changed"
)

type Event struct {
	EventID   string            `json:"event_id"`
	Type      string            `json:"type"`
	OrderID   string            `json:"order_id"`
	UserID    string            `json:"user_id"`
	Status    string            `json:"status"`
	Previous  string            `json:"previous_status,omitempty"`
	Total     string            `json:"total_price"`
	Reference string            `json:"gateway_reference,omitempty"`
	Items     []domain.LineItem `json:"products,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewEvent snapshots order after a committed change.
func NewEvent(kind string, order *domain.Order, previous domain.OrderStatus) Event {
	e := Event{
		EventID:   uuid.NewString(),
		Type:      kind,
		OrderID:   order.ID.String(),
		UserID:    order.UserID.String(),
		Status:    string(order.Status),
		Previous:  string(previous),
		Total:     order.TotalPrice.StringFixed(2),
		Items:     order.Items,
		CreatedAt: time.Now().UTC(),
	}
	if order.Transaction != nil {
		e.Reference = order.Transaction.GatewayReference
	}
	return e
}

// Publisher emits order lifecycle events. Publishing happens after commit, so
// a failure never undoes the state change it reports.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NewPublisher returns a Kafka publisher, or a no-op one when no brokers are
// configured.
func NewPublisher(cfg config.Kafka) Publisher {
	if !cfg.Enabled() {
		return Noop{}
	}
	return &kafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}}
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

func (p *kafkaPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	// Keyed by order so every event of one order lands on the same partition.
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrderID),
		Value: data,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
