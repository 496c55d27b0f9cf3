package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bike-storefront/internal/domain"

	"github.com/google/uuid"
)

// PaymentRepo keeps the audit trail of gateway exchanges per order.
type PaymentRepo interface {
	// tx may be nil; attempts are also recorded for exchanges that never
	// changed the order.
	RecordAttempt(ctx context.Context, tx *sql.Tx, attempt *domain.PaymentAttempt) error
	ListByOrder(ctx context.Context, orderId uuid.UUID) ([]domain.PaymentAttempt, error)
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) RecordAttempt(ctx context.Context, tx *sql.Tx, a *domain.PaymentAttempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := pick(r.db, tx).ExecContext(ctx,
		`INSERT INTO payment_attempts
		 (id, order_id, kind, gateway_reference, amount, transaction_status, bank_status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.OrderID, a.Kind, a.GatewayReference, a.Amount, a.TransactionStatus, a.BankStatus, a.Error, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("record payment attempt: %w", err)
	}
	return nil
}

func (r *paymentRepo) ListByOrder(ctx context.Context, orderId uuid.UUID) ([]domain.PaymentAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, kind, gateway_reference, amount, transaction_status, bank_status, error, created_at
		 FROM payment_attempts
		 WHERE order_id = $1
		 ORDER BY created_at, id`,
		orderId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []domain.PaymentAttempt{}
	for rows.Next() {
		var a domain.PaymentAttempt
		err := rows.Scan(
			&a.ID,
			&a.OrderID,
			&a.Kind,
			&a.GatewayReference,
			&a.Amount,
			&a.TransactionStatus,
			&a.BankStatus,
			&a.Error,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
