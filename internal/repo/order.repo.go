package repo

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"bike-storefront/internal/domain"
	"bike-storefront/internal/query"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderResource is the listable view of the orders table.
var OrderResource = &query.Resource{
	Table: "orders",
	Fields: []query.Field{
		{Name: "_id", Column: "id", Kind: query.UUID},
		{Name: "user", Column: "user_id", Kind: query.UUID},
		{Name: "totalPrice", Column: "total_price", Kind: query.Number},
		{Name: "status", Column: "status"},
		{Name: "transaction.id", Column: "gateway_reference"},
		{Name: "transaction.transactionStatus", Column: "transaction_status"},
		{Name: "transaction.bank_status", Column: "bank_status"},
		{Name: "transaction.sp_code", Column: "gateway_code"},
		{Name: "transaction.sp_message", Column: "gateway_message"},
		{Name: "transaction.method", Column: "payment_method"},
		{Name: "transaction.date_time", Column: "gateway_time"},
		{Name: "createdAt", Column: "created_at", Kind: query.Time},
		{Name: "updatedAt", Column: "updated_at", Kind: query.Time},
		{Name: "version", Column: "version", Kind: query.Integer},
	},
	Key:        "_id",
	Created:    "createdAt",
	Hidden:     "version",
	Price:      "totalPrice",
	Searchable: []string{"_id", "status", "transaction.id", "transaction.method"},
	Enums: map[string][]string{
		"status":                  {"Pending", "Paid", "Shipped", "Delivered", "Cancelled"},
		"transaction.bank_status": {domain.BankSuccess, domain.BankFailed, domain.BankCancel},
	},
	Relations: []string{"products"},
}

const orderColumns = `id, user_id, total_price, status, gateway_reference, transaction_status, bank_status,
	gateway_code, gateway_message, payment_method, gateway_time, version, created_at, updated_at`

type OrderRepo interface {
	CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	FindById(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Order, error)
	// LockById and LockByReference take a row lock held until tx ends.
	LockById(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Order, error)
	LockByReference(ctx context.Context, tx *sql.Tx, reference string) (*domain.Order, error)
	AttachSession(ctx context.Context, tx *sql.Tx, id uuid.UUID, session domain.Session) error
	// UpdateOrder writes status and transaction together. It fails with
	// domain.ErrConflict when the stored version differs from expectedVersion.
	UpdateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order, expectedVersion int) error
	FindStuckOrders(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
	List(ctx context.Context, b *query.Builder) ([]domain.Order, int, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	q := pick(r.db, tx)
	_, err := q.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, total_price, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.UserID, order.TotalPrice, order.Status, order.Version, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i, it := range order.Items {
		_, err := q.ExecContext(ctx,
			`INSERT INTO order_items (order_id, position, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4, $5)`,
			order.ID, i, it.ProductID, it.Quantity, it.UnitPrice)
		if err != nil {
			if pgCode(err) == pgForeignKey {
				return fmt.Errorf("%w: product %s no longer exists", domain.ErrInvalidOrder, it.ProductID)
			}
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepo) FindById(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, pick(r.db, tx), "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

func (r *orderRepo) LockById(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, tx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
}

func (r *orderRepo) LockByReference(ctx context.Context, tx *sql.Tx, reference string) (*domain.Order, error) {
	return r.findOne(ctx, tx, "SELECT "+orderColumns+" FROM orders WHERE gateway_reference = $1 FOR UPDATE", reference)
}

func (r *orderRepo) findOne(ctx context.Context, q querier, stmt string, arg any) (*domain.Order, error) {
	var row orderRow
	if err := q.QueryRowContext(ctx, stmt, arg).Scan(row.all()...); err != nil {
		return nil, notFound(err, "order %v", arg)
	}
	order := row.order()
	items, err := r.loadItems(ctx, q, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return &order, nil
}

func (r *orderRepo) AttachSession(ctx context.Context, tx *sql.Tx, id uuid.UUID, session domain.Session) error {
	res, err := pick(r.db, tx).ExecContext(ctx,
		`UPDATE orders
		 SET gateway_reference = COALESCE(gateway_reference, NULLIF($2, '')),
		     transaction_status = COALESCE(NULLIF($3, ''), transaction_status),
		     version = version + 1,
		     updated_at = now()
		 WHERE id = $1`,
		id, session.GatewayReference, session.TransactionStatus)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("%w: gateway reference %s already used", domain.ErrConflict, session.GatewayReference)
		}
		return fmt.Errorf("attach session: %w", err)
	}
	return expectOne(res, id)
}

func (r *orderRepo) UpdateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order, expectedVersion int) error {
	t := order.Transaction
	if t == nil {
		t = &domain.Transaction{}
	}
	order.UpdatedAt = time.Now().UTC()
	res, err := pick(r.db, tx).ExecContext(ctx,
		`UPDATE orders
		 SET status = $3,
		     gateway_reference = COALESCE(gateway_reference, NULLIF($4, '')),
		     transaction_status = COALESCE(NULLIF($5, ''), transaction_status),
		     bank_status = COALESCE(NULLIF($6, ''), bank_status),
		     gateway_code = COALESCE(NULLIF($7, ''), gateway_code),
		     gateway_message = COALESCE(NULLIF($8, ''), gateway_message),
		     payment_method = COALESCE(NULLIF($9, ''), payment_method),
		     gateway_time = COALESCE(NULLIF($10, ''), gateway_time),
		     version = version + 1,
		     updated_at = $11
		 WHERE id = $1 AND version = $2`,
		order.ID, expectedVersion, order.Status,
		t.GatewayReference, t.TransactionStatus, t.BankStatus, t.GatewayCode, t.GatewayMessage, t.Method, t.Timestamp,
		order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: order %s changed since version %d", domain.ErrConflict, order.ID, expectedVersion)
	}
	order.Version = expectedVersion + 1
	return nil
}

// FindStuckOrders claims up to limit Pending orders that have a gateway
// session and were not modified for olderThan. Claimed orders get
// last_checked_at stamped, so the next call moves on to orders checked least
// recently instead of returning the same batch. Concurrent callers skip rows
// the other holds. An order whose reference never reached the orders row is
// picked up through its recorded session attempt.
func (r *orderRepo) FindStuckOrders(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`WITH due AS (
		     SELECT o.id AS due_id FROM orders o
		     WHERE o.status = $1 AND o.updated_at < $2
		       AND (o.gateway_reference IS NOT NULL OR EXISTS (
		           SELECT 1 FROM payment_attempts a
		           WHERE a.order_id = o.id AND a.kind = $4 AND a.gateway_reference <> ''))
		     ORDER BY o.last_checked_at NULLS FIRST, o.updated_at
		     LIMIT $3
		     FOR UPDATE OF o SKIP LOCKED
		 )
		 UPDATE orders SET last_checked_at = now()
		 FROM due WHERE orders.id = due.due_id
		 RETURNING `+orderColumns+`,
		     (SELECT a.gateway_reference FROM payment_attempts a
		      WHERE a.order_id = orders.id AND a.kind = $4 AND a.gateway_reference <> ''
		      ORDER BY a.created_at DESC LIMIT 1)`,
		domain.OrderPending, time.Now().Add(-olderThan), limit, domain.AttemptSession)
	if err != nil {
		return nil, fmt.Errorf("claim stuck orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var row orderRow
		var recorded sql.NullString
		if err := rows.Scan(append(row.all(), &recorded)...); err != nil {
			return nil, err
		}
		if !row.Reference.Valid && recorded.Valid {
			row.Reference = recorded
		}
		orders = append(orders, row.order())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(orders, func(a, b domain.Order) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	return orders, nil
}

func (r *orderRepo) List(ctx context.Context, b *query.Builder) ([]domain.Order, int, error) {
	countSQL, countArgs := b.CountSQL()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	stmt, args := b.SelectSQL()
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	cols := b.Columns()
	orders := []domain.Order{}
	var ids []uuid.UUID
	for rows.Next() {
		var row orderRow
		dest := make([]any, len(cols))
		for i, c := range cols {
			dest[i] = row.target(c.Column)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, err
		}
		orders = append(orders, row.order())
		ids = append(ids, row.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if !b.Includes("products") {
		return orders, total, nil
	}
	items, err := r.loadItems(ctx, r.db, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, total, nil
}

func (r *orderRepo) loadItems(ctx context.Context, q querier, ids []uuid.UUID) (map[uuid.UUID][]domain.LineItem, error) {
	out := make(map[uuid.UUID][]domain.LineItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	rows, err := q.QueryContext(ctx,
		`SELECT order_id, product_id, quantity, unit_price FROM order_items
		 WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, position`,
		"{"+strings.Join(keys, ",")+"}")
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var it domain.LineItem
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	return nil
}

type orderRow struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TotalPrice decimal.Decimal
	Status     string
	Reference  sql.NullString
	TxStatus   sql.NullString
	BankStatus sql.NullString
	Code       sql.NullString
	Message    sql.NullString
	Method     sql.NullString
	TxTime     sql.NullString
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r *orderRow) all() []any {
	return []any{
		&r.ID, &r.UserID, &r.TotalPrice, &r.Status, &r.Reference, &r.TxStatus, &r.BankStatus,
		&r.Code, &r.Message, &r.Method, &r.TxTime, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	}
}

func (r *orderRow) target(column string) any {
	switch column {
	case "id":
		return &r.ID
	case "user_id":
		return &r.UserID
	case "total_price":
		return &r.TotalPrice
	case "status":
		return &r.Status
	case "gateway_reference":
		return &r.Reference
	case "transaction_status":
		return &r.TxStatus
	case "bank_status":
		return &r.BankStatus
	case "gateway_code":
		return &r.Code
	case "gateway_message":
		return &r.Message
	case "payment_method":
		return &r.Method
	case "gateway_time":
		return &r.TxTime
	case "version":
		return &r.Version
	case "created_at":
		return &r.CreatedAt
	case "updated_at":
		return &r.UpdatedAt
	}
	return new(any)
}

func (r *orderRow) order() domain.Order {
	o := domain.Order{
		ID:         r.ID,
		UserID:     r.UserID,
		TotalPrice: r.TotalPrice,
		Status:     domain.OrderStatus(r.Status),
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Reference.Valid || r.TxStatus.Valid || r.BankStatus.Valid {
		o.Transaction = &domain.Transaction{
			GatewayReference:  r.Reference.String,
			TransactionStatus: r.TxStatus.String,
			BankStatus:        r.BankStatus.String,
			GatewayCode:       r.Code.String,
			GatewayMessage:    r.Message.String,
			Method:            r.Method.String,
			Timestamp:         r.TxTime.String,
		}
	}
	return o
}
