package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bike-storefront/internal/domain"
	"bike-storefront/internal/query"

	"github.com/google/uuid"
)

// BikeResource is the listable view of the catalog.
var BikeResource = &query.Resource{
	Table: "bikes",
	Fields: []query.Field{
		{Name: "_id", Column: "id", Kind: query.UUID},
		{Name: "name", Column: "name"},
		{Name: "brand", Column: "brand"},
		{Name: "model", Column: "model"},
		{Name: "description", Column: "description"},
		{Name: "category", Column: "category"},
		{Name: "riderType", Column: "rider_type"},
		{Name: "price", Column: "price", Kind: query.Number},
		{Name: "quantity", Column: "quantity", Kind: query.Integer},
		{Name: "inStock", Column: "in_stock", Kind: query.Bool},
		{Name: "createdAt", Column: "created_at", Kind: query.Time},
		{Name: "updatedAt", Column: "updated_at", Kind: query.Time},
		{Name: "version", Column: "version", Kind: query.Integer},
	},
	Key:        "_id",
	Created:    "createdAt",
	Hidden:     "version",
	Price:      "price",
	Searchable: []string{"name", "brand", "model", "category"},
	Enums: map[string][]string{
		"category":  domain.BikeCategories,
		"riderType": domain.RiderTypes,
	},
}

const bikeColumns = `id, name, brand, model, description, category, rider_type, price, quantity, in_stock,
	version, created_at, updated_at`

// BikeRepo is the inventory ledger. Debit is the only way stock goes down.
type BikeRepo interface {
	Create(ctx context.Context, tx *sql.Tx, bike *domain.Bike) error
	FindById(ctx context.Context, id uuid.UUID) (*domain.Bike, error)
	GetStock(ctx context.Context, tx *sql.Tx, id uuid.UUID) (domain.Stock, error)
	// Debit removes amount units in one conditional statement. It fails with
	// domain.ErrInsufficientStock when fewer than amount units remain.
	Debit(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount int) error
	List(ctx context.Context, b *query.Builder) ([]domain.Bike, int, error)
}

type bikeRepo struct {
	db *sql.DB
}

func NewBikeRepo(db *sql.DB) BikeRepo {
	return &bikeRepo{db: db}
}

func (r *bikeRepo) Create(ctx context.Context, tx *sql.Tx, bike *domain.Bike) error {
	now := time.Now().UTC()
	if bike.ID == uuid.Nil {
		bike.ID = uuid.New()
	}
	bike.CreatedAt, bike.UpdatedAt = now, now
	bike.InStock = bike.Quantity > 0

	_, err := pick(r.db, tx).ExecContext(ctx,
		"INSERT INTO bikes ("+bikeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		bike.ID, bike.Name, bike.Brand, bike.Model, bike.Description, bike.Category, bike.RiderType,
		bike.Price, bike.Quantity, bike.InStock, bike.Version, bike.CreatedAt, bike.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgCheckViolation {
			return fmt.Errorf("%w: bike %q: %v", domain.ErrValidation, bike.Name, err)
		}
		return fmt.Errorf("insert bike: %w", err)
	}
	return nil
}

func (r *bikeRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.Bike, error) {
	var b domain.Bike
	err := r.db.QueryRowContext(ctx, "SELECT "+bikeColumns+" FROM bikes WHERE id = $1", id).Scan(
		&b.ID, &b.Name, &b.Brand, &b.Model, &b.Description, &b.Category, &b.RiderType,
		&b.Price, &b.Quantity, &b.InStock, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "bike %s", id)
	}
	return &b, nil
}

func (r *bikeRepo) GetStock(ctx context.Context, tx *sql.Tx, id uuid.UUID) (domain.Stock, error) {
	var s domain.Stock
	err := pick(r.db, tx).QueryRowContext(ctx,
		`SELECT price, quantity, in_stock FROM bikes WHERE id = $1`, id,
	).Scan(&s.Price, &s.Quantity, &s.InStock)
	if err != nil {
		return domain.Stock{}, notFound(err, "bike %s", id)
	}
	return s, nil
}

func (r *bikeRepo) Debit(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debit amount %d", domain.ErrInvalidOrder, amount)
	}
	q := pick(r.db, tx)
	res, err := q.ExecContext(ctx,
		`UPDATE bikes
		 SET quantity = quantity - $2,
		     in_stock = CASE WHEN quantity - $2 = 0 THEN false ELSE in_stock END,
		     version = version + 1,
		     updated_at = now()
		 WHERE id = $1 AND quantity >= $2`,
		id, amount)
	if err != nil {
		return fmt.Errorf("debit bike %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Nothing matched: either the bike is gone or the stock is short.
	var have int
	if err := q.QueryRowContext(ctx, `SELECT quantity FROM bikes WHERE id = $1`, id).Scan(&have); err != nil {
		return notFound(err, "bike %s", id)
	}
	return fmt.Errorf("%w: bike %s has %d, need %d", domain.ErrInsufficientStock, id, have, amount)
}

func (r *bikeRepo) List(ctx context.Context, b *query.Builder) ([]domain.Bike, int, error) {
	countSQL, countArgs := b.CountSQL()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bikes: %w", err)
	}

	stmt, args := b.SelectSQL()
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bikes: %w", err)
	}
	defer rows.Close()

	cols := b.Columns()
	bikes := []domain.Bike{}
	for rows.Next() {
		var bike domain.Bike
		dest := make([]any, len(cols))
		for i, c := range cols {
			dest[i] = bikeTarget(&bike, c.Column)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, err
		}
		bikes = append(bikes, bike)
	}
	return bikes, total, rows.Err()
}

func bikeTarget(b *domain.Bike, column string) any {
	switch column {
	case "id":
		return &b.ID
	case "name":
		return &b.Name
	case "brand":
		return &b.Brand
	case "model":
		return &b.Model
	case "description":
		return &b.Description
	case "category":
		return &b.Category
	case "rider_type":
		return &b.RiderType
	case "price":
		return &b.Price
	case "quantity":
		return &b.Quantity
	case "in_stock":
		return &b.InStock
	case "version":
		return &b.Version
	case "created_at":
		return &b.CreatedAt
	case "updated_at":
		return &b.UpdatedAt
	}
	return new(any)
}
