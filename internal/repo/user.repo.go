package repo

import (
	"context"
	"database/sql"
	"fmt"

	"bike-storefront/internal/domain"

	"github.com/google/uuid"
)

type UserRepo interface {
	Create(ctx context.Context, tx *sql.Tx, user *domain.User) error
	FindById(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type userRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, tx *sql.Tx, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}
	_, err := pick(r.db, tx).ExecContext(ctx,
		`INSERT INTO users (id, name, email, phone, address, role) VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Name, user.Email, user.Phone, user.Address, user.Role)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("%w: email %s already registered", domain.ErrConflict, user.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, address, role FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Address, &u.Role)
	if err != nil {
		return nil, notFound(err, "user %s", id)
	}
	return &u, nil
}
