package domain

import "github.com/google/uuid"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID      uuid.UUID
	Name    string
	Email   string
	Phone   string
	Address string
	Role    Role
}

func (u User) Buyer() Buyer {
	return Buyer{Name: u.Name, Email: u.Email, Phone: u.Phone, Address: u.Address}
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}

func (p Principal) Elevated() bool {
	return p.Role == RoleAdmin
}
