package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	BikeCategories = []string{"Mountain", "Road", "Hybrid", "Electric"}
	RiderTypes     = []string{"Men", "Women", "Kids"}
)

type Bike struct {
	ID          uuid.UUID       `json:"_id"`
	Name        string          `json:"name"`
	Brand       string          `json:"brand"`
	Model       string          `json:"model"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	RiderType   string          `json:"riderType"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	InStock     bool            `json:"inStock"`
	Version     int             `json:"-"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Stock is the ledger view of a catalog item.
type Stock struct {
	Price    decimal.Decimal
	Quantity int
	InStock  bool
}
