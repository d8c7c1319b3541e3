package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is a live catalog item.
type Product struct {
	ID       string
	Name     string
	Brand    string
	Category string
	Price    decimal.Decimal
}

// Repository reads the product catalog. Implementations return only live
// products; soft-deleted rows are never visible here.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
