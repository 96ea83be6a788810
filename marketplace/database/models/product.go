package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID         string `bun:"id,pk"`
	Name       string `bun:"name,notnull"`
	Price      int64  `bun:"price,notnull"`
	Stock      int    `bun:"stock,notnull"`
	StockTotal int    `bun:"stock_total,notnull"`

	// Bundle accounting: bundles*units_per_bundle tracks stock for
	// bundle-sold products.
	UnitsPerBundle   int  `bun:"units_per_bundle,notnull,default:0"`
	Bundles          int  `bun:"bundles,notnull,default:0"`
	SellOnlyByBundle bool `bun:"sell_only_by_bundle,notnull,default:false"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// StockReservation is an advisory record written after a successful stock
// decrement. It is not transactional with the decrement and is used for
// diagnostics and expiry sweeps only.
type StockReservation struct {
	bun.BaseModel `bun:"table:stock_reservations,alias:sr"`

	ID        string    `bun:"id,pk"`
	ProductID string    `bun:"product_id,notnull"`
	Quantity  int       `bun:"quantity,notnull"`
	UserID    string    `bun:"user_id,notnull,default:''"`
	OrderID   string    `bun:"order_id,notnull,default:''"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	Released  bool      `bun:"released,notnull,default:false"`
}
