package models

import "time"

// Supply is a stocked office-supply item. StockQty is only ever changed by
// code paths that also append a StockMutation, and it never goes negative.
type Supply struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Unit      string    `db:"unit" json:"unit"`
	StockQty  int       `db:"stock_qty" json:"stock_qty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SupplyFilter constrains supply listing queries.
type SupplyFilter struct {
	Search   string
	Page     int
	PageSize int
}
