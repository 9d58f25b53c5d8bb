package models

import "time"

// MutationKind distinguishes stock additions from deductions.
type MutationKind string

const (
	MutationIn  MutationKind = "in"
	MutationOut MutationKind = "out"
)

// StockMutation is one entry of the append-only stock ledger. For every
// mutation stock_after = stock_before + qty (in) or stock_before - qty (out),
// and stock_before equals the supply's stock immediately preceding it.
type StockMutation struct {
	ID          string       `db:"id" json:"id"`
	SupplyID    string       `db:"supply_id" json:"supply_id"`
	Kind        MutationKind `db:"kind" json:"kind"`
	Quantity    int          `db:"quantity" json:"quantity"`
	StockBefore int          `db:"stock_before" json:"stock_before"`
	StockAfter  int          `db:"stock_after" json:"stock_after"`
	RequestID   *string      `db:"request_id" json:"request_id,omitempty"`
	ActorID     string       `db:"actor_id" json:"actor_id"`
	Note        string       `db:"note" json:"note"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// MutationFilter constrains ledger listing queries.
type MutationFilter struct {
	SupplyID  string
	Kind      MutationKind
	RequestID string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
