package models

import "time"

// RequestStatus captures the supply request lifecycle. Transitions are
// pending -> completed and pending -> rejected only; terminal states are
// immutable.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusRejected  RequestStatus = "rejected"
)

// SupplyRequest is a staff request for office supplies awaiting review.
type SupplyRequest struct {
	ID              string        `db:"id" json:"id"`
	RequesterID     string        `db:"requester_id" json:"requester_id"`
	Department      string        `db:"department" json:"department"`
	Note            string        `db:"note" json:"note"`
	Status          RequestStatus `db:"status" json:"status"`
	RejectionReason *string       `db:"rejection_reason" json:"alasan_penolakan,omitempty"`
	ReviewedBy      *string       `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	Lines           []RequestLine `db:"-" json:"lines"`
}

// RequestLine is one requested supply item. GrantedQty is zero until
// approval; at approval it is clamped to the stock available at that moment.
type RequestLine struct {
	ID           string `db:"id" json:"id"`
	RequestID    string `db:"request_id" json:"request_id"`
	SupplyID     string `db:"supply_id" json:"supply_id"`
	RequestedQty int    `db:"requested_qty" json:"requested_qty"`
	GrantedQty   int    `db:"granted_qty" json:"granted_qty"`
}

// RequestFilter constrains request listing queries.
type RequestFilter struct {
	Status      []RequestStatus
	RequesterID string
	Department  string
	Limit       int
	Offset      int
}

// GrantQuantity is the partial-fulfilment policy applied at approval time:
// grant as much as requested, capped by what is in stock, never negative.
func GrantQuantity(requested, stock int) int {
	if requested <= 0 || stock <= 0 {
		return 0
	}
	if requested > stock {
		return stock
	}
	return requested
}
