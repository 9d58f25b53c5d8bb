package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/siap-dev/siap-atk-api/internal/models"
)

// ErrRequestNotPending signals an approve/reject attempt on a request that
// already left the pending state. Exactly one concurrent reviewer wins; every
// other attempt surfaces this error.
var ErrRequestNotPending = errors.New("request is not pending")

// RequestRepository persists supply requests and applies the approval unit of
// work: stock deduction, ledger append, and status flip commit together.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `id, requester_id, department, note, status, rejection_reason, reviewed_by, reviewed_at, created_at`

// Create inserts the request header and its lines in one transaction.
func (r *RequestRepository) Create(ctx context.Context, request *models.SupplyRequest) (err error) {
	if request.ID == "" {
		request.ID = NewRequestID()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertRequest = `INSERT INTO supply_requests (` + requestColumns + `)
VALUES (:id, :requester_id, :department, :note, :status, :rejection_reason, :reviewed_by, :reviewed_at, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertRequest, request); err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	const insertLine = `INSERT INTO request_lines (id, request_id, supply_id, requested_qty, granted_qty)
VALUES ($1, $2, $3, $4, 0)`
	for i := range request.Lines {
		line := &request.Lines[i]
		if line.ID == "" {
			line.ID = newID()
		}
		line.RequestID = request.ID
		if _, err = tx.ExecContext(ctx, insertLine, line.ID, line.RequestID, line.SupplyID, line.RequestedQty); err != nil {
			return fmt.Errorf("insert request line: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

// GetByID fetches a request with its lines.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.SupplyRequest, error) {
	var request models.SupplyRequest
	query := `SELECT ` + requestColumns + ` FROM supply_requests WHERE id = $1`
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &request.Lines,
		`SELECT id, request_id, supply_id, requested_qty, granted_qty FROM request_lines WHERE request_id = $1 ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("load request lines: %w", err)
	}
	return &request, nil
}

// List returns request headers matching the filter, latest first. Lines are
// hydrated by GetByID on demand.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.SupplyRequest, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + requestColumns + ` FROM supply_requests`)
	args := make([]interface{}, 0, 4)

	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.SupplyRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// ApprovalOutcome reports what a committed approval changed.
type ApprovalOutcome struct {
	Request   *models.SupplyRequest
	Mutations []models.StockMutation
}

// Approve runs the whole approval as one serialized unit: lock the request
// row, lock each supply row, clamp the grant to available stock, deduct,
// append one ledger entry per line, then flip the status. Any failure rolls
// the entire unit back.
func (r *RequestRepository) Approve(ctx context.Context, id, reviewerID string, now time.Time) (outcome *ApprovalOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approve: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var request models.SupplyRequest
	if err = tx.GetContext(ctx, &request,
		`SELECT `+requestColumns+` FROM supply_requests WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	if request.Status != models.RequestStatusPending {
		err = ErrRequestNotPending
		return nil, err
	}

	if err = tx.SelectContext(ctx, &request.Lines,
		`SELECT id, request_id, supply_id, requested_qty, granted_qty FROM request_lines WHERE request_id = $1 ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("load request lines: %w", err)
	}

	mutations := make([]models.StockMutation, 0, len(request.Lines))
	for i := range request.Lines {
		line := &request.Lines[i]

		var stock int
		if err = tx.GetContext(ctx, &stock,
			`SELECT stock_qty FROM supplies WHERE id = $1 FOR UPDATE`, line.SupplyID); err != nil {
			return nil, fmt.Errorf("lock supply %s: %w", line.SupplyID, err)
		}

		granted := models.GrantQuantity(line.RequestedQty, stock)
		line.GrantedQty = granted
		after := stock - granted

		if _, err = tx.ExecContext(ctx,
			`UPDATE supplies SET stock_qty = $1, updated_at = $2 WHERE id = $3`, after, now, line.SupplyID); err != nil {
			return nil, fmt.Errorf("deduct supply %s: %w", line.SupplyID, err)
		}
		if _, err = tx.ExecContext(ctx,
			`UPDATE request_lines SET granted_qty = $1 WHERE id = $2`, granted, line.ID); err != nil {
			return nil, fmt.Errorf("update line grant: %w", err)
		}

		mutation := models.StockMutation{
			ID:          newID(),
			SupplyID:    line.SupplyID,
			Kind:        models.MutationOut,
			Quantity:    granted,
			StockBefore: stock,
			StockAfter:  after,
			RequestID:   &request.ID,
			ActorID:     reviewerID,
			CreatedAt:   now,
		}
		if err = insertMutationTx(ctx, tx, &mutation); err != nil {
			return nil, err
		}
		mutations = append(mutations, mutation)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE supply_requests SET status = $1, reviewed_by = $2, reviewed_at = $3 WHERE id = $4 AND status = $5`,
		models.RequestStatusCompleted, reviewerID, now, id, models.RequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("complete request: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check request completion: %w", err)
	}
	if rows == 0 {
		err = ErrRequestNotPending
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approve: %w", err)
	}

	request.Status = models.RequestStatusCompleted
	request.ReviewedBy = &reviewerID
	request.ReviewedAt = &now
	return &ApprovalOutcome{Request: &request, Mutations: mutations}, nil
}

// Reject flips a pending request to rejected. The conditional update keeps
// terminal states immutable under concurrent reviewers.
func (r *RequestRepository) Reject(ctx context.Context, id, reviewerID, reason string, now time.Time) (*models.SupplyRequest, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE supply_requests SET status = $1, rejection_reason = $2, reviewed_by = $3, reviewed_at = $4 WHERE id = $5 AND status = $6`,
		models.RequestStatusRejected, reason, reviewerID, now, id, models.RequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("reject request: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check request rejection: %w", err)
	}
	if rows == 0 {
		return nil, ErrRequestNotPending
	}
	return r.GetByID(ctx, id)
}

// NewRequestID generates an identifier with the REQ- prefix clients key on.
func NewRequestID() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("REQ-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("REQ-%s-%s", time.Now().UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}
