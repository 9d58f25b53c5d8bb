package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/siap-dev/siap-atk-api/internal/models"
)

// MutationRepository reads the append-only stock ledger. Writes happen only
// inside the request and supply transactions through insertMutationTx.
type MutationRepository struct {
	db *sqlx.DB
}

// NewMutationRepository constructs the repository.
func NewMutationRepository(db *sqlx.DB) *MutationRepository {
	return &MutationRepository{db: db}
}

const mutationColumns = `id, supply_id, kind, quantity, stock_before, stock_after, request_id, actor_id, note, created_at`

// insertMutationTx appends one ledger row inside the caller's transaction so
// the entry commits or rolls back with the stock change it records.
func insertMutationTx(ctx context.Context, tx *sqlx.Tx, mutation *models.StockMutation) error {
	if mutation.ID == "" {
		mutation.ID = newID()
	}
	if mutation.CreatedAt.IsZero() {
		mutation.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO stock_mutations (` + mutationColumns + `)
VALUES (:id, :supply_id, :kind, :quantity, :stock_before, :stock_after, :request_id, :actor_id, :note, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, mutation); err != nil {
		return fmt.Errorf("insert stock mutation: %w", err)
	}
	return nil
}

// List returns ledger entries matching the filter, newest first.
func (r *MutationRepository) List(ctx context.Context, filter models.MutationFilter) ([]models.StockMutation, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + mutationColumns + ` FROM stock_mutations`)
	args := make([]interface{}, 0, 4)

	conditions := make([]string, 0, 4)
	if filter.SupplyID != "" {
		args = append(args, filter.SupplyID)
		conditions = append(conditions, fmt.Sprintf("supply_id = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.RequestID != "" {
		args = append(args, filter.RequestID)
		conditions = append(conditions, fmt.Sprintf("request_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC, id DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var mutations []models.StockMutation
	if err := r.db.SelectContext(ctx, &mutations, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list stock mutations: %w", err)
	}
	return mutations, nil
}

// ListForSupply is the common per-supply trail lookup.
func (r *MutationRepository) ListForSupply(ctx context.Context, supplyID string, limit, offset int) ([]models.StockMutation, error) {
	return r.List(ctx, models.MutationFilter{SupplyID: supplyID, Limit: limit, Offset: offset})
}

func newID() string {
	return uuid.NewString()
}
