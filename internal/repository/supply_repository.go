package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/siap-dev/siap-atk-api/internal/models"
)

// ErrInsufficientStock signals a strict deduction that would drive stock
// negative. The transaction is rolled back and no ledger entry is written.
var ErrInsufficientStock = errors.New("insufficient stock")

// SupplyRepository owns the supplies table and the direct stock adjustments
// that bypass the request workflow.
type SupplyRepository struct {
	db *sqlx.DB
}

// NewSupplyRepository constructs the repository.
func NewSupplyRepository(db *sqlx.DB) *SupplyRepository {
	return &SupplyRepository{db: db}
}

const supplyColumns = `id, name, unit, stock_qty, created_at, updated_at`

// Create inserts a new supply. Opening stock above zero is recorded as an
// inbound ledger entry so the trail starts from zero.
func (r *SupplyRepository) Create(ctx context.Context, supply *models.Supply, actorID string) (err error) {
	now := time.Now().UTC()
	if supply.ID == "" {
		supply.ID = newID()
	}
	supply.CreatedAt = now
	supply.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create supply: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO supplies (` + supplyColumns + `)
VALUES (:id, :name, :unit, :stock_qty, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, supply); err != nil {
		return fmt.Errorf("insert supply: %w", err)
	}

	if supply.StockQty > 0 {
		mutation := models.StockMutation{
			SupplyID:    supply.ID,
			Kind:        models.MutationIn,
			Quantity:    supply.StockQty,
			StockBefore: 0,
			StockAfter:  supply.StockQty,
			ActorID:     actorID,
			Note:        "initial stock",
			CreatedAt:   now,
		}
		if err = insertMutationTx(ctx, tx, &mutation); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create supply: %w", err)
	}
	return nil
}

// GetByID fetches one supply.
func (r *SupplyRepository) GetByID(ctx context.Context, id string) (*models.Supply, error) {
	var supply models.Supply
	query := `SELECT ` + supplyColumns + ` FROM supplies WHERE id = $1`
	if err := r.db.GetContext(ctx, &supply, query, id); err != nil {
		return nil, err
	}
	return &supply, nil
}

// List returns supplies matching the filter plus the total count for paging.
func (r *SupplyRepository) List(ctx context.Context, filter models.SupplyFilter) ([]models.Supply, int, error) {
	where := ""
	args := make([]interface{}, 0, 1)
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where = " WHERE LOWER(name) LIKE $1"
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM supplies`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count supplies: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	query := `SELECT ` + supplyColumns + ` FROM supplies` + where +
		fmt.Sprintf(" ORDER BY name ASC LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	var supplies []models.Supply
	if err := r.db.SelectContext(ctx, &supplies, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list supplies: %w", err)
	}
	return supplies, total, nil
}

// Update renames a supply or changes its unit. Stock is untouched here.
func (r *SupplyRepository) Update(ctx context.Context, id, name, unit string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE supplies SET name = $1, unit = $2, updated_at = $3 WHERE id = $4`,
		name, unit, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update supply: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check supply update: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deduct removes quantity from stock under a row lock. Unlike approval
// clamping, a direct deduction never partially fulfils: short stock aborts
// with ErrInsufficientStock.
func (r *SupplyRepository) Deduct(ctx context.Context, supplyID string, quantity int, actorID, note string) (*models.StockMutation, error) {
	return r.adjust(ctx, supplyID, quantity, models.MutationOut, actorID, note)
}

// Restock adds quantity to stock and records an inbound ledger entry.
func (r *SupplyRepository) Restock(ctx context.Context, supplyID string, quantity int, actorID, note string) (*models.StockMutation, error) {
	return r.adjust(ctx, supplyID, quantity, models.MutationIn, actorID, note)
}

func (r *SupplyRepository) adjust(ctx context.Context, supplyID string, quantity int, kind models.MutationKind, actorID, note string) (mutation *models.StockMutation, err error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin stock adjust: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var stock int
	if err = tx.GetContext(ctx, &stock,
		`SELECT stock_qty FROM supplies WHERE id = $1 FOR UPDATE`, supplyID); err != nil {
		return nil, err
	}

	after := stock + quantity
	if kind == models.MutationOut {
		after = stock - quantity
		if after < 0 {
			err = ErrInsufficientStock
			return nil, err
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE supplies SET stock_qty = $1, updated_at = $2 WHERE id = $3`, after, now, supplyID); err != nil {
		return nil, fmt.Errorf("adjust supply stock: %w", err)
	}

	entry := models.StockMutation{
		SupplyID:    supplyID,
		Kind:        kind,
		Quantity:    quantity,
		StockBefore: stock,
		StockAfter:  after,
		ActorID:     actorID,
		Note:        note,
		CreatedAt:   now,
	}
	if err = insertMutationTx(ctx, tx, &entry); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stock adjust: %w", err)
	}
	return &entry, nil
}
