package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siap-dev/siap-atk-api/internal/models"
)

func TestSupplyRepositoryCreateWithOpeningStock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSupplyRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO supplies")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stock_mutations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	supply := &models.Supply{Name: "Kertas A4", Unit: "rim", StockQty: 20}
	err := repo.Create(context.Background(), supply, "admin-1")
	require.NoError(t, err)
	assert.NotEmpty(t, supply.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSupplyRepositoryCreateZeroStockSkipsLedger(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSupplyRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO supplies")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), &models.Supply{Name: "Spidol", Unit: "pcs"}, "admin-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSupplyRepositoryDeductWritesLedgerEntry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSupplyRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT stock_qty FROM supplies WHERE id = $1 FOR UPDATE")).
		WithArgs("supply-1").
		WillReturnRows(sqlmock.NewRows([]string{"stock_qty"}).AddRow(10))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE supplies SET stock_qty = $1")).
		WithArgs(7, sqlmock.AnyArg(), "supply-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stock_mutations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mutation, err := repo.Deduct(context.Background(), "supply-1", 3, "admin-1", "pemakaian rapat")
	require.NoError(t, err)
	assert.Equal(t, models.MutationOut, mutation.Kind)
	assert.Equal(t, 3, mutation.Quantity)
	assert.Equal(t, 10, mutation.StockBefore)
	assert.Equal(t, 7, mutation.StockAfter)
	assert.Nil(t, mutation.RequestID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSupplyRepositoryDeductInsufficientStock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSupplyRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT stock_qty FROM supplies WHERE id = $1 FOR UPDATE")).
		WithArgs("supply-1").
		WillReturnRows(sqlmock.NewRows([]string{"stock_qty"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.Deduct(context.Background(), "supply-1", 5, "admin-1", "")
	assert.ErrorIs(t, err, ErrInsufficientStock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSupplyRepositoryRestock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSupplyRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT stock_qty FROM supplies WHERE id = $1 FOR UPDATE")).
		WithArgs("supply-1").
		WillReturnRows(sqlmock.NewRows([]string{"stock_qty"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE supplies SET stock_qty = $1")).
		WithArgs(12, sqlmock.AnyArg(), "supply-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stock_mutations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mutation, err := repo.Restock(context.Background(), "supply-1", 10, "admin-1", "pengadaan")
	require.NoError(t, err)
	assert.Equal(t, models.MutationIn, mutation.Kind)
	assert.Equal(t, 12, mutation.StockAfter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSupplyRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSupplyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE supplies SET name = $1, unit = $2")).
		WithArgs("Kertas A4", "rim", sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), "missing", "Kertas A4", "rim")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
