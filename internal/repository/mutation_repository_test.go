package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siap-dev/siap-atk-api/internal/models"
)

func TestMutationRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMutationRepository(db)

	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE supply_id = $1 AND kind = $2 AND created_at >= $3")).
		WithArgs("supply-1", models.MutationOut, from).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "supply_id", "kind", "quantity", "stock_before", "stock_after",
			"request_id", "actor_id", "note", "created_at",
		}).AddRow("mut-1", "supply-1", "out", 4, 10, 6, "REQ-1", "admin-1", "", now))

	mutations, err := repo.List(context.Background(), models.MutationFilter{
		SupplyID: "supply-1",
		Kind:     models.MutationOut,
		From:     &from,
	})
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.Equal(t, "mut-1", mutations[0].ID)
	assert.Equal(t, models.MutationOut, mutations[0].Kind)
	require.NotNil(t, mutations[0].RequestID)
	assert.Equal(t, "REQ-1", *mutations[0].RequestID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMutationRepositoryListForSupply(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMutationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM stock_mutations WHERE supply_id = $1 ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 0")).
		WithArgs("supply-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "supply_id", "kind", "quantity", "stock_before", "stock_after",
			"request_id", "actor_id", "note", "created_at",
		}))

	mutations, err := repo.ListForSupply(context.Background(), "supply-1", 20, 0)
	require.NoError(t, err)
	assert.Empty(t, mutations)
	require.NoError(t, mock.ExpectationsWereMet())
}
