package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acmst-college/admission-api/internal/models"
)

func TestConditionUpdateStateAlreadyResolved(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConditionRepository(db)

	mock.ExpectExec("UPDATE coordinator_conditions").WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now().UTC()
	err := repo.UpdateState(context.Background(), "cond-1", models.ConditionCompleted, &now, "done")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConditionMarkOverdueIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConditionRepository(db)

	mock.ExpectExec("UPDATE coordinator_conditions").WillReturnResult(sqlmock.NewResult(0, 3))

	flagged, err := repo.MarkOverdue(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 3, flagged)

	// Second sweep has nothing left to flag.
	mock.ExpectExec("UPDATE coordinator_conditions").WillReturnResult(sqlmock.NewResult(0, 0))
	flagged, err = repo.MarkOverdue(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 0, flagged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConditionSummary(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConditionRepository(db)

	rows := sqlmock.NewRows([]string{"total", "pending", "completed", "rejected", "overdue"}).
		AddRow(5, 2, 1, 1, 1)
	mock.ExpectQuery("SELECT").WithArgs("file-1").WillReturnRows(rows)

	summary, err := repo.Summary(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 2, summary.Pending)
	assert.Equal(t, 1, summary.Overdue)
	assert.NoError(t, mock.ExpectationsWereMet())
}
