package repository

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acmst-college/admission-api/internal/models"
)

func TestPendingEmailCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPendingEmailRepository(db)

	mock.ExpectExec("INSERT INTO pending_emails").WillReturnResult(sqlmock.NewResult(1, 1))

	email := &models.PendingEmail{
		TemplateRef: "admission_submitted",
		RecordID:    "file-1",
		ModelName:   "admission_file",
	}
	err := repo.Create(context.Background(), email)
	require.NoError(t, err)
	assert.NotEmpty(t, email.ID)
	assert.Equal(t, models.EmailPending, email.State)
	assert.Equal(t, models.PriorityMedium, email.Priority)
	assert.Equal(t, 3, email.MaxRetries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingEmailRecordAttempt(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPendingEmailRepository(db)

	mock.ExpectExec("UPDATE pending_emails SET").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordAttempt(context.Background(), "email-1", "smtp timeout")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingEmailMarkSentAlreadyResolved(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPendingEmailRepository(db)

	mock.ExpectExec("UPDATE pending_emails SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkSent(context.Background(), "email-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingEmailSummary(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPendingEmailRepository(db)

	rows := sqlmock.NewRows([]string{"total", "pending", "sent", "failed", "cancelled"}).
		AddRow(10, 4, 3, 2, 1)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	summary, err := repo.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 4, summary.Pending)
	assert.Equal(t, 2, summary.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
