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

func TestAdmissionCreateDefaultsState(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdmissionRepository(db)

	mock.ExpectExec("INSERT INTO admission_files").WillReturnResult(sqlmock.NewResult(1, 1))

	file := &models.AdmissionFile{
		ApplicantName:    "Sara Ahmed",
		NationalID:       "199901012345",
		Email:            "sara@example.com",
		ProgramID:        "prog-1",
		BatchID:          "batch-1",
		SubmissionMethod: models.SubmissionOffice,
	}
	err := repo.Create(context.Background(), file)
	require.NoError(t, err)
	assert.NotEmpty(t, file.ID)
	assert.Equal(t, models.StateNew, file.State)
	assert.False(t, file.ApplicationDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionUpdateStateGuard(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdmissionRepository(db)

	mock.ExpectExec("UPDATE admission_files SET").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateState(context.Background(), UpdateStateParams{
		ID:        "file-1",
		FromState: models.StateNew,
		ToState:   models.StateMinistryPending,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionUpdateStateLostRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdmissionRepository(db)

	// Another writer already moved the file; zero rows match the guard.
	mock.ExpectExec("UPDATE admission_files SET").WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now().UTC()
	approver := "user-1"
	err := repo.UpdateState(context.Background(), UpdateStateParams{
		ID:                   "file-1",
		FromState:            models.StateMinistryPending,
		ToState:              models.StateMinistryApproved,
		MinistryApprovalDate: &now,
		MinistryApproverID:   &approver,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionSetStudentOnlyOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdmissionRepository(db)

	mock.ExpectExec("UPDATE admission_files SET student_id").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStudent(context.Background(), "file-1", "student-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmissionCountByState(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdmissionRepository(db)

	rows := sqlmock.NewRows([]string{"state", "total"}).
		AddRow(string(models.StateNew), 4).
		AddRow(string(models.StateCompleted), 2)
	mock.ExpectQuery("SELECT state, COUNT").WillReturnRows(rows)

	counts, err := repo.CountByState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, counts[models.StateNew])
	assert.Equal(t, 2, counts[models.StateCompleted])
	assert.NoError(t, mock.ExpectationsWereMet())
}
