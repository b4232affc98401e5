package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acmst-college/admission-api/internal/models"
)

const admissionColumns = `id, file_number, applicant_name, national_id, email, phone, gender, birth_date,
       nationality, address, emergency_contact, emergency_phone, program_id, batch_id, academic_level,
       state, submission_method, application_date,
       ministry_approval_date, ministry_approver_id, health_check_date, health_approver_id,
       coordinator_approval_date, coordinator_id, manager_approval_date, manager_id, student_id,
       created_at, updated_at`

// AdmissionRepository persists admission files.
type AdmissionRepository struct {
	db *sqlx.DB
}

// NewAdmissionRepository constructs the repository.
func NewAdmissionRepository(db *sqlx.DB) *AdmissionRepository {
	return &AdmissionRepository{db: db}
}

// Create inserts a new admission file in state "new".
func (r *AdmissionRepository) Create(ctx context.Context, file *models.AdmissionFile) error {
	now := time.Now().UTC()
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.State == "" {
		file.State = models.StateNew
	}
	if file.ApplicationDate.IsZero() {
		file.ApplicationDate = now
	}
	file.CreatedAt = now
	file.UpdatedAt = now
	const query = `INSERT INTO admission_files
	(id, file_number, applicant_name, national_id, email, phone, gender, birth_date,
	 nationality, address, emergency_contact, emergency_phone, program_id, batch_id, academic_level,
	 state, submission_method, application_date, created_at, updated_at)
	VALUES (:id, :file_number, :applicant_name, :national_id, :email, :phone, :gender, :birth_date,
	 :nationality, :address, :emergency_contact, :emergency_phone, :program_id, :batch_id, :academic_level,
	 :state, :submission_method, :application_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("create admission file: %w", err)
	}
	return nil
}

// GetByID fetches one admission file.
func (r *AdmissionRepository) GetByID(ctx context.Context, id string) (*models.AdmissionFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM admission_files WHERE id = $1`, admissionColumns)
	var file models.AdmissionFile
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		return nil, err
	}
	return &file, nil
}

// GetByFileNumber fetches a file by its assigned number.
func (r *AdmissionRepository) GetByFileNumber(ctx context.Context, fileNumber string) (*models.AdmissionFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM admission_files WHERE file_number = $1`, admissionColumns)
	var file models.AdmissionFile
	if err := r.db.GetContext(ctx, &file, query, fileNumber); err != nil {
		return nil, err
	}
	return &file, nil
}

// ExistsByNationalID reports whether an active (non-cancelled) file already
// exists for the national ID.
func (r *AdmissionRepository) ExistsByNationalID(ctx context.Context, nationalID string) (bool, error) {
	const query = `SELECT COUNT(1) FROM admission_files WHERE national_id = $1 AND state <> 'cancelled'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, nationalID); err != nil {
		return false, fmt.Errorf("check national id: %w", err)
	}
	return count > 0, nil
}

// List returns admission files matching the filter plus the total count.
func (r *AdmissionRepository) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionFile, int, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 8)

	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ProgramID != "" {
		args = append(args, filter.ProgramID)
		conditions = append(conditions, fmt.Sprintf("program_id = $%d", len(args)))
	}
	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		conditions = append(conditions, fmt.Sprintf("batch_id = $%d", len(args)))
	}
	if filter.CoordinatorID != "" {
		args = append(args, filter.CoordinatorID)
		conditions = append(conditions, fmt.Sprintf("coordinator_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		idx := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(applicant_name ILIKE $%d OR national_id ILIKE $%d OR file_number ILIKE $%d)", idx, idx, idx))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(1) FROM admission_files"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count admission files: %w", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	query := fmt.Sprintf("SELECT %s FROM admission_files%s ORDER BY application_date DESC, id LIMIT %d OFFSET %d",
		admissionColumns, where, pageSize, (page-1)*pageSize)

	var files []models.AdmissionFile
	if err := r.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list admission files: %w", err)
	}
	return files, total, nil
}

// UpdateStateParams groups the columns a state transition may touch.
type UpdateStateParams struct {
	ID        string
	FromState models.AdmissionState
	ToState   models.AdmissionState

	FileNumber              *string
	AcademicLevel           *models.AcademicLevel
	MinistryApprovalDate    *time.Time
	MinistryApproverID      *string
	HealthCheckDate         *time.Time
	HealthApproverID        *string
	CoordinatorApprovalDate *time.Time
	CoordinatorID           *string
	ManagerApprovalDate     *time.Time
	ManagerID               *string
}

// UpdateState performs a guarded transition: the row is only updated while it
// is still in FromState, so concurrent reviewers cannot double-apply a
// decision. Returns sql.ErrNoRows when another writer won.
func (r *AdmissionRepository) UpdateState(ctx context.Context, params UpdateStateParams) error {
	setParts := []string{"state = :to_state", "updated_at = :updated_at"}
	named := map[string]interface{}{
		"id":         params.ID,
		"from_state": params.FromState,
		"to_state":   params.ToState,
		"updated_at": time.Now().UTC(),
	}
	if params.FileNumber != nil {
		setParts = append(setParts, "file_number = :file_number")
		named["file_number"] = *params.FileNumber
	}
	if params.AcademicLevel != nil {
		setParts = append(setParts, "academic_level = :academic_level")
		named["academic_level"] = *params.AcademicLevel
	}
	if params.MinistryApprovalDate != nil {
		setParts = append(setParts, "ministry_approval_date = :ministry_approval_date", "ministry_approver_id = :ministry_approver_id")
		named["ministry_approval_date"] = *params.MinistryApprovalDate
		named["ministry_approver_id"] = params.MinistryApproverID
	}
	if params.HealthCheckDate != nil {
		setParts = append(setParts, "health_check_date = :health_check_date", "health_approver_id = :health_approver_id")
		named["health_check_date"] = *params.HealthCheckDate
		named["health_approver_id"] = params.HealthApproverID
	}
	if params.CoordinatorApprovalDate != nil {
		setParts = append(setParts, "coordinator_approval_date = :coordinator_approval_date")
		named["coordinator_approval_date"] = *params.CoordinatorApprovalDate
	}
	if params.CoordinatorID != nil {
		setParts = append(setParts, "coordinator_id = :coordinator_id")
		named["coordinator_id"] = *params.CoordinatorID
	}
	if params.ManagerApprovalDate != nil {
		setParts = append(setParts, "manager_approval_date = :manager_approval_date", "manager_id = :manager_id")
		named["manager_approval_date"] = *params.ManagerApprovalDate
		named["manager_id"] = params.ManagerID
	}

	query := fmt.Sprintf("UPDATE admission_files SET %s WHERE id = :id AND state = :from_state",
		strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, named)
	if err != nil {
		return fmt.Errorf("update admission state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check admission update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetStudent links the created student record; guarded on the completed state.
func (r *AdmissionRepository) SetStudent(ctx context.Context, fileID, studentID string) error {
	const query = `UPDATE admission_files SET student_id = $1, updated_at = $2
	WHERE id = $3 AND state = 'completed' AND student_id IS NULL`
	result, err := r.db.ExecContext(ctx, query, studentID, time.Now().UTC(), fileID)
	if err != nil {
		return fmt.Errorf("set student on admission file: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check set student rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateApplicantData replaces the editable applicant fields. Only legal in
// early states; the caller enforces which.
func (r *AdmissionRepository) UpdateApplicantData(ctx context.Context, file *models.AdmissionFile) error {
	file.UpdatedAt = time.Now().UTC()
	const query = `UPDATE admission_files SET
	 applicant_name = :applicant_name, national_id = :national_id, email = :email, phone = :phone,
	 gender = :gender, birth_date = :birth_date, nationality = :nationality, address = :address,
	 emergency_contact = :emergency_contact, emergency_phone = :emergency_phone,
	 program_id = :program_id, batch_id = :batch_id, updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, file)
	if err != nil {
		return fmt.Errorf("update applicant data: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check applicant update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByStateOlderThan returns files sitting in a state since before the
// cutoff, used by timeout rules.
func (r *AdmissionRepository) ListByStateOlderThan(ctx context.Context, state models.AdmissionState, cutoff time.Time, limit int) ([]models.AdmissionFile, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM admission_files
	WHERE state = $1 AND updated_at < $2 ORDER BY updated_at LIMIT %d`, admissionColumns, limit)
	var files []models.AdmissionFile
	if err := r.db.SelectContext(ctx, &files, query, state, cutoff); err != nil {
		return nil, fmt.Errorf("list stale admission files: %w", err)
	}
	return files, nil
}

// CountByState returns the number of files per state for the dashboard.
func (r *AdmissionRepository) CountByState(ctx context.Context) (map[models.AdmissionState]int, error) {
	const query = `SELECT state, COUNT(1) AS total FROM admission_files GROUP BY state`
	rows := []struct {
		State models.AdmissionState `db:"state"`
		Total int                   `db:"total"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count admission files by state: %w", err)
	}
	counts := make(map[models.AdmissionState]int, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Total
	}
	return counts, nil
}

// NextFileSequence reserves the next file number sequence value for a year.
func (r *AdmissionRepository) NextFileSequence(ctx context.Context, year int) (int, error) {
	const query = `INSERT INTO admission_file_sequences (year, last_value)
	VALUES ($1, 1)
	ON CONFLICT (year) DO UPDATE SET last_value = admission_file_sequences.last_value + 1
	RETURNING last_value`
	var value int
	if err := r.db.GetContext(ctx, &value, query, year); err != nil {
		return 0, fmt.Errorf("next file sequence: %w", err)
	}
	return value, nil
}
