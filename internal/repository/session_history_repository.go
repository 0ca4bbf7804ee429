package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
)

const sessionHistoryColumns = `id, session_id, teacher_id, college_id, academic_year_id, semester_id, division_id, subject_id, time_slot_id, session_date, source, started_at, expires_at, stopped_at, scan_count, created_at`

// SessionHistoryRepository persists summaries of stopped QR sessions.
type SessionHistoryRepository struct {
	db *sqlx.DB
}

// NewSessionHistoryRepository constructs the repository.
func NewSessionHistoryRepository(db *sqlx.DB) *SessionHistoryRepository {
	return &SessionHistoryRepository{db: db}
}

// Create inserts a history row, filling id and created_at when empty.
func (r *SessionHistoryRepository) Create(ctx context.Context, entry *models.SessionHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO qr_session_history (` + sessionHistoryColumns + `)
VALUES (:id, :session_id, :teacher_id, :college_id, :academic_year_id, :semester_id, :division_id, :subject_id, :time_slot_id, :session_date, :source, :started_at, :expires_at, :stopped_at, :scan_count, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create session history: %w", err)
	}
	return nil
}

// List returns a teacher's history ordered by stop time, newest first.
func (r *SessionHistoryRepository) List(ctx context.Context, filter models.SessionHistoryFilter) ([]models.SessionHistory, int, error) {
	conditions := []string{"teacher_id = $1"}
	args := []interface{}{filter.TeacherID}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("session_date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("session_date <= $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM qr_session_history WHERE " + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count session history: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf("SELECT %s FROM qr_session_history WHERE %s ORDER BY stopped_at DESC LIMIT $%d OFFSET $%d",
		sessionHistoryColumns, where, len(args)-1, len(args))

	var items []models.SessionHistory
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list session history: %w", err)
	}
	return items, total, nil
}
