package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-gateway/internal/dto"
	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
	"github.com/noah-isme/qr-attendance-gateway/pkg/jobs"
)

const jobTypeSessionHistory = "qr_session_history"

type sessionHistoryRepository interface {
	Create(ctx context.Context, entry *models.SessionHistory) error
	List(ctx context.Context, filter models.SessionHistoryFilter) ([]models.SessionHistory, int, error)
}

// SessionHistoryService writes stopped session summaries in the background and lists them.
type SessionHistoryService struct {
	repo   sessionHistoryRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewSessionHistoryService constructs the service. A nil repo disables history.
func NewSessionHistoryService(repo sessionHistoryRepository, retries int, logger *zap.Logger) *SessionHistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &SessionHistoryService{repo: repo, logger: logger}
	if repo != nil {
		svc.queue = jobs.NewQueue("session-history", svc.handle, jobs.QueueConfig{
			Workers:    2,
			MaxRetries: retries,
			RetryDelay: 2 * time.Second,
			Logger:     logger,
		})
	}
	return svc
}

// Enabled reports whether history is stored.
func (s *SessionHistoryService) Enabled() bool {
	return s != nil && s.repo != nil
}

// Start launches the background writers.
func (s *SessionHistoryService) Start(ctx context.Context) {
	if s.Enabled() {
		s.queue.Start(ctx)
	}
}

// Stop drains pending writes.
func (s *SessionHistoryService) Stop() {
	if s.Enabled() {
		s.queue.Stop()
	}
}

// Record queues entry for persistence. It is a no-op when history is disabled.
func (s *SessionHistoryService) Record(ctx context.Context, entry *models.SessionHistory) error {
	if !s.Enabled() || entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return s.queue.Enqueue(jobs.Job{ID: entry.ID, Type: jobTypeSessionHistory, Payload: entry})
}

func (s *SessionHistoryService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.SessionHistory)
	if !ok {
		s.logger.Error("unexpected history payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("persist session history %s: %w", entry.SessionID, err)
	}
	s.logger.Debug("session history stored", zap.String("session_id", entry.SessionID))
	return nil
}

// List returns a page of the teacher's stopped sessions.
func (s *SessionHistoryService) List(ctx context.Context, teacherID string, query dto.HistoryQuery) ([]models.SessionHistory, *models.Pagination, error) {
	if !s.Enabled() {
		return nil, nil, appErrors.ErrHistoryDisabled
	}
	filter := models.SessionHistoryFilter{TeacherID: teacherID, Page: query.Page, PageSize: query.PageSize}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	var err error
	if filter.DateFrom, err = parseOptionalDate(query.DateFrom); err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD")
	}
	if filter.DateTo, err = parseOptionalDate(query.DateTo); err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD")
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list session history")
	}
	if items == nil {
		items = []models.SessionHistory{}
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func parseOptionalDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
