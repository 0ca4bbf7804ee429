package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
)

type sessionLookup interface {
	FindQRSessions(ctx context.Context, scope models.Scope) ([]models.QRSessionRecord, error)
}

// SessionResolver looks up sessions already persisted for a class meeting.
type SessionResolver struct {
	api       sessionLookup
	validator *validator.Validate
	location  *time.Location
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionResolver constructs a resolver. Stored wall-clock times are read in loc.
func NewSessionResolver(api sessionLookup, validate *validator.Validate, loc *time.Location, metrics *MetricsService, logger *zap.Logger) *SessionResolver {
	if validate == nil {
		validate = validator.New()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionResolver{api: api, validator: validate, location: loc, metrics: metrics, logger: logger, now: time.Now}
}

// Ready reports whether scope is resolved enough to look sessions up.
func (r *SessionResolver) Ready(scope models.Scope) bool {
	return r.validator.Struct(scope) == nil
}

// FindExisting returns the first persisted session for scope, or nil when
// there is none. Expired sessions are returned too, flagged invalid.
func (r *SessionResolver) FindExisting(ctx context.Context, teacher models.TeacherContext, scope models.Scope) (*models.ExistingSession, error) {
	if err := r.validator.Struct(scope); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrScopeIncomplete, err, "")
	}

	start := time.Now()
	records, err := r.api.FindQRSessions(ctx, scope)
	r.metrics.ObserveUpstream("find_qr_sessions", err, time.Since(start))
	if err != nil {
		r.logger.Warn("lookup existing qr session failed", zap.String("teacher_id", teacher.TeacherID), zap.Error(err))
		return nil, upstreamError(err, "failed to check for an existing QR session")
	}

	for _, record := range records {
		if record.ID.IsZero() {
			continue
		}
		session := r.toSession(record, teacher, scope)
		valid := !session.Expired(r.now())
		if valid {
			r.logger.Info("existing qr session is still valid",
				zap.String("session_id", session.SessionID),
				zap.Time("expires_at", session.ExpiresAt))
		} else {
			r.logger.Info("existing qr session has expired",
				zap.String("session_id", session.SessionID),
				zap.Time("expires_at", session.ExpiresAt))
		}
		return &models.ExistingSession{Session: session, Valid: valid}, nil
	}
	return nil, nil
}

func (r *SessionResolver) toSession(record models.QRSessionRecord, teacher models.TeacherContext, requested models.Scope) models.QRSession {
	scope := models.Scope{
		AcademicYearID: orDefault(record.AcademicYearID.String(), requested.AcademicYearID),
		SemesterID:     orDefault(record.SemesterID.String(), requested.SemesterID),
		DivisionID:     orDefault(record.DivisionID.String(), requested.DivisionID),
		SubjectID:      orDefault(record.PaperID.String(), requested.SubjectID),
		TimeSlotID:     orDefault(record.TimeSlotID.String(), requested.TimeSlotID),
		Date:           orDefault(r.dateOnly(record.Date), requested.Date),
	}
	start, end := r.window(scope.Date, record.StartTime, record.EndTime)
	return models.QRSession{
		SessionID:     models.ExistingSessionPrefix + record.ID.String(),
		ServerID:      record.ID.String(),
		Source:        models.SessionSourceExisting,
		Scope:         scope,
		TeacherID:     teacher.TeacherID,
		CollegeID:     teacher.CollegeID,
		Timestamp:     start,
		ExpiresAt:     end,
		QRURL:         record.ShareableLink,
		ShortCode:     record.LaptopCode,
		ShareableLink: record.ShareableLink,
	}
}

// window resolves stored wall-clock times on date. An end before start rolls
// over to the next day; unparsable times yield zero values.
func (r *SessionResolver) window(date, startClock, endClock string) (time.Time, time.Time) {
	start := r.parseClock(date, startClock)
	end := r.parseClock(date, endClock)
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end
}

func (r *SessionResolver) parseClock(date, clock string) time.Time {
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}
	}
	for _, layout := range []string{models.ClockLayout, "15:04"} {
		if t, err := time.ParseInLocation(models.DateLayout+" "+layout, date+" "+clock, r.location); err == nil {
			return t
		}
	}
	return time.Time{}
}

// dateOnly reduces a stored date to the calendar day in the college time zone.
// Zoned timestamps such as 2026-10-16T18:30:00Z are converted first; zoneless
// ones are truncated.
func (r *SessionResolver) dateOnly(raw string) string {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(r.location).Format(models.DateLayout)
	}
	if len(raw) > len(models.DateLayout) {
		return raw[:len(models.DateLayout)]
	}
	return raw
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
