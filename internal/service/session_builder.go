package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	"github.com/noah-isme/qr-attendance-gateway/internal/repository"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
	"github.com/noah-isme/qr-attendance-gateway/pkg/storage"
)

const (
	defaultSessionDuration = 5 * time.Minute
	defaultJoinPath        = "/student/timetable/mark-attendance"
	sessionSuffixLength    = 6
	shortCodeLength        = 6
	base36Alphabet         = "0123456789abcdefghijklmnopqrstuvwxyz"
)

type sessionStore interface {
	SaveQRSession(ctx context.Context, payload models.SaveQRSessionPayload) (string, error)
}

type subjectLabeler interface {
	Label(ctx context.Context, teacherID, subjectID string) (subjectName, divisionName string)
}

// SessionBuilderConfig holds the join link and time window settings.
type SessionBuilderConfig struct {
	JoinOrigin      string
	JoinPath        string
	DefaultDuration time.Duration
	Location        *time.Location
}

// SessionBuilder creates, renders, uploads and persists new QR sessions.
type SessionBuilder struct {
	store     sessionStore
	labels    subjectLabeler
	renderer  QRRenderer
	uploader  storage.Uploader
	validator *validator.Validate
	cfg       SessionBuilderConfig
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionBuilder constructs a builder.
func NewSessionBuilder(store sessionStore, labels subjectLabeler, renderer QRRenderer, uploader storage.Uploader, validate *validator.Validate, cfg SessionBuilderConfig, metrics *MetricsService, logger *zap.Logger) *SessionBuilder {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = defaultSessionDuration
	}
	if cfg.JoinPath == "" {
		cfg.JoinPath = defaultJoinPath
	}
	if !strings.HasPrefix(cfg.JoinPath, "/") {
		cfg.JoinPath = "/" + cfg.JoinPath
	}
	cfg.JoinOrigin = strings.TrimRight(cfg.JoinOrigin, "/")
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &SessionBuilder{
		store:     store,
		labels:    labels,
		renderer:  renderer,
		uploader:  uploader,
		validator: validate,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Build generates a new session for the selection. No network call happens
// unless the selection is complete. durationMinutes <= 0 uses the default.
func (b *SessionBuilder) Build(ctx context.Context, teacher models.TeacherContext, sel models.Selection, durationMinutes int) (*models.QRSession, error) {
	if strings.TrimSpace(teacher.TeacherID) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "teacher id is not available")
	}
	if err := b.validator.Struct(sel); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrScopeIncomplete, err, "")
	}

	duration := b.cfg.DefaultDuration
	if durationMinutes > 0 {
		duration = time.Duration(durationMinutes) * time.Minute
	}

	now := b.now()
	sessionID := newSessionID(now)
	session := &models.QRSession{
		SessionID:             sessionID,
		Source:                models.SessionSourceGenerated,
		Scope:                 sel.Scope,
		TimetableID:           sel.TimetableID,
		TimetableAllocationID: sel.TimetableAllocationID,
		TeacherID:             teacher.TeacherID,
		CollegeID:             teacher.CollegeID,
		Timestamp:             now,
		ExpiresAt:             now.Add(duration),
		ShortCode:             shortCode(sessionID),
	}
	if b.labels != nil {
		session.SubjectName, session.DivisionName = b.labels.Label(ctx, teacher.TeacherID, sel.SubjectID)
	}

	joinURL, err := b.joinURL(session)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRenderFailed, err, "")
	}
	session.QRURL = joinURL
	session.ShareableLink = joinURL

	png, err := b.renderer.Render(joinURL)
	if err != nil {
		b.logger.Error("render qr code failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrRenderFailed, err, "")
	}

	start := time.Now()
	link, err := b.uploader.Upload(ctx, storage.Object{
		Key:         fmt.Sprintf("qr-sessions/%s/%s.png", teacher.TeacherID, sessionID),
		ContentType: "image/png",
		Data:        png,
		ExpiresAt:   session.ExpiresAt,
	})
	b.metrics.ObserveUpstream("upload_qr_image", err, time.Since(start))
	if err != nil {
		b.logger.Error("upload qr image failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrUploadFailed, err, repository.UpstreamMessage(err))
	}
	session.ImageURL = link

	start = time.Now()
	serverID, err := b.store.SaveQRSession(ctx, b.payload(session))
	b.metrics.ObserveUpstream("save_qr_session", err, time.Since(start))
	if err != nil {
		b.logger.Error("save qr session failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrPersistFailed, err, repository.UpstreamMessage(err))
	}
	session.ServerID = serverID

	b.logger.Info("qr session generated",
		zap.String("session_id", sessionID),
		zap.String("server_id", serverID),
		zap.String("teacher_id", teacher.TeacherID),
		zap.Duration("duration", duration),
	)
	return session, nil
}

func (b *SessionBuilder) joinURL(session *models.QRSession) (string, error) {
	descriptor := models.JoinDescriptor{
		SessionID:             session.SessionID,
		TeacherID:             session.TeacherID,
		CollegeID:             session.CollegeID,
		AcademicYearID:        session.Scope.AcademicYearID,
		SemesterID:            session.Scope.SemesterID,
		DivisionID:            session.Scope.DivisionID,
		SubjectID:             session.Scope.SubjectID,
		TimeSlotID:            session.Scope.TimeSlotID,
		TimetableID:           session.TimetableID,
		TimetableAllocationID: session.TimetableAllocationID,
		Date:                  session.Scope.Date,
		SubjectName:           session.SubjectName,
		DivisionName:          session.DivisionName,
		ShortCode:             session.ShortCode,
		Timestamp:             session.Timestamp.UnixMilli(),
		ExpiresAt:             session.ExpiresAt.UnixMilli(),
	}
	raw, err := json.Marshal(descriptor)
	if err != nil {
		return "", fmt.Errorf("marshal join descriptor: %w", err)
	}
	query := url.Values{}
	query.Set("s", base64.StdEncoding.EncodeToString(raw))
	return b.cfg.JoinOrigin + b.cfg.JoinPath + "?" + query.Encode(), nil
}

func (b *SessionBuilder) payload(session *models.QRSession) models.SaveQRSessionPayload {
	return models.SaveQRSessionPayload{
		SessionID:             session.SessionID,
		TeacherID:             session.TeacherID,
		CollegeID:             session.CollegeID,
		AcademicYearID:        session.Scope.AcademicYearID,
		SemesterID:            session.Scope.SemesterID,
		DivisionID:            session.Scope.DivisionID,
		PaperID:               session.Scope.SubjectID,
		TimeSlotID:            session.Scope.TimeSlotID,
		TimetableID:           session.TimetableID,
		TimetableAllocationID: session.TimetableAllocationID,
		Date:                  session.Scope.Date,
		StartTime:             session.Timestamp.In(b.cfg.Location).Format(models.ClockLayout),
		EndTime:               session.ExpiresAt.In(b.cfg.Location).Format(models.ClockLayout),
		QRCodeURL:             session.ImageURL,
		LaptopCode:            session.ShortCode,
		ShareableLink:         session.ShareableLink,
	}
}

// DecodeJoinDescriptor parses the s parameter of a join link.
func DecodeJoinDescriptor(encoded string) (*models.JoinDescriptor, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode join descriptor: %w", err)
	}
	var descriptor models.JoinDescriptor
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return nil, fmt.Errorf("unmarshal join descriptor: %w", err)
	}
	return &descriptor, nil
}

// newSessionID joins base36 unix millis with a random base36 suffix.
// Uniqueness is best effort.
func newSessionID(now time.Time) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 36))
	limit := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < sessionSuffixLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			b.WriteByte(base36Alphabet[(now.UnixNano()+int64(i))%36])
			continue
		}
		b.WriteByte(base36Alphabet[n.Int64()])
	}
	return b.String()
}

// shortCode is the trailing six characters of the session id, upper-cased.
func shortCode(sessionID string) string {
	if len(sessionID) <= shortCodeLength {
		return strings.ToUpper(sessionID)
	}
	return strings.ToUpper(sessionID[len(sessionID)-shortCodeLength:])
}
