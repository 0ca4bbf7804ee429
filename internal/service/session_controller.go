package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
)

type sessionBuilder interface {
	Build(ctx context.Context, teacher models.TeacherContext, sel models.Selection, durationMinutes int) (*models.QRSession, error)
}

type existingResolver interface {
	Ready(scope models.Scope) bool
	FindExisting(ctx context.Context, teacher models.TeacherContext, scope models.Scope) (*models.ExistingSession, error)
}

type historyRecorder interface {
	Record(ctx context.Context, entry *models.SessionHistory) error
}

// SessionControllerConfig tunes polling and idle reaping.
type SessionControllerConfig struct {
	PollInterval time.Duration
	IdleTTL      time.Duration
}

// workspace is the server-side state of one teacher's QR attendance screen.
type workspace struct {
	mu        sync.Mutex
	teacher   models.TeacherContext
	state     models.LifecycleState
	selection *models.Selection
	existing  *models.ExistingSession
	session   *models.QRSession
	poller    *RosterPoller
	summary   *models.StopSummary
	epoch     uint64
	released  bool
	touchedAt time.Time
}

// SessionController drives the QR session lifecycle of every teacher workspace.
type SessionController struct {
	builder    sessionBuilder
	resolver   existingResolver
	attendance attendanceAPI
	history    historyRecorder
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        SessionControllerConfig
	newTicker  TickerFactory
	now        func() time.Time

	mu         sync.Mutex
	workspaces map[string]*workspace
}

// NewSessionController wires the lifecycle controller. history and cache may be nil.
func NewSessionController(builder sessionBuilder, resolver existingResolver, attendance attendanceAPI, history historyRecorder, cache *CacheService, metrics *MetricsService, cfg SessionControllerConfig, logger *zap.Logger) *SessionController {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &SessionController{
		builder:    builder,
		resolver:   resolver,
		attendance: attendance,
		history:    history,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		newTicker:  NewTimeTicker,
		now:        time.Now,
		workspaces: make(map[string]*workspace),
	}
}

func (c *SessionController) workspace(teacher models.TeacherContext) (*workspace, error) {
	if strings.TrimSpace(teacher.TeacherID) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "teacher id is not available")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ws, ok := c.workspaces[teacher.TeacherID]
	if !ok {
		ws = &workspace{teacher: teacher, state: models.LifecycleIdle}
		c.workspaces[teacher.TeacherID] = ws
	}
	return ws, nil
}

func (c *SessionController) lookup(teacherID string) *workspace {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workspaces[teacherID]
}

// SetScope stores the selection and, once the scope is fully resolved, looks
// for a session already persisted for it.
func (c *SessionController) SetScope(ctx context.Context, teacher models.TeacherContext, sel models.Selection) (*models.WorkspaceStatus, error) {
	ws, err := c.workspace(teacher)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	ws.teacher = teacher
	ws.selection = &sel
	ws.existing = nil
	ws.touchedAt = c.now()
	epoch := ws.epoch
	ws.mu.Unlock()

	if !c.resolver.Ready(sel.Scope) {
		return c.Status(teacher), nil
	}

	existing, err := c.resolver.FindExisting(ctx, teacher, sel.Scope)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	if ws.epoch == epoch && ws.selection != nil && ws.selection.Scope == sel.Scope {
		ws.existing = existing
	}
	ws.mu.Unlock()
	return c.Status(teacher), nil
}

// Generate builds a fresh session for the workspace selection. An active
// session is superseded; its link stays valid server-side until expiry.
func (c *SessionController) Generate(ctx context.Context, teacher models.TeacherContext, sel *models.Selection, durationMinutes int) (*models.WorkspaceStatus, error) {
	ws, err := c.workspace(teacher)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	if ws.state == models.LifecycleGenerating {
		ws.mu.Unlock()
		return nil, appErrors.ErrGenerating
	}
	if sel != nil {
		ws.selection = sel
	}
	if ws.selection == nil {
		ws.mu.Unlock()
		return nil, appErrors.ErrScopeIncomplete
	}
	ws.teacher = teacher
	ws.existing = nil
	c.deactivateLocked(ctx, ws, true)
	ws.state = models.LifecycleGenerating
	ws.touchedAt = c.now()
	selection := *ws.selection
	epoch := ws.epoch
	ws.mu.Unlock()

	session, buildErr := c.builder.Build(ctx, teacher, selection, durationMinutes)

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.released || ws.epoch != epoch {
		if buildErr == nil {
			c.logger.Warn("discarding session generated for a released workspace",
				zap.String("teacher_id", teacher.TeacherID), zap.String("session_id", session.SessionID))
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "workspace was closed while the QR session was being generated")
	}
	if buildErr != nil {
		ws.state = models.LifecycleIdle
		c.metrics.RecordSessionEvent(SessionEventFailed)
		return nil, buildErr
	}
	c.activateLocked(ctx, ws, session)
	c.metrics.RecordSessionEvent(SessionEventGenerated)
	status := c.statusLocked(ws)
	return &status, nil
}

// UseExisting adopts the session found for the current scope without any
// upload or persistence. Expired sessions are adopted as well.
func (c *SessionController) UseExisting(ctx context.Context, teacher models.TeacherContext) (*models.WorkspaceStatus, error) {
	ws, err := c.workspace(teacher)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.state == models.LifecycleGenerating {
		return nil, appErrors.ErrGenerating
	}
	if ws.existing == nil {
		return nil, appErrors.ErrNoExistingSession
	}
	session := ws.existing.Session
	ws.existing = nil
	ws.touchedAt = c.now()
	c.deactivateLocked(ctx, ws, true)
	c.activateLocked(ctx, ws, &session)
	c.metrics.RecordSessionEvent(SessionEventResumed)
	c.logger.Info("existing qr session resumed",
		zap.String("teacher_id", teacher.TeacherID),
		zap.String("session_id", session.SessionID),
		zap.Bool("expired", session.Expired(c.now())))
	status := c.statusLocked(ws)
	return &status, nil
}

// Stop ends the active session and reports how many students scanned. The
// college API is not notified.
func (c *SessionController) Stop(ctx context.Context, teacher models.TeacherContext) (*models.StopSummary, error) {
	ws := c.lookup(teacher.TeacherID)
	if ws == nil {
		return nil, appErrors.ErrNoActiveSession
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.session == nil {
		return nil, appErrors.ErrNoActiveSession
	}
	ws.touchedAt = c.now()
	summary := c.deactivateLocked(ctx, ws, true)
	ws.summary = summary
	return summary, nil
}

// Refresh triggers a manual roster poll for the active session.
func (c *SessionController) Refresh(ctx context.Context, teacher models.TeacherContext) (*models.RefreshResult, error) {
	ws := c.lookup(teacher.TeacherID)
	if ws == nil {
		return nil, appErrors.ErrNoActiveSession
	}

	ws.mu.Lock()
	poller := ws.poller
	ws.touchedAt = c.now()
	ws.mu.Unlock()
	if poller == nil {
		return nil, appErrors.ErrNoActiveSession
	}

	result, err := poller.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return &models.RefreshResult{
		Skipped: result.Outcome == PollOutcomeSkipped,
		Status:  *c.Status(teacher),
	}, nil
}

// Status returns the teacher-facing view of the workspace.
func (c *SessionController) Status(teacher models.TeacherContext) *models.WorkspaceStatus {
	ws := c.lookup(teacher.TeacherID)
	if ws == nil {
		return &models.WorkspaceStatus{State: models.LifecycleIdle}
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.touchedAt = c.now()
	status := c.statusLocked(ws)
	return &status
}

// ActiveRoster returns the active session with a copy of its roster.
func (c *SessionController) ActiveRoster(teacherID string) (*models.QRSession, *models.Roster, error) {
	ws := c.lookup(teacherID)
	if ws == nil {
		return nil, nil, appErrors.ErrNoActiveSession
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.session == nil || ws.poller == nil {
		return nil, nil, appErrors.ErrNoActiveSession
	}
	session := *ws.session
	roster := ws.poller.Roster()
	return &session, &roster, nil
}

// Release tears the workspace down without a summary, as when the screen
// closes. It reports whether a workspace existed.
func (c *SessionController) Release(teacherID string) bool {
	c.mu.Lock()
	ws, ok := c.workspaces[teacherID]
	if ok {
		delete(c.workspaces, teacherID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.released = true
	ws.epoch++
	if ws.session != nil {
		c.deactivateLocked(context.Background(), ws, false)
	}
	ws.state = models.LifecycleIdle
	c.metrics.RecordSessionEvent(SessionEventReleased)
	c.logger.Info("qr workspace released", zap.String("teacher_id", teacherID))
	return true
}

// ReapIdle releases workspaces untouched for longer than the idle TTL. A
// workspace that is generating is left alone.
func (c *SessionController) ReapIdle(now time.Time) int {
	if c.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-c.cfg.IdleTTL)

	c.mu.Lock()
	candidates := make([]string, 0)
	for id, ws := range c.workspaces {
		ws.mu.Lock()
		if ws.state != models.LifecycleGenerating && ws.touchedAt.Before(cutoff) {
			candidates = append(candidates, id)
		}
		ws.mu.Unlock()
	}
	c.mu.Unlock()

	reaped := 0
	for _, id := range candidates {
		if c.Release(id) {
			reaped++
		}
	}
	if reaped > 0 {
		c.logger.Info("idle qr workspaces reaped", zap.Int("count", reaped))
	}
	return reaped
}

// Shutdown releases every workspace.
func (c *SessionController) Shutdown() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.workspaces))
	for id := range c.workspaces {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.Release(id)
	}
}

func (c *SessionController) activateLocked(ctx context.Context, ws *workspace, session *models.QRSession) {
	poller := NewRosterPoller(c.attendance, session, RosterPollerOptions{
		Interval:  c.cfg.PollInterval,
		NewTicker: c.newTicker,
		Cache:     c.cache,
		Metrics:   c.metrics,
		Logger:    c.logger,
		Now:       c.now,
	})
	ws.session = session
	ws.poller = poller
	ws.state = models.LifecycleActive
	ws.summary = nil
	c.metrics.SessionActivated()
	poller.Start(context.WithoutCancel(ctx))
}

// deactivateLocked stops the poller and clears the session. With record set,
// the stop is summarised and queued for history.
func (c *SessionController) deactivateLocked(ctx context.Context, ws *workspace, record bool) *models.StopSummary {
	if ws.session == nil {
		ws.state = models.LifecycleIdle
		return nil
	}
	session := ws.session
	var roster models.Roster
	if ws.poller != nil {
		roster = ws.poller.Stop()
	}
	ws.session = nil
	ws.poller = nil
	ws.state = models.LifecycleIdle
	c.metrics.SessionDeactivated()

	stoppedAt := c.now()
	if !record {
		return nil
	}
	c.metrics.RecordSessionEvent(SessionEventStopped)
	summary := &models.StopSummary{
		SessionID: session.SessionID,
		ScanCount: roster.Count,
		StoppedAt: stoppedAt,
		Message:   fmt.Sprintf("QR session stopped. %d student(s) marked attendance.", roster.Count),
	}
	c.logger.Info("qr session stopped",
		zap.String("teacher_id", ws.teacher.TeacherID),
		zap.String("session_id", session.SessionID),
		zap.Int("scan_count", roster.Count))

	if c.history != nil {
		entry := historyEntry(session, ws.teacher, roster.Count, stoppedAt)
		if err := c.history.Record(context.WithoutCancel(ctx), entry); err != nil {
			c.logger.Warn("queue session history failed", zap.String("session_id", session.SessionID), zap.Error(err))
		}
	}
	return summary
}

func (c *SessionController) statusLocked(ws *workspace) models.WorkspaceStatus {
	now := c.now()
	status := models.WorkspaceStatus{
		State:       ws.state,
		LastSummary: ws.summary,
	}
	if ws.selection != nil {
		sel := *ws.selection
		status.Selection = &sel
	}
	if ws.existing != nil {
		existing := *ws.existing
		status.Existing = &existing
	}
	if ws.session != nil {
		session := *ws.session
		status.Session = &session
		status.RemainingMinutes = session.RemainingMinutes(now)
		status.Expired = session.Expired(now)
	}
	if ws.poller != nil {
		roster := ws.poller.Roster()
		status.Roster = &roster
	}
	return status
}

func historyEntry(session *models.QRSession, teacher models.TeacherContext, count int, stoppedAt time.Time) *models.SessionHistory {
	date, err := time.Parse(models.DateLayout, session.Scope.Date)
	if err != nil {
		date = session.Timestamp
	}
	return &models.SessionHistory{
		SessionID:      session.SessionID,
		TeacherID:      teacher.TeacherID,
		CollegeID:      teacher.CollegeID,
		AcademicYearID: session.Scope.AcademicYearID,
		SemesterID:     session.Scope.SemesterID,
		DivisionID:     session.Scope.DivisionID,
		SubjectID:      session.Scope.SubjectID,
		TimeSlotID:     session.Scope.TimeSlotID,
		SessionDate:    date,
		Source:         session.Source,
		StartedAt:      session.Timestamp,
		ExpiresAt:      session.ExpiresAt,
		StoppedAt:      stoppedAt,
		ScanCount:      count,
	}
}
