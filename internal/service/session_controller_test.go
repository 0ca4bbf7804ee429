package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
)

type stubBuilder struct {
	mu      sync.Mutex
	calls   int
	err     error
	started chan struct{}
	release chan struct{}
	now     time.Time
	ids     []string
}

func (b *stubBuilder) Build(ctx context.Context, teacher models.TeacherContext, sel models.Selection, minutes int) (*models.QRSession, error) {
	b.mu.Lock()
	b.calls++
	sessionID := "mvbu90w0k3j9qz"
	if b.calls <= len(b.ids) {
		sessionID = b.ids[b.calls-1]
	}
	b.mu.Unlock()
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}
	if b.err != nil {
		return nil, b.err
	}
	return &models.QRSession{
		SessionID:   sessionID,
		Source:      models.SessionSourceGenerated,
		Scope:       sel.Scope,
		TimetableID: sel.TimetableID,
		TeacherID:   teacher.TeacherID,
		Timestamp:   b.now,
		ExpiresAt:   b.now.Add(5 * time.Minute),
		ShortCode:   "K3J9QZ",
	}, nil
}

type stubResolver struct {
	calls    int
	existing *models.ExistingSession
	err      error
}

func (r *stubResolver) Ready(scope models.Scope) bool {
	return scope.AcademicYearID != "" && scope.SemesterID != "" && scope.DivisionID != "" &&
		scope.SubjectID != "" && scope.TimeSlotID != "" && scope.Date != ""
}

func (r *stubResolver) FindExisting(ctx context.Context, teacher models.TeacherContext, scope models.Scope) (*models.ExistingSession, error) {
	r.calls++
	return r.existing, r.err
}

type stubHistory struct {
	mu      sync.Mutex
	entries []*models.SessionHistory
}

func (h *stubHistory) Record(ctx context.Context, entry *models.SessionHistory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return nil
}

type controllerFixture struct {
	ctrl       *SessionController
	builder    *stubBuilder
	resolver   *stubResolver
	attendance *stubAttendance
	history    *stubHistory
	ticker     *fakeTicker
	now        time.Time
}

func newControllerFixture() *controllerFixture {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	f := &controllerFixture{
		builder:    &stubBuilder{now: now},
		resolver:   &stubResolver{},
		attendance: &stubAttendance{groups: twoGroups()},
		history:    &stubHistory{},
		ticker:     newFakeTicker(),
		now:        now,
	}
	f.ctrl = NewSessionController(f.builder, f.resolver, f.attendance, f.history, nil, NewMetricsService(),
		SessionControllerConfig{PollInterval: 15 * time.Second, IdleTTL: time.Hour}, zap.NewNop())
	f.ctrl.newTicker = f.ticker.factory()
	f.ctrl.now = func() time.Time { return f.now }
	return f
}

func (f *controllerFixture) waitPolls(t *testing.T) {
	t.Helper()
	ws := f.ctrl.lookup(builderTeacher.TeacherID)
	require.NotNil(t, ws)
	ws.mu.Lock()
	poller := ws.poller
	ws.mu.Unlock()
	require.NotNil(t, poller)
	poller.Wait()
}

func TestSessionControllerGenerateActivatesAndPolls(t *testing.T) {
	f := newControllerFixture()
	sel := completeSelection()

	status, err := f.ctrl.Generate(context.Background(), builderTeacher, &sel, 0)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleActive, status.State)
	require.NotNil(t, status.Session)
	assert.Equal(t, 5, status.RemainingMinutes)
	assert.False(t, status.Expired)

	f.waitPolls(t)
	current := f.ctrl.Status(builderTeacher)
	require.NotNil(t, current.Roster)
	assert.Equal(t, 2, current.Roster.Count)

	f.now = f.now.Add(10 * time.Minute)
	expired := f.ctrl.Status(builderTeacher)
	assert.Equal(t, models.LifecycleActive, expired.State)
	assert.True(t, expired.Expired)
	assert.Equal(t, 0, expired.RemainingMinutes)
	f.ctrl.Shutdown()
}

func TestSessionControllerGenerateRequiresSelection(t *testing.T) {
	f := newControllerFixture()
	_, err := f.ctrl.Generate(context.Background(), builderTeacher, nil, 5)
	assert.ErrorIs(t, err, appErrors.ErrScopeIncomplete)
	assert.Zero(t, f.builder.calls)
}

func TestSessionControllerGenerateFailureReturnsToIdle(t *testing.T) {
	f := newControllerFixture()
	f.builder.err = appErrors.ErrUploadFailed
	sel := completeSelection()

	_, err := f.ctrl.Generate(context.Background(), builderTeacher, &sel, 5)
	assert.ErrorIs(t, err, appErrors.ErrUploadFailed)
	status := f.ctrl.Status(builderTeacher)
	assert.Equal(t, models.LifecycleIdle, status.State)
	assert.Nil(t, status.Session)
	assert.Zero(t, f.attendance.calls.Load())
}

func TestSessionControllerRejectsConcurrentGenerate(t *testing.T) {
	f := newControllerFixture()
	f.builder.started = make(chan struct{}, 1)
	f.builder.release = make(chan struct{})
	sel := completeSelection()

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Generate(context.Background(), builderTeacher, &sel, 5)
		done <- err
	}()
	<-f.builder.started
	assert.Equal(t, models.LifecycleGenerating, f.ctrl.Status(builderTeacher).State)

	_, err := f.ctrl.Generate(context.Background(), builderTeacher, &sel, 5)
	assert.ErrorIs(t, err, appErrors.ErrGenerating)

	close(f.builder.release)
	require.NoError(t, <-done)
	f.ctrl.Shutdown()
}

func TestSessionControllerSetScopeAndUseExpiredExisting(t *testing.T) {
	f := newControllerFixture()
	existingScope := completeSelection().Scope
	existingScope.DivisionID = "13"
	f.resolver.existing = &models.ExistingSession{
		Session: models.QRSession{
			SessionID: "EXISTING_88",
			Source:    models.SessionSourceExisting,
			Scope:     existingScope,
			Timestamp: f.now.Add(-2 * time.Hour),
			ExpiresAt: f.now.Add(-time.Hour),
		},
	}

	partial := completeSelection()
	partial.TimeSlotID = ""
	_, err := f.ctrl.SetScope(context.Background(), builderTeacher, partial)
	require.NoError(t, err)
	assert.Zero(t, f.resolver.calls)

	status, err := f.ctrl.SetScope(context.Background(), builderTeacher, completeSelection())
	require.NoError(t, err)
	assert.Equal(t, 1, f.resolver.calls)
	require.NotNil(t, status.Existing)

	status, err = f.ctrl.UseExisting(context.Background(), builderTeacher)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleActive, status.State)
	assert.Equal(t, existingScope, status.Session.Scope)
	assert.True(t, status.Expired)
	assert.Nil(t, status.Existing)
	assert.Zero(t, f.builder.calls)
	f.ctrl.Shutdown()
}

func TestSessionControllerGenerateClearsExisting(t *testing.T) {
	f := newControllerFixture()
	f.resolver.existing = &models.ExistingSession{Session: models.QRSession{SessionID: "EXISTING_1"}, Valid: true}
	_, err := f.ctrl.SetScope(context.Background(), builderTeacher, completeSelection())
	require.NoError(t, err)

	status, err := f.ctrl.Generate(context.Background(), builderTeacher, nil, 5)
	require.NoError(t, err)
	assert.Nil(t, status.Existing)
	assert.Equal(t, "mvbu90w0k3j9qz", status.Session.SessionID)

	_, err = f.ctrl.UseExisting(context.Background(), builderTeacher)
	assert.ErrorIs(t, err, appErrors.ErrNoExistingSession)
	f.ctrl.Shutdown()
}

func TestSessionControllerStopSummarisesAndHaltsPolling(t *testing.T) {
	f := newControllerFixture()
	sel := completeSelection()
	_, err := f.ctrl.Generate(context.Background(), builderTeacher, &sel, 5)
	require.NoError(t, err)
	f.waitPolls(t)

	summary, err := f.ctrl.Stop(context.Background(), builderTeacher)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ScanCount)
	assert.Contains(t, summary.Message, "2 student(s)")

	f.ticker.ch <- time.Now()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), f.attendance.calls.Load())

	status := f.ctrl.Status(builderTeacher)
	assert.Equal(t, models.LifecycleIdle, status.State)
	assert.Nil(t, status.Session)
	assert.Nil(t, status.Roster)
	require.NotNil(t, status.LastSummary)

	require.Len(t, f.history.entries, 1)
	assert.Equal(t, 2, f.history.entries[0].ScanCount)
	assert.Equal(t, "501", f.history.entries[0].SubjectID)

	_, err = f.ctrl.Stop(context.Background(), builderTeacher)
	assert.ErrorIs(t, err, appErrors.ErrNoActiveSession)
}

func TestSessionControllerGenerateSupersedesActiveSession(t *testing.T) {
	f := newControllerFixture()
	f.builder.ids = []string{"mvbu90w0first1", "mvbu90w0second"}
	var tickers []*fakeTicker
	f.ctrl.newTicker = func(time.Duration) Ticker {
		ticker := newFakeTicker()
		tickers = append(tickers, ticker)
		return ticker
	}
	sel := completeSelection()

	_, err := f.ctrl.Generate(context.Background(), builderTeacher, &sel, 5)
	require.NoError(t, err)
	f.waitPolls(t)

	status, err := f.ctrl.Generate(context.Background(), builderTeacher, nil, 5)
	require.NoError(t, err)
	assert.Equal(t, "mvbu90w0second", status.Session.SessionID)
	f.waitPolls(t)
	require.Len(t, tickers, 2)
	assert.True(t, tickers[0].stopped.Load())
	assert.False(t, tickers[1].stopped.Load())
	assert.Equal(t, int32(2), f.attendance.calls.Load())

	tickers[0].ch <- time.Now()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), f.attendance.calls.Load())

	f.history.mu.Lock()
	require.Len(t, f.history.entries, 1)
	assert.Equal(t, "mvbu90w0first1", f.history.entries[0].SessionID)
	assert.Equal(t, 2, f.history.entries[0].ScanCount)
	f.history.mu.Unlock()

	assert.Equal(t, int64(1), f.ctrl.metrics.Snapshot().ActiveSessions)
	f.ctrl.Shutdown()
	assert.Equal(t, int64(0), f.ctrl.metrics.Snapshot().ActiveSessions)
}

func TestSessionControllerRefresh(t *testing.T) {
	f := newControllerFixture()
	_, err := f.ctrl.Refresh(context.Background(), builderTeacher)
	assert.ErrorIs(t, err, appErrors.ErrNoActiveSession)

	sel := completeSelection()
	_, err = f.ctrl.Generate(context.Background(), builderTeacher, &sel, 5)
	require.NoError(t, err)
	f.waitPolls(t)

	result, err := f.ctrl.Refresh(context.Background(), builderTeacher)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, uint64(2), result.Status.Roster.Sequence)

	f.attendance.err = errors.New("boom")
	_, err = f.ctrl.Refresh(context.Background(), builderTeacher)
	assert.ErrorIs(t, err, appErrors.ErrUpstream)
	f.ctrl.Shutdown()
}

func TestSessionControllerReleaseAndReap(t *testing.T) {
	f := newControllerFixture()
	sel := completeSelection()
	_, err := f.ctrl.Generate(context.Background(), builderTeacher, &sel, 5)
	require.NoError(t, err)
	f.waitPolls(t)

	other := models.TeacherContext{TeacherID: "T-10"}
	_, err = f.ctrl.SetScope(context.Background(), other, completeSelection())
	require.NoError(t, err)

	assert.Zero(t, f.ctrl.ReapIdle(f.now.Add(30*time.Minute)))
	assert.Equal(t, 2, f.ctrl.ReapIdle(f.now.Add(2*time.Hour)))
	assert.True(t, f.ticker.stopped.Load())
	assert.Equal(t, models.LifecycleIdle, f.ctrl.Status(builderTeacher).State)
	assert.Empty(t, f.history.entries)
	assert.False(t, f.ctrl.Release(builderTeacher.TeacherID))
}

func TestSessionControllerReleaseDuringGenerate(t *testing.T) {
	f := newControllerFixture()
	f.builder.started = make(chan struct{}, 1)
	f.builder.release = make(chan struct{})
	sel := completeSelection()

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Generate(context.Background(), builderTeacher, &sel, 5)
		done <- err
	}()
	<-f.builder.started
	assert.True(t, f.ctrl.Release(builderTeacher.TeacherID))
	close(f.builder.release)

	err := <-done
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Zero(t, f.attendance.calls.Load())
}
