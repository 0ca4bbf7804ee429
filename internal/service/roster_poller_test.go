package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time, 4)}
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()                  { t.stopped.Store(true) }

func (t *fakeTicker) factory() TickerFactory {
	return func(time.Duration) Ticker { return t }
}

type stubAttendance struct {
	calls   atomic.Int32
	groups  []models.AttendanceGroup
	err     error
	entered chan struct{}
	release chan struct{}
}

func (s *stubAttendance) GroupedAttendance(ctx context.Context, filter models.GroupedAttendanceFilter) ([]models.AttendanceGroup, error) {
	s.calls.Add(1)
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return s.groups, s.err
}

func twoGroups() []models.AttendanceGroup {
	return []models.AttendanceGroup{
		{Students: []models.GroupedStudent{{StudentID: "1", Firstname: "Asha", Lastname: "Rao", RollNumber: "11"}}},
		{Students: []models.GroupedStudent{
			{StudentID: "1", Firstname: "Asha", Lastname: "Rao", RollNumber: "11"},
			{StudentID: "2", Firstname: "Ben", Lastname: "Kay", RollNumber: "12"},
		}},
	}
}

func testSession() *models.QRSession {
	return &models.QRSession{
		SessionID: "mvbu90w0abc123",
		Scope:     completeSelection().Scope,
		TeacherID: "T-9",
		CollegeID: "C-1",
	}
}

func newTestPoller(api *stubAttendance, ticker *fakeTicker) *RosterPoller {
	return NewRosterPoller(api, testSession(), RosterPollerOptions{
		Interval:  15 * time.Second,
		NewTicker: ticker.factory(),
		Logger:    zap.NewNop(),
	})
}

func TestRosterPollerDeduplicatesAcrossGroups(t *testing.T) {
	api := &stubAttendance{groups: twoGroups()}
	ticker := newFakeTicker()
	poller := newTestPoller(api, ticker)

	poller.Start(context.Background())
	poller.Wait()

	roster := poller.Roster()
	assert.Equal(t, 2, roster.Count)
	require.Len(t, roster.Records, 2)
	assert.Equal(t, "1", roster.Records[0].StudentID)
	assert.Equal(t, "2", roster.Records[1].StudentID)
	assert.False(t, roster.LastRefreshedAt.IsZero())
	poller.Stop()
}

func TestRosterPollerTickTriggersPoll(t *testing.T) {
	api := &stubAttendance{groups: twoGroups()}
	ticker := newFakeTicker()
	poller := newTestPoller(api, ticker)

	poller.Start(context.Background())
	poller.Wait()
	ticker.ch <- time.Now()
	require.Eventually(t, func() bool { return api.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	poller.Wait()
	assert.Equal(t, uint64(2), poller.Roster().Sequence)
	poller.Stop()
}

func TestRosterPollerManualRefreshSkippedWhileInFlight(t *testing.T) {
	api := &stubAttendance{
		groups:  twoGroups(),
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	poller := newTestPoller(api, newFakeTicker())

	poller.Start(context.Background())
	<-api.entered

	result, err := poller.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollOutcomeSkipped, result.Outcome)
	assert.Equal(t, int32(1), api.calls.Load())

	close(api.release)
	poller.Wait()
	poller.Stop()
}

func TestRosterPollerNoPollAfterStop(t *testing.T) {
	api := &stubAttendance{groups: twoGroups()}
	ticker := newFakeTicker()
	poller := newTestPoller(api, ticker)

	poller.Start(context.Background())
	poller.Wait()
	poller.Stop()
	assert.True(t, ticker.stopped.Load())

	ticker.ch <- time.Now()
	time.Sleep(20 * time.Millisecond)
	poller.Wait()
	assert.Equal(t, int32(1), api.calls.Load())

	result, err := poller.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollOutcomeDiscarded, result.Outcome)
	assert.Equal(t, int32(1), api.calls.Load())
}

func TestRosterPollerStopDiscardsInFlightResult(t *testing.T) {
	api := &stubAttendance{
		groups:  twoGroups(),
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	poller := newTestPoller(api, newFakeTicker())

	poller.Start(context.Background())
	<-api.entered
	before := poller.Stop()
	close(api.release)
	poller.Wait()

	assert.Equal(t, 0, before.Count)
	assert.Equal(t, 0, poller.Roster().Count)
}

func TestRosterPollerDiscardsStaleSequence(t *testing.T) {
	poller := newTestPoller(&stubAttendance{}, newFakeTicker())
	now := time.Now()

	newer := poller.apply(2, []models.ScanRecord{{StudentID: "1"}, {StudentID: "2"}}, now)
	assert.Equal(t, PollOutcomeApplied, newer.Outcome)

	older := poller.apply(1, []models.ScanRecord{{StudentID: "1"}}, now.Add(-time.Second))
	assert.Equal(t, PollOutcomeStale, older.Outcome)
	assert.Equal(t, 2, poller.Roster().Count)
	assert.Equal(t, uint64(2), poller.Roster().Sequence)
}

func TestRosterPollerFailureKeepsRoster(t *testing.T) {
	api := &stubAttendance{groups: twoGroups()}
	poller := newTestPoller(api, newFakeTicker())
	poller.Start(context.Background())
	poller.Wait()

	api.err = errors.New("gateway timeout")
	result, err := poller.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUpstream)
	assert.Equal(t, PollOutcomeFailed, result.Outcome)
	assert.Equal(t, 2, poller.Roster().Count)
	assert.Error(t, poller.LastError())
	poller.Stop()
}
