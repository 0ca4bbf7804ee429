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

	"github.com/noah-isme/qr-attendance-gateway/internal/dto"
	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
)

type mockHistoryRepo struct {
	mu         sync.Mutex
	created    []*models.SessionHistory
	failFirst  bool
	lastFilter models.SessionHistoryFilter
}

func (m *mockHistoryRepo) Create(ctx context.Context, entry *models.SessionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFirst {
		m.failFirst = false
		return errors.New("connection reset")
	}
	m.created = append(m.created, entry)
	return nil
}

func (m *mockHistoryRepo) List(ctx context.Context, filter models.SessionHistoryFilter) ([]models.SessionHistory, int, error) {
	m.lastFilter = filter
	return []models.SessionHistory{{SessionID: "s-1"}}, 1, nil
}

func (m *mockHistoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

func TestSessionHistoryServiceRecordsInBackground(t *testing.T) {
	repo := &mockHistoryRepo{}
	svc := NewSessionHistoryService(repo, 3, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	entry := &models.SessionHistory{SessionID: "s-1", ScanCount: 4}
	require.NoError(t, svc.Record(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	require.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSessionHistoryServiceStopDrainsQueue(t *testing.T) {
	repo := &mockHistoryRepo{}
	svc := NewSessionHistoryService(repo, 3, zap.NewNop())
	svc.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(context.Background(), &models.SessionHistory{SessionID: "s"}))
	}
	svc.Stop()
	assert.Equal(t, 5, repo.count())
}

func TestSessionHistoryServiceDisabled(t *testing.T) {
	svc := NewSessionHistoryService(nil, 3, zap.NewNop())
	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.Record(context.Background(), &models.SessionHistory{}))

	_, _, err := svc.List(context.Background(), "T-9", dto.HistoryQuery{})
	assert.ErrorIs(t, err, appErrors.ErrHistoryDisabled)
}

func TestSessionHistoryServiceList(t *testing.T) {
	repo := &mockHistoryRepo{}
	svc := NewSessionHistoryService(repo, 3, zap.NewNop())

	items, page, err := svc.List(context.Background(), "T-9", dto.HistoryQuery{DateFrom: "2026-10-01", PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	require.NotNil(t, repo.lastFilter.DateFrom)
	assert.Nil(t, repo.lastFilter.DateTo)

	_, _, err = svc.List(context.Background(), "T-9", dto.HistoryQuery{DateTo: "17-10-2026"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
