package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qr-attendance-gateway/internal/dto"
	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
)

type fakeHistory struct {
	query dto.HistoryQuery
	err   error
}

func (f *fakeHistory) List(_ context.Context, _ string, query dto.HistoryQuery) ([]models.SessionHistory, *models.Pagination, error) {
	f.query = query
	if f.err != nil {
		return nil, nil, f.err
	}
	return []models.SessionHistory{{SessionID: "s-1", ScanCount: 4}}, &models.Pagination{Page: 2, PageSize: 10, TotalCount: 11}, nil
}

func TestHistoryHandlerList(t *testing.T) {
	history := &fakeHistory{}
	handler := NewHistoryHandler(history)
	c, rec := newTestContext(http.MethodGet, "/qr-sessions/history?date_from=2026-10-01&page=2&page_size=10", nil)

	handler.List(withTeacher(c))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-10-01", history.query.DateFrom)
	assert.Equal(t, 2, history.query.Page)
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 11, envelope.Pagination.TotalCount)
}

func TestHistoryHandlerRejectsBadPage(t *testing.T) {
	handler := NewHistoryHandler(&fakeHistory{})
	c, rec := newTestContext(http.MethodGet, "/qr-sessions/history?page=first", nil)

	handler.List(withTeacher(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryHandlerDisabled(t *testing.T) {
	handler := NewHistoryHandler(&fakeHistory{err: appErrors.ErrHistoryDisabled})
	c, rec := newTestContext(http.MethodGet, "/qr-sessions/history", nil)

	handler.List(withTeacher(c))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
