package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qr-attendance-gateway/internal/dto"
	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
	"github.com/noah-isme/qr-attendance-gateway/pkg/response"
)

type historyLister interface {
	List(ctx context.Context, teacherID string, query dto.HistoryQuery) ([]models.SessionHistory, *models.Pagination, error)
}

// HistoryHandler lists stopped sessions.
type HistoryHandler struct {
	history historyLister
}

// NewHistoryHandler constructs the handler.
func NewHistoryHandler(history historyLister) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// List godoc
// @Summary Stopped QR sessions of the teacher
// @Tags QR Sessions
// @Produce json
// @Param date_from query string false "From date (YYYY-MM-DD)"
// @Param date_to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /qr-sessions/history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	teacher, ok := teacherFromContext(c)
	if !ok {
		return
	}
	var query dto.HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid history query"))
		return
	}
	items, pagination, err := h.history.List(c.Request.Context(), teacher.TeacherID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}
