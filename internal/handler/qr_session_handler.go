package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qr-attendance-gateway/internal/dto"
	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	"github.com/noah-isme/qr-attendance-gateway/internal/service"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
	"github.com/noah-isme/qr-attendance-gateway/pkg/response"
)

type qrSessionController interface {
	SetScope(ctx context.Context, teacher models.TeacherContext, sel models.Selection) (*models.WorkspaceStatus, error)
	Generate(ctx context.Context, teacher models.TeacherContext, sel *models.Selection, durationMinutes int) (*models.WorkspaceStatus, error)
	UseExisting(ctx context.Context, teacher models.TeacherContext) (*models.WorkspaceStatus, error)
	Stop(ctx context.Context, teacher models.TeacherContext) (*models.StopSummary, error)
	Refresh(ctx context.Context, teacher models.TeacherContext) (*models.RefreshResult, error)
	Status(teacher models.TeacherContext) *models.WorkspaceStatus
	Release(teacherID string) bool
}

type rosterExporter interface {
	Export(ctx context.Context, teacherID, format string) (*service.ExportFile, error)
}

// QRSessionHandler exposes the teacher's QR attendance workspace.
type QRSessionHandler struct {
	controller qrSessionController
	exporter   rosterExporter
}

// NewQRSessionHandler constructs the handler.
func NewQRSessionHandler(controller qrSessionController, exporter rosterExporter) *QRSessionHandler {
	return &QRSessionHandler{controller: controller, exporter: exporter}
}

// SetScope godoc
// @Summary Select the class meeting for the workspace
// @Description Stores the selection and looks up a session already saved for a fully resolved scope.
// @Tags QR Sessions
// @Accept json
// @Produce json
// @Param payload body dto.SelectionRequest true "Scope selection"
// @Success 200 {object} response.Envelope
// @Router /qr-sessions/scope [put]
func (h *QRSessionHandler) SetScope(c *gin.Context) {
	teacher, ok := teacherFromContext(c)
	if !ok {
		return
	}
	var req dto.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scope payload"))
		return
	}
	status, err := h.controller.SetScope(c.Request.Context(), teacher, req.ToSelection())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Generate godoc
// @Summary Generate a QR attendance session
// @Tags QR Sessions
// @Accept json
// @Produce json
// @Param payload body dto.GenerateSessionRequest false "Duration and optional selection"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /qr-sessions [post]
func (h *QRSessionHandler) Generate(c *gin.Context) {
	teacher, ok := teacherFromContext(c)
	if !ok {
		return
	}
	var req dto.GenerateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate payload"))
		return
	}
	var sel *models.Selection
	if !req.Selection.IsEmpty() {
		selection := req.Selection.ToSelection()
		sel = &selection
	}
	status, err := h.controller.Generate(c.Request.Context(), teacher, sel, int(req.DurationMinutes))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, status)
}

// UseExisting godoc
// @Summary Resume the session already saved for the selected scope
// @Tags QR Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /qr-sessions/existing/use [post]
func (h *QRSessionHandler) UseExisting(c *gin.Context) {
	teacher, ok := teacherFromContext(c)
	if !ok {
		return
	}
	status, err := h.controller.UseExisting(c.Request.Context(), teacher)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Stop godoc
// @Summary Stop the active session
// @Tags QR Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /qr-sessions/current/stop [post]
func (h *QRSessionHandler) Stop(c *gin.Context) {
	teacher, ok := teacherFromContext(c)
	if !ok {
		return
	}
	summary, err := h.controller.Stop(c.Request.Context(), teacher)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Refresh godoc
// @Summary Poll the roster now
// @Description A refresh requested while another poll is in flight is skipped.
// @Tags QR Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /qr-sessions/current/refresh [post]
func (h *QRSessionHandler) Refresh(c *gin.Context) {
	teacher, ok := teacherFromContext(c)
	if !ok {
		return
	}
	result, err := h.controller.Refresh(c.Request.Context(), teacher)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := responseMeta(c)
	meta["skipped"] = result.Skipped
	response.JSON(c, http.StatusOK, result.Status, nil, meta)
}

// Current godoc
// @Summary Workspace status
// @Tags QR Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /qr-sessions/current [get]
func (h *QRSessionHandler) Current(c *gin.Context) {
	teacher, ok := teacherFromContext(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, h.controller.Status(teacher), nil)
}

// Release godoc
// @Summary Close the workspace
// @Description Stops polling and drops the workspace without a summary.
// @Tags QR Sessions
// @Success 204
// @Router /qr-sessions/workspace [delete]
func (h *QRSessionHandler) Release(c *gin.Context) {
	teacher, ok := teacherFromContext(c)
	if !ok {
		return
	}
	h.controller.Release(teacher.TeacherID)
	response.NoContent(c)
}

// ExportRoster godoc
// @Summary Download the live roster
// @Tags QR Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /qr-sessions/current/roster/export [get]
func (h *QRSessionHandler) ExportRoster(c *gin.Context) {
	teacher, ok := teacherFromContext(c)
	if !ok {
		return
	}
	if h.exporter == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	file, err := h.exporter.Export(c.Request.Context(), teacher.TeacherID, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
