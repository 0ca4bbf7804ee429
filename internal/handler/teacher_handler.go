package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qr-attendance-gateway/internal/middleware"
	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	"github.com/noah-isme/qr-attendance-gateway/pkg/response"
)

type allocationProvider interface {
	Allocations(ctx context.Context, teacherID string) (*models.AllocatedPrograms, bool, error)
	Refresh(ctx context.Context, teacherID string)
	TimeSlots(ctx context.Context, filter models.TimeSlotFilter) ([]models.TimeSlot, error)
}

// TeacherHandler serves the lookups that populate the scope selectors.
type TeacherHandler struct {
	allocations allocationProvider
}

// NewTeacherHandler constructs a new TeacherHandler.
func NewTeacherHandler(allocations allocationProvider) *TeacherHandler {
	return &TeacherHandler{allocations: allocations}
}

// Allocations godoc
// @Summary Subjects and divisions allocated to the teacher
// @Tags Teacher
// @Produce json
// @Param refresh query bool false "Bypass the cache"
// @Success 200 {object} response.Envelope
// @Router /teacher/allocations [get]
func (h *TeacherHandler) Allocations(c *gin.Context) {
	teacher, ok := teacherFromContext(c)
	if !ok {
		return
	}
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		h.allocations.Refresh(c.Request.Context(), teacher.TeacherID)
	}
	programs, cacheHit, err := h.allocations.Allocations(c.Request.Context(), teacher.TeacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, programs, nil, responseMeta(c))
}

// TimeSlots godoc
// @Summary Timetable slots for a class meeting
// @Tags Teacher
// @Produce json
// @Param academic_year_id query string false "Academic year"
// @Param semester_id query string false "Semester"
// @Param division_id query string false "Division"
// @Param subject_id query string false "Subject (paper)"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /teacher/time-slots [get]
func (h *TeacherHandler) TimeSlots(c *gin.Context) {
	teacher, ok := teacherFromContext(c)
	if !ok {
		return
	}
	filter := models.TimeSlotFilter{
		TeacherID:      teacher.TeacherID,
		CollegeID:      teacher.CollegeID,
		AcademicYearID: strings.TrimSpace(c.Query("academic_year_id")),
		SemesterID:     strings.TrimSpace(c.Query("semester_id")),
		DivisionID:     strings.TrimSpace(c.Query("division_id")),
		SubjectID:      strings.TrimSpace(c.Query("subject_id")),
		Date:           strings.TrimSpace(c.Query("date")),
	}
	slots, err := h.allocations.TimeSlots(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
