package dto

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
)

// Minutes is a duration in minutes that tolerates blank or malformed input.
// Anything that is not a positive integer decodes to zero.
type Minutes int

// UnmarshalJSON accepts numbers and numeric strings and never fails.
func (m *Minutes) UnmarshalJSON(b []byte) error {
	*m = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		*m = Minutes(n)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= 1 {
		*m = Minutes(int(f))
	}
	return nil
}

// SelectionRequest is the scope chosen on the QR attendance screen.
type SelectionRequest struct {
	AcademicYearID        models.FlexibleID `json:"academic_year_id"`
	SemesterID            models.FlexibleID `json:"semester_id"`
	DivisionID            models.FlexibleID `json:"division_id"`
	SubjectID             models.FlexibleID `json:"subject_id"`
	TimeSlotID            models.FlexibleID `json:"time_slot_id"`
	TimetableID           models.FlexibleID `json:"timetable_id"`
	TimetableAllocationID models.FlexibleID `json:"timetable_allocation_id"`
	Date                  string            `json:"date"`
}

// IsEmpty reports whether no field was supplied.
func (r SelectionRequest) IsEmpty() bool {
	return r == SelectionRequest{}
}

// ToSelection converts the request into the domain selection.
func (r SelectionRequest) ToSelection() models.Selection {
	return models.Selection{
		Scope: models.Scope{
			AcademicYearID: r.AcademicYearID.String(),
			SemesterID:     r.SemesterID.String(),
			DivisionID:     r.DivisionID.String(),
			SubjectID:      r.SubjectID.String(),
			TimeSlotID:     r.TimeSlotID.String(),
			Date:           strings.TrimSpace(r.Date),
		},
		TimetableID:           r.TimetableID.String(),
		TimetableAllocationID: r.TimetableAllocationID.String(),
	}
}

// GenerateSessionRequest captures POST /qr-sessions payload. Selection is
// optional when the workspace scope was already set.
type GenerateSessionRequest struct {
	DurationMinutes Minutes          `json:"duration_minutes"`
	Selection       SelectionRequest `json:"selection"`
}

// HistoryQuery captures GET /qr-sessions/history parameters.
type HistoryQuery struct {
	DateFrom string `form:"date_from"`
	DateTo   string `form:"date_to"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
