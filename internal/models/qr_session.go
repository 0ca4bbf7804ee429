package models

import (
	"time"
)

// ExistingSessionPrefix marks session ids adopted from a persisted server record.
const ExistingSessionPrefix = "EXISTING_"

// DateLayout is the calendar day format shared with the college API.
const DateLayout = "2006-01-02"

// ClockLayout is the wall-clock format used for session start and end times.
const ClockLayout = "15:04:05"

// Scope pins a QR session to one class meeting.
type Scope struct {
	AcademicYearID string `json:"academic_year_id" validate:"required"`
	SemesterID     string `json:"semester_id" validate:"required"`
	DivisionID     string `json:"division_id" validate:"required"`
	SubjectID      string `json:"subject_id" validate:"required"`
	TimeSlotID     string `json:"time_slot_id" validate:"required"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
}

// Selection is a scope together with the timetable ids of the chosen time slot.
type Selection struct {
	Scope
	TimetableID           string `json:"timetable_id" validate:"required"`
	TimetableAllocationID string `json:"timetable_allocation_id,omitempty"`
}

// SessionSource records how a session became active.
type SessionSource string

const (
	SessionSourceGenerated SessionSource = "generated"
	SessionSourceExisting  SessionSource = "existing"
)

// QRSession is one open invitation for students to self-mark attendance.
// It is never mutated after creation.
type QRSession struct {
	SessionID             string        `json:"session_id"`
	ServerID              string        `json:"server_id,omitempty"`
	Source                SessionSource `json:"source"`
	Scope                 Scope         `json:"scope"`
	TimetableID           string        `json:"timetable_id,omitempty"`
	TimetableAllocationID string        `json:"timetable_allocation_id,omitempty"`
	TeacherID             string        `json:"teacher_id"`
	CollegeID             string        `json:"college_id,omitempty"`
	SubjectName           string        `json:"subject_name,omitempty"`
	DivisionName          string        `json:"division_name,omitempty"`
	Timestamp             time.Time     `json:"timestamp"`
	ExpiresAt             time.Time     `json:"expires_at"`
	QRURL                 string        `json:"qr_url"`
	ShortCode             string        `json:"short_code"`
	ShareableLink         string        `json:"shareable_link"`
	ImageURL              string        `json:"image_url,omitempty"`
}

// Expired reports whether the session window has closed at now.
func (s *QRSession) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// RemainingMinutes is the countdown shown to the teacher, floored at zero.
func (s *QRSession) RemainingMinutes(now time.Time) int {
	if s == nil {
		return 0
	}
	remaining := s.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Minute)
}

// JoinDescriptor is the plain base64 JSON payload embedded in the join link.
type JoinDescriptor struct {
	SessionID             string `json:"session_id"`
	TeacherID             string `json:"teacher_id"`
	CollegeID             string `json:"college_id,omitempty"`
	AcademicYearID        string `json:"academic_year_id"`
	SemesterID            string `json:"semester_id"`
	DivisionID            string `json:"division_id"`
	SubjectID             string `json:"subject_id"`
	TimeSlotID            string `json:"time_slot_id"`
	TimetableID           string `json:"timetable_id"`
	TimetableAllocationID string `json:"timetable_allocation_id,omitempty"`
	Date                  string `json:"date"`
	SubjectName           string `json:"subject_name,omitempty"`
	DivisionName          string `json:"division_name,omitempty"`
	ShortCode             string `json:"short_code"`
	Timestamp             int64  `json:"timestamp"`
	ExpiresAt             int64  `json:"expires_at"`
}

// QRSessionRecord is the persisted session returned by the session lookup endpoint.
type QRSessionRecord struct {
	ID             FlexibleID `json:"id"`
	Date           string     `json:"date"`
	StartTime      string     `json:"start_time"`
	EndTime        string     `json:"end_time"`
	AcademicYearID FlexibleID `json:"academic_year_id"`
	SemesterID     FlexibleID `json:"semester_id"`
	DivisionID     FlexibleID `json:"division_id"`
	PaperID        FlexibleID `json:"paper_id"`
	TimeSlotID     FlexibleID `json:"time_slot_id"`
	ShareableLink  string     `json:"shareable_link"`
	LaptopCode     string     `json:"laptop_code"`
}

// SaveQRSessionPayload is written to the college API when a session is generated.
type SaveQRSessionPayload struct {
	SessionID             string `json:"session_id"`
	TeacherID             string `json:"teacher_id"`
	CollegeID             string `json:"college_id,omitempty"`
	AcademicYearID        string `json:"academic_year_id"`
	SemesterID            string `json:"semester_id"`
	DivisionID            string `json:"division_id"`
	PaperID               string `json:"paper_id"`
	TimeSlotID            string `json:"time_slot_id"`
	TimetableID           string `json:"timetable_id"`
	TimetableAllocationID string `json:"timetable_allocation_id,omitempty"`
	Date                  string `json:"date"`
	StartTime             string `json:"start_time"`
	EndTime               string `json:"end_time"`
	QRCodeURL             string `json:"qr_code_url"`
	LaptopCode            string `json:"laptop_code"`
	ShareableLink         string `json:"shareable_link"`
}

// LifecycleState is the controller state of a teacher workspace.
type LifecycleState string

const (
	LifecycleIdle       LifecycleState = "idle"
	LifecycleGenerating LifecycleState = "generating"
	LifecycleActive     LifecycleState = "active"
)

// ExistingSession is a persisted session offered for reuse.
type ExistingSession struct {
	Session QRSession `json:"session"`
	Valid   bool      `json:"valid"`
}

// StopSummary is reported when a teacher stops an active session.
type StopSummary struct {
	SessionID string    `json:"session_id"`
	ScanCount int       `json:"scan_count"`
	StoppedAt time.Time `json:"stopped_at"`
	Message   string    `json:"message"`
}

// WorkspaceStatus is the teacher-facing view of a workspace.
type WorkspaceStatus struct {
	State            LifecycleState   `json:"state"`
	Selection        *Selection       `json:"selection,omitempty"`
	Session          *QRSession       `json:"session,omitempty"`
	Existing         *ExistingSession `json:"existing,omitempty"`
	RemainingMinutes int              `json:"remaining_minutes"`
	Expired          bool             `json:"expired"`
	Roster           *Roster          `json:"roster,omitempty"`
	LastSummary      *StopSummary     `json:"last_summary,omitempty"`
}

// RefreshResult reports a manual roster refresh. Skipped is set when another
// poll was already in flight.
type RefreshResult struct {
	Skipped bool            `json:"skipped"`
	Status  WorkspaceStatus `json:"status"`
}
