package models

import "time"

// SessionHistory is the stored summary of a stopped QR session.
type SessionHistory struct {
	ID             string        `db:"id" json:"id"`
	SessionID      string        `db:"session_id" json:"session_id"`
	TeacherID      string        `db:"teacher_id" json:"teacher_id"`
	CollegeID      string        `db:"college_id" json:"college_id"`
	AcademicYearID string        `db:"academic_year_id" json:"academic_year_id"`
	SemesterID     string        `db:"semester_id" json:"semester_id"`
	DivisionID     string        `db:"division_id" json:"division_id"`
	SubjectID      string        `db:"subject_id" json:"subject_id"`
	TimeSlotID     string        `db:"time_slot_id" json:"time_slot_id"`
	SessionDate    time.Time     `db:"session_date" json:"session_date"`
	Source         SessionSource `db:"source" json:"source"`
	StartedAt      time.Time     `db:"started_at" json:"started_at"`
	ExpiresAt      time.Time     `db:"expires_at" json:"expires_at"`
	StoppedAt      time.Time     `db:"stopped_at" json:"stopped_at"`
	ScanCount      int           `db:"scan_count" json:"scan_count"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// SessionHistoryFilter narrows history listings.
type SessionHistoryFilter struct {
	TeacherID string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}
