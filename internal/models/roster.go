package models

import (
	"strings"
	"time"
)

// GroupedStudent is one student entry inside a grouped attendance response.
type GroupedStudent struct {
	StudentID  FlexibleID `json:"student_id"`
	Firstname  string     `json:"firstname"`
	Lastname   string     `json:"lastname"`
	RollNumber FlexibleID `json:"roll_number"`
}

// AttendanceGroup is one group of the grouped attendance endpoint.
type AttendanceGroup struct {
	Students []GroupedStudent `json:"students"`
}

// GroupedAttendanceFilter scopes a grouped attendance lookup.
type GroupedAttendanceFilter struct {
	Scope     Scope
	TeacherID string
	CollegeID string
}

// ScanRecord is a student observed in the latest applied poll.
type ScanRecord struct {
	StudentID  string    `json:"student_id"`
	Name       string    `json:"name"`
	RollNumber string    `json:"roll_number"`
	ObservedAt time.Time `json:"observed_at"`
}

// Roster is the live list of students who scanned the current session.
type Roster struct {
	SessionID       string       `json:"session_id"`
	Records         []ScanRecord `json:"records"`
	Count           int          `json:"count"`
	Sequence        uint64       `json:"sequence"`
	LastRefreshedAt time.Time    `json:"last_refreshed_at"`
}

// FlattenGroups merges grouped students into one roster, keeping the first
// occurrence of every student id.
func FlattenGroups(groups []AttendanceGroup, observedAt time.Time) []ScanRecord {
	seen := make(map[string]struct{})
	records := make([]ScanRecord, 0)
	for _, group := range groups {
		for _, student := range group.Students {
			id := student.StudentID.String()
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			records = append(records, ScanRecord{
				StudentID:  id,
				Name:       strings.TrimSpace(student.Firstname + " " + student.Lastname),
				RollNumber: student.RollNumber.String(),
				ObservedAt: observedAt,
			})
		}
	}
	return records
}
