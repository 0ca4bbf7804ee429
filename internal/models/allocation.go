package models

import "strings"

// TeacherAllocation is one subject/division pairing assigned to a teacher.
type TeacherAllocation struct {
	AllocationID   FlexibleID `json:"allocation_id,omitempty"`
	AcademicYearID FlexibleID `json:"academic_year_id"`
	SemesterID     FlexibleID `json:"semester_id"`
	DivisionID     FlexibleID `json:"division_id"`
	DivisionName   string     `json:"division_name"`
	SubjectID      FlexibleID `json:"subject_id"`
	SubjectName    string     `json:"subject_name"`
	ProgramName    string     `json:"program_name,omitempty"`
}

// AllocatedPrograms groups the teacher's class-teacher and normal allocations.
type AllocatedPrograms struct {
	ClassTeacherAllocation []TeacherAllocation `json:"class_teacher_allocation"`
	NormalAllocation       []TeacherAllocation `json:"normal_allocation"`
}

// All returns class-teacher allocations followed by normal ones.
func (p AllocatedPrograms) All() []TeacherAllocation {
	out := make([]TeacherAllocation, 0, len(p.ClassTeacherAllocation)+len(p.NormalAllocation))
	out = append(out, p.ClassTeacherAllocation...)
	return append(out, p.NormalAllocation...)
}

// FindSubject returns the first allocation whose subject id matches.
func (p AllocatedPrograms) FindSubject(subjectID string) (TeacherAllocation, bool) {
	subjectID = strings.TrimSpace(subjectID)
	for _, alloc := range p.All() {
		if alloc.SubjectID.String() == subjectID {
			return alloc, true
		}
	}
	return TeacherAllocation{}, false
}

// TimeSlot is a timetable period the teacher can open a session for.
type TimeSlot struct {
	TimeSlotID            FlexibleID `json:"time_slot_id" validate:"required"`
	TimetableID           FlexibleID `json:"timetable_id" validate:"required"`
	TimetableAllocationID FlexibleID `json:"timetable_allocation_id,omitempty"`
	StartTime             string     `json:"start_time,omitempty"`
	EndTime               string     `json:"end_time,omitempty"`
	IsHoliday             bool       `json:"is_holiday,omitempty"`
}

// TimeSlotFilter narrows the timetable slots returned by the college API.
type TimeSlotFilter struct {
	TeacherID      string
	CollegeID      string
	AcademicYearID string
	SemesterID     string
	DivisionID     string
	SubjectID      string
	Date           string
}
