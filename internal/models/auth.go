package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the access token issued by the college portal.
type JWTClaims struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	TeacherID string `json:"teacher_id,omitempty"`
	CollegeID string `json:"college_id,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// TeacherContext identifies the teacher and college a request acts for.
type TeacherContext struct {
	TeacherID     string `json:"teacher_id"`
	CollegeID     string `json:"college_id"`
	TeacherSource string `json:"teacher_source,omitempty"`
	CollegeSource string `json:"college_source,omitempty"`
}
