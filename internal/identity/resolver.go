// Package identity works out which teacher and college a request acts for.
package identity

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
)

// Header names carrying the front end's cached user and college selections.
const (
	HeaderCurrentUser   = "X-Current-User"
	HeaderActiveCollege = "X-Active-College"
)

// Candidate is what a single source knows about the caller.
type Candidate struct {
	TeacherID string
	CollegeID string
	// Verified marks identity taken from a validated token. Once a verified
	// candidate is seen, later sources cannot supply the teacher id.
	Verified bool
}

// Source looks up a candidate identity from one place in the request.
type Source struct {
	Name   string
	Lookup func(c *gin.Context) Candidate
}

// Resolver consults its sources in order. For each field the first
// non-empty value wins.
type Resolver struct {
	sources []Source
}

// NewResolver builds a resolver over the given ordered sources.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// DefaultResolver resolves from JWT claims stored under claimsKey, then the
// current user header, then the active college header, then the query string.
func DefaultResolver(claimsKey string) *Resolver {
	return NewResolver(
		ProfileSource(claimsKey),
		CurrentUserSource(),
		ActiveCollegeSource(),
		QuerySource(),
	)
}

// Resolve merges the sources. When validated claims are present they are the
// only source of the teacher id. A missing teacher id is unauthorized.
func (r *Resolver) Resolve(c *gin.Context) (models.TeacherContext, error) {
	var tc models.TeacherContext
	verified := false
	for _, src := range r.sources {
		if tc.TeacherID != "" && tc.CollegeID != "" {
			break
		}
		candidate := src.Lookup(c)
		if tc.TeacherID == "" && !verified {
			if id := strings.TrimSpace(candidate.TeacherID); id != "" {
				tc.TeacherID = id
				tc.TeacherSource = src.Name
			}
		}
		if tc.CollegeID == "" {
			if id := strings.TrimSpace(candidate.CollegeID); id != "" {
				tc.CollegeID = id
				tc.CollegeSource = src.Name
			}
		}
		verified = verified || candidate.Verified
	}
	if tc.TeacherID == "" {
		if verified {
			return tc, appErrors.Clone(appErrors.ErrForbidden, "token does not identify a teacher")
		}
		return tc, appErrors.Clone(appErrors.ErrUnauthorized, "teacher identity could not be resolved")
	}
	return tc, nil
}

// ProfileSource reads validated token claims placed in the gin context.
func ProfileSource(claimsKey string) Source {
	return Source{Name: "profile", Lookup: func(c *gin.Context) Candidate {
		value, ok := c.Get(claimsKey)
		if !ok {
			return Candidate{}
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok || claims == nil {
			return Candidate{}
		}
		teacherID := claims.TeacherID
		if teacherID == "" && strings.EqualFold(claims.Role, "teacher") {
			teacherID = claims.UserID
		}
		return Candidate{TeacherID: teacherID, CollegeID: claims.CollegeID, Verified: true}
	}}
}

type headerIdentity struct {
	ID        models.FlexibleID `json:"id"`
	TeacherID models.FlexibleID `json:"teacher_id"`
	CollegeID models.FlexibleID `json:"college_id"`
}

func decodeHeader(c *gin.Context, name string) (headerIdentity, bool) {
	var out headerIdentity
	raw := strings.TrimSpace(c.GetHeader(name))
	if raw == "" {
		return out, false
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, false
	}
	return out, true
}

// CurrentUserSource reads the X-Current-User JSON header. The user id stands
// in for the teacher id when teacher_id is absent.
func CurrentUserSource() Source {
	return Source{Name: "current_user", Lookup: func(c *gin.Context) Candidate {
		user, ok := decodeHeader(c, HeaderCurrentUser)
		if !ok {
			return Candidate{}
		}
		teacherID := user.TeacherID
		if teacherID.IsZero() {
			teacherID = user.ID
		}
		return Candidate{TeacherID: teacherID.String(), CollegeID: user.CollegeID.String()}
	}}
}

// ActiveCollegeSource reads the X-Active-College JSON header.
func ActiveCollegeSource() Source {
	return Source{Name: "active_college", Lookup: func(c *gin.Context) Candidate {
		college, ok := decodeHeader(c, HeaderActiveCollege)
		if !ok {
			return Candidate{}
		}
		collegeID := college.CollegeID
		if collegeID.IsZero() {
			collegeID = college.ID
		}
		return Candidate{TeacherID: college.TeacherID.String(), CollegeID: collegeID.String()}
	}}
}

// QuerySource reads teacher_id and college_id query parameters.
func QuerySource() Source {
	return Source{Name: "query", Lookup: func(c *gin.Context) Candidate {
		return Candidate{TeacherID: c.Query("teacher_id"), CollegeID: c.Query("college_id")}
	}}
}
