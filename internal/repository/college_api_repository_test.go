package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	"github.com/noah-isme/qr-attendance-gateway/pkg/config"
	"github.com/noah-isme/qr-attendance-gateway/pkg/storage"
)

func newTestCollegeAPI(t *testing.T, handler http.HandlerFunc) *CollegeAPIRepository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCollegeAPIRepository(config.CollegeAPIConfig{BaseURL: srv.URL + "/"}, srv.Client(), zap.NewNop())
}

func testScope() models.Scope {
	return models.Scope{
		AcademicYearID: "2026",
		SemesterID:     "1",
		DivisionID:     "A",
		SubjectID:      "501",
		TimeSlotID:     "7",
		Date:           "2026-10-17",
	}
}

func TestCollegeAPITeacherAllocations(t *testing.T) {
	repo := newTestCollegeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/teacher/allocated-programs/T-9", r.URL.Path)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"success":true,"data":{"class_teacher_allocation":[{"subject_id":501,"subject_name":"Physics","division_name":"FY-A"}],"normal_allocation":[]}}`)
	})

	programs, err := repo.TeacherAllocations(WithBearerToken(context.Background(), "abc"), "T-9")
	require.NoError(t, err)
	alloc, ok := programs.FindSubject("501")
	require.True(t, ok)
	assert.Equal(t, "Physics", alloc.SubjectName)
}

func TestCollegeAPIFindQRSessionsSendsScope(t *testing.T) {
	repo := newTestCollegeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "501", q.Get("paper_id"))
		assert.Equal(t, "7", q.Get("time_slot_id"))
		assert.Equal(t, "2026-10-17", q.Get("date"))
		_, _ = io.WriteString(w, `{"data":[{"id":88,"date":"2026-10-17","start_time":"09:00:00","end_time":"09:05:00","laptop_code":"ABC123"}]}`)
	})

	records, err := repo.FindQRSessions(context.Background(), testScope())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "88", records[0].ID.String())
	assert.Equal(t, "ABC123", records[0].LaptopCode)
}

func TestCollegeAPISaveQRSessionRejected(t *testing.T) {
	repo := newTestCollegeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"message":"slot already closed"}`)
	})

	_, err := repo.SaveQRSession(context.Background(), models.SaveQRSessionPayload{SessionID: "s1"})
	require.Error(t, err)
	assert.Equal(t, "slot already closed", UpstreamMessage(err))
}

func TestCollegeAPISaveQRSessionReturnsServerID(t *testing.T) {
	repo := newTestCollegeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		var payload models.SaveQRSessionPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "501", payload.PaperID)
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"991"}}`)
	})

	id, err := repo.SaveQRSession(context.Background(), models.SaveQRSessionPayload{PaperID: "501"})
	require.NoError(t, err)
	assert.Equal(t, "991", id)
}

func TestCollegeAPIUploadParsesLinkShapes(t *testing.T) {
	bodies := []string{
		`"https://cdn.example/qr.png"`,
		`{"url":"https://cdn.example/qr.png"}`,
		`{"success":true,"data":{"path":"https://cdn.example/qr.png"}}`,
	}
	for _, body := range bodies {
		body := body
		repo := newTestCollegeAPI(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close() //nolint:errcheck
			assert.Equal(t, "qr.png", header.Filename)
			_, _ = io.WriteString(w, body)
		})

		link, err := repo.Upload(context.Background(), storage.Object{Key: "qr-sessions/qr.png", ContentType: "image/png", Data: []byte{1, 2, 3}})
		require.NoError(t, err, body)
		assert.Equal(t, "https://cdn.example/qr.png", link)
	}
}

func TestCollegeAPIUpstreamStatusError(t *testing.T) {
	repo := newTestCollegeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"database down"}`)
	})

	_, err := repo.GroupedAttendance(context.Background(), models.GroupedAttendanceFilter{Scope: testScope()})
	require.Error(t, err)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusInternalServerError, upstream.Status)
	assert.Equal(t, "database down", upstream.Message)
}
