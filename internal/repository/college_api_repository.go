package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	"github.com/noah-isme/qr-attendance-gateway/pkg/config"
	"github.com/noah-isme/qr-attendance-gateway/pkg/storage"
)

const (
	pathAllocatedPrograms = "/teacher/allocated-programs/%s"
	pathTimeSlots         = "/timetable/time-slots"
	pathQRSession         = "/attendance/qr-session"
	pathUpload            = "/files/upload"
	pathGroupedAttendance = "/attendance/grouped"

	maxResponseBytes = 4 << 20
)

type bearerTokenKey struct{}

// WithBearerToken attaches the caller's access token so it is forwarded upstream.
func WithBearerToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

func bearerToken(ctx context.Context) string {
	token, _ := ctx.Value(bearerTokenKey{}).(string)
	return token
}

// HasBearerToken reports whether ctx carries a token to forward.
func HasBearerToken(ctx context.Context) bool {
	return bearerToken(ctx) != ""
}

// UpstreamError describes a failed or rejected college API call.
type UpstreamError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// UpstreamMessage returns the server supplied message of an UpstreamError, if any.
func UpstreamMessage(err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Message
	}
	return ""
}

type apiEnvelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CollegeAPIRepository talks to the college administration REST API.
type CollegeAPIRepository struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewCollegeAPIRepository constructs the client. A nil httpClient gets the configured timeout.
func NewCollegeAPIRepository(cfg config.CollegeAPIConfig, httpClient *http.Client, logger *zap.Logger) *CollegeAPIRepository {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollegeAPIRepository{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
		logger:  logger,
	}
}

// TeacherAllocations returns the subjects and divisions allocated to a teacher.
func (r *CollegeAPIRepository) TeacherAllocations(ctx context.Context, teacherID string) (*models.AllocatedPrograms, error) {
	var programs models.AllocatedPrograms
	path := fmt.Sprintf(pathAllocatedPrograms, url.PathEscape(teacherID))
	if err := r.getJSON(ctx, path, nil, &programs); err != nil {
		return nil, err
	}
	return &programs, nil
}

// TimeSlots lists the timetable slots matching the filter.
func (r *CollegeAPIRepository) TimeSlots(ctx context.Context, filter models.TimeSlotFilter) ([]models.TimeSlot, error) {
	query := url.Values{}
	setIfPresent(query, "teacher_id", filter.TeacherID)
	setIfPresent(query, "college_id", filter.CollegeID)
	setIfPresent(query, "academic_year_id", filter.AcademicYearID)
	setIfPresent(query, "semester_id", filter.SemesterID)
	setIfPresent(query, "division_id", filter.DivisionID)
	setIfPresent(query, "subject_id", filter.SubjectID)
	setIfPresent(query, "date", filter.Date)

	var slots []models.TimeSlot
	if err := r.getJSON(ctx, pathTimeSlots, query, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// FindQRSessions looks up persisted sessions for the scope.
func (r *CollegeAPIRepository) FindQRSessions(ctx context.Context, scope models.Scope) ([]models.QRSessionRecord, error) {
	query := scopeQuery(scope)
	var records []models.QRSessionRecord
	if err := r.getJSON(ctx, pathQRSession, query, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveQRSession persists a generated session and returns the server assigned
// id when the response carries one.
func (r *CollegeAPIRepository) SaveQRSession(ctx context.Context, payload models.SaveQRSessionPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal qr session: %w", err)
	}
	raw, err := r.do(ctx, http.MethodPost, pathQRSession, nil, bytes.NewReader(body), "application/json")
	if err != nil {
		return "", err
	}
	var saved struct {
		ID models.FlexibleID `json:"id"`
	}
	if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &saved) == nil {
		return saved.ID.String(), nil
	}
	return "", nil
}

// UploadFile stores a file through the college upload endpoint and returns its link.
func (r *CollegeAPIRepository) UploadFile(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create upload part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write upload part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close upload body: %w", err)
	}

	raw, err := r.send(ctx, http.MethodPost, pathUpload, nil, buf, writer.FormDataContentType())
	if err != nil {
		return "", err
	}
	link := parseUploadLink(raw)
	if link == "" {
		return "", &UpstreamError{Method: http.MethodPost, Path: pathUpload, Status: http.StatusOK, Message: "upload response carried no link"}
	}
	return link, nil
}

// Upload adapts UploadFile to the storage.Uploader contract.
func (r *CollegeAPIRepository) Upload(ctx context.Context, obj storage.Object) (string, error) {
	return r.UploadFile(ctx, path.Base(obj.Key), obj.ContentType, obj.Data)
}

// GroupedAttendance returns the attendance groups recorded for a class meeting.
func (r *CollegeAPIRepository) GroupedAttendance(ctx context.Context, filter models.GroupedAttendanceFilter) ([]models.AttendanceGroup, error) {
	query := scopeQuery(filter.Scope)
	setIfPresent(query, "teacher_id", filter.TeacherID)
	setIfPresent(query, "college_id", filter.CollegeID)

	var groups []models.AttendanceGroup
	if err := r.getJSON(ctx, pathGroupedAttendance, query, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *CollegeAPIRepository) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	raw, err := r.do(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// do performs the request and returns the envelope data, or the whole body when
// the endpoint does not use the envelope.
func (r *CollegeAPIRepository) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (json.RawMessage, error) {
	payload, err := r.send(ctx, method, path, query, body, contentType)
	if err != nil {
		return nil, err
	}
	var envelope apiEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return payload, nil
	}
	if envelope.Success == nil && envelope.Data == nil {
		return payload, nil
	}
	return envelope.Data, nil
}

// send performs the HTTP exchange and rejects non-2xx statuses and
// envelopes flagged with success=false.
func (r *CollegeAPIRepository) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (json.RawMessage, error) {
	endpoint := r.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := bearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("college api request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	r.logger.Debug("college api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	var envelope apiEnvelope
	decodeErr := json.Unmarshal(payload, &envelope)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := envelope.Message
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(payload))
			if len(msg) > 200 {
				msg = msg[:200]
			}
		}
		return nil, &UpstreamError{Method: method, Path: path, Status: resp.StatusCode, Message: msg}
	}
	if decodeErr == nil && envelope.Success != nil && !*envelope.Success {
		return nil, &UpstreamError{Method: method, Path: path, Status: resp.StatusCode, Message: envelope.Message}
	}
	return json.RawMessage(payload), nil
}

func parseUploadLink(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var link string
	if err := json.Unmarshal(raw, &link); err == nil {
		return strings.TrimSpace(link)
	}
	var obj struct {
		Path     string          `json:"path"`
		URL      string          `json:"url"`
		Location string          `json:"location"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	switch {
	case obj.URL != "":
		return obj.URL
	case obj.Path != "":
		return obj.Path
	case obj.Location != "":
		return obj.Location
	case len(obj.Data) > 0:
		return parseUploadLink(obj.Data)
	}
	return ""
}

func scopeQuery(scope models.Scope) url.Values {
	query := url.Values{}
	setIfPresent(query, "academic_year_id", scope.AcademicYearID)
	setIfPresent(query, "semester_id", scope.SemesterID)
	setIfPresent(query, "division_id", scope.DivisionID)
	setIfPresent(query, "paper_id", scope.SubjectID)
	setIfPresent(query, "time_slot_id", scope.TimeSlotID)
	setIfPresent(query, "date", scope.Date)
	return query
}

func setIfPresent(values url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		values.Set(key, value)
	}
}
