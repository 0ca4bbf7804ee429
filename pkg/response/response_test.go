package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
	"github.com/noah-isme/qr-attendance-gateway/pkg/middleware/requestid"
)

func TestErrorEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/fail", func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrNoActiveSession, "no active QR session"))
	})

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Meta map[string]string `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "NO_ACTIVE_SESSION", envelope.Error.Code)
	assert.Equal(t, "req-42", envelope.Meta["request_id"])
}

func TestErrorHidesUntypedErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Error(c, errors.New("dial tcp 10.0.0.3:5432: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.3")
}

func TestAttachmentQuotesFilename(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Attachment(c, "roster.csv", "text/csv", []byte("No\n"))

	assert.Equal(t, "attachment; filename=roster.csv", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "No\n", w.Body.String())
}
