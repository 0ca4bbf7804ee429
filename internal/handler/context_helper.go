package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qr-attendance-gateway/internal/middleware"
	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
	"github.com/noah-isme/qr-attendance-gateway/pkg/response"
)

// teacherFromContext returns the resolved teacher or writes a 401.
func teacherFromContext(c *gin.Context) (models.TeacherContext, bool) {
	tc, ok := middleware.TeacherFromContext(c)
	if !ok || tc.TeacherID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "teacher identity could not be resolved"))
		return models.TeacherContext{}, false
	}
	return tc, true
}

func responseMeta(c *gin.Context) map[string]interface{} {
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	return meta
}
