package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qr-attendance-gateway/internal/identity"
	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	"github.com/noah-isme/qr-attendance-gateway/pkg/logger"
	"github.com/noah-isme/qr-attendance-gateway/pkg/response"
)

// ContextTeacherKey is the gin context key storing the resolved teacher context.
const ContextTeacherKey = "teacherContext"

// Teacher resolves the acting teacher and rejects the request when none is found.
func Teacher(resolver *identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, err := resolver.Resolve(c)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextTeacherKey, tc)
		c.Set(logger.TeacherKey, tc.TeacherID)
		c.Next()
	}
}

// TeacherFromContext returns the teacher context set by Teacher.
func TeacherFromContext(c *gin.Context) (models.TeacherContext, bool) {
	value, exists := c.Get(ContextTeacherKey)
	if !exists {
		return models.TeacherContext{}, false
	}
	tc, ok := value.(models.TeacherContext)
	return tc, ok
}
