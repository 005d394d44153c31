package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/everkeep/pkg/errors"
	"github.com/charlesng35/everkeep/pkg/logger"
	"github.com/charlesng35/everkeep/pkg/response"
)

// Recovery traps handler panics, logs them with the request path, and
// answers with a generic 500. The panic value never reaches the client.
func Recovery() gin.HandlerFunc {
	log := logger.WithModule("http")

	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			log.Error("panic recovered",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", r),
			)

			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Envelope{
				Success: false,
				Error: &response.ErrorInfo{
					Code:    "INTERNAL_SERVER_ERROR",
					Message: "Internal server error",
				},
			})
		}()

		c.Next()
	}
}

// NotFoundHandler answers unknown routes with the standard 404 envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.ErrNotFound)
}
