package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuseval/teval-api/internal/service"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
	"github.com/campuseval/teval-api/pkg/response"
)

// CSRFHeader carries the per-session secret on state-changing requests.
const CSRFHeader = "X-CSRF-Token"

// CSRF requires a matching per-session token on mutating requests. Reads
// pass through untouched.
func CSRF(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := c.GetHeader(CSRFHeader)
		if err := authService.VerifyCSRF(c.Request.Context(), claims.Role, claims.UserID, token); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
