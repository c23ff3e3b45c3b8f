package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campuseval/teval-api/internal/middleware"
	"github.com/campuseval/teval-api/internal/models"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

// pathID parses a numeric path parameter.
func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
	}
	return id, nil
}

// currentClaims pulls authenticated claims or fails with 401.
func currentClaims(c *gin.Context) (*models.JWTClaims, error) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
