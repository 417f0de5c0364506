package httpapi

import (
	"errors"
	"net/http"
	"time"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/crm"
	"callcenter-platform/internal/presence"
	"callcenter-platform/internal/reporting"
	"callcenter-platform/internal/telephony"
	"callcenter-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// fail maps module errors onto HTTP statuses. Provider failures are the
// upstream's fault (502), validation the caller's (400); everything else is
// a 500 with the detail kept in the logs, not the response.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrValidation),
		errors.Is(err, presence.ErrValidation),
		errors.Is(err, reporting.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFound),
		errors.Is(err, crm.ErrTaskNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, telephony.ErrProvider):
		logger.FromGin(c).Warn("provider error surfaced", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "voice provider unavailable"})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// timeQuery parses an RFC 3339 query parameter, returning the zero time
// when absent.
func timeQuery(c *gin.Context, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
