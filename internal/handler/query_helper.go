package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
)

// timeRange reads from/to query parameters as RFC3339 timestamps. When
// absent, the range defaults to the next defaultDays days.
func timeRange(c *gin.Context, defaultDays int) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now
	to := now.AddDate(0, 0, defaultDays)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339")
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339")
		}
		to = parsed
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}
	return from, to, nil
}

// parseRFC3339 parses a required timestamp field from a request body.
func parseRFC3339(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, field+" is required")
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, field+" must be RFC3339")
	}
	return parsed, nil
}
