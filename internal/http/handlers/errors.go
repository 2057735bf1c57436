// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Engine
// errors keep their own kind as the code (group_not_found, rate_limit_exceeded,
// ...), so the taxonomy seen over HTTP matches the one in the logs.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "group_not_found",
//	  "message": "group G9 does not exist"
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-group-notify/internal/http/middleware"
	"github.com/tbourn/go-group-notify/internal/repo"
	"github.com/tbourn/go-group-notify/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTimeout          = "timeout"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeDispatchFailed = "dispatch_failed"
	ErrCodeHistoryFailed  = "history_failed"
	ErrCodeLookupFailed   = "lookup_failed"
)

// statusForKind maps engine error kinds to HTTP statuses.
var statusForKind = map[services.Kind]int{
	services.KindGroupNotFound:        http.StatusNotFound,
	services.KindPersonNotFound:       http.StatusNotFound,
	services.KindNoEligibleRecipients: http.StatusBadRequest,
	services.KindRateLimitExceeded:    http.StatusTooManyRequests,
	services.KindInvalidSignature:     http.StatusForbidden,
	services.KindInvalidRequest:       http.StatusBadRequest,
	services.KindMalformedCallback:    http.StatusBadRequest,
}

// failService translates an error returned by the engine into the error
// envelope. Unknown errors become 5xx with fallbackCode and are logged;
// their text never reaches the client.
func (h *Handlers) failService(c *gin.Context, err error, fallbackCode string) {
	var se *services.Error
	if errors.As(err, &se) {
		if status, ok := statusForKind[se.Kind]; ok {
			if se.Kind == services.KindRateLimitExceeded {
				c.Header("Retry-After", retryAfterSeconds(h.rates))
			}
			msg := se.Detail
			if msg == "" {
				msg = string(se.Kind)
			}
			fail(c, status, string(se.Kind), msg)
			return
		}
	}

	switch {
	case errors.Is(err, repo.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "resource not found")
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Str("code", fallbackCode).Msg("request failed")
		fail(c, http.StatusInternalServerError, fallbackCode, "internal server error")
	}
}

// retryAfterSeconds renders the limiter's wait as whole seconds, at least 1.
func retryAfterSeconds(r RateStatser) string {
	var wait time.Duration
	if r != nil {
		wait = r.RetryAfter()
	}
	secs := int64((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
