// Dispatch HTTP handlers.
//
// This file exposes the send endpoints:
//   - POST /groups/{id}/messages   (fan out to a group, optionally guardians)
//   - POST /people/{id}/messages   (message one person)
//   - GET  /dispatch/stats         (hourly send window and cost)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a result is stored
// for (caller, target, key), the handler rebuilds that result instead of
// sending again and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-group-notify/internal/domain"
	"github.com/tbourn/go-group-notify/internal/http/middleware"
	"github.com/tbourn/go-group-notify/internal/repo"
	"github.com/tbourn/go-group-notify/internal/services"
)

// maxBodyRunes is the longest message the provider will accept
// (ten concatenated segments).
const maxBodyRunes = 1600

//
// DTOs
//

// GroupMessageRequest is the JSON payload for a group send.
type GroupMessageRequest struct {
	// Body is sent to youth and leaders, and to guardians unless
	// GuardianBody is set.
	Body string `json:"body" example:"Practice moved to 6pm at the north field."`
	// IncludeGuardians extends the send to the guardians of youth members.
	IncludeGuardians bool `json:"include_guardians" example:"true"`
	// GuardianBody replaces the body for guardians. Requires include_guardians.
	GuardianBody *string `json:"guardian_body,omitempty" example:"Pickup is at 7:30pm tonight."`
}

// DirectMessageRequest is the JSON payload for a single-person send.
type DirectMessageRequest struct {
	Body string `json:"body" example:"Your uniform is ready for pickup."`
}

// sanitizeBody converts CRLF/CR to LF and trims surrounding whitespace.
func sanitizeBody(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// checkBodies rejects messages the provider would truncate.
func checkBodies(c *gin.Context, bodies ...string) bool {
	for _, b := range bodies {
		if utf8.RuneCountInString(b) > maxBodyRunes {
			fail(c, http.StatusBadRequest, string(services.KindInvalidRequest), "message body exceeds 1600 characters")
			return false
		}
	}
	return true
}

//
// Handlers
//

// SendToGroup godoc
// @ID          sendToGroup
// @Summary     Send a message to a group
// @Description Resolves the group's eligible members (plus guardians of youth when requested), sends to each, and returns per-recipient results. Supports Idempotency-Key replays.
// @Tags        Dispatch
// @Accept      json
// @Produce     json
//
// @Param       id               path    string  true   "Group ID"                          example(G1)
// @Param       X-Caller-ID      header  string  false  "Caller identity"                   example(coach-ana)
// @Param       Idempotency-Key  header  string  false  "Replay-safe key for this send"     example(spring-practice-0412)
// @Param       body             body    handlers.GroupMessageRequest  true  "Message payload"
//
// @Success     200  {object}  services.DispatchResult
// @Header      200  {string}  Idempotency-Replayed  "true when served from a stored result"
// @Failure     400  {object}  handlers.ErrorResponse  "invalid_request / no_eligible_recipients"
// @Failure     404  {object}  handlers.ErrorResponse  "group_not_found"
// @Failure     429  {object}  handlers.ErrorResponse  "rate_limit_exceeded"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/v1/groups/{id}/messages [post]
func (h *Handlers) SendToGroup(c *gin.Context) {
	if h.serveReplay(c) {
		return
	}

	var req GroupMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	sr := domain.SendRequest{
		GroupID:          strings.TrimSpace(c.Param("id")),
		Body:             sanitizeBody(req.Body),
		IncludeGuardians: req.IncludeGuardians,
	}
	if req.GuardianBody != nil {
		gb := sanitizeBody(*req.GuardianBody)
		sr.GuardianBody = &gb
		if !checkBodies(c, gb) {
			return
		}
	}
	if !checkBodies(c, sr.Body) {
		return
	}

	res, err := h.dispatch.Send(c.Request.Context(), sr)
	if err != nil {
		h.failService(c, err, ErrCodeDispatchFailed)
		return
	}
	h.remember(c, res.SendEventID)
	ok(c, http.StatusOK, res)
}

// SendToPerson godoc
// @ID          sendToPerson
// @Summary     Send a message to one person
// @Description Sends a direct message to a single person, subject to the same opt-out, phone and rate-limit rules as group sends. Supports Idempotency-Key replays.
// @Tags        Dispatch
// @Accept      json
// @Produce     json
//
// @Param       id               path    string  true   "Person ID"                      example(P1)
// @Param       X-Caller-ID      header  string  false  "Caller identity"                example(coach-ana)
// @Param       Idempotency-Key  header  string  false  "Replay-safe key for this send"  example(reminder-p1-0412)
// @Param       body             body    handlers.DirectMessageRequest  true  "Message payload"
//
// @Success     200  {object}  services.DispatchResult
// @Failure     400  {object}  handlers.ErrorResponse  "invalid_request / no_eligible_recipients"
// @Failure     404  {object}  handlers.ErrorResponse  "person_not_found"
// @Failure     429  {object}  handlers.ErrorResponse  "rate_limit_exceeded"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/v1/people/{id}/messages [post]
func (h *Handlers) SendToPerson(c *gin.Context) {
	if h.serveReplay(c) {
		return
	}

	var req DirectMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	dr := domain.DirectRequest{
		PersonID: strings.TrimSpace(c.Param("id")),
		Body:     sanitizeBody(req.Body),
	}
	if !checkBodies(c, dr.Body) {
		return
	}

	res, err := h.dispatch.SendDirect(c.Request.Context(), dr)
	if err != nil {
		h.failService(c, err, ErrCodeDispatchFailed)
		return
	}
	if len(res.Results) > 0 {
		h.remember(c, res.Results[0].DeliveryID)
	}
	ok(c, http.StatusOK, res)
}

// DispatchStats godoc
// @ID          dispatchStats
// @Summary     Current send window
// @Description Reports sends in the trailing hour, remaining budget and accumulated cost.
// @Tags        Dispatch
// @Produce     json
// @Success     200  {object}  services.RateStats
// @Router      /api/v1/dispatch/stats [get]
func (h *Handlers) DispatchStats(c *gin.Context) {
	if h.rates == nil {
		ok(c, http.StatusOK, services.RateStats{})
		return
	}
	ok(c, http.StatusOK, h.rates.Stats())
}

// serveReplay answers from the stored result when the idempotency
// middleware found one. It reports whether the request was handled.
func (h *Handlers) serveReplay(c *gin.Context) bool {
	id, found := middleware.ReplayResultID(c)
	if !found {
		return false
	}
	res, err := h.dispatch.LoadResult(c.Request.Context(), id)
	switch {
	case err == nil:
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusOK, res)
	case errors.Is(err, repo.ErrNotFound):
		fail(c, http.StatusConflict, ErrCodeConflict, "idempotency key refers to a result that no longer exists")
	default:
		h.failService(c, err, ErrCodeLookupFailed)
	}
	return true
}

// remember stores resultID under the request's idempotency key, if any.
// The send already happened, so failures are logged and not surfaced.
func (h *Handlers) remember(c *gin.Context, resultID string) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || resultID == "" || h.db == nil {
		return
	}
	scope := middleware.IdempotencyScope(c)
	ctx := context.WithoutCancel(c.Request.Context())
	_, err := repo.CreateIdempotency(ctx, h.db, middleware.CallerID(c), scope, key, resultID, http.StatusOK, h.idemTTL)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrDuplicate):
		middleware.LoggerFrom(c).Warn().Str("scope", scope).Msg("idempotency key stored concurrently; keeping first result")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Str("scope", scope).Msg("store idempotency key")
	}
}
