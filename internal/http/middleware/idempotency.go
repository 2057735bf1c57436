// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for the dispatch endpoints. It
// validates an Idempotency-Key request header, looks up a previously
// recorded result for (caller, scope, key), and annotates the request
// context so downstream handlers can:
//   - read the normalized key and scope (GetIdempotencyKey, IdempotencyScope)
//   - detect replays and fetch the stored result id (ReplayResultID)
//   - bypass rate limiting when a replay is served (via an internal flag)
//
// Persistence stays behind the narrow IdempotencyLookup function type.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for a send.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses rebuilt from a
// stored result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemResult = "idem.result" // string: stored result id of a replay
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated idempotency key stored by
// IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IdempotencyScope returns the scope the key was validated against.
func IdempotencyScope(c *gin.Context) string {
	v, _ := c.Get(ctxKeyIdemScope)
	s, _ := v.(string)
	return s
}

// ReplayResultID returns the id of the stored result when this request
// replays a completed send.
func ReplayResultID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemResult)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the request replays a previously completed send.
func IsReplay(c *gin.Context) bool {
	_, ok := ReplayResultID(c)
	return ok
}

// ScopeFunc derives the idempotency scope (the dispatch target) from a
// request, e.g. "group:<id>". An empty scope means the route does not take
// part in idempotency and the header is ignored.
type ScopeFunc func(*gin.Context) string

// ScopeByRoute maps registered routes (as reported by c.FullPath) to a scope
// prefix; the scope is prefix + ":" + the "id" path parameter. Routes not in
// the map yield "".
func ScopeByRoute(routes map[string]string) ScopeFunc {
	return func(c *gin.Context) string {
		prefix, ok := routes[c.FullPath()]
		if !ok {
			return ""
		}
		return prefix + ":" + c.Param("id")
	}
}

// IdempotencyOptions configures header validation for IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 128.
	MaxLen int
	// Pattern restricts allowed characters. If nil: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
	// Scope derives the target of the send. Nil applies the key to every
	// route, scoped by its path.
	Scope ScopeFunc
}

// IdempotencyLookup returns the id of a still-valid result stored for
// (callerID, scope, key) at now, and whether one exists. Errors are lookup
// failures and do not block normal processing.
type IdempotencyLookup func(ctx context.Context, callerID, scope, key string, now time.Time) (resultID string, found bool, err error)

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it with its scope, and consults lookup for a prior result. On a
// hit it records the result id and marks the request for rate-limit bypass.
//
// Behavior:
//   - If header is absent or the route has no scope: the middleware is a no-op.
//   - If header fails validation: responds 400 with the error envelope.
//   - Always invokes the next handler unless validation fails.
//
// It does not itself write the stored payload; handlers rebuild it.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 128
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	scopeFn := opts.Scope
	if scopeFn == nil {
		scopeFn = func(c *gin.Context) string { return c.FullPath() }
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		scope := scopeFn(c)
		if scope == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)

		if lookup != nil {
			caller := CallerID(c)
			id, found, err := lookup(c.Request.Context(), caller, scope, key, time.Now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency lookup failed")
			case found:
				c.Set(ctxKeyIdemResult, id)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
