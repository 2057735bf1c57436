package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderCallerID identifies the staff member or system issuing a request.
// Authentication is handled upstream; the value is trusted as-is and only
// scopes idempotency keys and rate-limit buckets.
const HeaderCallerID = "X-Caller-ID"

// AnonymousCaller is used when no caller identity is supplied.
const AnonymousCaller = "anonymous"

const (
	ctxKeyCaller   = "callerID"
	maxCallerIDLen = 128
)

// Caller resolves the caller identity once per request and stores it in the
// Gin context. An identity set earlier in the chain (e.g. by an auth proxy
// adapter) wins over the header.
func Caller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxKeyCaller); !ok {
			id := strings.TrimSpace(c.GetHeader(HeaderCallerID))
			if len(id) > maxCallerIDLen {
				id = id[:maxCallerIDLen]
			}
			if id != "" {
				c.Set(ctxKeyCaller, id)
			}
		}
		c.Next()
	}
}

// CallerID returns the caller identity for the request, or AnonymousCaller.
func CallerID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyCaller); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return AnonymousCaller
}
