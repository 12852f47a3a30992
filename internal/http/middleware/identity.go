// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. There is no authentication: the
// X-User-ID header is trusted as a demo identity and stored in the Gin
// context under "userID", where the rate limiter, idempotency validator and
// handlers read it.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the demo caller identity.
const HeaderUserID = "X-User-ID"

// ctxKeyUserID is shared with KeyByUserOrIP.
const ctxKeyUserID = "userID"

// DefaultUserID is used when a request carries no identity.
const DefaultUserID = "demo-user"

// Identity copies a non-blank X-User-ID header into the Gin context. A value
// already set by an earlier middleware wins.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxKeyUserID); !ok {
			if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
				c.Set(ctxKeyUserID, h)
			}
		}
		c.Next()
	}
}

// UserID returns the caller identity from the Gin context, falling back to
// the X-User-ID header and finally to DefaultUserID.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return h
		}
	}
	return DefaultUserID
}
