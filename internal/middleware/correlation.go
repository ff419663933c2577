// Package middleware holds gin middleware shared by every HTTP surface
// this engine exposes: the upgrade route, /metrics and /health.
package middleware

import (
	"context"

	"github.com/sio-engine/socketio/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderXCorrelationID is the header carrying a request's correlation id,
// read from an inbound request if present and always echoed on the
// response.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID stamps every request with a correlation id, generating one
// if the client didn't supply it, and makes it available to the logging
// package via the request context.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXCorrelationID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(HeaderXCorrelationID, id)

		ctx := context.WithValue(c.Request.Context(), logging.CorrelationIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
