// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints,
// including the success envelope, structured error envelopes, and the mapping
// of service error kinds to HTTP statuses. The goal is to guarantee uniform
// responses for both success and failure cases, making the API predictable
// and machine-friendly.
//
// Conventions:
//   - Success responses are wrapped in an Envelope {statusCode, message, payload}.
//   - All error responses must return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error logging and formatting, ensuring 5xx responses
//     are logged with request context for observability.
//   - `failErr()` translates service errors: bad request → 400, conflict → 409,
//     not found → 404, anything else → 500.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "product not found"
//	}
//
// Example success response:
//
//	HTTP/1.1 201 Created
//	{ "statusCode": 201, "message": "brand created", "payload": { "id": "…", "name": "Acme" } }
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-storefront-backend/internal/http/middleware"
	"github.com/tbourn/go-storefront-backend/internal/services"
)

// Envelope is the success body returned by every endpoint.
type Envelope struct {
	StatusCode int    `json:"statusCode" example:"200"`
	Message    string `json:"message"    example:"products fetched"`
	Payload    any    `json:"payload"`
}

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: Optional correlation ID, echoed from X-Request-ID header, used
//     to correlate server logs with client-side errors.
//   - Code: A stable, machine-readable string (see errors.go constants).
//   - Message: A human-readable error description, safe for display to users.
//
// This struct is used in OpenAPI documentation via Swagger annotations.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, code, msg, nil)
}

// failWith is fail with an optional underlying cause that is logged but
// never sent to the client.
func failWith(c *gin.Context, status int, code, msg string, cause error) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	// Log 5xx (server-side) with request-scoped logger
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		ev := lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg)
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error onto the error envelope.
func failErr(c *gin.Context, err error) {
	var se *services.Error
	msg := ""
	if errors.As(err, &se) {
		msg = se.Msg
	}
	switch {
	case errors.Is(err, services.ErrBadRequest):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, orDefault(msg, "bad request"))
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, orDefault(msg, "conflict"))
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, orDefault(msg, "resource not found"))
	default:
		failWith(c, http.StatusInternalServerError, ErrCodeInternal, "internal error", err)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ok writes a success envelope with the given status.
func ok(c *gin.Context, status int, msg string, payload any) {
	c.JSON(status, Envelope{StatusCode: status, Message: msg, Payload: payload})
}
