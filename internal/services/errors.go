// Package services defines the business logic for the storefront catalog,
// carts, wishlists and orders. This file centralizes the service-level error
// kinds so that they can be consistently returned by service methods and
// checked by callers.
//
// Every failure a client can cause is an *Error whose Kind is one of the
// sentinels below; callers test it with errors.Is. Translation into HTTP
// status codes is performed at the handler layer.
package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/repo"
)

var (
	// ErrBadRequest marks malformed identifiers, missing required fields and
	// rule violations in the request itself.
	ErrBadRequest = errors.New("bad request")

	// ErrConflict marks uniqueness violations (name, slug, SKU, code).
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a missing record or a missing sub-resource under a
	// valid parent.
	ErrNotFound = errors.New("not found")
)

// Error is a classified service failure with a client-facing message.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Unwrap exposes the kind to errors.Is.
func (e *Error) Unwrap() error { return e.Kind }

func badRequest(format string, args ...any) error {
	return &Error{Kind: ErrBadRequest, Msg: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

// isNotFound treats repo-level not found sentinels as "not found" in a
// driver-agnostic way.
func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// isDuplicate detects unique-constraint violations across drivers.
func isDuplicate(err error) bool {
	return repo.IsUniqueViolation(err)
}

// uniqueColumn extracts the offending column from a driver message such as
// "UNIQUE constraint failed: brands.slug". It returns "" when unknown.
func uniqueColumn(err error) string {
	msg := err.Error()
	i := strings.LastIndex(msg, "failed: ")
	if i < 0 {
		return ""
	}
	col := msg[i+len("failed: "):]
	if j := strings.IndexAny(col, ", "); j >= 0 {
		col = col[:j]
	}
	if k := strings.LastIndexByte(col, '.'); k >= 0 {
		col = col[k+1:]
	}
	return col
}
