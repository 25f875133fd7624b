package links

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("link not found")
	ErrKeyTaken        = errors.New("key taken")
	ErrKeyEmpty        = errors.New("key empty after normalization")
	ErrKeyInvalid      = errors.New("key contains invalid characters")
	ErrForbidden       = errors.New("principal does not own this link")
	ErrUnauthenticated = errors.New("authentication required")
	ErrConflict        = errors.New("storage conflict")
)

// Principal is the acting identity supplied by the request context.
// A zero Principal is anonymous.
type Principal struct {
	ID            string
	Authenticated bool
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal { return Principal{} }

// Link maps a short key to a destination URL.
type Link struct {
	Key         string
	Destination string
	Title       string
	UserID      string // empty for anonymously created links
	TotalClicks int64
	Tags        []string
	CreatedOn   time.Time
	ModifiedOn  time.Time
}

// Owned reports whether the link has an owning user.
func (l *Link) Owned() bool { return l.UserID != "" }

// ValidationError carries field-level validation failures. It is surfaced
// to the caller with per-field detail and is never fatal.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Fields[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// CreateLinkInput holds the raw, caller-supplied fields for link creation.
type CreateLinkInput struct {
	Destination string
	CustomKey   string
	Title       string
	Tags        []string
}

// EditLinkInput holds the fields to change on an existing link.
// Nil pointers leave the corresponding field untouched.
type EditLinkInput struct {
	Destination *string
	Title       *string
	Tags        []string // nil leaves tags untouched; empty slice clears them
}
