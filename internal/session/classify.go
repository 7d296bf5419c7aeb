package session

import (
	"errors"
	"strings"
)

// Category is the internal failure taxonomy. The transport does not expose a
// reliable structured error code, so human-readable error text is classified
// here and nowhere else; vendor wording drift only requires updating this
// table.
type Category string

const (
	CategoryAuth       Category = "auth_failure"
	CategoryPermission Category = "permission_denied"
	CategoryNetwork    Category = "network_failure"
	CategoryUnknown    Category = "unknown"
)

var classifyTable = []struct {
	category Category
	patterns []string
}{
	{CategoryAuth, []string{
		"401",
		"unauthorized",
		"no access token",
		"invalid credentials",
	}},
	{CategoryPermission, []string{
		"403",
		"forbidden",
	}},
	{CategoryNetwork, []string{
		"timeout",
		"timed out",
		"deadline exceeded",
		"abnormal closure",
		"1006",
		"connection refused",
		"connection reset",
		"connection closed",
		"network error",
		"network is unreachable",
		"no route to host",
		"use of closed network connection",
		"websocket: close",
		"bad handshake",
		"broken pipe",
	}},
}

// Classify maps opaque transport error text onto the internal taxonomy.
// Unmatched text falls into CategoryUnknown; the original message is always
// preserved on the resulting Error for diagnostics.
func Classify(message string) Category {
	lower := strings.ToLower(message)
	for _, entry := range classifyTable {
		for _, pattern := range entry.patterns {
			if strings.Contains(lower, pattern) {
				return entry.category
			}
		}
	}
	return CategoryUnknown
}

// Error is a classified session failure. It carries the taxonomy category
// alongside the original transport message.
type Error struct {
	Category Category
	Message  string
}

func (e *Error) Error() string {
	switch e.Category {
	case CategoryAuth:
		return "authentication failed: " + e.Message
	case CategoryPermission:
		return "permission denied: " + e.Message
	case CategoryNetwork:
		return "network failure: " + e.Message
	default:
		return "transcription error: " + e.Message
	}
}

// NewError classifies message and wraps it
func NewError(message string) *Error {
	return &Error{Category: Classify(message), Message: message}
}

// CategoryOf extracts the category from an error, classifying its text when
// the error is not already a session Error
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Category
	}
	return Classify(err.Error())
}

// RetryPolicy decides whether a connect failure is worth one more attempt.
// The default treats classified network failures as transient; auth and
// permission failures never retry.
type RetryPolicy struct {
	ShouldRetry func(err error) bool
}

// DefaultRetryPolicy retries transient-looking network failures only
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ShouldRetry: func(err error) bool {
			return CategoryOf(err) == CategoryNetwork
		},
	}
}
