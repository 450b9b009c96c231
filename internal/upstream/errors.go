// Package upstream provides the JSON-over-HTTP transport shared by the third-party
// API clients and classifies their failures into soft and fatal kinds.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class of an upstream error.
type Kind int

// Failure kinds, from most to least specific.
const (
	KindNone Kind = iota
	KindRateLimited
	KindAuth
	KindNotFound
	KindCanceled
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindCanceled:
		return "canceled"
	default:
		return "other"
	}
}

// StatusError is returned for any upstream response outside the 2xx range.
type StatusError struct {
	// API names the upstream, e.g. "games" or "gamejoin".
	API string

	// Message is the upstream supplied reason, if the body carried one.
	Message string

	Status int
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s api: status %d: %s", e.API, e.Status, e.Message)
	}

	return fmt.Sprintf("%s api: status %d", e.API, e.Status)
}

// Classify maps err to its failure kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}

	var se *StatusError
	if !errors.As(err, &se) {
		return KindOther
	}

	switch se.Status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusBadRequest, http.StatusNotFound:
		return KindNotFound
	default:
		return KindOther
	}
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	return Classify(err) == KindRateLimited
}

// Reason returns the most user-presentable description of err: the upstream
// message when one was supplied, else the error text.
func Reason(err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}

	return err.Error()
}
