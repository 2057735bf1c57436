// Package services defines the business logic of the notification engine:
// recipient resolution, rate-limited dispatch, delivery status
// reconciliation and history aggregation. This file centralizes the error
// values the engine returns so that handlers can translate them into HTTP
// status codes.
package services

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable category of an engine error.
type Kind string

const (
	KindGroupNotFound        Kind = "group_not_found"
	KindPersonNotFound       Kind = "person_not_found"
	KindNoEligibleRecipients Kind = "no_eligible_recipients"
	KindRateLimitExceeded    Kind = "rate_limit_exceeded"
	KindInvalidSignature     Kind = "invalid_signature"
	KindInvalidRequest       Kind = "invalid_request"
	KindMalformedCallback    Kind = "malformed_callback"
	KindChannelSend          Kind = "channel_send_error"
)

// Error carries a Kind plus a human-readable detail. Two Errors match under
// errors.Is when their kinds are equal, so callers compare against the
// sentinels below regardless of detail.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an *Error of kind k with a formatted detail.
func Errorf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind of err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinels for errors.Is checks.
var (
	// ErrGroupNotFound indicates the directory has no such group.
	ErrGroupNotFound = &Error{Kind: KindGroupNotFound}

	// ErrPersonNotFound indicates the directory has no such person.
	ErrPersonNotFound = &Error{Kind: KindPersonNotFound}

	// ErrNoEligibleRecipients is returned when filtering left nobody to
	// message: the group is empty, or everyone opted out or lacks a phone.
	ErrNoEligibleRecipients = &Error{Kind: KindNoEligibleRecipients}

	// ErrRateLimitExceeded rejects a whole batch before any provider call.
	ErrRateLimitExceeded = &Error{Kind: KindRateLimitExceeded}

	// ErrInvalidSignature rejects a status callback whose signature does
	// not verify. No state is changed.
	ErrInvalidSignature = &Error{Kind: KindInvalidSignature}

	// ErrInvalidRequest covers empty bodies and a guardian body without
	// guardians.
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest}

	// ErrMalformedCallback covers callbacks lacking a message reference or
	// carrying an unknown status.
	ErrMalformedCallback = &Error{Kind: KindMalformedCallback}

	// ErrChannelSend is the failure of a single recipient, reported through
	// RecipientResult.Err and never returned for a whole batch.
	ErrChannelSend = &Error{Kind: KindChannelSend}
)
