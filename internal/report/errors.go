package report

import "errors"

// Package errors.
var (
	// ErrAuthFailed is returned when the login handshake cannot be completed.
	ErrAuthFailed = errors.New("report service authentication failed")

	// ErrBadPayload is returned when a download response is not a recognizable
	// tabular payload (typically a login or error page served in its place).
	ErrBadPayload = errors.New("payload is not a tabular report")
)
