package rules

import "errors"

var (
	// ErrUnexpectedStatus is returned when the rules API answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status from routing rules api")

	// ErrMalformedRules is returned when the response body is not a routing rules document.
	ErrMalformedRules = errors.New("malformed routing rules response")
)
