// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when the provider answers with no text.
var ErrEmptyResponse = errors.New("AI response contained no text")

// SafetyBlockedError reports that the provider withheld its answer for
// safety reasons (finish reason content_filter or a refusal).
type SafetyBlockedError struct {
	Provider string
	Reason   string
}

func (e *SafetyBlockedError) Error() string {
	return fmt.Sprintf("%s blocked the response: %s", e.Provider, e.Reason)
}

// ContentPolicyError reports that the provider rejected the request itself
// under its content policy.
type ContentPolicyError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ContentPolicyError) Error() string {
	return fmt.Sprintf("%s rejected the request under its content policy: %s", e.Provider, e.Message)
}

func (e *ContentPolicyError) Unwrap() error { return e.Err }

// MalformedResponseError reports an AI payload that could not be decoded
// into the requested shape.
type MalformedResponseError struct {
	Payload string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed AI response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
