// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"encoding/json"
	"errors"
	"strings"
)

// DecodeJSON parses an AI text payload into v. Markdown code fences around
// the object are stripped first. Any failure is a *MalformedResponseError.
func DecodeJSON(text string, v any) error {
	payload := stripFences(text)
	if payload == "" {
		return &MalformedResponseError{Payload: text, Err: errors.New("empty payload")}
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return &MalformedResponseError{Payload: text, Err: err}
	}
	return nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	end := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}
