// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// anthropicAPIURL is the Messages API endpoint. Package-level var for test substitution.
var anthropicAPIURL = "https://api.anthropic.com/v1/messages"

const (
	anthropicName          = "Anthropic"
	anthropicVersion       = "2023-06-01"
	anthropicDefaultTokens = 4096
)

// AnthropicProvider calls the Claude Messages API over plain HTTP. It has
// no native schema mode, so the schema is appended to the system prompt.
type AnthropicProvider struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Client      *http.Client
	Logger      *zap.Logger
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float32            `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicEvent is one server-sent event of a streamed message. Only
// the fields read by the stream are decoded.
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// post sends one Messages API call and returns the response once the
// status is known to be 200. The caller closes the body.
func (c *AnthropicProvider) post(ctx context.Context, req Request, stream bool) (*http.Response, string, error) {
	model := req.Model
	if model == "" {
		model = c.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = anthropicDefaultTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.Temperature
	}

	system := req.System
	if len(req.Schema) > 0 {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object matching this JSON Schema and no other text:\n" + string(req.Schema))
	}

	bodyBytes, err := json.Marshal(anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      system,
		Temperature: temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
		Stream:      stream,
	})
	if err != nil {
		return nil, model, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, model, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, model, fmt.Errorf("calling %s API: %w", anthropicName, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		var eb anthropicErrorBody
		if json.Unmarshal(body, &eb) == nil && strings.Contains(eb.Error.Message, "content policy") {
			return nil, model, &ContentPolicyError{Provider: anthropicName, Message: eb.Error.Message}
		}
		return nil, model, fmt.Errorf("%s API returned %d: %s", anthropicName, resp.StatusCode, string(body))
	}
	return resp, model, nil
}

// Generate calls the Messages API and returns the concatenated text blocks.
func (c *AnthropicProvider) Generate(ctx context.Context, req Request) (string, error) {
	resp, model, err := c.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var aResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&aResp); err != nil {
		return "", fmt.Errorf("decoding %s response: %w", anthropicName, err)
	}
	if aResp.StopReason == "refusal" {
		return "", &SafetyBlockedError{Provider: anthropicName, Reason: aResp.StopReason}
	}

	var sb strings.Builder
	for _, block := range aResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	if c.Logger != nil {
		c.Logger.Debug("AI completion generated", zap.String("model", model), zap.String("stop_reason", aResp.StopReason))
	}
	return sb.String(), nil
}

// Stream opens a streamed Messages API call and delivers each text delta
// as it arrives.
func (c *AnthropicProvider) Stream(ctx context.Context, req Request) (TextStream, error) {
	resp, model, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	if c.Logger != nil {
		c.Logger.Debug("AI stream opened", zap.String("model", model))
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &anthropicStream{body: resp.Body, scanner: sc}, nil
}

// anthropicStream reads server-sent events from a streamed message.
type anthropicStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// Recv returns the next non-empty text delta, io.EOF after message_stop,
// or the error the stream ended with.
func (s *anthropicStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return "", fmt.Errorf("decoding %s stream event: %w", anthropicName, err)
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				return ev.Delta.Text, nil
			}
		case "message_delta":
			if ev.Delta.StopReason == "refusal" {
				s.done = true
				return "", &SafetyBlockedError{Provider: anthropicName, Reason: ev.Delta.StopReason}
			}
		case "message_stop":
			s.done = true
			return "", io.EOF
		case "error":
			s.done = true
			if strings.Contains(ev.Error.Message, "content policy") {
				return "", &ContentPolicyError{Provider: anthropicName, Message: ev.Error.Message}
			}
			return "", fmt.Errorf("%s stream error %s: %s", anthropicName, ev.Error.Type, ev.Error.Message)
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("reading %s stream: %w", anthropicName, err)
	}
	return "", io.ErrUnexpectedEOF
}

func (s *anthropicStream) Close() error { return s.body.Close() }
