// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litreview-engine/pkg/types"
)

// --- DecodeJSON ---

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"query":"a OR b"}`, "a OR b"},
		{"fenced", "```json\n{\"query\":\"a OR b\"}\n```", "a OR b"},
		{"fenced no lang", "```\n{\"query\":\"x\"}\n```", "x"},
		{"surrounding space", "  \n{\"query\":\"y\"}\n ", "y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct{ Query string }
			require.NoError(t, DecodeJSON(tt.in, &out))
			assert.Equal(t, tt.want, out.Query)
		})
	}
}

func TestDecodeJSONMalformed(t *testing.T) {
	for _, in := range []string{"", "not json", "```json\n{\"query\":\n```"} {
		var out struct{ Query string }
		err := DecodeJSON(in, &out)
		var mErr *MalformedResponseError
		assert.True(t, errors.As(err, &mErr), "input %q: got %v", in, err)
	}
}

// --- OpenAI ---

func openAIServer(t *testing.T, handler http.HandlerFunc) Provider {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewOpenAIProvider(types.AIConfig{Model: "gpt-test", APIKey: "k", BaseURL: ts.URL + "/v1"}, ts.Client(), nil)
}

func completionBody(content, finish string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion","model":"gpt-test","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":%q}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`, content, finish)
}

func TestOpenAIGenerateSendsSchema(t *testing.T) {
	var body map[string]any
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody(`{"query":"q"}`, "stop"))
	})

	out, err := p.Generate(context.Background(), Request{
		System:     "sys",
		User:       "user",
		Schema:     json.RawMessage(`{"type":"object"}`),
		SchemaName: "plan",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"query":"q"}`, out)

	assert.Equal(t, "gpt-test", body["model"])
	rf, ok := body["response_format"].(map[string]any)
	require.True(t, ok, "response_format missing: %v", body)
	assert.Equal(t, "json_schema", rf["type"])
	msgs := body["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestOpenAIGenerateContentFilter(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody("", "content_filter"))
	})

	_, err := p.Generate(context.Background(), Request{User: "u"})
	var sErr *SafetyBlockedError
	assert.True(t, errors.As(err, &sErr), "got %v", err)
}

func TestOpenAIGenerateContentPolicy(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Your request was rejected","type":"invalid_request_error","code":"content_policy_violation"}}`)
	})

	_, err := p.Generate(context.Background(), Request{User: "u"})
	var cErr *ContentPolicyError
	assert.True(t, errors.As(err, &cErr), "got %v", err)
}

func TestOpenAIGenerateServerError(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	_, err := p.Generate(context.Background(), Request{User: "u"})
	require.Error(t, err)
	var cErr *ContentPolicyError
	assert.False(t, errors.As(err, &cErr))
}

func TestOpenAIStream(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{"Hel", "lo", " world"} {
			fmt.Fprintf(w, "data: {\"id\":\"s\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	s, err := p.Stream(context.Background(), Request{User: "u"})
	require.NoError(t, err)
	defer s.Close()

	var sb strings.Builder
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		sb.WriteString(c)
	}
	assert.Equal(t, "Hello world", sb.String())
}

// --- Anthropic ---

func anthropicServer(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	old := anthropicAPIURL
	anthropicAPIURL = ts.URL
	t.Cleanup(func() { anthropicAPIURL = old })

	return &AnthropicProvider{APIKey: "k", Model: "claude-test", Client: ts.Client()}
}

func TestAnthropicGenerate(t *testing.T) {
	var got anthropicRequest
	p := anthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"content":[{"type":"text","text":"{\"a\":"},{"type":"text","text":"1}"}],"stop_reason":"end_turn"}`)
	})

	out, err := p.Generate(context.Background(), Request{System: "sys", User: "u", Schema: json.RawMessage(`{"type":"object"}`)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
	assert.Equal(t, anthropicDefaultTokens, got.MaxTokens)
	assert.Contains(t, got.System, `{"type":"object"}`)
	assert.True(t, strings.HasPrefix(got.System, "sys"))
}

func TestAnthropicRefusal(t *testing.T) {
	p := anthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"content":[],"stop_reason":"refusal"}`)
	})

	_, err := p.Generate(context.Background(), Request{User: "u"})
	var sErr *SafetyBlockedError
	assert.True(t, errors.As(err, &sErr), "got %v", err)
}

func TestAnthropicHTTPError(t *testing.T) {
	p := anthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"type":"api_error","message":"overloaded"}}`)
	})

	_, err := p.Generate(context.Background(), Request{User: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func sseEvents(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, ev := range events {
		var typ struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(ev), &typ)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typ.Type, ev)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func TestAnthropicStreamDeltas(t *testing.T) {
	var got anthropicRequest
	p := anthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		sseEvents(w,
			`{"type":"message_start","message":{"id":"msg_1"}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			`{"type":"ping"}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Statins "}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":""}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"help [1]."}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
			`{"type":"message_stop"}`,
		)
	})

	s, err := p.Stream(context.Background(), Request{User: "u"})
	require.NoError(t, err)
	defer s.Close()

	var chunks []string
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, c)
	}
	assert.Equal(t, []string{"Statins ", "help [1]."}, chunks)
	assert.True(t, got.Stream)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestAnthropicStreamRefusal(t *testing.T) {
	p := anthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
		sseEvents(w,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"refusal"}}`,
			`{"type":"message_stop"}`,
		)
	})

	s, err := p.Stream(context.Background(), Request{User: "u"})
	require.NoError(t, err)
	defer s.Close()

	c, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "partial", c)

	_, err = s.Recv()
	var sErr *SafetyBlockedError
	assert.True(t, errors.As(err, &sErr), "got %v", err)
}

func TestAnthropicStreamErrors(t *testing.T) {
	t.Run("error event", func(t *testing.T) {
		p := anthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
			sseEvents(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
		})
		s, err := p.Stream(context.Background(), Request{User: "u"})
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Recv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Overloaded")
	})

	t.Run("cut off", func(t *testing.T) {
		p := anthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
			sseEvents(w, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"a"}}`)
		})
		s, err := p.Stream(context.Background(), Request{User: "u"})
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Recv()
		require.NoError(t, err)
		_, err = s.Recv()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("http status", func(t *testing.T) {
		p := anthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
		})
		_, err := p.Stream(context.Background(), Request{User: "u"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(types.AIConfig{Provider: types.ProviderAnthropic, Model: "m"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &AnthropicProvider{}, p)

	p, err = NewProvider(types.AIConfig{Provider: types.ProviderOpenAI, Model: "m"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)

	_, err = NewProvider(types.AIConfig{Provider: "mystery"}, nil, nil)
	assert.Error(t, err)
}
