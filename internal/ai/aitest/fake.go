// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aitest provides a scripted ai.Provider for tests.
package aitest

import (
	"context"
	"io"
	"sync"

	"github.com/pdiddy/litreview-engine/internal/ai"
)

// Provider answers Generate calls from Responses in order and Stream
// calls with Chunks. Err and StreamErr, when set, are returned instead.
// ChunkErr is delivered after the last chunk.
type Provider struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Chunks    []string
	StreamErr error
	ChunkErr  error
	Requests  []ai.Request
	Opened    int
}

func (p *Provider) Generate(_ context.Context, req ai.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Responses) == 0 {
		return "", ai.ErrEmptyResponse
	}
	out := p.Responses[0]
	p.Responses = p.Responses[1:]
	return out, nil
}

func (p *Provider) Stream(ctx context.Context, req ai.Request) (ai.TextStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	p.Opened++
	if p.StreamErr != nil {
		return nil, p.StreamErr
	}
	return &stream{ctx: ctx, chunks: append([]string(nil), p.Chunks...), tail: p.ChunkErr}, nil
}

// Calls returns the number of requests seen so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

type stream struct {
	ctx    context.Context
	chunks []string
	tail   error
	closed bool
}

func (s *stream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.chunks) == 0 {
		if s.tail != nil {
			return "", s.tail
		}
		return "", io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}
