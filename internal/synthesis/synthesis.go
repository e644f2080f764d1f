// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesis streams the narrative literature synthesis for a
// ranked article set.
package synthesis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"sync/atomic"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/litreview-engine/internal/ai"
	"github.com/pdiddy/litreview-engine/pkg/types"
)

// ErrStreamConsumed is yielded when a synthesis sequence is ranged over
// a second time.
var ErrStreamConsumed = errors.New("synthesis stream already consumed")

// DefaultFocus is used when the caller gives no focus directive.
const DefaultFocus = "key findings, points of agreement and disagreement, and gaps in the evidence"

const synthesisSystem = `You are an expert scientific writer producing evidence syntheses for clinicians and researchers. Cite articles inline by their PMID in square brackets.`

var synthesisPromptTmpl = template.Must(template.New("synthesis").Parse(`Write a structured narrative synthesis of the articles below in Markdown, focusing on {{.Focus}}.

Use short sections with headings. Every claim must cite at least one article as [PMID].

Articles (most relevant first):
{{range .Articles}}
[{{.Identifier}}] {{.Title}}{{if .Venue}}. {{.Venue}}{{end}}{{if .Year}}, {{.Year}}{{end}}. Relevance {{printf "%.0f" .RelevanceScore}}.
{{if .AIAbstract}}{{.AIAbstract}}{{else}}{{.Abstract}}{{end}}
{{end}}`))

// Streamer opens one provider stream per synthesis.
type Streamer struct {
	Provider ai.Provider
	Model    string
	Logger   *zap.Logger
}

// Stream returns a lazy sequence of text deltas. Nothing is sent to the
// provider until the first pull. Deltas arrive in provider order and
// empty deltas are skipped. A provider error is yielded once and ends
// the sequence. The sequence can be ranged over only once.
func (s *Streamer) Stream(ctx context.Context, articles []types.ArticleRecord, focus string) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}

		prompt, err := renderPrompt(articles, focus)
		if err != nil {
			yield("", err)
			return
		}

		stream, err := s.Provider.Stream(ctx, ai.Request{
			Model:  s.Model,
			System: synthesisSystem,
			User:   prompt,
		})
		if err != nil {
			yield("", err)
			return
		}
		defer stream.Close()

		chunks := 0
		for {
			delta, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield("", err)
				return
			}
			if delta == "" {
				continue
			}
			chunks++
			if !yield(delta, nil) {
				return
			}
		}
		if s.Logger != nil {
			s.Logger.Debug("synthesis stream finished", zap.Int("chunks", chunks))
		}
	}
}

func renderPrompt(articles []types.ArticleRecord, focus string) (string, error) {
	if focus == "" {
		focus = DefaultFocus
	}
	var buf bytes.Buffer
	err := synthesisPromptTmpl.Execute(&buf, struct {
		Focus    string
		Articles []types.ArticleRecord
	}{focus, articles})
	return buf.String(), err
}
