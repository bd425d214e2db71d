package changeset

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/changesmith/internal/capture"
	"github.com/changesmith/internal/llm"
	"github.com/changesmith/internal/parser"
	"github.com/changesmith/pkg/models"
)

// Request carries everything one proposal cycle needs: the task, the
// conversation so far, the memoized grounding context and an optional image.
type Request struct {
	Task     string
	Messages []models.Message
	Context  string
	Image    *llm.Image
}

// Proposal is the result of one generation cycle: the user-facing preview,
// the structured files the submit path will replay, and diagnostics.
type Proposal struct {
	Preview     string
	Files       []models.ChangesetFile
	RawResponse string
	Truncated   bool
	Diagnostics []parser.Diagnostic
}

// Generator composes a prompt, makes exactly one completion call and runs
// the response through the parser exactly once.
type Generator struct {
	client llm.Client
	parser *parser.Parser
}

func NewGenerator(client llm.Client, p *parser.Parser) *Generator {
	return &Generator{client: client, parser: p}
}

// Propose runs one proposal cycle. A failed completion call surfaces as an
// error; a response the parser cannot structure does not — it degrades to a
// plain-text answer preview.
func (g *Generator) Propose(ctx context.Context, req Request) (*Proposal, error) {
	prompt := buildPrompt(req)
	log.Debug().Int("prompt_tokens", llm.EstimateTokens(prompt)).Msg("proposing changeset")

	resp, err := g.client.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: prompt,
		Image:  req.Image,
	})
	if err != nil {
		return nil, err
	}

	capture.WriteJSON("proposal", map[string]interface{}{
		"prompt":    prompt,
		"response":  resp.Text,
		"truncated": resp.Truncated,
	})

	files, diags := g.parser.Parse(resp.Text)

	proposal := &Proposal{
		Files:       files,
		RawResponse: resp.Text,
		Truncated:   resp.Truncated,
		Diagnostics: diags,
	}
	if len(files) == 0 {
		// General answer passthrough: no structured files, the raw text
		// is the reply.
		proposal.Preview = resp.Text
	} else {
		proposal.Preview = BuildPreview(files, resp.Truncated)
	}

	log.Info().
		Int("files", len(files)).
		Int("diagnostics", len(diags)).
		Bool("truncated", resp.Truncated).
		Msg("changeset proposed")

	return proposal, nil
}

// Answer makes a plain completion call for general questions, with no
// changeset framing and no parse.
func (g *Generator) Answer(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Complete(ctx, llm.Request{
		System: answerSystemPrompt,
		Prompt: buildPrompt(req),
		Image:  req.Image,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
