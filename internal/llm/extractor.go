package llm

import (
	"context"
	"strings"
)

const extractorSystemPrompt = `You extract the single on-screen target phrase a desktop ` +
	`automation instruction refers to. Reply with only the target phrase, no ` +
	`punctuation, no explanation.`

// TargetExtractor adapts a generic Client into the Target Annotator's
// ExtractTarget(text) contract.
type TargetExtractor struct {
	Client Client
}

// NewTargetExtractor wraps client for use as the annotator's LLM
// collaborator.
func NewTargetExtractor(client Client) *TargetExtractor {
	return &TargetExtractor{Client: client}
}

// ExtractTarget asks the wrapped client to name the on-screen target a
// step's text refers to.
func (e *TargetExtractor) ExtractTarget(ctx context.Context, text string) (string, error) {
	if e.Client == nil {
		return "", errNilClient
	}
	resp, err := e.Client.Generate(ctx, Request{
		System: extractorSystemPrompt,
		Messages: []Message{
			{Role: "user", Content: text},
		},
		Temperature: 0,
		MaxTokens:   32,
	})
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(resp.Text), "\"'"), nil
}

var errNilClient = clientError("llm: nil client")

type clientError string

func (e clientError) Error() string { return string(e) }
