package llm

import (
	"context"
	"fmt"
	"strings"
)

const fallbackSystemPrompt = `You convert a single desktop automation instruction into one ` +
	`pyautogui line and a short plain-language explanation of what it does. ` +
	`Reply with exactly two lines: the code line, then the explanation.`

// OneShotFallback adapts a generic Client into the pipeline's
// FallbackPlanner contract, used when no parsed step produced an
// executable action (§4.8's fallback path).
type OneShotFallback struct {
	Client Client
}

// NewOneShotFallback wraps client as the orchestrator's fallback
// collaborator.
func NewOneShotFallback(client Client) *OneShotFallback {
	return &OneShotFallback{Client: client}
}

// PlanOneShot asks the wrapped client to synthesize a single action
// line for instruction. Any error or malformed reply is "no fallback
// available", not an error the caller must handle specially.
func (f *OneShotFallback) PlanOneShot(ctx context.Context, instruction string) (string, string, bool) {
	if f.Client == nil {
		return "", "", false
	}
	resp, err := f.Client.Generate(ctx, Request{
		System:      fallbackSystemPrompt,
		Messages:    []Message{{Role: "user", Content: instruction}},
		Temperature: 0,
		MaxTokens:   64,
	})
	if err != nil || resp.Text == "" {
		return "", "", false
	}
	return splitFallbackReply(resp.Text)
}

func splitFallbackReply(text string) (string, string, bool) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return "", "", false
	}
	if len(lines) == 1 {
		return lines[0], fmt.Sprintf("fallback action: %s", lines[0]), true
	}
	return lines[0], lines[1], true
}
