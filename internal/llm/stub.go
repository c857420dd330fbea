package llm

import (
	"context"
	"regexp"
	"strings"
)

// Stub is a deterministic Client backing requiring no network access or
// API key. It implements just enough of the target-extraction prompt
// shape to return a plausible answer, so the pipeline is fully
// runnable, and testable, without a live LLM integration. Per the
// design notes, LLM integration here is a tool the pipeline may call
// out to, not something it depends on to function at all: C2 already
// falls back to fallbackExtract when ExtractTarget returns "" or
// errors, so Stub only needs to approximate that same behavior closely
// enough to exercise the code path end to end.
type Stub struct{}

// NewStub constructs the deterministic fallback client.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Name() string { return "stub" }

var stubQuotedRe = regexp.MustCompile(`["']([^"']*)["']`)

// Generate inspects the last user message and returns its quoted span,
// if any, else its last content word, mimicking the shape of a real
// target-extraction response without calling out anywhere.
func (s *Stub) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if len(req.Messages) == 0 {
		return Response{}, nil
	}
	text := req.Messages[len(req.Messages)-1].Content

	if m := stubQuotedRe.FindStringSubmatch(text); m != nil {
		return Response{Text: m[1]}, nil
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Response{}, nil
	}
	return Response{Text: fields[len(fields)-1]}, nil
}
