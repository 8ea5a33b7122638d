package llm

import (
	"context"
)

// Request describes a single-shot language model prompt.
type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
}

// Generator defines a pluggable text-generation backend. Translation,
// instruction clarification, and SOAP note generation all run on top of it.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
