package llm

import (
	"context"
	"fmt"
)

type mockGenerator struct{}

func NewMockGenerator() Generator {
	return &mockGenerator{}
}

func (m *mockGenerator) Generate(_ context.Context, req Request) (string, error) {
	return fmt.Sprintf("[mock completion for prompt length=%d]", len(req.Prompt)), nil
}
