package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/llm"
	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
)

// Request carries one translation call. Context is advisory free text; the
// first turn of a conversation legitimately has none.
type Request struct {
	Text           string
	SourceLanguage string
	TargetLanguage string
	Context        string
}

// Translator converts text between languages with rolling conversational
// context. A single attempt per call unless the retry policy says otherwise.
type Translator interface {
	Translate(ctx context.Context, req Request) (string, error)
}

const systemPrompt = "You are a professional translator who specializes in translating text while maintaining context."

type generatorTranslator struct {
	generator llm.Generator
	cfg       config.LLMConfig
}

// NewTranslator builds a Translator on the shared generation backend.
func NewTranslator(generator llm.Generator, cfg config.LLMConfig) Translator {
	return &generatorTranslator{generator: generator, cfg: cfg}
}

func (t *generatorTranslator) Translate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("nothing to translate")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following text from %s to %s:\n\n", req.SourceLanguage, req.TargetLanguage)
	fmt.Fprintf(&b, "Text: %s\n", req.Text)
	if req.Context != "" {
		fmt.Fprintf(&b, "\nConsider the following context when translating:\n\nContext: %s\n", req.Context)
	}
	b.WriteString("\nRespond with only the translation.")

	return pipeline.Do(ctx, t.cfg.Retry, func(ctx context.Context) (string, error) {
		out, err := t.generator.Generate(ctx, llm.Request{
			Prompt:      b.String(),
			System:      systemPrompt,
			MaxTokens:   t.cfg.MaxTokens,
			Temperature: t.cfg.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("translate %s to %s: %w", req.SourceLanguage, req.TargetLanguage, err)
		}
		return strings.TrimSpace(out), nil
	})
}
