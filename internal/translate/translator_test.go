package translate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/llm"
)

type recordingGenerator struct {
	lastPrompt string
	lastSystem string
	reply      string
	err        error
}

func (g *recordingGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.lastPrompt = req.Prompt
	g.lastSystem = req.System
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func TestTranslatePromptCarriesLanguagesAndContext(t *testing.T) {
	gen := &recordingGenerator{reply: "ہیلو"}
	tr := NewTranslator(gen, config.LLMConfig{Retry: config.RetryConfig{MaxAttempts: 1}})

	out, err := tr.Translate(context.Background(), Request{
		Text:           "Hello",
		SourceLanguage: "eng",
		TargetLanguage: "urd",
		Context:        "Doctor: How are you?",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "ہیلو" {
		t.Fatalf("unexpected translation %q", out)
	}
	for _, want := range []string{"from eng to urd", "Text: Hello", "Context: Doctor: How are you?"} {
		if !strings.Contains(gen.lastPrompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, gen.lastPrompt)
		}
	}
	if gen.lastSystem == "" {
		t.Fatal("expected translator system prompt")
	}
}

func TestTranslateWithoutContextOmitsContextBlock(t *testing.T) {
	gen := &recordingGenerator{reply: "Hola"}
	tr := NewTranslator(gen, config.LLMConfig{Retry: config.RetryConfig{MaxAttempts: 1}})

	if _, err := tr.Translate(context.Background(), Request{Text: "Hello", SourceLanguage: "eng", TargetLanguage: "spa"}); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if strings.Contains(gen.lastPrompt, "Context:") {
		t.Fatalf("prompt should omit context block:\n%s", gen.lastPrompt)
	}
}

func TestTranslateRejectsBlankText(t *testing.T) {
	tr := NewTranslator(&recordingGenerator{}, config.LLMConfig{Retry: config.RetryConfig{MaxAttempts: 1}})
	if _, err := tr.Translate(context.Background(), Request{Text: "   "}); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestTranslatePropagatesBackendFailure(t *testing.T) {
	backendErr := errors.New("backend down")
	tr := NewTranslator(&recordingGenerator{err: backendErr}, config.LLMConfig{Retry: config.RetryConfig{MaxAttempts: 1}})
	_, err := tr.Translate(context.Background(), Request{Text: "Hello", SourceLanguage: "eng", TargetLanguage: "urd"})
	if !errors.Is(err, backendErr) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
}
