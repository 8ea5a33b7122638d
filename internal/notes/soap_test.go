package notes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/llm"
)

type scriptedGenerator struct {
	text     string
	err      error
	requests []llm.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.requests = append(g.requests, req)
	return g.text, g.err
}

func newGenerator(backend *scriptedGenerator) *Generator {
	return NewGenerator(backend, config.LLMConfig{MaxTokens: 1024}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const transcript = "Doctor: How are you feeling?\nPatient: I have had a headache for three days."

func TestGenerateParsesSections(t *testing.T) {
	backend := &scriptedGenerator{
		text: `{"subjective":"Headache for three days.","objective":"Alert, conversing normally.","assessment":"Tension headache.","plan":"Hydration and rest; follow up in a week."}`,
	}
	g := newGenerator(backend)

	note, err := g.Generate(context.Background(), transcript)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if note.Subjective != "Headache for three days." {
		t.Fatalf("subjective = %q", note.Subjective)
	}
	if note.Plan == "" || note.Assessment == "" || note.Objective == "" {
		t.Fatalf("incomplete note: %+v", note)
	}

	req := backend.requests[0]
	if !strings.Contains(req.System, "structured clinical notes") {
		t.Fatalf("system prompt = %q", req.System)
	}
	if !strings.Contains(req.Prompt, transcript) {
		t.Fatal("prompt missing transcript")
	}
	for _, section := range []string{"Subjective:", "Objective:", "Assessment:", "Plan:"} {
		if !strings.Contains(req.Prompt, section) {
			t.Fatalf("prompt missing %s description", section)
		}
	}
}

func TestGenerateToleratesCodeFences(t *testing.T) {
	backend := &scriptedGenerator{
		text: "Here is the note:\n```json\n{\"subjective\":\"s\",\"objective\":\"o\",\"assessment\":\"a\",\"plan\":\"p\"}\n```\n",
	}
	note, err := newGenerator(backend).Generate(context.Background(), transcript)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if note.Subjective != "s" || note.Plan != "p" {
		t.Fatalf("unexpected note %+v", note)
	}
}

func TestGenerateRejectsEmptyTranscript(t *testing.T) {
	if _, err := newGenerator(&scriptedGenerator{}).Generate(context.Background(), "  \n"); err == nil {
		t.Fatal("expected error for empty transcript")
	}
}

func TestGenerateRejectsNonJSONResponse(t *testing.T) {
	backend := &scriptedGenerator{text: "I cannot generate a note."}
	if _, err := newGenerator(backend).Generate(context.Background(), transcript); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGenerateSurfacesBackendError(t *testing.T) {
	backend := &scriptedGenerator{err: fmt.Errorf("model offline")}
	if _, err := newGenerator(backend).Generate(context.Background(), transcript); err == nil {
		t.Fatal("expected backend error")
	}
}
