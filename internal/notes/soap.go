package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/llm"
	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
)

// SOAPNote is a structured clinical note generated from the conversation
// transcript.
type SOAPNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

const soapSystemPrompt = "You are a medical assistant responsible for creating structured clinical notes."

// Generator produces SOAP notes on the shared text-generation backend.
type Generator struct {
	generator llm.Generator
	llmCfg    config.LLMConfig
	logger    *slog.Logger
}

func NewGenerator(generator llm.Generator, llmCfg config.LLMConfig, logger *slog.Logger) *Generator {
	return &Generator{
		generator: generator,
		llmCfg:    llmCfg,
		logger:    logger.With(slog.String("component", "notes")),
	}
}

// Generate analyzes a doctor-patient transcript and returns a concise SOAP
// note. The transcript is read-only input; generation never mutates the
// conversation.
func (g *Generator) Generate(ctx context.Context, conversation string) (*SOAPNote, error) {
	if strings.TrimSpace(conversation) == "" {
		return nil, fmt.Errorf("empty conversation transcript")
	}

	var b strings.Builder
	b.WriteString("Analyze the following conversation between a doctor and a patient and generate a concise SOAP note.\n\n")
	fmt.Fprintf(&b, "Conversation:\n%s\n\n", conversation)
	b.WriteString("Generate the SOAP note with the following structure:\n")
	b.WriteString("- Subjective: The patient's subjective complaints and history of present illness.\n")
	b.WriteString("- Objective: The doctor's objective findings from the conversation (observations, what the doctor says).\n")
	b.WriteString("- Assessment: Your assessment of the patient's condition based on the conversation.\n")
	b.WriteString("- Plan: The proposed plan for treatment, further tests, or follow-up.\n\n")
	b.WriteString(`Respond with only a JSON object: {"subjective": "...", "objective": "...", "assessment": "...", "plan": "..."}`)

	raw, err := pipeline.Do(ctx, g.llmCfg.Retry, func(ctx context.Context) (string, error) {
		out, err := g.generator.Generate(ctx, llm.Request{
			Prompt:      b.String(),
			System:      soapSystemPrompt,
			MaxTokens:   g.llmCfg.MaxTokens,
			Temperature: g.llmCfg.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("generate soap note: %w", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	note, err := parseNote(raw)
	if err != nil {
		return nil, err
	}

	g.logger.Info("soap note generated", slog.Int("transcript_len", len(conversation)))
	return note, nil
}

// parseNote tolerates models that wrap the JSON object in prose or code
// fences.
func parseNote(raw string) (*SOAPNote, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("soap note response contains no JSON object")
	}
	var note SOAPNote
	if err := json.Unmarshal([]byte(raw[start:end+1]), &note); err != nil {
		return nil, fmt.Errorf("parse soap note: %w", err)
	}
	if note.Subjective == "" && note.Objective == "" && note.Assessment == "" && note.Plan == "" {
		return nil, fmt.Errorf("soap note response has no sections")
	}
	return &note, nil
}
