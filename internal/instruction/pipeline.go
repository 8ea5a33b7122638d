package instruction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/language"
	"github.com/caretalk-labs/caretalk-core/internal/llm"
	"github.com/caretalk-labs/caretalk-core/internal/media"
	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
	"github.com/caretalk-labs/caretalk-core/internal/synth"
)

// Request carries everything the clarification step consolidates: the
// committed conversation transcript plus an optional dictated instruction
// from the doctor.
type Request struct {
	Conversation      string
	CustomInstruction string
	PatientLanguage   string
}

// Result is the clarified instruction text in the patient's language and its
// voice note. Text exists before audio: synthesis runs strictly after
// clarification succeeds.
type Result struct {
	ClarifiedText string
	Audio         media.Audio
}

const clarifySystemPrompt = "You are a helpful medical assistant. Your task is to consolidate, clarify, and simplify a list of medical instructions for a patient."

// Pipeline clarifies doctor instructions into patient-friendly text and
// synthesizes the voice note.
type Pipeline struct {
	generator   llm.Generator
	synthesizer synth.Synthesizer
	languages   *language.Directory
	llmCfg      config.LLMConfig
	logger      *slog.Logger
}

func NewPipeline(
	generator llm.Generator,
	synthesizer synth.Synthesizer,
	languages *language.Directory,
	llmCfg config.LLMConfig,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		generator:   generator,
		synthesizer: synthesizer,
		languages:   languages,
		llmCfg:      llmCfg,
		logger:      logger.With(slog.String("component", "instruction")),
	}
}

// Clarify consolidates the transcript and any dictated addition into one
// clear instruction list, translated into the patient's language, then
// synthesizes the voice note from the clarified text.
func (p *Pipeline) Clarify(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Conversation) == "" && strings.TrimSpace(req.CustomInstruction) == "" {
		return nil, fmt.Errorf("no instructions to clarify")
	}

	lang, err := p.languages.Lookup(req.PatientLanguage)
	if err != nil {
		return nil, err
	}

	custom := strings.TrimSpace(req.CustomInstruction)
	if custom == "" {
		custom = "None"
	}
	combined := fmt.Sprintf("%s\n\nAdditional Instructions: %s", req.Conversation, custom)

	var b strings.Builder
	b.WriteString("Extract all instructions given by the doctor from the provided text.\n")
	b.WriteString("Rephrase the extracted instructions in a clear, simple, and encouraging tone.\n")
	fmt.Fprintf(&b, "Translate the final, clarified instructions into the patient's language: %s.\n\n", lang.Name)
	fmt.Fprintf(&b, "Instructions to process:\n%s\n\n", combined)
	b.WriteString("Respond with only the clarified and translated instructions.")

	clarified, err := pipeline.Do(ctx, p.llmCfg.Retry, func(ctx context.Context) (string, error) {
		out, err := p.generator.Generate(ctx, llm.Request{
			Prompt:      b.String(),
			System:      clarifySystemPrompt,
			MaxTokens:   p.llmCfg.MaxTokens,
			Temperature: p.llmCfg.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("clarify instructions: %w", err)
		}
		return strings.TrimSpace(out), nil
	})
	if err != nil {
		return nil, err
	}
	if clarified == "" {
		return nil, fmt.Errorf("clarification produced no text")
	}

	audio, err := p.synthesizer.Synthesize(ctx, synth.Request{Text: clarified})
	if err != nil {
		// The text survived; the caller may retry synthesis on its own.
		p.logger.Warn("voice note synthesis failed", slog.String("error", err.Error()))
		return nil, err
	}

	p.logger.Info("instructions clarified",
		slog.String("patient_language", lang.Code),
		slog.Int("text_len", len(clarified)),
	)
	return &Result{ClarifiedText: clarified, Audio: audio}, nil
}
