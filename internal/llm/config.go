package llm

import (
	"fmt"

	"github.com/caretalk-labs/caretalk-core/internal/config"
)

// FromConfig selects the generator backend for the configured mode.
func FromConfig(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}
