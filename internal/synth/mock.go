package synth

import (
	"context"

	"github.com/caretalk-labs/caretalk-core/internal/media"
)

type mockSynthesizer struct{}

func NewMockSynthesizer() Synthesizer {
	return &mockSynthesizer{}
}

func (m *mockSynthesizer) Synthesize(_ context.Context, req Request) (media.Audio, error) {
	return media.Audio{Bytes: []byte(req.Text), MIMEType: "audio/mpeg"}, nil
}
