package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/media"
	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
)

// Request carries one synthesis call. Voice and model hints fall back to the
// configured defaults when empty.
type Request struct {
	Text    string
	VoiceID string
	ModelID string
}

// Synthesizer renders text as playable audio. Calls are idempotent: the same
// text may be synthesized any number of times.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (media.Audio, error)
}

// Client talks to an ElevenLabs-style text-to-speech endpoint.
type Client struct {
	cfg        config.SynthesisConfig
	httpClient *http.Client
}

func NewClient(cfg config.SynthesisConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &pipeline.ConfigurationError{Missing: "synthesis.api_key"}
	}
	return &Client{cfg: cfg, httpClient: http.DefaultClient}, nil
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (c *Client) Synthesize(ctx context.Context, req Request) (media.Audio, error) {
	return pipeline.Do(ctx, c.cfg.Retry, func(ctx context.Context) (media.Audio, error) {
		return c.synthesizeOnce(ctx, req)
	})
}

func (c *Client) synthesizeOnce(ctx context.Context, req Request) (media.Audio, error) {
	voice := req.VoiceID
	if voice == "" {
		voice = c.cfg.VoiceID
	}
	model := req.ModelID
	if model == "" {
		model = c.cfg.ModelID
	}

	body, err := json.Marshal(ttsRequest{Text: req.Text, ModelID: model})
	if err != nil {
		return media.Audio{}, err
	}

	url := fmt.Sprintf("%s/%s?output_format=%s", c.cfg.Endpoint, voice, c.cfg.OutputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return media.Audio{}, err
	}
	httpReq.Header.Set("xi-api-key", c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return media.Audio{}, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return media.Audio{}, fmt.Errorf("read synthesis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return media.Audio{}, &pipeline.ServiceError{Service: "synthesis", Status: resp.StatusCode, Body: string(respBody)}
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	return media.Audio{Bytes: respBody, MIMEType: mimeType}, nil
}
