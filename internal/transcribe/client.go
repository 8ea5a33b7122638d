package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/media"
	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
)

// Transcriber converts one utterance of audio to text. An empty string is a
// legitimate result, not an error: callers branch on emptiness for the
// no-speech case.
type Transcriber interface {
	Transcribe(ctx context.Context, audio media.Audio, languageHint string) (string, error)
}

// Client talks to an ElevenLabs-style speech-to-text endpoint.
type Client struct {
	cfg        config.TranscriptionConfig
	httpClient *http.Client
}

func NewClient(cfg config.TranscriptionConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &pipeline.ConfigurationError{Missing: "transcription.api_key"}
	}
	return &Client{cfg: cfg, httpClient: http.DefaultClient}, nil
}

type sttResponse struct {
	Text string `json:"text"`
}

func (c *Client) Transcribe(ctx context.Context, audio media.Audio, languageHint string) (string, error) {
	return pipeline.Do(ctx, c.cfg.Retry, func(ctx context.Context) (string, error) {
		return c.transcribeOnce(ctx, audio, languageHint)
	})
}

func (c *Client) transcribeOnce(ctx context.Context, audio media.Audio, languageHint string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("model_id", c.cfg.ModelID); err != nil {
		return "", err
	}
	if languageHint != "" {
		if err := form.WriteField("language_code", languageHint); err != nil {
			return "", err
		}
	}
	part, err := form.CreateFormFile("file", fileName(audio.MIMEType))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio.Bytes); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &pipeline.ServiceError{Service: "transcription", Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed sttResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	// A 2xx with no text means the audio held no discernible speech.
	return strings.TrimSpace(parsed.Text), nil
}

func fileName(mimeType string) string {
	switch mimeType {
	case "audio/wav":
		return "audio.wav"
	case "audio/webm":
		return "audio.webm"
	case "audio/mpeg":
		return "audio.mp3"
	default:
		return "audio.bin"
	}
}
