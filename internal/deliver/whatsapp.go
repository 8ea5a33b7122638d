package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/media"
	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
)

// Request is one outbound instruction delivery: the clarified text plus an
// optional voice note.
type Request struct {
	To    string
	Text  string
	Audio media.Audio
}

// Gateway pushes finished text/audio to a patient out-of-band. Best effort,
// single attempt; failures never touch conversation state.
type Gateway interface {
	Deliver(ctx context.Context, req Request) error
}

// Client talks to a WhatsApp Business graph endpoint. Audio is uploaded for
// a media ID first; the message referencing that ID is sent strictly after.
type Client struct {
	endpoint      string
	accessToken   string
	phoneNumberID string
	normalizer    Normalizer
	httpClient    *http.Client
	logger        *slog.Logger
}

func NewClient(cfg config.DeliveryConfig, logger *slog.Logger) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, &pipeline.ConfigurationError{Missing: "delivery.access_token"}
	}
	if cfg.PhoneNumberID == "" {
		return nil, &pipeline.ConfigurationError{Missing: "delivery.phone_number_id"}
	}
	return &Client{
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		normalizer:    CountryCodeNormalizer{DefaultCountryCode: cfg.DefaultCountryCode},
		httpClient:    &http.Client{},
		logger:        logger.With(slog.String("component", "deliver")),
	}, nil
}

// WithNormalizer swaps the phone-number normalization strategy.
func (c *Client) WithNormalizer(n Normalizer) *Client {
	c.normalizer = n
	return c
}

func (c *Client) Deliver(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("nothing to deliver")
	}
	to, err := c.normalizer.Normalize(req.To)
	if err != nil {
		return err
	}

	var mediaID string
	if !req.Audio.Empty() {
		mediaID, err = c.uploadMedia(ctx, req.Audio)
		if err != nil {
			return err
		}
	}

	if err := c.sendText(ctx, to, req.Text); err != nil {
		return err
	}
	if mediaID != "" {
		if err := c.sendAudio(ctx, to, mediaID); err != nil {
			return err
		}
	}

	c.logger.Info("instructions delivered",
		slog.String("to", to),
		slog.Bool("with_audio", mediaID != ""),
	)
	return nil
}

func (c *Client) uploadMedia(ctx context.Context, audio media.Audio) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", err
	}
	part, err := form.CreateFormFile("file", "instructions.mp3")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio.Bytes); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/media", c.endpoint, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &pipeline.DeliveryError{Stage: "upload", Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if parsed.ID == "" {
		return "", &pipeline.DeliveryError{Stage: "upload", Status: resp.StatusCode, Body: "response carries no media id"}
	}
	return parsed.ID, nil
}

func (c *Client) sendText(ctx context.Context, to, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"preview_url": false,
			"body":        text,
		},
	}
	return c.sendMessage(ctx, "send_text", payload)
}

func (c *Client) sendAudio(ctx context.Context, to, mediaID string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "audio",
		"audio":             map[string]any{"id": mediaID},
	}
	return c.sendMessage(ctx, "send_audio", payload)
}

func (c *Client) sendMessage(ctx context.Context, stage string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/messages", c.endpoint, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &pipeline.DeliveryError{Stage: stage, Status: resp.StatusCode, Body: string(respBody)}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
