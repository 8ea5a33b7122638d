package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/media"
	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(config.TranscriptionConfig{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		ModelID:  "scribe_v1",
		Retry:    config.RetryConfig{MaxAttempts: 1},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestTranscribeSendsMultipartForm(t *testing.T) {
	var gotModel, gotLanguage, gotKey string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("xi-api-key")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model_id")
		gotLanguage = r.FormValue("language_code")
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		w.Write([]byte(`{"text":"Hello"}`))
	})

	text, err := client.Transcribe(context.Background(), media.Audio{Bytes: []byte{1, 2}, MIMEType: "audio/wav"}, "eng")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "Hello" {
		t.Fatalf("unexpected text %q", text)
	}
	if gotKey != "test-key" || gotModel != "scribe_v1" || gotLanguage != "eng" {
		t.Fatalf("unexpected form: key=%q model=%q language=%q", gotKey, gotModel, gotLanguage)
	}
}

func TestTranscribeEmptyTextIsNotAnError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"  "}`))
	})
	text, err := client.Transcribe(context.Background(), media.Audio{Bytes: []byte{1}}, "")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}

func TestTranscribeNon2xxIsServiceError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	})
	_, err := client.Transcribe(context.Background(), media.Audio{Bytes: []byte{1}}, "")
	var svcErr *pipeline.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.Status != http.StatusPaymentRequired || svcErr.Service != "transcription" {
		t.Fatalf("unexpected service error: %+v", svcErr)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.TranscriptionConfig{Endpoint: "https://example.com"})
	var cfgErr *pipeline.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestTranscribeRetriesUpToMaxAttempts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "upstream flake", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"text":"ok"}`))
	}))
	t.Cleanup(srv.Close)
	client, err := NewClient(config.TranscriptionConfig{
		Endpoint: srv.URL,
		APIKey:   "k",
		Retry:    config.RetryConfig{MaxAttempts: 3},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	text, err := client.Transcribe(context.Background(), media.Audio{Bytes: []byte{1}}, "")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "ok" || calls != 3 {
		t.Fatalf("expected success on third attempt, got text=%q calls=%d", text, calls)
	}
}
