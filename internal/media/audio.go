package media

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Audio is an in-memory audio payload with its MIME type. It is the handle
// passed between capture, synthesis, playback, and delivery without touching
// durable storage.
type Audio struct {
	Bytes    []byte
	MIMEType string
}

// Empty reports whether the payload carries no audio data.
func (a Audio) Empty() bool {
	return len(a.Bytes) == 0
}

// DataURI renders the payload as a data URI.
func (a Audio) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", a.MIMEType, base64.StdEncoding.EncodeToString(a.Bytes))
}

// ParseDataURI decodes a data URI of the form data:<mime>;base64,<payload>.
func ParseDataURI(uri string) (Audio, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Audio{}, fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Audio{}, fmt.Errorf("malformed data URI: missing payload")
	}
	mime, encoding, ok := strings.Cut(meta, ";")
	if !ok || encoding != "base64" {
		return Audio{}, fmt.Errorf("malformed data URI: expected base64 encoding")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Audio{}, fmt.Errorf("decode data URI payload: %w", err)
	}
	return Audio{Bytes: data, MIMEType: mime}, nil
}
