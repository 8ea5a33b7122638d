package media

import (
	"bytes"
	"testing"
)

func TestDataURIRoundTrip(t *testing.T) {
	in := Audio{Bytes: []byte{0x01, 0x02, 0xff}, MIMEType: "audio/mpeg"}
	out, err := ParseDataURI(in.DataURI())
	if err != nil {
		t.Fatalf("parse data uri: %v", err)
	}
	if out.MIMEType != "audio/mpeg" || !bytes.Equal(out.Bytes, in.Bytes) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestParseDataURIRejectsGarbage(t *testing.T) {
	for _, uri := range []string{"", "audio/mpeg", "data:audio/mpeg", "data:audio/mpeg;hex,00"} {
		if _, err := ParseDataURI(uri); err == nil {
			t.Fatalf("expected error for %q", uri)
		}
	}
}

func TestEncodeWAV(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80}
	out, err := EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if out.MIMEType != "audio/wav" {
		t.Fatalf("unexpected mime type %q", out.MIMEType)
	}
	if !bytes.HasPrefix(out.Bytes, []byte("RIFF")) {
		t.Fatalf("expected RIFF header, got %q", out.Bytes[:4])
	}
	if _, err := EncodeWAV([]byte{0x01}, 16000, 1); err == nil {
		t.Fatal("expected error for unaligned pcm")
	}
}
