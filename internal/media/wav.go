package media

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV wraps little-endian 16-bit PCM in a WAV container so the
// transcription service receives a self-describing payload.
func EncodeWAV(pcm []byte, sampleRate, channels int) (Audio, error) {
	if len(pcm)%2 != 0 {
		return Audio{}, fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}

	out := &seekBuffer{}
	enc := wav.NewEncoder(out, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return Audio{}, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return Audio{}, fmt.Errorf("close wav encoder: %w", err)
	}
	return Audio{Bytes: out.data, MIMEType: "audio/wav"}, nil
}

// seekBuffer is the minimal io.WriteSeeker the wav encoder needs to patch
// chunk sizes in the header after writing.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	b.pos = int(next)
	return next, nil
}
