package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/media"
	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
)

func testConfig() config.CaptureConfig {
	return config.CaptureConfig{Mode: "mock", SampleRate: 16000, Channels: 1}
}

func TestStartStopYieldsExactlyOneResult(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0x02, 0x00}
	session := NewSession(func() Device { return &MockDevice{PCM: pcm} }, testConfig())

	result, err := session.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !session.Capturing() {
		t.Fatal("expected capturing state")
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	audio, err := result.Await(context.Background())
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if audio.MIMEType != "audio/wav" || audio.Empty() {
		t.Fatalf("unexpected audio: mime=%q len=%d", audio.MIMEType, len(audio.Bytes))
	}
	if session.Capturing() {
		t.Fatal("expected idle after stop")
	}
}

func TestStartFailureProducesNoResult(t *testing.T) {
	session := NewSession(func() Device {
		return &MockDevice{OpenErr: errors.New("permission denied")}
	}, testConfig())

	result, err := session.Start(context.Background())
	if result != nil {
		t.Fatal("expected no result handle on start failure")
	}
	var devErr *pipeline.DeviceAccessError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceAccessError, got %v", err)
	}
	if session.Capturing() {
		t.Fatal("session must stay idle after failed start")
	}
}

func TestEmptyCaptureResolvesEmptyAudio(t *testing.T) {
	session := NewSession(func() Device { return &MockDevice{} }, testConfig())
	result, err := session.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	audio, err := result.Await(context.Background())
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !audio.Empty() {
		t.Fatalf("expected empty audio, got %d bytes", len(audio.Bytes))
	}
}

func TestAwaitHonorsTeardown(t *testing.T) {
	session := NewSession(func() Device { return &MockDevice{PCM: []byte{1, 0}} }, testConfig())
	result, err := session.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := result.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSecondStartWhileCapturingFails(t *testing.T) {
	session := NewSession(func() Device { return &MockDevice{PCM: []byte{1, 0}} }, testConfig())
	if _, err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := session.Start(context.Background()); err == nil {
		t.Fatal("expected error on concurrent start")
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestResultResolvesOnlyOnce(t *testing.T) {
	result := newResult()
	result.resolve(media.Audio{Bytes: []byte{1}}, nil)
	result.resolve(media.Audio{}, errors.New("late"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := result.Await(ctx); err != nil {
		t.Fatalf("await: %v", err)
	}

	// A second await must not observe a second value.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	if _, err := result.Await(ctx2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
