package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/media"
)

// Result is a single-resolution handle for "audio ready". It resolves exactly
// once per Start/Stop pair; abandoning it (session teardown) is explicit via
// the caller's context.
type Result struct {
	once sync.Once
	ch   chan outcome
}

type outcome struct {
	audio media.Audio
	err   error
}

func newResult() *Result {
	return &Result{ch: make(chan outcome, 1)}
}

func (r *Result) resolve(audio media.Audio, err error) {
	r.once.Do(func() {
		r.ch <- outcome{audio: audio, err: err}
	})
}

// Await blocks until the utterance is finalized or ctx is done. A ctx error
// means the caller tore down and the eventual audio must be ignored.
func (r *Result) Await(ctx context.Context) (media.Audio, error) {
	select {
	case <-ctx.Done():
		return media.Audio{}, ctx.Err()
	case out := <-r.ch:
		return out.audio, out.err
	}
}

// Session owns one capture device and buffers a single utterance. Each
// speaker holds an independent Session.
type Session struct {
	factory    DeviceFactory
	sampleRate int
	channels   int

	mu     sync.Mutex
	device Device
	result *Result
}

func NewSession(factory DeviceFactory, cfg config.CaptureConfig) *Session {
	return &Session{
		factory:    factory,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
	}
}

// Start acquires the capture device and begins buffering. The ctx must
// outlive the utterance; it is handed to the device, which stops buffering
// when it ends. On failure no Result exists and the caller must surface a
// device-access error without leaving idle.
func (s *Session) Start(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		return nil, fmt.Errorf("capture already in progress")
	}

	device := s.factory()
	if err := device.Open(ctx); err != nil {
		return nil, err
	}

	s.device = device
	s.result = newResult()
	return s.result, nil
}

// Stop finalizes the buffer, releases the device, and resolves the pending
// Result with exactly one audio payload (WAV-wrapped PCM).
func (s *Session) Stop() error {
	s.mu.Lock()
	device := s.device
	result := s.result
	s.device = nil
	s.result = nil
	s.mu.Unlock()

	if device == nil {
		return fmt.Errorf("no capture in progress")
	}

	pcm, err := device.Finalize()
	if err != nil {
		result.resolve(media.Audio{}, err)
		return err
	}
	if len(pcm) == 0 {
		result.resolve(media.Audio{}, nil)
		return nil
	}

	audio, err := media.EncodeWAV(pcm, s.sampleRate, s.channels)
	if err != nil {
		result.resolve(media.Audio{}, err)
		return err
	}
	result.resolve(audio, nil)
	return nil
}

// Capturing reports whether an utterance is currently buffering.
func (s *Session) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device != nil
}
