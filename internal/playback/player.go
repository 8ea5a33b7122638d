package playback

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/media"
)

// Handle controls one in-flight clip.
type Handle interface {
	Stop()
}

// Player starts playback of a clip and returns a handle for stopping it.
type Player interface {
	Play(ctx context.Context, audio media.Audio) (Handle, error)
}

// Manager enforces the single-playback rule: starting a new clip stops the
// previous one first.
type Manager struct {
	player Player

	mu      sync.Mutex
	current Handle
}

func NewManager(player Player) *Manager {
	return &Manager{player: player}
}

// Play stops any active clip, then starts the new one.
func (m *Manager) Play(ctx context.Context, audio media.Audio) error {
	m.mu.Lock()
	previous := m.current
	m.current = nil
	m.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}

	handle, err := m.player.Play(ctx, audio)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = handle
	m.mu.Unlock()
	return nil
}

// Stop halts the active clip, if any.
func (m *Manager) Stop() {
	m.mu.Lock()
	current := m.current
	m.current = nil
	m.mu.Unlock()
	if current != nil {
		current.Stop()
	}
}

// FromConfig selects the playback backend for the configured mode.
func FromConfig(cfg config.PlaybackConfig) (Player, error) {
	switch cfg.Mode {
	case "mock":
		return &MockPlayer{}, nil
	case "exec":
		parser := shellwords.NewParser()
		args, err := parser.Parse(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("parse playback command: %w", err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("playback command is empty")
		}
		return &execPlayer{cmd: args}, nil
	default:
		return nil, fmt.Errorf("unknown playback mode %q", cfg.Mode)
	}
}

// execPlayer hands the clip to an external player command (mpv, ffplay, ...)
// as a file argument.
type execPlayer struct {
	cmd []string
}

type execHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *execHandle) Stop() {
	h.cancel()
	<-h.done
}

func (p *execPlayer) Play(ctx context.Context, audio media.Audio) (Handle, error) {
	file, err := os.CreateTemp("", "caretalk_play_*"+extension(audio.MIMEType))
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	if _, err := file.Write(audio.Bytes); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("write clip: %w", err)
	}
	file.Close()

	runCtx, cancel := context.WithCancel(ctx)
	args := append(append([]string{}, p.cmd[1:]...), file.Name())
	command := exec.CommandContext(runCtx, p.cmd[0], args...)
	if err := command.Start(); err != nil {
		cancel()
		os.Remove(file.Name())
		return nil, fmt.Errorf("start playback command: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = command.Wait()
		os.Remove(file.Name())
	}()
	return &execHandle{cancel: cancel, done: done}, nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	default:
		return ".bin"
	}
}

// MockPlayer records clips and exposes handles for tests.
type MockPlayer struct {
	mu      sync.Mutex
	Started []*MockHandle
	PlayErr error
}

type MockHandle struct {
	mu      sync.Mutex
	stopped bool
	Audio   media.Audio
}

func (h *MockHandle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

func (h *MockHandle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func (p *MockPlayer) Play(_ context.Context, audio media.Audio) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PlayErr != nil {
		return nil, p.PlayErr
	}
	handle := &MockHandle{Audio: audio}
	p.Started = append(p.Started, handle)
	return handle, nil
}
