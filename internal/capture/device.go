package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
)

// Device abstracts one exclusive audio capture source. Acquisition is
// exclusive at the OS level; this package does not arbitrate between devices.
type Device interface {
	// Open acquires the device and begins buffering. The ctx must span the
	// whole capture: cancelling it releases the device and discards the
	// buffer, so callers pass a session-lifetime ctx, never a request ctx.
	Open(ctx context.Context) error
	// Finalize stops buffering, releases the device, and returns the raw PCM
	// captured since Open.
	Finalize() ([]byte, error)
}

// DeviceFactory creates a fresh device per recording session.
type DeviceFactory func() Device

// FromConfig selects the device backend for the configured mode.
func FromConfig(cfg config.CaptureConfig) (DeviceFactory, error) {
	switch cfg.Mode {
	case "mock":
		return func() Device { return &MockDevice{} }, nil
	case "exec":
		parser := shellwords.NewParser()
		args, err := parser.Parse(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("parse capture command: %w", err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("capture command is empty")
		}
		return func() Device { return &execDevice{cmd: args} }, nil
	default:
		return nil, fmt.Errorf("unknown capture mode %q", cfg.Mode)
	}
}

// execDevice shells out to a capture command (arecord, ffmpeg, ...) that
// writes raw PCM to stdout until it receives SIGKILL via context cancel.
type execDevice struct {
	cmd     []string
	command *exec.Cmd
	cancel  context.CancelFunc
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	done    chan error
}

func (d *execDevice) Open(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	command := exec.CommandContext(runCtx, d.cmd[0], d.cmd[1:]...)
	command.Stdout = &d.stdout
	command.Stderr = &d.stderr

	if err := command.Start(); err != nil {
		cancel()
		return &pipeline.DeviceAccessError{Reason: "capture command failed to start", Err: err}
	}

	d.command = command
	d.cancel = cancel
	d.done = make(chan error, 1)
	go func() {
		d.done <- command.Wait()
	}()
	return nil
}

func (d *execDevice) Finalize() ([]byte, error) {
	if d.command == nil {
		return nil, fmt.Errorf("device not open")
	}
	d.cancel()
	<-d.done
	// The command exits by being killed, so its error is expected noise.
	return d.stdout.Bytes(), nil
}

// MockDevice buffers scripted PCM for tests and the mock capture mode.
type MockDevice struct {
	PCM     []byte
	OpenErr error

	mu   sync.Mutex
	open bool
}

func (d *MockDevice) Open(_ context.Context) error {
	if d.OpenErr != nil {
		return &pipeline.DeviceAccessError{Reason: "mock device refused", Err: d.OpenErr}
	}
	d.mu.Lock()
	d.open = true
	d.mu.Unlock()
	return nil
}

func (d *MockDevice) Finalize() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, fmt.Errorf("device not open")
	}
	d.open = false
	return d.PCM, nil
}
