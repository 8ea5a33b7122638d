package pipeline

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a speaker tries to start a turn while another
// utterance is being captured or processed.
var ErrBusy = errors.New("another turn is already in progress")

// ErrNoSpeech marks the non-fatal "nothing detected" outcome. No turn is
// created and the coordinator is back at idle; callers surface it as a notice.
var ErrNoSpeech = errors.New("no speech detected")

// ErrConversationStarted rejects language changes once the first turn exists.
var ErrConversationStarted = errors.New("language is locked after the first turn")

// ErrClosed is returned by operations against a torn-down session.
var ErrClosed = errors.New("session is closed")

// ServiceError is a hard failure from a transcription, translation, or
// synthesis backend. Status and Body carry the upstream response verbatim.
type ServiceError struct {
	Service string
	Status  int
	Body    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s service error: status %d: %s", e.Service, e.Status, e.Body)
}

// DeliveryError is a best-effort messaging failure. It never affects
// conversation state.
type DeliveryError struct {
	Stage  string
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed at %s: status %d: %s", e.Stage, e.Status, e.Body)
}

// DeviceAccessError reports a capture device that could not be acquired.
type DeviceAccessError struct {
	Reason string
	Err    error
}

func (e *DeviceAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture device unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("capture device unavailable: %s", e.Reason)
}

func (e *DeviceAccessError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing credential or endpoint, detected
// before any network call is attempted.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration incomplete: %s is not set", e.Missing)
}
