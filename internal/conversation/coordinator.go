package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/caretalk-labs/caretalk-core/internal/capture"
	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/media"
	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
	"github.com/caretalk-labs/caretalk-core/internal/playback"
	"github.com/caretalk-labs/caretalk-core/internal/protocol"
	"github.com/caretalk-labs/caretalk-core/internal/synth"
	"github.com/caretalk-labs/caretalk-core/internal/transcribe"
	"github.com/caretalk-labs/caretalk-core/internal/translate"
)

// State is the coordinator's explicit turn state. At most one speaker is ever
// being captured or processed, conversation-wide.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateProcessing:
		return "processing"
	}
	return "unknown"
}

// Status is a point-in-time view of the state machine.
type Status struct {
	State         State
	ActiveSpeaker Speaker
}

// Publisher receives committed turns for out-of-band consumers (durable
// record keeping). Delivery is best effort and never blocks a commit.
type Publisher interface {
	PublishTurn(evt protocol.TurnCommitted)
}

// Coordinator serializes the capture→transcribe→translate→commit pipeline.
// It is the only writer of the conversation log.
type Coordinator struct {
	cfg         config.ConversationConfig
	sessionID   string
	log         *Log
	slots       *Slots
	transcriber transcribe.Transcriber
	translator  translate.Translator
	synthesizer synth.Synthesizer
	player      *playback.Manager
	publisher   Publisher
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	active  Speaker
	pending *capture.Result
	closed  bool

	sessions map[Speaker]*capture.Session
}

func NewCoordinator(
	parent context.Context,
	cfg config.ConversationConfig,
	captureFactory capture.DeviceFactory,
	captureCfg config.CaptureConfig,
	transcriber transcribe.Transcriber,
	translator translate.Translator,
	synthesizer synth.Synthesizer,
	player *playback.Manager,
	publisher Publisher,
	logger *slog.Logger,
) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	log := NewLog()
	return &Coordinator{
		cfg:         cfg,
		sessionID:   uuid.NewString(),
		log:         log,
		slots:       NewSlots(log, cfg.DoctorLanguage, cfg.PatientLanguage),
		transcriber: transcriber,
		translator:  translator,
		synthesizer: synthesizer,
		player:      player,
		publisher:   publisher,
		logger:      logger.With(slog.String("component", "coordinator")),
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
		sessions: map[Speaker]*capture.Session{
			SpeakerDoctor:  capture.NewSession(captureFactory, captureCfg),
			SpeakerPatient: capture.NewSession(captureFactory, captureCfg),
		},
	}
}

// SessionID identifies this conversation for downstream consumers.
func (c *Coordinator) SessionID() string { return c.sessionID }

// Status reports the current state machine position.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, ActiveSpeaker: c.active}
}

// Conversation returns a read-only snapshot of committed turns.
func (c *Coordinator) Conversation() []Turn {
	return c.log.Snapshot()
}

// Slots exposes the language slots for the API surface.
func (c *Coordinator) Slots() *Slots { return c.slots }

// Transcript renders the committed conversation for note generation.
func (c *Coordinator) Transcript() string { return c.log.Transcript() }

// StartTurn begins capturing speaker s. While another speaker is being
// captured or processed this is a busy no-op; the failure never disturbs the
// in-flight turn.
func (c *Coordinator) StartTurn(ctx context.Context, speaker Speaker) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return pipeline.ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return pipeline.ErrBusy
	}
	c.state = StateCapturing
	c.active = speaker
	c.mu.Unlock()

	// The device must keep buffering after the start request returns, so it
	// is tied to the conversation lifetime rather than the caller's ctx.
	// Teardown (Close) releases it; StopTurn finalizes it.
	result, err := c.sessions[speaker].Start(c.ctx)
	if err != nil {
		// Device failure: the speaker never left idle.
		c.mu.Lock()
		c.state = StateIdle
		c.active = ""
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.pending = result
	c.mu.Unlock()

	c.logger.Info("turn capture started", slog.String("speaker", string(speaker)))
	return nil
}

// StopTurn finalizes the utterance and drives transcribe→translate→commit.
// Every exit path returns the coordinator to idle so the other speaker can
// proceed. ErrNoSpeech is a notice, not a failure: no turn was created.
func (c *Coordinator) StopTurn(ctx context.Context, speaker Speaker) (*Turn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, pipeline.ErrClosed
	}
	if c.state != StateCapturing || c.active != speaker {
		c.mu.Unlock()
		return nil, fmt.Errorf("speaker %s is not capturing", speaker)
	}
	c.state = StateProcessing
	result := c.pending
	c.pending = nil
	c.mu.Unlock()

	turn, err := c.process(ctx, speaker, result)
	c.toIdle()
	return turn, err
}

func (c *Coordinator) process(ctx context.Context, speaker Speaker, result *capture.Result) (*Turn, error) {
	if err := c.sessions[speaker].Stop(); err != nil {
		return nil, err
	}

	// Tie the pipeline to both the caller and the coordinator lifetime so a
	// torn-down session abandons the in-flight calls.
	callCtx, cancel := mergeContexts(ctx, c.ctx)
	defer cancel()

	audio, err := result.Await(callCtx)
	if err != nil {
		return nil, err
	}
	if audio.Empty() {
		c.logger.Info("no audio captured", slog.String("speaker", string(speaker)))
		return nil, pipeline.ErrNoSpeech
	}

	sourceLang := c.slots.Language(speaker)
	targetLang := c.slots.Language(speaker.Other())

	originalText, err := c.transcriber.Transcribe(callCtx, audio, sourceLang)
	if err != nil {
		c.logger.Warn("transcription failed", slogError(err))
		return nil, err
	}
	if originalText == "" {
		// Legitimate outcome, not an error: the service heard nothing.
		c.logger.Info("empty transcription", slog.String("speaker", string(speaker)))
		return nil, pipeline.ErrNoSpeech
	}

	// Context reflects only turns committed before this one.
	contextText := c.log.ContextWindow(c.cfg.ContextWindow)

	translatedText, err := c.translator.Translate(callCtx, translate.Request{
		Text:           originalText,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		Context:        contextText,
	})
	if err != nil {
		c.logger.Warn("translation failed", slogError(err))
		return nil, err
	}

	committed, err := c.commit(Turn{
		Speaker:        speaker,
		OriginalText:   originalText,
		TranslatedText: translatedText,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
	})
	if err != nil {
		return nil, err
	}

	if c.publisher != nil {
		c.publisher.PublishTurn(protocol.TurnCommitted{
			SessionID:      c.sessionID,
			TurnID:         committed.ID,
			Speaker:        string(committed.Speaker),
			OriginalText:   committed.OriginalText,
			TranslatedText: committed.TranslatedText,
			SourceLanguage: committed.SourceLanguage,
			TargetLanguage: committed.TargetLanguage,
			CommittedAt:    committed.CommittedAt,
		})
	}

	c.logger.Info("turn committed",
		slog.Int64("turn_id", committed.ID),
		slog.String("speaker", string(speaker)),
		slog.String("source", sourceLang),
		slog.String("target", targetLang),
	)
	return &committed, nil
}

// commit appends a fully translated turn. The closed check and the append
// share one lock hold so Close can never land between them: a torn-down
// conversation drops the in-flight result instead of committing it.
func (c *Coordinator) commit(turn Turn) (Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Turn{}, pipeline.ErrClosed
	}
	return c.log.Append(turn), nil
}

// PlayTurnAudio synthesizes and plays a committed turn's translated text.
// Repeatable: each call issues a fresh synthesis of the same text; the
// translation is never re-run.
func (c *Coordinator) PlayTurnAudio(ctx context.Context, turnID int64) error {
	turn, ok := c.log.Get(turnID)
	if !ok {
		return fmt.Errorf("turn %d not found", turnID)
	}
	audio, err := c.synthesizer.Synthesize(ctx, synth.Request{Text: turn.TranslatedText})
	if err != nil {
		return err
	}
	return c.player.Play(ctx, audio)
}

// SynthesizeTurn returns the audio for a committed turn without playing it.
func (c *Coordinator) SynthesizeTurn(ctx context.Context, turnID int64) (media.Audio, error) {
	turn, ok := c.log.Get(turnID)
	if !ok {
		return media.Audio{}, fmt.Errorf("turn %d not found", turnID)
	}
	return c.synthesizer.Synthesize(ctx, synth.Request{Text: turn.TranslatedText})
}

func (c *Coordinator) toIdle() {
	c.mu.Lock()
	c.state = StateIdle
	c.active = ""
	c.mu.Unlock()
}

// Close tears down the session. Outstanding service calls are abandoned and
// their eventual resolution is ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	if c.player != nil {
		c.player.Stop()
	}
}

func mergeContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
