package recordstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/caretalk-labs/caretalk-core/internal/bus"
	"github.com/caretalk-labs/caretalk-core/internal/protocol"
)

// Service consumes committed turns, sent instructions, and clinical notes
// off the bus and persists them. It is the only writer of the record store;
// the coordinator never talks to SQLite directly.
type Service struct {
	store  *Store
	bus    *bus.Client
	subs   []*nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewService(parent context.Context, store *Store, busClient *bus.Client, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		store:  store,
		bus:    busClient,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "recordstore-service")),
	}
}

func (s *Service) Start() error {
	handlers := map[string]nats.MsgHandler{
		protocol.SubjectTurnCommitted:   s.handleTurn,
		protocol.SubjectInstructionSent: s.handleInstruction,
		protocol.SubjectSOAPNoteCreated: s.handleSOAPNote,
	}
	for subject, handler := range handlers {
		sub, err := s.bus.Conn().Subscribe(subject, handler)
		if err != nil {
			return err
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return len(s.subs) == 3 }

func (s *Service) handleTurn(msg *nats.Msg) {
	var evt protocol.TurnCommitted
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		s.logger.Warn("failed to decode turn event", slogError(err))
		return
	}
	s.persist("turn", func(ctx context.Context) error {
		return s.store.AppendTurn(ctx, evt)
	})
}

func (s *Service) handleInstruction(msg *nats.Msg) {
	var evt protocol.InstructionSent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		s.logger.Warn("failed to decode instruction event", slogError(err))
		return
	}
	s.persist("instruction", func(ctx context.Context) error {
		return s.store.AppendInstruction(ctx, evt)
	})
}

func (s *Service) handleSOAPNote(msg *nats.Msg) {
	var evt protocol.SOAPNoteCreated
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		s.logger.Warn("failed to decode soap note event", slogError(err))
		return
	}
	s.persist("soap_note", func(ctx context.Context) error {
		return s.store.AppendSOAPNote(ctx, evt)
	})
}

func (s *Service) persist(kind string, write func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
		defer cancel()
		if err := write(ctx); err != nil {
			s.logger.Warn("record persist failed", slog.String("kind", kind), slogError(err))
		}
	}()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
