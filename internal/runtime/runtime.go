package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/caretalk-labs/caretalk-core/internal/bus"
	"github.com/caretalk-labs/caretalk-core/internal/capture"
	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/conversation"
	"github.com/caretalk-labs/caretalk-core/internal/deliver"
	"github.com/caretalk-labs/caretalk-core/internal/instruction"
	"github.com/caretalk-labs/caretalk-core/internal/language"
	"github.com/caretalk-labs/caretalk-core/internal/llm"
	"github.com/caretalk-labs/caretalk-core/internal/natsserver"
	"github.com/caretalk-labs/caretalk-core/internal/notes"
	"github.com/caretalk-labs/caretalk-core/internal/playback"
	"github.com/caretalk-labs/caretalk-core/internal/recordstore"
	"github.com/caretalk-labs/caretalk-core/internal/synth"
	"github.com/caretalk-labs/caretalk-core/internal/transcribe"
	"github.com/caretalk-labs/caretalk-core/internal/translate"
)

// Runtime wires the conversation pipeline, the bus, the record store, and
// the HTTP surface together and owns their lifecycle.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	embedded    *natsserver.EmbeddedServer
	busClient   *bus.Client
	store       *recordstore.Store
	records     *recordstore.Service
	coordinator *conversation.Coordinator
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the runtime up and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if r.cfg.Bus.Embedded {
		embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded bus: %w", err)
		}
		r.embedded = embedded
		defer r.embedded.Shutdown()
	}

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	r.busClient = busClient
	defer r.busClient.Close()

	store, err := recordstore.Open(ctx, r.cfg.RecordStore, r.logger)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	r.store = store
	defer r.store.Close()

	r.records = recordstore.NewService(ctx, store, busClient, r.logger)
	if err := r.records.Start(); err != nil {
		return fmt.Errorf("start record service: %w", err)
	}
	defer r.records.Close()

	api, err := r.buildPipeline(ctx, busClient)
	if err != nil {
		return err
	}
	defer r.coordinator.Close()

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", r.handleHealth)
	router.Get("/readyz", r.handleReady)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler)
	}
	api.Routes(router)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("session_id", r.coordinator.SessionID()),
	)

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildPipeline(ctx context.Context, busClient *bus.Client) (*API, error) {
	languages := language.NewDirectory(r.cfg.Languages)

	captureFactory, err := capture.FromConfig(r.cfg.Capture)
	if err != nil {
		return nil, fmt.Errorf("configure capture: %w", err)
	}

	transcriber, err := transcribe.NewClient(r.cfg.Transcription)
	if err != nil {
		return nil, fmt.Errorf("configure transcription: %w", err)
	}

	generator, err := llm.FromConfig(r.cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("configure llm: %w", err)
	}
	translator := translate.NewTranslator(generator, r.cfg.LLM)

	synthesizer, err := synth.NewClient(r.cfg.Synthesis)
	if err != nil {
		return nil, fmt.Errorf("configure synthesis: %w", err)
	}

	player, err := playback.FromConfig(r.cfg.Playback)
	if err != nil {
		return nil, fmt.Errorf("configure playback: %w", err)
	}

	publisher := bus.NewPublisher(busClient)

	r.coordinator = conversation.NewCoordinator(
		ctx,
		r.cfg.Conversation,
		captureFactory,
		r.cfg.Capture,
		transcriber,
		translator,
		synthesizer,
		playback.NewManager(player),
		publisher,
		r.logger,
	)

	instructions := instruction.NewPipeline(generator, synthesizer, languages, r.cfg.LLM, r.logger)
	soap := notes.NewGenerator(generator, r.cfg.LLM, r.logger)

	var gateway deliver.Gateway
	if r.cfg.Delivery.Enabled {
		client, err := deliver.NewClient(r.cfg.Delivery, r.logger)
		if err != nil {
			return nil, fmt.Errorf("configure delivery: %w", err)
		}
		gateway = client
	}

	return NewAPI(r.coordinator, instructions, soap, transcriber, gateway, publisher, languages, r.logger), nil
}

// Healthy reports whether the runtime's collaborators are up.
func (r *Runtime) Healthy() bool {
	return r.ready.Load() && r.busClient.Healthy() && (r.records == nil || r.records.Healthy())
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
