package runtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/caretalk-labs/caretalk-core/internal/bus"
	"github.com/caretalk-labs/caretalk-core/internal/conversation"
	"github.com/caretalk-labs/caretalk-core/internal/deliver"
	"github.com/caretalk-labs/caretalk-core/internal/instruction"
	"github.com/caretalk-labs/caretalk-core/internal/language"
	"github.com/caretalk-labs/caretalk-core/internal/media"
	"github.com/caretalk-labs/caretalk-core/internal/notes"
	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
	"github.com/caretalk-labs/caretalk-core/internal/protocol"
	"github.com/caretalk-labs/caretalk-core/internal/transcribe"
)

// API exposes the conversation pipeline over HTTP. It is a thin layer: every
// rule lives in the coordinator and its collaborators.
type API struct {
	coordinator  *conversation.Coordinator
	instructions *instruction.Pipeline
	soap         *notes.Generator
	transcriber  transcribe.Transcriber
	gateway      deliver.Gateway
	publisher    *bus.Publisher
	languages    *language.Directory
	logger       *slog.Logger
}

func NewAPI(
	coordinator *conversation.Coordinator,
	instructions *instruction.Pipeline,
	soap *notes.Generator,
	transcriber transcribe.Transcriber,
	gateway deliver.Gateway,
	publisher *bus.Publisher,
	languages *language.Directory,
	logger *slog.Logger,
) *API {
	return &API{
		coordinator:  coordinator,
		instructions: instructions,
		soap:         soap,
		transcriber:  transcriber,
		gateway:      gateway,
		publisher:    publisher,
		languages:    languages,
		logger:       logger.With(slog.String("component", "api")),
	}
}

func (a *API) Routes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Post("/turns/{speaker}/start", a.handleStartTurn)
		r.Post("/turns/{speaker}/stop", a.handleStopTurn)
		r.Get("/conversation", a.handleConversation)
		r.Post("/turns/{turnID}/play", a.handlePlayTurn)
		r.Get("/turns/{turnID}/audio", a.handleTurnAudio)
		r.Get("/languages", a.handleLanguages)
		r.Put("/languages/{speaker}", a.handleSetLanguage)
		r.Post("/languages/swap", a.handleSwapLanguages)
	})
	r.Post("/instructions/clarify", a.handleClarify)
	r.Post("/instructions/send", a.handleSendInstructions)
	r.Post("/notes/soap", a.handleSOAPNote)
}

type turnPayload struct {
	ID             int64     `json:"id"`
	Speaker        string    `json:"speaker"`
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text"`
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
	CommittedAt    time.Time `json:"committed_at"`
}

func toTurnPayload(t conversation.Turn) turnPayload {
	return turnPayload{
		ID:             t.ID,
		Speaker:        string(t.Speaker),
		OriginalText:   t.OriginalText,
		TranslatedText: t.TranslatedText,
		SourceLanguage: t.SourceLanguage,
		TargetLanguage: t.TargetLanguage,
		CommittedAt:    t.CommittedAt,
	}
}

func (a *API) handleStartTurn(w http.ResponseWriter, r *http.Request) {
	speaker, err := conversation.ParseSpeaker(chi.URLParam(r, "speaker"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.coordinator.StartTurn(r.Context(), speaker); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "capturing", "speaker": string(speaker)})
}

func (a *API) handleStopTurn(w http.ResponseWriter, r *http.Request) {
	speaker, err := conversation.ParseSpeaker(chi.URLParam(r, "speaker"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	turn, err := a.coordinator.StopTurn(r.Context(), speaker)
	if errors.Is(err, pipeline.ErrNoSpeech) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "no_speech"})
		return
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "committed", "turn": toTurnPayload(*turn)})
}

func (a *API) handleConversation(w http.ResponseWriter, _ *http.Request) {
	turns := a.coordinator.Conversation()
	payload := make([]turnPayload, 0, len(turns))
	for _, t := range turns {
		payload = append(payload, toTurnPayload(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": a.coordinator.SessionID(),
		"turns":      payload,
	})
}

func (a *API) handlePlayTurn(w http.ResponseWriter, r *http.Request) {
	turnID, err := strconv.ParseInt(chi.URLParam(r, "turnID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid turn id", http.StatusBadRequest)
		return
	}
	if err := a.coordinator.PlayTurnAudio(r.Context(), turnID); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "playing"})
}

func (a *API) handleTurnAudio(w http.ResponseWriter, r *http.Request) {
	turnID, err := strconv.ParseInt(chi.URLParam(r, "turnID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid turn id", http.StatusBadRequest)
		return
	}
	audio, err := a.coordinator.SynthesizeTurn(r.Context(), turnID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", audio.MIMEType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio.Bytes)
}

func (a *API) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	slots := a.coordinator.Slots()
	available := make([]map[string]string, 0)
	for _, lang := range a.languages.All() {
		available = append(available, map[string]string{"code": lang.Code, "name": lang.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doctor":    slots.Language(conversation.SpeakerDoctor),
		"patient":   slots.Language(conversation.SpeakerPatient),
		"available": available,
	})
}

func (a *API) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	speaker, err := conversation.ParseSpeaker(chi.URLParam(r, "speaker"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if _, err := a.languages.Lookup(body.Code); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.coordinator.Slots().SetLanguage(speaker, body.Code); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleSwapLanguages(w http.ResponseWriter, _ *http.Request) {
	if err := a.coordinator.Slots().Swap(); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type clarifyBody struct {
	CustomInstruction string `json:"custom_instruction"`
	// A dictated instruction as a data URI; transcribed in the doctor's
	// language and appended to the text instruction.
	CustomInstructionAudio string `json:"custom_instruction_audio"`
	PatientLanguage        string `json:"patient_language"`
}

func (a *API) clarify(r *http.Request, body clarifyBody) (*instruction.Result, string, error) {
	lang := body.PatientLanguage
	if lang == "" {
		lang = a.coordinator.Slots().Language(conversation.SpeakerPatient)
	}

	custom := body.CustomInstruction
	if body.CustomInstructionAudio != "" {
		audio, err := media.ParseDataURI(body.CustomInstructionAudio)
		if err != nil {
			return nil, lang, err
		}
		dictated, err := a.transcriber.Transcribe(r.Context(), audio,
			a.coordinator.Slots().Language(conversation.SpeakerDoctor))
		if err != nil {
			return nil, lang, err
		}
		custom = strings.TrimSpace(strings.Join([]string{custom, dictated}, " "))
	}

	res, err := a.instructions.Clarify(r.Context(), instruction.Request{
		Conversation:      a.coordinator.Transcript(),
		CustomInstruction: custom,
		PatientLanguage:   lang,
	})
	return res, lang, err
}

func (a *API) handleClarify(w http.ResponseWriter, r *http.Request) {
	var body clarifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	res, _, err := a.clarify(r, body)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clarified_text": res.ClarifiedText,
		"audio_data_uri": res.Audio.DataURI(),
	})
}

func (a *API) handleSendInstructions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		clarifyBody
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.To) == "" {
		http.Error(w, "missing recipient", http.StatusBadRequest)
		return
	}
	if a.gateway == nil {
		http.Error(w, "delivery is not configured", http.StatusServiceUnavailable)
		return
	}

	res, lang, err := a.clarify(r, body.clarifyBody)
	if err != nil {
		a.writeError(w, err)
		return
	}

	if err := a.gateway.Deliver(r.Context(), deliver.Request{
		To:    body.To,
		Text:  res.ClarifiedText,
		Audio: res.Audio,
	}); err != nil {
		a.writeError(w, err)
		return
	}

	a.publisher.PublishInstruction(protocol.InstructionSent{
		SessionID:     a.coordinator.SessionID(),
		ClarifiedText: res.ClarifiedText,
		Language:      lang,
		Method:        "WhatsApp",
		Destination:   body.To,
		SentAt:        time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "sent",
		"clarified_text": res.ClarifiedText,
	})
}

func (a *API) handleSOAPNote(w http.ResponseWriter, r *http.Request) {
	note, err := a.soap.Generate(r.Context(), a.coordinator.Transcript())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.publisher.PublishSOAPNote(protocol.SOAPNoteCreated{
		SessionID:  a.coordinator.SessionID(),
		Subjective: note.Subjective,
		Objective:  note.Objective,
		Assessment: note.Assessment,
		Plan:       note.Plan,
		CreatedAt:  time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, note)
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var (
		svcErr      *pipeline.ServiceError
		deliveryErr *pipeline.DeliveryError
		deviceErr   *pipeline.DeviceAccessError
		cfgErr      *pipeline.ConfigurationError
	)
	switch {
	case errors.Is(err, pipeline.ErrBusy), errors.Is(err, pipeline.ErrConversationStarted):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, pipeline.ErrClosed):
		writeJSON(w, http.StatusGone, map[string]string{"error": err.Error()})
	case errors.As(err, &deviceErr):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.As(err, &svcErr), errors.As(err, &deliveryErr):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		a.logger.Warn("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
