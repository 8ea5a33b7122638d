package protocol

import "time"

// TurnCommitted is broadcast after the coordinator commits a translated turn.
// Storage collaborators consume it as plain data; the live conversation log
// itself stays in memory.
type TurnCommitted struct {
	SessionID      string    `json:"session_id"`
	TurnID         int64     `json:"turn_id"`
	Speaker        string    `json:"speaker"`
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text"`
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
	CommittedAt    time.Time `json:"committed_at"`
}

// InstructionSent records a clarified instruction that was delivered (or
// generated for delivery) to a patient.
type InstructionSent struct {
	SessionID     string    `json:"session_id"`
	ClarifiedText string    `json:"clarified_text"`
	Language      string    `json:"language"`
	Method        string    `json:"method"`
	Destination   string    `json:"destination,omitempty"`
	SentAt        time.Time `json:"sent_at"`
}

// SOAPNoteCreated carries a generated clinical note for persistence.
type SOAPNoteCreated struct {
	SessionID  string    `json:"session_id"`
	Subjective string    `json:"subjective"`
	Objective  string    `json:"objective"`
	Assessment string    `json:"assessment"`
	Plan       string    `json:"plan"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	SubjectTurnCommitted   = "conversation.turn.committed"
	SubjectInstructionSent = "instruction.sent"
	SubjectSOAPNoteCreated = "notes.soap.created"
)
