package conversation

import (
	"sync"

	"github.com/caretalk-labs/caretalk-core/internal/pipeline"
)

// Slots holds the per-speaker language selection. Languages are mutable only
// while the conversation has zero turns; the first committed turn locks them.
type Slots struct {
	mu        sync.Mutex
	languages map[Speaker]string
	log       *Log
}

func NewSlots(log *Log, doctorLanguage, patientLanguage string) *Slots {
	return &Slots{
		languages: map[Speaker]string{
			SpeakerDoctor:  doctorLanguage,
			SpeakerPatient: patientLanguage,
		},
		log: log,
	}
}

// Language returns the current language for a role.
func (s *Slots) Language(speaker Speaker) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.languages[speaker]
}

// SetLanguage changes a role's language. Rejected once the conversation has
// started: the emptiness check and the write happen under the log's lock so
// a commit landing concurrently cannot slip between them.
func (s *Slots) SetLanguage(speaker Speaker, code string) error {
	ok := s.log.ifEmpty(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.languages[speaker] = code
	})
	if !ok {
		return pipeline.ErrConversationStarted
	}
	return nil
}

// Swap exchanges the two languages. Rejected once the conversation has
// started, under the same lock discipline as SetLanguage.
func (s *Slots) Swap() error {
	ok := s.log.ifEmpty(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.languages[SpeakerDoctor], s.languages[SpeakerPatient] =
			s.languages[SpeakerPatient], s.languages[SpeakerDoctor]
	})
	if !ok {
		return pipeline.ErrConversationStarted
	}
	return nil
}
