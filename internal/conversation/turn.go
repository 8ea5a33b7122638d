package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Speaker is one of the two fixed conversational roles.
type Speaker string

const (
	SpeakerDoctor  Speaker = "doctor"
	SpeakerPatient Speaker = "patient"
)

// Other returns the opposite role.
func (s Speaker) Other() Speaker {
	if s == SpeakerDoctor {
		return SpeakerPatient
	}
	return SpeakerDoctor
}

// Label is the display form used in transcripts and translation context.
func (s Speaker) Label() string {
	switch s {
	case SpeakerDoctor:
		return "Doctor"
	case SpeakerPatient:
		return "Patient"
	}
	return string(s)
}

// ParseSpeaker validates a role name from the API surface.
func ParseSpeaker(raw string) (Speaker, error) {
	switch Speaker(strings.ToLower(raw)) {
	case SpeakerDoctor:
		return SpeakerDoctor, nil
	case SpeakerPatient:
		return SpeakerPatient, nil
	}
	return "", fmt.Errorf("unknown speaker %q", raw)
}

// Turn is one committed, translated exchange. Immutable once committed:
// created only by the coordinator after both transcription and translation
// succeed, never mutated, never deleted for the session's lifetime.
type Turn struct {
	ID             int64
	Speaker        Speaker
	OriginalText   string
	TranslatedText string
	SourceLanguage string
	TargetLanguage string
	CommittedAt    time.Time
}

// Log is the append-only, strictly ordered conversation transcript. It lives
// in memory only; durable record keeping happens downstream of the bus.
type Log struct {
	mu     sync.RWMutex
	turns  []Turn
	nextID int64
}

func NewLog() *Log {
	return &Log{nextID: 1}
}

// Append assigns the next monotonic ID and commits the turn.
func (l *Log) Append(turn Turn) Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	turn.ID = l.nextID
	l.nextID++
	if turn.CommittedAt.IsZero() {
		turn.CommittedAt = time.Now().UTC()
	}
	l.turns = append(l.turns, turn)
	return turn
}

// ifEmpty runs fn under the log's lock when no turn has committed, so the
// emptiness check and fn cannot interleave with a concurrent Append. Returns
// false, without running fn, once the conversation has turns.
func (l *Log) ifEmpty(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.turns) > 0 {
		return false
	}
	fn()
	return true
}

// Snapshot returns a read-only copy of all committed turns in order.
func (l *Log) Snapshot() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of committed turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Get looks up a committed turn by ID.
func (l *Log) Get(id int64) (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.turns {
		if t.ID == id {
			return t, true
		}
	}
	return Turn{}, false
}

// ContextWindow renders the last k committed turns as "Speaker: original"
// lines, oldest first. Only turns committed before the call are visible, so
// an in-flight turn can never see itself.
func (l *Log) ContextWindow(k int) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if k <= 0 || len(l.turns) == 0 {
		return ""
	}
	start := len(l.turns) - k
	if start < 0 {
		start = 0
	}
	lines := make([]string, 0, len(l.turns)-start)
	for _, t := range l.turns[start:] {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Speaker.Label(), t.OriginalText))
	}
	return strings.Join(lines, "\n")
}

// Transcript renders the whole conversation for note generation.
func (l *Log) Transcript() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lines := make([]string, 0, len(l.turns))
	for _, t := range l.turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Speaker.Label(), t.OriginalText))
	}
	return strings.Join(lines, "\n")
}
