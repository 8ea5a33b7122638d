package recordstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.RecordStoreConfig{RetentionMode: "ephemeral"}
	rs, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	// Every write is a silent no-op without a database.
	if err := rs.AppendTurn(context.Background(), protocol.TurnCommitted{SessionID: "s", TurnID: 1}); err != nil {
		t.Fatalf("append on ephemeral store: %v", err)
	}
	turns, err := rs.ListTurns(context.Background(), "s", 10)
	if err != nil || turns != nil {
		t.Fatalf("ephemeral store must hold nothing, got %v, %v", turns, err)
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.RecordStoreConfig{
		Path:          filepath.Join(t.TempDir(), "records.db"),
		RetentionMode: "persistent",
	}
	rs, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open record store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs
}

func TestAppendAndListTurns(t *testing.T) {
	rs := newStore(t)
	ctx := context.Background()

	evt := protocol.TurnCommitted{
		SessionID:      "session-1",
		TurnID:         1,
		Speaker:        "doctor",
		OriginalText:   "Hello",
		TranslatedText: "ہیلو",
		SourceLanguage: "eng",
		TargetLanguage: "urd",
		CommittedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := rs.AppendTurn(ctx, evt); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	evt.TurnID = 2
	evt.Speaker = "patient"
	evt.OriginalText = "سلام"
	if err := rs.AppendTurn(ctx, evt); err != nil {
		t.Fatalf("append second turn: %v", err)
	}

	turns, err := rs.ListTurns(ctx, "session-1", 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].TurnID != 1 || turns[1].TurnID != 2 {
		t.Fatalf("turns out of order: %+v", turns)
	}
	if turns[0].TranslatedText != "ہیلو" {
		t.Fatalf("unexpected translation %q", turns[0].TranslatedText)
	}
}

func TestAppendTurnReplayIsIgnored(t *testing.T) {
	rs := newStore(t)
	ctx := context.Background()

	evt := protocol.TurnCommitted{SessionID: "session-1", TurnID: 1, Speaker: "doctor", OriginalText: "Hello"}
	if err := rs.AppendTurn(ctx, evt); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	if err := rs.AppendTurn(ctx, evt); err != nil {
		t.Fatalf("replayed append: %v", err)
	}
	turns, err := rs.ListTurns(ctx, "session-1", 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("replay must not duplicate, got %d rows", len(turns))
	}
}

func TestAppendInstructionAndNote(t *testing.T) {
	rs := newStore(t)
	ctx := context.Background()

	if err := rs.AppendInstruction(ctx, protocol.InstructionSent{
		SessionID:     "session-1",
		ClarifiedText: "دن میں دو بار دوا لیں۔",
		Language:      "urd",
		Method:        "WhatsApp",
		Destination:   "923001234567",
	}); err != nil {
		t.Fatalf("append instruction: %v", err)
	}
	if err := rs.AppendSOAPNote(ctx, protocol.SOAPNoteCreated{
		SessionID:  "session-1",
		Subjective: "Headache for three days.",
		Plan:       "Hydration and rest.",
	}); err != nil {
		t.Fatalf("append note: %v", err)
	}

	instructions, err := rs.ListInstructions(ctx, "session-1", 10)
	if err != nil || len(instructions) != 1 {
		t.Fatalf("list instructions: %v, %v", instructions, err)
	}
	if instructions[0].Method != "WhatsApp" {
		t.Fatalf("method = %q", instructions[0].Method)
	}
	notes, err := rs.ListSOAPNotes(ctx, "session-1", 10)
	if err != nil || len(notes) != 1 {
		t.Fatalf("list notes: %v, %v", notes, err)
	}
	if notes[0].Subjective != "Headache for three days." {
		t.Fatalf("subjective = %q", notes[0].Subjective)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	cfg := config.RecordStoreConfig{
		Path:          filepath.Join(t.TempDir(), "records.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxSessions:   1,
	}
	rs, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open record store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	ctx := context.Background()

	rs.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := rs.AppendTurn(ctx, protocol.TurnCommitted{SessionID: "old-session", TurnID: 1, Speaker: "doctor", CommittedAt: rs.clock()}); err != nil {
		t.Fatalf("append old turn: %v", err)
	}

	rs.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := rs.EnsureSession(ctx, "new-session"); err != nil {
		t.Fatalf("ensure new session: %v", err)
	}
	if err := rs.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	turns, err := rs.ListTurns(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 0 {
		t.Fatal("expected old session pruned")
	}
}
