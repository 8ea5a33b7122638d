package recordstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caretalk-labs/caretalk-core/internal/config"
	"github.com/caretalk-labs/caretalk-core/internal/protocol"
	_ "modernc.org/sqlite"
)

// TurnRecord is one durably stored conversation turn.
type TurnRecord struct {
	ID             int64
	SessionID      string
	TurnID         int64
	Speaker        string
	OriginalText   string
	TranslatedText string
	SourceLanguage string
	TargetLanguage string
	CommittedAt    time.Time
}

// InstructionRecord is one delivered (or generated) clarified instruction.
type InstructionRecord struct {
	ID            int64
	SessionID     string
	ClarifiedText string
	Language      string
	Method        string
	Destination   string
	SentAt        time.Time
}

// SOAPNoteRecord is one generated clinical note.
type SOAPNoteRecord struct {
	ID         int64
	SessionID  string
	Subjective string
	Objective  string
	Assessment string
	Plan       string
	CreatedAt  time.Time
}

// Store wraps the SQLite-backed clinical record store. The live conversation
// stays in memory; this store only receives what the bus hands it.
type Store struct {
	db    *sql.DB
	cfg   config.RecordStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the record store according to config. Ephemeral mode
// keeps no database; every write becomes a no-op.
func Open(ctx context.Context, cfg config.RecordStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("record store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("record store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    turn_id INTEGER NOT NULL,
    speaker TEXT NOT NULL,
    original_text TEXT NOT NULL,
    translated_text TEXT NOT NULL,
    source_language TEXT NOT NULL,
    target_language TEXT NOT NULL,
    committed_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_turns_session_turn ON turns(session_id, turn_id);
CREATE TABLE IF NOT EXISTS instructions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    clarified_text TEXT NOT NULL,
    language TEXT,
    method TEXT,
    destination TEXT,
    sent_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS soap_notes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    subjective TEXT,
    objective TEXT,
    assessment TEXT,
    plan TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_turns_session_committed ON turns(session_id, committed_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSession ensures a session row exists.
func (s *Store) EnsureSession(ctx context.Context, sessionID string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, created_at) VALUES(?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, s.clock().UTC())
	return err
}

// AppendTurn writes a committed turn. Replays of the same (session, turn)
// pair are ignored so at-least-once bus delivery stays harmless.
func (s *Store) AppendTurn(ctx context.Context, evt protocol.TurnCommitted) error {
	if s.db == nil {
		return nil
	}
	if err := s.EnsureSession(ctx, evt.SessionID); err != nil {
		return err
	}
	committed := evt.CommittedAt
	if committed.IsZero() {
		committed = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns(session_id, turn_id, speaker, original_text, translated_text, source_language, target_language, committed_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, turn_id) DO NOTHING`,
		evt.SessionID, evt.TurnID, evt.Speaker, evt.OriginalText, evt.TranslatedText,
		evt.SourceLanguage, evt.TargetLanguage, committed.UTC())
	return err
}

// AppendInstruction writes a sent-instruction record.
func (s *Store) AppendInstruction(ctx context.Context, evt protocol.InstructionSent) error {
	if s.db == nil {
		return nil
	}
	if err := s.EnsureSession(ctx, evt.SessionID); err != nil {
		return err
	}
	sent := evt.SentAt
	if sent.IsZero() {
		sent = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instructions(session_id, clarified_text, language, method, destination, sent_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		evt.SessionID, evt.ClarifiedText, evt.Language, evt.Method, evt.Destination, sent.UTC())
	return err
}

// AppendSOAPNote writes a generated clinical note.
func (s *Store) AppendSOAPNote(ctx context.Context, evt protocol.SOAPNoteCreated) error {
	if s.db == nil {
		return nil
	}
	if err := s.EnsureSession(ctx, evt.SessionID); err != nil {
		return err
	}
	created := evt.CreatedAt
	if created.IsZero() {
		created = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO soap_notes(session_id, subjective, objective, assessment, plan, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		evt.SessionID, evt.Subjective, evt.Objective, evt.Assessment, evt.Plan, created.UTC())
	return err
}

// ListTurns retrieves up to limit turns for a session in commit order.
func (s *Store) ListTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, turn_id, speaker, original_text, translated_text, source_language, target_language, committed_at
		 FROM turns WHERE session_id = ? ORDER BY turn_id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TurnRecord
	for rows.Next() {
		var r TurnRecord
		var committed string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.TurnID, &r.Speaker, &r.OriginalText, &r.TranslatedText,
			&r.SourceLanguage, &r.TargetLanguage, &committed); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, committed); err == nil {
			r.CommittedAt = ts
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListInstructions retrieves sent instructions for a session, newest last.
func (s *Store) ListInstructions(ctx context.Context, sessionID string, limit int) ([]InstructionRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, clarified_text, language, method, destination, sent_at
		 FROM instructions WHERE session_id = ? ORDER BY sent_at ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []InstructionRecord
	for rows.Next() {
		var r InstructionRecord
		var sent string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.ClarifiedText, &r.Language, &r.Method, &r.Destination, &sent); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, sent); err == nil {
			r.SentAt = ts
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListSOAPNotes retrieves generated notes for a session, newest last.
func (s *Store) ListSOAPNotes(ctx context.Context, sessionID string, limit int) ([]SOAPNoteRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, subjective, objective, assessment, plan, created_at
		 FROM soap_notes WHERE session_id = ? ORDER BY created_at ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SOAPNoteRecord
	for rows.Next() {
		var r SOAPNoteRecord
		var created string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Subjective, &r.Objective, &r.Assessment, &r.Plan, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = ts
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune applies configured retention. Called on startup; callers may also
// schedule it.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC()
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
