// Package transcript persists chat exchanges to SQLite so conversations
// survive process restarts and can be inspected after the fact.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"kubeagentic/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	user_message    TEXT NOT NULL,
	agent_response  TEXT NOT NULL,
	provider        TEXT NOT NULL,
	model           TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exchanges_conversation
	ON exchanges(conversation_id, created_at);
`

// DefaultHistoryLimit bounds History queries that pass no limit.
const DefaultHistoryLimit = 50

// Exchange is one recorded request/response pair.
type Exchange struct {
	ID             string
	ConversationID string
	UserMessage    string
	AgentResponse  string
	Provider       string
	Model          string
	CreatedAt      time.Time
}

// Store writes and reads chat transcripts. Each caller owns its Store; there
// is no package-level instance.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the transcript database at dbPath.
func Open(dbPath string) (*Store, error) {
	// Open database connection with WAL mode and busy timeout
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping transcript database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize transcript schema: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("transcript")
	logger.Info("Transcript database ready: %s", dbPath)

	return &Store{db: db, logger: logger}, nil
}

// Record persists one exchange. A zero ID gets a generated UUID and a zero
// CreatedAt gets the current time; both are filled in on ex.
func (s *Store) Record(ctx context.Context, ex *Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (id, conversation_id, user_message, agent_response, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.ConversationID, ex.UserMessage, ex.AgentResponse, ex.Provider, ex.Model, ex.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// History returns a conversation's exchanges in chronological order, capped
// at limit (DefaultHistoryLimit when non-positive).
func (s *Store) History(ctx context.Context, conversationID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, user_message, agent_response, provider, model, created_at
		FROM exchanges
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var exchanges []Exchange
	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.ID, &ex.ConversationID, &ex.UserMessage, &ex.AgentResponse, &ex.Provider, &ex.Model, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}
	return exchanges, nil
}

// Count returns the number of recorded exchanges for a conversation.
func (s *Store) Count(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exchanges WHERE conversation_id = ?`,
		conversationID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count exchanges: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close transcript database: %w", err)
	}
	return nil
}
