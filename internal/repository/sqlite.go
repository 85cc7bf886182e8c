// Package repository provides persistent agent.SessionService implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/chatrelay/internal/agent"
)

// SQLiteSessionService implements agent.SessionService using SQLite.
type SQLiteSessionService struct {
	db *sql.DB
}

var _ agent.SessionService = (*SQLiteSessionService)(nil)

// NewSQLiteSessionService opens dsn and migrates the schema.
func NewSQLiteSessionService(dsn string) (*SQLiteSessionService, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteSessionService{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteSessionService) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			app_name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (app_name, user_id, session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			app_name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			invocation_id TEXT NOT NULL,
			author TEXT NOT NULL,
			content TEXT,
			turn_complete INTEGER NOT NULL DEFAULT 0,
			error_code TEXT,
			error_message TEXT,
			ts INTEGER NOT NULL,
			FOREIGN KEY (app_name, user_id, session_id) REFERENCES sessions(app_name, user_id, session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(app_name, user_id, session_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSessionService) Close() error {
	return s.db.Close()
}

// Create inserts a new session.
func (s *SQLiteSessionService) Create(ctx context.Context, appName, userID, sessionID string) (*agent.Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (app_name, user_id, session_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		appName, userID, sessionID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &agent.Session{
		ID:             sessionID,
		AppName:        appName,
		UserID:         userID,
		LastUpdateTime: now,
	}, nil
}

// Get retrieves a session with its events, or nil when it does not exist.
func (s *SQLiteSessionService) Get(ctx context.Context, appName, userID, sessionID string) (*agent.Session, error) {
	sess := agent.Session{AppName: appName, UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, updated_at FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		appName, userID, sessionID).Scan(&sess.ID, &sess.LastUpdateTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	events, err := s.getEvents(ctx, appName, userID, sessionID)
	if err != nil {
		return nil, err
	}
	sess.Events = events
	return &sess, nil
}

func (s *SQLiteSessionService) getEvents(ctx context.Context, appName, userID, sessionID string) ([]*agent.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, invocation_id, author, content, turn_complete, error_code, error_message, ts
		FROM events WHERE app_name = ? AND user_id = ? AND session_id = ? ORDER BY ts ASC, rowid ASC`,
		appName, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*agent.Event
	for rows.Next() {
		var ev agent.Event
		var content, errorCode, errorMessage sql.NullString
		var turnComplete int
		var ts int64
		if err := rows.Scan(&ev.ID, &ev.InvocationID, &ev.Author, &content, &turnComplete, &errorCode, &errorMessage, &ts); err != nil {
			return nil, err
		}
		if content.Valid && content.String != "" {
			var c agent.Content
			if err := json.Unmarshal([]byte(content.String), &c); err != nil {
				return nil, fmt.Errorf("failed to decode event %s content: %w", ev.ID, err)
			}
			ev.Content = &c
		}
		ev.TurnComplete = turnComplete != 0
		ev.ErrorCode = errorCode.String
		ev.ErrorMessage = errorMessage.String
		ev.Timestamp = time.UnixMilli(ts)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// AppendEvent persists a non-partial event and appends it to sess.Events.
func (s *SQLiteSessionService) AppendEvent(ctx context.Context, sess *agent.Session, event *agent.Event) error {
	if event.Partial {
		return nil
	}

	var content sql.NullString
	if event.Content != nil {
		data, err := json.Marshal(event.Content)
		if err != nil {
			return fmt.Errorf("failed to encode event content: %w", err)
		}
		content = sql.NullString{String: string(data), Valid: true}
	}
	turnComplete := 0
	if event.TurnComplete {
		turnComplete = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (event_id, app_name, user_id, session_id, invocation_id, author, content, turn_complete, error_code, error_message, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, sess.AppName, sess.UserID, sess.ID, event.InvocationID, event.Author, content, turnComplete,
		event.ErrorCode, event.ErrorMessage, event.Timestamp.UnixMilli()); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		event.Timestamp, sess.AppName, sess.UserID, sess.ID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	sess.Events = append(sess.Events, event)
	sess.LastUpdateTime = event.Timestamp
	return nil
}
