package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/franckalain/dietplanner/internal/chat"
	"github.com/franckalain/dietplanner/internal/models"
	"go.uber.org/zap"
)

var _ chat.Store = (*SessionStore)(nil)

// SessionStore is a chat.Store backed by the chat_sessions table
type SessionStore struct {
	db       *sql.DB
	capacity int
	log      *zap.Logger
}

// Sessions returns a session store keeping at most capacity sessions
func (s *SQLiteDB) Sessions(capacity int) *SessionStore {
	if capacity <= 0 {
		capacity = chat.DefaultMaxSessions
	}
	return &SessionStore{db: s.db, capacity: capacity, log: s.log}
}

func (s *SessionStore) List(ctx context.Context) ([]models.ChatSession, error) {
	query := `
		SELECT id, title, messages, created_at, updated_at
		FROM chat_sessions
		ORDER BY updated_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.ChatSession{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func (s *SessionStore) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	query := `
		SELECT id, title, messages, created_at, updated_at
		FROM chat_sessions WHERE id = ?
	`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSessionNotFound
	}
	return sess, err
}

// Put upserts the session and trims the table to the store capacity
func (s *SessionStore) Put(ctx context.Context, session *models.ChatSession) error {
	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("error encoding messages: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO chat_sessions (id, title, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			messages = excluded.messages,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, upsert,
		session.ID, session.Title, string(messages),
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt),
	); err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}

	evict := `
		DELETE FROM chat_sessions WHERE id NOT IN (
			SELECT id FROM chat_sessions ORDER BY updated_at DESC, id DESC LIMIT ?
		)
	`
	res, err := tx.ExecContext(ctx, evict, s.capacity)
	if err != nil {
		return fmt.Errorf("error trimming sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Info("evicted chat sessions over capacity", zap.Int64("count", n), zap.Int("capacity", s.capacity))
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	return nil
}

func scanSession(row scanner) (*models.ChatSession, error) {
	var (
		sess                 models.ChatSession
		messages             string
		createdAt, updatedAt string
	)
	if err := row.Scan(&sess.ID, &sess.Title, &messages, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messages), &sess.Messages); err != nil {
		return nil, fmt.Errorf("error decoding messages of session %s: %w", sess.ID, err)
	}
	if sess.Messages == nil {
		sess.Messages = []models.ChatMessage{}
	}

	var err error
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}
