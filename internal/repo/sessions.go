package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Mirjalol49/promed-bot/internal/model"
)

type sessionRow struct {
	ChatID    string `db:"chat_id"`
	Language  string `db:"language"`
	ExpiresAt string `db:"expires_at"`
}

func (s *Store) PutSession(ctx context.Context, session model.ChatSession) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO chat_sessions (chat_id, language, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET language = excluded.language, expires_at = excluded.expires_at
	`), session.ChatID, session.Language, model.Timestamp(session.ExpiresAt))
	if err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// GetSession returns ErrNotFound for missing and expired sessions alike.
func (s *Store) GetSession(ctx context.Context, chatID string) (*model.ChatSession, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT chat_id, language, expires_at
		FROM chat_sessions
		WHERE chat_id = ? AND expires_at > ?
	`), chatID, model.Timestamp(time.Now()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	expiresAt, err := time.Parse(time.RFC3339, row.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("parsing session expiry %q: %w", row.ExpiresAt, err)
	}
	return &model.ChatSession{ChatID: row.ChatID, Language: row.Language, ExpiresAt: expiresAt}, nil
}

func (s *Store) DeleteSession(ctx context.Context, chatID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM chat_sessions WHERE chat_id = ?`), chatID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
