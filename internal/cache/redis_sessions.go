package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mirjalol49/promed-bot/internal/model"
	"github.com/Mirjalol49/promed-bot/internal/repo"
	"github.com/redis/go-redis/v9"
)

// RedisSessions stores verification sessions with the session's own expiry
// as the key TTL.
type RedisSessions struct {
	rdb *redis.Client
}

var _ repo.SessionRepository = (*RedisSessions)(nil)

func NewRedisSessions(rdb *redis.Client) *RedisSessions {
	return &RedisSessions{rdb: rdb}
}

func sessionKey(chatID string) string {
	return fmt.Sprintf("session:%s", chatID)
}

func (s *RedisSessions) PutSession(ctx context.Context, session model.ChatSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return s.DeleteSession(ctx, session.ChatID)
	}

	b, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(session.ChatID), b, ttl).Err()
}

func (s *RedisSessions) GetSession(ctx context.Context, chatID string) (*model.ChatSession, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var session model.ChatSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessions) DeleteSession(ctx context.Context, chatID string) error {
	return s.rdb.Del(ctx, sessionKey(chatID)).Err()
}
