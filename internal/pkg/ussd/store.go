package ussd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/VoteFox/app/models"
	"github.com/ManuelReschke/VoteFox/app/repository"
)

// SessionStore keeps in-progress dialogs keyed by the carrier session id.
// Load returns nil, nil for an unknown id.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*models.USSDSession, error)
	Save(ctx context.Context, session *models.USSDSession) error
}

// DBStore keeps dialogs in the ussd_sessions table.
type DBStore struct {
	repo repository.USSDSessionRepository
}

func NewDBStore(repo repository.USSDSessionRepository) *DBStore {
	return &DBStore{repo: repo}
}

func (s *DBStore) Load(ctx context.Context, sessionID string) (*models.USSDSession, error) {
	return s.repo.GetBySessionID(ctx, sessionID)
}

func (s *DBStore) Save(ctx context.Context, session *models.USSDSession) error {
	return s.repo.Save(ctx, session)
}

const redisSessionKeyPrefix = "ussd:session:"

// RedisStore keeps dialogs as JSON documents that Redis expires on its own.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore keeps each dialog for ttl after its last write. A zero ttl
// uses the session inactivity window.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = models.USSDSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*models.USSDSession, error) {
	raw, err := s.client.Get(ctx, redisSessionKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load ussd session %s: %w", sessionID, err)
	}

	var session models.USSDSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode ussd session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (s *RedisStore) Save(ctx context.Context, session *models.USSDSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode ussd session %s: %w", session.SessionID, err)
	}
	return s.client.Set(ctx, redisSessionKeyPrefix+session.SessionID, raw, s.ttl).Err()
}
