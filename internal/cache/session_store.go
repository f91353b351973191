package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"flipzone/internal/game"
)

const (
	SESSION_KEY_PREFIX  = "flipzone:session:"
	DEFAULT_SESSION_TTL = 24 * time.Hour
)

// SessionStore keeps the resumable session of one player wallet in Redis.
type SessionStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewSessionStore(client redis.Cmdable, player string, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DEFAULT_SESSION_TTL
	}
	return &SessionStore{
		client: client,
		key:    SessionKey(player),
		ttl:    ttl,
	}
}

func SessionKey(player string) string {
	return SESSION_KEY_PREFIX + strings.ToLower(player)
}

func (s *SessionStore) Save(ctx context.Context, saved game.SavedSession) error {
	data, err := json.Marshal(saved)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "save session %s", saved.SessionID)
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context) (*game.SavedSession, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}

	var saved game.SavedSession
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	return &saved, nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return errors.Wrap(s.client.Del(ctx, s.key).Err(), "clear session")
}
