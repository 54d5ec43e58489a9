package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rotisserie/eris"

	"github.com/sells-group/case-forecast/internal/model"
)

// KeyFormat is the Redis key for one session.
const KeyFormat = "forecast_session_v1:%s"

// RedisClient is the subset of *redis.Client the store uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisStore keeps sessions as JSON values with a TTL, so several server
// replicas can share them.
type RedisStore struct {
	client RedisClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client RedisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "session: ping redis %s", addr)
	}
	return NewRedisStore(client, ttl), nil
}

// Create stores a new session for ds.
func (r *RedisStore) Create(ctx context.Context, ds *model.Dataset) (*Session, error) {
	s := newSession(ds, r.now())
	if err := r.write(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get loads a session or returns model.ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, eris.Wrapf(model.ErrNotFound, "session: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "session: get %s", id)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "session: decode %s", id)
	}
	return &s, nil
}

// Save overwrites a session and refreshes its TTL.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	saved := copySession(s)
	saved.UpdatedAt = r.now()
	return r.write(ctx, saved)
}

// Delete removes a session.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, key(id)).Err(); err != nil {
		return eris.Wrapf(err, "session: delete %s", id)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) write(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return eris.Wrapf(err, "session: encode %s", s.ID)
	}
	if err := r.client.Set(ctx, key(s.ID), data, r.ttl).Err(); err != nil {
		return eris.Wrapf(err, "session: set %s", s.ID)
	}
	return nil
}

func key(id string) string {
	return fmt.Sprintf(KeyFormat, id)
}
