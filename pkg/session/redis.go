package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "taskbot:session:"

func Key(chatID string) string {
	return keyPrefix + chatID
}

// RedisStore keeps sessions in Redis so a restart does not lose wizards or
// listings. Every write refreshes the TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// OpenRedis connects to a redis:// URL.
func OpenRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func Encode(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

func Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Get(ctx context.Context, chatID string) (*Session, error) {
	data, err := r.rdb.Get(ctx, Key(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Session{ChatID: chatID}, nil
	}
	if err != nil {
		return nil, err
	}
	s, err := Decode(data)
	if err != nil {
		// A corrupt entry starts the conversation over.
		return &Session{ChatID: chatID}, nil
	}
	s.ChatID = chatID
	return s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now().UTC()
	data, err := Encode(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, Key(s.ChatID), data, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, chatID string) error {
	return r.rdb.Del(ctx, Key(chatID)).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
