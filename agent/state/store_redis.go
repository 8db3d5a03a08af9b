package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "genie-router:"

// RedisStore keeps each thread as a Redis list of JSON messages. List position
// is the sequence number, so RPUSH order is the append order. Thread lists live
// under prefix+"thread:" and the recency index at prefix+"threads", so no
// thread id can address the index.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type RedisOption func(*RedisStore)

func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.prefix = p
		}
	}
}

// WithRedisTTL expires idle threads; zero keeps them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

func NewRedisStore(ctx context.Context, cfg RedisConfig, opts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStoreFromClient(client, opts...), nil
}

func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultRedisKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + "thread:" + threadID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "threads"
}

func (s *RedisStore) Append(ctx context.Context, threadID string, msgs ...Message) error {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	now := s.now().UTC()
	stamped, err := prepare(msgs, 0, now)
	if err != nil {
		return err
	}
	values := make([]any, 0, len(stamped))
	for _, m := range stamped {
		m.Seq = 0
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, raw)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.key(id), values...)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.UnixMilli()), Member: id})
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key(id), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, threadID string) ([]Message, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, s.key(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load from redis: %w", err)
	}

	out := make([]Message, 0, len(raw))
	for i, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message %d: %w", i+1, err)
		}
		m.Seq = int64(i + 1)
		out = append(out, m)
	}
	return out, nil
}

// ListThreads reads the index newest first and drops entries whose list expired.
func (s *RedisStore) ListThreads(ctx context.Context, limit int) ([]Thread, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	entries, err := s.client.ZRevRangeWithScores(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	pipe := s.client.Pipeline()
	counts := make([]*redis.IntCmd, len(entries))
	for i, e := range entries {
		counts[i] = pipe.LLen(ctx, s.key(fmt.Sprint(e.Member)))
	}
	if len(entries) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("count thread messages: %w", err)
		}
	}

	out := make([]Thread, 0, len(entries))
	for i, e := range entries {
		n := counts[i].Val()
		if n == 0 {
			continue
		}
		out = append(out, Thread{
			ID:           fmt.Sprint(e.Member),
			MessageCount: n,
			UpdatedAt:    time.UnixMilli(int64(e.Score)).UTC(),
		})
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
