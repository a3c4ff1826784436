// Package transcript keeps per-session chat history for the hosted chat
// function, in Redis when configured and in process memory otherwise.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/chriscow/listing-voice-go/pkg/chat"
)

// Store appends to and reads back session transcripts.
type Store interface {
	Append(ctx context.Context, sessionID string, msgs ...chat.Message) error
	Load(ctx context.Context, sessionID string) ([]chat.Message, error)
	Delete(ctx context.Context, sessionID string) error
}

const keyPrefix = "transcript:"

func key(sessionID string) string { return keyPrefix + sessionID }

// RedisStore keeps each transcript in a Redis list that expires ttl after
// the last append.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisStore creates a store on rdb.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// Dial parses a redis:// URL and checks the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, len(msgs))
	for i, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		values[i] = b
	}
	k := key(sessionID)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, k, values...)
		if s.ttl > 0 {
			p.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]chat.Message, error) {
	raw, err := s.rdb.LRange(ctx, key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(raw))
	for _, r := range raw {
		var m chat.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, key(sessionID)).Err()
}

// MemoryStore keeps transcripts in process, expiring idle sessions.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(ttl, 2*ttl), ttl: ttl}
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, msgs ...chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing []chat.Message
	if v, ok := s.cache.Get(key(sessionID)); ok {
		existing = v.([]chat.Message)
	}
	next := make([]chat.Message, 0, len(existing)+len(msgs))
	next = append(append(next, existing...), msgs...)
	s.cache.Set(key(sessionID), next, s.ttl)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(key(sessionID))
	if !ok {
		return nil, nil
	}
	return append([]chat.Message(nil), v.([]chat.Message)...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.cache.Delete(key(sessionID))
	return nil
}

// Format renders a transcript as "role: text" lines for notification emails
// and lead records.
func Format(msgs []chat.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		role := "Buyer"
		if m.Role == chat.RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Text)
	}
	return b.String()
}

// UserMessages counts the buyer's messages.
func UserMessages(msgs []chat.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == chat.RoleUser {
			n++
		}
	}
	return n
}
