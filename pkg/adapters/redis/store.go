// Package redis provides conversation persistence and distributed locking
// backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/arbor/pkg/domain"
)

const (
	defaultPrefix = "arbor:session:"
	indexKey      = "index"
)

// Store implements ports.ConversationStore on Redis. Transcripts are stored
// as JSON under prefix+sessionID; a sorted-set index keyed by expiry time
// backs List, with expired members pruned lazily.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithTTL sets an expiration on saved sessions. Zero means keep forever.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// NewFromClient creates a store on an existing Redis client.
func NewFromClient(client *backend.Client, opts ...StoreOption) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New creates a store with its own client for the given address.
func New(addr string, opts ...StoreOption) *Store {
	client := backend.NewClient(&backend.Options{Addr: addr})
	return NewFromClient(client, opts...)
}

// Save persists a session's transcript.
func (s *Store) Save(ctx context.Context, sessionID string, messages []domain.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sessionID, err)
	}

	// Score encodes when the entry becomes stale so List can prune lazily.
	score := float64(maxScoreTime)
	if s.ttl > 0 {
		score = float64(time.Now().Add(s.ttl).UnixNano())
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.prefix+sessionID, payload, s.ttl)
	pipe.ZAdd(ctx, s.prefix+indexKey, backend.Z{Score: score, Member: sessionID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return nil
}

// maxScoreTime is used for sessions without TTL, far enough out to never
// match a pruning sweep.
const maxScoreTime = int64(1) << 62

// Load retrieves a session's transcript.
func (s *Store) Load(ctx context.Context, sessionID string) ([]domain.Message, error) {
	payload, err := s.client.Get(ctx, s.prefix+sessionID).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var messages []domain.Message
	if err := json.Unmarshal(payload, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return messages, nil
}

// Delete removes a session and its index entry.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.prefix+sessionID)
	pipe.ZRem(ctx, s.prefix+indexKey, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// List returns the IDs of live sessions, pruning expired index entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := fmt.Sprintf("%d", time.Now().UnixNano())
	if err := s.client.ZRemRangeByScore(ctx, s.prefix+indexKey, "0", now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune session index: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.prefix+indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}
