// Package session keeps chat transcripts in Redis, keyed by session id with
// a sliding TTL.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docuchat/docuchat/internal/config"
)

// Turn is one question/answer exchange in a session.
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists session transcripts.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies connectivity.
func New(cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}, nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func key(sessionID string) string {
	return "session:" + sessionID
}

// Append records one exchange and refreshes the session TTL.
func (s *Store) Append(ctx context.Context, sessionID string, turn Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshaling session turn: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key(sessionID), data)
	pipe.Expire(ctx, key(sessionID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending to session %s: %w", sessionID, err)
	}
	return nil
}

// History returns the transcript of a session in order, empty when the
// session is unknown or expired.
func (s *Store) History(ctx context.Context, sessionID string) ([]Turn, error) {
	values, err := s.client.LRange(ctx, key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", sessionID, err)
	}
	turns := make([]Turn, 0, len(values))
	for _, value := range values {
		var turn Turn
		if err := json.Unmarshal([]byte(value), &turn); err != nil {
			return nil, fmt.Errorf("decoding session turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
