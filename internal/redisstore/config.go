package redisstore

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// KeyConfigSenders holds the dynamic sender allowlist. Entries are addresses
// or "@domain" patterns.
const KeyConfigSenders = "config:senders"

func (s *Store) AddSender(ctx context.Context, entry string) error {
	return s.client.SAdd(ctx, KeyConfigSenders, strings.ToLower(strings.TrimSpace(entry))).Err()
}

func (s *Store) RemoveSender(ctx context.Context, entry string) error {
	return s.client.SRem(ctx, KeyConfigSenders, strings.ToLower(strings.TrimSpace(entry))).Err()
}

// GetSenders returns the allowlist stored in Redis, or nil when none is set.
func (s *Store) GetSenders(ctx context.Context) ([]string, error) {
	senders, err := s.client.SMembers(ctx, KeyConfigSenders).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return senders, err
}

// AllowedSenders prefers the Redis allowlist and falls back to static when
// Redis has none.
func (s *Store) AllowedSenders(ctx context.Context, static []string) ([]string, error) {
	senders, err := s.GetSenders(ctx)
	if err != nil {
		return nil, err
	}
	if len(senders) == 0 {
		return static, nil
	}
	return senders, nil
}
