package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"clawderous/internal/domain"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("not found")

const (
	keyArtifactIndex = "artifacts:index"
	keyCommandCounts = "stats:commands"
)

func artifactKey(id string) string { return "artifact:" + id }
func ownerKey(owner string) string { return "owner:" + owner }
func seenKey(id string) string { return "seen:" + id }
func folderUIDKey(folder string) string { return "imap:last_uid:" + folder }

type Store struct {
	client    *redis.Client
	dedupeTTL time.Duration
}

func New(redisURL string, dedupeTTLSeconds int) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return NewFromClient(client, time.Duration(dedupeTTLSeconds)*time.Second), nil
}

func NewFromClient(client *redis.Client, dedupeTTL time.Duration) *Store {
	return &Store{client: client, dedupeTTL: dedupeTTL}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Create saves a and indexes it under its owner, scored by creation time in
// milliseconds. An empty ID is filled with a ULID.
func (s *Store) Create(ctx context.Context, a *domain.Artifact) (string, error) {
	if a.ID == "" {
		a.ID = ulid.Make().String()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().UnixMilli()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}

	score := float64(a.CreatedAt)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, artifactKey(a.ID), data, 0)
	pipe.ZAdd(ctx, ownerKey(a.Owner), redis.Z{Score: score, Member: a.ID})
	pipe.ZAdd(ctx, keyArtifactIndex, redis.Z{Score: score, Member: a.ID})
	pipe.HIncrBy(ctx, keyCommandCounts, a.Command, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	return a.ID, nil
}

// QueryByOwner returns every artifact owned by owner, oldest first.
func (s *Store) QueryByOwner(ctx context.Context, owner string) ([]*domain.Artifact, error) {
	ids, err := s.client.ZRange(ctx, ownerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.loadArtifacts(ctx, ids)
}

func (s *Store) GetArtifact(ctx context.Context, id string) (*domain.Artifact, error) {
	val, err := s.client.Get(ctx, artifactKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var a domain.Artifact
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) loadArtifacts(ctx context.Context, ids []string) ([]*domain.Artifact, error) {
	if len(ids) == 0 {
		return []*domain.Artifact{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = artifactKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	return decodeArtifacts(vals), nil
}

// decodeArtifacts skips nil and undecodable entries.
func decodeArtifacts(vals []any) []*domain.Artifact {
	out := make([]*domain.Artifact, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var a domain.Artifact
		if err := json.Unmarshal([]byte(str), &a); err == nil {
			out = append(out, &a)
		}
	}
	return out
}

// MarkSeen records an inbound message id and reports whether this is the
// first time it was seen.
func (s *Store) MarkSeen(ctx context.Context, id string) (bool, error) {
	return s.client.SetNX(ctx, seenKey(id), "1", s.dedupeTTL).Result()
}

// UnmarkSeen forgets id so the next delivery is treated as new.
func (s *Store) UnmarkSeen(ctx context.Context, id string) error {
	return s.client.Del(ctx, seenKey(id)).Err()
}

func (s *Store) RateLimit(ctx context.Context, key string, action string, limit int, window time.Duration) (bool, error) {
	rk := fmt.Sprintf("ratelimit:%s:%s", action, key)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, rk)
	pipe.Expire(ctx, rk, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(limit), nil
}

func (s *Store) GetFolderLastUID(ctx context.Context, folder string) (uint32, error) {
	val, err := s.client.Get(ctx, folderUIDKey(folder)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	uid, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad last uid %q: %w", val, err)
	}
	return uint32(uid), nil
}

func (s *Store) SetFolderLastUID(ctx context.Context, folder string, uid uint32) error {
	return s.client.Set(ctx, folderUIDKey(folder), uid, 0).Err()
}
