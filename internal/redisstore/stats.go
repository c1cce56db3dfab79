package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"clawderous/internal/domain"

	"github.com/redis/go-redis/v9"
)

type Stats struct {
	TotalArtifacts int64            `json:"total_artifacts"`
	Last24h        int64            `json:"artifacts_last_24h"`
	Owners         int64            `json:"owners"`
	ByCommand      map[string]int64 `json:"by_command"`
}

// GetStats reads the index counters and scans owner keys.
func (s *Store) GetStats(ctx context.Context, now time.Time) (*Stats, error) {
	pipe := s.client.Pipeline()
	total := pipe.ZCard(ctx, keyArtifactIndex)
	recent := pipe.ZCount(ctx, keyArtifactIndex,
		fmt.Sprintf("(%d", now.Add(-24*time.Hour).UnixMilli()), "+inf")
	byCmd := pipe.HGetAll(ctx, keyCommandCounts)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	owners, err := s.countKeys(ctx, "owner:*")
	if err != nil {
		return nil, err
	}

	st := &Stats{
		TotalArtifacts: total.Val(),
		Last24h:        recent.Val(),
		Owners:         owners,
		ByCommand:      make(map[string]int64),
	}
	for cmd, v := range byCmd.Val() {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil && n > 0 {
			st.ByCommand[cmd] = n
		}
	}
	return st, nil
}

func (s *Store) countKeys(ctx context.Context, pattern string) (int64, error) {
	var cursor uint64
	var count int64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, err
		}
		count += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

// ListArtifacts pages through all artifacts, newest first.
func (s *Store) ListArtifacts(ctx context.Context, offset, limit int) ([]*domain.Artifact, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.client.ZRevRange(ctx, keyArtifactIndex, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, err
	}
	return s.loadArtifacts(ctx, ids)
}

// DeleteArtifact removes an artifact from storage and from every index.
func (s *Store) DeleteArtifact(ctx context.Context, id string) error {
	a, err := s.GetArtifact(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, artifactKey(id))
	pipe.ZRem(ctx, ownerKey(a.Owner), id)
	pipe.ZRem(ctx, keyArtifactIndex, id)
	pipe.HIncrBy(ctx, keyCommandCounts, a.Command, -1)
	_, err = pipe.Exec(ctx)
	return err
}
