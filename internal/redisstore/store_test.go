package redisstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"clawderous/internal/domain"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeArtifacts(t *testing.T) {
	got := decodeArtifacts([]any{
		`{"id":"a","owner":"x@example.com","command":"memo","created_at":5}`,
		nil,
		"not json",
		`{"id":"b"}`,
	})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, int64(5), got[0].CreatedAt)
	assert.Equal(t, "b", got[1].ID)
}

// liveStore connects to REDIS_TEST_URL and flushes that database. Tests using
// it are skipped when the variable is unset.
func liveStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return NewFromClient(client, time.Minute)
}

func TestArtifactLifecycle(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()
	owner := "ada+" + ulid.Make().String() + "@example.com"
	now := time.Now()

	id1, err := s.Create(ctx, &domain.Artifact{Owner: owner, Command: "memo", Content: "one", CreatedAt: now.Add(-48 * time.Hour).UnixMilli()})
	require.NoError(t, err)
	id2, err := s.Create(ctx, &domain.Artifact{Owner: owner, Command: "blog", Content: "two"})
	require.NoError(t, err)

	arts, err := s.QueryByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, id1, arts[0].ID)
	assert.Equal(t, id2, arts[1].ID)

	st, err := s.GetStats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalArtifacts)
	assert.Equal(t, int64(1), st.Last24h)
	assert.Equal(t, map[string]int64{"memo": 1, "blog": 1}, st.ByCommand)

	page, err := s.ListArtifacts(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, id2, page[0].ID)

	require.NoError(t, s.DeleteArtifact(ctx, id1))
	_, err = s.GetArtifact(ctx, id1)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.DeleteArtifact(ctx, id1), ErrNotFound))
}

func TestMarkSeenAndRateLimit(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()

	first, err := s.MarkSeen(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := s.MarkSeen(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, again)
	require.NoError(t, s.UnmarkSeen(ctx, "msg-1"))
	first, err = s.MarkSeen(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, first, "released ids are new again")

	for i := 0; i < 2; i++ {
		ok, err := s.RateLimit(ctx, "10.0.0.1", "inbound", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := s.RateLimit(ctx, "10.0.0.1", "inbound", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJournalRemindersAndSenders(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendJournal(ctx, "ada@example.com", "first"))
	require.NoError(t, s.AppendJournal(ctx, "ada@example.com", "second"))
	lines, err := s.Journal(ctx, "ada@example.com", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, lines)

	require.NoError(t, s.AddReminder(ctx, &domain.Reminder{ID: "r1", Owner: "ada@example.com", Message: "call"}))
	rs, err := s.Reminders(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "call", rs[0].Message)

	got, err := s.AllowedSenders(ctx, []string{"static@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"static@example.com"}, got)

	require.NoError(t, s.AddSender(ctx, " @Example.com "))
	got, err = s.AllowedSenders(ctx, []string{"static@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"@example.com"}, got)

	require.NoError(t, s.SetFolderLastUID(ctx, "INBOX", 42))
	uid, err := s.GetFolderLastUID(ctx, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), uid)
}
