package redisstore

import (
	"context"
	"encoding/json"

	"clawderous/internal/domain"

	"github.com/redis/go-redis/v9"
)

func journalKey(owner string) string { return "journal:" + owner }
func remindersKey(owner string) string { return "reminders:" + owner }
func reminderKey(id string) string { return "reminder:" + id }

// AppendJournal adds one line to the owner's journal.
func (s *Store) AppendJournal(ctx context.Context, owner, entry string) error {
	return s.client.RPush(ctx, journalKey(owner), entry).Err()
}

// Journal returns the last limit entries, oldest first. limit <= 0 means all.
func (s *Store) Journal(ctx context.Context, owner string, limit int) ([]string, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	return s.client.LRange(ctx, journalKey(owner), start, -1).Result()
}

func (s *Store) AddReminder(ctx context.Context, r *domain.Reminder) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, reminderKey(r.ID), data, 0)
	pipe.SAdd(ctx, remindersKey(r.Owner), r.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Reminders(ctx context.Context, owner string) ([]*domain.Reminder, error) {
	ids, err := s.client.SMembers(ctx, remindersKey(owner)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.Reminder{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = reminderKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Reminder, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r domain.Reminder
		if err := json.Unmarshal([]byte(str), &r); err == nil {
			out = append(out, &r)
		}
	}
	return out, nil
}
