package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"volitus/server/internal/config"
	"volitus/server/internal/models"
)

const (
	chatDedupTTL   = 5 * time.Minute
	chatListTTL    = 24 * time.Hour
	maxRecentLimit = 1000
)

// RedisStore keeps the recent chat of each room in a capped Redis list
type RedisStore struct {
	client *redis.Client
	keep   int64
	log    zerolog.Logger
}

func NewRedisStore(cfg config.RedisConfig, log zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", cfg.Addr)
	}

	keep := cfg.ChatKeep
	if keep <= 0 {
		keep = 500
	}
	return &RedisStore{client: client, keep: keep, log: log}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func chatListKey(roomID string) string {
	return fmt.Sprintf("chat:%s:list", roomID)
}

func chatDedupKey(roomID, msgID string) string {
	return fmt.Sprintf("chat:%s:dedup:%s", roomID, msgID)
}

// Append pushes msg onto the room list. A message id seen within the dedup
// window is skipped.
func (s *RedisStore) Append(ctx context.Context, roomID string, msg *models.ChatBroadcast) error {
	if msg.ID != "" {
		fresh, err := s.client.SetNX(ctx, chatDedupKey(roomID, msg.ID), "1", chatDedupTTL).Result()
		if err != nil {
			return errors.Wrap(err, "check chat dedup")
		}
		if !fresh {
			return nil
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode chat message")
	}

	key := chatListKey(roomID)
	if err := s.client.LPush(ctx, key, data).Err(); err != nil {
		return errors.Wrap(err, "push chat message")
	}
	if err := s.client.LTrim(ctx, key, 0, s.keep-1).Err(); err != nil {
		return errors.Wrap(err, "trim chat list")
	}
	if err := s.client.Expire(ctx, key, chatListTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("failed to set chat list TTL")
	}
	return nil
}

// Recent returns up to limit messages of the room, oldest first
func (s *RedisStore) Recent(ctx context.Context, roomID string, limit int64) ([]*models.ChatBroadcast, error) {
	limit = clampLimit(limit)

	raw, err := s.client.LRange(ctx, chatListKey(roomID), 0, limit-1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read chat list")
	}
	return decodeChat(raw, s.log), nil
}

// Drop deletes the chat list of the room. Dedup keys age out on their own.
func (s *RedisStore) Drop(ctx context.Context, roomID string) error {
	return errors.Wrap(s.client.Del(ctx, chatListKey(roomID)).Err(), "drop chat list")
}

func clampLimit(limit int64) int64 {
	if limit <= 0 {
		return 100
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}

// decodeChat turns the newest-first list into oldest-first messages and
// skips entries that do not decode
func decodeChat(raw []string, log zerolog.Logger) []*models.ChatBroadcast {
	out := make([]*models.ChatBroadcast, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg models.ChatBroadcast
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			log.Debug().Err(err).Msg("skipping undecodable chat entry")
			continue
		}
		out = append(out, &msg)
	}
	return out
}
