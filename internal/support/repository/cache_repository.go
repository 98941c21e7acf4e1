package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/domain"
)

// RoomCache ephemeral mirror of room snapshots, recent messages and
// unread/badge counters. Every entry carries a TTL and the durable store
// stays the source of truth; callers treat every error here as
// best-effort and fall back.
type RoomCache interface {
	SetSnapshot(ctx context.Context, room *domain.Room) error
	// GetSnapshot (nil, nil) on cache miss
	GetSnapshot(ctx context.Context, roomCode string) (*domain.Room, error)
	// InvalidateSnapshot delete, do not update: assignment and state
	// changes force the next reader back to the durable store
	InvalidateSnapshot(ctx context.Context, roomCode string) error

	PushRecent(ctx context.Context, roomCode string, msg *domain.Message) error
	Recent(ctx context.Context, roomCode string) ([]domain.Message, error)

	IncrUnread(ctx context.Context, roomCode, viewerID string) error
	// UnreadCount ok reports whether the counter exists at all
	UnreadCount(ctx context.Context, roomCode, viewerID string) (n int64, ok bool, err error)
	SetUnread(ctx context.Context, roomCode, viewerID string, n int64) error
	// SyncUnread set the per-room counter to the durably recomputed n and
	// shift the viewer's badge total by the difference from the prior
	// cached value
	SyncUnread(ctx context.Context, roomCode, viewerID string, n int64) error
	// DropUnread delete the counter so the next read recomputes from the
	// durable store
	DropUnread(ctx context.Context, roomCode, viewerID string) error
	BadgeTotal(ctx context.Context, viewerID string) (n int64, ok bool, err error)
}

type roomCache struct {
	client      *redis.Client
	ttl         time.Duration
	recentLimit int64
}

// NewRoomCache create the redis-backed RoomCache
func NewRoomCache(client *redis.Client, ttl time.Duration, recentLimit int64) RoomCache {
	return &roomCache{client: client, ttl: ttl, recentLimit: recentLimit}
}

func snapshotKey(roomCode string) string { return "support:snapshot:" + roomCode }
func recentKey(roomCode string) string   { return "support:recent:" + roomCode }
func unreadKey(roomCode, viewerID string) string {
	return "support:unread:" + roomCode + ":" + viewerID
}
func badgeKey(viewerID string) string { return "support:badge:" + viewerID }

// retry once, then wrap so callers can errors.Is the cache failure
func (c *roomCache) do(op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	if err = op(); err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
}

func (c *roomCache) SetSnapshot(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return c.do(func() error {
		return c.client.Set(ctx, snapshotKey(room.RoomCode), data, c.ttl).Err()
	})
}

func (c *roomCache) GetSnapshot(ctx context.Context, roomCode string) (*domain.Room, error) {
	val, err := c.client.Get(ctx, snapshotKey(roomCode)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	var room domain.Room
	if err := json.Unmarshal([]byte(val), &room); err != nil {
		// poisoned entry: drop it and force a durable read
		c.client.Del(ctx, snapshotKey(roomCode))
		return nil, nil
	}
	return &room, nil
}

func (c *roomCache) InvalidateSnapshot(ctx context.Context, roomCode string) error {
	return c.do(func() error {
		return c.client.Del(ctx, snapshotKey(roomCode)).Err()
	})
}

func (c *roomCache) PushRecent(ctx context.Context, roomCode string, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	key := recentKey(roomCode)
	return c.do(func() error {
		pipe := c.client.TxPipeline()
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, c.recentLimit-1)
		pipe.Expire(ctx, key, c.ttl)
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (c *roomCache) Recent(ctx context.Context, roomCode string) ([]domain.Message, error) {
	vals, err := c.client.LRange(ctx, recentKey(roomCode), 0, c.recentLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	msgs := make([]domain.Message, 0, len(vals))
	// list is newest-first, rebuild in reading order
	for i := len(vals) - 1; i >= 0; i-- {
		var msg domain.Message
		if err := json.Unmarshal([]byte(vals[i]), &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (c *roomCache) IncrUnread(ctx context.Context, roomCode, viewerID string) error {
	return c.do(func() error {
		pipe := c.client.TxPipeline()
		pipe.Incr(ctx, unreadKey(roomCode, viewerID))
		pipe.Expire(ctx, unreadKey(roomCode, viewerID), c.ttl)
		pipe.Incr(ctx, badgeKey(viewerID))
		pipe.Expire(ctx, badgeKey(viewerID), c.ttl)
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (c *roomCache) UnreadCount(ctx context.Context, roomCode, viewerID string) (int64, bool, error) {
	val, err := c.client.Get(ctx, unreadKey(roomCode, viewerID)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return val, true, nil
}

func (c *roomCache) SetUnread(ctx context.Context, roomCode, viewerID string, n int64) error {
	return c.do(func() error {
		return c.client.Set(ctx, unreadKey(roomCode, viewerID), n, c.ttl).Err()
	})
}

func (c *roomCache) SyncUnread(ctx context.Context, roomCode, viewerID string, n int64) error {
	return c.do(func() error {
		prior, err := c.client.GetSet(ctx, unreadKey(roomCode, viewerID), n).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		pipe := c.client.TxPipeline()
		pipe.Expire(ctx, unreadKey(roomCode, viewerID), c.ttl)
		if delta := n - prior; delta != 0 {
			pipe.IncrBy(ctx, badgeKey(viewerID), delta)
			pipe.Expire(ctx, badgeKey(viewerID), c.ttl)
		}
		_, err = pipe.Exec(ctx)
		return err
	})
}

func (c *roomCache) DropUnread(ctx context.Context, roomCode, viewerID string) error {
	return c.do(func() error {
		return c.client.Del(ctx, unreadKey(roomCode, viewerID)).Err()
	})
}

func (c *roomCache) BadgeTotal(ctx context.Context, viewerID string) (int64, bool, error) {
	val, err := c.client.Get(ctx, badgeKey(viewerID)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return val, true, nil
}
