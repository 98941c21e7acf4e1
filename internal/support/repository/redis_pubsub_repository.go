package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/domain"
	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/logger"
)

// Broadcaster one channel per room. Within a room, events are published in
// durable commit order by the orchestrator; across rooms there is no
// ordering guarantee.
type Broadcaster interface {
	Publish(ctx context.Context, roomCode string, event domain.RoomEvent) error
	Subscribe(ctx context.Context, roomCode string, handler func(event domain.RoomEvent)) error
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client *redis.Client
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client}
}

func roomChannel(roomCode string) string {
	return "support:room:" + roomCode
}

// Publish serialize the room event and publish it on the room's channel
func (r *RedisPubSub) Publish(ctx context.Context, roomCode string, event domain.RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, roomChannel(roomCode), data).Err()
}

// Subscribe listen on the room's channel and hand every event to handler
func (r *RedisPubSub) Subscribe(ctx context.Context, roomCode string, handler func(event domain.RoomEvent)) error {
	sub := r.client.Subscribe(ctx, roomChannel(roomCode))
	go func() {
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				var event domain.RoomEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					logger.Log.Error("room event unmarshal", zap.String("room", roomCode), zap.Error(err))
					continue
				}
				handler(event)
			case <-ctx.Done():
				logger.Log.Info(fmt.Sprintf("%s , sub close", roomChannel(roomCode)))
				sub.Close()
				return
			}
		}
	}()
	return nil
}
