package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis bridges room events between instances over Redis pub/sub.
// Publish always delivers to local subscribers first, so a transport
// error leaves this instance consistent; the caller logs it and moves
// on. Each instance tags outgoing envelopes with its origin id and
// skips them on receipt to avoid double delivery.
type Redis struct {
	local  *Local
	rdb    *redis.Client
	log    *zap.Logger
	origin string

	mu   sync.Mutex
	subs map[int64]*roomSub
}

type roomSub struct {
	pubsub *redis.PubSub
	refs   int
}

func NewRedis(rdb *redis.Client, log *zap.Logger) *Redis {
	return &Redis{
		local:  NewLocal(),
		rdb:    rdb,
		log:    log,
		origin: uuid.NewString(),
		subs:   make(map[int64]*roomSub),
	}
}

func channelFor(roomID int64) string {
	return fmt.Sprintf("game_events:room:%d", roomID)
}

func (b *Redis) Publish(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_ = b.local.Publish(ctx, e)

	env := envelope{
		RoomID:    e.RoomID,
		Kind:      e.Kind,
		Payload:   e.Payload,
		Timestamp: e.Timestamp,
		Origin:    b.origin,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Kind, err)
	}
	if err := b.rdb.Publish(ctx, channelFor(e.RoomID), data).Err(); err != nil {
		return fmt.Errorf("publish room %d: %w", e.RoomID, err)
	}
	return nil
}

// Subscribe registers a local consumer and, for the first consumer of a
// room on this instance, opens the Redis subscription. Later consumers
// share it.
func (b *Redis) Subscribe(roomID int64) (<-chan Event, func()) {
	ch, localUnsub := b.local.Subscribe(roomID)

	b.mu.Lock()
	sub, ok := b.subs[roomID]
	if !ok {
		sub = &roomSub{pubsub: b.rdb.Subscribe(context.Background(), channelFor(roomID))}
		b.subs[roomID] = sub
		go b.pump(roomID, sub.pubsub)
	}
	sub.refs++
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			localUnsub()
			b.release(roomID)
		})
	}
}

func (b *Redis) release(roomID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[roomID]
	if !ok {
		return
	}
	sub.refs--
	if sub.refs > 0 {
		return
	}
	delete(b.subs, roomID)
	if err := sub.pubsub.Close(); err != nil {
		b.log.Warn("close room subscription", zap.Int64("room_id", roomID), zap.Error(err))
	}
}

// pump forwards remote envelopes into the local bus until the pubsub is
// closed.
func (b *Redis) pump(roomID int64, pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			b.log.Warn("bad event payload", zap.Int64("room_id", roomID), zap.Error(err))
			continue
		}
		if env.Origin == b.origin {
			// Our own publish; local subscribers already have it.
			continue
		}
		_ = b.local.Publish(context.Background(), Event{
			RoomID:    env.RoomID,
			Kind:      env.Kind,
			Payload:   env.Payload,
			Timestamp: env.Timestamp,
		})
	}
}
