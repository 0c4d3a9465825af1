package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"campusride/pkg/envelope"
	"campusride/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	ActionMessageInsert = "message.insert"
	ActionMessageDelete = "message.delete"
)

// MessageEvent is the payload of a chat change notification.
type MessageEvent struct {
	RideID    uuid.UUID `json:"ride_id"`
	MessageID uuid.UUID `json:"message_id"`
}

func RideChannel(rideID uuid.UUID) string {
	return "chat:ride:" + rideID.String()
}

// Broker fans chat change notifications out over Redis pub/sub. Delivery is
// fire-and-forget; subscribers that miss a notification recover by polling.
type Broker struct {
	rdb *redis.Client
	log *logger.Logger
}

func New(rdb *redis.Client, log *logger.Logger) *Broker {
	return &Broker{rdb: rdb, log: log.Component("broker")}
}

func (b *Broker) Publish(ctx context.Context, channel string, env envelope.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, data).Err()
}

func (b *Broker) PublishMessage(ctx context.Context, action string, ev MessageEvent) error {
	env, err := envelope.NewEvent(action, "chat", ev)
	if err != nil {
		return err
	}
	return b.Publish(ctx, RideChannel(ev.RideID), env)
}

// Listen subscribes to one channel until ctx is done. The returned channel is
// closed when the subscription ends for any reason.
func (b *Broker) Listen(ctx context.Context, channel string) (<-chan envelope.Envelope, error) {
	sub := b.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan envelope.Envelope, 16)
	ch := sub.Channel()

	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env envelope.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.WithError(err).Warnf("dropping malformed frame on %s", channel)
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
