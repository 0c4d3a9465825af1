package chatsync

import (
	"context"
	"errors"

	"campusride/pkg/broker"
	"campusride/pkg/envelope"
	"campusride/pkg/services"

	"github.com/google/uuid"
)

const (
	ActionInsert = broker.ActionMessageInsert
	ActionDelete = broker.ActionMessageDelete
)

// Event is a change notification for one message of a ride.
type Event struct {
	Action    string
	RideID    uuid.UUID
	MessageID uuid.UUID
}

// Feed delivers change notifications for a ride until ctx is done. Delivery
// may stop silently; the session's poller covers the gap.
type Feed interface {
	Subscribe(ctx context.Context, rideID uuid.UUID) (<-chan Event, error)
}

// Listener is the part of the broker a BrokerFeed needs.
type Listener interface {
	Listen(ctx context.Context, channel string) (<-chan envelope.Envelope, error)
}

// BrokerFeed adapts the Redis broker's ride channels to a Feed.
type BrokerFeed struct {
	Broker Listener
}

func (f BrokerFeed) Subscribe(ctx context.Context, rideID uuid.UUID) (<-chan Event, error) {
	frames, err := f.Broker.Listen(ctx, broker.RideChannel(rideID))
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for env := range frames {
			ev, err := envelope.ParseData[broker.MessageEvent](env)
			if err != nil {
				continue
			}
			select {
			case out <- Event{Action: env.Action, RideID: ev.RideID, MessageID: ev.MessageID}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func isAccessDenied(err error) bool {
	return errors.Is(err, services.ErrAccessDenied)
}
