package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"campusride/pkg/logger"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

const Exchange = "ride_topic"

const (
	RequestCreated  = "ride.request.created"
	RequestAccepted = "ride.request.accepted"
	RequestRejected = "ride.request.rejected"
	PhoneRequested  = "ride.phone.requested"
	PhoneShared     = "ride.phone.shared"
	PhoneDeclined   = "ride.phone.declined"
	RideDeleted     = "ride.deleted"
	RidesExpired    = "ride.expired"
)

type Event struct {
	ID         string      `json:"id"`
	RoutingKey string      `json:"type"`
	RideID     uuid.UUID   `json:"ride_id,omitempty"`
	ActorID    uuid.UUID   `json:"actor_id,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Publisher emits domain events for downstream notification workers.
// Publishing never fails the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, rideID, actorID uuid.UUID, data interface{})
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, string, uuid.UUID, uuid.UUID, interface{}) {}
func (Noop) Close() error                                                       { return nil }

type RabbitMQ struct {
	conn *amqp091.Connection
	mu   sync.Mutex
	ch   *amqp091.Channel
	log  *logger.Logger
}

func Dial(url string, log *logger.Logger) (*RabbitMQ, error) {
	log = log.Component("events")

	var conn *amqp091.Connection
	var err error

	maxRetries := 10
	retryInterval := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		conn, err = amqp091.Dial(url)
		if err == nil {
			break
		}
		log.WithError(err).Warnf("RabbitMQ dial failed (attempt %d/%d)", i+1, maxRetries)
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}

	log.Info("Connected to RabbitMQ")
	return &RabbitMQ{conn: conn, ch: ch, log: log}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, rideID, actorID uuid.UUID, data interface{}) {
	ev := Event{
		ID:         uuid.NewString(),
		RoutingKey: routingKey,
		RideID:     rideID,
		ActorID:    actorID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		r.log.WithError(err).Warn("event marshal failed")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.ch.PublishWithContext(pubCtx, Exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		r.log.WithError(err).WithField("routing_key", routingKey).Warn("event publish failed")
	}
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		r.ch.Close()
	}
	return r.conn.Close()
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, routingKey string, rideID, actorID uuid.UUID, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Event{RoutingKey: routingKey, RideID: rideID, ActorID: actorID, Data: data})
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, len(r.Events))
	for i, e := range r.Events {
		keys[i] = e.RoutingKey
	}
	return keys
}
