package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uitgo/trip-service/internal/domain/trip"
	"github.com/uitgo/trip-service/pkg/logger"
)

const publishTimeout = 2 * time.Second

// Publisher publishes trip changes on a Redis channel.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  *logger.Logger
	now     func() time.Time
}

func NewPublisher(client *redis.Client, channel string, log *logger.Logger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Publisher{client: client, channel: channel, logger: log, now: time.Now}
}

// Publish sends e to the channel.
func (p *Publisher) Publish(ctx context.Context, e TripEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode trip event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish trip event: %w", err)
	}
	return nil
}

// TripChanged implements lifecycle.Notifier. A failed publish is logged; the
// trip change itself has already been stored.
func (p *Publisher) TripChanged(ctx context.Context, operation string, t *trip.Trip) {
	e := NewTripEvent(operation, t, p.now().UTC())
	if err := p.Publish(ctx, e); err != nil {
		p.logger.Warn("Failed to publish trip event",
			logger.Err(err),
			logger.TripID(t.ID),
			logger.String("type", e.Type),
		)
	}
}

// Subscriber forwards events from the Redis channel to a local Sink.
type Subscriber struct {
	client  *redis.Client
	channel string
	sink    Sink
	logger  *logger.Logger
}

func NewSubscriber(client *redis.Client, channel string, sink Sink, log *logger.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Subscriber{client: client, channel: channel, sink: sink, logger: log}
}

// Run blocks until ctx is cancelled or the subscription fails. ready, if not
// nil, is closed once the subscription is confirmed by the server.
func (s *Subscriber) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	s.logger.Info("Subscribed to trip events", logger.String("channel", s.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			e, valid := decode(msg.Payload, s.logger)
			if !valid {
				continue
			}
			delivered := Fanout(s.sink, e)
			s.logger.Debug("Trip event delivered",
				logger.TripID(e.TripID),
				logger.String("type", e.Type),
				logger.Int("clients", delivered),
			)
		}
	}
}
