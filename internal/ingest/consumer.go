package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"skyfeed/internal/config"
	"skyfeed/internal/logging"
	"skyfeed/internal/store/sqlstore"
)

type outcome int

const (
	ack outcome = iota
	// drop nacks without requeue; the message can never succeed.
	drop
	retry
)

// Consumer reads JSON engagement events from a RabbitMQ queue.
type Consumer struct {
	cfg      config.AMQPConfig
	applier  *Applier
	validate *validator.Validate
}

func NewConsumer(cfg config.AMQPConfig, applier *Applier) *Consumer {
	return &Consumer{cfg: cfg, applier: applier, validate: validator.New()}
}

func (c *Consumer) String() string { return "engagement-consumer" }

// Serve consumes until ctx is done or the broker connection drops. It
// returns on disconnect so a supervisor can reconnect.
func (c *Consumer) Serve(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()
	q, err := ch.QueueDeclare(
		c.cfg.Queue, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "skyfeed", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	logging.Info("consumer_started", map[string]any{"queue": q.Name, "prefetch": c.cfg.Prefetch})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			var ackErr error
			switch c.handle(ctx, d.Body) {
			case ack:
				ackErr = d.Ack(false)
			case drop:
				ackErr = d.Nack(false, false)
			case retry:
				ackErr = d.Nack(false, true)
			}
			if ackErr != nil {
				return fmt.Errorf("acknowledge delivery: %w", ackErr)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) outcome {
	var ev Engagement
	if err := json.Unmarshal(body, &ev); err != nil {
		logging.Warn("engagement_malformed", map[string]any{"error": err.Error()})
		return drop
	}
	if err := c.validate.Struct(ev); err != nil {
		logging.Warn("engagement_invalid", map[string]any{"error": err.Error()})
		return drop
	}
	err := c.applier.Apply(ctx, ev)
	switch {
	case err == nil:
		return ack
	case errors.Is(err, ErrUnknownKind), errors.Is(err, ErrNegativeDelta), errors.Is(err, sqlstore.ErrNotFound):
		logging.Warn("engagement_rejected", map[string]any{"tweet_id": ev.TweetID, "kind": string(ev.Kind), "error": err.Error()})
		return drop
	default:
		logging.Error("engagement_apply_failed", map[string]any{"tweet_id": ev.TweetID, "error": err.Error()})
		return retry
	}
}
