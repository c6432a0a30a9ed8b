package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Invalidator bumps the schedule cache generation.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// GenerationBumper increments a Redis counter that every cached schedule
// response key embeds.  A nil client makes Bump a no-op.
type GenerationBumper struct {
	Client *redis.Client
	Key    string
}

// Bump increments the generation counter.
func (g GenerationBumper) Bump(ctx context.Context) error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Incr(ctx, g.Key).Err()
}

// ErrInvalidate wraps a failed cache generation bump.
var ErrInvalidate = errors.New("invalidate schedule cache")

// Consumer listens to every booking event queue.  Events that moved seat
// availability invalidate the cached schedule listings; every event is
// logged.
type Consumer struct {
	url  string
	inv  Invalidator
	log  *zap.Logger
	wait func(time.Duration) <-chan time.Time
}

// NewConsumer returns a Consumer for the broker at url.  inv may be nil.
func NewConsumer(url string, inv Invalidator, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{url: url, inv: inv, log: log.Named("consumer"), wait: time.After}
}

// Run dials the broker and consumes until ctx is cancelled.  Dial and
// channel failures are retried with exponential backoff capped at 30s so
// the HTTP server keeps serving while the broker is down.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("dial failed, retrying", zap.Duration("backoff", backoff), zap.Error(err))
			if !c.sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !c.sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.wait(d):
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}

	merged := make(chan amqp.Delivery)
	var wg sync.WaitGroup
	for _, name := range EventTypes {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		wg.Add(1)
		go func(in <-chan amqp.Delivery) {
			defer wg.Done()
			for d := range in {
				select {
				case merged <- d:
				case <-ctx.Done():
					return
				}
			}
		}(msgs)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-merged:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.process(ctx, d)
		}
	}
}

// process handles one delivery and settles it.  Malformed messages are
// dropped.  A failed cache bump is requeued once; on redelivery the
// message is acked and the cache TTL bounds the staleness.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	err := c.Handle(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrInvalidate) && !d.Redelivered:
		c.log.Warn("cache invalidation failed, requeueing", zap.Error(err))
		_ = d.Nack(false, true)
	case errors.Is(err, ErrInvalidate):
		c.log.Warn("cache invalidation failed again, acking", zap.Error(err))
		_ = d.Ack(false)
	default:
		c.log.Warn("handle message failed", zap.Error(err))
		_ = d.Nack(false, false)
	}
}

// Handle processes one message body.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.BookingID == 0 || ev.Type == "" {
		return errors.New("event without booking id or type")
	}
	if ev.ChangesSeats() && c.inv != nil {
		if err := c.inv.Bump(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidate, err)
		}
	}
	c.log.Info("booking event",
		zap.String("type", ev.Type),
		zap.Uint64("booking_id", ev.BookingID),
		zap.String("booking_code", ev.BookingCode),
		zap.Uint64("schedule_id", ev.ScheduleID),
		zap.Uint64("user_id", ev.UserID),
		zap.Int("passengers", ev.Passengers),
		zap.String("status", ev.Status),
	)
	return nil
}
