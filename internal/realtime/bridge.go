package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "ideaflow:realtime"

const bridgeQueueSize = 1024

// RedisBridge publishes every push to a shared Redis channel. Each instance
// subscribes to that channel and replays messages into its local hub, so a
// client connected anywhere receives pushes produced anywhere.
//
// Push only enqueues; a publisher goroutine started by Start owns the
// network round trip.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	outbox  chan Message
	logger  *slog.Logger
}

func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBridge{
		client:  client,
		channel: channel,
		hub:     hub,
		outbox:  make(chan Message, bridgeQueueSize),
		logger:  logger,
	}
}

// Push queues msg for publication and returns ErrQueueFull when the outbox
// is saturated.
func (b *RedisBridge) Push(_ context.Context, msg Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	select {
	case b.outbox <- msg:
		return nil
	default:
		pushesTotal.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

func (b *RedisBridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbox:
			if err := b.publish(ctx, msg); err != nil {
				b.logger.Warn("realtime bridge publish failed", "room", msg.Room, "type", msg.Type, "error", err)
			}
		}
	}
}

func (b *RedisBridge) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode realtime message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		pushesTotal.WithLabelValues("bridge_error").Inc()
		return fmt.Errorf("publish realtime message: %w", err)
	}
	return nil
}

// Start subscribes to the shared channel, replays messages into the local
// hub and drains the outbox until ctx is cancelled. It returns once the
// subscription is confirmed.
func (b *RedisBridge) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.replay(ctx, msg.Payload)
			}
		}
	}()
	go b.publishLoop(ctx)
	b.logger.Info("realtime redis bridge subscribed", "channel", b.channel)
	return nil
}

func (b *RedisBridge) replay(ctx context.Context, payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.logger.Warn("realtime bridge decode failed", "channel", b.channel, "error", err)
		return
	}
	if msg.Room == "" || msg.Type == "" {
		return
	}
	if err := b.hub.Push(ctx, msg); err != nil && !errors.Is(err, ErrNoSubscribers) {
		b.logger.Warn("realtime bridge replay failed", "room", msg.Room, "error", err)
	}
}
