package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"coinfolio/internal/logger"
)

// Channel is the Redis pub/sub channel shared by every API instance.
const Channel = "coinfolio:updates"

// RedisBroker publishes events through Redis so every instance's Hub sees
// them, including the publisher's own.
type RedisBroker struct {
	client *redis.Client
	hub    *Hub
	logger *zap.Logger
}

// NewRedisBroker connects to the Redis server at url (redis://...).
func NewRedisBroker(url string, hub *Hub) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBroker{client: client, hub: hub, logger: logger.Get().Desugar().Named("updates.redis")}, nil
}

// Publish implements Publisher.
func (b *RedisBroker) Publish(ctx context.Context, userID, event string) error {
	payload, err := encodeEvent(Event{UserID: userID, Name: event})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel, payload).Err()
}

// Run relays messages from Redis into the local hub until ctx is cancelled.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, Channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}
	b.logger.Info("relaying updates from redis", zap.String("channel", Channel))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			e, err := decodeEvent(msg.Payload)
			if err != nil {
				b.logger.Warn("ignoring malformed update", zap.Error(err))
				continue
			}
			b.hub.deliver(e)
		}
	}
}

// Close closes the Redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func encodeEvent(e Event) (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode update: %w", err)
	}
	return string(raw), nil
}

func decodeEvent(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("decode update: %w", err)
	}
	if e.UserID == "" || e.Name == "" {
		return Event{}, fmt.Errorf("decode update: missing user_id or event")
	}
	return e, nil
}
