package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	eventStream    = "events:trades"
	eventChannel   = "pub:events:trades"
	streamMaxLen   = 10000
	latestEventKey = "events:trades:latest"
	latestEventTTL = 30 * time.Minute
)

// RedisConfig configures the Redis event publisher.
type RedisConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// RedisPublisher writes lifecycle events to a capped Redis stream and
// fans them out over PubSub for live subscribers.
type RedisPublisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *RedisPublisher) Client() *goredis.Client { return p.client }

// NewRedisPublisher connects to Redis and pings the server.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &RedisPublisher{client: client}, nil
}

// Send writes the event as XADD + SET latest + PUBLISH in one pipeline.
func (p *RedisPublisher) Send(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	jsonData := string(data)

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, latestEventKey, jsonData, latestEventTTL)
	pipe.Publish(ctx, eventChannel, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: event pipeline: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
