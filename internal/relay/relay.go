// Package relay publishes snapshots to a Redis channel for external
// dashboards.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"dark-forest/internal/sim"
)

// DefaultChannel is the pub/sub channel used when none is configured
const DefaultChannel = "darkforest:snapshot"

// Config configures the relay
type Config struct {
	URL     string
	Channel string
}

// Message is the published payload
type Message struct {
	Seed     uint32       `json:"seed"`
	Snapshot sim.Snapshot `json:"snapshot"`
	SentAt   int64        `json:"sentAt"`
}

// Relay wraps a Redis client
type Relay struct {
	client  *redis.Client
	channel string
}

// Connect dials Redis. Returns nil, nil when no URL is configured.
func Connect(cfg Config) (*Relay, error) {
	if cfg.URL == "" {
		log.Println("📡 Redis relay disabled (no REDIS_URL)")
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Printf("📡 Redis relay connected (channel %s)", channelOrDefault(cfg.Channel))
	return New(client, cfg.Channel), nil
}

// New wraps an existing client
func New(client *redis.Client, channel string) *Relay {
	return &Relay{client: client, channel: channelOrDefault(channel)}
}

func channelOrDefault(channel string) string {
	if channel == "" {
		return DefaultChannel
	}
	return channel
}

// Channel returns the pub/sub channel name
func (r *Relay) Channel() string {
	return r.channel
}

// Publish sends one snapshot. A nil Relay is a no-op.
func (r *Relay) Publish(ctx context.Context, seed uint32, snap sim.Snapshot) error {
	if r == nil {
		return nil
	}
	payload, err := json.Marshal(Message{Seed: seed, Snapshot: snap, SentAt: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Close closes the client. A nil Relay is a no-op.
func (r *Relay) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
