// Package redis publishes crawl events on Redis pub/sub channels.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// publishCloser is the subset of *redis.Client the publisher needs.
type publishCloser interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// Publisher sends JSON payloads with PUBLISH.
type Publisher struct {
	client publishCloser
}

// Open parses redisURL and verifies connectivity.
func Open(ctx context.Context, redisURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Publisher{client: client}, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client publishCloser) *Publisher {
	return &Publisher{client: client}
}

// Publish marshals payload and publishes it on channel. Redis has no message
// ids, so the returned id names the channel and how many subscribers got it.
func (p *Publisher) Publish(ctx context.Context, channel string, payload any) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("redis publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	receivers, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return fmt.Sprintf("%s:%d", channel, receivers), nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
