package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// ActiveCodesKey is the set of session codes currently assigned to a user.
// Shared across relay instances so code uniqueness survives horizontal scaling.
const ActiveCodesKey = "sessioncodes:active"

// DiscoveryChannel carries session_creation_request broadcasts between
// relay instances.
const DiscoveryChannel = "signaling:discovery"

func (c *Client) AddActiveCode(ctx context.Context, code string) error {
	return c.SAdd(ctx, ActiveCodesKey, code).Err()
}

func (c *Client) RemoveActiveCode(ctx context.Context, code string) error {
	return c.SRem(ctx, ActiveCodesKey, code).Err()
}

func (c *Client) IsActiveCode(ctx context.Context, code string) (bool, error) {
	return c.SIsMember(ctx, ActiveCodesKey, code).Result()
}
