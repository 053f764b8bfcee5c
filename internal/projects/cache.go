package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds the hot active-projects listing.
type Cache interface {
	GetActive(ctx context.Context) ([]Project, bool, error)
	SetActive(ctx context.Context, projects []Project) error
	Invalidate(ctx context.Context) error
}

// NopCache never hits. Used when Redis is disabled.
type NopCache struct{}

func (NopCache) GetActive(context.Context) ([]Project, bool, error) { return nil, false, nil }
func (NopCache) SetActive(context.Context, []Project) error        { return nil }
func (NopCache) Invalidate(context.Context) error                  { return nil }

const activeProjectsKey = "projects:active"

// RedisCache stores the listing as one JSON value with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) GetActive(ctx context.Context) ([]Project, bool, error) {
	data, err := c.client.Get(ctx, activeProjectsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get active projects: %w", err)
	}

	var projects []Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, false, fmt.Errorf("cache: decode active projects: %w", err)
	}
	return projects, true, nil
}

func (c *RedisCache) SetActive(ctx context.Context, projects []Project) error {
	data, err := json.Marshal(projects)
	if err != nil {
		return fmt.Errorf("cache: encode active projects: %w", err)
	}
	if err := c.client.Set(ctx, activeProjectsKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set active projects: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, activeProjectsKey).Err(); err != nil {
		return fmt.Errorf("cache: invalidate active projects: %w", err)
	}
	return nil
}
