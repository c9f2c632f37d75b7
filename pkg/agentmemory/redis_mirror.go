package agentmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisMirror publishes the latest Statistics snapshot to a shared
// Redis key after every write, so other processes running against the
// same namespace (e.g. a dashboard, or a second Orchestrator instance)
// can read aggregate health without touching the JSON file directly.
// The JSON file remains the single source of truth; Redis is a
// best-effort cache, matching the namespace:key convention used
// elsewhere for shared process state.
type RedisMirror struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisMirror connects to redisURL. namespace defaults to
// "contractforge" if empty.
func NewRedisMirror(redisURL, namespace string) (*RedisMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("agentmemory: invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("agentmemory: redis ping: %w", err)
	}

	if namespace == "" {
		namespace = "contractforge"
	}
	return &RedisMirror{client: client, namespace: namespace, ttl: time.Hour}, nil
}

// Publish writes stats to "<namespace>:agent_memory:statistics" with the
// mirror's TTL. Failures are returned to the caller, who should treat
// this as best-effort and never block a workflow on it.
func (r *RedisMirror) Publish(ctx context.Context, stats Statistics) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("agentmemory: marshal statistics: %w", err)
	}
	key := fmt.Sprintf("%s:agent_memory:statistics", r.namespace)
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("agentmemory: publish statistics: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisMirror) Close() error {
	return r.client.Close()
}
