package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients keeps subscriptions off the connection pool used for
// publishing and counters.
type RedisClients struct {
	Commands *redis.Client
	PubSub   *redis.Client
}

func NewRedisClients(ctx context.Context, redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	commands, err := dialRedis(ctx, opt, "commands")
	if err != nil {
		return nil, err
	}

	// Each websocket user holds one subscription; they never need the
	// command pool's size.
	pubsubOpt := *opt
	pubsubOpt.PoolSize = 4
	pubsub, err := dialRedis(ctx, &pubsubOpt, "pubsub")
	if err != nil {
		commands.Close()
		return nil, err
	}

	return &RedisClients{Commands: commands, PubSub: pubsub}, nil
}

func dialRedis(ctx context.Context, opt *redis.Options, role string) (*redis.Client, error) {
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis (%s): %w", role, err)
	}
	return client, nil
}

func (r *RedisClients) Close() {
	r.Commands.Close()
	r.PubSub.Close()
}
