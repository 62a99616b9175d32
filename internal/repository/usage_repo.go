package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const usageTTL = 48 * time.Hour

// UsageRepo counts completed generations per user per UTC day.
type UsageRepo struct {
	client *redis.Client
	now    func() time.Time
}

func NewUsageRepo(client *redis.Client) *UsageRepo {
	return &UsageRepo{client: client, now: time.Now}
}

func usageKey(userID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("usage:quiz:%s:%s", userID, day.UTC().Format("2006-01-02"))
}

// RecordGeneration returns the count for today including this one.
func (r *UsageRepo) RecordGeneration(ctx context.Context, userID uuid.UUID) (int64, error) {
	key := usageKey(userID, r.now())

	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, key, usageTTL).Err(); err != nil {
			return n, fmt.Errorf("set usage expiry: %w", err)
		}
	}
	return n, nil
}
