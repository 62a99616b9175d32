package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizforge-backend/internal/models"
)

// Channel is the pub/sub channel carrying a user's generation frames.
func Channel(userID uuid.UUID) string {
	return "quiz_progress:" + userID.String()
}

// RedisSink republishes frames so other tabs of the same user can follow along.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, userID uuid.UUID) *RedisSink {
	return &RedisSink{client: client, channel: Channel(userID)}
}

func (s *RedisSink) Send(ctx context.Context, frame models.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return s.client.Publish(ctx, s.channel, string(data)).Err()
}
