package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/p2pmarket/marketd/internal/domain/notification"
)

// DefaultStream is the stream notifications are appended to.
const DefaultStream = "marketd.notifications"

// NewClient connects to the redis server at url (redis://host:port/db).
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// Sink appends notifications to a redis stream for external consumers.
type Sink struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

var _ notification.Sink = (*Sink)(nil)

// NewSink creates a stream sink. The stream is trimmed to roughly maxLen
// entries when maxLen is positive.
func NewSink(rdb redis.Cmdable, stream string, maxLen int64) *Sink {
	if stream == "" {
		stream = DefaultStream
	}
	return &Sink{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Publish appends n to the notification stream.
func (s *Sink) Publish(ctx context.Context, n *notification.Notification) error {
	_, err := s.rdb.XAdd(ctx, s.args(n)).Result()
	if err != nil {
		return fmt.Errorf("failed to publish notification %s: %w", n.NotificationID, err)
	}
	return nil
}

func (s *Sink) args(n *notification.Notification) *redis.XAddArgs {
	payload, _ := json.Marshal(n)
	return &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: map[string]interface{}{
			"event":   string(n.Event),
			"to":      n.To,
			"payload": string(payload),
		},
	}
}
