package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier delivers change events over Redis pub/sub, one channel per
// parent path. It plays the coordination-layer role the teacher's
// internal/queue/redis_queue.go plays for job dispatch, generalized from a
// work queue to a change-feed fan-out.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier builds a notifier against an existing Redis client.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: "store:changes:"}
}

type wireChange struct {
	Path string         `json:"path"`
	Type ChangeType     `json:"type"`
	Body map[string]any `json:"body"`
	Rev  int64          `json:"rev"`
	Time time.Time      `json:"time"`
}

func (n *RedisNotifier) channel(parentPath string) string {
	return n.prefix + parentPath
}

// Publish announces a change under parentPath to any subscribed watchers.
func (n *RedisNotifier) Publish(ctx context.Context, parentPath string, ch Change) error {
	payload, err := json.Marshal(wireChange{Path: ch.Path, Type: ch.Type, Body: ch.Body, Rev: ch.Rev, Time: ch.Time})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel(parentPath), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", parentPath, err)
	}
	return nil
}

// Subscribe opens a live Watch on parentPath. The returned Watch's channel
// is closed when Close is called or the context is cancelled.
func (n *RedisNotifier) Subscribe(ctx context.Context, parentPath string) (*Watch, error) {
	sub := n.client.Subscribe(ctx, n.channel(parentPath))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", parentPath, err)
	}

	out := make(chan Change, 256)
	redisCh := sub.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				var wc wireChange
				if err := json.Unmarshal([]byte(msg.Payload), &wc); err != nil {
					slog.Warn("store: ignoring malformed change payload", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- Change{Path: wc.Path, Type: wc.Type, Body: wc.Body, Rev: wc.Rev, Time: wc.Time}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return &Watch{Changes: out, closeFn: sub.Close}, nil
}
