package relay

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"mp4dao/journal"
)

// ConnectRedis initializes a Redis client from URL or host:port input.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("relay: parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("relay: ping redis: %w", err)
	}
	return client, nil
}

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamPublisher appends facts to a capped Redis stream.
type RedisStreamPublisher struct {
	client streamAdder
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(client streamAdder, streamName string, maxLen int64) *RedisStreamPublisher {
	if streamName == "" {
		streamName = "mp4dao:facts"
	}
	return &RedisStreamPublisher{client: client, stream: streamName, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, fact journal.Fact) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"fact_id":       fact.ID.String(),
			"seq":           strconv.FormatUint(fact.Seq, 10),
			"fact_type":     fact.Type,
			"source":        fact.Source,
			"actor":         fact.Actor.String(),
			"partition_key": fact.PartitionKey,
			"payload":       string(fact.Payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("relay: redis xadd %s: %w", fact.Type, err)
	}
	return nil
}
