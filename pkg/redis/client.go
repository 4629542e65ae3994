package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/worth-network/worthx/pkg/utils"
)

const (
	// ChannelBlockIndexed carries one message per committed block.
	ChannelBlockIndexed = "worthx:block.indexed"
	// StreamBlocks keeps a capped history of the same events for late readers.
	StreamBlocks = "worthx:blocks"

	DefaultStreamMaxLen = 10000
)

// BlockEvent is published after a block's unit of work commits.
type BlockEvent struct {
	Num       uint64    `json:"num"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Txs       int       `json:"txs"`
	Phase     string    `json:"phase"`
}

// Client wraps the Redis client for best-effort block notifications.
type Client struct {
	client       *redis.Client
	logger       *zap.Logger
	streamMaxLen int64 // 0 = unlimited
}

// NewClient connects to addr. Environment variables:
//   - REDIS_PASSWORD: password (default: "")
//   - REDIS_DB: database number (default: 0)
//   - REDIS_STREAM_MAXLEN: max entries in the block stream (default: 10000, 0 = unlimited)
func NewClient(ctx context.Context, logger *zap.Logger, addr string) (*Client, error) {
	password := utils.Env("REDIS_PASSWORD", "")
	db := utils.EnvInt("REDIS_DB", 0)
	streamMaxLen := utils.EnvInt64("REDIS_STREAM_MAXLEN", DefaultStreamMaxLen)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     4,
		MinIdleConns: 1,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", addr),
		zap.Int("db", db),
		zap.Int64("streamMaxLen", streamMaxLen))

	return &Client{
		client:       rdb,
		logger:       logger,
		streamMaxLen: streamMaxLen,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Health checks if Redis is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Publish sends a Pub/Sub message. Errors are logged, not returned, so a
// Redis outage never stalls the sync.
func (c *Client) Publish(ctx context.Context, channel string, message any) {
	if err := c.client.Publish(ctx, channel, message).Err(); err != nil {
		c.logger.Warn("Failed to publish Redis message",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// XAdd appends to a stream, capped at streamMaxLen. Best-effort like Publish.
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]any) string {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if c.streamMaxLen > 0 {
		args.MaxLen = c.streamMaxLen
		args.Approx = true
	}

	id, err := c.client.XAdd(ctx, args).Result()
	if err != nil {
		c.logger.Warn("Failed to add to Redis stream",
			zap.String("stream", stream),
			zap.Error(err))
		return ""
	}
	return id
}

// PublishBlock fans a committed block out to the channel and the stream.
func (c *Client) PublishBlock(ctx context.Context, ev BlockEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.Warn("Failed to encode block event", zap.Uint64("num", ev.Num), zap.Error(err))
		return
	}
	c.Publish(ctx, ChannelBlockIndexed, payload)
	c.XAdd(ctx, StreamBlocks, streamValues(ev))
}

func streamValues(ev BlockEvent) map[string]any {
	return map[string]any{
		"num":       strconv.FormatUint(ev.Num, 10),
		"hash":      ev.Hash,
		"timestamp": ev.Timestamp.UTC().Format(time.RFC3339),
		"txs":       ev.Txs,
		"phase":     ev.Phase,
	}
}
