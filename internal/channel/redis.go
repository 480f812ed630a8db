package channel

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/redis/go-redis/v9"
)

const redisTimeout = 2 * time.Second

// RedisOptions configure the Redis pub/sub transport
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every channel name
	Prefix string
}

// RedisPublisher publishes msgpack messages with Redis PUBLISH. Each
// detector channel maps onto the Redis channel Prefix+name.
type RedisPublisher struct {
	client       *redis.Client
	prefix       string
	frameChannel string

	frames    atomic.Uint64
	scalars   atomic.Uint64
	receivers atomic.Int64
}

// NewRedisPublisher creates a publisher; no connection is made until Start
func NewRedisPublisher(opts RedisOptions, frameChannel string) *RedisPublisher {
	return NewRedisPublisherWithClient(redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), opts.Prefix, frameChannel)
}

// NewRedisPublisherWithClient wraps an existing client
func NewRedisPublisherWithClient(client *redis.Client, prefix, frameChannel string) *RedisPublisher {
	return &RedisPublisher{
		client:       client,
		prefix:       prefix,
		frameChannel: frameChannel,
	}
}

// Start checks the server is reachable
func (p *RedisPublisher) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	logger.WithComponent("redis").Info().
		Str("addr", p.client.Options().Addr).
		Str("channel", p.prefix+p.frameChannel).
		Msg("Redis publisher connected")
	return nil
}

// Stop closes the client
func (p *RedisPublisher) Stop() error {
	logger.WithComponent("redis").Info().
		Uint64("frames", p.frames.Load()).
		Uint64("scalars", p.scalars.Load()).
		Msg("Redis publisher stopped")
	return p.client.Close()
}

// Name returns the transport name
func (p *RedisPublisher) Name() string {
	return "redis"
}

// PublishFrame publishes rec on the frame channel
func (p *RedisPublisher) PublishFrame(rec *frame.Record) error {
	data, err := EncodeFrame(p.frameChannel, rec)
	if err != nil {
		return err
	}
	if err := p.publish(p.frameChannel, data); err != nil {
		return err
	}
	p.frames.Add(1)
	return nil
}

// PublishScalar publishes a metadata value on name
func (p *RedisPublisher) PublishScalar(name string, value float64, ts time.Time) error {
	data, err := EncodeScalar(name, value, ts)
	if err != nil {
		return err
	}
	if err := p.publish(name, data); err != nil {
		return err
	}
	p.scalars.Add(1)
	return nil
}

func (p *RedisPublisher) publish(name string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	n, err := p.client.Publish(ctx, p.prefix+name, data).Result()
	if err != nil {
		return fmt.Errorf("redis publish to %s: %w", p.prefix+name, err)
	}
	p.receivers.Store(n)
	return nil
}

// Receivers returns how many subscribers received the last message
func (p *RedisPublisher) Receivers() int64 {
	return p.receivers.Load()
}
