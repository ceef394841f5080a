package redisbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danthegoodman1/tablesweep/gologger"
	"github.com/danthegoodman1/tablesweep/workspace"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

var (
	logger = gologger.ComponentLogger("redisbridge")
)

type (
	// RedisBridge is a workspace.KVBridge and workspace.ValueWatcher backed by
	// Redis. Every write is published on a per-key channel so other processes
	// see new snapshots without polling.
	RedisBridge struct {
		client *redis.Client
		prefix string
	}

	Options struct {
		Addr     string
		Password string
		// Prefix namespaces keys and channels, defaults to "tablesweep:"
		Prefix string
	}
)

func NewRedisBridge(ctx context.Context, opts Options) (*RedisBridge, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Msg("connecting to redis bridge")
	if opts.Prefix == "" {
		opts.Prefix = "tablesweep:"
	}
	rb := &RedisBridge{
		client: redis.NewClient(&redis.Options{
			Addr:        opts.Addr,
			Password:    opts.Password,
			DB:          0,
			DialTimeout: time.Second * 3,
		}),
		prefix: opts.Prefix,
	}

	s := time.Now()
	_, err := rb.client.Ping(ctx).Result()
	if err != nil {
		rb.client.Close()
		return nil, fmt.Errorf("error pinging redis: %w", err)
	}
	logger.Debug().Msgf("redis ping test successful in %s", time.Since(s))

	return rb, nil
}

func (rb *RedisBridge) Key(key string) string {
	return rb.prefix + "kv_" + key
}

func (rb *RedisBridge) Channel(key string) string {
	return rb.prefix + "chan_" + key
}

func (rb *RedisBridge) GetValue(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := rb.client.Get(ctx, rb.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &workspace.HostError{Op: workspace.OpGetValue, Err: fmt.Errorf("error in redis GET: %w", err)}
	}
	return b, true, nil
}

// SetValue writes (or deletes, for nil) the key and publishes the new value in
// the same transaction.
func (rb *RedisBridge) SetValue(ctx context.Context, key string, value []byte) error {
	pipe := rb.client.TxPipeline()
	if value == nil {
		pipe.Del(ctx, rb.Key(key))
	} else {
		pipe.Set(ctx, rb.Key(key), value, 0)
	}
	pipe.Publish(ctx, rb.Channel(key), encodePayload(value))

	_, err := pipe.Exec(ctx)
	if err != nil {
		return &workspace.HostError{Op: workspace.OpSetValue, Err: fmt.Errorf("error in redis pipeline exec: %w", err)}
	}
	return nil
}

// OnValueChange subscribes to the key's channel. fn runs on the subscription
// goroutine, one message at a time.
func (rb *RedisBridge) OnValueChange(ctx context.Context, key string, fn func(value []byte)) (func(), error) {
	logger := zerolog.Ctx(ctx)
	sub := rb.client.Subscribe(ctx, rb.Channel(key))
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("error in redis SUBSCRIBE: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			fn(decodePayload(msg.Payload))
		}
		logger.Debug().Str("key", key).Msg("redis subscription closed")
	}()

	return func() {
		if err := sub.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis subscription")
		}
		<-done
	}, nil
}

func (rb *RedisBridge) Shutdown(_ context.Context) error {
	err := rb.client.Close()
	if err != nil {
		return fmt.Errorf("error closing redis client: %w", err)
	}
	return nil
}

// Deletions travel as an empty payload. A stored value is never empty since
// the store only writes encoded snapshots.
func encodePayload(value []byte) string {
	return string(value)
}

func decodePayload(payload string) []byte {
	if payload == "" {
		return nil
	}
	return []byte(payload)
}

var (
	_ workspace.KVBridge     = (*RedisBridge)(nil)
	_ workspace.ValueWatcher = (*RedisBridge)(nil)
)
