/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_ambience/internal/events"
	"github.com/friendsincode/grimnir_ambience/internal/world"
)

var _ Bridge = (*RedisBridge)(nil)

// ErrDegraded indicates the Redis bridge is in its fallback state.
var ErrDegraded = errors.New("redis bridge degraded")

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		Channel:       "grimnir:ambience:world",
		PoolSize:      4,
		MinIdleConns:  1,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// RedisBridge receives world messages from a Redis pub/sub channel. When
// Redis is unreachable it degrades instead of failing: the engine keeps
// running on its last world state and other sources, and the bridge
// retries every CheckInterval.
type RedisBridge struct {
	client *redis.Client
	cfg    RedisConfig
	nodeID string
	apply  *applier
	logger zerolog.Logger

	// Circuit breaker state
	mu        sync.Mutex
	degraded  bool
	failCount int
	lastCheck time.Time
}

// NewRedisBridge creates the bridge. An unreachable server is logged and
// leaves the bridge degraded; it is not an error.
func NewRedisBridge(cfg RedisConfig, nodeID string, state *world.State, bus *events.Bus, logger zerolog.Logger) *RedisBridge {
	logger = logger.With().Str("component", "redis_bridge").Logger()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	rb := &RedisBridge{
		client: client,
		cfg:    cfg,
		nodeID: nodeID,
		logger: logger,
		apply: &applier{
			source: "redis",
			nodeID: nodeID,
			state:  state,
			bus:    bus,
			logger: logger,
		},
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis connection failed, world bridge degraded")
		rb.degraded = true
		rb.lastCheck = time.Now()
		return rb
	}

	logger.Info().Str("addr", cfg.Addr).Str("channel", cfg.Channel).Msg("Redis world bridge initialized")
	return rb
}

// Degraded reports whether the circuit breaker is open.
func (rb *RedisBridge) Degraded() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.degraded
}

// Run receives messages until ctx is cancelled, reconnecting after the
// circuit breaker opens.
func (rb *RedisBridge) Run(ctx context.Context) error {
	for {
		if rb.Degraded() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(rb.cfg.CheckInterval):
			}
			if err := rb.tryReconnect(ctx); err != nil {
				rb.logger.Debug().Err(err).Msg("Redis reconnect")
			}
			continue
		}

		if done := rb.receive(ctx); done {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

// receive runs one subscription. It reports true when ctx ended it.
func (rb *RedisBridge) receive(ctx context.Context) bool {
	pubsub := rb.client.Subscribe(ctx, rb.cfg.Channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	rb.logger.Debug().Str("channel", rb.cfg.Channel).Msg("started Redis message receiver")

	for {
		select {
		case <-ctx.Done():
			rb.logger.Debug().Msg("stopping Redis message receiver")
			return true

		case msg, ok := <-ch:
			if !ok {
				rb.logger.Warn().Str("channel", rb.cfg.Channel).Msg("Redis channel closed")
				rb.handleFailure()
				return false
			}
			if err := rb.apply.handle([]byte(msg.Payload)); err != nil {
				rb.logger.Warn().Err(err).Msg("dropping world message")
				continue
			}

			rb.mu.Lock()
			rb.failCount = 0
			rb.mu.Unlock()
		}
	}
}

// Publish sends msg on the world channel.
func (rb *RedisBridge) Publish(ctx context.Context, msg Message) error {
	if rb.Degraded() {
		return ErrDegraded
	}
	if msg.NodeID == "" {
		msg.NodeID = rb.nodeID
	}
	data, err := marshalMessage(msg)
	if err != nil {
		return fmt.Errorf("marshal world message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rb.client.Publish(ctx, rb.cfg.Channel, data).Err(); err != nil {
		rb.handleFailure()
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (rb *RedisBridge) Close() error {
	if err := rb.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	rb.logger.Info().Msg("Redis world bridge closed")
	return nil
}

// handleFailure implements circuit breaker logic.
func (rb *RedisBridge) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++
	if rb.failCount >= rb.cfg.MaxFailures && !rb.degraded {
		rb.logger.Warn().
			Int("fail_count", rb.failCount).
			Msg("Redis failure threshold reached, world bridge degraded")
		rb.degraded = true
		rb.lastCheck = time.Now()
	}
}

// tryReconnect pings Redis and closes the circuit breaker on success.
func (rb *RedisBridge) tryReconnect(ctx context.Context) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.degraded {
		return nil
	}
	if time.Since(rb.lastCheck) < rb.cfg.CheckInterval {
		return fmt.Errorf("too soon to retry")
	}
	rb.lastCheck = time.Now()

	pingCtx, cancel := context.WithTimeout(ctx, rb.cfg.DialTimeout)
	defer cancel()
	if err := rb.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis still unavailable: %w", err)
	}

	rb.degraded = false
	rb.failCount = 0
	rb.logger.Info().Msg("reconnected to Redis, world bridge restored")
	return nil
}
