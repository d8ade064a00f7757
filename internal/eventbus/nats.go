/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_ambience/internal/events"
	"github.com/friendsincode/grimnir_ambience/internal/world"
)

var _ Bridge = (*NATSBridge)(nil)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL     string
	Subject string
	Token   string

	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "grimnir.ambience.world",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBridge receives world messages from a NATS subject.
type NATSBridge struct {
	conn    *nats.Conn
	subject string
	nodeID  string
	apply   *applier
	logger  zerolog.Logger
}

// NewNATSBridge connects to NATS. Reconnection is left to the client.
func NewNATSBridge(cfg NATSConfig, nodeID string, state *world.State, bus *events.Bus, logger zerolog.Logger) (*NATSBridge, error) {
	logger = logger.With().Str("component", "nats_bridge").Logger()

	opts := []nats.Option{
		nats.Name("grimnir-ambience-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	logger.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Msg("NATS world bridge connected")

	return &NATSBridge{
		conn:    conn,
		subject: cfg.Subject,
		nodeID:  nodeID,
		logger:  logger,
		apply: &applier{
			source: "nats",
			nodeID: nodeID,
			state:  state,
			bus:    bus,
			logger: logger,
		},
	}, nil
}

// Run subscribes to the world subject until ctx is cancelled.
func (nb *NATSBridge) Run(ctx context.Context) error {
	sub, err := nb.conn.Subscribe(nb.subject, func(m *nats.Msg) {
		if err := nb.apply.handle(m.Data); err != nil {
			nb.logger.Warn().Err(err).Msg("dropping world message")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", nb.subject, err)
	}

	<-ctx.Done()

	if err := sub.Unsubscribe(); err != nil {
		nb.logger.Debug().Err(err).Msg("unsubscribe world subject")
	}
	return nil
}

// Publish sends msg on the world subject.
func (nb *NATSBridge) Publish(_ context.Context, msg Message) error {
	if msg.NodeID == "" {
		msg.NodeID = nb.nodeID
	}
	data, err := marshalMessage(msg)
	if err != nil {
		return fmt.Errorf("marshal world message: %w", err)
	}
	if err := nb.conn.Publish(nb.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", nb.subject, err)
	}
	return nb.conn.Flush()
}

// Close closes the NATS connection.
func (nb *NATSBridge) Close() error {
	nb.conn.Close()
	nb.logger.Info().Msg("NATS world bridge closed")
	return nil
}
