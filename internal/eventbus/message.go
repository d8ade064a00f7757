/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges world-state updates published by the host game
// over NATS or Redis into the engine: each message replaces the shared
// world state and raises a trigger on the in-process bus.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_ambience/internal/events"
	"github.com/friendsincode/grimnir_ambience/internal/telemetry"
	"github.com/friendsincode/grimnir_ambience/internal/world"
)

// ErrUnknownEvent indicates a message whose event type is not a trigger.
var ErrUnknownEvent = errors.New("unknown world event type")

// Bridge is a remote world-state source.
type Bridge interface {
	// Run receives messages until ctx is cancelled.
	Run(ctx context.Context) error
	// Publish sends a message to every engine listening on the transport.
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Message is the wire form of a world update.
type Message struct {
	EventType events.EventType `json:"event_type"`
	Snapshot  *world.Snapshot  `json:"snapshot,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id,omitempty"`
}

// NewMessage builds a message stamped with a fresh ID. snap may be nil for
// a bare trigger.
func NewMessage(eventType events.EventType, snap *world.Snapshot, nodeID string) Message {
	return Message{
		EventType: eventType,
		Snapshot:  snap,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
}

func marshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a wire message. A missing event type means
// world.changed; any other non-trigger type is rejected.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal world message: %w", err)
	}
	if msg.EventType == "" {
		msg.EventType = events.EventWorldChanged
	}
	if !isTrigger(msg.EventType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.EventType)
	}
	return &msg, nil
}

func isTrigger(t events.EventType) bool {
	for _, candidate := range events.TriggerEvents {
		if t == candidate {
			return true
		}
	}
	return false
}

// NodeID returns an identifier unique to this process.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ambienced"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// applier turns decoded messages into state updates and triggers.
type applier struct {
	source string
	nodeID string
	state  *world.State
	bus    *events.Bus
	logger zerolog.Logger
}

// handle applies one raw message. Messages from this node are ignored.
func (a *applier) handle(data []byte) error {
	msg, err := DecodeMessage(data)
	if err != nil {
		telemetry.WorldMessages.WithLabelValues(a.source, "invalid").Inc()
		return err
	}
	if msg.NodeID != "" && msg.NodeID == a.nodeID {
		telemetry.WorldMessages.WithLabelValues(a.source, "echo").Inc()
		return nil
	}

	Apply(a.state, a.bus, *msg, a.source)

	a.logger.Debug().
		Str("event_type", string(msg.EventType)).
		Str("source_node", msg.NodeID).
		Bool("snapshot", msg.Snapshot != nil).
		Msg("world message applied")
	return nil
}

// Apply replaces the world state with the message snapshot, if any, and
// raises the message's trigger on bus.
func Apply(state *world.State, bus *events.Bus, msg Message, source string) {
	if msg.Snapshot != nil {
		state.Set(*msg.Snapshot)
	}
	bus.Publish(msg.EventType, events.Payload{
		"source":     source,
		"node_id":    msg.NodeID,
		"message_id": msg.MessageID,
	})
	telemetry.WorldMessages.WithLabelValues(source, "applied").Inc()
}
