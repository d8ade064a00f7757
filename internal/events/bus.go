/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package events is the in-process pubsub that carries reconcile triggers
// and engine notifications between components.
package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// World change triggers published by the host. Any of these makes the
	// orchestrator re-evaluate against a fresh snapshot.
	EventWorldChanged   EventType = "world.changed" // full snapshot push
	EventLocationChange EventType = "world.location"
	EventPositionChange EventType = "world.position"
	EventTimeOfDay      EventType = "world.time_of_day"
	EventWeatherChange  EventType = "world.weather"
	EventSwimChange     EventType = "world.swim"
	EventDeath          EventType = "world.death"
	EventStartMenu      EventType = "world.start_menu"
	EventCombatChange   EventType = "world.combat"

	// Settings
	EventVolumeChanged EventType = "settings.volume"

	// Engine notifications
	EventRulesReloaded EventType = "rules.reloaded"
	EventReconciled    EventType = "ambience.reconciled"
)

// TriggerEvents are the event types that request a re-evaluation. They are
// also the only types accepted from external world sources.
var TriggerEvents = []EventType{
	EventWorldChanged,
	EventLocationChange,
	EventPositionChange,
	EventTimeOfDay,
	EventWeatherChange,
	EventSwimChange,
	EventDeath,
	EventStartMenu,
	EventCombatChange,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// subscriberBuffer bounds how many undelivered events a subscriber holds.
// Publish drops on a full buffer, so bursts of triggers coalesce.
const subscriberBuffer = 8

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	return b.SubscribeMany(eventType)
}

// SubscribeMany registers one subscriber for several event types. The
// event type is stored in the payload under "type".
func (b *Bus) SubscribeMany(eventTypes ...EventType) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	for _, t := range eventTypes {
		b.subs[t] = append(b.subs[t], ch)
	}
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers without blocking. The read lock is
// held across the sends so Unsubscribe cannot close a channel mid-send.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	msg := make(Payload, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	msg["type"] = string(eventType)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- msg:
		default:
		}
	}
}

// Unsubscribe removes the subscriber from every event type and closes it.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	found := false
	for t, subs := range b.subs {
		for i, candidate := range subs {
			if candidate == sub {
				b.subs[t] = append(subs[:i], subs[i+1:]...)
				found = true
				break
			}
		}
	}
	if found {
		close(sub)
	}
}

// Subscribers returns the number of subscribers for an event type.
func (b *Bus) Subscribers(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
