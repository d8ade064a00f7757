/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestBusPublishTagsType(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventWorldChanged)

	bus.Publish(EventWorldChanged, Payload{"reason": "test"})

	msg := <-sub
	if msg["type"] != string(EventWorldChanged) {
		t.Fatalf("type = %v, want %s", msg["type"], EventWorldChanged)
	}
	if msg["reason"] != "test" {
		t.Fatalf("reason = %v, want test", msg["reason"])
	}
}

func TestBusPublishDoesNotMutatePayload(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventVolumeChanged)
	p := Payload{"volume": 0.5}

	bus.Publish(EventVolumeChanged, p)
	<-sub

	if _, ok := p["type"]; ok {
		t.Fatal("publish wrote into the caller's payload")
	}
}

func TestBusSubscribeMany(t *testing.T) {
	bus := NewBus()
	sub := bus.SubscribeMany(TriggerEvents...)

	bus.Publish(EventWeatherChange, nil)
	bus.Publish(EventCombatChange, nil)
	bus.Publish(EventVolumeChanged, nil)

	got := []any{(<-sub)["type"], (<-sub)["type"]}
	if got[0] != string(EventWeatherChange) || got[1] != string(EventCombatChange) {
		t.Fatalf("got %v", got)
	}
	select {
	case msg := <-sub:
		t.Fatalf("unexpected event %v", msg)
	default:
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventWorldChanged)

	for i := 0; i < subscriberBuffer*3; i++ {
		bus.Publish(EventWorldChanged, nil)
	}
	if len(sub) != subscriberBuffer {
		t.Fatalf("buffered = %d, want %d", len(sub), subscriberBuffer)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := bus.SubscribeMany(EventWorldChanged, EventRulesReloaded)

	bus.Unsubscribe(sub)

	if n := bus.Subscribers(EventWorldChanged); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
	if _, ok := <-sub; ok {
		t.Fatal("subscriber channel not closed")
	}
	// A second unsubscribe must not panic on a closed channel.
	bus.Unsubscribe(sub)
	bus.Publish(EventWorldChanged, nil)
}

func TestBusPublishRacingUnsubscribe(t *testing.T) {
	for round := 0; round < 20; round++ {
		bus := NewBus()
		sub := bus.Subscribe(EventWorldChanged)

		var (
			wg     sync.WaitGroup
			panics atomic.Int32
			stop   = make(chan struct{})
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if recover() != nil {
						panics.Add(1)
					}
				}()
				for {
					select {
					case <-stop:
						return
					default:
						bus.Publish(EventWorldChanged, nil)
					}
				}
			}()
		}

		<-sub
		bus.Unsubscribe(sub)
		close(stop)
		wg.Wait()

		if n := panics.Load(); n != 0 {
			t.Fatalf("round %d: Publish panicked %d times while unsubscribing", round, n)
		}
	}
}
