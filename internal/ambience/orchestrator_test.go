/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ambience

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_ambience/internal/audio"
	"github.com/friendsincode/grimnir_ambience/internal/events"
	"github.com/friendsincode/grimnir_ambience/internal/playlist"
	"github.com/friendsincode/grimnir_ambience/internal/rules"
	"github.com/friendsincode/grimnir_ambience/internal/world"
)

type fixedVolume float64

func (v fixedVolume) MasterVolume() float64 { return float64(v) }

func boolPtr(b bool) *bool { return &b }

type harness struct {
	orch  *Orchestrator
	pool  *Pool
	dev   *fakeDevice
	state *world.State
	bus   *events.Bus
}

func newHarness(t *testing.T, slots int, initial world.Snapshot, opts Options, bindings ...rules.Binding) *harness {
	t.Helper()
	dev := newFakeDevice()
	pool := NewPool(slots, dev, testConfig(), zerolog.Nop())
	state := world.NewState(initial)
	bus := events.NewBus()
	o := New(rules.NewSet(bindings), pool, dev, state, fixedVolume(1), bus, opts, zerolog.Nop())
	t.Cleanup(o.Close)
	return &harness{orch: o, pool: pool, dev: dev, state: state, bus: bus}
}

func (h *harness) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		for j := 0; j < h.pool.Size(); j++ {
			settle(t, h.pool.Slot(j))
		}
		h.orch.Tick(step)
	}
}

func TestOrchestratorNightScenario(t *testing.T) {
	night := newList("night", []string{"owl", "crickets"}, playlist.Options{})
	h := newHarness(t, DefaultPoolSize, world.Snapshot{Night: true}, Options{},
		rules.Binding{Rule: rules.Rule{Name: "night", Night: boolPtr(true), Dungeon: boolPtr(false)}, Playlist: night},
	)
	ctx := context.Background()

	res := h.orch.Trigger(ctx, string(events.EventTimeOfDay))
	if res.Assigned != 1 {
		t.Fatalf("result = %+v, want night assigned", res)
	}
	st := h.orch.Status()
	if len(st.Active) != 1 || st.Active[0] != "night" {
		t.Fatalf("active = %v, want [night]", st.Active)
	}
	h.tick(t, 5)
	if s := h.pool.Slot(0); s.State() != StatePlaying || s.Playlist() != night {
		t.Fatalf("slot 0 = %s, want playing night", s.State())
	}

	h.state.Update(func(s *world.Snapshot) { s.Night = false })
	res = h.orch.Trigger(ctx, string(events.EventTimeOfDay))
	if res.Evicted != 1 {
		t.Fatalf("result = %+v, want night evicted", res)
	}
	if s := h.pool.Slot(0); s.State() != StateFadingOut {
		t.Fatalf("slot 0 = %s, want fading_out right after reconcile", s.State())
	}
	if st := h.orch.Status(); len(st.Active) != 0 || st.LastTrigger != string(events.EventTimeOfDay) {
		t.Fatalf("status = %+v", st)
	}
}

func TestOrchestratorDungeonExcludesNightRule(t *testing.T) {
	night := newList("night", []string{"owl"}, playlist.Options{})
	h := newHarness(t, 2, world.Snapshot{Night: true, Dungeon: true}, Options{},
		rules.Binding{Rule: rules.Rule{Name: "night", Night: boolPtr(true), Dungeon: boolPtr(false)}, Playlist: night},
	)

	res := h.orch.Trigger(context.Background(), ReasonStartup)
	if res.Assigned != 0 || h.pool.Counts()[StateIdle] != 2 {
		t.Fatalf("result = %+v, want nothing assigned in a dungeon", res)
	}
}

func TestOrchestratorRetriesDroppedWhenSlotFrees(t *testing.T) {
	outside := newList("outside", []string{"a"}, playlist.Options{})
	dungeon := newList("dungeon", []string{"b"}, playlist.Options{})
	h := newHarness(t, 1, world.Snapshot{}, Options{},
		rules.Binding{Rule: rules.Rule{Name: "outside", Dungeon: boolPtr(false)}, Playlist: outside},
		rules.Binding{Rule: rules.Rule{Name: "dungeon", Dungeon: boolPtr(true)}, Playlist: dungeon},
	)
	ctx := context.Background()

	h.orch.Trigger(ctx, ReasonStartup)
	h.tick(t, 5)

	h.state.Update(func(s *world.Snapshot) { s.Dungeon = true })
	res := h.orch.Trigger(ctx, string(events.EventLocationChange))
	if res.Evicted != 1 || res.Dropped != 1 {
		t.Fatalf("result = %+v, want outside evicted and dungeon dropped", res)
	}

	h.tick(t, 4)
	s := h.pool.Slot(0)
	if s.Playlist() != dungeon || s.State() != StateFadingIn {
		t.Fatalf("slot 0 = %s on %v, want fading_in on dungeon", s.State(), s.Playlist())
	}
	if st := h.orch.Status(); st.LastTrigger != ReasonSlotSettled {
		t.Fatalf("last trigger = %q, want %q", st.LastTrigger, ReasonSlotSettled)
	}
}

func TestOrchestratorPollWorld(t *testing.T) {
	rain := newList("rain", []string{"a"}, playlist.Options{})
	h := newHarness(t, 2, world.Snapshot{}, Options{PollWorld: true},
		rules.Binding{Rule: rules.Rule{Name: "rain", WeatherType: rules.IntSet{2}}, Playlist: rain},
	)

	h.tick(t, 1)
	if h.pool.Slot(0).State() != StateIdle {
		t.Fatal("rain assigned in clear weather")
	}

	h.state.Update(func(s *world.Snapshot) { s.WeatherType = 2 })
	h.tick(t, 1)
	if h.pool.Slot(0).Target() != rain {
		t.Fatal("weather change not picked up by polling")
	}

	// Moving the listener alone does not re-evaluate.
	before := h.orch.Status().LastAt
	h.state.Update(func(s *world.Snapshot) { s.Listener = audio.Vec3{X: 10} })
	h.tick(t, 1)
	if h.orch.Status().LastAt != before {
		t.Fatal("listener movement triggered a reconcile")
	}
	if h.dev.listener.X != 10 {
		t.Fatalf("device listener = %+v, want X=10", h.dev.listener)
	}
}

func TestOrchestratorSetRulesEvicts(t *testing.T) {
	wind := newList("wind", []string{"a"}, playlist.Options{})
	h := newHarness(t, 2, world.Snapshot{}, Options{},
		rules.Binding{Rule: rules.Rule{Name: "wind"}, Playlist: wind},
	)
	ctx := context.Background()
	h.orch.Trigger(ctx, ReasonStartup)
	reloaded := h.bus.Subscribe(events.EventRulesReloaded)

	res := h.orch.SetRules(ctx, rules.NewSet(nil))
	if res.Evicted != 1 {
		t.Fatalf("result = %+v, want wind evicted", res)
	}
	select {
	case msg := <-reloaded:
		if msg["rules"] != 0 {
			t.Errorf("reload notification = %v", msg)
		}
	default:
		t.Fatal("no rules.reloaded notification")
	}
	if len(h.orch.Playlists()) != 0 {
		t.Fatal("playlists still listed after swap")
	}
}

func TestOrchestratorPlaylists(t *testing.T) {
	wind := newList("wind", []string{"a", "b"}, playlist.Options{MinDelay: time.Second, MaxDelay: 3 * time.Second})
	rain := newList("rain", []string{"c"}, playlist.Options{Positional: true})
	h := newHarness(t, 2, world.Snapshot{}, Options{},
		rules.Binding{Rule: rules.Rule{Name: "wind"}, Playlist: wind},
		rules.Binding{Rule: rules.Rule{Name: "rain", Combat: boolPtr(true)}, Playlist: rain},
		rules.Binding{Rule: rules.Rule{Name: "wind-again", Night: boolPtr(true)}, Playlist: wind},
	)
	h.orch.Trigger(context.Background(), ReasonStartup)

	got := h.orch.Playlists()
	if len(got) != 2 {
		t.Fatalf("playlists = %+v, want 2", got)
	}
	want := []PlaylistStatus{
		{Name: "wind", Tracks: 2, MinDelayMS: 1000, MaxDelayMS: 3000, Current: "a", Active: true},
		{Name: "rain", Tracks: 1, Positional: true, Current: "c"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("playlist %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestOrchestratorRunReactsToTriggers(t *testing.T) {
	cave := newList("cave", []string{"a"}, playlist.Options{})
	h := newHarness(t, 2, world.Snapshot{}, Options{TickInterval: 5 * time.Millisecond},
		rules.Binding{Rule: rules.Rule{Name: "cave", Interior: boolPtr(true)}, Playlist: cave},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	waitFor(t, func() bool { return h.bus.Subscribers(events.EventWorldChanged) == 1 })
	h.state.Update(func(s *world.Snapshot) { s.Interior = true })
	h.bus.Publish(events.EventWorldChanged, events.Payload{"source": "test"})

	waitFor(t, func() bool {
		st := h.orch.Status()
		return len(st.Active) == 1 && st.LastTrigger == string(events.EventWorldChanged)
	})
	waitFor(t, func() bool { return h.orch.Status().Slots[0].State != StateIdle.String() })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.bus.Subscribers(events.EventWorldChanged) != 0 {
		t.Fatal("Run left its subscription behind")
	}
}
