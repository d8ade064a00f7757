/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ambience drives the pooled ambient slots: it evaluates the rule
// table against world state, reconciles the pool, and ticks the crossfades.
package ambience

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/friendsincode/grimnir_ambience/internal/audio"
	"github.com/friendsincode/grimnir_ambience/internal/events"
	"github.com/friendsincode/grimnir_ambience/internal/playlist"
	"github.com/friendsincode/grimnir_ambience/internal/rules"
	"github.com/friendsincode/grimnir_ambience/internal/telemetry"
	"github.com/friendsincode/grimnir_ambience/internal/world"
)

// DefaultTickInterval is the run loop period.
const DefaultTickInterval = 50 * time.Millisecond

// Trigger reasons not carried by a bus event.
const (
	ReasonStartup     = "startup"
	ReasonPoll        = "world.poll"
	ReasonSlotSettled = "slot.settled"
	ReasonRulesSwap   = "rules.swap"
)

// VolumeSource supplies the master volume. settings.Store implements it.
type VolumeSource interface {
	MasterVolume() float64
}

// Options tunes the run loop.
type Options struct {
	TickInterval time.Duration
	// PollWorld re-evaluates on every tick whose snapshot differs from the
	// last evaluated one, for hosts that push state without a trigger.
	PollWorld bool
}

// Orchestrator owns the rule table and the slot pool. Trigger, Tick and the
// status readers are serialized so evaluation plus reconciliation is atomic
// relative to a tick.
type Orchestrator struct {
	mu sync.Mutex

	set    *rules.Set
	pool   *Pool
	dev    audio.Device
	world  world.Provider
	volume VolumeSource
	bus    *events.Bus
	opts   Options
	tracer trace.Tracer
	logger zerolog.Logger

	active      []*playlist.Playlist
	lastSnap    world.Snapshot
	evaluated   bool
	retry       bool
	lastResult  ReconcileResult
	lastTrigger string
	lastAt      time.Time
}

// New wires an orchestrator. bus may be nil when no component publishes triggers.
func New(set *rules.Set, pool *Pool, dev audio.Device, provider world.Provider, volume VolumeSource, bus *events.Bus, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	return &Orchestrator{
		set:    set,
		pool:   pool,
		dev:    dev,
		world:  provider,
		volume: volume,
		bus:    bus,
		opts:   opts,
		tracer: telemetry.Tracer("grimnir_ambience/ambience"),
		logger: logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Trigger rebuilds the snapshot, evaluates the rule table, and reconciles the pool.
func (o *Orchestrator) Trigger(ctx context.Context, reason string) ReconcileResult {
	_, span := o.tracer.Start(ctx, "ambience.trigger")
	defer span.End()

	o.mu.Lock()
	defer o.mu.Unlock()

	res := o.evaluateLocked(reason, world.Capture(o.world))
	telemetry.AddSpanAttributes(span, map[string]any{
		"reason":   reason,
		"active":   len(o.active),
		"evicted":  res.Evicted,
		"assigned": res.Assigned,
		"dropped":  res.Dropped,
	})
	return res
}

// SetRules swaps the rule table and reconciles against it. Playlists
// missing from the new table fade out like any other eviction.
func (o *Orchestrator) SetRules(ctx context.Context, set *rules.Set) ReconcileResult {
	o.mu.Lock()
	o.set = set
	o.mu.Unlock()
	o.logger.Info().Int("rules", set.Len()).Msg("rule table replaced")
	res := o.Trigger(ctx, ReasonRulesSwap)
	if o.bus != nil {
		o.bus.Publish(events.EventRulesReloaded, events.Payload{"rules": set.Len()})
	}
	return res
}

func (o *Orchestrator) evaluateLocked(reason string, snap world.Snapshot) ReconcileResult {
	active := rules.Evaluate(o.set, snap)
	res := o.reconcileLocked(reason, active)

	snap.Listener = audio.Vec3{}
	o.lastSnap = snap
	o.evaluated = true
	return res
}

func (o *Orchestrator) reconcileLocked(reason string, active []*playlist.Playlist) ReconcileResult {
	res := o.pool.Reconcile(active)

	o.active = active
	o.retry = res.Dropped+res.Busy > 0
	o.lastResult = res
	o.lastTrigger = reason
	o.lastAt = time.Now()

	telemetry.Reconciliations.WithLabelValues(reason).Inc()
	telemetry.ActivePlaylists.Set(float64(len(distinct(active))))

	if res.Changed() {
		o.logger.Info().
			Str("reason", reason).
			Int("active", len(active)).
			Int("evicted", res.Evicted).
			Int("assigned", res.Assigned).
			Int("resumed", res.Resumed).
			Int("dropped", res.Dropped).
			Msg("pool reconciled")
		if o.bus != nil {
			o.bus.Publish(events.EventReconciled, events.Payload{
				"reason":   reason,
				"evicted":  res.Evicted,
				"assigned": res.Assigned,
				"resumed":  res.Resumed,
				"dropped":  res.Dropped,
			})
		}
	} else {
		o.logger.Debug().Str("reason", reason).Int("active", len(active)).Msg("pool unchanged")
	}
	return res
}

// Tick advances every slot by dt. When a fade-out completes while some
// active playlist is still waiting for a slot, the last active set is
// reconciled again.
func (o *Orchestrator) Tick(dt time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	listener := o.world.ListenerPosition()
	o.dev.SetListener(listener)

	if o.opts.PollWorld {
		snap := world.Capture(o.world)
		snap.Listener = audio.Vec3{}
		if !o.evaluated || snap != o.lastSnap {
			o.evaluateLocked(ReasonPoll, snap)
		}
	}

	if settled := o.pool.Tick(dt, o.volume.MasterVolume(), listener); settled > 0 && o.retry {
		o.reconcileLocked(ReasonSlotSettled, o.active)
	}
}

// Run evaluates once, then ticks at the configured interval and reconciles
// on every trigger event until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	var triggers <-chan events.Payload
	if o.bus != nil {
		sub := o.bus.SubscribeMany(events.TriggerEvents...)
		defer o.bus.Unsubscribe(sub)
		triggers = sub
	}

	ticker := time.NewTicker(o.opts.TickInterval)
	defer ticker.Stop()

	o.logger.Info().Dur("tick", o.opts.TickInterval).Int("slots", o.pool.Size()).Msg("ambience engine started")
	o.Trigger(ctx, ReasonStartup)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("ambience engine stopping")
			return nil

		case msg, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			reason, _ := msg["type"].(string)
			o.Trigger(ctx, reason)

		case now := <-ticker.C:
			o.Tick(now.Sub(last))
			last = now
		}
	}
}

// Close stops every slot without a fade and releases every buffer.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pool.Close()
}

// Status is a point-in-time view of the engine.
type Status struct {
	Slots        []SlotStatus    `json:"slots"`
	Active       []string        `json:"active"`
	MasterVolume float64         `json:"master_volume"`
	LastTrigger  string          `json:"last_trigger,omitempty"`
	LastAt       time.Time       `json:"last_reconcile,omitempty"`
	LastResult   ReconcileResult `json:"last_result"`
	Snapshot     world.Snapshot  `json:"snapshot"`
}

// Status returns the current engine view.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		Slots:        o.pool.Status(),
		MasterVolume: o.volume.MasterVolume(),
		LastTrigger:  o.lastTrigger,
		LastAt:       o.lastAt,
		LastResult:   o.lastResult,
		Snapshot:     o.lastSnap,
	}
	for _, p := range distinct(o.active) {
		st.Active = append(st.Active, p.Name())
	}
	return st
}

// PlaylistStatus describes one loaded playlist.
type PlaylistStatus struct {
	Name       string `json:"name"`
	Tracks     int    `json:"tracks"`
	Positional bool   `json:"positional"`
	MinDelayMS int64  `json:"min_delay_ms"`
	MaxDelayMS int64  `json:"max_delay_ms"`
	Current    string `json:"current,omitempty"`
	Active     bool   `json:"active"`
}

// Playlists lists every playlist in the rule table.
func (o *Orchestrator) Playlists() []PlaylistStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	active := make(map[*playlist.Playlist]bool, len(o.active))
	for _, p := range o.active {
		active[p] = true
	}
	var out []PlaylistStatus
	for _, p := range o.set.Playlists() {
		out = append(out, PlaylistStatus{
			Name:       p.Name(),
			Tracks:     p.Len(),
			Positional: p.Positional(),
			MinDelayMS: p.MinDelay().Milliseconds(),
			MaxDelayMS: p.MaxDelay().Milliseconds(),
			Current:    p.CurrentTrack(),
			Active:     active[p],
		})
	}
	return out
}

func distinct(ps []*playlist.Playlist) []*playlist.Playlist {
	seen := make(map[*playlist.Playlist]bool, len(ps))
	out := make([]*playlist.Playlist, 0, len(ps))
	for _, p := range ps {
		if p != nil && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
