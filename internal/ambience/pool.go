/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ambience

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_ambience/internal/audio"
	"github.com/friendsincode/grimnir_ambience/internal/playlist"
	"github.com/friendsincode/grimnir_ambience/internal/telemetry"
)

// DefaultPoolSize is the number of slots in the reference pool.
const DefaultPoolSize = 10

// ReconcileResult counts what a reconcile pass changed.
type ReconcileResult struct {
	Evicted  int `json:"evicted"`
	Assigned int `json:"assigned"`
	Resumed  int `json:"resumed"`
	Busy     int `json:"busy"`
	Dropped  int `json:"dropped"`
}

// Changed reports whether the pass queued any work.
func (r ReconcileResult) Changed() bool {
	return r.Evicted+r.Assigned+r.Resumed > 0
}

// Pool is a fixed set of slots. It is driven by a single goroutine; the
// orchestrator serializes access.
type Pool struct {
	slots  []*Slot
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// NewPool creates size idle slots, each with its own voice from dev.
func NewPool(size int, dev audio.Device, cfg SlotConfig, logger zerolog.Logger) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("component", "slot_pool").Logger(),
	}
	p.slots = make([]*Slot, size)
	for i := range p.slots {
		p.slots[i] = newSlot(ctx, i, dev, cfg, p.logger)
	}
	p.recordStates()
	return p
}

// Size returns the slot count.
func (p *Pool) Size() int { return len(p.slots) }

// Slot returns slot i.
func (p *Pool) Slot(i int) *Slot { return p.slots[i] }

// Reconcile moves the pool toward playing exactly the playlists in active.
// Slots heading to a playlist no longer active are faded out, and active
// playlists nothing is heading to get a slot. Running it twice with the same
// input queues nothing the second time.
func (p *Pool) Reconcile(active []*playlist.Playlist) ReconcileResult {
	var res ReconcileResult

	want := make(map[*playlist.Playlist]bool, len(active))
	for _, pl := range active {
		if pl != nil {
			want[pl] = true
		}
	}

	for _, s := range p.slots {
		if t := s.Target(); t != nil && !want[t] {
			s.QueueChange(nil)
			res.Evicted++
		}
	}

	targeted := make(map[*playlist.Playlist]bool, len(p.slots))
	for _, s := range p.slots {
		if t := s.Target(); t != nil {
			targeted[t] = true
		}
	}

	for _, pl := range active {
		if pl == nil || targeted[pl] {
			continue
		}
		targeted[pl] = true

		if s := p.boundTo(pl); s != nil {
			if s.Target() == nil {
				// Fading out with nowhere to go: turn it back around.
				s.QueueChange(pl)
				res.Resumed++
			} else {
				// Still fading pl out before swapping; pick it up once it settles.
				res.Busy++
			}
			continue
		}

		s := p.firstIdle()
		if s == nil {
			res.Dropped++
			p.logger.Warn().Str("playlist", pl.Name()).Msg("no idle slot, playlist dropped")
			continue
		}
		if err := s.Assign(pl); err != nil {
			p.logger.Error().Err(err).Int("slot", s.ID()).Msg("assign playlist")
			continue
		}
		res.Assigned++
	}

	p.recordActions(res)
	p.recordStates()
	return res
}

func (p *Pool) boundTo(pl *playlist.Playlist) *Slot {
	for _, s := range p.slots {
		if s.State() != StateIdle && s.Playlist() == pl {
			return s
		}
	}
	return nil
}

func (p *Pool) firstIdle() *Slot {
	for _, s := range p.slots {
		if s.State() == StateIdle {
			return s
		}
	}
	return nil
}

// Tick advances every slot by dt and reports how many fade-outs completed,
// whether the slot went idle or swapped to its queued playlist.
func (p *Pool) Tick(dt time.Duration, master float64, listener audio.Vec3) int {
	env := tickEnv{master: master, listener: listener}
	settled := 0
	for _, s := range p.slots {
		wasFadingOut := s.State() == StateFadingOut
		s.tick(dt, env)
		if wasFadingOut && s.State() != StateFadingOut {
			settled++
		}
	}
	p.recordStates()
	return settled
}

// Status returns a view of every slot.
func (p *Pool) Status() []SlotStatus {
	out := make([]SlotStatus, len(p.slots))
	for i, s := range p.slots {
		out[i] = s.status()
	}
	return out
}

// Counts returns the number of slots per state.
func (p *Pool) Counts() map[State]int {
	counts := make(map[State]int, 4)
	for _, s := range p.slots {
		counts[s.State()]++
	}
	return counts
}

// Close stops every slot and releases every buffer, including ones still loading.
func (p *Pool) Close() {
	p.cancel()
	for _, s := range p.slots {
		s.close()
	}
	p.recordStates()
	p.logger.Info().Msg("slot pool closed")
}

func (p *Pool) recordStates() {
	counts := p.Counts()
	for _, st := range []State{StateIdle, StateFadingIn, StatePlaying, StateFadingOut} {
		telemetry.SlotsByState.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
}

func (p *Pool) recordActions(res ReconcileResult) {
	add := func(action string, n int) {
		if n > 0 {
			telemetry.ReconcileActions.WithLabelValues(action).Add(float64(n))
		}
	}
	add("evict", res.Evicted)
	add("assign", res.Assigned)
	add("resume", res.Resumed)
	add("busy", res.Busy)
	add("drop", res.Dropped)
}
