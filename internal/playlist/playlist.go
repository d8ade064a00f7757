/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist holds the self-shuffling track lists bound to ambience rules.
package playlist

import (
	"math/rand"
	"time"
)

// minShuffleLen is the shortest list that gets reshuffled on wrap.
const minShuffleLen = 3

// Options carries the per-rule playback parameters echoed into a playlist.
type Options struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	Positional bool
	Seed       int64 // 0 seeds from the clock
}

// Playlist is an ordered, self-shuffling group of interchangeable tracks for
// one soundscape. Membership is fixed at construction; only the order and
// the cursor change. A Playlist is not safe for concurrent use; the ambience
// orchestrator is its single owner.
type Playlist struct {
	name   string
	tracks []string
	index  int
	opts   Options
	rng    *rand.Rand
}

// New creates a playlist over tracks. Lists of three or more tracks start in
// shuffled order.
func New(name string, tracks []string, opts Options) *Playlist {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.MinDelay < 0 {
		opts.MinDelay = 0
	}
	if opts.MaxDelay < 0 {
		opts.MaxDelay = 0
	}

	p := &Playlist{
		name:   name,
		tracks: append([]string(nil), tracks...),
		opts:   opts,
		rng:    rand.New(rand.NewSource(seed)),
	}
	if len(p.tracks) >= minShuffleLen {
		p.rng.Shuffle(len(p.tracks), func(i, j int) {
			p.tracks[i], p.tracks[j] = p.tracks[j], p.tracks[i]
		})
	}
	return p
}

// Name returns the track folder name the playlist was built from.
func (p *Playlist) Name() string { return p.name }

// Len returns the number of tracks.
func (p *Playlist) Len() int { return len(p.tracks) }

// Positional reports whether tracks play as 3D sources.
func (p *Playlist) Positional() bool { return p.opts.Positional }

// MinDelay returns the shortest gap between plays.
func (p *Playlist) MinDelay() time.Duration { return p.opts.MinDelay }

// MaxDelay returns the longest gap between plays.
func (p *Playlist) MaxDelay() time.Duration { return p.opts.MaxDelay }

// Tracks returns a copy of the current play order.
func (p *Playlist) Tracks() []string {
	return append([]string(nil), p.tracks...)
}

// CurrentTrack returns the track under the cursor without advancing.
func (p *Playlist) CurrentTrack() string {
	if len(p.tracks) == 0 {
		return ""
	}
	return p.tracks[p.index]
}

// NextTrack advances the cursor circularly and returns the new current track.
// Wrapping to the start reshuffles lists of three or more tracks.
func (p *Playlist) NextTrack() string {
	if len(p.tracks) == 0 {
		return ""
	}
	p.index++
	if p.index >= len(p.tracks) {
		p.index = 0
		if len(p.tracks) >= minShuffleLen {
			p.reshuffle()
		}
	}
	return p.tracks[p.index]
}

// reshuffle runs Fisher-Yates over the list and then makes sure the track
// that just finished is not the first one played again.
func (p *Playlist) reshuffle() {
	last := p.tracks[len(p.tracks)-1]
	for i := len(p.tracks) - 1; i > 0; i-- {
		j := p.rng.Intn(i + 1)
		p.tracks[i], p.tracks[j] = p.tracks[j], p.tracks[i]
	}
	if p.tracks[0] == last {
		n := len(p.tracks) - 1
		p.tracks[0], p.tracks[n] = p.tracks[n], p.tracks[0]
	}
}

// NextDelay draws the silent gap before the next play, uniform in
// [MinDelay, MaxDelay]. Without a usable MaxDelay the gap is MinDelay.
func (p *Playlist) NextDelay() time.Duration {
	lo, hi := p.opts.MinDelay, p.opts.MaxDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.rng.Int63n(int64(hi-lo)+1))
}
