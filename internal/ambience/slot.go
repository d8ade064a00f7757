/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ambience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_ambience/internal/audio"
	"github.com/friendsincode/grimnir_ambience/internal/playlist"
	"github.com/friendsincode/grimnir_ambience/internal/telemetry"
)

var (
	// ErrSlotBusy indicates Assign was called on a slot that is not idle.
	ErrSlotBusy = errors.New("slot is not idle")

	// ErrNoPlaylist indicates Assign was called without a playlist.
	ErrNoPlaylist = errors.New("no playlist to assign")
)

// State is the crossfade state of a slot.
type State int

const (
	StateIdle State = iota
	StateFadingIn
	StatePlaying
	StateFadingOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFadingIn:
		return "fading_in"
	case StatePlaying:
		return "playing"
	case StateFadingOut:
		return "fading_out"
	default:
		return "unknown"
	}
}

// SlotConfig holds the timing and level shared by every slot.
type SlotConfig struct {
	FadeIn     time.Duration
	FadeOut    time.Duration
	Volume     float64       // configured ambience level, before the master volume
	RetryDelay time.Duration // floor for the gap after a failed load
}

// DefaultSlotConfig returns the reference timings.
func DefaultSlotConfig() SlotConfig {
	return SlotConfig{
		FadeIn:     2 * time.Second,
		FadeOut:    2 * time.Second,
		Volume:     1,
		RetryDelay: time.Second,
	}
}

// tickEnv is the per-tick input shared by all slots.
type tickEnv struct {
	master   float64
	listener audio.Vec3
}

// Slot is one pooled playback unit. It owns its voice and whatever buffer
// is loaded or loading, and releases the buffer on every exit path. Slots
// are driven by a single goroutine and are not safe for concurrent use.
type Slot struct {
	id     int
	cfg    SlotConfig
	dev    audio.Device
	voice  audio.Voice
	ctx    context.Context
	logger zerolog.Logger

	state       State
	playlist    *playlist.Playlist
	pending     *playlist.Playlist // swap applied when the fade-out completes
	fadeElapsed time.Duration
	started     bool // a buffer of the current binding has begun playing

	load     *loadRequest
	buffer   audio.Buffer
	track    string
	playing  bool
	waiting  bool
	delay    time.Duration
	position *audio.Vec3
	volume   float64

	transitions int
}

func newSlot(ctx context.Context, id int, dev audio.Device, cfg SlotConfig, logger zerolog.Logger) *Slot {
	return &Slot{
		id:     id,
		cfg:    cfg,
		dev:    dev,
		voice:  dev.NewVoice(),
		ctx:    ctx,
		logger: logger.With().Int("slot", id).Logger(),
	}
}

// ID returns the slot's index in the pool.
func (s *Slot) ID() int { return s.id }

// State returns the crossfade state.
func (s *Slot) State() State { return s.state }

// Playlist returns the bound playlist, nil when unclaimed.
func (s *Slot) Playlist() *playlist.Playlist { return s.playlist }

// Target returns the playlist the slot is heading toward: the queued swap
// while fading out, otherwise the bound playlist.
func (s *Slot) Target() *playlist.Playlist {
	switch s.state {
	case StateIdle:
		return nil
	case StateFadingOut:
		return s.pending
	default:
		return s.playlist
	}
}

// Assign binds an idle slot to p and starts loading its current track.
func (s *Slot) Assign(p *playlist.Playlist) error {
	if p == nil {
		return ErrNoPlaylist
	}
	if s.state != StateIdle {
		return ErrSlotBusy
	}
	s.bind(p)
	return nil
}

// QueueChange asks the slot to move to p, or to free itself when p is nil.
// A playing slot fades out first; a slot already fading out just records the
// swap for when the fade completes.
func (s *Slot) QueueChange(p *playlist.Playlist) {
	switch s.state {
	case StateIdle:
		if p != nil {
			s.bind(p)
		}
	case StateFadingOut:
		s.pending = p
	case StateFadingIn, StatePlaying:
		if p == s.playlist {
			return
		}
		s.pending = p
		s.beginFadeOut()
	}
}

func (s *Slot) bind(p *playlist.Playlist) {
	s.playlist = p
	s.pending = nil
	s.fadeElapsed = 0
	s.started = false
	s.waiting = false
	s.delay = 0
	s.setState(StateFadingIn)
	s.requestTrack(p.CurrentTrack())

	s.logger.Info().Str("playlist", p.Name()).Msg("slot assigned")
}

func (s *Slot) beginFadeOut() {
	level := s.envelope()
	s.setState(StateFadingOut)
	// Continue from the current level so an interrupted fade-in never jumps.
	s.fadeElapsed = time.Duration((1 - level) * float64(s.cfg.FadeOut))
	s.waiting = false
	if s.load != nil {
		s.load.supersede(s.logger)
		s.load = nil
	}
}

func (s *Slot) finishFadeOut() {
	s.releaseBuffer()
	next := s.pending
	s.pending = nil
	if next != nil {
		s.bind(next)
		return
	}
	if s.playlist != nil {
		s.logger.Info().Str("playlist", s.playlist.Name()).Msg("slot freed")
	}
	s.playlist = nil
	s.track = ""
	s.position = nil
	s.setState(StateIdle)
}

// tick advances the slot by dt. It reports whether the slot became idle.
func (s *Slot) tick(dt time.Duration, env tickEnv) bool {
	switch s.state {
	case StateIdle:
		return false

	case StateFadingOut:
		s.fadeElapsed += dt
		if s.fadeElapsed >= s.cfg.FadeOut {
			s.finishFadeOut()
			s.applyVolume(env)
			return s.state == StateIdle
		}

	case StateFadingIn, StatePlaying:
		audible := s.started
		s.advance(dt, env)
		if s.state == StateFadingIn && audible {
			s.fadeElapsed += dt
			if s.fadeElapsed >= s.cfg.FadeIn {
				s.fadeElapsed = s.cfg.FadeIn
				s.setState(StatePlaying)
			}
		}
	}

	s.applyVolume(env)
	return false
}

// advance runs the track-advance logic: collect a finished load, notice
// the end of a track, wait out the gap, then move to the next track.
func (s *Slot) advance(dt time.Duration, env tickEnv) {
	if s.load != nil {
		if !s.load.ready() {
			return
		}
		r := s.load
		s.load = nil
		r.cancel()

		if r.err != nil {
			telemetry.TrackLoads.WithLabelValues("error").Inc()
			s.logger.Warn().Err(r.err).Str("track", r.path).Msg("track load failed")
			s.startDelay(s.retryDelay())
			return
		}
		telemetry.TrackLoads.WithLabelValues("ok").Inc()
		s.buffer = r.buf
		s.play(env)
		return
	}

	if s.waiting {
		s.delay -= dt
		if s.delay > 0 {
			return
		}
		s.waiting = false
		s.delay = 0
		s.nextTrack(env)
		return
	}

	if s.playing && s.voice.Finished() {
		s.playing = false
		s.startDelay(s.playlist.NextDelay())
	}
}

func (s *Slot) nextTrack(env tickEnv) {
	if s.playlist.Len() < 2 && s.buffer != nil {
		s.play(env)
		return
	}
	s.releaseBuffer()
	s.requestTrack(s.playlist.NextTrack())
}

func (s *Slot) play(env tickEnv) {
	var at *audio.Vec3
	if s.playlist.Positional() {
		pos := env.listener
		at = &pos
	}
	if err := s.voice.Play(s.buffer, at); err != nil {
		s.logger.Warn().Err(err).Str("track", s.track).Msg("track playback failed")
		s.releaseBuffer()
		s.startDelay(s.retryDelay())
		return
	}
	s.position = at
	s.playing = true
	s.started = true
	s.logger.Debug().Str("track", s.track).Bool("positional", at != nil).Msg("track started")
}

func (s *Slot) requestTrack(path string) {
	if s.load != nil {
		s.load.supersede(s.logger)
	}
	s.track = path
	s.load = startLoad(s.ctx, s.dev, path)
}

func (s *Slot) startDelay(d time.Duration) {
	s.waiting = true
	s.delay = d
}

func (s *Slot) retryDelay() time.Duration {
	d := s.playlist.NextDelay()
	if d < s.cfg.RetryDelay {
		d = s.cfg.RetryDelay
	}
	return d
}

func (s *Slot) releaseBuffer() {
	s.voice.Stop()
	s.playing = false
	if s.buffer == nil {
		return
	}
	if err := s.buffer.Release(); err != nil {
		s.logger.Debug().Err(err).Str("track", s.track).Msg("release buffer")
	}
	s.buffer = nil
}

// envelope is the crossfade multiplier for the current state.
func (s *Slot) envelope() float64 {
	switch s.state {
	case StateFadingIn:
		if s.cfg.FadeIn <= 0 {
			return 1
		}
		return clamp01(float64(s.fadeElapsed) / float64(s.cfg.FadeIn))
	case StatePlaying:
		return 1
	case StateFadingOut:
		if s.cfg.FadeOut <= 0 {
			return 0
		}
		return clamp01(1 - float64(s.fadeElapsed)/float64(s.cfg.FadeOut))
	default:
		return 0
	}
}

func (s *Slot) applyVolume(env tickEnv) {
	s.volume = s.cfg.Volume * env.master * s.envelope()
	s.voice.SetVolume(s.volume)
}

func (s *Slot) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.transitions++
	telemetry.SlotTransitions.WithLabelValues(from.String(), to.String()).Inc()
	s.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("slot transition")
}

// close releases everything the slot holds and returns it to idle.
func (s *Slot) close() {
	if s.load != nil {
		s.load.supersede(s.logger)
		s.load = nil
	}
	s.releaseBuffer()
	s.playlist = nil
	s.pending = nil
	s.waiting = false
	s.setState(StateIdle)
}

// SlotStatus is a read-only view of a slot for status endpoints.
type SlotStatus struct {
	ID          int     `json:"id"`
	State       string  `json:"state"`
	Playlist    string  `json:"playlist,omitempty"`
	Pending     string  `json:"pending,omitempty"`
	Track       string  `json:"track,omitempty"`
	Loading     bool    `json:"loading"`
	Waiting     bool    `json:"waiting"`
	DelayMS     int64   `json:"delay_ms,omitempty"`
	Envelope    float64 `json:"envelope"`
	Volume      float64 `json:"volume"`
	Positional  bool    `json:"positional"`
	Transitions int     `json:"transitions"`
}

func (s *Slot) status() SlotStatus {
	st := SlotStatus{
		ID:          s.id,
		State:       s.state.String(),
		Track:       s.track,
		Loading:     s.load != nil,
		Waiting:     s.waiting,
		Envelope:    s.envelope(),
		Volume:      s.volume,
		Positional:  s.position != nil,
		Transitions: s.transitions,
	}
	if s.waiting {
		st.DelayMS = s.delay.Milliseconds()
	}
	if s.playlist != nil {
		st.Playlist = s.playlist.Name()
	}
	if s.pending != nil {
		st.Pending = s.pending.Name()
	}
	return st
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
