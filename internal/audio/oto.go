/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hajimehoshi/oto/v2"
	"github.com/rs/zerolog"
)

// OtoConfig describes the output format of the local sound card.
type OtoConfig struct {
	SampleRate  int
	Channels    int
	RefDistance float64 // distance under which positional voices play at full gain
}

// DefaultOtoConfig returns CD-quality stereo output.
func DefaultOtoConfig() OtoConfig {
	return OtoConfig{SampleRate: 44100, Channels: 2, RefDistance: 8}
}

// OtoDevice plays decoded 16-bit PCM through the host sound card.
type OtoDevice struct {
	cfg    OtoConfig
	ctx    *oto.Context
	logger zerolog.Logger

	mu       sync.RWMutex
	listener Vec3
}

// NewOtoDevice opens the sound card. Only one device may exist per process.
func NewOtoDevice(cfg OtoConfig, logger zerolog.Logger) (*OtoDevice, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	ctx, ready, err := oto.NewContext(cfg.SampleRate, cfg.Channels, oto.FormatSignedInt16LE)
	if err != nil {
		return nil, fmt.Errorf("open audio context: %w", err)
	}
	<-ready

	logger = logger.With().Str("component", "oto-device").Logger()
	logger.Info().Int("sample_rate", cfg.SampleRate).Int("channels", cfg.Channels).Msg("audio output ready")

	return &OtoDevice{cfg: cfg, ctx: ctx, logger: logger}, nil
}

// Load decodes a WAV, MP3 or Ogg Vorbis file matching the device output format.
func (d *OtoDevice) Load(ctx context.Context, path string) (Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	clip, err := decode(path, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if clip.BitsPerSample != 16 || clip.SampleRate != d.cfg.SampleRate || clip.Channels != d.cfg.Channels {
		return nil, fmt.Errorf("%s: %w: %d Hz %d ch %d bit, device wants %d Hz %d ch 16 bit",
			path, ErrUnsupportedFormat, clip.SampleRate, clip.Channels, clip.BitsPerSample,
			d.cfg.SampleRate, d.cfg.Channels)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &pcmBuffer{path: path, clip: clip}, nil
}

// NewVoice returns an idle voice bound to this device.
func (d *OtoDevice) NewVoice() Voice {
	return &otoVoice{dev: d, volume: 1}
}

// SetListener moves the listener.
func (d *OtoDevice) SetListener(pos Vec3) {
	d.mu.Lock()
	d.listener = pos
	d.mu.Unlock()
}

func (d *OtoDevice) listenerPos() Vec3 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.listener
}

// Close suspends output.
func (d *OtoDevice) Close() error {
	return d.ctx.Suspend()
}

type pcmBuffer struct {
	path string

	mu       sync.Mutex
	clip     pcmClip
	released bool
}

func (b *pcmBuffer) Path() string { return b.path }

func (b *pcmBuffer) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrReleased
	}
	b.released = true
	b.clip.Data = nil
	return nil
}

func (b *pcmBuffer) pcm() (pcmClip, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return pcmClip{}, ErrReleased
	}
	return b.clip, nil
}

type otoVoice struct {
	dev *OtoDevice

	mu     sync.Mutex
	player oto.Player
	at     *Vec3
	volume float64
}

func (v *otoVoice) Play(buf Buffer, at *Vec3) error {
	pb, ok := buf.(*pcmBuffer)
	if !ok {
		return fmt.Errorf("%w: foreign buffer %T", ErrUnsupportedFormat, buf)
	}
	clip, err := pb.pcm()
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeLocked()
	if at != nil {
		pos := *at
		v.at = &pos
	} else {
		v.at = nil
	}
	v.player = v.dev.ctx.NewPlayer(bytes.NewReader(clip.Data))
	v.player.SetVolume(v.gainLocked())
	v.player.Play()
	return nil
}

func (v *otoVoice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeLocked()
}

func (v *otoVoice) SetVolume(vol float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.volume = clamp01(vol)
	if v.player != nil {
		v.player.SetVolume(v.gainLocked())
	}
}

func (v *otoVoice) Finished() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.player != nil && !v.player.IsPlaying()
}

func (v *otoVoice) gainLocked() float64 {
	if v.at == nil {
		return v.volume
	}
	d := v.dev.listenerPos().Distance(*v.at)
	return v.volume * Attenuation(d, v.dev.cfg.RefDistance)
}

func (v *otoVoice) closeLocked() {
	if v.player == nil {
		return
	}
	if err := v.player.Close(); err != nil {
		v.dev.logger.Debug().Err(err).Msg("close player")
	}
	v.player = nil
}
