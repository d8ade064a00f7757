/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// NullDevice accepts the same files as OtoDevice but produces no sound.
// Voices finish after the clip's real duration, so the engine behaves as it
// would on a sound card. Used for headless hosts and soak runs.
type NullDevice struct {
	now func() time.Time
}

// NewNullDevice returns a silent device driven by the wall clock.
func NewNullDevice() *NullDevice {
	return &NullDevice{now: time.Now}
}

func (d *NullDevice) Load(ctx context.Context, path string) (Buffer, error) {
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
	return &nullBuffer{path: path, length: clip.Duration()}, nil
}

func (d *NullDevice) NewVoice() Voice { return &nullVoice{now: d.now} }

func (d *NullDevice) SetListener(Vec3) {}

func (d *NullDevice) Close() error { return nil }

type nullBuffer struct {
	path   string
	length time.Duration

	mu       sync.Mutex
	released bool
}

func (b *nullBuffer) Path() string { return b.path }

func (b *nullBuffer) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrReleased
	}
	b.released = true
	return nil
}

type nullVoice struct {
	now func() time.Time

	mu      sync.Mutex
	started time.Time
	length  time.Duration
	active  bool
}

func (v *nullVoice) Play(buf Buffer, _ *Vec3) error {
	nb, ok := buf.(*nullBuffer)
	if !ok {
		return fmt.Errorf("%w: foreign buffer %T", ErrUnsupportedFormat, buf)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.started = v.now()
	v.length = nb.length
	v.active = true
	return nil
}

func (v *nullVoice) Stop() {
	v.mu.Lock()
	v.active = false
	v.mu.Unlock()
}

func (v *nullVoice) SetVolume(float64) {}

func (v *nullVoice) Finished() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active && v.now().Sub(v.started) >= v.length
}
