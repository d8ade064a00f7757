/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audio defines the playback primitives the ambience engine drives
// and ships two devices: an oto-backed local output and a silent null device.
package audio

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrUnsupportedFormat indicates a file the device cannot stream.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrReleased indicates a buffer was used after Release.
	ErrReleased = errors.New("audio buffer released")
)

// Vec3 is a world-space position.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Distance returns the euclidean distance between two points.
func (v Vec3) Distance(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Buffer is a loaded, playable track. The holder must call Release exactly
// once when the buffer is no longer needed.
type Buffer interface {
	Path() string
	Release() error
}

// Voice is a single playback channel. A voice plays at most one buffer at a time.
type Voice interface {
	// Play starts buf from the beginning. A non-nil at plays the buffer as a
	// positional source anchored at that point; nil plays it as a flat bed.
	Play(buf Buffer, at *Vec3) error
	Stop()
	SetVolume(v float64)
	// Finished reports whether the last started buffer played to its end.
	Finished() bool
}

// Device loads buffers and hands out voices.
type Device interface {
	// Load reads path into a playable buffer. It may block; callers run it
	// off the tick goroutine.
	Load(ctx context.Context, path string) (Buffer, error)
	NewVoice() Voice
	// SetListener moves the listener used to attenuate positional voices.
	SetListener(pos Vec3)
	Close() error
}

// Attenuation returns the inverse-distance gain for a source at distance d.
func Attenuation(d, refDistance float64) float64 {
	if refDistance <= 0 {
		refDistance = 1
	}
	if d <= refDistance {
		return 1
	}
	return refDistance / d
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
