/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// buildWAV returns a minimal RIFF/WAVE file with the given format and frames of silence.
func buildWAV(format uint16, rate, channels, bits, frames int) []byte {
	data := make([]byte, frames*channels*bits/8)
	out := make([]byte, 0, 44+len(data))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(36+len(data)))
	out = append(out, "WAVE"...)
	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, format)
	out = binary.LittleEndian.AppendUint16(out, uint16(channels))
	out = binary.LittleEndian.AppendUint32(out, uint32(rate))
	out = binary.LittleEndian.AppendUint32(out, uint32(rate*channels*bits/8))
	out = binary.LittleEndian.AppendUint16(out, uint16(channels*bits/8))
	out = binary.LittleEndian.AppendUint16(out, uint16(bits))
	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	return append(out, data...)
}

func TestParseWAV(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr bool
		wantDur time.Duration
	}{
		{"pcm stereo one second", buildWAV(1, 8000, 2, 16, 8000), false, time.Second},
		{"pcm mono half second", buildWAV(1, 8000, 1, 16, 4000), false, 500 * time.Millisecond},
		{"float encoding", buildWAV(3, 8000, 2, 32, 10), true, 0},
		{"not riff", []byte("OggS........"), true, 0},
		{"empty", nil, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip, err := parseWAV(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseWAV: %v", err)
			}
			if got := clip.Duration(); got != tt.wantDur {
				t.Errorf("Duration() = %s, want %s", got, tt.wantDur)
			}
		})
	}
}

func TestNullDeviceVoiceFinishesAfterClipLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wind.wav")
	if err := os.WriteFile(path, buildWAV(1, 8000, 2, 16, 16000), 0o644); err != nil {
		t.Fatal(err)
	}

	now := time.Unix(1000, 0)
	dev := &NullDevice{now: func() time.Time { return now }}

	buf, err := dev.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	voice := dev.NewVoice()
	if err := voice.Play(buf, nil); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if voice.Finished() {
		t.Fatal("voice finished immediately")
	}

	now = now.Add(2 * time.Second)
	if !voice.Finished() {
		t.Fatal("voice should finish after the 2s clip")
	}

	if err := buf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := buf.Release(); !errors.Is(err, ErrReleased) {
		t.Fatalf("second Release = %v, want ErrReleased", err)
	}
}

func TestNullDeviceLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewNullDevice().Load(ctx, "missing.wav"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Load with cancelled ctx = %v", err)
	}
}

func TestAttenuation(t *testing.T) {
	if got := Attenuation(2, 8); got != 1 {
		t.Errorf("inside ref distance = %v, want 1", got)
	}
	if got := Attenuation(16, 8); got != 0.5 {
		t.Errorf("twice ref distance = %v, want 0.5", got)
	}
	a := Vec3{X: 3, Y: 4}
	if d := a.Distance(Vec3{}); d != 5 {
		t.Errorf("Distance = %v, want 5", d)
	}
}
