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
)

func TestDecodable(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"gust.wav", true},
		{"GUST.WAV", true},
		{"crickets.mp3", true},
		{"drips.ogg", true},
		{"choir.flac", false},
		{"voice.opus", false},
		{"notes.txt", false},
		{"noext", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decodable(tt.name); got != tt.want {
				t.Errorf("Decodable(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestDecodeRejectsUndecodable(t *testing.T) {
	tests := []struct {
		name string
		path string
		raw  []byte
	}{
		{"flac", "choir.flac", []byte("fLaC\x00\x00\x00\x22")},
		{"empty mp3", "broken.mp3", nil},
		{"garbage ogg", "broken.ogg", []byte("definitely not an ogg stream")},
		{"ogg named wav", "gust.wav", []byte("OggS\x00\x02")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decode(tt.path, tt.raw); !errors.Is(err, ErrUnsupportedFormat) {
				t.Fatalf("decode(%s) = %v, want ErrUnsupportedFormat", tt.path, err)
			}
		})
	}
}

func TestDecodeDispatchesWAV(t *testing.T) {
	clip, err := decode("Wind.WAV", buildWAV(1, 8000, 1, 16, 800))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if clip.SampleRate != 8000 || clip.Channels != 1 || len(clip.Data) != 1600 {
		t.Errorf("clip = %d Hz %d ch %d bytes", clip.SampleRate, clip.Channels, len(clip.Data))
	}
}

func TestFloatToPCM16(t *testing.T) {
	out := floatToPCM16([]float32{0, 1, -1, 2, -0.5})
	want := []int16{0, 32767, -32767, 32767, -16384}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(out[2*i:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestNullDeviceLoadUndecodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gust.ogg")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewNullDevice().Load(context.Background(), path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Load = %v, want ErrUnsupportedFormat", err)
	}
}
