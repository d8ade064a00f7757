/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Decodable reports whether the devices can decode a file with this name.
// Track discovery uses it so a folder of unplayable files counts as empty.
func Decodable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".mp3", ".ogg":
		return true
	default:
		return false
	}
}

// decode turns the contents of path into 16-bit PCM.
func decode(path string, raw []byte) (pcmClip, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return parseWAV(raw)
	case ".mp3":
		return decodeMP3(raw)
	case ".ogg":
		return decodeVorbis(raw)
	default:
		return pcmClip{}, fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// decodeMP3 uses go-mp3, which always yields 16-bit little-endian stereo.
func decodeMP3(raw []byte) (pcmClip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return pcmClip{}, fmt.Errorf("%w: mp3: %v", ErrUnsupportedFormat, err)
	}
	data, err := io.ReadAll(dec)
	if err != nil {
		return pcmClip{}, fmt.Errorf("%w: mp3: %v", ErrUnsupportedFormat, err)
	}
	return pcmClip{SampleRate: dec.SampleRate(), Channels: 2, BitsPerSample: 16, Data: data}, nil
}

func decodeVorbis(raw []byte) (pcmClip, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(raw))
	if err != nil {
		return pcmClip{}, fmt.Errorf("%w: vorbis: %v", ErrUnsupportedFormat, err)
	}
	return pcmClip{
		SampleRate:    format.SampleRate,
		Channels:      format.Channels,
		BitsPerSample: 16,
		Data:          floatToPCM16(samples),
	}, nil
}

// floatToPCM16 converts interleaved [-1, 1] samples to 16-bit little endian.
func floatToPCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		n := int16(math.Round(v * math.MaxInt16))
		out[2*i] = byte(n)
		out[2*i+1] = byte(n >> 8)
	}
	return out
}
