/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

const wavFormatPCM = 1

// pcmClip is the payload of a RIFF/WAVE file.
type pcmClip struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Data          []byte
}

// Duration returns the playing time of the clip.
func (c pcmClip) Duration() time.Duration {
	frame := c.Channels * c.BitsPerSample / 8
	if frame <= 0 || c.SampleRate <= 0 {
		return 0
	}
	frames := len(c.Data) / frame
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// parseWAV reads the fmt and data chunks of an uncompressed PCM WAV file.
func parseWAV(b []byte) (pcmClip, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return pcmClip{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedFormat)
	}

	var clip pcmClip
	haveFmt := false
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(b) {
			// Truncated trailing chunk: keep what is there for data.
			size = len(b) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return pcmClip{}, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			format := binary.LittleEndian.Uint16(b[body : body+2])
			if format != wavFormatPCM {
				return pcmClip{}, fmt.Errorf("%w: wav encoding %d", ErrUnsupportedFormat, format)
			}
			clip.Channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			clip.BitsPerSample = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return pcmClip{}, fmt.Errorf("%w: data chunk before fmt", ErrUnsupportedFormat)
			}
			clip.Data = b[body : body+size]
			return clip, nil
		}

		off = body + size
		if size%2 == 1 {
			off++
		}
	}
	return pcmClip{}, fmt.Errorf("%w: missing data chunk", ErrUnsupportedFormat)
}
