/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ambience

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_ambience/internal/audio"
	"github.com/friendsincode/grimnir_ambience/internal/telemetry"
)

// loadRequest is an in-flight buffer load owned by one slot. The result
// fields are written once by the loader goroutine and become readable when
// done is closed.
type loadRequest struct {
	id     string
	path   string
	cancel context.CancelFunc
	done   chan struct{}

	buf audio.Buffer
	err error
}

func startLoad(parent context.Context, dev audio.Device, path string) *loadRequest {
	ctx, cancel := context.WithCancel(parent)
	r := &loadRequest{
		id:     uuid.NewString(),
		path:   path,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		r.buf, r.err = dev.Load(ctx, path)
	}()
	return r
}

// ready reports whether the load has resolved, without blocking.
func (r *loadRequest) ready() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// supersede abandons the request. Whatever buffer it eventually produces is
// released instead of played.
func (r *loadRequest) supersede(logger zerolog.Logger) {
	r.cancel()
	telemetry.TrackLoads.WithLabelValues("superseded").Inc()
	go func() {
		<-r.done
		if r.buf == nil {
			return
		}
		if err := r.buf.Release(); err != nil {
			logger.Debug().Err(err).Str("request_id", r.id).Msg("release superseded buffer")
		}
	}()
}
