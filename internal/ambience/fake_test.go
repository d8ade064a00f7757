/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ambience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_ambience/internal/audio"
)

// fakeDevice records loads and releases. Loads for paths in fail return
// the error; loads for paths with a gate block until the gate is closed,
// ignoring cancellation, so late buffers can be observed.
type fakeDevice struct {
	mu       sync.Mutex
	loads    []string
	released []string
	fail     map[string]error
	gates    map[string]chan struct{}
	voices   []*fakeVoice
	listener audio.Vec3
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		fail:  make(map[string]error),
		gates: make(map[string]chan struct{}),
	}
}

func (d *fakeDevice) Load(_ context.Context, path string) (audio.Buffer, error) {
	d.mu.Lock()
	d.loads = append(d.loads, path)
	err := d.fail[path]
	gate := d.gates[path]
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &fakeBuffer{path: path, dev: d}, nil
}

func (d *fakeDevice) NewVoice() audio.Voice {
	v := &fakeVoice{}
	d.voices = append(d.voices, v)
	return v
}

func (d *fakeDevice) SetListener(pos audio.Vec3) { d.listener = pos }

func (d *fakeDevice) Close() error { return nil }

func (d *fakeDevice) gate(path string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan struct{})
	d.gates[path] = ch
	return ch
}

func (d *fakeDevice) failWith(path string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[path] = err
}

func (d *fakeDevice) loaded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.loads...)
}

func (d *fakeDevice) releasedPaths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.released...)
}

type fakeBuffer struct {
	path     string
	dev      *fakeDevice
	released bool
}

func (b *fakeBuffer) Path() string { return b.path }

func (b *fakeBuffer) Release() error {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	if b.released {
		return audio.ErrReleased
	}
	b.released = true
	b.dev.released = append(b.dev.released, b.path)
	return nil
}

type fakeVoice struct {
	current  audio.Buffer
	at       *audio.Vec3
	plays    int
	finished bool
	volume   float64
}

func (v *fakeVoice) Play(buf audio.Buffer, at *audio.Vec3) error {
	v.current = buf
	v.at = at
	v.plays++
	v.finished = false
	return nil
}

func (v *fakeVoice) Stop() { v.current = nil }

func (v *fakeVoice) SetVolume(vol float64) { v.volume = vol }

func (v *fakeVoice) Finished() bool { return v.current != nil && v.finished }

// settle waits for the slot's in-flight load to resolve.
func settle(t *testing.T, s *Slot) {
	t.Helper()
	if s.load == nil {
		return
	}
	select {
	case <-s.load.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("slot %d: load of %s did not resolve", s.ID(), s.load.path)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
