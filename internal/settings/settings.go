/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package settings holds the user-adjustable master volume and keeps it in
// sync with a settings file on disk.
package settings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/grimnir_ambience/internal/events"
	"github.com/friendsincode/grimnir_ambience/internal/telemetry"
)

// ErrNoVolume indicates a settings file without a master_volume key.
var ErrNoVolume = errors.New("settings file has no master_volume")

// File is the on-disk settings document.
type File struct {
	MasterVolume *float64 `yaml:"master_volume" json:"master_volume"`
}

// Store is the live master volume. It is safe for concurrent use.
type Store struct {
	bits   atomic.Uint64
	bus    *events.Bus
	logger zerolog.Logger
}

// NewStore creates a store at the given volume. bus may be nil.
func NewStore(volume float64, bus *events.Bus, logger zerolog.Logger) *Store {
	s := &Store{
		bus:    bus,
		logger: logger.With().Str("component", "settings").Logger(),
	}
	s.bits.Store(math.Float64bits(clamp01(volume)))
	telemetry.MasterVolume.Set(clamp01(volume))
	return s
}

// MasterVolume returns the current master volume in [0, 1].
func (s *Store) MasterVolume() float64 {
	return math.Float64frombits(s.bits.Load())
}

// SetMasterVolume clamps v to [0, 1], stores it, and returns the stored value.
func (s *Store) SetMasterVolume(v float64) float64 {
	v = clamp01(v)
	old := math.Float64frombits(s.bits.Swap(math.Float64bits(v)))
	if old == v {
		return v
	}
	telemetry.MasterVolume.Set(v)
	s.logger.Info().Float64("master_volume", v).Msg("master volume changed")
	if s.bus != nil {
		s.bus.Publish(events.EventVolumeChanged, events.Payload{"master_volume": v})
	}
	return v
}

// LoadFile reads a settings file.
func LoadFile(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return f, nil
}

// Apply loads path and applies its master volume. A missing file is not an error.
func (s *Store) Apply(path string) error {
	f, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug().Str("path", path).Msg("no settings file")
		return nil
	}
	if err != nil {
		return err
	}
	if f.MasterVolume == nil {
		return fmt.Errorf("%s: %w", path, ErrNoVolume)
	}
	s.SetMasterVolume(*f.MasterVolume)
	return nil
}

// Watch applies path now and again whenever it changes, until ctx ends. The
// parent directory is watched so editors that replace the file are seen.
func (s *Store) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(path)

	if err := s.Apply(path); err != nil {
		s.logger.Warn().Err(err).Msg("apply settings")
	}

	s.logger.Info().Str("path", path).Msg("watching settings file")
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Apply(path); err != nil {
				s.logger.Warn().Err(err).Msg("reload settings")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Msg("settings watcher error")
		}
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
