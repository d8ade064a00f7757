/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package world describes the slice of host game state the ambience rules
// are evaluated against.
package world

import (
	"sync"

	"github.com/friendsincode/grimnir_ambience/internal/audio"
)

// Snapshot is a point-in-time summary of world state. It is a plain value:
// computed on demand, never persisted.
type Snapshot struct {
	Night         bool `json:"night" yaml:"night"`
	Interior      bool `json:"interior" yaml:"interior"`
	Dungeon       bool `json:"dungeon" yaml:"dungeon"`
	DungeonCastle bool `json:"dungeon_castle" yaml:"dungeon_castle"`
	StartMenu     bool `json:"start_menu" yaml:"start_menu"`
	Combat        bool `json:"combat" yaml:"combat"`
	Swimming      bool `json:"swimming" yaml:"swimming"`
	Submerged     bool `json:"submerged" yaml:"submerged"`
	BuildingOpen  bool `json:"building_open" yaml:"building_open"`

	LocationType    int `json:"location_type" yaml:"location_type"`
	BuildingType    int `json:"building_type" yaml:"building_type"`
	WeatherType     int `json:"weather_type" yaml:"weather_type"`
	FactionID       int `json:"faction_id" yaml:"faction_id"`
	ClimateIndex    int `json:"climate" yaml:"climate"`
	RegionIndex     int `json:"region" yaml:"region"`
	DungeonType     int `json:"dungeon_type" yaml:"dungeon_type"`
	BuildingQuality int `json:"building_quality" yaml:"building_quality"`
	Season          int `json:"season" yaml:"season"`
	Month           int `json:"month" yaml:"month"`

	Listener audio.Vec3 `json:"listener" yaml:"listener"`
}

// Provider exposes synchronous getters over live host state.
type Provider interface {
	IsNight() bool
	IsInterior() bool
	IsDungeon() bool
	IsDungeonCastle() bool
	IsStartMenu() bool
	IsCombat() bool
	IsSwimming() bool
	IsSubmerged() bool
	IsBuildingOpen() bool

	LocationType() int
	BuildingType() int
	WeatherType() int
	FactionID() int
	ClimateIndex() int
	RegionIndex() int
	DungeonType() int
	BuildingQuality() int
	Season() int
	Month() int

	ListenerPosition() audio.Vec3
}

// snapshotter is implemented by providers that can hand out a consistent copy
// in one step.
type snapshotter interface {
	Snapshot() Snapshot
}

// Capture builds a Snapshot from p.
func Capture(p Provider) Snapshot {
	if s, ok := p.(snapshotter); ok {
		return s.Snapshot()
	}
	return Snapshot{
		Night:           p.IsNight(),
		Interior:        p.IsInterior(),
		Dungeon:         p.IsDungeon(),
		DungeonCastle:   p.IsDungeonCastle(),
		StartMenu:       p.IsStartMenu(),
		Combat:          p.IsCombat(),
		Swimming:        p.IsSwimming(),
		Submerged:       p.IsSubmerged(),
		BuildingOpen:    p.IsBuildingOpen(),
		LocationType:    p.LocationType(),
		BuildingType:    p.BuildingType(),
		WeatherType:     p.WeatherType(),
		FactionID:       p.FactionID(),
		ClimateIndex:    p.ClimateIndex(),
		RegionIndex:     p.RegionIndex(),
		DungeonType:     p.DungeonType(),
		BuildingQuality: p.BuildingQuality(),
		Season:          p.Season(),
		Month:           p.Month(),
		Listener:        p.ListenerPosition(),
	}
}

// State is a Provider fed by pushes from the host process (HTTP, NATS, Redis).
type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewState returns a State holding initial.
func NewState(initial Snapshot) *State {
	return &State{snap: initial}
}

// Set replaces the whole snapshot.
func (s *State) Set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Update applies fn to the held snapshot.
func (s *State) Update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.mu.Unlock()
}

// Snapshot returns a copy of the held state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *State) read(fn func(Snapshot) int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.snap)
}

func (s *State) flag(fn func(Snapshot) bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.snap)
}

func (s *State) IsNight() bool         { return s.flag(func(v Snapshot) bool { return v.Night }) }
func (s *State) IsInterior() bool      { return s.flag(func(v Snapshot) bool { return v.Interior }) }
func (s *State) IsDungeon() bool       { return s.flag(func(v Snapshot) bool { return v.Dungeon }) }
func (s *State) IsDungeonCastle() bool { return s.flag(func(v Snapshot) bool { return v.DungeonCastle }) }
func (s *State) IsStartMenu() bool     { return s.flag(func(v Snapshot) bool { return v.StartMenu }) }
func (s *State) IsCombat() bool        { return s.flag(func(v Snapshot) bool { return v.Combat }) }
func (s *State) IsSwimming() bool      { return s.flag(func(v Snapshot) bool { return v.Swimming }) }
func (s *State) IsSubmerged() bool     { return s.flag(func(v Snapshot) bool { return v.Submerged }) }
func (s *State) IsBuildingOpen() bool  { return s.flag(func(v Snapshot) bool { return v.BuildingOpen }) }

func (s *State) LocationType() int    { return s.read(func(v Snapshot) int { return v.LocationType }) }
func (s *State) BuildingType() int    { return s.read(func(v Snapshot) int { return v.BuildingType }) }
func (s *State) WeatherType() int     { return s.read(func(v Snapshot) int { return v.WeatherType }) }
func (s *State) FactionID() int       { return s.read(func(v Snapshot) int { return v.FactionID }) }
func (s *State) ClimateIndex() int    { return s.read(func(v Snapshot) int { return v.ClimateIndex }) }
func (s *State) RegionIndex() int     { return s.read(func(v Snapshot) int { return v.RegionIndex }) }
func (s *State) DungeonType() int     { return s.read(func(v Snapshot) int { return v.DungeonType }) }
func (s *State) BuildingQuality() int { return s.read(func(v Snapshot) int { return v.BuildingQuality }) }
func (s *State) Season() int          { return s.read(func(v Snapshot) int { return v.Season }) }
func (s *State) Month() int           { return s.read(func(v Snapshot) int { return v.Month }) }

func (s *State) ListenerPosition() audio.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Listener
}
