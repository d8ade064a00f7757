/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rules matches declarative ambience rules against world snapshots.
package rules

import (
	"errors"
	"fmt"

	"github.com/friendsincode/grimnir_ambience/internal/playlist"
	"github.com/friendsincode/grimnir_ambience/internal/world"
)

// ErrEmptySet marks a set field that is present but lists no values.
var ErrEmptySet = errors.New("set field has no values")

// IntSet is an optional set of integers. A nil set is unset and matches
// anything; a non-nil empty set matches nothing.
type IntSet []int

// Contains reports whether v is a member.
func (s IntSet) Contains(v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Rule is a declarative filter selecting when a soundscape applies. Every
// predicate is optional: nil means wildcard. Rules are immutable once loaded.
type Rule struct {
	Name string `yaml:"name" json:"name"`

	Night         *bool `yaml:"night,omitempty" json:"night,omitempty"`
	Interior      *bool `yaml:"interior,omitempty" json:"interior,omitempty"`
	Dungeon       *bool `yaml:"dungeon,omitempty" json:"dungeon,omitempty"`
	DungeonCastle *bool `yaml:"dungeon_castle,omitempty" json:"dungeon_castle,omitempty"`
	StartMenu     *bool `yaml:"start_menu,omitempty" json:"start_menu,omitempty"`
	Combat        *bool `yaml:"combat,omitempty" json:"combat,omitempty"`
	Swimming      *bool `yaml:"swimming,omitempty" json:"swimming,omitempty"`
	Submerged     *bool `yaml:"submerged,omitempty" json:"submerged,omitempty"`
	BuildingOpen  *bool `yaml:"building_open,omitempty" json:"building_open,omitempty"`

	LocationType    IntSet `yaml:"location_type,omitempty" json:"location_type,omitempty"`
	BuildingType    IntSet `yaml:"building_type,omitempty" json:"building_type,omitempty"`
	WeatherType     IntSet `yaml:"weather_type,omitempty" json:"weather_type,omitempty"`
	FactionID       IntSet `yaml:"faction_id,omitempty" json:"faction_id,omitempty"`
	ClimateIndex    IntSet `yaml:"climate,omitempty" json:"climate,omitempty"`
	RegionIndex     IntSet `yaml:"region,omitempty" json:"region,omitempty"`
	DungeonType     IntSet `yaml:"dungeon_type,omitempty" json:"dungeon_type,omitempty"`
	BuildingQuality IntSet `yaml:"building_quality,omitempty" json:"building_quality,omitempty"`
	Season          IntSet `yaml:"season,omitempty" json:"season,omitempty"`
	Month           IntSet `yaml:"month,omitempty" json:"month,omitempty"`

	// Playback parameters, carried into the bound playlist.
	Positional bool    `yaml:"positional,omitempty" json:"positional,omitempty"`
	MinDelay   float64 `yaml:"min_delay,omitempty" json:"min_delay,omitempty"` // seconds
	MaxDelay   float64 `yaml:"max_delay,omitempty" json:"max_delay,omitempty"` // seconds
}

type boolField struct {
	name  string
	want  *bool
	value func(world.Snapshot) bool
}

type setField struct {
	name  string
	set   IntSet
	value func(world.Snapshot) int
}

func (r *Rule) boolFields() []boolField {
	return []boolField{
		{"night", r.Night, func(s world.Snapshot) bool { return s.Night }},
		{"interior", r.Interior, func(s world.Snapshot) bool { return s.Interior }},
		{"dungeon", r.Dungeon, func(s world.Snapshot) bool { return s.Dungeon }},
		{"dungeon_castle", r.DungeonCastle, func(s world.Snapshot) bool { return s.DungeonCastle }},
		{"start_menu", r.StartMenu, func(s world.Snapshot) bool { return s.StartMenu }},
		{"combat", r.Combat, func(s world.Snapshot) bool { return s.Combat }},
		{"swimming", r.Swimming, func(s world.Snapshot) bool { return s.Swimming }},
		{"submerged", r.Submerged, func(s world.Snapshot) bool { return s.Submerged }},
		{"building_open", r.BuildingOpen, func(s world.Snapshot) bool { return s.BuildingOpen }},
	}
}

func (r *Rule) setFields() []setField {
	return []setField{
		{"location_type", r.LocationType, func(s world.Snapshot) int { return s.LocationType }},
		{"building_type", r.BuildingType, func(s world.Snapshot) int { return s.BuildingType }},
		{"weather_type", r.WeatherType, func(s world.Snapshot) int { return s.WeatherType }},
		{"faction_id", r.FactionID, func(s world.Snapshot) int { return s.FactionID }},
		{"climate", r.ClimateIndex, func(s world.Snapshot) int { return s.ClimateIndex }},
		{"region", r.RegionIndex, func(s world.Snapshot) int { return s.RegionIndex }},
		{"dungeon_type", r.DungeonType, func(s world.Snapshot) int { return s.DungeonType }},
		{"building_quality", r.BuildingQuality, func(s world.Snapshot) int { return s.BuildingQuality }},
		{"season", r.Season, func(s world.Snapshot) int { return s.Season }},
		{"month", r.Month, func(s world.Snapshot) int { return s.Month }},
	}
}

// Matches reports whether every populated predicate holds for snap.
func (r *Rule) Matches(snap world.Snapshot) bool {
	for _, f := range r.boolFields() {
		if f.want != nil && *f.want != f.value(snap) {
			return false
		}
	}
	for _, f := range r.setFields() {
		if f.set != nil && !f.set.Contains(f.value(snap)) {
			return false
		}
	}
	return true
}

// Validate checks the fields a loader must reject.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return errors.New("missing name")
	}
	for _, f := range r.setFields() {
		if f.set != nil && len(f.set) == 0 {
			return fmt.Errorf("%s: %w", f.name, ErrEmptySet)
		}
	}
	if r.MinDelay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("negative delay (min %.2f, max %.2f)", r.MinDelay, r.MaxDelay)
	}
	if r.MaxDelay != 0 && r.MaxDelay < r.MinDelay {
		return fmt.Errorf("max_delay %.2f below min_delay %.2f", r.MaxDelay, r.MinDelay)
	}
	return nil
}

// Populated returns the names of the predicates the rule constrains.
func (r *Rule) Populated() []string {
	var out []string
	for _, f := range r.boolFields() {
		if f.want != nil {
			out = append(out, f.name)
		}
	}
	for _, f := range r.setFields() {
		if f.set != nil {
			out = append(out, f.name)
		}
	}
	return out
}

// Binding pairs a rule with the playlist it activates.
type Binding struct {
	Rule     Rule
	Playlist *playlist.Playlist
	Source   string // file the rule was read from
}

// Set is the immutable rule table owned by the orchestrator.
type Set struct {
	bindings []Binding
}

// NewSet builds a rule table. The slice is copied.
func NewSet(bindings []Binding) *Set {
	return &Set{bindings: append([]Binding(nil), bindings...)}
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bindings)
}

// Bindings returns a copy of the rule table.
func (s *Set) Bindings() []Binding {
	if s == nil {
		return nil
	}
	return append([]Binding(nil), s.bindings...)
}

// Playlists returns every distinct playlist in table order.
func (s *Set) Playlists() []*playlist.Playlist {
	if s == nil {
		return nil
	}
	seen := make(map[*playlist.Playlist]bool, len(s.bindings))
	var out []*playlist.Playlist
	for _, b := range s.bindings {
		if b.Playlist != nil && !seen[b.Playlist] {
			seen[b.Playlist] = true
			out = append(out, b.Playlist)
		}
	}
	return out
}

// Match returns the bindings whose rule matches snap, in table order.
// Bindings without a playlist never match.
func (s *Set) Match(snap world.Snapshot) []Binding {
	if s == nil {
		return nil
	}
	var out []Binding
	for i := range s.bindings {
		b := &s.bindings[i]
		if b.Playlist != nil && b.Rule.Matches(snap) {
			out = append(out, *b)
		}
	}
	return out
}

// Evaluate returns the playlists of every rule matching snap, in table order.
// A playlist shared by two matching rules appears twice.
func Evaluate(set *Set, snap world.Snapshot) []*playlist.Playlist {
	var active []*playlist.Playlist
	for _, b := range set.Match(snap) {
		active = append(active, b.Playlist)
	}
	return active
}
