/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ruleset discovers rule files and their track folders on disk and
// turns them into the immutable rule table.
package ruleset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/grimnir_ambience/internal/audio"
	"github.com/friendsincode/grimnir_ambience/internal/playlist"
	"github.com/friendsincode/grimnir_ambience/internal/rules"
)

// ErrNoRules indicates loading finished without a single usable rule.
var ErrNoRules = errors.New("no usable ambience rules")

// Options locates the rule files and the track folders they reference.
type Options struct {
	RulesDir   string
	TracksRoot string
	Seed       int64 // non-zero makes playlist shuffles reproducible
}

// Diagnostic describes one skipped file or rule.
type Diagnostic struct {
	File   string `json:"file"`
	Index  int    `json:"index"` // position in the file, -1 for whole-file problems
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

func (d Diagnostic) String() string {
	if d.Index < 0 {
		return fmt.Sprintf("%s: %s", d.File, d.Reason)
	}
	if d.Name == "" {
		return fmt.Sprintf("%s[%d]: %s", d.File, d.Index, d.Reason)
	}
	return fmt.Sprintf("%s[%d] %q: %s", d.File, d.Index, d.Name, d.Reason)
}

// Report summarizes a load.
type Report struct {
	Files     int          `json:"files"`
	Rules     int          `json:"rules"`
	Playlists int          `json:"playlists"`
	Skipped   []Diagnostic `json:"skipped,omitempty"`
	Warnings  []Diagnostic `json:"warnings,omitempty"`
}

// Loader reads rule sets. It keeps the playlist cache for one load.
type Loader struct {
	opts   Options
	logger zerolog.Logger

	playlists map[string]*playlist.Playlist
	params    map[string]playlist.Options
}

// New creates a loader.
func New(opts Options, logger zerolog.Logger) *Loader {
	return &Loader{
		opts:   opts,
		logger: logger.With().Str("component", "ruleset").Logger(),
	}
}

// Load reads every rule file under RulesDir in name order. Malformed files
// and rules are skipped and reported; only an unreadable RulesDir or an
// empty result is an error.
func (l *Loader) Load() (*rules.Set, Report, error) {
	l.playlists = make(map[string]*playlist.Playlist)
	l.params = make(map[string]playlist.Options)

	var report Report
	files, err := ruleFiles(l.opts.RulesDir)
	if err != nil {
		return rules.NewSet(nil), report, fmt.Errorf("list rule files: %w", err)
	}

	var bindings []rules.Binding
	for _, file := range files {
		report.Files++
		got := l.loadFile(file, &report)
		bindings = append(bindings, got...)
	}

	report.Rules = len(bindings)
	report.Playlists = len(l.playlists)

	l.logger.Info().
		Int("files", report.Files).
		Int("rules", report.Rules).
		Int("playlists", report.Playlists).
		Int("skipped", len(report.Skipped)).
		Msg("ambience rules loaded")

	if len(bindings) == 0 {
		return rules.NewSet(nil), report, ErrNoRules
	}
	return rules.NewSet(bindings), report, nil
}

func (l *Loader) loadFile(file string, report *Report) []rules.Binding {
	rel := l.relName(file)

	raw, err := os.ReadFile(file)
	if err != nil {
		l.skip(report, Diagnostic{File: rel, Index: -1, Reason: err.Error()})
		return nil
	}

	// YAML is a superset of JSON, so .json rule files decode the same way.
	var records []rules.Rule
	if err := yaml.Unmarshal(raw, &records); err != nil {
		l.skip(report, Diagnostic{File: rel, Index: -1, Reason: fmt.Sprintf("parse: %v", err)})
		return nil
	}

	var out []rules.Binding
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			l.skip(report, Diagnostic{File: rel, Index: i, Name: rec.Name, Reason: err.Error()})
			continue
		}

		if !validFolder(rec.Name) {
			l.skip(report, Diagnostic{File: rel, Index: i, Name: rec.Name, Reason: "name must be a folder directly under the tracks root"})
			continue
		}

		pl, err := l.playlistFor(rec, rel, i, report)
		if err != nil {
			l.skip(report, Diagnostic{File: rel, Index: i, Name: rec.Name, Reason: err.Error()})
			continue
		}

		out = append(out, rules.Binding{Rule: rec, Playlist: pl, Source: rel})
	}
	return out
}

// playlistFor returns the shared playlist for a track folder, building it on
// first use. The first rule naming a folder decides its playback parameters.
func (l *Loader) playlistFor(rec rules.Rule, rel string, index int, report *Report) (*playlist.Playlist, error) {
	opts := playlist.Options{
		MinDelay:   seconds(rec.MinDelay),
		MaxDelay:   seconds(rec.MaxDelay),
		Positional: rec.Positional,
	}

	if pl, ok := l.playlists[rec.Name]; ok {
		if prev := l.params[rec.Name]; prev != opts {
			d := Diagnostic{File: rel, Index: index, Name: rec.Name,
				Reason: "playback parameters differ from the first rule using this folder; first rule wins"}
			report.Warnings = append(report.Warnings, d)
			l.logger.Warn().Str("rule", d.String()).Msg("conflicting playlist parameters")
		}
		return pl, nil
	}

	dir := filepath.Join(l.opts.TracksRoot, rec.Name)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("track folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("track folder %s is not a directory", dir)
	}

	tracks, err := trackFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan track folder: %w", err)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("track folder %s has no decodable audio files", dir)
	}

	if l.opts.Seed != 0 {
		opts.Seed = l.opts.Seed + int64(len(l.playlists))
	}
	pl := playlist.New(rec.Name, tracks, opts)
	opts.Seed = 0
	l.playlists[rec.Name] = pl
	l.params[rec.Name] = opts

	l.logger.Debug().Str("playlist", rec.Name).Int("tracks", len(tracks)).Msg("playlist discovered")
	return pl, nil
}

func (l *Loader) skip(report *Report, d Diagnostic) {
	report.Skipped = append(report.Skipped, d)
	l.logger.Warn().Str("rule", d.String()).Msg("skipping ambience rule")
}

func (l *Loader) relName(file string) string {
	if rel, err := filepath.Rel(l.opts.RulesDir, file); err == nil {
		return rel
	}
	return filepath.Base(file)
}

func ruleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isRuleFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// trackFiles walks a folder for files the audio devices can decode,
// returning sorted full paths.
func trackFiles(dir string) ([]string, error) {
	var tracks []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !audio.Decodable(d.Name()) {
			return nil
		}
		tracks = append(tracks, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(tracks)
	return tracks, nil
}

func isRuleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// validFolder reports whether name is a single folder directly under the
// tracks root.
func validFolder(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !filepath.IsAbs(name) && filepath.VolumeName(name) == ""
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
