/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ruleset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_ambience/internal/rules"
	"github.com/friendsincode/grimnir_ambience/internal/world"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixture(t *testing.T) Options {
	t.Helper()
	root := t.TempDir()
	rulesDir := filepath.Join(root, "rules")
	tracks := filepath.Join(root, "tracks")

	writeFile(t, filepath.Join(tracks, "night_crickets", "c1.wav"), "x")
	writeFile(t, filepath.Join(tracks, "night_crickets", "c2.wav"), "x")
	writeFile(t, filepath.Join(tracks, "night_crickets", "notes.txt"), "x")
	writeFile(t, filepath.Join(tracks, "dungeon_drips", "deep", "d1.ogg"), "x")
	if err := os.MkdirAll(filepath.Join(tracks, "empty_folder"), 0o755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(rulesDir, "10-outdoors.yaml"), `
- name: night_crickets
  night: true
  dungeon: false
  climate: [226, 227]
  min_delay: 5
  max_delay: 12
- name: missing_folder
  night: true
- night: false
- name: empty_folder
- name: night_crickets
  month: []
`)
	writeFile(t, filepath.Join(rulesDir, "20-dungeon.json"), `[
  {"name": "dungeon_drips", "dungeon": true, "positional": true, "min_delay": 2},
  {"name": "night_crickets", "interior": false, "min_delay": 1}
]`)
	writeFile(t, filepath.Join(rulesDir, "30-broken.yml"), "- name: [unterminated\n")
	writeFile(t, filepath.Join(rulesDir, "README.md"), "ignored")

	return Options{RulesDir: rulesDir, TracksRoot: tracks, Seed: 11}
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	set, report, err := New(fixture(t), zerolog.Nop()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if report.Files != 3 {
		t.Errorf("Files = %d, want 3", report.Files)
	}
	if report.Rules != 3 || set.Len() != 3 {
		t.Errorf("Rules = %d (set %d), want 3", report.Rules, set.Len())
	}
	if report.Playlists != 2 {
		t.Errorf("Playlists = %d, want 2", report.Playlists)
	}

	reasons := make([]string, 0, len(report.Skipped))
	for _, d := range report.Skipped {
		reasons = append(reasons, d.String())
	}
	joined := strings.Join(reasons, "\n")
	for _, want := range []string{"missing_folder", "missing name", "empty_folder", "month", "30-broken.yml"} {
		if !strings.Contains(joined, want) {
			t.Errorf("skip report missing %q:\n%s", want, joined)
		}
	}
	if len(report.Skipped) != 5 {
		t.Errorf("Skipped = %d, want 5:\n%s", len(report.Skipped), joined)
	}
	if len(report.Warnings) != 1 {
		t.Errorf("Warnings = %d, want 1 (conflicting parameters)", len(report.Warnings))
	}
}

func TestLoadBuildsSharedPlaylists(t *testing.T) {
	set, _, err := New(fixture(t), zerolog.Nop()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	b := set.Bindings()
	if b[0].Playlist != b[2].Playlist {
		t.Fatal("rules naming the same folder should share one playlist")
	}

	crickets := b[0].Playlist
	if crickets.Len() != 2 {
		t.Errorf("crickets has %d tracks, want 2 (non-audio ignored)", crickets.Len())
	}
	if crickets.MinDelay() != 5*time.Second || crickets.MaxDelay() != 12*time.Second {
		t.Errorf("crickets delays = %s..%s, want first rule's 5s..12s", crickets.MinDelay(), crickets.MaxDelay())
	}

	drips := b[1].Playlist
	if !drips.Positional() || drips.Len() != 1 {
		t.Errorf("drips positional=%v tracks=%d, want true/1 (nested folder walked)", drips.Positional(), drips.Len())
	}

	active := rules.Evaluate(set, world.Snapshot{Night: true, ClimateIndex: 226})
	if len(active) != 2 {
		t.Fatalf("night outdoors in climate 226 activated %d playlists, want 2", len(active))
	}
}

func TestLoadErrors(t *testing.T) {
	_, _, err := New(Options{RulesDir: filepath.Join(t.TempDir(), "nope")}, zerolog.Nop()).Load()
	if err == nil {
		t.Fatal("expected error for missing rules dir")
	}

	empty := t.TempDir()
	set, _, err := New(Options{RulesDir: empty, TracksRoot: empty}, zerolog.Nop()).Load()
	if !errors.Is(err, ErrNoRules) {
		t.Fatalf("empty dir: err = %v, want ErrNoRules", err)
	}
	if set == nil || set.Len() != 0 {
		t.Fatal("empty dir should still return an empty set")
	}
}

func TestLoadSkipsFolderWithoutDecodableTracks(t *testing.T) {
	root := t.TempDir()
	rulesDir := filepath.Join(root, "rules")
	tracks := filepath.Join(root, "tracks")

	writeFile(t, filepath.Join(tracks, "choir", "hymn.flac"), "x")
	writeFile(t, filepath.Join(tracks, "choir", "chant.opus"), "x")
	writeFile(t, filepath.Join(tracks, "wind", "gust.ogg"), "x")
	writeFile(t, filepath.Join(rulesDir, "a.yaml"), "- name: choir\n- name: wind\n")

	set, report, err := New(Options{RulesDir: rulesDir, TracksRoot: tracks}, zerolog.Nop()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if set.Len() != 1 || set.Bindings()[0].Rule.Name != "wind" {
		t.Fatalf("bindings = %+v, want only wind", set.Bindings())
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Name != "choir" ||
		!strings.Contains(report.Skipped[0].Reason, "no decodable audio") {
		t.Fatalf("skipped = %+v", report.Skipped)
	}
}

func TestLoadRejectsFoldersOutsideTracksRoot(t *testing.T) {
	root := t.TempDir()
	rulesDir := filepath.Join(root, "rules")
	tracks := filepath.Join(root, "tracks")

	writeFile(t, filepath.Join(root, "elsewhere", "secret.wav"), "x")
	writeFile(t, filepath.Join(tracks, "nested", "deep", "d1.wav"), "x")
	writeFile(t, filepath.Join(tracks, "wind", "gust.wav"), "x")
	writeFile(t, filepath.Join(rulesDir, "a.yaml"), `
- name: ../elsewhere
- name: nested/deep
- name: ".."
- name: `+filepath.Join(root, "elsewhere")+`
- name: wind
`)

	set, report, err := New(Options{RulesDir: rulesDir, TracksRoot: tracks}, zerolog.Nop()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("rules = %d, want 1 (wind)", set.Len())
	}
	if len(report.Skipped) != 4 {
		t.Fatalf("skipped = %d, want 4: %+v", len(report.Skipped), report.Skipped)
	}
	for _, d := range report.Skipped {
		if !strings.Contains(d.Reason, "directly under the tracks root") {
			t.Errorf("%s: unexpected reason", d)
		}
	}
}

func TestValidFolder(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"night_crickets", true},
		{"Dungeon Drips", true},
		{"..hidden", true},
		{"", false},
		{".", false},
		{"..", false},
		{"../elsewhere", false},
		{"a/b", false},
		{`a\b`, false},
		{"/abs", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validFolder(tt.name); got != tt.want {
				t.Errorf("validFolder(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
