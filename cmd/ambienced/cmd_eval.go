/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/grimnir_ambience/internal/rules"
	"github.com/friendsincode/grimnir_ambience/internal/world"
)

var evalSnapshot string

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate the rule set against a world snapshot",
	Long:  "Read a world snapshot from a YAML file, evaluate every rule against it and print the playlists that would be active.",
	RunE:  runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalSnapshot, "snapshot", "", "YAML file holding the world snapshot")
	_ = evalCmd.MarkFlagRequired("snapshot")
	rootCmd.AddCommand(evalCmd)
}

// evalMatch is one rule that matched the snapshot.
type evalMatch struct {
	Rule     string
	Source   string
	Playlist string
}

func runEval(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	snap, err := readSnapshot(evalSnapshot)
	if err != nil {
		return err
	}

	set, _, err := loadRules()
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	printMatches(cmd.OutOrStdout(), evaluateSnapshot(set, snap))
	return nil
}

// readSnapshot decodes a snapshot file. Missing keys keep their zero value.
func readSnapshot(path string) (world.Snapshot, error) {
	var snap world.Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("read snapshot: %w", err)
	}
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return snap, nil
}

// evaluateSnapshot lists matching rules in table order.
func evaluateSnapshot(set *rules.Set, snap world.Snapshot) []evalMatch {
	var out []evalMatch
	for _, b := range set.Match(snap) {
		out = append(out, evalMatch{Rule: b.Rule.Name, Source: b.Source, Playlist: b.Playlist.Name()})
	}
	return out
}

func printMatches(w io.Writer, matches []evalMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "no rule matches")
		return
	}

	seen := make(map[string]bool, len(matches))
	var active []string
	for _, m := range matches {
		name := m.Rule
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "%s (%s) -> %s\n", name, m.Source, m.Playlist)
		if !seen[m.Playlist] {
			seen[m.Playlist] = true
			active = append(active, m.Playlist)
		}
	}

	fmt.Fprintf(w, "\nactive playlists (%d):\n", len(active))
	for _, name := range active {
		fmt.Fprintf(w, "  %s\n", name)
	}
}
