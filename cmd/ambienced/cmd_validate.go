/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_ambience/internal/ruleset"
)

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the rule set and report problems",
	Long:  "Load every rule file under the rules directory, print what was loaded and why anything was skipped. Exits non-zero when no usable rule remains.",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	_, report, err := loadRules()
	if validateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return fmt.Errorf("encode report: %w", encErr)
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}
	return err
}

func printReport(w io.Writer, report ruleset.Report) {
	fmt.Fprintf(w, "files:     %d\n", report.Files)
	fmt.Fprintf(w, "rules:     %d\n", report.Rules)
	fmt.Fprintf(w, "playlists: %d\n", report.Playlists)

	if len(report.Skipped) > 0 {
		fmt.Fprintf(w, "\nskipped (%d):\n", len(report.Skipped))
		for _, d := range report.Skipped {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
	if len(report.Warnings) > 0 {
		fmt.Fprintf(w, "\nwarnings (%d):\n", len(report.Warnings))
		for _, d := range report.Warnings {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
}
