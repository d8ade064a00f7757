/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_ambience/internal/eventbus"
	"github.com/friendsincode/grimnir_ambience/internal/events"
	"github.com/friendsincode/grimnir_ambience/internal/world"
)

var errNoBridge = errors.New("world source has no bridge")

var (
	pushSnapshot string
	pushEvent    string
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Publish a world snapshot to the configured bridge",
	Long:  "Publish a world snapshot read from a YAML file on the NATS or Redis world source, as a host process would. Useful for exercising a running engine.",
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().StringVar(&pushSnapshot, "snapshot", "", "YAML file holding the world snapshot (omit to send a bare trigger)")
	pushCmd.Flags().StringVar(&pushEvent, "event", string(events.EventWorldChanged), "event type to publish")
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	eventType := events.EventType(pushEvent)
	if !slices.Contains(events.TriggerEvents, eventType) {
		return fmt.Errorf("%w: %s", eventbus.ErrUnknownEvent, pushEvent)
	}

	var snap *world.Snapshot
	if pushSnapshot != "" {
		s, err := readSnapshot(pushSnapshot)
		if err != nil {
			return err
		}
		snap = &s
	}

	// The local state and bus only matter for receiving; push never runs the bridge.
	bridge, err := openBridge(world.NewState(world.Snapshot{}), events.NewBus())
	if err != nil {
		return fmt.Errorf("open world bridge: %w", err)
	}
	if bridge == nil {
		return fmt.Errorf("%w: %s (use POST /v1/world)", errNoBridge, cfg.WorldSource)
	}
	defer bridge.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := eventbus.NewMessage(eventType, snap, eventbus.NodeID())
	if err := bridge.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", pushEvent, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published %s (%s) via %s\n", msg.EventType, msg.MessageID, cfg.WorldSource)
	return nil
}
