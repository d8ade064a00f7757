/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/grimnir_ambience/internal/ambience"
	"github.com/friendsincode/grimnir_ambience/internal/audio"
	"github.com/friendsincode/grimnir_ambience/internal/config"
	"github.com/friendsincode/grimnir_ambience/internal/eventbus"
	"github.com/friendsincode/grimnir_ambience/internal/events"
	"github.com/friendsincode/grimnir_ambience/internal/logbuffer"
	"github.com/friendsincode/grimnir_ambience/internal/logging"
	"github.com/friendsincode/grimnir_ambience/internal/rules"
	"github.com/friendsincode/grimnir_ambience/internal/ruleset"
	"github.com/friendsincode/grimnir_ambience/internal/server"
	"github.com/friendsincode/grimnir_ambience/internal/settings"
	"github.com/friendsincode/grimnir_ambience/internal/telemetry"
	"github.com/friendsincode/grimnir_ambience/internal/version"
	"github.com/friendsincode/grimnir_ambience/internal/world"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "ambienced",
	Short:         "Grimnir Ambience - rule-driven ambient sound engine",
	Long:          "Grimnir Ambience watches world state, matches it against ambience rules and crossfades looping playlists through a fixed pool of playback slots.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ambience engine",
	Long:  "Start the ambience engine, the HTTP API, the world-state bridge and the settings watcher",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	for _, warning := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warning)
	}
	return nil
}

// loadRules reads the rule set named by the configuration.
func loadRules() (*rules.Set, ruleset.Report, error) {
	return ruleset.New(ruleset.Options{
		RulesDir:   cfg.RulesDir,
		TracksRoot: cfg.TracksRoot,
		Seed:       cfg.Seed,
	}, logger).Load()
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logs := logbuffer.New(logbuffer.DefaultCapacity)
	logger = logging.SetupCaptured(cfg.Environment, os.Stdout, logs)

	logger.Info().Str("version", version.Version).Msg("Grimnir Ambience starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "grimnir-ambience",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	set, _, err := loadRules()
	if err != nil {
		if !errors.Is(err, ruleset.ErrNoRules) {
			return fmt.Errorf("load rules: %w", err)
		}
		logger.Warn().Str("rules_dir", cfg.RulesDir).Msg("no usable ambience rules, engine stays silent")
	}

	dev := openDevice()
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Error().Err(err).Msg("close audio device")
		}
	}()

	bus := events.NewBus()
	state := world.NewState(world.Snapshot{})
	store := settings.NewStore(cfg.MasterVolume, bus, logger)

	pool := ambience.NewPool(cfg.PoolSize, dev, ambience.SlotConfig{
		FadeIn:     cfg.FadeIn,
		FadeOut:    cfg.FadeOut,
		Volume:     cfg.VolumeLevel,
		RetryDelay: cfg.RetryDelay,
	}, logger)
	orch := ambience.New(set, pool, dev, state, store, bus, ambience.Options{
		TickInterval: cfg.TickInterval,
		PollWorld:    cfg.PollWorld,
	}, logger)
	defer orch.Close()

	bridge, err := openBridge(state, bus)
	if err != nil {
		return fmt.Errorf("open world bridge: %w", err)
	}
	if bridge != nil {
		defer func() {
			if err := bridge.Close(); err != nil {
				logger.Error().Err(err).Msg("close world bridge")
			}
		}()
	}

	srv := server.New(orch, state, bus, store, logger)
	srv.SetLogBuffer(logs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.HTTPAddr()) })
	g.Go(func() error { return reloadOnHangup(gctx, orch) })
	if cfg.SettingsFile != "" {
		g.Go(func() error {
			if err := store.Watch(gctx, cfg.SettingsFile); err != nil {
				logger.Warn().Err(err).Msg("settings watcher stopped, master volume is fixed")
			}
			return nil
		})
	}
	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}

	err = g.Wait()
	logger.Info().Msg("shutting down gracefully...")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info().Msg("Grimnir Ambience stopped")
	return nil
}

// openDevice opens the configured audio backend. A sound card that cannot be
// opened falls back to the null device so the engine keeps its state machine.
func openDevice() audio.Device {
	if cfg.AudioBackend == config.AudioNull {
		logger.Info().Msg("audio output disabled (null device)")
		return audio.NewNullDevice()
	}

	dev, err := audio.NewOtoDevice(audio.OtoConfig{
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.Channels,
		RefDistance: cfg.RefDistance,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("audio output unavailable, falling back to null device")
		return audio.NewNullDevice()
	}
	return dev
}

// openBridge connects the configured external world source. The http source
// needs no bridge: snapshots arrive on POST /v1/world.
func openBridge(state *world.State, bus *events.Bus) (eventbus.Bridge, error) {
	switch cfg.WorldSource {
	case config.WorldNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Subject = cfg.NATSSubject
		natsCfg.Token = cfg.NATSToken
		return eventbus.NewNATSBridge(natsCfg, eventbus.NodeID(), state, bus, logger)

	case config.WorldRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		redisCfg.Channel = cfg.RedisChannel
		return eventbus.NewRedisBridge(redisCfg, eventbus.NodeID(), state, bus, logger), nil

	default:
		return nil, nil
	}
}

// reloadOnHangup re-reads the rule set on SIGHUP and swaps it into the
// orchestrator. A reload that yields no usable rule keeps the current table.
func reloadOnHangup(ctx context.Context, orch *ambience.Orchestrator) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			set, report, err := loadRules()
			if err != nil {
				logger.Error().Err(err).Msg("rule reload failed, keeping current rules")
				continue
			}
			orch.SetRules(ctx, set)
			logger.Info().Int("rules", report.Rules).Int("playlists", report.Playlists).Msg("rules reloaded")
		}
	}
}
