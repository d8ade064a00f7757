/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid wraps every validation failure from Load.
var ErrInvalid = errors.New("invalid configuration")

// AudioBackend selects the output device.
type AudioBackend string

const (
	AudioOto  AudioBackend = "oto"
	AudioNull AudioBackend = "null"
)

// WorldSource selects where world-state updates come from.
type WorldSource string

const (
	WorldHTTP  WorldSource = "http"
	WorldNATS  WorldSource = "nats"
	WorldRedis WorldSource = "redis"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// Content
	RulesDir     string
	TracksRoot   string
	SettingsFile string
	Seed         int64 // 0 seeds playlists from the clock

	// Engine
	PoolSize     int
	FadeIn       time.Duration
	FadeOut      time.Duration
	TickInterval time.Duration
	RetryDelay   time.Duration
	VolumeLevel  float64 // ambience level before the master volume
	MasterVolume float64 // initial master volume when no settings file is present
	PollWorld    bool

	// Audio output
	AudioBackend AudioBackend
	SampleRate   int
	Channels     int
	RefDistance  float64

	// World source
	WorldSource   WorldSource
	NATSURL       string
	NATSSubject   string
	NATSToken     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"AMBIENCE_ENV", "GRIMNIR_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"AMBIENCE_HTTP_BIND", "GRIMNIR_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:    getEnvIntAny([]string{"AMBIENCE_HTTP_PORT", "GRIMNIR_HTTP_PORT"}, 8090),

		RulesDir:     getEnvAny([]string{"AMBIENCE_RULES_DIR"}, "./rules"),
		TracksRoot:   getEnvAny([]string{"AMBIENCE_TRACKS_ROOT", "GRIMNIR_MEDIA_ROOT"}, "./tracks"),
		SettingsFile: getEnvAny([]string{"AMBIENCE_SETTINGS_FILE"}, "./settings.yaml"),
		Seed:         int64(getEnvIntAny([]string{"AMBIENCE_SEED"}, 0)),

		PoolSize:     getEnvIntAny([]string{"AMBIENCE_POOL_SIZE"}, 10),
		FadeIn:       getEnvDurationAny([]string{"AMBIENCE_FADE_IN"}, 2*time.Second),
		FadeOut:      getEnvDurationAny([]string{"AMBIENCE_FADE_OUT"}, 2*time.Second),
		TickInterval: getEnvDurationAny([]string{"AMBIENCE_TICK_INTERVAL"}, 50*time.Millisecond),
		RetryDelay:   getEnvDurationAny([]string{"AMBIENCE_RETRY_DELAY"}, time.Second),
		VolumeLevel:  getEnvFloatAny([]string{"AMBIENCE_VOLUME_LEVEL"}, 1.0),
		MasterVolume: getEnvFloatAny([]string{"AMBIENCE_MASTER_VOLUME"}, 1.0),
		PollWorld:    getEnvBoolAny([]string{"AMBIENCE_POLL_WORLD"}, true),

		AudioBackend: AudioBackend(strings.ToLower(getEnvAny([]string{"AMBIENCE_AUDIO_BACKEND"}, string(AudioOto)))),
		SampleRate:   getEnvIntAny([]string{"AMBIENCE_SAMPLE_RATE"}, 44100),
		Channels:     getEnvIntAny([]string{"AMBIENCE_CHANNELS"}, 2),
		RefDistance:  getEnvFloatAny([]string{"AMBIENCE_REF_DISTANCE"}, 8),

		WorldSource:   WorldSource(strings.ToLower(getEnvAny([]string{"AMBIENCE_WORLD_SOURCE"}, string(WorldHTTP)))),
		NATSURL:       getEnvAny([]string{"AMBIENCE_NATS_URL", "GRIMNIR_NATS_URL"}, "nats://127.0.0.1:4222"),
		NATSSubject:   getEnvAny([]string{"AMBIENCE_NATS_SUBJECT"}, "grimnir.ambience.world"),
		NATSToken:     getEnvAny([]string{"AMBIENCE_NATS_TOKEN", "GRIMNIR_NATS_TOKEN"}, ""),
		RedisAddr:     getEnvAny([]string{"AMBIENCE_REDIS_ADDR", "GRIMNIR_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"AMBIENCE_REDIS_PASSWORD", "GRIMNIR_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"AMBIENCE_REDIS_DB", "GRIMNIR_REDIS_DB"}, 0),
		RedisChannel:  getEnvAny([]string{"AMBIENCE_REDIS_CHANNEL"}, "grimnir:ambience:world"),

		TracingEnabled:    getEnvBoolAny([]string{"AMBIENCE_TRACING_ENABLED", "GRIMNIR_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"AMBIENCE_OTLP_ENDPOINT", "GRIMNIR_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"AMBIENCE_TRACING_SAMPLE_RATE", "GRIMNIR_TRACING_SAMPLE_RATE"}, 1.0),
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		problems = append(problems, fmt.Sprintf("http port %d out of range", c.HTTPPort))
	}
	if c.PoolSize < 1 {
		problems = append(problems, fmt.Sprintf("pool size %d must be at least 1", c.PoolSize))
	}
	if c.FadeIn < 0 || c.FadeOut < 0 {
		problems = append(problems, "fade durations must not be negative")
	}
	if c.TickInterval <= 0 {
		problems = append(problems, "tick interval must be positive")
	}
	if c.RetryDelay < 0 {
		problems = append(problems, "retry delay must not be negative")
	}
	if c.VolumeLevel < 0 || c.VolumeLevel > 1 {
		problems = append(problems, fmt.Sprintf("volume level %v outside [0,1]", c.VolumeLevel))
	}
	if c.MasterVolume < 0 || c.MasterVolume > 1 {
		problems = append(problems, fmt.Sprintf("master volume %v outside [0,1]", c.MasterVolume))
	}
	switch c.AudioBackend {
	case AudioOto, AudioNull:
	default:
		problems = append(problems, fmt.Sprintf("unknown audio backend %q", c.AudioBackend))
	}
	switch c.WorldSource {
	case WorldHTTP, WorldNATS, WorldRedis:
	default:
		problems = append(problems, fmt.Sprintf("unknown world source %q", c.WorldSource))
	}
	if c.AudioBackend == AudioOto && (c.SampleRate <= 0 || (c.Channels != 1 && c.Channels != 2)) {
		problems = append(problems, "oto output needs a positive sample rate and 1 or 2 channels")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// HTTPAddr returns the listen address for the status API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"RULES_DIR":       "use AMBIENCE_RULES_DIR",
		"TRACKS_ROOT":     "use AMBIENCE_TRACKS_ROOT",
		"POOL_SIZE":       "use AMBIENCE_POOL_SIZE",
		"TRACING_ENABLED": "use AMBIENCE_TRACING_ENABLED (or GRIMNIR_TRACING_ENABLED)",
		"OTLP_ENDPOINT":   "use AMBIENCE_OTLP_ENDPOINT (or GRIMNIR_OTLP_ENDPOINT)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("1.5s") or bare seconds ("2").
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return def
}
