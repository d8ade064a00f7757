/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ambience_api_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ambience_api_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ambience_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	// Engine metrics
	SlotsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ambience_slots",
		Help: "Ambient slots per crossfade state.",
	}, []string{"state"})

	SlotTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ambience_slot_transitions_total",
		Help: "Slot state transitions.",
	}, []string{"from", "to"})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ambience_reconciliations_total",
		Help: "Reconciliation passes by trigger.",
	}, []string{"trigger"})

	ReconcileActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ambience_reconcile_actions_total",
		Help: "Evictions, assignments, resumes and drops issued by reconciliation.",
	}, []string{"action"})

	ActivePlaylists = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ambience_active_playlists",
		Help: "Distinct playlists selected by the last rule evaluation.",
	})

	TrackLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ambience_track_loads_total",
		Help: "Track buffer loads by result (ok, error, superseded).",
	}, []string{"result"})

	MasterVolume = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ambience_master_volume",
		Help: "Current master volume multiplier.",
	})

	WorldMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ambience_world_messages_total",
		Help: "World-state messages received by source and outcome.",
	}, []string{"source", "outcome"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
