/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/grimnir_ambience/internal/logbuffer"
)

const defaultLogLimit = 200

type logsResponse struct {
	Entries []logbuffer.Entry `json:"entries"`
	Stats   logbuffer.Stats   `json:"stats"`
}

// handleLogs serves recent log lines. Query parameters: level, component,
// slot, search, since (RFC3339), limit, order=asc|desc (default desc).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "logs_disabled")
		return
	}

	v := r.URL.Query()
	q := logbuffer.Query{
		Level:      v.Get("level"),
		Component:  v.Get("component"),
		Search:     v.Get("search"),
		Slot:       -1,
		Limit:      defaultLogLimit,
		Descending: v.Get("order") != "asc",
	}

	if raw := v.Get("slot"); raw != "" {
		slot, err := strconv.Atoi(raw)
		if err != nil || slot < 0 {
			writeError(w, http.StatusBadRequest, "invalid_slot")
			return
		}
		q.Slot = slot
	}
	if raw := v.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		q.Limit = limit
	}
	if raw := v.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		q.Since = since
	}

	entries := s.logs.Query(q)
	if entries == nil {
		entries = []logbuffer.Entry{}
	}
	writeJSON(w, http.StatusOK, logsResponse{Entries: entries, Stats: s.logs.Stats()})
}
