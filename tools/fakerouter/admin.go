package main

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime"
	"sort"
	"time"
)

// ---------------------------------------------------------------------------
// Admin REST API — operational visibility into fakerouter state.
//
// Endpoints:
//   GET /admin/status         — server status, uptime, configuration
//   GET /admin/stats          — global routing statistics
//   GET /admin/sessions       — list established sessions
//   GET /admin/subscriptions  — list active subscriptions
// ---------------------------------------------------------------------------

func startAdminServer(addr string, r *router) {
	go func() {
		log.Printf("fakerouter: admin API listening on %s", addr)
		if err := http.ListenAndServe(addr, r.adminMux()); err != nil {
			log.Printf("fakerouter: admin API error: %v", err)
		}
	}()
}

func (r *router) adminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/status", r.handleAdminStatus)
	mux.HandleFunc("/admin/stats", r.handleAdminStats)
	mux.HandleFunc("/admin/sessions", r.handleAdminSessions)
	mux.HandleFunc("/admin/subscriptions", r.handleAdminSubscriptions)
	return mux
}

func jsonResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (r *router) handleAdminStatus(w http.ResponseWriter, _ *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	realms := make([]string, 0, len(r.cfg.realms))
	for realm := range r.cfg.realms {
		realms = append(realms, string(realm))
	}
	sort.Strings(realms)

	jsonResponse(w, map[string]interface{}{
		"server":    "fakerouter",
		"uptime":    time.Since(r.started).String(),
		"uptime_ms": time.Since(r.started).Milliseconds(),
		"started":   r.started.Format(time.RFC3339),
		"connections": map[string]interface{}{
			"total_accepted": r.connectionsAccepted.Load(),
			"current":        r.connectionsCurrent.Load(),
		},
		"memory": map[string]interface{}{
			"alloc_mb":       m.Alloc / 1024 / 1024,
			"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
			"sys_mb":         m.Sys / 1024 / 1024,
			"num_gc":         m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
		"config": map[string]interface{}{
			"realms":    realms,
			"any_realm": r.cfg.realms == nil,
			"trace":     r.cfg.trace,
			"out_depth": r.cfg.outDepth,
		},
	})
}

func (r *router) handleAdminStats(w http.ResponseWriter, _ *http.Request) {
	r.subsMu.RLock()
	subscriptions := len(r.subsByID)
	r.subsMu.RUnlock()

	jsonResponse(w, map[string]interface{}{
		"connections_accepted": r.connectionsAccepted.Load(),
		"connections_current":  r.connectionsCurrent.Load(),
		"sessions_established": r.sessionsEstablished.Load(),
		"publishes_routed":     r.publishesRouted.Load(),
		"events_delivered":     r.eventsDelivered.Load(),
		"subscriptions_active": subscriptions,
	})
}

func (r *router) handleAdminSessions(w http.ResponseWriter, _ *http.Request) {
	subCounts := make(map[uint64]int)
	r.subsMu.RLock()
	for _, sub := range r.subsByID {
		subCounts[uint64(sub.session.id)]++
	}
	r.subsMu.RUnlock()

	r.sessionsMu.RLock()
	sessions := make([]map[string]interface{}, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, map[string]interface{}{
			"session_id":    uint64(session.id),
			"realm":         string(session.realm),
			"serialization": string(session.serialization),
			"remote_addr":   session.remoteAddr,
			"subscriptions": subCounts[uint64(session.id)],
		})
	}
	r.sessionsMu.RUnlock()

	jsonResponse(w, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (r *router) handleAdminSubscriptions(w http.ResponseWriter, _ *http.Request) {
	r.subsMu.RLock()
	subs := make([]map[string]interface{}, 0, len(r.subsByID))
	for _, sub := range r.subsByID {
		subs = append(subs, map[string]interface{}{
			"subscription_id": uint64(sub.id),
			"session_id":      uint64(sub.session.id),
			"realm":           string(sub.session.realm),
			"topic":           string(sub.topic),
		})
	}
	r.subsMu.RUnlock()

	jsonResponse(w, map[string]interface{}{
		"count":         len(subs),
		"subscriptions": subs,
	})
}
