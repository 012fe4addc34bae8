// Package api exposes the core over REST/JSON for the dashboard and
// external enforcers, plus a WebSocket stream of live alerts.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shadowhunt/backend/internal/alerts"
	"github.com/shadowhunt/backend/internal/analyzer"
	"github.com/shadowhunt/backend/internal/audit"
	"github.com/shadowhunt/backend/internal/core"
	"github.com/shadowhunt/backend/internal/defense"
	"github.com/shadowhunt/backend/internal/events"
	"github.com/shadowhunt/backend/internal/graph"
	"github.com/shadowhunt/backend/internal/mitre"
)

// Server is the control-plane HTTP surface over the core components.
type Server struct {
	broker   events.Broker
	graph    *graph.Store
	alerts   *alerts.Store
	registry *defense.Registry
	ledger   *audit.Ledger
	mapper   *mitre.Mapper
	stream   *StreamHub
	logger   *log.Logger
}

// NewServer wires the control plane. The stream hub is subscribed to the
// alerts topic so WebSocket clients see alerts as they are raised.
func NewServer(broker events.Broker, g *graph.Store, a *alerts.Store,
	r *defense.Registry, l *audit.Ledger, m *mitre.Mapper) *Server {

	s := &Server{
		broker:   broker,
		graph:    g,
		alerts:   a,
		registry: r,
		ledger:   l,
		mapper:   m,
		stream:   NewStreamHub(),
		logger:   log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
	broker.Subscribe(events.TopicAlerts, s.stream.HandleAlert)
	return s
}

// Router builds the mux router with all routes and middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Ingest edge for the sniffer / simulator.
	r.HandleFunc("/v1/ingest/flows", s.handleIngestFlows).Methods("POST")

	// Discovery (graph store).
	r.HandleFunc("/v1/discovery/nodes", s.handleNodes).Methods("GET")
	r.HandleFunc("/v1/discovery/edges", s.handleEdges).Methods("GET")

	// Alerts.
	r.HandleFunc("/v1/alerts", s.handleListAlerts).Methods("GET")
	r.HandleFunc("/v1/alerts", s.handleAddAlert).Methods("POST")

	// Defense (quarantine registry).
	r.HandleFunc("/v1/defense/quarantine", s.handleQuarantine).Methods("POST")
	r.HandleFunc("/v1/defense/release", s.handleRelease).Methods("POST")
	r.HandleFunc("/v1/defense/quarantined", s.handleListQuarantined).Methods("GET")
	r.HandleFunc("/v1/defense/status/{ip}", s.handleQuarantineStatus).Methods("GET")

	// Audit ledger.
	r.HandleFunc("/v1/audit/logs", s.handleAuditLogs).Methods("GET")

	// MITRE mapping.
	r.HandleFunc("/v1/mitre/map", s.handleMitreMap).Methods("POST")

	// Live alert stream.
	r.HandleFunc("/v1/stream", s.stream.ServeWS).Methods("GET")

	return r
}

// Start blocks serving HTTP on the port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.logger.Printf("Control plane listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIngestFlows accepts a single flow event or an array of them and
// publishes each to the traffic topic.
func (s *Server) handleIngestFlows(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var batch []json.RawMessage
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &batch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid event array")
			return
		}
	} else {
		batch = []json.RawMessage{raw}
	}

	accepted := 0
	for _, item := range batch {
		event, err := analyzer.Normalize(item)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed event: %v", err))
			return
		}
		if err := s.broker.Publish(events.TopicTraffic, event); err != nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("broker unavailable: %v", err))
			return
		}
		accepted++
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": accepted})
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.graph.GetAllNodes())
}

func (s *Server) handleEdges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.graph.GetAllEdges())
}

func (s *Server) handleListAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.alerts.List())
}

func (s *Server) handleAddAlert(w http.ResponseWriter, r *http.Request) {
	var a core.Alert
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert payload")
		return
	}
	s.alerts.Add(a)
	if err := s.broker.Publish(events.TopicAlerts, &a); err != nil {
		s.logger.Printf("publish injected alert failed: %v", err)
	}
	writeJSON(w, http.StatusCreated, a)
}

// QuarantineRequest is the body of POST /v1/defense/quarantine.
type QuarantineRequest struct {
	IP          string   `json:"ip"`
	Reason      string   `json:"reason"`
	ThreatScore *float64 `json:"threat_score,omitempty"`
	Auto        bool     `json:"auto"`
}

func (s *Server) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	var req QuarantineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		writeError(w, http.StatusBadRequest, "ip is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "Manual quarantine by security analyst"
	}

	status, err := s.registry.Quarantine(req.IP, req.Reason, req.ThreatScore, req.Auto)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": status, "ip": req.IP})
}

// ReleaseRequest is the body of POST /v1/defense/release.
type ReleaseRequest struct {
	IP         string `json:"ip"`
	ReleasedBy string `json:"released_by"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		writeError(w, http.StatusBadRequest, "ip is required")
		return
	}
	if req.ReleasedBy == "" {
		req.ReleasedBy = "security_analyst"
	}

	status, err := s.registry.Release(req.IP, req.ReleasedBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if status == core.StatusNotFound {
		writeError(w, http.StatusNotFound, fmt.Sprintf("node %s is not quarantined", req.IP))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": status, "ip": req.IP})
}

func (s *Server) handleListQuarantined(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleQuarantineStatus(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	rec, ok := s.registry.Status(ip)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ip": ip, "quarantined": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ip":          ip,
		"quarantined": rec.Status == "active",
		"record":      rec,
	})
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.ledger.GetLogs(limit))
}

// MitreMapRequest is the body of POST /v1/mitre/map.
type MitreMapRequest struct {
	RuleName    string `json:"rule_name"`
	Description string `json:"description"`
}

func (s *Server) handleMitreMap(w http.ResponseWriter, r *http.Request) {
	var req MitreMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	mapping, ok := s.mapper.MapAlert(req.RuleName, req.Description)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"mapped": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"mapped": true, "technique": mapping})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
