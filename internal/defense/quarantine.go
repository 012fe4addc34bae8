// Package defense implements the quarantine registry: the advisory set of
// isolated internal nodes. Enforcement at the datapath is external; the
// registry owns lifecycle records and their audit trail.
package defense

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shadowhunt/backend/internal/audit"
	"github.com/shadowhunt/backend/internal/core"
)

// CriticalThreshold is the threat score at or above which the pipeline may
// auto-quarantine a node.
const CriticalThreshold = 0.90

// Registry is the quarantine store. A single mutex serializes every state
// transition, so quarantine is idempotent under concurrent callers.
type Registry struct {
	mu      sync.Mutex
	active  map[string]*core.QuarantineRecord // ip -> latest record
	history []*core.QuarantineRecord          // every record ever created

	ledger *audit.Ledger
	logger *log.Logger
}

// NewRegistry returns a registry writing its audit trail to ledger.
func NewRegistry(ledger *audit.Ledger) *Registry {
	return &Registry{
		active: make(map[string]*core.QuarantineRecord),
		ledger: ledger,
		logger: log.New(log.Writer(), "[Quarantine] ", log.LstdFlags),
	}
}

// Quarantine isolates ip. Idempotent: an already-active record yields
// already_quarantined with no duplicate. A successful create is only
// reported after its QUARANTINE_NODE audit entry is persisted; an audit
// failure rolls the record back and surfaces the error.
func (r *Registry) Quarantine(ip, reason string, score *float64, auto bool) (core.QuarantineStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.active[ip]; ok && rec.Status == "active" {
		return core.StatusAlreadyQuarantined, nil
	}

	rec := &core.QuarantineRecord{
		IP:            ip,
		Reason:        reason,
		ThreatScore:   score,
		QuarantinedAt: time.Now().UTC(),
		AutoTriggered: auto,
		Status:        "active",
	}
	r.active[ip] = rec
	r.history = append(r.history, rec)

	trigger := "MANUAL"
	actor := "Security Analyst"
	if auto {
		trigger = "AUTO"
		actor = "Hunter ML Pipeline"
	}

	details := map[string]interface{}{"reason": reason, "trigger": trigger}
	if score != nil {
		details["threat_score"] = *score
	}
	if _, err := r.ledger.Append(actor, "QUARANTINE_NODE", ip, details); err != nil {
		// Strict mode: no audit entry, no quarantine.
		delete(r.active, ip)
		r.history = r.history[:len(r.history)-1]
		return "", fmt.Errorf("quarantine %s not recorded, audit append failed: %w", ip, err)
	}

	r.logger.Printf("QUARANTINE [%s]: node %s isolated — %s", trigger, ip, reason)
	return core.StatusQuarantined, nil
}

// Release moves an active record to released. Returns not_found when the
// ip was never quarantined and already_released when it already left
// quarantine. The RELEASE_NODE audit entry gates success the same way
// Quarantine's does.
func (r *Registry) Release(ip, releasedBy string) (core.QuarantineStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.active[ip]
	if !ok {
		return core.StatusNotFound, nil
	}
	if rec.Status == "released" {
		return core.StatusAlreadyReleased, nil
	}

	now := time.Now().UTC()
	rec.Status = "released"
	rec.ReleasedAt = &now

	details := map[string]interface{}{
		"reason":          "Administrative override",
		"previous_status": "quarantined",
	}
	if _, err := r.ledger.Append(releasedBy, "RELEASE_NODE", ip, details); err != nil {
		rec.Status = "active"
		rec.ReleasedAt = nil
		return "", fmt.Errorf("release %s not recorded, audit append failed: %w", ip, err)
	}

	r.logger.Printf("RELEASE: node %s restored by %s", ip, releasedBy)
	return core.StatusReleased, nil
}

// IsQuarantined reports whether ip has an active record. O(1); called on
// every event.
func (r *Registry) IsQuarantined(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.active[ip]
	return ok && rec.Status == "active"
}

// Status returns the latest record for ip, if any.
func (r *Registry) Status(ip string) (core.QuarantineRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.active[ip]
	if !ok {
		return core.QuarantineRecord{}, false
	}
	return *rec, true
}

// List returns every record, active and historical, oldest first.
func (r *Registry) List() []core.QuarantineRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.QuarantineRecord, len(r.history))
	for i, rec := range r.history {
		out[i] = *rec
	}
	return out
}

// AutoQuarantineIfCritical quarantines ip when score meets the critical
// threshold and the node is not already isolated. Reports whether a new
// record was created.
func (r *Registry) AutoQuarantineIfCritical(ip string, score float64, reason string) (bool, error) {
	if score < CriticalThreshold {
		return false, nil
	}
	status, err := r.Quarantine(ip, reason, &score, true)
	if err != nil {
		return false, err
	}
	return status == core.StatusQuarantined, nil
}
