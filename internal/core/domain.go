// Package core holds the shared domain types for the Shadow Hunter backend:
// network flow events, alerts, quarantine records and DLP matches.
package core

import "time"

// Protocol is the application/transport protocol label of a flow.
// Serialized as a stable string, never an integer ordinal.
type Protocol string

const (
	ProtoTCP   Protocol = "TCP"
	ProtoUDP   Protocol = "UDP"
	ProtoHTTP  Protocol = "HTTP"
	ProtoHTTPS Protocol = "HTTPS"
	ProtoGRPC  Protocol = "GRPC"
	ProtoDNS   Protocol = "DNS"
)

// Valid reports whether p is one of the known protocol labels.
func (p Protocol) Valid() bool {
	switch p {
	case ProtoTCP, ProtoUDP, ProtoHTTP, ProtoHTTPS, ProtoGRPC, ProtoDNS:
		return true
	}
	return false
}

// Recognized metadata keys on a FlowEvent.
const (
	MetaHost      = "host"
	MetaSNI       = "sni"
	MetaDNSQuery  = "dns_query"
	MetaUserAgent = "user_agent"
	MetaJA3Hash   = "ja3_hash"
)

// FlowEvent is one observed network flow. Immutable once admitted to the
// pipeline; the enrichment fields are filled in exactly once at the edge.
type FlowEvent struct {
	Timestamp       time.Time         `json:"timestamp"`
	SourceIP        string            `json:"source_ip"`
	SourcePort      int               `json:"source_port"`
	DestinationIP   string            `json:"destination_ip"`
	DestinationPort int               `json:"destination_port"`
	Protocol        Protocol          `json:"protocol"`
	BytesSent       int64             `json:"bytes_sent"`
	BytesReceived   int64             `json:"bytes_received"`
	DurationMs      float64           `json:"duration_ms,omitempty"`
	PayloadSample   string            `json:"payload_sample,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`

	// Identity enrichment (filled by the analyzer via the IdP resolver).
	UserID     string `json:"user_id,omitempty"`
	UserName   string `json:"user_name,omitempty"`
	Department string `json:"department,omitempty"`

	// DLP enrichment.
	DLPViolation bool       `json:"dlp_violation,omitempty"`
	DLPMatches   []DLPMatch `json:"dlp_matches,omitempty"`

	// Quarantine status of the source at observation time.
	Quarantined bool `json:"quarantined,omitempty"`
}

// Meta returns the metadata value for key, or "" when absent.
func (e *FlowEvent) Meta(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// Host returns the best hostname hint for the destination: the DPI "host"
// metadata first, then the TLS SNI.
func (e *FlowEvent) Host() string {
	if h := e.Meta(MetaHost); h != "" {
		return h
	}
	return e.Meta(MetaSNI)
}

// Severity grades alerts and DLP matches.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// rank orders severities for comparisons; unknown severities rank lowest.
func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool { return s.rank() >= other.rank() }

// Max returns the more severe of s and other.
func (s Severity) Max(other Severity) Severity {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// DLPMatch is one redacted sensitive-data hit. The raw matched value is
// never stored; RedactedSnippet carries the surrounding context with the
// match already masked.
type DLPMatch struct {
	RuleName        string   `json:"rule_name"`
	Severity        Severity `json:"severity"`
	RedactedSnippet string   `json:"redacted_snippet"`
}

// TechniqueMapping tags an alert with an ATT&CK tactic and technique.
type TechniqueMapping struct {
	Tactic        string `json:"tactic"`
	TechniqueID   string `json:"technique_id"`
	TechniqueName string `json:"technique_name"`
}

// Alert is an immutable detection record emitted by the analyzer.
type Alert struct {
	ID          string            `json:"id"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	Source      string            `json:"source"`
	Target      string            `json:"target"`
	Timestamp   time.Time         `json:"timestamp"`
	Technique   *TechniqueMapping `json:"technique,omitempty"`
	DLPMatches  []DLPMatch        `json:"dlp_matches,omitempty"`

	// Classifier verdict, when the payload classifier ran.
	MLClassification string  `json:"ml_classification,omitempty"`
	MLConfidence     float64 `json:"ml_confidence,omitempty"`
}

// Fields flattens the alert into the key/value form the SOAR engine
// evaluates playbook conditions against.
func (a *Alert) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"id":          a.ID,
		"severity":    string(a.Severity),
		"description": a.Description,
		"source":      a.Source,
		"target":      a.Target,
		"timestamp":   a.Timestamp,
	}
	if a.Technique != nil {
		f["tactic"] = a.Technique.Tactic
		f["technique_id"] = a.Technique.TechniqueID
	}
	if a.MLClassification != "" {
		f["ml_classification"] = a.MLClassification
		f["ml_confidence"] = a.MLConfidence
	}
	if len(a.DLPMatches) > 0 {
		f["dlp_violation"] = true
	}
	return f
}

// QuarantineStatus is the structured outcome of a registry operation.
type QuarantineStatus string

const (
	StatusQuarantined        QuarantineStatus = "quarantined"
	StatusAlreadyQuarantined QuarantineStatus = "already_quarantined"
	StatusReleased           QuarantineStatus = "released"
	StatusAlreadyReleased    QuarantineStatus = "already_released"
	StatusNotFound           QuarantineStatus = "not_found"
)

// QuarantineRecord tracks one isolation of an internal node. Transitions
// only active → released; re-quarantine creates a fresh record.
type QuarantineRecord struct {
	IP            string     `json:"ip"`
	Reason        string     `json:"reason"`
	ThreatScore   *float64   `json:"threat_score,omitempty"`
	QuarantinedAt time.Time  `json:"quarantined_at"`
	AutoTriggered bool       `json:"auto_triggered"`
	Status        string     `json:"status"` // "active" | "released"
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
}
