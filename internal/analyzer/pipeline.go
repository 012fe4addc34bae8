// Package analyzer is the brain of the backend: it subscribes to flow
// telemetry and runs every event through enrichment, graph merging, DLP,
// anomaly detection, alerting and SOAR evaluation.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shadowhunt/backend/internal/alerts"
	"github.com/shadowhunt/backend/internal/audit"
	"github.com/shadowhunt/backend/internal/classify"
	"github.com/shadowhunt/backend/internal/core"
	"github.com/shadowhunt/backend/internal/defense"
	"github.com/shadowhunt/backend/internal/detect"
	"github.com/shadowhunt/backend/internal/dlp"
	"github.com/shadowhunt/backend/internal/events"
	"github.com/shadowhunt/backend/internal/graph"
	"github.com/shadowhunt/backend/internal/identity"
	"github.com/shadowhunt/backend/internal/mitre"
	"github.com/shadowhunt/backend/internal/soar"
)

// Services bundles the components the pipeline orchestrates. Explicit
// constructor dependencies — no package-level singletons.
type Services struct {
	Broker   events.Broker
	Graph    *graph.Store
	Ledger   *audit.Ledger
	Registry *defense.Registry
	Identity *identity.Resolver
	Policy   *classify.Classifier
	DLP      *dlp.Scanner
	Detector *detect.Detector
	ML       detect.Classifier // optional; nil disables classification
	Mitre    *mitre.Mapper
	Alerts   *alerts.Store
	SOAR     *soar.Engine
	Metrics  *Metrics // optional
}

// Pipeline processes flow events end to end. One bad event never breaks
// the stream: every step's error is caught, logged and skipped.
type Pipeline struct {
	svc    Services
	logger *log.Logger
}

// NewPipeline wires the pipeline; call Start to begin consuming.
func NewPipeline(svc Services) *Pipeline {
	return &Pipeline{
		svc:    svc,
		logger: log.New(log.Writer(), "[Analyzer] ", log.LstdFlags),
	}
}

// Start subscribes the pipeline to the traffic topic.
func (p *Pipeline) Start() {
	p.svc.Broker.Subscribe(events.TopicTraffic, p.HandleTrafficEvent)
	p.logger.Printf("Subscribed to %s", events.TopicTraffic)
}

// HandleTrafficEvent is the broker handler for one published message.
func (p *Pipeline) HandleTrafficEvent(ctx context.Context, msg interface{}) error {
	start := time.Now()

	// 1. Normalize: accept a typed event or a decoded map.
	event, err := Normalize(msg)
	if err != nil {
		p.logger.Printf("WARN: dropping malformed event: %v", err)
		p.count(func(m *Metrics) { m.EventsMalformed.Inc() })
		return nil
	}

	// Privacy-mode capture filter.
	if !p.svc.Policy.ShouldCapture(event.DestinationIP, event.Metadata) {
		p.count(func(m *Metrics) { m.EventsFiltered.Inc() })
		return nil
	}

	// 2. Classify endpoints.
	srcID, srcUpdate := p.classifySource(event)
	dstID, dstUpdate := p.classifyDestination(event)

	// 3. Enrich identity.
	if profile, ok := p.svc.Identity.Resolve(event.SourceIP); ok {
		event.UserID = profile.UserID
		event.UserName = profile.UserName
		event.Department = profile.Department
	}
	event.Quarantined = p.svc.Registry.IsQuarantined(event.SourceIP)

	// 4. Merge graph.
	p.svc.Graph.AddNode(srcID, srcUpdate)
	p.svc.Graph.AddNode(dstID, dstUpdate)
	p.svc.Graph.AddEdge(srcID, dstID, "TALKS_TO", graph.EdgeUpdate{
		Protocol:  string(event.Protocol),
		DstPort:   event.DestinationPort,
		ByteCount: event.BytesSent + event.BytesReceived,
		LastSeen:  event.Timestamp,
		// Keep the concrete IP on the edge: the node id may be the
		// CDN hostname collapsing many destination addresses.
		Properties: map[string]interface{}{"dst_ip": event.DestinationIP},
	})
	p.count(func(m *Metrics) {
		nodes, edges := p.svc.Graph.Counts()
		m.GraphNodes.Set(float64(nodes))
		m.GraphEdges.Set(float64(edges))
	})

	// 5. DLP scan on the payload sample.
	if event.PayloadSample != "" {
		if matches := p.svc.DLP.Scan(event.PayloadSample); len(matches) > 0 {
			event.DLPViolation = true
			event.DLPMatches = matches
			p.count(func(m *Metrics) {
				for _, match := range matches {
					m.DLPMatches.WithLabelValues(match.RuleName).Inc()
				}
			})
		}
	}

	// 6. Detect and alert.
	res := p.svc.Detector.Detect(event)
	if res.Anomalous || event.DLPViolation {
		p.raiseAlert(event, res, srcID, dstID)
	}

	p.count(func(m *Metrics) {
		m.EventsProcessed.Inc()
		m.ProcessDuration.Observe(time.Since(start).Seconds())
	})
	return nil
}

// classifySource builds the graph update for the source endpoint.
func (p *Pipeline) classifySource(e *core.FlowEvent) (string, graph.NodeUpdate) {
	u := graph.NodeUpdate{
		Labels:   []string{"IP"},
		Type:     graph.NodeExternal,
		LastSeen: e.Timestamp,
	}
	if classify.IsInternal(e.SourceIP) {
		u.Type = graph.NodeInternal
	}
	if name, ok := p.svc.Identity.ResolveInfra(e.SourceIP); ok {
		u.Type = graph.NodeInfra
		u.Labels = append(u.Labels, name)
	} else if profile, ok := p.svc.Identity.Resolve(e.SourceIP); ok {
		u.Labels = append(u.Labels, profile.UserName)
		u.Properties = map[string]interface{}{"department": profile.Department}
	}
	return e.SourceIP, u
}

// classifyDestination picks the destination node id (hostname when DPI
// metadata yields one, collapsing CDN IPs) and its type.
func (p *Pipeline) classifyDestination(e *core.FlowEvent) (string, graph.NodeUpdate) {
	id := e.DestinationIP
	u := graph.NodeUpdate{
		Labels:   []string{"IP"},
		Type:     graph.NodeExternal,
		LastSeen: e.Timestamp,
	}

	host := e.Host()
	if host != "" {
		id = host
		u.Labels = []string{"Host"}
	}

	switch {
	case classify.IsInternal(e.DestinationIP):
		u.Type = graph.NodeInternal
		if name, ok := p.svc.Identity.ResolveInfra(e.DestinationIP); ok {
			u.Type = graph.NodeInfra
			u.Labels = append(u.Labels, name)
		}
	case host != "" && classify.IsAIDomain(host):
		u.Type = graph.NodeShadow
	}
	return id, u
}

// raiseAlert builds the alert for an anomalous or DLP-flagged event, maps
// it, stores it, publishes it and hands it to SOAR.
func (p *Pipeline) raiseAlert(e *core.FlowEvent, res detect.Result, srcID, dstID string) {
	severity := res.Severity
	ruleName := res.RuleName
	description := res.Reason

	if e.DLPViolation {
		names := make([]string, 0, len(e.DLPMatches))
		for _, m := range e.DLPMatches {
			severity = severity.Max(m.Severity)
			names = append(names, m.RuleName)
		}
		dlpText := fmt.Sprintf("DLP Violation: %s", strings.Join(names, ", "))
		if description == "" {
			ruleName = "DLP Violation"
			description = dlpText
		} else {
			description += " | " + dlpText
		}
	}

	a := core.Alert{
		ID:          newAlertID(),
		Severity:    severity,
		Description: description,
		Source:      srcID,
		Target:      dstID,
		Timestamp:   e.Timestamp,
		DLPMatches:  e.DLPMatches,
	}
	if mapping, ok := p.svc.Mitre.MapAlert(ruleName, description); ok {
		a.Technique = &mapping
	}

	if p.svc.ML != nil {
		label, confidence := p.svc.ML.Classify(e)
		a.MLClassification = label
		a.MLConfidence = confidence

		if label == detect.LabelShadowAI && classify.IsInternal(e.SourceIP) {
			created, err := p.svc.Registry.AutoQuarantineIfCritical(e.SourceIP, confidence, description)
			if err != nil {
				p.logger.Printf("auto-quarantine of %s failed: %v", e.SourceIP, err)
			} else if created {
				p.count(func(m *Metrics) {
					m.QuarantineActions.WithLabelValues("auto", "quarantined").Inc()
				})
			}
		}
	}

	p.svc.Alerts.Add(a)
	p.count(func(m *Metrics) { m.AlertsRaised.WithLabelValues(string(a.Severity)).Inc() })
	p.logger.Printf("ALERT [%s] %s -> %s: %s", a.Severity, srcID, dstID, description)

	if err := p.svc.Broker.Publish(events.TopicAlerts, &a); err != nil {
		p.logger.Printf("publish alert failed: %v", err)
	}

	// 7. SOAR playbooks.
	if p.svc.SOAR != nil {
		for _, action := range p.svc.SOAR.Evaluate(&a) {
			p.count(func(m *Metrics) {
				m.QuarantineActions.WithLabelValues("soar", action.Action).Inc()
			})
		}
	}
}

// count applies fn when metrics are wired.
func (p *Pipeline) count(fn func(*Metrics)) {
	if p.svc.Metrics != nil {
		fn(p.svc.Metrics)
	}
}

// newAlertID returns a time-sortable unique alert id. UUIDv7 keeps ids
// unique across restarts, unlike a timestamp+counter scheme.
func newAlertID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "alert-" + id.String()
}

// Normalize coerces a broker message into a FlowEvent. Accepts the typed
// event, its JSON encoding, or a decoded map.
func Normalize(msg interface{}) (*core.FlowEvent, error) {
	var event *core.FlowEvent
	switch v := msg.(type) {
	case *core.FlowEvent:
		event = v
	case core.FlowEvent:
		event = &v
	case []byte:
		event = &core.FlowEvent{}
		if err := json.Unmarshal(v, event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
	case json.RawMessage:
		event = &core.FlowEvent{}
		if err := json.Unmarshal(v, event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
	case map[string]interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("re-encode event map: %w", err)
		}
		event = &core.FlowEvent{}
		if err := json.Unmarshal(data, event); err != nil {
			return nil, fmt.Errorf("decode event map: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown event payload type %T", msg)
	}

	if event.SourceIP == "" || event.DestinationIP == "" {
		return nil, fmt.Errorf("event missing source/destination address")
	}
	if !event.Protocol.Valid() {
		return nil, fmt.Errorf("unknown protocol %q", event.Protocol)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event, nil
}
