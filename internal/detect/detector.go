// Package detect holds the stateless anomaly rules and the heuristic
// payload classifier that stands in for the supervised traffic model.
package detect

import (
	"fmt"

	"github.com/shadowhunt/backend/internal/classify"
	"github.com/shadowhunt/backend/internal/core"
)

// standardPorts are destination ports considered normal for outbound
// traffic from internal hosts.
var standardPorts = map[int]bool{80: true, 443: true, 8080: true, 53: true}

// Result is the detector verdict for one flow. RuleName feeds the MITRE
// mapper's keyword lookup.
type Result struct {
	Anomalous bool
	RuleName  string
	Severity  core.Severity
	Reason    string
}

// Detector is a pure rule evaluator: deterministic, no state, bounded by
// input size.
type Detector struct{}

func NewDetector() *Detector { return &Detector{} }

// Detect applies the rules in order; the first hit wins.
//
//  1. Destination host is a known AI service.
//  2. Internal → external traffic on a non-standard port.
//  3. Oversized DNS payload (tunneling suspect).
func (d *Detector) Detect(e *core.FlowEvent) Result {
	if host := e.Host(); host != "" && classify.IsAIDomain(host) {
		return Result{
			Anomalous: true,
			RuleName:  "Shadow AI Access",
			Severity:  core.SeverityHigh,
			Reason:    fmt.Sprintf("Known AI Service Accessed: %s", host),
		}
	}

	if classify.IsInternal(e.SourceIP) && !classify.IsInternal(e.DestinationIP) &&
		!standardPorts[e.DestinationPort] {
		return Result{
			Anomalous: true,
			RuleName:  "Suspicious Traffic",
			Severity:  core.SeverityHigh,
			Reason: fmt.Sprintf("Outbound traffic to %s on unusual port %d",
				e.DestinationIP, e.DestinationPort),
		}
	}

	if e.Protocol == core.ProtoDNS && e.BytesSent > 500 {
		return Result{
			Anomalous: true,
			RuleName:  "DNS Tunneling Anomaly",
			Severity:  core.SeverityHigh,
			Reason:    "Potential DNS Tunneling (Large DNS Payload)",
		}
	}

	return Result{}
}
