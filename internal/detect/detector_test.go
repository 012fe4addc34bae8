package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shadowhunt/backend/internal/core"
)

func TestDetect_AIServiceAccess(t *testing.T) {
	d := NewDetector()
	r := d.Detect(&core.FlowEvent{
		SourceIP:        "192.168.1.10",
		DestinationIP:   "104.18.20.12",
		DestinationPort: 443,
		Protocol:        core.ProtoHTTPS,
		Metadata:        map[string]string{"host": "chatgpt.com"},
	})

	assert.True(t, r.Anomalous)
	assert.Equal(t, "Shadow AI Access", r.RuleName)
	assert.Equal(t, core.SeverityHigh, r.Severity)
	assert.Equal(t, "Known AI Service Accessed: chatgpt.com", r.Reason)
}

func TestDetect_AIRuleWinsOverPortRule(t *testing.T) {
	d := NewDetector()
	r := d.Detect(&core.FlowEvent{
		SourceIP:        "192.168.1.10",
		DestinationIP:   "104.18.20.12",
		DestinationPort: 9001, // unusual, but the AI rule fires first
		Protocol:        core.ProtoHTTPS,
		Metadata:        map[string]string{"host": "api.openai.com"},
	})

	assert.Equal(t, "Shadow AI Access", r.RuleName)
}

func TestDetect_UnusualPort(t *testing.T) {
	d := NewDetector()
	r := d.Detect(&core.FlowEvent{
		SourceIP:        "192.168.1.11",
		DestinationIP:   "1.1.1.1",
		DestinationPort: 6667,
		Protocol:        core.ProtoTCP,
	})

	assert.True(t, r.Anomalous)
	assert.Equal(t, "Suspicious Traffic", r.RuleName)
	assert.Equal(t, "Outbound traffic to 1.1.1.1 on unusual port 6667", r.Reason)
}

func TestDetect_UnusualPortInternalDestination(t *testing.T) {
	d := NewDetector()
	// Internal-to-internal chatter on odd ports is normal.
	r := d.Detect(&core.FlowEvent{
		SourceIP:        "192.168.1.11",
		DestinationIP:   "192.168.1.200",
		DestinationPort: 9001,
		Protocol:        core.ProtoGRPC,
	})
	assert.False(t, r.Anomalous)
}

func TestDetect_DNSTunneling(t *testing.T) {
	d := NewDetector()
	r := d.Detect(&core.FlowEvent{
		SourceIP:        "192.168.1.12",
		DestinationIP:   "8.8.8.8",
		DestinationPort: 53,
		Protocol:        core.ProtoDNS,
		BytesSent:       900,
	})

	assert.True(t, r.Anomalous)
	assert.Equal(t, "DNS Tunneling Anomaly", r.RuleName)
	assert.Equal(t, "Potential DNS Tunneling (Large DNS Payload)", r.Reason)

	// Ordinary lookups stay below the threshold.
	r = d.Detect(&core.FlowEvent{
		SourceIP:        "192.168.1.12",
		DestinationIP:   "8.8.8.8",
		DestinationPort: 53,
		Protocol:        core.ProtoDNS,
		BytesSent:       120,
	})
	assert.False(t, r.Anomalous)
}

func TestDetect_NormalBrowsing(t *testing.T) {
	d := NewDetector()
	r := d.Detect(&core.FlowEvent{
		SourceIP:        "192.168.1.13",
		DestinationIP:   "151.101.1.69",
		DestinationPort: 443,
		Protocol:        core.ProtoHTTPS,
	})
	assert.False(t, r.Anomalous)
	assert.Empty(t, r.RuleName)
}

func TestHeuristicClassifier(t *testing.T) {
	c := NewHeuristicClassifier()

	label, conf := c.Classify(&core.FlowEvent{
		SourceIP:        "192.168.1.10",
		DestinationIP:   "160.79.104.10",
		DestinationPort: 443,
		Metadata:        map[string]string{"host": "claude.ai"},
	})
	assert.Equal(t, LabelShadowAI, label)
	assert.InDelta(t, 0.95, conf, 1e-9)

	label, conf = c.Classify(&core.FlowEvent{
		SourceIP:        "192.168.1.10",
		DestinationIP:   "20.15.30.12",
		DestinationPort: 443,
		PayloadSample:   `{"prompt": "hello", "temperature": 0.7, "max_tokens": 256}`,
	})
	assert.Equal(t, LabelShadowAI, label)
	assert.Greater(t, conf, 0.0)
	assert.LessOrEqual(t, conf, 0.85)

	label, _ = c.Classify(&core.FlowEvent{
		SourceIP:        "192.168.1.10",
		DestinationIP:   "20.15.30.12",
		DestinationPort: 4444,
	})
	assert.Equal(t, LabelSuspicious, label)

	label, _ = c.Classify(&core.FlowEvent{
		SourceIP:        "192.168.1.10",
		DestinationIP:   "151.101.1.69",
		DestinationPort: 443,
	})
	assert.Equal(t, LabelNormal, label)
}
