package detect

import (
	"strings"

	"github.com/shadowhunt/backend/internal/classify"
	"github.com/shadowhunt/backend/internal/core"
)

// Traffic labels produced by the classifier.
const (
	LabelNormal     = "normal"
	LabelSuspicious = "suspicious"
	LabelShadowAI   = "shadow_ai"
)

// Classifier is the contract for the optional supervised traffic model.
// The pipeline attaches its verdict to alerts as ml_classification.
type Classifier interface {
	Classify(e *core.FlowEvent) (label string, confidence float64)
}

// HeuristicClassifier labels flows without a trained model by scoring
// AI-indicative keywords in the payload sample plus destination hints.
// It deliberately caps its confidence — a real model can replace it
// behind the same interface.
type HeuristicClassifier struct{}

func NewHeuristicClassifier() *HeuristicClassifier { return &HeuristicClassifier{} }

// AI-indicative payload keywords grouped by category.
var aiKeywords = map[string][]string{
	"generation": {
		"prompt", "completion", "temperature", "max_tokens",
		"top_p", "system_prompt", "assistant",
	},
	"tool_call": {
		"function_call", "tool_use", "tool_input", "action_input", "invoke",
	},
	"retrieval": {
		"embedding", "similarity", "semantic_search", "context_window", "chunk",
	},
	"agent": {
		"agent_id", "orchestrator", "planner", "chain_of_thought",
	},
}

// Classify scores the flow. A known AI destination is shadow_ai outright;
// otherwise two or more keyword hits in the payload mark it shadow_ai with
// scaled confidence, and unusual-port externals rank suspicious.
func (c *HeuristicClassifier) Classify(e *core.FlowEvent) (string, float64) {
	if host := e.Host(); host != "" && classify.IsAIDomain(host) {
		return LabelShadowAI, 0.95
	}

	if e.PayloadSample != "" {
		s := strings.ToLower(e.PayloadSample)
		hits := 0
		for _, keywords := range aiKeywords {
			for _, kw := range keywords {
				if strings.Contains(s, kw) {
					hits++
				}
			}
		}
		if hits >= 2 {
			conf := float64(hits) * 0.15 // 2 hits = 0.30, 5 = 0.75
			if conf > 0.85 {
				conf = 0.85 // cap: keyword scoring is generic detection
			}
			return LabelShadowAI, conf
		}
	}

	if classify.IsInternal(e.SourceIP) && !classify.IsInternal(e.DestinationIP) &&
		!standardPorts[e.DestinationPort] {
		return LabelSuspicious, 0.60
	}

	return LabelNormal, 0.50
}

var _ Classifier = (*HeuristicClassifier)(nil)
