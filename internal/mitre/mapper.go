// Package mitre maps semantic alerts onto the MITRE ATT&CK taxonomy.
package mitre

import (
	"strings"

	"github.com/shadowhunt/backend/internal/core"
)

// keywordMapping pairs a lower-case keyword with its ATT&CK tag. Kept as
// an ordered slice so the first matching keyword wins deterministically.
type keywordMapping struct {
	keyword string
	mapping core.TechniqueMapping
}

var mappings = []keywordMapping{
	// Exfiltration
	{"dlp violation", core.TechniqueMapping{Tactic: "Exfiltration", TechniqueID: "T1048", TechniqueName: "Exfiltration Over Alternative Protocol"}},
	{"shadow ai", core.TechniqueMapping{Tactic: "Exfiltration", TechniqueID: "T1567", TechniqueName: "Exfiltration Over Web Service"}},
	{"significant data volume", core.TechniqueMapping{Tactic: "Exfiltration", TechniqueID: "T1041", TechniqueName: "Exfiltration Over C2 Channel"}},

	// Discovery
	{"graph centrality", core.TechniqueMapping{Tactic: "Discovery", TechniqueID: "T1046", TechniqueName: "Network Service Discovery"}},

	// Lateral Movement
	{"lateral movement", core.TechniqueMapping{Tactic: "Lateral Movement", TechniqueID: "T1021", TechniqueName: "Remote Services"}},

	// Command and Control
	{"beaconing", core.TechniqueMapping{Tactic: "Command and Control", TechniqueID: "T1071", TechniqueName: "Application Layer Protocol"}},
	{"suspicious traffic", core.TechniqueMapping{Tactic: "Command and Control", TechniqueID: "T1568", TechniqueName: "Dynamic Resolution"}},

	// Credential Access
	{"brute force", core.TechniqueMapping{Tactic: "Credential Access", TechniqueID: "T1110", TechniqueName: "Brute Force"}},
	{"spoofing", core.TechniqueMapping{Tactic: "Credential Access", TechniqueID: "T1556", TechniqueName: "Modify Authentication Process"}},
}

var anomalyFallback = core.TechniqueMapping{
	Tactic:        "Command and Control",
	TechniqueID:   "T1071",
	TechniqueName: "Application Layer Protocol",
}

// Mapper is stateless; the table is fixed at build time.
type Mapper struct{}

func NewMapper() *Mapper { return &Mapper{} }

// MapAlert returns the first mapping whose keyword occurs in the
// lower-cased rule name + description. Unmapped but anomalous text falls
// back to generic C2; anything else maps to nothing.
func (m *Mapper) MapAlert(ruleName, description string) (core.TechniqueMapping, bool) {
	text := strings.ToLower(ruleName + " " + description)
	for _, km := range mappings {
		if strings.Contains(text, km.keyword) {
			return km.mapping, true
		}
	}
	if strings.Contains(text, "anomaly") || strings.Contains(text, "anomalous") {
		return anomalyFallback, true
	}
	return core.TechniqueMapping{}, false
}
