// Package soar is the playbook engine: declarative alert predicates mapped
// to response actions. The engine never reaches into other modules
// directly — it acts through the Enforcer capability it is given at
// construction.
package soar

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/shadowhunt/backend/internal/core"
)

// ActionTimeout bounds one playbook action; past it the action is logged
// as failed and evaluation moves on.
const ActionTimeout = 1 * time.Second

// Enforcer is the containment capability handed to the engine. The
// quarantine registry satisfies it.
type Enforcer interface {
	Quarantine(ip, reason string, score *float64, auto bool) (core.QuarantineStatus, error)
}

// Playbook maps a condition over alert fields to an action.
//
// Condition semantics per key: the alert must contain the key; values
// compare by equality, by membership when the expected value is a list,
// or by case-insensitive glob when the expected string contains '*'.
type Playbook struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Condition map[string]interface{} `json:"condition"`
	Action    string                 `json:"action"`
	Enabled   bool                   `json:"enabled"`
}

// Matches evaluates the playbook condition against alert fields.
func (p *Playbook) Matches(fields map[string]interface{}) bool {
	if !p.Enabled {
		return false
	}
	for key, expected := range p.Condition {
		actual, ok := fields[key]
		if !ok {
			return false
		}
		if !valueMatches(expected, actual) {
			return false
		}
	}
	return true
}

func valueMatches(expected, actual interface{}) bool {
	switch exp := expected.(type) {
	case []interface{}:
		for _, candidate := range exp {
			if candidate == actual {
				return true
			}
		}
		return false
	case []string:
		for _, candidate := range exp {
			if candidate == fmt.Sprintf("%v", actual) {
				return true
			}
		}
		return false
	case string:
		if strings.Contains(exp, "*") {
			pattern := "(?i)^" + strings.ReplaceAll(regexp.QuoteMeta(exp), `\*`, ".*") + "$"
			matched, err := regexp.MatchString(pattern, fmt.Sprintf("%v", actual))
			return err == nil && matched
		}
		return strings.EqualFold(exp, fmt.Sprintf("%v", actual))
	default:
		return expected == actual
	}
}

// ExecutedAction records one action the engine took for an alert.
type ExecutedAction struct {
	Playbook string `json:"playbook"`
	Action   string `json:"action"`
	Target   string `json:"target"`
}

// Engine evaluates playbooks in declaration order and executes matched
// actions. Action failures are logged and do not stop later playbooks.
type Engine struct {
	playbooks []Playbook
	enforcer  Enforcer
	logger    *log.Logger
}

// NewEngine returns an engine over the default playbooks.
func NewEngine(enforcer Enforcer) *Engine {
	return &Engine{
		playbooks: DefaultPlaybooks(),
		enforcer:  enforcer,
		logger:    log.New(log.Writer(), "[SOAR] ", log.LstdFlags),
	}
}

// DefaultPlaybooks are the shipped response rules.
func DefaultPlaybooks() []Playbook {
	return []Playbook{
		{
			ID:        "soar-pb-001",
			Name:      "Auto-Quarantine Critical Threats",
			Condition: map[string]interface{}{"severity": "CRITICAL"},
			Action:    "quarantine",
			Enabled:   true,
		},
		{
			ID:   "soar-pb-002",
			Name: "Block Active Shadow AI Anomalies",
			Condition: map[string]interface{}{
				"severity":          "HIGH",
				"ml_classification": "shadow_ai",
			},
			Action:  "quarantine",
			Enabled: true,
		},
	}
}

// Playbooks returns a copy of the configured playbooks.
func (e *Engine) Playbooks() []Playbook {
	out := make([]Playbook, len(e.playbooks))
	copy(out, e.playbooks)
	return out
}

// Evaluate runs every enabled playbook against the alert and executes the
// matched actions, each under ActionTimeout.
func (e *Engine) Evaluate(a *core.Alert) []ExecutedAction {
	fields := a.Fields()

	var taken []ExecutedAction
	for _, pb := range e.playbooks {
		if !pb.Matches(fields) {
			continue
		}
		e.logger.Printf("Executing playbook [%s] -> action: %s", pb.Name, pb.Action)

		if err := e.execute(pb, a); err != nil {
			e.logger.Printf("playbook %s action %s failed: %v", pb.ID, pb.Action, err)
			continue
		}
		taken = append(taken, ExecutedAction{Playbook: pb.Name, Action: pb.Action, Target: a.Source})
	}
	return taken
}

func (e *Engine) execute(pb Playbook, a *core.Alert) error {
	ctx, cancel := context.WithTimeout(context.Background(), ActionTimeout)
	defer cancel()

	switch pb.Action {
	case "quarantine":
		if a.Source == "" {
			return fmt.Errorf("alert has no source node")
		}
		done := make(chan error, 1)
		go func() {
			score := 1.0
			_, err := e.enforcer.Quarantine(a.Source, "SOAR Auto-Quarantine Playbook Activated", &score, true)
			done <- err
		}()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return fmt.Errorf("quarantine action timed out after %v", ActionTimeout)
		}
	default:
		return fmt.Errorf("unknown action %q", pb.Action)
	}
}
