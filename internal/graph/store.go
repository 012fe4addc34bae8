// Package graph holds the live communication graph: nodes are internal
// hosts and external services, edges are observed flows. The store is
// in-memory and does not persist; it is rebuilt from traffic on restart.
package graph

import (
	"sort"
	"sync"
	"time"
)

// NodeType tags what kind of endpoint a node is.
type NodeType string

const (
	NodeInternal NodeType = "internal"
	NodeExternal NodeType = "external"
	NodeShadow   NodeType = "shadow" // external node identified as a generative-AI service
	NodeInfra    NodeType = "infra"
)

// Node is one endpoint in the communication graph. Identity is the string
// key: internal IP for internal hosts, canonical hostname for external
// services when DPI metadata yields one, else the external IP.
type Node struct {
	ID       string    `json:"id"`
	Labels   []string  `json:"labels"`
	Type     NodeType  `json:"type,omitempty"`
	LastSeen time.Time `json:"last_seen"`

	// Free-form scalar attributes (department, user name, ...).
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Edge is a directed relation between two nodes, keyed by
// (source, target, relation). Flow traffic uses relation "TALKS_TO".
type Edge struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Relation  string    `json:"relation"`
	Protocol  string    `json:"protocol,omitempty"`
	DstPort   int       `json:"dst_port,omitempty"`
	ByteCount int64     `json:"byte_count"`
	LastSeen  time.Time `json:"last_seen"`

	Properties map[string]interface{} `json:"properties,omitempty"`
}

type edgeKey struct {
	src, dst, rel string
}

// Store is a mutex-protected directed multigraph. All mutations are atomic
// per call, so the analyzer may process events concurrently.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[edgeKey]*Edge
}

// NewStore returns an empty graph.
func NewStore() *Store {
	return &Store{
		nodes: make(map[string]*Node),
		edges: make(map[edgeKey]*Edge),
	}
}

// NodeUpdate carries the merge payload for AddNode.
type NodeUpdate struct {
	Labels     []string
	Type       NodeType
	LastSeen   time.Time
	Properties map[string]interface{}
}

// AddNode creates or merges a node. Merge rules:
//   - labels are unioned
//   - last_seen is monotonic (max of old and new)
//   - scalar properties are overwritten
//   - type follows the lattice: external may upgrade to shadow;
//     internal and infra never change
func (s *Store) AddNode(id string, u NodeUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addNodeLocked(id, u)
}

func (s *Store) addNodeLocked(id string, u NodeUpdate) {
	n, ok := s.nodes[id]
	if !ok {
		n = &Node{ID: id, Properties: make(map[string]interface{})}
		s.nodes[id] = n
	}
	n.Labels = unionLabels(n.Labels, u.Labels)
	if u.LastSeen.After(n.LastSeen) {
		n.LastSeen = u.LastSeen
	}
	for k, v := range u.Properties {
		n.Properties[k] = v
	}
	n.Type = mergeType(n.Type, u.Type)
}

// mergeType enforces the node type lattice.
func mergeType(current, next NodeType) NodeType {
	if next == "" {
		return current
	}
	switch current {
	case "":
		return next
	case NodeInternal, NodeInfra:
		// Sticky: an internal or infra node never becomes external/shadow.
		if next == NodeInternal || next == NodeInfra {
			return next
		}
		return current
	case NodeExternal:
		if next == NodeShadow {
			return NodeShadow // upgrade on shadow-AI classification
		}
		return current
	case NodeShadow:
		return current
	}
	return current
}

// EdgeUpdate carries the merge payload for AddEdge.
type EdgeUpdate struct {
	Protocol   string
	DstPort    int
	ByteCount  int64
	LastSeen   time.Time
	Properties map[string]interface{}
}

// AddEdge creates or merges the (src, dst, relation) edge. byte_count is
// summed, last_seen is monotonic, other scalars are overwritten. Missing
// endpoints are created with a placeholder Unknown label.
func (s *Store) AddEdge(src, dst, relation string, u EdgeUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[src]; !ok {
		s.addNodeLocked(src, NodeUpdate{Labels: []string{"Unknown"}, LastSeen: u.LastSeen})
	}
	if _, ok := s.nodes[dst]; !ok {
		s.addNodeLocked(dst, NodeUpdate{Labels: []string{"Unknown"}, LastSeen: u.LastSeen})
	}

	key := edgeKey{src, dst, relation}
	e, ok := s.edges[key]
	if !ok {
		e = &Edge{Source: src, Target: dst, Relation: relation, Properties: make(map[string]interface{})}
		s.edges[key] = e
	}
	if u.Protocol != "" {
		e.Protocol = u.Protocol
	}
	if u.DstPort != 0 {
		e.DstPort = u.DstPort
	}
	e.ByteCount += u.ByteCount
	if u.LastSeen.After(e.LastSeen) {
		e.LastSeen = u.LastSeen
	}
	for k, v := range u.Properties {
		e.Properties[k] = v
	}
}

// GetNode returns a copy of the node, if present.
func (s *Store) GetNode(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return copyNode(n), true
}

// GetAllNodes returns a snapshot of every node, ordered by id for stable
// control-plane responses.
func (s *Store) GetAllNodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, copyNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetAllEdges returns a snapshot of every edge.
func (s *Store) GetAllEdges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, copyEdge(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Relation < out[j].Relation
	})
	return out
}

// Counts returns node and edge totals.
func (s *Store) Counts() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), len(s.edges)
}

func copyNode(n *Node) Node {
	out := *n
	out.Labels = append([]string(nil), n.Labels...)
	out.Properties = copyProps(n.Properties)
	return out
}

func copyEdge(e *Edge) Edge {
	out := *e
	out.Properties = copyProps(e.Properties)
	return out
}

func copyProps(p map[string]interface{}) map[string]interface{} {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func unionLabels(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := existing
	for _, l := range existing {
		seen[l] = true
	}
	for _, l := range incoming {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}
