package graph

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNode_MergesLabelsAndLastSeen(t *testing.T) {
	s := NewStore()
	t1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	s.AddNode("192.168.1.10", NodeUpdate{Labels: []string{"IP"}, Type: NodeInternal, LastSeen: t2})
	s.AddNode("192.168.1.10", NodeUpdate{Labels: []string{"Ravi Sharma"}, LastSeen: t1})

	n, ok := s.GetNode("192.168.1.10")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"IP", "Ravi Sharma"}, n.Labels)
	// last_seen is monotonic: the older update must not rewind it.
	assert.Equal(t, t2, n.LastSeen)
	assert.Equal(t, NodeInternal, n.Type)
}

func TestAddEdge_SumsByteCounts(t *testing.T) {
	s := NewStore()
	now := time.Now().UTC()

	s.AddEdge("a", "b", "TALKS_TO", EdgeUpdate{ByteCount: 100, LastSeen: now})
	s.AddEdge("a", "b", "TALKS_TO", EdgeUpdate{ByteCount: 250, LastSeen: now.Add(time.Second)})
	s.AddEdge("a", "b", "TALKS_TO", EdgeUpdate{ByteCount: 50, LastSeen: now})

	edges := s.GetAllEdges()
	require.Len(t, edges, 1)
	assert.Equal(t, int64(400), edges[0].ByteCount)
	assert.Equal(t, now.Add(time.Second), edges[0].LastSeen)
}

func TestAddEdge_CreatesMissingEndpoints(t *testing.T) {
	s := NewStore()
	s.AddEdge("x", "y", "TALKS_TO", EdgeUpdate{ByteCount: 1})

	n, ok := s.GetNode("x")
	require.True(t, ok)
	assert.Contains(t, n.Labels, "Unknown")
	_, ok = s.GetNode("y")
	assert.True(t, ok)
}

func TestNodeTypeLattice(t *testing.T) {
	s := NewStore()

	// external upgrades to shadow
	s.AddNode("openai.com", NodeUpdate{Type: NodeExternal})
	s.AddNode("openai.com", NodeUpdate{Type: NodeShadow})
	n, _ := s.GetNode("openai.com")
	assert.Equal(t, NodeShadow, n.Type)

	// shadow never downgrades
	s.AddNode("openai.com", NodeUpdate{Type: NodeExternal})
	n, _ = s.GetNode("openai.com")
	assert.Equal(t, NodeShadow, n.Type)

	// internal is sticky against external/shadow
	s.AddNode("192.168.1.5", NodeUpdate{Type: NodeInternal})
	s.AddNode("192.168.1.5", NodeUpdate{Type: NodeShadow})
	n, _ = s.GetNode("192.168.1.5")
	assert.Equal(t, NodeInternal, n.Type)

	// infra is sticky too
	s.AddNode("192.168.1.100", NodeUpdate{Type: NodeInfra})
	s.AddNode("192.168.1.100", NodeUpdate{Type: NodeExternal})
	n, _ = s.GetNode("192.168.1.100")
	assert.Equal(t, NodeInfra, n.Type)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := NewStore()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.AddEdge("src", "dst", "TALKS_TO", EdgeUpdate{ByteCount: 1, LastSeen: now})
			}
		}()
	}
	wg.Wait()

	edges := s.GetAllEdges()
	require.Len(t, edges, 1)
	assert.Equal(t, int64(800), edges[0].ByteCount)
}
