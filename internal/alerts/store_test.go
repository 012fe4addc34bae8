package alerts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowhunt/backend/internal/core"
)

func TestStore_AddAndGet(t *testing.T) {
	s := NewStore(10)
	s.Add(core.Alert{ID: "alert-1", Severity: core.SeverityHigh})
	s.Add(core.Alert{ID: "alert-2", Severity: core.SeverityCritical})

	assert.Equal(t, 2, s.Len())

	a, ok := s.Get("alert-2")
	require.True(t, ok)
	assert.Equal(t, core.SeverityCritical, a.Severity)

	_, ok = s.Get("alert-missing")
	assert.False(t, ok)
}

func TestStore_EvictsOldestWhenFull(t *testing.T) {
	s := NewStore(3)
	for i := 1; i <= 5; i++ {
		s.Add(core.Alert{ID: fmt.Sprintf("alert-%d", i)})
	}

	assert.Equal(t, 3, s.Len())

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alert-3", list[0].ID)
	assert.Equal(t, "alert-4", list[1].ID)
	assert.Equal(t, "alert-5", list[2].ID)

	_, ok := s.Get("alert-1")
	assert.False(t, ok)
	_, ok = s.Get("alert-5")
	assert.True(t, ok)
}

func TestStore_DefaultCapacity(t *testing.T) {
	s := NewStore(0)
	for i := 0; i < DefaultCapacity+20; i++ {
		s.Add(core.Alert{ID: fmt.Sprintf("alert-%d", i)})
	}
	assert.Equal(t, DefaultCapacity, s.Len())

	list := s.List()
	assert.Equal(t, "alert-20", list[0].ID)
	assert.Equal(t, fmt.Sprintf("alert-%d", DefaultCapacity+19), list[len(list)-1].ID)
}
