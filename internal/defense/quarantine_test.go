package defense

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowhunt/backend/internal/audit"
	"github.com/shadowhunt/backend/internal/core"
)

func newTestRegistry(t *testing.T) (*Registry, *audit.Ledger) {
	t.Helper()
	ledger, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return NewRegistry(ledger), ledger
}

func countAction(entries []audit.Entry, action, resource string) int {
	n := 0
	for _, e := range entries {
		if e.Action == action && e.Resource == resource {
			n++
		}
	}
	return n
}

func TestQuarantine_Idempotent(t *testing.T) {
	r, ledger := newTestRegistry(t)

	status, err := r.Quarantine("192.168.1.14", "manual isolation", nil, false)
	require.NoError(t, err)
	assert.Equal(t, core.StatusQuarantined, status)

	// Second call: no duplicate record, no duplicate audit entry.
	status, err = r.Quarantine("192.168.1.14", "manual isolation", nil, false)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAlreadyQuarantined, status)

	assert.True(t, r.IsQuarantined("192.168.1.14"))
	assert.Len(t, r.List(), 1)
	assert.Equal(t, 1, countAction(ledger.GetLogs(0), "QUARANTINE_NODE", "192.168.1.14"))
}

func TestRelease_Statuses(t *testing.T) {
	r, _ := newTestRegistry(t)

	status, err := r.Release("10.0.0.9", "analyst")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotFound, status)

	_, err = r.Quarantine("10.0.0.9", "test", nil, false)
	require.NoError(t, err)

	status, err = r.Release("10.0.0.9", "analyst")
	require.NoError(t, err)
	assert.Equal(t, core.StatusReleased, status)
	assert.False(t, r.IsQuarantined("10.0.0.9"))

	status, err = r.Release("10.0.0.9", "analyst")
	require.NoError(t, err)
	assert.Equal(t, core.StatusAlreadyReleased, status)

	rec, ok := r.Status("10.0.0.9")
	require.True(t, ok)
	assert.Equal(t, "released", rec.Status)
	assert.NotNil(t, rec.ReleasedAt)
}

func TestRequarantine_CreatesNewRecord(t *testing.T) {
	r, ledger := newTestRegistry(t)
	ip := "192.168.1.10"

	_, err := r.Quarantine(ip, "first", nil, false)
	require.NoError(t, err)
	_, err = r.Release(ip, "analyst")
	require.NoError(t, err)
	status, err := r.Quarantine(ip, "second", nil, false)
	require.NoError(t, err)
	assert.Equal(t, core.StatusQuarantined, status)

	// Two records: one released, one active. Three audit entries total.
	records := r.List()
	require.Len(t, records, 2)
	assert.Equal(t, "released", records[0].Status)
	assert.Equal(t, "active", records[1].Status)
	assert.Len(t, ledger.GetLogs(0), 3)
}

func TestAutoQuarantineIfCritical(t *testing.T) {
	r, _ := newTestRegistry(t)

	created, err := r.AutoQuarantineIfCritical("192.168.1.13", 0.80, "below threshold")
	require.NoError(t, err)
	assert.False(t, created)
	assert.False(t, r.IsQuarantined("192.168.1.13"))

	created, err = r.AutoQuarantineIfCritical("192.168.1.13", 0.95, "high confidence shadow ai")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, r.IsQuarantined("192.168.1.13"))

	// Already active: no new record.
	created, err = r.AutoQuarantineIfCritical("192.168.1.13", 0.99, "again")
	require.NoError(t, err)
	assert.False(t, created)

	rec, ok := r.Status("192.168.1.13")
	require.True(t, ok)
	assert.True(t, rec.AutoTriggered)
	require.NotNil(t, rec.ThreatScore)
	assert.InDelta(t, 0.95, *rec.ThreatScore, 1e-9)
}

func TestQuarantine_RollsBackOnAuditFailure(t *testing.T) {
	ledger, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	r := NewRegistry(ledger)
	require.NoError(t, ledger.Close()) // force audit appends to fail

	_, err = r.Quarantine("192.168.1.11", "strict mode", nil, false)
	assert.Error(t, err)
	assert.False(t, r.IsQuarantined("192.168.1.11"))
	assert.Empty(t, r.List())
}
