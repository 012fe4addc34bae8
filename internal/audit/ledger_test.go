package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_AppendAndGetLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	e1, err := l.Append("Security Analyst", "quarantine_node", "192.168.1.14", map[string]interface{}{"reason": "test"})
	require.NoError(t, err)
	assert.Equal(t, "QUARANTINE_NODE", e1.Action) // verbs are upper-cased
	assert.Equal(t, int64(1), e1.ID)

	e2, err := l.Append("SOAR Engine", "RELEASE_NODE", "192.168.1.14", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), e2.ID)

	logs := l.GetLogs(10)
	require.Len(t, logs, 2)
	// Newest first.
	assert.Equal(t, "RELEASE_NODE", logs[0].Action)
	assert.Equal(t, "QUARANTINE_NODE", logs[1].Action)

	logs = l.GetLogs(1)
	require.Len(t, logs, 1)
	assert.Equal(t, "RELEASE_NODE", logs[0].Action)
}

func TestLedger_ReplayAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	l, err := Open(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := l.Append("tester", "CREATE_RULE", "rule", map[string]interface{}{"n": i})
		require.NoError(t, err)
	}
	before := l.GetLogs(0)
	require.NoError(t, l.Close())

	// Reopen: the replayed list must equal the pre-restart list.
	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	after := l2.GetLogs(0)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Hash, after[i].Hash)
		assert.Equal(t, before[i].Action, after[i].Action)
	}

	ok, broken := l2.Validate()
	assert.True(t, ok)
	assert.Equal(t, -1, broken)

	// New appends continue the chain.
	e, err := l2.Append("tester", "TOGGLE_RULE", "rule", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), e.ID)
	assert.Equal(t, before[0].Hash, e.PreviousHash)
}

func TestLedger_HashChainIntegrity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Append("a", "ACT", "r1", nil)
	require.NoError(t, err)
	e2, err := l.Append("a", "ACT", "r2", nil)
	require.NoError(t, err)

	assert.True(t, e2.Verify())
	ok, _ := l.Validate()
	assert.True(t, ok)
}

func TestLedger_AppendFailsAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// With the file handle gone the append must surface an error so the
	// originating action can be refused.
	_, err = l.Append("a", "ACT", "r", nil)
	assert.Error(t, err)
}
