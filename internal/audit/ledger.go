// Package audit implements the append-only administrative audit ledger.
// Entries are hash-chained for tamper evidence and persisted to a
// line-delimited JSON file that is replayed on startup.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one immutable audit record. Never mutated or deleted.
type Entry struct {
	ID        int64                  `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor"`    // e.g. "Security Analyst", "SOAR Engine"
	Action    string                 `json:"action"`   // upper-case verb, e.g. "QUARANTINE_NODE"
	Resource  string                 `json:"resource"` // e.g. "192.168.1.14"
	Details   map[string]interface{} `json:"details,omitempty"`

	// Integrity chain.
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
}

// computeHash hashes the canonical entry with the Hash field blanked.
func (e *Entry) computeHash() string {
	c := *e
	c.Hash = ""
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the entry's stored hash matches its content.
func (e *Entry) Verify() bool { return e.Hash == e.computeHash() }

// Ledger is the append-only store. A single mutex covers the in-memory
// list and the file handle; Append holds it through the disk write so the
// on-disk order always matches assignment order.
type Ledger struct {
	mu       sync.Mutex
	entries  []Entry // newest first
	lastID   int64
	lastHash string

	path   string
	file   *os.File
	logger *log.Logger
}

// Open creates the ledger at path, creating the parent directory if
// missing and replaying any existing file into memory.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	l := &Ledger{
		path:     path,
		lastHash: genesisHash,
		logger:   log.New(log.Writer(), "[AuditLedger] ", log.LstdFlags),
	}
	if err := l.replay(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	l.file = f
	l.logger.Printf("Ledger open at %s (%d entries)", path, len(l.entries))
	return l, nil
}

// replay reads the JSONL file oldest-first and rebuilds the in-memory
// list. Corrupt lines are skipped with a warning; a broken hash chain is
// logged but does not refuse startup.
func (l *Ledger) replay() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ledger for replay: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			l.logger.Printf("skip corrupt ledger line %d: %v", line, err)
			continue
		}
		if !e.Verify() || e.PreviousHash != l.lastHash {
			l.logger.Printf("WARNING: ledger integrity break at line %d (entry %d)", line, e.ID)
		}
		l.entries = append([]Entry{e}, l.entries...) // newest first
		if e.ID > l.lastID {
			l.lastID = e.ID
		}
		l.lastHash = e.Hash
	}
	return sc.Err()
}

// Append persists one entry. The disk write is flushed before the entry
// becomes visible in memory; on I/O failure nothing is recorded and the
// error is returned so strict callers can refuse the originating action.
func (l *Ledger) Append(actor, action, resource string, details map[string]interface{}) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		ID:           l.lastID + 1,
		Timestamp:    time.Now().UTC(),
		Actor:        actor,
		Action:       strings.ToUpper(action),
		Resource:     resource,
		Details:      details,
		PreviousHash: l.lastHash,
	}
	e.Hash = e.computeHash()

	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal audit entry: %w", err)
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		l.logger.Printf("ERROR: failed to persist audit entry: %v", err)
		return Entry{}, fmt.Errorf("persist audit entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.logger.Printf("ERROR: failed to sync audit ledger: %v", err)
		return Entry{}, fmt.Errorf("sync audit ledger: %w", err)
	}

	l.entries = append([]Entry{e}, l.entries...)
	l.lastID = e.ID
	l.lastHash = e.Hash
	return e, nil
}

// GetLogs returns the newest limit entries (all of them when limit <= 0).
func (l *Ledger) GetLogs(limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]Entry, limit)
	copy(out, l.entries[:limit])
	return out
}

// Validate walks the chain oldest-first and returns the index (in oldest-
// first order) of the first broken entry, or -1 when the chain is intact.
func (l *Ledger) Validate() (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := genesisHash
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if !e.Verify() || e.PreviousHash != prev {
			return false, len(l.entries) - 1 - i
		}
		prev = e.Hash
	}
	return true, -1
}

// Close releases the file handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
