// Package cache is the per-session ledger of what distillation has already
// processed. It is the only thing that makes re-runs incremental.
package cache

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/state"
)

// Entry records the last processing of one session.
type Entry struct {
	Fingerprint string `json:"fingerprint"`
	SizeBytes   int64  `json:"size_bytes"`

	// LastProcessed is the newest transcript timestamp seen. It never moves backward.
	LastProcessed time.Time `json:"last_processed"`

	// ProcessedAt is the wall-clock time of the run that wrote this entry.
	ProcessedAt  time.Time `json:"processed_at"`
	HasKnowledge bool      `json:"has_knowledge"`

	// Error holds the failure code when the run could not extract; the
	// session still counts as processed.
	Error string `json:"error,omitempty"`
}

// Cache maps session id to Entry and persists to a single JSON file.
// A single writer is assumed; callers hold the distill lock.
type Cache struct {
	path    string
	entries map[string]Entry
}

// Load reads the cache at path. A missing file is an empty cache; a corrupt
// one is a PARSE_ERROR so a damaged ledger never silently triggers a full re-run.
func Load(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[string]Entry)}

	data, err := state.ReadFile(path)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return c, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, errors.NewParseError(path, err)
	}
	if c.entries == nil {
		c.entries = make(map[string]Entry)
	}
	return c, nil
}

// ShouldProcess reports whether a session needs extraction: it is unknown,
// its fingerprint changed, or force is set.
func (c *Cache) ShouldProcess(sessionID, fingerprint string, force bool) bool {
	if force {
		return true
	}
	e, ok := c.entries[sessionID]
	return !ok || e.Fingerprint != fingerprint
}

// Get returns the entry for a session.
func (c *Cache) Get(sessionID string) (Entry, bool) {
	e, ok := c.entries[sessionID]
	return e, ok
}

// LastProcessed returns the marker for a session, or zero when unknown.
func (c *Cache) LastProcessed(sessionID string) time.Time {
	return c.entries[sessionID].LastProcessed
}

// RecordProcessed stores e for a session and persists the whole cache
// atomically. LastProcessed is clamped so it never moves backward.
func (c *Cache) RecordProcessed(sessionID string, e Entry) error {
	if prev, ok := c.entries[sessionID]; ok && prev.LastProcessed.After(e.LastProcessed) {
		e.LastProcessed = prev.LastProcessed
	}
	c.entries[sessionID] = e
	return c.save()
}

// Reset forgets one session, or every session when sessionID is empty.
func (c *Cache) Reset(sessionID string) error {
	if sessionID == "" {
		c.entries = make(map[string]Entry)
	} else {
		delete(c.entries, sessionID)
	}
	return c.save()
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	return len(c.entries)
}

// SessionIDs returns cached ids in sorted order.
func (c *Cache) SessionIDs() []string {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Cache) save() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	return state.WriteFileAtomic(c.path, append(data, '\n'))
}
