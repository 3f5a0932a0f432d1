package transcript

import (
	"context"
	"fmt"
	"iter"

	"github.com/hpungsan/wm/internal/errors"
)

// MultiStore merges several sources. Entries are routed by Session.Source.
type MultiStore struct {
	stores map[string]Store
	order  []string
}

// NewMultiStore builds a store over the given sources keyed by source tag.
func NewMultiStore() *MultiStore {
	return &MultiStore{stores: make(map[string]Store)}
}

// Add registers a source. Adding a tag twice replaces the earlier store.
func (m *MultiStore) Add(source string, s Store) *MultiStore {
	if _, ok := m.stores[source]; !ok {
		m.order = append(m.order, source)
	}
	m.stores[source] = s
	return m
}

// Discover implements Store. Sessions from every source are merged newest first.
func (m *MultiStore) Discover(ctx context.Context, projectPath string) ([]Session, error) {
	var all []Session
	for _, source := range m.order {
		sessions, err := m.stores[source].Discover(ctx, projectPath)
		if err != nil {
			return nil, fmt.Errorf("discover %s sessions: %w", source, err)
		}
		for i := range sessions {
			sessions[i].Source = source
		}
		all = append(all, sessions...)
	}
	sortNewestFirst(all)
	return all, nil
}

// Entries implements Store.
func (m *MultiStore) Entries(s Session) iter.Seq2[Entry, error] {
	store, ok := m.stores[s.Source]
	if !ok {
		return func(yield func(Entry, error) bool) {
			yield(Entry{}, errors.NewNotFound("transcript source", s.Source))
		}
	}
	return store.Entries(s)
}
