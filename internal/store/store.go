// Package store keeps per-message query results so interactive controls can
// re-render without going back to the warehouse.
package store

import (
	"sync"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/advisor"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/filter"
	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/result"
)

// State is everything attached to one posted result message: the SQL and
// prompt that produced it, the unfiltered original rows, the currently
// displayed rows, the active filters, and the refinement verdict once the
// advisor has reported. A nil Verdict means the advisor hasn't answered yet.
type State struct {
	SQL        string
	Prompt     string
	Original   result.Tabular
	Current    result.Tabular
	Filters    filter.Spec
	RowLimit   int
	SQLVisible bool
	Verdict    *advisor.Verdict
}

// Store maps Slack message timestamps to result state. All methods are safe
// for concurrent use; Get returns a copy so callers can mutate freely.
type Store struct {
	mu     sync.RWMutex
	states map[string]*State
}

func New() *Store {
	return &Store{states: make(map[string]*State)}
}

// Put registers the state for a freshly posted message. Current and Original
// both start as the full result.
func (s *Store) Put(messageID string, sql, prompt string, full result.Tabular) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[messageID] = &State{
		SQL:      sql,
		Prompt:   prompt,
		Original: full.Clone(),
		Current:  full,
	}
}

// Get returns a deep copy of the state for a message, or false when the
// message is unknown (restart, eviction).
func (s *Store) Get(messageID string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[messageID]
	if !ok {
		return State{}, false
	}
	return State{
		SQL:        st.SQL,
		Prompt:     st.Prompt,
		Original:   st.Original.Clone(),
		Current:    st.Current.Clone(),
		Filters:    st.Filters.Clone(),
		RowLimit:   st.RowLimit,
		SQLVisible: st.SQLVisible,
		Verdict:    st.Verdict,
	}, true
}

// Derive registers a new message whose state descends from an ancestor:
// same SQL, prompt, and original rows, but its own current view, filters,
// and display settings. Filter and clear-filter interactions use this so
// each posted message keeps an independent lineage back to the unfiltered
// result.
func (s *Store) Derive(newMessageID, ancestorID string, current result.Tabular, filters filter.Spec) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	anc, ok := s.states[ancestorID]
	if !ok {
		return false
	}
	s.states[newMessageID] = &State{
		SQL:      anc.SQL,
		Prompt:   anc.Prompt,
		Original: anc.Original.Clone(),
		Current:  current,
		Filters:  filters,
		Verdict:  anc.Verdict,
	}
	return true
}

// SetRowLimit records the requested display row count for a message.
func (s *Store) SetRowLimit(messageID string, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[messageID]
	if !ok {
		return false
	}
	st.RowLimit = limit
	return true
}

// SetSQLVisible marks the generated SQL as revealed on a message.
func (s *Store) SetSQLVisible(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[messageID]
	if !ok {
		return false
	}
	st.SQLVisible = true
	return true
}

// SetVerdict records the advisor's asynchronous judgement for a message.
func (s *Store) SetVerdict(messageID string, v advisor.Verdict) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[messageID]
	if !ok {
		return false
	}
	st.Verdict = &v
	return true
}

// Len reports how many message states are held, for metrics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
