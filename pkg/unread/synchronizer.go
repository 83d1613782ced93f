// Package unread keeps a client's unread badge consistent when it is fed by
// two channels: authoritative polls of the REST API and best-effort
// unread_increment pushes.
//
// A poll replaces the count outright. A push adds one, but only for a
// message the last poll could not have counted: its id must be above that
// poll's watermark for the case. Pushes that arrive before a poll covers
// them are kept and re-applied on top of the poll, so a push and a poll
// racing each other never count the same message twice and never lose it.
package unread

import "sync"

// Snapshot is a poll result.
type Snapshot struct {
	Count      int64
	Watermarks map[string]int64
}

// Hint is a pushed unread_increment.
type Hint struct {
	UserID    string
	CaseID    string
	MessageID int64
}

type hintKey struct {
	caseID string
	id     int64
}

// Synchronizer is safe for concurrent use.
type Synchronizer struct {
	userID string

	mu         sync.Mutex
	polled     bool
	count      int64
	watermarks map[string]int64
	pending    map[hintKey]struct{}
	onChange   func(int64)
}

// New tracks the unread count of userID.
func New(userID string) *Synchronizer {
	return &Synchronizer{
		userID:     userID,
		watermarks: make(map[string]int64),
		pending:    make(map[hintKey]struct{}),
	}
}

// OnChange registers fn to run with the new count after every change. fn
// runs with the synchronizer locked and must not call back into it.
func (s *Synchronizer) OnChange(fn func(count int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Count returns the current value and whether a poll has seeded it.
func (s *Synchronizer) Count() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, s.polled
}

// ApplyPoll replaces the count with the poll's value plus every retained
// hint the poll does not cover. Covered hints are forgotten.
func (s *Synchronizer) ApplyPoll(snap Snapshot) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.polled = true
	s.watermarks = make(map[string]int64, len(snap.Watermarks))
	for caseID, id := range snap.Watermarks {
		s.watermarks[caseID] = id
	}

	count := snap.Count
	for k := range s.pending {
		if k.id <= s.watermarks[k.caseID] {
			delete(s.pending, k)
			continue
		}
		count++
	}

	s.set(count)
	return s.count
}

// ApplyHint counts a pushed message once. It reports whether the count
// changed.
func (s *Synchronizer) ApplyHint(h Hint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.polled || h.UserID != s.userID {
		return false
	}
	if h.MessageID <= 0 || h.MessageID <= s.watermarks[h.CaseID] {
		return false
	}

	k := hintKey{caseID: h.CaseID, id: h.MessageID}
	if _, seen := s.pending[k]; seen {
		return false
	}
	s.pending[k] = struct{}{}

	s.set(s.count + 1)
	return true
}

// Pending is the number of hints not yet covered by a poll.
func (s *Synchronizer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Synchronizer) set(count int64) {
	changed := count != s.count
	s.count = count
	if changed && s.onChange != nil {
		s.onChange(count)
	}
}
