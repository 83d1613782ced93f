package access

import (
	"context"
	"sync"
)

// Checker answers whether a user may see a case. It is the one place
// participant and role rules live; the gateway, relay and REST API all ask
// it rather than inspecting roles themselves.
type Checker interface {
	CanAccessCase(ctx context.Context, userID, caseID string) (bool, error)
}

// StaticChecker is an in-memory Checker keyed by case.
type StaticChecker struct {
	mu    sync.RWMutex
	cases map[string]map[string]struct{}
}

func NewStaticChecker() *StaticChecker {
	return &StaticChecker{cases: make(map[string]map[string]struct{})}
}

// Grant lets the users access caseID.
func (s *StaticChecker) Grant(caseID string, userIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.cases[caseID]
	if !ok {
		set = make(map[string]struct{})
		s.cases[caseID] = set
	}
	for _, id := range userIDs {
		set[id] = struct{}{}
	}
}

// Revoke removes a user's access to caseID.
func (s *StaticChecker) Revoke(caseID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cases[caseID], userID)
}

func (s *StaticChecker) CanAccessCase(ctx context.Context, userID, caseID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cases[caseID][userID]
	return ok, nil
}
