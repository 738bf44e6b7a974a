package namespace

import (
	"sort"
	"sync"
)

// Original records a definition's identifiers before rewriting.
type Original struct {
	Identity string
	GlobalID string
}

// Shadows maps rewritten identities back to their originals. Entries are
// transient: activation consumes them once the handles are exposed.
type Shadows struct {
	mu       sync.Mutex
	models   map[string]Original
	services map[string]Original
}

// NewShadows returns an empty side table.
func NewShadows() *Shadows {
	return &Shadows{
		models:   make(map[string]Original),
		services: make(map[string]Original),
	}
}

// ConsumeModel returns and removes the entry for a rewritten model identity.
func (s *Shadows) ConsumeModel(rewritten string) (Original, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.models[rewritten]
	delete(s.models, rewritten)
	return o, ok
}

// ConsumeService returns and removes the entry for a rewritten service identity.
func (s *Shadows) ConsumeService(rewritten string) (Original, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.services[rewritten]
	delete(s.services, rewritten)
	return o, ok
}

// ModelIdentities returns the rewritten model identities still pending, sorted.
func (s *Shadows) ModelIdentities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.models)
}

// ServiceIdentities returns the rewritten service identities still pending, sorted.
func (s *Shadows) ServiceIdentities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.services)
}

// Pending reports how many entries have not been consumed.
func (s *Shadows) Pending() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.models) + len(s.services)
}

func sortedKeys(m map[string]Original) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
