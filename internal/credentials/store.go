package credentials

import "sync"

// Store is the gateway-facing accessor over the active credential. Reads
// return an immutable snapshot; a reload racing an in-flight call leaves that
// call on its stale-but-valid copy.
type Store struct {
	mu     sync.RWMutex
	active *Credential
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Active returns a snapshot of the current credential. ok is false when no
// complete credential is configured.
func (s *Store) Active() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil || !s.active.Complete() {
		return Credential{}, false
	}
	return *s.active, true
}

// Replace installs cred as the active credential, discarding the previous
// variant entirely. Partial merges are deliberately not supported.
func (s *Store) Replace(cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cred
	s.active = &c
}

// Clear removes the active credential.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}
